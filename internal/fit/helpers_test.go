package fit

import (
	"testing"

	"cmodel/internal/image"
	"cmodel/internal/model"
	"cmodel/internal/psf"
	"cmodel/internal/shape"
)

// testConfig disables priors and timing so noiseless scenes have
// exact optima and results are reproducible bit for bit.
func testConfig() Config {
	cfg := DefaultConfig()
	for _, s := range []*StageConfig{&cfg.Initial, &cfg.Exp, &cfg.Dev} {
		s.PriorSource = PriorSourceNone
		s.DoRecordTime = false
	}
	return cfg
}

var (
	testBounds = image.Box{X0: 0, Y0: 0, X1: 63, Y1: 63}
	testCenter = shape.Point{X: 32, Y: 32}
	testFPBox  = image.Box{X0: 16, Y0: 16, X1: 48, Y1: 48}
)

// renderScene synthesizes a noiseless galaxy image from the same
// model family the fit uses, so the fit's optimum is exact.
func renderScene(t *testing.T, profileName string, flux float64, q shape.Quadrupole) Inputs {
	t.Helper()
	p := psf.SingleGaussian(1.2)
	m, err := model.New(profileName, 8, 0, p)
	if err != nil {
		t.Fatalf("model: %v", err)
	}
	img := m.Render(image.FootprintFromBox(testBounds), testCenter, q, flux)

	variance := image.NewImage(testBounds)
	for i := range variance.Pix {
		variance.Pix[i] = 1
	}
	msk := image.NewMask(testBounds, "EDGE", "SAT")

	return Inputs{
		Exposure:   &image.Exposure{Image: img, Variance: variance, Mask: msk},
		Footprint:  image.FootprintFromBox(testFPBox),
		PSF:        p,
		Center:     testCenter,
		Moments:    q.Add(p.Moments()),
		ApproxFlux: flux,
	}
}
