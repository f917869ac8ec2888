package fit

import (
	"math"
	"testing"

	"cmodel/internal/image"
	"cmodel/internal/model"
	"cmodel/internal/shape"
)

func combineScene(t *testing.T, expFrac, devFrac, flux float64, q shape.Quadrupole) Inputs {
	t.Helper()
	in := renderScene(t, "lux", expFrac*flux, q)
	dev, err := model.New("luv", 8, 0, in.PSF)
	if err != nil {
		t.Fatalf("model: %v", err)
	}
	devImg := dev.Render(image.FootprintFromBox(testBounds), testCenter, q, devFrac*flux)
	for i := range in.Exposure.Image.Pix {
		in.Exposure.Image.Pix[i] += devImg.Pix[i]
	}
	in.ApproxFlux = flux
	return in
}

func runCombine(t *testing.T, in Inputs, q shape.Quadrupole) CombineResult {
	t.Helper()
	cfg := testConfig()
	region, err := NewRegionSelector(cfg.Region).SelectFinal(in.Exposure.Mask, in.Footprint, image.EmptyBox(), in.Center, q)
	if err != nil {
		t.Fatalf("region: %v", err)
	}
	units := NewUnitSystem(in.Exposure, in.Footprint, in.ApproxFlux)
	return NewLinearCombiner(cfg.Exp, cfg.Dev).Combine(in.Exposure, region, in.PSF, in.Center, q, q, units)
}

func TestCombinePureExponential(t *testing.T) {
	const flux = 1000.0
	q := shape.Circle(2)
	comb := runCombine(t, combineScene(t, 1, 0, flux, q), q)
	if !comb.OK {
		t.Fatalf("combine not ok")
	}
	if rel := math.Abs(comb.Flux-flux) / flux; rel > 1e-6 {
		t.Fatalf("flux = %g, want %g", comb.Flux, flux)
	}
	if comb.FracDev > 1e-6 {
		t.Fatalf("fracDev = %g, want ~0 for a pure exponential", comb.FracDev)
	}
	if comb.FluxErr <= 0 {
		t.Fatalf("flux error = %g, want positive", comb.FluxErr)
	}
}

func TestCombineBlendRecoversFracDev(t *testing.T) {
	const flux = 1000.0
	q := shape.Circle(2)
	comb := runCombine(t, combineScene(t, 0.4, 0.6, flux, q), q)
	if !comb.OK {
		t.Fatalf("combine not ok")
	}
	if rel := math.Abs(comb.Flux-flux) / flux; rel > 1e-6 {
		t.Fatalf("flux = %g, want %g", comb.Flux, flux)
	}
	if math.Abs(comb.FracDev-0.6) > 1e-6 {
		t.Fatalf("fracDev = %g, want 0.6", comb.FracDev)
	}
}

func TestCombineClampsNegativeAmplitude(t *testing.T) {
	const flux = 1000.0
	q := shape.Circle(2)
	// subtract a de Vaucouleur component so the unconstrained solve
	// goes negative
	comb := runCombine(t, combineScene(t, 1.3, -0.3, flux, q), q)
	if !comb.OK {
		t.Fatalf("combine not ok")
	}
	if comb.FracDev != 0 {
		t.Fatalf("fracDev = %g, want exactly 0 after clamping", comb.FracDev)
	}
	if comb.Flux < 0 {
		t.Fatalf("flux = %g, want non-negative", comb.Flux)
	}
}

func TestCombineFracDevAlwaysInRange(t *testing.T) {
	q := shape.Circle(2)
	for _, frac := range []struct{ e, d float64 }{
		{1.5, -0.5}, {-0.5, 1.5}, {0.9, 0.1}, {0.1, 0.9},
	} {
		comb := runCombine(t, combineScene(t, frac.e, frac.d, 500, q), q)
		if !comb.OK {
			t.Fatalf("combine not ok for %+v", frac)
		}
		if comb.FracDev < 0 || comb.FracDev > 1 {
			t.Fatalf("fracDev = %g out of [0,1] for %+v", comb.FracDev, frac)
		}
	}
}
