package psf

import (
	"math"
	"testing"

	"cmodel/internal/shape"
)

func TestDoubleGaussianMomentsBlendSigmas(t *testing.T) {
	p := DoubleGaussian(1.0, 3.0, 0.2)
	if !p.Valid() {
		t.Fatalf("double Gaussian should be valid")
	}
	if len(p.Components) != 2 {
		t.Fatalf("components = %d, want 2", len(p.Components))
	}

	var total float64
	for _, c := range p.Components {
		total += c.Flux
	}
	if math.Abs(total-1) > 1e-12 {
		t.Fatalf("total flux = %g, want 1", total)
	}

	// flux-weighted blend of the two circular covariances
	m := p.Moments()
	want := 0.8*1.0 + 0.2*9.0
	if math.Abs(m.Ixx-want) > 1e-12 || math.Abs(m.Iyy-want) > 1e-12 {
		t.Fatalf("moments = (%g, %g), want %g", m.Ixx, m.Iyy, want)
	}
	if m.Ixy != 0 {
		t.Fatalf("circular blend has Ixy = %g", m.Ixy)
	}
}

func TestBBoxCoversWidestComponent(t *testing.T) {
	p := DoubleGaussian(1.0, 3.0, 0.1)
	box := p.BBox(shape.Point{X: 10, Y: 10}, 4)
	if box.X0 > 10-12 || box.X1 < 10+12 {
		t.Fatalf("bbox %+v does not cover 4 sigma of the halo", box)
	}

	single := SingleGaussian(1.0)
	small := single.BBox(shape.Point{X: 10, Y: 10}, 4)
	if (small.X1 - small.X0) >= (box.X1 - box.X0) {
		t.Fatalf("single-component bbox should be narrower")
	}
}

func TestValidRejectsDegenerateComponents(t *testing.T) {
	if (MultiGaussian{}).Valid() {
		t.Fatalf("empty approximation should be invalid")
	}
	bad := MultiGaussian{Components: []Component{{Flux: 1, Covariance: shape.Quadrupole{Ixx: -1, Iyy: 1}}}}
	if bad.Valid() {
		t.Fatalf("negative covariance should be invalid")
	}
}
