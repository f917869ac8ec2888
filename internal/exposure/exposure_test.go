package exposure

import (
	"path/filepath"
	"testing"

	"cmodel/internal/image"
	"cmodel/internal/psf"
)

func testBundle() *Bundle {
	bounds := image.Box{X0: 0, Y0: 0, X1: 9, Y1: 9}
	img := make([]float64, bounds.Area())
	img[55] = 3.5
	return &Bundle{
		Bounds: bounds,
		Image:  img,
		Sources: []Source{{
			ID:         42,
			CenterX:    5,
			CenterY:    5,
			Ixx:        4,
			Iyy:        3,
			Ixy:        0.5,
			Footprint:  []image.Span{{Y: 4, X0: 3, X1: 7}, {Y: 5, X0: 3, X1: 7}},
			PSF:        FromComponents(psf.SingleGaussian(1.5)),
			ApproxFlux: 3.5,
		}},
	}
}

func TestBundleRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bundle.json")
	if err := testBundle().Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	b, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(b.Sources) != 1 || b.Sources[0].ID != 42 {
		t.Fatalf("sources = %+v", b.Sources)
	}

	src := b.Sources[0]
	if src.Moments().Ixx != 4 || src.Center().X != 5 {
		t.Fatalf("source fields lost: %+v", src)
	}
	if !src.MultiGaussian().Valid() {
		t.Fatalf("psf did not survive round trip")
	}
	if got := src.FootprintSpans().Area(); got != 10 {
		t.Fatalf("footprint area = %d, want 10", got)
	}

	exp := b.Exposure()
	if exp.Image.At(5, 5) != 3.5 {
		t.Fatalf("pixel (5,5) = %g, want 3.5", exp.Image.At(5, 5))
	}
	if _, ok := exp.Mask.PlaneBit("EDGE"); !ok {
		t.Fatalf("mask missing EDGE plane")
	}
}

func TestLoadRejectsShortImage(t *testing.T) {
	b := testBundle()
	b.Image = b.Image[:10]
	path := filepath.Join(t.TempDir(), "bad.json")
	if err := b.Save(path); err == nil {
		t.Fatalf("short image accepted by Save")
	}
}

func TestExposureAppliesMaskPlanes(t *testing.T) {
	b := testBundle()
	b.MaskPlanes = map[string]uint{"EDGE": 0, "SAT": 1, "CR": 2}
	b.Mask = make([]uint32, b.Bounds.Area())
	b.Mask[0] = 1 << 2

	exp := b.Exposure()
	bit, ok := exp.Mask.PlaneBit("CR")
	if !ok || bit != 2 {
		t.Fatalf("CR plane bit = %d ok=%t", bit, ok)
	}
	if exp.Mask.At(0, 0)&(1<<2) == 0 {
		t.Fatalf("mask pixel not applied")
	}
}
