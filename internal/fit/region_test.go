package fit

import (
	"errors"
	"testing"

	"cmodel/internal/image"
	"cmodel/internal/shape"
)

func TestSelectInitialGrowsAndClips(t *testing.T) {
	msk := image.NewMask(image.Box{X0: 0, Y0: 0, X1: 29, Y1: 29}, "EDGE", "SAT")
	fp := image.FootprintFromBox(image.Box{X0: 10, Y0: 10, X1: 12, Y1: 12})

	s := NewRegionSelector(DefaultRegionConfig())
	region, err := s.SelectInitial(msk, fp, image.EmptyBox())
	if err != nil {
		t.Fatalf("SelectInitial: %v", err)
	}
	// 3x3 grown by 5 on each side
	if got, want := region.Area(), 13*13; got != want {
		t.Fatalf("area = %d, want %d", got, want)
	}

	// same footprint against a mask that cuts the growth off
	small := image.NewMask(image.Box{X0: 8, Y0: 8, X1: 29, Y1: 29}, "EDGE", "SAT")
	region, err = s.SelectInitial(small, fp, image.EmptyBox())
	if err != nil {
		t.Fatalf("SelectInitial clipped: %v", err)
	}
	if got, want := region.Area(), 10*10; got != want {
		t.Fatalf("clipped area = %d, want %d", got, want)
	}
}

func TestSelectInitialIncludesPSFBBox(t *testing.T) {
	msk := image.NewMask(image.Box{X0: 0, Y0: 0, X1: 99, Y1: 99}, "EDGE", "SAT")
	fp := image.FootprintFromBox(image.Box{X0: 10, Y0: 10, X1: 12, Y1: 12})
	psfBounds := image.Box{X0: 40, Y0: 40, X1: 49, Y1: 49}

	cfg := DefaultRegionConfig()
	cfg.IncludePSFBBox = true
	region, err := NewRegionSelector(cfg).SelectInitial(msk, fp, psfBounds)
	if err != nil {
		t.Fatalf("SelectInitial: %v", err)
	}
	if !region.Contains(45, 45) {
		t.Fatalf("region does not include the PSF bounding box")
	}
}

func TestSelectInitialMaxArea(t *testing.T) {
	msk := image.NewMask(image.Box{X0: 0, Y0: 0, X1: 199, Y1: 199}, "EDGE", "SAT")
	fp := image.FootprintFromBox(image.Box{X0: 0, Y0: 0, X1: 150, Y1: 150})

	cfg := DefaultRegionConfig()
	cfg.MaxArea = 1000
	_, err := NewRegionSelector(cfg).SelectInitial(msk, fp, image.EmptyBox())
	var re *RegionError
	if !errors.As(err, &re) || re.Cause != RegionMaxArea {
		t.Fatalf("err = %v, want RegionError{MaxArea}", err)
	}
}

func TestSelectInitialBadPixelFraction(t *testing.T) {
	msk := image.NewMask(image.Box{X0: 0, Y0: 0, X1: 63, Y1: 63}, "EDGE", "SAT")
	for y := 10; y <= 30; y++ {
		for x := 10; x <= 30; x++ {
			msk.SetPlane(x, y, "SAT")
		}
	}
	fp := image.FootprintFromBox(image.Box{X0: 12, Y0: 12, X1: 28, Y1: 28})

	_, err := NewRegionSelector(DefaultRegionConfig()).SelectInitial(msk, fp, image.EmptyBox())
	var re *RegionError
	if !errors.As(err, &re) || re.Cause != RegionMaxBadPixelFraction {
		t.Fatalf("err = %v, want RegionError{MaxBadPixelFraction}", err)
	}
}

func TestSelectInitialRemovesBadPixels(t *testing.T) {
	msk := image.NewMask(image.Box{X0: 0, Y0: 0, X1: 63, Y1: 63}, "EDGE", "SAT")
	msk.SetPlane(20, 20, "EDGE")
	msk.SetPlane(21, 20, "SAT")
	fp := image.FootprintFromBox(image.Box{X0: 15, Y0: 15, X1: 25, Y1: 25})

	region, err := NewRegionSelector(DefaultRegionConfig()).SelectInitial(msk, fp, image.EmptyBox())
	if err != nil {
		t.Fatalf("SelectInitial: %v", err)
	}
	if region.Contains(20, 20) || region.Contains(21, 20) {
		t.Fatalf("region kept bad pixels")
	}
	if got, want := region.Area(), 21*21-2; got != want {
		t.Fatalf("area = %d, want %d", got, want)
	}
}

func TestSelectFinalIncludesEllipse(t *testing.T) {
	msk := image.NewMask(image.Box{X0: 0, Y0: 0, X1: 99, Y1: 99}, "EDGE", "SAT")
	fp := image.FootprintFromBox(image.Box{X0: 48, Y0: 48, X1: 52, Y1: 52})
	center := shape.Point{X: 50, Y: 50}

	s := NewRegionSelector(DefaultRegionConfig())
	initial, err := s.SelectInitial(msk, fp, image.EmptyBox())
	if err != nil {
		t.Fatalf("SelectInitial: %v", err)
	}
	final, err := s.SelectFinal(msk, fp, image.EmptyBox(), center, shape.Circle(8))
	if err != nil {
		t.Fatalf("SelectFinal: %v", err)
	}
	if final.Area() <= initial.Area() {
		t.Fatalf("final area %d not larger than initial %d", final.Area(), initial.Area())
	}
	// radius 8 scaled by 3 radii reaches x = 50+24
	if !final.Contains(73, 50) {
		t.Fatalf("final region missing ellipse extension")
	}
}
