package fit

import (
	"fmt"

	"cmodel/internal/image"
	"cmodel/internal/shape"
)

// RegionErrorCause names why region selection was refused.
type RegionErrorCause int

const (
	// RegionMaxArea means the clipped region exceeded the area cap.
	RegionMaxArea RegionErrorCause = iota
	// RegionMaxBadPixelFraction means too many region pixels fell on
	// bad mask planes.
	RegionMaxBadPixelFraction
)

// RegionError aborts a measurement before any fitting is attempted.
type RegionError struct {
	Cause       RegionErrorCause
	Area        int
	BadFraction float64
}

func (e *RegionError) Error() string {
	switch e.Cause {
	case RegionMaxArea:
		return fmt.Sprintf("fit region too large: %d pixels", e.Area)
	case RegionMaxBadPixelFraction:
		return fmt.Sprintf("fit region too contaminated: %.3f bad pixel fraction", e.BadFraction)
	default:
		return "fit region rejected"
	}
}

// RegionSelector computes the pixel set a fit runs over.
type RegionSelector struct {
	cfg RegionConfig
}

func NewRegionSelector(cfg RegionConfig) *RegionSelector {
	return &RegionSelector{cfg: cfg}
}

// SelectInitial builds the region for the initial stage: the detection
// footprint grown by the configured margin, optionally unioned with
// the PSF bounding box, clipped to the mask, and stripped of bad
// pixels.
func (s *RegionSelector) SelectInitial(msk *image.Mask, fp *image.Footprint, psfBounds image.Box) (*image.Footprint, error) {
	region := fp.Grow(s.cfg.Grow)
	if s.cfg.IncludePSFBBox && !psfBounds.Empty() {
		region = region.Union(image.FootprintFromBox(psfBounds))
	}
	return s.finalize(msk, region)
}

// SelectFinal builds the region for the exp/dev stages. It starts
// from the same grown footprint as SelectInitial and additionally
// includes every pixel within NInitialRadii of the initial stage's
// best-fit ellipse, so an extended fit is never starved of its own
// wings.
func (s *RegionSelector) SelectFinal(msk *image.Mask, fp *image.Footprint, psfBounds image.Box, center shape.Point, ellipse shape.Quadrupole) (*image.Footprint, error) {
	region := fp.Grow(s.cfg.Grow)
	if s.cfg.IncludePSFBBox && !psfBounds.Empty() {
		region = region.Union(image.FootprintFromBox(psfBounds))
	}
	if ellipse.Valid() {
		region = region.Union(ellipseFootprint(center, ellipse.Scaled(s.cfg.NInitialRadii)))
	}
	return s.finalize(msk, region)
}

func (s *RegionSelector) finalize(msk *image.Mask, region *image.Footprint) (*image.Footprint, error) {
	region = region.Clip(msk.Bounds)
	total := region.Area()
	if total > s.cfg.MaxArea {
		return nil, &RegionError{Cause: RegionMaxArea, Area: total}
	}
	if total == 0 {
		return region, nil
	}

	bad := msk.BitsFor(s.cfg.BadMaskPlanes)
	if bad == 0 {
		return region, nil
	}
	var spans []image.Span
	removed := 0
	for _, sp := range region.Spans {
		x := sp.X0
		for x <= sp.X1 {
			for x <= sp.X1 && msk.At(x, sp.Y)&bad != 0 {
				removed++
				x++
			}
			if x > sp.X1 {
				break
			}
			start := x
			for x <= sp.X1 && msk.At(x, sp.Y)&bad == 0 {
				x++
			}
			spans = append(spans, image.Span{Y: sp.Y, X0: start, X1: x - 1})
		}
	}
	frac := float64(removed) / float64(total)
	if frac > s.cfg.MaxBadPixelFraction {
		return nil, &RegionError{Cause: RegionMaxBadPixelFraction, Area: total, BadFraction: frac}
	}
	return image.NewFootprint(spans), nil
}

func ellipseFootprint(center shape.Point, q shape.Quadrupole) *image.Footprint {
	if !q.Valid() {
		return &image.Footprint{}
	}
	r := q.TraceRadius() * 1.5
	b := image.Box{
		X0: int(center.X - r - 1),
		Y0: int(center.Y - r - 1),
		X1: int(center.X + r + 1),
		Y1: int(center.Y + r + 1),
	}
	return image.FootprintFromShape(b, func(x, y int) bool {
		return q.Contains(float64(x)-center.X, float64(y)-center.Y)
	})
}
