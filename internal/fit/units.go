package fit

import "cmodel/internal/image"

// UnitSystem rescales pixel data so the fitted flux is of order
// unity. Optimizer tolerances and the shape prior then behave the
// same for bright and faint sources.
type UnitSystem struct {
	FluxScale float64
}

// NewUnitSystem derives the flux scale from the caller's approximate
// flux. A non-positive estimate falls back to the footprint's pixel
// sum, and if that is also unusable the scale is 1.
func NewUnitSystem(exp *image.Exposure, fp *image.Footprint, approxFlux float64) UnitSystem {
	scale := approxFlux
	if scale <= 0 {
		scale = exp.FootprintSum(fp)
	}
	if scale <= 0 {
		scale = 1
	}
	return UnitSystem{FluxScale: scale}
}
