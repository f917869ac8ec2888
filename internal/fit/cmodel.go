package fit

import (
	"errors"

	"cmodel/internal/image"
	"cmodel/internal/psf"
	"cmodel/internal/shape"
)

// Aggregate result flags, bit order is stable across releases
// because the values are persisted.
const (
	FlagFailed uint8 = 1 << iota
	FlagMaxArea
	FlagMaxBadPixelFraction
	FlagNoShape
	FlagNoPSFApprox
)

// Inputs is everything a single-object measurement needs.
type Inputs struct {
	Exposure  *image.Exposure
	Footprint *image.Footprint
	PSF       psf.MultiGaussian
	Center    shape.Point
	// Moments are the detection's seed second moments.
	Moments shape.Quadrupole
	// ApproxFlux fixes the local unit system; non-positive values
	// fall back to the footprint pixel sum.
	ApproxFlux float64
}

// Result is the aggregate measurement for one object.
type Result struct {
	Flux      float64
	FluxErr   float64
	FracDev   float64
	Objective float64

	Initial StageResult
	Exp     StageResult
	Dev     StageResult

	InitialRegion *image.Footprint
	FinalRegion   *image.Footprint

	Flags uint8
}

// Failed reports the aggregate general failure flag.
func (r Result) Failed() bool { return r.Flags&FlagFailed != 0 }

// Algorithm is the staged fit, constructed once per configuration
// and safe to share across concurrently measured objects.
type Algorithm struct {
	cfg      Config
	regions  *RegionSelector
	initial  *StageRunner
	exp      *StageRunner
	dev      *StageRunner
	combiner *LinearCombiner
}

// New validates the configuration and builds the algorithm.
func New(cfg Config) (*Algorithm, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Algorithm{
		cfg:      cfg,
		regions:  NewRegionSelector(cfg.Region),
		initial:  NewStageRunner(cfg.Initial, cfg.PriorDir),
		exp:      NewStageRunner(cfg.Exp, cfg.PriorDir),
		dev:      NewStageRunner(cfg.Dev, cfg.PriorDir),
		combiner: NewLinearCombiner(cfg.Exp, cfg.Dev),
	}, nil
}

// seedEllipse deconvolves the PSF from the seed moments and floors
// the result so the optimizer never starts from a degenerate point.
func (a *Algorithm) seedEllipse(moments shape.Quadrupole, p psf.MultiGaussian) shape.Quadrupole {
	pm := p.Moments()
	seed := shape.Quadrupole{
		Ixx: moments.Ixx - pm.Ixx,
		Iyy: moments.Iyy - pm.Iyy,
		Ixy: moments.Ixy - pm.Ixy,
	}
	floor := shape.Circle(a.cfg.MinInitialRadius)
	if !seed.Valid() || seed.DetRadius() < a.cfg.MinInitialRadius {
		return floor
	}
	return seed
}

func regionFlag(err error) uint8 {
	var re *RegionError
	if errors.As(err, &re) && re.Cause == RegionMaxBadPixelFraction {
		return FlagMaxBadPixelFraction
	}
	return FlagMaxArea
}

// Apply runs the full standalone measurement: initial stage, the
// exp/dev pair warm-started from it, and the linear blend. Aborts
// record their cause in flags and return whatever was computed up to
// that point.
func (a *Algorithm) Apply(in Inputs) Result {
	var res Result

	if in.Footprint.Empty() || !in.Moments.Valid() {
		res.Flags |= FlagNoShape | FlagFailed
		return res
	}
	if !in.PSF.Valid() {
		res.Flags |= FlagNoPSFApprox | FlagFailed
		return res
	}

	psfBounds := in.PSF.BBox(in.Center, 4)
	region, err := a.regions.SelectInitial(in.Exposure.Mask, in.Footprint, psfBounds)
	if err != nil {
		res.Flags |= regionFlag(err) | FlagFailed
		return res
	}
	res.InitialRegion = region

	units := NewUnitSystem(in.Exposure, in.Footprint, in.ApproxFlux)
	seed := a.seedEllipse(in.Moments, in.PSF)
	res.Initial = a.initial.Run(in.Exposure, region, in.PSF, in.Center, seed, units)

	final, err := a.regions.SelectFinal(in.Exposure.Mask, in.Footprint, psfBounds, in.Center, res.Initial.Ellipse)
	if err != nil {
		res.Flags |= regionFlag(err) | FlagFailed
		return res
	}
	res.FinalRegion = final

	// exp and dev run independently; one failing never blocks the
	// other
	warm := res.Initial.Ellipse
	res.Exp = a.exp.Run(in.Exposure, final, in.PSF, in.Center, warm, units)
	res.Dev = a.dev.Run(in.Exposure, final, in.PSF, in.Center, warm, units)

	a.combine(&res, in, final, units)
	a.aggregate(&res)
	return res
}

// ApplyForced runs the forced-photometry flow: the reference result's
// ellipses are taken verbatim and every stage degenerates to an
// amplitude-only solve.
func (a *Algorithm) ApplyForced(in Inputs, ref Result) Result {
	var res Result

	if in.Footprint.Empty() || !ref.Initial.Ellipse.Valid() ||
		!ref.Exp.Ellipse.Valid() || !ref.Dev.Ellipse.Valid() {
		res.Flags |= FlagNoShape | FlagFailed
		return res
	}
	if !in.PSF.Valid() {
		res.Flags |= FlagNoPSFApprox | FlagFailed
		return res
	}

	psfBounds := in.PSF.BBox(in.Center, 4)
	region, err := a.regions.SelectInitial(in.Exposure.Mask, in.Footprint, psfBounds)
	if err != nil {
		res.Flags |= regionFlag(err) | FlagFailed
		return res
	}
	res.InitialRegion = region

	units := NewUnitSystem(in.Exposure, in.Footprint, in.ApproxFlux)
	res.Initial = a.initial.RunForced(in.Exposure, region, in.PSF, in.Center, ref.Initial.Ellipse, units)

	final, err := a.regions.SelectFinal(in.Exposure.Mask, in.Footprint, psfBounds, in.Center, ref.Initial.Ellipse)
	if err != nil {
		res.Flags |= regionFlag(err) | FlagFailed
		return res
	}
	res.FinalRegion = final

	res.Exp = a.exp.RunForced(in.Exposure, final, in.PSF, in.Center, ref.Exp.Ellipse, units)
	res.Dev = a.dev.RunForced(in.Exposure, final, in.PSF, in.Center, ref.Dev.Ellipse, units)

	a.combine(&res, in, final, units)
	a.aggregate(&res)
	return res
}

func (a *Algorithm) combine(res *Result, in Inputs, final *image.Footprint, units UnitSystem) {
	if !res.Exp.Usable() || !res.Dev.Usable() {
		res.Flags |= FlagFailed
		return
	}
	comb := a.combiner.Combine(in.Exposure, final, in.PSF, in.Center, res.Exp.Ellipse, res.Dev.Ellipse, units)
	if !comb.OK {
		res.Flags |= FlagFailed
		return
	}
	res.Flux = comb.Flux
	res.FluxErr = comb.FluxErr
	res.FracDev = comb.FracDev
	res.Objective = comb.Objective
}

func (a *Algorithm) aggregate(res *Result) {
	if res.Initial.Failed() || res.Exp.Failed() || res.Dev.Failed() {
		res.Flags |= FlagFailed
	}
}
