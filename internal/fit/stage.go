package fit

import (
	"math"
	"time"

	"cmodel/internal/image"
	"cmodel/internal/model"
	"cmodel/internal/optimizer"
	"cmodel/internal/prior"
	"cmodel/internal/psf"
	"cmodel/internal/shape"
)

// Stage flags, bit order is stable across releases because the values
// are persisted.
const (
	StageFlagFailed uint8 = 1 << iota
	StageFlagTrustRegionSmall
	StageFlagMaxIterations
	StageFlagNumericError
)

// StageResult is the outcome of one nonlinear fit stage.
type StageResult struct {
	Flux       float64
	FluxErr    float64
	Ellipse    shape.Quadrupole
	Objective  float64
	Parameters []float64
	Flags      uint8
	Time       time.Duration
	Iterations int
	History    []optimizer.Iteration
}

// Failed reports the stage's general failure flag.
func (r StageResult) Failed() bool { return r.Flags&StageFlagFailed != 0 }

// Usable reports whether the stage's ellipse can seed further work.
// A collapsed trust region or exhausted iteration cap still leaves a
// usable point; only numeric errors do not.
func (r StageResult) Usable() bool {
	return r.Flags&StageFlagNumericError == 0 && r.Ellipse.Valid()
}

// StageRunner executes one nonlinear stage: build the model and
// prior, minimize the shape objective, then solve the amplitude
// analytically at the optimum.
type StageRunner struct {
	cfg      StageConfig
	priorDir string
}

func NewStageRunner(cfg StageConfig, priorDir string) *StageRunner {
	return &StageRunner{cfg: cfg, priorDir: priorDir}
}

// pixelData is the fit's view of the region: coordinates, scaled
// values, and weights chosen so the chi-squared is unchanged by the
// unit system.
type pixelData struct {
	pixels  []image.Pixel
	values  []float64
	weights []float64
}

func gatherPixels(exp *image.Exposure, region *image.Footprint, units UnitSystem) pixelData {
	n := region.Area()
	d := pixelData{
		pixels:  make([]image.Pixel, 0, n),
		values:  make([]float64, 0, n),
		weights: make([]float64, 0, n),
	}
	s2 := units.FluxScale * units.FluxScale
	for _, sp := range region.Spans {
		for x := sp.X0; x <= sp.X1; x++ {
			w := s2
			if exp.Variance != nil {
				v := exp.Variance.At(x, sp.Y)
				if v <= 0 {
					continue
				}
				w = s2 / v
			}
			d.pixels = append(d.pixels, image.Pixel{X: x, Y: sp.Y})
			d.values = append(d.values, exp.Image.At(x, sp.Y)/units.FluxScale)
			d.weights = append(d.weights, w)
		}
	}
	return d
}

// shapeObjective is the negative log posterior over the ellipse
// parameters, with the amplitude profiled out analytically at every
// evaluation.
type shapeObjective struct {
	model  *model.Model
	prior  prior.Prior
	data   pixelData
	center shape.Point
	basis  []float64
}

func (o *shapeObjective) Dim() int { return shape.NParameters }

func (o *shapeObjective) Evaluate(params []float64) float64 {
	q := shape.FromParameters(params)
	o.model.EvaluateBasis(o.data.pixels, o.center, q, o.basis)
	amp, _, ok := solveAmplitude(o.data, o.basis)
	if !ok {
		return math.Inf(1)
	}
	var chi2 float64
	for i, u := range o.basis {
		r := o.data.values[i] - amp*u
		chi2 += o.data.weights[i] * r * r
	}
	return 0.5*chi2 - o.prior.LogDensity(params)
}

// solveAmplitude solves the linear flux subproblem at a fixed shape.
func solveAmplitude(d pixelData, basis []float64) (amp, variance float64, ok bool) {
	var num, den float64
	for i, u := range basis {
		num += d.weights[i] * u * d.values[i]
		den += d.weights[i] * u * u
	}
	if den <= 0 || math.IsNaN(den) || math.IsInf(den, 0) {
		return 0, 0, false
	}
	return num / den, 1 / den, true
}

func (r *StageRunner) buildPrior() (prior.Prior, error) {
	switch r.cfg.PriorSource {
	case PriorSourceNone:
		return prior.Flat{}, nil
	case PriorSourceFile:
		return prior.Load(r.priorDir, r.cfg.PriorName)
	default:
		return prior.NewSoftenedLinear(r.cfg.Prior)
	}
}

// Run fits the stage from the warm-start ellipse and returns the
// stage result. Failures are reported through flags, never through
// panics; a failed result still carries whatever was computed.
func (r *StageRunner) Run(exp *image.Exposure, region *image.Footprint, psfModel psf.MultiGaussian, center shape.Point, start shape.Quadrupole, units UnitSystem) StageResult {
	var began time.Time
	if r.cfg.DoRecordTime {
		began = time.Now()
	}
	res := StageResult{Ellipse: start}

	m, err := model.New(r.cfg.ProfileName, r.cfg.NComponents, r.cfg.MaxRadius, psfModel)
	if err != nil {
		res.Flags |= StageFlagFailed | StageFlagNumericError
		return res
	}
	pr, err := r.buildPrior()
	if err != nil {
		res.Flags |= StageFlagFailed | StageFlagNumericError
		return res
	}
	startParams, err := start.Parameters()
	if err != nil {
		res.Flags |= StageFlagFailed | StageFlagNumericError
		return res
	}

	data := gatherPixels(exp, region, units)
	obj := &shapeObjective{
		model:  m,
		prior:  pr,
		data:   data,
		center: center,
		basis:  make([]float64, len(data.pixels)),
	}

	opt := optimizer.Minimize(obj, startParams[:], optimizer.Control{
		GradientThreshold:       r.cfg.Optimizer.GradientThreshold,
		MinTrustRadiusThreshold: r.cfg.Optimizer.MinTrustRadiusThreshold,
		MaxIterations:           r.cfg.Optimizer.MaxIterations,
		RecordHistory:           r.cfg.DoRecordHistory,
	})
	res.Parameters = opt.Parameters
	res.Objective = opt.Objective
	res.Iterations = opt.Iterations
	res.History = opt.History

	switch opt.Status {
	case optimizer.StatusTrustRegionSmall:
		res.Flags |= StageFlagTrustRegionSmall
	case optimizer.StatusMaxIterations:
		res.Flags |= StageFlagMaxIterations | StageFlagFailed
	case optimizer.StatusFailed:
		res.Flags |= StageFlagNumericError | StageFlagFailed
		if r.cfg.DoRecordTime {
			res.Time = time.Since(began)
		}
		return res
	}

	res.Ellipse = shape.FromParameters(opt.Parameters)
	m.EvaluateBasis(data.pixels, center, res.Ellipse, obj.basis)
	amp, ampVar, ok := solveAmplitude(data, obj.basis)
	if !ok {
		res.Flags |= StageFlagNumericError | StageFlagFailed
	} else {
		res.Flux = amp * units.FluxScale
		res.FluxErr = math.Sqrt(ampVar) * units.FluxScale
	}
	if r.cfg.DoRecordTime {
		res.Time = time.Since(began)
	}
	return res
}

// RunForced fits only the amplitude at a fixed reference ellipse.
func (r *StageRunner) RunForced(exp *image.Exposure, region *image.Footprint, psfModel psf.MultiGaussian, center shape.Point, ellipse shape.Quadrupole, units UnitSystem) StageResult {
	var began time.Time
	if r.cfg.DoRecordTime {
		began = time.Now()
	}
	res := StageResult{Ellipse: ellipse}

	m, err := model.New(r.cfg.ProfileName, r.cfg.NComponents, r.cfg.MaxRadius, psfModel)
	if err != nil {
		res.Flags |= StageFlagFailed | StageFlagNumericError
		return res
	}
	data := gatherPixels(exp, region, units)
	basis := make([]float64, len(data.pixels))
	m.EvaluateBasis(data.pixels, center, ellipse, basis)
	amp, ampVar, ok := solveAmplitude(data, basis)
	if !ok {
		res.Flags |= StageFlagNumericError | StageFlagFailed
		return res
	}
	res.Flux = amp * units.FluxScale
	res.FluxErr = math.Sqrt(ampVar) * units.FluxScale
	var chi2 float64
	for i, u := range basis {
		rr := data.values[i] - amp*u
		chi2 += data.weights[i] * rr * rr
	}
	res.Objective = 0.5 * chi2
	if p, err := ellipse.Parameters(); err == nil {
		res.Parameters = p[:]
	}
	if r.cfg.DoRecordTime {
		res.Time = time.Since(began)
	}
	return res
}
