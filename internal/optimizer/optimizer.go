// Package optimizer implements the trust-region minimizer the fitting
// stages delegate to. The caller supplies an objective surface; the
// optimizer explores it with dogleg steps inside an adaptive trust
// radius and reports how it stopped. A collapsing trust radius is an
// accepted stopping condition, not a failure: it means the surface is
// locally flat at the resolution the tolerances ask for.
package optimizer

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Objective is a scalar surface over a fixed-dimension parameter
// space. Evaluate may return NaN or Inf to signal numeric trouble;
// the optimizer turns that into StatusFailed.
type Objective interface {
	Dim() int
	Evaluate(params []float64) float64
}

// Status is the optimizer's termination code.
type Status int

const (
	// StatusConverged means the gradient norm dropped below threshold.
	StatusConverged Status = iota
	// StatusTrustRegionSmall means the trust radius collapsed below
	// threshold. The final point is usable.
	StatusTrustRegionSmall
	// StatusMaxIterations means the iteration cap was reached first.
	StatusMaxIterations
	// StatusFailed means a numeric error (non-finite objective or
	// gradient) made the result unusable.
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusConverged:
		return "converged"
	case StatusTrustRegionSmall:
		return "trust-region-small"
	case StatusMaxIterations:
		return "max-iterations"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Control holds the stage-configurable tolerances plus fixed step
// policy knobs.
type Control struct {
	GradientThreshold       float64
	MinTrustRadiusThreshold float64
	MaxIterations           int
	InitialTrustRadius      float64
	StepAcceptThreshold     float64
	GrowFactor              float64
	ShrinkFactor            float64
	FiniteDifferenceStep    float64
	RecordHistory           bool
}

func (c Control) withDefaults() Control {
	if c.GradientThreshold <= 0 {
		c.GradientThreshold = 1e-4
	}
	if c.MinTrustRadiusThreshold <= 0 {
		c.MinTrustRadiusThreshold = 1e-5
	}
	if c.MaxIterations <= 0 {
		c.MaxIterations = 100
	}
	if c.InitialTrustRadius <= 0 {
		c.InitialTrustRadius = 1
	}
	if c.StepAcceptThreshold <= 0 {
		c.StepAcceptThreshold = 1e-4
	}
	if c.GrowFactor <= 1 {
		c.GrowFactor = 2
	}
	if c.ShrinkFactor <= 0 || c.ShrinkFactor >= 1 {
		c.ShrinkFactor = 0.5
	}
	if c.FiniteDifferenceStep <= 0 {
		c.FiniteDifferenceStep = 1e-5
	}
	return c
}

// Iteration is one step of the optimizer's path, recorded when
// history tracking is on.
type Iteration struct {
	N           int
	Parameters  []float64
	Objective   float64
	TrustRadius float64
	Accepted    bool
}

// Result is the optimizer's output.
type Result struct {
	Parameters []float64
	Objective  float64
	Status     Status
	Iterations int
	History    []Iteration
}

// Minimize runs the trust-region loop from start.
func Minimize(obj Objective, start []float64, ctrl Control) Result {
	ctrl = ctrl.withDefaults()
	dim := obj.Dim()

	x := make([]float64, dim)
	copy(x, start)
	f := obj.Evaluate(x)
	res := Result{Parameters: x, Objective: f}
	if !isFinite(f) {
		res.Status = StatusFailed
		return res
	}

	radius := ctrl.InitialTrustRadius
	grad := make([]float64, dim)
	hess := mat.NewSymDense(dim, nil)
	trial := make([]float64, dim)

	for iter := 0; iter < ctrl.MaxIterations; iter++ {
		res.Iterations = iter + 1

		if !differentiate(obj, x, ctrl.FiniteDifferenceStep, grad, hess) {
			res.Status = StatusFailed
			return res
		}
		if floats.Norm(grad, math.Inf(1)) < ctrl.GradientThreshold {
			res.Status = StatusConverged
			return res
		}

		step := solveStep(grad, hess, radius)
		for i := range trial {
			trial[i] = x[i] + step[i]
		}
		fTrial := obj.Evaluate(trial)
		if !isFinite(fTrial) {
			res.Status = StatusFailed
			return res
		}

		predicted := predictedReduction(grad, hess, step)
		actual := f - fTrial
		accepted := predicted > 0 && actual > ctrl.StepAcceptThreshold*predicted
		if accepted {
			copy(x, trial)
			f = fTrial
			res.Objective = f
			if actual > 0.75*predicted && floats.Norm(step, 2) > 0.99*radius {
				radius *= ctrl.GrowFactor
			}
		} else {
			radius *= ctrl.ShrinkFactor
		}

		if ctrl.RecordHistory {
			snap := make([]float64, dim)
			copy(snap, x)
			res.History = append(res.History, Iteration{
				N:           iter,
				Parameters:  snap,
				Objective:   f,
				TrustRadius: radius,
				Accepted:    accepted,
			})
		}

		if radius < ctrl.MinTrustRadiusThreshold {
			res.Status = StatusTrustRegionSmall
			return res
		}
	}
	res.Status = StatusMaxIterations
	return res
}

// differentiate fills the central-difference gradient and symmetric
// second-difference Hessian at x. Returns false on non-finite values.
func differentiate(obj Objective, x []float64, h float64, grad []float64, hess *mat.SymDense) bool {
	dim := len(x)
	p := make([]float64, dim)

	eval := func() float64 {
		return obj.Evaluate(p)
	}

	f0 := func() float64 {
		copy(p, x)
		return eval()
	}()
	if !isFinite(f0) {
		return false
	}

	for i := 0; i < dim; i++ {
		copy(p, x)
		p[i] = x[i] + h
		fp := eval()
		p[i] = x[i] - h
		fm := eval()
		if !isFinite(fp) || !isFinite(fm) {
			return false
		}
		grad[i] = (fp - fm) / (2 * h)
		hess.SetSym(i, i, (fp-2*f0+fm)/(h*h))
	}
	for i := 0; i < dim; i++ {
		for j := i + 1; j < dim; j++ {
			copy(p, x)
			p[i], p[j] = x[i]+h, x[j]+h
			fpp := eval()
			p[j] = x[j] - h
			fpm := eval()
			p[i], p[j] = x[i]-h, x[j]+h
			fmp := eval()
			p[j] = x[j] - h
			fmm := eval()
			if !isFinite(fpp) || !isFinite(fpm) || !isFinite(fmp) || !isFinite(fmm) {
				return false
			}
			hess.SetSym(i, j, (fpp-fpm-fmp+fmm)/(4*h*h))
		}
	}
	return true
}

// solveStep computes a dogleg step inside the trust radius.
func solveStep(grad []float64, hess *mat.SymDense, radius float64) []float64 {
	dim := len(grad)
	g := mat.NewVecDense(dim, nil)
	for i, v := range grad {
		g.SetVec(i, v)
	}

	gNorm := floats.Norm(grad, 2)
	var chol mat.Cholesky
	if chol.Factorize(hess) {
		var newton mat.VecDense
		if err := chol.SolveVecTo(&newton, g); err == nil {
			newton.ScaleVec(-1, &newton)
			if mat.Norm(&newton, 2) <= radius {
				return vecSlice(&newton)
			}
			return dogleg(g, hess, &newton, radius, gNorm)
		}
	}
	// Hessian not positive definite: fall back to steepest descent
	// clipped to the trust boundary.
	step := make([]float64, dim)
	scale := -radius / gNorm
	for i, v := range grad {
		step[i] = scale * v
	}
	return step
}

func dogleg(g *mat.VecDense, hess *mat.SymDense, newton *mat.VecDense, radius, gNorm float64) []float64 {
	dim := g.Len()
	var hg mat.VecDense
	hg.MulVec(hess, g)
	gHg := mat.Dot(g, &hg)

	cauchy := mat.NewVecDense(dim, nil)
	if gHg > 0 {
		cauchy.ScaleVec(-(gNorm*gNorm)/gHg, g)
	} else {
		cauchy.ScaleVec(-radius/gNorm, g)
	}
	if mat.Norm(cauchy, 2) >= radius {
		out := mat.NewVecDense(dim, nil)
		out.ScaleVec(-radius/gNorm, g)
		return vecSlice(out)
	}

	// walk from the Cauchy point toward the Newton point until the
	// trust boundary
	var d mat.VecDense
	d.SubVec(newton, cauchy)
	a := mat.Dot(&d, &d)
	b := 2 * mat.Dot(cauchy, &d)
	c := mat.Dot(cauchy, cauchy) - radius*radius
	disc := b*b - 4*a*c
	tau := 1.0
	if a > 0 && disc >= 0 {
		tau = (-b + math.Sqrt(disc)) / (2 * a)
	}
	if tau < 0 {
		tau = 0
	} else if tau > 1 {
		tau = 1
	}
	out := mat.NewVecDense(dim, nil)
	out.AddScaledVec(cauchy, tau, &d)
	return vecSlice(out)
}

func predictedReduction(grad []float64, hess *mat.SymDense, step []float64) float64 {
	dim := len(grad)
	s := mat.NewVecDense(dim, step)
	g := mat.NewVecDense(dim, nil)
	for i, v := range grad {
		g.SetVec(i, v)
	}
	var hs mat.VecDense
	hs.MulVec(hess, s)
	return -(mat.Dot(g, s) + 0.5*mat.Dot(s, &hs))
}

func vecSlice(v *mat.VecDense) []float64 {
	out := make([]float64, v.Len())
	for i := range out {
		out[i] = v.AtVec(i)
	}
	return out
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
