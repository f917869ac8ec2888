package optimizer

import (
	"math"
	"testing"
)

type funcObjective struct {
	dim int
	f   func([]float64) float64
}

func (o funcObjective) Dim() int                     { return o.dim }
func (o funcObjective) Evaluate(p []float64) float64 { return o.f(p) }

func TestMinimizeQuadraticBowl(t *testing.T) {
	obj := funcObjective{dim: 2, f: func(p []float64) float64 {
		dx, dy := p[0]-3, p[1]+1
		return 2*dx*dx + dy*dy
	}}
	res := Minimize(obj, []float64{10, 10}, Control{GradientThreshold: 1e-8})
	if res.Status != StatusConverged {
		t.Fatalf("status = %v, want converged", res.Status)
	}
	if math.Abs(res.Parameters[0]-3) > 1e-4 || math.Abs(res.Parameters[1]+1) > 1e-4 {
		t.Fatalf("minimum at %v, want (3, -1)", res.Parameters)
	}
}

func TestMinimizeRosenbrock(t *testing.T) {
	obj := funcObjective{dim: 2, f: func(p []float64) float64 {
		a := 1 - p[0]
		b := p[1] - p[0]*p[0]
		return a*a + 100*b*b
	}}
	res := Minimize(obj, []float64{-1.2, 1}, Control{
		GradientThreshold: 1e-6,
		MaxIterations:     500,
	})
	if res.Status == StatusFailed {
		t.Fatalf("status = failed")
	}
	if math.Abs(res.Parameters[0]-1) > 1e-2 || math.Abs(res.Parameters[1]-1) > 1e-2 {
		t.Fatalf("minimum at %v, want (1, 1)", res.Parameters)
	}
}

func TestMinimizeNonFiniteObjectiveFails(t *testing.T) {
	obj := funcObjective{dim: 1, f: func(p []float64) float64 {
		if p[0] < -0.5 {
			return math.NaN()
		}
		return p[0] * p[0]
	}}
	res := Minimize(obj, []float64{-2}, Control{})
	if res.Status != StatusFailed {
		t.Fatalf("status = %v, want failed", res.Status)
	}
}

func TestMinimizeMaxIterations(t *testing.T) {
	obj := funcObjective{dim: 1, f: func(p []float64) float64 {
		return p[0] * p[0]
	}}
	res := Minimize(obj, []float64{1000}, Control{
		GradientThreshold: 1e-300,
		MaxIterations:     2,
	})
	if res.Status != StatusMaxIterations {
		t.Fatalf("status = %v, want max-iterations", res.Status)
	}
	if res.Iterations != 2 {
		t.Fatalf("iterations = %d, want 2", res.Iterations)
	}
}

func TestMinimizeRecordsHistory(t *testing.T) {
	obj := funcObjective{dim: 1, f: func(p []float64) float64 {
		return (p[0] - 2) * (p[0] - 2)
	}}
	res := Minimize(obj, []float64{10}, Control{RecordHistory: true})
	if len(res.History) == 0 {
		t.Fatalf("no history recorded")
	}
	last := res.History[len(res.History)-1]
	if last.Objective > res.History[0].Objective {
		t.Fatalf("objective rose over history: first %v last %v",
			res.History[0].Objective, last.Objective)
	}
}

func TestStatusString(t *testing.T) {
	cases := map[Status]string{
		StatusConverged:        "converged",
		StatusTrustRegionSmall: "trust-region-small",
		StatusMaxIterations:    "max-iterations",
		StatusFailed:           "failed",
	}
	for s, want := range cases {
		if got := s.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", int(s), got, want)
		}
	}
}
