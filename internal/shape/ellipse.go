// Package shape holds the ellipse geometry used by the model fits:
// second-moment (quadrupole) ellipses in pixel coordinates and the
// unconstrained parameter vector the optimizer works in.
package shape

import (
	"fmt"
	"math"
)

// Point is a continuous pixel-coordinate position.
type Point struct {
	X, Y float64
}

// Quadrupole is an ellipse expressed as second moments. A valid
// quadrupole is positive definite (Ixx>0, Iyy>0, Ixx*Iyy > Ixy^2).
type Quadrupole struct {
	Ixx, Iyy, Ixy float64
}

// Circle returns the quadrupole of a circle with the given radius.
func Circle(r float64) Quadrupole {
	return Quadrupole{Ixx: r * r, Iyy: r * r}
}

// Det returns the determinant of the moment matrix.
func (q Quadrupole) Det() float64 {
	return q.Ixx*q.Iyy - q.Ixy*q.Ixy
}

// Valid reports whether the moments describe a real ellipse.
func (q Quadrupole) Valid() bool {
	return q.Ixx > 0 && q.Iyy > 0 && q.Det() > 0 &&
		!math.IsInf(q.Ixx, 0) && !math.IsInf(q.Iyy, 0) && !math.IsNaN(q.Ixy)
}

// TraceRadius returns sqrt((Ixx+Iyy)/2), a scale radius in pixels.
func (q Quadrupole) TraceRadius() float64 {
	return math.Sqrt(0.5 * (q.Ixx + q.Iyy))
}

// DetRadius returns det^(1/4), the geometric-mean radius in pixels.
func (q Quadrupole) DetRadius() float64 {
	return math.Pow(q.Det(), 0.25)
}

// Axes returns the semi-major axis, semi-minor axis, and position
// angle (radians, counterclockwise from +X).
func (q Quadrupole) Axes() (a, b, theta float64) {
	t := 0.5 * (q.Ixx + q.Iyy)
	d := math.Sqrt(0.25*(q.Ixx-q.Iyy)*(q.Ixx-q.Iyy) + q.Ixy*q.Ixy)
	a = math.Sqrt(t + d)
	b = math.Sqrt(math.Max(t-d, 0))
	theta = 0.5 * math.Atan2(2*q.Ixy, q.Ixx-q.Iyy)
	return a, b, theta
}

// Scaled returns the ellipse with all radii multiplied by f.
func (q Quadrupole) Scaled(f float64) Quadrupole {
	f2 := f * f
	return Quadrupole{Ixx: q.Ixx * f2, Iyy: q.Iyy * f2, Ixy: q.Ixy * f2}
}

// Add returns the moment-wise sum, i.e. the covariance of the
// convolution of the two Gaussians.
func (q Quadrupole) Add(o Quadrupole) Quadrupole {
	return Quadrupole{Ixx: q.Ixx + o.Ixx, Iyy: q.Iyy + o.Iyy, Ixy: q.Ixy + o.Ixy}
}

// Contains reports whether the offset (dx,dy) lies inside the ellipse
// boundary (Mahalanobis distance <= 1).
func (q Quadrupole) Contains(dx, dy float64) bool {
	det := q.Det()
	if det <= 0 {
		return false
	}
	// x^T Q^-1 x with the 2x2 inverse written out
	d2 := (q.Iyy*dx*dx - 2*q.Ixy*dx*dy + q.Ixx*dy*dy) / det
	return d2 <= 1
}

// NParameters is the length of the nonlinear parameter vector.
const NParameters = 3

// Parameters maps the quadrupole to the unconstrained log-Cholesky
// vector (ln L11, ln L22, L21) where Q = L L^T. Every parameter value
// maps back to a positive-definite quadrupole, which is what lets the
// optimizer explore freely.
func (q Quadrupole) Parameters() ([NParameters]float64, error) {
	if !q.Valid() {
		return [NParameters]float64{}, fmt.Errorf("shape: quadrupole %+v is not positive definite", q)
	}
	l11 := math.Sqrt(q.Ixx)
	l21 := q.Ixy / l11
	l22 := math.Sqrt(q.Iyy - l21*l21)
	return [NParameters]float64{math.Log(l11), math.Log(l22), l21}, nil
}

// FromParameters is the inverse of Parameters.
func FromParameters(p []float64) Quadrupole {
	l11 := math.Exp(p[0])
	l22 := math.Exp(p[1])
	l21 := p[2]
	return Quadrupole{
		Ixx: l11 * l11,
		Iyy: l21*l21 + l22*l22,
		Ixy: l11 * l21,
	}
}
