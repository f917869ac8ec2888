// Package psf holds the multi-Gaussian approximation to the point
// spread function that galaxy models are convolved with. Building the
// approximation from pixel data is someone else's job; this package
// only defines the handoff type.
package psf

import (
	"math"

	"cmodel/internal/image"
	"cmodel/internal/shape"
)

// Component is one Gaussian term of the PSF approximation.
type Component struct {
	Flux       float64
	Covariance shape.Quadrupole
}

// MultiGaussian is a normalized sum of Gaussian components.
type MultiGaussian struct {
	Components []Component
}

// Valid reports whether the approximation is usable: at least one
// component, positive flux, positive-definite covariances.
func (p MultiGaussian) Valid() bool {
	if len(p.Components) == 0 {
		return false
	}
	var total float64
	for _, c := range p.Components {
		if !c.Covariance.Valid() {
			return false
		}
		total += c.Flux
	}
	return total > 0 && !math.IsNaN(total)
}

// Moments returns the flux-weighted second moments of the model,
// used when deconvolving the PSF from seed moments.
func (p MultiGaussian) Moments() shape.Quadrupole {
	var total float64
	var q shape.Quadrupole
	for _, c := range p.Components {
		q.Ixx += c.Flux * c.Covariance.Ixx
		q.Iyy += c.Flux * c.Covariance.Iyy
		q.Ixy += c.Flux * c.Covariance.Ixy
		total += c.Flux
	}
	if total > 0 {
		q.Ixx /= total
		q.Iyy /= total
		q.Ixy /= total
	}
	return q
}

// BBox returns a pixel bounding box covering the PSF out to nSigma of
// its widest component, centered on the given position.
func (p MultiGaussian) BBox(center shape.Point, nSigma float64) image.Box {
	var r float64
	for _, c := range p.Components {
		a, _, _ := c.Covariance.Axes()
		if s := a * nSigma; s > r {
			r = s
		}
	}
	if r <= 0 {
		return image.EmptyBox()
	}
	return image.Box{
		X0: int(math.Floor(center.X - r)),
		Y0: int(math.Floor(center.Y - r)),
		X1: int(math.Ceil(center.X + r)),
		Y1: int(math.Ceil(center.Y + r)),
	}
}

// DoubleGaussian builds the classic core+halo PSF approximation:
// two circular Gaussians with the given sigmas and the flux fraction
// assigned to the wider one.
func DoubleGaussian(sigma1, sigma2, wingFraction float64) MultiGaussian {
	return MultiGaussian{Components: []Component{
		{Flux: 1 - wingFraction, Covariance: shape.Circle(sigma1)},
		{Flux: wingFraction, Covariance: shape.Circle(sigma2)},
	}}
}

// SingleGaussian builds a one-component circular PSF, handy in tests.
func SingleGaussian(sigma float64) MultiGaussian {
	return MultiGaussian{Components: []Component{
		{Flux: 1, Covariance: shape.Circle(sigma)},
	}}
}
