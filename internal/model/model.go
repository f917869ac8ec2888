// Package model renders PSF-convolved elliptical galaxy models.
//
// A model is a named radial profile approximated by Gaussian
// components, stretched onto a trial ellipse and convolved
// analytically with the multi-Gaussian PSF (the convolution of two
// Gaussians is a Gaussian with summed covariances). The model is
// deliberately linear in its amplitude: EvaluateBasis renders the
// unit-flux image, so the flux solve stays a cheap exact linear
// problem at every step of the nonlinear fit.
package model

import (
	"math"

	"cmodel/internal/image"
	"cmodel/internal/profile"
	"cmodel/internal/psf"
	"cmodel/internal/shape"
)

type term struct {
	flux   float64 // product of profile and PSF flux fractions
	sigma2 float64 // squared profile-component sigma, in half-light units
	psfCov shape.Quadrupole
}

// Model is an elliptical multi-Gaussian profile convolved with a PSF.
type Model struct {
	profileName string
	nComponents int
	terms       []term
}

// New builds a model for the named profile with an nComponents
// Gaussian approximation truncated at maxRadius (0 = profile default).
func New(profileName string, nComponents int, maxRadius float64, p psf.MultiGaussian) (*Model, error) {
	prof, err := profile.Get(profileName)
	if err != nil {
		return nil, err
	}
	comps, err := prof.Components(nComponents, maxRadius)
	if err != nil {
		return nil, err
	}
	m := &Model{profileName: prof.Name, nComponents: len(comps)}
	for _, g := range comps {
		for _, pc := range p.Components {
			m.terms = append(m.terms, term{
				flux:   g.Flux * pc.Flux,
				sigma2: g.Sigma * g.Sigma,
				psfCov: pc.Covariance,
			})
		}
	}
	return m, nil
}

// ProfileName returns the canonical profile name the model was built from.
func (m *Model) ProfileName() string { return m.profileName }

// NComponents returns the number of profile components in use.
func (m *Model) NComponents() int { return m.nComponents }

// EvaluateBasis fills out with the unit-flux model value at each
// pixel for the given center and half-light ellipse. len(out) must
// equal len(pixels).
func (m *Model) EvaluateBasis(pixels []image.Pixel, center shape.Point, q shape.Quadrupole, out []float64) {
	for i := range out {
		out[i] = 0
	}
	for _, t := range m.terms {
		cov := shape.Quadrupole{
			Ixx: q.Ixx*t.sigma2 + t.psfCov.Ixx,
			Iyy: q.Iyy*t.sigma2 + t.psfCov.Iyy,
			Ixy: q.Ixy*t.sigma2 + t.psfCov.Ixy,
		}
		det := cov.Det()
		if det <= 0 {
			continue
		}
		norm := t.flux / (2 * math.Pi * math.Sqrt(det))
		for i, px := range pixels {
			dx := float64(px.X) - center.X
			dy := float64(px.Y) - center.Y
			d2 := (cov.Iyy*dx*dx - 2*cov.Ixy*dx*dy + cov.Ixx*dy*dy) / det
			out[i] += norm * math.Exp(-0.5*d2)
		}
	}
}

// Render paints flux*basis over a footprint into a fresh image, used
// to synthesize test scenes and diagnostic residuals.
func (m *Model) Render(fp *image.Footprint, center shape.Point, q shape.Quadrupole, flux float64) *image.Image {
	im := image.NewImage(fp.BBox())
	pixels := make([]image.Pixel, 0, fp.Area())
	for _, sp := range fp.Spans {
		for x := sp.X0; x <= sp.X1; x++ {
			pixels = append(pixels, image.Pixel{X: x, Y: sp.Y})
		}
	}
	basis := make([]float64, len(pixels))
	m.EvaluateBasis(pixels, center, q, basis)
	for i, px := range pixels {
		im.Set(px.X, px.Y, flux*basis[i])
	}
	return im
}
