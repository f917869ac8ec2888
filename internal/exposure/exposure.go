// Package exposure reads and writes measurement bundles: a science
// image with variance and mask plus the detected sources to measure
// on it, serialized as a single JSON document.
package exposure

import (
	"encoding/json"
	"fmt"
	"os"

	"cmodel/internal/image"
	"cmodel/internal/psf"
	"cmodel/internal/shape"
)

// PSFComponent is one Gaussian term of the serialized PSF.
type PSFComponent struct {
	Flux float64 `json:"flux"`
	Ixx  float64 `json:"ixx"`
	Iyy  float64 `json:"iyy"`
	Ixy  float64 `json:"ixy"`
}

// Source is one object to measure.
type Source struct {
	ID      int64   `json:"id"`
	CenterX float64 `json:"center_x"`
	CenterY float64 `json:"center_y"`
	// Moments seed the initial fit. All-zero moments mean no seed.
	Ixx        float64        `json:"ixx"`
	Iyy        float64        `json:"iyy"`
	Ixy        float64        `json:"ixy"`
	Footprint  []image.Span   `json:"footprint"`
	PSF        []PSFComponent `json:"psf"`
	ApproxFlux float64        `json:"approx_flux"`
}

// Bundle is the on-disk form of an exposure plus its sources.
type Bundle struct {
	Bounds     image.Box       `json:"bounds"`
	Image      []float64       `json:"image"`
	Variance   []float64       `json:"variance,omitempty"`
	Mask       []uint32        `json:"mask,omitempty"`
	MaskPlanes map[string]uint `json:"mask_planes,omitempty"`
	Sources    []Source        `json:"sources"`
}

// Load reads and validates a bundle file.
func Load(path string) (*Bundle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var b Bundle
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("parse bundle %s: %w", path, err)
	}
	if err := b.validate(); err != nil {
		return nil, fmt.Errorf("bundle %s: %w", path, err)
	}
	return &b, nil
}

// Save writes the bundle to path.
func (b *Bundle) Save(path string) error {
	if err := b.validate(); err != nil {
		return err
	}
	data, err := json.Marshal(b)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func (b *Bundle) validate() error {
	area := b.Bounds.Area()
	if b.Bounds.Empty() || area == 0 {
		return fmt.Errorf("empty bounds %+v", b.Bounds)
	}
	if len(b.Image) != area {
		return fmt.Errorf("image has %d pixels, bounds need %d", len(b.Image), area)
	}
	if b.Variance != nil && len(b.Variance) != area {
		return fmt.Errorf("variance has %d pixels, bounds need %d", len(b.Variance), area)
	}
	if b.Mask != nil && len(b.Mask) != area {
		return fmt.Errorf("mask has %d pixels, bounds need %d", len(b.Mask), area)
	}
	return nil
}

// Exposure materializes the pixel containers. The mask always
// carries the standard bad planes so region selection can query them
// even when the bundle defines none.
func (b *Bundle) Exposure() *image.Exposure {
	img := &image.Image{Bounds: b.Bounds, Pix: b.Image}
	var variance *image.Image
	if b.Variance != nil {
		variance = &image.Image{Bounds: b.Bounds, Pix: b.Variance}
	}
	msk := image.NewMask(b.Bounds, "EDGE", "SAT")
	if b.MaskPlanes != nil {
		msk.SetPlaneMap(b.MaskPlanes)
	}
	if b.Mask != nil {
		copy(msk.Pix, b.Mask)
	}
	return &image.Exposure{Image: img, Variance: variance, Mask: msk}
}

// Footprint materializes a source's detection footprint.
func (s Source) FootprintSpans() *image.Footprint {
	return image.NewFootprint(s.Footprint)
}

// Center returns the source centroid.
func (s Source) Center() shape.Point {
	return shape.Point{X: s.CenterX, Y: s.CenterY}
}

// Moments returns the seed second moments.
func (s Source) Moments() shape.Quadrupole {
	return shape.Quadrupole{Ixx: s.Ixx, Iyy: s.Iyy, Ixy: s.Ixy}
}

// MultiGaussian materializes the source's PSF approximation.
func (s Source) MultiGaussian() psf.MultiGaussian {
	out := psf.MultiGaussian{Components: make([]psf.Component, 0, len(s.PSF))}
	for _, c := range s.PSF {
		out.Components = append(out.Components, psf.Component{
			Flux:       c.Flux,
			Covariance: shape.Quadrupole{Ixx: c.Ixx, Iyy: c.Iyy, Ixy: c.Ixy},
		})
	}
	return out
}

// FromComponents serializes a PSF model.
func FromComponents(p psf.MultiGaussian) []PSFComponent {
	out := make([]PSFComponent, 0, len(p.Components))
	for _, c := range p.Components {
		out = append(out, PSFComponent{
			Flux: c.Flux,
			Ixx:  c.Covariance.Ixx,
			Iyy:  c.Covariance.Iyy,
			Ixy:  c.Covariance.Ixy,
		})
	}
	return out
}
