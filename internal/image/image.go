package image

import "fmt"

// Box is an integer pixel bounding box. X1/Y1 are inclusive.
type Box struct {
	X0, Y0, X1, Y1 int
}

// EmptyBox returns a box that unions as an identity element.
func EmptyBox() Box {
	return Box{X0: 1, Y0: 1, X1: 0, Y1: 0}
}

func (b Box) Empty() bool {
	return b.X1 < b.X0 || b.Y1 < b.Y0
}

func (b Box) Width() int {
	if b.Empty() {
		return 0
	}
	return b.X1 - b.X0 + 1
}

func (b Box) Height() int {
	if b.Empty() {
		return 0
	}
	return b.Y1 - b.Y0 + 1
}

func (b Box) Area() int {
	return b.Width() * b.Height()
}

func (b Box) Contains(x, y int) bool {
	return x >= b.X0 && x <= b.X1 && y >= b.Y0 && y <= b.Y1
}

// Union returns the smallest box containing both boxes.
func (b Box) Union(o Box) Box {
	if b.Empty() {
		return o
	}
	if o.Empty() {
		return b
	}
	if o.X0 < b.X0 {
		b.X0 = o.X0
	}
	if o.Y0 < b.Y0 {
		b.Y0 = o.Y0
	}
	if o.X1 > b.X1 {
		b.X1 = o.X1
	}
	if o.Y1 > b.Y1 {
		b.Y1 = o.Y1
	}
	return b
}

// Pixel is a single integer pixel coordinate.
type Pixel struct {
	X, Y int
}

// Image is a float64 raster anchored at an arbitrary origin.
type Image struct {
	Bounds Box
	Pix    []float64
}

// NewImage allocates a zero-filled image covering bounds.
func NewImage(bounds Box) *Image {
	return &Image{Bounds: bounds, Pix: make([]float64, bounds.Area())}
}

func (im *Image) index(x, y int) int {
	return (y-im.Bounds.Y0)*im.Bounds.Width() + (x - im.Bounds.X0)
}

// At returns the pixel value, or 0 outside the image bounds.
func (im *Image) At(x, y int) float64 {
	if im == nil || !im.Bounds.Contains(x, y) {
		return 0
	}
	return im.Pix[im.index(x, y)]
}

func (im *Image) Set(x, y int, v float64) {
	if !im.Bounds.Contains(x, y) {
		panic(fmt.Sprintf("image: set (%d,%d) outside bounds %+v", x, y, im.Bounds))
	}
	im.Pix[im.index(x, y)] = v
}

// Sum returns the sum of all pixel values.
func (im *Image) Sum() float64 {
	var s float64
	for _, v := range im.Pix {
		s += v
	}
	return s
}

// Exposure bundles the pixel data a measurement needs: the science
// image, its per-pixel variance, and the mask. Variance may be nil,
// in which case fits are unweighted.
type Exposure struct {
	Image    *Image
	Variance *Image
	Mask     *Mask
}

// FootprintSum returns the sum of image pixels inside the footprint,
// used as the approximate-flux fallback.
func (e *Exposure) FootprintSum(fp *Footprint) float64 {
	var s float64
	for _, sp := range fp.Spans {
		for x := sp.X0; x <= sp.X1; x++ {
			s += e.Image.At(x, sp.Y)
		}
	}
	return s
}
