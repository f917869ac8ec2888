package image

import (
	"fmt"
	"sort"
)

// Mask is a bit-plane raster. Each named plane owns one bit of the
// per-pixel word, in the order the planes were added.
type Mask struct {
	Bounds Box
	Pix    []uint32
	planes map[string]uint
	order  []string
}

// NewMask allocates a cleared mask covering bounds with the given
// plane names registered in order.
func NewMask(bounds Box, planes ...string) *Mask {
	m := &Mask{
		Bounds: bounds,
		Pix:    make([]uint32, bounds.Area()),
		planes: make(map[string]uint, len(planes)),
	}
	for _, name := range planes {
		m.AddPlane(name)
	}
	return m
}

// AddPlane registers a plane name, returning its bit index.
func (m *Mask) AddPlane(name string) uint {
	if bit, ok := m.planes[name]; ok {
		return bit
	}
	bit := uint(len(m.order))
	if bit >= 32 {
		panic("mask: too many planes")
	}
	m.planes[name] = bit
	m.order = append(m.order, name)
	return bit
}

// PlaneBit returns the bit index of a plane name.
func (m *Mask) PlaneBit(name string) (uint, bool) {
	bit, ok := m.planes[name]
	return bit, ok
}

// PlaneNames returns the registered plane names in bit order.
func (m *Mask) PlaneNames() []string {
	out := make([]string, len(m.order))
	copy(out, m.order)
	return out
}

// BitsFor builds the combined bit pattern for a set of plane names.
// Unknown names are ignored: an exposure simply may not carry a
// configured plane.
func (m *Mask) BitsFor(names []string) uint32 {
	var bits uint32
	for _, name := range names {
		if bit, ok := m.planes[name]; ok {
			bits |= 1 << bit
		}
	}
	return bits
}

func (m *Mask) index(x, y int) int {
	return (y-m.Bounds.Y0)*m.Bounds.Width() + (x - m.Bounds.X0)
}

// At returns the mask word at (x,y), or 0 outside the bounds.
func (m *Mask) At(x, y int) uint32 {
	if m == nil || !m.Bounds.Contains(x, y) {
		return 0
	}
	return m.Pix[m.index(x, y)]
}

// SetPlane sets the named plane's bit at (x,y).
func (m *Mask) SetPlane(x, y int, name string) {
	bit, ok := m.planes[name]
	if !ok {
		bit = m.AddPlane(name)
	}
	if !m.Bounds.Contains(x, y) {
		panic(fmt.Sprintf("mask: set (%d,%d) outside bounds %+v", x, y, m.Bounds))
	}
	m.Pix[m.index(x, y)] |= 1 << bit
}

// PlaneMap exposes the name->bit mapping, sorted by bit, for
// serialization.
func (m *Mask) PlaneMap() map[string]uint {
	out := make(map[string]uint, len(m.planes))
	for k, v := range m.planes {
		out[k] = v
	}
	return out
}

// SetPlaneMap restores a plane mapping produced by PlaneMap.
func (m *Mask) SetPlaneMap(planes map[string]uint) {
	type entry struct {
		name string
		bit  uint
	}
	entries := make([]entry, 0, len(planes))
	for name, bit := range planes {
		entries = append(entries, entry{name, bit})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].bit < entries[j].bit })
	m.planes = make(map[string]uint, len(entries))
	m.order = m.order[:0]
	for _, e := range entries {
		m.planes[e.name] = e.bit
		m.order = append(m.order, e.name)
	}
}
