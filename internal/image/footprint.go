package image

import "sort"

// Span is a run of pixels in one row, X0..X1 inclusive.
type Span struct {
	Y, X0, X1 int
}

// Footprint is an immutable set of pixels stored as normalized spans:
// sorted by row then column, with overlapping or touching runs merged.
type Footprint struct {
	Spans []Span
}

// NewFootprint normalizes the given spans into a footprint.
func NewFootprint(spans []Span) *Footprint {
	rows := make(map[int][]Span)
	for _, s := range spans {
		if s.X1 < s.X0 {
			continue
		}
		rows[s.Y] = append(rows[s.Y], s)
	}
	return fromRows(rows)
}

// FootprintFromBox returns a rectangular footprint.
func FootprintFromBox(b Box) *Footprint {
	if b.Empty() {
		return &Footprint{}
	}
	spans := make([]Span, 0, b.Height())
	for y := b.Y0; y <= b.Y1; y++ {
		spans = append(spans, Span{Y: y, X0: b.X0, X1: b.X1})
	}
	return &Footprint{Spans: spans}
}

// FootprintFromShape rasterizes an arbitrary inside-test over a
// bounding box.
func FootprintFromShape(b Box, inside func(x, y int) bool) *Footprint {
	var spans []Span
	for y := b.Y0; y <= b.Y1; y++ {
		x := b.X0
		for x <= b.X1 {
			for x <= b.X1 && !inside(x, y) {
				x++
			}
			if x > b.X1 {
				break
			}
			start := x
			for x <= b.X1 && inside(x, y) {
				x++
			}
			spans = append(spans, Span{Y: y, X0: start, X1: x - 1})
		}
	}
	return &Footprint{Spans: spans}
}

func fromRows(rows map[int][]Span) *Footprint {
	ys := make([]int, 0, len(rows))
	for y := range rows {
		ys = append(ys, y)
	}
	sort.Ints(ys)
	var out []Span
	for _, y := range ys {
		row := rows[y]
		sort.Slice(row, func(i, j int) bool { return row[i].X0 < row[j].X0 })
		cur := row[0]
		for _, s := range row[1:] {
			if s.X0 <= cur.X1+1 {
				if s.X1 > cur.X1 {
					cur.X1 = s.X1
				}
				continue
			}
			out = append(out, cur)
			cur = s
		}
		out = append(out, cur)
	}
	return &Footprint{Spans: out}
}

// Empty reports whether the footprint contains no pixels.
func (f *Footprint) Empty() bool {
	return f == nil || len(f.Spans) == 0
}

// Area returns the pixel count.
func (f *Footprint) Area() int {
	if f == nil {
		return 0
	}
	var n int
	for _, s := range f.Spans {
		n += s.X1 - s.X0 + 1
	}
	return n
}

// BBox returns the bounding box of the footprint.
func (f *Footprint) BBox() Box {
	if f.Empty() {
		return EmptyBox()
	}
	b := Box{X0: f.Spans[0].X0, Y0: f.Spans[0].Y, X1: f.Spans[0].X1, Y1: f.Spans[0].Y}
	for _, s := range f.Spans[1:] {
		if s.X0 < b.X0 {
			b.X0 = s.X0
		}
		if s.X1 > b.X1 {
			b.X1 = s.X1
		}
		if s.Y < b.Y0 {
			b.Y0 = s.Y
		}
		if s.Y > b.Y1 {
			b.Y1 = s.Y
		}
	}
	return b
}

// Contains reports whether the pixel is inside the footprint.
func (f *Footprint) Contains(x, y int) bool {
	if f == nil {
		return false
	}
	i := sort.Search(len(f.Spans), func(i int) bool {
		s := f.Spans[i]
		return s.Y > y || (s.Y == y && s.X1 >= x)
	})
	if i >= len(f.Spans) {
		return false
	}
	s := f.Spans[i]
	return s.Y == y && s.X0 <= x && x <= s.X1
}

// Grow dilates the footprint by n pixels in the Chebyshev metric.
func (f *Footprint) Grow(n int) *Footprint {
	if n <= 0 || f.Empty() {
		return f
	}
	rows := make(map[int][]Span)
	for _, s := range f.Spans {
		for dy := -n; dy <= n; dy++ {
			y := s.Y + dy
			rows[y] = append(rows[y], Span{Y: y, X0: s.X0 - n, X1: s.X1 + n})
		}
	}
	return fromRows(rows)
}

// Union returns the pixel-set union of two footprints.
func (f *Footprint) Union(o *Footprint) *Footprint {
	if f.Empty() {
		return o
	}
	if o.Empty() {
		return f
	}
	rows := make(map[int][]Span)
	for _, s := range f.Spans {
		rows[s.Y] = append(rows[s.Y], s)
	}
	for _, s := range o.Spans {
		rows[s.Y] = append(rows[s.Y], s)
	}
	return fromRows(rows)
}

// Clip intersects the footprint with a box.
func (f *Footprint) Clip(b Box) *Footprint {
	if f.Empty() || b.Empty() {
		return &Footprint{}
	}
	var out []Span
	for _, s := range f.Spans {
		if s.Y < b.Y0 || s.Y > b.Y1 {
			continue
		}
		x0, x1 := s.X0, s.X1
		if x0 < b.X0 {
			x0 = b.X0
		}
		if x1 > b.X1 {
			x1 = b.X1
		}
		if x0 <= x1 {
			out = append(out, Span{Y: s.Y, X0: x0, X1: x1})
		}
	}
	return &Footprint{Spans: out}
}
