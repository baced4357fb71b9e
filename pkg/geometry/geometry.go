// Package geometry provides the integer coordinate primitives shared by the
// entity store, the layout coordinator, and the control protocol. All values
// live in the global coordinate space that spans every output.
package geometry

// Point is a location in the global coordinate space.
type Point struct {
	X int32 `cbor:"x"`
	Y int32 `cbor:"y"`
}

// Size is a width/height pair. A valid size has both dimensions >= 1;
// callers that accept external input must clamp via ClampSize before
// storing.
type Size struct {
	W int32 `cbor:"w"`
	H int32 `cbor:"h"`
}

// Rect is a rectangle anchored at Loc with extent Size.
type Rect struct {
	Loc  Point `cbor:"loc"`
	Size Size  `cbor:"size"`
}

// NewRect builds a Rect from raw coordinates.
func NewRect(x, y, w, h int32) Rect {
	return Rect{Loc: Point{X: x, Y: y}, Size: Size{W: w, H: h}}
}

// Right returns the exclusive right edge.
func (r Rect) Right() int32 { return r.Loc.X + r.Size.W }

// Bottom returns the exclusive bottom edge.
func (r Rect) Bottom() int32 { return r.Loc.Y + r.Size.H }

// Contains reports whether p lies inside r.
func (r Rect) Contains(p Point) bool {
	return p.X >= r.Loc.X && p.X < r.Right() && p.Y >= r.Loc.Y && p.Y < r.Bottom()
}

// Intersects reports whether r and o share any area.
func (r Rect) Intersects(o Rect) bool {
	return r.Loc.X < o.Right() && o.Loc.X < r.Right() &&
		r.Loc.Y < o.Bottom() && o.Loc.Y < r.Bottom()
}

// Valid reports whether the size has positive extent in both dimensions.
func (s Size) Valid() bool { return s.W >= 1 && s.H >= 1 }

// ClampSize forces both dimensions to be at least 1. A surface must never
// end up with an invalid geometry, so out-of-range requests are corrected
// rather than rejected.
func ClampSize(s Size) Size {
	if s.W < 1 {
		s.W = 1
	}
	if s.H < 1 {
		s.H = 1
	}
	return s
}
