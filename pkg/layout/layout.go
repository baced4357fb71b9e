// Package layout computes window geometry. The algorithms are pure
// functions from (region, count) to rectangles, so the same inputs always
// produce the same frames; the coordinator wires them to the entity store.
package layout

import (
	"github.com/waycrest/waycrest/pkg/geometry"
	"github.com/waycrest/waycrest/pkg/store"
)

// Compute returns n rectangles tiling the region according to the layout
// kind. The result covers the region without overlap for every supported
// kind. n <= 0 yields nil; unknown kinds fall back to master_stack.
func Compute(kind store.LayoutKind, region geometry.Rect, n int) []geometry.Rect {
	if n <= 0 {
		return nil
	}
	switch kind {
	case store.LayoutEvenColumn:
		return evenColumns(region, n)
	case store.LayoutEvenRow:
		return evenRows(region, n)
	case store.LayoutGrid:
		return grid(region, n)
	default:
		return masterStack(region, n)
	}
}

// masterStack places the first window in the left half and stacks the
// rest vertically in the right half. A single window fills the region.
func masterStack(region geometry.Rect, n int) []geometry.Rect {
	if n == 1 {
		return []geometry.Rect{region}
	}

	masterW := region.Size.W / 2
	rects := make([]geometry.Rect, 0, n)
	rects = append(rects, geometry.Rect{
		Loc:  region.Loc,
		Size: geometry.Size{W: masterW, H: region.Size.H},
	})

	stackX := region.Loc.X + masterW
	stackW := region.Size.W - masterW
	rects = append(rects, splitVertical(geometry.Rect{
		Loc:  geometry.Point{X: stackX, Y: region.Loc.Y},
		Size: geometry.Size{W: stackW, H: region.Size.H},
	}, n-1)...)
	return rects
}

// evenColumns splits the region into n equal-width columns. The last
// column absorbs the division remainder.
func evenColumns(region geometry.Rect, n int) []geometry.Rect {
	w := region.Size.W / int32(n)
	rects := make([]geometry.Rect, n)
	for i := 0; i < n; i++ {
		x := region.Loc.X + int32(i)*w
		cw := w
		if i == n-1 {
			cw = region.Right() - x
		}
		rects[i] = geometry.Rect{
			Loc:  geometry.Point{X: x, Y: region.Loc.Y},
			Size: geometry.Size{W: cw, H: region.Size.H},
		}
	}
	return rects
}

// evenRows splits the region into n equal-height rows.
func evenRows(region geometry.Rect, n int) []geometry.Rect {
	return splitVertical(region, n)
}

// grid arranges windows in the smallest square grid that fits them,
// row-major. Cells in the last row widen to absorb leftover columns.
func grid(region geometry.Rect, n int) []geometry.Rect {
	cols := int32(1)
	for cols*cols < int32(n) {
		cols++
	}
	rows := (int32(n) + cols - 1) / cols

	cellH := region.Size.H / rows

	rects := make([]geometry.Rect, 0, n)
	for i := int32(0); i < int32(n); i++ {
		row := i / cols
		col := i % cols

		// Cells on the last row stretch when the row is not full.
		inRow := cols
		if row == rows-1 {
			inRow = int32(n) - row*cols
		}
		w := region.Size.W / inRow
		x := region.Loc.X + col*w
		if col == inRow-1 {
			w = region.Right() - x
		}

		y := region.Loc.Y + row*cellH
		h := cellH
		if row == rows-1 {
			h = region.Bottom() - y
		}
		rects = append(rects, geometry.Rect{
			Loc:  geometry.Point{X: x, Y: y},
			Size: geometry.Size{W: w, H: h},
		})
	}
	return rects
}

// splitVertical divides a region into n equal-height rows, last row
// absorbing the remainder.
func splitVertical(region geometry.Rect, n int) []geometry.Rect {
	h := region.Size.H / int32(n)
	rects := make([]geometry.Rect, n)
	for i := 0; i < n; i++ {
		y := region.Loc.Y + int32(i)*h
		rh := h
		if i == n-1 {
			rh = region.Bottom() - y
		}
		rects[i] = geometry.Rect{
			Loc:  geometry.Point{X: region.Loc.X, Y: y},
			Size: geometry.Size{W: region.Size.W, H: rh},
		}
	}
	return rects
}
