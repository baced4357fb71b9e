package store

import (
	"fmt"

	"github.com/waycrest/waycrest/pkg/geometry"
)

// WindowID identifies a window for its whole lifetime. IDs are never
// reused within a compositor session. Zero is never a valid id.
type WindowID uint32

// TagID identifies a tag. Zero is never a valid id.
type TagID uint32

// OutputID identifies an output. Zero is never a valid id.
type OutputID uint32

// Mode is a window's underlying layout mode.
type Mode uint8

const (
	// ModeTiled windows are arranged by the layout coordinator.
	ModeTiled Mode = iota
	// ModeFloating windows keep user- or rule-assigned geometry.
	ModeFloating
)

func (m Mode) String() string {
	switch m {
	case ModeTiled:
		return "tiled"
	case ModeFloating:
		return "floating"
	default:
		return fmt.Sprintf("mode(%d)", m)
	}
}

// Overlay is the fullscreen/maximized state layered over the underlying
// mode. Toggling the overlay off restores the prior tiled/floating mode
// and geometry.
type Overlay uint8

const (
	OverlayNone Overlay = iota
	OverlayFullscreen
	OverlayMaximized
)

func (o Overlay) String() string {
	switch o {
	case OverlayNone:
		return "none"
	case OverlayFullscreen:
		return "fullscreen"
	case OverlayMaximized:
		return "maximized"
	default:
		return fmt.Sprintf("overlay(%d)", o)
	}
}

// LayoutKind names a tag's layout algorithm.
type LayoutKind string

const (
	LayoutMasterStack LayoutKind = "master_stack"
	LayoutEvenColumn  LayoutKind = "even_column"
	LayoutEvenRow     LayoutKind = "even_row"
	LayoutGrid        LayoutKind = "grid"
)

// ValidLayoutKind reports whether k names a known layout algorithm.
func ValidLayoutKind(k LayoutKind) bool {
	switch k {
	case LayoutMasterStack, LayoutEvenColumn, LayoutEvenRow, LayoutGrid:
		return true
	default:
		return false
	}
}

// Window is an immutable snapshot of one window's state. Mutation happens
// only through Store methods; snapshots handed out by lookups never alias
// store internals.
type Window struct {
	ID      WindowID
	Class   string
	Title   string
	Geo     geometry.Rect
	Mode    Mode
	Overlay Overlay
	// Tags is the window's tag membership, sorted by id. A window with an
	// empty tag set exists but is invisible to every layout computation.
	Tags    []TagID
	Focused bool
}

// Floating reports whether the underlying mode is floating.
func (w Window) Floating() bool { return w.Mode == ModeFloating }

// HasTag reports whether the window carries the given tag.
func (w Window) HasTag(id TagID) bool {
	for _, t := range w.Tags {
		if t == id {
			return true
		}
	}
	return false
}

// Tag is an immutable snapshot of one tag.
type Tag struct {
	ID   TagID
	Name string
	// Output is a weak reference: the tag survives output removal but is
	// not laid out while its output is gone.
	Output OutputID
	Active bool
	Layout LayoutKind
}

// Output is an immutable snapshot of one output.
type Output struct {
	ID   OutputID
	Name string
	Loc  geometry.Point
	Res  geometry.Size
}

// Region returns the output's rectangle in the global coordinate space.
func (o Output) Region() geometry.Rect {
	return geometry.Rect{Loc: o.Loc, Size: o.Res}
}

// Recomputer is implemented by the layout coordinator. The store invokes
// it synchronously for every output whose visible layout a mutation may
// have changed, before the mutating call returns.
type Recomputer interface {
	Recompute(OutputID)
}
