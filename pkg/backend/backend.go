// Package backend abstracts the display server side of the compositor:
// where windows and outputs come from and where computed geometry goes.
// The core never talks to rendering or input directly; it consumes backend
// events and issues configure calls through this interface.
package backend

import "github.com/waycrest/waycrest/pkg/geometry"

// EventType discriminates backend events.
type EventType uint8

const (
	EventWindowMapped EventType = iota
	EventWindowUnmapped
	EventWindowTitleChanged
	EventOutputAdded
	EventOutputRemoved
)

func (t EventType) String() string {
	switch t {
	case EventWindowMapped:
		return "window_mapped"
	case EventWindowUnmapped:
		return "window_unmapped"
	case EventWindowTitleChanged:
		return "window_title_changed"
	case EventOutputAdded:
		return "output_added"
	case EventOutputRemoved:
		return "output_removed"
	default:
		return "unknown"
	}
}

// Event is one backend occurrence. Fields are populated per type; Handle
// is the backend's own identifier for the surface or output, which the
// compositor maps to its entity ids.
type Event struct {
	Type   EventType
	Handle uint64

	// Window fields.
	Class string
	Title string
	Geo   geometry.Rect

	// Output fields.
	Name string
	Loc  geometry.Point
	Res  geometry.Size
}

// Backend is the display-server boundary.
type Backend interface {
	// Events returns the channel the compositor loop selects on. The
	// backend closes it on shutdown.
	Events() <-chan Event

	// ConfigureWindow pushes computed geometry to a surface.
	ConfigureWindow(handle uint64, geo geometry.Rect) error

	// CloseWindow asks the client owning the surface to close. The window
	// stays alive until the backend reports EventWindowUnmapped.
	CloseWindow(handle uint64) error

	// StartMoveGrab begins an interactive pointer move of the surface.
	StartMoveGrab(handle uint64, button uint32) error

	// StartResizeGrab begins an interactive pointer resize.
	StartResizeGrab(handle uint64, button uint32) error

	// Close shuts the backend down and closes the event channel.
	Close() error
}
