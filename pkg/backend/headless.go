package backend

import (
	"fmt"
	"sync"

	"github.com/waycrest/waycrest/pkg/geometry"
	"github.com/waycrest/waycrest/pkg/telemetry"
)

// Headless is a backend with no display server behind it. Outputs are
// synthesized from configuration and windows are mapped programmatically,
// which is what tests and the standalone demo mode use.
type Headless struct {
	logger *telemetry.Logger

	mu         sync.Mutex
	events     chan Event
	nextHandle uint64
	surfaces   map[uint64]geometry.Rect
	closed     bool
}

// NewHeadless creates a headless backend with the given synthetic
// outputs, delivered as OutputAdded events before any window maps.
func NewHeadless(logger *telemetry.Logger, outputs []HeadlessOutput) *Headless {
	h := &Headless{
		logger:   logger.NewComponentLogger("backend"),
		events:   make(chan Event, 64),
		surfaces: make(map[uint64]geometry.Rect),
	}
	for i, out := range outputs {
		h.events <- Event{
			Type:   EventOutputAdded,
			Handle: uint64(i + 1),
			Name:   out.Name,
			Loc:    out.Loc,
			Res:    out.Res,
		}
	}
	return h
}

// HeadlessOutput describes one synthetic output.
type HeadlessOutput struct {
	Name string
	Loc  geometry.Point
	Res  geometry.Size
}

// Events implements Backend.
func (h *Headless) Events() <-chan Event { return h.events }

// MapWindow synthesizes a new mapped surface and returns its handle.
func (h *Headless) MapWindow(class, title string, geo geometry.Rect) uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return 0
	}
	h.nextHandle++
	handle := h.nextHandle
	h.surfaces[handle] = geo
	h.events <- Event{Type: EventWindowMapped, Handle: handle, Class: class, Title: title, Geo: geo}
	return handle
}

// UnmapWindow synthesizes a surface unmap.
func (h *Headless) UnmapWindow(handle uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	if _, ok := h.surfaces[handle]; !ok {
		return
	}
	delete(h.surfaces, handle)
	h.events <- Event{Type: EventWindowUnmapped, Handle: handle}
}

// SetTitle synthesizes a title change.
func (h *Headless) SetTitle(handle uint64, title string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	if _, ok := h.surfaces[handle]; !ok {
		return
	}
	h.events <- Event{Type: EventWindowTitleChanged, Handle: handle, Title: title}
}

// SurfaceGeo returns the last geometry configured for a surface.
func (h *Headless) SurfaceGeo(handle uint64) (geometry.Rect, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	geo, ok := h.surfaces[handle]
	return geo, ok
}

// ConfigureWindow implements Backend.
func (h *Headless) ConfigureWindow(handle uint64, geo geometry.Rect) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.surfaces[handle]; !ok {
		return fmt.Errorf("unknown surface handle %d", handle)
	}
	h.surfaces[handle] = geo
	return nil
}

// CloseWindow implements Backend. Headless clients have no veto: closing
// unmaps immediately.
func (h *Headless) CloseWindow(handle uint64) error {
	h.mu.Lock()
	if _, ok := h.surfaces[handle]; !ok {
		h.mu.Unlock()
		return fmt.Errorf("unknown surface handle %d", handle)
	}
	delete(h.surfaces, handle)
	if !h.closed {
		h.events <- Event{Type: EventWindowUnmapped, Handle: handle}
	}
	h.mu.Unlock()
	return nil
}

// StartMoveGrab implements Backend. Headless has no pointer, so grabs are
// recorded in the log and otherwise ignored.
func (h *Headless) StartMoveGrab(handle uint64, button uint32) error {
	h.logger.Debugf("move grab on surface %d with button %d", handle, button)
	return nil
}

// StartResizeGrab implements Backend.
func (h *Headless) StartResizeGrab(handle uint64, button uint32) error {
	h.logger.Debugf("resize grab on surface %d with button %d", handle, button)
	return nil
}

// Close implements Backend.
func (h *Headless) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	close(h.events)
	return nil
}

var _ Backend = (*Headless)(nil)
