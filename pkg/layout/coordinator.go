package layout

import (
	"time"

	"github.com/waycrest/waycrest/pkg/store"
	"github.com/waycrest/waycrest/pkg/telemetry"
)

// Coordinator recomputes window geometry for an output whenever the store
// reports a layout-affecting mutation. It satisfies store.Recomputer.
type Coordinator struct {
	store   *store.Store
	logger  *telemetry.Logger
	metrics *telemetry.Metrics
}

// NewCoordinator creates a coordinator bound to the store. The caller
// must also register it via store.SetRecomputer.
func NewCoordinator(s *store.Store, logger *telemetry.Logger, metrics *telemetry.Metrics) *Coordinator {
	return &Coordinator{
		store:   s,
		logger:  logger.NewComponentLogger("layout"),
		metrics: metrics,
	}
}

// Recompute lays out the visible windows of one output and writes the
// resulting geometry back through ApplyGeometry, which does not trigger
// another recomputation.
//
// Overlay windows take the full output region. Floating windows keep
// their own geometry. The remaining tiled windows are arranged by the
// layout of the lowest-id active tag, in ascending window-id order, so a
// given store state always produces the same frames.
func (c *Coordinator) Recompute(id store.OutputID) {
	start := time.Now()

	out, ok := c.store.Output(id)
	if !ok {
		return
	}
	region := out.Region()

	active := c.store.ActiveTags(id)
	kind := store.LayoutMasterStack
	if len(active) > 0 {
		kind = active[0].Layout
	}

	var tiled []store.WindowID
	for _, w := range c.store.VisibleWindows(id) {
		switch {
		case w.Overlay != store.OverlayNone:
			c.store.ApplyGeometry(w.ID, region)
		case w.Floating():
			// Floating geometry is user- or rule-owned.
		default:
			tiled = append(tiled, w.ID)
		}
	}

	rects := Compute(kind, region, len(tiled))
	for i, wid := range tiled {
		c.store.ApplyGeometry(wid, rects[i])
	}

	if c.metrics != nil {
		c.metrics.RecordLayoutRecompute(out.Name)
	}
	c.logger.WithOutput(out.Name).Tracef("layout %s: %d tiled windows in %s", kind, len(tiled), time.Since(start))
}

var _ store.Recomputer = (*Coordinator)(nil)
