// Package compositor wires the entity store, rule engine, layout
// coordinator, control session, and config supervisor into the single
// event loop that owns all state. Everything that mutates windows, tags,
// or outputs happens on the loop goroutine; connection readers and the
// supervisor only feed it channels.
package compositor

import (
	"context"
	"net"

	"github.com/waycrest/waycrest/pkg/backend"
	"github.com/waycrest/waycrest/pkg/layout"
	"github.com/waycrest/waycrest/pkg/protocol"
	"github.com/waycrest/waycrest/pkg/rules"
	"github.com/waycrest/waycrest/pkg/session"
	"github.com/waycrest/waycrest/pkg/store"
	"github.com/waycrest/waycrest/pkg/supervisor"
	"github.com/waycrest/waycrest/pkg/telemetry"
)

// Options configures a Compositor.
type Options struct {
	Backend    backend.Backend
	Supervisor *supervisor.Supervisor
	Logger     *telemetry.Logger
	Metrics    *telemetry.Metrics
	Tracer     *telemetry.Tracer
}

// readResult is one chunk read from the control connection, delivered to
// the loop by the session's reader goroutine.
type readResult struct {
	sess *session.Session
	data []byte
	err  error
}

// Compositor is the event loop owner.
type Compositor struct {
	logger  *telemetry.Logger
	metrics *telemetry.Metrics
	tracer  *telemetry.Tracer

	store *store.Store
	rules *rules.Engine
	coord *layout.Coordinator

	backend backend.Backend
	sup     *supervisor.Supervisor

	// Control session state. Only the loop goroutine touches these.
	sess  *session.Session
	reads chan readResult

	// Entity id to backend surface handle mapping and back.
	handles   map[store.WindowID]uint64
	byHandle  map[uint64]store.WindowID
	outputsBy map[uint64]store.OutputID

	quit chan struct{}
}

// New assembles a compositor from its collaborators.
func New(opts Options) *Compositor {
	logger := opts.Logger
	if logger == nil {
		logger = telemetry.Nop()
	}

	c := &Compositor{
		logger:    logger.NewComponentLogger("compositor"),
		metrics:   opts.Metrics,
		tracer:    opts.Tracer,
		backend:   opts.Backend,
		sup:       opts.Supervisor,
		reads:     make(chan readResult, 16),
		handles:   make(map[store.WindowID]uint64),
		byHandle:  make(map[uint64]store.WindowID),
		outputsBy: make(map[uint64]store.OutputID),
		quit:      make(chan struct{}),
	}

	c.store = store.New(logger, opts.Metrics)
	c.rules = rules.NewEngine(logger)
	c.coord = layout.NewCoordinator(c.store, logger, opts.Metrics)
	c.store.SetRecomputer(c.coord)
	return c
}

// Store exposes the entity store for tests and the headless demo.
func (c *Compositor) Store() *store.Store { return c.store }

// Rules exposes the rule engine.
func (c *Compositor) Rules() *rules.Engine { return c.rules }

// Run drives the event loop until Quit, context cancellation, or backend
// shutdown.
func (c *Compositor) Run(ctx context.Context) error {
	c.logger.Info("compositor loop starting")

	var supEvents <-chan supervisor.Event
	if c.sup != nil {
		supEvents = c.sup.Events()
	}

	for {
		select {
		case <-ctx.Done():
			c.shutdown("context cancelled")
			return ctx.Err()

		case <-c.quit:
			c.shutdown("quit requested")
			return nil

		case ev, ok := <-c.backend.Events():
			if !ok {
				c.shutdown("backend closed")
				return nil
			}
			c.handleBackendEvent(ctx, ev)

		case ev, ok := <-supEvents:
			if !ok {
				supEvents = nil
				continue
			}
			c.handleSupervisorEvent(ctx, ev)

		case r := <-c.reads:
			if err := c.handleRead(ctx, r); err != nil {
				c.logger.WithError(err).Error("control session torn down")
			}
		}
	}
}

// Quit asks the loop to exit. Safe to call from any goroutine once.
func (c *Compositor) Quit() {
	select {
	case <-c.quit:
	default:
		close(c.quit)
	}
}

func (c *Compositor) shutdown(reason string) {
	c.logger.Infof("compositor shutting down: %s", reason)
	if c.sess != nil {
		c.sess.Close("compositor shutdown")
		c.sess = nil
	}
	if c.sup != nil {
		c.sup.Stop()
	}
}

// Backend events

func (c *Compositor) handleBackendEvent(ctx context.Context, ev backend.Event) {
	switch ev.Type {
	case backend.EventWindowMapped:
		c.onWindowMapped(ev)
	case backend.EventWindowUnmapped:
		if wid, ok := c.byHandle[ev.Handle]; ok {
			c.store.RemoveWindow(wid)
			delete(c.byHandle, ev.Handle)
			delete(c.handles, wid)
			c.flushGeometry()
		}
	case backend.EventWindowTitleChanged:
		if wid, ok := c.byHandle[ev.Handle]; ok {
			c.store.SetWindowTitle(wid, ev.Title)
		}
	case backend.EventOutputAdded:
		out := c.store.AddOutput(ev.Name, ev.Loc, ev.Res)
		c.outputsBy[ev.Handle] = out.ID
		c.announceOutput(out)
	case backend.EventOutputRemoved:
		if oid, ok := c.outputsBy[ev.Handle]; ok {
			c.store.RemoveOutput(oid)
			delete(c.outputsBy, ev.Handle)
		}
	}
}

// onWindowMapped runs the window rule pipeline for a fresh surface:
// create the record, fold the matching rules over it, fall back to the
// active tags of the first output when no rule assigned any, then let the
// triggered layout pass place it.
func (c *Compositor) onWindowMapped(ev backend.Event) {
	w := c.store.AddWindow(ev.Class, ev.Title, ev.Geo)
	c.handles[w.ID] = ev.Handle
	c.byHandle[ev.Handle] = w.ID

	actions := c.rules.Evaluate(w)

	tags := actions.Tags
	if tags == nil && actions.Output != nil {
		for _, t := range c.store.ActiveTags(*actions.Output) {
			tags = append(tags, t.ID)
		}
	}
	if tags == nil {
		tags = c.defaultTags()
	}
	c.store.SetWindowTags(w.ID, tags)

	if actions.Floating != nil && *actions.Floating != c.isFloating(w.ID) {
		c.store.ToggleFloating(w.ID)
	}
	if actions.Size != nil {
		c.store.SetWindowSize(w.ID, &actions.Size.W, &actions.Size.H)
	}
	if actions.Loc != nil {
		c.store.SetWindowLoc(w.ID, *actions.Loc)
	}
	if actions.Fullscreen != nil && *actions.Fullscreen {
		c.store.ToggleFullscreen(w.ID)
	}
	if actions.Maximized != nil && *actions.Maximized {
		c.store.ToggleMaximized(w.ID)
	}

	// New windows take focus unless a rule explicitly declines it.
	if actions.Focused == nil || *actions.Focused {
		c.store.SetFocus(w.ID)
	}

	c.flushGeometry()
}

// defaultTags returns the active tags of the lowest-id output.
func (c *Compositor) defaultTags() []store.TagID {
	for _, out := range c.store.Outputs() {
		active := c.store.ActiveTags(out.ID)
		if len(active) == 0 {
			continue
		}
		ids := make([]store.TagID, len(active))
		for i, t := range active {
			ids[i] = t.ID
		}
		return ids
	}
	return nil
}

func (c *Compositor) isFloating(id store.WindowID) bool {
	w, ok := c.store.Window(id)
	return ok && w.Floating()
}

// flushGeometry pushes every window's current geometry to the backend.
// The store and coordinator have already settled by the time this runs.
func (c *Compositor) flushGeometry() {
	for _, w := range c.store.Windows() {
		handle, ok := c.handles[w.ID]
		if !ok {
			continue
		}
		if err := c.backend.ConfigureWindow(handle, w.Geo); err != nil {
			berr := NewBackendError("window configure rejected", err).WithOperation("configure_window")
			c.logger.WithWindow(uint32(w.ID)).WithError(berr).Warn("configure failed")
		}
	}
}

// Supervisor events

func (c *Compositor) handleSupervisorEvent(ctx context.Context, ev supervisor.Event) {
	switch ev.Type {
	case supervisor.EventSessionConnected:
		c.attachSession(ctx, ev.Conn)

	case supervisor.EventProcessExited:
		// A dead config process takes its rules and session with it.
		// Windows, tags, and outputs are untouched; the respawned process
		// re-declares what it wants.
		c.rules.Clear()
		if c.sess != nil {
			c.sess.Close("config process exited")
			c.sess = nil
		}

	case supervisor.EventDescriptorChanged:
		c.logger.Info("metaconfig descriptor changed, reloading")
		if err := c.Reload(ctx); err != nil {
			c.logger.WithError(err).Error("descriptor reload failed")
		}
	}
}

// attachSession replaces the current control session with a newly
// accepted connection. The newest connection always wins; the old one is
// shut down immediately.
func (c *Compositor) attachSession(ctx context.Context, conn net.Conn) {
	if c.sess != nil {
		c.sess.Close("replaced by newer connection")
	}

	c.sess = session.New(conn, c, c.logger, c.metrics)
	go c.readLoop(c.sess, conn)

	// The config process learns the world through events: one
	// output_connect per known output at session start.
	for _, out := range c.store.Outputs() {
		c.announceOutput(out)
	}
}

// readLoop pumps connection bytes to the loop goroutine. It exits when
// the connection closes, which also covers session replacement.
func (c *Compositor) readLoop(sess *session.Session, conn net.Conn) {
	buf := make([]byte, 4096)
	for {
		n, err := conn.Read(buf)
		var data []byte
		if n > 0 {
			data = make([]byte, n)
			copy(data, buf[:n])
		}
		select {
		case c.reads <- readResult{sess: sess, data: data, err: err}:
		case <-c.quit:
			return
		}
		if err != nil {
			return
		}
	}
}

func (c *Compositor) handleRead(ctx context.Context, r readResult) error {
	// Drop reads from a session that has already been replaced or closed.
	if r.sess != c.sess {
		return nil
	}
	if len(r.data) > 0 {
		if err := c.sess.Feed(ctx, r.data); err != nil {
			c.sess = nil
			return NewProtocolError("control session poisoned", err).WithOperation("session_feed")
		}
	}
	if r.err != nil {
		c.sess.Close("connection closed by peer")
		c.sess = nil
	}
	return nil
}

// announceOutput sends output_connect for one output, if a session is up.
func (c *Compositor) announceOutput(out store.Output) {
	if c.sess == nil {
		return
	}
	err := c.sess.SendEvent(protocol.TypeOutputConnect, protocol.OutputConnectEvent{
		OutputID: uint32(out.ID),
		Name:     out.Name,
		Loc:      out.Loc,
		Res:      out.Res,
	})
	if err != nil {
		c.logger.WithError(err).Warn("failed to announce output")
	}
}

// Reload tells the config process a reload is coming, clears its rules,
// and asks the supervisor to replace it. Entity state is preserved.
func (c *Compositor) Reload(ctx context.Context) error {
	if c.sess != nil {
		if err := c.sess.SendEvent(protocol.TypeConfigReload, protocol.ConfigReloadEvent{}); err != nil {
			c.logger.WithError(err).Debug("reload event not delivered")
		}
		c.sess.Close("config reload")
		c.sess = nil
	}
	c.rules.Clear()

	if c.sup == nil {
		return nil
	}
	if err := c.sup.Reload(ctx); err != nil {
		return NewConfigError("config process replacement failed", err).WithOperation("reload")
	}
	return nil
}
