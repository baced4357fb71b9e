package compositor

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/waycrest/waycrest/pkg/protocol"
	"github.com/waycrest/waycrest/pkg/rules"
	"github.com/waycrest/waycrest/pkg/store"
)

// decodeBody unmarshals an envelope body. A failure is a session-fatal
// protocol error tagged with the operation in flight.
func decodeBody(env *protocol.Envelope, out any) error {
	if err := protocol.Unmarshal(env.Body, out); err != nil {
		return NewProtocolError("undecodable body", err).WithOperation(env.Type)
	}
	return nil
}

// HandleRequest implements session.Handler. Every well-framed request
// gets exactly one response; requests about absent entities get a
// response with all optional fields unset, and unknown request types get
// an unsupported response. None of these are errors.
func (c *Compositor) HandleRequest(ctx context.Context, env *protocol.Envelope) (*protocol.Envelope, error) {
	start := time.Now()
	if c.tracer != nil {
		var span trace.Span
		ctx, span = c.tracer.StartDispatchSpan(ctx, string(env.Kind), env.Type, c.sessionID())
		defer span.End()
	}
	defer func() {
		if c.metrics != nil {
			c.metrics.RecordDispatch(env.Type, time.Since(start))
		}
	}()

	switch env.Type {
	case protocol.TypeGetWindows:
		ids := make([]uint32, 0)
		for _, w := range c.store.Windows() {
			ids = append(ids, uint32(w.ID))
		}
		return protocol.NewResponse(env.Type, protocol.WindowsResponse{WindowIDs: ids})

	case protocol.TypeGetWindowProps:
		var req protocol.GetWindowPropsRequest
		if err := decodeBody(env, &req); err != nil {
			return nil, err
		}
		return protocol.NewResponse(env.Type, c.windowProps(store.WindowID(req.WindowID)))

	case protocol.TypeGetOutputs:
		ids := make([]uint32, 0)
		for _, o := range c.store.Outputs() {
			ids = append(ids, uint32(o.ID))
		}
		return protocol.NewResponse(env.Type, protocol.OutputsResponse{OutputIDs: ids})

	case protocol.TypeGetOutputProps:
		var req protocol.GetOutputPropsRequest
		if err := decodeBody(env, &req); err != nil {
			return nil, err
		}
		return protocol.NewResponse(env.Type, c.outputProps(store.OutputID(req.OutputID)))

	case protocol.TypeGetTags:
		ids := make([]uint32, 0)
		for _, t := range c.store.Tags() {
			ids = append(ids, uint32(t.ID))
		}
		return protocol.NewResponse(env.Type, protocol.TagsResponse{TagIDs: ids})

	case protocol.TypeGetTagProps:
		var req protocol.GetTagPropsRequest
		if err := decodeBody(env, &req); err != nil {
			return nil, err
		}
		return protocol.NewResponse(env.Type, c.tagProps(store.TagID(req.TagID)))

	default:
		c.logger.Warnf("unsupported request type %q", env.Type)
		return protocol.NewResponse(protocol.TypeUnsupported, protocol.UnsupportedResponse{Requested: env.Type})
	}
}

func (c *Compositor) windowProps(id store.WindowID) protocol.WindowPropsResponse {
	w, ok := c.store.Window(id)
	if !ok {
		return protocol.WindowPropsResponse{}
	}

	floating := w.Floating()
	fm := protocol.FsOrMaxNeither
	switch w.Overlay {
	case store.OverlayFullscreen:
		fm = protocol.FsOrMaxFullscreen
	case store.OverlayMaximized:
		fm = protocol.FsOrMaxMaximized
	}

	tags := make([]uint32, len(w.Tags))
	for i, t := range w.Tags {
		tags[i] = uint32(t)
	}

	size := w.Geo.Size
	loc := w.Geo.Loc
	class := w.Class
	title := w.Title
	focused := w.Focused
	return protocol.WindowPropsResponse{
		Size:                  &size,
		Loc:                   &loc,
		Class:                 &class,
		Title:                 &title,
		Floating:              &floating,
		FullscreenOrMaximized: &fm,
		Focused:               &focused,
		TagIDs:                tags,
	}
}

func (c *Compositor) outputProps(id store.OutputID) protocol.OutputPropsResponse {
	o, ok := c.store.Output(id)
	if !ok {
		return protocol.OutputPropsResponse{}
	}
	name := o.Name
	loc := o.Loc
	res := o.Res
	tags := make([]uint32, 0)
	for _, t := range c.store.TagsOnOutput(id) {
		tags = append(tags, uint32(t.ID))
	}
	return protocol.OutputPropsResponse{Name: &name, Loc: &loc, Res: &res, TagIDs: tags}
}

func (c *Compositor) tagProps(id store.TagID) protocol.TagPropsResponse {
	t, ok := c.store.Tag(id)
	if !ok {
		return protocol.TagPropsResponse{}
	}
	name := t.Name
	out := uint32(t.Output)
	active := t.Active
	layout := string(t.Layout)
	return protocol.TagPropsResponse{Name: &name, OutputID: &out, Active: &active, Layout: &layout}
}

// HandleMessage implements session.Handler. Messages about absent
// entities are no-ops; messages with unknown types are ignored so a newer
// config runtime cannot crash an older compositor. Only an undecodable
// body is an error, and that error is session-fatal.
func (c *Compositor) HandleMessage(ctx context.Context, env *protocol.Envelope) error {
	start := time.Now()
	defer func() {
		if c.metrics != nil {
			c.metrics.RecordDispatch(env.Type, time.Since(start))
		}
	}()

	switch env.Type {
	case protocol.TypeToggleTagOnWindow:
		var m protocol.ToggleTagOnWindowMsg
		if err := decodeBody(env, &m); err != nil {
			return err
		}
		c.store.ToggleWindowTag(store.WindowID(m.WindowID), store.TagID(m.TagID))
		c.flushGeometry()

	case protocol.TypeMoveWindowToTag:
		var m protocol.MoveWindowToTagMsg
		if err := decodeBody(env, &m); err != nil {
			return err
		}
		c.store.MoveWindowToTag(store.WindowID(m.WindowID), store.TagID(m.TagID))
		c.flushGeometry()

	case protocol.TypeToggleFloating:
		var m protocol.ToggleFloatingMsg
		if err := decodeBody(env, &m); err != nil {
			return err
		}
		c.store.ToggleFloating(store.WindowID(m.WindowID))
		c.flushGeometry()

	case protocol.TypeToggleFullscreen:
		var m protocol.ToggleFullscreenMsg
		if err := decodeBody(env, &m); err != nil {
			return err
		}
		c.store.ToggleFullscreen(store.WindowID(m.WindowID))
		c.flushGeometry()

	case protocol.TypeToggleMaximized:
		var m protocol.ToggleMaximizedMsg
		if err := decodeBody(env, &m); err != nil {
			return err
		}
		c.store.ToggleMaximized(store.WindowID(m.WindowID))
		c.flushGeometry()

	case protocol.TypeSetWindowSize:
		var m protocol.SetWindowSizeMsg
		if err := decodeBody(env, &m); err != nil {
			return err
		}
		c.store.SetWindowSize(store.WindowID(m.WindowID), m.Width, m.Height)
		c.flushGeometry()

	case protocol.TypeCloseWindow:
		var m protocol.CloseWindowMsg
		if err := decodeBody(env, &m); err != nil {
			return err
		}
		// The client gets to react; the window stays until the backend
		// reports the unmap.
		if handle, ok := c.handles[store.WindowID(m.WindowID)]; ok {
			if err := c.backend.CloseWindow(handle); err != nil {
				berr := NewBackendError("close request rejected", err).WithOperation(env.Type)
				c.logger.WithWindow(m.WindowID).WithError(berr).Warn("close request failed")
			}
		}

	case protocol.TypeWindowMoveGrab:
		var m protocol.WindowMoveGrabMsg
		if err := decodeBody(env, &m); err != nil {
			return err
		}
		c.startGrab(m.Button, c.backend.StartMoveGrab)

	case protocol.TypeWindowResizeGrab:
		var m protocol.WindowResizeGrabMsg
		if err := decodeBody(env, &m); err != nil {
			return err
		}
		c.startGrab(m.Button, c.backend.StartResizeGrab)

	case protocol.TypeAddWindowRule:
		var m protocol.AddWindowRuleMsg
		if err := decodeBody(env, &m); err != nil {
			return err
		}
		c.rules.Add(ruleFromSpec(m))

	case protocol.TypeAddTags:
		var m protocol.AddTagsMsg
		if err := decodeBody(env, &m); err != nil {
			return err
		}
		out, ok := c.store.OutputByName(m.OutputName)
		if !ok {
			verr := NewValidationError("unknown output "+m.OutputName, nil).WithOperation(env.Type)
			c.logger.WithError(verr).Warn("add_tags ignored")
			return nil
		}
		for _, name := range m.TagNames {
			c.store.AddTag(name, out.ID)
		}

	case protocol.TypeRemoveTags:
		var m protocol.RemoveTagsMsg
		if err := decodeBody(env, &m); err != nil {
			return err
		}
		for _, id := range m.TagIDs {
			c.store.RemoveTag(store.TagID(id))
		}
		c.flushGeometry()

	case protocol.TypeToggleTagActive:
		var m protocol.ToggleTagActiveMsg
		if err := decodeBody(env, &m); err != nil {
			return err
		}
		c.store.ToggleTagActive(store.TagID(m.TagID))
		c.flushGeometry()

	case protocol.TypeSetTagLayout:
		var m protocol.SetTagLayoutMsg
		if err := decodeBody(env, &m); err != nil {
			return err
		}
		c.store.SetTagLayout(store.TagID(m.TagID), store.LayoutKind(m.Layout))
		c.flushGeometry()

	case protocol.TypeQuit:
		c.Quit()

	default:
		c.logger.Debugf("ignoring unknown message type %q", env.Type)
	}
	return nil
}

// startGrab forwards an interactive grab to the backend for the focused
// window. Grabs are pointer-driven; without a focused window there is
// nothing to grab.
func (c *Compositor) startGrab(button uint32, start func(uint64, uint32) error) {
	w, ok := c.store.FocusedWindow()
	if !ok {
		return
	}
	handle, ok := c.handles[w.ID]
	if !ok {
		return
	}
	if err := start(handle, button); err != nil {
		berr := NewBackendError("grab rejected", err).WithOperation("start_grab")
		c.logger.WithWindow(uint32(w.ID)).WithError(berr).Warn("grab failed")
	}
}

// ruleFromSpec converts a wire rule declaration to the engine's form.
func ruleFromSpec(m protocol.AddWindowRuleMsg) rules.Rule {
	r := rules.Rule{
		Condition: rules.Condition{
			Classes: m.Condition.Classes,
			Titles:  m.Condition.Titles,
		},
	}
	for _, id := range m.Condition.TagIDs {
		r.Condition.Tags = append(r.Condition.Tags, store.TagID(id))
	}

	a := m.Actions
	if a.TagIDs != nil {
		r.Actions.Tags = make([]store.TagID, len(a.TagIDs))
		for i, id := range a.TagIDs {
			r.Actions.Tags[i] = store.TagID(id)
		}
	}
	r.Actions.Floating = a.Floating
	r.Actions.Fullscreen = a.Fullscreen
	r.Actions.Maximized = a.Maximized
	r.Actions.Size = a.Size
	r.Actions.Loc = a.Loc
	if a.OutputID != nil {
		out := store.OutputID(*a.OutputID)
		r.Actions.Output = &out
	}
	r.Actions.Focused = a.Focused
	return r
}

func (c *Compositor) sessionID() string {
	if c.sess == nil {
		return ""
	}
	return c.sess.ID()
}
