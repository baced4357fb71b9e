package compositor

import (
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waycrest/waycrest/pkg/backend"
	"github.com/waycrest/waycrest/pkg/geometry"
	"github.com/waycrest/waycrest/pkg/protocol"
	"github.com/waycrest/waycrest/pkg/session"
	"github.com/waycrest/waycrest/pkg/store"
	"github.com/waycrest/waycrest/pkg/supervisor"
	"github.com/waycrest/waycrest/pkg/telemetry"
)

// fixture drives the compositor synchronously: backend events are pumped
// by hand instead of running the loop, so every assertion sees settled
// state.
type fixture struct {
	c *Compositor
	b *backend.Headless
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	b := backend.NewHeadless(telemetry.Nop(), []backend.HeadlessOutput{
		{Name: "HDMI-A-1", Res: geometry.Size{W: 1920, H: 1080}},
	})
	c := New(Options{Backend: b, Logger: telemetry.Nop()})
	f := &fixture{c: c, b: b}
	f.pump(t)

	// A tag to land windows on, the way a config process would set up.
	out, ok := c.Store().OutputByName("HDMI-A-1")
	require.True(t, ok)
	_, ok = c.Store().AddTag("1", out.ID)
	require.True(t, ok)
	return f
}

// pump feeds all queued backend events into the compositor.
func (f *fixture) pump(t *testing.T) {
	t.Helper()
	for {
		select {
		case ev := <-f.b.Events():
			f.c.handleBackendEvent(context.Background(), ev)
		default:
			return
		}
	}
}

func (f *fixture) mapWindow(t *testing.T, class, title string) store.WindowID {
	t.Helper()
	handle := f.b.MapWindow(class, title, geometry.NewRect(0, 0, 640, 480))
	f.pump(t)
	id, ok := f.c.byHandle[handle]
	require.True(t, ok, "mapped window has no store record")
	return id
}

func (f *fixture) message(t *testing.T, msgType string, body any) {
	t.Helper()
	env, err := protocol.NewMessage(msgType, body)
	require.NoError(t, err)
	require.NoError(t, f.c.HandleMessage(context.Background(), env))
}

func (f *fixture) request(t *testing.T, reqType string, body any) *protocol.Envelope {
	t.Helper()
	env, err := protocol.NewRequest(reqType, body)
	require.NoError(t, err)
	resp, err := f.c.HandleRequest(context.Background(), env)
	require.NoError(t, err)
	require.Equal(t, protocol.KindResponse, resp.Kind)
	return resp
}

func TestWindowPropsRoundTrip(t *testing.T) {
	f := newFixture(t)
	id := f.mapWindow(t, "firefox", "home")

	resp := f.request(t, protocol.TypeGetWindowProps, protocol.GetWindowPropsRequest{WindowID: uint32(id)})
	var props protocol.WindowPropsResponse
	require.NoError(t, protocol.Unmarshal(resp.Body, &props))

	require.NotNil(t, props.Class)
	assert.Equal(t, "firefox", *props.Class)
	require.NotNil(t, props.Floating)
	assert.False(t, *props.Floating)
	require.NotNil(t, props.FullscreenOrMaximized)
	assert.Equal(t, protocol.FsOrMaxNeither, *props.FullscreenOrMaximized)
	require.NotNil(t, props.Focused)
	assert.True(t, *props.Focused, "newly mapped window takes focus")
	assert.Len(t, props.TagIDs, 1, "window must land on the output's active tag")
}

func TestAbsentWindowPropsAllUnset(t *testing.T) {
	f := newFixture(t)

	resp := f.request(t, protocol.TypeGetWindowProps, protocol.GetWindowPropsRequest{WindowID: 4242})
	var props protocol.WindowPropsResponse
	require.NoError(t, protocol.Unmarshal(resp.Body, &props))

	assert.Nil(t, props.Size)
	assert.Nil(t, props.Class)
	assert.Nil(t, props.Floating)
	assert.Nil(t, props.FullscreenOrMaximized)
	assert.Nil(t, props.TagIDs)
}

func TestUnsupportedRequestType(t *testing.T) {
	f := newFixture(t)

	env, err := protocol.NewRequest("get_moon_phase", nil)
	require.NoError(t, err)
	resp, err := f.c.HandleRequest(context.Background(), env)
	require.NoError(t, err)

	assert.Equal(t, protocol.TypeUnsupported, resp.Type)
	var body protocol.UnsupportedResponse
	require.NoError(t, protocol.Unmarshal(resp.Body, &body))
	assert.Equal(t, "get_moon_phase", body.Requested)
}

func TestUnknownMessageIgnored(t *testing.T) {
	f := newFixture(t)
	env, err := protocol.NewMessage("do_a_backflip", nil)
	require.NoError(t, err)
	assert.NoError(t, f.c.HandleMessage(context.Background(), env))
}

func TestToggleFloatingInverseThroughProtocol(t *testing.T) {
	f := newFixture(t)
	id := f.mapWindow(t, "term", "")

	f.message(t, protocol.TypeToggleFloating, protocol.ToggleFloatingMsg{WindowID: uint32(id)})
	w, _ := f.c.Store().Window(id)
	require.True(t, w.Floating())
	floatingGeo := w.Geo

	f.message(t, protocol.TypeToggleFloating, protocol.ToggleFloatingMsg{WindowID: uint32(id)})
	f.message(t, protocol.TypeToggleFloating, protocol.ToggleFloatingMsg{WindowID: uint32(id)})

	w, _ = f.c.Store().Window(id)
	assert.True(t, w.Floating())
	assert.Equal(t, floatingGeo, w.Geo, "double toggle must restore floating geometry")
}

func TestSetWindowSizeClampsThroughProtocol(t *testing.T) {
	f := newFixture(t)
	id := f.mapWindow(t, "term", "")
	f.message(t, protocol.TypeToggleFloating, protocol.ToggleFloatingMsg{WindowID: uint32(id)})

	bad := int32(-100)
	good := int32(700)
	f.message(t, protocol.TypeSetWindowSize, protocol.SetWindowSizeMsg{
		WindowID: uint32(id), Width: &bad, Height: &good,
	})

	w, _ := f.c.Store().Window(id)
	assert.Equal(t, int32(1), w.Geo.Size.W, "invalid width must clamp, not fail")
	assert.Equal(t, int32(700), w.Geo.Size.H, "valid height must apply")
}

func TestMessageForAbsentWindowIsNoOp(t *testing.T) {
	f := newFixture(t)
	f.message(t, protocol.TypeToggleFloating, protocol.ToggleFloatingMsg{WindowID: 999})
	f.message(t, protocol.TypeCloseWindow, protocol.CloseWindowMsg{WindowID: 999})
}

func TestWindowRuleAppliedAtMap(t *testing.T) {
	f := newFixture(t)
	out, _ := f.c.Store().OutputByName("HDMI-A-1")
	scratch, ok := f.c.Store().AddTag("scratch", out.ID)
	require.True(t, ok)

	floating := true
	f.message(t, protocol.TypeAddWindowRule, protocol.AddWindowRuleMsg{
		Condition: protocol.RuleConditionSpec{Classes: []string{"dropdown"}},
		Actions: protocol.RuleActionsSpec{
			Floating: &floating,
			TagIDs:   []uint32{uint32(scratch.ID)},
			Size:     &geometry.Size{W: 800, H: 300},
		},
	})

	id := f.mapWindow(t, "dropdown", "")
	w, _ := f.c.Store().Window(id)
	assert.True(t, w.Floating())
	assert.Equal(t, []store.TagID{scratch.ID}, w.Tags)
	assert.Equal(t, geometry.Size{W: 800, H: 300}, w.Geo.Size)

	// A window missing the rule's class falls back to default tags.
	other := f.mapWindow(t, "term", "")
	ow, _ := f.c.Store().Window(other)
	assert.False(t, ow.Floating())
	assert.NotEqual(t, []store.TagID{scratch.ID}, ow.Tags)
}

func TestLaterRuleOverridesEarlier(t *testing.T) {
	f := newFixture(t)

	floatOn := true
	floatOff := false
	f.message(t, protocol.TypeAddWindowRule, protocol.AddWindowRuleMsg{
		Condition: protocol.RuleConditionSpec{Classes: []string{"term"}},
		Actions:   protocol.RuleActionsSpec{Floating: &floatOn},
	})
	f.message(t, protocol.TypeAddWindowRule, protocol.AddWindowRuleMsg{
		Condition: protocol.RuleConditionSpec{Classes: []string{"term"}, Titles: []string{"scratch"}},
		Actions:   protocol.RuleActionsSpec{Floating: &floatOff},
	})

	plain := f.mapWindow(t, "term", "shell")
	w, _ := f.c.Store().Window(plain)
	assert.True(t, w.Floating())

	overridden := f.mapWindow(t, "term", "scratch")
	w, _ = f.c.Store().Window(overridden)
	assert.False(t, w.Floating(), "later matching rule must win")
}

func TestCloseWindowWaitsForUnmap(t *testing.T) {
	f := newFixture(t)
	id := f.mapWindow(t, "term", "")

	f.message(t, protocol.TypeCloseWindow, protocol.CloseWindowMsg{WindowID: uint32(id)})
	f.pump(t)

	_, ok := f.c.Store().Window(id)
	assert.False(t, ok, "window must be gone after the backend reports the unmap")
}

func TestQuitMessage(t *testing.T) {
	f := newFixture(t)
	f.message(t, protocol.TypeQuit, protocol.QuitMsg{})

	select {
	case <-f.c.quit:
	default:
		t.Error("quit message did not request loop exit")
	}
}

func TestConfigCrashPreservesEntities(t *testing.T) {
	f := newFixture(t)
	id := f.mapWindow(t, "term", "")

	floating := true
	f.message(t, protocol.TypeAddWindowRule, protocol.AddWindowRuleMsg{
		Actions: protocol.RuleActionsSpec{Floating: &floating},
	})
	require.Equal(t, 1, f.c.Rules().Len())

	f.c.handleSupervisorEvent(context.Background(), supervisor.Event{
		Type: supervisor.EventProcessExited,
		Err:  assert.AnError,
	})

	_, ok := f.c.Store().Window(id)
	assert.True(t, ok, "windows must survive a config crash")
	assert.NotEmpty(t, f.c.Store().Tags(), "tags must survive a config crash")
	assert.Equal(t, 0, f.c.Rules().Len(), "rules must not survive a config crash")
}

func TestUndecodableMessageBodyIsProtocolError(t *testing.T) {
	f := newFixture(t)

	env := &protocol.Envelope{
		Kind: protocol.KindMessage,
		Type: protocol.TypeToggleFloating,
		Body: protocol.RawMessage{0xff},
	}
	err := f.c.HandleMessage(context.Background(), env)
	require.Error(t, err)
	assert.True(t, IsProtocol(err), "undecodable body must classify as protocol error")
	assert.ErrorIs(t, err, protocol.ErrProtocol)
}

func TestUndecodableRequestBodyIsProtocolError(t *testing.T) {
	f := newFixture(t)

	env := &protocol.Envelope{
		Kind: protocol.KindRequest,
		Type: protocol.TypeGetWindowProps,
		Body: protocol.RawMessage{0xff},
	}
	_, err := f.c.HandleRequest(context.Background(), env)
	require.Error(t, err)
	assert.True(t, IsProtocol(err))
}

func TestGarbageFeedTearsDownSessionWithProtocolError(t *testing.T) {
	f := newFixture(t)

	ca, cb := net.Pipe()
	defer cb.Close()
	go drainConn(cb)
	f.c.attachSession(context.Background(), ca)
	sess := f.c.sess
	require.NotNil(t, sess)

	// A length prefix beyond the frame limit poisons the stream.
	err := f.c.handleRead(context.Background(), readResult{
		sess: sess,
		data: []byte{0xff, 0xff, 0xff, 0xff},
	})
	require.Error(t, err)
	assert.True(t, IsProtocol(err), "garbage on the control stream must classify as protocol error")
	assert.Nil(t, f.c.sess, "poisoned session must be detached")
	assert.Equal(t, session.StateClosed, sess.State())
}

func TestReloadWithBrokenDescriptorIsConfigError(t *testing.T) {
	sup := supervisor.New(filepath.Join(t.TempDir(), "missing.yaml"), telemetry.Nop(), nil)
	c := New(Options{
		Backend:    backend.NewHeadless(telemetry.Nop(), nil),
		Supervisor: sup,
		Logger:     telemetry.Nop(),
	})

	err := c.Reload(context.Background())
	require.Error(t, err)
	assert.True(t, IsConfig(err), "unloadable descriptor must classify as config error")
}

func TestNewerSessionReplacesOlder(t *testing.T) {
	f := newFixture(t)

	c1a, c1b := net.Pipe()
	defer c1b.Close()
	go drainConn(c1b)
	f.c.attachSession(context.Background(), c1a)
	first := f.c.sess
	require.NotNil(t, first)

	c2a, c2b := net.Pipe()
	defer c2b.Close()
	go drainConn(c2b)
	f.c.attachSession(context.Background(), c2a)

	assert.NotEqual(t, first, f.c.sess, "new connection must become the session")
	require.Eventually(t, func() bool {
		return first.State() == session.StateClosed
	}, time.Second, 10*time.Millisecond, "old session must be shut down")

	f.c.sess.Close("test")
}

// drainConn discards everything written to the peer side of a pipe so
// session writes never block.
func drainConn(conn net.Conn) {
	buf := make([]byte, 4096)
	for {
		if _, err := conn.Read(buf); err != nil {
			return
		}
	}
}
