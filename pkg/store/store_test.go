package store

import (
	"testing"

	"github.com/waycrest/waycrest/pkg/geometry"
	"github.com/waycrest/waycrest/pkg/telemetry"
)

func newTestStore() *Store {
	return New(telemetry.Nop(), nil)
}

// recorder counts Recompute invocations per output.
type recorder struct {
	calls map[OutputID]int
}

func newRecorder() *recorder {
	return &recorder{calls: make(map[OutputID]int)}
}

func (r *recorder) Recompute(id OutputID) {
	r.calls[id]++
}

func seedOutput(t *testing.T, s *Store) Output {
	t.Helper()
	return s.AddOutput("HDMI-A-1", geometry.Point{}, geometry.Size{W: 1920, H: 1080})
}

func seedTag(t *testing.T, s *Store, out OutputID, name string) Tag {
	t.Helper()
	tag, ok := s.AddTag(name, out)
	if !ok {
		t.Fatalf("AddTag(%q, %d) failed", name, out)
	}
	return tag
}

func TestLookupAbsence(t *testing.T) {
	s := newTestStore()

	if _, ok := s.Window(99); ok {
		t.Error("Window(99) reported presence in an empty store")
	}
	if _, ok := s.Tag(99); ok {
		t.Error("Tag(99) reported presence in an empty store")
	}
	if _, ok := s.Output(99); ok {
		t.Error("Output(99) reported presence in an empty store")
	}

	w := s.AddWindow("term", "sh", geometry.NewRect(0, 0, 100, 100))
	if !s.RemoveWindow(w.ID) {
		t.Fatal("RemoveWindow failed for a live window")
	}
	if _, ok := s.Window(w.ID); ok {
		t.Error("destroyed window still reports presence")
	}
	if s.RemoveWindow(w.ID) {
		t.Error("RemoveWindow succeeded twice for the same id")
	}
}

func TestIDsNeverReused(t *testing.T) {
	s := newTestStore()

	a := s.AddWindow("a", "", geometry.NewRect(0, 0, 10, 10))
	s.RemoveWindow(a.ID)
	b := s.AddWindow("b", "", geometry.NewRect(0, 0, 10, 10))

	if b.ID == a.ID {
		t.Errorf("window id %d was reused after destruction", a.ID)
	}
	if b.ID <= a.ID {
		t.Errorf("window ids not monotonic: %d then %d", a.ID, b.ID)
	}
}

func TestFirstTagAutoActivates(t *testing.T) {
	s := newTestStore()
	out := seedOutput(t, s)

	first := seedTag(t, s, out.ID, "1")
	second := seedTag(t, s, out.ID, "2")

	if !first.Active {
		t.Error("first tag on an output did not auto-activate")
	}
	if second.Active {
		t.Error("second tag activated without a request")
	}
}

func TestToggleFloatingInverse(t *testing.T) {
	s := newTestStore()

	w := s.AddWindow("term", "", geometry.NewRect(10, 20, 640, 480))
	if !s.ToggleFloating(w.ID) {
		t.Fatal("ToggleFloating failed")
	}
	mid, _ := s.Window(w.ID)
	if mid.Mode != ModeFloating {
		t.Fatalf("Mode = %v after one toggle, want floating", mid.Mode)
	}

	// Move the floating window around, then tile and float again: the
	// floating geometry at tile time must come back.
	s.SetWindowLoc(w.ID, geometry.Point{X: 300, Y: 400})
	moved, _ := s.Window(w.ID)

	s.ToggleFloating(w.ID) // back to tiled
	s.ToggleFloating(w.ID) // floating again

	got, _ := s.Window(w.ID)
	if got.Mode != ModeFloating {
		t.Errorf("Mode = %v after double toggle from floating, want floating", got.Mode)
	}
	if got.Geo != moved.Geo {
		t.Errorf("Geo = %+v after restore, want %+v", got.Geo, moved.Geo)
	}
}

func TestToggleOverlayInverse(t *testing.T) {
	tests := []struct {
		name   string
		toggle func(*Store, WindowID) bool
		want   Overlay
	}{
		{"fullscreen", (*Store).ToggleFullscreen, OverlayFullscreen},
		{"maximized", (*Store).ToggleMaximized, OverlayMaximized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestStore()
			w := s.AddWindow("term", "", geometry.NewRect(10, 20, 640, 480))
			orig, _ := s.Window(w.ID)

			tt.toggle(s, w.ID)
			on, _ := s.Window(w.ID)
			if on.Overlay != tt.want {
				t.Fatalf("Overlay = %v, want %v", on.Overlay, tt.want)
			}
			if on.Mode != orig.Mode {
				t.Errorf("underlying mode changed while overlay on: %v", on.Mode)
			}

			tt.toggle(s, w.ID)
			off, _ := s.Window(w.ID)
			if off.Overlay != OverlayNone {
				t.Errorf("Overlay = %v after double toggle, want none", off.Overlay)
			}
			if off.Geo != orig.Geo {
				t.Errorf("Geo = %+v after restore, want %+v", off.Geo, orig.Geo)
			}
		})
	}
}

func TestOverlaySwitchKeepsSavedGeometry(t *testing.T) {
	s := newTestStore()
	w := s.AddWindow("term", "", geometry.NewRect(10, 20, 640, 480))
	orig, _ := s.Window(w.ID)

	s.ToggleFullscreen(w.ID)
	s.ToggleMaximized(w.ID) // switch overlays directly
	mid, _ := s.Window(w.ID)
	if mid.Overlay != OverlayMaximized {
		t.Fatalf("Overlay = %v, want maximized", mid.Overlay)
	}

	s.ToggleMaximized(w.ID) // off entirely
	got, _ := s.Window(w.ID)
	if got.Overlay != OverlayNone {
		t.Fatalf("Overlay = %v, want none", got.Overlay)
	}
	if got.Geo != orig.Geo {
		t.Errorf("Geo = %+v, want pre-overlay %+v", got.Geo, orig.Geo)
	}
}

func TestSetWindowSizeClamps(t *testing.T) {
	tests := []struct {
		name          string
		width, height *int32
		want          geometry.Size
	}{
		{"both valid", i32(800), i32(600), geometry.Size{W: 800, H: 600}},
		{"width only", i32(300), nil, geometry.Size{W: 300, H: 480}},
		{"zero width clamped", i32(0), nil, geometry.Size{W: 1, H: 480}},
		{"negative height clamped", nil, i32(-5), geometry.Size{W: 640, H: 1}},
		{"one valid one clamped", i32(-1), i32(700), geometry.Size{W: 1, H: 700}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestStore()
			w := s.AddWindow("term", "", geometry.NewRect(0, 0, 640, 480))

			if !s.SetWindowSize(w.ID, tt.width, tt.height) {
				t.Fatal("SetWindowSize failed for a live window")
			}
			got, _ := s.Window(w.ID)
			if got.Geo.Size != tt.want {
				t.Errorf("Size = %+v, want %+v", got.Geo.Size, tt.want)
			}
		})
	}
}

func TestTagMembership(t *testing.T) {
	s := newTestStore()
	out := seedOutput(t, s)
	t1 := seedTag(t, s, out.ID, "1")
	t2 := seedTag(t, s, out.ID, "2")

	w := s.AddWindow("term", "", geometry.NewRect(0, 0, 100, 100))

	if !s.ToggleWindowTag(w.ID, t1.ID) {
		t.Fatal("ToggleWindowTag failed")
	}
	got, _ := s.Window(w.ID)
	if !got.HasTag(t1.ID) {
		t.Error("window missing toggled-on tag")
	}

	s.ToggleWindowTag(w.ID, t2.ID)
	s.MoveWindowToTag(w.ID, t2.ID)
	got, _ = s.Window(w.ID)
	if got.HasTag(t1.ID) || !got.HasTag(t2.ID) || len(got.Tags) != 1 {
		t.Errorf("Tags = %v after move, want exactly [%d]", got.Tags, t2.ID)
	}

	// Toggling off the last tag leaves an empty set; the window survives.
	s.ToggleWindowTag(w.ID, t2.ID)
	got, ok := s.Window(w.ID)
	if !ok {
		t.Fatal("window vanished after losing all tags")
	}
	if len(got.Tags) != 0 {
		t.Errorf("Tags = %v, want empty", got.Tags)
	}
}

func TestUntaggedWindowInvisible(t *testing.T) {
	s := newTestStore()
	out := seedOutput(t, s)
	tag := seedTag(t, s, out.ID, "1")

	tagged := s.AddWindow("a", "", geometry.NewRect(0, 0, 100, 100))
	s.ToggleWindowTag(tagged.ID, tag.ID)
	s.AddWindow("b", "", geometry.NewRect(0, 0, 100, 100)) // stays untagged

	vis := s.VisibleWindows(out.ID)
	if len(vis) != 1 || vis[0].ID != tagged.ID {
		t.Errorf("VisibleWindows = %v, want only window %d", vis, tagged.ID)
	}
}

func TestRemoveTagDetachesWindows(t *testing.T) {
	s := newTestStore()
	out := seedOutput(t, s)
	tag := seedTag(t, s, out.ID, "1")

	w := s.AddWindow("term", "", geometry.NewRect(0, 0, 100, 100))
	s.ToggleWindowTag(w.ID, tag.ID)

	if !s.RemoveTag(tag.ID) {
		t.Fatal("RemoveTag failed")
	}
	got, _ := s.Window(w.ID)
	if len(got.Tags) != 0 {
		t.Errorf("Tags = %v after tag removal, want empty", got.Tags)
	}
	if s.ToggleWindowTag(w.ID, tag.ID) {
		t.Error("ToggleWindowTag succeeded with a destroyed tag")
	}
}

func TestFocusUniqueness(t *testing.T) {
	s := newTestStore()
	a := s.AddWindow("a", "", geometry.NewRect(0, 0, 10, 10))
	b := s.AddWindow("b", "", geometry.NewRect(0, 0, 10, 10))

	s.SetFocus(a.ID)
	s.SetFocus(b.ID)

	ga, _ := s.Window(a.ID)
	gb, _ := s.Window(b.ID)
	if ga.Focused {
		t.Error("previous window still focused")
	}
	if !gb.Focused {
		t.Error("newly focused window not focused")
	}

	s.RemoveWindow(b.ID)
	if _, ok := s.FocusedWindow(); ok {
		t.Error("focus survived the focused window's destruction")
	}

	s.SetFocus(a.ID)
	s.SetFocus(0)
	if _, ok := s.FocusedWindow(); ok {
		t.Error("focus survived an explicit clear")
	}
}

func TestMutationsTriggerRecompute(t *testing.T) {
	s := newTestStore()
	rec := newRecorder()
	s.SetRecomputer(rec)

	out := seedOutput(t, s)
	tag := seedTag(t, s, out.ID, "1")
	w := s.AddWindow("term", "", geometry.NewRect(0, 0, 100, 100))
	s.ToggleWindowTag(w.ID, tag.ID)

	before := rec.calls[out.ID]
	s.ToggleFloating(w.ID)
	if rec.calls[out.ID] != before+1 {
		t.Errorf("ToggleFloating triggered %d recomputes, want 1", rec.calls[out.ID]-before)
	}

	before = rec.calls[out.ID]
	s.ApplyGeometry(w.ID, geometry.NewRect(0, 0, 960, 1080))
	if rec.calls[out.ID] != before {
		t.Error("ApplyGeometry re-triggered recomputation")
	}

	before = rec.calls[out.ID]
	s.SetTagLayout(tag.ID, LayoutGrid)
	if rec.calls[out.ID] != before+1 {
		t.Error("SetTagLayout did not trigger recomputation")
	}
}

func TestSetTagLayoutUnknownKindIgnored(t *testing.T) {
	s := newTestStore()
	out := seedOutput(t, s)
	tag := seedTag(t, s, out.ID, "1")

	if !s.SetTagLayout(tag.ID, LayoutKind("spiral")) {
		t.Fatal("SetTagLayout reported absence for a live tag")
	}
	got, _ := s.Tag(tag.ID)
	if got.Layout != LayoutMasterStack {
		t.Errorf("Layout = %v after unknown kind, want unchanged master_stack", got.Layout)
	}
}

func TestSetWindowTagsDropsUnknown(t *testing.T) {
	s := newTestStore()
	out := seedOutput(t, s)
	tag := seedTag(t, s, out.ID, "1")
	w := s.AddWindow("term", "", geometry.NewRect(0, 0, 10, 10))

	if !s.SetWindowTags(w.ID, []TagID{tag.ID, 999}) {
		t.Fatal("SetWindowTags failed")
	}
	got, _ := s.Window(w.ID)
	if len(got.Tags) != 1 || got.Tags[0] != tag.ID {
		t.Errorf("Tags = %v, want only [%d]", got.Tags, tag.ID)
	}
}

func i32(v int32) *int32 { return &v }
