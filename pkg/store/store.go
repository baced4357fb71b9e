package store

import (
	"sort"

	"github.com/waycrest/waycrest/pkg/geometry"
	"github.com/waycrest/waycrest/pkg/telemetry"
)

// window is the store-internal mutable record behind Window snapshots.
type window struct {
	id      WindowID
	class   string
	title   string
	geo     geometry.Rect
	mode    Mode
	overlay Overlay
	tags    map[TagID]struct{}
	focused bool

	// savedFloating remembers the floating geometry while the window is
	// tiled, so toggling floating twice restores the original rectangle.
	savedFloating *geometry.Rect
	// savedOverlay remembers the pre-overlay geometry while fullscreen or
	// maximized.
	savedOverlay *geometry.Rect
}

type tag struct {
	id     TagID
	name   string
	output OutputID
	active bool
	layout LayoutKind
}

type output struct {
	id   OutputID
	name string
	loc  geometry.Point
	res  geometry.Size
}

// Store is the entity store. It must only be touched from the compositor
// loop goroutine.
type Store struct {
	logger  *telemetry.Logger
	metrics *telemetry.Metrics

	nextWindow WindowID
	nextTag    TagID
	nextOutput OutputID

	windows map[WindowID]*window
	tags    map[TagID]*tag
	outputs map[OutputID]*output

	focused WindowID // zero when nothing is focused

	recomputer Recomputer
}

// New creates an empty store.
func New(logger *telemetry.Logger, metrics *telemetry.Metrics) *Store {
	return &Store{
		logger:  logger.NewComponentLogger("store"),
		metrics: metrics,
		windows: make(map[WindowID]*window),
		tags:    make(map[TagID]*tag),
		outputs: make(map[OutputID]*output),
	}
}

// SetRecomputer registers the layout coordinator. Must be called before
// any mutation; a nil recomputer disables layout triggering (tests of pure
// state transitions use this).
func (s *Store) SetRecomputer(r Recomputer) {
	s.recomputer = r
}

func (s *Store) recompute(id OutputID) {
	if s.recomputer == nil || id == 0 {
		return
	}
	if _, ok := s.outputs[id]; !ok {
		return
	}
	s.recomputer.Recompute(id)
}

// recomputeForWindow triggers recomputation for every output that renders
// any of the window's tags.
func (s *Store) recomputeForWindow(w *window) {
	seen := make(map[OutputID]struct{})
	for tid := range w.tags {
		t, ok := s.tags[tid]
		if !ok {
			continue
		}
		if _, dup := seen[t.output]; dup {
			continue
		}
		seen[t.output] = struct{}{}
		s.recompute(t.output)
	}
}

// Outputs

// AddOutput registers an output discovered by the backend.
func (s *Store) AddOutput(name string, loc geometry.Point, res geometry.Size) Output {
	s.nextOutput++
	o := &output{id: s.nextOutput, name: name, loc: loc, res: geometry.ClampSize(res)}
	s.outputs[o.id] = o
	s.logger.WithOutput(name).Debug("output added")
	return s.outputSnapshot(o)
}

// RemoveOutput forgets an output. Tags referencing it survive (the
// reference is weak) but stop being laid out.
func (s *Store) RemoveOutput(id OutputID) bool {
	if _, ok := s.outputs[id]; !ok {
		return false
	}
	delete(s.outputs, id)
	return true
}

// Output returns an output snapshot, reporting absence for unknown ids.
func (s *Store) Output(id OutputID) (Output, bool) {
	o, ok := s.outputs[id]
	if !ok {
		return Output{}, false
	}
	return s.outputSnapshot(o), true
}

// OutputByName returns the output with the given name.
func (s *Store) OutputByName(name string) (Output, bool) {
	for _, o := range s.outputs {
		if o.name == name {
			return s.outputSnapshot(o), true
		}
	}
	return Output{}, false
}

// Outputs returns all outputs sorted by id.
func (s *Store) Outputs() []Output {
	out := make([]Output, 0, len(s.outputs))
	for _, o := range s.outputs {
		out = append(out, s.outputSnapshot(o))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Store) outputSnapshot(o *output) Output {
	return Output{ID: o.id, Name: o.name, Loc: o.loc, Res: o.res}
}

// Tags

// AddTag creates a tag on an output. The first tag created on an output
// becomes active so that newly mapped windows have somewhere to land
// before the config runtime takes over activation.
func (s *Store) AddTag(name string, out OutputID) (Tag, bool) {
	if _, ok := s.outputs[out]; !ok {
		return Tag{}, false
	}
	s.nextTag++
	t := &tag{id: s.nextTag, name: name, output: out, layout: LayoutMasterStack}
	if !s.outputHasActiveTag(out) {
		t.active = true
	}
	s.tags[t.id] = t
	s.updateTagGauge()
	return s.tagSnapshot(t), true
}

// RemoveTag destroys a tag, detaching it from every window. Windows left
// with an empty tag set stay alive but drop out of layout.
func (s *Store) RemoveTag(id TagID) bool {
	t, ok := s.tags[id]
	if !ok {
		return false
	}
	for _, w := range s.windows {
		delete(w.tags, id)
	}
	delete(s.tags, id)
	s.updateTagGauge()
	s.recompute(t.output)
	return true
}

// Tag returns a tag snapshot, reporting absence for unknown ids.
func (s *Store) Tag(id TagID) (Tag, bool) {
	t, ok := s.tags[id]
	if !ok {
		return Tag{}, false
	}
	return s.tagSnapshot(t), true
}

// Tags returns all tags sorted by id.
func (s *Store) Tags() []Tag {
	out := make([]Tag, 0, len(s.tags))
	for _, t := range s.tags {
		out = append(out, s.tagSnapshot(t))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// TagsOnOutput returns the tags owned by an output, sorted by id.
func (s *Store) TagsOnOutput(out OutputID) []Tag {
	var res []Tag
	for _, t := range s.tags {
		if t.output == out {
			res = append(res, s.tagSnapshot(t))
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res
}

// ActiveTags returns an output's active tags, sorted by id.
func (s *Store) ActiveTags(out OutputID) []Tag {
	var res []Tag
	for _, t := range s.tags {
		if t.output == out && t.active {
			res = append(res, s.tagSnapshot(t))
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res
}

// ToggleTagActive flips a tag's active flag and relayouts its output.
func (s *Store) ToggleTagActive(id TagID) bool {
	t, ok := s.tags[id]
	if !ok {
		return false
	}
	t.active = !t.active
	s.recompute(t.output)
	return true
}

// SetTagLayout changes a tag's layout kind. Unknown kinds are ignored
// field-by-field: the tag keeps its previous layout and the call still
// reports the tag's existence.
func (s *Store) SetTagLayout(id TagID, kind LayoutKind) bool {
	t, ok := s.tags[id]
	if !ok {
		return false
	}
	if !ValidLayoutKind(kind) {
		s.logger.Warnf("ignoring unknown layout kind %q for tag %d", kind, id)
		return true
	}
	t.layout = kind
	s.recompute(t.output)
	return true
}

func (s *Store) outputHasActiveTag(out OutputID) bool {
	for _, t := range s.tags {
		if t.output == out && t.active {
			return true
		}
	}
	return false
}

func (s *Store) tagSnapshot(t *tag) Tag {
	return Tag{ID: t.id, Name: t.name, Output: t.output, Active: t.active, Layout: t.layout}
}

// Windows

// AddWindow creates a window record for a newly mapped surface. The
// window starts tiled, untagged, and unfocused; rule application and tag
// assignment happen before the first layout pass, so creation itself does
// not trigger one.
func (s *Store) AddWindow(class, title string, geo geometry.Rect) Window {
	s.nextWindow++
	w := &window{
		id:    s.nextWindow,
		class: class,
		title: title,
		geo:   geometry.Rect{Loc: geo.Loc, Size: geometry.ClampSize(geo.Size)},
		tags:  make(map[TagID]struct{}),
	}
	s.windows[w.id] = w
	s.updateWindowGauge()
	s.logger.WithWindow(uint32(w.id)).Debugf("window added: class=%q title=%q", class, title)
	return s.windowSnapshot(w)
}

// RemoveWindow destroys a window record after its surface unmapped. All
// subsequent property queries for the id report absence.
func (s *Store) RemoveWindow(id WindowID) bool {
	w, ok := s.windows[id]
	if !ok {
		return false
	}
	if s.focused == id {
		s.focused = 0
	}
	delete(s.windows, id)
	s.updateWindowGauge()
	s.recomputeForWindow(w)
	return true
}

// Window returns a window snapshot, reporting absence for unknown or
// destroyed ids.
func (s *Store) Window(id WindowID) (Window, bool) {
	w, ok := s.windows[id]
	if !ok {
		return Window{}, false
	}
	return s.windowSnapshot(w), true
}

// Windows returns all windows sorted by id.
func (s *Store) Windows() []Window {
	out := make([]Window, 0, len(s.windows))
	for _, w := range s.windows {
		out = append(out, s.windowSnapshot(w))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// FindWindows returns all windows matching the predicate, sorted by id.
// Used for class/title lookup.
func (s *Store) FindWindows(pred func(Window) bool) []Window {
	var out []Window
	for _, w := range s.windows {
		snap := s.windowSnapshot(w)
		if pred(snap) {
			out = append(out, snap)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// SetWindowTitle updates a window's title. Titles do not affect layout.
func (s *Store) SetWindowTitle(id WindowID, title string) bool {
	w, ok := s.windows[id]
	if !ok {
		return false
	}
	w.title = title
	return true
}

// SetWindowSize resizes a window. Each dimension is optional and is
// validated independently: out-of-range values are clamped so the surface
// never ends in an invalid geometry. The mutation always succeeds for a
// live window.
func (s *Store) SetWindowSize(id WindowID, width, height *int32) bool {
	w, ok := s.windows[id]
	if !ok {
		return false
	}
	size := w.geo.Size
	if width != nil {
		size.W = *width
	}
	if height != nil {
		size.H = *height
	}
	w.geo.Size = geometry.ClampSize(size)
	s.recomputeForWindow(w)
	return true
}

// SetWindowLoc moves a window in the global coordinate space.
func (s *Store) SetWindowLoc(id WindowID, loc geometry.Point) bool {
	w, ok := s.windows[id]
	if !ok {
		return false
	}
	w.geo.Loc = loc
	s.recomputeForWindow(w)
	return true
}

// ApplyGeometry writes layout-computed geometry without re-triggering
// recomputation. Only the layout coordinator calls this.
func (s *Store) ApplyGeometry(id WindowID, geo geometry.Rect) bool {
	w, ok := s.windows[id]
	if !ok {
		return false
	}
	w.geo = geometry.Rect{Loc: geo.Loc, Size: geometry.ClampSize(geo.Size)}
	return true
}

// ToggleWindowTag adds or removes one tag from a window's tag set.
func (s *Store) ToggleWindowTag(id WindowID, tagID TagID) bool {
	w, ok := s.windows[id]
	if !ok {
		return false
	}
	if _, ok := s.tags[tagID]; !ok {
		return false
	}
	before := s.windowOutputs(w)
	if _, has := w.tags[tagID]; has {
		delete(w.tags, tagID)
	} else {
		w.tags[tagID] = struct{}{}
	}
	s.recomputeOutputs(before, s.windowOutputs(w))
	return true
}

// MoveWindowToTag replaces a window's tag set with exactly one tag.
func (s *Store) MoveWindowToTag(id WindowID, tagID TagID) bool {
	w, ok := s.windows[id]
	if !ok {
		return false
	}
	if _, ok := s.tags[tagID]; !ok {
		return false
	}
	before := s.windowOutputs(w)
	w.tags = map[TagID]struct{}{tagID: {}}
	s.recomputeOutputs(before, s.windowOutputs(w))
	return true
}

// SetWindowTags replaces a window's tag set. Unknown tag ids are dropped
// field-by-field rather than failing the whole update.
func (s *Store) SetWindowTags(id WindowID, tagIDs []TagID) bool {
	w, ok := s.windows[id]
	if !ok {
		return false
	}
	before := s.windowOutputs(w)
	w.tags = make(map[TagID]struct{}, len(tagIDs))
	for _, tid := range tagIDs {
		if _, ok := s.tags[tid]; ok {
			w.tags[tid] = struct{}{}
		} else {
			s.logger.Warnf("dropping unknown tag %d from window %d", tid, id)
		}
	}
	s.recomputeOutputs(before, s.windowOutputs(w))
	return true
}

// ToggleFloating flips a window between tiled and floating. Toggling
// twice restores both the original mode and the original geometry: the
// floating rectangle is remembered while tiled, and tiled geometry is
// deterministically reassigned by the layout pass.
func (s *Store) ToggleFloating(id WindowID) bool {
	w, ok := s.windows[id]
	if !ok {
		return false
	}
	switch w.mode {
	case ModeTiled:
		w.mode = ModeFloating
		if w.savedFloating != nil {
			w.geo = *w.savedFloating
			w.savedFloating = nil
		}
	case ModeFloating:
		saved := w.geo
		w.savedFloating = &saved
		w.mode = ModeTiled
	}
	s.recomputeForWindow(w)
	return true
}

// ToggleFullscreen flips the fullscreen overlay. Turning it on while
// maximized switches overlays without touching the saved geometry.
func (s *Store) ToggleFullscreen(id WindowID) bool {
	return s.toggleOverlay(id, OverlayFullscreen)
}

// ToggleMaximized flips the maximized overlay.
func (s *Store) ToggleMaximized(id WindowID) bool {
	return s.toggleOverlay(id, OverlayMaximized)
}

func (s *Store) toggleOverlay(id WindowID, target Overlay) bool {
	w, ok := s.windows[id]
	if !ok {
		return false
	}
	switch w.overlay {
	case target:
		w.overlay = OverlayNone
		if w.savedOverlay != nil {
			w.geo = *w.savedOverlay
			w.savedOverlay = nil
		}
	case OverlayNone:
		saved := w.geo
		w.savedOverlay = &saved
		w.overlay = target
	default:
		// Switching between fullscreen and maximized keeps the geometry
		// saved when the first overlay was entered.
		w.overlay = target
	}
	s.recomputeForWindow(w)
	return true
}

// SetFocus focuses a window, clearing focus from any other. At most one
// window is focused compositor-wide. Passing zero clears focus entirely.
func (s *Store) SetFocus(id WindowID) bool {
	if id == 0 {
		if s.focused != 0 {
			if prev, ok := s.windows[s.focused]; ok {
				prev.focused = false
			}
			s.focused = 0
		}
		return true
	}
	w, ok := s.windows[id]
	if !ok {
		return false
	}
	if prev, ok := s.windows[s.focused]; ok {
		prev.focused = false
	}
	w.focused = true
	s.focused = id
	return true
}

// FocusedWindow returns the focused window, if any.
func (s *Store) FocusedWindow() (Window, bool) {
	if s.focused == 0 {
		return Window{}, false
	}
	return s.Window(s.focused)
}

// VisibleWindows returns the windows rendered on an output: those whose
// tag set intersects the output's active tags, sorted by id. Windows with
// an empty tag set are never visible to layout.
func (s *Store) VisibleWindows(out OutputID) []Window {
	active := make(map[TagID]struct{})
	for _, t := range s.tags {
		if t.output == out && t.active {
			active[t.id] = struct{}{}
		}
	}
	var res []Window
	for _, w := range s.windows {
		for tid := range w.tags {
			if _, ok := active[tid]; ok {
				res = append(res, s.windowSnapshot(w))
				break
			}
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res
}

func (s *Store) windowSnapshot(w *window) Window {
	tags := make([]TagID, 0, len(w.tags))
	for tid := range w.tags {
		tags = append(tags, tid)
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i] < tags[j] })
	return Window{
		ID:      w.id,
		Class:   w.class,
		Title:   w.title,
		Geo:     w.geo,
		Mode:    w.mode,
		Overlay: w.overlay,
		Tags:    tags,
		Focused: w.focused,
	}
}

// windowOutputs returns the set of outputs rendering any of the window's
// tags.
func (s *Store) windowOutputs(w *window) map[OutputID]struct{} {
	res := make(map[OutputID]struct{})
	for tid := range w.tags {
		if t, ok := s.tags[tid]; ok {
			res[t.output] = struct{}{}
		}
	}
	return res
}

func (s *Store) recomputeOutputs(sets ...map[OutputID]struct{}) {
	seen := make(map[OutputID]struct{})
	for _, set := range sets {
		for id := range set {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			s.recompute(id)
		}
	}
}

func (s *Store) updateWindowGauge() {
	if s.metrics != nil {
		s.metrics.SetWindowCount(len(s.windows))
	}
}

func (s *Store) updateTagGauge() {
	if s.metrics != nil {
		s.metrics.SetTagCount(len(s.tags))
	}
}
