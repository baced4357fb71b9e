package layout

import (
	"reflect"
	"testing"

	"github.com/waycrest/waycrest/pkg/geometry"
	"github.com/waycrest/waycrest/pkg/store"
	"github.com/waycrest/waycrest/pkg/telemetry"
)

var testRegion = geometry.NewRect(0, 0, 1920, 1080)

func TestComputeCoversRegion(t *testing.T) {
	kinds := []store.LayoutKind{
		store.LayoutMasterStack,
		store.LayoutEvenColumn,
		store.LayoutEvenRow,
		store.LayoutGrid,
	}

	for _, kind := range kinds {
		for n := 1; n <= 7; n++ {
			rects := Compute(kind, testRegion, n)
			if len(rects) != n {
				t.Fatalf("%s/%d: got %d rects", kind, n, len(rects))
			}

			var area int64
			for i, r := range rects {
				if r.Size.W < 1 || r.Size.H < 1 {
					t.Errorf("%s/%d: rect %d has degenerate size %+v", kind, n, i, r.Size)
				}
				if r.Loc.X < testRegion.Loc.X || r.Loc.Y < testRegion.Loc.Y ||
					r.Right() > testRegion.Right() || r.Bottom() > testRegion.Bottom() {
					t.Errorf("%s/%d: rect %d escapes the region: %+v", kind, n, i, r)
				}
				for j := i + 1; j < len(rects); j++ {
					if r.Intersects(rects[j]) {
						t.Errorf("%s/%d: rects %d and %d overlap", kind, n, i, j)
					}
				}
				area += int64(r.Size.W) * int64(r.Size.H)
			}

			want := int64(testRegion.Size.W) * int64(testRegion.Size.H)
			if area != want {
				t.Errorf("%s/%d: covered area %d, want %d", kind, n, area, want)
			}
		}
	}
}

func TestComputeDeterministic(t *testing.T) {
	for n := 1; n <= 5; n++ {
		a := Compute(store.LayoutGrid, testRegion, n)
		b := Compute(store.LayoutGrid, testRegion, n)
		if !reflect.DeepEqual(a, b) {
			t.Errorf("n=%d: identical inputs produced different layouts", n)
		}
	}
}

func TestMasterStackShape(t *testing.T) {
	rects := Compute(store.LayoutMasterStack, testRegion, 3)

	if rects[0].Size.W != 960 || rects[0].Size.H != 1080 {
		t.Errorf("master = %+v, want left half", rects[0])
	}
	if rects[1].Loc.X != 960 || rects[2].Loc.X != 960 {
		t.Error("stack windows not in the right half")
	}
	if rects[1].Size.H+rects[2].Size.H != 1080 {
		t.Error("stack does not fill the output height")
	}
}

func TestComputeSingleWindowFills(t *testing.T) {
	for _, kind := range []store.LayoutKind{store.LayoutMasterStack, store.LayoutGrid} {
		rects := Compute(kind, testRegion, 1)
		if rects[0] != testRegion {
			t.Errorf("%s: single window got %+v, want full region", kind, rects[0])
		}
	}
}

func TestComputeZeroWindows(t *testing.T) {
	if rects := Compute(store.LayoutMasterStack, testRegion, 0); rects != nil {
		t.Errorf("Compute(0) = %v, want nil", rects)
	}
}

func TestComputeOffsetRegion(t *testing.T) {
	// A second output positioned right of a 1920-wide one.
	region := geometry.NewRect(1920, 0, 1280, 1024)
	rects := Compute(store.LayoutEvenColumn, region, 2)

	for i, r := range rects {
		if r.Loc.X < 1920 {
			t.Errorf("rect %d at x=%d leaked onto the neighboring output", i, r.Loc.X)
		}
	}
	if rects[1].Right() != 3200 {
		t.Errorf("last column ends at %d, want 3200", rects[1].Right())
	}
}

func newLayoutFixture(t *testing.T) (*store.Store, *Coordinator, store.Output, store.Tag) {
	t.Helper()
	s := store.New(telemetry.Nop(), nil)
	c := NewCoordinator(s, telemetry.Nop(), nil)
	s.SetRecomputer(c)

	out := s.AddOutput("HDMI-A-1", geometry.Point{}, geometry.Size{W: 1920, H: 1080})
	tag, ok := s.AddTag("1", out.ID)
	if !ok {
		t.Fatal("AddTag failed")
	}
	return s, c, out, tag
}

func TestCoordinatorIdempotent(t *testing.T) {
	s, c, out, tag := newLayoutFixture(t)

	var ids []store.WindowID
	for i := 0; i < 3; i++ {
		w := s.AddWindow("term", "", geometry.NewRect(0, 0, 100, 100))
		s.ToggleWindowTag(w.ID, tag.ID)
		ids = append(ids, w.ID)
	}

	snapshot := func() []geometry.Rect {
		var rects []geometry.Rect
		for _, id := range ids {
			w, _ := s.Window(id)
			rects = append(rects, w.Geo)
		}
		return rects
	}

	first := snapshot()
	c.Recompute(out.ID)
	c.Recompute(out.ID)
	if got := snapshot(); !reflect.DeepEqual(got, first) {
		t.Errorf("repeated recompute moved windows: %v -> %v", first, got)
	}
}

func TestCoordinatorSkipsFloatingAndFullscreensOverlay(t *testing.T) {
	s, _, out, tag := newLayoutFixture(t)

	floating := s.AddWindow("float", "", geometry.NewRect(50, 60, 300, 200))
	s.ToggleWindowTag(floating.ID, tag.ID)
	s.ToggleFloating(floating.ID)
	floatGeo, _ := s.Window(floating.ID)

	full := s.AddWindow("video", "", geometry.NewRect(0, 0, 100, 100))
	s.ToggleWindowTag(full.ID, tag.ID)
	s.ToggleFullscreen(full.ID)

	tiled := s.AddWindow("term", "", geometry.NewRect(0, 0, 100, 100))
	s.ToggleWindowTag(tiled.ID, tag.ID)

	gotFloat, _ := s.Window(floating.ID)
	if gotFloat.Geo != floatGeo.Geo {
		t.Errorf("floating window moved by layout: %+v", gotFloat.Geo)
	}

	gotFull, _ := s.Window(full.ID)
	if gotFull.Geo != out.Region() {
		t.Errorf("fullscreen window geo = %+v, want full output", gotFull.Geo)
	}

	gotTiled, _ := s.Window(tiled.ID)
	if gotTiled.Geo != out.Region() {
		t.Errorf("sole tiled window geo = %+v, want full output", gotTiled.Geo)
	}
}

func TestCoordinatorUsesLowestActiveTagLayout(t *testing.T) {
	s, _, out, first := newLayoutFixture(t)
	second, _ := s.AddTag("2", out.ID)
	s.ToggleTagActive(second.ID)

	s.SetTagLayout(first.ID, store.LayoutEvenRow)
	s.SetTagLayout(second.ID, store.LayoutEvenColumn)

	a := s.AddWindow("a", "", geometry.NewRect(0, 0, 10, 10))
	s.ToggleWindowTag(a.ID, first.ID)
	b := s.AddWindow("b", "", geometry.NewRect(0, 0, 10, 10))
	s.ToggleWindowTag(b.ID, second.ID)

	// even_row from the lowest-id active tag wins: windows stack
	// vertically, full width.
	ga, _ := s.Window(a.ID)
	gb, _ := s.Window(b.ID)
	if ga.Geo.Size.W != 1920 || gb.Geo.Size.W != 1920 {
		t.Errorf("widths %d/%d, want full-width rows from even_row", ga.Geo.Size.W, gb.Geo.Size.W)
	}
	if ga.Geo.Loc.Y == gb.Geo.Loc.Y {
		t.Error("rows share a y coordinate")
	}
}
