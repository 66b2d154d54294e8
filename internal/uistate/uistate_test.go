package uistate

import (
	"testing"
	"time"
)

func TestZoomInClampsToVisibleColumns(t *testing.T) {
	s := New()
	s.Zoom.SpanTicks = VisibleColumns + 10
	s.zoomIn()
	if s.Zoom.SpanTicks != VisibleColumns {
		t.Errorf("SpanTicks = %d, want clamped to %d", s.Zoom.SpanTicks, VisibleColumns)
	}
	s.zoomIn()
	if s.Zoom.SpanTicks != VisibleColumns {
		t.Errorf("SpanTicks = %d, want to stay clamped at %d", s.Zoom.SpanTicks, VisibleColumns)
	}
}

func TestZoomOutCapsAtRetainedDepth(t *testing.T) {
	s := New()
	s.SyncHistoryBounds(0, 100)
	s.Zoom.SpanTicks = 80
	s.zoomOut()
	if s.Zoom.SpanTicks != 100 {
		t.Errorf("SpanTicks = %d, want capped at retained depth 100", s.Zoom.SpanTicks)
	}
}

func TestPanBackClampsToOldestRetainedTick(t *testing.T) {
	s := New()
	s.SyncHistoryBounds(1000, 2000)
	s.Zoom.SpanTicks = 400
	s.Zoom.AnchorTick = 1010 // just past the floor
	s.panBack()
	floor := int64(1000) + 400
	if s.Zoom.AnchorTick < floor {
		t.Errorf("AnchorTick = %d, want clamped to floor %d", s.Zoom.AnchorTick, floor)
	}
	if s.Zoom.autoScroll {
		t.Error("panBack should disarm auto-scroll")
	}
}

func TestPanForwardRearmsAutoScrollAtLatest(t *testing.T) {
	s := New()
	s.SyncHistoryBounds(0, 1000)
	s.Zoom.autoScroll = false
	s.Zoom.SpanTicks = 400
	s.Zoom.AnchorTick = 999
	s.panForward()
	if s.Zoom.AnchorTick != 1000 {
		t.Errorf("AnchorTick = %d, want clamped to latest 1000", s.Zoom.AnchorTick)
	}
	if !s.Zoom.autoScroll {
		t.Error("panForward should re-arm auto-scroll once it reaches latest")
	}
}

func TestAutoScrollFollowsLatestUntilUserPans(t *testing.T) {
	s := New()
	s.SyncHistoryBounds(0, 500)
	if s.Zoom.AnchorTick != 500 {
		t.Errorf("AnchorTick = %d, want to track latest (500) while auto-scroll is armed", s.Zoom.AnchorTick)
	}
	s.SyncHistoryBounds(0, 600)
	if s.Zoom.AnchorTick != 600 {
		t.Errorf("AnchorTick = %d, want to track latest (600)", s.Zoom.AnchorTick)
	}
	s.panBack()
	s.SyncHistoryBounds(0, 700)
	if s.Zoom.AnchorTick == 700 {
		t.Error("AnchorTick should stop tracking latest once the user has panned")
	}
}

func TestModalTransitions(t *testing.T) {
	cases := []struct {
		name string
		from Mode
		key  string
		want Mode
	}{
		{"normal help", Normal, "h", Help},
		{"help back to normal via h", Help, "h", Normal},
		{"help back to normal via esc", Help, "esc", Normal},
		{"normal enter opens detail", Normal, "enter", ProcessDetail},
		{"detail esc back to normal", ProcessDetail, "esc", Normal},
		{"detail k opens signal menu", ProcessDetail, "k", SignalMenu},
		{"signal menu esc back to detail", SignalMenu, "esc", ProcessDetail},
		{"signal menu digit back to detail", SignalMenu, "9", ProcessDetail},
		{"normal slash opens filter", Normal, "/", FilterInput},
		{"filter enter commits and returns", FilterInput, "enter", Normal},
		{"filter esc discards and returns", FilterInput, "esc", Normal},
		{"q quits from normal", Normal, "q", Quit},
		{"q quits from help", Help, "q", Quit},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := New()
			s.Mode = tc.from
			s.HandleKey(tc.key)
			if s.Mode != tc.want {
				t.Errorf("from %v key %q: Mode = %v, want %v", tc.from, tc.key, s.Mode, tc.want)
			}
		})
	}
}

func TestFilterInputEditing(t *testing.T) {
	s := New()
	s.Mode = Normal
	s.HandleKey("/")
	if s.Mode != FilterInput {
		t.Fatalf("Mode = %v, want FilterInput", s.Mode)
	}
	for _, k := range []string{"n", "g", "i", "n", "x"} {
		s.HandleKey(k)
	}
	if s.FilterDraft() != "nginx" {
		t.Errorf("FilterDraft() = %q, want %q", s.FilterDraft(), "nginx")
	}
	s.HandleKey("backspace")
	if s.FilterDraft() != "ngin" {
		t.Errorf("FilterDraft() = %q, want %q after backspace", s.FilterDraft(), "ngin")
	}
	s.HandleKey("enter")
	if s.Filter != "ngin" {
		t.Errorf("Filter = %q, want committed draft %q", s.Filter, "ngin")
	}
}

func TestFilterInputEscDiscardsDraft(t *testing.T) {
	s := New()
	s.Filter = "original"
	s.HandleKey("/")
	s.HandleKey("x")
	s.HandleKey("esc")
	if s.Filter != "original" {
		t.Errorf("Filter = %q, want unchanged %q after esc", s.Filter, "original")
	}
}

func TestTabCyclesSectionsBothDirections(t *testing.T) {
	s := New()
	if s.FocusedSection != SectionCPU {
		t.Fatalf("initial focus = %v, want SectionCPU", s.FocusedSection)
	}
	s.HandleKey("tab")
	if s.FocusedSection != SectionNetwork {
		t.Errorf("after tab: %v, want SectionNetwork", s.FocusedSection)
	}
	s.HandleKey("shift+tab")
	if s.FocusedSection != SectionCPU {
		t.Errorf("after shift+tab: %v, want back to SectionCPU", s.FocusedSection)
	}
}

func TestExpandAndMinimiseSetHeightOverride(t *testing.T) {
	s := New()
	s.HandleKey("e")
	if s.HeightOverride[SectionCPU] != 100 {
		t.Errorf("expand: HeightOverride[CPU] = %d, want 100", s.HeightOverride[SectionCPU])
	}
	s.HandleKey("m")
	if s.HeightOverride[SectionCPU] != 0 {
		t.Errorf("minimise: HeightOverride[CPU] = %d, want 0", s.HeightOverride[SectionCPU])
	}
}

func TestBannerDismissesOnKeystrokeOrTimeout(t *testing.T) {
	s := New()
	now := time.Unix(1000, 0)
	s.SetBanner("probe failed", now)
	s.DismissBannerIfStale(now.Add(time.Second), false)
	if s.Banner == nil {
		t.Fatal("banner dismissed too early")
	}
	s.DismissBannerIfStale(now, true)
	if s.Banner != nil {
		t.Error("banner should dismiss on keystroke")
	}

	s.SetBanner("probe failed again", now)
	s.DismissBannerIfStale(now.Add(6*time.Second), false)
	if s.Banner != nil {
		t.Error("banner should dismiss after 5s timeout")
	}
}
