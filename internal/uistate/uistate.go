// Package uistate is the C6 UI State Machine: the modal stack, section
// focus/expand/minimise, sort/filter, and the global zoom/pan window.
//
// Grounded directly on spec §4.6's state table; the teacher repo has no
// modal system of its own, so the state machine is written fresh in the
// idiom the teacher uses for its own Update dispatch (plain struct,
// message-driven transitions keyed off msg.String()).
package uistate

import (
	"time"

	"github.com/Dicklesworthstone/zenith/internal/registry"
)

// Mode names one of the modal states from spec §4.6.
type Mode int

const (
	Normal Mode = iota
	Help
	ProcessDetail
	SignalMenu
	FilterInput
	Quit
)

// Section names one of the focusable, expand/minimise-able dashboard
// regions (spec §4.6: "Tab cycles through {CPU, Network, Disk, GPU?,
// Process}").
type Section int

const (
	SectionCPU Section = iota
	SectionNetwork
	SectionDisk
	SectionGPU
	SectionProcess
	sectionCount
)

func (s Section) String() string {
	switch s {
	case SectionCPU:
		return "CPU"
	case SectionNetwork:
		return "Network"
	case SectionDisk:
		return "Disk"
	case SectionGPU:
		return "GPU"
	case SectionProcess:
		return "Process"
	default:
		return "?"
	}
}

// VisibleColumns is the minimum number of rendered buckets a chart keeps
// when zoomed all the way in.
const VisibleColumns = 60

// DefaultSpanTicks is the span a freshly reset ZoomWindow starts at.
const DefaultSpanTicks = 150

// ZoomWindow is (anchor_tick, span_ticks): the time range currently
// displayed. Invariant: 0 <= anchor_tick - span_ticks when panning into
// history.
type ZoomWindow struct {
	AnchorTick int64
	SpanTicks  int64
	// autoScroll is true until the user pans; `reset re-arms it.
	autoScroll bool
}

// Banner is a one-line, auto-dismissing footer error message (spec §7).
type Banner struct {
	Text    string
	ShownAt time.Time
}

// State is the full UI state machine.
type State struct {
	Mode Mode

	FocusedSection Section
	// HeightOverride maps a section to an explicit percentage height set
	// by 'e' (expand) or 'm' (minimise); absent entries use configured
	// defaults.
	HeightOverride map[Section]int

	Zoom ZoomWindow

	SortKey     registry.SortKey
	Ascending   bool
	Filter      string
	filterDraft string

	SignalMenuIndex int

	Banner *Banner

	gotoHistoryFloor  int64 // oldest retained tick, refreshed by caller each tick
	gotoHistoryLatest int64
}

// New returns a fresh Normal-mode state with auto-scroll armed.
func New() *State {
	return &State{
		Mode:           Normal,
		FocusedSection: SectionCPU,
		HeightOverride: make(map[Section]int),
		Zoom:           ZoomWindow{SpanTicks: DefaultSpanTicks, autoScroll: true},
		SortKey:        registry.SortCPU,
		Ascending:      false,
	}
}

// SyncHistoryBounds updates the clamp bounds used by panning; the app
// calls it once per tick, after the tick's samples reach the Store.
func (s *State) SyncHistoryBounds(oldestTick, latestTick int64) {
	s.gotoHistoryFloor = oldestTick
	s.gotoHistoryLatest = latestTick
	if s.Zoom.autoScroll {
		s.Zoom.AnchorTick = latestTick
	}
}

// HandleKey applies one keystroke, returning true if it was consumed by
// the state machine (vs needing to fall through to a section-specific
// handler the caller owns, e.g. process-table row navigation).
func (s *State) HandleKey(key string) bool {
	// Global: 'q' always initiates shutdown, from any mode.
	if key == "q" {
		s.Mode = Quit
		return true
	}

	switch s.Mode {
	case Normal:
		return s.handleNormal(key)
	case Help:
		if key == "h" || key == "esc" {
			s.Mode = Normal
		}
		return true
	case ProcessDetail:
		return s.handleProcessDetail(key)
	case SignalMenu:
		return s.handleSignalMenu(key)
	case FilterInput:
		return s.handleFilterInput(key)
	}
	return false
}

func (s *State) handleNormal(key string) bool {
	switch key {
	case "h":
		s.Mode = Help
	case "enter":
		s.Mode = ProcessDetail
	case "/":
		s.filterDraft = s.Filter
		s.Mode = FilterInput
	case "tab":
		s.FocusedSection = Section((int(s.FocusedSection) + 1) % int(sectionCount))
	case "shift+tab":
		s.FocusedSection = Section((int(s.FocusedSection) - 1 + int(sectionCount)) % int(sectionCount))
	case "e":
		s.expandFocused()
	case "m":
		s.minimiseFocused()
	case "+", "=":
		s.zoomIn()
	case "-":
		s.zoomOut()
	case "left":
		s.panBack()
	case "right":
		s.panForward()
	case "`":
		s.resetZoom()
	case "k":
		s.Mode = SignalMenu
	default:
		return false
	}
	return true
}

func (s *State) handleProcessDetail(key string) bool {
	switch key {
	case "s", "k":
		s.Mode = SignalMenu
	case "esc":
		s.Mode = Normal
	default:
		return false
	}
	return true
}

func (s *State) handleSignalMenu(key string) bool {
	switch key {
	case "enter":
		s.Mode = ProcessDetail
	case "esc":
		s.Mode = ProcessDetail
	case "0", "1", "2", "3", "4", "5", "6", "7", "8", "9":
		s.SignalMenuIndex = int(key[0] - '0')
		s.Mode = ProcessDetail
	default:
		return false
	}
	return true
}

func (s *State) handleFilterInput(key string) bool {
	switch key {
	case "enter":
		s.Filter = s.filterDraft
		s.Mode = Normal
	case "esc":
		s.filterDraft = s.Filter
		s.Mode = Normal
	case "backspace":
		if n := len(s.filterDraft); n > 0 {
			s.filterDraft = s.filterDraft[:n-1]
		}
	default:
		if len(key) == 1 {
			s.filterDraft += key
		}
	}
	return true
}

// FilterDraft exposes the in-progress filter text for rendering the
// FilterInput modal.
func (s *State) FilterDraft() string { return s.filterDraft }

func (s *State) expandFocused() {
	s.HeightOverride[s.FocusedSection] = 100
}

func (s *State) minimiseFocused() {
	s.HeightOverride[s.FocusedSection] = 0
}

// zoomIn halves span_ticks, clamped to a minimum of VisibleColumns.
func (s *State) zoomIn() {
	s.Zoom.SpanTicks /= 2
	if s.Zoom.SpanTicks < VisibleColumns {
		s.Zoom.SpanTicks = VisibleColumns
	}
}

// zoomOut doubles span_ticks, capped at the retained history depth.
func (s *State) zoomOut() {
	s.Zoom.SpanTicks *= 2
	maxSpan := s.gotoHistoryLatest - s.gotoHistoryFloor
	if maxSpan > 0 && s.Zoom.SpanTicks > maxSpan {
		s.Zoom.SpanTicks = maxSpan
	}
}

// panBack freezes the anchor and moves it back a quarter span, clamped to
// the oldest retained tick.
func (s *State) panBack() {
	s.Zoom.autoScroll = false
	s.Zoom.AnchorTick -= s.Zoom.SpanTicks / 4
	floor := s.gotoHistoryFloor + s.Zoom.SpanTicks
	if s.Zoom.AnchorTick < floor {
		s.Zoom.AnchorTick = floor
	}
}

// panForward moves the anchor forward a quarter span; if it reaches the
// latest tick, auto-scroll re-arms.
func (s *State) panForward() {
	s.Zoom.AnchorTick += s.Zoom.SpanTicks / 4
	if s.Zoom.AnchorTick >= s.gotoHistoryLatest {
		s.Zoom.AnchorTick = s.gotoHistoryLatest
		s.Zoom.autoScroll = true
	}
}

// resetZoom snaps back to the latest tick at the default span and
// re-arms auto-scroll.
func (s *State) resetZoom() {
	s.Zoom.SpanTicks = DefaultSpanTicks
	s.Zoom.AnchorTick = s.gotoHistoryLatest
	s.Zoom.autoScroll = true
}

// SetBanner posts a user-visible one-line error, auto-dismissed after 5s
// or on the next keystroke (spec §7).
func (s *State) SetBanner(text string, now time.Time) {
	s.Banner = &Banner{Text: text, ShownAt: now}
}

// DismissBannerIfStale clears the banner if 5s have elapsed or a
// keystroke arrived (the caller passes hadKeystroke for the latter).
func (s *State) DismissBannerIfStale(now time.Time, hadKeystroke bool) {
	if s.Banner == nil {
		return
	}
	if hadKeystroke || now.Sub(s.Banner.ShownAt) >= 5*time.Second {
		s.Banner = nil
	}
}
