// Package render is the C7 Renderer Driver: a pure function of (UI state,
// Store, Registry, latest Snapshot, terminal size) that composes one
// visible frame.
//
// Grounded on the teacher's internal/ui/ui.go (card/gaugeBar/renderTable,
// lipgloss.JoinHorizontal/Vertical), generalized from the teacher's fixed
// two-row card grid into percentage-driven section rectangles plus a
// zoomed-series sparkline (no teacher analogue for the latter — drawn in
// the same terse style as gaugeBar, just generalized to a time series).
package render

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	runewidth "github.com/mattn/go-runewidth"

	"github.com/Dicklesworthstone/zenith/internal/model"
	"github.com/Dicklesworthstone/zenith/internal/registry"
	"github.com/Dicklesworthstone/zenith/internal/tsstore"
	"github.com/Dicklesworthstone/zenith/internal/uistate"
)

// SectionHeights carries the configured minimum percentage height for
// each dashboard section (spec §6's -c/-n/-d/-p/-g flags).
type SectionHeights struct {
	CPU     int
	Network int
	Disk    int
	Process int
	GPU     int
	GPUOn   bool
}

const (
	minCols = 50
	minRows = 12
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("45"))
	subtleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("81")).Bold(true)
	focusStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("212")).Bold(true)
	greyStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("238"))
	bannerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	cardStyle   = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("60")).
			Padding(0, 1)
	focusedCardStyle = cardStyle.Copy().BorderForeground(lipgloss.Color("212"))
	modalStyle       = lipgloss.NewStyle().
				Border(lipgloss.DoubleBorder()).
				BorderForeground(lipgloss.Color("212")).
				Padding(1, 2)

	gaugeFill  = "█"
	gaugeEmpty = "░"
	sparkRamp  = []rune("▁▂▃▄▅▆▇█")
)

// Frame renders the full dashboard as a single string.
func Frame(state *uistate.State, store *tsstore.Store, reg *registry.Registry, latest model.Snapshot, heights SectionHeights, width, height int) string {
	if width < minCols || height < minRows {
		return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center, "terminal too small")
	}

	header := renderHeader(latest, width)
	footer := renderFooter(state, width)
	bodyRows := height - lipgloss.Height(header) - lipgloss.Height(footer)
	if bodyRows < 1 {
		bodyRows = 1
	}

	body := renderBody(state, store, reg, latest, heights, width, bodyRows)

	frame := lipgloss.JoinVertical(lipgloss.Left, header, body, footer)

	switch state.Mode {
	case uistate.Help:
		return overlay(helpModal(), width, height)
	case uistate.SignalMenu:
		return overlay(signalMenuModal(reg), width, height)
	case uistate.ProcessDetail:
		return overlay(processDetailModal(reg), width, height)
	case uistate.FilterInput:
		return overlay(filterModal(state.FilterDraft()), width, height)
	}
	return frame
}

func renderHeader(latest model.Snapshot, width int) string {
	left := titleStyle.Render("zenith") + "  " + subtleStyle.Render(latest.WallTime.Format("Mon Jan 2 15:04:05"))
	return lipgloss.NewStyle().Width(width).Render(left)
}

func renderFooter(state *uistate.State, width int) string {
	if state.Banner != nil {
		return bannerStyle.Render(truncate(state.Banner.Text, width))
	}
	hint := "q quit · h help · Tab section · / filter · +/- zoom · ←/→ pan · ` reset"
	return subtleStyle.Render(truncate(hint, width))
}

type sectionSpec struct {
	name   uistate.Section
	pct    int
	render func(rows, cols int) string
}

func renderBody(state *uistate.State, store *tsstore.Store, reg *registry.Registry, latest model.Snapshot, heights SectionHeights, width, rows int) string {
	specs := []sectionSpec{
		{uistate.SectionCPU, effectivePct(state, uistate.SectionCPU, heights.CPU), func(r, c int) string {
			return cpuSection(state, store, latest, r, c, state.FocusedSection == uistate.SectionCPU)
		}},
		{uistate.SectionNetwork, effectivePct(state, uistate.SectionNetwork, heights.Network), func(r, c int) string {
			return networkSection(state, store, latest, r, c, state.FocusedSection == uistate.SectionNetwork)
		}},
		{uistate.SectionDisk, effectivePct(state, uistate.SectionDisk, heights.Disk), func(r, c int) string {
			return diskSection(state, store, latest, r, c, state.FocusedSection == uistate.SectionDisk)
		}},
		{uistate.SectionProcess, effectivePct(state, uistate.SectionProcess, heights.Process), func(r, c int) string {
			return processSection(state, reg, r, c, state.FocusedSection == uistate.SectionProcess)
		}},
	}
	if heights.GPUOn {
		specs = append(specs, sectionSpec{uistate.SectionGPU, effectivePct(state, uistate.SectionGPU, heights.GPU), func(r, c int) string {
			return gpuSection(latest, r, c, state.FocusedSection == uistate.SectionGPU)
		}})
	}

	visible := make([]sectionSpec, 0, len(specs))
	sum := 0
	for _, sp := range specs {
		if sp.pct > 0 {
			visible = append(visible, sp)
			sum += sp.pct
		}
	}
	if sum == 0 || len(visible) == 0 {
		return lipgloss.Place(width, rows, lipgloss.Center, lipgloss.Center, "all sections hidden")
	}

	rendered := make([]string, 0, len(visible))
	rowsUsed := 0
	for i, sp := range visible {
		var r int
		if i == len(visible)-1 {
			r = rows - rowsUsed // give the remainder to the last section
		} else {
			r = rows * sp.pct / sum
		}
		if r < 1 {
			r = 1
		}
		rowsUsed += r
		rendered = append(rendered, sp.render(r, width))
	}
	return lipgloss.JoinVertical(lipgloss.Left, rendered...)
}

// effectivePct returns the height override for a section if the user has
// expanded (100) or minimised (0) it, else the configured default.
func effectivePct(state *uistate.State, s uistate.Section, configured int) int {
	if v, ok := state.HeightOverride[s]; ok {
		return v
	}
	return configured
}

func sectionCardStyle(focused bool) lipgloss.Style {
	if focused {
		return focusedCardStyle
	}
	return cardStyle
}

func cpuSection(state *uistate.State, store *tsstore.Store, latest model.Snapshot, rows, cols int, focused bool) string {
	title := "CPU / Memory"
	if hasProbeError(latest, "cpu") {
		return card(title, greyStyle.Render("insufficient privileges or probe unavailable"), rows, cols, focused)
	}
	bar := gaugeBar(latest.CPU.Aggregate, 24)
	spark := sparkline(store, model.MetricCPUAggregate, state.Zoom, minInt(cols-4, 60))
	memPct := pctOf(latest.Memory.UsedBytes, latest.Memory.TotalBytes)
	body := fmt.Sprintf("%s  load %.2f %.2f %.2f\n%s\nMem: %.1f%%",
		bar, latest.CPU.Load1, latest.CPU.Load5, latest.CPU.Load15, spark, memPct)
	return card(title, body, rows, cols, focused)
}

func networkSection(state *uistate.State, store *tsstore.Store, latest model.Snapshot, rows, cols int, focused bool) string {
	if hasProbeError(latest, "net") {
		return card("Network", greyStyle.Render("probe unavailable"), rows, cols, focused)
	}
	var b strings.Builder
	spark := sparkline(store, model.MetricNetRxRate, state.Zoom, minInt(cols-4, 60))
	fmt.Fprintf(&b, "rx %s\n", spark)
	for i, n := range latest.Nics {
		if i >= maxInt(rows-3, 1) {
			break
		}
		fmt.Fprintf(&b, "%-10s rx %8s/s  tx %8s/s\n", truncate(n.Name, 10), humanBytes(n.RxRate), humanBytes(n.TxRate))
	}
	return card("Network", strings.TrimRight(b.String(), "\n"), rows, cols, focused)
}

func diskSection(state *uistate.State, store *tsstore.Store, latest model.Snapshot, rows, cols int, focused bool) string {
	if hasProbeError(latest, "disk") {
		return card("Disk", greyStyle.Render("probe unavailable"), rows, cols, focused)
	}
	var b strings.Builder
	spark := sparkline(store, model.MetricDiskReadRate, state.Zoom, minInt(cols-4, 60))
	fmt.Fprintf(&b, "read %s\n", spark)
	for i, m := range latest.Mounts {
		if i >= maxInt(rows-3, 1) {
			break
		}
		fmt.Fprintf(&b, "%-14s %5.1f%% free  r %6s/s  w %6s/s\n",
			truncate(m.Name, 14), pctOf(m.AvailBytes, m.TotalBytes), humanBytes(m.ReadRate), humanBytes(m.WriteRate))
	}
	return card("Disk", strings.TrimRight(b.String(), "\n"), rows, cols, focused)
}

func gpuSection(latest model.Snapshot, rows, cols int, focused bool) string {
	if hasProbeError(latest, "gpu") || len(latest.GPUs) == 0 {
		return card("GPU", greyStyle.Render("no NVIDIA GPU detected"), rows, cols, focused)
	}
	var b strings.Builder
	for i, g := range latest.GPUs {
		if i >= maxInt(rows-2, 1) {
			break
		}
		fmt.Fprintf(&b, "%-10s %s %3.0f°C enc %3.0f%% dec %3.0f%%\n",
			truncate(g.Name, 10), gaugeBar(g.UtilPercent, 16), g.TempC, g.EncoderUtil, g.DecoderUtil)
	}
	return card("GPU", strings.TrimRight(b.String(), "\n"), rows, cols, focused)
}

func processSection(state *uistate.State, reg *registry.Registry, rows, cols int, focused bool) string {
	recs := reg.View(state.SortKey, state.Ascending, state.Filter)
	total := reg.TotalMemory()
	title := fmt.Sprintf("Processes (%d)", len(recs))
	if state.Filter != "" {
		title += " filter:" + state.Filter
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%6s %-10s %4s %4s %6s %6s %s\n", "pid", "user", "pri", "ni", "cpu%", "mem%", "command")
	limit := maxInt(rows-3, 1)
	for i, r := range recs {
		if i >= limit {
			break
		}
		mark := " "
		if r.Focused {
			mark = "*"
		}
		fmt.Fprintf(&b, "%s%5d %-10s %4d %4d %6.1f %6.1f %s\n",
			mark, r.Identity.Pid, truncate(r.Username, 10), r.Latest.Priority, r.Latest.Nice,
			r.CPUPercent, pctOf(r.Latest.RSSBytes, total), truncate(r.Latest.Cmdline, 40))
	}
	return card(title, strings.TrimRight(b.String(), "\n"), rows, cols, focused)
}

func hasProbeError(snap model.Snapshot, source string) bool {
	for _, e := range snap.Errors {
		if e.Source == source {
			return true
		}
	}
	return false
}

func card(title, body string, rows, cols int, focused bool) string {
	style := sectionCardStyle(focused)
	innerW := cols - 4
	if innerW < 1 {
		innerW = 1
	}
	innerH := rows - 2
	if innerH < 1 {
		innerH = 1
	}
	label := labelStyle.Render(title)
	if focused {
		label = focusStyle.Render(title)
	}
	content := label + "\n" + body
	return style.Width(innerW).Height(innerH).Render(content)
}

func gaugeBar(pct float64, width int) string {
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	filled := int((pct / 100) * float64(width))
	if filled > width {
		filled = width
	}
	return fmt.Sprintf("[%s%s] %5.1f%%",
		strings.Repeat(gaugeFill, filled), strings.Repeat(gaugeEmpty, width-filled), pct)
}

// sparkline draws `cols` bucket-reduced cells from the zoomed window of
// id's series, using the bucket average, with a distinct glyph for
// Absent buckets (a gap, per spec §4.7).
func sparkline(store *tsstore.Store, id model.MetricID, zoom uistate.ZoomWindow, cols int) string {
	if cols <= 0 {
		cols = 1
	}
	buckets := store.Range(id, zoom.AnchorTick, zoom.SpanTicks, cols)
	var max float64
	for _, b := range buckets {
		if !b.Absent && b.Max > max {
			max = b.Max
		}
	}
	var b strings.Builder
	for _, bucket := range buckets {
		if bucket.Absent {
			b.WriteRune(' ')
			continue
		}
		if max <= 0 {
			b.WriteRune(sparkRamp[0])
			continue
		}
		idx := int(bucket.Avg / max * float64(len(sparkRamp)-1))
		if idx < 0 {
			idx = 0
		}
		if idx >= len(sparkRamp) {
			idx = len(sparkRamp) - 1
		}
		b.WriteRune(sparkRamp[idx])
	}
	return b.String()
}

func overlay(modal string, width, height int) string {
	return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center, modal)
}

func helpModal() string {
	text := strings.Join([]string{
		"zenith — keys",
		"",
		"q          quit",
		"h          toggle help",
		"Tab/S-Tab  cycle section focus",
		"e / m      expand / minimise focused section",
		"enter      open process detail for selected row",
		"k          open signal menu (also s in process detail)",
		"/          edit filter",
		"+ / -      zoom in / out",
		"←/→        pan history",
		"`          reset zoom, re-arm auto-scroll",
		"PgUp/PgDn  no effect (the process table does not page)",
	}, "\n")
	return modalStyle.Render(text)
}

func signalMenuModal(reg *registry.Registry) string {
	f := reg.Focused()
	pid := int32(-1)
	if f != nil {
		pid = f.Identity.Pid
	}
	text := fmt.Sprintf("Send signal to pid %d\n\n1 HUP  2 INT  3 QUIT  9 KILL  other digits TERM\n\nenter confirm · esc cancel", pid)
	return modalStyle.Render(text)
}

func processDetailModal(reg *registry.Registry) string {
	f := reg.Focused()
	if f == nil {
		return modalStyle.Render("no process focused")
	}
	text := fmt.Sprintf("pid %d  (%s)\nuser: %s\ncmd: %s\ncpu: %.1f%%  rss: %s\nread %s/s  write %s/s\n\ns: signal menu · esc: close",
		f.Identity.Pid, string(f.Latest.Status), f.Username, f.Latest.Cmdline, f.CPUPercent,
		humanBytes(float64(f.Latest.RSSBytes)), humanBytes(f.ReadRate), humanBytes(f.WriteRate))
	return modalStyle.Render(text)
}

func filterModal(draft string) string {
	return modalStyle.Render("filter: " + draft + "█")
}

func truncate(s string, n int) string {
	if runewidth.StringWidth(s) <= n {
		return s
	}
	return runewidth.Truncate(s, n-1, "…")
}

func pctOf(used, total uint64) float64 {
	if total == 0 {
		return 0
	}
	return 100 * float64(used) / float64(total)
}

func humanBytes(b float64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%.0fB", b)
	}
	div, exp := float64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	suffixes := "KMGTPE"
	return fmt.Sprintf("%.1f%ciB", b/div, suffixes[exp])
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
