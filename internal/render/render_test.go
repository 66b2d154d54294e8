package render

import (
	"strings"
	"testing"

	"github.com/Dicklesworthstone/zenith/internal/model"
	"github.com/Dicklesworthstone/zenith/internal/probe"
	"github.com/Dicklesworthstone/zenith/internal/registry"
	"github.com/Dicklesworthstone/zenith/internal/tsstore"
	"github.com/Dicklesworthstone/zenith/internal/uistate"
	"golang.org/x/sys/unix"
)

func TestPctOf(t *testing.T) {
	if got := pctOf(50, 200); got != 25 {
		t.Errorf("pctOf(50,200) = %v, want 25", got)
	}
	if got := pctOf(1, 0); got != 0 {
		t.Errorf("pctOf(1,0) = %v, want 0 (avoid divide by zero)", got)
	}
}

func TestHumanBytes(t *testing.T) {
	cases := []struct {
		in   float64
		want string
	}{
		{500, "500B"},
		{2048, "2.0KiB"},
		{5 * 1024 * 1024, "5.0MiB"},
	}
	for _, tc := range cases {
		if got := humanBytes(tc.in); got != tc.want {
			t.Errorf("humanBytes(%v) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestTruncateShortStringUnchanged(t *testing.T) {
	if got := truncate("short", 20); got != "short" {
		t.Errorf("truncate() = %q, want unchanged", got)
	}
}

func TestTruncateLongStringAddsEllipsis(t *testing.T) {
	got := truncate("a very long command line indeed", 10)
	if !strings.HasSuffix(got, "…") {
		t.Errorf("truncate() = %q, want to end with an ellipsis", got)
	}
}

func TestGaugeBarClampsAndFormats(t *testing.T) {
	if got := gaugeBar(150, 10); !strings.Contains(got, "100.0%") {
		t.Errorf("gaugeBar(150,10) = %q, want clamped to 100.0%%", got)
	}
	if got := gaugeBar(-10, 10); !strings.Contains(got, "0.0%") {
		t.Errorf("gaugeBar(-10,10) = %q, want clamped to 0.0%%", got)
	}
}

func TestEffectivePctUsesOverrideWhenPresent(t *testing.T) {
	state := uistate.New()
	if got := effectivePct(state, uistate.SectionCPU, 17); got != 17 {
		t.Errorf("effectivePct() = %d, want configured default 17", got)
	}
	state.HeightOverride[uistate.SectionCPU] = 0
	if got := effectivePct(state, uistate.SectionCPU, 17); got != 0 {
		t.Errorf("effectivePct() = %d, want override 0 (minimised)", got)
	}
}

func TestSparklineMarksAbsentBucketsAsSpace(t *testing.T) {
	store := tsstore.New(100)
	store.Register(model.MetricCPUAggregate)
	store.Append(model.MetricCPUAggregate, 0, 50)
	zoom := uistate.ZoomWindow{AnchorTick: 1000, SpanTicks: 10}
	out := sparkline(store, model.MetricCPUAggregate, zoom, 5)
	if out != "     " {
		t.Errorf("sparkline() = %q, want all-space for an out-of-range window", out)
	}
}

type noopProbes struct{}

func (noopProbes) SampleCPU() (model.CPUSample, error)               { return model.CPUSample{}, nil }
func (noopProbes) SampleMemory() (model.MemSample, error)            { return model.MemSample{}, nil }
func (noopProbes) ListNetworkInterfaces() ([]model.NicSample, error) { return nil, nil }
func (noopProbes) ListMounts() ([]model.MountSample, error)          { return nil, nil }
func (noopProbes) SampleBattery() (*model.BatterySample, error)      { return nil, nil }
func (noopProbes) SampleGPUs() ([]model.GPUSample, error)            { return nil, nil }
func (noopProbes) SampleProcesses() ([]model.ProcessSample, error)   { return nil, nil }
func (noopProbes) SendSignal(pid int32, sig unix.Signal) error       { return nil }
func (noopProbes) Renice(pid int32, nice int) error                  { return nil }
func (noopProbes) ResolveUsername(uid uint32) (string, error)        { return "", nil }

var _ probe.Probes = noopProbes{}

func TestFrameShowsPlaceholderWhenTerminalTooSmall(t *testing.T) {
	state := uistate.New()
	store := tsstore.New(10)
	reg := registry.New(noopProbes{})
	out := Frame(state, store, reg, model.Snapshot{}, SectionHeights{}, 10, 5)
	if !strings.Contains(out, "terminal too small") {
		t.Errorf("Frame() = %q, want the too-small placeholder", out)
	}
}
