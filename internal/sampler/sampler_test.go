package sampler

import (
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"github.com/Dicklesworthstone/zenith/internal/logging"
	"github.com/Dicklesworthstone/zenith/internal/model"
)

// stubProbes returns scripted NIC/mount samples in sequence so tests can
// drive specific delta scenarios across ticks.
type stubProbes struct {
	nics   [][]model.NicSample
	mounts [][]model.MountSample
	call   int
}

func (s *stubProbes) SampleCPU() (model.CPUSample, error)    { return model.CPUSample{}, nil }
func (s *stubProbes) SampleMemory() (model.MemSample, error) { return model.MemSample{}, nil }

func (s *stubProbes) ListNetworkInterfaces() ([]model.NicSample, error) {
	if s.call >= len(s.nics) {
		return nil, nil
	}
	return s.nics[s.call], nil
}

func (s *stubProbes) ListMounts() ([]model.MountSample, error) {
	if s.call >= len(s.mounts) {
		return nil, nil
	}
	return s.mounts[s.call], nil
}

func (s *stubProbes) SampleBattery() (*model.BatterySample, error) { return nil, nil }
func (s *stubProbes) SampleGPUs() ([]model.GPUSample, error)       { return nil, nil }
func (s *stubProbes) SampleProcesses() ([]model.ProcessSample, error) {
	return []model.ProcessSample{}, nil
}
func (s *stubProbes) SendSignal(pid int32, sig unix.Signal) error { return nil }
func (s *stubProbes) Renice(pid int32, nice int) error            { return nil }
func (s *stubProbes) ResolveUsername(uid uint32) (string, error)  { return "", nil }

func (s *stubProbes) advance() { s.call++ }

func newTestLogger(t *testing.T) *logging.Logger {
	t.Helper()
	log, err := logging.New("")
	if err != nil {
		t.Fatalf("logging.New() error = %v", err)
	}
	return log
}

func TestRateFromDelta(t *testing.T) {
	probes := &stubProbes{
		nics: [][]model.NicSample{
			{{Name: "eth0", RxBytes: 1000}},
			{{Name: "eth0", RxBytes: 3000}},
		},
	}
	s := New(probes, time.Second, newTestLogger(t))
	base := time.Unix(0, 0)

	s.Tick(base)
	probes.advance()
	snap := s.Tick(base.Add(1000 * time.Millisecond))

	if len(snap.Nics) != 1 {
		t.Fatalf("got %d nics, want 1", len(snap.Nics))
	}
	if got := snap.Nics[0].RxRate; got != 2000 {
		t.Errorf("RxRate = %v, want 2000 B/s", got)
	}
}

func TestCounterResetClampsToZeroThenRecovers(t *testing.T) {
	probes := &stubProbes{
		nics: [][]model.NicSample{
			{{Name: "eth0", RxBytes: 5000}},
			{{Name: "eth0", RxBytes: 100}}, // reset
			{{Name: "eth0", RxBytes: 200}}, // still below original high-water but above prev
		},
	}
	s := New(probes, time.Second, newTestLogger(t))
	base := time.Unix(0, 0)

	s.Tick(base)
	probes.advance()
	snap := s.Tick(base.Add(time.Second))
	if snap.Nics[0].RxRate != 0 {
		t.Errorf("RxRate = %v, want 0 after counter reset", snap.Nics[0].RxRate)
	}

	probes.advance()
	snap = s.Tick(base.Add(2 * time.Second))
	if snap.Nics[0].RxRate != 100 {
		t.Errorf("RxRate = %v, want 100 once counter recovers", snap.Nics[0].RxRate)
	}
}

func TestHalfRateProcessSamplingSkipsOddTicks(t *testing.T) {
	probes := &stubProbes{}
	s := New(probes, time.Second, newTestLogger(t))
	s.SetHalfRateProcessSampling(true)
	base := time.Unix(0, 0)

	// tick 1 (odd): skipped.
	snap := s.Tick(base)
	if snap.Processes != nil {
		t.Errorf("tick 1: Processes = %v, want nil (half-rate skip)", snap.Processes)
	}
	// tick 2 (even): sampled.
	snap = s.Tick(base.Add(time.Second))
	if snap.Processes == nil {
		t.Error("tick 2: Processes = nil, want sampled (possibly empty) slice")
	}
}

func TestTickNumberAdvancesMonotonically(t *testing.T) {
	probes := &stubProbes{}
	s := New(probes, time.Second, newTestLogger(t))
	base := time.Unix(0, 0)
	for i := int64(1); i <= 3; i++ {
		snap := s.Tick(base.Add(time.Duration(i) * time.Second))
		if snap.Tick != i {
			t.Errorf("tick %d: snap.Tick = %d", i, snap.Tick)
		}
	}
}
