// Package sampler is the C2 Tick Scheduler: it drives the fixed-period
// cadence, invokes the probe layer in cheap-to-expensive order, and folds
// the results plus derived counter rates into a Snapshot.
//
// Grounded on the teacher's internal/sampler/sampler.go (delta-based rate
// derivation for disk/net I/O), generalized to the full probe set and to
// the spec's explicit tick-coalescing and reset-to-zero-with-one-log
// requirements.
package sampler

import (
	"time"

	"github.com/Dicklesworthstone/zenith/internal/logging"
	"github.com/Dicklesworthstone/zenith/internal/model"
	"github.com/Dicklesworthstone/zenith/internal/probe"
)

// Sampler owns the wall-clock cadence and the previous-cumulative state
// needed to derive rates for network, disk, and process I/O counters.
type Sampler struct {
	probes probe.Probes
	period time.Duration
	log    *logging.Logger

	halfRateProcess bool

	tick     int64
	lastWall time.Time

	prevNics   map[string]model.NicSample
	prevMounts map[string]model.MountSample
}

// New returns a Sampler driving probes at the given tick period.
func New(probes probe.Probes, period time.Duration, log *logging.Logger) *Sampler {
	return &Sampler{
		probes:     probes,
		period:     period,
		log:        log,
		prevNics:   make(map[string]model.NicSample),
		prevMounts: make(map[string]model.MountSample),
	}
}

// SetHalfRateProcessSampling toggles sampling the process table every
// other tick instead of every tick (spec §4.2: off by default, elected
// when the process probe exceeds 60% of the tick period).
func (s *Sampler) SetHalfRateProcessSampling(on bool) { s.halfRateProcess = on }

// Period returns the configured tick period.
func (s *Sampler) Period() time.Duration { return s.period }

// Tick advances the tick counter by exactly one (the counter never skips
// values even if a prior tick's work overran the period) and samples
// every probe in cheap-to-expensive order, composing a Snapshot. Individual
// probe failures never abort the tick: the missing field is left at its
// zero value (or nil, for Battery/GPUs/Processes) and recorded in
// Snapshot.Errors so downstream can "carry last known, draw a gap".
func (s *Sampler) Tick(now time.Time) model.Snapshot {
	var deltaSeconds float64
	if !s.lastWall.IsZero() {
		deltaSeconds = now.Sub(s.lastWall).Seconds()
	} else {
		deltaSeconds = s.period.Seconds()
	}
	s.lastWall = now
	s.tick++

	snap := model.Snapshot{Tick: s.tick, WallTime: now}

	// Cheapest first: aggregate CPU/mem, then per-device counters, then
	// the optional external GPU probe, then the most expensive probe
	// (the process table) last, per spec §4.2.
	if cpuSample, err := s.probes.SampleCPU(); err != nil {
		snap.Errors = append(snap.Errors, model.ProbeError{Source: "cpu", Err: err})
	} else {
		snap.CPU = cpuSample
	}

	if memSample, err := s.probes.SampleMemory(); err != nil {
		snap.Errors = append(snap.Errors, model.ProbeError{Source: "memory", Err: err})
	} else {
		snap.Memory = memSample
	}

	if nics, err := s.probes.ListNetworkInterfaces(); err != nil {
		snap.Errors = append(snap.Errors, model.ProbeError{Source: "net", Err: err})
	} else {
		snap.Nics = s.deriveNicRates(nics, deltaSeconds)
	}

	if mounts, err := s.probes.ListMounts(); err != nil {
		snap.Errors = append(snap.Errors, model.ProbeError{Source: "disk", Err: err})
	} else {
		snap.Mounts = s.deriveMountRates(mounts, deltaSeconds)
	}

	if batt, err := s.probes.SampleBattery(); err != nil {
		snap.Errors = append(snap.Errors, model.ProbeError{Source: "battery", Err: err})
	} else {
		snap.Battery = batt
	}

	if gpus, err := s.probes.SampleGPUs(); err != nil {
		snap.Errors = append(snap.Errors, model.ProbeError{Source: "gpu", Err: err})
	} else {
		snap.GPUs = gpus
	}

	if s.shouldSampleProcesses() {
		if procs, err := s.probes.SampleProcesses(); err != nil {
			snap.Errors = append(snap.Errors, model.ProbeError{Source: "process", Err: err})
		} else {
			snap.Processes = procs
		}
	}

	return snap
}

// DeltaSeconds reports the real wall-clock delta between now and the most
// recent Tick (or the tick period before the first Tick). Called with the
// same now just before Tick, it gives the Δt that Tick uses, for callers
// (e.g. the registry) that need the same Δt.
func (s *Sampler) DeltaSeconds(now time.Time) float64 {
	if s.lastWall.IsZero() {
		return s.period.Seconds()
	}
	return now.Sub(s.lastWall).Seconds()
}

func (s *Sampler) shouldSampleProcesses() bool {
	if !s.halfRateProcess {
		return true
	}
	return s.tick%2 == 0
}

func (s *Sampler) deriveNicRates(nics []model.NicSample, deltaSeconds float64) []model.NicSample {
	out := make([]model.NicSample, len(nics))
	for i, n := range nics {
		prev, ok := s.prevNics[n.Name]
		if ok && deltaSeconds > 0 {
			n.RxRate = s.rateWithResetLog("net.rx:"+n.Name, n.RxBytes, prev.RxBytes, deltaSeconds)
			n.TxRate = s.rateWithResetLog("net.tx:"+n.Name, n.TxBytes, prev.TxBytes, deltaSeconds)
		}
		s.prevNics[n.Name] = n
		out[i] = n
	}
	return out
}

func (s *Sampler) deriveMountRates(mounts []model.MountSample, deltaSeconds float64) []model.MountSample {
	out := make([]model.MountSample, len(mounts))
	for i, m := range mounts {
		prev, ok := s.prevMounts[m.Name]
		if ok && deltaSeconds > 0 {
			m.ReadRate = s.rateWithResetLog("disk.read:"+m.Name, m.ReadBytesCum, prev.ReadBytesCum, deltaSeconds)
			m.WriteRate = s.rateWithResetLog("disk.write:"+m.Name, m.WriteBytesCum, prev.WriteBytesCum, deltaSeconds)
		}
		s.prevMounts[m.Name] = m
		out[i] = m
	}
	return out
}

// rateWithResetLog computes (cur-prev)/dt, clamping to 0 on a counter reset
// (device re-enumeration or wrap) and logging one warning for each reset
// of each source.
func (s *Sampler) rateWithResetLog(source string, cur, prev uint64, deltaSeconds float64) float64 {
	if cur < prev {
		s.log.Warn("counter reset detected on %s, rate clamped to 0", source)
		return 0
	}
	return float64(cur-prev) / deltaSeconds
}
