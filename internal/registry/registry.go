// Package registry is the C4 Process Registry: it reconciles the churning
// process set sampled each tick into stable per-identity records, exposes
// a sorted/filtered view for the process table, and dispatches signal and
// renice actions.
//
// Grounded on the original zenith's zprocess.rs (ZProcess, suspend/resume/
// kill/terminate, ProcessStatusExt) and metrics/mod.rs's ProcessTableSortBy
// enum, reimplemented against gopsutil-backed samples instead of sysinfo.
package registry

import (
	"sort"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/Dicklesworthstone/zenith/internal/model"
	"github.com/Dicklesworthstone/zenith/internal/probe"
)

// SortKey names a process-table column, one-to-one with the original
// zenith's ProcessTableSortBy.
type SortKey int

const (
	SortPid SortKey = iota
	SortUser
	SortPriority
	SortNice
	SortCPU
	SortMemPercent
	SortMem
	SortVirt
	SortStatus
	SortDiskRead
	SortDiskWrite
	SortGPU
	SortCmd
)

// DefaultGraceTicks is how many ticks a record survives after its last
// sighting before eviction, unless focused.
const DefaultGraceTicks = 1

// FocusSlackTicks extends grace for the focused pid only, so a brief probe
// hiccup does not silently drop the pinned row (spec §4.4: "cleared if the
// process truly exits, identity key disappears for > grace + 5 ticks").
const FocusSlackTicks = 5

// Registry owns the live set of ProcessRecords.
type Registry struct {
	probes      probe.Probes
	graceTicks  int64
	totalMemory uint64 // for MemPercent; set by caller each tick

	records map[model.Identity]*model.ProcessRecord
	focus   *model.Identity
}

// New returns an empty Registry delegating actions to probes.
func New(probes probe.Probes) *Registry {
	return &Registry{
		probes:     probes,
		graceTicks: DefaultGraceTicks,
		records:    make(map[model.Identity]*model.ProcessRecord),
	}
}

// SetTotalMemory informs the registry of the current host memory total,
// used to compute each record's memory percentage for SortMemPercent.
func (r *Registry) SetTotalMemory(total uint64) { r.totalMemory = total }

// TotalMemory returns the host memory total last set via SetTotalMemory,
// for callers (the renderer) that need to compute a percentage themselves.
func (r *Registry) TotalMemory() uint64 { return r.totalMemory }

// Update folds a freshly sampled process table into the registry at tick,
// with deltaSeconds the real wall-clock elapsed since the previous tick
// (spec §4.2: rate math uses the real delta, not the tick count).
func (r *Registry) Update(samples []model.ProcessSample, tick int64, deltaSeconds float64) {
	if samples == nil {
		// Half-rate tick: no process data this round. Existing records
		// simply age toward eviction; nothing to reconcile.
		r.evictStale(tick)
		return
	}
	seen := make(map[model.Identity]struct{}, len(samples))
	for _, sample := range samples {
		id := model.Identity{Pid: sample.Pid, StartTime: sample.StartTime}
		seen[id] = struct{}{}
		rec, ok := r.records[id]
		if !ok {
			rec = &model.ProcessRecord{Identity: id, FirstSeen: tick}
			if name, err := r.probes.ResolveUsername(sample.Uid); err == nil {
				rec.Username = name
			}
			r.records[id] = rec
		} else if deltaSeconds > 0 {
			rec.ReadRate = rate(sample.ReadBytesCum, rec.Latest.ReadBytesCum, deltaSeconds)
			rec.WriteRate = rate(sample.WriteBytesCum, rec.Latest.WriteBytesCum, deltaSeconds)
			cpuDelta := (sample.CPUTimeUser + sample.CPUTimeSystem) - (rec.Latest.CPUTimeUser + rec.Latest.CPUTimeSystem)
			instant := 100 * cpuDelta.Seconds() / deltaSeconds
			if instant < 0 {
				instant = 0
			}
			// EWMA(alpha=0.5), per spec §9 default recommendation.
			rec.CPUPercent = 0.5*instant + 0.5*rec.CPUPercent
		}
		rec.Latest = sample
		rec.LastSeenTick = tick
	}

	for id, rec := range r.records {
		if _, ok := seen[id]; ok {
			continue
		}
		age := tick - rec.LastSeenTick
		grace := r.graceTicks
		if rec.Focused {
			grace += FocusSlackTicks
		}
		if age > grace {
			delete(r.records, id)
			if r.focus != nil && *r.focus == id {
				r.focus = nil
			}
		}
	}
}

func (r *Registry) evictStale(tick int64) {
	for id, rec := range r.records {
		age := tick - rec.LastSeenTick
		grace := r.graceTicks
		if rec.Focused {
			grace += FocusSlackTicks
		}
		if age > grace {
			delete(r.records, id)
			if r.focus != nil && *r.focus == id {
				r.focus = nil
			}
		}
	}
}

func rate(cur, prev uint64, deltaSeconds float64) float64 {
	if cur < prev {
		return 0 // counter reset / reuse
	}
	return float64(cur-prev) / deltaSeconds
}

// Focus pins pid as the focused process; it survives normal grace-period
// eviction. At most one pid may be focused at a time.
func (r *Registry) Focus(id model.Identity) bool {
	rec, ok := r.records[id]
	if !ok {
		return false
	}
	if r.focus != nil {
		if old, ok := r.records[*r.focus]; ok {
			old.Focused = false
		}
	}
	rec.Focused = true
	r.focus = &id
	return true
}

// ClearFocus releases the pinned row, if any.
func (r *Registry) ClearFocus() {
	if r.focus == nil {
		return
	}
	if rec, ok := r.records[*r.focus]; ok {
		rec.Focused = false
	}
	r.focus = nil
}

// Focused returns the currently focused record, if any.
func (r *Registry) Focused() *model.ProcessRecord {
	if r.focus == nil {
		return nil
	}
	return r.records[*r.focus]
}

// Mark toggles the "marked" UI flag for multi-select actions.
func (r *Registry) Mark(id model.Identity, marked bool) {
	if rec, ok := r.records[id]; ok {
		rec.Marked = marked
	}
}

// View returns a sorted, filtered, materialised slice of records. Sort is
// stable with pid-ascending as the secondary key. Filter is a case-
// insensitive substring match against command|cmdline|username; an empty
// filter matches everything.
func (r *Registry) View(key SortKey, ascending bool, filter string) []*model.ProcessRecord {
	out := make([]*model.ProcessRecord, 0, len(r.records))
	needle := strings.ToLower(filter)
	for _, rec := range r.records {
		if needle != "" && !matchesFilter(rec, needle) {
			continue
		}
		out = append(out, rec)
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		aLess := lessBy(key, a, b, r.totalMemory)
		bLess := lessBy(key, b, a, r.totalMemory)
		if aLess == bLess {
			// Equal under the primary key: pid ascending tie-break.
			return a.Identity.Pid < b.Identity.Pid
		}
		if ascending {
			return aLess
		}
		return bLess
	})
	return out
}

func matchesFilter(rec *model.ProcessRecord, needleLower string) bool {
	if strings.Contains(strings.ToLower(rec.Latest.Command), needleLower) {
		return true
	}
	if strings.Contains(strings.ToLower(rec.Latest.Cmdline), needleLower) {
		return true
	}
	if strings.Contains(strings.ToLower(rec.Username), needleLower) {
		return true
	}
	return false
}

func lessBy(key SortKey, a, b *model.ProcessRecord, totalMemory uint64) bool {
	switch key {
	case SortPid:
		return a.Identity.Pid < b.Identity.Pid
	case SortUser:
		return a.Username < b.Username
	case SortPriority:
		return a.Latest.Priority < b.Latest.Priority
	case SortNice:
		return a.Latest.Nice < b.Latest.Nice
	case SortCPU:
		return a.CPUPercent < b.CPUPercent
	case SortMemPercent:
		return memPercent(a.Latest.RSSBytes, totalMemory) < memPercent(b.Latest.RSSBytes, totalMemory)
	case SortMem:
		return a.Latest.RSSBytes < b.Latest.RSSBytes
	case SortVirt:
		return a.Latest.VSSBytes < b.Latest.VSSBytes
	case SortStatus:
		return a.Latest.Status < b.Latest.Status
	case SortDiskRead:
		return a.ReadRate < b.ReadRate
	case SortDiskWrite:
		return a.WriteRate < b.WriteRate
	case SortGPU:
		return false // no per-process GPU attribution available from nvidia-smi
	case SortCmd:
		return a.Latest.Cmdline < b.Latest.Cmdline
	default:
		return a.Identity.Pid < b.Identity.Pid
	}
}

func memPercent(rss, total uint64) float64 {
	if total == 0 {
		return 0
	}
	return 100 * float64(rss) / float64(total)
}

// Signal delivers sig to pid via the probe layer, surfacing errors (e.g.
// Permission) to the caller for UI display.
func (r *Registry) Signal(pid int32, sig unix.Signal) error {
	return r.probes.SendSignal(pid, sig)
}

// Renice adjusts pid's nice value by delta (clamped to [-20, 19]).
func (r *Registry) Renice(pid int32, current, delta int) error {
	next := current + delta
	if next < -20 {
		next = -20
	}
	if next > 19 {
		next = 19
	}
	return r.probes.Renice(pid, next)
}

// Len reports how many records are currently tracked (for tests/metrics).
func (r *Registry) Len() int { return len(r.records) }
