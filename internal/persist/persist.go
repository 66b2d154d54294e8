// Package persist is the C5 Persistence Engine: append-only, compressed,
// length-prefixed segments of Snapshot records under a history directory,
// loaded back into the Time-Series Store (never the Process Registry) on
// startup.
//
// Grounded on the original zenith's histogram.rs (load_zenith_store /
// save_histograms), generalized from its single bincode blob + header
// file into the spec's per-segment binary header with a schema hash and
// byte-cap retention.
package persist

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"hash/fnv"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/klauspost/compress/flate"

	"github.com/Dicklesworthstone/zenith/internal/logging"
	"github.com/Dicklesworthstone/zenith/internal/model"
	"github.com/Dicklesworthstone/zenith/internal/zerr"
)

const (
	magic         = "ZNTH"
	formatVersion = uint16(1)
	headerSize    = 4 + 2 + 4 + 8 + 8 + 4 // magic + version + tick_period_ms + schema_hash + first_tick_wall + count
)

// Header is the fixed-size prefix of every segment file.
type Header struct {
	Magic         [4]byte
	FormatVersion uint16
	TickPeriodMs  uint32
	SchemaHash    uint64
	FirstTickWall int64
	Count         uint32
}

// SchemaHash computes a deterministic FNV-1a hash over the registered
// metric ids sorted lexically, each tagged with a one-byte encoding kind,
// so the result does not depend on the order of ids (see DESIGN.md).
func SchemaHash(ids []model.MetricID) uint64 {
	sorted := append([]model.MetricID(nil), ids...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	h := fnv.New64a()
	for _, id := range sorted {
		h.Write([]byte(id))
		h.Write([]byte{0}) // encoding-kind tag: all registered series are float64 gauges/rates
	}
	return h.Sum64()
}

// Engine owns the on-disk directory and the in-memory append buffer fed
// by the Sampler between flushes.
type Engine struct {
	dir           string
	tickPeriod    time.Duration
	schemaHash    uint64
	flushInterval time.Duration
	byteCap       int64
	disabled      bool
	log           *logging.Logger

	pending []model.Snapshot
	queue   chan model.Snapshot // bounded: Sampler -> flush worker
}

// Options configures a new Engine.
type Options struct {
	Dir           string
	TickPeriod    time.Duration
	SchemaHash    uint64
	FlushInterval time.Duration // default 30s
	ByteCap       int64         // default 64 MiB
	Disabled      bool          // --disable-history
	QueueCapacity int           // >= 2*(flush_interval/tick_period)
}

// New constructs an Engine. It does not touch disk until a flush runs.
func New(opts Options, log *logging.Logger) *Engine {
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = 30 * time.Second
	}
	if opts.ByteCap <= 0 {
		opts.ByteCap = 64 << 20
	}
	qc := opts.QueueCapacity
	if qc <= 0 {
		qc = 64
		if opts.TickPeriod > 0 {
			if need := int(2 * opts.FlushInterval / opts.TickPeriod); need > qc {
				qc = need
			}
		}
	}
	return &Engine{
		dir:           opts.Dir,
		tickPeriod:    opts.TickPeriod,
		schemaHash:    opts.SchemaHash,
		flushInterval: opts.FlushInterval,
		byteCap:       opts.ByteCap,
		disabled:      opts.Disabled,
		log:           log,
		queue:         make(chan model.Snapshot, qc),
	}
}

// Enqueue hands a snapshot to the persistence worker. If the queue is
// full, the oldest pending snapshot is dropped and a warning logged; the
// in-memory chart history in the Time-Series Store is never affected by
// this (spec §5: "chart history in memory is never dropped").
func (e *Engine) Enqueue(snap model.Snapshot) {
	if e.disabled {
		return
	}
	select {
	case e.queue <- snap:
	default:
		select {
		case <-e.queue:
			e.log.Warn("persistence queue full, dropped oldest pending snapshot")
		default:
		}
		select {
		case e.queue <- snap:
		default:
		}
	}
}

// Run drains the queue into the append buffer and flushes on
// flushInterval until stop is closed, then performs one final flush
// (clean-shutdown policy per spec §4.5).
func (e *Engine) Run(stop <-chan struct{}) {
	if e.disabled {
		<-stop
		return
	}
	ticker := time.NewTicker(e.flushInterval)
	defer ticker.Stop()
	for {
		select {
		case snap := <-e.queue:
			e.pending = append(e.pending, snap)
		case <-ticker.C:
			e.flush()
		case <-stop:
			e.drainQueue()
			e.flush()
			return
		}
	}
}

func (e *Engine) drainQueue() {
	for {
		select {
		case snap := <-e.queue:
			e.pending = append(e.pending, snap)
		default:
			return
		}
	}
}

// flush writes the pending buffer to a new segment file, best-effort: an
// IO failure is logged and retried next interval, never blocking ticks.
func (e *Engine) flush() {
	if len(e.pending) == 0 || e.disabled {
		return
	}
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		e.log.Error("persist: mkdir %s: %v", e.dir, err)
		return
	}
	if err := e.writeSegment(e.pending); err != nil {
		e.log.Error("persist: flush failed, will retry next interval: %v", err)
		return
	}
	e.pending = e.pending[:0]
	e.enforceRetention()
}

// segmentRecord is the gob-encoded form of a Snapshot. It deliberately
// drops Errors: ProbeError.Err is an error interface, and gob refuses to
// encode a concrete type that was never gob.Register-ed. History replay
// only ever feeds the Store (never the Registry or a banner), so the
// per-tick probe errors have nothing to round-trip for anyway.
type segmentRecord struct {
	Tick      int64
	WallTime  time.Time
	CPU       model.CPUSample
	Memory    model.MemSample
	Nics      []model.NicSample
	Mounts    []model.MountSample
	Battery   *model.BatterySample
	GPUs      []model.GPUSample
	Processes []model.ProcessSample
}

func toSegmentRecord(s model.Snapshot) segmentRecord {
	return segmentRecord{
		Tick:      s.Tick,
		WallTime:  s.WallTime,
		CPU:       s.CPU,
		Memory:    s.Memory,
		Nics:      s.Nics,
		Mounts:    s.Mounts,
		Battery:   s.Battery,
		GPUs:      s.GPUs,
		Processes: s.Processes,
	}
}

func fromSegmentRecord(r segmentRecord) model.Snapshot {
	return model.Snapshot{
		Tick:      r.Tick,
		WallTime:  r.WallTime,
		CPU:       r.CPU,
		Memory:    r.Memory,
		Nics:      r.Nics,
		Mounts:    r.Mounts,
		Battery:   r.Battery,
		GPUs:      r.GPUs,
		Processes: r.Processes,
	}
}

func (e *Engine) writeSegment(snaps []model.Snapshot) error {
	var payload bytes.Buffer
	enc := gob.NewEncoder(&payload)
	for i := range snaps {
		rec := toSegmentRecord(snaps[i])
		if err := enc.Encode(&rec); err != nil {
			return zerr.New(zerr.Fatal, "persist.writeSegment", err)
		}
	}

	var compressed bytes.Buffer
	fw, err := flate.NewWriter(&compressed, flate.DefaultCompression)
	if err != nil {
		return err
	}
	if _, err := fw.Write(payload.Bytes()); err != nil {
		fw.Close()
		return err
	}
	if err := fw.Close(); err != nil {
		return err
	}

	hdr := Header{
		FormatVersion: formatVersion,
		TickPeriodMs:  uint32(e.tickPeriod.Milliseconds()),
		SchemaHash:    e.schemaHash,
		FirstTickWall: snaps[0].WallTime.UnixMilli(),
		Count:         uint32(len(snaps)),
	}
	copy(hdr.Magic[:], magic)

	name := fmt.Sprintf("%d.seg", time.Now().UnixMilli())
	tmp := filepath.Join(e.dir, name+".tmp")
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if err := writeHeader(f, hdr); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if _, err := f.Write(compressed.Bytes()); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, filepath.Join(e.dir, name))
}

func writeHeader(w *os.File, h Header) error {
	buf := make([]byte, headerSize)
	copy(buf[0:4], h.Magic[:])
	binary.BigEndian.PutUint16(buf[4:6], h.FormatVersion)
	binary.BigEndian.PutUint32(buf[6:10], h.TickPeriodMs)
	binary.BigEndian.PutUint64(buf[10:18], h.SchemaHash)
	binary.BigEndian.PutUint64(buf[18:26], uint64(h.FirstTickWall))
	binary.BigEndian.PutUint32(buf[26:30], h.Count)
	_, err := w.Write(buf)
	return err
}

func readHeader(r *os.File) (Header, error) {
	buf := make([]byte, headerSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return Header{}, err
	}
	var h Header
	copy(h.Magic[:], buf[0:4])
	h.FormatVersion = binary.BigEndian.Uint16(buf[4:6])
	h.TickPeriodMs = binary.BigEndian.Uint32(buf[6:10])
	h.SchemaHash = binary.BigEndian.Uint64(buf[10:18])
	h.FirstTickWall = int64(binary.BigEndian.Uint64(buf[18:26]))
	h.Count = binary.BigEndian.Uint32(buf[26:30])
	return h, nil
}

// Load scans dir for segments in timestamp order, returning the decoded
// snapshots from every segment whose format version and schema hash match
// the running build. Mismatched segments are kept on disk and skipped
// without a log entry; unreadable or damaged segments are skipped and
// logged as a warning.
func (e *Engine) Load() ([]model.Snapshot, error) {
	if e.disabled {
		return nil, nil
	}
	entries, err := os.ReadDir(e.dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, zerr.New(zerr.Transient, "persist.Load", err)
	}
	names := make([]string, 0, len(entries))
	for _, ent := range entries {
		if !ent.IsDir() && strings.HasSuffix(ent.Name(), ".seg") {
			names = append(names, ent.Name())
		}
	}
	sort.Slice(names, func(i, j int) bool {
		return segmentTimestamp(names[i]) < segmentTimestamp(names[j])
	})

	var out []model.Snapshot
	for _, name := range names {
		snaps, err := e.loadSegment(filepath.Join(e.dir, name))
		if err != nil {
			e.log.Warn("persist: skipping corrupt segment %s: %v", name, err)
			continue
		}
		if snaps == nil {
			continue // schema/version mismatch, silently skipped per spec
		}
		out = append(out, snaps...)
	}
	return out, nil
}

func segmentTimestamp(name string) int64 {
	base := strings.TrimSuffix(name, ".seg")
	v, _ := strconv.ParseInt(base, 10, 64)
	return v
}

// loadSegment returns (nil, nil) for a clean schema/version mismatch
// (skip, don't delete) and (nil, err) for genuine corruption.
func (e *Engine) loadSegment(path string) ([]model.Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	hdr, err := readHeader(f)
	if err != nil {
		return nil, zerr.New(zerr.HistoryCorrupt, "persist.loadSegment", err)
	}
	if string(hdr.Magic[:]) != magic {
		return nil, zerr.New(zerr.HistoryCorrupt, "persist.loadSegment", fmt.Errorf("bad magic"))
	}
	if hdr.FormatVersion != formatVersion || hdr.SchemaHash != e.schemaHash {
		return nil, nil
	}

	fr := flate.NewReader(f)
	defer fr.Close()
	dec := gob.NewDecoder(fr)
	snaps := make([]model.Snapshot, 0, hdr.Count)
	for i := uint32(0); i < hdr.Count; i++ {
		var rec segmentRecord
		if err := dec.Decode(&rec); err != nil {
			return nil, zerr.New(zerr.HistoryCorrupt, "persist.loadSegment", err)
		}
		snaps = append(snaps, fromSegmentRecord(rec))
	}
	return snaps, nil
}

// enforceRetention deletes the oldest segments first until the directory
// is at or under byteCap.
func (e *Engine) enforceRetention() {
	entries, err := os.ReadDir(e.dir)
	if err != nil {
		return
	}
	type fi struct {
		name string
		ts   int64
		size int64
	}
	var files []fi
	var total int64
	for _, ent := range entries {
		if ent.IsDir() || !strings.HasSuffix(ent.Name(), ".seg") {
			continue
		}
		info, err := ent.Info()
		if err != nil {
			continue
		}
		files = append(files, fi{name: ent.Name(), ts: segmentTimestamp(ent.Name()), size: info.Size()})
		total += info.Size()
	}
	if total <= e.byteCap {
		return
	}
	sort.Slice(files, func(i, j int) bool { return files[i].ts < files[j].ts })
	for _, f := range files {
		if total <= e.byteCap {
			break
		}
		if err := os.Remove(filepath.Join(e.dir, f.name)); err != nil {
			e.log.Warn("persist: retention remove %s: %v", f.name, err)
			continue
		}
		total -= f.size
	}
}
