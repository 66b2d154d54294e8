// Package probe implements the C1 Metric Probe Layer: stateless queries
// over CPU/mem/net/disk/battery/GPU/process state, backed by gopsutil and
// a handful of sysfs/procfs reads and an out-of-process nvidia-smi call.
//
// CPU percentages and battery time-to-full/empty are the exceptions to
// "stateless": like every OS metrics library (sysinfo in the original
// zenith, gopsutil's own internal lastPercent cache), computing a
// percentage from cumulative CPU time, or a time estimate from the change
// in battery charge, requires remembering the previous sample. That
// bookkeeping lives here, in the probe, exactly where the capability
// contract says the OS-level library owns it; the Sampler (internal/
// sampler) only does delta math for counters it receives already-
// cumulative (network, disk, process I/O).
package probe

import (
	"bufio"
	"context"
	"os"
	"os/exec"
	"os/user"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/net"
	gopsprocess "github.com/shirou/gopsutil/v3/process"
	"golang.org/x/sys/unix"

	"github.com/Dicklesworthstone/zenith/internal/model"
	"github.com/Dicklesworthstone/zenith/internal/zerr"
)

// Probes is the capability set the rest of the core depends on (spec §4.1).
type Probes interface {
	SampleCPU() (model.CPUSample, error)
	SampleMemory() (model.MemSample, error)
	ListNetworkInterfaces() ([]model.NicSample, error)
	ListMounts() ([]model.MountSample, error)
	SampleBattery() (*model.BatterySample, error)
	SampleGPUs() ([]model.GPUSample, error)
	SampleProcesses() ([]model.ProcessSample, error)
	SendSignal(pid int32, sig unix.Signal) error
	Renice(pid int32, nice int) error
	ResolveUsername(uid uint32) (string, error)
}

// Gopsutil is the default, Linux-biased implementation.
type Gopsutil struct {
	prevTotal float64
	prevIdle  float64
	prevCore  []cpu.TimesStat

	userCacheMu sync.Mutex
	userCache   map[uint32]string

	battPrevCharge float64
	battPrevTime   time.Time
}

// New returns a ready-to-use probe set.
func New() *Gopsutil {
	return &Gopsutil{userCache: make(map[uint32]string)}
}

func (g *Gopsutil) SampleCPU() (model.CPUSample, error) {
	times, err := cpu.Times(false)
	if err != nil || len(times) == 0 {
		return model.CPUSample{}, zerr.New(zerr.Transient, "probe.SampleCPU", err)
	}
	cur := times[0]
	curTotal := cur.Total()
	curIdle := cur.Idle + cur.Iowait

	var aggregate float64
	if g.prevTotal > 0 {
		dt := curTotal - g.prevTotal
		di := curIdle - g.prevIdle
		if dt > 0 {
			aggregate = clampPercent(100 * (1 - di/dt))
		}
	}
	g.prevTotal, g.prevIdle = curTotal, curIdle

	coreTimes, err := cpu.Times(true)
	if err != nil {
		return model.CPUSample{}, zerr.New(zerr.Transient, "probe.SampleCPU", err)
	}
	perCore := make([]float64, len(coreTimes))
	for i, c := range coreTimes {
		if i >= len(g.prevCore) {
			continue
		}
		prev := g.prevCore[i]
		dt := c.Total() - prev.Total()
		di := (c.Idle + c.Iowait) - (prev.Idle + prev.Iowait)
		if dt > 0 {
			perCore[i] = clampPercent(100 * (1 - di/dt))
		}
	}
	g.prevCore = coreTimes

	avg, err := load.Avg()
	if err != nil {
		avg = &load.AvgStat{}
	}
	return model.CPUSample{
		PerCore:   perCore,
		Aggregate: aggregate,
		Load1:     avg.Load1,
		Load5:     avg.Load5,
		Load15:    avg.Load15,
	}, nil
}

func (g *Gopsutil) SampleMemory() (model.MemSample, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return model.MemSample{}, zerr.New(zerr.Transient, "probe.SampleMemory", err)
	}
	sw, err := mem.SwapMemory()
	if err != nil {
		sw = &mem.SwapMemoryStat{}
	}
	return model.MemSample{
		TotalBytes:     vm.Total,
		UsedBytes:      vm.Used,
		AvailableBytes: vm.Available,
		SwapTotalBytes: sw.Total,
		SwapUsedBytes:  sw.Used,
	}, nil
}

func (g *Gopsutil) ListNetworkInterfaces() ([]model.NicSample, error) {
	counters, err := net.IOCounters(true)
	if err != nil {
		return nil, zerr.New(zerr.Transient, "probe.ListNetworkInterfaces", err)
	}
	out := make([]model.NicSample, 0, len(counters))
	for _, c := range counters {
		out = append(out, model.NicSample{
			Name:    c.Name,
			RxBytes: c.BytesRecv,
			TxBytes: c.BytesSent,
			RxPkts:  c.PacketsRecv,
			TxPkts:  c.PacketsSent,
		})
	}
	return out, nil
}

func (g *Gopsutil) ListMounts() ([]model.MountSample, error) {
	parts, err := disk.Partitions(false)
	if err != nil {
		return nil, zerr.New(zerr.Transient, "probe.ListMounts", err)
	}
	ioCounters, _ := disk.IOCounters()
	out := make([]model.MountSample, 0, len(parts))
	for _, p := range parts {
		usage, err := disk.Usage(p.Mountpoint)
		if err != nil {
			continue
		}
		var readCum, writeCum uint64
		devName := filepath.Base(p.Device)
		if io, ok := ioCounters[devName]; ok {
			readCum, writeCum = io.ReadBytes, io.WriteBytes
		}
		out = append(out, model.MountSample{
			Name:          p.Mountpoint,
			TotalBytes:    usage.Total,
			AvailBytes:    usage.Free,
			ReadBytesCum:  readCum,
			WriteBytesCum: writeCum,
		})
	}
	return out, nil
}

func (g *Gopsutil) SampleBattery() (*model.BatterySample, error) {
	matches, _ := filepath.Glob("/sys/class/power_supply/BAT*/capacity")
	if len(matches) == 0 {
		return nil, zerr.New(zerr.ProbeUnavailable, "probe.SampleBattery", nil)
	}
	base := filepath.Dir(matches[0])
	capBytes, err := os.ReadFile(matches[0])
	if err != nil {
		return nil, zerr.New(zerr.Transient, "probe.SampleBattery", err)
	}
	pct := parseFloat(string(capBytes)) / 100
	stateBytes, _ := os.ReadFile(filepath.Join(base, "status"))
	state := parseBatteryState(strings.TrimSpace(string(stateBytes)))

	powerWatts := readSysfsMicroToWatts(filepath.Join(base, "power_now"))
	if powerWatts == 0 {
		powerWatts = readSysfsMicroToWatts(filepath.Join(base, "current_now"))
	}

	now := time.Now()
	var ttf, tte time.Duration
	if !g.battPrevTime.IsZero() {
		dt := now.Sub(g.battPrevTime).Seconds()
		dCharge := pct - g.battPrevCharge
		if dt > 0 && dCharge != 0 {
			rate := dCharge / dt // charge fraction per second
			switch {
			case state == model.BatteryCharging && rate > 0:
				ttf = time.Duration((1-pct)/rate) * time.Second
			case state == model.BatteryDischarging && rate < 0:
				tte = time.Duration(pct/-rate) * time.Second
			}
		}
	}
	g.battPrevCharge, g.battPrevTime = pct, now

	return &model.BatterySample{
		Charge:      pct,
		State:       state,
		TimeToFull:  ttf,
		TimeToEmpty: tte,
		PowerWatts:  powerWatts,
	}, nil
}

func (g *Gopsutil) SampleGPUs() ([]model.GPUSample, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 400*time.Millisecond)
	defer cancel()
	out, err := exec.CommandContext(ctx, "nvidia-smi",
		"--query-gpu=index,name,utilization.gpu,memory.used,memory.total,temperature.gpu,utilization.encoder,utilization.decoder",
		"--format=csv,noheader,nounits").Output()
	if err != nil {
		return nil, zerr.New(zerr.ProbeUnavailable, "probe.SampleGPUs", err)
	}
	var gpus []model.GPUSample
	sc := bufio.NewScanner(strings.NewReader(string(out)))
	for sc.Scan() {
		parts := strings.Split(sc.Text(), ",")
		if len(parts) < 8 {
			continue
		}
		idx, _ := strconv.Atoi(strings.TrimSpace(parts[0]))
		gpus = append(gpus, model.GPUSample{
			Index:         idx,
			Name:          strings.TrimSpace(parts[1]),
			UtilPercent:   parseFloat(parts[2]),
			MemUsedBytes:  uint64(parseFloat(parts[3])) * 1024 * 1024,
			MemTotalBytes: uint64(parseFloat(parts[4])) * 1024 * 1024,
			TempC:         parseFloat(parts[5]),
			EncoderUtil:   parseFloat(parts[6]),
			DecoderUtil:   parseFloat(parts[7]),
		})
	}
	return gpus, nil
}

func (g *Gopsutil) SampleProcesses() ([]model.ProcessSample, error) {
	procs, err := gopsprocess.Processes()
	if err != nil {
		return nil, zerr.New(zerr.Transient, "probe.SampleProcesses", err)
	}
	out := make([]model.ProcessSample, 0, len(procs))
	for _, p := range procs {
		name, err := p.Name()
		if err != nil || name == "" {
			continue
		}
		ppid, _ := p.Ppid()
		uids, _ := p.Uids()
		var uid uint32
		if len(uids) > 0 {
			uid = uint32(uids[0])
		}
		cmdline, _ := p.Cmdline()
		if cmdline == "" {
			cmdline = name
		}
		statuses, _ := p.Status()
		times, _ := p.Times()
		mem, _ := p.MemoryInfo()
		nice, _ := p.Nice()
		threads, _ := p.NumThreads()
		createTime, _ := p.CreateTime()
		var readCum, writeCum uint64
		if io, err := p.IOCounters(); err == nil && io != nil {
			readCum, writeCum = io.ReadBytes, io.WriteBytes
		}
		var rss, vss uint64
		if mem != nil {
			rss, vss = mem.RSS, mem.VMS
		}
		var userT, sysT time.Duration
		if times != nil {
			userT = time.Duration(times.User * float64(time.Second))
			sysT = time.Duration(times.System * float64(time.Second))
		}
		out = append(out, model.ProcessSample{
			Pid:           p.Pid,
			Ppid:          ppid,
			Uid:           uid,
			Command:       name,
			Cmdline:       cmdline,
			Status:        statusChar(statuses),
			CPUTimeUser:   userT,
			CPUTimeSystem: sysT,
			RSSBytes:      rss,
			VSSBytes:      vss,
			ReadBytesCum:  readCum,
			WriteBytesCum: writeCum,
			Priority:      20 + int32(nice),
			Nice:          int32(nice),
			Threads:       threads,
			StartTime:     uint64(createTime),
		})
	}
	return out, nil
}

func (g *Gopsutil) SendSignal(pid int32, sig unix.Signal) error {
	if err := unix.Kill(int(pid), sig); err != nil {
		if err == unix.EPERM {
			return zerr.New(zerr.Permission, "probe.SendSignal", err)
		}
		if err == unix.ESRCH {
			return zerr.New(zerr.NotFound, "probe.SendSignal", err)
		}
		return zerr.New(zerr.Transient, "probe.SendSignal", err)
	}
	return nil
}

func (g *Gopsutil) Renice(pid int32, nice int) error {
	if err := unix.Setpriority(unix.PRIO_PROCESS, int(pid), nice); err != nil {
		if err == unix.EPERM || err == unix.EACCES {
			return zerr.New(zerr.Permission, "probe.Renice", err)
		}
		if err == unix.ESRCH {
			return zerr.New(zerr.NotFound, "probe.Renice", err)
		}
		return zerr.New(zerr.Transient, "probe.Renice", err)
	}
	return nil
}

func (g *Gopsutil) ResolveUsername(uid uint32) (string, error) {
	g.userCacheMu.Lock()
	defer g.userCacheMu.Unlock()
	if name, ok := g.userCache[uid]; ok {
		return name, nil
	}
	u, err := user.LookupId(strconv.FormatUint(uint64(uid), 10))
	if err != nil {
		return "", zerr.New(zerr.NotFound, "probe.ResolveUsername", err)
	}
	g.userCache[uid] = u.Username
	return u.Username, nil
}

func statusChar(statuses []string) model.ProcessStatus {
	if len(statuses) == 0 {
		return model.StatusUnknown
	}
	switch strings.ToLower(statuses[0]) {
	case "running", "run", "r":
		return model.StatusRunning
	case "sleep", "s":
		return model.StatusSleep
	case "stop", "t":
		return model.StatusStopped
	case "idle", "i":
		return model.StatusIdle
	case "zombie", "z":
		return model.StatusZombie
	case "disk-sleep", "disk", "d":
		return model.StatusDisk
	default:
		return model.StatusUnknown
	}
}

func parseBatteryState(s string) model.BatteryState {
	switch strings.ToLower(s) {
	case "charging":
		return model.BatteryCharging
	case "discharging":
		return model.BatteryDischarging
	case "full":
		return model.BatteryFull
	default:
		return model.BatteryUnknown
	}
}

func readSysfsMicroToWatts(path string) float64 {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	micro := parseFloat(string(b))
	return micro / 1e6
}

func parseFloat(s string) float64 {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "%")
	f, _ := strconv.ParseFloat(s, 64)
	return f
}

func clampPercent(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 100 {
		return 100
	}
	return f
}
