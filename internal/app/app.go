// Package app is C8, the Input & Signal Loop: it assembles the sampler,
// store, registry, and persistence engine into a bubbletea program and
// multiplexes terminal input, the tick timer, resize, and OS signals.
//
// Grounded on the teacher's internal/ui/ui.go (tea.Model Update dispatch,
// ctxCancel-on-quit), extended to the full shutdown sequence and section/
// modal state of spec §4.6-§4.8.
package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/sys/unix"

	"github.com/Dicklesworthstone/zenith/internal/config"
	"github.com/Dicklesworthstone/zenith/internal/logging"
	"github.com/Dicklesworthstone/zenith/internal/model"
	"github.com/Dicklesworthstone/zenith/internal/persist"
	"github.com/Dicklesworthstone/zenith/internal/probe"
	"github.com/Dicklesworthstone/zenith/internal/registry"
	"github.com/Dicklesworthstone/zenith/internal/render"
	"github.com/Dicklesworthstone/zenith/internal/sampler"
	"github.com/Dicklesworthstone/zenith/internal/tsstore"
	"github.com/Dicklesworthstone/zenith/internal/uistate"
)

// retentionHorizon sizes every Series so the Store covers a configured
// retention horizon at the configured tick period (spec §4.3: "4 hours /
// 2s = 7200 samples"). Zenith fixes the horizon at 4 hours.
const retentionHorizon = 4 * time.Hour

// registeredMetrics is the stable, ordered list of scalar metric ids used
// by both the Store and the Persistence Engine's schema hash.
var registeredMetrics = []model.MetricID{
	model.MetricCPUAggregate,
	model.MetricMemUsed,
	model.MetricMemSwapUsed,
	model.MetricNetRxRate,
	model.MetricNetTxRate,
	model.MetricDiskReadRate,
	model.MetricDiskWriteRate,
	model.MetricGPUUtil,
	model.MetricGPUMemUsed,
}

// App owns every long-lived component and implements tea.Model.
type App struct {
	cfg     config.Config
	probes  probe.Probes
	sampler *sampler.Sampler
	store   *tsstore.Store
	reg     *registry.Registry
	persist *persist.Engine
	state   *uistate.State
	log     *logging.Logger

	width, height int
	lastSnapshot  model.Snapshot

	persistStop  chan struct{}
	shuttingDown bool
}

type tickMsg struct{ at time.Time }
type shutdownSignalMsg struct{}

// New assembles every component from cfg, loading persisted history
// unless cfg.DisableHistory is set.
func New(cfg config.Config, probes probe.Probes, log *logging.Logger) (*App, error) {
	capacity := int(retentionHorizon / cfg.RefreshRate)
	store := tsstore.New(capacity)
	for _, id := range registeredMetrics {
		store.Register(id)
	}

	eng := persist.New(persist.Options{
		Dir:        cfg.DBPath,
		TickPeriod: cfg.RefreshRate,
		SchemaHash: persist.SchemaHash(registeredMetrics),
		Disabled:   cfg.DisableHistory,
	}, log)

	if snaps, err := eng.Load(); err != nil {
		log.Warn("persist: load failed: %v", err)
	} else {
		replayIntoStore(store, snaps, cfg.RefreshRate, time.Now())
	}

	reg := registry.New(probes)
	samp := sampler.New(probes, cfg.RefreshRate, log)

	return &App{
		cfg:         cfg,
		probes:      probes,
		sampler:     samp,
		store:       store,
		reg:         reg,
		persist:     eng,
		state:       uistate.New(),
		log:         log,
		persistStop: make(chan struct{}),
	}, nil
}

// replayIntoStore places persisted snapshots before the live ticks, which
// start at 1: each one goes at the non-positive tick given by its wall-clock
// age at now in whole tick periods, so the downtime between runs has no
// samples and reads back as Absent buckets. Snapshots dated after now, or
// not landing strictly after the previously replayed one, are dropped.
func replayIntoStore(store *tsstore.Store, snaps []model.Snapshot, period time.Duration, now time.Time) {
	var last int64
	replayed := false
	for _, s := range snaps {
		tick := -int64(now.Sub(s.WallTime) / period)
		if tick > 0 || (replayed && tick <= last) {
			continue
		}
		s.Tick = tick
		appendSnapshot(store, s)
		last, replayed = tick, true
	}
}

func appendSnapshot(store *tsstore.Store, s model.Snapshot) {
	store.Append(model.MetricCPUAggregate, s.Tick, s.CPU.Aggregate)
	store.Append(model.MetricMemUsed, s.Tick, float64(s.Memory.UsedBytes))
	store.Append(model.MetricMemSwapUsed, s.Tick, float64(s.Memory.SwapUsedBytes))

	var rxRate, txRate float64
	for _, n := range s.Nics {
		rxRate += n.RxRate
		txRate += n.TxRate
	}
	store.Append(model.MetricNetRxRate, s.Tick, rxRate)
	store.Append(model.MetricNetTxRate, s.Tick, txRate)

	var readRate, writeRate float64
	for _, m := range s.Mounts {
		readRate += m.ReadRate
		writeRate += m.WriteRate
	}
	store.Append(model.MetricDiskReadRate, s.Tick, readRate)
	store.Append(model.MetricDiskWriteRate, s.Tick, writeRate)

	var gpuUtil, gpuMem float64
	for _, g := range s.GPUs {
		gpuUtil += g.UtilPercent
		gpuMem += float64(g.MemUsedBytes)
	}
	store.Append(model.MetricGPUUtil, s.Tick, gpuUtil)
	store.Append(model.MetricGPUMemUsed, s.Tick, gpuMem)
}

func tickCmd(period time.Duration) tea.Cmd {
	return tea.Tick(period, func(t time.Time) tea.Msg { return tickMsg{at: t} })
}

func (a *App) Init() tea.Cmd {
	go a.persist.Run(a.persistStop)
	return tickCmd(a.sampler.Period())
}

func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch m := msg.(type) {
	case tea.WindowSizeMsg:
		a.width, a.height = m.Width, m.Height
		return a, nil

	case shutdownSignalMsg:
		return a, a.shutdown()

	case tea.KeyMsg:
		a.state.DismissBannerIfStale(time.Now(), true)
		key := m.String()
		if a.state.Mode == uistate.SignalMenu {
			switch {
			case len(key) == 1 && key >= "0" && key <= "9":
				a.dispatchSignal(int(key[0] - '0'))
			case key == "enter":
				a.dispatchSignal(a.state.SignalMenuIndex)
			}
		}
		if key == "pgup" || key == "pgdown" {
			// The process table has no paging: PgUp/PgDn are consumed here
			// and change no state.
			return a, nil
		}
		a.state.HandleKey(key)
		if a.state.Mode == uistate.Quit {
			return a, a.shutdown()
		}
		return a, nil

	case tickMsg:
		a.runTick(m.at)
		return a, tickCmd(a.sampler.Period())
	}
	return a, nil
}

func (a *App) dispatchSignal(digit int) {
	f := a.reg.Focused()
	if f == nil {
		return
	}
	sig := signalForDigit(digit)
	if err := a.reg.Signal(f.Identity.Pid, sig); err != nil {
		a.state.SetBanner(bannerFor(err), time.Now())
	}
}

func signalForDigit(d int) unix.Signal {
	switch d {
	case 1:
		return unix.SIGHUP
	case 2:
		return unix.SIGINT
	case 3:
		return unix.SIGQUIT
	case 9:
		return unix.SIGKILL
	default:
		return unix.SIGTERM
	}
}

func bannerFor(err error) string {
	return fmt.Sprintf("signal failed: %v", err)
}

func (a *App) runTick(now time.Time) {
	deltaSeconds := a.sampler.DeltaSeconds(now)
	snap := a.sampler.Tick(now)

	// Store append precedes Registry update precedes Renderer read
	// within a tick (spec §5 ordering guarantee).
	appendSnapshot(a.store, snap)
	a.reg.SetTotalMemory(snap.Memory.TotalBytes)
	a.reg.Update(snap.Processes, snap.Tick, deltaSeconds)

	a.persist.Enqueue(snap)
	a.state.SyncHistoryBounds(oldestTick(a.store), a.store.LatestTick())
	a.state.DismissBannerIfStale(now, false)
	a.lastSnapshot = snap
}

func oldestTick(store *tsstore.Store) int64 {
	s := store.Series(model.MetricCPUAggregate)
	if s == nil {
		return 0
	}
	t, ok := s.OldestTick()
	if !ok {
		return 0
	}
	return t
}

func (a *App) View() string {
	heights := render.SectionHeights{
		CPU:     a.cfg.CPUHeight,
		Network: a.cfg.NetHeight,
		Disk:    a.cfg.DiskHeight,
		Process: a.cfg.ProcessHeight,
		GPU:     a.cfg.GraphicsHeight,
		GPUOn:   a.cfg.EnableGPU,
	}
	return render.Frame(a.state, a.store, a.reg, a.lastSnapshot, heights, a.width, a.height)
}

// shutdown raises the quit flag, requests a final persistence flush, and
// quits the bubbletea program (spec §4.8's shutdown sequence; terminal
// mode restoration is bubbletea's own responsibility on Quit).
func (a *App) shutdown() tea.Cmd {
	if a.shuttingDown {
		return tea.Quit
	}
	a.shuttingDown = true
	close(a.persistStop)
	return tea.Quit
}

// Run wires OS signal handling, starts the bubbletea program in alt-
// screen mode, and returns the process exit code per spec §6.
func Run(cfg config.Config) int {
	logPath := ""
	if cfg.DBPath != "" {
		logPath = cfg.DBPath + "/zenith.log"
	}
	log, err := logging.New(logPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "zenith: failed to open log file:", err)
		log, _ = logging.New("")
	}

	probes := probe.New()
	application, err := New(cfg, probes, log)
	if err != nil {
		fmt.Fprintln(os.Stderr, "zenith: bootstrap failed:", err)
		return config.ExitProbeBootstrap
	}

	prog := tea.NewProgram(application, tea.WithAltScreen())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT, syscall.SIGHUP)
	go func() {
		select {
		case <-sigCh:
			prog.Send(shutdownSignalMsg{})
		case <-ctx.Done():
		}
	}()

	if _, err := prog.Run(); err != nil {
		fmt.Fprintln(os.Stderr, "zenith:", err)
		return config.ExitInterrupted
	}
	return config.ExitOK
}
