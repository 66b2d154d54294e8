// Package config parses Zenith's CLI flags (spec §6), grown from the
// teacher's flag.FlagSet convention in the original sysmoni CLI.
package config

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/Dicklesworthstone/zenith/internal/zerr"
)

// Version is printed by --version / -V.
const Version = "1.0.0"

// Exit codes per spec §6.
const (
	ExitOK             = 0
	ExitBadArguments   = 1
	ExitProbeBootstrap = 2
	ExitInterrupted    = 130
)

// Config carries every runtime option for the dashboard.
type Config struct {
	CPUHeight      int
	NetHeight      int
	DiskHeight     int
	ProcessHeight  int
	GraphicsHeight int
	RefreshRate    time.Duration
	DBPath         string
	DisableHistory bool
	EnableGPU      bool

	// ShowHelp/ShowVersion short-circuit the rest of startup: the caller
	// should print usage/version and exit 0 without touching probes.
	ShowHelp    bool
	ShowVersion bool
}

// Default returns the documented defaults from spec §6.
func Default() Config {
	home, _ := os.UserHomeDir()
	return Config{
		CPUHeight:      17,
		NetHeight:      17,
		DiskHeight:     17,
		ProcessHeight:  32,
		GraphicsHeight: 17,
		RefreshRate:    2000 * time.Millisecond,
		DBPath:         filepath.Join(home, ".zenith"),
		DisableHistory: false,
		EnableGPU:      true,
	}
}

// Parse parses args (excluding the program name) against the documented
// flag set and environment overrides, returning a ConfigInvalid *zerr.Error
// on bad input. ShowHelp/ShowVersion are reported via the returned Config
// rather than causing Parse itself to print anything, so callers control
// where usage text goes.
func Parse(args []string, out io.Writer) (Config, error) {
	cfg := Default()
	fs := flag.NewFlagSet("zenith", flag.ContinueOnError)
	fs.SetOutput(out)
	fs.Usage = func() { fmt.Fprint(out, usageText) }

	addIntAlias(fs, &cfg.CPUHeight, "c", "cpu-height", cfg.CPUHeight, "min %height CPU/mem section (0 hides)")
	addIntAlias(fs, &cfg.NetHeight, "n", "net-height", cfg.NetHeight, "min %height network section (0 hides)")
	addIntAlias(fs, &cfg.DiskHeight, "d", "disk-height", cfg.DiskHeight, "min %height disk section (0 hides)")
	addIntAlias(fs, &cfg.ProcessHeight, "p", "process-height", cfg.ProcessHeight, "min %height process table (0 hides)")
	addIntAlias(fs, &cfg.GraphicsHeight, "g", "graphics-height", cfg.GraphicsHeight, "min %height GPU section (0 hides)")

	var refreshMs int
	addIntAlias(fs, &refreshMs, "r", "refresh-rate", int(cfg.RefreshRate.Milliseconds()), "tick period in ms")

	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "history directory")
	fs.BoolVar(&cfg.DisableHistory, "disable-history", cfg.DisableHistory, "skip load and writes")

	var help, version bool
	fs.BoolVar(&help, "h", false, "print usage, exit 0")
	fs.BoolVar(&help, "help", false, "print usage, exit 0")
	fs.BoolVar(&version, "V", false, "print version, exit 0")
	fs.BoolVar(&version, "version", false, "print version, exit 0")

	if err := fs.Parse(args); err != nil {
		return cfg, zerr.New(zerr.ConfigInvalid, "config.Parse", err)
	}
	cfg.RefreshRate = time.Duration(refreshMs) * time.Millisecond
	cfg.ShowHelp, cfg.ShowVersion = help, version

	applyEnvOverrides(&cfg)

	if cfg.ShowHelp || cfg.ShowVersion {
		return cfg, nil
	}
	return cfg, validate(cfg)
}

func addIntAlias(fs *flag.FlagSet, dst *int, short, long string, def int, usage string) {
	fs.IntVar(dst, short, def, usage)
	fs.IntVar(dst, long, def, usage)
}

func validate(cfg Config) error {
	for _, h := range []int{cfg.CPUHeight, cfg.NetHeight, cfg.DiskHeight, cfg.ProcessHeight, cfg.GraphicsHeight} {
		if h < 0 || h > 100 {
			return zerr.New(zerr.ConfigInvalid, "config.validate", fmt.Errorf("section height %d out of range [0,100]", h))
		}
	}
	if cfg.RefreshRate <= 0 {
		return zerr.New(zerr.ConfigInvalid, "config.validate", fmt.Errorf("refresh-rate must be positive"))
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ZENITH_REFRESH_RATE_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil && ms > 0 {
			cfg.RefreshRate = time.Duration(ms) * time.Millisecond
		}
	}
	if v := os.Getenv("ZENITH_DB"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("ZENITH_DISABLE_HISTORY"); v == "1" {
		cfg.DisableHistory = true
	}
	if v := os.Getenv("ZENITH_GPU"); v == "0" {
		cfg.EnableGPU = false
	}
}

// Usage returns the full --help text.
func Usage() string { return usageText }

const usageText = `zenith - interactive terminal dashboard for CPU, memory, network, disk, battery, GPU, and processes

Usage: zenith [options]

  -c, --cpu-height INT        min %height CPU/mem section, 0 hides (default 17)
  -n, --net-height INT        min %height network section, 0 hides (default 17)
  -d, --disk-height INT       min %height disk section, 0 hides (default 17)
  -p, --process-height INT    min %height process table, 0 hides (default 32)
  -g, --graphics-height INT   min %height GPU section, 0 hides (default 17)
  -r, --refresh-rate INT      tick period in ms (default 2000)
      --db PATH               history directory (default ~/.zenith)
      --disable-history       skip load and writes
  -h, --help                  print usage, exit 0
  -V, --version               print version, exit 0
`
