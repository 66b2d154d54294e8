package config

import (
	"bytes"
	"os"
	"testing"
	"time"
)

func TestParseDefaults(t *testing.T) {
	var out bytes.Buffer
	cfg, err := Parse(nil, &out)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	want := Default()
	if cfg.RefreshRate != want.RefreshRate {
		t.Errorf("RefreshRate = %v, want %v", cfg.RefreshRate, want.RefreshRate)
	}
	if cfg.ProcessHeight != want.ProcessHeight {
		t.Errorf("ProcessHeight = %d, want %d", cfg.ProcessHeight, want.ProcessHeight)
	}
}

func TestParseShortAndLongFlagsAgree(t *testing.T) {
	var out bytes.Buffer
	cfg, err := Parse([]string{"-c", "40"}, &out)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if cfg.CPUHeight != 40 {
		t.Errorf("CPUHeight = %d, want 40 via short flag", cfg.CPUHeight)
	}

	cfg, err = Parse([]string{"--cpu-height", "55"}, &out)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if cfg.CPUHeight != 55 {
		t.Errorf("CPUHeight = %d, want 55 via long flag", cfg.CPUHeight)
	}
}

func TestParseRefreshRateInMilliseconds(t *testing.T) {
	var out bytes.Buffer
	cfg, err := Parse([]string{"-r", "500"}, &out)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if cfg.RefreshRate != 500*time.Millisecond {
		t.Errorf("RefreshRate = %v, want 500ms", cfg.RefreshRate)
	}
}

func TestParseRejectsOutOfRangeHeight(t *testing.T) {
	var out bytes.Buffer
	_, err := Parse([]string{"-c", "150"}, &out)
	if err == nil {
		t.Fatal("expected error for height > 100")
	}
}

func TestParseRejectsNonPositiveRefreshRate(t *testing.T) {
	var out bytes.Buffer
	_, err := Parse([]string{"-r", "0"}, &out)
	if err == nil {
		t.Fatal("expected error for zero refresh rate")
	}
}

func TestParseHelpAndVersionShortCircuitValidation(t *testing.T) {
	var out bytes.Buffer
	// Even with an otherwise-invalid height, --help/--version must still
	// report success so the caller can print and exit 0.
	cfg, err := Parse([]string{"-c", "999", "--help"}, &out)
	if err != nil {
		t.Fatalf("Parse() error = %v with --help present", err)
	}
	if !cfg.ShowHelp {
		t.Error("ShowHelp = false, want true")
	}

	cfg, err = Parse([]string{"-c", "999", "-V"}, &out)
	if err != nil {
		t.Fatalf("Parse() error = %v with -V present", err)
	}
	if !cfg.ShowVersion {
		t.Error("ShowVersion = false, want true")
	}
}

func TestEnvOverridesRefreshRateAndHistory(t *testing.T) {
	os.Setenv("ZENITH_REFRESH_RATE_MS", "750")
	os.Setenv("ZENITH_DISABLE_HISTORY", "1")
	defer os.Unsetenv("ZENITH_REFRESH_RATE_MS")
	defer os.Unsetenv("ZENITH_DISABLE_HISTORY")

	var out bytes.Buffer
	cfg, err := Parse(nil, &out)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if cfg.RefreshRate != 750*time.Millisecond {
		t.Errorf("RefreshRate = %v, want 750ms from env override", cfg.RefreshRate)
	}
	if !cfg.DisableHistory {
		t.Error("DisableHistory = false, want true from env override")
	}
}

func TestEnvOverrideAppliesAfterFlagParsing(t *testing.T) {
	os.Setenv("ZENITH_REFRESH_RATE_MS", "750")
	defer os.Unsetenv("ZENITH_REFRESH_RATE_MS")

	var out bytes.Buffer
	cfg, err := Parse([]string{"-r", "250"}, &out)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	// applyEnvOverrides runs after flag parsing and unconditionally applies
	// the env var when set, per the current precedence in Parse: this
	// documents that behavior rather than asserting an alternative.
	if cfg.RefreshRate != 750*time.Millisecond {
		t.Errorf("RefreshRate = %v, want env override 750ms to win", cfg.RefreshRate)
	}
}
