package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/contactkeval/option-theo/internal/chain"
	"github.com/contactkeval/option-theo/internal/pricing"
)

func TestLoadDefaults(t *testing.T) {
	c, err := Load("")
	if err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
	if c.Pair != "BTCUSDT" || c.Underlying != "BTC" {
		t.Fatalf("unexpected pair %q / %q", c.Pair, c.Underlying)
	}
	if c.Rate() != 0.05 {
		t.Fatalf("expected rate 0.05, got %v", c.Rate())
	}
	step, err := c.StrikeStep()
	if err != nil || step != 1000 {
		t.Fatalf("expected strike step 1000, got %v, %v", step, err)
	}
	if c.Mode() != chain.ModePrice {
		t.Fatalf("expected price mode, got %v", c.Mode())
	}
}

func TestLoadFile(t *testing.T) {
	t.Setenv(EnvDataDir, "")
	os.Unsetenv(EnvDataDir)

	c, err := Load(filepath.Join("testdata", "eth.yaml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Pair != "ETHUSDT" || c.Underlying != "ETH" {
		t.Fatalf("unexpected pair %q / %q", c.Pair, c.Underlying)
	}
	if c.Rate() != 0.045 {
		t.Fatalf("expected rate 0.045, got %v", c.Rate())
	}
	if c.Data.Dir != "./snapshots" || c.Data.Seed != 7 {
		t.Fatalf("unexpected data section %+v", c.Data)
	}

	// file maps merge into the defaults
	table, err := c.IntervalTable()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := table["2h"]; !ok {
		t.Fatalf("expected the 2h interval from the file")
	}
	if _, ok := table["1d"]; !ok {
		t.Fatalf("expected the default 1d interval to survive")
	}

	// unset keys keep their defaults
	if c.Log.MaxSizeMB != 50 || !c.Log.Compress {
		t.Fatalf("expected default rotation settings, got %+v", c.Log)
	}

	layout, err := c.Layout(pricing.Put, 0.5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := chain.Layout{
		LowestDTE:   10,
		Days:        5,
		StrikeStep:  25,
		HalfWidth:   3,
		Kind:        pricing.Put,
		Mode:        chain.ModeIV,
		DayFraction: 0.5,
	}
	if layout != want {
		t.Fatalf("expected layout %+v, got %+v", want, layout)
	}

	opts := c.LoggerOptions()
	if opts.File != "option-theo.log" || opts.MaxBackups != 3 {
		t.Fatalf("unexpected logger options %+v", opts)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv(EnvDataDir, "/tmp/marks")
	c, err := Load(filepath.Join("testdata", "eth.yaml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Data.Dir != "/tmp/marks" {
		t.Fatalf("expected the environment to override data.dir, got %q", c.Data.Dir)
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(filepath.Join("testdata", "missing.yaml")); err == nil {
		t.Fatalf("expected an error for a missing file")
	}

	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("pair: [unterminated"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "parse") {
		t.Fatalf("expected a parse error, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty pair", func(c *Config) { c.Pair = " " }},
		{"rate at -100%", func(c *Config) { c.RiskFreeRatePct = -100 }},
		{"negative volatility", func(c *Config) { c.Volatility = -0.1 }},
		{"window too small", func(c *Config) { c.History.Window = 5 }},
		{"window too large", func(c *Config) { c.History.Window = 370 }},
		{"window off step", func(c *Config) { c.History.Window = 35 }},
		{"unknown interval", func(c *Config) { c.History.Interval = "5m" }},
		{"bad interval expression", func(c *Config) { c.Intervals["4h"] = "1/" }},
		{"lowest dte above 90", func(c *Config) { c.Grid.LowestDTE = 91 }},
		{"negative lowest dte", func(c *Config) { c.Grid.LowestDTE = -1 }},
		{"no days", func(c *Config) { c.Grid.Days = 0 }},
		{"negative half width", func(c *Config) { c.Grid.HalfWidth = -1 }},
		{"bad mode", func(c *Config) { c.Grid.Mode = "delta" }},
		{"no strike step", func(c *Config) { c.Pair = "DOGEUSDT" }},
		{"verbosity", func(c *Config) { c.Verbosity = 9 }},
		{"negative log size", func(c *Config) { c.Log.MaxSizeMB = -1 }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := Default()
			tc.mutate(c)
			if err := c.Validate(); !errors.Is(err, ErrInvalid) {
				t.Fatalf("expected ErrInvalid, got %v", err)
			}
		})
	}
}

func TestValidateAcceptsExplicitStep(t *testing.T) {
	c := Default()
	c.Pair = "DOGEUSDT"
	c.Grid.StrikeStep = 0.01
	if err := c.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Underlying != "DOGE" {
		t.Fatalf("expected derived underlying DOGE, got %q", c.Underlying)
	}
}

func TestValidateWindowBounds(t *testing.T) {
	for _, w := range []int{MinWindow, 30, MaxWindow} {
		c := Default()
		c.History.Window = w
		if err := c.Validate(); err != nil {
			t.Fatalf("window %d: %v", w, err)
		}
	}
}
