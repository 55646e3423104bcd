// Package config loads the YAML run configuration.
package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/contactkeval/option-theo/internal/chain"
	"github.com/contactkeval/option-theo/internal/data"
	"github.com/contactkeval/option-theo/internal/logger"
	"github.com/contactkeval/option-theo/internal/pricing"
	"github.com/contactkeval/option-theo/internal/volatility"
)

// Environment variables read by the CLI.
const (
	EnvConfigPath = "OPTION_THEO_CONFIG"
	EnvDataDir    = "OPTION_THEO_DATA_DIR"
)

// Limits of the history window and of the expiry paging.
const (
	MinWindow    = 10
	MaxWindow    = 360
	WindowStep   = 10
	MaxLowestDTE = 90
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid config")

// Config is the on-disk configuration shape (YAML).
type Config struct {
	Pair string `yaml:"pair"`
	// Optional: defaults to the pair without its quote asset (BTCUSDT -> BTC).
	Underlying      string             `yaml:"underlying"`
	RiskFreeRatePct float64            `yaml:"risk_free_rate_pct"`
	Volatility      float64            `yaml:"volatility"` // 0 = estimate from history
	History         HistoryConfig      `yaml:"history"`
	Intervals       map[string]string  `yaml:"intervals"`
	Grid            GridConfig         `yaml:"grid"`
	StrikeSteps     map[string]float64 `yaml:"strike_steps"`
	Data            DataConfig         `yaml:"data"`
	ReportDir       string             `yaml:"report_dir"`
	Verbosity       int                `yaml:"verbosity"`
	Log             LogConfig          `yaml:"log"`
}

type HistoryConfig struct {
	Interval string `yaml:"interval"`
	Window   int    `yaml:"window"`
}

type GridConfig struct {
	LowestDTE  int     `yaml:"lowest_dte"`
	Days       int     `yaml:"days"`
	HalfWidth  int     `yaml:"half_width"`
	StrikeStep float64 `yaml:"strike_step"` // 0 = strike_steps[pair]
	Mode       string  `yaml:"mode"`
}

type DataConfig struct {
	Dir  string `yaml:"dir"` // empty = synthetic data only
	Seed int64  `yaml:"seed"`
}

type LogConfig struct {
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Pair:            "BTCUSDT",
		RiskFreeRatePct: 5,
		History:         HistoryConfig{Interval: "1d", Window: 30},
		Intervals: map[string]string{
			"4h":  "1/6",
			"12h": "0.5",
			"1d":  "1",
			"3d":  "3",
			"1w":  "7",
			"1M":  "30",
		},
		Grid: GridConfig{Days: 10, HalfWidth: 5, Mode: string(chain.ModePrice)},
		StrikeSteps: map[string]float64{
			"BTCUSDT": 1000,
			"ETHUSDT": 25,
			"SOLUSDT": 2,
			"BNBUSDT": 5,
			"XRPUSDT": 0.05,
		},
		Data:      DataConfig{Seed: 42},
		ReportDir: "out",
		Verbosity: int(logger.Info),
		Log:       LogConfig{MaxSizeMB: 50, MaxBackups: 3, MaxAgeDays: 14, Compress: true},
	}
}

// Load reads path over the defaults, applies environment overrides and
// validates the result. An empty path yields the validated defaults.
func Load(path string) (*Config, error) {
	c, err := LoadUnchecked(path)
	if err != nil {
		return nil, err
	}
	c.ApplyEnv()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// LoadUnchecked loads and merges config, but does not validate it.
// Maps in the file are merged into the default tables.
func LoadUnchecked(path string) (*Config, error) {
	c := Default()
	if path == "" {
		return c, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(raw, c); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return c, nil
}

// ApplyEnv overlays environment variable overrides.
func (c *Config) ApplyEnv() {
	if dir, ok := os.LookupEnv(EnvDataDir); ok {
		c.Data.Dir = dir
	}
}

func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("%w: config is nil", ErrInvalid)
	}
	c.Pair = strings.ToUpper(strings.TrimSpace(c.Pair))
	if c.Pair == "" {
		return fmt.Errorf("%w: pair is required", ErrInvalid)
	}
	if c.Underlying == "" {
		c.Underlying = data.UnderlyingOf(c.Pair)
	}
	c.Underlying = strings.ToUpper(c.Underlying)

	if math.IsNaN(c.RiskFreeRatePct) || math.IsInf(c.RiskFreeRatePct, 0) || c.RiskFreeRatePct <= -100 {
		return fmt.Errorf("%w: risk_free_rate_pct %v", ErrInvalid, c.RiskFreeRatePct)
	}
	if !(c.Volatility >= 0) || math.IsInf(c.Volatility, 0) {
		return fmt.Errorf("%w: volatility %v must be 0 (estimate) or positive", ErrInvalid, c.Volatility)
	}

	w := c.History.Window
	if w < MinWindow || w > MaxWindow || w%WindowStep != 0 {
		return fmt.Errorf("%w: history.window %d must be %d..%d in steps of %d", ErrInvalid, w, MinWindow, MaxWindow, WindowStep)
	}
	table, err := c.IntervalTable()
	if err != nil {
		return fmt.Errorf("%w: intervals: %v", ErrInvalid, err)
	}
	if _, err := table.PeriodsPerYear(c.History.Interval); err != nil {
		return fmt.Errorf("%w: history.interval: %v", ErrInvalid, err)
	}

	g := c.Grid
	switch {
	case g.LowestDTE < 0 || g.LowestDTE > MaxLowestDTE:
		return fmt.Errorf("%w: grid.lowest_dte %d must be 0..%d", ErrInvalid, g.LowestDTE, MaxLowestDTE)
	case g.Days < 1:
		return fmt.Errorf("%w: grid.days %d must be positive", ErrInvalid, g.Days)
	case g.HalfWidth < 0:
		return fmt.Errorf("%w: grid.half_width %d must not be negative", ErrInvalid, g.HalfWidth)
	}
	if _, err := chain.ParseMode(g.Mode); err != nil {
		return fmt.Errorf("%w: grid.mode: %v", ErrInvalid, err)
	}
	if _, err := c.StrikeStep(); err != nil {
		return err
	}

	if c.Verbosity < int(logger.Error) || c.Verbosity > int(logger.Trace) {
		return fmt.Errorf("%w: verbosity %d must be %d..%d", ErrInvalid, c.Verbosity, int(logger.Error), int(logger.Trace))
	}
	if c.Log.MaxSizeMB < 0 || c.Log.MaxBackups < 0 || c.Log.MaxAgeDays < 0 {
		return fmt.Errorf("%w: log rotation limits must not be negative", ErrInvalid)
	}
	return nil
}

// Rate is the risk-free rate as a decimal.
func (c *Config) Rate() float64 {
	return c.RiskFreeRatePct / 100
}

// StrikeStep returns grid.strike_step, or the per-pair default when unset.
func (c *Config) StrikeStep() (float64, error) {
	step := c.Grid.StrikeStep
	if step == 0 {
		step = c.StrikeSteps[strings.ToUpper(c.Pair)]
	}
	if !(step > 0) || math.IsInf(step, 0) {
		return 0, fmt.Errorf("%w: no positive strike step for %s", ErrInvalid, c.Pair)
	}
	return step, nil
}

// IntervalTable evaluates the intervals section.
func (c *Config) IntervalTable() (volatility.IntervalTable, error) {
	return volatility.ParseIntervalTable(c.Intervals)
}

// Mode is the parsed grid.mode.
func (c *Config) Mode() chain.DivergenceMode {
	m, err := chain.ParseMode(c.Grid.Mode)
	if err != nil {
		return chain.ModePrice
	}
	return m
}

// Layout is the grid layout for one option kind. dayFraction comes from the
// clock at build time.
func (c *Config) Layout(kind pricing.OptionKind, dayFraction float64) (chain.Layout, error) {
	step, err := c.StrikeStep()
	if err != nil {
		return chain.Layout{}, err
	}
	return chain.Layout{
		LowestDTE:   c.Grid.LowestDTE,
		Days:        c.Grid.Days,
		StrikeStep:  step,
		HalfWidth:   c.Grid.HalfWidth,
		Kind:        kind,
		Mode:        c.Mode(),
		DayFraction: dayFraction,
	}, nil
}

// LoggerOptions maps the log section onto the logger.
func (c *Config) LoggerOptions() logger.Options {
	return logger.Options{
		File:       c.Log.File,
		MaxSizeMB:  c.Log.MaxSizeMB,
		MaxBackups: c.Log.MaxBackups,
		MaxAgeDays: c.Log.MaxAgeDays,
		Compress:   c.Log.Compress,
	}
}
