// Package engine turns one snapshot of market inputs into the call and put
// grids. Nothing is cached between runs: every change of inputs is a full
// rebuild.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/contactkeval/option-theo/internal/chain"
	"github.com/contactkeval/option-theo/internal/config"
	"github.com/contactkeval/option-theo/internal/data"
	"github.com/contactkeval/option-theo/internal/logger"
	"github.com/contactkeval/option-theo/internal/pricing"
)

// Volatility sources reported in Result.
const (
	SourceConfig     = "config"
	SourceHistorical = "historical"
)

type Engine struct {
	cfg  *config.Config
	prov data.Provider
	now  func() time.Time
}

// Inputs is everything a rebuild reads. It is captured once and never
// changes during the build.
type Inputs struct {
	Underlying string
	Spot       float64
	Rate       float64 // decimal
	Volatility float64
	Marks      *data.Snapshot // nil = no market data
	Now        time.Time
}

// Result carries both grids and the inputs that produced them.
type Result struct {
	Underlying       string      `json:"underlying"`
	Pair             string      `json:"pair"`
	Spot             float64     `json:"spot"`
	Rate             float64     `json:"rate"`
	Volatility       float64     `json:"volatility"`
	VolatilitySource string      `json:"volatility_source"`
	Interval         string      `json:"interval"`
	Window           int         `json:"window"`
	AsOf             time.Time   `json:"as_of"`
	Expiries         []time.Time `json:"expiries"` // Expiries[j] belongs to day column j
	Calls            *chain.Grid `json:"calls"`
	Puts             *chain.Grid `json:"puts"`
}

func NewEngine(cfg *config.Config, prov data.Provider) *Engine {
	return &Engine{cfg: cfg, prov: prov, now: time.Now}
}

// WithClock replaces the wall clock. Used by tests.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// Run fetches history, spot and marks from the provider and rebuilds.
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	cfg := e.cfg
	now := e.now().UTC()

	vol, source, err := e.volatility()
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	spot, err := e.prov.GetSpot(cfg.Pair)
	if err != nil {
		return nil, fmt.Errorf("spot %s: %w", cfg.Pair, err)
	}

	marks, err := e.prov.GetMarks(cfg.Underlying)
	if err != nil {
		// grids still carry theoretical values without a market
		if !errors.Is(err, data.ErrNoData) {
			return nil, fmt.Errorf("marks %s: %w", cfg.Underlying, err)
		}
		logger.Infof("no %s option marks available, building theoretical grids only", cfg.Underlying)
	}
	snap := data.NewSnapshot(cfg.Underlying, now, marks)
	logger.Debugf("%s snapshot: %d marks over %d expiries", cfg.Underlying, snap.Len(), len(snap.Expiries()))

	res, err := e.Rebuild(ctx, Inputs{
		Underlying: cfg.Underlying,
		Spot:       spot,
		Rate:       cfg.Rate(),
		Volatility: vol,
		Marks:      snap,
		Now:        now,
	})
	if err != nil {
		return nil, err
	}
	res.Pair = cfg.Pair
	res.VolatilitySource = source
	res.Interval = cfg.History.Interval
	res.Window = cfg.History.Window

	logger.Infof("%s spot=%.4f vol=%.2f%% (%s) calls max div=%.4f puts max div=%.4f",
		cfg.Pair, spot, vol*100, source, res.Calls.MaxDivergence, res.Puts.MaxDivergence)
	return res, nil
}

// volatility returns the configured volatility, or estimates it from the
// close prices of the configured history window.
func (e *Engine) volatility() (float64, string, error) {
	cfg := e.cfg
	if cfg.Volatility > 0 {
		return cfg.Volatility, SourceConfig, nil
	}

	bars, err := e.prov.GetBars(cfg.Pair, cfg.History.Interval, cfg.History.Window)
	if err != nil {
		return 0, "", fmt.Errorf("history %s %s: %w", cfg.Pair, cfg.History.Interval, err)
	}
	table, err := cfg.IntervalTable()
	if err != nil {
		return 0, "", err
	}
	hv, err := table.FromCloses(data.Closes(bars), cfg.History.Interval)
	if err != nil {
		return 0, "", fmt.Errorf("historical volatility over %d %s bars: %w", len(bars), cfg.History.Interval, err)
	}
	logger.Debugf("hist vol = %.2f%% over %d %s bars", hv*100, len(bars), cfg.History.Interval)
	return hv, SourceHistorical, nil
}

// Rebuild builds the call and put grids for in concurrently. Both builds
// read the same frozen inputs, so they cannot observe different marks.
func (e *Engine) Rebuild(ctx context.Context, in Inputs) (*Result, error) {
	now := in.Now.UTC()
	fraction := chain.ElapsedDayFraction(now)
	params := chain.Params{Spot: in.Spot, Rate: in.Rate, Volatility: in.Volatility}

	kinds := []pricing.OptionKind{pricing.Call, pricing.Put}
	grids := make([]*chain.Grid, len(kinds))

	g, gctx := errgroup.WithContext(ctx)
	for i, kind := range kinds {
		i, kind := i, kind
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			layout, err := e.cfg.Layout(kind, fraction)
			if err != nil {
				return err
			}
			grid, err := chain.Build(params, markLookup(in.Marks, now, kind), layout)
			if err != nil {
				return fmt.Errorf("%s grid: %w", kind, err)
			}
			grids[i] = grid
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	expiries := make([]time.Time, len(grids[0].Days))
	for j, d := range grids[0].Days {
		expiries[j] = ExpiryFor(now, d)
	}

	return &Result{
		Underlying: in.Underlying,
		Spot:       in.Spot,
		Rate:       in.Rate,
		Volatility: in.Volatility,
		AsOf:       now,
		Expiries:   expiries,
		Calls:      grids[0],
		Puts:       grids[1],
	}, nil
}

// markLookup maps a grid cell onto the snapshot contract expiring
// dayOffset days after now.
func markLookup(snap *data.Snapshot, now time.Time, kind pricing.OptionKind) chain.MarketLookup {
	if snap == nil || snap.Len() == 0 {
		return nil
	}
	return chain.LookupFunc(func(strike float64, dayOffset int) (float64, bool) {
		return snap.Lookup(ExpiryFor(now, dayOffset), strike, kind)
	})
}

// ExpiryFor returns the UTC expiry date dayOffset days after now.
func ExpiryFor(now time.Time, dayOffset int) time.Time {
	now = now.UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, dayOffset)
}

// NextPage moves the expiry window forward by one page.
func NextPage(lowestDTE, days int) int {
	return clampDTE(lowestDTE + days)
}

// PrevPage moves the expiry window back by one page.
func PrevPage(lowestDTE, days int) int {
	return clampDTE(lowestDTE - days)
}

func clampDTE(d int) int {
	switch {
	case d < 0:
		return 0
	case d > config.MaxLowestDTE:
		return config.MaxLowestDTE
	}
	return d
}
