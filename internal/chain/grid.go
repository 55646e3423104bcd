// Package chain assembles the strike × expiry grid that overlays
// theoretical Black-Scholes values on live option marks.
//
// A grid is rebuilt from scratch for every change of inputs; there is no
// incremental update. Build is deterministic for fixed inputs and holds no
// state, so call and put grids may be built concurrently.
package chain

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/contactkeval/option-theo/internal/logger"
	"github.com/contactkeval/option-theo/internal/pricing"
)

// DaysPerYear converts day offsets into year fractions.
const DaysPerYear = 365.0

// ErrInvalidLayout reports parameters that would put a non-positive spot,
// strike, time or volatility into the pricer.
var ErrInvalidLayout = errors.New("invalid grid layout")

// DivergenceMode selects how market and model are compared.
type DivergenceMode string

const (
	// ModePrice compares market price with theoretical price.
	ModePrice DivergenceMode = "price"
	// ModeIV compares implied volatility with the input volatility.
	ModeIV DivergenceMode = "iv"
)

// ParseMode accepts "price" (or "fv") and "iv".
func ParseMode(s string) (DivergenceMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "price", "fv":
		return ModePrice, nil
	case "iv":
		return ModeIV, nil
	}
	return "", fmt.Errorf("%w: divergence mode %q", ErrInvalidLayout, s)
}

// Params are the scalar market inputs, supplied fresh on every build.
type Params struct {
	Spot       float64 // underlying price
	Rate       float64 // annual risk-free rate, decimal
	Volatility float64 // model volatility, also the implied volatility seed
}

// Layout describes the shape of the grid.
type Layout struct {
	LowestDTE   int     // first day offset of the window
	Days        int     // number of contiguous day offsets
	StrikeStep  float64 // distance between strikes
	HalfWidth   int     // strikes above and below the reference strike
	Kind        pricing.OptionKind
	Mode        DivergenceMode
	DayFraction float64 // fraction of the current day already elapsed, in [0,1)
}

// MarketLookup returns the live market price for a strike and day offset.
// How that maps to an exchange instrument is up to the implementation.
type MarketLookup interface {
	MarkPrice(strike float64, dayOffset int) (float64, bool)
}

// LookupFunc adapts a plain function to MarketLookup.
type LookupFunc func(strike float64, dayOffset int) (float64, bool)

// MarkPrice calls f(strike, dayOffset).
func (f LookupFunc) MarkPrice(strike float64, dayOffset int) (float64, bool) {
	return f(strike, dayOffset)
}

// Quote is one cell of the grid. It is never modified after Build returns.
type Quote struct {
	Strike            float64  `json:"strike"`
	DayOffset         int      `json:"dte"`
	TimeToExpiry      float64  `json:"t_years"`
	MarketPrice       *float64 `json:"market_price,omitempty"`
	TheoreticalPrice  float64  `json:"theoretical_price"`
	ImpliedVolatility *float64 `json:"implied_volatility,omitempty"`
	Divergence        float64  `json:"divergence"`
	Scale             float64  `json:"scale"` // |Divergence| / MaxDivergence, in [0,1]
	IsReference       bool     `json:"is_reference,omitempty"`
}

// Live reports whether the cell has a market price.
func (q Quote) Live() bool {
	return q.MarketPrice != nil
}

// Grid is the strike × day matrix for one option kind.
type Grid struct {
	Kind            pricing.OptionKind `json:"kind"`
	Mode            DivergenceMode     `json:"mode"`
	Spot            float64            `json:"spot"`
	Rate            float64            `json:"rate"`
	Volatility      float64            `json:"volatility"`
	ReferenceStrike float64            `json:"reference_strike"`
	Strikes         []float64          `json:"strikes"` // strictly descending
	Days            []int              `json:"days"`    // ascending, contiguous
	Rows            [][]Quote          `json:"rows"`    // Rows[i][j] is Strikes[i] × Days[j]
	MaxDivergence   float64            `json:"max_divergence"`
	LiveQuotes      int                `json:"live_quotes"`
}

// Build prices every cell of the grid described by layout.
//
// Cells with a market price also get an implied volatility and a divergence.
// A failed implied volatility solve only affects its own cell: the volatility
// stays absent and the divergence falls back to the price difference.
func Build(params Params, lookup MarketLookup, layout Layout) (*Grid, error) {
	if err := validate(params, layout); err != nil {
		return nil, err
	}
	if lookup == nil {
		lookup = LookupFunc(func(float64, int) (float64, bool) { return 0, false })
	}

	ref, strikes, err := StrikeLadder(params.Spot, layout.StrikeStep, layout.HalfWidth)
	if err != nil {
		return nil, err
	}
	days := dayAxis(layout.LowestDTE, layout.Days)

	g := &Grid{
		Kind:            layout.Kind,
		Mode:            layout.Mode,
		Spot:            params.Spot,
		Rate:            params.Rate,
		Volatility:      params.Volatility,
		ReferenceStrike: ref,
		Strikes:         strikes,
		Days:            days,
		Rows:            make([][]Quote, len(strikes)),
	}

	for i, strike := range strikes {
		row := make([]Quote, len(days))
		for j, day := range days {
			q, err := buildQuote(params, layout, lookup, strike, day)
			if err != nil {
				return nil, err
			}
			q.IsReference = strike == ref

			if q.Live() {
				g.LiveQuotes++
				if d := math.Abs(q.Divergence); d > g.MaxDivergence {
					g.MaxDivergence = d
				}
			}
			row[j] = q
		}
		g.Rows[i] = row
	}

	if g.MaxDivergence > 0 {
		for _, row := range g.Rows {
			for j := range row {
				row[j].Scale = math.Abs(row[j].Divergence) / g.MaxDivergence
			}
		}
	}

	logger.Debugf("%s grid: %d strikes x %d days, %d live, max divergence %.6f",
		layout.Kind, len(strikes), len(days), g.LiveQuotes, g.MaxDivergence)
	return g, nil
}

func buildQuote(params Params, layout Layout, lookup MarketLookup, strike float64, day int) (Quote, error) {
	t := (float64(day) + layout.DayFraction) / DaysPerYear

	theo, err := pricing.BlackScholesPrice(layout.Kind, params.Spot, strike, t, params.Rate, params.Volatility)
	if err != nil {
		return Quote{}, fmt.Errorf("pricing K=%v dte=%d: %w", strike, day, err)
	}

	q := Quote{
		Strike:           strike,
		DayOffset:        day,
		TimeToExpiry:     t,
		TheoreticalPrice: theo,
	}

	market, ok := lookup.MarkPrice(strike, day)
	if !ok || !(market > 0) || math.IsInf(market, 0) {
		return q, nil
	}
	q.MarketPrice = &market
	q.Divergence = market - theo

	iv, err := pricing.ImpliedVolatility(layout.Kind, market, params.Spot, strike, t, params.Rate, params.Volatility)
	if err != nil {
		logger.Tracef("%s K=%v dte=%d market=%v: %v", layout.Kind, strike, day, market, err)
		return q, nil
	}
	q.ImpliedVolatility = &iv
	if layout.Mode == ModeIV {
		q.Divergence = iv - params.Volatility
	}
	return q, nil
}

// StrikeLadder returns the reference strike floor(spot/step)·step and the
// strikes from ref+halfWidth·step down to ref-halfWidth·step. Non-positive
// strikes are left out. Arithmetic is decimal so steps such as 0.05 do not
// accumulate binary rounding error.
func StrikeLadder(spot, step float64, halfWidth int) (float64, []float64, error) {
	if !(spot > 0) || !(step > 0) || halfWidth < 0 {
		return 0, nil, fmt.Errorf("%w: spot=%v step=%v half width=%d", ErrInvalidLayout, spot, step, halfWidth)
	}

	dStep := decimal.NewFromFloat(step)
	ref := decimal.NewFromFloat(spot).Div(dStep).Floor().Mul(dStep)
	if !ref.IsPositive() {
		return 0, nil, fmt.Errorf("%w: spot %v is below one strike step %v", ErrInvalidLayout, spot, step)
	}

	strikes := make([]float64, 0, 2*halfWidth+1)
	for i := halfWidth; i >= -halfWidth; i-- {
		k := ref.Add(dStep.Mul(decimal.NewFromInt(int64(i))))
		if !k.IsPositive() {
			continue
		}
		strikes = append(strikes, k.InexactFloat64())
	}
	return ref.InexactFloat64(), strikes, nil
}

func dayAxis(lowest, n int) []int {
	days := make([]int, n)
	for i := range days {
		days[i] = lowest + i
	}
	return days
}

func validate(params Params, layout Layout) error {
	switch {
	case !(params.Spot > 0) || math.IsInf(params.Spot, 0):
		return fmt.Errorf("%w: spot %v", ErrInvalidLayout, params.Spot)
	case !(params.Volatility > 0) || math.IsInf(params.Volatility, 0):
		return fmt.Errorf("%w: volatility %v", ErrInvalidLayout, params.Volatility)
	case math.IsNaN(params.Rate) || math.IsInf(params.Rate, 0):
		return fmt.Errorf("%w: rate %v", ErrInvalidLayout, params.Rate)
	case !layout.Kind.Valid():
		return fmt.Errorf("%w: option kind %q", ErrInvalidLayout, layout.Kind)
	case layout.Mode != ModePrice && layout.Mode != ModeIV:
		return fmt.Errorf("%w: divergence mode %q", ErrInvalidLayout, layout.Mode)
	case layout.Days < 1:
		return fmt.Errorf("%w: %d days", ErrInvalidLayout, layout.Days)
	case layout.LowestDTE < 0:
		return fmt.Errorf("%w: lowest dte %d", ErrInvalidLayout, layout.LowestDTE)
	case !(layout.DayFraction >= 0) || layout.DayFraction >= 1:
		return fmt.Errorf("%w: day fraction %v", ErrInvalidLayout, layout.DayFraction)
	case float64(layout.LowestDTE)+layout.DayFraction <= 0:
		return fmt.Errorf("%w: first expiry has no time left", ErrInvalidLayout)
	}
	return nil
}

// ElapsedDayFraction returns how much of the current UTC day has passed at now.
func ElapsedDayFraction(now time.Time) float64 {
	now = now.UTC()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return now.Sub(midnight).Seconds() / (24 * 60 * 60)
}
