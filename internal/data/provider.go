package data

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/contactkeval/option-theo/internal/pricing"
)

// ErrNoData is returned when neither a provider nor its secondaries hold the
// requested series.
var ErrNoData = errors.New("no market data")

// ErrInvalidSymbol reports an option symbol that does not follow the
// <UNDERLYING>-<YYMMDD>-<STRIKE>-<C|P> format.
var ErrInvalidSymbol = errors.New("invalid option symbol")

// Provider supplies market data
type Provider interface {
	Secondary() Provider
	// GetBars returns the most recent limit candles of pair, oldest first.
	GetBars(pair, interval string, limit int) ([]Bar, error)
	GetSpot(pair string) (float64, error)
	GetMarks(underlying string) ([]Mark, error)
}

// Bar simplified OHLC
type Bar struct {
	Date   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// Mark is one option mark price as published by the exchange.
type Mark struct {
	Underlying string
	Expiry     time.Time // UTC date
	Strike     float64
	Kind       pricing.OptionKind
	Price      float64
}

// Symbol returns the exchange symbol of the contract.
func (m Mark) Symbol() string {
	return OptionSymbol(m.Underlying, m.Expiry, m.Strike, m.Kind)
}

// quoteAssets are stripped from a pair to get the option underlying.
var quoteAssets = []string{"USDT", "USDC", "FDUSD", "BUSD", "USD"}

// UnderlyingOf returns the base asset of a spot pair: BTCUSDT -> BTC.
func UnderlyingOf(pair string) string {
	p := strings.ToUpper(strings.TrimSpace(pair))
	for _, q := range quoteAssets {
		if len(p) > len(q) && strings.HasSuffix(p, q) {
			return p[:len(p)-len(q)]
		}
	}
	return p
}

// NewProviderChain returns the CSV provider over dir backed by a synthetic
// provider, or the synthetic provider alone when dir is empty.
func NewProviderChain(dir string, seed int64) Provider {
	synth := NewSyntheticProvider(seed, nil)
	if dir == "" {
		return synth
	}
	return NewLocalCSVProvider(dir, synth)
}

// --------------------------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------------------------

// OptionSymbol formats an exchange option symbol, e.g. BTC-261018-60000.00-C.
// The strike always carries two decimals so that symbols can be used as keys.
func OptionSymbol(underlying string, expiry time.Time, strike float64, kind pricing.OptionKind) string {
	return fmt.Sprintf("%s-%s-%s-%s",
		strings.ToUpper(underlying),
		expiry.UTC().Format("060102"),
		strikeKey(strike),
		kind.Short())
}

// ParseOptionSymbol is the inverse of OptionSymbol. It accepts strikes with or
// without decimals.
func ParseOptionSymbol(symbol string) (Mark, error) {
	parts := strings.Split(strings.TrimSpace(symbol), "-")
	if len(parts) != 4 || parts[0] == "" {
		return Mark{}, fmt.Errorf("%w: %q", ErrInvalidSymbol, symbol)
	}

	expiry, err := time.Parse("060102", parts[1])
	if err != nil {
		return Mark{}, fmt.Errorf("%w: %q: expiry: %v", ErrInvalidSymbol, symbol, err)
	}

	strike, err := decimal.NewFromString(parts[2])
	if err != nil || !strike.IsPositive() {
		return Mark{}, fmt.Errorf("%w: %q: strike %q", ErrInvalidSymbol, symbol, parts[2])
	}

	kind, err := pricing.ParseKind(parts[3])
	if err != nil {
		return Mark{}, fmt.Errorf("%w: %q: %v", ErrInvalidSymbol, symbol, err)
	}

	return Mark{
		Underlying: strings.ToUpper(parts[0]),
		Expiry:     expiry,
		Strike:     strike.InexactFloat64(),
		Kind:       kind,
	}, nil
}

// strikeKey renders a strike with exactly two decimals.
func strikeKey(strike float64) string {
	return decimal.NewFromFloat(strike).StringFixed(2)
}

// Closes extracts close prices in bar order.
func Closes(bars []Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}

// lastClose returns the close of the newest bar.
func lastClose(bars []Bar) (float64, bool) {
	if len(bars) == 0 {
		return 0, false
	}
	c := bars[len(bars)-1].Close
	if !(c > 0) || math.IsInf(c, 0) {
		return 0, false
	}
	return c, true
}

// truncateDay drops the time of day in UTC.
func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
