package volatility

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/Knetic/govaluate"
)

// DaysPerYear annualizes a days-per-candle scale.
const DaysPerYear = 365.0

var (
	ErrUnknownInterval    = errors.New("unknown candle interval")
	ErrInvalidIntervalExp = errors.New("invalid interval expression")
)

// IntervalTable maps a candle interval code (e.g. "4h", "1d") to the number
// of days one candle spans.
type IntervalTable map[string]float64

// DefaultIntervals is the candle scale table used when the configuration
// does not supply one.
func DefaultIntervals() IntervalTable {
	return IntervalTable{
		"4h":  1.0 / 6.0,
		"12h": 0.5,
		"1d":  1,
		"3d":  3,
		"1w":  7,
		"1M":  30,
	}
}

// ParseIntervalTable evaluates each entry as an arithmetic expression, so
// "1/6" and "0.5" are both accepted.
func ParseIntervalTable(raw map[string]string) (IntervalTable, error) {
	out := make(IntervalTable, len(raw))
	for code, expr := range raw {
		days, err := evalDays(expr)
		if err != nil {
			return nil, fmt.Errorf("interval %q: %w", code, err)
		}
		out[code] = days
	}
	return out, nil
}

func evalDays(expr string) (float64, error) {
	evalExpr, err := govaluate.NewEvaluableExpression(strings.TrimSpace(expr))
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %v", ErrInvalidIntervalExp, expr, err)
	}

	result, err := evalExpr.Evaluate(nil)
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %v", ErrInvalidIntervalExp, expr, err)
	}

	f, ok := result.(float64)
	if !ok || !(f > 0) {
		return 0, fmt.Errorf("%w: %q does not evaluate to a positive number", ErrInvalidIntervalExp, expr)
	}
	return f, nil
}

// PeriodsPerYear returns how many candles of the given interval fit in a year.
func (t IntervalTable) PeriodsPerYear(interval string) (float64, error) {
	days, ok := t[interval]
	if !ok || !(days > 0) {
		return 0, fmt.Errorf("%w: %q (known: %s)", ErrUnknownInterval, interval, strings.Join(t.Codes(), ", "))
	}
	return DaysPerYear / days, nil
}

// Codes lists the interval codes in ascending candle length.
func (t IntervalTable) Codes() []string {
	codes := make([]string, 0, len(t))
	for c := range t {
		codes = append(codes, c)
	}
	sort.Slice(codes, func(i, j int) bool {
		if t[codes[i]] == t[codes[j]] {
			return codes[i] < codes[j]
		}
		return t[codes[i]] < t[codes[j]]
	})
	return codes
}

// FromCloses estimates the annualized volatility of closes sampled at the
// given interval.
func (t IntervalTable) FromCloses(closes []float64, interval string) (float64, error) {
	periods, err := t.PeriodsPerYear(interval)
	if err != nil {
		return 0, err
	}
	return Historical(closes, periods)
}
