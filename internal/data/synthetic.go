package data

import (
	"fmt"
	"hash/fnv"
	"math"
	"math/rand"
	"time"

	"github.com/contactkeval/option-theo/internal/pricing"
	"github.com/contactkeval/option-theo/internal/volatility"
)

const (
	synthExpiries   = 100  // daily expiries from today
	synthRate       = 0.05 // rate used to price synthetic marks
	synthStrikeSpan = 0.10 // marks cover spot ± 10%
	synthMissing    = 0.1  // share of contracts without a mark
	synthNoise      = 0.05 // multiplicative noise on mark prices
)

// synthBases are the starting spot prices of the synthetic random walk.
var synthBases = map[string]float64{
	"BTC": 60000,
	"ETH": 3000,
	"SOL": 150,
	"BNB": 600,
	"XRP": 0.5,
}

// synthDataProvider implements Data Provider generating synthetic data.
// Every series is a pure function of the seed, the symbol and the clock's
// current day, so repeated calls agree with each other.
type synthDataProvider struct {
	seed      int64
	secondary Provider
	now       func() time.Time
}

// NewSyntheticProvider returns a deterministic provider for seed.
func NewSyntheticProvider(seed int64, secondary Provider) *synthDataProvider {
	return &synthDataProvider{seed: seed, secondary: secondary, now: time.Now}
}

// WithClock fixes the provider's notion of today. Used by tests.
func (p *synthDataProvider) WithClock(now func() time.Time) *synthDataProvider {
	p.now = now
	return p
}

func (p *synthDataProvider) Secondary() Provider {
	return p.secondary
}

// GetBars walks backwards from the synthetic spot so that the newest close
// always equals GetSpot.
func (p *synthDataProvider) GetBars(pair, interval string, limit int) ([]Bar, error) {
	days, ok := volatility.DefaultIntervals()[interval]
	if !ok {
		if p.secondary != nil {
			return p.secondary.GetBars(pair, interval, limit)
		}
		return nil, fmt.Errorf("%w: synthetic %s bars: unknown interval", ErrNoData, interval)
	}
	if limit <= 0 {
		return nil, nil
	}

	spot, _ := p.GetSpot(pair)
	sigma := p.annualVol(UnderlyingOf(pair))
	step := sigma * math.Sqrt(days/volatility.DaysPerYear)
	candle := time.Duration(math.Round(days * float64(24*time.Hour)))

	rng := p.rng("bars", pair, interval)
	bars := make([]Bar, limit)
	end := truncateDay(p.now())
	closePx := spot
	for i := limit - 1; i >= 0; i-- {
		openPx := closePx * math.Exp(-step*rng.NormFloat64())
		bars[i] = Bar{
			Date:   end.Add(-time.Duration(limit-1-i) * candle),
			Open:   openPx,
			High:   math.Max(openPx, closePx) * (1 + math.Abs(rng.NormFloat64())*step/4),
			Low:    math.Min(openPx, closePx) * (1 - math.Abs(rng.NormFloat64())*step/4),
			Close:  closePx,
			Volume: float64(1000 + rng.Intn(5000)),
		}
		closePx = openPx
	}
	return bars, nil
}

func (p *synthDataProvider) GetSpot(pair string) (float64, error) {
	base, ok := synthBases[UnderlyingOf(pair)]
	if !ok {
		base = 100
	}
	rng := p.rng("spot", UnderlyingOf(pair), truncateDay(p.now()).Format(time.DateOnly))
	return base * math.Exp(0.02*rng.NormFloat64()), nil
}

// GetMarks prices a strike ladder around spot for synthExpiries daily
// expiries at a noisy volatility. About synthMissing of the contracts have no
// mark, like illiquid strikes on a real venue.
func (p *synthDataProvider) GetMarks(underlying string) ([]Mark, error) {
	u := UnderlyingOf(underlying)
	spot, err := p.GetSpot(u + "USDT")
	if err != nil {
		return nil, err
	}

	// symbols carry two decimals, so finer strikes would collide
	step := math.Max(niceStep(spot/1000), 0.01)
	lo := math.Ceil(spot*(1-synthStrikeSpan)/step) * step
	hi := spot * (1 + synthStrikeSpan)
	sigma := p.annualVol(u)
	today := truncateDay(p.now())
	fraction := p.now().UTC().Sub(today).Hours() / 24

	rng := p.rng("marks", u, today.Format(time.DateOnly))
	var marks []Mark
	for d := 0; d < synthExpiries; d++ {
		expiry := today.AddDate(0, 0, d)
		t := (float64(d) + fraction) / volatility.DaysPerYear
		for n := 0; lo+float64(n)*step <= hi; n++ {
			strike := math.Round((lo+float64(n)*step)*100) / 100
			for _, kind := range []pricing.OptionKind{pricing.Call, pricing.Put} {
				if rng.Float64() < synthMissing {
					continue
				}
				vol := sigma * (1 + 0.15*rng.NormFloat64())
				if vol < 0.05 {
					vol = 0.05
				}
				price, err := pricing.BlackScholesPrice(kind, spot, strike, t, synthRate, vol)
				if err != nil || price <= 0 {
					continue
				}
				marks = append(marks, Mark{
					Underlying: u,
					Expiry:     expiry,
					Strike:     strike,
					Kind:       kind,
					Price:      price * (1 + synthNoise*rng.NormFloat64()),
				})
			}
		}
	}
	return marks, nil
}

// annualVol is the annualised volatility of the synthetic underlying.
func (p *synthDataProvider) annualVol(underlying string) float64 {
	rng := p.rng("vol", underlying)
	return 0.4 + 0.4*rng.Float64()
}

func (p *synthDataProvider) rng(parts ...string) *rand.Rand {
	h := fnv.New64a()
	for _, s := range parts {
		h.Write([]byte(s))
		h.Write([]byte{0})
	}
	return rand.New(rand.NewSource(p.seed ^ int64(h.Sum64())))
}

// niceStep rounds x down to 1, 2 or 5 times a power of ten.
func niceStep(x float64) float64 {
	if !(x > 0) {
		return 1
	}
	mag := math.Pow(10, math.Floor(math.Log10(x)))
	switch f := x / mag; {
	case f >= 5:
		return 5 * mag
	case f >= 2:
		return 2 * mag
	default:
		return mag
	}
}
