package engine

import (
	"context"
	"errors"
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/contactkeval/option-theo/internal/config"
	"github.com/contactkeval/option-theo/internal/data"
	"github.com/contactkeval/option-theo/internal/pricing"
)

var testNow = time.Date(2026, 10, 17, 6, 0, 0, 0, time.UTC)

func testClock() time.Time { return testNow }

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	c, err := config.Load("")
	if err != nil {
		t.Fatalf("default config: %v", err)
	}
	return c
}

// stubProvider serves fixed data and counts calls.
type stubProvider struct {
	bars     []data.Bar
	spot     float64
	marks    []data.Mark
	spotErr  error
	marksErr error
	barCalls int
}

func (s *stubProvider) Secondary() data.Provider { return nil }

func (s *stubProvider) GetBars(pair, interval string, limit int) ([]data.Bar, error) {
	s.barCalls++
	if len(s.bars) == 0 {
		return nil, data.ErrNoData
	}
	return s.bars, nil
}

func (s *stubProvider) GetSpot(pair string) (float64, error) { return s.spot, s.spotErr }

func (s *stubProvider) GetMarks(underlying string) ([]data.Mark, error) {
	return s.marks, s.marksErr
}

func closesToBars(closes ...float64) []data.Bar {
	bars := make([]data.Bar, len(closes))
	for i, c := range closes {
		bars[i] = data.Bar{Date: testNow.AddDate(0, 0, i-len(closes)), Close: c}
	}
	return bars
}

func TestRunWithSyntheticProvider(t *testing.T) {
	cfg := testConfig(t)
	prov := data.NewSyntheticProvider(42, nil).WithClock(testClock)

	res, err := NewEngine(cfg, prov).WithClock(testClock).Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	spot, _ := prov.GetSpot("BTCUSDT")
	if res.Spot != spot || res.Pair != "BTCUSDT" || res.Underlying != "BTC" {
		t.Fatalf("unexpected result header %+v", res)
	}
	if res.VolatilitySource != SourceHistorical || !(res.Volatility > 0) {
		t.Fatalf("expected a positive historical volatility, got %v (%s)", res.Volatility, res.VolatilitySource)
	}
	if res.Interval != "1d" || res.Window != 30 || res.Rate != 0.05 {
		t.Fatalf("unexpected run settings %s/%d/%v", res.Interval, res.Window, res.Rate)
	}
	if !reflect.DeepEqual(res.Calls.Strikes, res.Puts.Strikes) || !reflect.DeepEqual(res.Calls.Days, res.Puts.Days) {
		t.Fatalf("call and put grids must share axes")
	}
	if len(res.Expiries) != cfg.Grid.Days {
		t.Fatalf("expected %d expiries, got %d", cfg.Grid.Days, len(res.Expiries))
	}
	if !res.Expiries[0].Equal(time.Date(2026, 10, 17, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected first expiry %v", res.Expiries[0])
	}
	if res.Calls.LiveQuotes == 0 || res.Puts.LiveQuotes == 0 {
		t.Fatalf("expected live quotes from synthetic marks, got %d/%d", res.Calls.LiveQuotes, res.Puts.LiveQuotes)
	}
}

func TestRunConfiguredVolatilitySkipsHistory(t *testing.T) {
	cfg := testConfig(t)
	cfg.Volatility = 0.55
	prov := &stubProvider{spot: 60000}

	res, err := NewEngine(cfg, prov).WithClock(testClock).Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if prov.barCalls != 0 {
		t.Fatalf("history must not be fetched when volatility is configured")
	}
	if res.Volatility != 0.55 || res.VolatilitySource != SourceConfig {
		t.Fatalf("expected configured volatility, got %v (%s)", res.Volatility, res.VolatilitySource)
	}
	if res.Calls.LiveQuotes != 0 {
		t.Fatalf("expected no live quotes without marks")
	}
}

func TestRunHistoricalVolatility(t *testing.T) {
	cfg := testConfig(t)
	prov := &stubProvider{spot: 100, bars: closesToBars(100, 101, 99, 102)}
	cfg.Grid.StrikeStep = 5

	res, err := NewEngine(cfg, prov).WithClock(testClock).Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(res.Volatility-0.4794397641188397) > 1e-12 {
		t.Fatalf("expected daily HV 0.47944, got %v", res.Volatility)
	}
}

func TestRunErrors(t *testing.T) {
	cfg := testConfig(t)

	if _, err := NewEngine(cfg, &stubProvider{spot: 60000, bars: closesToBars(100, 101)}).Run(context.Background()); err == nil {
		t.Fatalf("expected an error for too little history")
	}
	if _, err := NewEngine(cfg, &stubProvider{spot: 60000}).Run(context.Background()); !errors.Is(err, data.ErrNoData) {
		t.Fatalf("expected ErrNoData for missing history, got %v", err)
	}

	cfg.Volatility = 0.6
	spotErr := errors.New("feed down")
	if _, err := NewEngine(cfg, &stubProvider{spotErr: spotErr}).Run(context.Background()); !errors.Is(err, spotErr) {
		t.Fatalf("expected the spot error, got %v", err)
	}

	marksErr := errors.New("bad marks file")
	if _, err := NewEngine(cfg, &stubProvider{spot: 60000, marksErr: marksErr}).Run(context.Background()); !errors.Is(err, marksErr) {
		t.Fatalf("expected the marks error, got %v", err)
	}

	res, err := NewEngine(cfg, &stubProvider{spot: 60000, marksErr: data.ErrNoData}).WithClock(testClock).Run(context.Background())
	if err != nil {
		t.Fatalf("missing marks must not fail the run: %v", err)
	}
	if res.Calls.LiveQuotes != 0 || res.Puts.LiveQuotes != 0 {
		t.Fatalf("expected theoretical-only grids")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewEngine(cfg, &stubProvider{spot: 60000}).Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestRebuildMatchesMarksByExpiryAndKind(t *testing.T) {
	cfg := testConfig(t)
	e := NewEngine(cfg, nil)

	expiry := ExpiryFor(testNow, 2)
	tYears := (2 + 0.25) / 365
	callMark, _ := pricing.BlackScholesPrice(pricing.Call, 60000, 60000, tYears, 0.05, 0.8)
	snap := data.NewSnapshot("BTC", testNow, []data.Mark{
		{Underlying: "BTC", Expiry: expiry, Strike: 60000, Kind: pricing.Call, Price: callMark},
		{Underlying: "BTC", Expiry: expiry.AddDate(0, 0, 1), Strike: 61000, Kind: pricing.Put, Price: 2000},
	})

	res, err := e.Rebuild(context.Background(), Inputs{
		Underlying: "BTC",
		Spot:       60000,
		Rate:       0.05,
		Volatility: 0.6,
		Marks:      snap,
		Now:        testNow,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if res.Calls.LiveQuotes != 1 || res.Puts.LiveQuotes != 1 {
		t.Fatalf("expected one live quote per kind, got %d/%d", res.Calls.LiveQuotes, res.Puts.LiveQuotes)
	}
	q, ok := res.Calls.Cell(60000, 2)
	if !ok || !q.Live() {
		t.Fatalf("expected a live call at 60000 dte 2")
	}
	if q.TimeToExpiry != tYears {
		t.Fatalf("expected T=%v, got %v", tYears, q.TimeToExpiry)
	}
	if q.ImpliedVolatility == nil || math.Abs(*q.ImpliedVolatility-0.8) > 1e-4 {
		t.Fatalf("expected IV 0.8, got %v", q.ImpliedVolatility)
	}
	if q.Scale != 1 {
		t.Fatalf("a single live cell must have scale 1, got %v", q.Scale)
	}
	if p, _ := res.Puts.Cell(61000, 3); !p.Live() || *p.MarketPrice != 2000 {
		t.Fatalf("expected the put mark at 61000 dte 3")
	}
	if c, _ := res.Calls.Cell(61000, 3); c.Live() {
		t.Fatalf("a put mark must not appear in the call grid")
	}
}

func TestRebuildDeterministic(t *testing.T) {
	cfg := testConfig(t)
	prov := data.NewSyntheticProvider(9, nil).WithClock(testClock)
	marks, _ := prov.GetMarks("BTC")
	in := Inputs{
		Underlying: "BTC",
		Spot:       60000,
		Rate:       0.05,
		Volatility: 0.6,
		Marks:      data.NewSnapshot("BTC", testNow, marks),
		Now:        testNow,
	}

	e := NewEngine(cfg, prov)
	a, err := e.Rebuild(context.Background(), in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := e.Rebuild(context.Background(), in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("rebuilds of the same inputs differ")
	}
}

func TestRebuildInvalidInputs(t *testing.T) {
	e := NewEngine(testConfig(t), nil)
	_, err := e.Rebuild(context.Background(), Inputs{Underlying: "BTC", Spot: 0, Volatility: 0.6, Now: testNow})
	if err == nil {
		t.Fatalf("expected an error for a zero spot")
	}
}

func TestExpiryFor(t *testing.T) {
	late := time.Date(2026, 10, 17, 23, 30, 0, 0, time.FixedZone("UTC-3", -3*3600))
	if got := ExpiryFor(late, 0); !got.Equal(time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected the UTC date, got %v", got)
	}
	if got := ExpiryFor(testNow, 15); !got.Equal(time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected expiry %v", got)
	}
}

func TestPaging(t *testing.T) {
	tests := []struct {
		name string
		got  int
		want int
	}{
		{"next", NextPage(0, 10), 10},
		{"next clamps", NextPage(85, 10), 90},
		{"prev", PrevPage(30, 10), 20},
		{"prev clamps", PrevPage(5, 10), 0},
	}
	for _, tc := range tests {
		if tc.got != tc.want {
			t.Fatalf("%s: expected %d, got %d", tc.name, tc.want, tc.got)
		}
	}
}
