package data

import (
	"errors"
	"testing"
	"time"

	"github.com/contactkeval/option-theo/internal/pricing"
)

func TestLocalCSVGetBarsLimitAndOrder(t *testing.T) {
	dir := t.TempDir()
	// rows out of order on purpose
	writeFile(t, dir, "ETHUSDT_4h.csv", `date,open,high,low,close,volume
2026-10-16T08:00:00Z,3,3,3,3,1
2026-10-16T00:00:00Z,1,1,1,1,1
2026-10-16T04:00:00Z,2,2,2,2,1
2026-10-16T12:00:00Z,4,4,4,4,1
`)
	p := NewLocalCSVProvider(dir, nil)

	bars, err := p.GetBars("ethusdt", "4h", 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := Closes(bars); len(got) != 2 || got[0] != 3 || got[1] != 4 {
		t.Fatalf("expected the newest two closes [3 4], got %v", got)
	}

	all, _ := p.GetBars("ETHUSDT", "4h", 0)
	if len(all) != 4 {
		t.Fatalf("expected all 4 bars without a limit, got %d", len(all))
	}
}

func TestLocalCSVMissingSeries(t *testing.T) {
	p := NewLocalCSVProvider(t.TempDir(), nil)
	if _, err := p.GetBars("BTCUSDT", "1d", 10); !errors.Is(err, ErrNoData) {
		t.Fatalf("expected ErrNoData for bars, got %v", err)
	}
	if _, err := p.GetSpot("BTCUSDT"); !errors.Is(err, ErrNoData) {
		t.Fatalf("expected ErrNoData for spot, got %v", err)
	}
	if _, err := p.GetMarks("BTC"); !errors.Is(err, ErrNoData) {
		t.Fatalf("expected ErrNoData for marks, got %v", err)
	}
}

func TestLocalCSVBadDate(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "BTCUSDT_1d.csv", "date,open,high,low,close,volume\nyesterday,1,1,1,1,1\n")
	if _, err := NewLocalCSVProvider(dir, nil).GetBars("BTCUSDT", "1d", 10); err == nil {
		t.Fatalf("expected a date parse error")
	}
}

func TestLocalCSVSpot(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "BTCUSDT_1d.csv", "date,open,high,low,close,volume\n2026-10-16,1,1,1,61000,1\n")
	p := NewLocalCSVProvider(dir, nil)

	spot, err := p.GetSpot("BTCUSDT")
	if err != nil || spot != 61000 {
		t.Fatalf("expected last close 61000, got %v, %v", spot, err)
	}

	writeFile(t, dir, "BTCUSDT_spot.csv", "spot\n60900\n60950.5\n")
	spot, err = p.GetSpot("BTCUSDT")
	if err != nil || spot != 60950.5 {
		t.Fatalf("expected quoted spot 60950.5, got %v, %v", spot, err)
	}
}

func TestLocalCSVMarks(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "BTC_marks.csv", `symbol,mark
BTC-261018-60000-C,1250.5
BTC-261018-60000-P,1180
not-a-symbol,10
BTC-261019-61000.00-C,900
`)
	marks, err := NewLocalCSVProvider(dir, nil).GetMarks("BTCUSDT")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(marks) != 3 {
		t.Fatalf("expected 3 parsable marks, got %d", len(marks))
	}
	want := Mark{
		Underlying: "BTC",
		Expiry:     time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC),
		Strike:     60000,
		Kind:       pricing.Call,
		Price:      1250.5,
	}
	if marks[0] != want {
		t.Fatalf("expected %+v, got %+v", want, marks[0])
	}
}

func TestLocalCSVFallsBackToSecondary(t *testing.T) {
	synth := NewSyntheticProvider(3, nil).WithClock(testClock)
	p := NewLocalCSVProvider(t.TempDir(), synth)

	want, _ := synth.GetSpot("BNBUSDT")
	got, err := p.GetSpot("BNBUSDT")
	if err != nil || got != want {
		t.Fatalf("expected secondary spot %v, got %v, %v", want, got, err)
	}

	marks, err := p.GetMarks("BNB")
	if err != nil || len(marks) == 0 {
		t.Fatalf("expected secondary marks, got %d, %v", len(marks), err)
	}
}
