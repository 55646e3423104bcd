package data

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gocarina/gocsv"

	"github.com/contactkeval/option-theo/internal/logger"
)

// localCSVProvider implements Provider over CSV snapshots in one directory:
//
//	<PAIR>_<interval>.csv     date,open,high,low,close,volume
//	<PAIR>_spot.csv           spot (optional, last row wins)
//	<UNDERLYING>_marks.csv    symbol,mark
type localCSVProvider struct {
	dir       string
	secondary Provider
}

type barRecord struct {
	Date   string  `csv:"date"`
	Open   float64 `csv:"open"`
	High   float64 `csv:"high"`
	Low    float64 `csv:"low"`
	Close  float64 `csv:"close"`
	Volume float64 `csv:"volume"`
}

type spotRecord struct {
	Spot float64 `csv:"spot"`
}

type markRecord struct {
	Symbol string  `csv:"symbol"`
	Mark   float64 `csv:"mark"`
}

var barDateLayouts = []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"}

// NewLocalCSVProvider convenience constructor.
func NewLocalCSVProvider(dir string, secondary Provider) *localCSVProvider {
	return &localCSVProvider{dir: dir, secondary: secondary}
}

func (p *localCSVProvider) Secondary() Provider {
	return p.secondary
}

func (p *localCSVProvider) GetBars(pair, interval string, limit int) ([]Bar, error) {
	var records []*barRecord
	path := p.path(fmt.Sprintf("%s_%s.csv", strings.ToUpper(pair), interval))
	found, err := readCSV(path, &records)
	if err != nil {
		return nil, err
	}
	if !found || len(records) == 0 {
		if p.secondary != nil {
			logger.Debugf("no %s %s bars in %s, using secondary provider", pair, interval, p.dir)
			return p.secondary.GetBars(pair, interval, limit)
		}
		return nil, fmt.Errorf("%w: %s %s bars", ErrNoData, pair, interval)
	}

	bars := make([]Bar, 0, len(records))
	for i, r := range records {
		date, err := parseBarDate(r.Date)
		if err != nil {
			return nil, fmt.Errorf("%s row %d: %w", path, i+2, err)
		}
		bars = append(bars, Bar{Date: date, Open: r.Open, High: r.High, Low: r.Low, Close: r.Close, Volume: r.Volume})
	}
	sort.SliceStable(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })

	if limit > 0 && len(bars) > limit {
		bars = bars[len(bars)-limit:]
	}
	logger.Debugf("loaded %d %s %s bars from %s", len(bars), pair, interval, path)
	return bars, nil
}

func (p *localCSVProvider) GetSpot(pair string) (float64, error) {
	var records []*spotRecord
	found, err := readCSV(p.path(strings.ToUpper(pair)+"_spot.csv"), &records)
	if err != nil {
		return 0, err
	}
	if found && len(records) > 0 {
		if s := records[len(records)-1].Spot; s > 0 {
			return s, nil
		}
	}

	// no quote on file: fall back to the newest candle of any interval
	matches, _ := filepath.Glob(p.path(strings.ToUpper(pair) + "_*.csv"))
	sort.Strings(matches)
	for _, m := range matches {
		interval := strings.TrimSuffix(strings.TrimPrefix(filepath.Base(m), strings.ToUpper(pair)+"_"), ".csv")
		if interval == "spot" {
			continue
		}
		bars, err := p.GetBars(pair, interval, 1)
		if err != nil {
			continue
		}
		if c, ok := lastClose(bars); ok {
			return c, nil
		}
	}

	if p.secondary != nil {
		return p.secondary.GetSpot(pair)
	}
	return 0, fmt.Errorf("%w: %s spot", ErrNoData, pair)
}

func (p *localCSVProvider) GetMarks(underlying string) ([]Mark, error) {
	var records []*markRecord
	path := p.path(UnderlyingOf(underlying) + "_marks.csv")
	found, err := readCSV(path, &records)
	if err != nil {
		return nil, err
	}
	if !found {
		if p.secondary != nil {
			return p.secondary.GetMarks(underlying)
		}
		return nil, fmt.Errorf("%w: %s marks", ErrNoData, underlying)
	}

	marks := make([]Mark, 0, len(records))
	for _, r := range records {
		m, err := ParseOptionSymbol(r.Symbol)
		if err != nil {
			logger.Debugf("%s: skipping %v", path, err)
			continue
		}
		m.Price = r.Mark
		marks = append(marks, m)
	}
	logger.Debugf("loaded %d %s marks from %s", len(marks), underlying, path)
	return marks, nil
}

func (p *localCSVProvider) path(name string) string {
	return filepath.Join(p.dir, name)
}

// readCSV decodes path into out. A missing file is not an error; found
// reports whether it existed.
func readCSV(path string, out interface{}) (found bool, err error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	if err := gocsv.UnmarshalFile(f, out); err != nil {
		if errors.Is(err, gocsv.ErrEmptyCSVFile) {
			return true, nil
		}
		return true, fmt.Errorf("read %s: %w", path, err)
	}
	return true, nil
}

func parseBarDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range barDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised bar date %q", s)
}
