// Package report writes grid results to disk and to the terminal.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/gocarina/gocsv"

	"github.com/contactkeval/option-theo/internal/chain"
	"github.com/contactkeval/option-theo/internal/engine"
)

// File names written into the report directory.
const (
	JSONFile = "grid.json"
	CSVFile  = "grid.csv"
)

// Row is one grid cell in the CSV export.
type Row struct {
	Kind       string  `csv:"kind"`
	Strike     float64 `csv:"strike"`
	DTE        int     `csv:"dte"`
	Expiry     string  `csv:"expiry"`
	TYears     float64 `csv:"t_years"`
	Market     string  `csv:"market"` // empty when the cell has no mark
	Theo       float64 `csv:"theo"`
	IV         string  `csv:"iv"` // empty when there is no mark or the solve failed
	Divergence float64 `csv:"divergence"`
	Scale      float64 `csv:"scale"`
	Reference  bool    `csv:"reference"`
}

func WriteJSON(res *engine.Result, outdir string) error {
	b, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(outdir, JSONFile), b, 0644)
}

func WriteCSV(res *engine.Result, outdir string) error {
	f, err := os.Create(filepath.Join(outdir, CSVFile))
	if err != nil {
		return err
	}
	defer f.Close()

	rows := Rows(res)
	if err := gocsv.MarshalFile(&rows, f); err != nil {
		return fmt.Errorf("write %s: %w", CSVFile, err)
	}
	return f.Sync()
}

// Rows flattens both grids, calls first, in row-major order.
func Rows(res *engine.Result) []*Row {
	var rows []*Row
	for _, g := range []*chain.Grid{res.Calls, res.Puts} {
		if g == nil {
			continue
		}
		for _, q := range g.Quotes() {
			rows = append(rows, &Row{
				Kind:       string(g.Kind),
				Strike:     q.Strike,
				DTE:        q.DayOffset,
				Expiry:     expiryLabel(res, g, q.DayOffset),
				TYears:     q.TimeToExpiry,
				Market:     optional(q.MarketPrice),
				Theo:       q.TheoreticalPrice,
				IV:         optional(q.ImpliedVolatility),
				Divergence: q.Divergence,
				Scale:      q.Scale,
				Reference:  q.IsReference,
			})
		}
	}
	return rows
}

// WriteTable renders the value selected by the grid mode for every cell:
// theoretical price in price mode, implied volatility in iv mode. Live cells
// are suffixed with their divergence.
func WriteTable(w io.Writer, res *engine.Result) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	for _, g := range []*chain.Grid{res.Calls, res.Puts} {
		if g == nil {
			continue
		}
		fmt.Fprintf(tw, "%s %s\tspot %s\tvol %.2f%%\tmax div %s\t\n",
			res.Underlying, g.Kind, strconv.FormatFloat(res.Spot, 'f', -1, 64), res.Volatility*100, formatFloat(g.MaxDivergence))

		fmt.Fprint(tw, "strike\t")
		for _, d := range g.Days {
			fmt.Fprintf(tw, "%s\t", expiryLabel(res, g, d))
		}
		fmt.Fprintln(tw)

		for i, k := range g.Strikes {
			marker := ""
			if k == g.ReferenceStrike {
				marker = "*"
			}
			fmt.Fprintf(tw, "%s%s\t", marker, strconv.FormatFloat(k, 'f', -1, 64))
			for _, q := range g.Rows[i] {
				fmt.Fprintf(tw, "%s\t", cellText(g.Mode, q))
			}
			fmt.Fprintln(tw)
		}
		fmt.Fprintln(tw)
	}
	return tw.Flush()
}

func cellText(mode chain.DivergenceMode, q chain.Quote) string {
	var s string
	if mode == chain.ModeIV {
		if q.ImpliedVolatility == nil {
			s = "-"
		} else {
			s = fmt.Sprintf("%.1f%%", *q.ImpliedVolatility*100)
		}
	} else {
		s = formatFloat(q.TheoreticalPrice)
	}
	if q.Live() {
		s += fmt.Sprintf(" (%+.2f)", q.Divergence)
	}
	return s
}

func expiryLabel(res *engine.Result, g *chain.Grid, dayOffset int) string {
	j, ok := g.Column(dayOffset)
	if !ok || j >= len(res.Expiries) {
		return strconv.Itoa(dayOffset) + "d"
	}
	return res.Expiries[j].Format(time.DateOnly)
}

func optional(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func formatFloat(v float64) string {
	switch {
	case v >= 100:
		return strconv.FormatFloat(v, 'f', 2, 64)
	case v >= 1:
		return strconv.FormatFloat(v, 'f', 4, 64)
	}
	return strconv.FormatFloat(v, 'g', 4, 64)
}
