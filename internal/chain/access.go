package chain

import "math"

const strikeEps = 1e-9

// Row returns the row index of strike.
func (g *Grid) Row(strike float64) (int, bool) {
	for i, k := range g.Strikes {
		if math.Abs(k-strike) <= strikeEps*math.Max(1, math.Abs(strike)) {
			return i, true
		}
	}
	return 0, false
}

// Column returns the column index of a day offset.
func (g *Grid) Column(dayOffset int) (int, bool) {
	if len(g.Days) == 0 {
		return 0, false
	}
	j := dayOffset - g.Days[0]
	if j < 0 || j >= len(g.Days) {
		return 0, false
	}
	return j, true
}

// Cell returns the quote for strike and day offset.
func (g *Grid) Cell(strike float64, dayOffset int) (Quote, bool) {
	i, ok := g.Row(strike)
	if !ok {
		return Quote{}, false
	}
	j, ok := g.Column(dayOffset)
	if !ok {
		return Quote{}, false
	}
	return g.Rows[i][j], true
}

// ReferenceRow returns the index of the reference strike row.
func (g *Grid) ReferenceRow() (int, bool) {
	return g.Row(g.ReferenceStrike)
}

// Quotes returns every cell in row-major order.
func (g *Grid) Quotes() []Quote {
	out := make([]Quote, 0, len(g.Strikes)*len(g.Days))
	for _, row := range g.Rows {
		out = append(out, row...)
	}
	return out
}
