package data

import (
	"math"
	"sort"
	"time"

	"github.com/contactkeval/option-theo/internal/pricing"
)

// Snapshot is a frozen set of option marks for one underlying. Feeds keep
// publishing into their own maps; a grid build only ever reads a Snapshot,
// so it never sees a half-applied update.
type Snapshot struct {
	underlying string
	asOf       time.Time
	marks      map[string]float64
	expiries   []time.Time
}

// NewSnapshot copies marks for underlying. Marks of another underlying and
// marks that are not a positive finite price are dropped. A later mark for
// the same contract replaces an earlier one.
func NewSnapshot(underlying string, asOf time.Time, marks []Mark) *Snapshot {
	s := &Snapshot{
		underlying: UnderlyingOf(underlying),
		asOf:       asOf,
		marks:      make(map[string]float64, len(marks)),
	}

	seen := make(map[time.Time]bool)
	for _, m := range marks {
		if UnderlyingOf(m.Underlying) != s.underlying {
			continue
		}
		if !(m.Price > 0) || math.IsInf(m.Price, 0) || !m.Kind.Valid() {
			continue
		}
		exp := truncateDay(m.Expiry)
		s.marks[OptionSymbol(s.underlying, exp, m.Strike, m.Kind)] = m.Price
		if !seen[exp] {
			seen[exp] = true
			s.expiries = append(s.expiries, exp)
		}
	}
	sort.Slice(s.expiries, func(i, j int) bool { return s.expiries[i].Before(s.expiries[j]) })
	return s
}

// Lookup returns the mark for a contract. A nil snapshot has no marks.
func (s *Snapshot) Lookup(expiry time.Time, strike float64, kind pricing.OptionKind) (float64, bool) {
	if s == nil {
		return 0, false
	}
	p, ok := s.marks[OptionSymbol(s.underlying, truncateDay(expiry), strike, kind)]
	return p, ok
}

// Len returns the number of usable marks.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.marks)
}

// Expiries lists the expiry dates present in the snapshot, ascending.
func (s *Snapshot) Expiries() []time.Time {
	if s == nil {
		return nil
	}
	return append([]time.Time(nil), s.expiries...)
}

// AsOf is the time the marks were captured.
func (s *Snapshot) AsOf() time.Time {
	if s == nil {
		return time.Time{}
	}
	return s.asOf
}

// Underlying is the base asset the snapshot covers.
func (s *Snapshot) Underlying() string {
	if s == nil {
		return ""
	}
	return s.underlying
}
