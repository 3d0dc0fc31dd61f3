package scoring

import (
	"fmt"
	"sort"

	"github.com/okian/listenproof/internal/domain/model"
)

// Tier awards Points once a metric reaches Threshold (inclusive).
type Tier struct {
	Threshold int64
	Points    int
	Label     string // e.g. "5000+ minutes"
}

// Table is an immutable, ascending list of tiers plus the label used when no
// tier is met.
type Table struct {
	tiers []Tier
	floor string
}

// NewTable validates and builds a tier table. Thresholds must be strictly
// ascending and points must never decrease, so that lookups are monotonic.
func NewTable(floorLabel string, tiers ...Tier) (Table, error) {
	if len(tiers) == 0 {
		return Table{}, fmt.Errorf("%w: no tiers", ErrInvalidTable)
	}
	sorted := make([]Tier, len(tiers))
	copy(sorted, tiers)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Threshold < sorted[j].Threshold })

	for i := range sorted {
		if sorted[i].Points < 0 {
			return Table{}, fmt.Errorf("%w: negative points at threshold %d", ErrInvalidTable, sorted[i].Threshold)
		}
		if i == 0 {
			continue
		}
		if sorted[i].Threshold == sorted[i-1].Threshold {
			return Table{}, fmt.Errorf("%w: duplicate threshold %d", ErrInvalidTable, sorted[i].Threshold)
		}
		if sorted[i].Points < sorted[i-1].Points {
			return Table{}, fmt.Errorf("%w: points decrease at threshold %d", ErrInvalidTable, sorted[i].Threshold)
		}
	}
	return Table{tiers: sorted, floor: floorLabel}, nil
}

// MustTable is NewTable for package-level defaults.
func MustTable(floorLabel string, tiers ...Tier) Table {
	t, err := NewTable(floorLabel, tiers...)
	if err != nil {
		panic(err)
	}
	return t
}

// Lookup returns the highest tier whose threshold v meets.
func (t Table) Lookup(v int64) model.TierResult {
	for i := len(t.tiers) - 1; i >= 0; i-- {
		if v >= t.tiers[i].Threshold {
			return model.TierResult{Points: t.tiers[i].Points, Reason: fmt.Sprintf("%d (%s)", t.tiers[i].Points, t.tiers[i].Label)}
		}
	}
	return model.TierResult{Points: 0, Reason: "0 (" + t.floor + ")"}
}

// Tiers returns a copy of the table rows, ascending.
func (t Table) Tiers() []Tier {
	out := make([]Tier, len(t.tiers))
	copy(out, t.tiers)
	return out
}

// MaxPoints is the largest award the table can produce.
func (t Table) MaxPoints() int {
	if len(t.tiers) == 0 {
		return 0
	}
	return t.tiers[len(t.tiers)-1].Points
}

// Default tables.
var (
	VolumeTable = MustTable("< 30 minutes",
		Tier{Threshold: 30, Points: 5, Label: "30+ minutes"},
		Tier{Threshold: 100, Points: 25, Label: "100+ minutes"},
		Tier{Threshold: 500, Points: 50, Label: "500+ minutes"},
		Tier{Threshold: 1000, Points: 150, Label: "1000+ minutes"},
		Tier{Threshold: 5000, Points: 500, Label: "5000+ minutes"},
	)

	DiversityTable = MustTable("< 3 artists",
		Tier{Threshold: 3, Points: 5, Label: "3+ artists"},
		Tier{Threshold: 5, Points: 10, Label: "5+ artists"},
		Tier{Threshold: 10, Points: 30, Label: "10+ artists"},
		Tier{Threshold: 25, Points: 75, Label: "25+ artists"},
		Tier{Threshold: 50, Points: 150, Label: "50+ artists"},
	)

	HistoryTable = MustTable("< 7 days",
		Tier{Threshold: 7, Points: 10, Label: "7+ days"},
		Tier{Threshold: 30, Points: 25, Label: "1+ month"},
		Tier{Threshold: 90, Points: 50, Label: "3+ months"},
		Tier{Threshold: 180, Points: 100, Label: "6+ months"},
	)
)
