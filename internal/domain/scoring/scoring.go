// Package scoring turns quality metrics into tiered points and a bounded reward signal.
package scoring

import (
	"math"

	"github.com/okian/listenproof/internal/domain/model"
)

// DefaultMaxPoints is the normalisation denominator when none is configured.
const DefaultMaxPoints = 1000

// Option applies a configuration option to the Scorer.
type Option func(*Scorer)

// WithMaxPoints sets the denominator used by Normalize.
func WithMaxPoints(maxPoints int) Option {
	return func(s *Scorer) {
		if maxPoints > 0 {
			s.maxPoints = maxPoints
		}
	}
}

// WithPointsCeiling caps total points. Defaults to the max points value.
func WithPointsCeiling(ceiling int) Option {
	return func(s *Scorer) {
		if ceiling > 0 {
			s.ceiling = ceiling
		}
	}
}

// WithVolumeTable replaces the total-minutes table.
func WithVolumeTable(t Table) Option {
	return func(s *Scorer) {
		if len(t.tiers) > 0 {
			s.volume = t
		}
	}
}

// WithDiversityTable replaces the unique-artists table.
func WithDiversityTable(t Table) Option {
	return func(s *Scorer) {
		if len(t.tiers) > 0 {
			s.diversity = t
		}
	}
}

// WithHistoryTable replaces the activity-period table.
func WithHistoryTable(t Table) Option {
	return func(s *Scorer) {
		if len(t.tiers) > 0 {
			s.history = t
		}
	}
}

// Scorer applies the volume, diversity and history tables. It is immutable
// after construction and safe for concurrent use.
type Scorer struct {
	volume    Table
	diversity Table
	history   Table
	maxPoints int
	ceiling   int
}

// New creates a Scorer with the default tables.
func New(opts ...Option) *Scorer {
	s := &Scorer{
		volume:    VolumeTable,
		diversity: DiversityTable,
		history:   HistoryTable,
		maxPoints: DefaultMaxPoints,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.ceiling == 0 {
		s.ceiling = s.maxPoints
	}
	return s
}

// Score computes the breakdown for metrics given the identity's previously
// recorded total.
func (s *Scorer) Score(m model.QualityMetrics, priorTotal int) model.ScoreBreakdown {
	b := model.ScoreBreakdown{
		Volume:    s.volume.Lookup(m.TotalMinutes),
		Diversity: s.diversity.Lookup(int64(m.UniqueArtistCount)),
		History:   s.history.Lookup(int64(m.ActivityPeriodDays)),
	}

	b.TotalPoints = b.Volume.Points + b.Diversity.Points + b.History.Points
	if b.TotalPoints > s.ceiling {
		b.TotalPoints = s.ceiling
	}
	b.DifferentialPoints = Differential(b.TotalPoints, priorTotal)
	b.NormalizedScore = s.Normalize(b.TotalPoints)
	b.NormalizedDifferential = s.Normalize(b.DifferentialPoints)
	return b
}

// Normalize maps points onto [0,1] using the configured max points.
func (s *Scorer) Normalize(points int) float64 {
	if s.maxPoints <= 0 || points <= 0 {
		return 0
	}
	return math.Min(1, float64(points)/float64(s.maxPoints))
}

// MaxPoints returns the normalisation denominator.
func (s *Scorer) MaxPoints() int { return s.maxPoints }

// Differential is the point increase over the prior total, never negative.
func Differential(total, prior int) int {
	if d := total - prior; d > 0 {
		return d
	}
	return 0
}
