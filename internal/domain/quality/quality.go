// Package quality computes completeness statistics for a contribution.
package quality

import (
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/okian/listenproof/internal/domain/model"
)

const (
	msPerMinute = int64(time.Minute / time.Millisecond)
	day         = 24 * time.Hour
)

// Assess aggregates the submitted events into QualityMetrics. Events with a
// non-positive duration are counted as tracks but excluded from every total.
// Any event missing a track id or timestamp fails the whole contribution.
func Assess(c model.Contribution) (model.QualityMetrics, error) {
	if err := Validate(c.Events); err != nil {
		return model.QualityMetrics{}, err
	}

	var (
		m       = model.QualityMetrics{DataValidated: true}
		totalMs int64
		artists = make(map[string]struct{})
	)
	m.TrackCount = len(c.Events)

	for i, ev := range c.Events {
		if i == 0 || ev.PlayedAt.Before(m.FirstListen) {
			m.FirstListen = ev.PlayedAt
		}
		if i == 0 || ev.PlayedAt.After(m.LastListen) {
			m.LastListen = ev.PlayedAt
		}

		if ev.DurationMs <= 0 {
			m.ExcludedEvents++
			continue
		}
		totalMs += ev.DurationMs
		for _, a := range ev.ArtistIDs {
			if a != "" {
				artists[a] = struct{}{}
			}
		}
	}

	m.TotalMinutes = totalMs / msPerMinute
	m.UniqueArtistCount = len(artists)
	if m.TrackCount > 1 {
		m.ActivityPeriodDays = int(m.LastListen.Sub(m.FirstListen) / day)
	}
	return m, nil
}

// Validate checks the structural validity of every event and reports all
// violations at once.
func Validate(events []model.ListenEvent) error {
	var errs *multierror.Error
	for i, ev := range events {
		if ev.TrackID == "" {
			errs = multierror.Append(errs, fmt.Errorf("event %d: missing track id", i))
		}
		if ev.PlayedAt.IsZero() {
			errs = multierror.Append(errs, fmt.Errorf("event %d: missing timestamp", i))
		}
	}
	if err := errs.ErrorOrNil(); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedContribution, err)
	}
	return nil
}

// Score is the share of tracks that contributed to the totals, in [0,1].
func Score(m model.QualityMetrics) float64 {
	if m.TrackCount == 0 {
		return 0
	}
	accepted := m.TrackCount - m.ExcludedEvents
	if accepted < 0 {
		accepted = 0
	}
	return float64(accepted) / float64(m.TrackCount)
}
