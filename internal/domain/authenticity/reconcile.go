// Package authenticity checks a contribution against the provider's own record
// of the same listening history.
package authenticity

import (
	"sort"
	"time"

	"github.com/okian/listenproof/internal/domain/model"
)

// Reconciliation is the outcome of matching submitted events to reference events.
type Reconciliation struct {
	Submitted int
	Confirmed int
	Score     float64 // Confirmed/Submitted, 0 when nothing was submitted
}

// Reconcile confirms each submitted event against an unused reference event
// with the same track id whose timestamp lies within ±tolerance. Submitted
// events are matched in time order, each taking the closest free candidate,
// so one reference play never confirms two submitted plays.
func Reconcile(submitted, reference []model.ListenEvent, tolerance time.Duration) Reconciliation {
	r := Reconciliation{Submitted: len(submitted)}
	if r.Submitted == 0 {
		return r
	}

	type candidate struct {
		at   time.Time
		used bool
	}
	byTrack := make(map[string][]*candidate, len(reference))
	for _, ev := range reference {
		byTrack[ev.TrackID] = append(byTrack[ev.TrackID], &candidate{at: ev.PlayedAt})
	}

	order := make([]int, len(submitted))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return submitted[order[a]].PlayedAt.Before(submitted[order[b]].PlayedAt)
	})

	for _, i := range order {
		ev := submitted[i]
		var best *candidate
		var bestGap time.Duration
		for _, c := range byTrack[ev.TrackID] {
			if c.used {
				continue
			}
			gap := absDuration(c.at.Sub(ev.PlayedAt))
			if gap > tolerance {
				continue
			}
			if best == nil || gap < bestGap {
				best, bestGap = c, gap
			}
		}
		if best != nil {
			best.used = true
			r.Confirmed++
		}
	}

	r.Score = float64(r.Confirmed) / float64(r.Submitted)
	return r
}

// FetchRange is the window of reference history needed to reconcile events.
func FetchRange(events []model.ListenEvent, tolerance time.Duration) model.TimeRange {
	var r model.TimeRange
	for i, ev := range events {
		if i == 0 || ev.PlayedAt.Before(r.From) {
			r.From = ev.PlayedAt
		}
		if i == 0 || ev.PlayedAt.After(r.To) {
			r.To = ev.PlayedAt
		}
	}
	r.From = r.From.Add(-tolerance)
	r.To = r.To.Add(tolerance)
	return r
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
