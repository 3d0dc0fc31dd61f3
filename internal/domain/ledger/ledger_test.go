package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/listenproof/internal/adapters/repository"
	"github.com/okian/listenproof/internal/domain/model"
)

// contendedStore reports contention for the first n sections.
type contendedStore struct {
	repository.Store
	n     int
	calls int
}

func (c *contendedStore) Atomically(ctx context.Context, id model.HashedIdentity, fn func(context.Context, repository.Tx) error) error {
	c.calls++
	if c.calls <= c.n {
		return repository.ErrContention
	}
	return c.Store.Atomically(ctx, id, fn)
}

func commit(ctx context.Context, l *Ledger, id model.HashedIdentity, total int, runKey string) (Prior, model.LedgerEntry, error) {
	var (
		prior Prior
		entry model.LedgerEntry
	)
	err := l.Session(ctx, id, func(ctx context.Context, s *Session) error {
		var err error
		if prior, err = s.Read(ctx); err != nil {
			return err
		}
		entry, err = s.Commit(ctx, model.ProofRecord{RunKey: runKey, TotalPoints: total, Score: float64(total) / 1000})
		return err
	})
	return prior, entry, err
}

func TestSession(t *testing.T) {
	Convey("Given a ledger over an empty store", t, func() {
		ctx := context.Background()
		now := time.Date(2024, 8, 1, 0, 0, 0, 0, time.UTC)
		store := repository.NewMemoryStore()
		l := New(store, WithClock(func() time.Time { return now }), WithBaseDelay(time.Millisecond))
		id := model.HashedIdentity("feedbeef")

		Convey("When an identity contributes for the first time", func() {
			prior, entry, err := commit(ctx, l, id, 630, "job-1/1")

			Convey("Then the prior should be empty and the entry created", func() {
				So(err, ShouldBeNil)
				So(prior.Exists, ShouldBeFalse)
				So(prior.State().PreviouslyContributed, ShouldBeFalse)
				So(entry.TotalPoints, ShouldEqual, 630)
				So(entry.TimesRewarded, ShouldEqual, 1)
				So(entry.FirstSeen, ShouldEqual, now)
			})

			Convey("Then a proof record should be stored for the run", func() {
				proofs, err := l.Proofs(ctx, id)
				So(err, ShouldBeNil)
				So(proofs, ShouldHaveLength, 1)
				So(proofs[0].Identity, ShouldEqual, id)
				So(proofs[0].RunKey, ShouldEqual, "job-1/1")
				So(proofs[0].TotalPoints, ShouldEqual, 630)
				So(proofs[0].CreatedAt, ShouldEqual, now)
			})

			Convey("When the same identity returns with more data", func() {
				prior, entry, err := commit(ctx, l, id, 700, "job-2/2")

				Convey("Then the prior total should be visible and the total grow", func() {
					So(err, ShouldBeNil)
					So(prior.Exists, ShouldBeTrue)
					So(prior.State().PriorTotalPoints, ShouldEqual, 630)
					So(prior.State().PreviouslyRewarded, ShouldBeTrue)
					So(entry.TotalPoints, ShouldEqual, 700)
					So(entry.TimesRewarded, ShouldEqual, 2)
					proofs, _ := l.Proofs(ctx, id)
					So(proofs, ShouldHaveLength, 2)
				})
			})

			Convey("When the same identity returns with less data", func() {
				_, entry, err := commit(ctx, l, id, 500, "job-3/3")

				Convey("Then the stored total should not decrease", func() {
					So(err, ShouldBeNil)
					So(entry.TotalPoints, ShouldEqual, 630)
					So(entry.TimesRewarded, ShouldEqual, 2)
				})
			})

			Convey("When the same run is committed again", func() {
				_, entry, err := commit(ctx, l, id, 630, "job-1/1")

				Convey("Then the commit should be idempotent", func() {
					So(err, ShouldBeNil)
					So(entry.TimesRewarded, ShouldEqual, 1)
					stored, _ := l.Lookup(ctx, id)
					So(stored.Entry.TimesRewarded, ShouldEqual, 1)
					proofs, _ := l.Proofs(ctx, id)
					So(proofs, ShouldHaveLength, 1)
				})
			})
		})

		Convey("When committing without reading", func() {
			err := l.Session(ctx, id, func(ctx context.Context, s *Session) error {
				_, err := s.Commit(ctx, model.ProofRecord{RunKey: "r", TotalPoints: 10})
				return err
			})

			Convey("Then ErrCommitBeforeRead should be returned and nothing stored", func() {
				So(errors.Is(err, ErrCommitBeforeRead), ShouldBeTrue)
				So(store.Len(), ShouldEqual, 0)
			})
		})

		Convey("When committing twice in one session", func() {
			err := l.Session(ctx, id, func(ctx context.Context, s *Session) error {
				if _, err := s.Read(ctx); err != nil {
					return err
				}
				if _, err := s.Commit(ctx, model.ProofRecord{RunKey: "r1", TotalPoints: 10}); err != nil {
					return err
				}
				_, err := s.Commit(ctx, model.ProofRecord{RunKey: "r2", TotalPoints: 20})
				return err
			})

			Convey("Then the second commit should be refused and the session rolled back", func() {
				So(errors.Is(err, ErrAlreadyCommitted), ShouldBeTrue)
				So(store.Len(), ShouldEqual, 0)
				proofs, _ := store.Proofs(ctx, id)
				So(proofs, ShouldBeEmpty)
			})
		})

		Convey("When the session only reads", func() {
			err := l.Session(ctx, id, func(ctx context.Context, s *Session) error {
				_, err := s.Read(ctx)
				return err
			})

			Convey("Then the ledger should be untouched", func() {
				So(err, ShouldBeNil)
				So(store.Len(), ShouldEqual, 0)
			})
		})

		Convey("When two runs for one identity race", func() {
			var wg sync.WaitGroup
			priors := make([]Prior, 2)
			for i := 0; i < 2; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					priors[i], _, _ = commit(ctx, l, id, 630, "")
				}(i)
			}
			wg.Wait()

			Convey("Then exactly one should see an empty prior", func() {
				empty := 0
				for _, p := range priors {
					if !p.Exists {
						empty++
					}
				}
				So(empty, ShouldEqual, 1)
				stored, _ := l.Lookup(ctx, id)
				So(stored.Entry.TimesRewarded, ShouldEqual, 2)
			})
		})
	})
}

func TestSessionContention(t *testing.T) {
	Convey("Given a store that reports contention", t, func() {
		ctx := context.Background()
		id := model.HashedIdentity("c0ffee")

		Convey("When contention clears before the attempts run out", func() {
			store := &contendedStore{Store: repository.NewMemoryStore(), n: 2}
			l := New(store, WithAttempts(3), WithBaseDelay(time.Millisecond))
			_, entry, err := commit(ctx, l, id, 100, "r")

			Convey("Then the session should succeed", func() {
				So(err, ShouldBeNil)
				So(entry.TotalPoints, ShouldEqual, 100)
				So(store.calls, ShouldEqual, 3)
			})
		})

		Convey("When contention persists", func() {
			store := &contendedStore{Store: repository.NewMemoryStore(), n: 10}
			l := New(store, WithAttempts(3), WithBaseDelay(time.Millisecond))
			_, _, err := commit(ctx, l, id, 100, "r")

			Convey("Then ErrLedgerContention should be returned after three attempts", func() {
				So(errors.Is(err, ErrLedgerContention), ShouldBeTrue)
				So(store.calls, ShouldEqual, 3)
			})
		})
	})
}
