// Package ledger tracks what each identity has already been rewarded for, so
// a repeat contributor is paid only for growth.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/okian/listenproof/internal/adapters/repository"
	"github.com/okian/listenproof/internal/domain/model"
	"github.com/okian/listenproof/pkg/logger"
	"github.com/okian/listenproof/pkg/metrics"
)

// UniquenessScore is reported for every run. Repeat contributions are
// discounted through differential points instead.
const UniquenessScore = 1.0

// Defaults for contention handling.
const (
	DefaultAttempts  = 3
	defaultBaseDelay = 50 * time.Millisecond
)

// Prior is the ledger state read at the start of a session.
type Prior struct {
	Entry  model.LedgerEntry
	Exists bool
}

// State converts the prior into the reported ledger attributes.
func (p Prior) State() model.LedgerState {
	return model.LedgerState{
		PreviouslyContributed: p.Exists,
		PreviouslyRewarded:    p.Exists && p.Entry.TimesRewarded > 0,
		PriorTotalPoints:      p.Entry.TotalPoints,
		TimesRewarded:         p.Entry.TimesRewarded,
	}
}

// Ledger runs read-then-commit sessions over a repository.Store.
type Ledger struct {
	store     repository.Store
	attempts  int
	baseDelay time.Duration
	now       func() time.Time
	log       logger.Logger
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithAttempts sets how many times a contended session is tried.
func WithAttempts(n int) Option {
	return func(l *Ledger) {
		if n > 0 {
			l.attempts = n
		}
	}
}

// WithBaseDelay sets the first backoff between contended attempts.
func WithBaseDelay(d time.Duration) Option {
	return func(l *Ledger) {
		if d > 0 {
			l.baseDelay = d
		}
	}
}

// WithClock overrides the clock used for last_seen.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		if now != nil {
			l.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(lg logger.Logger) Option {
	return func(l *Ledger) {
		if lg != nil {
			l.log = lg
		}
	}
}

// New creates a Ledger over store.
func New(store repository.Store, opts ...Option) *Ledger {
	l := &Ledger{
		store:     store,
		attempts:  DefaultAttempts,
		baseDelay: defaultBaseDelay,
		now:       time.Now,
		log:       logger.Nop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Session runs fn with exclusive access to identity's entry. Everything fn
// does through the Session is one atomic read-modify-write; if fn returns an
// error nothing is committed. Contention is retried with backoff and, once
// the attempts are spent, reported as ErrLedgerContention. fn may run more
// than once and must not have side effects outside the session.
func (l *Ledger) Session(ctx context.Context, identity model.HashedIdentity, fn func(ctx context.Context, s *Session) error) error {
	start := time.Now()
	var (
		attempt   int
		committed bool
	)

	backoff := retry.BackoffFunc(func() (time.Duration, bool) {
		if attempt >= l.attempts {
			return 0, true
		}
		return l.baseDelay << (attempt - 1), false
	})
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		var s *Session
		err := l.store.Atomically(ctx, identity, func(ctx context.Context, tx repository.Tx) error {
			s = &Session{tx: tx, identity: identity, now: l.now}
			return fn(ctx, s)
		})
		committed = err == nil && s != nil && s.committed
		if errors.Is(err, repository.ErrContention) {
			metrics.RecordLedgerContention()
			l.log.Warn(ctx, "ledger contention",
				logger.String("identity", identity.Short()),
				logger.Int("attempt", attempt),
			)
			return retry.RetryableError(err)
		}
		return err
	})

	latency := float64(time.Since(start).Milliseconds())
	switch {
	case err == nil && committed:
		metrics.RecordLedgerSession("committed", latency)
		return nil
	case err == nil:
		metrics.RecordLedgerSession("read_only", latency)
		return nil
	case errors.Is(err, repository.ErrContention):
		metrics.RecordLedgerSession("contention", latency)
		return fmt.Errorf("%w: %s after %d attempts: %w", ErrLedgerContention, identity.Short(), attempt, err)
	default:
		metrics.RecordLedgerSession("failed", latency)
		return err
	}
}

// Lookup returns the current prior for identity without locking it.
func (l *Ledger) Lookup(ctx context.Context, identity model.HashedIdentity) (Prior, error) {
	e, ok, err := l.store.Lookup(ctx, identity)
	if err != nil {
		return Prior{}, err
	}
	return Prior{Entry: e, Exists: ok}, nil
}

// Proofs returns the proof records committed for identity, oldest first.
func (l *Ledger) Proofs(ctx context.Context, identity model.HashedIdentity) ([]model.ProofRecord, error) {
	return l.store.Proofs(ctx, identity)
}

// Session is one atomic read-then-commit on a single identity.
type Session struct {
	tx        repository.Tx
	identity  model.HashedIdentity
	now       func() time.Time
	prior     *Prior
	committed bool
}

// Read returns the stored entry. It must precede Commit.
func (s *Session) Read(ctx context.Context) (Prior, error) {
	if s.prior != nil {
		return *s.prior, nil
	}
	e, ok, err := s.tx.Get(ctx)
	if err != nil {
		return Prior{}, err
	}
	p := Prior{Entry: e, Exists: ok}
	s.prior = &p
	return p, nil
}

// Commit records a rewarded run: the entry update and rec are written in
// the same atomic section. The stored total never decreases and
// times_rewarded grows by one. rec.TotalPoints is the run's total and
// rec.RunKey its idempotency key; committing a run key equal to the stored
// last_run_key is a retried run and leaves the store untouched.
func (s *Session) Commit(ctx context.Context, rec model.ProofRecord) (model.LedgerEntry, error) {
	if s.prior == nil {
		return model.LedgerEntry{}, ErrCommitBeforeRead
	}
	if s.committed {
		return model.LedgerEntry{}, ErrAlreadyCommitted
	}
	prior := s.prior.Entry
	if s.prior.Exists && rec.RunKey != "" && prior.LastRunKey == rec.RunKey {
		return prior, nil
	}

	now := s.now().UTC()
	next := model.LedgerEntry{
		Identity:      s.identity,
		TotalPoints:   max(prior.TotalPoints, rec.TotalPoints),
		TimesRewarded: prior.TimesRewarded + 1,
		FirstSeen:     prior.FirstSeen,
		LastSeen:      now,
		LastRunKey:    rec.RunKey,
	}
	if !s.prior.Exists {
		next.FirstSeen = now
	}
	if err := s.tx.Put(ctx, next); err != nil {
		return model.LedgerEntry{}, err
	}
	rec.Identity, rec.CreatedAt = s.identity, now
	if err := s.tx.AppendProof(ctx, rec); err != nil {
		return model.LedgerEntry{}, err
	}
	s.committed = true
	return next, nil
}
