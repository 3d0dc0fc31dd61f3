package repository

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/okian/listenproof/internal/domain/model"
)

// slot guards one identity. The buffered channel is a lock that can be
// abandoned on timeout or cancellation.
type slot struct {
	lock   chan struct{}
	entry  model.LedgerEntry
	exists bool
	proofs []model.ProofRecord
}

// MemoryStore keeps entries in process memory. It serializes sections per
// identity while unrelated identities proceed in parallel.
type MemoryStore struct {
	mu     sync.Mutex
	slots  map[model.HashedIdentity]*slot
	opts   options
	count  int
	closed bool
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(opts ...Option) *MemoryStore {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &MemoryStore{
		slots: make(map[model.HashedIdentity]*slot),
		opts:  o,
	}
}

func (s *MemoryStore) slot(id model.HashedIdentity) (*slot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	sl, ok := s.slots[id]
	if !ok {
		sl = &slot{lock: make(chan struct{}, 1)}
		s.slots[id] = sl
	}
	return sl, nil
}

// Atomically implements Store.
func (s *MemoryStore) Atomically(ctx context.Context, identity model.HashedIdentity, fn func(ctx context.Context, tx Tx) error) error {
	sl, err := s.slot(identity)
	if err != nil {
		return err
	}

	timer := time.NewTimer(s.opts.lockWait)
	defer timer.Stop()
	select {
	case sl.lock <- struct{}{}:
	case <-timer.C:
		return fmt.Errorf("%w: %s", ErrContention, identity.Short())
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-sl.lock }()

	tx := &memoryTx{identity: identity, entry: sl.entry, exists: sl.exists, stored: sl.proofs}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if tx.written {
		if !sl.exists {
			s.mu.Lock()
			s.count++
			s.mu.Unlock()
		}
		sl.entry, sl.exists = tx.entry, true
	}
	sl.proofs = append(sl.proofs, tx.pending...)
	return nil
}

// Lookup implements Store.
func (s *MemoryStore) Lookup(ctx context.Context, identity model.HashedIdentity) (model.LedgerEntry, bool, error) {
	sl, err := s.slot(identity)
	if err != nil {
		return model.LedgerEntry{}, false, err
	}
	select {
	case sl.lock <- struct{}{}:
	case <-ctx.Done():
		return model.LedgerEntry{}, false, ctx.Err()
	}
	defer func() { <-sl.lock }()
	return sl.entry, sl.exists, nil
}

// Proofs implements Store.
func (s *MemoryStore) Proofs(ctx context.Context, identity model.HashedIdentity) ([]model.ProofRecord, error) {
	sl, err := s.slot(identity)
	if err != nil {
		return nil, err
	}
	select {
	case sl.lock <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-sl.lock }()
	return slices.Clone(sl.proofs), nil
}

// Len returns the number of identities with a stored entry.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

type memoryTx struct {
	identity model.HashedIdentity
	entry    model.LedgerEntry
	exists   bool
	written  bool
	stored   []model.ProofRecord
	pending  []model.ProofRecord
}

func (t *memoryTx) Get(context.Context) (model.LedgerEntry, bool, error) {
	return t.entry, t.exists, nil
}

func (t *memoryTx) Put(_ context.Context, e model.LedgerEntry) error {
	t.entry, t.exists, t.written = e, true, true
	return nil
}

func (t *memoryTx) AppendProof(_ context.Context, rec model.ProofRecord) error {
	has := func(p model.ProofRecord) bool { return p.RunKey == rec.RunKey }
	if slices.ContainsFunc(t.stored, has) || slices.ContainsFunc(t.pending, has) {
		return nil
	}
	rec.Identity = t.identity
	t.pending = append(t.pending, rec)
	return nil
}
