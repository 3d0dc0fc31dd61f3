// Package repository persists per-identity ledger entries and the proof
// records of the runs that updated them.
package repository

import (
	"context"

	"github.com/okian/listenproof/internal/domain/model"
)

// Tx is the view of one identity's entry inside an atomic section.
type Tx interface {
	// Get returns the stored entry and whether one exists.
	Get(ctx context.Context) (model.LedgerEntry, bool, error)
	// Put replaces the stored entry. It takes effect when the section returns nil.
	Put(ctx context.Context, e model.LedgerEntry) error
	// AppendProof adds a proof record for this identity. Like Put it takes
	// effect only when the section returns nil. A record whose run key is
	// already stored is ignored.
	AppendProof(ctx context.Context, rec model.ProofRecord) error
}

// Store provides serialized read-modify-write access to ledger entries.
type Store interface {
	// Atomically runs fn while holding exclusive access to identity's entry.
	// A non-nil error from fn discards any Put. Conflicts with concurrent
	// sections for the same identity are reported as ErrContention.
	Atomically(ctx context.Context, identity model.HashedIdentity, fn func(ctx context.Context, tx Tx) error) error

	// Lookup reads an entry outside any section.
	Lookup(ctx context.Context, identity model.HashedIdentity) (model.LedgerEntry, bool, error)

	// Proofs returns identity's proof records, oldest first.
	Proofs(ctx context.Context, identity model.HashedIdentity) ([]model.ProofRecord, error)

	// Close releases the underlying resources.
	Close() error
}
