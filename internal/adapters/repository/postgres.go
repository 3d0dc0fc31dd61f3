package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/okian/listenproof/internal/domain/model"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS ledger (
	identity       TEXT PRIMARY KEY,
	total_points   INTEGER NOT NULL,
	times_rewarded INTEGER NOT NULL,
	first_seen     TIMESTAMPTZ NOT NULL,
	last_seen      TIMESTAMPTZ NOT NULL,
	last_run_key   TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS proofs (
	id                 BIGSERIAL PRIMARY KEY,
	identity           TEXT NOT NULL,
	run_key            TEXT NOT NULL,
	file_id            BIGINT NOT NULL,
	file_url           TEXT NOT NULL,
	job_id             TEXT NOT NULL,
	owner_address      TEXT NOT NULL,
	total_points       INTEGER NOT NULL,
	score              DOUBLE PRECISION NOT NULL,
	authenticity_score DOUBLE PRECISION NOT NULL,
	ownership_score    DOUBLE PRECISION NOT NULL,
	quality_score      DOUBLE PRECISION NOT NULL,
	uniqueness_score   DOUBLE PRECISION NOT NULL,
	created_at         TIMESTAMPTZ NOT NULL,
	UNIQUE (identity, run_key)
)`

// SQLSTATE codes reported when another transaction holds the entry.
var contentionCodes = map[string]bool{
	"55P03": true, // lock_not_available
	"40001": true, // serialization_failure
	"40P01": true, // deadlock_detected
}

// PostgresStore keeps the ledger in PostgreSQL, shared by concurrent workers.
// A section takes a transaction-scoped advisory lock on the identity and
// then locks the row, so two runs for one identity never interleave.
type PostgresStore struct {
	pool *pgxpool.Pool
	opts options
}

// OpenPostgres connects to dsn and ensures the schema exists.
func OpenPostgres(ctx context.Context, dsn string, opts ...Option) (*PostgresStore, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: connect: %w", ErrStore, err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: create schema: %w", ErrStore, err)
	}
	return &PostgresStore{pool: pool, opts: o}, nil
}

// Atomically implements Store.
func (s *PostgresStore) Atomically(ctx context.Context, identity model.HashedIdentity, fn func(ctx context.Context, tx Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return s.wrap("begin", err)
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", s.opts.lockWait.Milliseconds())); err != nil {
		return s.wrap("set lock timeout", err)
	}
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, string(identity)); err != nil {
		return s.wrap("advisory lock", err)
	}

	if err := fn(ctx, &postgresTx{tx: tx, identity: identity}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return s.wrap("commit", err)
	}
	return nil
}

// Lookup implements Store.
func (s *PostgresStore) Lookup(ctx context.Context, identity model.HashedIdentity) (model.LedgerEntry, bool, error) {
	e, ok, err := scanPostgresEntry(s.pool.QueryRow(ctx, selectEntryPostgres, string(identity)), identity)
	if err != nil {
		return model.LedgerEntry{}, false, s.wrap("lookup", err)
	}
	return e, ok, nil
}

// Proofs implements Store.
func (s *PostgresStore) Proofs(ctx context.Context, identity model.HashedIdentity) ([]model.ProofRecord, error) {
	rows, err := s.pool.Query(ctx, `
SELECT run_key, file_id, file_url, job_id, owner_address, total_points,
	score, authenticity_score, ownership_score, quality_score, uniqueness_score, created_at
FROM proofs WHERE identity = $1 ORDER BY created_at, id`, string(identity))
	if err != nil {
		return nil, s.wrap("list proofs", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.ProofRecord, error) {
		rec := model.ProofRecord{Identity: identity}
		err := row.Scan(&rec.RunKey, &rec.FileID, &rec.FileURL, &rec.JobID, &rec.OwnerAddress, &rec.TotalPoints,
			&rec.Score, &rec.Authenticity, &rec.Ownership, &rec.Quality, &rec.Uniqueness, &rec.CreatedAt)
		rec.CreatedAt = rec.CreatedAt.UTC()
		return rec, err
	})
	if err != nil {
		return nil, s.wrap("list proofs", err)
	}
	return out, nil
}

// Close implements Store.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) wrap(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && contentionCodes[pgErr.Code] {
		return fmt.Errorf("%w: %s: %w", ErrContention, op, err)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrStore, op, err)
}

const selectEntryPostgres = `SELECT total_points, times_rewarded, first_seen, last_seen, last_run_key FROM ledger WHERE identity = $1`

func scanPostgresEntry(row pgx.Row, identity model.HashedIdentity) (model.LedgerEntry, bool, error) {
	e := model.LedgerEntry{Identity: identity}
	var first, last time.Time
	err := row.Scan(&e.TotalPoints, &e.TimesRewarded, &first, &last, &e.LastRunKey)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.LedgerEntry{}, false, nil
	}
	if err != nil {
		return model.LedgerEntry{}, false, err
	}
	e.FirstSeen, e.LastSeen = first.UTC(), last.UTC()
	return e, true, nil
}

type postgresTx struct {
	tx       pgx.Tx
	identity model.HashedIdentity
}

func (t *postgresTx) Get(ctx context.Context) (model.LedgerEntry, bool, error) {
	e, ok, err := scanPostgresEntry(t.tx.QueryRow(ctx, selectEntryPostgres+" FOR UPDATE", string(t.identity)), t.identity)
	if err != nil {
		return model.LedgerEntry{}, false, fmt.Errorf("%w: read entry: %w", ErrStore, err)
	}
	return e, ok, nil
}

func (t *postgresTx) Put(ctx context.Context, e model.LedgerEntry) error {
	_, err := t.tx.Exec(ctx, `
INSERT INTO ledger (identity, total_points, times_rewarded, first_seen, last_seen, last_run_key)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (identity) DO UPDATE SET
	total_points = EXCLUDED.total_points,
	times_rewarded = EXCLUDED.times_rewarded,
	last_seen = EXCLUDED.last_seen,
	last_run_key = EXCLUDED.last_run_key`,
		string(t.identity), e.TotalPoints, e.TimesRewarded, e.FirstSeen, e.LastSeen, e.LastRunKey)
	if err != nil {
		return fmt.Errorf("%w: write entry: %w", ErrStore, err)
	}
	return nil
}

func (t *postgresTx) AppendProof(ctx context.Context, rec model.ProofRecord) error {
	_, err := t.tx.Exec(ctx, `
INSERT INTO proofs (identity, run_key, file_id, file_url, job_id, owner_address, total_points,
	score, authenticity_score, ownership_score, quality_score, uniqueness_score, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
ON CONFLICT (identity, run_key) DO NOTHING`,
		string(t.identity), rec.RunKey, rec.FileID, rec.FileURL, rec.JobID, rec.OwnerAddress, rec.TotalPoints,
		rec.Score, rec.Authenticity, rec.Ownership, rec.Quality, rec.Uniqueness, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("%w: write proof: %w", ErrStore, err)
	}
	return nil
}
