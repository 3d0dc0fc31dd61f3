package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"modernc.org/sqlite"

	"github.com/okian/listenproof/internal/domain/model"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS ledger (
	identity       TEXT PRIMARY KEY,
	total_points   INTEGER NOT NULL,
	times_rewarded INTEGER NOT NULL,
	first_seen_ms  INTEGER NOT NULL,
	last_seen_ms   INTEGER NOT NULL,
	last_run_key   TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS proofs (
	identity           TEXT NOT NULL,
	run_key            TEXT NOT NULL,
	file_id            INTEGER NOT NULL,
	file_url           TEXT NOT NULL,
	job_id             TEXT NOT NULL,
	owner_address      TEXT NOT NULL,
	total_points       INTEGER NOT NULL,
	score              REAL NOT NULL,
	authenticity_score REAL NOT NULL,
	ownership_score    REAL NOT NULL,
	quality_score      REAL NOT NULL,
	uniqueness_score   REAL NOT NULL,
	created_at_ms      INTEGER NOT NULL,
	PRIMARY KEY (identity, run_key)
);`

// SQLite result codes that signal a competing writer.
const (
	sqliteBusy   = 5
	sqliteLocked = 6
)

// SQLiteStore keeps the ledger in a SQLite file. Each section runs inside a
// BEGIN IMMEDIATE transaction so the write lock is taken before the read.
type SQLiteStore struct {
	db   *sql.DB
	opts options
}

// OpenSQLite opens (and creates if needed) the ledger database at path.
func OpenSQLite(ctx context.Context, path string, opts ...Option) (*SQLiteStore, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("%w: create ledger directory: %w", ErrStore, err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)", path, o.lockWait.Milliseconds())
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: open sqlite: %w", ErrStore, err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: create schema: %w", ErrStore, err)
	}
	return &SQLiteStore{db: db, opts: o}, nil
}

// Atomically implements Store.
func (s *SQLiteStore) Atomically(ctx context.Context, identity model.HashedIdentity, fn func(ctx context.Context, tx Tx) error) (err error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return s.wrap("acquire connection", err)
	}
	defer func() { _ = conn.Close() }()

	if _, err := conn.ExecContext(ctx, "BEGIN IMMEDIATE"); err != nil {
		return s.wrap("begin", err)
	}
	defer func() {
		if err != nil {
			_, _ = conn.ExecContext(context.Background(), "ROLLBACK")
		}
	}()

	if err := fn(ctx, &sqliteTx{conn: conn, identity: identity}); err != nil {
		return err
	}
	if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
		return s.wrap("commit", err)
	}
	return nil
}

// Lookup implements Store.
func (s *SQLiteStore) Lookup(ctx context.Context, identity model.HashedIdentity) (model.LedgerEntry, bool, error) {
	row := s.db.QueryRowContext(ctx, selectEntrySQLite, string(identity))
	e, ok, err := scanSQLiteEntry(row, identity)
	if err != nil {
		return model.LedgerEntry{}, false, s.wrap("lookup", err)
	}
	return e, ok, nil
}

// Proofs implements Store.
func (s *SQLiteStore) Proofs(ctx context.Context, identity model.HashedIdentity) ([]model.ProofRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT run_key, file_id, file_url, job_id, owner_address, total_points,
	score, authenticity_score, ownership_score, quality_score, uniqueness_score, created_at_ms
FROM proofs WHERE identity = ? ORDER BY created_at_ms, rowid`, string(identity))
	if err != nil {
		return nil, s.wrap("list proofs", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.ProofRecord
	for rows.Next() {
		rec := model.ProofRecord{Identity: identity}
		var created int64
		if err := rows.Scan(&rec.RunKey, &rec.FileID, &rec.FileURL, &rec.JobID, &rec.OwnerAddress, &rec.TotalPoints,
			&rec.Score, &rec.Authenticity, &rec.Ownership, &rec.Quality, &rec.Uniqueness, &created); err != nil {
			return nil, s.wrap("scan proof", err)
		}
		rec.CreatedAt = time.UnixMilli(created).UTC()
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, s.wrap("list proofs", err)
	}
	return out, nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) wrap(op string, err error) error {
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() & 0xff {
		case sqliteBusy, sqliteLocked:
			return fmt.Errorf("%w: %s: %w", ErrContention, op, err)
		}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrStore, op, err)
}

const selectEntrySQLite = `SELECT total_points, times_rewarded, first_seen_ms, last_seen_ms, last_run_key FROM ledger WHERE identity = ?`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteEntry(row rowScanner, identity model.HashedIdentity) (model.LedgerEntry, bool, error) {
	var (
		e             = model.LedgerEntry{Identity: identity}
		first, lastMs int64
	)
	err := row.Scan(&e.TotalPoints, &e.TimesRewarded, &first, &lastMs, &e.LastRunKey)
	if errors.Is(err, sql.ErrNoRows) {
		return model.LedgerEntry{}, false, nil
	}
	if err != nil {
		return model.LedgerEntry{}, false, err
	}
	e.FirstSeen = time.UnixMilli(first).UTC()
	e.LastSeen = time.UnixMilli(lastMs).UTC()
	return e, true, nil
}

type sqliteTx struct {
	conn     *sql.Conn
	identity model.HashedIdentity
}

func (t *sqliteTx) Get(ctx context.Context) (model.LedgerEntry, bool, error) {
	e, ok, err := scanSQLiteEntry(t.conn.QueryRowContext(ctx, selectEntrySQLite, string(t.identity)), t.identity)
	if err != nil {
		return model.LedgerEntry{}, false, fmt.Errorf("%w: read entry: %w", ErrStore, err)
	}
	return e, ok, nil
}

func (t *sqliteTx) Put(ctx context.Context, e model.LedgerEntry) error {
	_, err := t.conn.ExecContext(ctx, `
INSERT INTO ledger (identity, total_points, times_rewarded, first_seen_ms, last_seen_ms, last_run_key)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(identity) DO UPDATE SET
	total_points = excluded.total_points,
	times_rewarded = excluded.times_rewarded,
	last_seen_ms = excluded.last_seen_ms,
	last_run_key = excluded.last_run_key`,
		string(t.identity), e.TotalPoints, e.TimesRewarded, e.FirstSeen.UnixMilli(), e.LastSeen.UnixMilli(), e.LastRunKey)
	if err != nil {
		return fmt.Errorf("%w: write entry: %w", ErrStore, err)
	}
	return nil
}

func (t *sqliteTx) AppendProof(ctx context.Context, rec model.ProofRecord) error {
	_, err := t.conn.ExecContext(ctx, `
INSERT INTO proofs (identity, run_key, file_id, file_url, job_id, owner_address, total_points,
	score, authenticity_score, ownership_score, quality_score, uniqueness_score, created_at_ms)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(identity, run_key) DO NOTHING`,
		string(t.identity), rec.RunKey, rec.FileID, rec.FileURL, rec.JobID, rec.OwnerAddress, rec.TotalPoints,
		rec.Score, rec.Authenticity, rec.Ownership, rec.Quality, rec.Uniqueness, rec.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("%w: write proof: %w", ErrStore, err)
	}
	return nil
}
