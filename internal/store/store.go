// Package store implements the local embedded data store: posts, likes,
// comments, and sync settings, backed by SQLite in WAL mode (data-model §3.4,
// §6.1, §6.6 — schema version 7 in spec terms, migration-numbered here).
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync/atomic"

	_ "modernc.org/sqlite" // pure-Go SQLite driver, registers as "sqlite"

	"github.com/feedsync/feedsync/internal/model"
)

// walJournalSizeLimit caps the WAL file at 64 MiB before a checkpoint is forced.
const walJournalSizeLimit = 67108864

// Store is the local embedded data store. All mutations happen inside
// short-lived transactions (§3.4); no remote I/O ever occurs while a
// transaction is open.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
	feed   *ChangeFeed
	closed atomic.Bool
}

// Open creates or opens the SQLite database at dbPath, configures pragmas,
// and applies pending migrations. Use ":memory:" for tests.
func Open(ctx context.Context, dbPath string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("opening local store", slog.String("path", dbPath))

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite: %w", err)
	}

	if err := setPragmas(ctx, db, logger); err != nil {
		db.Close()
		return nil, err
	}

	if err := runMigrations(ctx, db, logger); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("local store ready", slog.String("path", dbPath))

	s := &Store{db: db, logger: logger, feed: NewChangeFeed()}

	return s, nil
}

func setPragmas(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	pragmas := []struct {
		sql  string
		desc string
	}{
		{"PRAGMA journal_mode = WAL", "WAL mode"},
		{"PRAGMA synchronous = FULL", "synchronous FULL"},
		{"PRAGMA foreign_keys = ON", "foreign keys"},
		{fmt.Sprintf("PRAGMA journal_size_limit = %d", walJournalSizeLimit), "journal size limit"},
	}

	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p.sql); err != nil {
			return fmt.Errorf("store: set pragma %s: %w", p.desc, err)
		}

		logger.Debug("pragma set", slog.String("pragma", p.desc))
	}

	return nil
}

// Changes returns the store's change feed, used by dependent views (the UI
// collaborator) to refresh on commit rather than polling whole tables
// (design note §9).
func (s *Store) Changes() *ChangeFeed {
	return s.feed
}

const sqlInsertChangeLog = `INSERT INTO change_log (entity, occurred_at) VALUES (?, ?)`

const sqlChangeSeq = `SELECT COALESCE(MAX(seq), 0) FROM change_log`

// RecordChange appends one change_log row for entity inside tx. Callers
// commit this in the same transaction as the sync-relevant write it
// describes, then call Changes().Publish(entity) once the transaction
// commits — the durable log and the in-process notification both exist so a
// dependent view can either poll ChangeSeq() after a restart or subscribe
// live via ChangeFeed (design note §9).
func (s *Store) RecordChange(ctx context.Context, tx *sql.Tx, entity string) error {
	if _, err := tx.ExecContext(ctx, sqlInsertChangeLog, entity, model.NowNano()); err != nil {
		return fmt.Errorf("store: record change %s: %w", entity, err)
	}

	return nil
}

// ChangeSeq returns the current change_log sequence counter, the
// monotonically increasing cursor a dependent view can persist and compare
// against instead of re-querying whole tables on every tick.
func (s *Store) ChangeSeq(ctx context.Context) (int64, error) {
	var seq int64
	if err := s.db.QueryRowContext(ctx, sqlChangeSeq).Scan(&seq); err != nil {
		return 0, fmt.Errorf("store: change seq: %w", err)
	}

	return seq, nil
}

// WithTx runs fn inside a single SQLite transaction, committing on success
// and rolling back on any error (including a panic, which is re-raised after
// rollback). This is the store's realization of the "single-writer
// transactions with atomic multi-record commits" assumption (§3.4, §6.1).
func (s *Store) WithTx(ctx context.Context, fn func(*sql.Tx) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("store: transaction failed: %w (rollback: %v)", err, rbErr)
		}

		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit transaction: %w", err)
	}

	return nil
}

// Checkpoint forces a WAL checkpoint. Failure is non-fatal: already-committed
// data is durable; a missed checkpoint is recovered on the next successful one.
func (s *Store) Checkpoint() error {
	_, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return err
}

// Closed reports whether the store has been closed. Entry points short-circuit
// on a closed store rather than attempting recovery (§7, "Local-store-closed").
func (s *Store) Closed() bool {
	return s.closed.Load()
}

// Close releases the database connection.
func (s *Store) Close() error {
	s.closed.Store(true)
	return s.db.Close()
}
