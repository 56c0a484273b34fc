// Package journal records daemon namespaces whose changes were applied but
// not yet published, so a later run can finish the publish.
package journal

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // Pure Go SQLite driver, registers as "sqlite".
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// opPublish is the op recorded for a namespace first seen through a failed
// publish.
const opPublish = "publish"

const (
	sqlNextGeneration = `UPDATE publish_sequence SET value = value + 1 WHERE id = 1 RETURNING value`

	sqlGeneration = `SELECT value FROM publish_sequence WHERE id = 1`

	sqlMarkPending = `INSERT INTO pending_publish
		(namespace, id, backend, op, attempts, marked_at, generation)
		VALUES (?, ?, ?, ?, 1, ?, ?)
		ON CONFLICT(namespace) DO UPDATE SET
		 op = excluded.op,
		 attempts = pending_publish.attempts + 1,
		 marked_at = excluded.marked_at,
		 generation = excluded.generation`

	// A failure for a namespace some other publish already cleared puts it
	// back; the failed change may postdate that publish.
	sqlRecordFailure = `INSERT INTO pending_publish
		(namespace, id, backend, op, attempts, marked_at, generation, last_error)
		VALUES (?, ?, ?, ?, 1, ?, ?, ?)
		ON CONFLICT(namespace) DO UPDATE SET
		 last_error = excluded.last_error`

	sqlClear = `DELETE FROM pending_publish WHERE namespace = ? AND generation <= ?`

	sqlPending = `SELECT namespace, id, backend, op, attempts, marked_at, last_error
		FROM pending_publish ORDER BY marked_at, namespace`

	sqlIsPending = `SELECT 1 FROM pending_publish WHERE namespace = ?`
)

// Entry is one namespace left dirty by a publish that did not complete.
type Entry struct {
	ID        string
	Namespace string
	Backend   string
	Op        string
	Attempts  int
	MarkedAt  time.Time
	LastError string
}

// Journal is the SQLite-backed pending-publish journal. Safe for concurrent
// use; writes are serialized through a single connection.
type Journal struct {
	db      *sql.DB
	logger  *slog.Logger
	nowFunc func() time.Time
}

// Open opens (creating if needed) the journal database at dbPath and applies
// migrations.
func Open(ctx context.Context, dbPath string, logger *slog.Logger) (*Journal, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil {
		return nil, fmt.Errorf("journal: creating directory for %s: %w", dbPath, err)
	}

	dsn := fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(FULL)&_pragma=busy_timeout(5000)",
		dbPath,
	)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("journal: opening database %s: %w", dbPath, err)
	}

	db.SetMaxOpenConns(1)

	if err := runMigrations(ctx, db, logger); err != nil {
		db.Close()
		return nil, err
	}

	logger.Debug("journal opened", slog.String("db_path", dbPath))

	return &Journal{db: db, logger: logger, nowFunc: time.Now}, nil
}

func runMigrations(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	subFS, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("journal: creating migration sub-filesystem: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectSQLite3, db, subFS)
	if err != nil {
		return fmt.Errorf("journal: creating migration provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("journal: running migrations: %w", err)
	}

	for _, r := range results {
		logger.Info("applied migration",
			slog.String("source", r.Source.Path),
			slog.Int64("duration_ms", r.Duration.Milliseconds()),
		)
	}

	return nil
}

// MarkPending records that namespace has unpublished changes. Marking an
// already pending namespace bumps its attempt count and its generation.
func (j *Journal) MarkPending(ctx context.Context, backend, namespace, op string) error {
	err := j.withGeneration(ctx, func(tx *sql.Tx, gen int64) error {
		_, err := tx.ExecContext(ctx, sqlMarkPending,
			namespace, uuid.NewString(), backend, op, j.nowFunc().UnixNano(), gen)

		return err
	})
	if err != nil {
		return fmt.Errorf("journal: marking %s pending: %w", namespace, err)
	}

	j.logger.Debug("namespace marked pending",
		slog.String("namespace", namespace),
		slog.String("op", op),
	)

	return nil
}

// Generation returns the latest generation handed out by MarkPending or
// RecordFailure. A publisher reads it before resolving the root it will
// publish and passes it to Clear.
func (j *Journal) Generation(ctx context.Context) (int64, error) {
	var gen int64
	if err := j.db.QueryRowContext(ctx, sqlGeneration).Scan(&gen); err != nil {
		return 0, fmt.Errorf("journal: reading generation: %w", err)
	}

	return gen, nil
}

// RecordFailure stores the last publish error for namespace, marking it
// pending if it is not already.
func (j *Journal) RecordFailure(ctx context.Context, backend, namespace, msg string) error {
	err := j.withGeneration(ctx, func(tx *sql.Tx, gen int64) error {
		_, err := tx.ExecContext(ctx, sqlRecordFailure,
			namespace, uuid.NewString(), backend, opPublish, j.nowFunc().UnixNano(), gen, msg)

		return err
	})
	if err != nil {
		return fmt.Errorf("journal: recording failure for %s: %w", namespace, err)
	}

	return nil
}

// Clear removes namespace once a publish has succeeded, unless it was marked
// again after generation upTo was read. Clearing a namespace that is not
// pending is a no-op.
func (j *Journal) Clear(ctx context.Context, namespace string, upTo int64) error {
	res, err := j.db.ExecContext(ctx, sqlClear, namespace, upTo)
	if err != nil {
		return fmt.Errorf("journal: clearing %s: %w", namespace, err)
	}

	if n, _ := res.RowsAffected(); n > 0 {
		j.logger.Debug("namespace published", slog.String("namespace", namespace))
	}

	return nil
}

// withGeneration runs fn in a transaction with a fresh generation.
func (j *Journal) withGeneration(ctx context.Context, fn func(tx *sql.Tx, gen int64) error) error {
	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var gen int64
	if err := tx.QueryRowContext(ctx, sqlNextGeneration).Scan(&gen); err != nil {
		return fmt.Errorf("next generation: %w", err)
	}

	if err := fn(tx, gen); err != nil {
		return err
	}

	return tx.Commit()
}

// IsPending reports whether namespace has unpublished changes.
func (j *Journal) IsPending(ctx context.Context, namespace string) (bool, error) {
	var one int

	err := j.db.QueryRowContext(ctx, sqlIsPending, namespace).Scan(&one)
	switch {
	case err == sql.ErrNoRows:
		return false, nil
	case err != nil:
		return false, fmt.Errorf("journal: checking %s: %w", namespace, err)
	default:
		return true, nil
	}
}

// Pending lists every pending namespace, oldest first.
func (j *Journal) Pending(ctx context.Context) ([]Entry, error) {
	rows, err := j.db.QueryContext(ctx, sqlPending)
	if err != nil {
		return nil, fmt.Errorf("journal: listing pending: %w", err)
	}
	defer rows.Close()

	var entries []Entry

	for rows.Next() {
		var (
			e        Entry
			markedAt int64
			lastErr  sql.NullString
		)

		if err := rows.Scan(&e.Namespace, &e.ID, &e.Backend, &e.Op, &e.Attempts, &markedAt, &lastErr); err != nil {
			return nil, fmt.Errorf("journal: scanning pending row: %w", err)
		}

		e.MarkedAt = time.Unix(0, markedAt)
		e.LastError = lastErr.String
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("journal: iterating pending rows: %w", err)
	}

	return entries, nil
}

// Close closes the database.
func (j *Journal) Close() error {
	return j.db.Close()
}
