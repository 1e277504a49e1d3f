package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/iconidentify/igrabba/internal/domain"
)

// SQLiteHistoryRepository implements HistoryRepository on a SQLite file.
type SQLiteHistoryRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteHistoryRepository opens (and if needed creates) the history database.
func NewSQLiteHistoryRepository(path string) (*SQLiteHistoryRepository, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// A single connection keeps writers from tripping over SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS outcomes (
			id TEXT PRIMARY KEY,
			raw_url TEXT NOT NULL,
			destination TEXT NOT NULL,
			content_id TEXT NOT NULL DEFAULT '',
			kind TEXT NOT NULL DEFAULT '',
			strategy TEXT NOT NULL DEFAULT '',
			attempted INTEGER NOT NULL,
			delivered INTEGER NOT NULL,
			failure_reason TEXT NOT NULL DEFAULT '',
			duration_ms INTEGER NOT NULL,
			created_unix INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_outcomes_created ON outcomes(created_unix);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create table: %w", err)
	}

	return &SQLiteHistoryRepository{db: db, now: time.Now}, nil
}

// Record stores the outcome of one run.
func (r *SQLiteHistoryRepository) Record(ctx context.Context, rawURL, dest string, outcome domain.DeliveryOutcome) error {
	e := domain.NewHistoryEntry(uuid.NewString(), rawURL, dest, outcome, r.now())
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO outcomes (id, raw_url, destination, content_id, kind, strategy,
			attempted, delivered, failure_reason, duration_ms, created_unix)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.RawURL, e.Destination, e.ContentID, string(e.Kind), e.Strategy,
		e.Attempted, e.Delivered, e.FailureReason, e.Duration.Milliseconds(), e.CreatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("insert outcome: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (r *SQLiteHistoryRepository) Recent(ctx context.Context, limit int) ([]domain.HistoryEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, raw_url, destination, content_id, kind, strategy,
			attempted, delivered, failure_reason, duration_ms, created_unix
		FROM outcomes
		ORDER BY created_unix DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query outcomes: %w", err)
	}
	defer rows.Close()

	var entries []domain.HistoryEntry
	for rows.Next() {
		var (
			e          domain.HistoryEntry
			kind       string
			durationMS int64
			created    int64
		)
		if err := rows.Scan(&e.ID, &e.RawURL, &e.Destination, &e.ContentID, &kind, &e.Strategy,
			&e.Attempted, &e.Delivered, &e.FailureReason, &durationMS, &created); err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		e.Kind = domain.ContentKind(kind)
		e.Duration = time.Duration(durationMS) * time.Millisecond
		e.CreatedAt = time.Unix(0, created)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Stats aggregates all stored entries.
func (r *SQLiteHistoryRepository) Stats(ctx context.Context) (*domain.HistoryStats, error) {
	stats := &domain.HistoryStats{ByStrategy: make(map[string]int)}

	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
			COALESCE(SUM(CASE WHEN delivered > 0 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN failure_reason <> '' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(attempted), 0),
			COALESCE(SUM(delivered), 0)
		FROM outcomes
	`).Scan(&stats.Requests, &stats.Succeeded, &stats.Failed, &stats.FilesAttempted, &stats.FilesDelivered)
	if err != nil {
		return nil, fmt.Errorf("query stats: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT strategy, COUNT(*) FROM outcomes
		WHERE strategy <> ''
		GROUP BY strategy
	`)
	if err != nil {
		return nil, fmt.Errorf("query strategies: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			name  string
			count int
		)
		if err := rows.Scan(&name, &count); err != nil {
			return nil, fmt.Errorf("scan strategy: %w", err)
		}
		stats.ByStrategy[name] = count
	}
	return stats, rows.Err()
}

// Prune deletes entries created before cutoff.
func (r *SQLiteHistoryRepository) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, "DELETE FROM outcomes WHERE created_unix < ?", cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("delete old outcomes: %w", err)
	}
	return res.RowsAffected()
}

// Ping checks the database connection.
func (r *SQLiteHistoryRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database.
func (r *SQLiteHistoryRepository) Close() error {
	return r.db.Close()
}
