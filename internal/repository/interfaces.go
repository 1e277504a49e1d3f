package repository

import (
	"context"
	"time"

	"github.com/iconidentify/igrabba/internal/domain"
)

// HistoryRepository stores finished pipeline outcomes.
type HistoryRepository interface {
	// Record stores the outcome of one run.
	Record(ctx context.Context, rawURL, dest string, outcome domain.DeliveryOutcome) error

	// Recent returns up to limit entries, newest first.
	Recent(ctx context.Context, limit int) ([]domain.HistoryEntry, error)

	// Stats aggregates all stored entries.
	Stats(ctx context.Context) (*domain.HistoryStats, error)

	// Prune deletes entries created before cutoff and returns how many went.
	Prune(ctx context.Context, cutoff time.Time) (int64, error)

	// Ping checks the store is reachable.
	Ping(ctx context.Context) error

	Close() error
}
