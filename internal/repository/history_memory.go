package repository

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/iconidentify/igrabba/internal/domain"
)

// InMemoryHistoryRepository implements HistoryRepository in memory. It is used
// when no database path is configured.
type InMemoryHistoryRepository struct {
	mu      sync.RWMutex
	entries []domain.HistoryEntry // oldest first
	now     func() time.Time
}

// NewInMemoryHistoryRepository creates an empty in-memory history.
func NewInMemoryHistoryRepository() *InMemoryHistoryRepository {
	return &InMemoryHistoryRepository{now: time.Now}
}

// Record stores the outcome of one run.
func (r *InMemoryHistoryRepository) Record(ctx context.Context, rawURL, dest string, outcome domain.DeliveryOutcome) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries = append(r.entries, domain.NewHistoryEntry(uuid.NewString(), rawURL, dest, outcome, r.now()))
	return nil
}

// Recent returns up to limit entries, newest first.
func (r *InMemoryHistoryRepository) Recent(ctx context.Context, limit int) ([]domain.HistoryEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if limit <= 0 {
		limit = 20
	}
	out := make([]domain.HistoryEntry, 0, min(limit, len(r.entries)))
	for i := len(r.entries) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, r.entries[i])
	}
	return out, nil
}

// Stats aggregates all stored entries.
func (r *InMemoryHistoryRepository) Stats(ctx context.Context) (*domain.HistoryStats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := &domain.HistoryStats{ByStrategy: make(map[string]int)}
	for _, e := range r.entries {
		stats.Requests++
		if e.Delivered > 0 {
			stats.Succeeded++
		}
		if e.FailureReason != "" {
			stats.Failed++
		}
		stats.FilesAttempted += e.Attempted
		stats.FilesDelivered += e.Delivered
		if e.Strategy != "" {
			stats.ByStrategy[e.Strategy]++
		}
	}
	return stats, nil
}

// Prune deletes entries created before cutoff.
func (r *InMemoryHistoryRepository) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	kept := r.entries[:0]
	var removed int64
	for _, e := range r.entries {
		if e.CreatedAt.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	r.entries = kept
	return removed, nil
}

// Ping always succeeds.
func (r *InMemoryHistoryRepository) Ping(ctx context.Context) error {
	return nil
}

// Close is a no-op.
func (r *InMemoryHistoryRepository) Close() error {
	return nil
}
