// Package janitor periodically removes orphaned temp files and old history.
package janitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"
)

// Pruner deletes history older than a cutoff.
type Pruner interface {
	Prune(ctx context.Context, cutoff time.Time) (int64, error)
}

// Config holds janitor settings.
type Config struct {
	Schedule string
	TempDir  string
	// MaxAge is how old a temp file must be before it counts as orphaned.
	MaxAge time.Duration
	// HistoryRetention of zero keeps history forever.
	HistoryRetention time.Duration
}

// Janitor runs cleanup on a cron schedule.
type Janitor struct {
	cfg    Config
	pruner Pruner
	cron   *cron.Cron
	logger *slog.Logger
	now    func() time.Time
}

// New validates the schedule and creates a janitor. pruner may be nil.
func New(cfg Config, pruner Pruner, logger *slog.Logger) (*Janitor, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = 30 * time.Minute
	}

	parser := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	j := &Janitor{
		cfg:    cfg,
		pruner: pruner,
		cron:   cron.New(cron.WithParser(parser)),
		logger: logger,
		now:    time.Now,
	}
	if _, err := j.cron.AddFunc(cfg.Schedule, func() { j.Sweep(context.Background()) }); err != nil {
		return nil, fmt.Errorf("invalid cron pattern: %w", err)
	}
	return j, nil
}

// Start begins the schedule.
func (j *Janitor) Start() {
	j.logger.Info("janitor started", "schedule", j.cfg.Schedule, "temp_dir", j.cfg.TempDir)
	j.cron.Start()
}

// Stop halts the schedule and waits for a running sweep.
func (j *Janitor) Stop() {
	<-j.cron.Stop().Done()
}

// SweepResult reports one cleanup pass.
type SweepResult struct {
	FilesRemoved   int
	HistoryRemoved int64
}

// Sweep removes stale temp files and prunes history.
func (j *Janitor) Sweep(ctx context.Context) SweepResult {
	var res SweepResult

	removed, err := j.sweepTemp()
	if err != nil {
		j.logger.Warn("temp sweep failed", "error", err)
	}
	res.FilesRemoved = removed

	if j.pruner != nil && j.cfg.HistoryRetention > 0 {
		n, err := j.pruner.Prune(ctx, j.now().Add(-j.cfg.HistoryRetention))
		if err != nil {
			j.logger.Warn("history prune failed", "error", err)
		}
		res.HistoryRemoved = n
	}

	if res.FilesRemoved > 0 || res.HistoryRemoved > 0 {
		j.logger.Info("janitor sweep", "files_removed", res.FilesRemoved, "history_removed", res.HistoryRemoved)
	}
	return res
}

func (j *Janitor) sweepTemp() (int, error) {
	entries, err := os.ReadDir(j.cfg.TempDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("read temp dir: %w", err)
	}

	cutoff := j.now().Add(-j.cfg.MaxAge)
	removed := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		p := filepath.Join(j.cfg.TempDir, e.Name())
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			j.logger.Warn("failed to remove stale file", "path", p, "error", err)
			continue
		}
		removed++
	}
	return removed, nil
}
