// Package pipeline composes classification, location, fetching and delivery
// for one inbound URL.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/iconidentify/igrabba/internal/domain"
	"github.com/iconidentify/igrabba/internal/locator"
	"github.com/iconidentify/igrabba/pkg/instagram"
)

// Locator finds asset references for a classified request.
type Locator interface {
	Locate(ctx context.Context, req domain.ContentRequest) (*locator.Result, error)
}

// Fetcher materializes one asset reference.
type Fetcher interface {
	Fetch(ctx context.Context, contentID string, ref domain.AssetReference) (*domain.FetchedAsset, error)
}

// Deliverer sends one fetched asset and releases it.
type Deliverer interface {
	Deliver(ctx context.Context, asset *domain.FetchedAsset, dest, caption string) (bool, error)
}

// Recorder persists finished outcomes.
type Recorder interface {
	Record(ctx context.Context, rawURL, dest string, outcome domain.DeliveryOutcome) error
}

// Observer is told when media has been located, before any fetch starts.
type Observer interface {
	Located(ctx context.Context, dest string, req domain.ContentRequest, count int)
}

// Config holds per-request limits.
type Config struct {
	FetchConcurrency int
	MaxAssets        int
}

// Orchestrator runs the pipeline for one URL at a time; it is safe for concurrent use.
type Orchestrator struct {
	cfg       Config
	locator   Locator
	fetcher   Fetcher
	deliverer Deliverer
	recorder  Recorder
	observer  Observer
	logger    *slog.Logger
}

// NewOrchestrator creates an orchestrator.
func NewOrchestrator(cfg Config, loc Locator, fetcher Fetcher, deliverer Deliverer, logger *slog.Logger) *Orchestrator {
	if cfg.FetchConcurrency <= 0 {
		cfg.FetchConcurrency = 3
	}
	if cfg.MaxAssets <= 0 {
		cfg.MaxAssets = 5
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		cfg:       cfg,
		locator:   loc,
		fetcher:   fetcher,
		deliverer: deliverer,
		logger:    logger,
	}
}

// SetRecorder enables outcome history.
func (o *Orchestrator) SetRecorder(r Recorder) {
	o.recorder = r
}

// SetObserver registers a progress observer.
func (o *Orchestrator) SetObserver(obs Observer) {
	o.observer = obs
}

// Run resolves rawURL and delivers what it finds to dest.
func (o *Orchestrator) Run(ctx context.Context, rawURL, dest string) domain.DeliveryOutcome {
	start := time.Now()
	req := instagram.Classify(rawURL)

	outcome := o.run(ctx, req, dest)
	outcome.Duration = time.Since(start)

	o.logger.Info("pipeline finished",
		"content_id", outcome.ContentID,
		"kind", outcome.Kind.String(),
		"strategy", outcome.Strategy,
		"attempted", outcome.Attempted,
		"delivered", outcome.Delivered,
		"failure", outcome.FailureReason,
		"duration", outcome.Duration,
	)

	if o.recorder != nil {
		if err := o.recorder.Record(context.WithoutCancel(ctx), rawURL, dest, outcome); err != nil {
			o.logger.Warn("failed to record outcome", "error", err)
		}
	}
	return outcome
}

func (o *Orchestrator) run(ctx context.Context, req domain.ContentRequest, dest string) domain.DeliveryOutcome {
	if !req.Classified() {
		return domain.NewFailedOutcome(req, FailureReason(domain.ErrClassification))
	}

	logger := o.logger.With("content_id", req.ContentID, "kind", req.Kind.String())

	res, err := o.locator.Locate(ctx, req)
	if err != nil {
		logger.Warn("locate failed", "error", err)
		out := domain.NewFailedOutcome(req, FailureReason(err))
		if res != nil {
			out.Strategy = res.Strategy
		}
		return out
	}
	if res.Empty() {
		return domain.NewFailedOutcome(req, FailureReason(domain.ErrLocatorExhausted))
	}

	refs := o.capAssets(res.Assets, logger)
	if o.observer != nil {
		o.observer.Located(ctx, dest, req, len(refs))
	}

	// Once fetching starts every selected asset runs to completion.
	work := context.WithoutCancel(ctx)

	fetched := o.fetchAll(work, req.ContentID, refs, logger)

	outcome := domain.DeliveryOutcome{
		Attempted: len(refs),
		ContentID: req.ContentID,
		Kind:      req.Kind,
		Strategy:  res.Strategy,
	}
	caption := Caption(req.Kind)
	for _, asset := range fetched {
		if asset == nil {
			continue
		}
		ok, err := o.deliverer.Deliver(work, asset, dest, caption)
		if err != nil {
			logger.Warn("delivery failed", "ordinal", asset.Ordinal, "error", err)
		}
		if ok {
			outcome.Delivered++
		}
	}
	return outcome
}

// capAssets keeps the first MaxAssets references. Discarded local files are deleted.
func (o *Orchestrator) capAssets(refs []domain.AssetReference, logger *slog.Logger) []domain.AssetReference {
	if len(refs) <= o.cfg.MaxAssets {
		return refs
	}
	logger.Info("discarding assets over per-request cap", "found", len(refs), "cap", o.cfg.MaxAssets)
	for _, ref := range refs[o.cfg.MaxAssets:] {
		if ref.IsLocal() {
			if err := os.Remove(ref.Locator); err != nil && !errors.Is(err, os.ErrNotExist) {
				logger.Warn("failed to remove discarded file", "path", ref.Locator, "error", err)
			}
		}
	}
	return refs[:o.cfg.MaxAssets]
}

// fetchAll fetches refs with bounded concurrency. The result is indexed like
// refs; failed fetches leave a nil slot.
func (o *Orchestrator) fetchAll(ctx context.Context, contentID string, refs []domain.AssetReference, logger *slog.Logger) []*domain.FetchedAsset {
	out := make([]*domain.FetchedAsset, len(refs))

	var g errgroup.Group
	g.SetLimit(o.cfg.FetchConcurrency)
	for i, ref := range refs {
		i, ref := i, ref
		g.Go(func() error {
			asset, err := o.fetcher.Fetch(ctx, contentID, ref)
			if err != nil {
				logger.Warn("fetch failed", "ordinal", ref.Ordinal, "error", err)
				return nil
			}
			out[i] = asset
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// Caption is attached to every delivered file.
func Caption(kind domain.ContentKind) string {
	return "📱 Downloaded from Instagram " + kind.String()
}

// FailureReason renders a request-fatal error for the requester.
func FailureReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrClassification):
		return "Could not extract Instagram post ID"
	case errors.Is(err, domain.ErrLocatorExhausted):
		return "Could not find any media in this post"
	case errors.Is(err, domain.ErrToolUnavailable):
		return "Could not find any media in this post (yt-dlp is not installed)"
	case errors.Is(err, domain.ErrToolTimeout):
		return "yt-dlp timed out while downloading"
	case errors.Is(err, domain.ErrToolFailed):
		return "Could not find any media in this post (yt-dlp failed)"
	}
	return upperFirst(strings.TrimSpace(err.Error()))
}

func upperFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
