// Package locator turns a classified request into asset references by trying
// extraction strategies in a fixed order.
package locator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/iconidentify/igrabba/internal/domain"
)

// Strategy is one way of finding media for a request.
//
// Locate returns a nil slice when it found nothing. Errors wrapping
// domain.ErrStrategySoftFailure let the chain fall through; any other error
// ends the lookup.
type Strategy interface {
	Name() string
	Applies(kind domain.ContentKind) bool
	Locate(ctx context.Context, l *Lookup) ([]domain.AssetReference, error)
}

// Result is the output of the first strategy that found something.
type Result struct {
	Strategy string
	Assets   []domain.AssetReference
}

// Empty reports whether no strategy produced any reference.
func (r *Result) Empty() bool {
	return r == nil || len(r.Assets) == 0
}

// Chain runs strategies in order and stops at the first non-empty result.
type Chain struct {
	strategies []Strategy
	pages      PageFetcher
	logger     *slog.Logger
}

// NewChain creates a chain over strategies. pages backs Lookup.Page.
func NewChain(pages PageFetcher, logger *slog.Logger, strategies ...Strategy) *Chain {
	if logger == nil {
		logger = slog.Default()
	}
	return &Chain{
		strategies: strategies,
		pages:      pages,
		logger:     logger,
	}
}

// Names lists the strategies in execution order.
func (c *Chain) Names() []string {
	names := make([]string, len(c.strategies))
	for i, s := range c.strategies {
		names[i] = s.Name()
	}
	return names
}

// Locate finds asset references for req. An empty result with a nil error
// means every applicable strategy came back empty.
func (c *Chain) Locate(ctx context.Context, req domain.ContentRequest) (*Result, error) {
	lookup := NewLookup(req, c.pages)
	logger := c.logger.With("content_id", req.ContentID, "kind", req.Kind.String())

	for _, s := range c.strategies {
		if !s.Applies(req.Kind) {
			continue
		}

		refs, err := s.Locate(ctx, lookup)
		if err != nil {
			if !errors.Is(err, domain.ErrStrategySoftFailure) {
				logger.Warn("strategy failed", "strategy", s.Name(), "error", err)
				return &Result{Strategy: s.Name()}, fmt.Errorf("%s: %w", s.Name(), err)
			}
			logger.Debug("strategy soft failure", "strategy", s.Name(), "error", err)
		}
		if len(refs) == 0 {
			logger.Debug("strategy found nothing", "strategy", s.Name())
			continue
		}

		logger.Info("media located", "strategy", s.Name(), "assets", len(refs))
		return &Result{Strategy: s.Name(), Assets: refs}, nil
	}

	return &Result{}, nil
}

// remoteRefs numbers URLs in order as remote references.
func remoteRefs(urls []string) []domain.AssetReference {
	if len(urls) == 0 {
		return nil
	}
	refs := make([]domain.AssetReference, len(urls))
	for i, u := range urls {
		refs[i] = domain.AssetReference{Locator: u, Kind: domain.LocatorRemote, Ordinal: i}
	}
	return refs
}

func softFailure(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, domain.ErrStrategySoftFailure, err)
}
