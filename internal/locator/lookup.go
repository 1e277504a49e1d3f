package locator

import (
	"context"
	"sync"

	"github.com/iconidentify/igrabba/internal/domain"
	"github.com/iconidentify/igrabba/pkg/instagram"
)

// PageFetcher downloads the HTML of a post page.
type PageFetcher interface {
	FetchPage(ctx context.Context, pageURL string) ([]byte, error)
}

// Lookup carries per-request state shared between strategies. The post page is
// fetched at most once no matter how many strategies read it.
type Lookup struct {
	Request domain.ContentRequest

	pages PageFetcher
	once  sync.Once
	body  []byte
	err   error
}

// NewLookup creates request-scoped state for one locate call.
func NewLookup(req domain.ContentRequest, pages PageFetcher) *Lookup {
	return &Lookup{Request: req, pages: pages}
}

// PageURL is the canonical post page for the request.
func (l *Lookup) PageURL() string {
	return instagram.PostURL(l.Request.ContentID)
}

// Page returns the post page body, fetching it on first use.
func (l *Lookup) Page(ctx context.Context) ([]byte, error) {
	l.once.Do(func() {
		l.body, l.err = l.pages.FetchPage(ctx, l.PageURL())
	})
	return l.body, l.err
}
