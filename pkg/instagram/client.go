// Package instagram classifies Instagram URLs and extracts media URLs from
// post pages and the public post API.
package instagram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/iconidentify/igrabba/internal/domain"
	"github.com/iconidentify/igrabba/internal/netx"
)

// ErrUnexpectedStatus is returned for non-200 page or API responses.
var ErrUnexpectedStatus = errors.New("unexpected status code")

// Client fetches post pages and API payloads from instagram.com.
type Client struct {
	http         *netx.Client
	maxPageBytes int64
	retry        netx.RetryConfig
	logger       *slog.Logger

	// baseURL is overridden in tests.
	baseURL string
}

// NewClient creates a new Instagram client on top of a shared HTTP client.
func NewClient(hc *netx.Client, maxPageBytes int64, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		http:         hc,
		maxPageBytes: maxPageBytes,
		retry:        netx.DefaultRetryConfig(),
		logger:       logger,
		baseURL:      "https://" + CanonicalHost,
	}
}

// SetBaseURL points the client at another origin.
func (c *Client) SetBaseURL(base string) {
	c.baseURL = base
}

// SetRetryConfig replaces the retry policy for rate-limited responses.
func (c *Client) SetRetryConfig(cfg netx.RetryConfig) {
	c.retry = cfg
}

// FetchPage downloads the HTML of a post page.
func (c *Client) FetchPage(ctx context.Context, pageURL string) ([]byte, error) {
	body, err := c.get(ctx, c.rebase(pageURL), nil)
	if err != nil {
		return nil, fmt.Errorf("fetch page: %w", err)
	}
	c.logger.Debug("fetched post page", "url", pageURL, "bytes", len(body))
	return body, nil
}

// FetchPostAPI queries the less-authenticated JSON endpoint for a shortcode.
func (c *Client) FetchPostAPI(ctx context.Context, shortcode string) ([]byte, error) {
	apiURL := fmt.Sprintf("%s/p/%s/?__a=1&__d=dis", c.baseURL, shortcode)
	headers := map[string]string{
		"Accept":           "application/json",
		"X-Requested-With": "XMLHttpRequest",
		"X-IG-App-ID":      "936619743392459",
	}
	body, err := c.get(ctx, apiURL, headers)
	if err != nil {
		return nil, fmt.Errorf("fetch post api: %w", err)
	}
	return body, nil
}

func (c *Client) get(ctx context.Context, rawURL string, headers map[string]string) ([]byte, error) {
	return netx.RetryWithCheck(ctx, c.retry, func() ([]byte, error) {
		return c.getOnce(ctx, rawURL, headers)
	}, func(err error) bool {
		return errors.Is(err, domain.ErrRateLimited)
	})
}

func (c *Client) getOnce(ctx context.Context, rawURL string, headers map[string]string) ([]byte, error) {
	resp, err := c.http.Get(ctx, rawURL, headers)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		resp.Body.Close()
		return nil, domain.ErrRateLimited
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}

	return netx.ReadAll(resp, c.maxPageBytes)
}

// rebase swaps the canonical origin for baseURL so tests can serve pages.
func (c *Client) rebase(pageURL string) string {
	const canonical = "https://" + CanonicalHost
	if c.baseURL == canonical || len(pageURL) < len(canonical) || pageURL[:len(canonical)] != canonical {
		return pageURL
	}
	return c.baseURL + pageURL[len(canonical):]
}
