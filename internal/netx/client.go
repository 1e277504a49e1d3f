// Package netx holds the HTTP plumbing shared by page scraping and media downloads.
package netx

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/iconidentify/igrabba/internal/config"
)

// Client wraps an http.Client with browser-like default headers,
// round-robin proxies and a per-host rate limiter.
type Client struct {
	http      *http.Client
	userAgent string
	limiter   *HostLimiter
}

// NewClient builds a Client from download configuration.
func NewClient(cfg config.DownloadConfig) (*Client, error) {
	proxies, err := parseProxies(cfg.Proxies, cfg.ProxyUsername, cfg.ProxyPassword)
	if err != nil {
		return nil, err
	}

	transport := &http.Transport{
		DialContext:           (&net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		// Compression is negotiated by hand so brotli can be offered too.
		DisableCompression: true,
	}
	if len(proxies) > 0 {
		transport.Proxy = roundRobin(proxies)
	}

	return &Client{
		http: &http.Client{
			Transport: transport,
			// Per-call deadlines come from the request context.
		},
		userAgent: cfg.UserAgent,
		limiter:   NewHostLimiter(RateSettings{Requests: cfg.RateRequests, Window: cfg.RateWindow}),
	}, nil
}

// NewClientWith wraps an existing http.Client. It is used by tests and the resolve CLI.
func NewClientWith(hc *http.Client, userAgent string) *Client {
	return &Client{http: hc, userAgent: userAgent}
}

// Do sends req after waiting for the host's rate limit and applying default headers.
// Headers already set on req win over defaults.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	if err := c.limiter.Wait(req.Context(), req.URL.Hostname()); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	setDefault(req.Header, "User-Agent", c.userAgent)
	setDefault(req.Header, "Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8")
	setDefault(req.Header, "Accept-Language", "en-US,en;q=0.5")
	setDefault(req.Header, "Accept-Encoding", "gzip, deflate, br")
	setDefault(req.Header, "Referer", "https://www.instagram.com/")

	return c.http.Do(req)
}

// Get is a convenience wrapper for a GET with extra headers.
func (c *Client) Get(ctx context.Context, rawURL string, headers map[string]string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return c.Do(req)
}

func setDefault(h http.Header, key, value string) {
	if value == "" || h.Get(key) != "" {
		return
	}
	h.Set(key, value)
}

func parseProxies(raw []string, username, password string) ([]*url.URL, error) {
	var proxies []*url.URL
	for _, p := range raw {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if !strings.Contains(p, "://") {
			p = "http://" + p
		}
		u, err := url.Parse(p)
		if err != nil {
			return nil, fmt.Errorf("parse proxy url: %w", err)
		}
		if u.User == nil && username != "" {
			u.User = url.UserPassword(username, password)
		}
		proxies = append(proxies, u)
	}
	return proxies, nil
}

func roundRobin(proxies []*url.URL) func(*http.Request) (*url.URL, error) {
	var next atomic.Uint64
	return func(*http.Request) (*url.URL, error) {
		n := next.Add(1) - 1
		return proxies[n%uint64(len(proxies))], nil
	}
}
