package netx

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateSettings configures token-bucket rate limiting per host.
type RateSettings struct {
	Requests int
	Window   time.Duration
}

// HostLimiter keeps one token bucket per host. A nil or disabled limiter never blocks.
type HostLimiter struct {
	settings RateSettings
	enabled  bool

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewHostLimiter creates a limiter; zero settings disable it.
func NewHostLimiter(settings RateSettings) *HostLimiter {
	l := &HostLimiter{settings: settings}
	if settings.Requests > 0 && settings.Window > 0 {
		l.enabled = true
		l.limiters = make(map[string]*rate.Limiter)
	}
	return l
}

// Wait blocks until the host has a token or ctx is done.
func (l *HostLimiter) Wait(ctx context.Context, host string) error {
	if l == nil || !l.enabled || host == "" {
		return nil
	}

	l.mu.Lock()
	limiter := l.ensureLocked(strings.ToLower(host))
	l.mu.Unlock()

	return limiter.Wait(ctx)
}

func (l *HostLimiter) ensureLocked(host string) *rate.Limiter {
	if limiter, ok := l.limiters[host]; ok {
		return limiter
	}
	interval := l.settings.Window / time.Duration(l.settings.Requests)
	if interval <= 0 {
		interval = time.Millisecond
	}
	limiter := rate.NewLimiter(rate.Every(interval), l.settings.Requests)
	l.limiters[host] = limiter
	return limiter
}
