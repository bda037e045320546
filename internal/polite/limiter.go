package polite

import (
	"context"
	"fmt"
	"net/url"

	"golang.org/x/time/rate"
)

// Limiter caps the request rate per host. It only ever delays a call,
// it never rejects one.
type Limiter struct {
	perHost map[string]*rate.Limiter
	rps     rate.Limit
	burst   int
}

// NewLimiter creates a per-host limiter. requestsPerSecond <= 0 yields nil,
// which Throttle treats as "no ceiling".
func NewLimiter(requestsPerSecond float64, burst int) *Limiter {
	if requestsPerSecond <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{
		perHost: make(map[string]*rate.Limiter),
		rps:     rate.Limit(requestsPerSecond),
		burst:   burst,
	}
}

// Wait blocks until a call to rawURL's host is allowed
func (l *Limiter) Wait(ctx context.Context, rawURL string) error {
	host, err := hostKey(rawURL)
	if err != nil {
		return err
	}
	return l.forHost(host).Wait(ctx)
}

// allow reports whether a call to rawURL's host could go out right now,
// consuming a token if so
func (l *Limiter) allow(rawURL string) bool {
	host, err := hostKey(rawURL)
	if err != nil {
		return false
	}
	return l.forHost(host).Allow()
}

func (l *Limiter) forHost(host string) *rate.Limiter {
	lim, ok := l.perHost[host]
	if !ok {
		lim = rate.NewLimiter(l.rps, l.burst)
		l.perHost[host] = lim
	}
	return lim
}

func hostKey(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse URL: %w", err)
	}
	return u.Host, nil
}
