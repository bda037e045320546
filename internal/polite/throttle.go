// Package polite spaces out calls to third-party services.
//
// The main device is the Throttle: after every remote call it sleeps for the
// call's own observed latency multiplied by a politeness factor, so a slow
// service automatically gets a longer rest. Requests are issued strictly one
// at a time; the delay serializes them, it is not a ceiling for a pool.
package polite

import (
	"context"
	"net/url"
	"time"

	"go.uber.org/zap"
)

// sleepFunc is the sleep used after each call (injectable for tests)
var sleepFunc = time.Sleep

// Throttle applies the post-call politeness delay
type Throttle struct {
	factor  float64
	limiter *Limiter
	robots  *RobotsChecker
	logger  *zap.Logger
}

// Option configures a Throttle
type Option func(*Throttle)

// WithLimiter adds a per-host request ceiling that is waited on before each call
func WithLimiter(l *Limiter) Option {
	return func(t *Throttle) { t.limiter = l }
}

// WithRobots uses robots.txt Crawl-delay as a minimum post-call delay
func WithRobots(r *RobotsChecker) Option {
	return func(t *Throttle) { t.robots = r }
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(t *Throttle) {
		if l != nil {
			t.logger = l
		}
	}
}

// NewThrottle creates a throttle. A negative factor is treated as 0.
func NewThrottle(factor float64, opts ...Option) *Throttle {
	if factor < 0 {
		factor = 0
	}
	t := &Throttle{
		factor: factor,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Before blocks until the per-host ceiling allows a call to rawURL.
// Without a limiter it returns immediately.
func (t *Throttle) Before(ctx context.Context, rawURL string) error {
	if t.limiter == nil {
		return nil
	}
	return t.limiter.Wait(ctx, rawURL)
}

// After sleeps for elapsed*factor, or the host's crawl delay if that is
// longer. A robots.txt request made on the way is itself a remote call and
// adds its own proportional delay.
func (t *Throttle) After(ctx context.Context, rawURL string, elapsed time.Duration) time.Duration {
	delay := Delay(elapsed, t.factor)

	if t.robots != nil {
		crawlDelay, fetched := t.robots.CrawlDelay(ctx, rawURL)
		if crawlDelay > delay {
			delay = crawlDelay
		}
		delay += Delay(fetched, t.factor)
	}

	if delay > 0 {
		t.logger.Debug("polite wait",
			zap.String("host", hostOf(rawURL)),
			zap.Duration("elapsed", elapsed),
			zap.Duration("delay", delay))
		sleepFunc(delay)
	}
	return delay
}

// Delay computes the politeness delay for an observed call latency
func Delay(elapsed time.Duration, factor float64) time.Duration {
	if elapsed <= 0 || factor <= 0 {
		return 0
	}
	return time.Duration(float64(elapsed) * factor)
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Host
}
