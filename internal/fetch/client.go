// Package fetch is the single door through which every remote call leaves
// the process. Each call is timed and followed by the politeness delay.
package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/snac-tools/eacsupp/internal/model"
	"github.com/snac-tools/eacsupp/internal/polite"
	"go.uber.org/zap"
)

const maxJSONBytes = 4 << 20

// StatusError is returned by GetJSON when the service answers with an
// HTTP error status
type StatusError struct {
	StatusCode int
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status: %d %s (%s)", e.StatusCode, http.StatusText(e.StatusCode), e.URL)
}

// Client issues HEAD probes and JSON GETs
type Client struct {
	follow    *http.Client // follows redirects
	noFollow  *http.Client // returns the first response as-is
	userAgent string
	throttle  *polite.Throttle
	logger    *zap.Logger
}

// NewClient creates a client from the HTTP section of the run config
func NewClient(cfg model.HTTPConfig, throttle *polite.Throttle, logger *zap.Logger) *Client {
	if throttle == nil {
		throttle = polite.NewThrottle(1)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	transport := &http.Transport{
		Proxy: proxyFunc(cfg.HTTPProxy, cfg.HTTPSProxy),
	}

	return &Client{
		follow: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
		},
		noFollow: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		userAgent: cfg.UserAgent,
		throttle:  throttle,
		logger:    logger,
	}
}

// Head probes rawURL and returns the response status code. Transport
// failures are returned as errors; any status, including 4xx/5xx, is not.
func (c *Client) Head(ctx context.Context, rawURL string, followRedirects bool) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}

	client := c.noFollow
	if followRedirects {
		client = c.follow
	}

	resp, err := c.do(ctx, client, req)
	if err != nil {
		return 0, err
	}
	_ = resp.Body.Close()

	c.logger.Debug("head",
		zap.String("url", rawURL),
		zap.Bool("follow", followRedirects),
		zap.Int("status", resp.StatusCode))

	return resp.StatusCode, nil
}

// GetJSON issues a GET to base with params and decodes the JSON body into v.
// An HTTP error status yields a *StatusError and leaves v untouched.
func (c *Client) GetJSON(ctx context.Context, base string, params url.Values, v any) error {
	u, err := url.Parse(base)
	if err != nil {
		return fmt.Errorf("parse base URL: %w", err)
	}
	q := u.Query()
	for k, vals := range params {
		for _, val := range vals {
			q.Add(k, val)
		}
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json, application/sparql-results+json;q=0.9")

	resp, err := c.do(ctx, c.follow, req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	c.logger.Debug("get",
		zap.String("url", base),
		zap.Int("status", resp.StatusCode))

	if resp.StatusCode >= 400 {
		return &StatusError{StatusCode: resp.StatusCode, URL: base}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxJSONBytes))
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("decode %s: %w", base, err)
	}
	return nil
}

// do sends req and applies the politeness delay measured from the call itself
func (c *Client) do(ctx context.Context, client *http.Client, req *http.Request) (*http.Response, error) {
	rawURL := req.URL.String()
	if err := c.throttle.Before(ctx, rawURL); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}

	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", req.Method, rawURL, err)
	}
	c.throttle.After(ctx, rawURL, time.Since(start))

	return resp, nil
}

// proxyFunc routes through explicit proxies when configured and falls back
// to the environment otherwise
func proxyFunc(httpProxy, httpsProxy string) func(*http.Request) (*url.URL, error) {
	if httpProxy == "" && httpsProxy == "" {
		return http.ProxyFromEnvironment
	}
	return func(req *http.Request) (*url.URL, error) {
		if req.URL.Scheme == "https" && httpsProxy != "" {
			return url.Parse(httpsProxy)
		}
		if httpProxy != "" {
			return url.Parse(httpProxy)
		}
		return http.ProxyFromEnvironment(req)
	}
}
