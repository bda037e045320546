package polite

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/temoto/robotstxt"
)

// RobotsChecker reads robots.txt Crawl-delay values, one fetch per host
type RobotsChecker struct {
	groups     map[string]*robotstxt.Group
	httpClient *http.Client
	userAgent  string
}

// NewRobotsChecker creates a robots.txt reader. client may be nil.
func NewRobotsChecker(client *http.Client, userAgent string) *RobotsChecker {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &RobotsChecker{
		groups:     make(map[string]*robotstxt.Group),
		httpClient: client,
		userAgent:  userAgent,
	}
}

// CrawlDelay returns the Crawl-delay that applies to this agent on rawURL's
// host. Unreachable or unparsable robots.txt means no delay. fetched is the
// latency of the robots.txt request when this call had to make one, and 0
// when the host was already known.
func (r *RobotsChecker) CrawlDelay(ctx context.Context, rawURL string) (delay, fetched time.Duration) {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return 0, 0
	}

	group, ok := r.groups[parsed.Host]
	if !ok {
		start := time.Now()
		group, err = r.fetchGroup(ctx, parsed)
		fetched = time.Since(start)
		if err != nil {
			group = nil
		}
		r.groups[parsed.Host] = group
	}
	if group == nil {
		return 0, fetched
	}
	return group.CrawlDelay, fetched
}

func (r *RobotsChecker) fetchGroup(ctx context.Context, target *url.URL) (*robotstxt.Group, error) {
	robotsURL := fmt.Sprintf("%s://%s/robots.txt", target.Scheme, target.Host)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", r.userAgent)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch robots.txt: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := robotstxt.FromResponse(resp)
	if err != nil {
		return nil, fmt.Errorf("parse robots.txt: %w", err)
	}
	return data.FindGroup(AgentToken(r.userAgent)), nil
}

// AgentToken reduces a User-Agent header to the product token robots.txt
// groups match on ("eacsupp/0.3 (+...)" -> "eacsupp")
func AgentToken(ua string) string {
	parts := strings.Fields(ua)
	if len(parts) == 0 {
		return ua
	}
	return strings.Split(parts[0], "/")[0]
}
