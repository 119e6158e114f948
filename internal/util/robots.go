package util

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
)

// hostRules is the parsed robots.txt of one origin with the crawl delay resolved for our agent
type hostRules struct {
	data  *robotstxt.RobotsData
	delay time.Duration
}

// RobotsChecker answers robots.txt questions per origin, fetching each robots.txt once
type RobotsChecker struct {
	client    *http.Client
	userAgent string
	token     string

	mu    sync.Mutex
	rules map[string]hostRules
}

// NewRobotsChecker creates a checker; a nil client gets one with the given timeout
func NewRobotsChecker(client *http.Client, userAgent string, timeout time.Duration) *RobotsChecker {
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	return &RobotsChecker{
		client:    client,
		userAgent: userAgent,
		token:     NormalizeUserAgent(userAgent),
		rules:     make(map[string]hostRules),
	}
}

// CanFetch reports whether rawURL may be fetched and the origin's crawl delay.
// An unreachable robots.txt allows the fetch.
func (r *RobotsChecker) CanFetch(ctx context.Context, rawURL string) (bool, time.Duration, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false, 0, fmt.Errorf("parse URL: %w", err)
	}
	if u.Host == "" {
		return false, 0, fmt.Errorf("parse URL: missing host in %q", rawURL)
	}

	rules, err := r.lookup(ctx, u.Scheme+"://"+u.Host)
	if err != nil {
		return true, 0, nil
	}

	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	return rules.data.TestAgent(path, r.token), rules.delay, nil
}

func (r *RobotsChecker) lookup(ctx context.Context, origin string) (hostRules, error) {
	r.mu.Lock()
	rules, ok := r.rules[origin]
	r.mu.Unlock()
	if ok {
		return rules, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, origin+"/robots.txt", nil)
	if err != nil {
		return hostRules{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", r.userAgent)

	resp, err := r.client.Do(req)
	if err != nil {
		return hostRules{}, fmt.Errorf("fetch robots.txt: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	// 4xx allows everything, 5xx disallows everything
	data, err := robotstxt.FromResponse(resp)
	if err != nil {
		return hostRules{}, fmt.Errorf("parse robots.txt: %w", err)
	}

	rules = hostRules{data: data}
	if g := data.FindGroup(r.token); g != nil {
		rules.delay = g.CrawlDelay
	}

	r.mu.Lock()
	r.rules[origin] = rules
	r.mu.Unlock()
	return rules, nil
}

// Clear forgets every fetched robots.txt
func (r *RobotsChecker) Clear() {
	r.mu.Lock()
	r.rules = make(map[string]hostRules)
	r.mu.Unlock()
}

// NormalizeUserAgent returns the product token of a user agent, e.g. "petitionlens" for "petitionlens/0.1 (+url)"
func NormalizeUserAgent(ua string) string {
	token, _, _ := strings.Cut(strings.TrimSpace(ua), " ")
	token, _, _ = strings.Cut(token, "/")
	return token
}
