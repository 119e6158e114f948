package fetch

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/ppiankov/petitionlens/internal/cache"
	"github.com/ppiankov/petitionlens/internal/model"
	"github.com/ppiankov/petitionlens/internal/util"
	"github.com/ppiankov/petitionlens/internal/worker"
	"go.uber.org/zap"
)

// ErrDisallowed is returned when robots.txt forbids a URL
var ErrDisallowed = errors.New("disallowed by robots.txt")

// StatusError is returned for non-2xx responses
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status: %d %s", e.Code, http.StatusText(e.Code))
}

// fetchSleepFunc is swapped in tests so retries do not wait
var fetchSleepFunc = time.Sleep

const defaultMaxAttempts = 3

// Fetcher retrieves JSON resources with retries, caching, rate limiting and robots.txt checks
type Fetcher struct {
	httpClient  *http.Client
	userAgent   string
	maxBytes    int64
	maxAttempts int
	cache       cache.Cache
	robots      *util.RobotsChecker
	limiter     *worker.Limiter
	logger      *zap.Logger
}

// Option configures a Fetcher
type Option func(*Fetcher)

// WithCache serves repeated URLs from c
func WithCache(c cache.Cache) Option {
	return func(f *Fetcher) {
		if c != nil {
			f.cache = c
		}
	}
}

// WithRobots checks every URL against robots.txt and applies its crawl delay to the limiter
func WithRobots() Option {
	return func(f *Fetcher) {
		f.robots = util.NewRobotsChecker(f.httpClient, f.userAgent, f.httpClient.Timeout)
	}
}

// WithLimiter throttles requests per host
func WithLimiter(l *worker.Limiter) Option {
	return func(f *Fetcher) { f.limiter = l }
}

// WithMaxAttempts bounds the attempts made for a retryable failure
func WithMaxAttempts(n int) Option {
	return func(f *Fetcher) {
		if n > 0 {
			f.maxAttempts = n
		}
	}
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(f *Fetcher) {
		if l != nil {
			f.logger = l
		}
	}
}

// NewFetcher creates a Fetcher from the HTTP configuration
func NewFetcher(cfg model.HTTPConfig, opts ...Option) *Fetcher {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = util.NewProxyFunc(cfg.HTTPProxy, cfg.HTTPSProxy, cfg.NoProxy)
	if cfg.InsecureTLS {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} // #nosec G402 -- opt-in via config
	}

	maxBytes := cfg.MaxBodyBytes
	if maxBytes <= 0 {
		maxBytes = 8_000_000
	}

	f := &Fetcher{
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 3 {
					return fmt.Errorf("stopped after 3 redirects")
				}
				return nil
			},
		},
		userAgent:   cfg.UserAgent,
		maxBytes:    maxBytes,
		maxAttempts: defaultMaxAttempts,
		logger:      zap.NewNop(),
	}

	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Result is one fetched body
type Result struct {
	Body      []byte
	FinalURL  string
	FromCache bool
}

// Fetch performs a single GET with no retry
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Result, error) {
	if f.robots != nil {
		allowed, delay, err := f.robots.CanFetch(ctx, rawURL)
		if err != nil {
			return nil, fmt.Errorf("check robots: %w", err)
		}
		if !allowed {
			return nil, fmt.Errorf("%w: %s", ErrDisallowed, rawURL)
		}
		if delay > 0 && f.limiter != nil {
			if u, err := url.Parse(rawURL); err == nil {
				f.limiter.SetCrawlDelay(u.Host, delay)
				f.logger.Debug("crawl delay applied",
					zap.String("host", u.Host),
					zap.Duration("delay", delay),
					zap.Float64("rate", float64(f.limiter.HostRate(u.Host))))
			}
		}
	}

	if f.limiter != nil {
		if err := f.limiter.Wait(ctx, rawURL); err != nil {
			return nil, fmt.Errorf("wait for rate limit: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{Code: resp.StatusCode, URL: rawURL}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(body)) > f.maxBytes {
		return nil, fmt.Errorf("read body: response exceeds %d bytes", f.maxBytes)
	}

	return &Result{
		Body:     body,
		FinalURL: resp.Request.URL.String(),
	}, nil
}

// FetchWithRetry serves from cache when possible, otherwise fetches with exponential backoff on transient failures
func (f *Fetcher) FetchWithRetry(ctx context.Context, rawURL string) (*Result, error) {
	key := cache.CacheKey(rawURL)
	if f.cache != nil {
		if body, ok := f.cache.Get(key); ok {
			return &Result{Body: body, FinalURL: rawURL, FromCache: true}, nil
		}
	}

	var lastErr error
	for attempt := 1; attempt <= f.maxAttempts; attempt++ {
		res, err := f.Fetch(ctx, rawURL)
		if err == nil {
			if f.cache != nil {
				if cerr := f.cache.Set(key, res.Body, 0); cerr != nil {
					f.logger.Warn("cache write failed", zap.String("url", rawURL), zap.Error(cerr))
				}
			}
			return res, nil
		}

		lastErr = err
		if !isRetryableFetchError(err) || attempt == f.maxAttempts {
			break
		}

		backoff := time.Duration(1<<(attempt-1)) * 500 * time.Millisecond
		f.logger.Debug("retrying fetch",
			zap.String("url", rawURL),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff),
			zap.Error(err))

		fetchSleepFunc(backoff)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}

	return nil, lastErr
}

// isRetryableFetchError reports whether a failure is transient: 5xx, 429, or a transport error
func isRetryableFetchError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrDisallowed) {
		return false
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Code >= 500 || statusErr.Code == http.StatusTooManyRequests
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}
