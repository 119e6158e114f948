package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync/atomic"

	"github.com/ppiankov/petitionlens/internal/model"
	"github.com/ppiankov/petitionlens/internal/worker"
	"go.uber.org/zap"
)

// listPage is one page of the petitions index
type listPage struct {
	Links struct {
		Next *string `json:"next"`
	} `json:"links"`
	Data []struct {
		ID    model.PetitionID `json:"id"`
		Links struct {
			Self string `json:"self"`
		} `json:"links"`
	} `json:"data"`
}

// detailDocument wraps a petition detail resource
type detailDocument struct {
	Data *json.RawMessage `json:"data"`
}

// Summary counts what a crawl retrieved
type Summary struct {
	Pages     int
	Listed    int
	Fetched   int
	FromCache int
	Failed    int
	Failures  []Failure
}

// Failure records a detail resource that could not be retrieved
type Failure struct {
	URL string
	Err error
}

// Client crawls the petitions API
type Client struct {
	fetcher  *Fetcher
	workers  int
	maxPages int
	logger   *zap.Logger

	// OnProgress is called after each detail completes, if set
	OnProgress func(done, total int)
}

// NewClient creates a crawler fetching details on the given number of workers
func NewClient(f *Fetcher, workers int, logger *zap.Logger) *Client {
	if workers <= 0 {
		workers = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{fetcher: f, workers: workers, maxPages: 10_000, logger: logger}
}

// ListDetailLinks walks the index from startURL following links.next and returns every links.self in order.
// A failed list page aborts the crawl.
func (c *Client) ListDetailLinks(ctx context.Context, startURL string) ([]string, *Summary, error) {
	summary := &Summary{}
	seenPages := make(map[string]bool)
	seenLinks := make(map[string]bool)
	var links []string

	next := startURL
	for next != "" {
		if seenPages[next] {
			return nil, summary, fmt.Errorf("list page loop at %s", next)
		}
		if len(seenPages) >= c.maxPages {
			return nil, summary, fmt.Errorf("list exceeded %d pages", c.maxPages)
		}
		seenPages[next] = true

		res, err := c.fetcher.FetchWithRetry(ctx, next)
		if err != nil {
			return nil, summary, fmt.Errorf("fetch list page %s: %w", next, err)
		}

		var page listPage
		if err := json.Unmarshal(res.Body, &page); err != nil {
			return nil, summary, fmt.Errorf("decode list page %s: %w", next, err)
		}
		summary.Pages++

		for _, item := range page.Data {
			link := item.Links.Self
			if link == "" {
				continue
			}
			link = resolveLink(next, link)
			if seenLinks[link] {
				continue
			}
			seenLinks[link] = true
			links = append(links, link)
		}

		c.logger.Debug("list page fetched",
			zap.String("url", next),
			zap.Int("items", len(page.Data)),
			zap.Bool("cached", res.FromCache))

		next = ""
		if page.Links.Next != nil && *page.Links.Next != "" {
			next = resolveLink(res.FinalURL, *page.Links.Next)
		}
	}

	summary.Listed = len(links)
	return links, summary, nil
}

type detailResult struct {
	url      string
	petition *model.Petition
	cached   bool
	err      error
}

func (r *detailResult) GetError() error { return r.err }

// FetchDetails retrieves each detail resource concurrently and returns petitions in link order.
// Failed details are logged and skipped.
func (c *Client) FetchDetails(ctx context.Context, links []string, summary *Summary) []model.Petition {
	if summary == nil {
		summary = &Summary{}
	}

	var done atomic.Int32
	total := len(links)

	jobs := make([]worker.Job, 0, total)
	for _, link := range links {
		jobs = append(jobs, worker.FuncJob(func(ctx context.Context) worker.Result {
			res := c.fetchDetail(ctx, link)
			n := int(done.Add(1))
			if c.OnProgress != nil {
				c.OnProgress(n, total)
			}
			return res
		}))
	}

	results := worker.RunAll(ctx, c.workers, jobs)

	petitions := make([]model.Petition, 0, len(results))
	for _, r := range results {
		dr := r.(*detailResult)
		if dr.err != nil {
			summary.Failed++
			summary.Failures = append(summary.Failures, Failure{URL: dr.url, Err: dr.err})
			c.logger.Warn("petition detail skipped", zap.String("url", dr.url), zap.Error(dr.err))
			continue
		}
		if dr.cached {
			summary.FromCache++
		}
		summary.Fetched++
		petitions = append(petitions, *dr.petition)
	}

	return petitions
}

func (c *Client) fetchDetail(ctx context.Context, link string) *detailResult {
	out := &detailResult{url: link}

	res, err := c.fetcher.FetchWithRetry(ctx, link)
	if err != nil {
		out.err = err
		return out
	}
	out.cached = res.FromCache

	var doc detailDocument
	if err := json.Unmarshal(res.Body, &doc); err != nil {
		out.err = fmt.Errorf("decode detail: %w", err)
		return out
	}
	if doc.Data == nil {
		out.err = fmt.Errorf("decode detail: missing data")
		return out
	}

	var p model.Petition
	if err := json.Unmarshal(*doc.Data, &p); err != nil {
		out.err = fmt.Errorf("decode petition: %w", err)
		return out
	}
	if p.ID == "" {
		out.err = fmt.Errorf("decode petition: missing id")
		return out
	}

	out.petition = &p
	return out
}

// FetchAll lists and retrieves every petition reachable from startURL
func (c *Client) FetchAll(ctx context.Context, startURL string) ([]model.Petition, *Summary, error) {
	links, summary, err := c.ListDetailLinks(ctx, startURL)
	if err != nil {
		return nil, summary, err
	}

	c.logger.Info("petition index listed",
		zap.Int("pages", summary.Pages),
		zap.Int("petitions", summary.Listed))

	petitions := c.FetchDetails(ctx, links, summary)
	if err := ctx.Err(); err != nil {
		return nil, summary, fmt.Errorf("fetch interrupted: %w", err)
	}

	return petitions, summary, nil
}

// resolveLink resolves ref against base so relative links from test servers work
func resolveLink(base, ref string) string {
	b, err := url.Parse(base)
	if err != nil {
		return ref
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return b.ResolveReference(r).String()
}
