package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/ppiankov/petitionlens/internal/cache"
	"github.com/ppiankov/petitionlens/internal/constituency"
	"github.com/ppiankov/petitionlens/internal/fetch"
	"github.com/ppiankov/petitionlens/internal/index"
	"github.com/ppiankov/petitionlens/internal/ledger"
	"github.com/ppiankov/petitionlens/internal/llm"
	"github.com/ppiankov/petitionlens/internal/model"
	"github.com/ppiankov/petitionlens/internal/store"
	"github.com/ppiankov/petitionlens/internal/topics"
	"github.com/ppiankov/petitionlens/internal/util"
	"github.com/ppiankov/petitionlens/internal/worker"
	"go.uber.org/zap"
)

// Source yields the full petition corpus
type Source interface {
	FetchAll(ctx context.Context, startURL string) ([]model.Petition, *fetch.Summary, error)
}

// Pipeline orchestrates fetch, store build and topic classification
type Pipeline struct {
	config   *model.Config
	source   Source
	provider llm.Provider
	registry *constituency.Registry
	cache    *cache.LayeredCache
	logger   *zap.Logger
	progress io.Writer
}

// Option configures a Pipeline
type Option func(*Pipeline)

// WithSource replaces the petitions API crawler
func WithSource(s Source) Option {
	return func(p *Pipeline) { p.source = s }
}

// WithProvider sets the classification provider instead of building one from config
func WithProvider(provider llm.Provider) Option {
	return func(p *Pipeline) { p.provider = provider }
}

// WithProgress writes human-readable step lines to w
func WithProgress(w io.Writer) Option {
	return func(p *Pipeline) {
		if w != nil {
			p.progress = w
		}
	}
}

// New creates a pipeline from configuration
func New(cfg *model.Config, logger *zap.Logger, opts ...Option) (*Pipeline, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	p := &Pipeline{
		config:   cfg,
		logger:   logger,
		progress: io.Discard,
	}
	for _, opt := range opts {
		opt(p)
	}

	if cfg.Data.StrictConstituency {
		if cfg.Data.ConstituencyFile != "" {
			reg, err := constituency.Load(cfg.Data.ConstituencyFile)
			if err != nil {
				return nil, fmt.Errorf("load constituencies: %w", err)
			}
			p.registry = reg
		} else {
			p.registry = constituency.Default()
		}
	}

	p.cache = cache.FromConfig(cfg.Cache)
	if p.source == nil {
		p.source = newAPIClient(cfg, logger, p.cache)
	}

	return p, nil
}

func newAPIClient(cfg *model.Config, logger *zap.Logger, c *cache.LayeredCache) *fetch.Client {
	opts := []fetch.Option{
		fetch.WithLimiter(worker.NewLimiter(cfg.Fetch.RequestsPerSecond, cfg.Fetch.BurstSize)),
		fetch.WithMaxAttempts(cfg.Fetch.MaxAttempts),
		fetch.WithLogger(logger),
	}
	if c != nil {
		opts = append(opts, fetch.WithCache(c))
	}
	if cfg.Fetch.RespectRobots {
		opts = append(opts, fetch.WithRobots())
	}

	return fetch.NewClient(fetch.NewFetcher(cfg.HTTP, opts...), cfg.Fetch.Workers, logger)
}

// RunResult describes one pipeline run
type RunResult struct {
	RunID          string
	StartedAt      time.Time
	Duration       time.Duration
	Fetch          *fetch.Summary
	Index          *index.Report
	Petitions      int
	Constituencies int
	CachePruned    int
	Topics         *topics.RunSummary
}

// Refresh fetches every petition, rebuilds the store and, when enabled, classifies new petitions.
// The raw file and the store are written only after the store builds successfully.
func (p *Pipeline) Refresh(ctx context.Context) (*RunResult, error) {
	res, log := p.begin("refresh")
	res.CachePruned = p.pruneCache(log)

	petitions, summary, err := p.source.FetchAll(ctx, p.config.Fetch.StartURL)
	res.Fetch = summary
	if err != nil {
		return res, fmt.Errorf("fetch petitions: %w", err)
	}
	p.step("Fetched %d petitions", len(petitions))
	if summary != nil && summary.Failed > 0 {
		p.fail("Skipped %d petition details", summary.Failed)
	}

	s, err := p.build(res, log, petitions)
	if err != nil {
		return res, err
	}

	raw, err := json.MarshalIndent(petitions, "", "  ")
	if err != nil {
		return res, fmt.Errorf("marshal raw petitions: %w", err)
	}
	if err := util.WriteFileAtomic(p.config.Data.RawPath(), raw, 0644); err != nil {
		return res, fmt.Errorf("save raw petitions: %w", err)
	}
	p.step("Wrote raw petitions: %s", p.config.Data.RawPath())

	if err := p.save(s); err != nil {
		return res, err
	}

	if p.config.Topics.Enabled {
		topicSummary, err := p.classify(ctx, log, s)
		res.Topics = topicSummary
		if err != nil {
			return res, err
		}
	}

	p.finish(res, log)
	return res, nil
}

// pruneCache drops expired cache entries so stale responses are never resumed.
// Failures only cost disk space and are logged.
func (p *Pipeline) pruneCache(log *zap.Logger) int {
	if p.cache == nil {
		return 0
	}
	n, err := p.cache.Prune()
	if err != nil {
		log.Warn("prune cache", zap.Error(err))
	}
	if n > 0 {
		log.Debug("cache pruned", zap.Int("removed", n))
	}
	return n
}

// Process rebuilds the store from the raw petitions file already on disk
func (p *Pipeline) Process(ctx context.Context) (*RunResult, error) {
	res, log := p.begin("process")

	f, err := os.Open(p.config.Data.RawPath())
	if err != nil {
		return res, fmt.Errorf("open raw petitions: %w", err)
	}
	defer func() { _ = f.Close() }()

	petitions, err := model.DecodePetitions(f)
	if err != nil {
		return res, fmt.Errorf("read %s: %w", p.config.Data.RawPath(), err)
	}
	if err := ctx.Err(); err != nil {
		return res, err
	}

	s, err := p.build(res, log, petitions)
	if err != nil {
		return res, err
	}
	if err := p.save(s); err != nil {
		return res, err
	}

	p.finish(res, log)
	return res, nil
}

// Classify labels petitions in the saved store that the ledger has not seen and exports the topic map
func (p *Pipeline) Classify(ctx context.Context) (*RunResult, error) {
	res, log := p.begin("classify")

	s, err := store.Load(p.config.Data.StorePath())
	if err != nil {
		return res, err
	}
	res.Petitions = s.Len()
	res.Constituencies = len(s.Constituencies())

	summary, err := p.classify(ctx, log, s)
	res.Topics = summary
	if err != nil {
		return res, err
	}

	p.finish(res, log)
	return res, nil
}

func (p *Pipeline) begin(job string) (*RunResult, *zap.Logger) {
	res := &RunResult{
		RunID:     uuid.NewString(),
		StartedAt: time.Now().UTC(),
	}
	log := p.logger.With(zap.String("run_id", res.RunID), zap.String("job", job))
	log.Info("run started")
	return res, log
}

func (p *Pipeline) finish(res *RunResult, log *zap.Logger) {
	res.Duration = time.Since(res.StartedAt)
	log.Info("run finished",
		zap.Int("petitions", res.Petitions),
		zap.Int("constituencies", res.Constituencies),
		zap.Duration("duration", res.Duration))
}

func (p *Pipeline) build(res *RunResult, log *zap.Logger, petitions []model.Petition) (*store.Store, error) {
	var opts []index.Option
	if p.registry != nil {
		opts = append(opts, index.WithRegistry(p.registry))
	}

	s, report, err := store.Build(petitions, opts...)
	if err != nil {
		log.Error("store build failed", zap.Error(err))
		return nil, fmt.Errorf("build store: %w", err)
	}

	res.Index = report
	res.Petitions = s.Len()
	res.Constituencies = len(s.Constituencies())

	for _, issue := range report.Issues {
		log.Debug("index issue",
			zap.String("kind", string(issue.Kind)),
			zap.String("petition_id", issue.PetitionID.String()),
			zap.String("constituency", issue.Constituency),
			zap.String("detail", issue.Detail))
	}
	log.Info("store built",
		zap.Int("petitions", report.Petitions),
		zap.Int("indexed", report.Indexed),
		zap.Int("skipped", report.Skipped),
		zap.Int("entries", report.Entries),
		zap.Int("issues", len(report.Issues)))

	p.step("Indexed %d petitions across %d constituencies", report.Indexed, res.Constituencies)
	if len(report.Issues) > 0 {
		p.fail("%d data issues (see debug log)", len(report.Issues))
	}
	return s, nil
}

func (p *Pipeline) save(s *store.Store) error {
	if err := store.Save(p.config.Data.StorePath(), s); err != nil {
		return err
	}
	p.step("Wrote store: %s", p.config.Data.StorePath())
	return nil
}

func (p *Pipeline) classify(ctx context.Context, log *zap.Logger, s *store.Store) (*topics.RunSummary, error) {
	provider, err := p.classificationProvider()
	if err != nil {
		return nil, err
	}

	l, err := ledger.Open(p.config.Data.LedgerPath())
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	defer func() { _ = l.Close() }()

	saved, err := topics.LoadTopicMap(p.config.Data.SavedTopicsPath())
	if err != nil {
		return nil, err
	}
	if len(saved) > 0 {
		added, err := l.Import(ctx, saved, "saved")
		if err != nil {
			return nil, fmt.Errorf("seed ledger: %w", err)
		}
		if added > 0 {
			log.Info("ledger seeded", zap.Int("added", added), zap.String("path", p.config.Data.SavedTopicsPath()))
		}
	}

	classifier, err := topics.NewClassifier(provider, l, topics.ClassifierConfig{
		RequestsPerMinute: p.config.Topics.RequestsPerMinute,
		Limit:             p.config.Topics.Limit,
		Model:             p.config.LLM.Model,
	}, log)
	if err != nil {
		return nil, err
	}

	p.step("Classifying topics with %s", provider.Name())
	summary, runErr := classifier.Run(ctx, s)

	// Export whatever completed, even when the run was interrupted
	tm, err := l.TopicMap(ctx)
	if err != nil && runErr == nil {
		return summary, fmt.Errorf("export topics: %w", err)
	}
	if err == nil {
		if err := topics.SaveTopicMap(p.config.Data.TopicsPath(), tm); err != nil {
			return summary, err
		}
		p.step("Wrote topics: %s (%d labelled)", p.config.Data.TopicsPath(), len(tm))
	}

	if n, err := l.Count(ctx); err == nil && summary != nil {
		summary.Recorded = n
	}

	if runErr != nil {
		return summary, fmt.Errorf("classify topics: %w", runErr)
	}
	if summary.Failed > 0 {
		p.fail("%d classifications failed, they will be retried on the next run", summary.Failed)
	}
	return summary, nil
}

func (p *Pipeline) classificationProvider() (llm.Provider, error) {
	if p.provider != nil {
		return p.provider, nil
	}
	provider, err := llm.NewProvider(llm.ConfigFromModel(p.config.LLM, p.config.HTTP))
	if err != nil {
		return nil, fmt.Errorf("create LLM provider: %w", err)
	}
	if provider == nil {
		return nil, fmt.Errorf("topic classification requires an LLM provider")
	}
	p.provider = provider
	return provider, nil
}

func (p *Pipeline) step(format string, args ...any) {
	fmt.Fprintf(p.progress, "✓ "+format+"\n", args...)
}

func (p *Pipeline) fail(format string, args ...any) {
	fmt.Fprintf(p.progress, "✗ "+format+"\n", args...)
}
