package topics

import (
	"context"
	"fmt"
	"time"

	"github.com/ppiankov/petitionlens/internal/ledger"
	"github.com/ppiankov/petitionlens/internal/llm"
	"github.com/ppiankov/petitionlens/internal/model"
	"github.com/ppiankov/petitionlens/internal/store"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Ledger is the completion record the classifier consults and appends to
type Ledger interface {
	Has(ctx context.Context, id model.PetitionID) (bool, error)
	Record(ctx context.Context, c ledger.Classification) error
}

// ClassifierConfig tunes a classification run
type ClassifierConfig struct {
	RequestsPerMinute int    // 0 = unthrottled
	Limit             int    // 0 = no limit
	Model             string // provider default when empty
}

// Task is one queued petition awaiting a label
type Task struct {
	Petition *model.Petition
}

// Result is the outcome of one task
type Result struct {
	PetitionID model.PetitionID
	Topic      string
	Raw        string
	Model      string
	Err        error
}

// RunSummary counts task outcomes
type RunSummary struct {
	Total      int
	Skipped    int
	Queued     int
	Classified int
	Failed     int
	Recorded   int // classifications held by the ledger after the run
}

// Classifier labels petitions one at a time under a fixed-interval throttle
type Classifier struct {
	provider llm.Provider
	ledger   Ledger
	limiter  *rate.Limiter
	logger   *zap.Logger
	config   ClassifierConfig
	taxonomy []string

	// OnResult is called after every task, if set
	OnResult func(Result)
}

// NewClassifier creates a classifier; the provider must be configured
func NewClassifier(provider llm.Provider, l Ledger, config ClassifierConfig, logger *zap.Logger) (*Classifier, error) {
	if provider == nil {
		return nil, fmt.Errorf("classification requires an LLM provider")
	}
	if l == nil {
		return nil, fmt.Errorf("classification requires a ledger")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	limit := rate.Inf
	if config.RequestsPerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(config.RequestsPerMinute))
	}

	return &Classifier{
		provider: provider,
		ledger:   l,
		limiter:  rate.NewLimiter(limit, 1),
		logger:   logger,
		config:   config,
		taxonomy: Taxonomy(),
	}, nil
}

// Queue lists petitions in store order that the ledger has not seen, honoring the configured limit
func (c *Classifier) Queue(ctx context.Context, s *store.Store) ([]Task, *RunSummary, error) {
	summary := &RunSummary{}
	var tasks []Task

	for _, p := range s.Petitions() {
		summary.Total++
		done, err := c.ledger.Has(ctx, p.ID)
		if err != nil {
			return nil, nil, fmt.Errorf("check ledger: %w", err)
		}
		if done {
			summary.Skipped++
			continue
		}
		if c.config.Limit > 0 && len(tasks) >= c.config.Limit {
			continue
		}
		tasks = append(tasks, Task{Petition: p})
	}

	summary.Queued = len(tasks)
	return tasks, summary, nil
}

// Run classifies every queued petition sequentially.
// A failed request is logged and skipped; a failed ledger write or cancelled context stops the run.
func (c *Classifier) Run(ctx context.Context, s *store.Store) (*RunSummary, error) {
	tasks, summary, err := c.Queue(ctx, s)
	if err != nil {
		return nil, err
	}

	c.logger.Info("classification queued",
		zap.Int("total", summary.Total),
		zap.Int("skipped", summary.Skipped),
		zap.Int("queued", summary.Queued),
		zap.String("provider", c.provider.Name()))

	for _, task := range tasks {
		if err := c.limiter.Wait(ctx); err != nil {
			return summary, fmt.Errorf("wait for rate limit: %w", err)
		}

		res := c.classify(ctx, task)
		if res.Err != nil {
			if ctx.Err() != nil {
				return summary, fmt.Errorf("classification interrupted: %w", ctx.Err())
			}
			summary.Failed++
			c.logger.Warn("classification failed",
				zap.String("petition_id", task.Petition.ID.String()),
				zap.Error(res.Err))
			c.notify(res)
			continue
		}

		err := c.ledger.Record(ctx, ledger.Classification{
			PetitionID: task.Petition.ID,
			Topic:      res.Topic,
			Provider:   c.provider.Name(),
			Model:      res.Model,
		})
		if err != nil {
			return summary, fmt.Errorf("persist classification: %w", err)
		}

		summary.Classified++
		c.logger.Debug("petition classified",
			zap.String("petition_id", task.Petition.ID.String()),
			zap.String("topic", res.Topic),
			zap.String("raw", res.Raw))
		c.notify(res)
	}

	return summary, nil
}

func (c *Classifier) classify(ctx context.Context, task Task) Result {
	res := Result{PetitionID: task.Petition.ID}

	resp, err := c.provider.Classify(ctx, llm.ClassifyRequest{
		Petition: task.Petition,
		Topics:   c.taxonomy,
		Model:    c.config.Model,
	})
	if err != nil {
		res.Err = err
		return res
	}

	res.Raw = resp.Label
	res.Model = resp.Model
	res.Topic = Normalize(resp.Label)
	return res
}

func (c *Classifier) notify(res Result) {
	if c.OnResult != nil {
		c.OnResult(res)
	}
}
