package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ppiankov/petitionlens/internal/model"
	"github.com/ppiankov/petitionlens/internal/pipeline"
	"github.com/ppiankov/petitionlens/internal/report"
	"github.com/ppiankov/petitionlens/internal/store"
	"github.com/ppiankov/petitionlens/internal/topics"
	"go.uber.org/zap"
)

// Refresher rebuilds the on-disk datasets
type Refresher interface {
	Refresh(ctx context.Context) (*pipeline.RunResult, error)
}

// dataset is an immutable snapshot of the loaded files
type dataset struct {
	store    *store.Store
	storeErr error
	topics   model.TopicMap
	joiner   *topics.Joiner
	loadedAt time.Time
}

// Server exposes the aggregate store over HTTP
type Server struct {
	config    *model.Config
	logger    *zap.Logger
	metrics   *Metrics
	refresher Refresher

	mu   sync.RWMutex
	data *dataset

	refreshing atomic.Bool
}

// Option configures a Server
type Option func(*Server)

// WithRefresher enables scheduled refreshes
func WithRefresher(r Refresher) Option {
	return func(s *Server) { s.refresher = r }
}

// New creates a server; call Reload before serving
func New(cfg *model.Config, logger *zap.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		config:  cfg,
		logger:  logger,
		metrics: NewMetrics(),
		data:    &dataset{storeErr: errNoData},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var errNoData = errors.New("no data")

// Reload reads the store and topic files. A missing or malformed store is kept as the serving state
// so endpoints answer 503 instead of failing.
func (s *Server) Reload() error {
	next := &dataset{loadedAt: time.Now().UTC()}

	st, err := store.Load(s.config.Data.StorePath())
	switch {
	case err == nil:
		next.store = st
	case errors.Is(err, fs.ErrNotExist):
		next.storeErr = errNoData
	default:
		next.storeErr = err
	}

	tm, terr := topics.LoadTopicMap(s.config.Data.TopicsPath())
	if terr != nil {
		s.logger.Warn("topic map unreadable, serving without topics", zap.Error(terr))
		tm = model.TopicMap{}
	}
	next.topics = tm
	next.joiner = topics.NewJoiner(tm, next.store)

	s.mu.Lock()
	s.data = next
	s.mu.Unlock()

	if next.storeErr != nil {
		s.metrics.storeReloads.WithLabelValues("error").Inc()
		s.metrics.storePetitions.Set(0)
		s.metrics.storeConstituencies.Set(0)
		s.logger.Warn("store unavailable", zap.String("path", s.config.Data.StorePath()), zap.Error(next.storeErr))
		return next.storeErr
	}

	s.metrics.storeReloads.WithLabelValues("ok").Inc()
	s.metrics.storePetitions.Set(float64(st.Len()))
	s.metrics.storeConstituencies.Set(float64(len(st.Constituencies())))
	s.logger.Info("store loaded",
		zap.Int("petitions", st.Len()),
		zap.Int("constituencies", len(st.Constituencies())),
		zap.Int("topics", len(tm)))
	return nil
}

func (s *Server) snapshot() *dataset {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data
}

// Handler returns the routed, instrumented handler
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	handle := func(pattern, route string, h http.HandlerFunc) {
		mux.Handle(pattern, s.metrics.Instrument(route, h))
	}

	handle("GET /constituenciesData", "constituencies_data", s.handleFile(s.config.Data.StorePath(), ""))
	handle("GET /topicsData", "topics_data", s.handleFile(s.config.Data.TopicsPath(), "{}"))
	handle("GET /api/constituencies", "constituencies", s.handleConstituencies)
	handle("GET /api/constituencies/{name}", "constituency", s.handleConstituency)
	handle("GET /api/petitions/{id}", "petition", s.handlePetition)
	handle("GET /api/topics/distribution", "topic_distribution", s.handleDistribution)
	handle("GET /api/topics/{name}/petitions", "topic_petitions", s.handleTopicPetitions)
	handle("GET /healthz", "healthz", s.handleHealth)

	if s.config.Server.Metrics {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}

	if dir := s.config.Data.ViewsDir; dir != "" {
		mux.Handle("GET /", s.metrics.Instrument("static", http.FileServer(http.Dir(dir))))
	}

	return mux
}

// handleFile streams a data file verbatim; a missing file yields fallback, or 503 without one
func (s *Server) handleFile(path, fallback string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f, err := os.Open(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && fallback != "" {
				w.Header().Set("Content-Type", "application/json")
				_, _ = io.WriteString(w, fallback)
				return
			}
			s.unavailable(w, errNoData)
			return
		}
		defer func() { _ = f.Close() }()

		w.Header().Set("Content-Type", "application/json")
		if _, err := io.Copy(w, f); err != nil {
			s.logger.Warn("stream data file", zap.String("path", path), zap.Error(err))
		}
	}
}

func (s *Server) handleConstituencies(w http.ResponseWriter, r *http.Request) {
	d := s.snapshot()
	if d.storeErr != nil {
		s.unavailable(w, d.storeErr)
		return
	}

	names := d.store.Constituencies()
	sort.Strings(names)
	writeJSON(w, http.StatusOK, map[string]any{"constituencies": names})
}

type constituencyResponse struct {
	Constituency string       `json:"constituency"`
	Topics       []string     `json:"topics"`
	Total        int          `json:"total"`
	Rows         []report.Row `json:"rows"`
}

func (s *Server) handleConstituency(w http.ResponseWriter, r *http.Request) {
	d := s.snapshot()
	if d.storeErr != nil {
		s.unavailable(w, d.storeErr)
		return
	}

	name := r.PathValue("name")
	rows, ok := report.Build(d.store, d.joiner, name)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": fmt.Sprintf("unknown constituency %q", name)})
		return
	}
	total := len(rows)

	q := r.URL.Query()
	filter, err := filterFromQuery(q)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	rows = filter.Apply(rows)

	if sortBy := q.Get("sort"); sortBy != "" {
		col, err := report.ParseColumn(sortBy)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		report.Sort(rows, col, q.Get("order") != "asc")
	}

	if q.Get("format") == "csv" {
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", `attachment; filename="petition_data.csv"`)
		if err := report.WriteCSV(w, rows); err != nil {
			s.logger.Warn("write csv", zap.Error(err))
		}
		return
	}

	writeJSON(w, http.StatusOK, constituencyResponse{
		Constituency: name,
		Topics:       nonNil(d.joiner.ConstituencyTopics(name)),
		Total:        total,
		Rows:         rows,
	})
}

func filterFromQuery(q map[string][]string) (report.Filter, error) {
	get := func(k string) string {
		if v := q[k]; len(v) > 0 {
			return v[0]
		}
		return ""
	}

	var f report.Filter
	var err error

	f.Name = get("name")
	f.Topic = get("topic")
	f.CreatedAfter = get("created_after")

	if v := get("min"); v != "" {
		if f.MinSignatures, err = strconv.Atoi(v); err != nil {
			return f, fmt.Errorf("min must be an integer")
		}
	}
	if f.Band, err = report.ParseBand(get("band")); err != nil {
		return f, err
	}
	if f.WrittenResponse, err = report.ParseChoice(get("response")); err != nil {
		return f, fmt.Errorf("response: %w", err)
	}
	if f.Debated, err = report.ParseChoice(get("debated")); err != nil {
		return f, fmt.Errorf("debated: %w", err)
	}

	return f, f.Validate()
}

func (s *Server) handlePetition(w http.ResponseWriter, r *http.Request) {
	d := s.snapshot()
	if d.storeErr != nil {
		s.unavailable(w, d.storeErr)
		return
	}

	p, ok := d.store.Petition(model.PetitionID(r.PathValue("id")))
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{})
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleDistribution(w http.ResponseWriter, r *http.Request) {
	d := s.snapshot()
	if d.storeErr != nil {
		s.unavailable(w, d.storeErr)
		return
	}

	dist := topics.Compute(d.store, d.topics)
	writeJSON(w, http.StatusOK, map[string]any{
		"petitions":         dist.Petitions,
		"signatures":        dist.Signatures,
		"petitionGroups":    topics.Grouped(dist.Petitions),
		"signatureGroups":   topics.Grouped(dist.Signatures),
		"labelledPetitions": len(d.topics),
	})
}

type topicPetition struct {
	ID             model.PetitionID `json:"id"`
	Action         string           `json:"action"`
	SignatureCount int              `json:"signatureCount"`
	URL            string           `json:"url"`
}

func (s *Server) handleTopicPetitions(w http.ResponseWriter, r *http.Request) {
	d := s.snapshot()
	if d.storeErr != nil {
		s.unavailable(w, d.storeErr)
		return
	}

	sel := topics.Petitions(d.store, d.topics, r.PathValue("name"))
	items := make([]topicPetition, 0, len(sel.Petitions))
	for _, p := range sel.Petitions {
		items = append(items, topicPetition{
			ID:             p.ID,
			Action:         p.Attributes.Action,
			SignatureCount: p.UKTotal(),
			URL:            report.PetitionURL(p.ID),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"name":       sel.Name,
		"kind":       sel.Kind,
		"total":      len(items),
		"signatures": sel.Signatures,
		"petitions":  items,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	d := s.snapshot()
	body := map[string]any{
		"status":   "ok",
		"loadedAt": d.loadedAt,
	}
	if d.storeErr != nil {
		body["status"] = "degraded"
		body["error"] = d.storeErr.Error()
		writeJSON(w, http.StatusServiceUnavailable, body)
		return
	}
	body["petitions"] = d.store.Len()
	body["constituencies"] = len(d.store.Constituencies())
	writeJSON(w, http.StatusOK, body)
}

// unavailable answers 503 with a prompt matching the failure
func (s *Server) unavailable(w http.ResponseWriter, err error) {
	msg := "no constituency data yet, run petitionlens refresh"
	if !errors.Is(err, errNoData) {
		msg = "constituency data is malformed, reload data"
	}
	writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
