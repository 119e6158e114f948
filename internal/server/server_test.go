package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/ppiankov/petitionlens/internal/model"
	"github.com/ppiankov/petitionlens/internal/pipeline"
	"github.com/ppiankov/petitionlens/internal/store"
	"github.com/ppiankov/petitionlens/internal/topics"
)

const holborn = "Holborn and St Pancras"

func samplePetitions() []model.Petition {
	return []model.Petition{
		{ID: "100", Attributes: model.Attributes{
			Action:         "Protect local libraries",
			State:          model.StateOpen,
			SignatureCount: 1000,
			SignaturesByConstituency: model.ConstituencySignatures{
				{Name: holborn, SignatureCount: 10},
				{Name: "Islington North", SignatureCount: 4},
			},
		}},
		{ID: "200", Attributes: model.Attributes{
			Action:         "Fund rural buses",
			State:          model.StateClosed,
			SignatureCount: 650,
			SignaturesByConstituency: model.ConstituencySignatures{
				{Name: holborn, SignatureCount: 1},
			},
		}},
	}
}

func testConfig(t *testing.T) *model.Config {
	t.Helper()
	cfg := model.DefaultConfig()
	cfg.Data.Dir = t.TempDir()
	return cfg
}

func writeStore(t *testing.T, cfg *model.Config, petitions []model.Petition) {
	t.Helper()
	s, _, err := store.Build(petitions)
	if err != nil {
		t.Fatalf("build store: %v", err)
	}
	if err := store.Save(cfg.Data.StorePath(), s); err != nil {
		t.Fatalf("save store: %v", err)
	}
}

func newTestServer(t *testing.T, cfg *model.Config, opts ...Option) (*Server, *httptest.Server) {
	t.Helper()
	srv := New(cfg, nil, opts...)
	_ = srv.Reload()
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, ts
}

func get(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, body
}

func TestConstituencyEndpoint(t *testing.T) {
	cfg := testConfig(t)
	writeStore(t, cfg, samplePetitions())
	if err := topics.SaveTopicMap(cfg.Data.TopicsPath(), model.TopicMap{"100": "education"}); err != nil {
		t.Fatalf("save topics: %v", err)
	}
	_, ts := newTestServer(t, cfg)

	resp, body := get(t, ts.URL+"/api/constituencies/"+strings.ReplaceAll(holborn, " ", "%20"))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body %s", resp.StatusCode, body)
	}

	var got constituencyResponse
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Constituency != holborn || got.Total != 2 || len(got.Rows) != 2 {
		t.Fatalf("unexpected response: %+v", got)
	}
	if got.Rows[0].PetitionID != "100" || got.Rows[0].Salience.Ratio != 6.5 {
		t.Errorf("first row = %+v, want petition 100 with ratio 6.5", got.Rows[0])
	}
	if got.Rows[0].Topic != "education" || got.Rows[1].Topic != model.TopicNotAvailable {
		t.Errorf("topics = %q, %q", got.Rows[0].Topic, got.Rows[1].Topic)
	}
	if len(got.Topics) != 1 || got.Topics[0] != "education" {
		t.Errorf("constituency topics = %v", got.Topics)
	}
}

func TestConstituencyFilters(t *testing.T) {
	cfg := testConfig(t)
	writeStore(t, cfg, samplePetitions())
	_, ts := newTestServer(t, cfg)
	base := ts.URL + "/api/constituencies/Holborn%20and%20St%20Pancras"

	tests := []struct {
		name    string
		query   string
		status  int
		wantIDs []model.PetitionID
	}{
		{"min signatures", "?min=5", http.StatusOK, []model.PetitionID{"100"}},
		{"band about", "?band=about", http.StatusOK, []model.PetitionID{"200"}},
		{"sort ascending", "?sort=count&order=asc", http.StatusOK, []model.PetitionID{"200", "100"}},
		{"name substring", "?name=buses", http.StatusOK, []model.PetitionID{"200"}},
		{"bad band", "?band=bogus", http.StatusBadRequest, nil},
		{"bad min", "?min=lots", http.StatusBadRequest, nil},
		{"bad sort", "?sort=colour", http.StatusBadRequest, nil},
		{"bad date", "?created_after=yesterday", http.StatusBadRequest, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := get(t, base+tt.query)
			if resp.StatusCode != tt.status {
				t.Fatalf("status = %d, want %d (body %s)", resp.StatusCode, tt.status, body)
			}
			if tt.status != http.StatusOK {
				return
			}
			var got constituencyResponse
			if err := json.Unmarshal(body, &got); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if len(got.Rows) != len(tt.wantIDs) {
				t.Fatalf("rows = %d, want %d", len(got.Rows), len(tt.wantIDs))
			}
			for i, id := range tt.wantIDs {
				if got.Rows[i].PetitionID != id {
					t.Errorf("row %d = %s, want %s", i, got.Rows[i].PetitionID, id)
				}
			}
		})
	}
}

func TestConstituencyCSV(t *testing.T) {
	cfg := testConfig(t)
	writeStore(t, cfg, samplePetitions())
	_, ts := newTestServer(t, cfg)

	resp, body := get(t, ts.URL+"/api/constituencies/Islington%20North?format=csv")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Errorf("content type = %q", ct)
	}
	if !strings.Contains(string(body), "Protect local libraries") {
		t.Errorf("csv missing petition: %s", body)
	}
}

func TestUnknownConstituency(t *testing.T) {
	cfg := testConfig(t)
	writeStore(t, cfg, samplePetitions())
	_, ts := newTestServer(t, cfg)

	resp, _ := get(t, ts.URL+"/api/constituencies/Atlantis")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestConstituencyList(t *testing.T) {
	cfg := testConfig(t)
	writeStore(t, cfg, samplePetitions())
	_, ts := newTestServer(t, cfg)

	_, body := get(t, ts.URL+"/api/constituencies")
	var got struct {
		Constituencies []string `json:"constituencies"`
	}
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := []string{holborn, "Islington North"}
	if len(got.Constituencies) != 2 || got.Constituencies[0] != want[0] || got.Constituencies[1] != want[1] {
		t.Errorf("constituencies = %v, want %v", got.Constituencies, want)
	}
}

func TestPetitionEndpoint(t *testing.T) {
	cfg := testConfig(t)
	writeStore(t, cfg, samplePetitions())
	_, ts := newTestServer(t, cfg)

	resp, body := get(t, ts.URL+"/api/petitions/200")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var p model.Petition
	if err := json.Unmarshal(body, &p); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if p.Attributes.Action != "Fund rural buses" {
		t.Errorf("action = %q", p.Attributes.Action)
	}

	resp, body = get(t, ts.URL+"/api/petitions/999")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
	if strings.TrimSpace(string(body)) != "{}" {
		t.Errorf("body = %q, want {}", body)
	}
}

func TestDataFilesServedVerbatim(t *testing.T) {
	cfg := testConfig(t)
	writeStore(t, cfg, samplePetitions())
	_, ts := newTestServer(t, cfg)

	want, err := os.ReadFile(cfg.Data.StorePath())
	if err != nil {
		t.Fatalf("read store: %v", err)
	}
	_, body := get(t, ts.URL+"/constituenciesData")
	if string(body) != string(want) {
		t.Error("constituenciesData differs from the store file")
	}

	_, body = get(t, ts.URL+"/topicsData")
	if string(body) != "{}" {
		t.Errorf("topicsData without a topic file = %q, want {}", body)
	}
}

func TestMissingAndMalformedStore(t *testing.T) {
	t.Run("missing", func(t *testing.T) {
		cfg := testConfig(t)
		_, ts := newTestServer(t, cfg)

		resp, body := get(t, ts.URL+"/api/constituencies")
		if resp.StatusCode != http.StatusServiceUnavailable {
			t.Fatalf("status = %d, want 503", resp.StatusCode)
		}
		if !strings.Contains(string(body), "run petitionlens refresh") {
			t.Errorf("body = %s", body)
		}

		resp, _ = get(t, ts.URL+"/constituenciesData")
		if resp.StatusCode != http.StatusServiceUnavailable {
			t.Errorf("constituenciesData status = %d, want 503", resp.StatusCode)
		}
	})

	t.Run("malformed", func(t *testing.T) {
		cfg := testConfig(t)
		if err := os.WriteFile(cfg.Data.StorePath(), []byte(`{"constituencyPetitions": []}`), 0644); err != nil {
			t.Fatal(err)
		}
		srv, ts := newTestServer(t, cfg)

		if err := srv.Reload(); !errors.Is(err, store.ErrMalformedStore) {
			t.Errorf("Reload error = %v, want ErrMalformedStore", err)
		}

		resp, body := get(t, ts.URL+"/api/constituencies/"+"Holborn")
		if resp.StatusCode != http.StatusServiceUnavailable {
			t.Fatalf("status = %d, want 503", resp.StatusCode)
		}
		if !strings.Contains(string(body), "reload data") {
			t.Errorf("body = %s", body)
		}

		resp, body = get(t, ts.URL+"/healthz")
		if resp.StatusCode != http.StatusServiceUnavailable || !strings.Contains(string(body), "degraded") {
			t.Errorf("healthz = %d %s", resp.StatusCode, body)
		}
	})
}

func TestReloadPicksUpNewStore(t *testing.T) {
	cfg := testConfig(t)
	srv, ts := newTestServer(t, cfg)

	resp, _ := get(t, ts.URL+"/healthz")
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("healthz before data = %d", resp.StatusCode)
	}

	writeStore(t, cfg, samplePetitions())
	if err := srv.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	resp, body := get(t, ts.URL+"/healthz")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz after reload = %d %s", resp.StatusCode, body)
	}
	var health map[string]any
	if err := json.Unmarshal(body, &health); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if health["petitions"] != float64(2) {
		t.Errorf("petitions = %v, want 2", health["petitions"])
	}
}

func TestTopicDistribution(t *testing.T) {
	cfg := testConfig(t)
	writeStore(t, cfg, samplePetitions())
	if err := topics.SaveTopicMap(cfg.Data.TopicsPath(), model.TopicMap{"100": "education", "200": "transport"}); err != nil {
		t.Fatal(err)
	}
	_, ts := newTestServer(t, cfg)

	resp, body := get(t, ts.URL+"/api/topics/distribution")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var got struct {
		Petitions []topics.Share `json:"petitions"`
		Labelled  int            `json:"labelledPetitions"`
	}
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Labelled != 2 || len(got.Petitions) != 2 {
		t.Errorf("distribution = %+v", got)
	}
}

func TestTopicPetitionsEndpoint(t *testing.T) {
	cfg := testConfig(t)
	writeStore(t, cfg, samplePetitions())
	tm := model.TopicMap{"100": "education", "200": "transport"}
	if err := topics.SaveTopicMap(cfg.Data.TopicsPath(), tm); err != nil {
		t.Fatal(err)
	}
	_, ts := newTestServer(t, cfg)

	type payload struct {
		Name       string `json:"name"`
		Kind       string `json:"kind"`
		Total      int    `json:"total"`
		Signatures int    `json:"signatures"`
		Petitions  []struct {
			ID             string `json:"id"`
			SignatureCount int    `json:"signatureCount"`
			URL            string `json:"url"`
		} `json:"petitions"`
	}

	tests := []struct {
		path       string
		kind       string
		ids        []string
		signatures int
	}{
		{"transport", "topic", []string{"200"}, 650},
		{"Social%20policy", "group", []string{"100"}, 1000},
		{"Economy,%20business%20and%20transport", "group", []string{"200"}, 650},
		{"crime", "topic", nil, 0},
	}
	for _, tt := range tests {
		resp, body := get(t, ts.URL+"/api/topics/"+tt.path+"/petitions")
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("%s: status = %d", tt.path, resp.StatusCode)
		}
		var got payload
		if err := json.Unmarshal(body, &got); err != nil {
			t.Fatalf("%s: %v", tt.path, err)
		}
		if got.Kind != tt.kind || got.Signatures != tt.signatures || got.Total != len(tt.ids) {
			t.Errorf("%s: unexpected payload %+v", tt.path, got)
			continue
		}
		for i, id := range tt.ids {
			if got.Petitions[i].ID != id {
				t.Errorf("%s: position %d is %s, want %s", tt.path, i, got.Petitions[i].ID, id)
			}
			if got.Petitions[i].URL != "https://petition.parliament.uk/petitions/"+id {
				t.Errorf("%s: url = %q", tt.path, got.Petitions[i].URL)
			}
		}
	}
}

func TestMetricsEndpoint(t *testing.T) {
	cfg := testConfig(t)
	writeStore(t, cfg, samplePetitions())
	_, ts := newTestServer(t, cfg)

	get(t, ts.URL+"/api/constituencies")
	_, body := get(t, ts.URL+"/metrics")

	for _, want := range []string{
		`petitionlens_http_requests_total{code="200",route="constituencies"} 1`,
		"petitionlens_store_petitions 2",
		`petitionlens_store_reloads_total{result="ok"} 1`,
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics missing %q", want)
		}
	}
}

func TestMetricsDisabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.Server.Metrics = false
	_, ts := newTestServer(t, cfg)

	resp, _ := get(t, ts.URL+"/metrics")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

type fakeRefresher struct {
	cfg   *model.Config
	t     *testing.T
	calls int
	err   error
}

func (f *fakeRefresher) Refresh(ctx context.Context) (*pipeline.RunResult, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	writeStore(f.t, f.cfg, samplePetitions())
	return &pipeline.RunResult{RunID: "test", Petitions: 2}, nil
}

func TestRefreshNow(t *testing.T) {
	cfg := testConfig(t)
	ref := &fakeRefresher{cfg: cfg, t: t}
	srv, ts := newTestServer(t, cfg, WithRefresher(ref))

	if !srv.RefreshNow(context.Background()) {
		t.Fatal("RefreshNow returned false")
	}
	if ref.calls != 1 {
		t.Errorf("calls = %d, want 1", ref.calls)
	}
	resp, _ := get(t, ts.URL+"/api/constituencies")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status after refresh = %d", resp.StatusCode)
	}

	ref.err = errors.New("upstream down")
	if srv.RefreshNow(context.Background()) {
		t.Error("RefreshNow succeeded with a failing refresher")
	}
}

func TestRefreshNowWithoutRefresher(t *testing.T) {
	srv := New(testConfig(t), nil)
	if srv.RefreshNow(context.Background()) {
		t.Error("RefreshNow succeeded without a refresher")
	}
}

func TestScheduleInvalidSpec(t *testing.T) {
	cfg := testConfig(t)
	cfg.Server.RefreshCron = "every tuesday"
	srv := New(cfg, nil, WithRefresher(&fakeRefresher{cfg: cfg, t: t}))

	if _, err := srv.Schedule(context.Background()); err == nil {
		t.Error("expected an error for an invalid cron spec")
	}
}

func TestScheduleDisabled(t *testing.T) {
	srv := New(testConfig(t), nil)
	stop, err := srv.Schedule(context.Background())
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	stop()
}

func TestWatchReloadsOnStoreWrite(t *testing.T) {
	cfg := testConfig(t)
	srv := New(cfg, nil)
	_ = srv.Reload()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Watch(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	// give the watcher time to register the directory
	time.Sleep(100 * time.Millisecond)
	writeStore(t, cfg, samplePetitions())

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if srv.snapshot().storeErr == nil {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatal("store was not reloaded after the file changed")
}
