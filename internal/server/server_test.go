package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/canectors/topapps/internal/cache"
	"github.com/canectors/topapps/internal/factory"
	"github.com/canectors/topapps/internal/metrics"
	"github.com/canectors/topapps/internal/persistence"
	"github.com/canectors/topapps/internal/runtime"
	"github.com/canectors/topapps/pkg/connector"
)

const (
	appsCSV = "App,Category,Rating,Reviews\n" +
		"Alpha,GAME,4.5,2000\n" +
		"Beta,GAME,3.0,5000\n" +
		"Gamma,GAME,4.5,3000\n" +
		"Delta,FAMILY,4.9,100\n"
	reviewsCSV = "App,Sentiment,Sentiment_Polarity,Sentiment_Subjectivity\n" +
		"Alpha,Positive,0.5,0.6\n"
)

func writeFixture(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func testPipeline(t *testing.T) *connector.Pipeline {
	t.Helper()
	dir := t.TempDir()
	return &connector.Pipeline{
		ID:      "top-apps",
		Name:    "Top apps",
		Enabled: true,
		Sources: connector.Sources{
			Apps:    connector.SourceConfig{Path: writeFixture(t, dir, "apps.csv", appsCSV)},
			Reviews: connector.SourceConfig{Path: writeFixture(t, dir, "reviews.csv", reviewsCSV)},
		},
		Criteria: connector.Criteria{Category: "GAME", MinRating: 4.0, MinReviews: 1000},
		Destination: connector.Destination{
			Type:     "sqlite",
			Database: "market_research",
			Table:    "top_apps",
			DataDir:  filepath.Join(dir, "data"),
		},
	}
}

type testServer struct {
	*Server
	metrics *metrics.Metrics
	cache   *cache.Results
}

func newTestServer(t *testing.T, p *connector.Pipeline) *testServer {
	t.Helper()
	m := metrics.New(prometheus.NewRegistry())
	c := cache.New(nil)
	state := persistence.NewStateStore(t.TempDir())
	runner := runtime.NewRunner(factory.NewExecutor,
		runtime.WithObserver(m),
		runtime.WithStateRecorder(state),
	)
	return &testServer{
		Server:  New(p, runner, WithCache(c), WithMetrics(m), WithStateStore(state)),
		metrics: m,
		cache:   c,
	}
}

func (s *testServer) do(t *testing.T, method, target string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthzAndCategories(t *testing.T) {
	s := newTestServer(t, testPipeline(t))

	rec := s.do(t, http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz status = %d", rec.Code)
	}

	rec = s.do(t, http.MethodGet, "/categories", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("categories status = %d", rec.Code)
	}
	var body struct {
		Categories []string `json:"categories"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if len(body.Categories) != len(connector.Categories()) {
		t.Errorf("got %d categories, want %d", len(body.Categories), len(connector.Categories()))
	}
}

func TestTopApps_PreviewIsCached(t *testing.T) {
	s := newTestServer(t, testPipeline(t))

	var first previewResponse
	rec := s.do(t, http.MethodGet, "/top-apps?category=GAME&minRating=4&minReviews=1000", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &first); err != nil {
		t.Fatal(err)
	}
	if first.Cached {
		t.Error("first preview should not be cached")
	}
	var ids []string
	for _, r := range first.Records {
		ids = append(ids, r.ID)
	}
	if got := strings.Join(ids, ","); got != "Gamma,Alpha" {
		t.Errorf("records = %s, want Gamma,Alpha", got)
	}

	var second previewResponse
	rec = s.do(t, http.MethodGet, "/top-apps?category=GAME&minRating=4&minReviews=1000", nil)
	if err := json.Unmarshal(rec.Body.Bytes(), &second); err != nil {
		t.Fatal(err)
	}
	if !second.Cached {
		t.Error("second identical preview should be served from the cache")
	}
	if stats := s.cache.Stats(); stats.Hits != 1 || stats.Misses != 1 {
		t.Errorf("cache stats = %+v", stats)
	}
}

func TestTopApps_Errors(t *testing.T) {
	missing := testPipeline(t)
	missing.Sources.Apps.Path = filepath.Join(t.TempDir(), "missing.csv")

	tests := []struct {
		name     string
		pipeline *connector.Pipeline
		query    string
		want     int
	}{
		{"unparsable rating", testPipeline(t), "?minRating=high", http.StatusBadRequest},
		{"rating out of range", testPipeline(t), "?minRating=5.5", http.StatusBadRequest},
		{"unknown category", testPipeline(t), "?category=Games", http.StatusBadRequest},
		{"negative reviews", testPipeline(t), "?minReviews=-1", http.StatusBadRequest},
		{"missing apps file", missing, "", http.StatusUnprocessableEntity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, tt.pipeline)
			rec := s.do(t, http.MethodGet, "/top-apps"+tt.query, nil)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tt.want, rec.Body)
			}
		})
	}
}

func TestCreateRun(t *testing.T) {
	p := testPipeline(t)
	s := newTestServer(t, p)

	rec := s.do(t, http.MethodGet, "/runs/last", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("last run before any run: status = %d, want 404", rec.Code)
	}

	rec = s.do(t, http.MethodPost, "/runs", []byte(`{"minRating": 4.5}`))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	var result connector.ExecutionResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatal(err)
	}
	if !result.Loaded || result.RecordsProcessed != 2 {
		t.Errorf("loaded = %v, records = %d", result.Loaded, result.RecordsProcessed)
	}
	if result.Criteria.MinRating != 4.5 || result.Criteria.Category != "GAME" {
		t.Errorf("criteria = %+v, want override merged into base", result.Criteria)
	}
	if _, err := os.Stat(filepath.Join(p.Destination.DataDir, "market_research.db")); err != nil {
		t.Errorf("database file missing: %v", err)
	}

	rec = s.do(t, http.MethodGet, "/runs/last", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("last run status = %d, want 200", rec.Code)
	}
}

func TestCreateRun_Errors(t *testing.T) {
	noDSN := testPipeline(t)
	noDSN.Destination = connector.Destination{Type: "postgres", Database: "market_research", Table: "top_apps"}

	tests := []struct {
		name     string
		pipeline *connector.Pipeline
		body     string
		want     int
	}{
		{"malformed body", testPipeline(t), `{"minRating":`, http.StatusBadRequest},
		{"unknown field", testPipeline(t), `{"rating": 4}`, http.StatusBadRequest},
		{"invalid category", testPipeline(t), `{"category": "NOPE"}`, http.StatusBadRequest},
		{"persistence failure", noDSN, ``, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, tt.pipeline)
			rec := s.do(t, http.MethodPost, "/runs", []byte(tt.body))
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tt.want, rec.Body)
			}
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, testPipeline(t))
	s.do(t, http.MethodGet, "/top-apps", nil)
	s.do(t, http.MethodPost, "/runs", nil)

	rec := s.do(t, http.MethodGet, "/metrics", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{
		`topapps_http_requests_total{method="GET",path="/top-apps",status="200"} 1`,
		`topapps_pipeline_runs_total{code="",pipeline="top-apps",status="success"} 2`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics missing %q", want)
		}
	}
}

func TestStatusFor(t *testing.T) {
	if got := statusFor(os.ErrNotExist); got != http.StatusInternalServerError {
		t.Errorf("statusFor(unclassified) = %d, want 500", got)
	}
}
