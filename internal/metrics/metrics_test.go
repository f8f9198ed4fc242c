package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/canectors/topapps/pkg/connector"
)

func TestObserveRun(t *testing.T) {
	m := New(prometheus.NewRegistry())
	start := time.Now()

	m.ObserveRun(&connector.ExecutionResult{
		PipelineID:       "top-apps",
		Status:           "success",
		StartedAt:        start,
		CompletedAt:      start.Add(50 * time.Millisecond),
		RecordsProcessed: 7,
		LoadAttempts:     2,
		Results:          &connector.ResultSet{},
		Timings:          connector.StageTimings{Extract: time.Millisecond, Load: time.Millisecond},
	})
	m.ObserveRun(&connector.ExecutionResult{
		PipelineID: "top-apps",
		Status:     "error",
		Error:      &connector.ExecutionError{Code: "LOAD_FAILED"},
	})
	m.ObserveRun(nil)

	if got := testutil.ToFloat64(m.runs.WithLabelValues("top-apps", "success", "")); got != 1 {
		t.Errorf("success runs = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.runs.WithLabelValues("top-apps", "error", "LOAD_FAILED")); got != 1 {
		t.Errorf("failed runs = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.recordsSelected.WithLabelValues("top-apps")); got != 7 {
		t.Errorf("records selected = %v, want 7", got)
	}
	if got := testutil.ToFloat64(m.loadAttempts.WithLabelValues("top-apps")); got != 2 {
		t.Errorf("load attempts = %v, want 2", got)
	}
}

func TestRegisterCache(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.RegisterCache(func() (uint64, uint64, int) { return 3, 1, 2 })

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	body := rec.Body.String()
	for _, want := range []string{"topapps_cache_hits_total 3", "topapps_cache_misses_total 1", "topapps_cache_entries 2"} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestInstrumentHandler(t *testing.T) {
	m := New(prometheus.NewRegistry())

	r := chi.NewRouter()
	r.Use(m.InstrumentHandler)
	r.Get("/items/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	for _, id := range []string{"a", "b"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/items/"+id, nil))
	}

	if got := testutil.ToFloat64(m.httpRequests.WithLabelValues("GET", "/items/{id}", "418")); got != 2 {
		t.Errorf("requests = %v, want 2 under the route pattern", got)
	}
}

func TestNew_DefaultRegistry(t *testing.T) {
	m := New(nil)
	if m.Registry() == nil {
		t.Fatal("Registry() should not be nil")
	}
	families, err := m.Registry().Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	if len(families) == 0 {
		t.Error("default registry should include the Go collector")
	}
}
