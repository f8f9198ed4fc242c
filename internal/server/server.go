// Package server exposes the pipeline over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/canectors/topapps/internal/cache"
	"github.com/canectors/topapps/internal/errhandling"
	"github.com/canectors/topapps/internal/logger"
	"github.com/canectors/topapps/internal/metrics"
	"github.com/canectors/topapps/internal/persistence"
	"github.com/canectors/topapps/internal/runtime"
	"github.com/canectors/topapps/pkg/connector"
)

const shutdownTimeout = 10 * time.Second

// Runner runs a pipeline with or without its load stage.
type Runner interface {
	Execute(ctx context.Context, pipeline *connector.Pipeline) (*connector.ExecutionResult, error)
	Preview(ctx context.Context, pipeline *connector.Pipeline) (*connector.ExecutionResult, error)
}

// Server serves previews and runs of one base pipeline. Query parameters
// and request bodies override the base criteria per request.
type Server struct {
	base    *connector.Pipeline
	runner  Runner
	cache   *cache.Results
	metrics *metrics.Metrics
	state   *persistence.StateStore
	router  chi.Router
}

// Option configures a Server.
type Option func(*Server)

// WithCache serves previews through c.
func WithCache(c *cache.Results) Option {
	return func(s *Server) { s.cache = c }
}

// WithMetrics instruments requests and mounts GET /metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithStateStore mounts GET /runs/last.
func WithStateStore(st *persistence.StateStore) Option {
	return func(s *Server) { s.state = st }
}

// New creates a server for base.
func New(base *connector.Pipeline, runner Runner, opts ...Option) *Server {
	s := &Server{base: base, runner: runner}
	for _, opt := range opts {
		opt(s)
	}
	s.router = s.routes()
	return s
}

// Handler returns the HTTP handler of the API.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	if s.metrics != nil {
		r.Use(s.metrics.InstrumentHandler)
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	r.Get("/healthz", s.healthz)
	r.Get("/categories", s.categories)
	r.Get("/top-apps", s.topApps)
	r.Post("/runs", s.createRun)
	if s.state != nil {
		r.Get("/runs/last", s.lastRun)
	}
	return r
}

// ListenAndServe serves the API on addr until ctx is canceled, then shuts
// down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", slog.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	logger.Info("http server shutting down", slog.String("addr", addr))
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	return nil
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) categories(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"categories": connector.Categories()})
}

// previewResponse is the body of GET /top-apps.
type previewResponse struct {
	PipelineID string             `json:"pipelineId"`
	Criteria   connector.Criteria `json:"criteria"`
	Cached     bool               `json:"cached"`
	Count      int                `json:"count"`
	Records    []connector.TopApp `json:"records"`
	Summary    *connector.Summary `json:"summary"`
	Cache      *cache.Stats       `json:"cache,omitempty"`
}

func (s *Server) topApps(w http.ResponseWriter, r *http.Request) {
	criteria, err := criteriaFromQuery(s.base.Criteria, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	p := s.withCriteria(criteria)

	load := func(ctx context.Context) (*connector.ResultSet, error) {
		result, err := s.runner.Preview(ctx, p)
		if err != nil {
			return nil, err
		}
		return result.Results, nil
	}

	var (
		rs  *connector.ResultSet
		hit bool
	)
	if s.cache != nil {
		rs, hit, err = s.cache.GetOrLoad(r.Context(), p, load)
	} else {
		rs, err = load(r.Context())
	}
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	resp := previewResponse{
		PipelineID: p.ID,
		Criteria:   criteria,
		Cached:     hit,
		Count:      rs.Len(),
		Records:    []connector.TopApp{},
		Summary:    connector.Summarize(rs),
	}
	if rs != nil {
		resp.Records = rs.Records
	}
	if s.cache != nil {
		stats := s.cache.Stats()
		resp.Cache = &stats
	}
	writeJSON(w, http.StatusOK, resp)
}

// criteriaOverride is the optional body of POST /runs. Absent fields keep
// the base pipeline value.
type criteriaOverride struct {
	Category     *string  `json:"category"`
	MinRating    *float64 `json:"minRating"`
	MinReviews   *int64   `json:"minReviews"`
	Where        *string  `json:"where"`
	Limit        *int     `json:"limit"`
	Deduplicate  *bool    `json:"deduplicate"`
	OnInvalidRow *string  `json:"onInvalidRow"`
}

func (o criteriaOverride) apply(c connector.Criteria) connector.Criteria {
	if o.Category != nil {
		c.Category = *o.Category
	}
	if o.MinRating != nil {
		c.MinRating = *o.MinRating
	}
	if o.MinReviews != nil {
		c.MinReviews = *o.MinReviews
	}
	if o.Where != nil {
		c.Where = *o.Where
	}
	if o.Limit != nil {
		c.Limit = *o.Limit
	}
	if o.Deduplicate != nil {
		c.Deduplicate = *o.Deduplicate
	}
	if o.OnInvalidRow != nil {
		c.OnInvalidRow = *o.OnInvalidRow
	}
	return c
}

func (s *Server) createRun(w http.ResponseWriter, r *http.Request) {
	var override criteriaOverride
	if err := decodeJSON(r.Body, &override); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	p := s.withCriteria(override.apply(s.base.Criteria))

	result, err := s.runner.Execute(r.Context(), p)
	if err != nil {
		writeJSON(w, statusFor(err), result)
		return
	}
	if s.cache != nil && result.Results != nil {
		s.cache.Add(p, result.Results)
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) lastRun(w http.ResponseWriter, _ *http.Request) {
	state, err := s.state.Load(s.base.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if state == nil {
		writeError(w, http.StatusNotFound, fmt.Errorf("pipeline %q has not run yet", s.base.ID))
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) withCriteria(c connector.Criteria) *connector.Pipeline {
	p := *s.base
	p.Criteria = c
	return &p
}

// criteriaFromQuery overrides base with the category, minRating,
// minReviews and limit query parameters.
func criteriaFromQuery(base connector.Criteria, r *http.Request) (connector.Criteria, error) {
	q := r.URL.Query()
	c := base
	if v := q.Get("category"); v != "" {
		c.Category = v
	}
	if v := q.Get("minRating"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return c, &errhandling.InvalidRangeError{Field: "minRating", Value: v, Constraint: "a number within [0, 5]", Err: err}
		}
		c.MinRating = f
	}
	if v := q.Get("minReviews"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return c, &errhandling.InvalidRangeError{Field: "minReviews", Value: v, Constraint: "a non-negative integer", Err: err}
		}
		c.MinReviews = n
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return c, &errhandling.InvalidRangeError{Field: "limit", Value: v, Constraint: "a non-negative integer", Err: err}
		}
		c.Limit = n
	}
	return c, nil
}

// statusFor maps a pipeline error to an HTTP status.
func statusFor(err error) int {
	switch {
	case errhandling.IsCriteriaError(err):
		return http.StatusBadRequest
	case errors.Is(err, errhandling.ErrDataSource):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		logger.Debug("http request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.Duration("duration", time.Since(start)),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func decodeJSON(body io.ReadCloser, dst interface{}) error {
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{
		"error":    err.Error(),
		"category": string(errhandling.GetErrorCategory(err)),
	})
}

var _ Runner = (*runtime.Runner)(nil)
