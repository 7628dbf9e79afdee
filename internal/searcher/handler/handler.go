// Package handler exposes the query service over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/repo-search/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/repo-search/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/repo-search/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/repo-search/internal/searcher/service"
	apperrors "github.com/Adithya-Monish-Kumar-K/repo-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/repo-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/repo-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/repo-search/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/repo-search/pkg/tracing"
)

const maxBodyBytes = 1 << 20

// Searcher runs a query and returns one page of results.
type Searcher interface {
	Search(ctx context.Context, query string, page, perPage int) (*service.Outcome, error)
}

// Options configures paging defaults and the optional collaborators. Cache,
// Tracker, Metrics, BuildID and Reload may be left nil.
type Options struct {
	DefaultPerPage int
	MaxPerPage     int
	Cache          *cache.PageCache
	Tracker        analytics.Tracker
	Metrics        *metrics.Metrics
	BuildID        func() string
	Reload         func(ctx context.Context) error
}

type Handler struct {
	searcher Searcher
	opts     Options
	logger   *slog.Logger
}

func New(s Searcher, opts Options) *Handler {
	if opts.DefaultPerPage < 1 {
		opts.DefaultPerPage = 10
	}
	if opts.MaxPerPage < opts.DefaultPerPage {
		opts.MaxPerPage = opts.DefaultPerPage
	}
	return &Handler{
		searcher: s,
		opts:     opts,
		logger:   slog.Default().With("component", "search-handler"),
	}
}

// Register mounts the search routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /search", h.Search)
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /cache/stats", h.CacheStats)
	mux.HandleFunc("POST /cache/invalidate", h.CacheInvalidate)
	if h.opts.Reload != nil {
		mux.HandleFunc("POST /index/reload", h.Reload)
	}
}

// SearchRequest is the POST /search body. Pointers distinguish an absent
// field from its zero value.
type SearchRequest struct {
	Query   *string `json:"query"`
	Page    *int    `json:"page"`
	PerPage *int    `json:"per_page"`
}

type SearchResponse struct {
	Status       int               `json:"status"`
	Results      []executor.Result `json:"results"`
	SearchTimeMs float64           `json:"search_time_ms"`
	TotalCount   int               `json:"total_count"`
	CurrentPage  int               `json:"current_page"`
	PerPage      int               `json:"per_page"`
	TotalPages   int               `json:"total_pages"`
	Query        string            `json:"query"`
	TimedOut     bool              `json:"timed_out"`
}

type errorResponse struct {
	Error  string `json:"error"`
	Status int    `json:"status"`
}

func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	requestID := middleware.GetRequestID(r.Context())
	ctx, span := tracing.StartSpan(r.Context(), "search", requestID)
	log := logger.FromContext(ctx)
	defer func() {
		span.End()
		span.Log(ctx, log, slog.LevelDebug)
	}()

	query, page, perPage, err := h.parse(r)
	if err != nil {
		h.fail(w, err)
		return
	}
	span.SetAttr("query", query)

	out, err := h.searcher.Search(ctx, query, page, perPage)
	if err != nil {
		if apperrors.HTTPStatusCode(err) >= http.StatusInternalServerError {
			log.Error("search failed", "query", query, "error", err)
		}
		h.fail(w, err)
		return
	}

	elapsed := out.Elapsed
	if out.CacheHit {
		elapsed = time.Since(start)
	}
	resp := SearchResponse{
		Status:       http.StatusOK,
		Results:      out.Results,
		SearchTimeMs: milliseconds(elapsed),
		TotalCount:   out.TotalCount,
		CurrentPage:  page,
		PerPage:      perPage,
		TotalPages:   executor.TotalPages(out.TotalCount, perPage),
		Query:        query,
		TimedOut:     out.TimedOut,
	}
	if resp.Results == nil {
		resp.Results = []executor.Result{}
	}

	h.observe(out, time.Since(start))
	if h.opts.Tracker != nil {
		h.opts.Tracker.Track(analytics.NewSearchEvent(analytics.SearchEvent{
			Query:      query,
			Tokens:     out.Tokens,
			Page:       page,
			PerPage:    perPage,
			TotalCount: out.TotalCount,
			Returned:   len(resp.Results),
			LatencyMs:  resp.SearchTimeMs,
			CacheHit:   out.CacheHit,
			TimedOut:   out.TimedOut,
			BuildID:    out.BuildID,
		}, requestID))
	}

	log.Info("search completed",
		"query", query,
		"total_count", out.TotalCount,
		"returned", len(resp.Results),
		"cache_hit", out.CacheHit,
		"timed_out", out.TimedOut,
		"search_time_ms", resp.SearchTimeMs,
	)
	writeJSON(w, http.StatusOK, resp, log)
}

func (h *Handler) parse(r *http.Request) (string, int, int, error) {
	var req SearchRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		if errors.Is(err, io.EOF) {
			return "", 0, 0, apperrors.Invalid("request body is required")
		}
		return "", 0, 0, apperrors.Invalid("invalid JSON body")
	}
	if req.Query == nil || strings.TrimSpace(*req.Query) == "" {
		return "", 0, 0, apperrors.Invalid("query is required")
	}

	page := 1
	if req.Page != nil {
		page = *req.Page
	}
	perPage := h.opts.DefaultPerPage
	if req.PerPage != nil {
		perPage = *req.PerPage
	}
	if page < 1 {
		return "", 0, 0, apperrors.Invalid("page must be >= 1")
	}
	if perPage < 1 {
		return "", 0, 0, apperrors.Invalid("per_page must be >= 1")
	}
	perPage = min(perPage, h.opts.MaxPerPage)
	return *req.Query, page, perPage, nil
}

func (h *Handler) observe(out *service.Outcome, latency time.Duration) {
	m := h.opts.Metrics
	if m == nil {
		return
	}
	resultType := "hit"
	switch {
	case out.TimedOut:
		resultType = "timeout"
	case out.TotalCount == 0:
		resultType = "zero_result"
	}
	cacheStatus := "miss"
	if out.CacheHit {
		cacheStatus = "hit"
	}
	m.SearchQueriesTotal.WithLabelValues(resultType).Inc()
	m.SearchLatency.WithLabelValues(cacheStatus).Observe(latency.Seconds())
	m.SearchResultsCount.Observe(float64(out.TotalCount))
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	if h.opts.Metrics != nil {
		h.opts.Metrics.SearchQueriesTotal.WithLabelValues("error").Inc()
	}
	status := apperrors.HTTPStatusCode(err)
	writeJSON(w, status, errorResponse{Error: apperrors.Message(err), Status: status}, h.logger)
}

// Health reports liveness together with the build the service is serving.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	body := map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if h.opts.BuildID != nil {
		body["build_id"] = h.opts.BuildID()
	}
	writeJSON(w, http.StatusOK, body, h.logger)
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.opts.Cache == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"}, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, h.opts.Cache.Stats(), h.logger)
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.opts.Cache == nil {
		writeJSON(w, http.StatusServiceUnavailable,
			errorResponse{Error: "caching is disabled", Status: http.StatusServiceUnavailable}, h.logger)
		return
	}
	deleted, err := h.opts.Cache.Invalidate(r.Context())
	if err != nil {
		logger.FromContext(r.Context()).Error("cache invalidation failed", "error", err)
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{Error: "cache invalidation failed", Status: http.StatusInternalServerError}, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "invalidated", "keys_deleted": deleted}, h.logger)
}

// Reload swaps in the most recent build. Failures are logged in full; the
// client only sees the status and a fixed message.
func (h *Handler) Reload(w http.ResponseWriter, r *http.Request) {
	if h.opts.Reload == nil {
		writeJSON(w, http.StatusServiceUnavailable,
			errorResponse{Error: "reload is disabled", Status: http.StatusServiceUnavailable}, h.logger)
		return
	}
	if err := h.opts.Reload(r.Context()); err != nil {
		logger.FromContext(r.Context()).Error("index reload failed", "error", err)
		status := apperrors.HTTPStatusCode(err)
		writeJSON(w, status, errorResponse{Error: "index reload failed", Status: status}, h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func milliseconds(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}

func writeJSON(w http.ResponseWriter, status int, data any, log *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error("failed to write response", "error", err)
	}
}
