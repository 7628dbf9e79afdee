package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/repo-search/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/repo-search/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/repo-search/internal/searcher/service"
	apperrors "github.com/Adithya-Monish-Kumar-K/repo-search/pkg/errors"
)

type call struct {
	query         string
	page, perPage int
}

type fakeSearcher struct {
	calls []call
	out   *service.Outcome
	err   error
}

func (f *fakeSearcher) Search(_ context.Context, query string, page, perPage int) (*service.Outcome, error) {
	f.calls = append(f.calls, call{query, page, perPage})
	if f.err != nil {
		return nil, f.err
	}
	return f.out, nil
}

type recorder struct {
	mu     sync.Mutex
	events []analytics.Event
}

func (r *recorder) Track(e analytics.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func outcome(total int, results ...executor.Result) *service.Outcome {
	return &service.Outcome{
		Response: &executor.Response{
			Results:    results,
			TotalCount: total,
			Elapsed:    1500 * time.Microsecond,
		},
		Tokens:  []string{"http"},
		BuildID: "b1",
	}
}

func post(t *testing.T, h *Handler, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	mux := http.NewServeMux()
	h.Register(mux)
	req := httptest.NewRequest(http.MethodPost, "/search", strings.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded))
	return rec, decoded
}

func TestSearch_Success(t *testing.T) {
	fs := &fakeSearcher{out: outcome(3,
		executor.Result{DocID: 1, Name: "hyper", Stars: 12000, FinalScore: 0.9},
		executor.Result{DocID: 0, Name: "tokio", Stars: 20000, FinalScore: 0.8},
	)}
	tr := &recorder{}
	h := New(fs, Options{DefaultPerPage: 2, MaxPerPage: 50, Tracker: tr})

	rec, body := post(t, h, `{"query":"HTTP"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []call{{"HTTP", 1, 2}}, fs.calls)
	assert.EqualValues(t, 200, body["status"])
	assert.EqualValues(t, 3, body["total_count"])
	assert.EqualValues(t, 1, body["current_page"])
	assert.EqualValues(t, 2, body["per_page"])
	assert.EqualValues(t, 2, body["total_pages"])
	assert.Equal(t, "HTTP", body["query"])
	assert.Equal(t, false, body["timed_out"])
	assert.InDelta(t, 1.5, body["search_time_ms"], 1e-9)

	results := body["results"].([]any)
	require.Len(t, results, 2)
	first := results[0].(map[string]any)
	assert.Equal(t, "hyper", first["name"])
	assert.EqualValues(t, 1, first["doc_id"])

	require.Len(t, tr.events, 1)
	ev := tr.events[0]
	assert.Equal(t, analytics.EventSearch, ev.Type)
	assert.Equal(t, 3, ev.Search.TotalCount)
	assert.Equal(t, 2, ev.Search.Returned)
	assert.Equal(t, "b1", ev.Search.BuildID)
}

func TestSearch_ClampsPerPage(t *testing.T) {
	fs := &fakeSearcher{out: outcome(0)}
	h := New(fs, Options{DefaultPerPage: 10, MaxPerPage: 20})

	rec, body := post(t, h, `{"query":"go","page":3,"per_page":500}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []call{{"go", 3, 20}}, fs.calls)
	assert.EqualValues(t, 20, body["per_page"])
	assert.EqualValues(t, 0, body["total_pages"])
	assert.Empty(t, body["results"])
	assert.NotNil(t, body["results"])
}

func TestSearch_BadRequests(t *testing.T) {
	tests := []struct {
		name, body, msg string
	}{
		{"missing query", `{"page":1}`, "query is required"},
		{"blank query", `{"query":"   "}`, "query is required"},
		{"invalid json", `{"query":`, "invalid JSON body"},
		{"wrong type", `{"query":5}`, "invalid JSON body"},
		{"empty body", ``, "request body is required"},
		{"zero page", `{"query":"go","page":0}`, "page must be >= 1"},
		{"negative per_page", `{"query":"go","per_page":-1}`, "per_page must be >= 1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := &fakeSearcher{out: outcome(0)}
			h := New(fs, Options{DefaultPerPage: 10, MaxPerPage: 100})

			rec, body := post(t, h, tt.body)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.msg, body["error"])
			assert.EqualValues(t, 400, body["status"])
			assert.Empty(t, fs.calls)
		})
	}
}

func TestSearch_InternalError(t *testing.T) {
	fs := &fakeSearcher{err: errors.New("lexicon unreadable")}
	h := New(fs, Options{})

	rec, body := post(t, h, `{"query":"go"}`)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "lexicon unreadable", body["error"])
	assert.EqualValues(t, 500, body["status"])
}

func TestSearch_ServiceValidationError(t *testing.T) {
	fs := &fakeSearcher{err: apperrors.Invalid("page must be >= 1")}
	h := New(fs, Options{})

	rec, body := post(t, h, `{"query":"go"}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "page must be >= 1", body["error"])
}

func TestSearch_TimedOut(t *testing.T) {
	out := outcome(0)
	out.TimedOut = true
	fs := &fakeSearcher{out: out}
	tr := &recorder{}
	h := New(fs, Options{Tracker: tr})

	rec, body := post(t, h, `{"query":"go"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["timed_out"])
	assert.EqualValues(t, 0, body["total_count"])
	require.Len(t, tr.events, 1)
	assert.True(t, tr.events[0].Search.TimedOut)
}

func TestSearch_MethodNotAllowed(t *testing.T) {
	h := New(&fakeSearcher{}, Options{})
	mux := http.NewServeMux()
	h.Register(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/search?q=go", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHealth(t *testing.T) {
	h := New(&fakeSearcher{}, Options{BuildID: func() string { return "b7" }})
	mux := http.NewServeMux()
	h.Register(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "b7", body["build_id"])
	_, err := time.Parse(time.RFC3339, body["timestamp"])
	assert.NoError(t, err)
}

func TestCacheRoutes_Disabled(t *testing.T) {
	h := New(&fakeSearcher{}, Options{})
	mux := http.NewServeMux()
	h.Register(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/cache/stats", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "disabled")

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/cache/invalidate", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestReload(t *testing.T) {
	reloads := 0
	h := New(&fakeSearcher{}, Options{Reload: func(context.Context) error {
		reloads++
		return nil
	}})
	mux := http.NewServeMux()
	h.Register(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/index/reload", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, 1, reloads)
}

func TestReload_FailureHidesInternals(t *testing.T) {
	h := New(&fakeSearcher{}, Options{Reload: func(context.Context) error {
		return fmt.Errorf("loading snapshot: %w: manifest /var/lib/index/manifest.json", apperrors.ErrArtifactMissing)
	}})
	mux := http.NewServeMux()
	h.Register(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/index/reload", nil))
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "index reload failed", body["error"])
	assert.EqualValues(t, rec.Code, body["status"])
	assert.NotContains(t, rec.Body.String(), "/var/lib")
}

func TestReload_NotRegisteredWithoutReloader(t *testing.T) {
	mux := http.NewServeMux()
	New(&fakeSearcher{}, Options{}).Register(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/index/reload", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
