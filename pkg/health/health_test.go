package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ok(context.Context) error { return nil }

func TestChecker_Statuses(t *testing.T) {
	c := NewChecker(time.Second)
	c.Register("index", true, ok)
	assert.Equal(t, StatusUp, c.Run(context.Background()).Status)

	c.Register("redis", false, func(context.Context) error { return errors.New("refused") })
	r := c.Run(context.Background())
	assert.Equal(t, StatusDegraded, r.Status)
	assert.Equal(t, "refused", r.Components["redis"].Message)

	c.Register("dataset", true, func(context.Context) error { return errors.New("missing") })
	assert.Equal(t, StatusDown, c.Run(context.Background()).Status)
	assert.Equal(t, []string{"dataset", "index", "redis"}, c.Names())
}

func TestChecker_ProbeTimeout(t *testing.T) {
	c := NewChecker(10 * time.Millisecond)
	c.Register("slow", true, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	r := c.Run(context.Background())
	assert.Equal(t, StatusDown, r.Status)
}

func TestReadyHandler(t *testing.T) {
	c := NewChecker(time.Second)
	c.Register("cache", false, func(context.Context) error { return errors.New("down") })

	rec := httptest.NewRecorder()
	c.ReadyHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	var report Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, StatusDegraded, report.Status)

	c.Register("index", true, func(context.Context) error { return errors.New("gone") })
	rec = httptest.NewRecorder()
	c.ReadyHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestLiveHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	NewChecker(0).LiveHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"alive"}`, rec.Body.String())
}
