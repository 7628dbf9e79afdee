package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime"
	"time"
)

// ServerInfo describes the process on the admin port next to /metrics.
// BuildID reports the index build being served and may be nil.
type ServerInfo struct {
	Service string
	BuildID func() string
}

// BuildInfo is the /buildinfo body.
type BuildInfo struct {
	Service   string    `json:"service"`
	BuildID   string    `json:"build_id,omitempty"`
	GoVersion string    `json:"go_version"`
	StartedAt time.Time `json:"started_at"`
	UptimeSec int64     `json:"uptime_seconds"`
}

// NewServeMux serves Prometheus metrics at /metrics and process and index
// build details at /buildinfo.
func NewServeMux(info ServerInfo, metrics http.Handler) *http.ServeMux {
	started := time.Now().UTC()
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", metrics)
	mux.HandleFunc("GET /buildinfo", func(w http.ResponseWriter, r *http.Request) {
		body := BuildInfo{
			Service:   info.Service,
			GoVersion: runtime.Version(),
			StartedAt: started,
			UptimeSec: int64(time.Since(started).Seconds()),
		}
		if info.BuildID != nil {
			body.BuildID = info.BuildID()
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(body)
	})
	return mux
}

// StartServer runs the admin server on port in the background and returns
// its shutdown function.
func StartServer(port int, info ServerInfo) (shutdown func(context.Context) error) {
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      NewServeMux(info, Handler()),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("metrics server listening", "addr", server.Addr, "service", info.Service)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server error", "error", err)
		}
	}()

	return server.Shutdown
}
