// Command analytics consumes search and build events from Kafka, aggregates
// them in memory and serves the totals over HTTP. With Postgres enabled the
// aggregate is restored on start and snapshotted periodically.
//
// Usage:
//
//	go run ./cmd/analytics [-config configs/development.yaml] [-port 5001]
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/Adithya-Monish-Kumar-K/repo-search/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/repo-search/internal/analytics/store"
	"github.com/Adithya-Monish-Kumar-K/repo-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/repo-search/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/repo-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/repo-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/repo-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/repo-search/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/repo-search/pkg/postgres"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	port := flag.Int("port", 0, "override server.port")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *port > 0 {
		cfg.Server.Port = *port
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting analytics service", "port", cfg.Server.Port)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port, metrics.ServerInfo{Service: "analytics"})
		defer shutdownMetrics(context.Background())
	}

	aggregator := analytics.NewAggregator()
	checker := health.NewChecker(2 * time.Second)

	var snapshots *store.Store
	if cfg.Postgres.Enabled {
		db, err := postgres.New(ctx, cfg.Postgres)
		if err != nil {
			slog.Error("failed to connect to postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		snapshots = store.New(db, 0)
		if err := snapshots.EnsureSchema(ctx); err != nil {
			slog.Error("failed to migrate analytics schema", "error", err)
			os.Exit(1)
		}
		if latest, err := snapshots.LatestSnapshot(ctx); err != nil {
			slog.Warn("could not restore analytics snapshot", "error", err)
		} else if latest != nil {
			aggregator.Restore(*latest)
			slog.Info("analytics restored", "total_searches", latest.TotalSearches)
		}
		checker.Register("postgres", false, db.Ping)
		go store.RunPeriodic(ctx, snapshots, aggregator, cfg.Postgres.SnapshotEvery)
	}

	if cfg.Kafka.Enabled {
		consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents, aggregator.HandleMessage)
		go func() {
			if err := consumer.Run(ctx); err != nil {
				slog.Error("analytics consumer stopped", "error", err)
			}
		}()
		slog.Info("consuming analytics events",
			"topic", cfg.Kafka.Topics.AnalyticsEvents,
			"group", cfg.Kafka.ConsumerGroup,
		)
	} else {
		slog.Warn("kafka disabled, analytics service will only serve restored totals")
	}

	analyticsHandler := analytics.NewHandler(aggregator)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /analytics/stats", analyticsHandler.Stats)
	if snapshots != nil {
		mux.HandleFunc("GET /analytics/history", history(snapshots))
	}
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	chain = middleware.CORS(middleware.DefaultCORSConfig())(chain)
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("analytics service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("analytics service stopped")
}

// history serves the most recent snapshots, newest first. ?limit caps the
// count at 500.
func history(s *store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 60
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 {
				http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
				return
			}
			limit = min(n, 500)
		}
		snaps, err := s.ListSnapshots(r.Context(), limit)
		if err != nil {
			logger.FromContext(r.Context()).Error("listing analytics snapshots failed", "error", err)
			http.Error(w, "could not list snapshots", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"snapshots": snaps})
	}
}
