package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Adithya-Monish-Kumar-K/repo-search/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/repo-search/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/repo-search/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/repo-search/internal/searcher/service"
	"github.com/Adithya-Monish-Kumar-K/repo-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/repo-search/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/repo-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/repo-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/repo-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/repo-search/pkg/middleware"
	pkgredis "github.com/Adithya-Monish-Kumar-K/repo-search/pkg/redis"
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
	slog.Info("starting search service", "port", cfg.Server.Port, "data_dir", cfg.Index.DataDir)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
	}

	var (
		redisClient *pkgredis.Client
		pageCache   *cache.PageCache
	)
	if cfg.Redis.Enabled {
		redisClient, err = pkgredis.NewClient(ctx, cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, result caching disabled", "error", err)
		} else {
			defer redisClient.Close()
			pageCache = cache.New(redisClient, cfg.Redis.CacheTTL, m)
			slog.Info("result cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
		}
	}

	svc, err := service.New(ctx, cfg, pageCache, m)
	if err != nil {
		slog.Error("failed to load index", "error", err)
		os.Exit(1)
	}
	defer svc.Close()

	if m != nil {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port, metrics.ServerInfo{
			Service: "searcher",
			BuildID: func() string { return svc.Snapshot().BuildID() },
		})
		defer shutdownMetrics(context.Background())
	}

	if cfg.Index.Watch {
		go func() {
			if err := svc.Watch(ctx); err != nil {
				slog.Error("index watcher stopped", "error", err)
			}
		}()
	}

	aggregator := analytics.NewAggregator()
	trackers := []analytics.Tracker{aggregator}
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents)
		defer producer.Close()
		collector := analytics.NewCollector(producer, 10000, 100, time.Second)
		collector.Start(ctx)
		defer collector.Close()
		trackers = append(trackers, collector)
		slog.Info("analytics publishing enabled", "topic", cfg.Kafka.Topics.AnalyticsEvents)
	}

	checker := health.NewChecker(2 * time.Second)
	checker.Register("index", true, func(ctx context.Context) error {
		snap := svc.Snapshot()
		if snap == nil || snap.Lexicon == nil {
			return errors.New("no index snapshot loaded")
		}
		return nil
	})
	if redisClient != nil {
		checker.Register("redis", false, redisClient.Ping)
	}

	h := handler.New(svc, handler.Options{
		DefaultPerPage: cfg.Search.DefaultPerPage,
		MaxPerPage:     cfg.Search.MaxPerPage,
		Cache:          pageCache,
		Tracker:        analytics.Tee(trackers...),
		Metrics:        m,
		BuildID:        func() string { return svc.Snapshot().BuildID() },
		Reload:         svc.Reload,
	})
	analyticsH := analytics.NewHandler(aggregator)

	mux := http.NewServeMux()
	h.Register(mux)
	mux.HandleFunc("GET /analytics/stats", analyticsH.Stats)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = middleware.Recover(mux)
	chain = middleware.Timeout(cfg.Server.WriteTimeout)(chain)
	if cfg.RateLimit.Enabled {
		limiter := middleware.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
		limiter.StartCleanup(ctx, time.Minute, 5*time.Minute)
		chain = middleware.RateLimit(limiter, m)(chain)
	}
	chain = middleware.CORS(middleware.DefaultCORSConfig())(chain)
	if m != nil {
		chain = middleware.Metrics(m)(chain)
	}
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

	slog.Info("search service listening", "addr", server.Addr, "scorer", svc.Scorer())
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("search service stopped")
}
