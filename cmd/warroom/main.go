package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kratosops/warroom/internal/api"
	"github.com/kratosops/warroom/internal/cache"
	"github.com/kratosops/warroom/internal/config"
	"github.com/kratosops/warroom/internal/detect"
	"github.com/kratosops/warroom/internal/geo"
	"github.com/kratosops/warroom/internal/metrics"
	"github.com/kratosops/warroom/internal/pipeline"
	"github.com/kratosops/warroom/internal/respond"
	"github.com/kratosops/warroom/internal/services"
	"github.com/kratosops/warroom/internal/synth"
	"github.com/kratosops/warroom/internal/timeline"
	"github.com/kratosops/warroom/internal/utils"
)

func main() {
	var configPath string
	var demo bool
	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.BoolVar(&demo, "demo", false, "Open a session over a synthetic batch at startup")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", slog.String("path", configPath), slog.Any("error", err))
		os.Exit(1)
	}

	logger := utils.NewLogger(cfg.Logging.Level, cfg.Logging.JSON)
	logger.Info("starting warroom", slog.String("address", cfg.Server.Address))

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		logger.Error("failed to register metrics", slog.Any("error", err))
		os.Exit(1)
	}

	var cacheProvider cache.Provider = cache.NewMemoryProvider()
	if cfg.Cache.Enabled && cfg.Cache.Addr != "" {
		provider, err := cache.NewValkeyProvider(cache.ValkeyConfig{
			Addr:         cfg.Cache.Addr,
			Username:     cfg.Cache.Username,
			Password:     cfg.Cache.Password,
			DB:           cfg.Cache.DB,
			DialTimeout:  cfg.Cache.DialTimeout,
			ReadTimeout:  cfg.Cache.ReadTimeout,
			WriteTimeout: cfg.Cache.WriteTimeout,
			MaxRetries:   cfg.Cache.MaxRetries,
			TLS:          cfg.Cache.TLS,
		})
		if err != nil {
			logger.Warn("valkey cache unavailable, using in-memory scores cache", slog.Any("error", err))
		} else {
			cacheProvider = provider
		}
	}
	defer cacheProvider.Close()

	static := geo.NewStaticResolver(staticTable(cfg.Geo))
	var external geo.Resolver
	if cfg.Geo.ProviderURL != "" {
		external = geo.NewHTTPResolver(cfg.Geo.ProviderURL, cfg.Geo.Token, cfg.Geo.LookupTimeout)
	}
	enricher := geo.NewEnricher(logger, static, external, cfg.Geo.LookupTimeout)

	ruleEngine, err := respond.NewRuleEngine(cfg.Playbook.Path, logger)
	if err != nil {
		logger.Error("failed to load playbook", slog.Any("error", err))
		os.Exit(1)
	}

	pipe := pipeline.New(logger, detect.NewScorer(logger), enricher, cacheProvider, cfg.Detection.ScoresTTL, pipeline.Defaults{
		Contamination: cfg.Detection.Contamination,
		Seed:          cfg.Detection.Seed,
	})
	playbackCfg := timeline.Config{
		Tick:   cfg.Playback.Tick,
		Window: cfg.Playback.Window,
		Step:   cfg.Playback.Step,
	}
	triage := services.NewTriageService(logger, pipe, playbackCfg, ruleEngine)

	if demo {
		records := synth.Batch(synth.Options{Injected: 15})
		session, err := triage.RunDetection(context.Background(), records, pipeline.Options{})
		if err != nil {
			logger.Error("demo detection failed", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("demo session ready",
			slog.String("session_id", session.ID),
			slog.Int("alerts", session.TotalAlerts),
		)
	}

	server, err := api.NewServer(cfg.Server, api.NewRouter(logger, triage))
	if err != nil {
		logger.Error("failed to create HTTP server", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var metricsServer *http.Server
	if cfg.Server.MetricsAddress != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{
			Addr:         cfg.Server.MetricsAddress,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 15 * time.Second,
		}
		go func() {
			logger.Info("metrics server listening", slog.String("address", cfg.Server.MetricsAddress))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server exited", slog.Any("error", err))
				stop()
			}
		}()
	}

	go func() {
		if serveErr := server.Start(); serveErr != nil {
			logger.Error("HTTP server exited", slog.Any("error", serveErr))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
	defer cancel()
	server.Shutdown(shutdownCtx)

	if metricsServer != nil {
		metricsCtx, cancelMetrics := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(metricsCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server shutdown", slog.Any("error", err))
		}
		cancelMetrics()
	}

	// Give remaining goroutines time to finish logging
	time.Sleep(100 * time.Millisecond)
	logger.Info("warroom stopped")
}

// staticTable merges configured entries over the built-in lookup table.
func staticTable(cfg config.GeoConfig) map[string]geo.Location {
	table := geo.DefaultStaticTable()
	for id, coords := range cfg.Static {
		table[id] = geo.Location{Lat: coords[0], Lon: coords[1]}
	}
	return table
}
