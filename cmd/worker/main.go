package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/medrecord-api/config"
	"github.com/jwalitptl/medrecord-api/internal/app"
	"github.com/jwalitptl/medrecord-api/internal/worker"
	"github.com/jwalitptl/medrecord-api/pkg/logger"
	"github.com/jwalitptl/medrecord-api/pkg/metrics"
)

func setupHealthCheck(port int, reg *prometheus.Registry, repos *app.Repositories) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/health/live", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		for _, c := range repos.Checks {
			if err := c.Ping(ctx); err != nil {
				http.Error(w, c.Name+" unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
	})
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("health check server failed")
		}
	}()
	return srv
}

func main() {
	configPath := flag.String("config", "", "path to config.yaml")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	l := logger.Setup(&logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format}).
		WithFields(map[string]interface{}{"component": "worker"})
	log.Logger = l.ZL

	if err := cfg.Validate(); err != nil {
		l.Fatal(err, "invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repos, err := app.OpenRepositories(ctx, cfg)
	if err != nil {
		l.Fatal(err, "failed to open storage")
	}
	defer repos.Close()

	reg := prometheus.NewRegistry()
	m := metrics.New("medrec", reg)

	health := setupHealthCheck(cfg.Worker.HealthPort, reg, repos)
	defer health.Close()

	runner := worker.NewRunner(cfg.Worker.Interval, m,
		worker.RevocationPurge(repos.Revocations),
		worker.AuditCleanup(repos.Audit, cfg.Worker.AuditRetentionDays),
	)

	l.Info("worker starting")
	runner.Start(ctx)
}
