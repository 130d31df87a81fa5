// Command server runs the Field Analysis Pipeline HTTP API together
// with its periodic farm-scan scheduler, following DemeterEye's
// api/main.go idiom of mustConfig → newApp → ListenAndServe with
// graceful http.ErrServerClosed handling.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/demeterfield/pipeline/internal/alerts"
	"github.com/demeterfield/pipeline/internal/analysis"
	"github.com/demeterfield/pipeline/internal/cache"
	"github.com/demeterfield/pipeline/internal/config"
	"github.com/demeterfield/pipeline/internal/httpapi"
	"github.com/demeterfield/pipeline/internal/logging"
	"github.com/demeterfield/pipeline/internal/notify"
	"github.com/demeterfield/pipeline/internal/orchestrator"
	"github.com/demeterfield/pipeline/internal/planner"
	"github.com/demeterfield/pipeline/internal/providers"
	"github.com/demeterfield/pipeline/internal/scheduler"
	"github.com/demeterfield/pipeline/internal/store"
)

func main() {
	cfg := config.Must()
	log := logging.New("server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	persistence, err := store.NewMongoStore(ctx, cfg.Mongo.URI, cfg.Mongo.Database)
	cancel()
	if err != nil {
		log.Fatal().Err(err).Msg("mongo connect failed")
	}

	var memo cache.Cache
	if cfg.Redis.Addr != "" {
		memo = cache.NewRedisCache(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	} else {
		memo = cache.NewMemoryCache()
	}

	imagery := providers.NewHTTPImageryClient(cfg.Imagery.BaseURL, cfg.Imagery.Retry, cfg.Imagery.BreakerThreshold, log)
	weather := providers.NewCachingWeatherProvider(
		providers.NewHTTPWeatherClient(cfg.Weather.BaseURL, cfg.Weather.Retry, cfg.Weather.BreakerThreshold, log),
		memo, cfg.Cache, log,
	)

	engine := analysis.New(imagery, persistence, cfg.Imagery, cfg.Analysis, log)
	sink := notify.NewQueuedSink(notify.NewWebhookSink(os.Getenv("ALERTS_WEBHOOK_URL"), log), log)
	alertEng := alerts.New(persistence, sink, cfg.Alerts, cfg.Weather.Thresholds, log)
	plan := planner.New(cfg.Planner)
	runner := orchestrator.New(engine, alertEng, plan, weather, persistence, cfg.Analysis, log)

	sched := scheduler.New(runner, persistence, cfg.Scheduler, log)
	if err := sched.Start(); err != nil {
		log.Fatal().Err(err).Msg("scheduler failed to start")
	}
	defer sched.Stop()

	api := httpapi.New(runner, engine, alertEng, plan, persistence, log)
	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           api.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
		<-stop
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("graceful shutdown failed")
		}
	}()

	log.Info().Str("port", cfg.HTTPPort).Msg("field analysis pipeline listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("server exited")
	}
}
