package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dvloznov/budget-sync/internal/config"
	"github.com/dvloznov/budget-sync/internal/jobs"
	"github.com/dvloznov/budget-sync/internal/jobs/inmemory"
	"github.com/dvloznov/budget-sync/internal/logger"
	"github.com/rs/zerolog"
)

func main() {
	interval := flag.Duration("interval", 0, "Time between sync runs (defaults to SYNC_INTERVAL)")
	once := flag.Bool("once", false, "Run a single sync and exit")
	flag.Parse()

	cfg, err := config.Load(logger.New())
	if err != nil {
		bootLog := logger.New()
		bootLog.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if *interval > 0 {
		cfg.SyncInterval = *interval
	}

	log := logger.NewWithLevel(cfg.LogLevel, cfg.LogFormat)

	ctx, cancel := context.WithCancel(logger.WithContext(context.Background(), log))
	defer cancel()

	stores, err := config.OpenStores(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open stores")
	}
	defer stores.Close()

	svc, err := config.NewService(cfg, stores, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create sync service")
	}

	reports, closeReports, err := config.NewReportStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create report store")
	}
	defer closeReports()

	handler := jobs.RunSync(svc, stores.Accounts, reports)

	if *once {
		job := &jobs.SyncJob{JobID: "once", Trigger: jobs.TriggerSchedule}
		if err := handler(ctx, job); err != nil {
			log.Fatal().Err(err).Msg("Sync run aborted")
		}
		return
	}

	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(1, jobStore)

	if err := jobQueue.Start(ctx, handler); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job consumer")
	}

	log.Info().Dur("interval", cfg.SyncInterval).Msg("Worker service started")

	go schedule(ctx, jobQueue, cfg.SyncInterval, log)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down worker service...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Sync run did not finish in time, cancelling")
	}
	cancel()

	log.Info().Msg("Worker service exited")
}

// schedule enqueues a run immediately and then every interval. A tick that
// finds a run already waiting is skipped.
func schedule(ctx context.Context, publisher jobs.Publisher, interval time.Duration, log zerolog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		err := publisher.PublishSync(ctx, &jobs.SyncJob{Trigger: jobs.TriggerSchedule})
		switch {
		case errors.Is(err, jobs.ErrQueueFull):
			log.Info().Msg("Previous sync still queued, skipping tick")
		case errors.Is(err, jobs.ErrQueueClosed):
			return
		case err != nil:
			log.Error().Err(err).Msg("Failed to enqueue scheduled sync")
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
