package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dvloznov/budget-sync/internal/api/handlers"
	"github.com/dvloznov/budget-sync/internal/api/middleware"
	"github.com/dvloznov/budget-sync/internal/config"
	"github.com/dvloznov/budget-sync/internal/jobs"
	"github.com/dvloznov/budget-sync/internal/jobs/inmemory"
	"github.com/dvloznov/budget-sync/internal/logger"
)

func main() {
	port := flag.String("port", "", "HTTP server port (defaults to PORT)")
	flag.Parse()

	cfg, err := config.Load(logger.New())
	if err != nil {
		bootLog := logger.New()
		bootLog.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if *port != "" {
		cfg.Port = *port
	}

	log := logger.NewWithLevel(cfg.LogLevel, cfg.LogFormat)
	ctx := logger.WithContext(context.Background(), log)

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

	if cfg.APIToken == "" {
		log.Warn().Msg("API_TOKEN not set - the sync API is unauthenticated")
	}

	// One waiting run behind the running one is enough: a later run covers
	// everything an earlier queued one would.
	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(1, jobStore)

	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()

	if err := jobQueue.Start(workerCtx, jobs.RunSync(svc, stores.Accounts, reports)); err != nil {
		log.Fatal().Err(err).Msg("Failed to start sync worker")
	}
	log.Info().Msg("Sync worker started")

	router := handlers.NewRouter(
		handlers.NewSyncHandler(jobQueue, jobStore),
		handlers.NewAccountsHandler(stores.Accounts, svc.Options().Bank),
	)

	handler := middleware.Recovery(log)(
		middleware.RequestID(
			middleware.Logger(log)(
				middleware.CORS(
					middleware.Auth(cfg.APIToken)(router),
				),
			),
		),
	)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// A run still going after the grace period is cancelled; it resumes from
	// the stored cursors next time.
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Sync run did not finish in time, cancelling")
		cancelWorker()
	}

	log.Info().Msg("Server exited")
}
