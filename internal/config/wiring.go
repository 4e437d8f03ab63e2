package config

import (
	"context"
	"fmt"

	"github.com/dvloznov/budget-sync/internal/bank/monobank"
	"github.com/dvloznov/budget-sync/internal/banksync"
	"github.com/dvloznov/budget-sync/internal/infra/bigquery"
	"github.com/dvloznov/budget-sync/internal/infra/postgres"
	"github.com/dvloznov/budget-sync/internal/logger"
	"github.com/dvloznov/budget-sync/internal/notionsync"
	"github.com/dvloznov/budget-sync/internal/repository"
	"github.com/dvloznov/budget-sync/internal/repository/inmemory"
	"github.com/dvloznov/budget-sync/internal/runreport"
	"github.com/rs/zerolog"
)

// Stores are the repositories a sync run writes through.
type Stores struct {
	Accounts     repository.AccountRepository
	Transactions repository.TransactionRepository

	closers []func() error
}

// Close releases every backend connection.
func (s *Stores) Close() error {
	var first error
	for _, c := range s.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// OpenStores connects the configured primary backend and wraps it with the
// Notion mirror when Notion is configured.
func OpenStores(ctx context.Context, cfg *Config, log zerolog.Logger) (*Stores, error) {
	stores := &Stores{}

	switch cfg.StoreBackend {
	case BackendPostgres:
		pool, err := postgres.Connect(logger.WithContext(ctx, log), postgres.PoolConfig{URL: cfg.DatabaseURL})
		if err != nil {
			return nil, fmt.Errorf("OpenStores: %w", err)
		}
		store := postgres.NewStore(pool)
		stores.Accounts, stores.Transactions = store, store
		stores.closers = append(stores.closers, func() error { pool.Close(); return nil })
	case BackendBigQuery:
		store, err := bigquery.NewStore(ctx, bigquery.Config{ProjectID: cfg.BQProjectID, DatasetID: cfg.BQDatasetID})
		if err != nil {
			return nil, fmt.Errorf("OpenStores: %w", err)
		}
		stores.Accounts, stores.Transactions = store, store
		stores.closers = append(stores.closers, store.Close)
	default:
		store := inmemory.NewStore()
		stores.Accounts, stores.Transactions = store, store
	}

	log.Info().Str("backend", cfg.StoreBackend).Bool("notion_mirror", cfg.NotionEnabled()).Msg("Opened ledger store")

	if cfg.NotionEnabled() {
		notion := notionsync.NewNotionClient(cfg.NotionToken)
		mirrorLog := logger.Component(log, "notion_mirror")
		stores.Accounts = repository.NewDualWriteAccounts(
			stores.Accounts, notionsync.NewAccountMirror(notion, cfg.NotionAccountsDB), mirrorLog)
		stores.Transactions = repository.NewDualWriteTransactions(
			stores.Transactions, notionsync.NewTransactionMirror(notion, cfg.NotionTransactionsDB, mirrorLog), mirrorLog)
	}

	return stores, nil
}

// NewService builds the sync service over the Monobank gateway and the given stores.
func NewService(cfg *Config, stores *Stores, log zerolog.Logger) (*banksync.Service, error) {
	gateway, err := monobank.NewClient(monobank.ClientConfig{
		Token:   cfg.MonobankToken,
		BaseURL: cfg.MonobankBaseURL,
	})
	if err != nil {
		return nil, fmt.Errorf("NewService: %w", err)
	}
	return banksync.NewService(gateway, stores.Accounts, stores.Transactions, cfg.Sync, logger.Component(log, "banksync")), nil
}

// NewReportStore returns the GCS archive when REPORT_BUCKET is set, otherwise a no-op store.
func NewReportStore(ctx context.Context, cfg *Config) (runreport.Store, func() error, error) {
	if cfg.ReportBucket == "" {
		return runreport.NopStore{}, func() error { return nil }, nil
	}
	objects, err := runreport.NewGCSStorage(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("NewReportStore: %w", err)
	}
	return runreport.NewBucketStore(objects, cfg.ReportBucket), objects.Close, nil
}
