package config

import (
	"context"
	"testing"
	"time"

	"github.com/dvloznov/budget-sync/internal/repository"
	"github.com/dvloznov/budget-sync/internal/repository/inmemory"
	"github.com/dvloznov/budget-sync/internal/runreport"
	"github.com/rs/zerolog"
)

func envMap(vars map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := vars[key]
		return v, ok
	}
}

func TestFromEnv_Defaults(t *testing.T) {
	cfg, err := FromEnv(envMap(nil))
	if err != nil {
		t.Fatalf("FromEnv() error = %v", err)
	}
	if cfg.StoreBackend != BackendMemory || cfg.Port != "8080" || cfg.BQDatasetID != "ledger" {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if cfg.SyncInterval != time.Hour {
		t.Errorf("SyncInterval = %s, want 1h", cfg.SyncInterval)
	}
	if cfg.Sync.RequestDelay != 0 || !cfg.Sync.EarliestSyncDate.IsZero() {
		t.Errorf("sync options should be left for banksync defaults: %+v", cfg.Sync)
	}
	if cfg.NotionEnabled() {
		t.Error("Notion should be disabled without credentials")
	}
}

func TestFromEnv_SyncOptions(t *testing.T) {
	cfg, err := FromEnv(envMap(map[string]string{
		"SYNC_REQUEST_DELAY":   "2s",
		"SYNC_MAX_RETRIES":     "-1",
		"SYNC_INITIAL_BACKOFF": "30s",
		"SYNC_EARLIEST_DATE":   "2025-06-01",
		"SYNC_OVERLAP_WINDOW":  "15m",
		"SYNC_CHUNK_DAYS":      "7",
		"SYNC_INTERVAL":        "30m",
	}))
	if err != nil {
		t.Fatalf("FromEnv() error = %v", err)
	}

	opts := cfg.Sync
	if opts.RequestDelay != 2*time.Second || opts.MaxRetries != -1 || opts.InitialBackoff != 30*time.Second {
		t.Errorf("unexpected retry options: %+v", opts)
	}
	if !opts.EarliestSyncDate.Equal(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("EarliestSyncDate = %s", opts.EarliestSyncDate)
	}
	if opts.OverlapWindow != 15*time.Minute || opts.ChunkDays != 7 || cfg.SyncInterval != 30*time.Minute {
		t.Errorf("unexpected window options: %+v", opts)
	}
}

func TestFromEnv_Errors(t *testing.T) {
	tests := []struct {
		name string
		vars map[string]string
	}{
		{"bad duration", map[string]string{"SYNC_REQUEST_DELAY": "soon"}},
		{"bad integer", map[string]string{"SYNC_MAX_RETRIES": "three"}},
		{"bad date", map[string]string{"SYNC_EARLIEST_DATE": "01/06/2025"}},
		{"unknown backend", map[string]string{"STORE_BACKEND": "sqlite"}},
		{"postgres without url", map[string]string{"STORE_BACKEND": "postgres"}},
		{"bigquery without project", map[string]string{"STORE_BACKEND": "bigquery"}},
		{"zero interval", map[string]string{"SYNC_INTERVAL": "0s"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := FromEnv(envMap(tt.vars)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestOpenStores_MemoryWithNotionMirror(t *testing.T) {
	cfg := &Config{
		StoreBackend:         BackendMemory,
		NotionToken:          "secret",
		NotionAccountsDB:     "acc-db",
		NotionTransactionsDB: "tx-db",
	}

	stores, err := OpenStores(context.Background(), cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("OpenStores() error = %v", err)
	}
	defer stores.Close()

	if _, ok := stores.Accounts.(*repository.DualWriteAccounts); !ok {
		t.Errorf("expected dual-write accounts, got %T", stores.Accounts)
	}
	if _, ok := stores.Transactions.(*repository.DualWriteTransactions); !ok {
		t.Errorf("expected dual-write transactions, got %T", stores.Transactions)
	}
}

func TestOpenStores_MemoryOnly(t *testing.T) {
	stores, err := OpenStores(context.Background(), &Config{StoreBackend: BackendMemory}, zerolog.Nop())
	if err != nil {
		t.Fatalf("OpenStores() error = %v", err)
	}
	if _, ok := stores.Accounts.(*inmemory.Store); !ok {
		t.Errorf("expected the in-memory store, got %T", stores.Accounts)
	}
	if err := stores.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestNewService_RequiresToken(t *testing.T) {
	stores, _ := OpenStores(context.Background(), &Config{StoreBackend: BackendMemory}, zerolog.Nop())
	if _, err := NewService(&Config{}, stores, zerolog.Nop()); err == nil {
		t.Error("expected error without MONOBANK_TOKEN")
	}
	if _, err := NewService(&Config{MonobankToken: "t"}, stores, zerolog.Nop()); err != nil {
		t.Errorf("NewService() error = %v", err)
	}
}

func TestNewReportStore_NopWithoutBucket(t *testing.T) {
	store, closeFn, err := NewReportStore(context.Background(), &Config{})
	if err != nil {
		t.Fatalf("NewReportStore() error = %v", err)
	}
	if _, ok := store.(runreport.NopStore); !ok {
		t.Errorf("expected NopStore, got %T", store)
	}
	if err := closeFn(); err != nil {
		t.Errorf("close error = %v", err)
	}
}
