// Package config loads runtime settings from the environment and wires the
// stores, gateway and report archive they select.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/dvloznov/budget-sync/internal/banksync"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// Store backends accepted in STORE_BACKEND.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendBigQuery = "bigquery"
)

// Config holds every runtime setting.
type Config struct {
	MonobankToken   string
	MonobankBaseURL string

	StoreBackend string
	DatabaseURL  string
	BQProjectID  string
	BQDatasetID  string

	NotionToken          string
	NotionAccountsDB     string
	NotionTransactionsDB string

	ReportBucket string

	Sync         banksync.Options
	SyncInterval time.Duration

	LogLevel  string
	LogFormat string
	Port      string

	// APIToken, when set, is required as a bearer token by the trigger API.
	APIToken string
}

// NotionEnabled reports whether the Notion mirror is fully configured.
func (c *Config) NotionEnabled() bool {
	return c.NotionToken != "" && c.NotionAccountsDB != "" && c.NotionTransactionsDB != ""
}

// Load reads .env, if present, then the process environment.
func Load(log zerolog.Logger) (*Config, error) {
	// A missing .env is normal outside local development.
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("No .env file found, relying on system environment variables")
	}
	return FromEnv(os.LookupEnv)
}

// FromEnv builds a Config from a lookup function such as os.LookupEnv.
func FromEnv(lookup func(string) (string, bool)) (*Config, error) {
	env := envReader{lookup: lookup}

	cfg := &Config{
		MonobankToken:        env.str("MONOBANK_TOKEN", ""),
		MonobankBaseURL:      env.str("MONOBANK_BASE_URL", ""),
		StoreBackend:         env.str("STORE_BACKEND", BackendMemory),
		DatabaseURL:          env.str("DATABASE_URL", ""),
		BQProjectID:          env.str("BQ_PROJECT_ID", ""),
		BQDatasetID:          env.str("BQ_DATASET_ID", "ledger"),
		NotionToken:          env.str("NOTION_TOKEN", ""),
		NotionAccountsDB:     env.str("NOTION_ACCOUNTS_DB_ID", ""),
		NotionTransactionsDB: env.str("NOTION_TRANSACTIONS_DB_ID", ""),
		ReportBucket:         env.str("REPORT_BUCKET", ""),
		LogLevel:             env.str("LOG_LEVEL", "info"),
		LogFormat:            env.str("LOG_FORMAT", "console"),
		Port:                 env.str("PORT", "8080"),
		APIToken:             env.str("API_TOKEN", ""),
		SyncInterval:         env.duration("SYNC_INTERVAL", time.Hour),
		Sync: banksync.Options{
			RequestDelay:     env.duration("SYNC_REQUEST_DELAY", 0),
			MaxRetries:       env.integer("SYNC_MAX_RETRIES", 0),
			InitialBackoff:   env.duration("SYNC_INITIAL_BACKOFF", 0),
			EarliestSyncDate: env.date("SYNC_EARLIEST_DATE"),
			OverlapWindow:    env.duration("SYNC_OVERLAP_WINDOW", 0),
			ChunkDays:        env.integer("SYNC_CHUNK_DAYS", 0),
		},
	}

	if env.err != nil {
		return nil, fmt.Errorf("FromEnv: %w", env.err)
	}

	switch cfg.StoreBackend {
	case BackendMemory:
	case BackendPostgres:
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("FromEnv: DATABASE_URL is required for the postgres backend")
		}
	case BackendBigQuery:
		if cfg.BQProjectID == "" {
			return nil, fmt.Errorf("FromEnv: BQ_PROJECT_ID is required for the bigquery backend")
		}
	default:
		return nil, fmt.Errorf("FromEnv: unknown STORE_BACKEND %q", cfg.StoreBackend)
	}

	if cfg.SyncInterval <= 0 {
		return nil, fmt.Errorf("FromEnv: SYNC_INTERVAL must be positive")
	}

	return cfg, nil
}

// envReader reads typed values and keeps the first parse error.
type envReader struct {
	lookup func(string) (string, bool)
	err    error
}

// str returns the variable or fallback when unset.
func (e *envReader) str(key, fallback string) string {
	if value, exists := e.lookup(key); exists {
		return value
	}
	return fallback
}

func (e *envReader) duration(key string, fallback time.Duration) time.Duration {
	value, exists := e.lookup(key)
	if !exists || value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		e.fail(fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return d
}

func (e *envReader) integer(key string, fallback int) int {
	value, exists := e.lookup(key)
	if !exists || value == "" {
		return fallback
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		e.fail(fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return n
}

// date parses YYYY-MM-DD as midnight UTC. Unset yields the zero time.
func (e *envReader) date(key string) time.Time {
	value, exists := e.lookup(key)
	if !exists || value == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.DateOnly, value)
	if err != nil {
		e.fail(fmt.Errorf("%s: %w", key, err))
		return time.Time{}
	}
	return t.UTC()
}

func (e *envReader) fail(err error) {
	if e.err == nil {
		e.err = err
	}
}
