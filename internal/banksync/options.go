// Package banksync pulls account and transaction state from a bank gateway and
// merges it into the ledger store without duplicates or lost user edits.
//
// A run has two strictly sequential phases: account reconciliation, then a
// per-account incremental transaction sync. Every gateway request after the
// first one in a run waits RequestDelay, because the bank's rate limit is global.
package banksync

import (
	"time"

	"github.com/dvloznov/budget-sync/internal/domain"
)

// Defaults applied by Options.withDefaults.
const (
	DefaultRequestDelay   = 5 * time.Second
	DefaultMaxRetries     = 3
	DefaultInitialBackoff = 60 * time.Second
	DefaultOverlapWindow  = 10 * time.Minute
	DefaultChunkDays      = 31
)

// DefaultEarliestSyncDate is the historical floor for accounts never synced before.
var DefaultEarliestSyncDate = time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)

// Options configures a sync run. Zero values take the defaults above.
type Options struct {
	// RequestDelay is slept before every gateway request except the first of a run.
	// Negative disables the delay.
	RequestDelay time.Duration

	// MaxRetries bounds retries of rate-limited transaction fetches.
	// Negative disables retries.
	MaxRetries int

	// InitialBackoff is the first retry delay; it doubles per attempt.
	InitialBackoff time.Duration

	// EarliestSyncDate is the window start for never-synced accounts and the
	// lower bound for every other account.
	EarliestSyncDate time.Time

	// OverlapWindow re-covers the tail of the previous run to catch transactions
	// that settled after its snapshot.
	OverlapWindow time.Duration

	// ChunkDays is the widest window sent to the gateway in one request.
	ChunkDays int

	// Bank is the account tag whose accounts get transaction syncs.
	Bank string

	// Clock provides time and sleeping. Nil uses the system clock.
	Clock Clock
}

// DefaultOptions returns Options populated with every default.
func DefaultOptions() Options {
	return Options{}.withDefaults()
}

func (o Options) withDefaults() Options {
	switch {
	case o.RequestDelay == 0:
		o.RequestDelay = DefaultRequestDelay
	case o.RequestDelay < 0:
		o.RequestDelay = 0
	}
	switch {
	case o.MaxRetries == 0:
		o.MaxRetries = DefaultMaxRetries
	case o.MaxRetries < 0:
		o.MaxRetries = 0
	}
	if o.InitialBackoff <= 0 {
		o.InitialBackoff = DefaultInitialBackoff
	}
	if o.EarliestSyncDate.IsZero() {
		o.EarliestSyncDate = DefaultEarliestSyncDate
	}
	if o.OverlapWindow <= 0 {
		o.OverlapWindow = DefaultOverlapWindow
	}
	if o.ChunkDays <= 0 {
		o.ChunkDays = DefaultChunkDays
	}
	if o.Bank == "" {
		o.Bank = domain.BankMonobank
	}
	if o.Clock == nil {
		o.Clock = SystemClock{}
	}
	return o
}
