package banksync

import (
	"context"
	"fmt"
	"time"

	"github.com/dvloznov/budget-sync/internal/bank"
	"github.com/dvloznov/budget-sync/internal/domain"
	"github.com/dvloznov/budget-sync/internal/logger"
	"github.com/dvloznov/budget-sync/internal/repository"
	"github.com/rs/zerolog"
)

// SyncFrom returns the start of an account's sync window:
// max(lastSync - overlap, earliest), or earliest when the account was never synced.
func SyncFrom(lastSync *time.Time, overlap time.Duration, earliest time.Time) time.Time {
	if lastSync == nil {
		return earliest
	}
	from := lastSync.Add(-overlap)
	if from.Before(earliest) {
		return earliest
	}
	return from
}

// TransactionSyncer runs the incremental transaction sync for single accounts.
type TransactionSyncer struct {
	gateway  bank.Gateway
	accounts repository.AccountRepository
	resolver *Resolver
	opts     Options
	pacer    *Pacer
	log      zerolog.Logger
}

// NewTransactionSyncer creates a syncer sharing the run's pacer.
func NewTransactionSyncer(gateway bank.Gateway, accounts repository.AccountRepository, resolver *Resolver, opts Options, pacer *Pacer, log zerolog.Logger) *TransactionSyncer {
	return &TransactionSyncer{
		gateway:  gateway,
		accounts: accounts,
		resolver: resolver,
		opts:     opts.withDefaults(),
		pacer:    pacer,
		log:      log,
	}
}

// SyncAccount fetches the account's window chunk by chunk, merges the results
// and advances the cursor to the instant captured at the start. On any error
// the cursor is left untouched so the next run retries the same window; the
// counts returned alongside the error cover the chunks already persisted.
func (s *TransactionSyncer) SyncAccount(ctx context.Context, account *domain.Account) (TransactionSyncCounts, error) {
	var counts TransactionSyncCounts

	now := s.opts.Clock.Now().UTC()
	from := SyncFrom(account.LastSyncTime, s.opts.OverlapWindow, s.opts.EarliestSyncDate)
	if from.After(now) {
		from = now
	}

	chunks := ChunkRange(from, now, s.opts.ChunkDays)
	log := s.log.With().Str("account_id", account.ExternalID).Logger()
	log.Info().
		Time("from", from).
		Time("to", now).
		Int("chunks", len(chunks)).
		Msg("Syncing account transactions")

	fetchCtx := logger.WithContext(ctx, log)
	for i, chunk := range chunks {
		if err := s.pacer.Wait(ctx); err != nil {
			return counts, err
		}

		txs, err := FetchWithRetry(fetchCtx, s.gateway, s.opts.Clock.Sleep, account.ExternalID,
			chunk.From, chunk.To, s.opts.MaxRetries, s.opts.InitialBackoff)
		if err != nil {
			return counts, fmt.Errorf("fetching chunk %d/%d (%s): %w", i+1, len(chunks), chunk, err)
		}

		chunkCounts, err := s.resolver.Process(ctx, txs)
		counts.add(chunkCounts)
		if err != nil {
			return counts, fmt.Errorf("processing chunk %d/%d (%s): %w", i+1, len(chunks), chunk, err)
		}

		log.Debug().
			Int("chunk", i+1).
			Int("fetched", len(txs)).
			Int("new", chunkCounts.New).
			Int("updated", chunkCounts.Updated).
			Msg("Processed chunk")
	}

	cursor := now
	if account.LastSyncTime != nil && account.LastSyncTime.After(cursor) {
		cursor = *account.LastSyncTime
	}
	if err := s.accounts.UpdateLastSyncTime(ctx, account.ExternalID, cursor); err != nil {
		return counts, fmt.Errorf("updating last sync time: %w", err)
	}

	log.Info().
		Int("new", counts.New).
		Int("updated", counts.Updated).
		Int("skipped", counts.Skipped).
		Time("last_sync_time", cursor).
		Msg("Account sync completed")

	return counts, nil
}
