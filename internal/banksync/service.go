package banksync

import (
	"context"
	"errors"
	"fmt"

	"github.com/dvloznov/budget-sync/internal/bank"
	"github.com/dvloznov/budget-sync/internal/logger"
	"github.com/dvloznov/budget-sync/internal/repository"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Service runs complete sync passes: account reconciliation followed by a
// transaction sync of every account tagged with the configured bank.
type Service struct {
	gateway      bank.Gateway
	accounts     repository.AccountRepository
	transactions repository.TransactionRepository
	opts         Options
	log          zerolog.Logger
}

// NewService creates a sync service. Zero option values take their defaults.
func NewService(gateway bank.Gateway, accounts repository.AccountRepository, transactions repository.TransactionRepository, opts Options, log zerolog.Logger) *Service {
	return &Service{
		gateway:      gateway,
		accounts:     accounts,
		transactions: transactions,
		opts:         opts.withDefaults(),
		log:          log,
	}
}

// Options returns the effective options after defaults.
func (s *Service) Options() Options {
	return s.opts
}

// Run executes one sync pass. Operational failures are collected in the
// result and never abort the run. A non-nil error means the run stopped early
// because the context ended or a store reported an invariant violation; the
// partial result is still returned.
func (s *Service) Run(ctx context.Context) (*SyncResult, error) {
	result := &SyncResult{
		RunID:     uuid.NewString(),
		StartedAt: s.opts.Clock.Now().UTC(),
		Accounts:  []AccountSyncResult{},
		Errors:    []string{},
	}

	log := s.log.With().Str("run_id", result.RunID).Logger()
	ctx = logger.WithContext(ctx, log)
	log.Info().Str("bank", s.opts.Bank).Msg("Starting sync run")

	err := s.run(ctx, log, result)
	result.FinishedAt = s.opts.Clock.Now().UTC()

	event := log.Info()
	if err != nil {
		event = log.Error().Err(err)
	} else if result.Failed() {
		event = log.Warn()
	}
	event.
		Int("accounts_created", result.AccountsCreated).
		Int("accounts_updated", result.AccountsUpdated).
		Int("accounts_unchanged", result.AccountsUnchanged).
		Int("transactions_new", result.TransactionsNew).
		Int("transactions_updated", result.TransactionsUpdated).
		Int("transactions_skipped", result.TransactionsSkipped).
		Int("errors", len(result.Errors)).
		Dur("duration", result.FinishedAt.Sub(result.StartedAt)).
		Msg("Sync run finished")

	return result, err
}

func (s *Service) run(ctx context.Context, log zerolog.Logger, result *SyncResult) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("Run: %w", err)
	}

	pacer := NewPacer(s.opts.Clock, s.opts.RequestDelay)

	reconciler := NewAccountReconciler(s.gateway, s.accounts, pacer, log)
	reconciled, err := reconciler.Reconcile(ctx)
	result.applyReconcile(reconciled)
	if err != nil {
		return fmt.Errorf("Run: reconciling accounts: %w", err)
	}

	accounts, err := s.accounts.FindByBank(ctx, s.opts.Bank)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("Run: listing accounts: %w", ctx.Err())
		}
		log.Error().Err(err).Msg("Failed to list accounts for transaction sync")
		result.Errors = append(result.Errors, fmt.Sprintf("list accounts: %v", err))
		return nil
	}

	syncer := NewTransactionSyncer(s.gateway, s.accounts, NewResolver(s.transactions, log), s.opts, pacer, log)
	for _, account := range accounts {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("Run: %w", err)
		}

		counts, err := syncer.SyncAccount(ctx, account)
		outcome := AccountSyncResult{AccountID: account.ExternalID, Counts: counts}
		if err != nil {
			outcome.Error = err.Error()
		}
		result.applyAccount(outcome)

		if err == nil {
			continue
		}
		if errors.Is(err, repository.ErrInvariantViolation) || ctx.Err() != nil {
			return fmt.Errorf("Run: account %s: %w", account.ExternalID, err)
		}
		log.Error().Err(err).Str("account_id", account.ExternalID).Msg("Account transaction sync failed")
	}

	return nil
}
