package banksync

import (
	"context"
	"errors"
	"fmt"

	"github.com/dvloznov/budget-sync/internal/bank"
	"github.com/dvloznov/budget-sync/internal/domain"
	"github.com/dvloznov/budget-sync/internal/repository"
	"github.com/rs/zerolog"
)

type reconcileOutcome int

const (
	outcomeCreated reconcileOutcome = iota
	outcomeUpdated
	outcomeRelinked
	outcomeUnchanged
)

// AccountReconciler mirrors the bank's account list into the account store.
type AccountReconciler struct {
	gateway  bank.Gateway
	accounts repository.AccountRepository
	pacer    *Pacer
	log      zerolog.Logger
}

// NewAccountReconciler creates a reconciler sharing the run's pacer.
func NewAccountReconciler(gateway bank.Gateway, accounts repository.AccountRepository, pacer *Pacer, log zerolog.Logger) *AccountReconciler {
	return &AccountReconciler{
		gateway:  gateway,
		accounts: accounts,
		pacer:    pacer,
		log:      log,
	}
}

// Reconcile fetches every bank account and creates or updates its stored copy.
// A failed fetch records one error and applies nothing. Per-account failures
// are recorded and do not stop the remaining accounts. The returned error is
// reserved for invariant violations and cancellation.
func (r *AccountReconciler) Reconcile(ctx context.Context) (AccountReconcileResult, error) {
	var result AccountReconcileResult

	if err := r.pacer.Wait(ctx); err != nil {
		return result, err
	}

	incoming, err := r.gateway.GetAccounts(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		r.log.Error().Err(err).Msg("Failed to fetch bank accounts")
		result.Errors = append(result.Errors, fmt.Sprintf("fetch accounts: %v", err))
		return result, nil
	}

	r.log.Info().Int("account_count", len(incoming)).Msg("Retrieved bank accounts")

	for i := range incoming {
		acc := &incoming[i]

		outcome, err := r.reconcileOne(ctx, acc)
		if err != nil {
			if errors.Is(err, repository.ErrInvariantViolation) || ctx.Err() != nil {
				return result, fmt.Errorf("Reconcile: account %s: %w", acc.ExternalID, err)
			}
			r.log.Error().Err(err).Str("account_id", acc.ExternalID).Msg("Failed to reconcile account")
			result.Errors = append(result.Errors, fmt.Sprintf("account %s: %v", acc.ExternalID, err))
			continue
		}

		switch outcome {
		case outcomeCreated:
			result.Created++
			r.log.Info().Str("account_id", acc.ExternalID).Msg("Created account")
		case outcomeUpdated:
			result.Updated++
			r.log.Info().Str("account_id", acc.ExternalID).Msg("Updated account")
		case outcomeRelinked:
			result.Updated++
			r.log.Info().Str("account_id", acc.ExternalID).Msg("Relinked account matched by IBAN")
		default:
			result.Unchanged++
		}
	}

	return result, nil
}

func (r *AccountReconciler) reconcileOne(ctx context.Context, incoming *domain.Account) (reconcileOutcome, error) {
	if incoming.ExternalID == "" {
		return 0, fmt.Errorf("malformed account: missing external ID")
	}
	if incoming.Bank == "" {
		return 0, fmt.Errorf("malformed account: missing bank tag")
	}

	existing, err := r.accounts.FindByExternalID(ctx, incoming.ExternalID)
	if err != nil {
		return 0, fmt.Errorf("finding by external ID: %w", err)
	}
	if existing == nil && incoming.IBANValue() != "" {
		existing, err = r.accounts.FindByIBAN(ctx, incoming.IBANValue())
		if err != nil {
			return 0, fmt.Errorf("finding by IBAN: %w", err)
		}
	}

	if existing == nil {
		if err := r.accounts.Save(ctx, incoming); err != nil {
			return 0, fmt.Errorf("saving: %w", err)
		}
		return outcomeCreated, nil
	}

	// An IBAN match under a new external ID is a re-issued account. It takes
	// over the bank's ID so transaction fetches address the live account.
	if existing.ExternalID != incoming.ExternalID {
		relinked := applyBankFields(existing, incoming)
		relinked.ExternalID = incoming.ExternalID
		if err := r.accounts.Relink(ctx, existing.ExternalID, relinked); err != nil {
			return 0, fmt.Errorf("relinking %s: %w", existing.ExternalID, err)
		}
		return outcomeRelinked, nil
	}

	if !existing.BankFieldsDiffer(incoming) {
		return outcomeUnchanged, nil
	}

	if err := r.accounts.Update(ctx, applyBankFields(existing, incoming)); err != nil {
		return 0, fmt.Errorf("updating: %w", err)
	}
	return outcomeUpdated, nil
}

// applyBankFields copies bank-reported fields onto the stored account, keeping
// its identity, bank tag and sync cursor.
func applyBankFields(existing, incoming *domain.Account) *domain.Account {
	updated := existing.Clone()
	fresh := incoming.Clone()

	updated.Name = fresh.Name
	updated.Balance = fresh.Balance
	updated.Type = fresh.Type
	updated.IBAN = fresh.IBAN
	updated.MaskedPAN = fresh.MaskedPAN
	updated.CreditLimit = fresh.CreditLimit
	updated.Currency = fresh.Currency
	return updated
}
