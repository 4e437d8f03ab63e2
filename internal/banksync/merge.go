package banksync

import (
	"context"
	"fmt"
	"sort"

	"github.com/dvloznov/budget-sync/internal/domain"
	"github.com/dvloznov/budget-sync/internal/repository"
	"github.com/rs/zerolog"
)

// Resolver deduplicates incoming bank transactions against the store and
// persists new and enriched ones.
type Resolver struct {
	transactions repository.TransactionRepository
	log          zerolog.Logger
}

// NewResolver creates a resolver writing through the given repository.
func NewResolver(transactions repository.TransactionRepository, log zerolog.Logger) *Resolver {
	return &Resolver{transactions: transactions, log: log}
}

// Process classifies each incoming transaction as new, update or skip and
// persists the first two classes.
func (r *Resolver) Process(ctx context.Context, incoming []domain.Transaction) (TransactionSyncCounts, error) {
	var counts TransactionSyncCounts

	batch := collapseDuplicates(incoming)
	if len(batch) == 0 {
		return counts, nil
	}

	ids := make([]string, len(batch))
	for i, tx := range batch {
		ids[i] = tx.ExternalID
	}

	existing, err := r.transactions.FindByExternalIDs(ctx, ids)
	if err != nil {
		return counts, fmt.Errorf("Process: loading existing transactions: %w", err)
	}

	var toInsert, toUpdate []*domain.Transaction
	for _, tx := range batch {
		stored, ok := existing[tx.ExternalID]
		switch {
		case !ok || stored == nil:
			toInsert = append(toInsert, tx)
		case HasFieldsToUpdate(stored, tx):
			toUpdate = append(toUpdate, MergeTransaction(stored, tx))
		default:
			counts.Skipped++
		}
	}

	// Append-only consumers rely on insertion order being chronological.
	sort.SliceStable(toInsert, func(i, j int) bool {
		return toInsert[i].Date.Before(toInsert[j].Date)
	})

	if len(toInsert) > 0 {
		if err := r.transactions.SaveMany(ctx, toInsert); err != nil {
			return counts, fmt.Errorf("Process: saving %d new transactions: %w", len(toInsert), err)
		}
		counts.New = len(toInsert)
	}

	if len(toUpdate) > 0 {
		if err := r.transactions.UpdateMany(ctx, toUpdate); err != nil {
			return counts, fmt.Errorf("Process: updating %d transactions: %w", len(toUpdate), err)
		}
		counts.Updated = len(toUpdate)
	}

	r.log.Debug().
		Int("incoming", len(incoming)).
		Int("new", counts.New).
		Int("updated", counts.Updated).
		Int("skipped", counts.Skipped).
		Msg("Resolved transaction batch")

	return counts, nil
}

// collapseDuplicates keeps one transaction per external ID (the last one seen)
// at the position of its first occurrence.
func collapseDuplicates(incoming []domain.Transaction) []*domain.Transaction {
	index := make(map[string]int, len(incoming))
	batch := make([]*domain.Transaction, 0, len(incoming))

	for i := range incoming {
		tx := &incoming[i]
		if pos, seen := index[tx.ExternalID]; seen {
			batch[pos] = tx
			continue
		}
		index[tx.ExternalID] = len(batch)
		batch = append(batch, tx)
	}
	return batch
}

// HasFieldsToUpdate reports whether incoming carries bank data the stored
// transaction lacks. Balance-snapshot fields count when their value changed;
// enrichment and other bank fields count only when newly present.
func HasFieldsToUpdate(existing, incoming *domain.Transaction) bool {
	if refreshed(existing.Balance, incoming.Balance) ||
		refreshed(existing.OperationAmount, incoming.OperationAmount) ||
		refreshed(existing.CounterpartyIBAN, incoming.CounterpartyIBAN) ||
		refreshed(existing.Hold, incoming.Hold) {
		return true
	}

	if newlyPresent(existing.CashbackAmount, incoming.CashbackAmount) ||
		newlyPresent(existing.CommissionRate, incoming.CommissionRate) ||
		newlyPresent(existing.OriginalMCC, incoming.OriginalMCC) ||
		newlyPresent(existing.ReceiptID, incoming.ReceiptID) ||
		newlyPresent(existing.InvoiceID, incoming.InvoiceID) ||
		newlyPresent(existing.CounterEdrpou, incoming.CounterEdrpou) {
		return true
	}

	return newlyPresent(existing.CounterpartyName, incoming.CounterpartyName) ||
		newlyPresent(existing.MCC, incoming.MCC) ||
		newlyPresent(existing.Comment, incoming.Comment)
}

// MergeTransaction combines a stored transaction with a newer bank read.
// Identity and user-entered fields stay as stored; date, amount, description
// and type follow the bank; balance-snapshot fields prefer the incoming value;
// enrichment and other bank fields keep the stored value when set.
func MergeTransaction(existing, incoming *domain.Transaction) *domain.Transaction {
	merged := existing.Clone()

	merged.Date = incoming.Date
	merged.Amount = incoming.Amount
	merged.Description = incoming.Description
	merged.Type = incoming.Type

	merged.Balance = firstSet(incoming.Balance, existing.Balance)
	merged.OperationAmount = firstSet(incoming.OperationAmount, existing.OperationAmount)
	merged.CounterpartyIBAN = firstSet(incoming.CounterpartyIBAN, existing.CounterpartyIBAN)
	merged.Hold = firstSet(incoming.Hold, existing.Hold)

	merged.CashbackAmount = firstSet(existing.CashbackAmount, incoming.CashbackAmount)
	merged.CommissionRate = firstSet(existing.CommissionRate, incoming.CommissionRate)
	merged.OriginalMCC = firstSet(existing.OriginalMCC, incoming.OriginalMCC)
	merged.ReceiptID = firstSet(existing.ReceiptID, incoming.ReceiptID)
	merged.InvoiceID = firstSet(existing.InvoiceID, incoming.InvoiceID)
	merged.CounterEdrpou = firstSet(existing.CounterEdrpou, incoming.CounterEdrpou)

	merged.CounterpartyName = firstSet(existing.CounterpartyName, incoming.CounterpartyName)
	merged.MCC = firstSet(existing.MCC, incoming.MCC)
	merged.Comment = firstSet(existing.Comment, incoming.Comment)

	return merged
}

func refreshed[T comparable](existing, incoming *T) bool {
	if incoming == nil {
		return false
	}
	return existing == nil || *existing != *incoming
}

func newlyPresent[T any](existing, incoming *T) bool {
	return existing == nil && incoming != nil
}

// firstSet returns a copy of the first non-nil pointer.
func firstSet[T any](a, b *T) *T {
	for _, p := range []*T{a, b} {
		if p != nil {
			v := *p
			return &v
		}
	}
	return nil
}
