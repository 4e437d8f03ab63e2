// Package repository defines persistence contracts for mirrored bank data and
// the dual-write wrapper that keeps a secondary mirror in step with the primary store.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/dvloznov/budget-sync/internal/domain"
)

var (
	// ErrNotFound is returned when a row that an operation targets does not exist.
	ErrNotFound = errors.New("repository: not found")

	// ErrInvariantViolation marks store results that contradict an invariant the
	// caller relies on, such as an update touching no rows. These are defects,
	// not operational failures.
	ErrInvariantViolation = errors.New("repository: invariant violation")
)

// AccountRepository provides account persistence.
// Accounts are addressed by their bank external ID.
type AccountRepository interface {
	// FindByExternalID returns the account or nil when absent.
	FindByExternalID(ctx context.Context, externalID string) (*domain.Account, error)

	// FindByIBAN returns the account or nil when absent.
	FindByIBAN(ctx context.Context, iban string) (*domain.Account, error)

	// FindByBank returns all accounts tagged with bank, in a stable order.
	FindByBank(ctx context.Context, bank string) ([]*domain.Account, error)

	// Save inserts a new account.
	Save(ctx context.Context, account *domain.Account) error

	// Update replaces the stored bank fields of an existing account.
	Update(ctx context.Context, account *domain.Account) error

	// Relink moves the account stored under oldExternalID to account.ExternalID
	// and replaces its bank fields. The stored sync cursor is kept. Stores that
	// hold transactions move the account's transactions to the new ID as well.
	Relink(ctx context.Context, oldExternalID string, account *domain.Account) error

	// UpdateLastSyncTime sets the sync cursor of an account.
	UpdateLastSyncTime(ctx context.Context, externalID string, syncTime time.Time) error

	// UpdateBalance sets the balance of an account.
	UpdateBalance(ctx context.Context, externalID string, balance int64) error
}

// TransactionRepository provides transaction persistence.
type TransactionRepository interface {
	// FindByExternalIDs returns the stored transactions keyed by external ID.
	// IDs with no stored row are absent from the map.
	FindByExternalIDs(ctx context.Context, externalIDs []string) (map[string]*domain.Transaction, error)

	// SaveMany inserts transactions in the given order.
	SaveMany(ctx context.Context, txs []*domain.Transaction) error

	// UpdateMany replaces the bank fields of stored transactions matched by
	// external ID. User fields (category, budget, tags, notes) are written on
	// insert only and never overwritten here.
	UpdateMany(ctx context.Context, txs []*domain.Transaction) error
}

// MissingRow builds the error returned when an update targets a row that must exist.
func MissingRow(kind, id string) error {
	return &missingRowError{kind: kind, id: id}
}

type missingRowError struct {
	kind string
	id   string
}

func (e *missingRowError) Error() string {
	return "repository: " + e.kind + " " + e.id + " not found"
}

// Is lets callers match either ErrNotFound or ErrInvariantViolation.
func (e *missingRowError) Is(target error) bool {
	return target == ErrNotFound || target == ErrInvariantViolation
}
