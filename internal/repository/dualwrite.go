package repository

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/dvloznov/budget-sync/internal/domain"
	"github.com/rs/zerolog"
)

// MirrorError describes a mirror write that failed after the primary write
// committed. It is reported, never propagated.
type MirrorError struct {
	Op  string
	Err error
}

// Error implements error.
func (e *MirrorError) Error() string {
	return fmt.Sprintf("mirror %s: %v", e.Op, e.Err)
}

func (e *MirrorError) Unwrap() error {
	return e.Err
}

// mirrorWriter runs mirror writes after successful primary writes and records drift.
type mirrorWriter struct {
	log      zerolog.Logger
	failures atomic.Int64
}

// write executes fn against the mirror. A failure is logged as a warning and
// returned as a value for the caller to discard.
func (m *mirrorWriter) write(op string, fn func() error) *MirrorError {
	if err := fn(); err != nil {
		m.failures.Add(1)
		m.log.Warn().Err(err).Str("op", op).Msg("Mirror write failed, primary write kept")
		return &MirrorError{Op: op, Err: err}
	}
	return nil
}

// DualWriteAccounts reads from the primary account store and writes to the
// primary first, then best-effort to the mirror.
type DualWriteAccounts struct {
	primary AccountRepository
	mirror  AccountRepository
	mw      *mirrorWriter
}

// NewDualWriteAccounts wraps primary and mirror account repositories.
func NewDualWriteAccounts(primary, mirror AccountRepository, log zerolog.Logger) *DualWriteAccounts {
	return &DualWriteAccounts{
		primary: primary,
		mirror:  mirror,
		mw:      &mirrorWriter{log: log.With().Str("repository", "accounts").Logger()},
	}
}

// MirrorFailures returns how many mirror writes have been dropped.
func (d *DualWriteAccounts) MirrorFailures() int64 {
	return d.mw.failures.Load()
}

// FindByExternalID implements AccountRepository. Reads use the primary only.
func (d *DualWriteAccounts) FindByExternalID(ctx context.Context, externalID string) (*domain.Account, error) {
	return d.primary.FindByExternalID(ctx, externalID)
}

// FindByIBAN implements AccountRepository.
func (d *DualWriteAccounts) FindByIBAN(ctx context.Context, iban string) (*domain.Account, error) {
	return d.primary.FindByIBAN(ctx, iban)
}

// FindByBank implements AccountRepository.
func (d *DualWriteAccounts) FindByBank(ctx context.Context, bank string) ([]*domain.Account, error) {
	return d.primary.FindByBank(ctx, bank)
}

// Save implements AccountRepository.
func (d *DualWriteAccounts) Save(ctx context.Context, account *domain.Account) error {
	if err := d.primary.Save(ctx, account); err != nil {
		return err
	}
	_ = d.mw.write("account.save", func() error { return d.mirror.Save(ctx, account) })
	return nil
}

// Update implements AccountRepository.
func (d *DualWriteAccounts) Update(ctx context.Context, account *domain.Account) error {
	if err := d.primary.Update(ctx, account); err != nil {
		return err
	}
	_ = d.mw.write("account.update", func() error { return d.mirror.Update(ctx, account) })
	return nil
}

// Relink implements AccountRepository.
func (d *DualWriteAccounts) Relink(ctx context.Context, oldExternalID string, account *domain.Account) error {
	if err := d.primary.Relink(ctx, oldExternalID, account); err != nil {
		return err
	}
	_ = d.mw.write("account.relink", func() error { return d.mirror.Relink(ctx, oldExternalID, account) })
	return nil
}

// UpdateLastSyncTime implements AccountRepository.
func (d *DualWriteAccounts) UpdateLastSyncTime(ctx context.Context, externalID string, syncTime time.Time) error {
	if err := d.primary.UpdateLastSyncTime(ctx, externalID, syncTime); err != nil {
		return err
	}
	_ = d.mw.write("account.update_last_sync_time", func() error {
		return d.mirror.UpdateLastSyncTime(ctx, externalID, syncTime)
	})
	return nil
}

// UpdateBalance implements AccountRepository.
func (d *DualWriteAccounts) UpdateBalance(ctx context.Context, externalID string, balance int64) error {
	if err := d.primary.UpdateBalance(ctx, externalID, balance); err != nil {
		return err
	}
	_ = d.mw.write("account.update_balance", func() error {
		return d.mirror.UpdateBalance(ctx, externalID, balance)
	})
	return nil
}

// DualWriteTransactions is the transaction counterpart of DualWriteAccounts.
type DualWriteTransactions struct {
	primary TransactionRepository
	mirror  TransactionRepository
	mw      *mirrorWriter
}

// NewDualWriteTransactions wraps primary and mirror transaction repositories.
func NewDualWriteTransactions(primary, mirror TransactionRepository, log zerolog.Logger) *DualWriteTransactions {
	return &DualWriteTransactions{
		primary: primary,
		mirror:  mirror,
		mw:      &mirrorWriter{log: log.With().Str("repository", "transactions").Logger()},
	}
}

// MirrorFailures returns how many mirror writes have been dropped.
func (d *DualWriteTransactions) MirrorFailures() int64 {
	return d.mw.failures.Load()
}

// FindByExternalIDs implements TransactionRepository. Reads use the primary only.
func (d *DualWriteTransactions) FindByExternalIDs(ctx context.Context, externalIDs []string) (map[string]*domain.Transaction, error) {
	return d.primary.FindByExternalIDs(ctx, externalIDs)
}

// SaveMany implements TransactionRepository.
func (d *DualWriteTransactions) SaveMany(ctx context.Context, txs []*domain.Transaction) error {
	if err := d.primary.SaveMany(ctx, txs); err != nil {
		return err
	}
	_ = d.mw.write("transaction.save_many", func() error { return d.mirror.SaveMany(ctx, txs) })
	return nil
}

// UpdateMany implements TransactionRepository.
func (d *DualWriteTransactions) UpdateMany(ctx context.Context, txs []*domain.Transaction) error {
	if err := d.primary.UpdateMany(ctx, txs); err != nil {
		return err
	}
	_ = d.mw.write("transaction.update_many", func() error { return d.mirror.UpdateMany(ctx, txs) })
	return nil
}

// Ensure the wrappers implement the repository interfaces.
var _ AccountRepository = (*DualWriteAccounts)(nil)
var _ TransactionRepository = (*DualWriteTransactions)(nil)
