package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dvloznov/budget-sync/internal/domain"
	"github.com/dvloznov/budget-sync/internal/repository"
	"github.com/jackc/pgx/v5"
)

const selectAccount = `
	SELECT external_id, iban, name, currency, balance, credit_limit,
	       account_type, masked_pan, bank, last_sync_time
	FROM accounts`

type accountRecord struct {
	ExternalID   string     `db:"external_id"`
	IBAN         *string    `db:"iban"`
	Name         string     `db:"name"`
	Currency     string     `db:"currency"`
	Balance      int64      `db:"balance"`
	CreditLimit  *int64     `db:"credit_limit"`
	AccountType  string     `db:"account_type"`
	MaskedPAN    []string   `db:"masked_pan"`
	Bank         string     `db:"bank"`
	LastSyncTime *time.Time `db:"last_sync_time"`
}

func (r accountRecord) toDomain() *domain.Account {
	acc := &domain.Account{
		ExternalID:  r.ExternalID,
		IBAN:        r.IBAN,
		Name:        r.Name,
		Currency:    r.Currency,
		Balance:     r.Balance,
		CreditLimit: r.CreditLimit,
		Type:        r.AccountType,
		Bank:        r.Bank,
	}
	if len(r.MaskedPAN) > 0 {
		acc.MaskedPAN = r.MaskedPAN
	}
	if r.LastSyncTime != nil {
		t := r.LastSyncTime.UTC()
		acc.LastSyncTime = &t
	}
	return acc
}

func (s *Store) queryAccounts(ctx context.Context, query string, args ...any) ([]*domain.Account, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	records, err := pgx.CollectRows(rows, pgx.RowToStructByName[accountRecord])
	if err != nil {
		return nil, err
	}

	accounts := make([]*domain.Account, 0, len(records))
	for _, r := range records {
		accounts = append(accounts, r.toDomain())
	}
	return accounts, nil
}

func (s *Store) queryAccount(ctx context.Context, query string, args ...any) (*domain.Account, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	record, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[accountRecord])
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return record.toDomain(), nil
}

// FindByExternalID implements repository.AccountRepository.
func (s *Store) FindByExternalID(ctx context.Context, externalID string) (*domain.Account, error) {
	acc, err := s.queryAccount(ctx, selectAccount+` WHERE external_id = $1`, externalID)
	if err != nil {
		return nil, fmt.Errorf("FindByExternalID: %w", err)
	}
	return acc, nil
}

// FindByIBAN implements repository.AccountRepository.
func (s *Store) FindByIBAN(ctx context.Context, iban string) (*domain.Account, error) {
	if iban == "" {
		return nil, nil
	}
	acc, err := s.queryAccount(ctx, selectAccount+` WHERE iban = $1 ORDER BY created_at LIMIT 1`, iban)
	if err != nil {
		return nil, fmt.Errorf("FindByIBAN: %w", err)
	}
	return acc, nil
}

// FindByBank implements repository.AccountRepository.
func (s *Store) FindByBank(ctx context.Context, bank string) ([]*domain.Account, error) {
	accounts, err := s.queryAccounts(ctx, selectAccount+` WHERE bank = $1 ORDER BY created_at, external_id`, bank)
	if err != nil {
		return nil, fmt.Errorf("FindByBank: %w", err)
	}
	return accounts, nil
}

// Save implements repository.AccountRepository.
func (s *Store) Save(ctx context.Context, account *domain.Account) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO accounts (
			external_id, iban, name, currency, balance, credit_limit,
			account_type, masked_pan, bank, last_sync_time
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		account.ExternalID, account.IBAN, account.Name, account.Currency, account.Balance,
		account.CreditLimit, account.Type, nonNil(account.MaskedPAN), account.Bank, account.LastSyncTime,
	)
	if err != nil {
		return fmt.Errorf("Save: %w", err)
	}
	return nil
}

// Update implements repository.AccountRepository.
// The stored sync cursor is left untouched.
func (s *Store) Update(ctx context.Context, account *domain.Account) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE accounts
		SET iban = $2, name = $3, currency = $4, balance = $5, credit_limit = $6,
		    account_type = $7, masked_pan = $8, bank = $9, updated_at = now()
		WHERE external_id = $1`,
		account.ExternalID, account.IBAN, account.Name, account.Currency, account.Balance,
		account.CreditLimit, account.Type, nonNil(account.MaskedPAN), account.Bank,
	)
	if err != nil {
		return fmt.Errorf("Update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("Update: %w", repository.MissingRow("account", account.ExternalID))
	}
	return nil
}

// Relink implements repository.AccountRepository.
// The foreign key cascades the new ID to the account's transactions.
func (s *Store) Relink(ctx context.Context, oldExternalID string, account *domain.Account) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE accounts
		SET external_id = $2, iban = $3, name = $4, currency = $5, balance = $6, credit_limit = $7,
		    account_type = $8, masked_pan = $9, bank = $10, updated_at = now()
		WHERE external_id = $1`,
		oldExternalID, account.ExternalID, account.IBAN, account.Name, account.Currency, account.Balance,
		account.CreditLimit, account.Type, nonNil(account.MaskedPAN), account.Bank,
	)
	if err != nil {
		return fmt.Errorf("Relink: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("Relink: %w", repository.MissingRow("account", oldExternalID))
	}
	return nil
}

// UpdateLastSyncTime implements repository.AccountRepository.
// GREATEST skips NULL, so the first cursor is stored as given and later ones never regress.
func (s *Store) UpdateLastSyncTime(ctx context.Context, externalID string, syncTime time.Time) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE accounts
		SET last_sync_time = GREATEST(last_sync_time, $2), updated_at = now()
		WHERE external_id = $1`,
		externalID, syncTime.UTC(),
	)
	if err != nil {
		return fmt.Errorf("UpdateLastSyncTime: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("UpdateLastSyncTime: %w", repository.MissingRow("account", externalID))
	}
	return nil
}

// UpdateBalance implements repository.AccountRepository.
func (s *Store) UpdateBalance(ctx context.Context, externalID string, balance int64) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE accounts SET balance = $2, updated_at = now()
		WHERE external_id = $1`,
		externalID, balance,
	)
	if err != nil {
		return fmt.Errorf("UpdateBalance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("UpdateBalance: %w", repository.MissingRow("account", externalID))
	}
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// Ensure Store implements the repository interfaces.
var _ repository.AccountRepository = (*Store)(nil)
var _ repository.TransactionRepository = (*Store)(nil)
