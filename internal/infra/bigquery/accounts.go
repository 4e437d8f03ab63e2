package bigquery

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/budget-sync/internal/domain"
	"github.com/dvloznov/budget-sync/internal/repository"
)

func (s *Store) findAccounts(ctx context.Context, where string, params []bigquery.QueryParameter) ([]*domain.Account, error) {
	sql := fmt.Sprintf(`
		SELECT %s
		FROM %s
		WHERE %s
		ORDER BY created_ts, external_id
	`, accountColumns, s.table(accountsTable), where)

	rows, err := readAll[AccountRow](ctx, s, sql, params)
	if err != nil {
		return nil, err
	}

	accounts := make([]*domain.Account, 0, len(rows))
	for _, r := range rows {
		accounts = append(accounts, r.ToDomain())
	}
	return accounts, nil
}

// FindByExternalID implements repository.AccountRepository.
func (s *Store) FindByExternalID(ctx context.Context, externalID string) (*domain.Account, error) {
	accounts, err := s.findAccounts(ctx, "external_id = @external_id", []bigquery.QueryParameter{
		{Name: "external_id", Value: externalID},
	})
	if err != nil {
		return nil, fmt.Errorf("FindByExternalID: %w", err)
	}
	if len(accounts) == 0 {
		return nil, nil
	}
	return accounts[0], nil
}

// FindByIBAN implements repository.AccountRepository.
func (s *Store) FindByIBAN(ctx context.Context, iban string) (*domain.Account, error) {
	if iban == "" {
		return nil, nil
	}
	accounts, err := s.findAccounts(ctx, "iban = @iban", []bigquery.QueryParameter{
		{Name: "iban", Value: iban},
	})
	if err != nil {
		return nil, fmt.Errorf("FindByIBAN: %w", err)
	}
	if len(accounts) == 0 {
		return nil, nil
	}
	return accounts[0], nil
}

// FindByBank implements repository.AccountRepository.
func (s *Store) FindByBank(ctx context.Context, bank string) ([]*domain.Account, error) {
	accounts, err := s.findAccounts(ctx, "bank = @bank", []bigquery.QueryParameter{
		{Name: "bank", Value: bank},
	})
	if err != nil {
		return nil, fmt.Errorf("FindByBank: %w", err)
	}
	return accounts, nil
}

// Save implements repository.AccountRepository.
func (s *Store) Save(ctx context.Context, account *domain.Account) error {
	row := NewAccountRow(account, time.Now().UTC())
	sql, params := buildInsert(s.table(accountsTable), [][]bigquery.QueryParameter{row.params()})

	if _, err := s.exec(ctx, sql, params); err != nil {
		return fmt.Errorf("Save: %w", err)
	}
	return nil
}

// Update implements repository.AccountRepository.
// The stored sync cursor and creation time are left untouched.
func (s *Store) Update(ctx context.Context, account *domain.Account) error {
	row := NewAccountRow(account, time.Now().UTC())
	sql, params := buildMerge(s.table(accountsTable), "external_id",
		[]string{"created_ts", "last_sync_time"},
		[][]bigquery.QueryParameter{row.params()})

	affected, err := s.exec(ctx, sql, params)
	if err != nil {
		return fmt.Errorf("Update: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("Update: %w", repository.MissingRow("account", account.ExternalID))
	}
	return nil
}

// Relink implements repository.AccountRepository.
// Transactions move first so a failed account rename is retried on the next
// reconcile, which still finds the account by IBAN.
func (s *Store) Relink(ctx context.Context, oldExternalID string, account *domain.Account) error {
	ids := []bigquery.QueryParameter{
		{Name: "old_id", Value: oldExternalID},
		{Name: "new_id", Value: account.ExternalID},
	}

	moveTransactions := fmt.Sprintf(`
		UPDATE %s
		SET account_id = @new_id,
		    updated_ts = CURRENT_TIMESTAMP()
		WHERE account_id = @old_id
	`, s.table(transactionsTable))
	if _, err := s.exec(ctx, moveTransactions, ids); err != nil {
		return fmt.Errorf("Relink: moving transactions: %w", err)
	}

	sets, fields := relinkAssignments(NewAccountRow(account, time.Now().UTC()))
	params := append(ids, fields...)

	renameAccount := fmt.Sprintf(`
		UPDATE %s
		SET external_id = @new_id,
		    %s
		WHERE external_id = @old_id
	`, s.table(accountsTable), strings.Join(sets, ", "))
	affected, err := s.exec(ctx, renameAccount, params)
	if err != nil {
		return fmt.Errorf("Relink: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("Relink: %w", repository.MissingRow("account", oldExternalID))
	}
	return nil
}

// relinkSkip lists account columns Relink leaves as stored or sets itself.
var relinkSkip = map[string]bool{
	"external_id":    true,
	"created_ts":     true,
	"last_sync_time": true,
}

// relinkAssignments renders the SET clauses and parameters for the bank fields of row.
func relinkAssignments(row *AccountRow) ([]string, []bigquery.QueryParameter) {
	var sets []string
	var params []bigquery.QueryParameter
	for _, p := range row.params() {
		if relinkSkip[p.Name] {
			continue
		}
		sets = append(sets, fmt.Sprintf("%s = @%s", p.Name, p.Name))
		params = append(params, p)
	}
	return sets, params
}

// UpdateLastSyncTime implements repository.AccountRepository.
// A cursor earlier than the stored one is ignored.
func (s *Store) UpdateLastSyncTime(ctx context.Context, externalID string, syncTime time.Time) error {
	sql := fmt.Sprintf(`
		UPDATE %s
		SET last_sync_time = GREATEST(COALESCE(last_sync_time, @sync_time), @sync_time),
		    updated_ts = CURRENT_TIMESTAMP()
		WHERE external_id = @external_id
	`, s.table(accountsTable))

	affected, err := s.exec(ctx, sql, []bigquery.QueryParameter{
		{Name: "sync_time", Value: syncTime.UTC()},
		{Name: "external_id", Value: externalID},
	})
	if err != nil {
		return fmt.Errorf("UpdateLastSyncTime: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("UpdateLastSyncTime: %w", repository.MissingRow("account", externalID))
	}
	return nil
}

// UpdateBalance implements repository.AccountRepository.
func (s *Store) UpdateBalance(ctx context.Context, externalID string, balance int64) error {
	sql := fmt.Sprintf(`
		UPDATE %s
		SET balance = @balance,
		    updated_ts = CURRENT_TIMESTAMP()
		WHERE external_id = @external_id
	`, s.table(accountsTable))

	affected, err := s.exec(ctx, sql, []bigquery.QueryParameter{
		{Name: "balance", Value: balance},
		{Name: "external_id", Value: externalID},
	})
	if err != nil {
		return fmt.Errorf("UpdateBalance: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("UpdateBalance: %w", repository.MissingRow("account", externalID))
	}
	return nil
}

// Ensure Store implements the repository interfaces.
var _ repository.AccountRepository = (*Store)(nil)
var _ repository.TransactionRepository = (*Store)(nil)
