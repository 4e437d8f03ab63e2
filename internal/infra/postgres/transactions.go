package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dvloznov/budget-sync/internal/domain"
	"github.com/dvloznov/budget-sync/internal/repository"
	"github.com/jackc/pgx/v5"
)

// bankColumns are written on every sync. userColumns follow them and are
// written on insert only, so user edits survive bank refreshes.
var (
	bankColumns = []string{
		"external_id", "account_id", "transaction_ts", "amount", "currency", "direction", "description",
		"balance", "operation_amount", "counterparty_iban", "hold",
		"cashback_amount", "commission_rate", "original_mcc", "receipt_id", "invoice_id", "counter_edrpou",
		"counterparty_name", "mcc", "comment",
	}
	userColumns = []string{"category", "budget", "tags", "notes"}

	// transactionColumns is the column order shared by inserts, reads and argument lists.
	transactionColumns = append(append([]string{}, bankColumns...), userColumns...)
)

type transactionRecord struct {
	ExternalID  string    `db:"external_id"`
	AccountID   string    `db:"account_id"`
	Timestamp   time.Time `db:"transaction_ts"`
	Amount      int64     `db:"amount"`
	Currency    string    `db:"currency"`
	Direction   string    `db:"direction"`
	Description string    `db:"description"`

	Balance          *int64  `db:"balance"`
	OperationAmount  *int64  `db:"operation_amount"`
	CounterpartyIBAN *string `db:"counterparty_iban"`
	Hold             *bool   `db:"hold"`

	CashbackAmount *int64  `db:"cashback_amount"`
	CommissionRate *int64  `db:"commission_rate"`
	OriginalMCC    *int32  `db:"original_mcc"`
	ReceiptID      *string `db:"receipt_id"`
	InvoiceID      *string `db:"invoice_id"`
	CounterEdrpou  *string `db:"counter_edrpou"`

	CounterpartyName *string `db:"counterparty_name"`
	MCC              *int32  `db:"mcc"`
	Comment          *string `db:"comment"`

	Category string   `db:"category"`
	Budget   string   `db:"budget"`
	Tags     []string `db:"tags"`
	Notes    *string  `db:"notes"`
}

func (r transactionRecord) toDomain() *domain.Transaction {
	tx := &domain.Transaction{
		ExternalID:       r.ExternalID,
		AccountID:        r.AccountID,
		Date:             r.Timestamp.UTC(),
		Amount:           r.Amount,
		Currency:         r.Currency,
		Type:             domain.TransactionType(r.Direction),
		Description:      r.Description,
		Balance:          r.Balance,
		OperationAmount:  r.OperationAmount,
		CounterpartyIBAN: r.CounterpartyIBAN,
		Hold:             r.Hold,
		CashbackAmount:   r.CashbackAmount,
		CommissionRate:   r.CommissionRate,
		OriginalMCC:      fromInt32(r.OriginalMCC),
		ReceiptID:        r.ReceiptID,
		InvoiceID:        r.InvoiceID,
		CounterEdrpou:    r.CounterEdrpou,
		CounterpartyName: r.CounterpartyName,
		MCC:              fromInt32(r.MCC),
		Comment:          r.Comment,
		Category:         r.Category,
		Budget:           r.Budget,
		Notes:            r.Notes,
	}
	if len(r.Tags) > 0 {
		tx.Tags = r.Tags
	}
	return tx
}

// transactionArgs lists a transaction's values in transactionColumns order.
func transactionArgs(tx *domain.Transaction) []any {
	return []any{
		tx.ExternalID, tx.AccountID, tx.Date.UTC(), tx.Amount, tx.Currency, string(tx.Type), tx.Description,
		tx.Balance, tx.OperationAmount, tx.CounterpartyIBAN, tx.Hold,
		tx.CashbackAmount, tx.CommissionRate, toInt32(tx.OriginalMCC), tx.ReceiptID, tx.InvoiceID, tx.CounterEdrpou,
		tx.CounterpartyName, toInt32(tx.MCC), tx.Comment,
		tx.Category, tx.Budget, nonNil(tx.Tags), tx.Notes,
	}
}

var (
	insertTransactionSQL = buildInsertTransaction()
	updateTransactionSQL = buildUpdateTransaction()
	selectTransactionSQL = "SELECT " + strings.Join(transactionColumns, ", ") + " FROM transactions WHERE external_id = ANY($1)"
)

func buildInsertTransaction() string {
	refs := make([]string, len(transactionColumns))
	for i := range transactionColumns {
		refs[i] = fmt.Sprintf("$%d", i+1)
	}
	return fmt.Sprintf("INSERT INTO transactions (%s) VALUES (%s)",
		strings.Join(transactionColumns, ", "), strings.Join(refs, ", "))
}

// bankArgs lists the values for updateTransactionSQL.
func bankArgs(tx *domain.Transaction) []any {
	return transactionArgs(tx)[:len(bankColumns)]
}

// buildUpdateTransaction keys on $1 and overwrites the other bank columns.
func buildUpdateTransaction() string {
	sets := make([]string, 0, len(bankColumns))
	for i, col := range bankColumns[1:] {
		sets = append(sets, fmt.Sprintf("%s = $%d", col, i+2))
	}
	sets = append(sets, "updated_at = now()")
	return fmt.Sprintf("UPDATE transactions SET %s WHERE external_id = $1", strings.Join(sets, ", "))
}

// FindByExternalIDs implements repository.TransactionRepository.
func (s *Store) FindByExternalIDs(ctx context.Context, externalIDs []string) (map[string]*domain.Transaction, error) {
	found := make(map[string]*domain.Transaction, len(externalIDs))
	if len(externalIDs) == 0 {
		return found, nil
	}

	rows, err := s.db.Query(ctx, selectTransactionSQL, externalIDs)
	if err != nil {
		return nil, fmt.Errorf("FindByExternalIDs: %w", err)
	}
	records, err := pgx.CollectRows(rows, pgx.RowToStructByName[transactionRecord])
	if err != nil {
		return nil, fmt.Errorf("FindByExternalIDs: scanning: %w", err)
	}

	for _, r := range records {
		found[r.ExternalID] = r.toDomain()
	}
	return found, nil
}

// SaveMany implements repository.TransactionRepository.
// The whole batch is inserted in one transaction.
func (s *Store) SaveMany(ctx context.Context, txs []*domain.Transaction) error {
	if len(txs) == 0 {
		return nil
	}
	if err := s.inTx(ctx, insertTransactionSQL, transactionArgs, txs, nil); err != nil {
		return fmt.Errorf("SaveMany: %w", err)
	}
	return nil
}

// UpdateMany implements repository.TransactionRepository.
// User columns are left as stored. A transaction missing from the table rolls the whole batch back.
func (s *Store) UpdateMany(ctx context.Context, txs []*domain.Transaction) error {
	if len(txs) == 0 {
		return nil
	}
	requireRow := func(tx *domain.Transaction, affected int64) error {
		if affected != 1 {
			return repository.MissingRow("transaction", tx.ExternalID)
		}
		return nil
	}
	if err := s.inTx(ctx, updateTransactionSQL, bankArgs, txs, requireRow); err != nil {
		return fmt.Errorf("UpdateMany: %w", err)
	}
	return nil
}

// inTx queues one statement per transaction in a batch and commits only if all succeed.
func (s *Store) inTx(ctx context.Context, sql string, args func(*domain.Transaction) []any, txs []*domain.Transaction, check func(*domain.Transaction, int64) error) error {
	dbTx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer dbTx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, tx := range txs {
		batch.Queue(sql, args(tx)...)
	}

	results := dbTx.SendBatch(ctx, batch)
	for _, tx := range txs {
		tag, err := results.Exec()
		if err != nil {
			results.Close()
			return fmt.Errorf("transaction %s: %w", tx.ExternalID, err)
		}
		if check != nil {
			if err := check(tx, tag.RowsAffected()); err != nil {
				results.Close()
				return err
			}
		}
	}
	if err := results.Close(); err != nil {
		return fmt.Errorf("closing batch: %w", err)
	}

	if err := dbTx.Commit(ctx); err != nil {
		return fmt.Errorf("committing: %w", err)
	}
	return nil
}

func toInt32(p *int) *int32 {
	if p == nil {
		return nil
	}
	v := int32(*p)
	return &v
}

func fromInt32(p *int32) *int {
	if p == nil {
		return nil
	}
	v := int(*p)
	return &v
}
