package bigquery

import (
	"math/big"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/dvloznov/budget-sync/internal/domain"
	"github.com/shopspring/decimal"
)

// AccountRow mirrors the accounts table.
type AccountRow struct {
	ExternalID string `bigquery:"external_id"` // REQUIRED

	IBAN        bigquery.NullString `bigquery:"iban"`         // NULLABLE
	Name        string              `bigquery:"name"`         // REQUIRED
	Currency    string              `bigquery:"currency"`     // REQUIRED
	Balance     int64               `bigquery:"balance"`      // REQUIRED, minor units
	CreditLimit bigquery.NullInt64  `bigquery:"credit_limit"` // NULLABLE, minor units
	AccountType string              `bigquery:"account_type"` // REQUIRED
	MaskedPAN   []string            `bigquery:"masked_pan"`   // REPEATED
	Bank        string              `bigquery:"bank"`         // REQUIRED

	LastSyncTime bigquery.NullTimestamp `bigquery:"last_sync_time"` // NULLABLE
	CreatedTS    time.Time              `bigquery:"created_ts"`     // REQUIRED
	UpdatedTS    bigquery.NullTimestamp `bigquery:"updated_ts"`     // NULLABLE
}

// TransactionRow mirrors the transactions table, partitioned on transaction_date.
type TransactionRow struct {
	ExternalID string `bigquery:"external_id"` // REQUIRED
	AccountID  string `bigquery:"account_id"`  // REQUIRED

	TransactionTS   time.Time  `bigquery:"transaction_ts"`   // REQUIRED
	TransactionDate civil.Date `bigquery:"transaction_date"` // REQUIRED, UTC date of transaction_ts

	AmountMinor int64    `bigquery:"amount_minor"` // REQUIRED
	Amount      *big.Rat `bigquery:"amount"`       // REQUIRED NUMERIC, major units
	Currency    string   `bigquery:"currency"`     // REQUIRED
	Direction   string   `bigquery:"direction"`    // REQUIRED, credit/debit
	Description string   `bigquery:"description"`  // REQUIRED

	Balance          bigquery.NullInt64  `bigquery:"balance"`           // NULLABLE
	OperationAmount  bigquery.NullInt64  `bigquery:"operation_amount"`  // NULLABLE
	CounterpartyIBAN bigquery.NullString `bigquery:"counterparty_iban"` // NULLABLE
	Hold             bigquery.NullBool   `bigquery:"hold"`              // NULLABLE

	CashbackAmount bigquery.NullInt64  `bigquery:"cashback_amount"` // NULLABLE
	CommissionRate bigquery.NullInt64  `bigquery:"commission_rate"` // NULLABLE
	OriginalMCC    bigquery.NullInt64  `bigquery:"original_mcc"`    // NULLABLE
	ReceiptID      bigquery.NullString `bigquery:"receipt_id"`      // NULLABLE
	InvoiceID      bigquery.NullString `bigquery:"invoice_id"`      // NULLABLE
	CounterEdrpou  bigquery.NullString `bigquery:"counter_edrpou"`  // NULLABLE

	CounterpartyName bigquery.NullString `bigquery:"counterparty_name"` // NULLABLE
	MCC              bigquery.NullInt64  `bigquery:"mcc"`               // NULLABLE
	Comment          bigquery.NullString `bigquery:"comment"`           // NULLABLE

	Category bigquery.NullString `bigquery:"category"` // NULLABLE
	Budget   bigquery.NullString `bigquery:"budget"`   // NULLABLE
	Tags     []string            `bigquery:"tags"`     // REPEATED
	Notes    bigquery.NullString `bigquery:"notes"`    // NULLABLE

	CreatedTS time.Time              `bigquery:"created_ts"` // REQUIRED
	UpdatedTS bigquery.NullTimestamp `bigquery:"updated_ts"` // NULLABLE
}

const accountColumns = `external_id, iban, name, currency, balance, credit_limit, account_type,
	masked_pan, bank, last_sync_time, created_ts, updated_ts`

const transactionColumns = `external_id, account_id, transaction_ts, transaction_date,
	amount_minor, amount, currency, direction, description,
	balance, operation_amount, counterparty_iban, hold,
	cashback_amount, commission_rate, original_mcc, receipt_id, invoice_id, counter_edrpou,
	counterparty_name, mcc, comment, category, budget, tags, notes, created_ts, updated_ts`

// NewAccountRow converts a domain account to its table row.
func NewAccountRow(acc *domain.Account, now time.Time) *AccountRow {
	return &AccountRow{
		ExternalID:   acc.ExternalID,
		IBAN:         nullString(acc.IBAN),
		Name:         acc.Name,
		Currency:     acc.Currency,
		Balance:      acc.Balance,
		CreditLimit:  nullInt64(acc.CreditLimit),
		AccountType:  acc.Type,
		MaskedPAN:    nonNil(acc.MaskedPAN),
		Bank:         acc.Bank,
		LastSyncTime: nullTimestamp(acc.LastSyncTime),
		CreatedTS:    now,
		UpdatedTS:    bigquery.NullTimestamp{Timestamp: now, Valid: true},
	}
}

// ToDomain converts the row back to a domain account.
func (r *AccountRow) ToDomain() *domain.Account {
	acc := &domain.Account{
		ExternalID:   r.ExternalID,
		IBAN:         stringPtr(r.IBAN),
		Name:         r.Name,
		Currency:     r.Currency,
		Balance:      r.Balance,
		CreditLimit:  int64Ptr(r.CreditLimit),
		Type:         r.AccountType,
		Bank:         r.Bank,
		LastSyncTime: timePtr(r.LastSyncTime),
	}
	if len(r.MaskedPAN) > 0 {
		acc.MaskedPAN = append([]string(nil), r.MaskedPAN...)
	}
	return acc
}

func (r *AccountRow) params() []bigquery.QueryParameter {
	return []bigquery.QueryParameter{
		{Name: "external_id", Value: r.ExternalID},
		{Name: "iban", Value: r.IBAN},
		{Name: "name", Value: r.Name},
		{Name: "currency", Value: r.Currency},
		{Name: "balance", Value: r.Balance},
		{Name: "credit_limit", Value: r.CreditLimit},
		{Name: "account_type", Value: r.AccountType},
		{Name: "masked_pan", Value: r.MaskedPAN},
		{Name: "bank", Value: r.Bank},
		{Name: "last_sync_time", Value: r.LastSyncTime},
		{Name: "created_ts", Value: r.CreatedTS},
		{Name: "updated_ts", Value: r.UpdatedTS},
	}
}

// NewTransactionRow converts a domain transaction to its table row.
func NewTransactionRow(tx *domain.Transaction, now time.Time) *TransactionRow {
	ts := tx.Date.UTC()
	return &TransactionRow{
		ExternalID:       tx.ExternalID,
		AccountID:        tx.AccountID,
		TransactionTS:    ts,
		TransactionDate:  civil.DateOf(ts),
		AmountMinor:      tx.Amount,
		Amount:           decimal.New(tx.Amount, -2).Rat(),
		Currency:         tx.Currency,
		Direction:        string(tx.Type),
		Description:      tx.Description,
		Balance:          nullInt64(tx.Balance),
		OperationAmount:  nullInt64(tx.OperationAmount),
		CounterpartyIBAN: nullString(tx.CounterpartyIBAN),
		Hold:             nullBool(tx.Hold),
		CashbackAmount:   nullInt64(tx.CashbackAmount),
		CommissionRate:   nullInt64(tx.CommissionRate),
		OriginalMCC:      nullInt(tx.OriginalMCC),
		ReceiptID:        nullString(tx.ReceiptID),
		InvoiceID:        nullString(tx.InvoiceID),
		CounterEdrpou:    nullString(tx.CounterEdrpou),
		CounterpartyName: nullString(tx.CounterpartyName),
		MCC:              nullInt(tx.MCC),
		Comment:          nullString(tx.Comment),
		Category:         nullStringValue(tx.Category),
		Budget:           nullStringValue(tx.Budget),
		Tags:             nonNil(tx.Tags),
		Notes:            nullString(tx.Notes),
		CreatedTS:        now,
		UpdatedTS:        bigquery.NullTimestamp{Timestamp: now, Valid: true},
	}
}

// ToDomain converts the row back to a domain transaction.
func (r *TransactionRow) ToDomain() *domain.Transaction {
	tx := &domain.Transaction{
		ExternalID:       r.ExternalID,
		AccountID:        r.AccountID,
		Date:             r.TransactionTS.UTC(),
		Amount:           r.AmountMinor,
		Currency:         r.Currency,
		Type:             domain.TransactionType(r.Direction),
		Description:      r.Description,
		Balance:          int64Ptr(r.Balance),
		OperationAmount:  int64Ptr(r.OperationAmount),
		CounterpartyIBAN: stringPtr(r.CounterpartyIBAN),
		CashbackAmount:   int64Ptr(r.CashbackAmount),
		CommissionRate:   int64Ptr(r.CommissionRate),
		OriginalMCC:      intPtr(r.OriginalMCC),
		ReceiptID:        stringPtr(r.ReceiptID),
		InvoiceID:        stringPtr(r.InvoiceID),
		CounterEdrpou:    stringPtr(r.CounterEdrpou),
		CounterpartyName: stringPtr(r.CounterpartyName),
		MCC:              intPtr(r.MCC),
		Comment:          stringPtr(r.Comment),
		Category:         r.Category.StringVal,
		Budget:           r.Budget.StringVal,
		Notes:            stringPtr(r.Notes),
	}
	if r.Hold.Valid {
		tx.Hold = domain.Ptr(r.Hold.Bool)
	}
	if len(r.Tags) > 0 {
		tx.Tags = append([]string(nil), r.Tags...)
	}
	return tx
}

func (r *TransactionRow) params() []bigquery.QueryParameter {
	return []bigquery.QueryParameter{
		{Name: "external_id", Value: r.ExternalID},
		{Name: "account_id", Value: r.AccountID},
		{Name: "transaction_ts", Value: r.TransactionTS},
		{Name: "transaction_date", Value: r.TransactionDate},
		{Name: "amount_minor", Value: r.AmountMinor},
		{Name: "amount", Value: r.Amount},
		{Name: "currency", Value: r.Currency},
		{Name: "direction", Value: r.Direction},
		{Name: "description", Value: r.Description},
		{Name: "balance", Value: r.Balance},
		{Name: "operation_amount", Value: r.OperationAmount},
		{Name: "counterparty_iban", Value: r.CounterpartyIBAN},
		{Name: "hold", Value: r.Hold},
		{Name: "cashback_amount", Value: r.CashbackAmount},
		{Name: "commission_rate", Value: r.CommissionRate},
		{Name: "original_mcc", Value: r.OriginalMCC},
		{Name: "receipt_id", Value: r.ReceiptID},
		{Name: "invoice_id", Value: r.InvoiceID},
		{Name: "counter_edrpou", Value: r.CounterEdrpou},
		{Name: "counterparty_name", Value: r.CounterpartyName},
		{Name: "mcc", Value: r.MCC},
		{Name: "comment", Value: r.Comment},
		{Name: "category", Value: r.Category},
		{Name: "budget", Value: r.Budget},
		{Name: "tags", Value: r.Tags},
		{Name: "notes", Value: r.Notes},
		{Name: "created_ts", Value: r.CreatedTS},
		{Name: "updated_ts", Value: r.UpdatedTS},
	}
}

func nullString(p *string) bigquery.NullString {
	if p == nil {
		return bigquery.NullString{}
	}
	return bigquery.NullString{StringVal: *p, Valid: true}
}

func nullStringValue(s string) bigquery.NullString {
	return bigquery.NullString{StringVal: s, Valid: s != ""}
}

func nullInt64(p *int64) bigquery.NullInt64 {
	if p == nil {
		return bigquery.NullInt64{}
	}
	return bigquery.NullInt64{Int64: *p, Valid: true}
}

func nullInt(p *int) bigquery.NullInt64 {
	if p == nil {
		return bigquery.NullInt64{}
	}
	return bigquery.NullInt64{Int64: int64(*p), Valid: true}
}

func nullBool(p *bool) bigquery.NullBool {
	if p == nil {
		return bigquery.NullBool{}
	}
	return bigquery.NullBool{Bool: *p, Valid: true}
}

func nullTimestamp(p *time.Time) bigquery.NullTimestamp {
	if p == nil {
		return bigquery.NullTimestamp{}
	}
	return bigquery.NullTimestamp{Timestamp: p.UTC(), Valid: true}
}

func stringPtr(v bigquery.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.StringVal
	return &s
}

func int64Ptr(v bigquery.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}

func intPtr(v bigquery.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}

func timePtr(v bigquery.NullTimestamp) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Timestamp.UTC()
	return &t
}

// nonNil keeps REPEATED parameters typed as ARRAY<STRING> when empty.
func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return append([]string(nil), s...)
}
