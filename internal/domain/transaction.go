package domain

import (
	"time"
)

// TransactionType is the direction of a transaction.
type TransactionType string

const (
	TransactionTypeCredit TransactionType = "credit"
	TransactionTypeDebit  TransactionType = "debit"
)

// TypeForAmount derives the direction from a signed amount.
func TypeForAmount(amount int64) TransactionType {
	if amount < 0 {
		return TransactionTypeDebit
	}
	return TransactionTypeCredit
}

// Transaction is a bank transaction mirrored into the ledger.
// Optional bank fields are pointers; nil means the bank has not reported them.
type Transaction struct {
	ExternalID  string          `json:"external_id"`
	AccountID   string          `json:"account_id"` // owning account's external ID
	Date        time.Time       `json:"date"`
	Amount      int64           `json:"amount"` // minor units
	Currency    string          `json:"currency"`
	Type        TransactionType `json:"type"`
	Description string          `json:"description"`

	// Balance-snapshot fields. Refreshed from every bank read.
	Balance          *int64  `json:"balance,omitempty"`
	OperationAmount  *int64  `json:"operation_amount,omitempty"`
	CounterpartyIBAN *string `json:"counterparty_iban,omitempty"`
	Hold             *bool   `json:"hold,omitempty"`

	// Enrichment fields. Only filled in while missing locally.
	CashbackAmount *int64  `json:"cashback_amount,omitempty"`
	CommissionRate *int64  `json:"commission_rate,omitempty"`
	OriginalMCC    *int    `json:"original_mcc,omitempty"`
	ReceiptID      *string `json:"receipt_id,omitempty"`
	InvoiceID      *string `json:"invoice_id,omitempty"`
	CounterEdrpou  *string `json:"counter_edrpou,omitempty"`

	CounterpartyName *string `json:"counterparty_name,omitempty"`
	MCC              *int    `json:"mcc,omitempty"`
	Comment          *string `json:"comment,omitempty"`

	// User-entered fields, owned by categorization and budgeting.
	Category string   `json:"category,omitempty"`
	Budget   string   `json:"budget,omitempty"`
	Tags     []string `json:"tags,omitempty"`
	Notes    *string  `json:"notes,omitempty"`
}

// Clone returns a deep copy of the transaction.
func (t *Transaction) Clone() *Transaction {
	c := *t
	c.Balance = clonePtr(t.Balance)
	c.OperationAmount = clonePtr(t.OperationAmount)
	c.CounterpartyIBAN = clonePtr(t.CounterpartyIBAN)
	c.Hold = clonePtr(t.Hold)
	c.CashbackAmount = clonePtr(t.CashbackAmount)
	c.CommissionRate = clonePtr(t.CommissionRate)
	c.OriginalMCC = clonePtr(t.OriginalMCC)
	c.ReceiptID = clonePtr(t.ReceiptID)
	c.InvoiceID = clonePtr(t.InvoiceID)
	c.CounterEdrpou = clonePtr(t.CounterEdrpou)
	c.CounterpartyName = clonePtr(t.CounterpartyName)
	c.MCC = clonePtr(t.MCC)
	c.Comment = clonePtr(t.Comment)
	c.Notes = clonePtr(t.Notes)
	if t.Tags != nil {
		c.Tags = append([]string(nil), t.Tags...)
	}
	return &c
}

// Ptr returns a pointer to v. Handy for building optional fields.
func Ptr[T any](v T) *T {
	return &v
}
