package domain

import (
	"time"
)

// BankMonobank is the bank tag stored on accounts mirrored from Monobank.
const BankMonobank = "monobank"

// Account is a bank account mirrored into the ledger.
// ExternalID is the bank-assigned identifier and is unique per bank; IBAN, when
// present, is a secondary match key.
type Account struct {
	ExternalID  string   `json:"external_id"`
	IBAN        *string  `json:"iban,omitempty"`
	Name        string   `json:"name"`
	Currency    string   `json:"currency"`
	Balance     int64    `json:"balance"` // minor units
	CreditLimit *int64   `json:"credit_limit,omitempty"`
	Type        string   `json:"type"`
	MaskedPAN   []string `json:"masked_pan,omitempty"`
	Bank        string   `json:"bank"`

	// LastSyncTime is the instant the last fully successful transaction sync
	// covered. Nil until the first successful pass.
	LastSyncTime *time.Time `json:"last_sync_time,omitempty"`
}

// IBANValue returns the IBAN or an empty string.
func (a *Account) IBANValue() string {
	if a.IBAN == nil {
		return ""
	}
	return *a.IBAN
}

// BankFieldsDiffer reports whether any bank-reported field tracked by account
// reconciliation differs between a and other.
func (a *Account) BankFieldsDiffer(other *Account) bool {
	if a.Balance != other.Balance || a.Name != other.Name || a.Type != other.Type {
		return true
	}
	if a.IBANValue() != other.IBANValue() {
		return true
	}
	if len(a.MaskedPAN) != len(other.MaskedPAN) {
		return true
	}
	for i := range a.MaskedPAN {
		if a.MaskedPAN[i] != other.MaskedPAN[i] {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the account.
func (a *Account) Clone() *Account {
	c := *a
	c.IBAN = clonePtr(a.IBAN)
	c.CreditLimit = clonePtr(a.CreditLimit)
	c.LastSyncTime = clonePtr(a.LastSyncTime)
	if a.MaskedPAN != nil {
		c.MaskedPAN = append([]string(nil), a.MaskedPAN...)
	}
	return &c
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
