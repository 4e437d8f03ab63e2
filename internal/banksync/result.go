package banksync

import (
	"time"
)

// TransactionSyncCounts tallies resolver outcomes.
type TransactionSyncCounts struct {
	New     int `json:"new"`
	Updated int `json:"updated"`
	Skipped int `json:"skipped"`
}

func (c *TransactionSyncCounts) add(other TransactionSyncCounts) {
	c.New += other.New
	c.Updated += other.Updated
	c.Skipped += other.Skipped
}

// AccountReconcileResult summarises the account phase of a run.
type AccountReconcileResult struct {
	Created   int      `json:"created"`
	Updated   int      `json:"updated"`
	Unchanged int      `json:"unchanged"`
	Errors    []string `json:"errors,omitempty"`
}

// AccountSyncResult is the transaction-phase outcome for one account.
type AccountSyncResult struct {
	AccountID string                `json:"account_id"`
	Counts    TransactionSyncCounts `json:"counts"`
	Error     string                `json:"error,omitempty"`
}

// SyncResult is the summary of a whole run. Operational failures show up in
// Errors rather than as a returned error.
type SyncResult struct {
	RunID      string    `json:"run_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	AccountsCreated   int `json:"accounts_created"`
	AccountsUpdated   int `json:"accounts_updated"`
	AccountsUnchanged int `json:"accounts_unchanged"`

	TransactionsNew     int `json:"transactions_new"`
	TransactionsUpdated int `json:"transactions_updated"`
	TransactionsSkipped int `json:"transactions_skipped"`

	Accounts []AccountSyncResult `json:"accounts"`
	Errors   []string            `json:"errors"`
}

// Failed reports whether any error was recorded.
func (r *SyncResult) Failed() bool {
	return len(r.Errors) > 0
}

func (r *SyncResult) applyReconcile(ar AccountReconcileResult) {
	r.AccountsCreated += ar.Created
	r.AccountsUpdated += ar.Updated
	r.AccountsUnchanged += ar.Unchanged
	r.Errors = append(r.Errors, ar.Errors...)
}

func (r *SyncResult) applyAccount(as AccountSyncResult) {
	r.TransactionsNew += as.Counts.New
	r.TransactionsUpdated += as.Counts.Updated
	r.TransactionsSkipped += as.Counts.Skipped
	r.Accounts = append(r.Accounts, as)
	if as.Error != "" {
		r.Errors = append(r.Errors, "account "+as.AccountID+": "+as.Error)
	}
}
