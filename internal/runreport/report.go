// Package runreport archives sync run summaries as JSON objects.
package runreport

import (
	"errors"
	"path"
	"time"

	"github.com/dvloznov/budget-sync/internal/banksync"
	"github.com/dvloznov/budget-sync/internal/domain"
	"github.com/shopspring/decimal"
)

// Run statuses.
const (
	StatusOK      = "ok"
	StatusPartial = "partial"
	StatusAborted = "aborted"
)

// Report is the archived form of one sync run.
type Report struct {
	RunID      string    `json:"run_id"`
	Status     string    `json:"status"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Duration   string    `json:"duration"`

	Result *banksync.SyncResult `json:"result"`

	// Balances are the stored balances after the run, in major units.
	Balances []Balance `json:"balances,omitempty"`

	// Abort is the error that stopped the run, if any.
	Abort string `json:"abort,omitempty"`
}

// Balance is an account balance rendered as a decimal string.
type Balance struct {
	AccountID string `json:"account_id"`
	Name      string `json:"name"`
	Currency  string `json:"currency"`
	Amount    string `json:"amount"`
}

// New builds a report from a run result. runErr is the error Run returned.
func New(result *banksync.SyncResult, accounts []*domain.Account, runErr error) *Report {
	r := &Report{
		RunID:      result.RunID,
		Status:     StatusOK,
		StartedAt:  result.StartedAt.UTC(),
		FinishedAt: result.FinishedAt.UTC(),
		Duration:   result.FinishedAt.Sub(result.StartedAt).Round(time.Millisecond).String(),
		Result:     result,
	}

	switch {
	case runErr != nil:
		r.Status = StatusAborted
		r.Abort = runErr.Error()
	case result.Failed():
		r.Status = StatusPartial
	}

	for _, acc := range accounts {
		r.Balances = append(r.Balances, Balance{
			AccountID: acc.ExternalID,
			Name:      acc.Name,
			Currency:  acc.Currency,
			Amount:    FormatMinor(acc.Balance),
		})
	}
	return r
}

// ObjectName is where the report is stored: sync-runs/YYYY/MM/DD/<run-id>.json.
func (r *Report) ObjectName() string {
	return path.Join("sync-runs", r.StartedAt.UTC().Format("2006/01/02"), r.RunID+".json")
}

// FormatMinor renders minor units with two decimal places.
func FormatMinor(minor int64) string {
	return decimal.New(minor, -2).StringFixed(2)
}

// ErrNoRunID is returned when a report without a run ID is saved.
var ErrNoRunID = errors.New("runreport: report has no run ID")
