// Package bank defines the contract for reading account and transaction state
// from an external bank API.
package bank

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dvloznov/budget-sync/internal/domain"
)

// ErrRateLimited is returned (possibly wrapped) when the bank rejects a request
// because its rate limit was exceeded. It is the only error callers retry.
var ErrRateLimited = errors.New("bank: rate limit exceeded")

// Gateway reads accounts and transactions from a bank.
type Gateway interface {
	// GetAccounts returns every account visible to the configured credentials.
	GetAccounts(ctx context.Context) ([]domain.Account, error)

	// GetTransactions returns transactions for one account within [from, to].
	// Callers must keep the window within the bank's maximum query span.
	GetTransactions(ctx context.Context, accountExternalID string, from, to time.Time) ([]domain.Transaction, error)
}

// APIError represents a non rate-limit failure reported by the bank API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("bank API error: %s (status=%d)", e.Message, e.StatusCode)
}

// IsRateLimited reports whether err signals a rate-limit rejection.
func IsRateLimited(err error) bool {
	return errors.Is(err, ErrRateLimited)
}
