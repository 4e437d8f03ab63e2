package banksync

import (
	"context"
	"fmt"
	"time"

	"github.com/dvloznov/budget-sync/internal/bank"
	"github.com/dvloznov/budget-sync/internal/domain"
	"github.com/dvloznov/budget-sync/internal/logger"
)

// SleepFunc blocks for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// FetchWithRetry fetches one window of transactions, retrying only rate-limit
// errors while attempt < maxRetries and sleeping BackoffDelay(attempt) between
// tries. Any other error, or a rate limit after the last retry, is returned.
func FetchWithRetry(ctx context.Context, gateway bank.Gateway, sleep SleepFunc, accountID string, from, to time.Time, maxRetries int, initialBackoff time.Duration) ([]domain.Transaction, error) {
	log := logger.FromContext(ctx)

	for attempt := 0; ; attempt++ {
		txs, err := gateway.GetTransactions(ctx, accountID, from, to)
		if err == nil {
			return txs, nil
		}

		if !bank.IsRateLimited(err) {
			return nil, err
		}
		if attempt >= maxRetries {
			return nil, fmt.Errorf("rate limited after %d retries: %w", maxRetries, err)
		}

		delay := BackoffDelay(attempt, initialBackoff)
		log.Warn().
			Str("account_id", accountID).
			Int("attempt", attempt+1).
			Int("max_retries", maxRetries).
			Dur("backoff", delay).
			Msg("Rate limited, backing off")

		if err := sleep(ctx, delay); err != nil {
			return nil, fmt.Errorf("waiting for backoff: %w", err)
		}
	}
}
