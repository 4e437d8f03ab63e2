package banksync

import "time"

// BackoffDelay returns initial * 2^attempt for a 0-based attempt.
// Growth is uncapped; callers bound it through MaxRetries.
func BackoffDelay(attempt int, initial time.Duration) time.Duration {
	if attempt <= 0 {
		return initial
	}
	return initial * time.Duration(int64(1)<<uint(attempt))
}
