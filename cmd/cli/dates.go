package main

import (
	"fmt"
	"time"
)

// parseDate parses YYYY-MM-DD as midnight UTC.
func parseDate(s string) (time.Time, error) {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parseDate: %q is not YYYY-MM-DD: %w", s, err)
	}
	return t.UTC(), nil
}
