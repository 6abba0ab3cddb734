package channel

import "time"

// RetryPolicy controls the reconnect loop. The default reconnects forever
// on a fixed delay.
type RetryPolicy struct {
	// Delay between the connection loss (or failed attempt) and the next
	// attempt. Fixed; no backoff growth.
	Delay time.Duration

	// MaxAttempts bounds consecutive failed attempts. 0 means unbounded.
	MaxAttempts int
}

// DefaultRetryPolicy matches the client's historical behavior.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Delay: 5 * time.Second, MaxAttempts: 0}
}
