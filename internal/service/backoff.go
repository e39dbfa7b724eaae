package service

import "time"

// maxBackoff caps the exponential retry delay.
const maxBackoff = time.Hour

// RetryDelay computes the wait before retry number attemptNumber as
// base * 2^(attemptNumber-1), capped at maxBackoff. It is the only place
// backoff is computed, so the monotone-growth property holds pipeline-wide.
func RetryDelay(base time.Duration, attemptNumber int) time.Duration {
	if base <= 0 {
		base = 5 * time.Second
	}
	if attemptNumber < 1 {
		attemptNumber = 1
	}

	delay := base
	for i := 1; i < attemptNumber; i++ {
		delay *= 2
		if delay >= maxBackoff {
			return maxBackoff
		}
	}

	if delay > maxBackoff {
		return maxBackoff
	}
	return delay
}
