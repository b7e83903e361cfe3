package retry

import (
	"time"
)

// DefaultBackoffSeconds is the base delay between replay attempts.
const DefaultBackoffSeconds = 60

// DefaultMaxAttempts is how many replay attempts an entry gets before it
// is exhausted.
const DefaultMaxAttempts = 5

// ComputeNextRetryAt returns when the given attempt should run, using
// exponential backoff: now + backoffSeconds * 2^(attempt-1). Attempt 1 is
// one base interval out, attempt 2 two, attempt 3 four. Pure function; the
// caller supplies now.
func ComputeNextRetryAt(attempt, backoffSeconds int, now time.Time) time.Time {
	if attempt < 1 {
		attempt = 1
	}
	delay := time.Duration(backoffSeconds) * time.Second * (1 << (attempt - 1))
	return now.Add(delay)
}
