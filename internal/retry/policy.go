package retry

import "time"

// Policy decides how many attempts a request gets and how long to wait
// between them.
type Policy struct {
	// MaxAttempts is the total number of attempts. Zero means unlimited.
	MaxAttempts int

	// Delay is the fixed wait between attempts.
	Delay time.Duration
}

// Forever retries transient failures without limit.
func Forever(delay time.Duration) Policy {
	return Policy{Delay: delay}
}

// UpTo allows at most n attempts in total.
func UpTo(n int, delay time.Duration) Policy {
	if n < 1 {
		n = 1
	}
	return Policy{MaxAttempts: n, Delay: delay}
}

// NoRetry makes a single attempt.
func NoRetry() Policy {
	return Policy{MaxAttempts: 1}
}

// exhausted reports whether no attempt is left after attempt number n.
func (p Policy) exhausted(n int) bool {
	return p.MaxAttempts > 0 && n >= p.MaxAttempts
}
