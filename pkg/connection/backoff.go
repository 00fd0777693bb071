package connection

import "time"

// UnlimitedRetries disables the retry ceiling of a BackoffPolicy.
const UnlimitedRetries = -1

// BackoffPolicy maps a retry count to the wait before the next reconnect.
// The delay grows linearly by Step and is capped at MaxDelay.
type BackoffPolicy struct {
	// Step is the delay added per prior retry.
	Step time.Duration `json:"step"`
	// MaxDelay caps the delay. Zero or negative means no cap.
	MaxDelay time.Duration `json:"max_delay"`
	// MaxRetries is the retry ceiling. UnlimitedRetries means never give up.
	MaxRetries int `json:"max_retries"`
}

// Delay returns min(retryCount*Step, MaxDelay). The first retry
// (retryCount 0) fires immediately.
func (p BackoffPolicy) Delay(retryCount int) time.Duration {
	if retryCount <= 0 || p.Step <= 0 {
		return 0
	}

	// Cap before multiplying so large counts cannot overflow.
	if p.MaxDelay > 0 && time.Duration(retryCount) >= p.MaxDelay/p.Step+1 {
		return p.MaxDelay
	}

	delay := time.Duration(retryCount) * p.Step
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		return p.MaxDelay
	}
	return delay
}

// Exhausted reports whether retryCount has reached the retry ceiling.
func (p BackoffPolicy) Exhausted(retryCount int) bool {
	return p.MaxRetries >= 0 && retryCount >= p.MaxRetries
}

// Validate checks the policy for values that cannot be honored.
func (p BackoffPolicy) Validate() error {
	switch {
	case p.Step < 0:
		return errInvalidConfig("backoff.step", "must not be negative")
	case p.MaxRetries < UnlimitedRetries:
		return errInvalidConfig("backoff.max_retries", "must be >= -1")
	}
	return nil
}
