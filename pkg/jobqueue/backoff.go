package jobqueue

import (
	"fmt"
	"math"
	"time"
)

// Backoff describes how long to wait before retrying a failed job.
type Backoff struct {
	Strategy    BackoffStrategy `json:"strategy"`
	DelayFactor time.Duration   `json:"delay_factor"`
}

// Validate checks that both fields are set and the strategy is known.
func (b Backoff) Validate() error {
	if b.Strategy == "" || b.DelayFactor <= 0 {
		return ErrInvalidBackoff
	}
	if !b.Strategy.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownBackoffStrategy, b.Strategy)
	}
	return nil
}

// Delay returns the wait before retry attempt n (1-indexed).
//
//   - immediate: always zero
//   - fixed: DelayFactor
//   - exponential: DelayFactor * 2^(n-1)
func (b Backoff) Delay(attempt int) time.Duration {
	switch b.Strategy {
	case BackoffFixed:
		return b.DelayFactor
	case BackoffExponential:
		return time.Duration(float64(b.DelayFactor) * math.Pow(2, float64(max(attempt, 1)-1)))
	default:
		return 0
	}
}
