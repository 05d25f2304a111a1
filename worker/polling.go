package worker

import "time"

// PollingRates bounds the adaptive backoff a Worker applies between empty
// AskForJob polls: it starts at Min and doubles toward Max on consecutive
// empty replies, snapping back to Min the moment a job arrives.
type PollingRates struct {
	Min time.Duration
	Max time.Duration
}

// NewPollingRates normalizes (a, b) into a valid PollingRates: negative
// values clamp to zero, and an inverted pair is swapped before clamping, so
// the result always satisfies 0 <= Min <= Max.
func NewPollingRates(a, b time.Duration) PollingRates {
	if a > b {
		a, b = b, a
	}
	if a < 0 {
		a = 0
	}
	if b < 0 {
		b = 0
	}
	return PollingRates{Min: a, Max: b}
}

// DefaultPollingRates is quick to notice new work, slow to hammer an idle
// broker.
var DefaultPollingRates = NewPollingRates(100*time.Millisecond, 5*time.Second)

// next doubles the current backoff toward Max, or resets to Min when reset
// is true.
func (r PollingRates) next(current time.Duration, reset bool) time.Duration {
	if reset || current < r.Min {
		return r.Min
	}
	doubled := current * 2
	if doubled > r.Max {
		return r.Max
	}
	return doubled
}
