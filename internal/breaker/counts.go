package breaker

import "time"

// Counts tracks the rolling call outcomes a CircuitBreaker uses to decide
// state transitions and exposes for observability.
type Counts struct {
	Requests             uint32
	Successes            uint32
	Failures             uint32
	ConsecutiveSuccesses uint32
	ConsecutiveFailures  uint32
	TotalSuccesses        uint64
	TotalFailures         uint64

	LastSuccess time.Time
	LastFailure time.Time
}

// NewCounts returns a zero-valued Counts ready for use.
func NewCounts() Counts {
	return Counts{}
}

// RecordSuccess increments success counters and resets the consecutive
// failure streak.
func (c *Counts) RecordSuccess() {
	c.Requests++
	c.Successes++
	c.TotalSuccesses++
	c.ConsecutiveSuccesses++
	c.ConsecutiveFailures = 0
	c.LastSuccess = time.Now()
}

// RecordFailure increments failure counters and resets the consecutive
// success streak.
func (c *Counts) RecordFailure() {
	c.Requests++
	c.Failures++
	c.TotalFailures++
	c.ConsecutiveFailures++
	c.ConsecutiveSuccesses = 0
	c.LastFailure = time.Now()
}

// Reset zeroes every counter. CircuitBreaker itself starts each fresh
// evaluation window with NewCounts and does not call Reset.
func (c *Counts) Reset() {
	*c = Counts{}
}

// Copy returns a value copy safe to hand to a caller without exposing the
// breaker's internal pointer.
func (c *Counts) Copy() Counts {
	return *c
}
