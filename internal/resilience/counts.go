package resilience

import "time"

// Counts holds the running totals a circuit breaker tracks.
type Counts struct {
	Requests            int // Total requests
	Successes           int // Successful requests
	Failures            int // Failed requests
	ConsecutiveFailures int // Failures since the last success
	Rejected            int // Requests rejected while the circuit was open

	LastSuccess time.Time // Time of last successful request
	LastFailure time.Time // Time of last failed request
}

// RecordSuccess records a successful request
func (c *Counts) RecordSuccess() {
	c.Requests++
	c.Successes++
	c.ConsecutiveFailures = 0
	c.LastSuccess = time.Now()
}

// RecordFailure records a failed request
func (c *Counts) RecordFailure() {
	c.Requests++
	c.Failures++
	c.ConsecutiveFailures++
	c.LastFailure = time.Now()
}

// RecordRejected records a request rejected without execution
func (c *Counts) RecordRejected() {
	c.Rejected++
}
