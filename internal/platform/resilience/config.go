package resilience

import "time"

// CircuitBreakerConfig describes when the API circuit opens and how it probes recovery.
// Zero values fall back to the defaults; Enabled is taken as given.
type CircuitBreakerConfig struct {
	Enabled bool
	// FailureThreshold is the run of consecutive failures that opens the circuit.
	FailureThreshold int
	OpenTimeout      time.Duration
	// HalfOpenMaxReq is both the probe concurrency and the successes needed to close.
	HalfOpenMaxReq int
}

const (
	defaultFailureThreshold = 5
	defaultOpenTimeout      = 15 * time.Second
	defaultHalfOpenMaxReq   = 2
)

func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{Enabled: true}.WithDefaults()
}

// WithDefaults returns c with every unset or out-of-range limit replaced by its default.
func (c CircuitBreakerConfig) WithDefaults() CircuitBreakerConfig {
	if c.FailureThreshold < 1 {
		c.FailureThreshold = defaultFailureThreshold
	}
	if c.OpenTimeout <= 0 {
		c.OpenTimeout = defaultOpenTimeout
	}
	if c.HalfOpenMaxReq < 1 {
		c.HalfOpenMaxReq = defaultHalfOpenMaxReq
	}
	return c
}

// LogFields renders the config as logger key/value pairs.
func (c CircuitBreakerConfig) LogFields() []any {
	return []any{
		"circuit_enabled", c.Enabled,
		"circuit_failure_threshold", c.FailureThreshold,
		"circuit_open_timeout", c.OpenTimeout,
		"circuit_half_open_max_req", c.HalfOpenMaxReq,
	}
}
