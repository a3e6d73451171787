package ai

import (
	"fmt"

	"github.com/sony/gobreaker/v2"

	"resumeopt/internal/config"
	"resumeopt/internal/errors"
)

// CircuitBreaker guards one operation's provider calls.
type CircuitBreaker struct {
	cb *gobreaker.CircuitBreaker[*Completion]
}

// NewCircuitBreaker creates a circuit breaker configured for a specific operation.
// It returns nil when the breaker is disabled, which Execute treats as pass-through.
func NewCircuitBreaker(operation string, cfg config.CircuitBreakerConfig, logger *errors.Logger) *CircuitBreaker {
	if !cfg.Enabled {
		return nil
	}

	settings := gobreaker.Settings{
		Name:        fmt.Sprintf("AI-%s", operation),
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests == 0 {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= cfg.MinRequests && failureRatio >= cfg.FailureThreshold
		},
		// A rejected key is not an outage.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.IsType(err, errors.ErrorTypeCredentials)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			if logger == nil {
				return
			}
			logger.Info("Circuit breaker state changed",
				"name", name,
				"operation", operation,
				"from", from.String(),
				"to", to.String(),
				"failure_threshold", cfg.FailureThreshold)
		},
	}

	return &CircuitBreaker{cb: gobreaker.NewCircuitBreaker[*Completion](settings)}
}

// Execute executes fn with circuit breaker protection
func (cb *CircuitBreaker) Execute(fn func() (*Completion, error)) (*Completion, error) {
	if cb == nil || cb.cb == nil {
		return fn()
	}
	return cb.cb.Execute(fn)
}

// Stats returns circuit breaker statistics
func (cb *CircuitBreaker) Stats() map[string]any {
	if cb == nil || cb.cb == nil {
		return map[string]any{"enabled": false}
	}
	counts := cb.cb.Counts()
	return map[string]any{
		"enabled":  true,
		"name":     cb.cb.Name(),
		"state":    cb.cb.State().String(),
		"requests": counts.Requests,
		"failures": counts.TotalFailures,
	}
}

// IsHealthy returns true if the circuit breaker is not open
func (cb *CircuitBreaker) IsHealthy() bool {
	if cb == nil || cb.cb == nil {
		return true
	}
	return cb.cb.State() != gobreaker.StateOpen
}

// IsOpenError reports whether err came from a breaker refusing the call.
func IsOpenError(err error) bool {
	return err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests
}
