package ai

import (
	"fmt"
	"testing"
	"time"

	"resumeopt/internal/config"
	"resumeopt/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func breakerConfig() config.CircuitBreakerConfig {
	return config.CircuitBreakerConfig{
		Enabled:          true,
		MaxRequests:      1,
		Interval:         time.Minute,
		Timeout:          time.Minute,
		MinRequests:      2,
		FailureThreshold: 0.5,
	}
}

func TestCircuitBreakerDisabledPassesThrough(t *testing.T) {
	cb := NewCircuitBreaker("score", config.CircuitBreakerConfig{}, testLogger)
	assert.Nil(t, cb)

	c, err := cb.Execute(func() (*Completion, error) { return &Completion{Text: "ok"}, nil })
	require.NoError(t, err)
	assert.Equal(t, "ok", c.Text)
	assert.True(t, cb.IsHealthy())
	assert.Equal(t, false, cb.Stats()["enabled"])
}

func TestCircuitBreakerOpensAfterFailures(t *testing.T) {
	cb := NewCircuitBreaker("score", breakerConfig(), testLogger)
	require.NotNil(t, cb)
	assert.Equal(t, "AI-score", cb.Stats()["name"])

	fail := func() (*Completion, error) { return nil, fmt.Errorf("upstream down") }
	_, _ = cb.Execute(fail)
	_, _ = cb.Execute(fail)

	assert.False(t, cb.IsHealthy())
	_, err := cb.Execute(func() (*Completion, error) { return &Completion{}, nil })
	assert.True(t, IsOpenError(err))
	assert.Equal(t, "open", cb.Stats()["state"])
}

func TestCircuitBreakerIgnoresCredentialErrors(t *testing.T) {
	cb := NewCircuitBreaker("analyze", breakerConfig(), testLogger)

	rejected := func() (*Completion, error) {
		return nil, errors.NewCredentialsError(errors.ErrCodeCredentials, "bad key", nil)
	}
	for range 5 {
		_, err := cb.Execute(rejected)
		assert.True(t, errors.IsType(err, errors.ErrorTypeCredentials))
	}
	assert.True(t, cb.IsHealthy())
}

func TestIndependentBreakersPerOperation(t *testing.T) {
	analyze := NewCircuitBreaker("analyze", breakerConfig(), testLogger)
	score := NewCircuitBreaker("score", breakerConfig(), testLogger)

	fail := func() (*Completion, error) { return nil, fmt.Errorf("down") }
	_, _ = analyze.Execute(fail)
	_, _ = analyze.Execute(fail)

	assert.False(t, analyze.IsHealthy())
	assert.True(t, score.IsHealthy())
}
