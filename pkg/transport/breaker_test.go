package transport

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCircuitBreakerTransitions(t *testing.T) {
	now := time.Unix(0, 0)
	cb := newCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 2, SuccessThreshold: 2, Timeout: time.Second})
	cb.now = func() time.Time { return now }

	assert.True(t, cb.allow())
	cb.recordFailure()
	assert.Equal(t, circuitClosed, cb.state)
	cb.recordFailure()
	assert.Equal(t, circuitOpen, cb.state)
	assert.False(t, cb.allow())

	now = now.Add(time.Second)
	assert.True(t, cb.allow())
	assert.Equal(t, circuitHalfOpen, cb.state)

	cb.recordFailure()
	assert.Equal(t, circuitOpen, cb.state)

	now = now.Add(time.Second)
	assert.True(t, cb.allow())
	cb.recordSuccess()
	assert.Equal(t, circuitHalfOpen, cb.state)
	cb.recordSuccess()
	assert.Equal(t, circuitClosed, cb.state)
}
