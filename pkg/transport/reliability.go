package transport

import (
	"context"
	"sync"
	"time"

	sdkerrors "github.com/ajitpratap0/session-sdk-go/pkg/errors"
	"github.com/ajitpratap0/session-sdk-go/pkg/logging"
	"github.com/ajitpratap0/session-sdk-go/pkg/protocol"
)

// ReliabilityConfig configures NewReliabilityDecorator.
type ReliabilityConfig struct {
	Retry          sdkerrors.RetryPolicy
	CircuitBreaker CircuitBreakerConfig
	Logger         logging.Logger
}

// CircuitBreakerConfig configures the circuit breaker. After
// FailureThreshold consecutive failures the circuit opens for Timeout, then
// lets calls through until SuccessThreshold successes close it again.
type CircuitBreakerConfig struct {
	Enabled          bool
	FailureThreshold int
	SuccessThreshold int
	Timeout          time.Duration
}

// DefaultReliabilityConfig returns three retries and a breaker that opens
// after five failures for thirty seconds.
func DefaultReliabilityConfig() ReliabilityConfig {
	return ReliabilityConfig{
		Retry: sdkerrors.DefaultRetryPolicy(),
		CircuitBreaker: CircuitBreakerConfig{
			Enabled:          true,
			FailureThreshold: 5,
			SuccessThreshold: 2,
			Timeout:          30 * time.Second,
		},
	}
}

// NewReliabilityDecorator retries Connect and Request with the configured
// policy and guards them with a circuit breaker. Delivered error responses
// are results, not failures, and are never retried. Emit is passed through
// untouched.
func NewReliabilityDecorator(cfg ReliabilityConfig) Decorator {
	logger := logging.Component(cfg.Logger, "reliability")
	return DecoratorFunc(func(t Transport) Transport {
		rt := &reliableTransport{
			Forwarder: Forwarder{Next: t},
			policy:    cfg.Retry,
			logger:    logger,
		}
		if cfg.CircuitBreaker.Enabled {
			rt.breaker = newCircuitBreaker(cfg.CircuitBreaker)
		}
		retryable := cfg.Retry.RetryPredicate
		if retryable == nil {
			retryable = sdkerrors.IsRetryable
		}
		rt.policy.RetryPredicate = func(err error) bool {
			return !sdkerrors.IsCode(err, sdkerrors.CodeCircuitOpen) && retryable(err)
		}
		rt.policy.OnRetry = func(attempt int, err error, delay time.Duration) {
			rt.logger.WithError(err).Debug("retrying",
				logging.Int("attempt", attempt),
				logging.Duration("delay", delay),
			)
		}
		return rt
	})
}

type reliableTransport struct {
	Forwarder
	policy  sdkerrors.RetryPolicy
	breaker *circuitBreaker
	logger  logging.Logger
}

func (rt *reliableTransport) Connect(ctx context.Context, connString string) error {
	return sdkerrors.Retry(ctx, rt.policy, func(ctx context.Context) error {
		return rt.guard("connect", func() error {
			return rt.Next.Connect(ctx, connString)
		})
	})
}

func (rt *reliableTransport) Request(ctx context.Context, requestType string, payload any, rctx *protocol.Context) (*protocol.Response, error) {
	return sdkerrors.RetryValue(ctx, rt.policy, func(ctx context.Context) (*protocol.Response, error) {
		var resp *protocol.Response
		err := rt.guard(requestType, func() error {
			var err error
			resp, err = rt.Next.Request(ctx, requestType, payload, rctx)
			return err
		})
		return resp, err
	})
}

func (rt *reliableTransport) guard(operation string, call func() error) error {
	if rt.breaker != nil && !rt.breaker.allow() {
		return sdkerrors.CircuitOpen(operation)
	}
	err := call()
	if rt.breaker != nil {
		if err != nil {
			rt.breaker.recordFailure()
		} else {
			rt.breaker.recordSuccess()
		}
	}
	return err
}

type circuitState int

const (
	circuitClosed circuitState = iota
	circuitOpen
	circuitHalfOpen
)

type circuitBreaker struct {
	mu        sync.Mutex
	config    CircuitBreakerConfig
	state     circuitState
	failures  int
	successes int
	openedAt  time.Time
	now       func() time.Time
}

func newCircuitBreaker(config CircuitBreakerConfig) *circuitBreaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 5
	}
	if config.SuccessThreshold <= 0 {
		config.SuccessThreshold = 1
	}
	return &circuitBreaker{config: config, now: time.Now}
}

func (cb *circuitBreaker) allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case circuitOpen:
		if cb.now().Sub(cb.openedAt) < cb.config.Timeout {
			return false
		}
		cb.state = circuitHalfOpen
		cb.successes = 0
		return true
	default:
		return true
	}
}

func (cb *circuitBreaker) recordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures = 0
	if cb.state == circuitHalfOpen {
		cb.successes++
		if cb.successes >= cb.config.SuccessThreshold {
			cb.state = circuitClosed
		}
	}
}

func (cb *circuitBreaker) recordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures++
	if cb.state == circuitHalfOpen || cb.failures >= cb.config.FailureThreshold {
		cb.state = circuitOpen
		cb.openedAt = cb.now()
	}
}
