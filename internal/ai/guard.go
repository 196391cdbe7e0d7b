package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// GuardConfig bounds outbound model calls. Calls are never retried: a failed call
// is reported to the caller, which fails open.
type GuardConfig struct {
	Timeout time.Duration `yaml:"timeout" toml:"timeout"` // Per-request timeout (0 = none)

	// Circuit breaker settings
	CircuitBreakerEnabled bool          `yaml:"circuit_breaker" toml:"circuit_breaker"`
	FailureThreshold      int           `yaml:"failure_threshold" toml:"failure_threshold"` // Consecutive failures before opening
	SuccessThreshold      int           `yaml:"success_threshold" toml:"success_threshold"` // Half-open successes before closing
	OpenTimeout           time.Duration `yaml:"open_timeout" toml:"open_timeout"`           // How long to stay open before probing

	// MaxConcurrentCalls caps outstanding requests per supervisor (0 = unlimited).
	// The default of 1 keeps one request in flight per stage.
	MaxConcurrentCalls int `yaml:"max_concurrent_calls" toml:"max_concurrent_calls"`

	// RequestsPerMinute paces calls to stay under provider rate limits (0 = unlimited)
	RequestsPerMinute int `yaml:"requests_per_minute" toml:"requests_per_minute"`
}

// DefaultGuardConfig returns the default call guard configuration
func DefaultGuardConfig() GuardConfig {
	return GuardConfig{
		Timeout:               60 * time.Second,
		CircuitBreakerEnabled: true,
		FailureThreshold:      5,
		SuccessThreshold:      2,
		OpenTimeout:           30 * time.Second,
		MaxConcurrentCalls:    1,
		RequestsPerMinute:     0,
	}
}

// Validate checks if the guard configuration has valid values
func (g GuardConfig) Validate() error {
	if g.Timeout < 0 {
		return fmt.Errorf("timeout cannot be negative (got %v)", g.Timeout)
	}
	if g.CircuitBreakerEnabled {
		if g.FailureThreshold <= 0 {
			return fmt.Errorf("failure_threshold must be positive (got %d)", g.FailureThreshold)
		}
		if g.SuccessThreshold <= 0 {
			return fmt.Errorf("success_threshold must be positive (got %d)", g.SuccessThreshold)
		}
		if g.OpenTimeout <= 0 {
			return fmt.Errorf("open_timeout must be positive (got %v)", g.OpenTimeout)
		}
	}
	if g.MaxConcurrentCalls < 0 {
		return fmt.Errorf("max_concurrent_calls cannot be negative (got %d)", g.MaxConcurrentCalls)
	}
	if g.RequestsPerMinute < 0 {
		return fmt.Errorf("requests_per_minute cannot be negative (got %d)", g.RequestsPerMinute)
	}
	return nil
}

// CircuitState represents the state of a circuit breaker
type CircuitState int

const (
	CircuitClosed   CircuitState = iota // Normal operation, requests pass through
	CircuitOpen                         // Too many failures, block requests (fail fast)
	CircuitHalfOpen                     // Testing recovery, allow limited requests
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "CLOSED"
	case CircuitOpen:
		return "OPEN"
	case CircuitHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// ErrCircuitOpen is returned when the circuit breaker is open
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreaker stops calling a failing provider so dedup fails open immediately
// instead of waiting on a timeout per batch.
type CircuitBreaker struct {
	mu sync.Mutex

	state            CircuitState
	failureCount     int
	successCount     int
	lastFailureTime  time.Time
	failureThreshold int
	successThreshold int
	openTimeout      time.Duration
	now              func() time.Time
	logger           *slog.Logger
}

// NewCircuitBreaker creates a new circuit breaker with the given configuration
func NewCircuitBreaker(failureThreshold, successThreshold int, openTimeout time.Duration, logger *slog.Logger) *CircuitBreaker {
	if logger == nil {
		logger = slog.Default()
	}
	return &CircuitBreaker{
		state:            CircuitClosed,
		failureThreshold: failureThreshold,
		successThreshold: successThreshold,
		openTimeout:      openTimeout,
		now:              time.Now,
		logger:           logger,
	}
}

// Allow checks if a request should be allowed through the circuit breaker
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed, CircuitHalfOpen:
		return nil
	case CircuitOpen:
		if cb.now().Sub(cb.lastFailureTime) > cb.openTimeout {
			cb.transition(CircuitHalfOpen)
			return nil
		}
		return ErrCircuitOpen
	default:
		return ErrCircuitOpen
	}
}

// RecordSuccess records a successful request
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed:
		cb.failureCount = 0
	case CircuitHalfOpen:
		cb.successCount++
		if cb.successCount >= cb.successThreshold {
			cb.transition(CircuitClosed)
		}
	}
}

// RecordFailure records a failed request
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.lastFailureTime = cb.now()

	switch cb.state {
	case CircuitClosed:
		cb.failureCount++
		if cb.failureCount >= cb.failureThreshold {
			cb.transition(CircuitOpen)
		}
	case CircuitHalfOpen:
		// Any failure while probing reopens immediately
		cb.transition(CircuitOpen)
	}
}

// State returns the current state
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Metrics returns the current state and counters
func (cb *CircuitBreaker) Metrics() (state CircuitState, failures, successes int) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state, cb.failureCount, cb.successCount
}

// transition must be called with cb.mu held
func (cb *CircuitBreaker) transition(to CircuitState) {
	from := cb.state
	cb.state = to
	cb.successCount = 0
	if to == CircuitClosed {
		cb.failureCount = 0
	}
	cb.logger.Info("ai: circuit breaker state transition",
		"from", from.String(), "to", to.String(), "failures", cb.failureCount)
}

// callGuard applies the concurrency limit, pacing, circuit breaker and timeout
// around a single model request.
type callGuard struct {
	cfg     GuardConfig
	breaker *CircuitBreaker
	sem     *semaphore.Weighted
	limiter *rate.Limiter
	logger  *slog.Logger
}

func newCallGuard(cfg GuardConfig, logger *slog.Logger) *callGuard {
	if logger == nil {
		logger = slog.Default()
	}
	g := &callGuard{cfg: cfg, logger: logger}
	if cfg.CircuitBreakerEnabled {
		g.breaker = NewCircuitBreaker(cfg.FailureThreshold, cfg.SuccessThreshold, cfg.OpenTimeout, logger)
	}
	if cfg.MaxConcurrentCalls > 0 {
		g.sem = semaphore.NewWeighted(int64(cfg.MaxConcurrentCalls))
	}
	if cfg.RequestsPerMinute > 0 {
		g.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), 1)
	}
	return g
}

// do runs fn exactly once under the guard
func (g *callGuard) do(ctx context.Context, operation string, fn func(context.Context) error) error {
	if g.sem != nil {
		if err := g.sem.Acquire(ctx, 1); err != nil {
			return fmt.Errorf("failed to acquire call slot for %s: %w", operation, err)
		}
		defer g.sem.Release(1)
	}

	if g.breaker != nil {
		if err := g.breaker.Allow(); err != nil {
			state, failures, _ := g.breaker.Metrics()
			g.logger.Warn("ai: call blocked by circuit breaker",
				"operation", operation, "state", state.String(), "failures", failures)
			return fmt.Errorf("%s: %w", operation, err)
		}
	}

	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("%s: rate limiter: %w", operation, err)
		}
	}

	callCtx := ctx
	if g.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, g.cfg.Timeout)
		defer cancel()
	}

	err := fn(callCtx)
	if g.breaker != nil {
		switch {
		case err == nil:
			g.breaker.RecordSuccess()
		case isTransientError(err):
			// Auth failures and bad requests say nothing about provider health
			g.breaker.RecordFailure()
		}
	}
	return err
}

// isTransientError reports whether err indicates provider trouble (timeouts, rate
// limits, server errors, network failures) rather than a bad request.
func isTransientError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	errStr := strings.ToLower(err.Error())
	for _, marker := range []string{
		"429", "rate limit", "overloaded",
		"500", "502", "503", "504", "529",
		"internal server error", "bad gateway", "service unavailable", "gateway timeout",
		"connection refused", "connection reset", "timeout", "temporary failure", "network",
		"eof",
	} {
		if strings.Contains(errStr, marker) {
			return true
		}
	}
	return false
}
