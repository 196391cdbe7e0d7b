package ai

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGuardConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*GuardConfig)
		wantErr string
	}{
		{name: "default", modify: func(*GuardConfig) {}},
		{name: "negative timeout", modify: func(c *GuardConfig) { c.Timeout = -time.Second }, wantErr: "timeout"},
		{name: "zero failure threshold", modify: func(c *GuardConfig) { c.FailureThreshold = 0 }, wantErr: "failure_threshold"},
		{name: "zero success threshold", modify: func(c *GuardConfig) { c.SuccessThreshold = 0 }, wantErr: "success_threshold"},
		{name: "zero open timeout", modify: func(c *GuardConfig) { c.OpenTimeout = 0 }, wantErr: "open_timeout"},
		{
			name: "breaker disabled ignores thresholds",
			modify: func(c *GuardConfig) {
				c.CircuitBreakerEnabled = false
				c.FailureThreshold = 0
			},
		},
		{name: "negative concurrency", modify: func(c *GuardConfig) { c.MaxConcurrentCalls = -1 }, wantErr: "max_concurrent_calls"},
		{name: "negative rpm", modify: func(c *GuardConfig) { c.RequestsPerMinute = -1 }, wantErr: "requests_per_minute"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultGuardConfig()
			tt.modify(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestCircuitBreaker_Lifecycle(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker(2, 2, time.Minute, nil)
	cb.now = func() time.Time { return now }

	assert.Equal(t, CircuitClosed, cb.State())
	require.NoError(t, cb.Allow())

	cb.RecordFailure()
	assert.Equal(t, CircuitClosed, cb.State())
	cb.RecordFailure()
	assert.Equal(t, CircuitOpen, cb.State())
	assert.ErrorIs(t, cb.Allow(), ErrCircuitOpen)

	// Still open before the timeout elapses
	now = now.Add(30 * time.Second)
	assert.ErrorIs(t, cb.Allow(), ErrCircuitOpen)

	now = now.Add(time.Minute)
	require.NoError(t, cb.Allow())
	assert.Equal(t, CircuitHalfOpen, cb.State())

	cb.RecordSuccess()
	assert.Equal(t, CircuitHalfOpen, cb.State())
	cb.RecordSuccess()
	assert.Equal(t, CircuitClosed, cb.State())

	state, failures, successes := cb.Metrics()
	assert.Equal(t, CircuitClosed, state)
	assert.Zero(t, failures)
	assert.Zero(t, successes)
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker(1, 3, time.Minute, nil)
	cb.now = func() time.Time { return now }

	cb.RecordFailure()
	require.Equal(t, CircuitOpen, cb.State())

	now = now.Add(2 * time.Minute)
	require.NoError(t, cb.Allow())
	require.Equal(t, CircuitHalfOpen, cb.State())

	cb.RecordFailure()
	assert.Equal(t, CircuitOpen, cb.State())
	assert.ErrorIs(t, cb.Allow(), ErrCircuitOpen)
}

func TestCircuitBreaker_SuccessResetsFailures(t *testing.T) {
	cb := NewCircuitBreaker(2, 1, time.Minute, nil)
	cb.RecordFailure()
	cb.RecordSuccess()
	cb.RecordFailure()
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestCircuitState_String(t *testing.T) {
	assert.Equal(t, "CLOSED", CircuitClosed.String())
	assert.Equal(t, "OPEN", CircuitOpen.String())
	assert.Equal(t, "HALF_OPEN", CircuitHalfOpen.String())
	assert.Equal(t, "UNKNOWN", CircuitState(42).String())
}

func TestIsTransientError(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{context.DeadlineExceeded, true},
		{errors.New("POST /v1/messages: 529 Overloaded"), true},
		{errors.New("429 Too Many Requests"), true},
		{errors.New("dial tcp: connection refused"), true},
		{errors.New("unexpected EOF"), true},
		{errors.New("401 invalid x-api-key"), false},
		{errors.New("400 bad request: max_tokens too large"), false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, isTransientError(tt.err), "err=%v", tt.err)
	}
}

func TestCallGuard_OnlyTransientFailuresTripBreaker(t *testing.T) {
	cfg := DefaultGuardConfig()
	cfg.FailureThreshold = 2
	g := newCallGuard(cfg, nil)
	ctx := context.Background()

	authErr := errors.New("401 invalid api key")
	for i := 0; i < 5; i++ {
		assert.ErrorIs(t, g.do(ctx, "test", func(context.Context) error { return authErr }), authErr)
	}
	assert.Equal(t, CircuitClosed, g.breaker.State())

	serverErr := errors.New("503 service unavailable")
	_ = g.do(ctx, "test", func(context.Context) error { return serverErr })
	_ = g.do(ctx, "test", func(context.Context) error { return serverErr })
	assert.Equal(t, CircuitOpen, g.breaker.State())

	called := false
	err := g.do(ctx, "test", func(context.Context) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called, "open breaker must not reach the provider")
}

func TestCallGuard_Timeout(t *testing.T) {
	cfg := DefaultGuardConfig()
	cfg.Timeout = 20 * time.Millisecond
	g := newCallGuard(cfg, nil)

	err := g.do(context.Background(), "slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCallGuard_SingleCallNoRetry(t *testing.T) {
	g := newCallGuard(DefaultGuardConfig(), nil)
	var calls int
	err := g.do(context.Background(), "once", func(context.Context) error {
		calls++
		return errors.New("503 service unavailable")
	})
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestCallGuard_ConcurrencyLimit(t *testing.T) {
	cfg := DefaultGuardConfig()
	cfg.MaxConcurrentCalls = 2
	g := newCallGuard(cfg, nil)

	var inFlight, peak atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = g.do(context.Background(), "parallel", func(context.Context) error {
				n := inFlight.Add(1)
				for {
					p := peak.Load()
					if n <= p || peak.CompareAndSwap(p, n) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				inFlight.Add(-1)
				return nil
			})
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestCallGuard_CancelledWhileWaitingForSlot(t *testing.T) {
	g := newCallGuard(DefaultGuardConfig(), nil)

	release := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_ = g.do(context.Background(), "holder", func(context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := g.do(ctx, "waiter", func(context.Context) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
	close(release)
}
