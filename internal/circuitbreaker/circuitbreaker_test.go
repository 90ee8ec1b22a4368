package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func fail() error    { return errBoom }
func succeed() error { return nil }

func newTestBreaker(clock clockwork.Clock, transitions *[]State) *CircuitBreaker {
	return New(Config{
		FailureThreshold: 2,
		SuccessThreshold: 2,
		Timeout:          10 * time.Second,
		Clock:            clock,
		OnStateChange: func(_, to State) {
			if transitions != nil {
				*transitions = append(*transitions, to)
			}
		},
	})
}

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	ctx := context.Background()
	cb := newTestBreaker(clockwork.NewFakeClock(), nil)

	assert.ErrorIs(t, cb.Call(ctx, fail), errBoom)
	assert.Equal(t, StateClosed, cb.State())
	assert.ErrorIs(t, cb.Call(ctx, fail), errBoom)
	assert.Equal(t, StateOpen, cb.State())

	called := false
	err := cb.Call(ctx, func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrOpen)
	assert.False(t, called, "fn must not run while open")
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	ctx := context.Background()
	cb := newTestBreaker(clockwork.NewFakeClock(), nil)

	_ = cb.Call(ctx, fail)
	require.NoError(t, cb.Call(ctx, succeed))
	_ = cb.Call(ctx, fail)
	assert.Equal(t, StateClosed, cb.State())
}

func TestBreaker_HalfOpenThenClosed(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClock()
	var transitions []State
	cb := newTestBreaker(clock, &transitions)

	_ = cb.Call(ctx, fail)
	_ = cb.Call(ctx, fail)
	clock.Advance(11 * time.Second)

	require.NoError(t, cb.Call(ctx, succeed))
	assert.Equal(t, StateHalfOpen, cb.State())
	require.NoError(t, cb.Call(ctx, succeed))
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, []State{StateOpen, StateHalfOpen, StateClosed}, transitions)
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClock()
	cb := newTestBreaker(clock, nil)

	_ = cb.Call(ctx, fail)
	_ = cb.Call(ctx, fail)
	clock.Advance(11 * time.Second)
	_ = cb.Call(ctx, fail)
	assert.Equal(t, StateOpen, cb.State())
	assert.ErrorIs(t, cb.Call(ctx, succeed), ErrOpen)
}

func TestBreaker_IgnoredAndCancelledErrorsDoNotCount(t *testing.T) {
	errNotFound := errors.New("not found")
	cb := New(Config{
		FailureThreshold: 1,
		Clock:            clockwork.NewFakeClock(),
		Ignore:           func(err error) bool { return errors.Is(err, errNotFound) },
	})

	assert.ErrorIs(t, cb.Call(context.Background(), func() error { return errNotFound }), errNotFound)
	assert.Equal(t, StateClosed, cb.State())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := cb.Call(ctx, func() error { return ctx.Err() })
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateClosed, cb.State())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "half_open", StateHalfOpen.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "unknown", State(9).String())
}
