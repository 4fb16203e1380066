package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(hook *CircuitBreakerHook, err error) error {
	ctx := context.Background()
	process := hook.ProcessHook(func(context.Context, goredis.Cmder) error { return err })
	return process(ctx, goredis.NewStringCmd(ctx, "get", "key"))
}

func TestCircuitBreakerHook_StaysClosedOnSuccess(t *testing.T) {
	hook := NewCircuitBreakerHook(nil)

	for range 10 {
		assert.NoError(t, run(hook, nil))
	}
	assert.Equal(t, circuitbreaker.ClosedState, hook.State())
}

func TestCircuitBreakerHook_NilIsNotAFailure(t *testing.T) {
	hook := NewCircuitBreakerHook(nil)

	for range 10 {
		assert.ErrorIs(t, run(hook, goredis.Nil), goredis.Nil)
	}
	assert.Equal(t, circuitbreaker.ClosedState, hook.State())
}

func TestCircuitBreakerHook_OpensAndFailsFast(t *testing.T) {
	hook := NewCircuitBreakerHook(nil)

	for range 5 {
		_ = run(hook, errors.New("connection refused"))
	}
	require.Equal(t, circuitbreaker.OpenState, hook.State())

	called := false
	ctx := context.Background()
	process := hook.ProcessHook(func(context.Context, goredis.Cmder) error {
		called = true
		return nil
	})
	cmd := goredis.NewStringCmd(ctx, "get", "key")
	err := process(ctx, cmd)

	assert.ErrorIs(t, err, circuitbreaker.ErrOpen)
	assert.ErrorIs(t, cmd.Err(), circuitbreaker.ErrOpen)
	assert.False(t, called)
}

func TestCircuitBreakerHook_RecoversAfterDelay(t *testing.T) {
	hook := newCircuitBreakerHook(nil, 50*time.Millisecond)

	for range 5 {
		_ = run(hook, errors.New("timeout"))
	}
	require.Equal(t, circuitbreaker.OpenState, hook.State())

	require.Eventually(t, func() bool { return run(hook, nil) == nil }, time.Second, 10*time.Millisecond)
	assert.Equal(t, circuitbreaker.ClosedState, hook.State())
}

func TestCircuitBreakerHook_Pipeline(t *testing.T) {
	hook := NewCircuitBreakerHook(nil)
	ctx := context.Background()

	pipeline := hook.ProcessPipelineHook(func(context.Context, []goredis.Cmder) error {
		return errors.New("broken pipe")
	})
	for range 5 {
		_ = pipeline(ctx, nil)
	}

	err := pipeline(ctx, nil)
	assert.ErrorIs(t, err, circuitbreaker.ErrOpen)
}
