package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiter_EnforcesMinInterval(t *testing.T) {
	l := New(50 * time.Millisecond)
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx))
	first := l.Last()
	require.NoError(t, l.Wait(ctx))
	second := l.Last()

	assert.GreaterOrEqual(t, second.Sub(first), 40*time.Millisecond)
	assert.Equal(t, 50*time.Millisecond, l.Interval())
}

func TestLimiter_FirstCallImmediate(t *testing.T) {
	l := New(time.Hour)
	assert.True(t, l.Last().IsZero())

	start := time.Now()
	require.NoError(t, l.Wait(context.Background()))
	assert.Less(t, time.Since(start), time.Second)
}

func TestLimiter_ContextCancel(t *testing.T) {
	l := New(time.Hour)
	require.NoError(t, l.Wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.Error(t, l.Wait(ctx))
}

func TestLimiter_Disabled(t *testing.T) {
	l := New(0)
	for i := 0; i < 5; i++ {
		require.NoError(t, l.Wait(context.Background()))
	}
}
