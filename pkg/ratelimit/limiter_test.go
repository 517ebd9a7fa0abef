package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenBucket(t *testing.T) {
	tb := NewTokenBucket(5, 200*time.Millisecond)

	for i := 0; i < 5; i++ {
		assert.True(t, tb.Allow(), "token %d should be available", i+1)
	}
	assert.False(t, tb.Allow(), "bucket should be exhausted")

	time.Sleep(250 * time.Millisecond)
	assert.True(t, tb.Allow(), "bucket should refill")

	for tb.Allow() {
	}
	tb.Reset()
	for i := 0; i < 5; i++ {
		assert.True(t, tb.Allow(), "reset bucket should be full")
	}
}

func TestTokenBucketWait(t *testing.T) {
	tb := NewTokenBucket(1, 50*time.Millisecond)
	require.True(t, tb.Allow())

	start := time.Now()
	require.NoError(t, tb.Wait(context.Background()))
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestTokenBucketWaitCancelled(t *testing.T) {
	tb := NewTokenBucket(1, time.Hour)
	require.True(t, tb.Allow())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	assert.ErrorIs(t, tb.Wait(ctx), context.DeadlineExceeded)
}

func TestTokenBucketCancelledWaitReturnsToken(t *testing.T) {
	tb := NewTokenBucket(1, 100*time.Millisecond)
	require.True(t, tb.Allow())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, tb.Wait(ctx), context.Canceled)

	time.Sleep(120 * time.Millisecond)
	assert.True(t, tb.Allow())
}

func TestSlidingWindow(t *testing.T) {
	sw := NewSlidingWindow(3, 200*time.Millisecond)

	for i := 0; i < 3; i++ {
		assert.True(t, sw.Allow(), "request %d should be allowed", i+1)
	}
	assert.False(t, sw.Allow(), "window should be full")

	time.Sleep(250 * time.Millisecond)
	assert.True(t, sw.Allow(), "old requests should leave the window")

	sw.Reset()
	assert.Empty(t, sw.requests)
}

func TestSlidingWindowWaitCancelled(t *testing.T) {
	sw := NewSlidingWindow(1, time.Hour)
	require.True(t, sw.Allow())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, sw.Wait(ctx), context.Canceled)
}

func TestNew(t *testing.T) {
	assert.IsType(t, Unlimited{}, New(0, 10))
	assert.IsType(t, &SlidingWindow{}, New(60, 0))

	bucket, ok := New(120, 10).(*TokenBucket)
	require.True(t, ok)
	assert.Equal(t, 10, bucket.capacity)
	assert.Equal(t, 5*time.Second, bucket.refillPeriod)

	capped, ok := New(5, 50).(*TokenBucket)
	require.True(t, ok)
	assert.Equal(t, 5, capped.capacity)
	assert.Equal(t, time.Minute, capped.refillPeriod)
}

func TestUnlimited(t *testing.T) {
	var l Limiter = Unlimited{}
	for i := 0; i < 100; i++ {
		assert.True(t, l.Allow())
	}
	assert.NoError(t, l.Wait(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, l.Wait(ctx), context.Canceled)
}
