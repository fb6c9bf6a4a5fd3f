package resilience_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/organoz/village-market/internal/resilience"
)

func TestBreakerOpensAndRecovers(t *testing.T) {
	breaker := resilience.NewBreaker(2, 0.5, 50*time.Millisecond)
	ctx := context.Background()

	require.True(t, breaker.Allow(ctx))
	breaker.Report(ctx, false)
	require.True(t, breaker.Allow(ctx))
	breaker.Report(ctx, false)

	require.False(t, breaker.Allow(ctx), "breaker stays open inside the cool-off")

	time.Sleep(60 * time.Millisecond)
	require.True(t, breaker.Allow(ctx), "cool-off expiry admits a probe")
	breaker.Report(ctx, true)
	require.True(t, breaker.Allow(ctx), "successful probe closes the breaker")
}

func TestBackoffGrowth(t *testing.T) {
	base := 100 * time.Millisecond
	require.Equal(t, base, resilience.Backoff(base, 1, 0))
	require.Equal(t, base*4, resilience.Backoff(base, 3, 0))

	d := resilience.Backoff(base, 2, 0.2)
	low := base*2 - (base * 2 / 5)
	high := base*2 + (base * 2 / 5)
	require.GreaterOrEqual(t, d, low)
	require.LessOrEqual(t, d, high)
}
