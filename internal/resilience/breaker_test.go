package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func TestBreakerTransitions(t *testing.T) {
	MustRegisterMetrics("test", prometheus.NewRegistry())
	c := &clock{t: time.Date(2024, 5, 20, 10, 0, 0, 0, time.UTC)}
	b := NewBreaker(Config{Target: "events", MinRequests: 2, FailureRatio: 0.5, OpenFor: time.Minute, Now: c.now})
	ctx := context.Background()

	require.True(t, b.Allow(ctx))
	b.Report(ctx, false)
	require.True(t, b.Allow(ctx))
	b.Report(ctx, false)
	require.Equal(t, Open, b.State())
	require.False(t, b.Allow(ctx))
	require.Equal(t, 1.0, testutil.ToFloat64(breakerState.WithLabelValues("events")))

	c.advance(time.Minute)
	require.True(t, b.Allow(ctx))
	require.Equal(t, HalfOpen, b.State())
	require.False(t, b.Allow(ctx), "only one probe while half-open")

	b.Report(ctx, true)
	require.Equal(t, Closed, b.State())
	require.True(t, b.Allow(ctx))

	require.Equal(t, 1.0, testutil.ToFloat64(breakerOpened.WithLabelValues("events")))
	require.Equal(t, 1.0, testutil.ToFloat64(breakerTransitions.WithLabelValues("events", "open", "half_open")))
	require.Equal(t, 1.0, testutil.ToFloat64(breakerTransitions.WithLabelValues("events", "half_open", "closed")))
}

func TestBreakerFailedProbeReopens(t *testing.T) {
	c := &clock{t: time.Date(2024, 5, 20, 10, 0, 0, 0, time.UTC)}
	b := NewBreaker(Config{MinRequests: 1, OpenFor: time.Second, Now: c.now})
	ctx := context.Background()

	boom := errors.New("boom")
	require.ErrorIs(t, b.Do(ctx, func(context.Context) error { return boom }), boom)
	require.ErrorIs(t, b.Do(ctx, func(context.Context) error { return nil }), ErrOpenCircuit)

	c.advance(time.Second)
	require.ErrorIs(t, b.Do(ctx, func(context.Context) error { return boom }), boom)
	require.Equal(t, Open, b.State())
}

func TestBreakerStaysClosedBelowRatio(t *testing.T) {
	b := NewBreaker(Config{MinRequests: 4, FailureRatio: 0.5})
	ctx := context.Background()
	for _, ok := range []bool{true, true, false, true, true, false, true} {
		require.True(t, b.Allow(ctx))
		b.Report(ctx, ok)
	}
	require.Equal(t, Closed, b.State())
}
