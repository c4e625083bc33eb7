package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/hr-qa/backend/pkg/errors"
)

var errBoom = errors.New("boom")

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(cfg Config) (*Breaker, *clock) {
	c := &clock{t: time.Unix(1_700_000_000, 0)}
	b := New("llm", cfg)
	b.now = c.now
	b.since = c.t
	return b, c
}

func fail() error { return errBoom }

func succeed() error { return nil }

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	var transitions []string
	b, _ := newTestBreaker(Config{
		TripAfter: 2,
		Cooldown:  time.Hour,
		OnStateChange: func(_ string, from, to State) {
			transitions = append(transitions, from.String()+"->"+to.String())
		},
	})

	ctx := context.Background()
	assert.ErrorIs(t, b.Execute(ctx, fail), errBoom)
	assert.Equal(t, StateClosed, b.State())
	assert.ErrorIs(t, b.Execute(ctx, fail), errBoom)
	assert.Equal(t, StateOpen, b.State())

	called := false
	err := b.Execute(ctx, func() error { called = true; return nil })
	require.Error(t, err)
	assert.False(t, called)
	assert.True(t, apperrors.IsBackendUnavailable(err))

	var se *apperrors.StandardError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "llm", se.Metadata["breaker"])
	assert.Equal(t, []string{"closed->open"}, transitions)
}

func TestSuccessResetsFailureStreak(t *testing.T) {
	b, _ := newTestBreaker(Config{TripAfter: 2})
	ctx := context.Background()

	_ = b.Execute(ctx, fail)
	require.NoError(t, b.Execute(ctx, succeed))
	_ = b.Execute(ctx, fail)

	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, Stats{Requests: 3, Successes: 1, Failures: 2, ConsecutiveFailures: 1}, b.Stats())
}

func TestBreakerRecoversThroughHalfOpen(t *testing.T) {
	b, c := newTestBreaker(Config{TripAfter: 1, CloseAfter: 2, TrialRequests: 1, Cooldown: time.Second})
	ctx := context.Background()

	_ = b.Execute(ctx, fail)
	assert.Equal(t, StateOpen, b.State())

	c.advance(time.Second)
	assert.Equal(t, StateHalfOpen, b.State())

	// Trials are sequential, so more successes than in-flight slots are fine.
	require.NoError(t, b.Execute(ctx, succeed))
	assert.Equal(t, StateHalfOpen, b.State())
	require.NoError(t, b.Execute(ctx, succeed))
	assert.Equal(t, StateClosed, b.State())
}

func TestHalfOpenLimitsInFlightTrials(t *testing.T) {
	b, c := newTestBreaker(Config{TripAfter: 1, TrialRequests: 1, Cooldown: time.Second})
	ctx := context.Background()

	_ = b.Execute(ctx, fail)
	c.advance(time.Second)

	err := b.Execute(ctx, func() error {
		inner := b.Execute(ctx, succeed)
		assert.True(t, apperrors.IsBackendUnavailable(inner))
		return nil
	})
	require.NoError(t, err)
}

func TestHalfOpenFailureReopens(t *testing.T) {
	b, c := newTestBreaker(Config{TripAfter: 3, Cooldown: time.Second})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_ = b.Execute(ctx, fail)
	}
	c.advance(time.Second)
	require.Equal(t, StateHalfOpen, b.State())

	_ = b.Execute(ctx, fail)
	assert.Equal(t, StateOpen, b.State())
}

func TestResetIntervalClearsClosedTallies(t *testing.T) {
	b, c := newTestBreaker(Config{TripAfter: 2, ResetInterval: time.Minute})
	ctx := context.Background()

	_ = b.Execute(ctx, fail)
	c.advance(time.Minute)
	_ = b.Execute(ctx, fail)

	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, uint32(1), b.Stats().ConsecutiveFailures)
}

func TestCancellationDoesNotTrip(t *testing.T) {
	b, _ := newTestBreaker(Config{TripAfter: 1})

	err := b.Execute(context.Background(), func() error { return context.Canceled })
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, uint32(1), b.Stats().Successes)
}

func TestPanicCountsAsFailure(t *testing.T) {
	b, _ := newTestBreaker(Config{TripAfter: 1})

	assert.Panics(t, func() {
		_ = b.Execute(context.Background(), func() error { panic("bad response") })
	})
	assert.Equal(t, StateOpen, b.State())
}

func TestExecuteSkipsWhenContextDone(t *testing.T) {
	b, _ := newTestBreaker(Config{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := b.Execute(ctx, func() error { called = true; return nil })
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
	assert.Equal(t, "llm", b.Name())
	assert.Equal(t, "half-open", StateHalfOpen.String())
}
