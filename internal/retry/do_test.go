package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/buildworker/internal/config"
)

var errTransient = errors.New("transient")

func linearFetchPolicy() Policy {
	return NewPolicy(config.RetryBackoffLinear, 15*time.Second, 45*time.Second, 2)
}

func TestDoSucceedsAfterFailures(t *testing.T) {
	clock := newRecordingClock()
	var retried []int
	calls := 0
	r := Retrier{
		Policy:  linearFetchPolicy(),
		Clock:   clock,
		OnRetry: func(attempt int, _ time.Duration, _ error) { retried = append(retried, attempt) },
	}

	err := r.Do(context.Background(), func(context.Context) error {
		calls++
		if calls <= 2 {
			return errTransient
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{1, 2}, retried)
	assert.Equal(t, []time.Duration{15 * time.Second, 30 * time.Second}, clock.recorded())
}

func TestDoExhaustsAttempts(t *testing.T) {
	clock := newRecordingClock()
	calls := 0
	r := Retrier{Policy: linearFetchPolicy(), Clock: clock}

	err := r.Do(context.Background(), func(context.Context) error {
		calls++
		return errTransient
	})

	require.ErrorIs(t, err, errTransient)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{15 * time.Second, 30 * time.Second}, clock.recorded())
}

func TestDoStopsOnNonRetryable(t *testing.T) {
	permanent := errors.New("permanent")
	calls := 0
	r := Retrier{
		Policy:      linearFetchPolicy(),
		Clock:       newRecordingClock(),
		ShouldRetry: func(err error) bool { return errors.Is(err, errTransient) },
	}

	err := r.Do(context.Background(), func(context.Context) error {
		calls++
		return permanent
	})

	require.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, calls)
}

func TestDoHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := Retrier{Policy: linearFetchPolicy(), Clock: newRecordingClock()}

	err := r.Do(ctx, func(context.Context) error { return errTransient })
	require.ErrorIs(t, err, context.Canceled)
}

func TestSleepZeroReturnsImmediately(t *testing.T) {
	clock := newRecordingClock()
	require.NoError(t, Sleep(context.Background(), clock, 0))
	assert.Empty(t, clock.recorded())
}
