package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sleepRecorder struct {
	calls []time.Duration
}

func (s *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	s.calls = append(s.calls, d)
	return nil
}

func flaky(failures int) (func(ctx context.Context) (string, error), *int) {
	calls := 0
	return func(ctx context.Context) (string, error) {
		calls++
		if calls <= failures {
			return "", errors.New("upstream unavailable")
		}
		return "ok", nil
	}, &calls
}

func TestDoSucceedsOnThirdAttempt(t *testing.T) {
	rec := &sleepRecorder{}
	exec := NewExecutor(Policy{MaxRetries: 2, RetryInterval: 250 * time.Millisecond}).WithSleeper(rec.sleep)
	op, calls := flaky(2)

	var failed []int
	result, ok, err := Do(context.Background(), exec, op, func(attempt int, err error) {
		failed = append(failed, attempt)
	})

	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 3, *calls)
	assert.Equal(t, []int{1, 2}, failed)
	assert.Equal(t, []time.Duration{250 * time.Millisecond, 250 * time.Millisecond}, rec.calls)
}

func TestDoFailSoftReturnsNoResult(t *testing.T) {
	rec := &sleepRecorder{}
	exec := NewExecutor(Policy{MaxRetries: 1, RetryInterval: time.Second}).WithSleeper(rec.sleep)
	op, calls := flaky(10)

	result, ok, err := Do(context.Background(), exec, op, nil)

	assert.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, result)
	assert.Equal(t, 2, *calls)
	assert.Len(t, rec.calls, 1)
}

func TestDoFailFastAbortsOnFirstFailure(t *testing.T) {
	rec := &sleepRecorder{}
	exec := NewExecutor(Policy{MaxRetries: 5, RetryInterval: time.Second, FailOnError: true}).WithSleeper(rec.sleep)
	op, calls := flaky(10)

	var reported int
	_, ok, err := Do(context.Background(), exec, op, func(attempt int, err error) { reported++ })

	require.Error(t, err)
	assert.False(t, ok)
	assert.Equal(t, 1, *calls)
	assert.Equal(t, 1, reported)
	assert.Empty(t, rec.calls)
}

func TestDoNoSleepBeforeFirstAttempt(t *testing.T) {
	rec := &sleepRecorder{}
	exec := NewExecutor(Policy{MaxRetries: 3, RetryInterval: time.Second}).WithSleeper(rec.sleep)
	op, _ := flaky(0)

	_, ok, err := Do(context.Background(), exec, op, nil)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, rec.calls)
}

func TestDoCancelledDuringWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	exec := NewExecutor(Policy{MaxRetries: 2, RetryInterval: time.Hour})
	op, calls := flaky(10)

	_, ok, err := Do(ctx, exec, op, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, ok)
	assert.Equal(t, 1, *calls)
}

func TestPolicyAttempts(t *testing.T) {
	assert.Equal(t, 1, Policy{}.Attempts())
	assert.Equal(t, 4, Policy{MaxRetries: 3}.Attempts())
	assert.Equal(t, 1, Policy{MaxRetries: -2}.Attempts())
}
