package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cuemby/nomad-bootstrap/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDo_SuccessFirstAttempt(t *testing.T) {
	attempts := 0
	result, err := Do(context.Background(), "download", func(ctx context.Context) (string, error) {
		attempts++
		return "ok", nil
	}, WithDelay(time.Millisecond))

	require.NoError(t, err)
	assert.Equal(t, "ok", result.Value)
	assert.Equal(t, 1, result.Attempts)
	assert.Equal(t, 1, attempts)
}

func TestDo_SucceedsOnThirdAttempt(t *testing.T) {
	attempts := 0
	result, err := Do(context.Background(), "download", func(ctx context.Context) (string, error) {
		attempts++
		if attempts < 3 {
			return "", errors.New("connection reset")
		}
		return "archive", nil
	}, WithDelay(time.Millisecond))

	require.NoError(t, err)
	assert.Equal(t, "archive", result.Value)
	assert.Equal(t, 3, result.Attempts)
	assert.Equal(t, 3, attempts)
}

func TestDo_ExhaustsDefaultBudget(t *testing.T) {
	attempts := 0
	lastErr := errors.New("503 service unavailable")
	result, err := Do(context.Background(), "download", func(ctx context.Context) (int, error) {
		attempts++
		return 0, lastErr
	}, WithDelay(time.Millisecond))

	require.Error(t, err)
	assert.Equal(t, DefaultMaxAttempts, attempts)
	assert.Equal(t, 5, result.Attempts)
	assert.ErrorIs(t, err, lastErr)
	assert.True(t, types.IsKind(err, types.KindTransient))
}

func TestDo_PermanentErrorStopsImmediately(t *testing.T) {
	attempts := 0
	_, err := Do(context.Background(), "download", func(ctx context.Context) (int, error) {
		attempts++
		return 0, Permanent(errors.New("404 not found"))
	}, WithDelay(time.Millisecond))

	require.Error(t, err)
	assert.True(t, IsPermanent(err))
	assert.Equal(t, 1, attempts)
	assert.False(t, types.IsKind(err, types.KindTransient))
}

func TestDo_ContextCancelledDuringDelay(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	_, err := Do(ctx, "download", func(ctx context.Context) (int, error) {
		attempts++
		cancel()
		return 0, errors.New("timeout")
	}, WithDelay(time.Hour))

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, attempts)
}

func TestDo_FixedDelay(t *testing.T) {
	var stamps []time.Time
	delay := 30 * time.Millisecond
	_, err := Do(context.Background(), "download", func(ctx context.Context) (int, error) {
		stamps = append(stamps, time.Now())
		return 0, errors.New("fail")
	}, WithMaxAttempts(3), WithDelay(delay))

	require.Error(t, err)
	require.Len(t, stamps, 3)
	for i := 1; i < len(stamps); i++ {
		assert.GreaterOrEqual(t, stamps[i].Sub(stamps[i-1]), delay)
	}
}

func TestDo_Observer(t *testing.T) {
	var seen []int
	_, _ = Do(context.Background(), "download", func(ctx context.Context) (int, error) {
		return 0, errors.New("fail")
	}, WithMaxAttempts(2), WithDelay(time.Millisecond), WithObserver(func(desc string, attempt int, err error) {
		assert.Equal(t, "download", desc)
		assert.Error(t, err)
		seen = append(seen, attempt)
	}))

	assert.Equal(t, []int{1, 2}, seen)
}

func TestDo_ZeroAttemptsStillRunsOnce(t *testing.T) {
	attempts := 0
	_, err := Do(context.Background(), "download", func(ctx context.Context) (int, error) {
		attempts++
		return 0, nil
	}, WithMaxAttempts(0))

	require.NoError(t, err)
	assert.Equal(t, 1, attempts)
}

func TestPermanent(t *testing.T) {
	assert.Nil(t, Permanent(nil))

	base := errors.New("bad")
	err := Permanent(base)
	assert.True(t, IsPermanent(err))
	assert.ErrorIs(t, err, base)
	assert.Equal(t, "bad", err.Error())
	assert.False(t, IsPermanent(base))
}
