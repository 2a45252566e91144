package ai

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	apperrors "github.com/xxxsen/webrag/internal/pkg/errors"
)

func fastPolicy(attempts int) RetryPolicy {
	return RetryPolicy{MaxAttempts: attempts, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
}

func TestDo_RetriesTransientUntilSuccess(t *testing.T) {
	calls := 0
	err := fastPolicy(3).Do(context.Background(), "op", func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return fmt.Errorf("overloaded: %w", apperrors.ErrTransient)
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, calls)
}

func TestDo_PermanentFailsImmediately(t *testing.T) {
	calls := 0
	err := fastPolicy(5).Do(context.Background(), "op", func(ctx context.Context) error {
		calls++
		return fmt.Errorf("bad api key: %w", apperrors.ErrPermanent)
	})
	require.Error(t, err)
	require.Equal(t, 1, calls)
	require.True(t, apperrors.IsPermanent(err))
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	calls := 0
	err := fastPolicy(3).Do(context.Background(), "op", func(ctx context.Context) error {
		calls++
		return fmt.Errorf("overloaded: %w", apperrors.ErrTransient)
	})
	require.Error(t, err)
	require.Equal(t, 3, calls)
	require.True(t, apperrors.IsTransient(err))
}

func TestDo_ContextCancelStopsRetry(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := fastPolicy(10).Do(ctx, "op", func(ctx context.Context) error {
		calls++
		cancel()
		return fmt.Errorf("overloaded: %w", apperrors.ErrTransient)
	})
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, calls)
}

func TestClassifyHTTPError(t *testing.T) {
	require.True(t, apperrors.IsTransient(ClassifyHTTPError(http.StatusTooManyRequests, "slow down")))
	require.True(t, apperrors.IsTransient(ClassifyHTTPError(http.StatusBadGateway, "upstream")))
	require.True(t, apperrors.IsTransient(ClassifyHTTPError(http.StatusRequestTimeout, "timeout")))
	require.True(t, apperrors.IsPermanent(ClassifyHTTPError(http.StatusUnauthorized, "bad key")))
	require.True(t, apperrors.IsPermanent(ClassifyHTTPError(http.StatusBadRequest, "malformed")))
}

func TestClassifyCallError(t *testing.T) {
	require.NoError(t, ClassifyCallError(nil))
	require.ErrorIs(t, ClassifyCallError(context.Canceled), context.Canceled)
	require.True(t, apperrors.IsTransient(ClassifyCallError(context.DeadlineExceeded)))
	require.True(t, apperrors.IsPermanent(ClassifyCallError(fmt.Errorf("connection refused"))))
}

func TestBackoff_Caps(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 10, BaseDelay: time.Second, MaxDelay: 4 * time.Second}
	require.Equal(t, time.Second, p.backoff(1))
	require.Equal(t, 2*time.Second, p.backoff(2))
	require.Equal(t, 4*time.Second, p.backoff(3))
	require.Equal(t, 4*time.Second, p.backoff(6))
}
