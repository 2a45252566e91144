package ai

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	apperrors "github.com/xxxsen/webrag/internal/pkg/errors"
)

type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    8 * time.Second,
	}
}

// Do runs op, retrying with exponential backoff while the failure is
// classified as transient. Permanent failures and context cancellation
// surface immediately.
func (p RetryPolicy) Do(ctx context.Context, name string, op func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(p.backoff(attempt)):
			}
			logutil.GetLogger(ctx).Debug("retrying",
				zap.String("op", name),
				zap.Int("attempt", attempt+1),
				zap.Error(lastErr),
			)
		}
		err := op(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		if !apperrors.IsTransient(err) {
			return err
		}
	}
	return fmt.Errorf("%s: retries exhausted: %w", name, lastErr)
}

func (p RetryPolicy) backoff(attempt int) time.Duration {
	delay := p.BaseDelay
	if delay <= 0 {
		delay = 500 * time.Millisecond
	}
	for i := 1; i < attempt; i++ {
		delay *= 2
		if p.MaxDelay > 0 && delay >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	return delay
}

// ClassifyHTTPError maps a provider response status to the retry taxonomy.
// Rate limiting and server-side failures are retryable; auth and malformed
// request errors are not.
func ClassifyHTTPError(status int, detail string) error {
	switch {
	case status == http.StatusTooManyRequests || status == http.StatusRequestTimeout || status >= http.StatusInternalServerError:
		return fmt.Errorf("provider status %d: %s: %w", status, detail, apperrors.ErrTransient)
	default:
		return fmt.Errorf("provider status %d: %s: %w", status, detail, apperrors.ErrPermanent)
	}
}

// ClassifyCallError tags low-level transport failures. Timeouts and
// temporary network errors retry; everything else is permanent.
func ClassifyCallError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("%v: %w", err, apperrors.ErrTransient)
	}
	return fmt.Errorf("%v: %w", err, apperrors.ErrPermanent)
}
