package engine

import (
	"bfbot/internal/exchange"
	"bfbot/internal/lifecycle"
	"bfbot/internal/models"
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

type retryPolicy struct {
	Attempts int
	Delay    time.Duration
	// Fixed keeps Delay between attempts instead of doubling it.
	Fixed bool
}

var feedRetry = retryPolicy{Attempts: 5, Delay: 1 * time.Second}

func withRetry[T any](ctx context.Context, entry *logrus.Entry, policy retryPolicy, fn func() (T, error)) (T, error) {
	var zero T
	var lastErr error
	backoff := policy.Delay
	attempts := policy.Attempts
	if attempts < 1 {
		attempts = 1
	}
	for i := 0; i < attempts; i++ {
		val, err := fn()
		if err == nil {
			return val, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		if i == attempts-1 {
			break
		}
		wait := time.Duration(math.Min(float64(backoff), float64(policy.Delay*30)))
		if isRateLimitError(err) {
			wait = time.Duration(math.Min(float64(backoff*4), float64(policy.Delay*30)))
		}
		entry.WithError(lastErr).WithField("attempt", i+1).Warn("Ошибка, повторяем запрос.")
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(wait):
		}
		if !policy.Fixed {
			backoff *= 2
		}
	}
	return zero, lastErr
}

func withRetryVoid(ctx context.Context, entry *logrus.Entry, policy retryPolicy, fn func() error) error {
	_, err := withRetry(ctx, entry, policy, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

func isRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "429") || strings.Contains(msg, "Too Many Requests") || strings.Contains(msg, "Out of allowance")
}

// isRecoverable reports whether a failed lifecycle call can simply be tried again on a later tick.
func isRecoverable(err error) bool {
	return errors.Is(err, exchange.ErrVenueDegraded) ||
		errors.Is(err, exchange.ErrQuoteUnavailable) ||
		errors.Is(err, exchange.ErrSubmissionRejected) ||
		errors.Is(err, exchange.ErrCancelRejected) ||
		errors.Is(err, exchange.ErrExecutionQuery) ||
		errors.Is(err, lifecycle.ErrPrecondition)
}

func normalizeSide(side string) (models.OrderSide, error) {
	switch strings.ToUpper(strings.TrimSpace(side)) {
	case "BUY":
		return models.OrderSideBuy, nil
	case "SELL":
		return models.OrderSideSell, nil
	default:
		return "", fmt.Errorf("Некорректное направление: %s", side)
	}
}
