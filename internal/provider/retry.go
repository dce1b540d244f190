package provider

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/tjfontaine/llm-council/internal/domain"
)

const maxAttempts = 3

// queryWithRetry runs fn up to three times with exponential backoff
// starting at 2s and capped at 10s. Transport and HTTP-level failures are
// retried; missing credentials and context cancellation are not. The last
// attempt's failure propagates rather than being swallowed.
func queryWithRetry(ctx context.Context, fn func(ctx context.Context) (*domain.QueryResult, error)) (*domain.QueryResult, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 2 * time.Second
	b.MaxInterval = 10 * time.Second
	b.RandomizationFactor = 0

	policy := backoff.WithContext(backoff.WithMaxRetries(b, maxAttempts-1), ctx)

	var result *domain.QueryResult
	err := backoff.Retry(func() error {
		res, err := fn(ctx)
		if err != nil {
			if errors.Is(err, ErrNoCredential) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return backoff.Permanent(err)
			}
			return err
		}
		result = res
		return nil
	}, policy)
	if err != nil {
		return nil, err
	}
	return result, nil
}
