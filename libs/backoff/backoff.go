// Package backoff retries fallible operations under a retry policy.
package backoff

import (
	"context"
	"time"

	"github.com/portal-pay/portal-go/libs/backoff/retrypolicy"
)

type (
	// RetryFunc matches Retry, letting services swap in a fake for tests.
	RetryFunc func(ctx context.Context, operation Operation, retryPolicy retrypolicy.Retry, IsRetriable IsRetriable) (interface{}, error)

	// Operation is the fallible call to be retried.
	Operation func() (interface{}, error)

	// IsRetriable reports whether the operation error is worth retrying.
	IsRetriable func(error) bool
)

// Retry runs operation until it succeeds, the error is not retriable, the
// policy gives up, or ctx is done. Delays between attempts come from the
// policy and are cut short by ctx cancellation.
func Retry(ctx context.Context, operation Operation, retryPolicy retrypolicy.Retry, IsRetriable IsRetriable) (interface{}, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		response, err := operation()
		if err == nil {
			return response, nil
		}
		if !IsRetriable(err) {
			return nil, err
		}

		next := retryPolicy.CalculateNextDelay()
		if next == retrypolicy.Done {
			return nil, err
		}

		select {
		case <-time.After(next):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}
