// Package retrypolicy implements a retry policy with exponential backoff and jitter.
package retrypolicy

import (
	"errors"
	"math"
	"math/rand"
	"time"
)

const (
	// Done signals no further retries should be attempted
	Done time.Duration = -1

	defaultInitialInterval    = 50 * time.Millisecond
	defaultBackoffCoefficient = 2.0
	defaultMaximumInterval    = 10 * time.Second
	defaultExpirationInterval = time.Minute
	defaultMaximumAttempts    = 10

	retryJitter = 0.2
)

type (
	// Retry defines the methods of a retry policy
	Retry interface {
		CalculateNextDelay() time.Duration
	}

	// Option func to build a retry policy
	Option func(policy *policy) error

	policy struct {
		initialInterval    time.Duration
		backoffCoefficient float64
		maximumInterval    time.Duration
		expirationInterval time.Duration
		maximumAttempt     int

		currentAttempt int
		startTime      time.Time
	}
)

var (
	// DefaultRetry is a general purpose retry policy
	DefaultRetry = must(New(
		WithInitialInterval(defaultInitialInterval),
		WithBackoffCoefficient(defaultBackoffCoefficient),
		WithMaximumInterval(defaultMaximumInterval),
		WithExpirationInterval(defaultExpirationInterval),
		WithMaximumAttempts(defaultMaximumAttempts),
	))

	// NoRetry is a retry policy which never retries
	NoRetry = must(New())
)

func must(retry Retry, err error) Retry {
	if err != nil {
		panic(err)
	}
	return retry
}

// New returns a new retry policy built from the given options
func New(options ...Option) (Retry, error) {
	policy := new(policy)
	policy.startTime = time.Now()
	for _, option := range options {
		if err := option(policy); err != nil {
			return nil, err
		}
	}
	return policy, nil
}

// WithInitialInterval sets the delay before the first retry
func WithInitialInterval(initialInterval time.Duration) Option {
	return func(policy *policy) error {
		if initialInterval < 0 {
			return errors.New("retrypolicy: initial interval cannot be negative")
		}
		policy.initialInterval = initialInterval
		return nil
	}
}

// WithBackoffCoefficient sets the multiplier applied to the interval each attempt
func WithBackoffCoefficient(backoffCoefficient float64) Option {
	return func(policy *policy) error {
		if backoffCoefficient < 1 {
			return errors.New("retrypolicy: backoff coefficient cannot be less than 1")
		}
		policy.backoffCoefficient = backoffCoefficient
		return nil
	}
}

// WithMaximumInterval caps the delay between retries
func WithMaximumInterval(maximumInterval time.Duration) Option {
	return func(policy *policy) error {
		if maximumInterval < 0 {
			return errors.New("retrypolicy: maximum interval cannot be negative")
		}
		policy.maximumInterval = maximumInterval
		return nil
	}
}

// WithExpirationInterval bounds the total time spent retrying from policy creation
func WithExpirationInterval(expirationInterval time.Duration) Option {
	return func(policy *policy) error {
		if expirationInterval < 0 {
			return errors.New("retrypolicy: expiration interval cannot be negative")
		}
		policy.expirationInterval = expirationInterval
		return nil
	}
}

// WithMaximumAttempts sets the maximum number of retries
func WithMaximumAttempts(maximumAttempts int) Option {
	return func(policy *policy) error {
		if maximumAttempts < 0 {
			return errors.New("retrypolicy: maximum attempts cannot be negative")
		}
		policy.maximumAttempt = maximumAttempts
		return nil
	}
}

// CalculateNextDelay returns the delay before the next attempt or Done when
// the attempts are exhausted or the policy has expired
func (p *policy) CalculateNextDelay() time.Duration {
	if p.currentAttempt >= p.maximumAttempt {
		return Done
	}

	if p.expirationInterval > 0 && time.Now().After(p.startTime.Add(p.expirationInterval)) {
		return Done
	}

	nextInterval := float64(p.initialInterval) * math.Pow(p.backoffCoefficient, float64(p.currentAttempt))
	if nextInterval <= 0 {
		return Done
	}

	if p.maximumInterval > 0 {
		nextInterval = math.Min(nextInterval, float64(p.maximumInterval))
	}

	if jitterPortion := int(retryJitter * nextInterval); jitterPortion > 0 {
		nextInterval = nextInterval*(1-retryJitter) + float64(rand.Intn(jitterPortion))
	}

	p.currentAttempt++

	return time.Duration(nextInterval)
}
