package retrypolicy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	testutils "github.com/portal-pay/portal-go/libs/test"
)

func TestNewValidatesOptions(t *testing.T) {
	t.Parallel()

	_, err := New(WithInitialInterval(-time.Second))
	assert.Error(t, err)

	_, err = New(WithBackoffCoefficient(0.5))
	assert.Error(t, err)

	_, err = New(WithMaximumInterval(-time.Second))
	assert.Error(t, err)

	_, err = New(WithExpirationInterval(-time.Second))
	assert.Error(t, err)

	_, err = New(WithMaximumAttempts(-1))
	assert.Error(t, err)

	retry, err := New(
		WithInitialInterval(time.Second),
		WithBackoffCoefficient(float64(testutils.RandomNonZeroInt(10))),
		WithMaximumInterval(time.Second),
		WithExpirationInterval(time.Second),
		WithMaximumAttempts(testutils.RandomInt()),
	)
	require.NoError(t, err)
	assert.NotNil(t, retry)
}

func TestCalculateNextDelayStops(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		policy policy
	}{
		{
			name:   "attempts exhausted",
			policy: policy{currentAttempt: 1, maximumAttempt: 1},
		},
		{
			name: "policy expired",
			policy: policy{
				maximumAttempt:     10,
				expirationInterval: 10 * time.Second,
				startTime:          time.Now().Add(-11 * time.Second),
			},
		},
		{
			name: "zero interval",
			policy: policy{
				maximumAttempt:     1,
				expirationInterval: 10 * time.Second,
				startTime:          time.Now(),
			},
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, Done, tc.policy.CalculateNextDelay())
		})
	}
}

func TestCalculateNextDelayDoubles(t *testing.T) {
	t.Parallel()

	retry, err := New(
		WithInitialInterval(defaultInitialInterval),
		WithBackoffCoefficient(defaultBackoffCoefficient),
		WithMaximumInterval(defaultMaximumInterval),
		WithExpirationInterval(defaultExpirationInterval),
		WithMaximumAttempts(defaultMaximumAttempts),
	)
	require.NoError(t, err)

	expected := []time.Duration{
		50 * time.Millisecond,
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		800 * time.Millisecond,
		1600 * time.Millisecond,
		3200 * time.Millisecond,
		6400 * time.Millisecond,
		// capped at the maximum interval from here on
		10 * time.Second,
		10 * time.Second,
	}

	for _, want := range expected {
		got := retry.CalculateNextDelay()
		// jitter keeps delays within 20% below the raw interval
		assert.GreaterOrEqual(t, got, time.Duration(0.8*float64(want)))
		assert.LessOrEqual(t, got, want)
	}

	assert.Equal(t, Done, retry.CalculateNextDelay())
}

func TestNoRetryNeverRetries(t *testing.T) {
	t.Parallel()
	assert.Equal(t, Done, NoRetry.CalculateNextDelay())
	assert.Equal(t, Done, NoRetry.CalculateNextDelay())
}
