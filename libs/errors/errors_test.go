package errors_test

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	errutil "github.com/portal-pay/portal-go/libs/errors"
	testutils "github.com/portal-pay/portal-go/libs/test"
)

type timeoutErr struct{}

func (te *timeoutErr) Error() string {
	return "timeout"
}

func TestMultiErrorUnwrap(t *testing.T) {
	var (
		root    = errors.New("connection reset")
		step    = fmt.Errorf("write failed: %w", root)
		outer   = fmt.Errorf("publish failed: %w", step)
		second  = errors.New("commit failed")
		typeful = &timeoutErr{}
	)

	merr := &errutil.MultiError{}
	merr.Append(outer, second, typeful)

	// every link of every collected chain must be reachable
	assert.True(t, errors.Is(merr, outer))
	assert.True(t, errors.Is(merr, step))
	assert.True(t, errors.Is(merr, root))
	assert.True(t, errors.Is(merr, second))

	var te *timeoutErr
	assert.True(t, errors.As(merr, &te))
}

func TestMultiErrorError(t *testing.T) {
	merr := &errutil.MultiError{}
	assert.Equal(t, 0, merr.Count())

	merr.Append(errors.New("first"), errors.New("second"))

	assert.Equal(t, 2, merr.Count())
	assert.Equal(t, "first; second", merr.Error())
}

func TestErrorBundle_DataToString_DataNil(t *testing.T) {
	err := errutil.Wrap(errors.New(testutils.RandomString()), testutils.RandomString())

	var bundle *errutil.ErrorBundle
	assert.True(t, errors.As(err, &bundle))
	assert.Equal(t, "no error bundle data", bundle.DataToString())
}

func TestErrorBundle_DataToString_MarshallError(t *testing.T) {
	// funcs have no json representation
	err := errutil.New(errors.New(testutils.RandomString()), testutils.RandomString(), func() {})

	var bundle *errutil.ErrorBundle
	assert.True(t, errors.As(err, &bundle))
	assert.Contains(t, bundle.DataToString(), "error retrieving error bundle data")
}

func TestErrorBundle_DataToString(t *testing.T) {
	data := testutils.RandomString()
	err := errutil.New(errors.New(testutils.RandomString()), testutils.RandomString(), data)

	expected, merr := json.Marshal(data)
	assert.NoError(t, merr)

	var bundle *errutil.ErrorBundle
	assert.True(t, errors.As(err, &bundle))
	assert.Equal(t, string(expected), bundle.DataToString())
}

func TestErrorBundle_CauseAndMessage(t *testing.T) {
	cause := errors.New(testutils.RandomString())
	message := testutils.RandomString()

	err := errutil.Wrap(cause, message)

	assert.Equal(t, message, err.Error())
	assert.True(t, errors.Is(err, cause))

	var bundle *errutil.ErrorBundle
	assert.True(t, errors.As(err, &bundle))
	assert.Equal(t, cause, bundle.Cause())
}
