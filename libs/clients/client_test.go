package clients

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	should "github.com/stretchr/testify/assert"
	must "github.com/stretchr/testify/require"

	"github.com/portal-pay/portal-go/libs/errors"
	testutils "github.com/portal-pay/portal-go/libs/test"
)

func TestDo_ErrorWithResponse(t *testing.T) {
	body := testutils.RandomString()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, err := w.Write([]byte(body))
		should.NoError(t, err)
	}))
	defer ts.Close()

	client, err := New(ts.URL, "")
	must.NoError(t, err)

	req, err := http.NewRequest(http.MethodGet, ts.URL, nil)
	must.NoError(t, err)

	// a non-json body makes the decode step fail
	var data *string
	resp, err := client.Do(context.Background(), req, data)
	must.NotNil(t, resp)

	var bundle *errors.ErrorBundle
	must.ErrorAs(t, err, &bundle)
	should.Equal(t, "response", bundle.Error())
	should.NotNil(t, bundle.Cause())

	state, ok := bundle.Data().(HTTPState)
	must.True(t, ok)
	should.Equal(t, http.StatusOK, state.Status)
	should.Equal(t, ts.URL, state.Path)
	should.Contains(t, fmt.Sprintf("%+v", state.Body), body)
}

func TestUnwrapHTTPState(t *testing.T) {
	inner := NewHTTPError(should.AnError, "/v1/orders", "request error", http.StatusServiceUnavailable, "upstream gone")
	wrapped := fmt.Errorf("calling gateway: %w", inner)

	state, ok := UnwrapHTTPState(wrapped)
	must.True(t, ok)
	should.Equal(t, http.StatusServiceUnavailable, state.Status)
	should.Equal(t, "/v1/orders", state.Path)

	_, ok = UnwrapHTTPState(should.AnError)
	should.False(t, ok)
}
