// Package clients provides the http plumbing shared by the portal's outbound
// API clients.
package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httputil"
	"net/url"
	"regexp"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"github.com/portal-pay/portal-go/libs/closers"
	appctx "github.com/portal-pay/portal-go/libs/context"
	"github.com/portal-pay/portal-go/libs/errors"
	"github.com/portal-pay/portal-go/libs/middleware"
	"github.com/portal-pay/portal-go/libs/requestutils"
)

const requestTimeout = 10 * time.Second

// header patterns scrubbed from debug request dumps
var redactions = []struct {
	pattern     *regexp.Regexp
	replacement []byte
}{
	{regexp.MustCompile(`(?i)authorization: (?i)basic.+\n`), []byte("Authorization: Basic <token>\n")},
	{regexp.MustCompile(`(?i)authorization: (?i)bearer.+\n`), []byte("Authorization: Bearer <token>\n")},
	{regexp.MustCompile(`(?i)signature: .+\n`), []byte("Signature: <sig>\n")},
	{regexp.MustCompile(`(?i)x-gateway-signature: .+\n`), []byte("X-Gateway-Signature: <sig>\n")},
}

// RedactSensitiveHeaders scrubs credentials out of an http request dump.
func RedactSensitiveHeaders(corpus []byte) []byte {
	for _, r := range redactions {
		corpus = r.pattern.ReplaceAll(corpus, r.replacement)
	}
	return corpus
}

var concurrentClientRequests = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "concurrent_client_requests",
		Help: "Gauge that holds the current number of client requests",
	},
	[]string{"host", "method"},
)

func init() {
	prometheus.MustRegister(concurrentClientRequests)
}

// SimpleHTTPClient wraps http.Client for bearer token authorized JSON requests.
type SimpleHTTPClient struct {
	BaseURL   *url.URL
	AuthToken string

	client *http.Client
}

// New returns a SimpleHTTPClient rooted at serverURL.
func New(serverURL string, authToken string) (*SimpleHTTPClient, error) {
	return NewWithHTTPClient(serverURL, authToken, &http.Client{
		Timeout: requestTimeout,
	})
}

// NewWithHTTPClient returns a SimpleHTTPClient using the provided http.Client.
func NewWithHTTPClient(serverURL string, authToken string, client *http.Client) (*SimpleHTTPClient, error) {
	baseURL, err := url.Parse(serverURL)
	if err != nil {
		return nil, err
	}

	return &SimpleHTTPClient{
		BaseURL:   baseURL,
		AuthToken: authToken,
		client:    client,
	}, nil
}

// NewInstrumented returns a SimpleHTTPClient whose transport reports request
// counts and latency to prometheus under the given name.
func NewInstrumented(name, serverURL, authToken string) (*SimpleHTTPClient, error) {
	return NewWithHTTPClient(serverURL, authToken, &http.Client{
		Timeout:   requestTimeout,
		Transport: middleware.InstrumentRoundTripper(http.DefaultTransport, name),
	})
}

// NewRequest builds a request for path relative to the base URL, JSON encoding
// body when present. Failures come back wrapped with an HTTPState.
func (c *SimpleHTTPClient) NewRequest(ctx context.Context, method, path string, body interface{}) (*http.Request, error) {
	resolvedURL := c.BaseURL.ResolveReference(&url.URL{Path: path})

	var buf io.Reader
	if body != nil && method != http.MethodGet {
		b := new(bytes.Buffer)
		if err := json.NewEncoder(b).Encode(body); err != nil {
			return nil, NewHTTPError(errors.Wrap(err, ErrUnableToEncodeBody), path, "request", 0, body)
		}
		buf = b
	}

	req, err := http.NewRequest(method, resolvedURL.String(), buf)
	if err != nil {
		return nil, NewHTTPError(classifyRequestError(err), path, "request", http.StatusBadRequest, body)
	}

	req.Header.Set("accept", "application/json")
	if buf != nil {
		req.Header.Add("content-type", "application/json")
	}
	requestutils.SetRequestID(ctx, req)
	if c.AuthToken != "" {
		req.Header.Set("authorization", "Bearer "+c.AuthToken)
	}

	return req, nil
}

func classifyRequestError(err error) error {
	switch err.(type) {
	case url.EscapeError:
		return errors.Wrap(err, ErrUnableToEscapeURL)
	case url.InvalidHostError:
		return errors.Wrap(err, ErrInvalidHost)
	default:
		return errors.Wrap(err, ErrMalformedRequest)
	}
}

func (c *SimpleHTTPClient) do(ctx context.Context, req *http.Request, v interface{}) (*http.Response, error) {
	labels := prometheus.Labels{"host": req.URL.Host, "method": req.Method}
	concurrentClientRequests.With(labels).Inc()
	defer concurrentClientRequests.With(labels).Dec()

	logger := log.Ctx(ctx)
	debug, _ := ctx.Value(appctx.DebugLoggingCTXKey).(bool)

	if debug {
		if dump, err := httputil.DumpRequestOut(req, true); err != nil {
			logger.Error().Err(err).Str("type", "http.Request").Msg("failed to dump request body")
		} else {
			logger.Debug().Str("type", "http.Request").Msg(string(RedactSensitiveHeaders(dump)))
		}
	}

	// bound the request while keeping the caller's context values
	reqCtx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	req = req.WithContext(appctx.Wrap(req.Context(), reqCtx))

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer closers.Panic(ctx, resp.Body)

	if debug {
		if dump, err := httputil.DumpResponse(resp, true); err != nil {
			logger.Error().Err(err).Str("type", "http.Response").Msg("failed to dump response body")
		} else {
			logger.Debug().Str("type", "http.Response").Msg(string(dump))
		}
	}

	// rewind the body so callers can still read it raw
	body, _ := requestutils.Read(ctx, resp.Body)
	_ = resp.Body.Close()
	resp.Body = io.NopCloser(bytes.NewBuffer(body))

	if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
		if v != nil {
			if err := json.Unmarshal(body, v); err != nil {
				return resp, errors.Wrap(err, ErrUnableToDecode)
			}
		}
		return resp, nil
	}

	logger.Warn().
		Int("response_status", resp.StatusCode).
		Str("host", req.URL.Host).
		Str("path", req.URL.Path).
		Str("body", string(body)).
		Msg("failed http client call")

	return resp, errors.Wrap(err, ErrProtocolError)
}

// RespErrData carries the upstream response alongside an error.
type RespErrData struct {
	ResponseHeaders interface{}
	Body            interface{}
}

// Do performs the request, decoding the JSON result into v. Failures come back
// as an HTTPState wrapped error carrying the response body when one exists.
func (c *SimpleHTTPClient) Do(ctx context.Context, req *http.Request, v interface{}) (*http.Response, error) {
	resp, err := c.do(ctx, req, v)
	if err == nil {
		return resp, nil
	}

	if resp == nil {
		return nil, fmt.Errorf("failed c.do, no response body: %w", err)
	}

	b, _ := io.ReadAll(resp.Body)
	resp.Body = io.NopCloser(bytes.NewBuffer(b))

	return resp, NewHTTPError(err, req.URL.String(), "response", resp.StatusCode, RespErrData{
		ResponseHeaders: resp.Header,
		Body:            string(b),
	})
}
