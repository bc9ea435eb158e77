// Package gateway provides a client for the upstream payment gateway api.
package gateway

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"

	"github.com/portal-pay/portal-go/libs/clients"
	appctx "github.com/portal-pay/portal-go/libs/context"
	"github.com/portal-pay/portal-go/libs/cryptography"
)

// SignatureHeader carries the hex encoded hmac-sha384 of the raw webhook body.
const SignatureHeader = "X-Gateway-Signature"

// Client abstracts over the underlying gateway client
type Client interface {
	// CreateOrder registers an order with the gateway and returns the hosted payment location.
	CreateOrder(ctx context.Context, req *CreateOrderRequest) (*CreateOrderResponse, error)
	// RefundOrder asks the gateway to return the funds for a previously paid order.
	RefundOrder(ctx context.Context, orderRef string, req *RefundRequest) (*RefundResponse, error)
}

// HTTPClient wraps http.Client for interacting with the gateway server
type HTTPClient struct {
	client *clients.SimpleHTTPClient
}

// NewWithContext returns a new HTTPClient, retrieving the base URL and access
// token from the context
func NewWithContext(ctx context.Context) (Client, error) {
	serverURL, err := appctx.GetStringFromContext(ctx, appctx.GatewayServerCTXKey)
	if err != nil {
		return nil, fmt.Errorf("failed to get GatewayServer from context: %w", err)
	}

	accessToken, err := appctx.GetStringFromContext(ctx, appctx.GatewayAccessTokenCTXKey)
	if err != nil {
		return nil, fmt.Errorf("failed to get GatewayAccessToken from context: %w", err)
	}

	client, err := clients.NewInstrumented("gateway_client", serverURL, accessToken)
	if err != nil {
		return nil, err
	}

	return &HTTPClient{client}, nil
}

// New returns a new HTTPClient, retrieving the base URL from the environment
func New() (Client, error) {
	serverEnvKey := "GATEWAY_SERVICE"
	serverURL := os.Getenv(serverEnvKey)
	if len(serverURL) == 0 {
		return nil, errors.New(serverEnvKey + " was empty")
	}

	client, err := clients.NewInstrumented("gateway_client", serverURL, os.Getenv("GATEWAY_TOKEN"))
	if err != nil {
		return nil, err
	}

	return &HTTPClient{client}, nil
}

// CreateOrderRequest is a request to register an order with the gateway
type CreateOrderRequest struct {
	OrderID     string `json:"order_id"`
	Amount      int64  `json:"amount"`
	Currency    string `json:"currency"`
	Description string `json:"description,omitempty"`
}

// CreateOrderResponse contains the gateway reference for a newly registered order
type CreateOrderResponse struct {
	OrderRef   string `json:"order_ref"`
	PaymentURL string `json:"payment_url"`
	Status     string `json:"status"`
}

// CreateOrder registers the order with the gateway
func (c *HTTPClient) CreateOrder(ctx context.Context, createReq *CreateOrderRequest) (*CreateOrderResponse, error) {
	req, err := c.client.NewRequest(ctx, http.MethodPost, "v1/orders", createReq)
	if err != nil {
		return nil, err
	}

	var resp CreateOrderResponse
	if _, err := c.client.Do(ctx, req, &resp); err != nil {
		return nil, err
	}

	return &resp, nil
}

// RefundRequest is a request to return funds for an order. The refund token is
// minted once per transaction so resubmissions do not double refund.
type RefundRequest struct {
	RefundToken string `json:"refund_token"`
	Amount      int64  `json:"amount"`
}

// RefundResponse contains the gateway reference for a refund
type RefundResponse struct {
	RefundRef string `json:"refund_ref"`
	Status    string `json:"status"`
}

// RefundOrder asks the gateway to refund the given order
func (c *HTTPClient) RefundOrder(ctx context.Context, orderRef string, refundReq *RefundRequest) (*RefundResponse, error) {
	req, err := c.client.NewRequest(ctx, http.MethodPost, "v1/orders/"+url.PathEscape(orderRef)+"/refunds", refundReq)
	if err != nil {
		return nil, err
	}

	var resp RefundResponse
	if _, err := c.client.Do(ctx, req, &resp); err != nil {
		return nil, err
	}

	return &resp, nil
}

// IsServiceUnavailable determines whether the error represents a gateway
// outage rather than a definitive answer. Timeouts and connection failures
// carry no http state and are treated as outages.
func IsServiceUnavailable(err error) bool {
	if err == nil {
		return false
	}
	if state, ok := clients.UnwrapHTTPState(err); ok {
		switch state.Status {
		case http.StatusTooManyRequests,
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout:
			return true
		}
		return false
	}
	return true
}

// Sign returns the hex encoded hmac-sha384 of body under secret
func Sign(secret, body []byte) (string, error) {
	return cryptography.HMACSha384Hex(cryptography.NewHMACHasher(secret), body)
}

// VerifySignature checks the webhook signature header value against the raw
// body in constant time
func VerifySignature(secret, body []byte, signature string) bool {
	provided, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}

	expected, err := cryptography.NewHMACHasher(secret).HMACSha384(body)
	if err != nil {
		return false
	}

	return cryptography.HMACEqual(expected, provided)
}
