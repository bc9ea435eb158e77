package gateway

import (
	"context"

	uuid "github.com/satori/go.uuid"
)

// MockClient is a hand rolled gateway client for tests.
type MockClient struct {
	FnCreateOrder func(ctx context.Context, req *CreateOrderRequest) (*CreateOrderResponse, error)
	FnRefundOrder func(ctx context.Context, orderRef string, req *RefundRequest) (*RefundResponse, error)
}

func (c *MockClient) CreateOrder(ctx context.Context, req *CreateOrderRequest) (*CreateOrderResponse, error) {
	if c.FnCreateOrder == nil {
		return &CreateOrderResponse{
			OrderRef:   "pay_" + uuid.NewV4().String(),
			PaymentURL: "https://gateway.example.com/pay/" + req.OrderID,
			Status:     "created",
		}, nil
	}

	return c.FnCreateOrder(ctx, req)
}

func (c *MockClient) RefundOrder(ctx context.Context, orderRef string, req *RefundRequest) (*RefundResponse, error) {
	if c.FnRefundOrder == nil {
		return &RefundResponse{
			RefundRef: "re_" + uuid.NewV4().String(),
			Status:    "refunded",
		}, nil
	}

	return c.FnRefundOrder(ctx, orderRef, req)
}
