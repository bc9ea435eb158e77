package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi"
	should "github.com/stretchr/testify/assert"
	must "github.com/stretchr/testify/require"

	"github.com/portal-pay/portal-go/libs/clients/gateway"

	"github.com/portal-pay/portal-go/services/payments/model"
)

func requestWithTransactionID(req *http.Request, transactionID string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("transactionID", transactionID)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func TestCreateTransactionHandler(t *testing.T) {
	t.Run("created", func(t *testing.T) {
		svc, _ := newTestService(t, nil)
		handler := CreateTransaction(svc)

		body, err := json.Marshal(&model.CreateTransactionRequest{
			Amount:        1000,
			Currency:      "INR",
			CustomerEmail: "asha@example.com",
			CustomerName:  "Asha Rao",
		})
		must.NoError(t, err)

		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/payments", bytes.NewReader(body)))
		must.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

		var txn model.Transaction
		must.NoError(t, json.Unmarshal(rr.Body.Bytes(), &txn))
		should.Equal(t, model.StatusPendingConfirmation, txn.Status)
		should.NotEmpty(t, txn.OrderID)
		should.True(t, txn.PaymentURL.Valid)
	})

	t.Run("invalid_currency", func(t *testing.T) {
		svc, _ := newTestService(t, nil)
		handler := CreateTransaction(svc)

		body, err := json.Marshal(&model.CreateTransactionRequest{
			Amount:        1000,
			Currency:      "rupees",
			CustomerEmail: "asha@example.com",
			CustomerName:  "Asha Rao",
		})
		must.NoError(t, err)

		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/payments", bytes.NewReader(body)))
		should.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("gateway_down", func(t *testing.T) {
		gw := &gateway.MockClient{
			FnCreateOrder: func(ctx context.Context, req *gateway.CreateOrderRequest) (*gateway.CreateOrderResponse, error) {
				return nil, model.ErrGatewayUnavailable
			},
		}
		svc, _ := newTestService(t, gw)
		handler := CreateTransaction(svc)

		body, err := json.Marshal(&model.CreateTransactionRequest{
			Amount:        1000,
			Currency:      "INR",
			CustomerEmail: "asha@example.com",
			CustomerName:  "Asha Rao",
		})
		must.NoError(t, err)

		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/payments", bytes.NewReader(body)))
		should.Equal(t, http.StatusServiceUnavailable, rr.Code)
	})
}

func TestGetTransactionHandler(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		svc, store := newTestService(t, nil)
		txn := createTransactionWithStatus(t, store, "asha@example.com", model.StatusPaid)
		handler := GetTransaction(svc)

		req := requestWithTransactionID(
			httptest.NewRequest(http.MethodGet, "/v1/payments/"+txn.ID.String(), nil), txn.ID.String())

		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		must.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

		var got model.Transaction
		must.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
		should.Equal(t, txn.ID, got.ID)
		should.Equal(t, model.StatusPaid, got.Status)
	})

	t.Run("not_found", func(t *testing.T) {
		svc, _ := newTestService(t, nil)
		handler := GetTransaction(svc)

		id := "9a4b1ba2-54e9-43ca-ae7c-9b60e1c164ed"
		req := requestWithTransactionID(
			httptest.NewRequest(http.MethodGet, "/v1/payments/"+id, nil), id)

		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		should.Equal(t, http.StatusNotFound, rr.Code)
	})

	t.Run("bad_id", func(t *testing.T) {
		svc, _ := newTestService(t, nil)
		handler := GetTransaction(svc)

		req := requestWithTransactionID(
			httptest.NewRequest(http.MethodGet, "/v1/payments/not-a-uuid", nil), "not-a-uuid")

		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		should.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestListTransactionsHandler(t *testing.T) {
	svc, store := newTestService(t, nil)
	createTransactionWithStatus(t, store, "asha@example.com", model.StatusPaid)
	createTransactionWithStatus(t, store, "asha@example.com", model.StatusFailed)
	createTransactionWithStatus(t, store, "ravi@example.com", model.StatusPaid)

	handler := ListTransactions(svc)

	t.Run("filter_by_email", func(t *testing.T) {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/payments?email=asha@example.com", nil))
		must.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

		var resp ListTransactionsResponse
		must.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		should.Equal(t, 2, resp.Total)
		should.Len(t, resp.Transactions, 2)
	})

	t.Run("filter_by_status_with_limit", func(t *testing.T) {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/payments?status=paid&limit=1", nil))
		must.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

		var resp ListTransactionsResponse
		must.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		should.Equal(t, 2, resp.Total)
		should.Len(t, resp.Transactions, 1)
	})

	t.Run("unknown_status", func(t *testing.T) {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/payments?status=settled", nil))
		should.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("bad_limit", func(t *testing.T) {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/payments?limit=ten", nil))
		should.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestGetTransactionStatsHandler(t *testing.T) {
	svc, store := newTestService(t, nil)
	createTransactionWithStatus(t, store, "asha@example.com", model.StatusPaid)
	createTransactionWithStatus(t, store, "ravi@example.com", model.StatusCreated)

	handler := GetTransactionStats(svc)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/payments/stats", nil))
	must.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var stats model.TransactionStats
	must.NoError(t, json.Unmarshal(rr.Body.Bytes(), &stats))
	should.Len(t, stats.StatusCounts, 2)
	should.Len(t, stats.PaidVolume, 1)
}

func TestRefundTransactionHandler(t *testing.T) {
	t.Run("refunded", func(t *testing.T) {
		svc, store := newTestService(t, nil)
		txn := createTransactionWithStatus(t, store, "asha@example.com", model.StatusPaid)
		handler := RefundTransaction(svc)

		req := requestWithTransactionID(
			httptest.NewRequest(http.MethodPost, "/v1/payments/"+txn.ID.String()+"/refund", nil), txn.ID.String())

		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		must.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

		var got model.Transaction
		must.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
		should.Equal(t, model.StatusRefunded, got.Status)
	})

	t.Run("not_refundable", func(t *testing.T) {
		svc, store := newTestService(t, nil)
		txn := createTransactionWithStatus(t, store, "asha@example.com", model.StatusCreated)
		handler := RefundTransaction(svc)

		req := requestWithTransactionID(
			httptest.NewRequest(http.MethodPost, "/v1/payments/"+txn.ID.String()+"/refund", nil), txn.ID.String())

		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		should.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestHandleGatewayWebhookHandler(t *testing.T) {
	t.Run("accepted", func(t *testing.T) {
		svc, store := newTestService(t, nil)
		txn := createTransactionWithStatus(t, store, "asha@example.com", model.StatusPendingConfirmation)
		handler := HandleGatewayWebhook(svc)

		body := webhookBody(t, model.WebhookPayload{
			EventID:  "evt_1",
			OrderRef: txn.GatewayOrderRef.String,
			Outcome:  model.OutcomeSuccess,
		})

		req := httptest.NewRequest(http.MethodPost, "/v1/webhooks/gateway", bytes.NewReader(body))
		req.Header.Set(gateway.SignatureHeader, signBody(t, body))
		req = req.WithContext(webhookCtx())

		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		must.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

		stored, err := store.GetTransaction(context.Background(), txn.ID)
		must.NoError(t, err)
		should.Equal(t, model.StatusPaid, stored.Status)
	})

	t.Run("bad_signature", func(t *testing.T) {
		svc, _ := newTestService(t, nil)
		handler := HandleGatewayWebhook(svc)

		body := webhookBody(t, model.WebhookPayload{
			EventID:  "evt_1",
			OrderRef: "pay_abc123",
			Outcome:  model.OutcomeSuccess,
		})

		req := httptest.NewRequest(http.MethodPost, "/v1/webhooks/gateway", bytes.NewReader(body))
		req.Header.Set(gateway.SignatureHeader, "deadbeef")
		req = req.WithContext(webhookCtx())

		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		should.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("conflict", func(t *testing.T) {
		svc, store := newTestService(t, nil)
		txn := createTransactionWithStatus(t, store, "asha@example.com", model.StatusPaid)
		handler := HandleGatewayWebhook(svc)

		body := webhookBody(t, model.WebhookPayload{
			EventID:  "evt_2",
			OrderRef: txn.GatewayOrderRef.String,
			Outcome:  model.OutcomeFailure,
			Reason:   "chargeback",
		})

		req := httptest.NewRequest(http.MethodPost, "/v1/webhooks/gateway", bytes.NewReader(body))
		req.Header.Set(gateway.SignatureHeader, signBody(t, body))
		req = req.WithContext(webhookCtx())

		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		should.Equal(t, http.StatusConflict, rr.Code)
	})

	t.Run("orphaned", func(t *testing.T) {
		svc, _ := newTestService(t, nil)
		handler := HandleGatewayWebhook(svc)

		body := webhookBody(t, model.WebhookPayload{
			EventID:  "evt_1",
			OrderRef: "pay_unknown",
			Outcome:  model.OutcomeSuccess,
		})

		req := httptest.NewRequest(http.MethodPost, "/v1/webhooks/gateway", bytes.NewReader(body))
		req.Header.Set(gateway.SignatureHeader, signBody(t, body))
		req = req.WithContext(webhookCtx())

		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		should.Equal(t, http.StatusNotFound, rr.Code)
	})
}
