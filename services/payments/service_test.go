package payments

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	uuid "github.com/satori/go.uuid"
	should "github.com/stretchr/testify/assert"
	must "github.com/stretchr/testify/require"

	"github.com/portal-pay/portal-go/libs/backoff"
	"github.com/portal-pay/portal-go/libs/clients/gateway"
	"github.com/portal-pay/portal-go/libs/concurrent"
	kafkautils "github.com/portal-pay/portal-go/libs/kafka"

	"github.com/portal-pay/portal-go/services/payments/model"
	"github.com/portal-pay/portal-go/services/payments/storage/inmem"
)

func newTestService(t *testing.T, gw gateway.Client) (*Service, *inmem.Store) {
	t.Helper()

	codecs, err := kafkautils.GenerateCodecs(map[string]string{
		transactionStatusTopic: transactionStatusSchema,
	})
	must.NoError(t, err)

	if gw == nil {
		gw = &gateway.MockClient{}
	}

	store := inmem.NewStore()

	return &Service{
		Datastore: store,
		gateway:   gw,
		idLocks:   concurrent.NewKeyedMutex(),
		codecs:    codecs,
		retry:     backoff.Retry,
	}, store
}

func createTransactionWithStatus(t *testing.T, store *inmem.Store, email string, status model.Status) *model.Transaction {
	t.Helper()

	txn := model.NewTransaction(&model.CreateTransactionRequest{
		Amount:        2500,
		Currency:      "INR",
		CustomerEmail: email,
		CustomerName:  "Asha Rao",
	}, time.Now().UTC())
	txn.Status = status
	txn.GatewayOrderRef = model.NewNullString("pay_" + uuid.NewV4().String())

	created, err := store.CreateTransaction(context.Background(), txn)
	must.NoError(t, err)

	return created
}

func uncommittedEvents(t *testing.T, store *inmem.Store) []model.TransactionEvent {
	t.Helper()

	tx, records, err := store.GetUncommittedTransactionEvents(context.Background())
	must.NoError(t, err)
	should.Nil(t, tx)

	return records
}

func TestInitiate(t *testing.T) {
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		gw := &gateway.MockClient{
			FnCreateOrder: func(ctx context.Context, req *gateway.CreateOrderRequest) (*gateway.CreateOrderResponse, error) {
				return &gateway.CreateOrderResponse{
					OrderRef:   "pay_abc123",
					PaymentURL: "https://gateway.example.com/pay/" + req.OrderID,
					Status:     "created",
				}, nil
			},
		}
		svc, store := newTestService(t, gw)

		txn, err := svc.Initiate(ctx, &model.CreateTransactionRequest{
			Amount:        1000,
			Currency:      "INR",
			CustomerEmail: "asha@example.com",
			CustomerName:  "Asha Rao",
		})
		must.NoError(t, err)

		should.Equal(t, model.StatusPendingConfirmation, txn.Status)
		should.Equal(t, "pay_abc123", txn.GatewayOrderRef.String)
		should.Contains(t, txn.PaymentURL.String, txn.OrderID)

		stored, err := store.GetTransactionByOrderRef(ctx, "pay_abc123")
		must.NoError(t, err)
		should.Equal(t, txn.ID, stored.ID)
	})

	t.Run("invalid_input", func(t *testing.T) {
		svc, _ := newTestService(t, nil)

		_, err := svc.Initiate(ctx, &model.CreateTransactionRequest{
			Amount:        0,
			Currency:      "INR",
			CustomerEmail: "asha@example.com",
			CustomerName:  "Asha Rao",
		})
		should.ErrorIs(t, err, model.ErrInvalidTransactionInput)
	})

	t.Run("gateway_down_leaves_created", func(t *testing.T) {
		gw := &gateway.MockClient{
			FnCreateOrder: func(ctx context.Context, req *gateway.CreateOrderRequest) (*gateway.CreateOrderResponse, error) {
				return nil, errors.New("connection refused")
			},
		}
		svc, store := newTestService(t, gw)

		_, err := svc.Initiate(ctx, &model.CreateTransactionRequest{
			Amount:        1000,
			Currency:      "INR",
			CustomerEmail: "asha@example.com",
			CustomerName:  "Asha Rao",
		})
		should.ErrorIs(t, err, model.ErrGatewayUnavailable)

		list, total, err := store.ListTransactions(ctx, model.TransactionFilter{CustomerEmail: "asha@example.com"})
		must.NoError(t, err)
		must.Equal(t, 1, total)
		should.Equal(t, model.StatusCreated, list[0].Status)
	})
}

func TestApplyEvent(t *testing.T) {
	ctx := context.Background()

	t.Run("settles_and_queues_event", func(t *testing.T) {
		svc, store := newTestService(t, nil)
		txn := createTransactionWithStatus(t, store, "asha@example.com", model.StatusPendingConfirmation)

		result, err := svc.ApplyEvent(ctx, txn.ID, "evt_1", model.OutcomeSuccess, "", "digest")
		must.NoError(t, err)

		should.Equal(t, model.StatusPaid, result.Status)
		should.True(t, result.HasSeenEvent("evt_1"))

		records := uncommittedEvents(t, store)
		must.Len(t, records, 1)

		var evt TransactionStatusEvent
		must.NoError(t, evt.CodecDecode(svc.codecs[transactionStatusTopic], records[0].Body))
		should.Equal(t, txn.ID, evt.ID)
		should.Equal(t, model.StatusPaid.String(), evt.Status)
		should.Equal(t, int64(2500), evt.Amount)
	})

	t.Run("replayed_event_id_is_noop", func(t *testing.T) {
		svc, store := newTestService(t, nil)
		txn := createTransactionWithStatus(t, store, "asha@example.com", model.StatusPendingConfirmation)

		first, err := svc.ApplyEvent(ctx, txn.ID, "evt_1", model.OutcomeSuccess, "", "digest")
		must.NoError(t, err)

		second, err := svc.ApplyEvent(ctx, txn.ID, "evt_1", model.OutcomeSuccess, "", "digest")
		must.NoError(t, err)

		should.Equal(t, model.StatusPaid, second.Status)
		should.Equal(t, first.UpdatedAt, second.UpdatedAt)
		should.Len(t, uncommittedEvents(t, store), 1)
	})

	t.Run("fresh_event_id_confirming_outcome_is_noop", func(t *testing.T) {
		svc, store := newTestService(t, nil)
		txn := createTransactionWithStatus(t, store, "asha@example.com", model.StatusPendingConfirmation)

		_, err := svc.ApplyEvent(ctx, txn.ID, "evt_1", model.OutcomeSuccess, "", "digest")
		must.NoError(t, err)

		result, err := svc.ApplyEvent(ctx, txn.ID, "evt_2", model.OutcomeSuccess, "", "digest")
		must.NoError(t, err)

		should.Equal(t, model.StatusPaid, result.Status)
		// the confirming id is not recorded, the settled state already covers it
		should.Len(t, []string(result.GatewayEventIDsSeen), 1)
		should.Len(t, uncommittedEvents(t, store), 1)
	})

	t.Run("contradicting_outcome_conflicts", func(t *testing.T) {
		svc, store := newTestService(t, nil)
		txn := createTransactionWithStatus(t, store, "asha@example.com", model.StatusPendingConfirmation)

		_, err := svc.ApplyEvent(ctx, txn.ID, "evt_1", model.OutcomeSuccess, "", "digest")
		must.NoError(t, err)

		_, err = svc.ApplyEvent(ctx, txn.ID, "evt_2", model.OutcomeFailure, "card declined", "digest")
		should.ErrorIs(t, err, model.ErrConflictingOutcome)

		stored, err := store.GetTransaction(ctx, txn.ID)
		must.NoError(t, err)
		should.Equal(t, model.StatusPaid, stored.Status)
	})

	t.Run("refund_confirms_success_outcome", func(t *testing.T) {
		svc, store := newTestService(t, nil)
		txn := createTransactionWithStatus(t, store, "asha@example.com", model.StatusRefunded)

		result, err := svc.ApplyEvent(ctx, txn.ID, "evt_late", model.OutcomeSuccess, "", "digest")
		must.NoError(t, err)
		should.Equal(t, model.StatusRefunded, result.Status)

		_, err = svc.ApplyEvent(ctx, txn.ID, "evt_later", model.OutcomeFailure, "", "digest")
		should.ErrorIs(t, err, model.ErrConflictingOutcome)
	})

	t.Run("created_cannot_settle", func(t *testing.T) {
		svc, store := newTestService(t, nil)
		txn := createTransactionWithStatus(t, store, "asha@example.com", model.StatusCreated)

		_, err := svc.ApplyEvent(ctx, txn.ID, "evt_1", model.OutcomeSuccess, "", "digest")
		should.ErrorIs(t, err, model.ErrInvalidTransition)
	})

	t.Run("failure_records_reason", func(t *testing.T) {
		svc, store := newTestService(t, nil)
		txn := createTransactionWithStatus(t, store, "asha@example.com", model.StatusPendingConfirmation)

		result, err := svc.ApplyEvent(ctx, txn.ID, "evt_1", model.OutcomeFailure, "card declined", "digest")
		must.NoError(t, err)

		should.Equal(t, model.StatusFailed, result.Status)
		should.Equal(t, "card declined", result.Metadata["failure_reason"])
	})

	t.Run("unknown_outcome", func(t *testing.T) {
		svc, store := newTestService(t, nil)
		txn := createTransactionWithStatus(t, store, "asha@example.com", model.StatusPendingConfirmation)

		_, err := svc.ApplyEvent(ctx, txn.ID, "evt_1", model.Outcome("settled"), "", "digest")
		should.ErrorIs(t, err, model.ErrMalformedPayload)
	})

	t.Run("unknown_transaction", func(t *testing.T) {
		svc, _ := newTestService(t, nil)

		_, err := svc.ApplyEvent(ctx, uuid.NewV4(), "evt_1", model.OutcomeSuccess, "", "digest")
		should.ErrorIs(t, err, model.ErrTransactionNotFound)
	})
}

func TestApplyEvent_Concurrent(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t, nil)
	txn := createTransactionWithStatus(t, store, "asha@example.com", model.StatusPendingConfirmation)

	eventIDs := []string{"evt_0", "evt_1", "evt_2", "evt_3", "evt_4", "evt_5", "evt_6", "evt_7"}

	var wg sync.WaitGroup
	errs := make([]error, len(eventIDs))

	for i, eventID := range eventIDs {
		wg.Add(1)
		go func(i int, eventID string) {
			defer wg.Done()
			_, errs[i] = svc.ApplyEvent(ctx, txn.ID, eventID, model.OutcomeSuccess, "", "digest")
		}(i, eventID)
	}
	wg.Wait()

	for i := range errs {
		should.NoError(t, errs[i])
	}

	stored, err := store.GetTransaction(ctx, txn.ID)
	must.NoError(t, err)

	// exactly one delivery wins the transition, the rest confirm it
	should.Equal(t, model.StatusPaid, stored.Status)
	should.Len(t, []string(stored.GatewayEventIDsSeen), 1)
	should.Len(t, uncommittedEvents(t, store), 1)
}

func TestRefund(t *testing.T) {
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		gw := &gateway.MockClient{
			FnRefundOrder: func(ctx context.Context, orderRef string, req *gateway.RefundRequest) (*gateway.RefundResponse, error) {
				return &gateway.RefundResponse{RefundRef: "re_abc123", Status: "refunded"}, nil
			},
		}
		svc, store := newTestService(t, gw)
		txn := createTransactionWithStatus(t, store, "asha@example.com", model.StatusPaid)

		result, err := svc.Refund(ctx, txn.ID)
		must.NoError(t, err)

		should.Equal(t, model.StatusRefunded, result.Status)
		should.Equal(t, "re_abc123", result.Metadata["refund_ref"])
		must.NotNil(t, result.RefundToken)
		should.Len(t, uncommittedEvents(t, store), 1)
	})

	t.Run("not_paid", func(t *testing.T) {
		for _, status := range []model.Status{model.StatusPendingConfirmation, model.StatusFailed} {
			svc, store := newTestService(t, nil)
			txn := createTransactionWithStatus(t, store, "asha@example.com", status)

			_, err := svc.Refund(ctx, txn.ID)
			should.ErrorIs(t, err, model.ErrInvalidTransition, status)
		}
	})

	t.Run("already_refunded", func(t *testing.T) {
		svc, store := newTestService(t, nil)
		txn := createTransactionWithStatus(t, store, "asha@example.com", model.StatusRefunded)

		_, err := svc.Refund(ctx, txn.ID)
		should.ErrorIs(t, err, model.ErrInvalidTransition)
	})

	t.Run("gateway_down_reuses_refund_token", func(t *testing.T) {
		var tokens []string
		gw := &gateway.MockClient{
			FnRefundOrder: func(ctx context.Context, orderRef string, req *gateway.RefundRequest) (*gateway.RefundResponse, error) {
				tokens = append(tokens, req.RefundToken)
				if len(tokens) == 1 {
					return nil, errors.New("connection refused")
				}
				return &gateway.RefundResponse{RefundRef: "re_abc123", Status: "refunded"}, nil
			},
		}
		svc, store := newTestService(t, gw)
		txn := createTransactionWithStatus(t, store, "asha@example.com", model.StatusPaid)

		_, err := svc.Refund(ctx, txn.ID)
		should.ErrorIs(t, err, model.ErrGatewayUnavailable)

		stored, err := store.GetTransaction(ctx, txn.ID)
		must.NoError(t, err)
		should.Equal(t, model.StatusPaid, stored.Status)
		must.NotNil(t, stored.RefundToken)

		result, err := svc.Refund(ctx, txn.ID)
		must.NoError(t, err)
		should.Equal(t, model.StatusRefunded, result.Status)

		must.Len(t, tokens, 2)
		should.Equal(t, tokens[0], tokens[1])
	})

	t.Run("unknown_transaction", func(t *testing.T) {
		svc, _ := newTestService(t, nil)

		_, err := svc.Refund(ctx, uuid.NewV4())
		should.ErrorIs(t, err, model.ErrTransactionNotFound)
	})
}

func TestRunNextTransactionEventDrainJob(t *testing.T) {
	t.Run("cancelled_context_stops_worker", func(t *testing.T) {
		svc, _ := newTestService(t, nil)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		ran, err := svc.RunNextTransactionEventDrainJob(ctx)
		must.NoError(t, err)
		should.False(t, ran)
	})

	t.Run("poison_record_is_parked", func(t *testing.T) {
		ctx := context.Background()
		svc, store := newTestService(t, nil)
		txn := createTransactionWithStatus(t, store, "asha@example.com", model.StatusPendingConfirmation)

		txn.Status = model.StatusPaid
		_, err := store.CommitStatusChange(ctx, txn, &model.TransactionEvent{
			TransactionID: txn.ID,
			EventType:     transactionStatusTopic,
		})
		must.NoError(t, err)

		// the kafka writer is never touched, the empty body is parked first
		ran, err := svc.RunNextTransactionEventDrainJob(ctx)
		must.NoError(t, err)
		should.True(t, ran)

		should.Empty(t, uncommittedEvents(t, store))
	})
}
