package payments

import (
	"context"
	"fmt"
	"time"

	"github.com/linkedin/goavro"
	uuid "github.com/satori/go.uuid"
	kafka "github.com/segmentio/kafka-go"

	"github.com/portal-pay/portal-go/libs/backoff"
	"github.com/portal-pay/portal-go/libs/clients/gateway"
	"github.com/portal-pay/portal-go/libs/concurrent"
	"github.com/portal-pay/portal-go/libs/datastore"
	kafkautils "github.com/portal-pay/portal-go/libs/kafka"
	"github.com/portal-pay/portal-go/libs/logging"
	srv "github.com/portal-pay/portal-go/libs/service"

	"github.com/portal-pay/portal-go/services/payments/model"
)

const (
	metadataFailureReason = "failure_reason"
	metadataRefundRef     = "refund_ref"
)

// Service contains datastore and gateway client connections.
type Service struct {
	Datastore   Datastore
	gateway     gateway.Client
	idLocks     *concurrent.KeyedMutex
	codecs      map[string]*goavro.Codec
	kafkaWriter *kafka.Writer
	kafkaDialer *kafka.Dialer
	jobs        []srv.Job
	retry       backoff.RetryFunc
}

// Jobs - implement srv.JobService interface
func (s *Service) Jobs() []srv.Job {
	return s.jobs
}

// InitKafka by creating a kafka writer and creating local copies of codecs
func (s *Service) InitKafka(ctx context.Context) error {
	var err error

	// passing an empty string will not set topic on writer, so it can be
	// defined at message write time
	s.kafkaWriter, s.kafkaDialer, err = kafkautils.InitKafkaWriter(ctx, "")
	if err != nil {
		return fmt.Errorf("failed to initialize kafka: %w", err)
	}

	s.codecs, err = kafkautils.GenerateCodecs(map[string]string{
		transactionStatusTopic: transactionStatusSchema,
	})
	if err != nil {
		return fmt.Errorf("failed to generate codecs kafka: %w", err)
	}

	return nil
}

// InitService creates a service using the passed datastore and a gateway
// client configured from the context
func InitService(ctx context.Context, datastore Datastore) (*Service, error) {
	gatewayClient, err := gateway.NewWithContext(ctx)
	if err != nil {
		return nil, err
	}

	service := &Service{
		Datastore: datastore,
		gateway:   gatewayClient,
		idLocks:   concurrent.NewKeyedMutex(),
		retry:     backoff.Retry,
	}

	// setup runnable jobs
	service.jobs = []srv.Job{
		{
			Func:    service.RunNextTransactionEventDrainJob,
			Cadence: 5 * time.Second,
			Workers: 1,
		},
	}

	if err := service.InitKafka(ctx); err != nil {
		return nil, err
	}

	return service, nil
}

// Initiate validates req, persists a created record, obtains a gateway order
// and returns the transaction in pending_confirmation.
//
// A gateway failure leaves the record in created and surfaces as
// ErrGatewayUnavailable; the engine never retries the remote order creation
// on its own, callers decide whether to initiate again.
func (s *Service) Initiate(ctx context.Context, req *model.CreateTransactionRequest) (*model.Transaction, error) {
	logger := logging.Logger(ctx, "payments.Initiate")

	if err := req.Validate(); err != nil {
		return nil, err
	}

	txn, err := s.Datastore.CreateTransaction(ctx, model.NewTransaction(req, time.Now().UTC()))
	if err != nil {
		return nil, fmt.Errorf("failed to create transaction: %w", err)
	}

	// The gateway call stays outside the per-id critical section so a slow
	// network never stalls webhook processing for other transactions.
	resp, err := s.gateway.CreateOrder(ctx, &gateway.CreateOrderRequest{
		OrderID:     txn.OrderID,
		Amount:      txn.Amount,
		Currency:    txn.Currency,
		Description: txn.Description.String,
	})
	if err != nil {
		evt := logger.Error()
		if gateway.IsServiceUnavailable(err) {
			evt = logger.Warn()
		}
		evt.Err(err).Str("transaction_id", txn.ID.String()).Msg("gateway order creation failed")

		return nil, model.ErrGatewayUnavailable
	}

	s.idLocks.Lock(txn.ID.String())
	defer s.idLocks.Unlock(txn.ID.String())

	stored, err := s.Datastore.GetTransaction(ctx, txn.ID)
	if err != nil {
		return nil, err
	}

	if stored.Status == model.StatusCreated {
		stored.Status = model.StatusPendingConfirmation
	}

	stored.GatewayOrderRef = model.NewNullString(resp.OrderRef)
	stored.PaymentURL = model.NewNullString(resp.PaymentURL)
	stored.UpdatedAt = time.Now().UTC()

	result, err := s.Datastore.UpdateTransaction(ctx, stored)
	if err != nil {
		return nil, fmt.Errorf("failed to store gateway order ref: %w", err)
	}

	return result, nil
}

// ApplyEvent applies one verified gateway event to a transaction.
//
// It is idempotent per event id and monotonic per transaction: a settled
// transaction confirms matching outcomes and rejects contradicting ones with
// ErrConflictingOutcome. The reason is recorded as failure metadata on
// failure outcomes; rawPayloadDigest ties the change back to the audit log.
func (s *Service) ApplyEvent(ctx context.Context, transactionID uuid.UUID, eventID string, outcome model.Outcome, reason, rawPayloadDigest string) (*model.Transaction, error) {
	logger := logging.Logger(ctx, "payments.ApplyEvent")

	target, err := outcome.TargetStatus()
	if err != nil {
		return nil, err
	}

	s.idLocks.Lock(transactionID.String())
	defer s.idLocks.Unlock(transactionID.String())

	txn, err := s.Datastore.GetTransaction(ctx, transactionID)
	if err != nil {
		return nil, err
	}

	if txn.HasSeenEvent(eventID) {
		return txn, nil
	}

	if txn.Status.Settled() {
		if settled, ok := txn.Status.SettledOutcome(); ok && settled == outcome {
			// A fresh event id confirming the settled outcome changes nothing.
			return txn, nil
		}

		logger.Error().
			Str("transaction_id", transactionID.String()).
			Str("event_id", eventID).
			Str("status", txn.Status.String()).
			Str("outcome", outcome.String()).
			Msg("gateway event contradicts settled transaction")

		return nil, model.ErrConflictingOutcome
	}

	if !txn.Status.CanTransition(target) {
		return nil, model.ErrInvalidTransition
	}

	now := time.Now().UTC()

	txn.Status = target
	txn.GatewayEventIDsSeen = append(txn.GatewayEventIDsSeen, eventID)
	txn.UpdatedAt = now

	if reason != "" && outcome == model.OutcomeFailure {
		if txn.Metadata == nil {
			txn.Metadata = datastore.Metadata{}
		}
		txn.Metadata[metadataFailureReason] = reason
	}

	evt, err := s.newStatusEvent(txn, now)
	if err != nil {
		return nil, err
	}

	result, err := s.Datastore.CommitStatusChange(ctx, txn, evt)
	if err != nil {
		return nil, fmt.Errorf("failed to commit status change: %w", err)
	}

	logger.Info().
		Str("transaction_id", transactionID.String()).
		Str("event_id", eventID).
		Str("status", result.Status.String()).
		Str("payload_digest", rawPayloadDigest).
		Msg("gateway event applied")

	return result, nil
}

// Refund drives a refund for a paid transaction through the gateway and
// settles it as refunded.
//
// The refund token is minted once under the per-id lock and reused on
// retries, keeping the gateway-side refund idempotent. A gateway failure
// leaves the transaction paid; re-invoking Refund is safe.
func (s *Service) Refund(ctx context.Context, transactionID uuid.UUID) (*model.Transaction, error) {
	logger := logging.Logger(ctx, "payments.Refund")

	s.idLocks.Lock(transactionID.String())

	txn, err := s.Datastore.GetTransaction(ctx, transactionID)
	if err != nil {
		s.idLocks.Unlock(transactionID.String())
		return nil, err
	}

	if txn.Status != model.StatusPaid {
		s.idLocks.Unlock(transactionID.String())
		return nil, model.ErrInvalidTransition
	}

	if txn.RefundToken == nil {
		token := uuid.NewV4()
		txn.RefundToken = &token
		txn.UpdatedAt = time.Now().UTC()

		if txn, err = s.Datastore.UpdateTransaction(ctx, txn); err != nil {
			s.idLocks.Unlock(transactionID.String())
			return nil, fmt.Errorf("failed to store refund token: %w", err)
		}
	}

	refundToken := txn.RefundToken.String()
	orderRef := txn.GatewayOrderRef.String
	amount := txn.Amount

	s.idLocks.Unlock(transactionID.String())

	// The refund call stays outside the critical section, like order creation.
	resp, err := s.gateway.RefundOrder(ctx, orderRef, &gateway.RefundRequest{
		RefundToken: refundToken,
		Amount:      amount,
	})
	if err != nil {
		evt := logger.Error()
		if gateway.IsServiceUnavailable(err) {
			evt = logger.Warn()
		}
		evt.Err(err).Str("transaction_id", transactionID.String()).Msg("gateway refund failed")

		return nil, model.ErrGatewayUnavailable
	}

	s.idLocks.Lock(transactionID.String())
	defer s.idLocks.Unlock(transactionID.String())

	txn, err = s.Datastore.GetTransaction(ctx, transactionID)
	if err != nil {
		return nil, err
	}

	if txn.Status == model.StatusRefunded {
		// A concurrent retry settled the refund already.
		return txn, nil
	}

	if !txn.Status.CanTransition(model.StatusRefunded) {
		return nil, model.ErrInvalidTransition
	}

	now := time.Now().UTC()

	txn.Status = model.StatusRefunded
	txn.UpdatedAt = now

	if txn.Metadata == nil {
		txn.Metadata = datastore.Metadata{}
	}
	txn.Metadata[metadataRefundRef] = resp.RefundRef

	evt, err := s.newStatusEvent(txn, now)
	if err != nil {
		return nil, err
	}

	result, err := s.Datastore.CommitStatusChange(ctx, txn, evt)
	if err != nil {
		return nil, fmt.Errorf("failed to commit refund: %w", err)
	}

	logger.Info().
		Str("transaction_id", transactionID.String()).
		Str("refund_ref", resp.RefundRef).
		Msg("transaction refunded")

	return result, nil
}

// GetTransaction returns the transaction with the given id.
func (s *Service) GetTransaction(ctx context.Context, id uuid.UUID) (*model.Transaction, error) {
	return s.Datastore.GetTransaction(ctx, id)
}

// ListTransactions returns matching transactions plus the total match count.
func (s *Service) ListTransactions(ctx context.Context, filter model.TransactionFilter) ([]model.Transaction, int, error) {
	return s.Datastore.ListTransactions(ctx, filter)
}

// GetTransactionStats aggregates per-status counts and paid volume.
func (s *Service) GetTransactionStats(ctx context.Context) (*model.TransactionStats, error) {
	return s.Datastore.TransactionStats(ctx)
}

// StatusSummary reports live per-status transaction counts for the health check.
func (s *Service) StatusSummary(ctx context.Context) map[string]interface{} {
	stats, err := s.Datastore.TransactionStats(ctx)
	if err != nil {
		return map[string]interface{}{"payments": map[string]interface{}{"error": err.Error()}}
	}

	counts := make(map[string]interface{}, len(stats.StatusCounts))
	for _, sc := range stats.StatusCounts {
		counts[sc.Status.String()] = sc.Count
	}

	return map[string]interface{}{"payments": map[string]interface{}{"transactions": counts}}
}
