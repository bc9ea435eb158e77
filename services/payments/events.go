package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/linkedin/goavro"
	uuid "github.com/satori/go.uuid"
	kafka "github.com/segmentio/kafka-go"

	"github.com/portal-pay/portal-go/libs/backoff/retrypolicy"
	errorutils "github.com/portal-pay/portal-go/libs/errors"
	"github.com/portal-pay/portal-go/libs/logging"

	"github.com/portal-pay/portal-go/services/payments/model"
)

var transactionStatusTopic = os.Getenv("ENV") + ".payment.transaction.status"

const transactionStatusSchema = `{
  "namespace": "portal.payments",
  "type": "record",
  "name": "transactionStatus",
  "doc": "This message is sent when a transaction settles into a terminal status",
  "fields": [
    { "name": "id", "type": "string" },
    { "name": "order_id", "type": "string" },
    { "name": "gateway_order_ref", "type": "string", "default": "" },
    { "name": "amount", "type": "long" },
    { "name": "currency", "type": "string" },
    { "name": "status", "type": "string" },
    { "name": "occurred_at", "type": "string" }
  ]
}`

// publishRetryPolicy is the retry policy used when publishing to kafka
var publishRetryPolicy = retrypolicy.DefaultRetry

// canRetryPublish stops retrying once the surrounding context is gone.
func canRetryPublish(err error) bool {
	return !(errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded))
}

// TransactionStatusEvent is the kafka representation of a settled transaction.
type TransactionStatusEvent struct {
	ID              uuid.UUID `json:"id"`
	OrderID         string    `json:"order_id"`
	GatewayOrderRef string    `json:"gateway_order_ref"`
	Amount          int64     `json:"amount"`
	Currency        string    `json:"currency"`
	Status          string    `json:"status"`
	OccurredAt      time.Time `json:"occurred_at"`
}

// NewTransactionStatusEvent - create a new TransactionStatusEvent given a transaction
func NewTransactionStatusEvent(txn *model.Transaction, occurredAt time.Time) *TransactionStatusEvent {
	return &TransactionStatusEvent{
		ID:              txn.ID,
		OrderID:         txn.OrderID,
		GatewayOrderRef: txn.GatewayOrderRef.String,
		Amount:          txn.Amount,
		Currency:        txn.Currency,
		Status:          txn.Status.String(),
		OccurredAt:      occurredAt,
	}
}

// CodecEncode - encode using avro transaction status codec
func (e *TransactionStatusEvent) CodecEncode(codec *goavro.Codec) ([]byte, error) {
	return codec.BinaryFromNative(nil, map[string]interface{}{
		"id":                e.ID.String(),
		"order_id":          e.OrderID,
		"gateway_order_ref": e.GatewayOrderRef,
		"amount":            e.Amount,
		"currency":          e.Currency,
		"status":            e.Status,
		"occurred_at":       e.OccurredAt.Format(time.RFC3339),
	})
}

// CodecDecode - decode using avro transaction status codec
func (e *TransactionStatusEvent) CodecDecode(codec *goavro.Codec, binary []byte) error {
	native, _, err := codec.NativeFromBinary(binary)
	if err != nil {
		return errorutils.Wrap(err, "error decoding transaction status event")
	}

	// gross
	v, err := json.Marshal(native)
	if err != nil {
		return fmt.Errorf("unable to marshal avro payload: %w", err)
	}

	err = json.Unmarshal(v, e)
	if err != nil {
		return fmt.Errorf("unable to decode decoded avro payload to TransactionStatusEvent: %w", err)
	}

	return nil
}

// newStatusEvent encodes the transaction's settled state for the outbox.
func (s *Service) newStatusEvent(txn *model.Transaction, occurredAt time.Time) (*model.TransactionEvent, error) {
	codec, ok := s.codecs[transactionStatusTopic]
	if !ok {
		return nil, fmt.Errorf("no codec for topic %s", transactionStatusTopic)
	}

	body, err := NewTransactionStatusEvent(txn, occurredAt).CodecEncode(codec)
	if err != nil {
		return nil, fmt.Errorf("failed to encode transaction status event: %w", err)
	}

	return &model.TransactionEvent{
		TransactionID: txn.ID,
		EventType:     transactionStatusTopic,
		Body:          body,
	}, nil
}

func rollbackTx(ds Datastore, tx *sqlx.Tx, wrap string, err error) error {
	if pg, ok := ds.(*Postgres); ok {
		if tx != nil {
			// will handle logging to sentry if there is an error
			pg.RollbackTx(tx)
		}
	}
	return errorutils.Wrap(err, wrap)
}

// RunNextTransactionEventDrainJob - attempt to drain the transaction event queue
func (s *Service) RunNextTransactionEventDrainJob(ctx context.Context) (bool, error) {
	logger := logging.Logger(ctx, "payments.RunNextTransactionEventDrainJob")

	select {
	case <-ctx.Done():
		// cancellation happened, kill this worker
		logger.Error().Msg("cancellation invoked in drain transaction event queue")
		return false, nil
	default:
		// pull unpublished events from the db queue
		tx, records, err := s.Datastore.GetUncommittedTransactionEvents(ctx)
		if err != nil {
			logger.Error().Err(err).Msg("failed to get uncommitted events from drain queue")
			return true, rollbackTx(s.Datastore, tx, "failed to get uncommitted events from drain queue", err)
		}
		for _, record := range records {
			if len(record.Body) == 0 {
				// poison row, park it so the queue keeps moving
				logger.Error().Str("event_id", record.ID.String()).Msg("skipping transaction event with empty body")
				if err := s.Datastore.MarkTransactionEventErrored(ctx, record, tx); err != nil {
					logger.Error().Err(err).Msg("failed to mark transaction event as errored")
					return true, rollbackTx(s.Datastore, tx, "failed to mark transaction event as errored", err)
				}
				continue
			}
			// write the message to kafka if successful
			if _, err := s.retry(ctx, func() (interface{}, error) {
				return nil, s.kafkaWriter.WriteMessages(ctx,
					kafka.Message{
						Topic: record.EventType,
						Value: record.Body,
					},
				)
			}, publishRetryPolicy, canRetryPublish); err != nil {
				logger.Error().Err(err).Msg("failed to write message to kafka")
				return true, rollbackTx(s.Datastore, tx, "failed to write transaction event to kafka", err)
			}
			// update the particular record to not be picked again
			if err := s.Datastore.CommitTransactionEvent(ctx, record, tx); err != nil {
				logger.Error().Err(err).Msg("failed to commit the transaction event")
				return true, rollbackTx(s.Datastore, tx, "failed to commit event in drain queue", err)
			}
		}
		// finalize the batch; the in-memory store hands out a nil tx
		if tx != nil {
			if err := tx.Commit(); err != nil {
				logger.Error().Err(err).Msg("failed to commit the transaction")
				return true, fmt.Errorf("failed to commit transaction in drain queue: %w", err)
			}
		}
		return true, nil
	}
}
