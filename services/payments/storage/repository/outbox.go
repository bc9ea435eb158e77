package repository

import (
	"context"

	"github.com/jmoiron/sqlx"
	uuid "github.com/satori/go.uuid"

	"github.com/portal-pay/portal-go/services/payments/model"
)

type TransactionEvent struct{}

func NewTransactionEvent() *TransactionEvent { return &TransactionEvent{} }

// Insert queues a status-change notification for publication.
func (r *TransactionEvent) Insert(ctx context.Context, dbi sqlx.QueryerContext, evt *model.TransactionEvent) (*model.TransactionEvent, error) {
	const q = `INSERT INTO transaction_events (transaction_id, event_type, body)
	VALUES ($1, $2, $3)
	RETURNING id, transaction_id, event_type, body, processed, erred, created_at`

	result := &model.TransactionEvent{}
	if err := dbi.QueryRowxContext(ctx, q, evt.TransactionID, evt.EventType, evt.Body).StructScan(result); err != nil {
		return nil, err
	}

	return result, nil
}

// GetUncommitted locks a batch of unpublished events for the caller's tx.
func (r *TransactionEvent) GetUncommitted(ctx context.Context, dbi sqlx.QueryerContext, limit int) ([]model.TransactionEvent, error) {
	const q = `SELECT id, transaction_id, event_type, body, processed, erred, created_at
	FROM transaction_events
	WHERE processed = false AND erred = false
	ORDER BY created_at
	LIMIT $1
	FOR UPDATE`

	result := []model.TransactionEvent{}
	if err := sqlx.SelectContext(ctx, dbi, &result, q, limit); err != nil {
		return nil, err
	}

	return result, nil
}

// Commit marks the event as published.
func (r *TransactionEvent) Commit(ctx context.Context, dbi sqlx.ExecerContext, id uuid.UUID) error {
	const q = `UPDATE transaction_events SET processed = true WHERE id = $1`

	return r.execUpdate(ctx, dbi, q, id)
}

// MarkErrored takes the event out of rotation after a publish failure.
func (r *TransactionEvent) MarkErrored(ctx context.Context, dbi sqlx.ExecerContext, id uuid.UUID) error {
	const q = `UPDATE transaction_events SET erred = true WHERE id = $1`

	return r.execUpdate(ctx, dbi, q, id)
}

func (r *TransactionEvent) execUpdate(ctx context.Context, dbi sqlx.ExecerContext, q string, args ...interface{}) error {
	result, err := dbi.ExecContext(ctx, q, args...)
	if err != nil {
		return err
	}

	numAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if numAffected == 0 {
		return model.ErrNoRowsChangedTransactionEvent
	}

	return nil
}
