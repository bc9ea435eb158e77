package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/portal-pay/portal-go/services/payments/model"
)

type WebhookEvent struct{}

func NewWebhookEvent() *WebhookEvent { return &WebhookEvent{} }

// Insert appends one delivery to the audit log.
func (r *WebhookEvent) Insert(ctx context.Context, dbi sqlx.QueryerContext, evt *model.WebhookEvent) (*model.WebhookEvent, error) {
	const q = `INSERT INTO webhook_events
		(event_id, order_ref, outcome, disposition, payload_digest, message)
	VALUES ($1, $2, $3, $4, $5, $6)
	RETURNING id, event_id, order_ref, outcome, disposition, payload_digest, message, received_at`

	result := &model.WebhookEvent{}
	if err := dbi.QueryRowxContext(
		ctx,
		q,
		evt.EventID,
		evt.OrderRef,
		evt.Outcome,
		evt.Disposition,
		evt.PayloadDigest,
		evt.Message,
	).StructScan(result); err != nil {
		return nil, err
	}

	return result, nil
}

// ListByEventID returns the audit trail for one gateway event id, oldest first.
func (r *WebhookEvent) ListByEventID(ctx context.Context, dbi sqlx.QueryerContext, eventID string) ([]model.WebhookEvent, error) {
	const q = `SELECT id, event_id, order_ref, outcome, disposition, payload_digest, message, received_at
	FROM webhook_events WHERE event_id = $1 ORDER BY received_at`

	result := []model.WebhookEvent{}
	if err := sqlx.SelectContext(ctx, dbi, &result, q, eventID); err != nil {
		return nil, err
	}

	return result, nil
}
