package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	uuid "github.com/satori/go.uuid"

	"github.com/portal-pay/portal-go/services/payments/model"
)

type MockTransaction struct {
	FnCreate               func(ctx context.Context, dbi sqlx.QueryerContext, txn *model.Transaction) (*model.Transaction, error)
	FnGet                  func(ctx context.Context, dbi sqlx.QueryerContext, id uuid.UUID) (*model.Transaction, error)
	FnGetByGatewayOrderRef func(ctx context.Context, dbi sqlx.QueryerContext, ref string) (*model.Transaction, error)
	FnGetByOrderID         func(ctx context.Context, dbi sqlx.QueryerContext, orderID string) (*model.Transaction, error)
	FnUpdate               func(ctx context.Context, dbi sqlx.QueryerContext, txn *model.Transaction) (*model.Transaction, error)
	FnList                 func(ctx context.Context, dbi sqlx.QueryerContext, filter model.TransactionFilter) ([]model.Transaction, error)
	FnCount                func(ctx context.Context, dbi sqlx.QueryerContext, filter model.TransactionFilter) (int, error)
	FnStatusCounts         func(ctx context.Context, dbi sqlx.QueryerContext) ([]model.StatusCount, error)
	FnPaidVolume           func(ctx context.Context, dbi sqlx.QueryerContext) ([]model.CurrencyVolume, error)
}

func (r *MockTransaction) Create(ctx context.Context, dbi sqlx.QueryerContext, txn *model.Transaction) (*model.Transaction, error) {
	if r.FnCreate == nil {
		result := *txn

		return &result, nil
	}

	return r.FnCreate(ctx, dbi, txn)
}

func (r *MockTransaction) Get(ctx context.Context, dbi sqlx.QueryerContext, id uuid.UUID) (*model.Transaction, error) {
	if r.FnGet == nil {
		result := &model.Transaction{
			ID:        id,
			Status:    model.StatusCreated,
			CreatedAt: time.Now().UTC(),
			UpdatedAt: time.Now().UTC(),
		}

		return result, nil
	}

	return r.FnGet(ctx, dbi, id)
}

func (r *MockTransaction) GetByGatewayOrderRef(ctx context.Context, dbi sqlx.QueryerContext, ref string) (*model.Transaction, error) {
	if r.FnGetByGatewayOrderRef == nil {
		result := &model.Transaction{
			ID:              uuid.NewV4(),
			Status:          model.StatusPendingConfirmation,
			GatewayOrderRef: model.NewNullString(ref),
			CreatedAt:       time.Now().UTC(),
			UpdatedAt:       time.Now().UTC(),
		}

		return result, nil
	}

	return r.FnGetByGatewayOrderRef(ctx, dbi, ref)
}

func (r *MockTransaction) GetByOrderID(ctx context.Context, dbi sqlx.QueryerContext, orderID string) (*model.Transaction, error) {
	if r.FnGetByOrderID == nil {
		result := &model.Transaction{
			ID:        uuid.NewV4(),
			OrderID:   orderID,
			Status:    model.StatusCreated,
			CreatedAt: time.Now().UTC(),
			UpdatedAt: time.Now().UTC(),
		}

		return result, nil
	}

	return r.FnGetByOrderID(ctx, dbi, orderID)
}

func (r *MockTransaction) Update(ctx context.Context, dbi sqlx.QueryerContext, txn *model.Transaction) (*model.Transaction, error) {
	if r.FnUpdate == nil {
		result := *txn

		return &result, nil
	}

	return r.FnUpdate(ctx, dbi, txn)
}

func (r *MockTransaction) List(ctx context.Context, dbi sqlx.QueryerContext, filter model.TransactionFilter) ([]model.Transaction, error) {
	if r.FnList == nil {
		return []model.Transaction{}, nil
	}

	return r.FnList(ctx, dbi, filter)
}

func (r *MockTransaction) Count(ctx context.Context, dbi sqlx.QueryerContext, filter model.TransactionFilter) (int, error) {
	if r.FnCount == nil {
		return 0, nil
	}

	return r.FnCount(ctx, dbi, filter)
}

func (r *MockTransaction) StatusCounts(ctx context.Context, dbi sqlx.QueryerContext) ([]model.StatusCount, error) {
	if r.FnStatusCounts == nil {
		return []model.StatusCount{}, nil
	}

	return r.FnStatusCounts(ctx, dbi)
}

func (r *MockTransaction) PaidVolume(ctx context.Context, dbi sqlx.QueryerContext) ([]model.CurrencyVolume, error) {
	if r.FnPaidVolume == nil {
		return []model.CurrencyVolume{}, nil
	}

	return r.FnPaidVolume(ctx, dbi)
}

type MockWebhookEvent struct {
	FnInsert        func(ctx context.Context, dbi sqlx.QueryerContext, evt *model.WebhookEvent) (*model.WebhookEvent, error)
	FnListByEventID func(ctx context.Context, dbi sqlx.QueryerContext, eventID string) ([]model.WebhookEvent, error)
}

func (r *MockWebhookEvent) Insert(ctx context.Context, dbi sqlx.QueryerContext, evt *model.WebhookEvent) (*model.WebhookEvent, error) {
	if r.FnInsert == nil {
		result := *evt
		result.ID = uuid.NewV4()
		result.ReceivedAt = time.Now().UTC()

		return &result, nil
	}

	return r.FnInsert(ctx, dbi, evt)
}

func (r *MockWebhookEvent) ListByEventID(ctx context.Context, dbi sqlx.QueryerContext, eventID string) ([]model.WebhookEvent, error) {
	if r.FnListByEventID == nil {
		return []model.WebhookEvent{}, nil
	}

	return r.FnListByEventID(ctx, dbi, eventID)
}

type MockTransactionEvent struct {
	FnInsert         func(ctx context.Context, dbi sqlx.QueryerContext, evt *model.TransactionEvent) (*model.TransactionEvent, error)
	FnGetUncommitted func(ctx context.Context, dbi sqlx.QueryerContext, limit int) ([]model.TransactionEvent, error)
	FnCommit         func(ctx context.Context, dbi sqlx.ExecerContext, id uuid.UUID) error
	FnMarkErrored    func(ctx context.Context, dbi sqlx.ExecerContext, id uuid.UUID) error
}

func (r *MockTransactionEvent) Insert(ctx context.Context, dbi sqlx.QueryerContext, evt *model.TransactionEvent) (*model.TransactionEvent, error) {
	if r.FnInsert == nil {
		result := *evt
		result.ID = uuid.NewV4()
		result.CreatedAt = time.Now().UTC()

		return &result, nil
	}

	return r.FnInsert(ctx, dbi, evt)
}

func (r *MockTransactionEvent) GetUncommitted(ctx context.Context, dbi sqlx.QueryerContext, limit int) ([]model.TransactionEvent, error) {
	if r.FnGetUncommitted == nil {
		return []model.TransactionEvent{}, nil
	}

	return r.FnGetUncommitted(ctx, dbi, limit)
}

func (r *MockTransactionEvent) Commit(ctx context.Context, dbi sqlx.ExecerContext, id uuid.UUID) error {
	if r.FnCommit == nil {
		return nil
	}

	return r.FnCommit(ctx, dbi, id)
}

func (r *MockTransactionEvent) MarkErrored(ctx context.Context, dbi sqlx.ExecerContext, id uuid.UUID) error {
	if r.FnMarkErrored == nil {
		return nil
	}

	return r.FnMarkErrored(ctx, dbi, id)
}
