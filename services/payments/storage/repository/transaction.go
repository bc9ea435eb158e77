// Package repository provides access to data available in SQL-based data store.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	uuid "github.com/satori/go.uuid"

	"github.com/portal-pay/portal-go/services/payments/model"
)

const transactionCols = `id, order_id, amount, currency, customer_email, customer_name,
	description, status, gateway_order_ref, payment_url, refund_token,
	gateway_event_ids_seen, metadata, created_at, updated_at`

type Transaction struct{}

func NewTransaction() *Transaction { return &Transaction{} }

// Create persists txn and returns the stored row.
func (r *Transaction) Create(ctx context.Context, dbi sqlx.QueryerContext, txn *model.Transaction) (*model.Transaction, error) {
	const q = `INSERT INTO transactions
		(id, order_id, amount, currency, customer_email, customer_name, description,
		status, gateway_event_ids_seen, metadata, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	RETURNING ` + transactionCols

	result := &model.Transaction{}
	if err := dbi.QueryRowxContext(
		ctx,
		q,
		txn.ID,
		txn.OrderID,
		txn.Amount,
		txn.Currency,
		txn.CustomerEmail,
		txn.CustomerName,
		txn.Description,
		txn.Status,
		txn.GatewayEventIDsSeen,
		txn.Metadata,
		txn.CreatedAt,
		txn.UpdatedAt,
	).StructScan(result); err != nil {
		return nil, err
	}

	return result, nil
}

// Get retrieves the transaction for the given id.
func (r *Transaction) Get(ctx context.Context, dbi sqlx.QueryerContext, id uuid.UUID) (*model.Transaction, error) {
	const q = `SELECT ` + transactionCols + ` FROM transactions WHERE id = $1`

	result := &model.Transaction{}
	if err := sqlx.GetContext(ctx, dbi, result, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrTransactionNotFound
		}

		return nil, err
	}

	return result, nil
}

// GetByGatewayOrderRef retrieves the transaction the gateway knows by ref.
func (r *Transaction) GetByGatewayOrderRef(ctx context.Context, dbi sqlx.QueryerContext, ref string) (*model.Transaction, error) {
	const q = `SELECT ` + transactionCols + ` FROM transactions WHERE gateway_order_ref = $1`

	result := &model.Transaction{}
	if err := sqlx.GetContext(ctx, dbi, result, q, ref); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrTransactionNotFound
		}

		return nil, err
	}

	return result, nil
}

// GetByOrderID retrieves the transaction by the merchant-facing order reference.
func (r *Transaction) GetByOrderID(ctx context.Context, dbi sqlx.QueryerContext, orderID string) (*model.Transaction, error) {
	const q = `SELECT ` + transactionCols + ` FROM transactions WHERE order_id = $1`

	result := &model.Transaction{}
	if err := sqlx.GetContext(ctx, dbi, result, q, orderID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrTransactionNotFound
		}

		return nil, err
	}

	return result, nil
}

// Update replaces the mutable columns of the stored row with txn's.
//
// Identity and the immutable payment facts (amount, currency, customer,
// order_id) are never touched.
func (r *Transaction) Update(ctx context.Context, dbi sqlx.QueryerContext, txn *model.Transaction) (*model.Transaction, error) {
	const q = `UPDATE transactions
	SET status = $2,
		gateway_order_ref = $3,
		payment_url = $4,
		refund_token = $5,
		gateway_event_ids_seen = $6,
		metadata = $7,
		updated_at = $8
	WHERE id = $1
	RETURNING ` + transactionCols

	result := &model.Transaction{}
	if err := dbi.QueryRowxContext(
		ctx,
		q,
		txn.ID,
		txn.Status,
		txn.GatewayOrderRef,
		txn.PaymentURL,
		txn.RefundToken,
		txn.GatewayEventIDsSeen,
		txn.Metadata,
		txn.UpdatedAt,
	).StructScan(result); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrTransactionNotFound
		}

		return nil, err
	}

	return result, nil
}

// List returns transactions matching filter, newest first.
func (r *Transaction) List(ctx context.Context, dbi sqlx.QueryerContext, filter model.TransactionFilter) ([]model.Transaction, error) {
	filter.Normalize()

	q, args := buildListQuery(`SELECT `+transactionCols+` FROM transactions`, filter)

	args = append(args, filter.Limit)
	q += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", len(args))

	result := []model.Transaction{}
	if err := sqlx.SelectContext(ctx, dbi, &result, q, args...); err != nil {
		return nil, err
	}

	return result, nil
}

// Count returns the number of transactions matching filter.
func (r *Transaction) Count(ctx context.Context, dbi sqlx.QueryerContext, filter model.TransactionFilter) (int, error) {
	q, args := buildListQuery(`SELECT COUNT(*) FROM transactions`, filter)

	var result int
	if err := sqlx.GetContext(ctx, dbi, &result, q, args...); err != nil {
		return 0, err
	}

	return result, nil
}

// StatusCounts returns the number of transactions per status.
func (r *Transaction) StatusCounts(ctx context.Context, dbi sqlx.QueryerContext) ([]model.StatusCount, error) {
	const q = `SELECT status, COUNT(*) AS count FROM transactions GROUP BY status ORDER BY status`

	result := []model.StatusCount{}
	if err := sqlx.SelectContext(ctx, dbi, &result, q); err != nil {
		return nil, err
	}

	return result, nil
}

// PaidVolume returns the summed paid amount per currency.
func (r *Transaction) PaidVolume(ctx context.Context, dbi sqlx.QueryerContext) ([]model.CurrencyVolume, error) {
	const q = `SELECT currency, SUM(amount)::numeric AS volume
	FROM transactions WHERE status = 'paid'
	GROUP BY currency ORDER BY currency`

	result := []model.CurrencyVolume{}
	if err := sqlx.SelectContext(ctx, dbi, &result, q); err != nil {
		return nil, err
	}

	return result, nil
}

func buildListQuery(q string, filter model.TransactionFilter) (string, []interface{}) {
	var (
		conds []string
		args  []interface{}
	)

	if filter.CustomerEmail != "" {
		args = append(args, filter.CustomerEmail)
		conds = append(conds, fmt.Sprintf("customer_email = $%d", len(args)))
	}

	if filter.Status != "" {
		args = append(args, filter.Status)
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}

	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}

	return q, args
}
