//go:build integration

package repository_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	uuid "github.com/satori/go.uuid"
	should "github.com/stretchr/testify/assert"
	must "github.com/stretchr/testify/require"

	"github.com/portal-pay/portal-go/libs/datastore"

	"github.com/portal-pay/portal-go/services/payments/model"
	"github.com/portal-pay/portal-go/services/payments/storage/repository"
)

func TestTransaction_CreateGet(t *testing.T) {
	dbi, err := setupDBI()
	must.Equal(t, nil, err)

	t.Cleanup(func() {
		_, _ = dbi.Exec("TRUNCATE TABLE transactions;")
	})

	ctx := context.Background()

	tx, err := dbi.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadUncommitted})
	must.Equal(t, nil, err)

	t.Cleanup(func() { _ = tx.Rollback() })

	repo := repository.NewTransaction()

	txn, err := createTransactionForTest(ctx, tx, repo)
	must.Equal(t, nil, err)

	actual, err := repo.Get(ctx, tx, txn.ID)
	must.Equal(t, nil, err)

	should.Equal(t, txn.ID, actual.ID)
	should.Equal(t, txn.OrderID, actual.OrderID)
	should.Equal(t, int64(1000), actual.Amount)
	should.Equal(t, "INR", actual.Currency)
	should.Equal(t, model.StatusCreated, actual.Status)
	should.Equal(t, false, actual.GatewayOrderRef.Valid)

	_, err = repo.Get(ctx, tx, uuid.NamespaceDNS)
	should.Equal(t, true, errors.Is(err, model.ErrTransactionNotFound))
}

func TestTransaction_GetByGatewayOrderRef(t *testing.T) {
	dbi, err := setupDBI()
	must.Equal(t, nil, err)

	t.Cleanup(func() {
		_, _ = dbi.Exec("TRUNCATE TABLE transactions;")
	})

	ctx := context.Background()

	tx, err := dbi.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadUncommitted})
	must.Equal(t, nil, err)

	t.Cleanup(func() { _ = tx.Rollback() })

	repo := repository.NewTransaction()

	txn, err := createTransactionForTest(ctx, tx, repo)
	must.Equal(t, nil, err)

	txn.Status = model.StatusPendingConfirmation
	txn.GatewayOrderRef = model.NewNullString("pay_0123456789abcdef0123")
	txn.UpdatedAt = time.Now().UTC()

	_, err = repo.Update(ctx, tx, txn)
	must.Equal(t, nil, err)

	actual, err := repo.GetByGatewayOrderRef(ctx, tx, "pay_0123456789abcdef0123")
	must.Equal(t, nil, err)
	should.Equal(t, txn.ID, actual.ID)

	_, err = repo.GetByGatewayOrderRef(ctx, tx, "pay_none")
	should.Equal(t, true, errors.Is(err, model.ErrTransactionNotFound))
}

func TestTransaction_GetByOrderID(t *testing.T) {
	dbi, err := setupDBI()
	must.Equal(t, nil, err)

	t.Cleanup(func() {
		_, _ = dbi.Exec("TRUNCATE TABLE transactions;")
	})

	ctx := context.Background()

	tx, err := dbi.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadUncommitted})
	must.Equal(t, nil, err)

	t.Cleanup(func() { _ = tx.Rollback() })

	repo := repository.NewTransaction()

	txn, err := createTransactionForTest(ctx, tx, repo)
	must.Equal(t, nil, err)

	actual, err := repo.GetByOrderID(ctx, tx, txn.OrderID)
	must.Equal(t, nil, err)
	should.Equal(t, txn.ID, actual.ID)

	_, err = repo.GetByOrderID(ctx, tx, "ORD00000000000000FFFFFF")
	should.Equal(t, true, errors.Is(err, model.ErrTransactionNotFound))
}

func TestTransaction_Update(t *testing.T) {
	dbi, err := setupDBI()
	must.Equal(t, nil, err)

	t.Cleanup(func() {
		_, _ = dbi.Exec("TRUNCATE TABLE transactions;")
	})

	ctx := context.Background()

	tx, err := dbi.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadUncommitted})
	must.Equal(t, nil, err)

	t.Cleanup(func() { _ = tx.Rollback() })

	repo := repository.NewTransaction()

	txn, err := createTransactionForTest(ctx, tx, repo)
	must.Equal(t, nil, err)

	txn.Status = model.StatusPendingConfirmation
	txn.GatewayEventIDsSeen = append(txn.GatewayEventIDsSeen, "evt_001")
	txn.Metadata = datastore.Metadata{"failure_reason": "card_declined"}
	// Deliberate attempt to change an immutable column.
	txn.Amount = 42

	actual, err := repo.Update(ctx, tx, txn)
	must.Equal(t, nil, err)

	should.Equal(t, model.StatusPendingConfirmation, actual.Status)
	should.Equal(t, true, actual.HasSeenEvent("evt_001"))
	should.Equal(t, datastore.Metadata{"failure_reason": "card_declined"}, actual.Metadata)
	// Amount survives untouched.
	should.Equal(t, int64(1000), actual.Amount)

	missing := &model.Transaction{ID: uuid.NamespaceDNS, UpdatedAt: time.Now().UTC()}
	_, err = repo.Update(ctx, tx, missing)
	should.Equal(t, true, errors.Is(err, model.ErrTransactionNotFound))
}

func TestTransaction_List(t *testing.T) {
	dbi, err := setupDBI()
	must.Equal(t, nil, err)

	t.Cleanup(func() {
		_, _ = dbi.Exec("TRUNCATE TABLE transactions;")
	})

	ctx := context.Background()

	tx, err := dbi.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadUncommitted})
	must.Equal(t, nil, err)

	t.Cleanup(func() { _ = tx.Rollback() })

	repo := repository.NewTransaction()

	for i := 0; i < 3; i++ {
		_, err := createTransactionForTest(ctx, tx, repo)
		must.Equal(t, nil, err)
	}

	actual, err := repo.List(ctx, tx, model.TransactionFilter{CustomerEmail: "dev@example.com"})
	must.Equal(t, nil, err)
	should.Equal(t, 3, len(actual))

	actual, err = repo.List(ctx, tx, model.TransactionFilter{CustomerEmail: "dev@example.com", Limit: 2})
	must.Equal(t, nil, err)
	should.Equal(t, 2, len(actual))

	actual, err = repo.List(ctx, tx, model.TransactionFilter{Status: model.StatusPaid})
	must.Equal(t, nil, err)
	should.Equal(t, 0, len(actual))

	total, err := repo.Count(ctx, tx, model.TransactionFilter{CustomerEmail: "dev@example.com"})
	must.Equal(t, nil, err)
	should.Equal(t, 3, total)
}

func TestTransactionEvent_Drain(t *testing.T) {
	dbi, err := setupDBI()
	must.Equal(t, nil, err)

	t.Cleanup(func() {
		_, _ = dbi.Exec("TRUNCATE TABLE transaction_events;")
		_, _ = dbi.Exec("TRUNCATE TABLE transactions;")
	})

	ctx := context.Background()

	tx, err := dbi.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadUncommitted})
	must.Equal(t, nil, err)

	t.Cleanup(func() { _ = tx.Rollback() })

	txnRepo := repository.NewTransaction()

	txn, err := createTransactionForTest(ctx, tx, txnRepo)
	must.Equal(t, nil, err)

	repo := repository.NewTransactionEvent()

	evt, err := repo.Insert(ctx, tx, &model.TransactionEvent{
		TransactionID: txn.ID,
		EventType:     "paid",
		Body:          []byte("binary-avro"),
	})
	must.Equal(t, nil, err)
	should.Equal(t, false, evt.Processed)
	should.Equal(t, false, evt.Erred)

	batch, err := repo.GetUncommitted(ctx, tx, 100)
	must.Equal(t, nil, err)
	must.Equal(t, 1, len(batch))
	should.Equal(t, evt.ID, batch[0].ID)

	err = repo.Commit(ctx, tx, evt.ID)
	must.Equal(t, nil, err)

	batch, err = repo.GetUncommitted(ctx, tx, 100)
	must.Equal(t, nil, err)
	should.Equal(t, 0, len(batch))

	err = repo.Commit(ctx, tx, uuid.NewV4())
	should.Equal(t, true, errors.Is(err, model.ErrNoRowsChangedTransactionEvent))
}

func TestWebhookEvent_Insert(t *testing.T) {
	dbi, err := setupDBI()
	must.Equal(t, nil, err)

	t.Cleanup(func() {
		_, _ = dbi.Exec("TRUNCATE TABLE webhook_events;")
	})

	ctx := context.Background()

	tx, err := dbi.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadUncommitted})
	must.Equal(t, nil, err)

	t.Cleanup(func() { _ = tx.Rollback() })

	repo := repository.NewWebhookEvent()

	evt, err := repo.Insert(ctx, tx, &model.WebhookEvent{
		EventID:       model.NewNullString("evt_001"),
		OrderRef:      model.NewNullString("pay_abc"),
		Outcome:       model.NewNullString("success"),
		Disposition:   model.WebhookProcessed,
		PayloadDigest: "digest",
	})
	must.Equal(t, nil, err)
	should.NotEqual(t, uuid.Nil, evt.ID)
	should.Equal(t, false, evt.ReceivedAt.IsZero())

	trail, err := repo.ListByEventID(ctx, tx, "evt_001")
	must.Equal(t, nil, err)
	must.Equal(t, 1, len(trail))
	should.Equal(t, model.WebhookProcessed, trail[0].Disposition)
}

func setupDBI() (*sqlx.DB, error) {
	pg, err := datastore.NewPostgres("", false)
	if err != nil {
		return nil, err
	}

	mg, err := pg.NewMigrate()
	if err != nil {
		return nil, err
	}

	if ver, dirty, _ := mg.Version(); dirty {
		if err := mg.Force(int(ver)); err != nil {
			return nil, err
		}
	}

	if err := pg.Migrate(); err != nil {
		return nil, err
	}

	return pg.RawDB(), nil
}

func createTransactionForTest(ctx context.Context, dbi sqlx.QueryerContext, repo *repository.Transaction) (*model.Transaction, error) {
	req := &model.CreateTransactionRequest{
		Amount:        1000,
		Currency:      "INR",
		CustomerEmail: "dev@example.com",
		CustomerName:  "Dev Example",
	}

	return repo.Create(ctx, dbi, model.NewTransaction(req, time.Now().UTC()))
}
