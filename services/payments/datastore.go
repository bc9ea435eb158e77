package payments

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	uuid "github.com/satori/go.uuid"

	"github.com/portal-pay/portal-go/libs/datastore"

	"github.com/portal-pay/portal-go/services/payments/model"
	"github.com/portal-pay/portal-go/services/payments/storage/repository"

	// needed for magic migration
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

const drainBatchSize = 100

// Datastore abstracts over the underlying datastore.
type Datastore interface {
	datastore.Datastore

	// CreateTransaction persists a new transaction record.
	CreateTransaction(ctx context.Context, txn *model.Transaction) (*model.Transaction, error)
	// GetTransaction returns the transaction with the given id.
	GetTransaction(ctx context.Context, id uuid.UUID) (*model.Transaction, error)
	// GetTransactionByOrderRef returns the transaction the gateway knows by ref.
	GetTransactionByOrderRef(ctx context.Context, ref string) (*model.Transaction, error)
	// GetTransactionByOrderID returns the transaction for a merchant order reference.
	GetTransactionByOrderID(ctx context.Context, orderID string) (*model.Transaction, error)
	// UpdateTransaction replaces the mutable columns of the stored record.
	UpdateTransaction(ctx context.Context, txn *model.Transaction) (*model.Transaction, error)
	// CommitStatusChange persists txn and queues evt for publication atomically.
	CommitStatusChange(ctx context.Context, txn *model.Transaction, evt *model.TransactionEvent) (*model.Transaction, error)
	// ListTransactions returns matching transactions plus the total match count.
	ListTransactions(ctx context.Context, filter model.TransactionFilter) ([]model.Transaction, int, error)
	// TransactionStats aggregates per-status counts and paid volume.
	TransactionStats(ctx context.Context) (*model.TransactionStats, error)
	// InsertWebhookEvent appends a delivery to the webhook audit log.
	InsertWebhookEvent(ctx context.Context, evt *model.WebhookEvent) (*model.WebhookEvent, error)

	// Outbox
	GetUncommittedTransactionEvents(ctx context.Context) (*sqlx.Tx, []model.TransactionEvent, error)
	CommitTransactionEvent(ctx context.Context, evt model.TransactionEvent, tx *sqlx.Tx) error
	MarkTransactionEventErrored(ctx context.Context, evt model.TransactionEvent, tx *sqlx.Tx) error
}

// Postgres is a Datastore wrapper around a postgres database.
type Postgres struct {
	datastore.Postgres

	trxRepo *repository.Transaction
	whRepo  *repository.WebhookEvent
	evtRepo *repository.TransactionEvent
}

// NewPostgres creates a new Postgres Datastore.
func NewPostgres(databaseURL string, performMigration bool, dbStatsPrefix ...string) (Datastore, error) {
	pg, err := datastore.NewPostgres(databaseURL, performMigration, dbStatsPrefix...)
	if pg != nil {
		return &Postgres{
			Postgres: *pg,
			trxRepo:  repository.NewTransaction(),
			whRepo:   repository.NewWebhookEvent(),
			evtRepo:  repository.NewTransactionEvent(),
		}, err
	}

	return nil, err
}

// CreateTransaction persists a new transaction record.
func (pg *Postgres) CreateTransaction(ctx context.Context, txn *model.Transaction) (*model.Transaction, error) {
	return pg.trxRepo.Create(ctx, pg.RawDB(), txn)
}

// GetTransaction returns the transaction with the given id.
func (pg *Postgres) GetTransaction(ctx context.Context, id uuid.UUID) (*model.Transaction, error) {
	return pg.trxRepo.Get(ctx, pg.RawDB(), id)
}

// GetTransactionByOrderRef returns the transaction the gateway knows by ref.
func (pg *Postgres) GetTransactionByOrderRef(ctx context.Context, ref string) (*model.Transaction, error) {
	return pg.trxRepo.GetByGatewayOrderRef(ctx, pg.RawDB(), ref)
}

// GetTransactionByOrderID returns the transaction for a merchant order reference.
func (pg *Postgres) GetTransactionByOrderID(ctx context.Context, orderID string) (*model.Transaction, error) {
	return pg.trxRepo.GetByOrderID(ctx, pg.RawDB(), orderID)
}

// UpdateTransaction replaces the mutable columns of the stored record.
func (pg *Postgres) UpdateTransaction(ctx context.Context, txn *model.Transaction) (*model.Transaction, error) {
	return pg.trxRepo.Update(ctx, pg.RawDB(), txn)
}

// CommitStatusChange persists txn and queues evt in a single database transaction.
//
// The outbox row rides on the status write so a crash cannot publish a change
// that was never stored, or store one that never publishes.
func (pg *Postgres) CommitStatusChange(ctx context.Context, txn *model.Transaction, evt *model.TransactionEvent) (*model.Transaction, error) {
	tx, err := pg.BeginTx()
	if err != nil {
		return nil, fmt.Errorf("failed to begin status change: %w", err)
	}
	defer pg.RollbackTx(tx)

	result, err := pg.trxRepo.Update(ctx, tx, txn)
	if err != nil {
		return nil, err
	}

	if evt != nil {
		if _, err := pg.evtRepo.Insert(ctx, tx, evt); err != nil {
			return nil, fmt.Errorf("failed to queue transaction event: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit status change: %w", err)
	}

	return result, nil
}

// ListTransactions returns matching transactions plus the total match count.
func (pg *Postgres) ListTransactions(ctx context.Context, filter model.TransactionFilter) ([]model.Transaction, int, error) {
	result, err := pg.trxRepo.List(ctx, pg.RawDB(), filter)
	if err != nil {
		return nil, 0, err
	}

	total, err := pg.trxRepo.Count(ctx, pg.RawDB(), filter)
	if err != nil {
		return nil, 0, err
	}

	return result, total, nil
}

// TransactionStats aggregates per-status counts and paid volume.
func (pg *Postgres) TransactionStats(ctx context.Context) (*model.TransactionStats, error) {
	counts, err := pg.trxRepo.StatusCounts(ctx, pg.RawDB())
	if err != nil {
		return nil, err
	}

	volume, err := pg.trxRepo.PaidVolume(ctx, pg.RawDB())
	if err != nil {
		return nil, err
	}

	return &model.TransactionStats{StatusCounts: counts, PaidVolume: volume}, nil
}

// InsertWebhookEvent appends a delivery to the webhook audit log.
func (pg *Postgres) InsertWebhookEvent(ctx context.Context, evt *model.WebhookEvent) (*model.WebhookEvent, error) {
	return pg.whRepo.Insert(ctx, pg.RawDB(), evt)
}

// GetUncommittedTransactionEvents begins a transaction and row-locks a batch of
// unpublished events; the returned tx must be committed or rolled back by the
// caller.
func (pg *Postgres) GetUncommittedTransactionEvents(ctx context.Context) (*sqlx.Tx, []model.TransactionEvent, error) {
	tx, err := pg.RawDB().Beginx()
	if err != nil {
		return tx, nil, fmt.Errorf("failed to acquire transaction: %w", err)
	}

	events, err := pg.evtRepo.GetUncommitted(ctx, tx, drainBatchSize)
	if err != nil {
		return tx, nil, fmt.Errorf("failed to query transaction events for drain: %w", err)
	}

	return tx, events, nil
}

// CommitTransactionEvent marks the event as published within the drain tx.
func (pg *Postgres) CommitTransactionEvent(ctx context.Context, evt model.TransactionEvent, tx *sqlx.Tx) error {
	return pg.evtRepo.Commit(ctx, tx, evt.ID)
}

// MarkTransactionEventErrored takes the event out of rotation within the drain tx.
func (pg *Postgres) MarkTransactionEventErrored(ctx context.Context, evt model.TransactionEvent, tx *sqlx.Tx) error {
	return pg.evtRepo.MarkErrored(ctx, tx, evt.ID)
}
