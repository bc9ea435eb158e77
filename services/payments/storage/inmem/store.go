// Package inmem provides a process-local transaction store used by tests and
// the dev environment. It satisfies the payments Datastore interface.
package inmem

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	uuid "github.com/satori/go.uuid"
	"github.com/shopspring/decimal"

	"github.com/portal-pay/portal-go/services/payments/model"
)

var errNoSQL = errors.New("inmem: sql transactions not supported")

// Store keeps all records in process memory guarded by a single RWMutex.
type Store struct {
	mu            sync.RWMutex
	transactions  map[uuid.UUID]*model.Transaction
	byOrderRef    map[string]uuid.UUID
	byOrderID     map[string]uuid.UUID
	webhookEvents []model.WebhookEvent
	txnEvents     []*model.TransactionEvent
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		transactions: map[uuid.UUID]*model.Transaction{},
		byOrderRef:   map[string]uuid.UUID{},
		byOrderID:    map[string]uuid.UUID{},
	}
}

// CreateTransaction persists a new transaction record.
func (s *Store) CreateTransaction(ctx context.Context, txn *model.Transaction) (*model.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.transactions[txn.ID]; ok {
		return nil, model.ErrSomethingWentWrong
	}

	cp := copyTransaction(txn)
	s.transactions[cp.ID] = cp
	s.byOrderID[cp.OrderID] = cp.ID

	if cp.GatewayOrderRef.Valid {
		s.byOrderRef[cp.GatewayOrderRef.String] = cp.ID
	}

	return copyTransaction(cp), nil
}

// GetTransaction returns the transaction with the given id.
func (s *Store) GetTransaction(ctx context.Context, id uuid.UUID) (*model.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	txn, ok := s.transactions[id]
	if !ok {
		return nil, model.ErrTransactionNotFound
	}

	return copyTransaction(txn), nil
}

// GetTransactionByOrderRef returns the transaction the gateway knows by ref.
func (s *Store) GetTransactionByOrderRef(ctx context.Context, ref string) (*model.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byOrderRef[ref]
	if !ok {
		return nil, model.ErrTransactionNotFound
	}

	return copyTransaction(s.transactions[id]), nil
}

// GetTransactionByOrderID returns the transaction for a merchant order reference.
func (s *Store) GetTransactionByOrderID(ctx context.Context, orderID string) (*model.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byOrderID[orderID]
	if !ok {
		return nil, model.ErrTransactionNotFound
	}

	return copyTransaction(s.transactions[id]), nil
}

// UpdateTransaction replaces the mutable fields of the stored record.
func (s *Store) UpdateTransaction(ctx context.Context, txn *model.Transaction) (*model.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.update(txn)
}

// CommitStatusChange persists txn and queues evt under one lock acquisition.
func (s *Store) CommitStatusChange(ctx context.Context, txn *model.Transaction, evt *model.TransactionEvent) (*model.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.update(txn)
	if err != nil {
		return nil, err
	}

	if evt != nil {
		cp := *evt
		cp.ID = uuid.NewV4()
		cp.CreatedAt = time.Now().UTC()
		s.txnEvents = append(s.txnEvents, &cp)
	}

	return result, nil
}

// ListTransactions returns matching transactions plus the total match count.
func (s *Store) ListTransactions(ctx context.Context, filter model.TransactionFilter) ([]model.Transaction, int, error) {
	filter.Normalize()

	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]*model.Transaction, 0, len(s.transactions))
	for _, txn := range s.transactions {
		if filter.CustomerEmail != "" && txn.CustomerEmail != filter.CustomerEmail {
			continue
		}

		if filter.Status != "" && txn.Status != filter.Status {
			continue
		}

		matched = append(matched, txn)
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := len(matched)
	if len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}

	result := make([]model.Transaction, 0, len(matched))
	for _, txn := range matched {
		result = append(result, *copyTransaction(txn))
	}

	return result, total, nil
}

// TransactionStats aggregates per-status counts and paid volume.
func (s *Store) TransactionStats(ctx context.Context) (*model.TransactionStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := map[model.Status]int64{}
	volume := map[string]int64{}

	for _, txn := range s.transactions {
		counts[txn.Status]++

		if txn.Status == model.StatusPaid {
			volume[txn.Currency] += txn.Amount
		}
	}

	result := &model.TransactionStats{
		StatusCounts: make([]model.StatusCount, 0, len(counts)),
		PaidVolume:   make([]model.CurrencyVolume, 0, len(volume)),
	}

	for status, n := range counts {
		result.StatusCounts = append(result.StatusCounts, model.StatusCount{Status: status, Count: n})
	}

	sort.Slice(result.StatusCounts, func(i, j int) bool {
		return result.StatusCounts[i].Status < result.StatusCounts[j].Status
	})

	for currency, amount := range volume {
		result.PaidVolume = append(result.PaidVolume, model.CurrencyVolume{
			Currency: currency,
			Volume:   decimal.NewFromInt(amount),
		})
	}

	sort.Slice(result.PaidVolume, func(i, j int) bool {
		return result.PaidVolume[i].Currency < result.PaidVolume[j].Currency
	})

	return result, nil
}

// InsertWebhookEvent appends a delivery to the webhook audit log.
func (s *Store) InsertWebhookEvent(ctx context.Context, evt *model.WebhookEvent) (*model.WebhookEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *evt
	cp.ID = uuid.NewV4()
	cp.ReceivedAt = time.Now().UTC()
	s.webhookEvents = append(s.webhookEvents, cp)

	return &cp, nil
}

// WebhookEvents returns a snapshot of the audit log, oldest first.
func (s *Store) WebhookEvents() []model.WebhookEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]model.WebhookEvent(nil), s.webhookEvents...)
}

// GetUncommittedTransactionEvents returns copies of unpublished events.
//
// There is no sql transaction to hand back; callers must treat a nil tx as
// valid, as the drain job does.
func (s *Store) GetUncommittedTransactionEvents(ctx context.Context) (*sqlx.Tx, []model.TransactionEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := []model.TransactionEvent{}
	for _, evt := range s.txnEvents {
		if evt.Processed || evt.Erred {
			continue
		}

		result = append(result, *evt)
	}

	return nil, result, nil
}

// CommitTransactionEvent marks the event as published.
func (s *Store) CommitTransactionEvent(ctx context.Context, evt model.TransactionEvent, tx *sqlx.Tx) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, stored := range s.txnEvents {
		if stored.ID == evt.ID {
			stored.Processed = true
			return nil
		}
	}

	return model.ErrNoRowsChangedTransactionEvent
}

// MarkTransactionEventErrored takes the event out of rotation.
func (s *Store) MarkTransactionEventErrored(ctx context.Context, evt model.TransactionEvent, tx *sqlx.Tx) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, stored := range s.txnEvents {
		if stored.ID == evt.ID {
			stored.Erred = true
			return nil
		}
	}

	return model.ErrNoRowsChangedTransactionEvent
}

// RawDB satisfies the embedded datastore interface; there is no database.
func (s *Store) RawDB() *sqlx.DB { return nil }

// NewMigrate satisfies the embedded datastore interface; there is no database.
func (s *Store) NewMigrate() (*migrate.Migrate, error) { return nil, errNoSQL }

// Migrate is a no-op.
func (s *Store) Migrate(_ ...uint) error { return nil }

// RollbackTxAndHandle rolls back tx when one is present.
func (s *Store) RollbackTxAndHandle(tx *sqlx.Tx) error {
	if tx == nil {
		return nil
	}

	return tx.Rollback()
}

// RollbackTx rolls back tx when one is present.
func (s *Store) RollbackTx(tx *sqlx.Tx) {
	_ = s.RollbackTxAndHandle(tx)
}

// BeginTx satisfies the embedded datastore interface; there is no database.
func (s *Store) BeginTx() (*sqlx.Tx, error) { return nil, errNoSQL }

func (s *Store) update(txn *model.Transaction) (*model.Transaction, error) {
	stored, ok := s.transactions[txn.ID]
	if !ok {
		return nil, model.ErrTransactionNotFound
	}

	// Only the mutable fields move over, matching the sql store.
	stored.Status = txn.Status
	stored.GatewayOrderRef = txn.GatewayOrderRef
	stored.PaymentURL = txn.PaymentURL
	stored.RefundToken = copyRefundToken(txn.RefundToken)
	stored.GatewayEventIDsSeen = append(pq.StringArray(nil), txn.GatewayEventIDsSeen...)
	stored.Metadata = txn.Metadata.Copy()
	stored.UpdatedAt = txn.UpdatedAt

	if stored.GatewayOrderRef.Valid {
		s.byOrderRef[stored.GatewayOrderRef.String] = stored.ID
	}

	return copyTransaction(stored), nil
}

func copyTransaction(txn *model.Transaction) *model.Transaction {
	cp := *txn
	cp.GatewayEventIDsSeen = append(pq.StringArray(nil), txn.GatewayEventIDsSeen...)
	cp.Metadata = txn.Metadata.Copy()
	cp.RefundToken = copyRefundToken(txn.RefundToken)

	return &cp
}

func copyRefundToken(token *uuid.UUID) *uuid.UUID {
	if token == nil {
		return nil
	}

	cp := *token

	return &cp
}
