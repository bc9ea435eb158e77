// Package model provides the data the payments service operates on.
package model

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/asaskevich/govalidator"
	"github.com/lib/pq"
	uuid "github.com/satori/go.uuid"
	"github.com/shopspring/decimal"

	"github.com/portal-pay/portal-go/libs/datastore"
)

const (
	ErrSomethingWentWrong      Error = "something went wrong"
	ErrInvalidTransactionInput Error = "model: invalid transaction input"
	ErrGatewayUnavailable      Error = "model: payment gateway unavailable"
	ErrTransactionNotFound     Error = "model: transaction not found"
	ErrConflictingOutcome      Error = "model: outcome conflicts with settled transaction"
	ErrInvalidTransition       Error = "model: invalid status transition"
	ErrSignatureInvalid        Error = "model: webhook signature invalid"
	ErrMalformedPayload        Error = "model: malformed webhook payload"

	ErrNoRowsChangedTransaction      Error = "model: no rows changed in transactions"
	ErrNoRowsChangedTransactionEvent Error = "model: no rows changed in transaction_events"
	ErrUnknownStatus                 Error = "model: unknown transaction status"
)

const (
	// Status* represent transaction statuses at runtime and in db.
	StatusCreated             Status = "created"
	StatusPendingConfirmation Status = "pending_confirmation"
	StatusPaid                Status = "paid"
	StatusFailed              Status = "failed"
	StatusRefunded            Status = "refunded"
)

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

const (
	listLimitDefault = 50
	listLimitMax     = 500
)

// Transitions toward any new status must be explicitly enumerated here.
var Transitions = map[Status][]Status{
	StatusCreated:             {StatusPendingConfirmation},
	StatusPendingConfirmation: {StatusPaid, StatusFailed},
	StatusPaid:                {StatusRefunded},
	StatusFailed:              {},
	StatusRefunded:            {},
}

// Status is the lifecycle state of a transaction.
type Status string

func (s Status) String() string {
	return string(s)
}

// CanTransition reports whether the edge from s to next exists.
func (s Status) CanTransition(next Status) bool {
	for _, allowed := range Transitions[s] {
		if allowed == next {
			return true
		}
	}

	return false
}

// Settled reports whether the payment attempt has reached a final outcome.
func (s Status) Settled() bool {
	switch s {
	case StatusPaid, StatusFailed, StatusRefunded:
		return true
	default:
		return false
	}
}

// SettledOutcome returns the payment outcome a settled status records.
//
// A refunded transaction was paid before the refund, so its outcome is success.
func (s Status) SettledOutcome() (Outcome, bool) {
	switch s {
	case StatusPaid, StatusRefunded:
		return OutcomeSuccess, true
	case StatusFailed:
		return OutcomeFailure, true
	default:
		return "", false
	}
}

// ParseStatus parses the string form of a lifecycle status.
func ParseStatus(raw string) (Status, error) {
	switch s := Status(raw); s {
	case StatusCreated, StatusPendingConfirmation, StatusPaid, StatusFailed, StatusRefunded:
		return s, nil
	default:
		return "", ErrUnknownStatus
	}
}

// Outcome is the payment result carried by a gateway webhook.
type Outcome string

func (o Outcome) String() string {
	return string(o)
}

// TargetStatus maps the outcome to the status it drives a transaction toward.
func (o Outcome) TargetStatus() (Status, error) {
	switch o {
	case OutcomeSuccess:
		return StatusPaid, nil
	case OutcomeFailure:
		return StatusFailed, nil
	default:
		return "", ErrMalformedPayload
	}
}

// Transaction represents a single payment driven through the gateway.
type Transaction struct {
	ID                  uuid.UUID            `json:"id" db:"id"`
	OrderID             string               `json:"orderId" db:"order_id"`
	Amount              int64                `json:"amount" db:"amount"`
	Currency            string               `json:"currency" db:"currency"`
	CustomerEmail       string               `json:"customerEmail" db:"customer_email"`
	CustomerName        string               `json:"customerName" db:"customer_name"`
	Description         datastore.NullString `json:"description" db:"description"`
	Status              Status               `json:"status" db:"status"`
	GatewayOrderRef     datastore.NullString `json:"gatewayOrderRef" db:"gateway_order_ref"`
	PaymentURL          datastore.NullString `json:"paymentUrl" db:"payment_url"`
	RefundToken         *uuid.UUID           `json:"-" db:"refund_token"`
	GatewayEventIDsSeen pq.StringArray       `json:"-" db:"gateway_event_ids_seen"`
	Metadata            datastore.Metadata   `json:"metadata" db:"metadata"`
	CreatedAt           time.Time            `json:"createdAt" db:"created_at"`
	UpdatedAt           time.Time            `json:"updatedAt" db:"updated_at"`
}

// HasSeenEvent reports whether the gateway event id was already applied.
func (t *Transaction) HasSeenEvent(eventID string) bool {
	for _, id := range t.GatewayEventIDsSeen {
		if id == eventID {
			return true
		}
	}

	return false
}

// NewTransaction builds the created-status record for an initiate request.
func NewTransaction(req *CreateTransactionRequest, now time.Time) *Transaction {
	return &Transaction{
		ID:            uuid.NewV4(),
		OrderID:       NewOrderID(req.CustomerEmail, now),
		Amount:        req.Amount,
		Currency:      req.Currency,
		CustomerEmail: req.CustomerEmail,
		CustomerName:  req.CustomerName,
		Description:   NewNullString(req.Description),
		Status:        StatusCreated,
		Metadata:      datastore.Metadata{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// NewOrderID derives the merchant-facing order reference: ORD, a UTC
// timestamp and a short digest of the customer email.
func NewOrderID(customerEmail string, now time.Time) string {
	sum := sha256.Sum256([]byte(customerEmail))

	return "ORD" + now.UTC().Format("20060102150405") + strings.ToUpper(hex.EncodeToString(sum[:3]))
}

// NewNullString wraps s as a nullable column value, null when empty.
func NewNullString(s string) datastore.NullString {
	return datastore.NullString{NullString: sql.NullString{String: s, Valid: s != ""}}
}

// CreateTransactionRequest is the request to initiate a payment.
type CreateTransactionRequest struct {
	Amount        int64  `json:"amount" valid:"-"`
	Currency      string `json:"currency" valid:"alpha,uppercase,stringlength(3|3)"`
	CustomerEmail string `json:"customer_email" valid:"email"`
	CustomerName  string `json:"customer_name" valid:"stringlength(2|100)"`
	Description   string `json:"description" valid:"-"`
}

// Validate enforces the initiate invariants beyond what struct tags cover.
func (r *CreateTransactionRequest) Validate() error {
	if r.Amount <= 0 {
		return ErrInvalidTransactionInput
	}

	if len(r.Currency) != 3 || strings.ToUpper(r.Currency) != r.Currency || !govalidator.IsAlpha(r.Currency) {
		return ErrInvalidTransactionInput
	}

	if !govalidator.IsEmail(r.CustomerEmail) {
		return ErrInvalidTransactionInput
	}

	if n := utf8.RuneCountInString(r.CustomerName); n < 2 || n > 100 {
		return ErrInvalidTransactionInput
	}

	return nil
}

// WebhookPayload is the body the gateway posts on payment settlement.
type WebhookPayload struct {
	EventID  string  `json:"event_id"`
	OrderRef string  `json:"order_ref"`
	Outcome  Outcome `json:"outcome"`
	Reason   string  `json:"reason,omitempty"`
}

// Validate checks the fields the reconciler needs are present and well formed.
func (p *WebhookPayload) Validate() error {
	if p.EventID == "" || p.OrderRef == "" {
		return ErrMalformedPayload
	}

	if _, err := p.Outcome.TargetStatus(); err != nil {
		return err
	}

	return nil
}

const (
	// Webhook* represent audit dispositions for inbound deliveries.
	WebhookProcessed         WebhookDisposition = "processed"
	WebhookDuplicate         WebhookDisposition = "duplicate"
	WebhookRejectedSignature WebhookDisposition = "rejected_signature"
	WebhookRejectedMalformed WebhookDisposition = "rejected_malformed"
	WebhookOrphaned          WebhookDisposition = "orphaned"
	WebhookConflict          WebhookDisposition = "conflict"
	WebhookInvalid           WebhookDisposition = "invalid"
)

// WebhookDisposition is how the reconciler disposed of one delivery.
type WebhookDisposition string

func (d WebhookDisposition) String() string {
	return string(d)
}

// WebhookEvent is one audited webhook delivery, accepted or not.
type WebhookEvent struct {
	ID            uuid.UUID            `json:"id" db:"id"`
	EventID       datastore.NullString `json:"eventId" db:"event_id"`
	OrderRef      datastore.NullString `json:"orderRef" db:"order_ref"`
	Outcome       datastore.NullString `json:"outcome" db:"outcome"`
	Disposition   WebhookDisposition   `json:"disposition" db:"disposition"`
	PayloadDigest string               `json:"payloadDigest" db:"payload_digest"`
	Message       datastore.NullString `json:"message" db:"message"`
	ReceivedAt    time.Time            `json:"receivedAt" db:"received_at"`
}

// TransactionEvent is a status-change notification queued for publication.
type TransactionEvent struct {
	ID            uuid.UUID `db:"id"`
	TransactionID uuid.UUID `db:"transaction_id"`
	EventType     string    `db:"event_type"`
	Body          []byte    `db:"body"`
	Processed     bool      `db:"processed"`
	Erred         bool      `db:"erred"`
	CreatedAt     time.Time `db:"created_at"`
}

// TransactionFilter narrows ListTransactions results.
type TransactionFilter struct {
	CustomerEmail string
	Status        Status
	Limit         int
}

// Normalize applies the default and maximum page size.
func (f *TransactionFilter) Normalize() {
	if f.Limit <= 0 {
		f.Limit = listLimitDefault
	}

	if f.Limit > listLimitMax {
		f.Limit = listLimitMax
	}
}

// StatusCount is the number of transactions currently in one status.
type StatusCount struct {
	Status Status `json:"status" db:"status"`
	Count  int64  `json:"count" db:"count"`
}

// CurrencyVolume is the paid volume aggregated for one currency.
type CurrencyVolume struct {
	Currency string          `json:"currency" db:"currency"`
	Volume   decimal.Decimal `json:"volume" db:"volume"`
}

// TransactionStats summarizes the store for reporting.
type TransactionStats struct {
	StatusCounts []StatusCount    `json:"statusCounts"`
	PaidVolume   []CurrencyVolume `json:"paidVolume"`
}

type Error string

func (e Error) Error() string {
	return string(e)
}
