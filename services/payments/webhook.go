package payments

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/portal-pay/portal-go/libs/clients/gateway"
	appctx "github.com/portal-pay/portal-go/libs/context"
	"github.com/portal-pay/portal-go/libs/logging"

	"github.com/portal-pay/portal-go/services/payments/model"
)

// ProcessWebhook verifies, parses and applies one raw gateway delivery.
//
// Every delivery lands in the audit log with its disposition, including the
// ones rejected before parsing. The returned error carries the rejection
// reason for the http layer.
func (s *Service) ProcessWebhook(ctx context.Context, body []byte, signature string) (*model.Transaction, error) {
	digest := payloadDigest(body)

	secret, err := appctx.GetStringFromContext(ctx, appctx.GatewayWebhookSecretCTXKey)
	if err != nil {
		return nil, fmt.Errorf("failed to get GatewayWebhookSecret from context: %w", err)
	}

	if !gateway.VerifySignature([]byte(secret), body, signature) {
		s.recordWebhook(ctx, nil, digest, model.WebhookRejectedSignature, "signature mismatch")
		return nil, model.ErrSignatureInvalid
	}

	var payload model.WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		s.recordWebhook(ctx, nil, digest, model.WebhookRejectedMalformed, err.Error())
		return nil, model.ErrMalformedPayload
	}

	if err := payload.Validate(); err != nil {
		s.recordWebhook(ctx, &payload, digest, model.WebhookRejectedMalformed, err.Error())
		return nil, err
	}

	txn, err := s.Datastore.GetTransactionByOrderRef(ctx, payload.OrderRef)
	if err != nil {
		if errors.Is(err, model.ErrTransactionNotFound) {
			s.recordWebhook(ctx, &payload, digest, model.WebhookOrphaned, "no transaction for order ref")
		}
		return nil, err
	}

	// Label replays for the audit trail up front. ApplyEvent re-checks under
	// the per-id lock and stays authoritative.
	replay := txn.HasSeenEvent(payload.EventID)
	if !replay && txn.Status.Settled() {
		if settled, ok := txn.Status.SettledOutcome(); ok && settled == payload.Outcome {
			replay = true
		}
	}

	result, err := s.ApplyEvent(ctx, txn.ID, payload.EventID, payload.Outcome, payload.Reason, digest)
	switch {
	case err == nil:
		disposition := model.WebhookProcessed
		if replay {
			disposition = model.WebhookDuplicate
		}
		s.recordWebhook(ctx, &payload, digest, disposition, "")
		return result, nil
	case errors.Is(err, model.ErrConflictingOutcome):
		s.recordWebhook(ctx, &payload, digest, model.WebhookConflict, err.Error())
		return nil, err
	case errors.Is(err, model.ErrInvalidTransition):
		s.recordWebhook(ctx, &payload, digest, model.WebhookInvalid, err.Error())
		return nil, err
	default:
		return nil, err
	}
}

// payloadDigest ties an audit row to the exact bytes that were delivered.
func payloadDigest(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// recordWebhook appends one delivery to the audit log. Audit failures are
// logged and swallowed so bookkeeping cannot break delivery handling.
func (s *Service) recordWebhook(ctx context.Context, payload *model.WebhookPayload, digest string, disposition model.WebhookDisposition, message string) {
	evt := &model.WebhookEvent{
		Disposition:   disposition,
		PayloadDigest: digest,
		Message:       model.NewNullString(message),
	}
	if payload != nil {
		evt.EventID = model.NewNullString(payload.EventID)
		evt.OrderRef = model.NewNullString(payload.OrderRef)
		evt.Outcome = model.NewNullString(payload.Outcome.String())
	}

	if _, err := s.Datastore.InsertWebhookEvent(ctx, evt); err != nil {
		logging.Logger(ctx, "payments.recordWebhook").Error().Err(err).Msg("failed to record webhook delivery")
	}
}
