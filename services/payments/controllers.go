package payments

import (
	"context"
	"errors"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/asaskevich/govalidator"
	"github.com/go-chi/chi"
	"github.com/go-chi/cors"

	"github.com/portal-pay/portal-go/libs/clients/gateway"
	"github.com/portal-pay/portal-go/libs/handlers"
	"github.com/portal-pay/portal-go/libs/inputs"
	"github.com/portal-pay/portal-go/libs/logging"
	"github.com/portal-pay/portal-go/libs/middleware"
	"github.com/portal-pay/portal-go/libs/requestutils"

	"github.com/portal-pay/portal-go/services/payments/model"
)

func corsMiddleware(allowedMethods []string) func(next http.Handler) http.Handler {
	debug, err := strconv.ParseBool(os.Getenv("DEBUG"))
	if err != nil {
		debug = false
	}
	return cors.Handler(cors.Options{
		Debug:            debug,
		AllowedOrigins:   strings.Split(os.Getenv("ALLOWED_ORIGINS"), ","),
		AllowedMethods:   allowedMethods,
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{""},
		AllowCredentials: false,
		MaxAge:           300, // Maximum value not ignored by any of major browsers
	})
}

// Router for transaction endpoints
func Router(service *Service) chi.Router {
	r := chi.NewRouter()

	if os.Getenv("ENV") == "local" {
		r.Method("OPTIONS", "/", middleware.InstrumentHandler("CreateTransactionOptions", corsMiddleware([]string{"POST"})(nil)))
		r.Method("POST", "/", middleware.InstrumentHandler("CreateTransaction", corsMiddleware([]string{"POST"})(CreateTransaction(service))))
	} else {
		r.Method("POST", "/", middleware.InstrumentHandler("CreateTransaction", CreateTransaction(service)))
	}

	r.Method("GET", "/", middleware.InstrumentHandler("ListTransactions", ListTransactions(service)))
	r.Method("GET", "/stats", middleware.InstrumentHandler("GetTransactionStats", GetTransactionStats(service)))
	r.Method("GET", "/{transactionID}", middleware.InstrumentHandler("GetTransaction", GetTransaction(service)))

	r.Method("POST", "/{transactionID}/refund", middleware.InstrumentHandler("RefundTransaction",
		middleware.SimpleTokenAuthorizedOnly(RefundTransaction(service))))

	return r
}

// WebhookRouter for gateway notification endpoints
func WebhookRouter(service *Service) chi.Router {
	r := chi.NewRouter()
	r.Method("POST", "/gateway", middleware.InstrumentHandler("HandleGatewayWebhook", HandleGatewayWebhook(service)))
	return r
}

// CreateTransaction is the handler for initiating a transaction
func CreateTransaction(service *Service) handlers.AppHandler {
	return func(w http.ResponseWriter, r *http.Request) *handlers.AppError {
		ctx := r.Context()
		sublogger := logging.Logger(ctx, "payments").With().
			Str("func", "CreateTransaction").
			Logger()

		var req model.CreateTransactionRequest
		err := requestutils.ReadJSON(ctx, r.Body, &req)
		if err != nil {
			return handlers.WrapError(err, "Error in request body", http.StatusBadRequest)
		}

		_, err = govalidator.ValidateStruct(req)
		if err != nil {
			return handlers.WrapValidationError(err)
		}

		transaction, err := service.Initiate(ctx, &req)
		if err != nil {
			switch {
			case errors.Is(err, model.ErrInvalidTransactionInput):
				return handlers.ValidationError(err.Error(), nil)
			case errors.Is(err, model.ErrGatewayUnavailable):
				sublogger.Warn().Err(err).Msg("gateway unavailable while initiating")
				return handlers.WrapError(err, "Payment gateway is unavailable", http.StatusServiceUnavailable)
			default:
				sublogger.Error().Err(err).Msg("error initiating the transaction")
				return handlers.WrapError(err, "Error initiating the transaction", http.StatusInternalServerError)
			}
		}

		return handlers.RenderContent(ctx, transaction, w, http.StatusCreated)
	}
}

// GetTransaction is the handler for getting a transaction
func GetTransaction(service *Service) handlers.AppHandler {
	return handlers.AppHandler(func(w http.ResponseWriter, r *http.Request) *handlers.AppError {
		var transactionID = new(inputs.ID)
		if err := inputs.DecodeAndValidateString(context.Background(), transactionID, chi.URLParam(r, "transactionID")); err != nil {
			return handlers.ValidationError(
				"Error validating request url parameter",
				map[string]interface{}{
					"transactionID": err.Error(),
				},
			)
		}

		transaction, err := service.GetTransaction(r.Context(), *transactionID.UUID())
		if err != nil {
			if errors.Is(err, model.ErrTransactionNotFound) {
				return handlers.WrapError(err, "Transaction not found", http.StatusNotFound)
			}
			return handlers.WrapError(err, "Error retrieving the transaction", http.StatusInternalServerError)
		}

		return handlers.RenderContent(r.Context(), transaction, w, http.StatusOK)
	})
}

// ListTransactionsResponse is the payload returned by the list endpoint
type ListTransactionsResponse struct {
	Transactions []model.Transaction `json:"transactions"`
	Total        int                 `json:"total"`
}

// ListTransactions is the handler for listing transactions
func ListTransactions(service *Service) handlers.AppHandler {
	return handlers.AppHandler(func(w http.ResponseWriter, r *http.Request) *handlers.AppError {
		ctx := r.Context()

		filter := model.TransactionFilter{
			CustomerEmail: r.URL.Query().Get("email"),
		}

		if status := r.URL.Query().Get("status"); status != "" {
			parsed, err := model.ParseStatus(status)
			if err != nil {
				return handlers.ValidationError(
					"Error validating query parameter",
					map[string]interface{}{
						"status": err.Error(),
					},
				)
			}
			filter.Status = parsed
		}

		if limit := r.URL.Query().Get("limit"); limit != "" {
			n, err := strconv.Atoi(limit)
			if err != nil {
				return handlers.ValidationError(
					"Error validating query parameter",
					map[string]interface{}{
						"limit": err.Error(),
					},
				)
			}
			filter.Limit = n
		}

		transactions, total, err := service.ListTransactions(ctx, filter)
		if err != nil {
			return handlers.WrapError(err, "Error listing transactions", http.StatusInternalServerError)
		}

		return handlers.RenderContent(ctx, &ListTransactionsResponse{
			Transactions: transactions,
			Total:        total,
		}, w, http.StatusOK)
	})
}

// GetTransactionStats is the handler for transaction aggregates
func GetTransactionStats(service *Service) handlers.AppHandler {
	return handlers.AppHandler(func(w http.ResponseWriter, r *http.Request) *handlers.AppError {
		stats, err := service.GetTransactionStats(r.Context())
		if err != nil {
			return handlers.WrapError(err, "Error aggregating transactions", http.StatusInternalServerError)
		}

		return handlers.RenderContent(r.Context(), stats, w, http.StatusOK)
	})
}

// RefundTransaction is the handler for refunding a paid transaction
func RefundTransaction(service *Service) handlers.AppHandler {
	return handlers.AppHandler(func(w http.ResponseWriter, r *http.Request) *handlers.AppError {
		ctx := r.Context()
		sublogger := logging.Logger(ctx, "payments").With().
			Str("func", "RefundTransaction").
			Logger()

		var transactionID = new(inputs.ID)
		if err := inputs.DecodeAndValidateString(context.Background(), transactionID, chi.URLParam(r, "transactionID")); err != nil {
			return handlers.ValidationError(
				"Error validating request url parameter",
				map[string]interface{}{
					"transactionID": err.Error(),
				},
			)
		}

		transaction, err := service.Refund(ctx, *transactionID.UUID())
		if err != nil {
			switch {
			case errors.Is(err, model.ErrTransactionNotFound):
				return handlers.WrapError(err, "Transaction not found", http.StatusNotFound)
			case errors.Is(err, model.ErrInvalidTransition):
				return handlers.WrapError(err, "Transaction is not refundable in its current status", http.StatusBadRequest)
			case errors.Is(err, model.ErrGatewayUnavailable):
				sublogger.Warn().Err(err).Msg("gateway unavailable while refunding")
				return handlers.WrapError(err, "Payment gateway is unavailable", http.StatusServiceUnavailable)
			default:
				sublogger.Error().Err(err).Msg("error refunding the transaction")
				return handlers.WrapError(err, "Error refunding the transaction", http.StatusInternalServerError)
			}
		}

		return handlers.RenderContent(ctx, transaction, w, http.StatusOK)
	})
}

// HandleGatewayWebhook is the handler for gateway payment notifications
func HandleGatewayWebhook(service *Service) handlers.AppHandler {
	return func(w http.ResponseWriter, r *http.Request) *handlers.AppError {
		ctx := r.Context()
		sublogger := logging.Logger(ctx, "payments").With().
			Str("func", "HandleGatewayWebhook").
			Logger()

		b, err := requestutils.Read(ctx, r.Body)
		if err != nil {
			sublogger.Error().Err(err).Msg("failed to read request body")
			return handlers.WrapError(err, "error reading request body", http.StatusServiceUnavailable)
		}

		_, err = service.ProcessWebhook(ctx, b, r.Header.Get(gateway.SignatureHeader))
		if err != nil {
			switch {
			case errors.Is(err, model.ErrSignatureInvalid):
				sublogger.Warn().Msg("webhook signature verification failed")
				return handlers.WrapError(err, "error verifying webhook signature", http.StatusUnauthorized)
			case errors.Is(err, model.ErrMalformedPayload):
				return handlers.WrapError(err, "error parsing webhook payload", http.StatusBadRequest)
			case errors.Is(err, model.ErrTransactionNotFound):
				return handlers.WrapError(err, "no transaction for webhook order ref", http.StatusNotFound)
			case errors.Is(err, model.ErrConflictingOutcome):
				return handlers.WrapError(err, "webhook outcome conflicts with settled transaction", http.StatusConflict)
			case errors.Is(err, model.ErrInvalidTransition):
				return handlers.WrapError(err, "webhook outcome not applicable in current status", http.StatusBadRequest)
			default:
				sublogger.Error().Err(err).Msg("failed to process webhook")
				return handlers.WrapError(err, "error processing webhook", http.StatusInternalServerError)
			}
		}

		return handlers.RenderContent(ctx, map[string]string{"message": "webhook processed"}, w, http.StatusOK)
	}
}
