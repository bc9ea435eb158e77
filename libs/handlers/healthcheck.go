package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/portal-pay/portal-go/libs/logging"
)

// HealthCheckResponse reports build provenance plus a per-service status map.
type HealthCheckResponse struct {
	BuildTime string `json:"buildTime"`
	Commit    string `json:"commit"`
	Version   string `json:"version"`
	// accumulated map of service health keyed on service name
	ServiceStatus map[string]interface{} `json:"serviceStatus,omitempty"`
}

// RenderJSON writes the health check response to w.
func (hcr HealthCheckResponse) RenderJSON(ctx context.Context, w http.ResponseWriter) error {
	body, err := json.Marshal(hcr)
	if err != nil {
		return fmt.Errorf("failed to marshal response in render json: %w", err)
	}
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		logging.Logger(ctx, "handlers.HealthCheckResponse.RenderJSON").
			Error().Err(err).Msg("failed to write response to writer")
	}
	return nil
}

// ServiceStatusFn resolves a live status map for the health check response.
type ServiceStatusFn func(ctx context.Context) map[string]interface{}

// HealthCheckHandler generates the health check http.HandlerFunc. The optional
// serviceStatus callback is resolved per request so counters stay live.
func HealthCheckHandler(version, buildTime, commit string, serviceStatus ServiceStatusFn) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		hcr := HealthCheckResponse{
			BuildTime: buildTime,
			Commit:    commit,
			Version:   version,
		}
		if serviceStatus != nil {
			hcr.ServiceStatus = serviceStatus(ctx)
		}
		if err := hcr.RenderJSON(ctx, w); err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			if _, err := w.Write([]byte("unhealthy")); err != nil {
				logging.Logger(ctx, "handlers.HealthCheckHandler").
					Error().Err(err).Msg("failed to write response to writer")
			}
		}
	}
}
