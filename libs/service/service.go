// Package service defines the background job contract shared by the portal
// services.
package service

import (
	"context"
	"time"

	sentry "github.com/getsentry/sentry-go"

	"github.com/portal-pay/portal-go/libs/clients"
	"github.com/portal-pay/portal-go/libs/logging"
)

// JobFunc runs one pass of a background job, reporting whether it attempted
// any work.
type JobFunc func(context.Context) (bool, error)

// Job pairs a job function with its worker count and cadence.
type Job struct {
	Func    JobFunc
	Workers int
	Cadence time.Duration
}

// JobService is implemented by services exposing background jobs.
type JobService interface {
	Jobs() []Job
}

// JobWorker runs job every duration until ctx is done. Failures are logged
// and reported, never fatal.
func JobWorker(ctx context.Context, job JobFunc, duration time.Duration) {
	logger := logging.Logger(ctx, "service.JobWorker")
	for {
		if _, err := job(ctx); err != nil {
			log := logger.Error().Err(err)
			if state, ok := clients.UnwrapHTTPState(err); ok {
				log = log.Int("status", state.Status).
					Str("path", state.Path).
					Interface("data", state.Body)
			}
			log.Msg("error encountered in job run")
			sentry.CaptureException(err)
		}
		// wait out the cadence whether or not work was attempted
		select {
		case <-ctx.Done():
			return
		case <-time.After(duration):
		}
	}
}
