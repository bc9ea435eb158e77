package cmd

import (
	"context"
	"os"
	"time"

	"github.com/go-chi/chi"
	chiware "github.com/go-chi/chi/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	rootcmd "github.com/portal-pay/portal-go/cmd"
	cmdutils "github.com/portal-pay/portal-go/libs/cmd"
	appctx "github.com/portal-pay/portal-go/libs/context"
	"github.com/portal-pay/portal-go/libs/handlers"
	"github.com/portal-pay/portal-go/libs/logging"
	"github.com/portal-pay/portal-go/libs/middleware"
	srv "github.com/portal-pay/portal-go/libs/service"
)

// ServeCmd is the parent command of every portal micro-service.
var ServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "entrypoint to serve a micro-service",
}

const (
	routerTimeout          = 10 * time.Second
	defaultRateLimitPerMin = 180
)

func init() {
	rootcmd.RootCmd.AddCommand(ServeCmd)

	pflags := ServeCmd.PersistentFlags()
	pflags.String("address", ":8080", "the default address to bind to")
	pflags.Bool("enable-job-workers", true, "enable job workers (defaults true)")

	cmdutils.Must(viper.BindPFlag("address", pflags.Lookup("address")))
	cmdutils.Must(viper.BindEnv("address", "ADDR"))
	cmdutils.Must(viper.BindPFlag("enable-job-workers", pflags.Lookup("enable-job-workers")))
	cmdutils.Must(viper.BindEnv("enable-job-workers", "ENABLE_JOB_WORKERS"))
}

// SetupRouter builds the shared middleware chain: request ids, bearer token
// capture, rate limiting in production, request logging and the health check.
func SetupRouter(ctx context.Context) *chi.Mux {
	logger, err := appctx.GetLogger(ctx)
	cmdutils.Must(err)

	r := chi.NewRouter()
	r.Use(
		chiware.RequestID,
		chiware.RealIP,
		chiware.Heartbeat("/"),
		chiware.Timeout(routerTimeout),
		middleware.BearerToken,
		middleware.RequestIDTransfer)

	if os.Getenv("ENV") == "production" {
		limit := defaultRateLimitPerMin
		if rl, ok := ctx.Value(appctx.RateLimitPerMinuteCTXKey).(int); ok {
			limit = rl
		}
		r.Use(middleware.RateLimiter(ctx, limit))
	}

	if logger != nil {
		// RequestLogger also recovers panics
		r.Use(
			hlog.NewHandler(*logger),
			hlog.UserAgentHandler("user_agent"),
			hlog.RequestIDHandler("req_id", "Request-Id"),
			middleware.RequestLogger(logger))

		announceStart(ctx, logger)
	}

	// services can publish a live status callback on the context
	serviceStatus, _ := ctx.Value(appctx.ServiceStatusCTXKey).(handlers.ServiceStatusFn)
	r.Get("/health-check", handlers.HealthCheckHandler(
		ctx.Value(appctx.VersionCTXKey).(string),
		ctx.Value(appctx.BuildTimeCTXKey).(string),
		ctx.Value(appctx.CommitCTXKey).(string), serviceStatus))

	return r
}

func announceStart(ctx context.Context, logger *zerolog.Logger) {
	logger.Info().
		Str("address", viper.GetString("address")).
		Str("environment", viper.GetString("environment")).
		Str("gateway_service", viper.GetString("gateway-service")).
		Str("version", ctx.Value(appctx.VersionCTXKey).(string)).
		Str("commit", ctx.Value(appctx.CommitCTXKey).(string)).
		Str("build_time", ctx.Value(appctx.BuildTimeCTXKey).(string)).
		Msg("server starting")
}

// SetupJobWorkers spins up the configured number of workers for each job
// unless disabled by the enable-job-workers flag.
func SetupJobWorkers(ctx context.Context, jobs []srv.Job) error {
	logger, err := appctx.GetLogger(ctx)
	if err != nil {
		ctx, logger = logging.SetupLogger(ctx)
	}

	enabled, err := ServeCmd.Flags().GetBool("enable-job-workers")
	if err != nil {
		return err
	}
	if !enabled {
		logger.Info().Msg("job workers disabled")
		return nil
	}

	for _, job := range jobs {
		logger.Debug().
			Dur("cadence", job.Cadence).
			Int("workers", job.Workers).
			Msg("starting job workers")
		for i := 0; i < job.Workers; i++ {
			go srv.JobWorker(ctx, job.Func, job.Cadence)
		}
	}
	return nil
}
