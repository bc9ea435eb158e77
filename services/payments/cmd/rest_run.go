package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	// pprof imports
	_ "net/http/pprof"

	sentry "github.com/getsentry/sentry-go"
	"github.com/go-chi/chi"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	appctx "github.com/portal-pay/portal-go/libs/context"
	"github.com/portal-pay/portal-go/libs/handlers"
	"github.com/portal-pay/portal-go/libs/logging"
	"github.com/portal-pay/portal-go/libs/middleware"
	srvcmd "github.com/portal-pay/portal-go/services/cmd"
	"github.com/portal-pay/portal-go/services/payments"
)

// RestRun - Main entrypoint of the REST subcommand
// This function takes a cobra command and starts up the
// payments rest microservice.
func RestRun(command *cobra.Command, args []string) {
	ctx := command.Context()
	logger, err := appctx.GetLogger(ctx)
	if err != nil {
		ctx, logger = logging.SetupLogger(ctx)
	}

	sentryDsn := os.Getenv("SENTRY_DSN")
	if sentryDsn != "" {
		buildTime, _ := ctx.Value(appctx.BuildTimeCTXKey).(string)
		commit, _ := ctx.Value(appctx.CommitCTXKey).(string)
		err := sentry.Init(sentry.ClientOptions{
			Dsn:     sentryDsn,
			Release: fmt.Sprintf("portal-go@%s-%s", commit, buildTime),
		})
		if err != nil {
			logger.Panic().Err(err).Msg("unable to setup reporting!")
		}
	}
	// make sure exceptions go to sentry
	defer sentry.Flush(time.Second * 2)

	// add profiling flag to enable profiling routes
	if viper.GetString("pprof-enabled") != "" {
		// pprof attaches routes to default serve mux
		// host:6061/debug/pprof/
		go func() {
			logger.Error().Err(http.ListenAndServe(":6061", http.DefaultServeMux))
		}()
	}

	// add our command line params to context
	ctx = context.WithValue(ctx, appctx.GatewayServerCTXKey, viper.Get("gateway-service"))
	ctx = context.WithValue(ctx, appctx.GatewayAccessTokenCTXKey, viper.Get("gateway-token"))
	ctx = context.WithValue(ctx, appctx.GatewayWebhookSecretCTXKey, viper.GetString("gateway-webhook-secret"))
	ctx = context.WithValue(ctx, appctx.KafkaBrokersCTXKey, viper.GetString("kafka-brokers"))

	db, err := payments.NewPostgres(viper.GetString("datastore"), true, "payments_db")
	if err != nil {
		sentry.CaptureException(err)
		logger.Panic().Err(err).Msg("Must be able to init postgres connection to start")
	}

	// setup the service now
	s, err := payments.InitService(ctx, db)
	if err != nil {
		sentry.CaptureException(err)
		logger.Panic().Err(err).Msg("Payments service initialization failed")
	}

	// surface live transaction counts on the health check
	ctx = context.WithValue(ctx, appctx.ServiceStatusCTXKey, handlers.ServiceStatusFn(s.StatusSummary))

	// do rest endpoints
	r := srvcmd.SetupRouter(ctx)
	r.Mount("/v1/payments", payments.Router(s))
	// for gateway webhook integrations
	r.Mount("/v1/webhooks", payments.WebhookRouter(s))

	// start the transaction event drain and any other background jobs
	if err := srvcmd.SetupJobWorkers(ctx, s.Jobs()); err != nil {
		logger.Error().Err(err).Msg("error initializing job workers")
	}

	go func() {
		err := http.ListenAndServe(":9090", middleware.Metrics())
		if err != nil {
			sentry.CaptureException(err)
			logger.Panic().Err(err).Msg("metrics HTTP server start failed!")
		}
	}()

	// setup server, and run
	srv := http.Server{
		Addr:         viper.GetString("address"),
		Handler:      chi.ServerBaseContext(ctx, r),
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 20 * time.Second,
	}

	if err = srv.ListenAndServe(); err != nil {
		sentry.CaptureException(err)
		logger.Fatal().Err(err).Msg("HTTP server start failed!")
	}
}
