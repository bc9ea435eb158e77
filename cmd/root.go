package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	cmdutils "github.com/portal-pay/portal-go/libs/cmd"
	appctx "github.com/portal-pay/portal-go/libs/context"
	"github.com/portal-pay/portal-go/libs/logging"
)

var (
	// RootCmd is the base command (what the binary is called)
	RootCmd = &cobra.Command{
		Use:   "portal-go",
		Short: "portal-go provides go based services and processes for Portal",
	}
	ctx = context.Background()
)

// Execute - the main entrypoint for all subcommands in portal-go
func Execute(version, commit, buildTime string) {
	// environment has to land on the context before the logger is set up
	var logger *zerolog.Logger
	ctx = context.WithValue(ctx, appctx.EnvironmentCTXKey, viper.Get("environment"))
	ctx = context.WithValue(ctx, appctx.DebugLoggingCTXKey, viper.GetBool("debug"))
	ctx, logger = logging.SetupLogger(ctx)

	ctx = context.WithValue(ctx, appctx.VersionCTXKey, version)
	ctx = context.WithValue(ctx, appctx.CommitCTXKey, commit)
	ctx = context.WithValue(ctx, appctx.BuildTimeCTXKey, buildTime)

	if err := RootCmd.ExecuteContext(ctx); err != nil {
		logger.Error().Err(err).Msg("./portal-go command encountered an error")
		os.Exit(1)
	}
}

// persistentString declares a string flag shared by every subcommand, bound to
// viper and the given environment variable.
func persistentString(key, defaultValue, env, description string) {
	RootCmd.PersistentFlags().String(key, defaultValue, description)
	bindPersistent(key, env)
}

func persistentBool(key string, defaultValue bool, env, description string) {
	RootCmd.PersistentFlags().Bool(key, defaultValue, description)
	bindPersistent(key, env)
}

func bindPersistent(key, env string) {
	cmdutils.Must(viper.BindPFlag(key, RootCmd.PersistentFlags().Lookup(key)))
	cmdutils.Must(viper.BindEnv(key, env))
}

func init() {
	persistentString("pprof-enabled", "", "PPROF_ENABLED", "pprof enablement")
	persistentString("environment", "local", "ENV", "the default environment")
	persistentBool("debug", false, "DEBUG", "turn on debug logging")
	persistentString("gateway-token", "", "GATEWAY_TOKEN", "the payment gateway access token for this service")
	persistentString("gateway-service", "", "GATEWAY_SERVICE", "the payment gateway service address")

	RootCmd.AddCommand(VersionCmd)
}

// VersionCmd reports the version information stamped into this binary
var VersionCmd = &cobra.Command{
	Use:   "version",
	Short: "get the version of this binary",
	Run: func(command *cobra.Command, args []string) {
		fmt.Printf("version: %s\ncommit: %s\nbuild time: %s\n",
			command.Context().Value(appctx.VersionCTXKey),
			command.Context().Value(appctx.CommitCTXKey),
			command.Context().Value(appctx.BuildTimeCTXKey),
		)
	},
}
