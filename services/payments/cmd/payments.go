package cmd

import (
	// pprof imports
	_ "net/http/pprof"

	cmdutils "github.com/portal-pay/portal-go/libs/cmd"
	srvcmd "github.com/portal-pay/portal-go/services/cmd"
	"github.com/spf13/cobra"
)

func init() {
	// declare the flags on the parent and the rest leaf alike
	flagBuilder := cmdutils.NewFlagBuilder(paymentsCmd).AddCommand(restCmd)

	flagBuilder.Flag().String("datastore", "",
		"the datastore for the payments system").
		Bind("datastore").
		Env("DATABASE_URL")

	flagBuilder.Flag().String("gateway-webhook-secret", "",
		"the shared secret used to verify gateway webhook signatures").
		Bind("gateway-webhook-secret").
		Env("GATEWAY_WEBHOOK_SECRET")

	flagBuilder.Flag().String("kafka-brokers", "",
		"kafka broker list").
		Bind("kafka-brokers").
		Env("KAFKA_BROKERS")

	paymentsCmd.AddCommand(restCmd)

	// payments hangs off the shared serve entrypoint
	srvcmd.ServeCmd.AddCommand(paymentsCmd)
}

var (
	paymentsCmd = &cobra.Command{
		Use:   "payments",
		Short: "the payments micro-service",
	}

	restCmd = &cobra.Command{
		Use:   "rest",
		Short: "runs the payments REST api",
		Run:   RestRun,
	}
)
