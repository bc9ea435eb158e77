// main - main entry-point to portal-go commands through cobra
// individual commands are outlined in ./cmd/
package main

import (
	"github.com/portal-pay/portal-go/cmd"
	"github.com/portal-pay/portal-go/libs/logging"

	// pull in payments service
	_ "github.com/portal-pay/portal-go/services/payments/cmd"
)

var (
	// variables will be overwritten at build time
	version   string
	commit    string
	buildTime string
)

func main() {
	defer func() {
		if logging.Writer != nil {
			logging.Writer.Close()
		}
	}()
	cmd.Execute(version, commit, buildTime)
}
