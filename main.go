// Package main is the entry point for the opnet binary: the Operator
// Network API server, the reward reconciliation worker, and supporting
// commands, dispatched through the cli package's Cobra command tree.
package main

import (
	"os"

	"github.com/operatornetwork/opnet/cli"
	"github.com/operatornetwork/opnet/common"
)

func main() {
	if err := cli.RootCmd.Execute(); err != nil {
		common.Logger.WithError(err).Error("command failed")
		os.Exit(1)
	}
}
