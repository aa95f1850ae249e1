// Package cli provides the command-line interface for the Operator Network
// core service: the API server, the reward reconciliation worker, and a
// seeding helper for demo environments.
package cli

import (
	"github.com/spf13/cobra"
)

// cfgFile holds the path to the configuration file passed via --config.
// When empty, the config package searches its default locations.
var cfgFile string

// RootCmd is the base command for the opnet binary.
var RootCmd = &cobra.Command{
	Use:   "opnet",
	Short: "Operator Network core service",
	Long: `Operator Network Core Service

The backend for the Operator Network task marketplace:
- Guarded operation lifecycle transitions (claim, start, submit, verify)
- CouchDB persistence with live change subscriptions
- XP and rank reward settlement with a Redis reconciliation queue
- HTTP API with a server-sent-events operation stream

Configuration can be provided via a YAML config file or environment
variables with the OPNET_ prefix.`,
}

func init() {
	RootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default searches ./config.yaml, ~/.opnet/config.yaml)")

	RootCmd.AddCommand(serveCmd)
	RootCmd.AddCommand(reconcilerCmd)
	RootCmd.AddCommand(seedCmd)
}
