package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/operatornetwork/opnet/version"
)

// Version is the service version, re-exported for the serve command's
// health endpoint.
var Version = version.Version

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "print version and build information",
	Run: func(cmd *cobra.Command, args []string) {
		info := version.GetBuildInfo()
		fmt.Printf("opnet %s (%s, %s)\n", version.Version, info.GoVersion, info.MainVersion)
	},
}

func init() {
	RootCmd.AddCommand(versionCmd)
}
