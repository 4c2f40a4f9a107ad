package cmd

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

// Version is set at build time with -ldflags "-X github.com/ekaya-inc/ekaya-ask/cmd.Version=...".
var Version = "dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the ekaya-ask version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "ekaya-ask %s (%s)\n", Version, runtime.Version())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
