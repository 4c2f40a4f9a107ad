// Package cmd is the ekaya-ask command line. "serve" runs the HTTP and MCP
// server; "ask", "validate" and "migrate" are one-shot commands that share
// its configuration.
package cmd

import (
	"os"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/ekaya-inc/ekaya-ask/pkg/config"
)

var (
	configPath string
	logLevel   string
)

// rootCmd is the base command; it only prints help.
var rootCmd = &cobra.Command{
	Use:   "ekaya-ask",
	Short: "Answer natural-language questions from relational databases",
	Long: `ekaya-ask turns a natural-language question into SQL, checks the statement
against the caller's role, runs it on the chosen target database and streams
back a plain-language answer.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

// Execute runs the CLI and exits non-zero on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		pterm.Error.Println(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath, "path to the YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override the configured log level (debug, info, warn, error)")
}
