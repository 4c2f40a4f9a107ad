package cmd

import (
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/ekaya-inc/ekaya-ask/pkg/audit"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or upgrade the audit store",
	Long: `migrate applies pending schema migrations to the SQLite audit store named
by audit.store_path. serve also migrates on startup; this command lets the
store be prepared ahead of time.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig(true)
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		if cfg.Audit.Disabled {
			pterm.Warning.Println("The audit store is disabled; nothing to migrate.")
			return nil
		}
		if err := audit.RunMigrations(cfg.Audit.StorePath, logger); err != nil {
			return err
		}
		pterm.Success.Printfln("Audit store at %s is up to date", cfg.Audit.StorePath)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
