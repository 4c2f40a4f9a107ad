package cmd

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/ekaya-inc/ekaya-ask/pkg/registry"
	"github.com/ekaya-inc/ekaya-ask/pkg/schema"
	"github.com/ekaya-inc/ekaya-ask/pkg/services"
)

var (
	validateRole   string
	validateTarget string
)

var validateCmd = &cobra.Command{
	Use:   "validate [sql]",
	Short: "Check a SQL statement against a role without running it",
	Long: `validate applies the same gate the pipeline uses before execution and
prints the statement kind and, for a rejection, the reason. The target's
SQL dialect decides how quotes and comments are read; with no target the
statement must pass under every supported dialect.

With no argument or "-", the statement is read from standard input. The
command exits non-zero when the statement is rejected.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		statement, err := readStatement(cmd.InOrStdin(), args)
		if err != nil {
			return err
		}

		cfg, logger, err := loadConfig(true)
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		if validateRole == "" {
			validateRole = cfg.Registry.DefaultRole
		}
		if validateRole == "" {
			return errors.New("no role: pass --role or set registry.default_role")
		}

		roles, err := registry.LoadRoles(cfg.Registry.RolesFile, logger)
		if err != nil {
			return fmt.Errorf("failed to load roles: %w", err)
		}
		role, err := roles.Get(validateRole)
		if err != nil {
			return err
		}

		if validateTarget == "" {
			validateTarget = cfg.Registry.DefaultTarget
		}
		var targets schema.TargetResolver
		if validateTarget != "" {
			reg, err := registry.LoadTargets(cfg.Registry.TargetsFile)
			if err != nil {
				return fmt.Errorf("failed to load targets: %w", err)
			}
			if _, err := reg.Get(validateTarget); err != nil {
				return err
			}
			targets = reg
		}

		result := services.NewSQLValidator(targets, logger).Validate(statement, role, validateTarget)
		if result.Valid {
			pterm.Success.Printfln("%s statement accepted for role %q", result.Kind, role.Name)
			return nil
		}
		pterm.Error.Printfln("%s statement rejected (%s): %s", result.Kind, result.Reason, result.Detail)
		return fmt.Errorf("statement rejected for role %q", role.Name)
	},
}

func init() {
	validateCmd.Flags().StringVarP(&validateRole, "role", "r", "", "role to check against (default registry.default_role)")
	validateCmd.Flags().StringVarP(&validateTarget, "target", "t", "", "target whose SQL dialect applies (default registry.default_target)")
	rootCmd.AddCommand(validateCmd)
}

func readStatement(stdin io.Reader, args []string) (string, error) {
	if len(args) == 1 && args[0] != "-" {
		return args[0], nil
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("failed to read statement: %w", err)
	}
	statement := strings.TrimSpace(string(data))
	if statement == "" {
		return "", errors.New("no statement given")
	}
	return statement, nil
}
