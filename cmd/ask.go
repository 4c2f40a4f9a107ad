package cmd

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/ekaya-inc/ekaya-ask/pkg/models"
	"github.com/ekaya-inc/ekaya-ask/pkg/services"
)

var (
	askTarget string
	askRole   string
	askRows   int
)

// cliUser identifies CLI requests in the audit trail.
const cliUser = "cli"

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Answer one question from the terminal",
	Long: `ask runs a question through the full pipeline with the given role and
target, prints the generated SQL and result rows, then streams the answer.

A statement the role may not run is reported and nothing is executed.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		question := strings.TrimSpace(strings.Join(args, " "))
		if question == "" {
			return errors.New("question is empty")
		}

		cfg, logger, err := loadConfig(true)
		if err != nil {
			return err
		}
		if askTarget == "" {
			askTarget = cfg.Registry.DefaultTarget
		}
		if askTarget == "" {
			return errors.New("no target: pass --target or set registry.default_target")
		}
		if askRole == "" {
			askRole = cfg.Registry.DefaultRole
		}
		if askRole == "" {
			return errors.New("no role: pass --role or set registry.default_role")
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		role, err := a.roles.Get(askRole)
		if err != nil {
			return err
		}

		spinner, _ := pterm.DefaultSpinner.Start("Generating and running SQL...")
		sub, err := a.pipeline.Submit(ctx, models.UserQuery{
			ID:       uuid.New(),
			Question: question,
			Role:     role,
			TargetDB: askTarget,
			UserID:   cliUser,
		})
		if spinner != nil {
			_ = spinner.Stop()
		}
		if err != nil {
			return err
		}

		pterm.DefaultBox.
			WithTitle(pterm.NewStyle(pterm.FgCyan, pterm.Bold).Sprint(string(sub.Validation.Kind))).
			WithPadding(1).
			Println(sub.GeneratedSQL.SQL)

		if !sub.Validation.Valid {
			pterm.Error.Printfln("Rejected (%s): %s", sub.Validation.Reason, sub.Validation.Detail)
			return fmt.Errorf("statement rejected for role %q", role.Name)
		}
		if sub.Execution == nil {
			return nil
		}
		if sub.Execution.IsFailed() {
			pterm.Error.Printfln("Execution failed: %s", sub.Execution.Message)
			return errors.New("statement failed")
		}

		if len(sub.Execution.Columns) > 0 {
			fmt.Print(services.RenderTable(*sub.Execution, askRows))
			fmt.Println()
		}
		return streamAnswer(sub.Answer)
	},
}

func init() {
	askCmd.Flags().StringVarP(&askTarget, "target", "t", "", "target database id (default registry.default_target)")
	askCmd.Flags().StringVarP(&askRole, "role", "r", "", "role to run as (default registry.default_role)")
	askCmd.Flags().IntVar(&askRows, "rows", 20, "result rows to print before the answer")
	rootCmd.AddCommand(askCmd)
}

// streamAnswer prints answer tokens as they arrive.
func streamAnswer(answer *services.AnswerStream) error {
	if answer == nil {
		return nil
	}
	for tok := range answer.Tokens() {
		fmt.Print(tok)
	}
	fmt.Println()

	if err := answer.Err(); err != nil {
		return fmt.Errorf("answer interrupted: %w", err)
	}
	if answer.Answer().Degraded {
		pterm.Warning.Println("The language model was unavailable; showing the raw result instead.")
	}
	return nil
}
