package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Harsh-BH/oplock/internal/domain"
	"github.com/Harsh-BH/oplock/internal/executor"
)

func runCmd(a *app) *cobra.Command {
	var (
		opID   string
		opType string
		userID string
		ttl    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "run --id <operation-id> [flags] -- <command> [args...]",
		Short: "Run a command at most once per operation id",
		Long: `Runs the command under an operation lock. The first run records the
command's stdout, stderr and exit code; later runs with the same id print the
recorded stdout without running anything. A non-zero exit or timeout is
recorded as a failure and later runs report it instead of retrying.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, argv []string) error {
			params, err := json.Marshal(argv)
			if err != nil {
				return err
			}
			req := domain.ExecuteRequest{
				OperationID:   opID,
				OperationType: opType,
				UserID:        userID,
				Params:        params,
				TTL:           ttl,
			}

			return withDeps(a, cmd, func(d *Deps, out io.Writer) error {
				errOut := cmd.ErrOrStderr()

				var fresh *domain.CommandResult
				outcome, err := d.Controller.Execute(cmd.Context(), req, func(ctx context.Context) (json.RawMessage, error) {
					res, err := d.Runner.Run(ctx, argv)
					if err != nil {
						return nil, err
					}
					fresh = res
					if err := executor.CheckResult(res); err != nil {
						return nil, err
					}
					return json.Marshal(res)
				})

				if fresh != nil {
					// Show what this run produced, even when it failed.
					fmt.Fprint(out, fresh.Stdout)
					fmt.Fprint(errOut, fresh.Stderr)
				}
				if err != nil {
					return fmt.Errorf("run %s: %w", opID, err)
				}

				if outcome.Replayed {
					var recorded domain.CommandResult
					if err := json.Unmarshal(outcome.Result, &recorded); err != nil {
						return fmt.Errorf("run %s: decode recorded result: %w", opID, err)
					}
					fmt.Fprintln(errOut, color.New(color.FgCyan).Sprintf("operation %s already completed, replaying recorded output", opID))
					fmt.Fprint(out, recorded.Stdout)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&opID, "id", "", "operation id (required)")
	cmd.Flags().StringVar(&opType, "type", "command", "operation type label")
	cmd.Flags().StringVar(&userID, "user", "", "user id recorded with the lock")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "lock lifetime (default OPLOCK_DEFAULT_TTL)")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}
