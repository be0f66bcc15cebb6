package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var errInvalidResult = errors.New("--result must be valid JSON")

func forceCompleteCmd(a *app) *cobra.Command {
	var result string

	cmd := &cobra.Command{
		Use:   "force-complete <operation-id>",
		Short: "Mark an operation completed with the given result",
		Long: `Overwrites the lock with status completed and the given JSON result,
whatever its current state. Later callers with the same id replay this result.
If the original owner is still running it will overwrite the result when it
finishes.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !json.Valid([]byte(result)) {
				return errInvalidResult
			}
			return withDeps(a, cmd, func(d *Deps, out io.Writer) error {
				if err := d.Controller.ForceComplete(cmd.Context(), args[0], json.RawMessage(result)); err != nil {
					return fmt.Errorf("force-complete %s: %w", args[0], err)
				}
				fmt.Fprintf(out, "%s operation %s force-completed\n", color.New(color.FgGreen).Sprint("OK"), args[0])
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&result, "result", "null", "JSON result to store")
	return cmd
}

func deleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <operation-id>",
		Short: "Delete an operation lock so the id can run again",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDeps(a, cmd, func(d *Deps, out io.Writer) error {
				if err := d.Controller.DeleteOperation(cmd.Context(), args[0]); err != nil {
					return fmt.Errorf("delete %s: %w", args[0], err)
				}
				fmt.Fprintf(out, "%s operation %s deleted\n", color.New(color.FgYellow).Sprint("OK"), args[0])
				return nil
			})
		},
	}
}

func cleanupCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Remove every expired operation lock",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDeps(a, cmd, func(d *Deps, out io.Writer) error {
				removed, err := d.Controller.CleanupExpired(cmd.Context())
				if err != nil {
					return fmt.Errorf("cleanup: %w", err)
				}
				fmt.Fprintf(out, "Removed %d expired operation locks\n", removed)
				return nil
			})
		},
	}
}
