package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Harsh-BH/oplock/internal/domain"
)

func statusCmd(a *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status <operation-id>",
		Short: "Show the state of an operation lock",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDeps(a, cmd, func(d *Deps, out io.Writer) error {
				view, err := d.Controller.GetStatus(cmd.Context(), args[0])
				if err != nil {
					return fmt.Errorf("status %s: %w", args[0], err)
				}
				if asJSON {
					enc := json.NewEncoder(out)
					enc.SetIndent("", "  ")
					return enc.Encode(view)
				}
				printStatus(out, view)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the status as JSON")
	return cmd
}

func printStatus(out io.Writer, v *domain.StatusView) {
	fmt.Fprintf(out, "Operation:  %s\n", v.ID)
	if v.OperationType != "" {
		fmt.Fprintf(out, "Type:       %s\n", v.OperationType)
	}
	fmt.Fprintf(out, "Status:     %s\n", colorStatus(v.Status))
	fmt.Fprintf(out, "Created:    %s\n", v.CreatedAt.Format(time.RFC3339))
	if v.CompletedAt != nil {
		fmt.Fprintf(out, "Completed:  %s\n", v.CompletedAt.Format(time.RFC3339))
	}
	fmt.Fprintf(out, "Expires:    %s\n", v.ExpiresAt.Format(time.RFC3339))
	if len(v.Result) > 0 {
		fmt.Fprintf(out, "Result:     %s\n", v.Result)
	}
	if v.ErrorMessage != "" {
		fmt.Fprintf(out, "Error:      %s\n", v.ErrorMessage)
	}
}

func colorStatus(s domain.LockStatus) string {
	switch s {
	case domain.StatusCompleted:
		return color.New(color.FgGreen).Sprint(s)
	case domain.StatusFailed:
		return color.New(color.FgRed).Sprint(s)
	case domain.StatusProcessing:
		return color.New(color.FgYellow).Sprint(s)
	}
	return string(s)
}
