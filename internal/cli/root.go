package cli

import (
	"context"
	"errors"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Harsh-BH/oplock/internal/config"
	"github.com/Harsh-BH/oplock/internal/executor"
	"github.com/Harsh-BH/oplock/internal/usecase"
	"github.com/Harsh-BH/oplock/internal/wire"
)

// Deps is what a command needs from the backing services.
type Deps struct {
	Controller *usecase.Controller
	Runner     *executor.CommandRunner
	Close      func() error
}

// Opener connects to the backing services. envFile is the --env-file flag value.
type Opener func(ctx context.Context, envFile string) (*Deps, error)

type app struct {
	open    Opener
	envFile string
}

func (a *app) deps(cmd *cobra.Command) (*Deps, error) {
	return a.open(cmd.Context(), a.envFile)
}

// NewRootCmd builds the oplockctl command tree.
func NewRootCmd(open Opener) *cobra.Command {
	a := &app{open: open}

	root := &cobra.Command{
		Use:   "oplockctl",
		Short: "Inspect and repair idempotent operation locks",
		Long: `oplockctl talks directly to the configured lock store.
It can inspect an operation, force-complete or delete a stuck one, sweep
expired locks, and run a shell command at most once per operation id.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&a.envFile, "env-file", ".env", "optional dotenv file with OPLOCK_* settings")

	root.AddCommand(statusCmd(a))
	root.AddCommand(forceCompleteCmd(a))
	root.AddCommand(deleteCmd(a))
	root.AddCommand(cleanupCmd(a))
	root.AddCommand(runCmd(a))

	return root
}

// ConfigOpener loads configuration and connects the configured store. Events
// are published when enabled, the same as in oplockd.
func ConfigOpener(logger *zap.Logger) Opener {
	return func(ctx context.Context, envFile string) (*Deps, error) {
		cfg, err := config.LoadFile(envFile)
		if err != nil {
			return nil, err
		}
		backend, err := wire.Open(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		return &Deps{
			Controller: backend.Controller,
			Runner:     executor.NewCommandRunner(cfg.Command.Timeout, cfg.Command.MaxOutput, logger),
			Close:      backend.Close,
		}, nil
	}
}

// withDeps opens the services, runs fn and closes them again.
func withDeps(a *app, cmd *cobra.Command, fn func(d *Deps, out io.Writer) error) (err error) {
	d, err := a.deps(cmd)
	if err != nil {
		return err
	}
	if d.Close != nil {
		defer func() {
			err = errors.Join(err, d.Close())
		}()
	}
	return fn(d, cmd.OutOrStdout())
}
