// Package cli implements syncctl, the operator CLI for the replication job.
package cli

import (
	"context"
	"fmt"
	"slices"

	"github.com/sangkips/tillsync/internal/bootstrap"
	"github.com/sangkips/tillsync/internal/config"
	"github.com/sangkips/tillsync/internal/domain/entity"
	"github.com/sangkips/tillsync/internal/logger"
	"github.com/sangkips/tillsync/internal/replication"
	"github.com/spf13/cobra"
)

// Job is the slice of replication.SyncJob the commands drive.
type Job interface {
	Name() string
	Run(ctx context.Context, mode replication.Mode) (*replication.RunSummary, error)
	Status(ctx context.Context) (*replication.JobStatus, error)
	ResetCursor(ctx context.Context) error
	Failures(ctx context.Context, limit int) ([]entity.SyncFailure, error)
}

// JobFactory opens the job described by the root options. The returned
// func releases whatever the factory opened.
type JobFactory func(ctx context.Context, opts *RootOptions) (Job, func(), error)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	Format     string // "json" | "text"

	newJob JobFactory
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command wired to the configured database.
func NewRootCommand() *cobra.Command {
	return NewRootCommandWithFactory(openJob)
}

// NewRootCommandWithFactory creates the root command with a custom job source.
func NewRootCommandWithFactory(factory JobFactory) *cobra.Command {
	opts := &RootOptions{newJob: factory}

	cmd := &cobra.Command{
		Use:   "syncctl",
		Short: "Operate the till-to-mirror replication job",
		Long:  "Run, inspect and reset the job that replicates products, receipts and payments to the analytics mirror.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", ".env", "path to the env config file")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewStatusCommand(opts))
	cmd.AddCommand(NewCursorCommand(opts))
	cmd.AddCommand(NewFailuresCommand(opts))

	return cmd
}

func openJob(ctx context.Context, opts *RootOptions) (Job, func(), error) {
	cfg := config.Load(opts.ConfigPath)
	log := logger.New(cfg.Log.Level, cfg.Log.Format)

	db, err := bootstrap.OpenDatabase(cfg, log)
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "open database", err)
	}
	job, cleanup, err := bootstrap.NewSyncJob(ctx, cfg, db, nil, log)
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "build sync job", err)
	}
	return job, cleanup, nil
}

func withJob(cmd *cobra.Command, opts *RootOptions, fn func(ctx context.Context, job Job, out *OutputFormatter) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	job, cleanup, err := opts.newJob(ctx, opts)
	if err != nil {
		return err
	}
	defer cleanup()

	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	return fn(ctx, job, out)
}
