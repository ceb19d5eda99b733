package cli

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/sangkips/tillsync/internal/replication"
	"github.com/spf13/cobra"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Mode string
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the sync job once",
		Long: `Run the replication job once and print the per-entity summary.

An incremental run sends records changed since the stored cursor minus the
overlap window. A full run ignores the cursor and resends everything.

Exit codes:
  0 - Run completed and the cursor advanced
  1 - Run failed (authentication, transport or batch error)
  2 - Command error (bad flags, config or database)

Examples:
  syncctl run
  syncctl run --mode full --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, err := replication.ParseMode(opts.Mode)
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid mode", err)
			}
			return withJob(cmd, opts.RootOptions, func(ctx context.Context, job Job, out *OutputFormatter) error {
				summary, err := job.Run(ctx, mode)
				if err != nil {
					if summary == nil {
						return WrapExitError(ExitFailure, "sync run failed", err)
					}
					return out.Fail(summary, err, summaryText(summary))
				}
				return out.Print(summary, summaryText(summary))
			})
		},
	}

	cmd.Flags().StringVarP(&opts.Mode, "mode", "m", string(replication.ModeIncremental), "sync mode (incremental|full)")

	return cmd
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "status",
		Short:         "Show the job cursor",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withJob(cmd, rootOpts, func(ctx context.Context, job Job, out *OutputFormatter) error {
				status, err := job.Status(ctx)
				if err != nil {
					return WrapExitError(ExitCommandError, "read status", err)
				}
				return out.Print(status, func(w io.Writer) error {
					return printCursor(w, status)
				})
			})
		},
	}
}

func summaryText(s *replication.RunSummary) func(io.Writer) error {
	return func(w io.Writer) error {
		fmt.Fprintf(w, "run %s (%s)\n", s.RunID, s.Mode)
		if s.Since != nil {
			fmt.Fprintf(w, "since %s\n", s.Since.UTC().Format(time.RFC3339))
		}

		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ENTITY\tCREATED\tUPDATED\tSKIPPED\tFAILED")
		for _, e := range replication.EntityOrder {
			c := s.Counts[e]
			if c == nil {
				c = &replication.EntityCounts{}
			}
			fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\n", e, c.Created, c.Updated, c.Skipped, c.Failed)
		}
		if err := tw.Flush(); err != nil {
			return err
		}

		for _, f := range s.Failures {
			fmt.Fprintf(w, "failed %s %s: %s\n", f.Entity, f.NaturalKey, f.Reason)
		}
		if s.Error != "" {
			fmt.Fprintf(w, "error: %s\n", s.Error)
		}
		if s.CursorAdvanced && s.NextCursor != nil {
			fmt.Fprintf(w, "cursor advanced to %s\n", s.NextCursor.UTC().Format(time.RFC3339))
		} else {
			fmt.Fprintln(w, "cursor not advanced")
		}
		return nil
	}
}
