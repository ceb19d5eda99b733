package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/sangkips/tillsync/internal/replication"
	"github.com/spf13/cobra"
)

// NewCursorCommand creates the cursor command group.
func NewCursorCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cursor",
		Short: "Inspect or reset the sync cursor",
	}

	cmd.AddCommand(&cobra.Command{
		Use:           "show",
		Short:         "Print the stored cursor",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withJob(cmd, rootOpts, func(ctx context.Context, job Job, out *OutputFormatter) error {
				status, err := job.Status(ctx)
				if err != nil {
					return WrapExitError(ExitCommandError, "read cursor", err)
				}
				return out.Print(status.Cursor, func(w io.Writer) error {
					return printCursor(w, status)
				})
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:           "reset",
		Short:         "Delete the stored cursor so the next run resends everything",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withJob(cmd, rootOpts, func(ctx context.Context, job Job, out *OutputFormatter) error {
				if err := job.ResetCursor(ctx); err != nil {
					return WrapExitError(ExitCommandError, "reset cursor", err)
				}
				return out.Print(map[string]string{"job": job.Name()}, func(w io.Writer) error {
					_, err := fmt.Fprintf(w, "cursor for %s reset\n", job.Name())
					return err
				})
			})
		},
	})

	return cmd
}

func printCursor(w io.Writer, status *replication.JobStatus) error {
	if status.Cursor == nil {
		_, err := fmt.Fprintf(w, "%s: no cursor, next run is a full sync\n", status.Job)
		return err
	}
	_, err := fmt.Fprintf(w, "%s: last synced %s (run %s)\n",
		status.Job, status.Cursor.LastSyncedAt.UTC().Format(time.RFC3339), status.Cursor.LastRunID)
	return err
}
