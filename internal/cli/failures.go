package cli

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

// FailuresOptions holds flags for the failures list command.
type FailuresOptions struct {
	*RootOptions
	Limit int
}

// NewFailuresCommand creates the failures command group.
func NewFailuresCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &FailuresOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "failures",
		Short: "Inspect records the mirror rejected",
	}

	list := &cobra.Command{
		Use:           "list",
		Short:         "List the most recent record failures",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.Limit < 1 || opts.Limit > 500 {
				return NewExitError(ExitCommandError, "limit must be between 1 and 500")
			}
			return withJob(cmd, opts.RootOptions, func(ctx context.Context, job Job, out *OutputFormatter) error {
				failures, err := job.Failures(ctx, opts.Limit)
				if err != nil {
					return WrapExitError(ExitCommandError, "list failures", err)
				}
				return out.Print(failures, func(w io.Writer) error {
					tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
					fmt.Fprintln(tw, "WHEN\tRUN\tENTITY\tKEY\tREASON")
					for _, f := range failures {
						fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
							f.CreatedAt.UTC().Format(time.RFC3339), f.RunID, f.EntityType, f.NaturalKey, f.Reason)
					}
					return tw.Flush()
				})
			})
		},
	}
	list.Flags().IntVarP(&opts.Limit, "limit", "n", 50, "maximum failures to list")

	cmd.AddCommand(list)
	return cmd
}
