package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/lakemill/lakemill/internal/state"
)

// runner is the slice of the pipeline the run command drives.
type runner interface {
	Run(ctx context.Context) (*state.Run, error)
	RunSelected(ctx context.Context, tables []string, downstream bool) (*state.Run, error)
}

// RunOptions holds options for the run command.
type RunOptions struct {
	Select     string
	Downstream bool
	Watch      bool
}

// NewRunCommand creates the run command.
func NewRunCommand() *cobra.Command {
	opts := &RunOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Build all tables or a selection",
		Long: `Build the warehouse tables in dependency order.

By default every table in all three layers is rebuilt. Use --select to
rebuild specific tables (fully qualified, e.g. base.student), and
--downstream to also rebuild the tables that depend on them. A failed
table never stops its siblings; its dependents are marked skipped.`,
		Example: `  # Rebuild everything
  lakemill run

  # Rebuild one base table and the star tables built from it
  lakemill run --select base.student_assessment --downstream

  # Keep rebuilding whenever a source file changes
  lakemill run --watch`,
		Aliases: []string{"build"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRun(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Select, "select", "s", "", "Comma-separated list of tables to build")
	cmd.Flags().BoolVar(&opts.Downstream, "downstream", false, "Include downstream dependents when using --select")
	cmd.Flags().BoolVarP(&opts.Watch, "watch", "w", false, "Rerun on source file changes")

	return cmd
}

func runRun(cmd *cobra.Command, opts *RunOptions) error {
	p, err := newPipeline(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = p.Close() }()

	ctx := cmd.Context()

	if opts.Watch {
		if _, err := p.Run(ctx); err != nil {
			// Logged by the pipeline; the watch keeps going.
			fmt.Fprintf(cmd.ErrOrStderr(), "initial run failed: %v\n", err)
		}
		return p.WatchSources(ctx)
	}

	startTime := time.Now()

	run, runErr := run(cmd, opts, p)
	if run != nil {
		tableRuns, err := p.Store().GetTableRunsForRun(run.ID)
		if err != nil {
			return err
		}
		renderManifest(cmd.OutOrStdout(), run, tableRuns)
		fmt.Fprintf(cmd.OutOrStdout(), "Completed in %s\n", time.Since(startTime).Round(time.Millisecond))
	}

	return runErr
}

func run(cmd *cobra.Command, opts *RunOptions, p runner) (*state.Run, error) {
	ctx := cmd.Context()

	if opts.Select != "" {
		selected := strings.Split(opts.Select, ",")
		for i := range selected {
			selected[i] = strings.TrimSpace(selected[i])
		}
		return p.RunSelected(ctx, selected, opts.Downstream)
	}
	return p.Run(ctx)
}
