package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lakemill/lakemill/internal/cli/config"
)

// NewStatusCommand creates the status command.
func NewStatusCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the manifest of the latest run",
		Long: `Show the latest run for the current environment and its per-table
manifest: status, row count, and rejected count for every table.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd)
		},
	}
	return cmd
}

func runStatus(cmd *cobra.Command) error {
	cfg := config.FromContext(cmd.Context())

	p, err := newPipeline(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = p.Close() }()

	run, err := p.Store().GetLatestRun(cfg.Environment)
	if err != nil {
		return err
	}
	if run == nil {
		fmt.Fprintf(cmd.OutOrStdout(), "No runs yet for environment %q\n", cfg.Environment)
		return nil
	}

	tableRuns, err := p.Store().GetTableRunsForRun(run.ID)
	if err != nil {
		return err
	}

	renderManifest(cmd.OutOrStdout(), run, tableRuns)
	return nil
}
