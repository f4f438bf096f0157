package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/lakemill/lakemill/internal/pipeline"
)

// NewIngestCommand creates the ingest command.
func NewIngestCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Load the source files into the raw layer only",
		Long: `Load the seven source files into the all-text raw layer without
building the base or star layers. Useful for checking that the files
parse before running the full pipeline.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runIngest(cmd)
		},
	}
	return cmd
}

func runIngest(cmd *cobra.Command) error {
	p, err := newPipeline(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = p.Close() }()

	startTime := time.Now()

	run, runErr := p.RunSelected(cmd.Context(), p.Tables(pipeline.LayerRaw), false)
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
