package commands

import (
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/lakemill/lakemill/internal/cli/config"
	"github.com/lakemill/lakemill/internal/source"
)

// NewSourcesCommand creates the sources command.
func NewSourcesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sources",
		Short: "List the registered source files and their state on disk",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSources(cmd)
		},
	}
	return cmd
}

func runSources(cmd *cobra.Command) error {
	cfg := config.FromContext(cmd.Context())

	t := table.NewWriter()
	t.SetOutputMirror(cmd.OutOrStdout())
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Source", "File", "Raw Table", "Rows", "Ragged", "Status"})

	for _, s := range source.All() {
		path := s.Path(cfg.SourcesDir)

		if _, err := os.Stat(path); err != nil {
			t.AppendRow(table.Row{s.Name, s.File, s.Table, "-", "-", "missing"})
			continue
		}

		scan, err := source.Scan(path)
		if err != nil {
			t.AppendRow(table.Row{s.Name, s.File, s.Table, "-", "-", "unreadable"})
			continue
		}

		status := "ok"
		if scan.Ragged > 0 {
			status = "ragged"
		}
		t.AppendRow(table.Row{s.Name, s.File, s.Table, scan.Rows, scan.Ragged, status})
	}

	t.Render()
	return nil
}
