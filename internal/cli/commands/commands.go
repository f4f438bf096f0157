// Package commands implements the lakemill subcommands.
package commands

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/lakemill/lakemill/internal/adapter"
	"github.com/lakemill/lakemill/internal/cli/config"
	"github.com/lakemill/lakemill/internal/pipeline"
	"github.com/lakemill/lakemill/internal/state"
)

// newPipeline builds a pipeline from the command's loaded configuration.
func newPipeline(cmd *cobra.Command) (*pipeline.Pipeline, error) {
	cfg := config.FromContext(cmd.Context())
	logger := config.GetLogger(cmd.Context())

	// Ensure state directory exists
	stateDir := filepath.Dir(cfg.StatePath)
	if stateDir != "." && stateDir != "" {
		if err := os.MkdirAll(stateDir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create state directory: %w", err)
		}
	}

	var adapterCfg adapter.Config
	if cfg.Warehouse != nil {
		adapterCfg = adapter.Config{
			Type:     cfg.Warehouse.Type,
			Path:     cfg.Warehouse.Path,
			Host:     cfg.Warehouse.Host,
			Port:     cfg.Warehouse.Port,
			Database: cfg.Warehouse.Database,
			Username: cfg.Warehouse.User,
			Password: cfg.Warehouse.Password,
			Options:  cfg.Warehouse.Options,
		}
	}

	return pipeline.New(pipeline.Config{
		SourcesDir:  cfg.SourcesDir,
		StatePath:   cfg.StatePath,
		Environment: cfg.Environment,
		Adapter:     adapterCfg,
		Schemas: pipeline.Schemas{
			Raw:  cfg.Schemas.Raw,
			Base: cfg.Schemas.Base,
			Star: cfg.Schemas.Star,
		},
		OnRagged:    pipeline.RaggedPolicy(cfg.OnRagged),
		OnCastError: pipeline.CastPolicy(cfg.OnCastError),
		Workers:     cfg.Workers,
		Logger:      logger,
	})
}

// renderManifest prints a run and its per-table manifest.
func renderManifest(w io.Writer, run *state.Run, tableRuns []*state.TableRun) {
	fmt.Fprintf(w, "Run %s (%s): %s\n", run.ID, run.Environment, run.Status)
	if run.Error != "" {
		fmt.Fprintf(w, "Error: %s\n", run.Error)
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Table", "Layer", "Status", "Rows", "Rejected", "Time", "Error"})

	for _, tr := range tableRuns {
		t.AppendRow(table.Row{
			tr.Table,
			tr.Layer,
			tr.Status,
			tr.RowCount,
			tr.RejectedCount,
			(time.Duration(tr.ExecutionMS) * time.Millisecond).String(),
			tr.Error,
		})
	}
	t.Render()
}
