package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/lakemill/lakemill/internal/cli/config"
	"github.com/lakemill/lakemill/internal/source"
)

// scaffold is the lakemill.yaml written by init, marshaled so the file
// always matches what the loader reads back.
type scaffold struct {
	SourcesDir   string                      `yaml:"sources_dir"`
	StatePath    string                      `yaml:"state_path"`
	Environment  string                      `yaml:"environment"`
	OnRagged     string                      `yaml:"on_ragged"`
	OnCastError  string                      `yaml:"on_cast_error"`
	Warehouse    scaffoldWarehouse           `yaml:"warehouse"`
	Environments map[string]scaffoldOverride `yaml:"environments"`
}

type scaffoldWarehouse struct {
	Type string `yaml:"type"`
	Path string `yaml:"path"`
}

type scaffoldOverride struct {
	Warehouse scaffoldWarehouse `yaml:"warehouse"`
}

// NewInitCommand creates the init command.
func NewInitCommand() *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Scaffold a new lakemill project",
		Long: `Create a lakemill.yaml and a sources directory in the target
directory. The seven source files are expected under the sources
directory; run 'lakemill sources' to check them.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runInit(cmd, dir)
		},
	}

	cmd.Flags().StringVarP(&dir, "dir", "d", ".", "Directory to initialize")
	return cmd
}

func runInit(cmd *cobra.Command, dir string) error {
	cfgPath := filepath.Join(dir, "lakemill.yaml")
	if _, err := os.Stat(cfgPath); err == nil {
		return fmt.Errorf("%s already exists", cfgPath)
	}

	if err := os.MkdirAll(filepath.Join(dir, config.DefaultSourcesDir), 0750); err != nil {
		return fmt.Errorf("failed to create sources directory: %w", err)
	}

	data, err := yaml.Marshal(scaffold{
		SourcesDir:  config.DefaultSourcesDir,
		StatePath:   config.DefaultStateFile,
		Environment: config.DefaultEnv,
		OnRagged:    config.DefaultOnRagged,
		OnCastError: config.DefaultOnCastError,
		Warehouse:   scaffoldWarehouse{Type: "duckdb", Path: "lakemill.duckdb"},
		Environments: map[string]scaffoldOverride{
			"dev": {Warehouse: scaffoldWarehouse{Type: "duckdb", Path: "lakemill.duckdb"}},
		},
	})
	if err != nil {
		return err
	}
	if err := os.WriteFile(cfgPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", cfgPath, err)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Initialized lakemill project in %s\n\n", dir)
	fmt.Fprintf(w, "Place the source files under %s/:\n", filepath.Join(dir, config.DefaultSourcesDir))
	for _, s := range source.All() {
		fmt.Fprintf(w, "  %s\n", s.File)
	}
	fmt.Fprintln(w, "\nThen run: lakemill run")
	return nil
}
