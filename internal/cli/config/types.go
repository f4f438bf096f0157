// Package config loads CLI configuration from defaults, the lakemill.yaml
// project file, LAKEMILL_-prefixed environment variables, and flags, in
// that order of increasing precedence.
package config

// WarehouseConfig describes the warehouse the pipeline writes to.
type WarehouseConfig struct {
	Type     string            `koanf:"type"`
	Path     string            `koanf:"path"` // duckdb file path, or :memory:
	Host     string            `koanf:"host"`
	Port     int               `koanf:"port"`
	Database string            `koanf:"database"`
	User     string            `koanf:"user"`
	Password string            `koanf:"password"`
	Options  map[string]string `koanf:"options"`
}

// SchemaConfig names the three layer schemas.
type SchemaConfig struct {
	Raw  string `koanf:"raw"`
	Base string `koanf:"base"`
	Star string `koanf:"star"`
}

// EnvConfig holds environment-specific configuration overrides.
type EnvConfig struct {
	SourcesDir string           `koanf:"sources_dir"`
	StatePath  string           `koanf:"state_path"`
	Warehouse  *WarehouseConfig `koanf:"warehouse"`
}

// Config holds all CLI configuration options.
type Config struct {
	SourcesDir   string               `koanf:"sources_dir"`
	StatePath    string               `koanf:"state_path"`
	Environment  string               `koanf:"environment"`
	Verbose      bool                 `koanf:"verbose"`
	OnRagged     string               `koanf:"on_ragged"`
	OnCastError  string               `koanf:"on_cast_error"`
	Workers      int                  `koanf:"workers"`
	Warehouse    *WarehouseConfig     `koanf:"warehouse"`
	Schemas      SchemaConfig         `koanf:"schemas"`
	Environments map[string]EnvConfig `koanf:"environments"`
}

// Default configuration values.
const (
	DefaultSourcesDir  = "sources"
	DefaultStateFile   = ".lakemill/state.db"
	DefaultEnv         = "dev"
	DefaultWarehouse   = "duckdb"
	DefaultOnRagged    = "fail"
	DefaultOnCastError = "reject"
	DefaultWorkers     = 4
)
