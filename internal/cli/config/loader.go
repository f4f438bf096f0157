package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// loggerKey is used to store the logger in context. Shared with root.go via
// LoggerKey so commands can retrieve it without an import cycle.
type loggerKey struct{}

// configKey is used to store the loaded config in context.
type configKey struct{}

// Package-level koanf instance and config file tracking
var (
	k              = koanf.New(".")
	configFileUsed string
)

// findConfigFile finds the config file to use.
// Priority: explicit path > lakemill.yaml > lakemill.yml
func findConfigFile(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if _, err := os.Stat("lakemill.yaml"); err == nil {
		return "lakemill.yaml"
	}
	if _, err := os.Stat("lakemill.yml"); err == nil {
		return "lakemill.yml"
	}
	return ""
}

// ResetConfig resets the koanf instance. Used for testing.
func ResetConfig() {
	k = koanf.New(".")
	configFileUsed = ""
}

// LoadConfig loads configuration from file, environment variables, and
// flags. Precedence (highest to lowest): flags > env vars > config file >
// defaults. After merging, the selected environment's overrides are
// applied.
func LoadConfig(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	// Reset koanf for fresh load
	k = koanf.New(".")

	// 1. Load defaults
	if err := k.Load(confmap.Provider(map[string]interface{}{
		"sources_dir":   DefaultSourcesDir,
		"state_path":    DefaultStateFile,
		"environment":   DefaultEnv,
		"verbose":       false,
		"on_ragged":     DefaultOnRagged,
		"on_cast_error": DefaultOnCastError,
		"workers":       DefaultWorkers,
	}, "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// 2. Find and load config file
	configFileUsed = findConfigFile(cfgFile)
	if configFileUsed != "" {
		if err := k.Load(file.Provider(configFileUsed), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", configFileUsed, err)
		}
	}

	// 3. Load environment variables (LAKEMILL_ prefix)
	// Transform: LAKEMILL_SOURCES_DIR -> sources_dir
	if err := k.Load(env.Provider("LAKEMILL_", ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, "LAKEMILL_"))
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	// 4. Load flags (highest priority)
	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			// Only load flags that were explicitly set
			if !f.Changed {
				return "", nil
			}
			// Transform kebab-case to snake_case for config keys
			key := strings.ReplaceAll(f.Name, "-", "_")

			// The CLI uses --state for brevity; the config key is state_path.
			if key == "state" {
				return "state_path", posflag.FlagVal(flags, f)
			}
			// --env selects the environment.
			if key == "env" {
				return "environment", posflag.FlagVal(flags, f)
			}
			// --database is shorthand for the warehouse path.
			if key == "database" {
				return "warehouse.path", posflag.FlagVal(flags, f)
			}

			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	// 5. Unmarshal into Config struct
	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	// 6. Apply environment-specific overrides
	if cfg.Environment != "" && cfg.Environments != nil {
		if envCfg, ok := cfg.Environments[cfg.Environment]; ok {
			if envCfg.SourcesDir != "" {
				cfg.SourcesDir = envCfg.SourcesDir
			}
			if envCfg.StatePath != "" {
				cfg.StatePath = envCfg.StatePath
			}
			if envCfg.Warehouse != nil {
				cfg.Warehouse = mergeWarehouse(cfg.Warehouse, envCfg.Warehouse)
			}
		}
	}

	// 7. Default warehouse if none specified
	if cfg.Warehouse == nil {
		cfg.Warehouse = &WarehouseConfig{Type: DefaultWarehouse, Path: ":memory:"}
	}
	if cfg.Warehouse.Type == "" {
		cfg.Warehouse.Type = DefaultWarehouse
	}

	// 8. Expand ${VAR} references in credentials
	expandWarehouseEnvVars(cfg.Warehouse)

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// GetConfigFileUsed returns the path to the config file being used, if any.
func GetConfigFileUsed() string {
	return configFileUsed
}

// LoggerKey returns the context key used for storing the logger. This
// allows the commands package to retrieve the logger from context without
// creating an import cycle with the cli package.
func LoggerKey() interface{} {
	return loggerKey{}
}

// GetLogger retrieves the logger from the command context.
func GetLogger(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
		return l
	}
	// Return discard logger as safe fallback
	return slog.New(slog.DiscardHandler)
}

// ConfigKey returns the context key used for storing the loaded config.
func ConfigKey() interface{} {
	return configKey{}
}

// FromContext retrieves the loaded config from the command context, or a
// default config when none was loaded.
func FromContext(ctx context.Context) *Config {
	if c, ok := ctx.Value(configKey{}).(*Config); ok {
		return c
	}
	return &Config{
		SourcesDir:  DefaultSourcesDir,
		StatePath:   DefaultStateFile,
		Environment: DefaultEnv,
		OnRagged:    DefaultOnRagged,
		OnCastError: DefaultOnCastError,
		Workers:     DefaultWorkers,
		Warehouse:   &WarehouseConfig{Type: DefaultWarehouse, Path: ":memory:"},
	}
}

// expandEnvVars expands ${VAR} patterns with environment variable values.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)
	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[2 : len(match)-1]
		if val := os.Getenv(varName); val != "" {
			return val
		}
		return match // keep the reference when the variable is unset
	})
}

// expandWarehouseEnvVars expands environment variables in sensitive fields.
func expandWarehouseEnvVars(w *WarehouseConfig) {
	if w == nil {
		return
	}
	w.User = expandEnvVars(w.User)
	w.Password = expandEnvVars(w.Password)
	w.Host = expandEnvVars(w.Host)
	w.Database = expandEnvVars(w.Database)
}

// mergeWarehouse merges two warehouse configs, with override taking
// precedence field by field.
func mergeWarehouse(base, override *WarehouseConfig) *WarehouseConfig {
	if base == nil {
		return override
	}
	if override == nil {
		return base
	}

	merged := &WarehouseConfig{
		Type:     base.Type,
		Path:     base.Path,
		Host:     base.Host,
		Port:     base.Port,
		Database: base.Database,
		User:     base.User,
		Password: base.Password,
		Options:  make(map[string]string),
	}
	for key, v := range base.Options {
		merged.Options[key] = v
	}

	if override.Type != "" {
		merged.Type = override.Type
	}
	if override.Path != "" {
		merged.Path = override.Path
	}
	if override.Host != "" {
		merged.Host = override.Host
	}
	if override.Port != 0 {
		merged.Port = override.Port
	}
	if override.Database != "" {
		merged.Database = override.Database
	}
	if override.User != "" {
		merged.User = override.User
	}
	if override.Password != "" {
		merged.Password = override.Password
	}
	for key, v := range override.Options {
		merged.Options[key] = v
	}

	return merged
}
