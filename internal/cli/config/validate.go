package config

import (
	"fmt"
	"strings"

	"github.com/lakemill/lakemill/internal/adapter"
	"github.com/lakemill/lakemill/internal/pipeline"
)

// Validate checks a merged configuration for values the pipeline would
// reject later anyway. Failing here gives the user one clear error instead
// of a mid-run surprise.
func Validate(cfg *Config) error {
	if cfg.Warehouse == nil || cfg.Warehouse.Type == "" {
		return fmt.Errorf("warehouse type is required")
	}
	if !registered(cfg.Warehouse.Type) {
		return fmt.Errorf("unknown warehouse type %q (supported: %s)",
			cfg.Warehouse.Type, strings.Join(adapter.Registered(), ", "))
	}

	if cfg.Warehouse.Type == "postgres" {
		if cfg.Warehouse.Host == "" {
			return fmt.Errorf("postgres warehouse requires a host")
		}
		if cfg.Warehouse.Database == "" {
			return fmt.Errorf("postgres warehouse requires a database")
		}
	}

	switch pipeline.RaggedPolicy(cfg.OnRagged) {
	case pipeline.RaggedFail, pipeline.RaggedSkip:
	default:
		return fmt.Errorf("invalid on_ragged policy %q (must be %q or %q)",
			cfg.OnRagged, pipeline.RaggedFail, pipeline.RaggedSkip)
	}

	switch pipeline.CastPolicy(cfg.OnCastError) {
	case pipeline.CastReject, pipeline.CastFail, pipeline.CastNull:
	default:
		return fmt.Errorf("invalid on_cast_error policy %q (must be %q, %q, or %q)",
			cfg.OnCastError, pipeline.CastReject, pipeline.CastFail, pipeline.CastNull)
	}

	if cfg.Workers < 0 {
		return fmt.Errorf("workers must be positive")
	}

	return nil
}

func registered(adapterType string) bool {
	for _, t := range adapter.Registered() {
		if t == adapterType {
			return true
		}
	}
	return false
}
