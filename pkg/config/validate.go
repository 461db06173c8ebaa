package config

import (
	"fmt"

	"github.com/adhocore/gronx"
)

// set defaults, fail fast on critical errors
func ValidateConfig(eff EffectiveConfigResult) error {
	cfg := eff.Config
	if cfg == nil {
		return fmt.Errorf("effective config is nil")
	}
	cfg.ApplyDefaults()

	if eff.DataDir == "" {
		return fmt.Errorf("data directory is empty: set --data flag, INLETD_DATA env, or server.data_dir in config")
	}

	// A unix socket and a TCP address are alternatives, not companions.
	if cfg.Server.Socket != "" && (cfg.Server.Address != "" || cfg.Server.Port != 0) {
		return fmt.Errorf("server.socket and server.address/port are mutually exclusive")
	}

	if cfg.Ingest.ChunkSize.Int64() <= 0 {
		return fmt.Errorf("ingest.chunk_size must be positive")
	}
	if cfg.Ingest.SpoolThreshold.Int64() <= 0 {
		return fmt.Errorf("ingest.spool_threshold must be positive")
	}
	if cfg.Ingest.MaxHeaderBytes.Int64() < 1024 {
		return fmt.Errorf("ingest.max_header_bytes must be at least 1KB")
	}

	if cfg.Limits.AcceptRPS < 0 {
		return fmt.Errorf("limits.accept_rps must not be negative")
	}
	if cfg.Limits.AcceptRPS > 0 && cfg.Limits.AcceptBurst <= 0 {
		cfg.Limits.AcceptBurst = int(cfg.Limits.AcceptRPS)
		if cfg.Limits.AcceptBurst < 1 {
			cfg.Limits.AcceptBurst = 1
		}
	}

	if cfg.JanitorEnabled() {
		if !gronx.IsValid(cfg.Janitor.Schedule) {
			return fmt.Errorf("invalid janitor cron expression: %s", cfg.Janitor.Schedule)
		}
		if cfg.Janitor.MaxAge.Duration() <= 0 {
			return fmt.Errorf("janitor.max_age must be positive")
		}
	}

	return nil
}
