package config

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults for ingestion, journal, and janitor configuration.
const (
	defaultChunkSize      = 16 * 1024
	defaultSpoolThreshold = 1024 * 1024
	defaultMaxHeaderBytes = 80 * 1024

	defaultReadTimeout = 30 * time.Second

	defaultOpsAddr = "127.0.0.1:9611"

	defaultJanitorSchedule = "*/10 * * * *"
	defaultJanitorMaxAge   = time.Hour
	defaultJanitorLockTTL  = 300 * time.Second

	defaultSensorInterval = 30 * time.Second
	defaultSensorMinFree  = 256 * 1024 * 1024
)

// Addr returns the main listen address as host:port.
func (c *Config) Addr() string {
	addr := c.Server.Address
	if addr == "" {
		addr = "127.0.0.1"
	}
	port := c.Server.Port
	if port == 0 {
		port = 8700
	}
	return fmt.Sprintf("%s:%d", addr, port)
}

// ServerSoftware returns the server identification string placed into each
// request-context map, honoring the configured override.
func (c *Config) ServerSoftware(version string) string {
	if c.Server.Name != "" {
		return c.Server.Name
	}
	if version == "" {
		version = "dev"
	}
	return "inletd/" + version
}

// LoadConfigFile reads and parses a config file.
func LoadConfigFile(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyDefaults fills in missing values on the receiver. Called once on the
// effective config before anything consumes it.
func (c *Config) ApplyDefaults() {
	if c.Ingest.ChunkSize.Int64() <= 0 {
		c.Ingest.ChunkSize = SizeBytes(defaultChunkSize)
	}
	if c.Ingest.SpoolThreshold.Int64() <= 0 {
		c.Ingest.SpoolThreshold = SizeBytes(defaultSpoolThreshold)
	}
	if c.Ingest.MaxHeaderBytes.Int64() <= 0 {
		c.Ingest.MaxHeaderBytes = SizeBytes(defaultMaxHeaderBytes)
	}

	if c.Server.Workers <= 0 {
		c.Server.Workers = runtime.NumCPU()
	}
	if c.Server.ReadTimeout.Duration() == 0 {
		c.Server.ReadTimeout = Duration(defaultReadTimeout)
	}

	if c.Ops.Addr == "" {
		c.Ops.Addr = defaultOpsAddr
	}

	if c.Janitor.Schedule == "" {
		c.Janitor.Schedule = defaultJanitorSchedule
	}
	if c.Janitor.MaxAge.Duration() == 0 {
		c.Janitor.MaxAge = Duration(defaultJanitorMaxAge)
	}
	if c.Janitor.LockTTL.Duration() == 0 {
		c.Janitor.LockTTL = Duration(defaultJanitorLockTTL)
	}

	if c.Sensor.Interval.Duration() == 0 {
		c.Sensor.Interval = Duration(defaultSensorInterval)
	}
	if c.Sensor.MinFree.Int64() == 0 {
		c.Sensor.MinFree = SizeBytes(defaultSensorMinFree)
	}
}

// ResolveConfigPath returns the config file path, preferring flag, then env.
func ResolveConfigPath(flagPath string, flagSet bool) string {
	if flagSet {
		return flagPath
	}
	if p := os.Getenv("INLETD_CONFIG"); p != "" {
		return p
	}
	return flagPath
}
