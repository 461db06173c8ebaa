package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"
)

// Config is the main configuration struct.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Ingest  IngestConfig  `yaml:"ingest"`
	Limits  LimitsConfig  `yaml:"limits"`
	Ops     OpsConfig     `yaml:"ops"`
	Journal JournalConfig `yaml:"journal"`
	Janitor JanitorConfig `yaml:"janitor"`
	Sensor  SensorConfig  `yaml:"sensor"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig holds listener and worker settings.
type ServerConfig struct {
	Address string `yaml:"address"`
	Port    int    `yaml:"port"`
	// Socket, when set, makes the server listen on a unix socket instead
	// of a TCP address. Mutually exclusive with address/port.
	Socket      string   `yaml:"socket"`
	DataDir     string   `yaml:"data_dir"`
	Workers     int      `yaml:"workers"`
	ReadTimeout Duration `yaml:"read_timeout"`
	// Name overrides the SERVER_SOFTWARE identification string.
	Name string `yaml:"name"`
}

// IngestConfig holds the request ingestion tunables.
type IngestConfig struct {
	ChunkSize      SizeBytes `yaml:"chunk_size"`
	SpoolThreshold SizeBytes `yaml:"spool_threshold"`
	MaxHeaderBytes SizeBytes `yaml:"max_header_bytes"`
}

// LimitsConfig holds accept-side rate limiting.
type LimitsConfig struct {
	AcceptRPS   float64 `yaml:"accept_rps"`
	AcceptBurst int     `yaml:"accept_burst"`
}

// OpsConfig holds the operations/metrics endpoint settings.
type OpsConfig struct {
	Enabled *bool  `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// JournalConfig holds the request journal settings.
type JournalConfig struct {
	Enabled *bool `yaml:"enabled"`
	Sync    bool  `yaml:"sync"`
}

// JanitorConfig holds configuration for the spool/journal sweeper.
type JanitorConfig struct {
	Enabled  *bool    `yaml:"enabled"`
	Schedule string   `yaml:"schedule"`
	MaxAge   Duration `yaml:"max_age"`
	// LockTTL controls the lease TTL used when acquiring the sweep lock,
	// so a crashed sweeper does not block the next one forever.
	LockTTL Duration `yaml:"lock_ttl"`
}

// SensorConfig holds spool-disk monitoring knobs.
type SensorConfig struct {
	Interval Duration  `yaml:"interval"`
	MinFree  SizeBytes `yaml:"min_free"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// SizeBytes represents a number of bytes, unmarshaled from human-friendly strings like "64MB" or plain integers.
type SizeBytes int64

func (s *SizeBytes) UnmarshalYAML(node *yaml.Node) error {
	if node == nil {
		*s = 0
		return nil
	}
	raw := strings.TrimSpace(node.Value)
	if raw == "" {
		*s = 0
		return nil
	}
	if v, err := humanize.ParseBytes(raw); err == nil {
		*s = SizeBytes(v)
		return nil
	}
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		*s = SizeBytes(i)
		return nil
	}
	return fmt.Errorf("invalid size value: %q", node.Value)
}

func (s SizeBytes) Int64() int64 { return int64(s) }

// Duration is a wrapper around time.Duration that supports YAML parsing from strings like "100ms" or plain numbers (interpreted as seconds).
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node == nil {
		*d = Duration(0)
		return nil
	}
	raw := strings.TrimSpace(node.Value)
	if raw == "" {
		*d = Duration(0)
		return nil
	}
	if td, err := time.ParseDuration(raw); err == nil {
		*d = Duration(td)
		return nil
	}
	// allow numeric seconds
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		*d = Duration(time.Duration(f * float64(time.Second)))
		return nil
	}
	return fmt.Errorf("invalid duration value: %q", node.Value)
}

func (d Duration) Duration() time.Duration { return time.Duration(d) }

// OpsEnabled reports whether the ops endpoint should run (default true).
func (c *Config) OpsEnabled() bool {
	if c.Ops.Enabled == nil {
		return true
	}
	return *c.Ops.Enabled
}

// JournalEnabled reports whether the request journal should run (default true).
func (c *Config) JournalEnabled() bool {
	if c.Journal.Enabled == nil {
		return true
	}
	return *c.Journal.Enabled
}

// JanitorEnabled reports whether the spool sweeper should run (default true).
func (c *Config) JanitorEnabled() bool {
	if c.Janitor.Enabled == nil {
		return true
	}
	return *c.Janitor.Enabled
}
