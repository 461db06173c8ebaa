package config

import (
	"flag"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// holds parsed command-line flag values and which were set
type Flags struct {
	Addr    string
	Socket  string
	Data    string
	Config  string
	Workers int
	Version bool
	Set     map[string]bool
}

// holds the result of LoadEffectiveConfig
type EffectiveConfigResult struct {
	Config  *Config
	Addr    string
	Socket  string
	DataDir string
	Source  string // "flags", "config", or "env"
}

// parses command-line flags and returns them as a Flags struct
func ParseConfigFlags() Flags {
	addrPtr := flag.String("addr", "127.0.0.1:8700", "TCP listen address")
	sockPtr := flag.String("socket", "", "unix socket path (overrides --addr)")
	dataPtr := flag.String("data", "./data", "data directory (spool, journal, crash dumps)")
	cfgPtr := flag.String("config", "./config.yaml", "path to config file")
	workersPtr := flag.Int("workers", 0, "number of connection workers (0 = NumCPU)")
	verPtr := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	// record which flags were set explicitly
	setFlags := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { setFlags[f.Name] = true })

	return Flags{
		Addr:    *addrPtr,
		Socket:  *sockPtr,
		Data:    *dataPtr,
		Config:  *cfgPtr,
		Workers: *workersPtr,
		Version: *verPtr,
		Set:     setFlags,
	}
}

// loads config from file, returns config, found bool, and error
func ParseConfigFile(flags Flags) (*Config, bool, error) {
	cfgPath := ResolveConfigPath(flags.Config, flags.Set["config"])
	cfg, err := LoadConfigFile(cfgPath)
	if err != nil {
		if os.IsNotExist(err) {
			return &Config{}, false, nil
		}
		return nil, false, err
	}
	return cfg, true, nil
}

// loads environment variables into a new Config and returns it along with
// whether any INLETD_* variable was set; caller config is unchanged
func ParseConfigEnvs() (*Config, bool) {
	envs := map[string]string{
		"ADDR":           os.Getenv("INLETD_ADDR"),
		"SERVER_ADDRESS": os.Getenv("INLETD_SERVER_ADDRESS"),
		"SERVER_PORT":    os.Getenv("INLETD_SERVER_PORT"),
		"SOCKET":         os.Getenv("INLETD_SOCKET"),
		"DATA":           os.Getenv("INLETD_DATA"),
		"WORKERS":        os.Getenv("INLETD_WORKERS"),
		"READ_TIMEOUT":   os.Getenv("INLETD_READ_TIMEOUT"),
		"SERVER_NAME":    os.Getenv("INLETD_SERVER_NAME"),

		"CHUNK_SIZE":       os.Getenv("INLETD_CHUNK_SIZE"),
		"SPOOL_THRESHOLD":  os.Getenv("INLETD_SPOOL_THRESHOLD"),
		"MAX_HEADER_BYTES": os.Getenv("INLETD_MAX_HEADER_BYTES"),

		"ACCEPT_RPS":   os.Getenv("INLETD_ACCEPT_RPS"),
		"ACCEPT_BURST": os.Getenv("INLETD_ACCEPT_BURST"),

		"OPS_ENABLED": os.Getenv("INLETD_OPS_ENABLED"),
		"OPS_ADDR":    os.Getenv("INLETD_OPS_ADDR"),

		"JOURNAL_ENABLED": os.Getenv("INLETD_JOURNAL_ENABLED"),
		"JOURNAL_SYNC":    os.Getenv("INLETD_JOURNAL_SYNC"),

		"JANITOR_ENABLED":  os.Getenv("INLETD_JANITOR_ENABLED"),
		"JANITOR_SCHEDULE": os.Getenv("INLETD_JANITOR_SCHEDULE"),
		"JANITOR_MAX_AGE":  os.Getenv("INLETD_JANITOR_MAX_AGE"),
		"JANITOR_LOCK_TTL": os.Getenv("INLETD_JANITOR_LOCK_TTL"),

		"SENSOR_INTERVAL": os.Getenv("INLETD_SENSOR_INTERVAL"),
		"SENSOR_MIN_FREE": os.Getenv("INLETD_SENSOR_MIN_FREE"),

		"LOG_LEVEL": os.Getenv("INLETD_LOG_LEVEL"),
	}

	envUsed := false
	for _, v := range envs {
		if v != "" {
			envUsed = true
			break
		}
	}
	envCfg := &Config{}

	parseBool := func(v string) bool {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes":
			return true
		default:
			return false
		}
	}

	parseSizeBytes := func(v string) SizeBytes {
		if strings.TrimSpace(v) == "" {
			return SizeBytes(0)
		}
		if u, err := humanize.ParseBytes(v); err == nil {
			return SizeBytes(u)
		}
		if i, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
			return SizeBytes(i)
		}
		return SizeBytes(0)
	}

	parseDur := func(v string) Duration {
		if strings.TrimSpace(v) == "" {
			return Duration(0)
		}
		if td, err := time.ParseDuration(v); err == nil {
			return Duration(td)
		}
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return Duration(time.Duration(f * float64(time.Second)))
		}
		return Duration(0)
	}

	if v := envs["ADDR"]; v != "" {
		if h, p, err := net.SplitHostPort(v); err == nil {
			envCfg.Server.Address = h
			if pi, err := strconv.Atoi(p); err == nil {
				envCfg.Server.Port = pi
			}
		} else {
			envCfg.Server.Address = v
		}
	} else {
		if host := envs["SERVER_ADDRESS"]; host != "" {
			envCfg.Server.Address = host
		}
		if port := envs["SERVER_PORT"]; port != "" {
			if pi, err := strconv.Atoi(port); err == nil {
				envCfg.Server.Port = pi
			}
		}
	}

	if v := envs["SOCKET"]; v != "" {
		envCfg.Server.Socket = v
	}
	if v := envs["DATA"]; v != "" {
		envCfg.Server.DataDir = v
	}
	if v := envs["WORKERS"]; v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			envCfg.Server.Workers = n
		}
	}
	if v := envs["READ_TIMEOUT"]; v != "" {
		envCfg.Server.ReadTimeout = parseDur(v)
	}
	if v := envs["SERVER_NAME"]; v != "" {
		envCfg.Server.Name = v
	}

	if v := envs["CHUNK_SIZE"]; v != "" {
		envCfg.Ingest.ChunkSize = parseSizeBytes(v)
	}
	if v := envs["SPOOL_THRESHOLD"]; v != "" {
		envCfg.Ingest.SpoolThreshold = parseSizeBytes(v)
	}
	if v := envs["MAX_HEADER_BYTES"]; v != "" {
		envCfg.Ingest.MaxHeaderBytes = parseSizeBytes(v)
	}

	if v := envs["ACCEPT_RPS"]; v != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			envCfg.Limits.AcceptRPS = f
		}
	}
	if v := envs["ACCEPT_BURST"]; v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			envCfg.Limits.AcceptBurst = n
		}
	}

	if v := envs["OPS_ENABLED"]; v != "" {
		b := parseBool(v)
		envCfg.Ops.Enabled = &b
	}
	if v := envs["OPS_ADDR"]; v != "" {
		envCfg.Ops.Addr = v
	}

	if v := envs["JOURNAL_ENABLED"]; v != "" {
		b := parseBool(v)
		envCfg.Journal.Enabled = &b
	}
	if v := envs["JOURNAL_SYNC"]; v != "" {
		envCfg.Journal.Sync = parseBool(v)
	}

	if v := envs["JANITOR_ENABLED"]; v != "" {
		b := parseBool(v)
		envCfg.Janitor.Enabled = &b
	}
	if v := envs["JANITOR_SCHEDULE"]; v != "" {
		envCfg.Janitor.Schedule = v
	}
	if v := envs["JANITOR_MAX_AGE"]; v != "" {
		envCfg.Janitor.MaxAge = parseDur(v)
	}
	if v := envs["JANITOR_LOCK_TTL"]; v != "" {
		envCfg.Janitor.LockTTL = parseDur(v)
	}

	if v := envs["SENSOR_INTERVAL"]; v != "" {
		envCfg.Sensor.Interval = parseDur(v)
	}
	if v := envs["SENSOR_MIN_FREE"]; v != "" {
		envCfg.Sensor.MinFree = parseSizeBytes(v)
	}

	if v := envs["LOG_LEVEL"]; v != "" {
		envCfg.Logging.Level = strings.TrimSpace(v)
	}

	return envCfg, envUsed
}

// decides which single source to use (flags, config file, or env) and
// returns the effective config plus resolved addr and data dir. if --config
// is set, only the config file is used; otherwise flags if set; else config
// file if present; else env
func LoadEffectiveConfig(flags Flags, fileCfg *Config, fileExists bool, envCfg *Config, envUsed bool) (EffectiveConfigResult, error) {
	var res EffectiveConfigResult

	if flags.Set["config"] {
		if !fileExists {
			return res, fmt.Errorf("config file %s not found", flags.Config)
		}
		res.Config = fileCfg
		res.Addr = fileCfg.Addr()
		res.Socket = fileCfg.Server.Socket
		res.DataDir = fileCfg.Server.DataDir
		res.Source = "config"
		return res, nil
	}

	if flags.Set["addr"] || flags.Set["socket"] || flags.Set["data"] || flags.Set["workers"] {
		out := &Config{}
		if fileExists {
			*out = *fileCfg
		} else if envUsed {
			*out = *envCfg
		}
		if flags.Set["addr"] {
			out.Server.Address, out.Server.Port = splitAddr(flags.Addr)
		}
		if flags.Set["socket"] {
			out.Server.Socket = flags.Socket
		}
		if flags.Set["data"] {
			out.Server.DataDir = flags.Data
		}
		if flags.Set["workers"] {
			out.Server.Workers = flags.Workers
		}
		if out.Server.DataDir == "" {
			out.Server.DataDir = flags.Data
		}
		res.Config = out
		res.Addr = out.Addr()
		res.Socket = out.Server.Socket
		res.DataDir = out.Server.DataDir
		res.Source = "flags"
		return res, nil
	}

	if fileExists {
		res.Config = fileCfg
		res.Addr = fileCfg.Addr()
		res.Socket = fileCfg.Server.Socket
		res.DataDir = fileCfg.Server.DataDir
		if res.DataDir == "" {
			res.DataDir = flags.Data
		}
		res.Source = "config"
		return res, nil
	}

	res.Config = envCfg
	res.Addr = envCfg.Addr()
	res.Socket = envCfg.Server.Socket
	res.DataDir = envCfg.Server.DataDir
	if res.DataDir == "" {
		res.DataDir = flags.Data
	}
	res.Source = "env"
	return res, nil
}

// splits host:port, tolerating a bare host
func splitAddr(a string) (string, int) {
	if a == "" {
		return "", 0
	}
	if h, p, err := net.SplitHostPort(a); err == nil {
		if pi, err := strconv.Atoi(p); err == nil {
			return h, pi
		}
		return h, 0
	}
	return a, 0
}
