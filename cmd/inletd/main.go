package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/joho/godotenv"

	"inletd/internal/app"
	"inletd/pkg/config"
	"inletd/pkg/logger"
	"inletd/pkg/state"
	"inletd/pkg/state/shutdown"
)

// set build metadata
var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	// load .env file if present
	_ = godotenv.Load(".env")

	// parse config flags
	flags := config.ParseConfigFlags()
	if flags.Version {
		fmt.Printf("inletd %s (%s) built %s\n", version, commit, buildDate)
		return
	}
	if !flags.Set["data"] {
		if root := state.ArtifactRoot(); root != "" {
			flags.Data = filepath.Join(root, "data")
		}
	}

	// parse config file
	fileCfg, fileExists, err := config.ParseConfigFile(flags)
	if err != nil {
		fatal("failed to load config file", err)
	}

	// parse config env variables
	envCfg, envUsed := config.ParseConfigEnvs()

	// load effective config
	eff, err := config.LoadEffectiveConfig(flags, fileCfg, fileExists, envCfg, envUsed)
	if err != nil {
		fatal("failed to build effective config", err)
	}

	// validate config
	if err := config.ValidateConfig(eff); err != nil {
		fatal("invalid configuration", err)
	}

	// initialize logger after config is fully loaded
	logger.InitWithLevel(eff.Config.Logging.Level)
	defer logger.Sync()

	logger.Info("effective_config_loaded",
		"source", eff.Source,
		"addr", eff.Addr,
		"socket", eff.Socket,
		"data_dir", eff.DataDir,
	)

	// set to maximum cpus available
	numCPU := runtime.NumCPU()
	runtime.GOMAXPROCS(numCPU)
	logger.Info("system_logical_cores", "logical_cores", numCPU)

	// cap worker count at 2x logical cores
	maxAllowedWorkers := numCPU * 2
	if eff.Config.Server.Workers > maxAllowedWorkers {
		logger.Warn("worker_count_capped", "requested", eff.Config.Server.Workers, "capped_to", maxAllowedWorkers)
		eff.Config.Server.Workers = maxAllowedWorkers
	}

	// init data folders and ensure the filesystem layout
	if err := state.Init(eff.DataDir); err != nil {
		fatal(fmt.Sprintf("failed to ensure state directories under %s", eff.DataDir), err)
	}

	// initialize app
	a, err := app.New(eff, version, commit, buildDate)
	if err != nil {
		state.Crash("failed to initialize app", err)
	}

	// set up context and signal handling for graceful shutdown
	ctx, cancel := shutdown.SetupSignalHandler(context.Background())
	defer cancel()

	// run the app
	if err := a.Run(ctx); err != nil {
		state.Crash("app run failed", err)
	}
}

// fatal reports a startup error from before the crash-dump paths exist
// and exits.
func fatal(msg string, err error) {
	logger.Error("startup_fatal", "msg", msg, "error", err)
	fmt.Fprintf(os.Stderr, "%s: %v\n", msg, err)
	logger.Sync()
	os.Exit(1)
}
