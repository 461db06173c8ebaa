// Package app assembles the inletd process: effective configuration,
// the request journal, the spool sensor, the janitor, the ingestion
// server, and the operational API.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/valyala/fasthttp"

	"inletd/internal/janitor"
	"inletd/internal/server"
	"inletd/pkg/config"
	"inletd/pkg/config/banner"
	"inletd/pkg/dispatch"
	"inletd/pkg/journal"
	"inletd/pkg/logger"
	"inletd/pkg/sensor"
	"inletd/pkg/state"
)

// App groups process state and components.
type App struct {
	eff       config.EffectiveConfigResult
	version   string
	commit    string
	buildDate string

	handler dispatch.Handler

	srv           *server.Server
	ops           *fasthttp.Server
	spoolSensor   *sensor.Sensor
	janitorCancel context.CancelFunc
	startedAt     time.Time
}

// New sets up resources that need no running context: it validates the
// effective config and opens the journal. Call Run to start the
// components and block for the process lifecycle.
func New(eff config.EffectiveConfigResult, version, commit, buildDate string) (*App, error) {
	if err := config.ValidateConfig(eff); err != nil {
		return nil, err
	}
	if state.PathsVar.Spool == "" {
		return nil, fmt.Errorf("state paths not initialized")
	}

	if eff.Config.JournalEnabled() {
		if err := journal.Open(state.PathsVar.Journal, eff.Config.Journal.Sync); err != nil {
			return nil, fmt.Errorf("open journal: %w", err)
		}
	}

	return &App{
		eff:       eff,
		version:   version,
		commit:    commit,
		buildDate: buildDate,
		handler:   dispatch.Echo(),
	}, nil
}

// SetHandler replaces the request handler before Run. The default
// handler echoes a request summary back to the client.
func (a *App) SetHandler(h dispatch.Handler) {
	if h != nil {
		a.handler = h
	}
}

// Run starts every component and blocks until the context is cancelled
// or a component fails fatally.
func (a *App) Run(ctx context.Context) error {
	cfg := a.eff.Config
	a.startedAt = time.Now()
	a.printBanner()

	a.spoolSensor = sensor.New(sensor.Config{
		Path:     state.PathsVar.Spool,
		Interval: cfg.Sensor.Interval.Duration(),
		MinFree:  cfg.Sensor.MinFree.Int64(),
	})
	a.spoolSensor.Start()

	if cfg.JanitorEnabled() {
		a.janitorCancel = janitor.Start(ctx, janitor.Config{
			Schedule: cfg.Janitor.Schedule,
			MaxAge:   cfg.Janitor.MaxAge.Duration(),
			LockTTL:  cfg.Janitor.LockTTL.Duration(),
			SpoolDir: state.PathsVar.Spool,
			LockDir:  state.PathsVar.State,
		})
	}

	a.srv = server.New(server.Config{
		Addr:           a.eff.Addr,
		Socket:         a.eff.Socket,
		Workers:        cfg.Server.Workers,
		ReadTimeout:    cfg.Server.ReadTimeout.Duration(),
		ChunkSize:      int(cfg.Ingest.ChunkSize.Int64()),
		SpoolThreshold: cfg.Ingest.SpoolThreshold.Int64(),
		SpoolDir:       state.PathsVar.Spool,
		MaxHeaderBytes: int(cfg.Ingest.MaxHeaderBytes.Int64()),
		ServerSoftware: cfg.ServerSoftware(a.version),
		AcceptRPS:      cfg.Limits.AcceptRPS,
		AcceptBurst:    cfg.Limits.AcceptBurst,
	}, a.handler)
	if err := a.srv.Start(); err != nil {
		a.shutdown()
		return err
	}

	var opsErr <-chan error
	if cfg.OpsEnabled() {
		opsErr = a.startOps()
	}

	select {
	case <-ctx.Done():
		a.shutdown()
		return nil
	case err := <-opsErr:
		a.shutdown()
		return fmt.Errorf("ops server: %w", err)
	}
}

// shutdown stops components in dependency order: stop accepting work
// first, background services next, the journal under everything last.
func (a *App) shutdown() {
	logger.Info("shutdown_started")
	if a.srv != nil {
		a.srv.Stop()
	}
	if a.ops != nil {
		if err := a.ops.Shutdown(); err != nil {
			logger.Error("ops_shutdown_failed", "error", err.Error())
		}
	}
	if a.janitorCancel != nil {
		a.janitorCancel()
	}
	if a.spoolSensor != nil {
		a.spoolSensor.Stop()
	}
	if err := journal.Close(); err != nil {
		logger.Error("journal_close_failed", "error", err.Error())
	}
	logger.Info("shutdown_complete")
}

// printBanner prints the startup banner and build info.
func (a *App) printBanner() {
	verStr := a.version
	if a.commit != "none" && a.commit != "" {
		verStr += " (" + a.commit + ")"
	}
	if a.buildDate != "unknown" && a.buildDate != "" {
		verStr += " @ " + a.buildDate
	}
	banner.PrintWithEff(a.eff, verStr)
}
