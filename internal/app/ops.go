package app

import (
	"net/http"
	"net/http/pprof"
	"os"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"

	"inletd/internal/janitor"
	"inletd/pkg/journal"
	"inletd/pkg/logger"
	"inletd/pkg/router"
)

var (
	gcPauseTotal = prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "go_gc_pause_total_ns",
			Help: "Total GC pause time in nanoseconds.",
		},
		func() float64 {
			var stats runtime.MemStats
			runtime.ReadMemStats(&stats)
			return float64(stats.PauseTotalNs)
		},
	)

	heapAlloc = prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "go_heap_alloc_bytes",
			Help: "Current heap allocation in bytes.",
		},
		func() float64 {
			var stats runtime.MemStats
			runtime.ReadMemStats(&stats)
			return float64(stats.HeapAlloc)
		},
	)

	heapSys = prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "go_heap_sys_bytes",
			Help: "Total heap size in bytes.",
		},
		func() float64 {
			var stats runtime.MemStats
			runtime.ReadMemStats(&stats)
			return float64(stats.HeapSys)
		},
	)

	numGC = prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "go_gc_cycles_total",
			Help: "Total number of GC cycles.",
		},
		func() float64 {
			var stats runtime.MemStats
			runtime.ReadMemStats(&stats)
			return float64(stats.NumGC)
		},
	)
)

func init() {
	prometheus.MustRegister(gcPauseTotal)
	prometheus.MustRegister(heapAlloc)
	prometheus.MustRegister(heapSys)
	prometheus.MustRegister(numGC)
}

// wrapHTTPHandler wraps an http.Handler to work with fasthttp.
func wrapHTTPHandler(h http.Handler) fasthttp.RequestHandler {
	return fasthttpadaptor.NewFastHTTPHandler(h)
}

// opsRoutes wires the operational API onto a router.
func (a *App) opsRoutes() *router.Router {
	r := router.New()

	// health and ready handlers
	r.GET("/healthz", a.healthzHandler)
	r.GET("/readyz", a.readyzHandler)
	r.GET("/metrics", wrapHTTPHandler(promhttp.Handler()))

	// introspection over the request journal
	r.GET("/v1/status", a.statusHandler)
	r.GET("/v1/requests", a.recentRequestsHandler)
	r.GET("/v1/requests/{id}", a.requestHandler)
	r.POST("/v1/janitor/run", a.janitorRunHandler)

	// debug routes; the named-profile route must come after the
	// specific pprof handlers so it only catches Index lookups
	r.GET("/debug/pprof", wrapHTTPHandler(http.HandlerFunc(pprof.Index)))
	r.GET("/debug/pprof/cmdline", wrapHTTPHandler(http.HandlerFunc(pprof.Cmdline)))
	r.GET("/debug/pprof/profile", wrapHTTPHandler(http.HandlerFunc(pprof.Profile)))
	r.GET("/debug/pprof/symbol", wrapHTTPHandler(http.HandlerFunc(pprof.Symbol)))
	r.GET("/debug/pprof/trace", wrapHTTPHandler(http.HandlerFunc(pprof.Trace)))
	r.GET("/debug/pprof/{profile}", wrapHTTPHandler(http.HandlerFunc(pprof.Index)))

	r.NotFound(func(ctx *fasthttp.RequestCtx) {
		router.WriteJSONError(ctx, fasthttp.StatusNotFound, "not found")
	})
	return r
}

// healthzHandler reports liveness.
func (a *App) healthzHandler(ctx *fasthttp.RequestCtx) {
	router.WriteJSONOk(ctx, map[string]any{"status": "ok"})
}

// readyzHandler reports readiness: serving is pointless while the
// spool filesystem is under pressure, so degraded means not ready.
func (a *App) readyzHandler(ctx *fasthttp.RequestCtx) {
	if a.spoolSensor != nil && a.spoolSensor.Degraded() {
		router.WriteJSONError(ctx, fasthttp.StatusServiceUnavailable, "spool space low")
		return
	}
	ver := a.version
	if ver == "" {
		ver = "dev"
	}
	router.WriteJSONOk(ctx, map[string]any{"status": "ok", "version": ver})
}

// statusHandler summarizes build info and the running configuration.
func (a *App) statusHandler(ctx *fasthttp.RequestCtx) {
	cfg := a.eff.Config
	listen := a.eff.Addr
	if a.eff.Socket != "" {
		listen = "unix:" + a.eff.Socket
	} else if a.srv != nil && a.srv.Addr() != "" {
		listen = a.srv.Addr()
	}
	_ = router.WriteJSON(ctx, map[string]any{
		"version":         a.version,
		"commit":          a.commit,
		"build_date":      a.buildDate,
		"uptime":          time.Since(a.startedAt).Round(time.Second).String(),
		"pid":             os.Getpid(),
		"listen":          listen,
		"workers":         cfg.Server.Workers,
		"spool_threshold": cfg.Ingest.SpoolThreshold.Int64(),
		"journal":         journal.Enabled(),
		"degraded":        a.spoolSensor != nil && a.spoolSensor.Degraded(),
	})
}

// maxRecentLimit caps how many journal entries one call may return.
const maxRecentLimit = 500

func (a *App) recentRequestsHandler(ctx *fasthttp.RequestCtx) {
	if !journal.Enabled() {
		router.WriteJSONError(ctx, fasthttp.StatusConflict, "journal disabled")
		return
	}
	limit := router.QueryInt(ctx, "limit", 50)
	if limit <= 0 {
		limit = 50
	}
	if limit > maxRecentLimit {
		limit = maxRecentLimit
	}
	entries, err := journal.Recent(limit)
	if err != nil {
		router.WriteJSONError(ctx, fasthttp.StatusInternalServerError, err.Error())
		return
	}
	if entries == nil {
		entries = []journal.Entry{}
	}
	_ = router.WriteJSON(ctx, map[string]any{"count": len(entries), "requests": entries})
}

func (a *App) requestHandler(ctx *fasthttp.RequestCtx) {
	if !journal.Enabled() {
		router.WriteJSONError(ctx, fasthttp.StatusConflict, "journal disabled")
		return
	}
	id := router.PathParam(ctx, "id")
	entry, found, err := journal.Get(id)
	if err != nil {
		router.WriteJSONError(ctx, fasthttp.StatusInternalServerError, err.Error())
		return
	}
	if !found {
		router.WriteJSONError(ctx, fasthttp.StatusNotFound, "no such request")
		return
	}
	_ = router.WriteJSON(ctx, entry)
}

func (a *App) janitorRunHandler(ctx *fasthttp.RequestCtx) {
	res, err := janitor.RunImmediate()
	if err != nil {
		router.WriteJSONError(ctx, fasthttp.StatusConflict, err.Error())
		return
	}
	_ = router.WriteJSON(ctx, res)
}

// startOps builds and starts the ops-plane fasthttp server, returning
// a channel that delivers its terminal error.
func (a *App) startOps() <-chan error {
	r := a.opsRoutes()
	handler := func(ctx *fasthttp.RequestCtx) {
		logger.LogRequestFast(ctx)
		r.Handler(ctx)
	}

	const (
		readTimeout  = 10 * time.Second
		writeTimeout = 30 * time.Second
		idleTimeout  = 60 * time.Second
	)
	a.ops = &fasthttp.Server{
		Handler:      handler,
		Name:         "inletd-ops",
		Logger:       logger.FastLogger{},
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}

	addr := a.eff.Config.Ops.Addr
	logger.Info("ops_listening", "addr", addr)
	errCh := make(chan error, 1)
	go func() {
		errCh <- a.ops.ListenAndServe(addr)
	}()
	return errCh
}
