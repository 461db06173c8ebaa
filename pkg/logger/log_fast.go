package logger

import (
	"fmt"

	"github.com/valyala/fasthttp"
)

// FastLogger adapts the global logger to the fasthttp.Logger interface so
// the ops server's internal errors land in the same sink.
type FastLogger struct{}

func (FastLogger) Printf(format string, args ...any) {
	if Log == nil {
		return
	}
	Log.Warn("ops_server", "msg", fmt.Sprintf(format, args...))
}

// LogRequestFast logs a concise summary of an incoming ops-plane request.
func LogRequestFast(ctx *fasthttp.RequestCtx) {
	if Log == nil {
		return
	}
	Debug("ops_request",
		"method", string(ctx.Method()),
		"path", string(ctx.Path()),
		"remote", ctx.RemoteAddr().String(),
	)
}
