package router

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/valyala/fasthttp"
)

// WriteJSON writes data as a JSON response body.
func WriteJSON(ctx *fasthttp.RequestCtx, data any) error {
	ctx.Response.Header.Set("Content-Type", "application/json")
	return json.NewEncoder(ctx).Encode(data)
}

// WriteJSONError writes a JSON error body with the given status.
func WriteJSONError(ctx *fasthttp.RequestCtx, status int, message string) {
	ctx.SetStatusCode(status)
	ctx.Response.Header.Set("Content-Type", "application/json")
	_ = json.NewEncoder(ctx).Encode(map[string]string{"error": message})
}

// WriteJSONOk writes a 200 JSON response.
func WriteJSONOk(ctx *fasthttp.RequestCtx, data map[string]any) {
	ctx.Response.Header.Set("Content-Type", "application/json")
	_ = json.NewEncoder(ctx).Encode(data)
}

// PathParam returns a bound path placeholder, or "".
func PathParam(ctx *fasthttp.RequestCtx, name string) string {
	if v := ctx.UserValue(name); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// Query returns a trimmed query parameter value.
func Query(ctx *fasthttp.RequestCtx, key string) string {
	return strings.TrimSpace(string(ctx.QueryArgs().Peek(key)))
}

// QueryInt returns a query parameter as an int, or def when absent or
// unparseable.
func QueryInt(ctx *fasthttp.RequestCtx, key string, def int) int {
	v := Query(ctx, key)
	if v == "" {
		return def
	}
	if n, err := strconv.Atoi(v); err == nil {
		return n
	}
	return def
}
