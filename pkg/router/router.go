// Package router dispatches operational API requests. It is a small
// method-and-path table over fasthttp with {name} placeholders; matched
// placeholders land in the request's user values.
package router

import (
	"strings"

	"github.com/valyala/fasthttp"
)

type Router struct {
	routes   []route
	notFound fasthttp.RequestHandler
}

type route struct {
	method   string
	segments []segment
	handler  fasthttp.RequestHandler
}

type segment struct {
	literal string
	param   string // non-empty for {name} segments
}

func New() *Router {
	return &Router{}
}

// Handle registers h for method and path. Path segments wrapped in
// braces match any single segment and are exposed as user values.
func (r *Router) Handle(method, path string, h fasthttp.RequestHandler) {
	r.routes = append(r.routes, route{
		method:   method,
		segments: splitPath(path),
		handler:  h,
	})
}

func (r *Router) GET(path string, h fasthttp.RequestHandler)    { r.Handle("GET", path, h) }
func (r *Router) POST(path string, h fasthttp.RequestHandler)   { r.Handle("POST", path, h) }
func (r *Router) PUT(path string, h fasthttp.RequestHandler)    { r.Handle("PUT", path, h) }
func (r *Router) DELETE(path string, h fasthttp.RequestHandler) { r.Handle("DELETE", path, h) }

// NotFound replaces the default unmatched-route response.
func (r *Router) NotFound(h fasthttp.RequestHandler) {
	r.notFound = h
}

// Handler dispatches one request. Suitable as a fasthttp.Server handler.
func (r *Router) Handler(ctx *fasthttp.RequestCtx) {
	method := string(ctx.Method())
	parts := splitRequestPath(string(ctx.Path()))
	for _, rt := range r.routes {
		if rt.method != method {
			continue
		}
		if bindMatch(ctx, parts, rt.segments) {
			rt.handler(ctx)
			return
		}
	}
	if r.notFound != nil {
		r.notFound(ctx)
		return
	}
	WriteJSONError(ctx, fasthttp.StatusNotFound, "not found")
}

func splitPath(path string) []segment {
	parts := splitRequestPath(path)
	segs := make([]segment, len(parts))
	for i, part := range parts {
		if len(part) > 2 && part[0] == '{' && part[len(part)-1] == '}' {
			segs[i] = segment{param: part[1 : len(part)-1]}
		} else {
			segs[i] = segment{literal: part}
		}
	}
	return segs
}

func splitRequestPath(path string) []string {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}

// bindMatch reports whether parts satisfy segs, binding any parameters
// onto ctx. Parameters are only bound on a full match.
func bindMatch(ctx *fasthttp.RequestCtx, parts []string, segs []segment) bool {
	if len(parts) != len(segs) {
		return false
	}
	for i, seg := range segs {
		if seg.param == "" && seg.literal != parts[i] {
			return false
		}
	}
	for i, seg := range segs {
		if seg.param != "" {
			ctx.SetUserValue(seg.param, parts[i])
		}
	}
	return true
}
