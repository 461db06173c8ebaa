// Package dispatch turns assembled request environments into responses.
// Handlers read scalar entries and the body handle from the map; they
// never touch the client socket.
package dispatch

import (
	"encoding/json"

	"inletd/pkg/ingest"
)

// Response is what a handler wants sent back to the client.
type Response struct {
	Status int
	Header map[string]string
	Body   []byte
}

type Handler interface {
	Serve(env map[string]any) Response
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(env map[string]any) Response

func (f HandlerFunc) Serve(env map[string]any) Response { return f(env) }

// Text builds a plain-text response.
func Text(status int, body string) Response {
	return Response{
		Status: status,
		Header: map[string]string{"Content-Type": "text/plain; charset=utf-8"},
		Body:   []byte(body),
	}
}

// JSON builds a JSON response from v. Encoding failures degrade to a
// plain 500 so a handler never has to deal with them.
func JSON(status int, v any) Response {
	data, err := json.Marshal(v)
	if err != nil {
		return Text(500, "response encoding failed\n")
	}
	data = append(data, '\n')
	return Response{
		Status: status,
		Header: map[string]string{"Content-Type": "application/json"},
		Body:   data,
	}
}

// NotFound answers every request with a plain 404.
func NotFound() Handler {
	return HandlerFunc(func(map[string]any) Response {
		return Text(404, "not found\n")
	})
}

// BodyOf extracts the request body handle, if one was attached.
func BodyOf(env map[string]any) (ingest.Body, bool) {
	b, ok := env[ingest.KeyInput].(ingest.Body)
	return b, ok
}
