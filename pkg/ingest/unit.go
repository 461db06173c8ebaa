// Package ingest reads one HTTP request off a blocking socket and turns
// it into an environment map plus a rewound body handle. A Unit owns the
// read buffer and the header parser for one connection at a time; the
// surrounding server gives each worker its own Unit and recycles it with
// Reset between requests.
package ingest

import (
	"fmt"
	"io"
	"os"
)

// Default sizing applied when Options leaves a field zero.
const (
	DefaultChunkSize      = 16 * 1024
	DefaultSpoolThreshold = 1 << 20
)

// HeaderParser consumes the head of a request stream. Execute is given
// the full bytes received so far and returns true once the header block
// ends; implementations keep their own position between calls, so the
// same prefix may be presented repeatedly as the buffer grows. A parse
// failure poisons the parser until Reset.
type HeaderParser interface {
	Reset()
	Execute(env map[string]any, data []byte) (bool, error)
}

// Options tunes a Unit. The zero value is usable.
type Options struct {
	// ChunkSize is the size of each socket read.
	ChunkSize int
	// SpoolThreshold is the declared body length at which bodies move
	// from pooled memory to a spool file.
	SpoolThreshold int64
	// SpoolDir receives spool files; empty means the system temp dir.
	SpoolDir string
	// ErrorSink is exposed to request handlers for error output.
	ErrorSink io.Writer
	// ServerSoftware names the server in assembled environments.
	ServerSoftware string
}

func (o Options) chunkSize() int {
	if o.ChunkSize > 0 {
		return o.ChunkSize
	}
	return DefaultChunkSize
}

func (o Options) spoolThreshold() int64 {
	if o.SpoolThreshold > 0 {
		return o.SpoolThreshold
	}
	return DefaultSpoolThreshold
}

func (o Options) errorSink() io.Writer {
	if o.ErrorSink != nil {
		return o.ErrorSink
	}
	return os.Stderr
}

func (o Options) serverSoftware() string {
	if o.ServerSoftware != "" {
		return o.ServerSoftware
	}
	return "inletd"
}

// Unit ingests requests for one connection at a time. Not safe for
// concurrent use; give each worker its own.
type Unit struct {
	parser HeaderParser
	opts   Options
	buf    []byte // socket read buffer, reused across requests
	acc    []byte // accumulated stream for requests spanning reads
	body   Body   // live body of the current request, nil between requests
}

func NewUnit(parser HeaderParser, opts Options) *Unit {
	opts.ChunkSize = opts.chunkSize()
	opts.SpoolThreshold = opts.spoolThreshold()
	return &Unit{
		parser: parser,
		opts:   opts,
		buf:    make([]byte, opts.ChunkSize),
	}
}

// Ingest reads exactly one request from conn and returns its assembled
// environment. The remote address is recorded before the first read, so
// even a failed ingestion identifies the peer: on error the returned map
// holds whatever had been established when the failure hit. The caller
// owns the request until it calls Reset, which releases the body.
func (u *Unit) Ingest(conn Conn) (map[string]any, error) {
	env := map[string]any{
		KeyRemoteAddr: remoteAddr(conn),
	}

	// fast path: most requests arrive whole in the first read and the
	// parser examines the read buffer in place, no copies
	n, err := readChunk(conn, u.buf)
	if err != nil {
		u.Reset()
		if err == io.EOF {
			metricRequests.WithLabelValues(OutcomeClientGone).Inc()
			return env, ErrClientGone
		}
		metricRequests.WithLabelValues(OutcomeIOError).Inc()
		return env, fmt.Errorf("read request: %w", err)
	}
	data := u.buf[:n]
	done, perr := u.parser.Execute(env, data)

	for perr == nil && !done {
		// slow path: keep the stream in the accumulator and re-present
		// the whole of it after every read
		if len(u.acc) == 0 {
			u.acc = append(u.acc[:0], data...)
		}
		n, err = readChunk(conn, u.buf)
		if err != nil {
			u.Reset()
			if err == io.EOF {
				metricRequests.WithLabelValues(OutcomeClientGone).Inc()
				return env, ErrClientGone
			}
			metricRequests.WithLabelValues(OutcomeIOError).Inc()
			return env, fmt.Errorf("read request: %w", err)
		}
		u.acc = append(u.acc, u.buf[:n]...)
		data = u.acc
		done, perr = u.parser.Execute(env, data)
	}
	if perr != nil {
		u.Reset()
		metricRequests.WithLabelValues(OutcomeParseError).Inc()
		return env, fmt.Errorf("parse request: %w", perr)
	}

	body, err := materialize(conn, env, u.buf, u.opts)
	if err != nil {
		u.Reset()
		if err == ErrClientGone {
			metricRequests.WithLabelValues(OutcomeClientGone).Inc()
		} else {
			metricRequests.WithLabelValues(OutcomeIOError).Inc()
		}
		return env, err
	}
	u.body = body
	assemble(env, body, u.opts)

	metricRequests.WithLabelValues(OutcomeOK).Inc()
	return env, nil
}

// Reset returns the unit to its pre-request state: the parser is
// cleared, accumulated bytes are dropped, and any live body is emptied
// and released. Resetting an already-clean unit is a no-op.
func (u *Unit) Reset() {
	u.parser.Reset()
	u.acc = u.acc[:0]
	if u.body != nil {
		_ = u.body.Truncate(0)
		_ = u.body.Close()
		u.body = nil
	}
}
