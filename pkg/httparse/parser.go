// Package httparse is an incremental HTTP/1.x request-line and header
// parser that writes parsed fields straight into a request-context map.
//
// Execute is resumable: it expects the full request stream accumulated so
// far on every call and continues from the byte it last examined, so
// callers can feed a growing buffer without re-parsing. Request-line fields
// are committed to the map only once the whole request line has validated;
// header fields commit as each line completes.
package httparse

import (
	"bytes"
	"strconv"
	"strings"

	"inletd/pkg/ingest"
)

// DefaultMaxHeaderBytes bounds the request line plus header block when the
// caller does not supply a limit.
const DefaultMaxHeaderBytes = 80 * 1024

type state uint8

const (
	sMethod state = iota
	sPath
	sVersion
	sReqLineLF
	sHeaderStart
	sHeaderName
	sHeaderValueStart
	sHeaderValue
	sHeaderLF
	sFinalLF
	sDone
	sDead
)

// Parser implements the header-parser contract consumed by ingest.Unit.
// The zero value is not ready; use New.
type Parser struct {
	state    state
	n        int // bytes of the stream already examined
	maxBytes int

	// request-line spans, indices into the stream; committed together
	// once the request line validates
	mStart, mEnd int
	pStart, pEnd int
	qStart       int // -1 when no query present
	uEnd         int
	vStart       int

	// current header line spans
	hnStart, hnEnd int
	hvStart        int
}

// New returns a parser enforcing the given header-block byte limit;
// maxHeaderBytes <= 0 selects DefaultMaxHeaderBytes.
func New(maxHeaderBytes int) *Parser {
	if maxHeaderBytes <= 0 {
		maxHeaderBytes = DefaultMaxHeaderBytes
	}
	p := &Parser{maxBytes: maxHeaderBytes}
	p.Reset()
	return p
}

// Reset restores the zero state so the parser can take a fresh request.
func (p *Parser) Reset() {
	p.state = sMethod
	p.n = 0
	p.mStart, p.mEnd = 0, 0
	p.pStart, p.pEnd = 0, 0
	p.qStart = -1
	p.uEnd = 0
	p.vStart = 0
	p.hnStart, p.hnEnd = 0, 0
	p.hvStart = 0
}

// headSnippetMax bounds the stream copy attached to parse errors.
const headSnippetMax = 160

// Execute advances parsing over data, which must contain the entire request
// stream received so far. It returns true once the request line and header
// block are complete; the unread remainder of data is then copied into env
// under ingest.KeyBufferedBody. Malformed input returns a *ParseError and
// poisons the parser until Reset.
func (p *Parser) Execute(env map[string]any, data []byte) (bool, error) {
	done, err := p.execute(env, data)
	if err != nil {
		if pe, ok := err.(*ParseError); ok && pe.Head == nil {
			n := len(data)
			if n > headSnippetMax {
				n = headSnippetMax
			}
			pe.Head = append([]byte(nil), data[:n]...)
		}
	}
	return done, err
}

func (p *Parser) execute(env map[string]any, data []byte) (bool, error) {
	switch p.state {
	case sDone:
		return true, nil
	case sDead:
		return false, &ParseError{Offset: p.n, Msg: "parser reuse without reset after failure"}
	}

	i := p.n
	for ; i < len(data); i++ {
		if i >= p.maxBytes {
			return false, p.die(i, "header block too large")
		}
		c := data[i]
		switch p.state {

		case sMethod:
			switch {
			case c == ' ':
				if i == p.mStart {
					return false, p.die(i, "empty request method")
				}
				p.mEnd = i
				p.pStart = i + 1
				p.state = sPath
			case !isToken(c):
				return false, p.die(i, "invalid character in request method")
			}

		case sPath:
			switch {
			case c == ' ':
				if i == p.pStart {
					return false, p.die(i, "empty request target")
				}
				if p.qStart < 0 {
					p.pEnd = i
				}
				p.uEnd = i
				p.vStart = i + 1
				p.state = sVersion
			case c == '?' && p.qStart < 0:
				if i == p.pStart {
					return false, p.die(i, "empty request target")
				}
				p.pEnd = i
				p.qStart = i + 1
			case c == '\r' || c == '\n':
				return false, p.die(i, "missing HTTP version in request line")
			case c < 0x20:
				return false, p.die(i, "control character in request target")
			}

		case sVersion:
			switch c {
			case '\r', '\n':
				if !validVersion(data[p.vStart:i]) {
					return false, p.die(i, "missing or malformed HTTP version")
				}
				p.commitRequestLine(env, data, i)
				if c == '\r' {
					p.state = sReqLineLF
				} else {
					p.state = sHeaderStart
				}
			case ' ':
				return false, p.die(i, "malformed request line")
			}

		case sReqLineLF:
			if c != '\n' {
				return false, p.die(i, "expected LF after CR")
			}
			p.state = sHeaderStart

		case sHeaderStart:
			switch {
			case c == '\r':
				p.state = sFinalLF
			case c == '\n':
				return p.finish(env, data, i)
			case c == ' ' || c == '\t':
				return false, p.die(i, "obsolete header line folding")
			case isToken(c):
				p.hnStart = i
				p.state = sHeaderName
			default:
				return false, p.die(i, "invalid character at header start")
			}

		case sHeaderName:
			switch {
			case c == ':':
				p.hnEnd = i
				p.state = sHeaderValueStart
			case c == '\r' || c == '\n':
				return false, p.die(i, "header line without colon")
			case !isToken(c):
				return false, p.die(i, "invalid character in header name")
			}

		case sHeaderValueStart:
			switch {
			case c == ' ' || c == '\t':
				// optional whitespace before the value
			case c == '\r':
				p.emitHeader(env, data, i, i)
				p.state = sHeaderLF
			case c == '\n':
				p.emitHeader(env, data, i, i)
				p.state = sHeaderStart
			case c < 0x20:
				return false, p.die(i, "invalid character in header value")
			default:
				p.hvStart = i
				p.state = sHeaderValue
			}

		case sHeaderValue:
			switch {
			case c == '\r':
				p.emitHeader(env, data, p.hvStart, i)
				p.state = sHeaderLF
			case c == '\n':
				p.emitHeader(env, data, p.hvStart, i)
				p.state = sHeaderStart
			case c < 0x20 && c != '\t':
				return false, p.die(i, "invalid character in header value")
			}

		case sHeaderLF:
			if c != '\n' {
				return false, p.die(i, "expected LF after CR")
			}
			p.state = sHeaderStart

		case sFinalLF:
			if c != '\n' {
				return false, p.die(i, "expected LF after CR")
			}
			return p.finish(env, data, i)
		}
	}
	p.n = i
	return false, nil
}

func (p *Parser) die(offset int, msg string) error {
	p.state = sDead
	p.n = offset
	return &ParseError{Offset: offset, Msg: msg}
}

func (p *Parser) finish(env map[string]any, data []byte, i int) (bool, error) {
	p.state = sDone
	p.n = i + 1
	rest := make([]byte, len(data)-p.n)
	copy(rest, data[p.n:])
	env[ingest.KeyBufferedBody] = rest
	return true, nil
}

// commitRequestLine writes the request-line fields in one step so a
// malformed request line leaves no partial fields behind.
func (p *Parser) commitRequestLine(env map[string]any, data []byte, verEnd int) {
	env[ingest.KeyRequestMethod] = string(data[p.mStart:p.mEnd])
	path := string(data[p.pStart:p.pEnd])
	env[ingest.KeyRequestPath] = path
	env[ingest.KeyPathInfo] = path
	if p.qStart >= 0 {
		env[ingest.KeyQueryString] = string(data[p.qStart:p.uEnd])
	} else {
		env[ingest.KeyQueryString] = ""
	}
	env[ingest.KeyRequestURI] = string(data[p.pStart:p.uEnd])
	env[ingest.KeyServerProtocol] = string(data[p.vStart:verEnd])
}

func (p *Parser) emitHeader(env map[string]any, data []byte, valStart, valEnd int) {
	name := envHeaderKey(data[p.hnStart:p.hnEnd])
	val := string(bytes.TrimRight(data[valStart:valEnd], " \t"))
	switch name {
	case ingest.KeyContentLength:
		env[ingest.KeyContentLength] = parseContentLength(val)
	case ingest.KeyContentType:
		appendHeaderValue(env, ingest.KeyContentType, val)
	default:
		appendHeaderValue(env, ingest.HeaderPrefix+name, val)
	}
}

func appendHeaderValue(env map[string]any, key, val string) {
	if prev, ok := env[key].(string); ok {
		env[key] = prev + ", " + val
		return
	}
	env[key] = val
}

// envHeaderKey maps a wire header name to its CGI form: uppercase with
// '-' replaced by '_'.
func envHeaderKey(name []byte) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, c := range name {
		switch {
		case c == '-':
			b.WriteByte('_')
		case c >= 'a' && c <= 'z':
			b.WriteByte(c - ('a' - 'A'))
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// parseContentLength coerces a client-supplied value to a non-negative
// int64; anything malformed counts as zero.
func parseContentLength(v string) int64 {
	if v == "" {
		return 0
	}
	for i := 0; i < len(v); i++ {
		if v[i] < '0' || v[i] > '9' {
			return 0
		}
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

func validVersion(tok []byte) bool {
	if len(tok) < 6 || !bytes.HasPrefix(tok, []byte("HTTP/")) {
		return false
	}
	rest := tok[5:]
	dot := false
	for i, c := range rest {
		switch {
		case c >= '0' && c <= '9':
		case c == '.' && !dot && i > 0 && i < len(rest)-1:
			dot = true
		default:
			return false
		}
	}
	return true
}

func isToken(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	}
	switch c {
	case '!', '#', '$', '%', '&', '\'', '*', '+', '-', '.', '^', '_', '`', '|', '~':
		return true
	}
	return false
}
