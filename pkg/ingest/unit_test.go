package ingest

import (
	"bytes"
	"errors"
	"io"
	"net"
	"os"
	"strings"
	"testing"

	"golang.org/x/sys/unix"
)

// scriptConn replays fixed chunks, one Read per chunk, then reports a
// final error (io.EOF unless set).
type scriptConn struct {
	chunks [][]byte
	final  error
	reads  int
	addr   net.Addr
}

func (c *scriptConn) Read(p []byte) (int, error) {
	c.reads++
	if len(c.chunks) == 0 {
		if c.final != nil {
			return 0, c.final
		}
		return 0, io.EOF
	}
	ch := c.chunks[0]
	n := copy(p, ch)
	if n < len(ch) {
		c.chunks[0] = ch[n:]
	} else {
		c.chunks = c.chunks[1:]
	}
	return n, nil
}

func (c *scriptConn) RemoteAddr() net.Addr {
	if c.addr != nil {
		return c.addr
	}
	return &net.TCPAddr{IP: net.IPv4(192, 0, 2, 10), Port: 49152}
}

// eintrConn fails the next trips reads with EINTR before delegating.
type eintrConn struct {
	inner Conn
	errs  []error
}

func (c *eintrConn) Read(p []byte) (int, error) {
	if len(c.errs) > 0 {
		err := c.errs[0]
		c.errs = c.errs[1:]
		return 0, err
	}
	return c.inner.Read(p)
}

func (c *eintrConn) RemoteAddr() net.Addr { return c.inner.RemoteAddr() }

// stubParser completes once headerLen bytes have arrived, then commits
// its fields and captures the remainder the way a real parser would. A
// configured failure poisons it until Reset.
type stubParser struct {
	headerLen int
	fields    map[string]any
	failErr   error
	resets    int
	executes  int
	dead      bool
}

func (p *stubParser) Reset() {
	p.resets++
	p.dead = false
}

func (p *stubParser) Execute(env map[string]any, data []byte) (bool, error) {
	p.executes++
	if p.dead {
		return false, errors.New("execute on poisoned parser")
	}
	if p.failErr != nil {
		p.dead = true
		return false, p.failErr
	}
	if len(data) < p.headerLen {
		return false, nil
	}
	for k, v := range p.fields {
		env[k] = v
	}
	env[KeyBufferedBody] = append([]byte(nil), data[p.headerLen:]...)
	return true, nil
}

func bodyOf(t *testing.T, env map[string]any) Body {
	t.Helper()
	b, ok := env[KeyInput].(Body)
	if !ok {
		t.Fatalf("env[%q] is %T, want Body", KeyInput, env[KeyInput])
	}
	return b
}

func readAll(t *testing.T, b Body) []byte {
	t.Helper()
	data, err := io.ReadAll(b)
	if err != nil {
		t.Fatalf("reading body: %v", err)
	}
	return data
}

func TestIngestFastPathSingleRead(t *testing.T) {
	raw := []byte("GET / HTTP/1.1\r\n\r\n")
	parser := &stubParser{
		headerLen: len(raw),
		fields:    map[string]any{KeyRequestMethod: "GET"},
	}
	conn := &scriptConn{chunks: [][]byte{raw}}
	u := NewUnit(parser, Options{})

	env, err := u.Ingest(conn)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if conn.reads != 1 {
		t.Errorf("reads = %d, want exactly 1 for a request that fits the first chunk", conn.reads)
	}
	if env[KeyRemoteAddr] != "192.0.2.10" {
		t.Errorf("remote addr = %v, want 192.0.2.10", env[KeyRemoteAddr])
	}
	if env[KeyRequestMethod] != "GET" {
		t.Errorf("method = %v, want GET", env[KeyRequestMethod])
	}
	if got := bodyOf(t, env).Size(); got != 0 {
		t.Errorf("body size = %d, want 0", got)
	}
}

func TestIngestDefaultsPresent(t *testing.T) {
	raw := []byte("GET / HTTP/1.1\r\n\r\n")
	parser := &stubParser{headerLen: len(raw), fields: map[string]any{KeyRequestMethod: "GET"}}
	sink := &bytes.Buffer{}
	u := NewUnit(parser, Options{ErrorSink: sink, ServerSoftware: "inletd/9.9"})

	env, err := u.Ingest(&scriptConn{chunks: [][]byte{raw}})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	checks := map[string]any{
		KeyMultithread:    true,
		KeyMultiprocess:   false,
		KeyRunOnce:        false,
		KeyScriptName:     "",
		KeyServerSoftware: "inletd/9.9",
		KeyVersion:        EnvVersion,
	}
	for k, want := range checks {
		if got := env[k]; got != want {
			t.Errorf("env[%q] = %v, want %v", k, got, want)
		}
	}
	if env[KeyErrors] != io.Writer(sink) {
		t.Errorf("env[%q] is not the configured error sink", KeyErrors)
	}
	if _, present := env[KeyBufferedBody]; present {
		t.Errorf("scratch key %q leaked into the assembled environment", KeyBufferedBody)
	}
}

func TestIngestAccumulatesPartialHeads(t *testing.T) {
	full := []byte("POST /orders HTTP/1.1\r\nContent-Length: 0\r\n\r\n")
	parser := &stubParser{
		headerLen: len(full),
		fields:    map[string]any{KeyRequestMethod: "POST", KeyContentLength: int64(0)},
	}
	conn := &scriptConn{chunks: [][]byte{full[:9], full[9:30], full[30:]}}
	u := NewUnit(parser, Options{})

	env, err := u.Ingest(conn)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if conn.reads != 3 {
		t.Errorf("reads = %d, want 3", conn.reads)
	}
	if env[KeyRequestMethod] != "POST" {
		t.Errorf("method = %v, want POST", env[KeyRequestMethod])
	}
}

func TestIngestParseErrorKeepsOnlyRemoteAddr(t *testing.T) {
	parseErr := errors.New("ruined request line")
	parser := &stubParser{failErr: parseErr}
	u := NewUnit(parser, Options{})

	env, err := u.Ingest(&scriptConn{chunks: [][]byte{[]byte("junk")}})
	if !errors.Is(err, parseErr) {
		t.Fatalf("err = %v, want wrapped parse error", err)
	}
	if len(env) != 1 {
		t.Errorf("env has %d entries after parse failure, want 1: %v", len(env), env)
	}
	if env[KeyRemoteAddr] != "192.0.2.10" {
		t.Errorf("remote addr = %v, want it preserved", env[KeyRemoteAddr])
	}
	if parser.resets == 0 {
		t.Error("parser was not reset after the failure")
	}
}

func TestIngestClientGoneBeforeHeadersComplete(t *testing.T) {
	parser := &stubParser{headerLen: 100}
	conn := &scriptConn{chunks: [][]byte{[]byte("GET / HT")}}
	u := NewUnit(parser, Options{})

	env, err := u.Ingest(conn)
	if !errors.Is(err, ErrClientGone) {
		t.Fatalf("err = %v, want ErrClientGone", err)
	}
	if env[KeyRemoteAddr] != "192.0.2.10" {
		t.Errorf("remote addr missing from failed ingestion: %v", env)
	}
}

func TestIngestZeroByteReadWhileIncompleteIsFatal(t *testing.T) {
	// a Read returning (0, nil) is an exhausted stream, not progress
	parser := &stubParser{headerLen: 100}
	conn := &scriptConn{chunks: [][]byte{[]byte("GET / HTT"), {}}}
	u := NewUnit(parser, Options{})

	if _, err := u.Ingest(conn); !errors.Is(err, ErrClientGone) {
		t.Fatalf("err = %v, want ErrClientGone", err)
	}
}

func TestIngestBodyThresholdBoundary(t *testing.T) {
	const threshold = 64
	tests := []struct {
		name    string
		length  int
		spooled bool
	}{
		{"below threshold", threshold - 1, false},
		{"at threshold", threshold, true},
		{"above threshold", threshold + 1, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			head := "H:"
			body := strings.Repeat("x", tt.length)
			parser := &stubParser{
				headerLen: len(head),
				fields:    map[string]any{KeyContentLength: int64(tt.length)},
			}
			conn := &scriptConn{chunks: [][]byte{[]byte(head + body)}}
			u := NewUnit(parser, Options{SpoolThreshold: threshold, SpoolDir: t.TempDir()})

			env, err := u.Ingest(conn)
			if err != nil {
				t.Fatalf("Ingest: %v", err)
			}
			b := bodyOf(t, env)
			if b.Spooled() != tt.spooled {
				t.Errorf("Spooled() = %v, want %v for declared length %d", b.Spooled(), tt.spooled, tt.length)
			}
			if b.Size() != int64(tt.length) {
				t.Errorf("Size() = %d, want %d", b.Size(), tt.length)
			}
			u.Reset()
		})
	}
}

func TestIngestStoresExactlyDeclaredLength(t *testing.T) {
	// ten declared, fourteen sent: the extra four must be gone
	head := "HDRS"
	parser := &stubParser{
		headerLen: len(head),
		fields:    map[string]any{KeyContentLength: int64(10)},
	}
	conn := &scriptConn{chunks: [][]byte{[]byte(head + "0123456789EXTR")}}
	u := NewUnit(parser, Options{})

	env, err := u.Ingest(conn)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	b := bodyOf(t, env)
	if b.Size() != 10 {
		t.Errorf("Size() = %d, want 10", b.Size())
	}
	if got := readAll(t, b); string(got) != "0123456789" {
		t.Errorf("body = %q, want the first ten bytes only", got)
	}
}

func TestIngestBodyAcrossReadsRoundTrips(t *testing.T) {
	payload := make([]byte, 1000)
	for i := range payload {
		payload[i] = byte(i * 7)
	}
	head := "HH"
	parser := &stubParser{
		headerLen: len(head),
		fields:    map[string]any{KeyContentLength: int64(len(payload))},
	}
	conn := &scriptConn{chunks: [][]byte{
		append([]byte(head), payload[:100]...),
		payload[100:600],
		payload[600:],
	}}
	u := NewUnit(parser, Options{})

	env, err := u.Ingest(conn)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if got := readAll(t, bodyOf(t, env)); !bytes.Equal(got, payload) {
		t.Errorf("body does not round-trip: got %d bytes, want %d identical bytes", len(got), len(payload))
	}
}

func TestIngestClientGoneMidBody(t *testing.T) {
	head := "HH"
	parser := &stubParser{
		headerLen: len(head),
		fields:    map[string]any{KeyContentLength: int64(100)},
	}
	conn := &scriptConn{chunks: [][]byte{[]byte(head + "only twenty bytes...")}}
	u := NewUnit(parser, Options{})

	env, err := u.Ingest(conn)
	if !errors.Is(err, ErrClientGone) {
		t.Fatalf("err = %v, want ErrClientGone", err)
	}
	if _, present := env[KeyInput]; present {
		t.Error("failed ingestion still attached a body handle")
	}
}

func TestIngestRetriesInterruptedReads(t *testing.T) {
	raw := []byte("GET / HTTP/1.1\r\n\r\n")
	parser := &stubParser{headerLen: len(raw), fields: map[string]any{KeyRequestMethod: "GET"}}
	inner := &scriptConn{chunks: [][]byte{raw}}
	conn := &eintrConn{inner: inner, errs: []error{
		unix.EINTR,
		os.NewSyscallError("read", unix.EINTR),
	}}
	u := NewUnit(parser, Options{})

	env, err := u.Ingest(conn)
	if err != nil {
		t.Fatalf("Ingest surfaced an interrupted read: %v", err)
	}
	if env[KeyRequestMethod] != "GET" {
		t.Errorf("method = %v, want GET", env[KeyRequestMethod])
	}
}

func TestResetReleasesSpoolFile(t *testing.T) {
	dir := t.TempDir()
	head := "HH"
	body := strings.Repeat("y", 128)
	parser := &stubParser{
		headerLen: len(head),
		fields:    map[string]any{KeyContentLength: int64(len(body))},
	}
	conn := &scriptConn{chunks: [][]byte{[]byte(head + body)}}
	u := NewUnit(parser, Options{SpoolThreshold: 64, SpoolDir: dir})

	if _, err := u.Ingest(conn); err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if n := spoolEntries(t, dir); n != 1 {
		t.Fatalf("spool dir holds %d files during the request, want 1", n)
	}

	u.Reset()
	if n := spoolEntries(t, dir); n != 0 {
		t.Errorf("spool dir holds %d files after Reset, want 0", n)
	}

	// a second Reset must be harmless
	u.Reset()
	if parser.resets != 2 {
		t.Errorf("parser resets = %d, want 2", parser.resets)
	}
}

func TestUnitReuseAcrossRequests(t *testing.T) {
	head := "HH"
	parser := &stubParser{
		headerLen: len(head),
		fields:    map[string]any{KeyContentLength: int64(5)},
	}
	u := NewUnit(parser, Options{})

	env1, err := u.Ingest(&scriptConn{chunks: [][]byte{[]byte(head + "first")}})
	if err != nil {
		t.Fatalf("first Ingest: %v", err)
	}
	got1 := readAll(t, bodyOf(t, env1))
	u.Reset()

	env2, err := u.Ingest(&scriptConn{chunks: [][]byte{[]byte(head + "again")}})
	if err != nil {
		t.Fatalf("second Ingest: %v", err)
	}
	got2 := readAll(t, bodyOf(t, env2))
	u.Reset()

	if string(got1) != "first" || string(got2) != "again" {
		t.Errorf("bodies = %q, %q; want %q, %q", got1, got2, "first", "again")
	}
}

func spoolEntries(t *testing.T, dir string) int {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("reading spool dir: %v", err)
	}
	return len(entries)
}

func TestReadChunkMapsZeroNilToEOF(t *testing.T) {
	conn := &scriptConn{chunks: [][]byte{{}}}
	if _, err := readChunk(conn, make([]byte, 8)); err != io.EOF {
		t.Errorf("readChunk = %v, want io.EOF for a (0, nil) read", err)
	}
}

func TestRemoteAddrForms(t *testing.T) {
	tests := []struct {
		name string
		addr net.Addr
		want string
	}{
		{"tcp4", &net.TCPAddr{IP: net.IPv4(10, 1, 2, 3), Port: 8080}, "10.1.2.3"},
		{"tcp6", &net.TCPAddr{IP: net.ParseIP("2001:db8::1"), Port: 443}, "2001:db8::1"},
		{"unix", &net.UnixAddr{Name: "/run/inletd.sock", Net: "unix"}, RemoteAddrFallback},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := &scriptConn{addr: tt.addr}
			if got := remoteAddr(conn); got != tt.want {
				t.Errorf("remoteAddr = %q, want %q", got, tt.want)
			}
		})
	}
}
