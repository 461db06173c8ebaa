package server

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"inletd/pkg/dispatch"
)

func startEcho(t *testing.T, cfg Config) *Server {
	t.Helper()
	if cfg.Addr == "" && cfg.Socket == "" {
		cfg.Addr = "127.0.0.1:0"
	}
	if cfg.Workers == 0 {
		cfg.Workers = 2
	}
	if cfg.SpoolDir == "" {
		cfg.SpoolDir = t.TempDir()
	}
	if cfg.ServerSoftware == "" {
		cfg.ServerSoftware = "inletd/test"
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 2 * time.Second
	}
	s := New(cfg, dispatch.Echo())
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(s.Stop)
	return s
}

// roundTrip writes one raw request and returns status line, header
// block, and body of the response.
func roundTrip(t *testing.T, network, addr, raw string) (string, string, []byte) {
	t.Helper()
	conn, err := net.Dial(network, addr)
	if err != nil {
		t.Fatalf("dial %s %s: %v", network, addr, err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(5 * time.Second))

	if _, err := conn.Write([]byte(raw)); err != nil {
		t.Fatalf("write request: %v", err)
	}
	all, err := io.ReadAll(conn)
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	head, body, found := strings.Cut(string(all), "\r\n\r\n")
	if !found {
		t.Fatalf("response has no header terminator: %q", all)
	}
	statusLine, headers, _ := strings.Cut(head, "\r\n")
	return statusLine, headers, []byte(body)
}

func TestEchoOverTCP(t *testing.T) {
	s := startEcho(t, Config{})

	payload := "abc"
	digest := sha256.Sum256([]byte(payload))
	raw := fmt.Sprintf("POST /in HTTP/1.1\r\nHost: t\r\nContent-Length: %d\r\n\r\n%s", len(payload), payload)

	status, headers, body := roundTrip(t, "tcp", s.Addr(), raw)
	if !strings.Contains(status, " 200 ") {
		t.Fatalf("status line = %q, want 200", status)
	}
	if !strings.Contains(headers, "Connection: close") {
		t.Error("response is missing Connection: close")
	}
	if !strings.Contains(headers, "Server: inletd/test") {
		t.Error("response is missing the Server header")
	}

	var echo map[string]any
	if err := json.Unmarshal(body, &echo); err != nil {
		t.Fatalf("echo body is not JSON: %v\n%s", err, body)
	}
	if echo["method"] != "POST" || echo["uri"] != "/in" {
		t.Errorf("echo facts wrong: %v", echo)
	}
	if echo["body_bytes"] != float64(len(payload)) {
		t.Errorf("body_bytes = %v, want %d", echo["body_bytes"], len(payload))
	}
	if echo["body_sha256"] != hex.EncodeToString(digest[:]) {
		t.Errorf("body_sha256 = %v", echo["body_sha256"])
	}
}

func TestMalformedRequestGets400(t *testing.T) {
	s := startEcho(t, Config{})
	status, _, _ := roundTrip(t, "tcp", s.Addr(), "GET /\r\n\r\n")
	if !strings.Contains(status, " 400 ") {
		t.Errorf("status line = %q, want 400", status)
	}
}

func TestEchoOverUnixSocket(t *testing.T) {
	sock := filepath.Join(t.TempDir(), "inletd.sock")
	startEcho(t, Config{Socket: sock})

	status, _, body := roundTrip(t, "unix", sock, "GET /ping HTTP/1.1\r\n\r\n")
	if !strings.Contains(status, " 200 ") {
		t.Fatalf("status line = %q, want 200", status)
	}
	var echo map[string]any
	if err := json.Unmarshal(body, &echo); err != nil {
		t.Fatalf("echo body is not JSON: %v", err)
	}
	// unix peers carry no address and fall back to loopback
	if echo["remote_addr"] != "127.0.0.1" {
		t.Errorf("remote_addr = %v, want 127.0.0.1", echo["remote_addr"])
	}
}

func TestSequentialRequestsReuseWorkers(t *testing.T) {
	s := startEcho(t, Config{Workers: 1})
	for i := 0; i < 5; i++ {
		payload := strings.Repeat("z", i*100)
		raw := fmt.Sprintf("POST /n%d HTTP/1.1\r\nContent-Length: %d\r\n\r\n%s", i, len(payload), payload)
		status, _, body := roundTrip(t, "tcp", s.Addr(), raw)
		if !strings.Contains(status, " 200 ") {
			t.Fatalf("request %d: status %q", i, status)
		}
		var echo map[string]any
		if err := json.Unmarshal(body, &echo); err != nil {
			t.Fatalf("request %d: bad body: %v", i, err)
		}
		if echo["body_bytes"] != float64(len(payload)) {
			t.Errorf("request %d: body_bytes = %v, want %d", i, echo["body_bytes"], len(payload))
		}
	}
}

func TestStopIsIdempotent(t *testing.T) {
	s := startEcho(t, Config{})
	s.Stop()
	s.Stop()
}

func TestAcceptLimiter(t *testing.T) {
	p := newAcceptLimiter(1, 2)
	defer p.stopCleanup()

	if !p.allow("10.0.0.1") || !p.allow("10.0.0.1") {
		t.Fatal("burst capacity not honored")
	}
	if p.allow("10.0.0.1") {
		t.Error("third immediate connection allowed past a burst of 2")
	}
	if !p.allow("10.0.0.2") {
		t.Error("a different peer shares the first peer's bucket")
	}
}

func TestAcceptLimiterDisabled(t *testing.T) {
	if newAcceptLimiter(0, 5) != nil {
		t.Error("zero rps should disable the limiter")
	}
}

func TestPeerKey(t *testing.T) {
	tests := []struct {
		addr net.Addr
		want string
	}{
		{&net.TCPAddr{IP: net.IPv4(10, 0, 0, 9), Port: 1234}, "10.0.0.9"},
		{&net.UnixAddr{Name: "/run/x.sock", Net: "unix"}, "/run/x.sock"},
		{nil, ""},
	}
	for _, tt := range tests {
		if got := peerKey(tt.addr); got != tt.want {
			t.Errorf("peerKey(%v) = %q, want %q", tt.addr, got, tt.want)
		}
	}
}
