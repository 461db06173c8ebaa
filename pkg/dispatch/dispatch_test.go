package dispatch

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"testing"

	"inletd/pkg/ingest"
)

type stubBody struct {
	*bytes.Reader
	spooled bool
}

func newStubBody(data string, spooled bool) *stubBody {
	return &stubBody{Reader: bytes.NewReader([]byte(data)), spooled: spooled}
}

func (b *stubBody) Write(p []byte) (int, error) { return 0, io.ErrClosedPipe }
func (b *stubBody) Rewind() error               { _, err := b.Seek(0, io.SeekStart); return err }
func (b *stubBody) Truncate(int64) error        { return nil }
func (b *stubBody) Size() int64                 { return int64(b.Len()) }
func (b *stubBody) Spooled() bool               { return b.spooled }
func (b *stubBody) Close() error                { return nil }

func TestJSONResponse(t *testing.T) {
	resp := JSON(201, map[string]string{"ok": "yes"})
	if resp.Status != 201 {
		t.Errorf("status = %d, want 201", resp.Status)
	}
	if resp.Header["Content-Type"] != "application/json" {
		t.Errorf("content type = %q", resp.Header["Content-Type"])
	}
	var decoded map[string]string
	if err := json.Unmarshal(resp.Body, &decoded); err != nil {
		t.Fatalf("body is not JSON: %v", err)
	}
	if decoded["ok"] != "yes" {
		t.Errorf("decoded = %v", decoded)
	}
}

func TestTextResponse(t *testing.T) {
	resp := Text(404, "gone\n")
	if resp.Status != 404 || string(resp.Body) != "gone\n" {
		t.Errorf("resp = %+v", resp)
	}
}

func TestEchoReportsBodyDigest(t *testing.T) {
	payload := "the payload under test"
	digest := sha256.Sum256([]byte(payload))

	env := map[string]any{
		ingest.KeyRequestMethod:  "POST",
		ingest.KeyRequestURI:     "/in",
		ingest.KeyServerProtocol: "HTTP/1.1",
		ingest.KeyRemoteAddr:     "203.0.113.4",
		ingest.KeyContentLength:  int64(len(payload)),
		ingest.KeyServerSoftware: "inletd/1",
		ingest.KeyInput:          newStubBody(payload, true),
	}

	resp := Echo().Serve(env)
	if resp.Status != 200 {
		t.Fatalf("status = %d, want 200", resp.Status)
	}
	var out map[string]any
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		t.Fatalf("echo body is not JSON: %v", err)
	}
	if out["method"] != "POST" || out["uri"] != "/in" {
		t.Errorf("request facts wrong: %v", out)
	}
	if out["body_bytes"] != float64(len(payload)) {
		t.Errorf("body_bytes = %v, want %d", out["body_bytes"], len(payload))
	}
	if out["body_sha256"] != hex.EncodeToString(digest[:]) {
		t.Errorf("body_sha256 = %v", out["body_sha256"])
	}
	if out["body_spooled"] != true {
		t.Errorf("body_spooled = %v, want true", out["body_spooled"])
	}
}

func TestEchoWithoutBodyHandle(t *testing.T) {
	env := map[string]any{
		ingest.KeyRequestMethod: "GET",
		ingest.KeyRequestURI:    "/",
	}
	resp := Echo().Serve(env)
	if resp.Status != 200 {
		t.Fatalf("status = %d, want 200", resp.Status)
	}
	var out map[string]any
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		t.Fatalf("echo body is not JSON: %v", err)
	}
	if out["body_bytes"] != float64(0) {
		t.Errorf("body_bytes = %v, want 0", out["body_bytes"])
	}
}
