package journal

import (
	"io"
	"path/filepath"
	"testing"
	"time"

	"inletd/pkg/ingest"
)

func openTestJournal(t *testing.T) {
	t.Helper()
	if err := Open(filepath.Join(t.TempDir(), "journal"), false); err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() {
		if err := Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
}

func TestAppendAndGet(t *testing.T) {
	openTestJournal(t)

	in := Entry{
		RemoteAddr:    "198.51.100.2",
		Method:        "POST",
		URI:           "/orders?src=cli",
		Protocol:      "HTTP/1.1",
		ContentLength: 42,
		BodyBytes:     42,
		Outcome:       "ok",
	}
	id, err := Append(in)
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if id == "" {
		t.Fatal("Append returned an empty id")
	}

	got, found, err := Get(id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !found {
		t.Fatalf("entry %s not found", id)
	}
	if got.Method != in.Method || got.URI != in.URI || got.ContentLength != in.ContentLength {
		t.Errorf("Get returned %+v, want fields of %+v", got, in)
	}
	if got.ID != id {
		t.Errorf("stored id = %q, want %q", got.ID, id)
	}
	if got.ReceivedAt.IsZero() {
		t.Error("ReceivedAt was not assigned")
	}
}

func TestGetMissing(t *testing.T) {
	openTestJournal(t)
	if _, found, err := Get("req:00000000000000000000:000000"); err != nil || found {
		t.Errorf("Get missing = (found=%v, err=%v), want (false, nil)", found, err)
	}
}

func TestRecentNewestFirst(t *testing.T) {
	openTestJournal(t)

	base := time.Now().UTC().Add(-time.Minute)
	for i, m := range []string{"GET", "PUT", "DELETE"} {
		_, err := Append(Entry{Method: m, ReceivedAt: base.Add(time.Duration(i) * time.Second)})
		if err != nil {
			t.Fatalf("Append %s: %v", m, err)
		}
	}

	got, err := Recent(2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Recent returned %d entries, want 2", len(got))
	}
	if got[0].Method != "DELETE" || got[1].Method != "PUT" {
		t.Errorf("Recent order = %s, %s; want DELETE, PUT", got[0].Method, got[1].Method)
	}
}

func TestPruneBefore(t *testing.T) {
	openTestJournal(t)

	now := time.Now().UTC()
	stale := Entry{Method: "GET", ReceivedAt: now.Add(-2 * time.Hour)}
	fresh := Entry{Method: "POST", ReceivedAt: now.Add(-30 * time.Minute)}
	if _, err := Append(stale); err != nil {
		t.Fatalf("Append stale: %v", err)
	}
	freshID, err := Append(fresh)
	if err != nil {
		t.Fatalf("Append fresh: %v", err)
	}

	removed, err := PruneBefore(now.Add(-time.Hour))
	if err != nil {
		t.Fatalf("PruneBefore: %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}

	if _, found, _ := Get(freshID); !found {
		t.Error("prune removed an entry newer than the cutoff")
	}
	left, err := Recent(10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(left) != 1 || left[0].Method != "POST" {
		t.Errorf("entries after prune = %+v, want only the fresh POST", left)
	}
}

func TestClosedJournalIsInert(t *testing.T) {
	if Enabled() {
		t.Fatal("journal reports enabled before Open")
	}
	if id, err := Append(Entry{Method: "GET"}); id != "" || err != nil {
		t.Errorf("Append on closed journal = (%q, %v), want empty and nil", id, err)
	}
	if got, err := Recent(5); got != nil || err != nil {
		t.Errorf("Recent on closed journal = (%v, %v), want (nil, nil)", got, err)
	}
	if n, err := PruneBefore(time.Now()); n != 0 || err != nil {
		t.Errorf("PruneBefore on closed journal = (%d, %v), want (0, nil)", n, err)
	}
}

type fakeBody struct {
	size    int64
	spooled bool
}

func (f fakeBody) Read(p []byte) (int, error)  { return 0, io.EOF }
func (f fakeBody) Write(p []byte) (int, error) { return len(p), nil }
func (f fakeBody) Rewind() error               { return nil }
func (f fakeBody) Truncate(int64) error        { return nil }
func (f fakeBody) Size() int64                 { return f.size }
func (f fakeBody) Spooled() bool               { return f.spooled }
func (f fakeBody) Close() error                { return nil }

func TestEntryFromEnv(t *testing.T) {
	env := map[string]any{
		ingest.KeyRemoteAddr:     "203.0.113.9",
		ingest.KeyRequestMethod:  "PUT",
		ingest.KeyRequestURI:     "/blob/7",
		ingest.KeyServerProtocol: "HTTP/1.0",
		ingest.KeyContentLength:  int64(2048),
		ingest.KeyInput:          fakeBody{size: 2048, spooled: true},
	}

	e := EntryFromEnv(env, "ok")
	if e.RemoteAddr != "203.0.113.9" || e.Method != "PUT" || e.URI != "/blob/7" {
		t.Errorf("scalars not carried over: %+v", e)
	}
	if e.ContentLength != 2048 || e.BodyBytes != 2048 || !e.Spooled {
		t.Errorf("body facts not carried over: %+v", e)
	}
	if e.Outcome != "ok" {
		t.Errorf("outcome = %q, want ok", e.Outcome)
	}
	if e.ReceivedAt.IsZero() {
		t.Error("ReceivedAt not stamped")
	}
}
