package ingest

import (
	"errors"
	"io"
	"os"
	"testing"
)

func TestBodyImplementations(t *testing.T) {
	impls := []struct {
		name string
		make func(t *testing.T) Body
	}{
		{"memory", func(t *testing.T) Body { return newMemoryBody() }},
		{"spool", func(t *testing.T) Body {
			b, err := newSpoolBody(t.TempDir())
			if err != nil {
				t.Fatalf("newSpoolBody: %v", err)
			}
			return b
		}},
	}
	for _, impl := range impls {
		t.Run(impl.name, func(t *testing.T) {
			b := impl.make(t)

			if _, err := b.Write([]byte("hello world")); err != nil {
				t.Fatalf("Write: %v", err)
			}
			if b.Size() != 11 {
				t.Errorf("Size = %d, want 11", b.Size())
			}

			if err := b.Rewind(); err != nil {
				t.Fatalf("Rewind: %v", err)
			}
			got, err := io.ReadAll(b)
			if err != nil {
				t.Fatalf("ReadAll: %v", err)
			}
			if string(got) != "hello world" {
				t.Errorf("read %q, want %q", got, "hello world")
			}

			if err := b.Truncate(5); err != nil {
				t.Fatalf("Truncate(5): %v", err)
			}
			if err := b.Rewind(); err != nil {
				t.Fatalf("Rewind after truncate: %v", err)
			}
			got, err = io.ReadAll(b)
			if err != nil {
				t.Fatalf("ReadAll after truncate: %v", err)
			}
			if string(got) != "hello" {
				t.Errorf("read %q after truncate, want %q", got, "hello")
			}
			if b.Size() != 5 {
				t.Errorf("Size = %d after truncate, want 5", b.Size())
			}

			// truncating past the stored length must not grow it
			if err := b.Truncate(100); err != nil {
				t.Fatalf("Truncate(100): %v", err)
			}
			if b.Size() != 5 {
				t.Errorf("Size = %d after oversize truncate, want 5", b.Size())
			}

			if err := b.Truncate(-1); err != nil {
				t.Fatalf("Truncate(-1): %v", err)
			}
			if b.Size() != 0 {
				t.Errorf("Size = %d after negative truncate, want 0", b.Size())
			}

			if err := b.Close(); err != nil {
				t.Fatalf("Close: %v", err)
			}
			if err := b.Close(); err != nil {
				t.Errorf("second Close: %v", err)
			}
			if _, err := b.Read(make([]byte, 1)); !errors.Is(err, os.ErrClosed) {
				t.Errorf("Read after Close = %v, want os.ErrClosed", err)
			}
			if _, err := b.Write([]byte("x")); !errors.Is(err, os.ErrClosed) {
				t.Errorf("Write after Close = %v, want os.ErrClosed", err)
			}
		})
	}
}

func TestSpoolBodyCloseRemovesFile(t *testing.T) {
	dir := t.TempDir()
	b, err := newSpoolBody(dir)
	if err != nil {
		t.Fatalf("newSpoolBody: %v", err)
	}
	if _, err := b.Write([]byte("spooled")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Fatalf("spool dir holds %d files, want 1", len(entries))
	}
	if err := b.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	entries, _ = os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("spool dir holds %d files after Close, want 0", len(entries))
	}
}

func TestAssembleNeverOverwrites(t *testing.T) {
	env := map[string]any{
		KeyMultithread:    false,
		KeyServerSoftware: "custom/1",
	}
	body := newMemoryBody()
	defer body.Close()

	assemble(env, body, Options{ServerSoftware: "inletd/0"})

	if env[KeyMultithread] != false {
		t.Errorf("existing %q entry was overwritten", KeyMultithread)
	}
	if env[KeyServerSoftware] != "custom/1" {
		t.Errorf("existing %q entry was overwritten", KeyServerSoftware)
	}
	if env[KeyInput] != Body(body) {
		t.Errorf("env[%q] is not the supplied body", KeyInput)
	}
	if env[KeyVersion] != EnvVersion {
		t.Errorf("env[%q] = %v, want %v", KeyVersion, env[KeyVersion], EnvVersion)
	}
}
