package ingest

import (
	"fmt"
	"io"
	"os"

	"github.com/valyala/bytebufferpool"
)

// Body is a rewound, readable request body. Small bodies live in pooled
// memory, large ones in an unlinked spool file; both present the same
// handle so downstream code never cares which.
type Body interface {
	io.Reader
	io.Writer
	// Rewind moves the read position back to the first byte.
	Rewind() error
	// Truncate discards everything past size.
	Truncate(size int64) error
	// Size reports the stored length in bytes.
	Size() int64
	// Spooled reports whether the body is backed by a spool file.
	Spooled() bool
	// Close releases the backing storage. Safe to call twice.
	Close() error
}

// Max buffer size for pooling. Larger ones are not pooled.
var maxPooledBody = 256 * 1024

type memoryBody struct {
	buf *bytebufferpool.ByteBuffer
	off int64
}

func newMemoryBody() *memoryBody {
	return &memoryBody{buf: bytebufferpool.Get()}
}

func (b *memoryBody) Read(p []byte) (int, error) {
	if b.buf == nil {
		return 0, os.ErrClosed
	}
	if b.off >= int64(len(b.buf.B)) {
		return 0, io.EOF
	}
	n := copy(p, b.buf.B[b.off:])
	b.off += int64(n)
	return n, nil
}

func (b *memoryBody) Write(p []byte) (int, error) {
	if b.buf == nil {
		return 0, os.ErrClosed
	}
	return b.buf.Write(p)
}

func (b *memoryBody) Rewind() error {
	if b.buf == nil {
		return os.ErrClosed
	}
	b.off = 0
	return nil
}

func (b *memoryBody) Truncate(size int64) error {
	if b.buf == nil {
		return os.ErrClosed
	}
	if size < 0 {
		size = 0
	}
	if size < int64(len(b.buf.B)) {
		b.buf.B = b.buf.B[:size]
	}
	if b.off > size {
		b.off = size
	}
	return nil
}

func (b *memoryBody) Size() int64 {
	if b.buf == nil {
		return 0
	}
	return int64(len(b.buf.B))
}

func (b *memoryBody) Spooled() bool { return false }

func (b *memoryBody) Close() error {
	if b.buf != nil {
		if cap(b.buf.B) <= maxPooledBody {
			bytebufferpool.Put(b.buf)
		}
		b.buf = nil
	}
	return nil
}

type spoolBody struct {
	f    *os.File
	size int64
}

func newSpoolBody(dir string) (*spoolBody, error) {
	f, err := os.CreateTemp(dir, "body-*.tmp")
	if err != nil {
		return nil, fmt.Errorf("create spool file: %w", err)
	}
	return &spoolBody{f: f}, nil
}

func (b *spoolBody) Read(p []byte) (int, error) {
	if b.f == nil {
		return 0, os.ErrClosed
	}
	return b.f.Read(p)
}

func (b *spoolBody) Write(p []byte) (int, error) {
	if b.f == nil {
		return 0, os.ErrClosed
	}
	n, err := b.f.Write(p)
	b.size += int64(n)
	return n, err
}

func (b *spoolBody) Rewind() error {
	if b.f == nil {
		return os.ErrClosed
	}
	_, err := b.f.Seek(0, io.SeekStart)
	return err
}

func (b *spoolBody) Truncate(size int64) error {
	if b.f == nil {
		return os.ErrClosed
	}
	if size < 0 {
		size = 0
	}
	if err := b.f.Truncate(size); err != nil {
		return err
	}
	if size < b.size {
		b.size = size
	}
	return nil
}

func (b *spoolBody) Size() int64 {
	return b.size
}

func (b *spoolBody) Spooled() bool { return true }

func (b *spoolBody) Close() error {
	if b.f == nil {
		return nil
	}
	name := b.f.Name()
	err := b.f.Close()
	b.f = nil
	if rmErr := os.Remove(name); err == nil {
		err = rmErr
	}
	return err
}

// materialize drains the declared request body into storage chosen once,
// before any socket read, from the declared length alone: under the
// spool threshold the body stays in pooled memory, at or over it the
// body goes to a spool file. Bytes the header parse overread are written
// first, then the socket is drained in whole chunks, so the store may
// briefly hold more than the declared length; the final truncate pins it
// to exactly that length. Any failure discards the partial body and is
// reported to the caller.
func materialize(conn Conn, env map[string]any, buf []byte, opts Options) (Body, error) {
	captured, _ := env[KeyBufferedBody].([]byte)
	delete(env, KeyBufferedBody)

	length, _ := env[KeyContentLength].(int64)
	if length < 0 {
		length = 0
	}

	var body Body
	if length >= opts.SpoolThreshold {
		sb, err := newSpoolBody(opts.SpoolDir)
		if err != nil {
			return nil, err
		}
		body = sb
		metricBodiesSpooled.Inc()
	} else {
		body = newMemoryBody()
		metricBodiesMemory.Inc()
	}

	if len(captured) > 0 {
		if _, err := body.Write(captured); err != nil {
			discardBody(body)
			return nil, fmt.Errorf("write captured body bytes: %w", err)
		}
	}

	remaining := length - int64(len(captured))
	for remaining > 0 {
		n, err := readChunk(conn, buf)
		if err != nil {
			discardBody(body)
			if err == io.EOF {
				return nil, ErrClientGone
			}
			return nil, fmt.Errorf("read body: %w", err)
		}
		// the whole chunk is stored even when it runs past the declared
		// length; the truncate below discards the excess
		if _, err := body.Write(buf[:n]); err != nil {
			discardBody(body)
			return nil, fmt.Errorf("write body: %w", err)
		}
		remaining -= int64(n)
		metricBodyBytes.Add(float64(n))
	}

	if err := body.Rewind(); err != nil {
		discardBody(body)
		return nil, fmt.Errorf("rewind body: %w", err)
	}
	if err := body.Truncate(length); err != nil {
		discardBody(body)
		return nil, fmt.Errorf("truncate body: %w", err)
	}
	return body, nil
}

// discardBody empties and releases a half-built body. Errors are
// ignored; the caller is already on a failure path.
func discardBody(b Body) {
	_ = b.Truncate(0)
	_ = b.Close()
}
