package ingest

import (
	"errors"
	"io"
	"net"

	"golang.org/x/sys/unix"
)

// Conn is the slice of net.Conn the ingestion path needs. Reads must
// block until at least one byte arrives or the stream ends.
type Conn interface {
	io.Reader
	RemoteAddr() net.Addr
}

// readChunk performs one blocking read, retrying reads interrupted by a
// signal so callers never observe EINTR. Bytes are handed back before
// any deferred error, and a bare (0, nil) result is reported as io.EOF
// so every exhausted stream looks the same.
func readChunk(r io.Reader, buf []byte) (int, error) {
	for {
		n, err := r.Read(buf)
		if n > 0 {
			return n, nil
		}
		if err == nil {
			return 0, io.EOF
		}
		if errors.Is(err, unix.EINTR) {
			continue
		}
		return 0, err
	}
}

// remoteAddr extracts the peer IP for the environment. Unix-domain
// peers carry no usable address and report the loopback fallback, the
// same value a local proxy hop would present.
func remoteAddr(c Conn) string {
	addr := c.RemoteAddr()
	if addr == nil {
		return RemoteAddrFallback
	}
	switch a := addr.(type) {
	case *net.TCPAddr:
		return a.IP.String()
	case *net.UnixAddr:
		return RemoteAddrFallback
	}
	s := addr.String()
	if host, _, err := net.SplitHostPort(s); err == nil && host != "" {
		return host
	}
	if s == "" {
		return RemoteAddrFallback
	}
	return s
}
