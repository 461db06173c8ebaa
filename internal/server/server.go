// Package server owns the listening socket and the worker pool. Each
// worker carries one parser and one ingestion unit; a connection is
// handed to a worker, ingested, answered, and closed. There is no
// keep-alive: one connection, one request.
package server

import (
	"errors"
	"fmt"
	"net"
	"os"
	"runtime"
	"sync"
	"time"

	"inletd/pkg/dispatch"
	"inletd/pkg/logger"
)

type Config struct {
	// Addr is the TCP listen address, ignored when Socket is set.
	Addr string
	// Socket is a unix socket path; takes precedence over Addr.
	Socket         string
	Workers        int
	ReadTimeout    time.Duration
	ChunkSize      int
	SpoolThreshold int64
	SpoolDir       string
	MaxHeaderBytes int
	ServerSoftware string
	// AcceptRPS of 0 disables per-peer accept limiting.
	AcceptRPS   float64
	AcceptBurst int
}

type Server struct {
	cfg     Config
	handler dispatch.Handler
	ln      net.Listener
	conns   chan net.Conn
	limiter *acceptLimiter

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func New(cfg Config, h dispatch.Handler) *Server {
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	return &Server{
		cfg:     cfg,
		handler: h,
		conns:   make(chan net.Conn),
		limiter: newAcceptLimiter(cfg.AcceptRPS, cfg.AcceptBurst),
		stop:    make(chan struct{}),
	}
}

// Start binds the socket and launches the accept loop and workers.
func (s *Server) Start() error {
	ln, err := s.listen()
	if err != nil {
		return err
	}
	s.ln = ln
	logger.Info("server_listening",
		"addr", ln.Addr().String(),
		"network", ln.Addr().Network(),
		"workers", s.cfg.Workers,
	)

	for i := 0; i < s.cfg.Workers; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}
	s.wg.Add(1)
	go s.acceptLoop()
	return nil
}

// Stop closes the listener, waits for in-flight requests, and releases
// queued connections. Safe to call more than once.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		close(s.stop)
		if s.ln != nil {
			s.ln.Close()
		}
		if s.limiter != nil {
			s.limiter.stopCleanup()
		}
	})
	s.wg.Wait()

	for {
		select {
		case conn := <-s.conns:
			conn.Close()
		default:
			if s.cfg.Socket != "" {
				os.Remove(s.cfg.Socket)
			}
			return
		}
	}
}

// Addr reports the bound listen address, usable once Start returned.
func (s *Server) Addr() string {
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

func (s *Server) listen() (net.Listener, error) {
	if s.cfg.Socket != "" {
		// a stale socket file from a dead process blocks the bind
		if err := os.Remove(s.cfg.Socket); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("remove stale socket %s: %w", s.cfg.Socket, err)
		}
		ln, err := net.Listen("unix", s.cfg.Socket)
		if err != nil {
			return nil, fmt.Errorf("listen on socket %s: %w", s.cfg.Socket, err)
		}
		return ln, nil
	}
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", s.cfg.Addr, err)
	}
	return ln, nil
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			select {
			case <-s.stop:
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			logger.Warn("accept_failed", "error", err.Error())
			continue
		}

		if s.limiter != nil && !s.limiter.allow(peerKey(conn.RemoteAddr())) {
			metricRejected.Inc()
			_ = writeResponse(conn, dispatch.Text(429, "too many connections\n"), s.cfg.ServerSoftware)
			conn.Close()
			continue
		}
		metricAccepted.Inc()

		select {
		case s.conns <- conn:
		case <-s.stop:
			conn.Close()
			return
		}
	}
}

// peerKey is the limiter identity for a connection: the bare IP, or the
// whole address string for non-TCP peers.
func peerKey(addr net.Addr) string {
	if addr == nil {
		return ""
	}
	if host, _, err := net.SplitHostPort(addr.String()); err == nil {
		return host
	}
	return addr.String()
}
