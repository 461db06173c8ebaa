package server

import (
	"errors"
	"net"
	"time"

	"inletd/pkg/dispatch"
	"inletd/pkg/httparse"
	"inletd/pkg/ingest"
	"inletd/pkg/journal"
	"inletd/pkg/logger"
)

func (s *Server) worker(id int) {
	defer s.wg.Done()
	unit := ingest.NewUnit(httparse.New(s.cfg.MaxHeaderBytes), ingest.Options{
		ChunkSize:      s.cfg.ChunkSize,
		SpoolThreshold: s.cfg.SpoolThreshold,
		SpoolDir:       s.cfg.SpoolDir,
		ServerSoftware: s.cfg.ServerSoftware,
	})
	logger.Debug("worker_started", "worker", id)
	for {
		select {
		case conn := <-s.conns:
			s.handle(unit, conn)
		case <-s.stop:
			return
		}
	}
}

func (s *Server) handle(unit *ingest.Unit, conn net.Conn) {
	metricActive.Inc()
	defer metricActive.Dec()
	defer conn.Close()
	defer unit.Reset()

	if s.cfg.ReadTimeout > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
	}

	started := time.Now()
	env, err := unit.Ingest(conn)
	if err != nil {
		s.finishError(conn, env, err, started)
		return
	}

	resp := s.handler.Serve(env)
	werr := writeResponse(conn, resp, s.cfg.ServerSoftware)

	// the ingestion succeeded either way; a write failure is noted on
	// the entry rather than changing its outcome
	entry := journal.EntryFromEnv(env, ingest.OutcomeOK)
	entry.Status = resp.Status
	entry.DurationMS = time.Since(started).Milliseconds()
	if werr != nil {
		entry.Error = werr.Error()
	}
	appendJournal(entry)

	if werr != nil {
		logger.Debug("response_write_failed",
			"remote", env[ingest.KeyRemoteAddr],
			"error", werr.Error(),
		)
		return
	}
	metricResponses.WithLabelValues(statusClass(resp.Status)).Inc()
	logger.Debug("request_served",
		"method", str(env[ingest.KeyRequestMethod]),
		"uri", str(env[ingest.KeyRequestURI]),
		"remote", str(env[ingest.KeyRemoteAddr]),
		"status", resp.Status,
	)
}

// finishError answers what can still be answered. A vanished client
// gets nothing, a malformed request gets a 400 with the offending head
// logged, anything else gets a best-effort 500. Every outcome lands in
// the journal.
func (s *Server) finishError(conn net.Conn, env map[string]any, err error, started time.Time) {
	remote := str(env[ingest.KeyRemoteAddr])

	if errors.Is(err, ingest.ErrClientGone) {
		logger.Debug("client_gone", "remote", remote)
		s.journalError(env, ingest.OutcomeClientGone, 0, err, started)
		return
	}

	var pe *httparse.ParseError
	if errors.As(err, &pe) {
		logger.Warn("request_parse_failed",
			"remote", remote,
			"error", pe.Error(),
			"head", logger.Preview(pe.Head, headLogMax),
			"env", logger.EnvSummary(env, headLogMax),
		)
		_ = writeResponse(conn, dispatch.Text(400, "bad request\n"), s.cfg.ServerSoftware)
		metricResponses.WithLabelValues("4xx").Inc()
		s.journalError(env, ingest.OutcomeParseError, 400, err, started)
		return
	}

	logger.Warn("ingest_failed", "remote", remote, "error", err.Error())
	_ = writeResponse(conn, dispatch.Text(500, "internal error\n"), s.cfg.ServerSoftware)
	metricResponses.WithLabelValues("5xx").Inc()
	s.journalError(env, ingest.OutcomeIOError, 500, err, started)
}

func (s *Server) journalError(env map[string]any, outcome string, status int, err error, started time.Time) {
	entry := journal.EntryFromEnv(env, outcome)
	entry.Status = status
	entry.DurationMS = time.Since(started).Milliseconds()
	entry.Error = err.Error()
	appendJournal(entry)
}

func appendJournal(entry journal.Entry) {
	if !journal.Enabled() {
		return
	}
	if _, err := journal.Append(entry); err != nil {
		logger.Warn("journal_append_failed", "error", err.Error())
	}
}

const headLogMax = 160

func str(v any) string {
	s, _ := v.(string)
	return s
}
