// Package journal keeps a small on-disk record of ingested requests in
// a pebble store. It backs the operational API and is pruned by the
// janitor; losing it never affects request handling.
package journal

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/pebble"

	"inletd/pkg/ingest"
	"inletd/pkg/logger"
)

// Key notation:
//
//	req:<ts>:<seq>   one ingested request
//
// <ts> is the receive time as zero-padded unix nanoseconds, <seq> a
// zero-padded per-process counter that keeps same-nanosecond keys
// distinct. Lexicographic order over keys is receive order.
const (
	keyPrefix = "req:"
	keyFormat = "req:%020d:%06d"
)

// Entry is one journaled request summary.
type Entry struct {
	ID            string    `json:"id"`
	ReceivedAt    time.Time `json:"received_at"`
	RemoteAddr    string    `json:"remote_addr"`
	Method        string    `json:"method"`
	URI           string    `json:"uri"`
	Protocol      string    `json:"protocol"`
	ContentLength int64     `json:"content_length"`
	BodyBytes     int64     `json:"body_bytes"`
	Spooled       bool      `json:"spooled"`
	Outcome       string    `json:"outcome"`
	Status        int       `json:"status,omitempty"`
	DurationMS    int64     `json:"duration_ms"`
	Error         string    `json:"error,omitempty"`
}

var (
	db         *pebble.DB
	syncWrites bool
	seq        atomic.Uint64
)

// Open initializes the package store at path. Synced writes trade
// append latency for durability across power loss.
func Open(path string, synced bool) error {
	d, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return fmt.Errorf("open journal at %s: %w", path, err)
	}
	db = d
	syncWrites = synced
	logger.Info("journal_opened", "path", path, "sync", synced)
	return nil
}

// Close flushes and closes the store. Safe when Open never ran.
func Close() error {
	if db == nil {
		return nil
	}
	err := db.Close()
	db = nil
	return err
}

// Enabled reports whether the journal is open.
func Enabled() bool { return db != nil }

func writeOpt() *pebble.WriteOptions {
	if syncWrites {
		return pebble.Sync
	}
	return pebble.NoSync
}

// EntryFromEnv summarizes an assembled environment. It reads only
// scalar entries, never the body handle.
func EntryFromEnv(env map[string]any, outcome string) Entry {
	e := Entry{
		ReceivedAt: time.Now().UTC(),
		Outcome:    outcome,
	}
	e.RemoteAddr, _ = env[ingest.KeyRemoteAddr].(string)
	e.Method, _ = env[ingest.KeyRequestMethod].(string)
	e.URI, _ = env[ingest.KeyRequestURI].(string)
	e.Protocol, _ = env[ingest.KeyServerProtocol].(string)
	e.ContentLength, _ = env[ingest.KeyContentLength].(int64)
	if body, ok := env[ingest.KeyInput].(ingest.Body); ok {
		e.BodyBytes = body.Size()
		e.Spooled = body.Spooled()
	}
	return e
}

// Append writes one entry and returns its assigned id. A nil store
// drops the entry silently so callers never gate on journaling.
func Append(e Entry) (string, error) {
	if db == nil {
		return "", nil
	}
	ts := e.ReceivedAt
	if ts.IsZero() {
		ts = time.Now().UTC()
		e.ReceivedAt = ts
	}
	e.ID = fmt.Sprintf(keyFormat, ts.UnixNano(), seq.Add(1)%1000000)
	val, err := json.Marshal(e)
	if err != nil {
		return "", fmt.Errorf("encode journal entry: %w", err)
	}
	if err := db.Set([]byte(e.ID), val, writeOpt()); err != nil {
		return "", fmt.Errorf("append journal entry: %w", err)
	}
	metricAppends.Inc()
	return e.ID, nil
}

// Get looks up one entry by id.
func Get(id string) (Entry, bool, error) {
	if db == nil {
		return Entry{}, false, nil
	}
	val, closer, err := db.Get([]byte(id))
	if errors.Is(err, pebble.ErrNotFound) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, err
	}
	defer closer.Close()
	var e Entry
	if err := json.Unmarshal(val, &e); err != nil {
		return Entry{}, false, fmt.Errorf("decode journal entry %s: %w", id, err)
	}
	return e, true, nil
}

// Recent returns up to limit entries, newest first.
func Recent(limit int) ([]Entry, error) {
	if db == nil || limit <= 0 {
		return nil, nil
	}
	iter, err := db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(keyPrefix),
		UpperBound: keyUpperBound([]byte(keyPrefix)),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	out := make([]Entry, 0, limit)
	for ok := iter.Last(); ok && len(out) < limit; ok = iter.Prev() {
		var e Entry
		if err := json.Unmarshal(iter.Value(), &e); err != nil {
			logger.Warn("journal_decode_failed", "key", string(iter.Key()), "error", err.Error())
			continue
		}
		out = append(out, e)
	}
	return out, iter.Error()
}

// PruneBefore drops every entry received before cutoff and returns the
// number removed.
func PruneBefore(cutoff time.Time) (int, error) {
	if db == nil {
		return 0, nil
	}
	end := []byte(fmt.Sprintf(keyFormat, cutoff.UnixNano(), 0))
	iter, err := db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(keyPrefix),
		UpperBound: end,
	})
	if err != nil {
		return 0, err
	}
	removed := 0
	for ok := iter.First(); ok; ok = iter.Next() {
		removed++
	}
	if err := iter.Close(); err != nil {
		return 0, err
	}
	if removed == 0 {
		return 0, nil
	}
	if err := db.DeleteRange([]byte(keyPrefix), end, writeOpt()); err != nil {
		return 0, fmt.Errorf("prune journal: %w", err)
	}
	return removed, nil
}

// keyUpperBound is the smallest key greater than every key carrying the
// prefix.
func keyUpperBound(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}
