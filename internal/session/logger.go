package session

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
)

// Logger defines the interface for session event logging.
type Logger interface {
	Log(event Event) error
	Close() error
}

// JSONLogger writes events as newline-delimited JSON (NDJSON). Paths ending
// in .zst are zstd compressed.
type JSONLogger struct {
	mu      sync.Mutex
	closers []io.Closer
	enc     *json.Encoder
	path    string
}

// NewJSONLogger creates a logger that writes NDJSON to the given path.
// Parent directories are created automatically.
func NewJSONLogger(path string) (*JSONLogger, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating session log directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("opening session log: %w", err)
	}

	l := &JSONLogger{path: path, closers: []io.Closer{f}}
	if strings.HasSuffix(path, ".zst") {
		zw, err := zstd.NewWriter(f)
		if err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("opening zstd session log: %w", err)
		}
		// The encoder must be flushed before the file is closed.
		l.closers = []io.Closer{zw, f}
		l.enc = json.NewEncoder(zw)
	} else {
		l.enc = json.NewEncoder(f)
	}
	return l, nil
}

// Log writes a single event as one JSON line.
func (l *JSONLogger) Log(event Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.enc.Encode(event)
}

// Close flushes and closes the underlying file.
func (l *JSONLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	var first error
	for _, c := range l.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Path returns the file path of the session log.
func (l *JSONLogger) Path() string {
	return l.path
}

// MemoryLogger keeps events in memory so callers can return them inline.
type MemoryLogger struct {
	mu     sync.Mutex
	events []Event
}

// Log appends the event.
func (m *MemoryLogger) Log(event Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

// Close is a no-op.
func (m *MemoryLogger) Close() error { return nil }

// Events returns a copy of the recorded events.
func (m *MemoryLogger) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Event(nil), m.events...)
}

// NopLogger discards all events. Useful as a default when logging is disabled.
type NopLogger struct{}

// Log is a no-op.
func (NopLogger) Log(Event) error { return nil }

// Close is a no-op.
func (NopLogger) Close() error { return nil }

// MultiLogger fans every event out to several loggers.
type MultiLogger []Logger

// Log writes to every logger and returns the first error.
func (m MultiLogger) Log(event Event) error {
	var first error
	for _, l := range m {
		if err := l.Log(event); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Close closes every logger and returns the first error.
func (m MultiLogger) Close() error {
	var first error
	for _, l := range m {
		if err := l.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// DefaultLogPath returns a timestamped session log path inside dir.
func DefaultLogPath(dir, sessionID string) string {
	ts := time.Now().UTC().Format("20060102T150405Z")
	if sessionID != "" {
		return filepath.Join(dir, fmt.Sprintf("%s-%s-session.jsonl", ts, sessionID))
	}
	return filepath.Join(dir, fmt.Sprintf("%s-session.jsonl", ts))
}
