// Package runlog provides the append-only per-run log file written by the
// iteration controller. One Log is constructed per run and passed explicitly
// to everything that records run events, so concurrent runs never share a
// file handle.
package runlog

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Log appends timestamped lines to a single file.
type Log struct {
	path string
	file *os.File
	now  func() time.Time
	mu   sync.Mutex
}

// Open opens (or creates) the log file at path for appending.
func Open(path string) (*Log, error) {
	if path == "" {
		return nil, fmt.Errorf("log path is required")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve log path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(abs, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return &Log{path: abs, file: f, now: time.Now}, nil
}

// Path returns the absolute path of the underlying file.
func (l *Log) Path() string {
	return l.path
}

// Printf appends one formatted line prefixed with an ISO-8601 timestamp.
// Write errors are reported so callers can decide whether to warn or abort.
func (l *Log) Printf(format string, args ...interface{}) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	line := fmt.Sprintf("[%s] %s\n", l.now().UTC().Format(time.RFC3339), fmt.Sprintf(format, args...))
	if _, err := l.file.WriteString(line); err != nil {
		return fmt.Errorf("failed to write log line: %w", err)
	}
	return nil
}

// Close flushes and closes the underlying file.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}
