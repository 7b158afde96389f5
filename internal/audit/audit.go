// Package audit writes the append-only activity log that modules fill
// through module.Call.Audit.
package audit

import (
	"fmt"
	"io"
	"log/slog"
	"os"
)

// Log is an open activity log.
type Log struct {
	logger *slog.Logger
	closer io.Closer
}

// Open appends to the file at path, creating it if needed. Every worker opens
// the same file; O_APPEND keeps their lines from interleaving. An empty path
// gives a log that discards everything.
func Open(path string) (*Log, error) {
	if path == "" {
		return &Log{logger: slog.New(slog.DiscardHandler)}, nil
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o640)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log %s: %w", path, err)
	}
	return &Log{logger: New(f), closer: f}, nil
}

// New returns an audit logger writing JSON lines to w.
func New(w io.Writer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelInfo}))
}

// Logger returns the logger handlers write to.
func (l *Log) Logger() *slog.Logger { return l.logger }

// Close closes the underlying file.
func (l *Log) Close() error {
	if l.closer == nil {
		return nil
	}
	return l.closer.Close()
}
