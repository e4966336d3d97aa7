package diagnostics

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"retire/internal/core"
)

// FileSink appends one text line per event to a log file. Lines use the slog
// text format so they can be grepped like the application logs.
type FileSink struct {
	mu      sync.Mutex
	f       *os.File
	handler slog.Handler
	path    string
	closed  bool
}

// NewFileSink opens path for appending, creating it and its directory when needed.
func NewFileSink(path string) (*FileSink, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open diagnostics log: %w", err)
	}
	return &FileSink{
		f:       f,
		handler: slog.NewTextHandler(f, &slog.HandlerOptions{Level: slog.LevelDebug}),
		path:    path,
	}, nil
}

// Path returns the file the sink writes to.
func (s *FileSink) Path() string {
	return s.path
}

// Record writes ev as a single line stamped with the event's own timestamp.
// Successes are INFO, computation failures ERROR, other failures WARN.
func (s *FileSink) Record(ctx context.Context, ev Event) error {
	level := slog.LevelInfo
	if !ev.Succeeded() {
		level = slog.LevelWarn
		if ev.FailureKind == core.KindComputationFailure {
			level = slog.LevelError
		}
	}

	rec := slog.NewRecord(ev.Timestamp, level, ev.Message(), 0)
	rec.AddAttrs(
		slog.String("id", ev.ID),
		slog.String("source", string(ev.Source)),
		slog.String("outcome", string(ev.Outcome)),
	)
	if ev.RequestID != "" {
		rec.AddAttrs(slog.String("request_id", ev.RequestID))
	}
	if ev.Succeeded() {
		rec.AddAttrs(slog.Float64("total_savings", ev.TotalSavings))
	} else {
		rec.AddAttrs(
			slog.String("failure_kind", string(ev.FailureKind)),
			slog.String("reason", ev.Reason),
		)
	}
	rec.AddAttrs(slog.Duration("duration", ev.Duration))

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("diagnostics log %s is closed", s.path)
	}
	if err := s.handler.Handle(ctx, rec); err != nil {
		return fmt.Errorf("failed to write diagnostics log: %w", err)
	}
	return nil
}

func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.f.Close()
}
