package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/JakeFAU/bar-directory-crawler/internal/record"
)

// Sink receives every record a run yields. Implementations must be safe for
// concurrent use; drivers write from their own goroutines.
type Sink interface {
	Write(ctx context.Context, line Line) error
}

// Line is one output row: the record plus where it came from.
type Line struct {
	RunID string `json:"run_id"`
	Site  string `json:"site"`
	record.Record
}

// JSONLSink writes one JSON object per line.
type JSONLSink struct {
	mu     sync.Mutex
	enc    *json.Encoder
	closer io.Closer
	lines  int
}

// NewJSONLSink writes to w. It never closes w.
func NewJSONLSink(w io.Writer) *JSONLSink {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return &JSONLSink{enc: enc}
}

// OpenJSONL creates (or truncates) path and writes to it. "-" and "" mean stdout.
func OpenJSONL(path string) (*JSONLSink, error) {
	if path == "" || path == "-" {
		return NewJSONLSink(os.Stdout), nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create output dir for %s: %w", path, err)
	}
	f, err := os.OpenFile(filepath.Clean(path), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open output %s: %w", path, err)
	}
	s := NewJSONLSink(f)
	s.closer = f
	return s, nil
}

// Write encodes line.
func (s *JSONLSink) Write(ctx context.Context, line Line) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context canceled: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enc.Encode(line); err != nil {
		return fmt.Errorf("write record: %w", err)
	}
	s.lines++
	return nil
}

// Lines reports how many lines were written.
func (s *JSONLSink) Lines() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lines
}

// Close closes the underlying file, if OpenJSONL opened one.
func (s *JSONLSink) Close() error {
	if s.closer == nil {
		return nil
	}
	if err := s.closer.Close(); err != nil {
		return fmt.Errorf("close output: %w", err)
	}
	return nil
}
