package sinks

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/JakeFAU/bar-directory-crawler/internal/progress"
)

// FileSink appends each event as one JSON line, so a long crawl can be followed
// with tail -f or picked up by a log shipper.
type FileSink struct {
	w      *bufio.Writer
	enc    *json.Encoder
	closer io.Closer
}

// NewFileSink writes to w without ever closing it.
func NewFileSink(w io.Writer) *FileSink {
	bw := bufio.NewWriter(w)
	return &FileSink{w: bw, enc: json.NewEncoder(bw)}
}

// OpenFileSink appends to path, creating it and its directory if needed.
func OpenFileSink(path string) (*FileSink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create progress dir for %s: %w", path, err)
	}
	f, err := os.OpenFile(filepath.Clean(path), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open progress file %s: %w", path, err)
	}
	s := NewFileSink(f)
	s.closer = f
	return s, nil
}

// Consume writes and flushes batch.
func (s *FileSink) Consume(ctx context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("write progress: %w", err)
		}
		if err := s.enc.Encode(evt); err != nil {
			return fmt.Errorf("encode progress event: %w", err)
		}
	}
	if err := s.w.Flush(); err != nil {
		return fmt.Errorf("flush progress: %w", err)
	}
	return nil
}

// Close flushes and closes the file opened by OpenFileSink.
func (s *FileSink) Close(context.Context) error {
	if err := s.w.Flush(); err != nil {
		return fmt.Errorf("flush progress: %w", err)
	}
	if s.closer == nil {
		return nil
	}
	if err := s.closer.Close(); err != nil {
		return fmt.Errorf("close progress file: %w", err)
	}
	return nil
}
