package output

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"TechTreeCost/internal/ports"
)

// FileSink writes the annotated page to a file, replacing it atomically.
// With an empty path it writes to the fallback writer instead.
type FileSink struct {
	path     string
	fallback io.Writer

	mu sync.Mutex
}

var _ ports.Publisher = (*FileSink)(nil)

// NewFileSink builds a sink; a nil fallback means stdout.
func NewFileSink(path string, fallback io.Writer) *FileSink {
	if fallback == nil {
		fallback = os.Stdout
	}
	return &FileSink{path: path, fallback: fallback}
}

// Publish stores the page HTML.
func (s *FileSink) Publish(ctx context.Context, html string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path == "" {
		if _, err := io.WriteString(s.fallback, html); err != nil {
			return fmt.Errorf("write page: %w", err)
		}
		return nil
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".techtreecost-*.html")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.WriteString(tmp, html); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace %s: %w", s.path, err)
	}
	return nil
}
