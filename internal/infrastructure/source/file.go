package source

import (
	"context"
	"fmt"
	"os"

	"github.com/PuerkitoBio/goquery"

	"TechTreeCost/internal/ports"
)

// FileSource reads a saved tree or list page from disk.
type FileSource struct {
	path string
}

var _ ports.PageSource = (*FileSource)(nil)

// NewFileSource points at an HTML file.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

// Name identifies the source inside the registry.
func (f *FileSource) Name() string {
	return "file"
}

// Load parses the file on every call so edits are picked up by watch mode.
func (f *FileSource) Load(ctx context.Context) (*goquery.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.path == "" {
		return nil, fmt.Errorf("file source: no path configured")
	}

	file, err := os.Open(f.path)
	if err != nil {
		return nil, fmt.Errorf("file source: %w", err)
	}
	defer file.Close()

	doc, err := goquery.NewDocumentFromReader(file)
	if err != nil {
		return nil, fmt.Errorf("file source: parse %s: %w", f.path, err)
	}
	return doc, nil
}
