// Package loader reads the source document into memory.
package loader

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// Document is the raw text of the source together with where it came from.
type Document struct {
	ID      string
	Source  string
	Content string
}

// Loader produces the single document that gets indexed.
type Loader interface {
	Load(ctx context.Context) (*Document, error)
}

// FileLoader reads a local text file.
type FileLoader struct {
	Path string
}

// Load implements Loader.
func (l FileLoader) Load(ctx context.Context) (*Document, error) {
	return LoadFile(l.Path)
}

// LoadFile reads the whole file as UTF-8 text.
func LoadFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return &Document{
		ID:      filepath.Base(path),
		Source:  path,
		Content: string(data),
	}, nil
}
