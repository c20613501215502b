// Package images stores raw image bytes on the filesystem, keyed by the
// filename the analysis worker is asked to process.
package images

import (
	"fmt"
	"os"
	"path/filepath"
)

// Store is a flat key-to-bytes store rooted at a single directory shared
// with the analysis worker.
type Store struct {
	dir string
}

func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create images directory: %w", err)
	}

	return &Store{dir: dir}, nil
}

func (s *Store) Put(filename string, data []byte) error {
	if err := os.WriteFile(s.path(filename), data, 0o644); err != nil {
		return fmt.Errorf("failed to store image %s: %w", filename, err)
	}

	return nil
}

func (s *Store) Get(filename string) ([]byte, error) {
	data, err := os.ReadFile(s.path(filename))
	if err != nil {
		return nil, fmt.Errorf("failed to read image %s: %w", filename, err)
	}

	return data, nil
}

func (s *Store) path(filename string) string {
	// Keys are "<task_id>:<index>"; keep them from escaping the root.
	return filepath.Join(s.dir, filepath.Base(filename))
}
