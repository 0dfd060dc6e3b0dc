// Package artifact stores rendered PDF blobs under a single directory,
// keyed by filename.
package artifact

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/anveshgarg/courtscout/pkg/models"
)

// Store is a directory-backed blob store.
type Store struct {
	dir string
}

// NewStore ensures the directory exists.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create artifact dir %s: %w", dir, err)
	}
	return &Store{dir: dir}, nil
}

// ValidateFilename rejects anything that could escape the store directory.
func ValidateFilename(name string) error {
	if name == "" ||
		strings.Contains(name, "..") ||
		strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("%w: %q", models.ErrInvalidArtifact, name)
	}
	return nil
}

// Save writes the blob, replacing any existing artifact with the same name.
func (s *Store) Save(name string, data []byte) error {
	if err := ValidateFilename(name); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(s.dir, name), data, 0o644); err != nil {
		return fmt.Errorf("write artifact %s: %w", name, err)
	}
	return nil
}

// Load reads a stored blob. A missing file is models.ErrNotFound, distinct
// from an invalid reference.
func (s *Store) Load(name string) ([]byte, error) {
	if err := ValidateFilename(name); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: artifact %q", models.ErrNotFound, name)
		}
		return nil, fmt.Errorf("read artifact %s: %w", name, err)
	}
	return data, nil
}
