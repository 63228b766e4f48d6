package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// LocalStorage keeps generated export files in a single flat directory.
// Filenames are flattened with filepath.Base so a stored name can never
// escape the directory.
type LocalStorage struct {
	dir string
}

// NewLocalStorage creates the directory if needed and returns a handle.
func NewLocalStorage(dir string) (*LocalStorage, error) {
	if dir == "" {
		dir = "./exports"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create export directory %s: %w", dir, err)
	}
	return &LocalStorage{dir: dir}, nil
}

// Save writes data under the given name and returns the stored name.
func (s *LocalStorage) Save(name string, data []byte) (string, error) {
	name = filepath.Base(name)
	if err := os.WriteFile(filepath.Join(s.dir, name), data, 0o644); err != nil {
		return "", fmt.Errorf("write export file %s: %w", name, err)
	}
	return name, nil
}

// Open returns a read-only handle for a stored file.
func (s *LocalStorage) Open(name string) (*os.File, error) {
	file, err := os.Open(filepath.Join(s.dir, filepath.Base(name)))
	if err != nil {
		return nil, fmt.Errorf("open export file %s: %w", name, err)
	}
	return file, nil
}

// Delete removes a stored file; a missing file is not an error.
func (s *LocalStorage) Delete(name string) error {
	err := os.Remove(filepath.Join(s.dir, filepath.Base(name)))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete export file %s: %w", name, err)
	}
	return nil
}

// CleanupOlderThan deletes files whose modification time predates the TTL
// and returns the removed names.
func (s *LocalStorage) CleanupOlderThan(ttl time.Duration) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("scan export directory: %w", err)
	}
	cutoff := time.Now().Add(-ttl)
	removed := make([]string, 0)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, entry.Name())); err != nil && !os.IsNotExist(err) {
			return removed, fmt.Errorf("remove stale export %s: %w", entry.Name(), err)
		}
		removed = append(removed, entry.Name())
	}
	return removed, nil
}

// Path returns the absolute location of a stored file.
func (s *LocalStorage) Path(name string) string {
	return filepath.Join(s.dir, filepath.Base(name))
}
