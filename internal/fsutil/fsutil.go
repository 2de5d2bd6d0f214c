// Package fsutil is the local file-system surface used for bulk and result
// files. Operations are idempotent where the outcome is already in place.
package fsutil

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

// FileSystem is the set of local file operations the bulk workflow needs.
type FileSystem interface {
	// MkdirAll creates dir and its parents. An existing directory is not an error.
	MkdirAll(dir string) error
	// List returns the regular files directly under dir, sorted by name.
	List(dir string) ([]string, error)
	// Exists reports whether path names an existing file or directory.
	Exists(path string) (bool, error)
	// Remove deletes a file. A missing file is not an error.
	Remove(path string) error
	// RemoveAll deletes path and anything below it. A missing path is not an error.
	RemoveAll(path string) error
	// Rename moves oldPath to newPath, replacing newPath if it exists.
	Rename(oldPath, newPath string) error
}

// OS implements FileSystem on the host file system.
type OS struct{}

var _ FileSystem = OS{}

func (OS) MkdirAll(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	return nil
}

func (OS) List(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list directory %s: %w", dir, err)
	}
	var files []string
	for _, e := range entries {
		if e.Type().IsRegular() {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

func (OS) Exists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("failed to stat %s: %w", path, err)
}

func (OS) Remove(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove %s: %w", path, err)
	}
	return nil
}

func (OS) RemoveAll(path string) error {
	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("failed to remove %s: %w", path, err)
	}
	return nil
}

func (OS) Rename(oldPath, newPath string) error {
	if err := os.Rename(oldPath, newPath); err != nil {
		return fmt.Errorf("failed to rename %s to %s: %w", oldPath, newPath, err)
	}
	return nil
}
