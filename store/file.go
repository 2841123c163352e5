package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

const defaultFileMode fs.FileMode = 0o600

// Backend loads and saves a whole CredentialStore.
type Backend interface {
	Load(ctx context.Context) (*CredentialStore, error)
	Save(ctx context.Context, s *CredentialStore) error
}

// FileBackend persists the store as a YAML file on local disk.
//
// Saves write a temporary file in the same directory, fsync it and rename
// it over the target, so readers see either the old or the new file and
// never a partial one.
type FileBackend struct {
	path string
	mode fs.FileMode
}

// NewFileBackend returns a backend for the file at path.
func NewFileBackend(path string) *FileBackend {
	return &FileBackend{path: path, mode: defaultFileMode}
}

// Path returns the credential file location.
func (b *FileBackend) Path() string {
	return b.path
}

// Load reads and parses the file. A missing file is reported with an
// error wrapping fs.ErrNotExist.
func (b *FileBackend) Load(ctx context.Context) (*CredentialStore, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(b.path)
	if err != nil {
		return nil, fmt.Errorf("store: read %s: %w", b.path, err)
	}
	s, err := Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w (file %s)", err, b.path)
	}
	return s, nil
}

// Save serializes s and atomically replaces the file. The dirty flag is
// cleared only after the rename succeeds.
func (b *FileBackend) Save(ctx context.Context, s *CredentialStore) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := Marshal(s)
	if err != nil {
		return err
	}
	if err := writeFileAtomic(b.path, data, b.mode); err != nil {
		return err
	}
	s.MarkClean()
	return nil
}

func writeFileAtomic(path string, data []byte, mode fs.FileMode) (err error) {
	dir, base := filepath.Split(path)
	if dir == "" {
		dir = "."
	}

	tmp, err := os.CreateTemp(dir, "."+base+".*.tmp")
	if err != nil {
		return fmt.Errorf("store: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("store: write temp file: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("store: sync temp file: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("store: close temp file: %w", err)
	}
	if err = os.Chmod(tmpName, mode); err != nil {
		return fmt.Errorf("store: chmod temp file: %w", err)
	}
	if err = os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("store: replace %s: %w", path, err)
	}
	return nil
}

// IsNotExist reports whether err came from loading a file that does not exist.
func IsNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
