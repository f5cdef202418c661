package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ErrPathEscape is returned when a key would resolve outside the upload
// base directory
var ErrPathEscape = fmt.Errorf("storage key escapes upload directory")

// Uploads stores uploaded files under a local base directory
type Uploads struct {
	baseDir string
}

// NewUploads creates the upload store, creating the base directory when
// needed
func NewUploads(baseDir string) (*Uploads, error) {
	abs, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve upload directory: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}
	return &Uploads{baseDir: abs}, nil
}

// Resolve maps a storage key to an absolute path, rejecting keys that
// would land outside the base directory (dot-dot segments, absolute
// paths, symlink-style tricks through cleaning).
func (u *Uploads) Resolve(key string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("storage key is empty")
	}

	path := filepath.Join(u.baseDir, filepath.FromSlash(key))
	path = filepath.Clean(path)

	if path != u.baseDir && !strings.HasPrefix(path, u.baseDir+string(filepath.Separator)) {
		return "", ErrPathEscape
	}

	return path, nil
}

// Save writes content under the key and returns the number of bytes
// written
func (u *Uploads) Save(key string, r io.Reader) (int64, error) {
	path, err := u.Resolve(key)
	if err != nil {
		return 0, err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, fmt.Errorf("failed to create upload subdirectory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("failed to create upload file: %w", err)
	}
	defer f.Close()

	n, err := io.Copy(f, r)
	if err != nil {
		os.Remove(path)
		return 0, fmt.Errorf("failed to write upload: %w", err)
	}

	return n, nil
}

// Open reads back a stored file
func (u *Uploads) Open(key string) (io.ReadCloser, error) {
	path, err := u.Resolve(key)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open upload: %w", err)
	}
	return f, nil
}

// Remove deletes a stored file. Missing files are not an error.
func (u *Uploads) Remove(key string) error {
	path, err := u.Resolve(key)
	if err != nil {
		return err
	}

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove upload: %w", err)
	}
	return nil
}
