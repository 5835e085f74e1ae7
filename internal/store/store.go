// Package store persists per-tenant files on the local filesystem. Every
// operation is scoped by a resolved StorePath; tenants never share a
// directory and operations across tenants share no mutable state beyond the
// filesystem itself. Writes are atomic (temp file + rename) so readers never
// observe a partially written file.
package store

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/EvanUsesRust/gb-emu/internal/claims"
)

// Sentinel errors. Check with errors.Is.
var (
	ErrNotFound = errors.New("store: file not found")
	ErrTooLarge = errors.New("store: file exceeds size limit")
	ErrBadName  = errors.New("store: invalid file name")
)

// DirPerms is used when creating tenant directories.
const DirPerms = 0o700

// FilePerms restricts stored files to owner read/write.
const FilePerms = 0o600

// FileStore is a filesystem-backed file store rooted at a single directory,
// with one subdirectory per tenant.
type FileStore struct {
	root   string
	logger *slog.Logger
}

// New creates a FileStore rooted at dir. The directory itself is created
// lazily on first write.
func New(dir string, logger *slog.Logger) *FileStore {
	if logger == nil {
		logger = slog.Default()
	}

	return &FileStore{root: dir, logger: logger}
}

// List returns the file names under the tenant's directory in filesystem
// order — callers must not assume sorting. A tenant that has never uploaded
// anything gets an empty list, not an error.
func (s *FileStore) List(sp claims.StorePath) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.root, sp.String()))
	if errors.Is(err, fs.ErrNotExist) {
		return []string{}, nil
	}

	if err != nil {
		return nil, fmt.Errorf("store: listing %s: %w", sp, err)
	}

	names := make([]string, 0, len(entries))

	for _, e := range entries {
		if e.IsDir() {
			continue
		}

		names = append(names, e.Name())
	}

	return names, nil
}

// Read returns the full content of a stored file.
func (s *FileStore) Read(sp claims.StorePath, name string) ([]byte, error) {
	if !validName(name) {
		return nil, fmt.Errorf("%w: %q", ErrBadName, name)
	}

	data, err := os.ReadFile(filepath.Join(s.root, sp.String(), name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}

	if err != nil {
		return nil, fmt.Errorf("store: reading %s: %w", name, err)
	}

	return data, nil
}

// Write stores a file under the tenant's directory, creating the directory
// if absent. At most limit bytes are accepted; a longer stream yields
// ErrTooLarge with nothing persisted under the final name. An existing file
// of the same name is replaced in full, atomically: the content lands in a
// temp file in the same directory, is synced, and is renamed into place.
func (s *FileStore) Write(sp claims.StorePath, name string, r io.Reader, limit int64) error {
	if !validName(name) {
		return fmt.Errorf("%w: %q", ErrBadName, name)
	}

	dir := filepath.Join(s.root, sp.String())
	if err := os.MkdirAll(dir, DirPerms); err != nil {
		return fmt.Errorf("store: creating directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".upload-*.tmp")
	if err != nil {
		return fmt.Errorf("store: creating temp file: %w", err)
	}

	tmpPath := tmp.Name()

	// Remove the temp file on any failure path.
	success := false
	defer func() {
		if !success {
			_ = os.Remove(tmpPath)
		}
	}()

	if err := os.Chmod(tmpPath, FilePerms); err != nil {
		tmp.Close()
		return fmt.Errorf("store: setting permissions: %w", err)
	}

	// Read one byte past the limit: if it arrives, the stream is too large.
	n, err := io.Copy(tmp, io.LimitReader(r, limit+1))
	if err != nil {
		tmp.Close()
		return fmt.Errorf("store: writing %s: %w", name, err)
	}

	if n > limit {
		tmp.Close()
		return fmt.Errorf("%w: %s exceeds %d bytes", ErrTooLarge, name, limit)
	}

	// Flush to stable storage before rename so a crash cannot leave a
	// truncated file at the final path.
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("store: syncing %s: %w", name, err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("store: closing %s: %w", name, err)
	}

	if err := os.Rename(tmpPath, filepath.Join(dir, name)); err != nil {
		return fmt.Errorf("store: renaming %s: %w", name, err)
	}

	success = true

	s.logger.Debug("stored file",
		slog.String("store_path", sp.String()),
		slog.String("name", name),
		slog.Int64("bytes", n),
	)

	return nil
}

// validName accepts only bare file names: no separators, no traversal, no
// NUL, not empty.
func validName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}

	return !strings.ContainsAny(name, "/\\\x00")
}
