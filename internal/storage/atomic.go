package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrWriteFailed is returned when a file could not be persisted. The previous
// content of the target, if any, is still in place.
var ErrWriteFailed = errors.New("write failed")

const (
	dirPerm  = 0o755
	filePerm = 0o644
)

// AtomicWriter writes files through a temp file and a rename so readers
// never observe a partially written target.
type AtomicWriter struct {
	rename func(oldpath, newpath string) error
}

// AtomicOption configures an AtomicWriter
type AtomicOption func(*AtomicWriter)

// WithRenameFunc replaces the rename step. Used to inject faults.
func WithRenameFunc(fn func(oldpath, newpath string) error) AtomicOption {
	return func(w *AtomicWriter) {
		w.rename = fn
	}
}

// NewAtomicWriter creates an AtomicWriter
func NewAtomicWriter(opts ...AtomicOption) *AtomicWriter {
	w := &AtomicWriter{rename: os.Rename}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

var defaultWriter = NewAtomicWriter()

// WriteJSON writes v as indented JSON to path using the default writer
func WriteJSON(path string, v any) error {
	return defaultWriter.WriteJSON(path, v)
}

// WriteFile writes data to path using the default writer
func WriteFile(path string, data []byte) error {
	return defaultWriter.WriteFile(path, data)
}

// WriteJSON writes v as indented JSON to path
func (w *AtomicWriter) WriteJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: failed to encode %s: %v", ErrWriteFailed, path, err)
	}
	return w.WriteFile(path, append(data, '\n'))
}

// WriteFile writes data to path. The parent directory is created if missing.
func (w *AtomicWriter) WriteFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return fmt.Errorf("%w: failed to create directory %s: %v", ErrWriteFailed, dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("%w: failed to create temp file in %s: %v", ErrWriteFailed, dir, err)
	}
	tmpPath := tmp.Name()

	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: failed to write %s: %v", ErrWriteFailed, path, err)
	}
	if err := tmp.Chmod(filePerm); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: failed to chmod %s: %v", ErrWriteFailed, path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: failed to sync %s: %v", ErrWriteFailed, path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: failed to close %s: %v", ErrWriteFailed, path, err)
	}

	if err := w.rename(tmpPath, path); err != nil {
		return fmt.Errorf("%w: failed to replace %s: %v", ErrWriteFailed, path, err)
	}
	committed = true

	syncDir(dir)
	return nil
}

// syncDir flushes the directory entry after a rename. Not every platform
// supports fsync on directories, so errors are ignored.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}
