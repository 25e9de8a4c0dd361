package storage

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// IsTempFile reports whether name is a leftover temp file of an interrupted
// atomic write.
func IsTempFile(name string) bool {
	return strings.HasPrefix(name, ".") && strings.HasSuffix(name, ".tmp")
}

// ListFiles returns the slash-separated paths of all regular files under
// root, relative to root, sorted. Temp files are skipped.
func ListFiles(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !d.Type().IsRegular() || IsTempFile(d.Name()) {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", root, err)
	}
	sort.Strings(files)
	return files, nil
}

// CopyTree copies every regular file under src to the same relative path
// under dst. Each file is written atomically; ctx is checked between files.
func (w *AtomicWriter) CopyTree(ctx context.Context, src, dst string) (int, error) {
	files, err := ListFiles(src)
	if err != nil {
		return 0, err
	}

	for i, rel := range files {
		if err := ctx.Err(); err != nil {
			return i, err
		}
		data, err := os.ReadFile(filepath.Join(src, filepath.FromSlash(rel)))
		if err != nil {
			return i, fmt.Errorf("failed to read %s: %w", rel, err)
		}
		if err := w.WriteFile(filepath.Join(dst, filepath.FromSlash(rel)), data); err != nil {
			return i, err
		}
	}
	return len(files), nil
}

// CopyTree copies src to dst using the default writer
func CopyTree(ctx context.Context, src, dst string) (int, error) {
	return defaultWriter.CopyTree(ctx, src, dst)
}
