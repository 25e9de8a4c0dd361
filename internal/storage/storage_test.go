package storage_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/jobsturm/crm-local-sub000/internal/config"
	"github.com/jobsturm/crm-local-sub000/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// ============================================================================
// Sink Interface Tests
// ============================================================================

func TestSinkInterfaceCompliance(t *testing.T) {
	var _ storage.Sink = (*storage.LocalSink)(nil)
	var _ storage.Sink = (*storage.AzureBlobSink)(nil)
}

// ============================================================================
// AtomicWriter Tests
// ============================================================================

func TestAtomicWriter_WriteFileCreatesParents(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a", "b", "file.json")

	require.NoError(t, storage.NewAtomicWriter().WriteFile(path, []byte("hello")))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(content))
}

func TestAtomicWriter_WriteJSONIndents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.json")

	require.NoError(t, storage.WriteJSON(path, map[string]int{"a": 1}))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "{\n  \"a\": 1\n}\n", string(content))
}

func TestAtomicWriter_FailedRenameKeepsPreviousContent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "database.json")
	require.NoError(t, os.WriteFile(path, []byte("old"), 0o644))

	injected := errors.New("disk full")
	w := storage.NewAtomicWriter(storage.WithRenameFunc(func(oldpath, newpath string) error {
		return injected
	}))

	err := w.WriteFile(path, []byte("new"))
	require.Error(t, err)
	assert.ErrorIs(t, err, storage.ErrWriteFailed)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "old", string(content))

	// No temp file is left behind
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestAtomicWriter_FailedRenameOnNewFileLeavesNothing(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "new.json")

	w := storage.NewAtomicWriter(storage.WithRenameFunc(func(oldpath, newpath string) error {
		return errors.New("interrupted")
	}))

	require.Error(t, w.WriteFile(path, []byte("data")))

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestAtomicWriter_UnencodableValue(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")

	err := storage.WriteJSON(path, map[string]any{"ch": make(chan int)})

	assert.ErrorIs(t, err, storage.ErrWriteFailed)
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

// ============================================================================
// Tree Tests
// ============================================================================

func TestIsTempFile(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{".database.json.123.tmp", true},
		{"database.json", false},
		{".hidden", false},
		{"file.tmp", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, storage.IsTempFile(tt.name))
		})
	}
}

func TestListFiles_SortedAndSkipsTempFiles(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, storage.WriteFile(filepath.Join(root, "offers", "2024", "b.json"), []byte("b")))
	require.NoError(t, storage.WriteFile(filepath.Join(root, "database.json"), []byte("db")))
	require.NoError(t, os.WriteFile(filepath.Join(root, ".database.json.1.tmp"), []byte("x"), 0o644))

	files, err := storage.ListFiles(root)

	require.NoError(t, err)
	assert.Equal(t, []string{"database.json", "offers/2024/b.json"}, files)
}

func TestCopyTree(t *testing.T) {
	src := t.TempDir()
	dst := filepath.Join(t.TempDir(), "copy")
	require.NoError(t, storage.WriteFile(filepath.Join(src, "database.json"), []byte("db")))
	require.NoError(t, storage.WriteFile(filepath.Join(src, "invoices", "2025", "x.json"), []byte("x")))

	n, err := storage.CopyTree(context.Background(), src, dst)

	require.NoError(t, err)
	assert.Equal(t, 2, n)
	content, err := os.ReadFile(filepath.Join(dst, "invoices", "2025", "x.json"))
	require.NoError(t, err)
	assert.Equal(t, "x", string(content))
}

func TestCopyTree_CancelledContext(t *testing.T) {
	src := t.TempDir()
	require.NoError(t, storage.WriteFile(filepath.Join(src, "database.json"), []byte("db")))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	n, err := storage.CopyTree(ctx, src, t.TempDir())

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, n)
}

// ============================================================================
// LocalSink Tests
// ============================================================================

func TestNewLocalSink_CreatesDirectory(t *testing.T) {
	basePath := filepath.Join(t.TempDir(), "backups")

	sink, err := storage.NewLocalSink(basePath)

	require.NoError(t, err)
	assert.NotNil(t, sink)
	info, err := os.Stat(basePath)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestNewLocalSink_EmptyPath(t *testing.T) {
	_, err := storage.NewLocalSink("")
	assert.Error(t, err)
}

func TestLocalSink_PutListDelete(t *testing.T) {
	ctx := context.Background()
	basePath := t.TempDir()
	sink, err := storage.NewLocalSink(basePath)
	require.NoError(t, err)

	require.NoError(t, sink.Put(ctx, "20250102T030000Z", "database.json", []byte("2")))
	require.NoError(t, sink.Put(ctx, "20250101T030000Z", "offers/2025/a.json", []byte("1")))

	snapshots, err := sink.Snapshots(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"20250101T030000Z", "20250102T030000Z"}, snapshots)

	content, err := os.ReadFile(filepath.Join(basePath, "20250101T030000Z", "offers", "2025", "a.json"))
	require.NoError(t, err)
	assert.Equal(t, "1", string(content))

	require.NoError(t, sink.DeleteSnapshot(ctx, "20250101T030000Z"))
	snapshots, err = sink.Snapshots(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"20250102T030000Z"}, snapshots)
}

func TestLocalSink_DeleteSnapshotRejectsEmptyName(t *testing.T) {
	sink, err := storage.NewLocalSink(t.TempDir())
	require.NoError(t, err)

	assert.Error(t, sink.DeleteSnapshot(context.Background(), ""))
	assert.Error(t, sink.DeleteSnapshot(context.Background(), ".."))
}

// ============================================================================
// NewSink Tests
// ============================================================================

func TestNewSink(t *testing.T) {
	logger := zap.NewNop()

	t.Run("local", func(t *testing.T) {
		sink, err := storage.NewSink(&config.BackupConfig{Mode: "local", LocalPath: t.TempDir()}, logger)
		require.NoError(t, err)
		assert.IsType(t, &storage.LocalSink{}, sink)
	})

	t.Run("azure without connection string", func(t *testing.T) {
		_, err := storage.NewSink(&config.BackupConfig{Mode: "azure"}, logger)
		assert.Error(t, err)
	})

	t.Run("unknown mode", func(t *testing.T) {
		_, err := storage.NewSink(&config.BackupConfig{Mode: "ftp"}, logger)
		assert.Error(t, err)
	})
}
