// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package scan

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/libshelf/pkg/types"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestWalk(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.epub"), "epub")
	writeFile(t, filepath.Join(root, "nested", "deep", "B.PDF"), "pdf")
	writeFile(t, filepath.Join(root, "notes.txt"), "ignored")
	writeFile(t, filepath.Join(root, "library", "c.pdf"), "skipped dir")
	require.NoError(t, os.Symlink(filepath.Join(root, "a.epub"), filepath.Join(root, "link.epub")))

	records, err := Walk(context.Background(), root, Options{Skip: []string{filepath.Join(root, "library")}})
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, filepath.Join(root, "a.epub"), records[0].Path)
	assert.Equal(t, types.FormatEPUB, records[0].Format)
	assert.Equal(t, int64(4), records[0].Fingerprint.Size)
	assert.NotZero(t, records[0].Fingerprint.ModTime)

	assert.Equal(t, filepath.Join(root, "nested", "deep", "B.PDF"), records[1].Path)
	assert.Equal(t, types.FormatPDF, records[1].Format)
	assert.Equal(t, "B", records[1].Stem())
}

func TestWalk_MissingRoot(t *testing.T) {
	_, err := Walk(context.Background(), filepath.Join(t.TempDir(), "nope"), Options{})
	assert.Error(t, err)
}

func TestWalk_Cancelled(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.pdf"), "x")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Walk(ctx, root, Options{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWalk_Fs(t *testing.T) {
	fsys := afero.NewMemMapFs()
	mtime := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	for path, content := range map[string]string{
		"/books/go/Learning Go.epub": "epub bytes",
		"/books/report.pdf":          "pdf",
		"/books/.libshelf/cache.pdf": "skipped",
		"/books/readme.md":           "ignored",
	} {
		require.NoError(t, fsys.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, afero.WriteFile(fsys, path, []byte(content), 0o644))
		require.NoError(t, fsys.Chtimes(path, mtime, mtime))
	}

	records, err := Walk(context.Background(), "/books", Options{Fs: fsys, Skip: []string{"/books/.libshelf"}})
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "/books/go/Learning Go.epub", records[0].Path)
	assert.Equal(t, int64(len("epub bytes")), records[0].Fingerprint.Size)
	assert.Equal(t, "/books/report.pdf", records[1].Path)
	assert.Equal(t, types.NewFingerprint(3, mtime), records[1].Fingerprint)
}
