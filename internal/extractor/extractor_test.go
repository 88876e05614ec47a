// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package extractor

import (
	"archive/zip"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/libshelf/pkg/types"
)

const testOPF = `<?xml version="1.0" encoding="UTF-8"?>
<package xmlns="http://www.idpf.org/2007/opf" version="3.0" unique-identifier="id">
  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/">
    <dc:title>Learning Go</dc:title>
    <dc:title>An Idiomatic Approach</dc:title>
    <dc:creator>Jon Bodner</dc:creator>
    <dc:creator> jon  bodner </dc:creator>
    <dc:creator>Second Author</dc:creator>
    <dc:publisher>O'Reilly</dc:publisher>
  </metadata>
</package>`

const testContainer = `<?xml version="1.0"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles>
    <rootfile full-path="OEBPS/content.opf" media-type="application/oebps-package+xml"/>
  </rootfiles>
</container>`

// writeEPUB builds a minimal EPUB archive with the given entries after the
// stored mimetype entry.
func writeEPUB(t *testing.T, path string, entries map[string]string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	zw := zip.NewWriter(f)
	w, err := zw.CreateHeader(&zip.FileHeader{Name: "mimetype", Method: zip.Store})
	require.NoError(t, err)
	_, err = w.Write([]byte("application/epub+zip"))
	require.NoError(t, err)

	for name, body := range entries {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
}

func TestRegistry_ExtractEPUB(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.epub")
	writeEPUB(t, path, map[string]string{
		containerPath:       testContainer,
		"OEBPS/content.opf": testOPF,
	})

	ex, err := New().Extract(context.Background(), types.FileRecord{Path: path, Format: types.FormatEPUB})
	require.NoError(t, err)
	assert.Equal(t, "Learning Go", ex.Title)
	assert.Equal(t, []string{"Jon Bodner", "Second Author"}, ex.Authors)
	assert.Equal(t, "O'Reilly", ex.Publisher)
}

func TestRegistry_ExtractEPUBWithoutContainer(t *testing.T) {
	path := filepath.Join(t.TempDir(), "b.epub")
	writeEPUB(t, path, map[string]string{"book.opf": testOPF})

	ex, err := New().Extract(context.Background(), types.FileRecord{Path: path, Format: types.FormatEPUB})
	require.NoError(t, err)
	assert.Equal(t, "Learning Go", ex.Title)
}

func TestRegistry_ExtractEPUBWithoutOPF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c.epub")
	writeEPUB(t, path, map[string]string{"chapter1.xhtml": "<html/>"})

	_, err := New().Extract(context.Background(), types.FileRecord{Path: path, Format: types.FormatEPUB})
	assert.ErrorContains(t, err, "no OPF")
}

func TestRegistry_RejectsMismatchedContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fake.pdf")
	require.NoError(t, os.WriteFile(path, []byte("just some text, not a pdf"), 0o644))

	_, err := New().Extract(context.Background(), types.FileRecord{Path: path, Format: types.FormatPDF})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not pdf")
}

func TestRegistry_MissingFile(t *testing.T) {
	_, err := New().Extract(context.Background(), types.FileRecord{
		Path:   filepath.Join(t.TempDir(), "gone.pdf"),
		Format: types.FormatPDF,
	})
	assert.Error(t, err)
}

func TestRegistry_RecoversReaderPanic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "boom.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4\n%broken"), 0o644))

	r := &Registry{readers: map[types.Format]formatReader{
		types.FormatPDF: {
			read:      func(string) (types.Extracted, error) { panic("bad xref") },
			mimeTypes: []string{"application/pdf"},
		},
	}}
	_, err := r.Extract(context.Background(), types.FileRecord{Path: path, Format: types.FormatPDF})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panicked")
}

func TestRegistry_MalformedPDFIsError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4\nthis is not a real pdf body\n%%EOF"), 0o644))

	_, err := New().Extract(context.Background(), types.FileRecord{Path: path, Format: types.FormatPDF})
	assert.Error(t, err)
}

func TestPDFInfo(t *testing.T) {
	ex := pdfInfo("  Report  ", "Alice; Bob ;", "Acrobat Distiller")
	assert.Equal(t, "Report", ex.Title)
	assert.Equal(t, []string{"Alice", "Bob"}, ex.Authors)
	assert.Equal(t, "Acrobat Distiller", ex.Publisher)

	empty := pdfInfo("", "", "")
	assert.Empty(t, empty.Title)
	assert.Empty(t, empty.Authors)
}

func TestNormalizeAuthors(t *testing.T) {
	got := NormalizeAuthors([]string{" Ada  Lovelace", "", "ada lovelace", "Alan Turing", "  "})
	assert.Equal(t, []string{"Ada Lovelace", "Alan Turing"}, got)
	assert.NotNil(t, NormalizeAuthors(nil))
}
