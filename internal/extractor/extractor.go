// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package extractor reads title, authors, and publisher from document
// files. Each supported format has a reader; Registry dispatches on the
// record's format after confirming the file content matches it.
package extractor

import (
	"context"
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/pdiddy/libshelf/pkg/types"
)

// readFunc extracts metadata from one file of a known format.
type readFunc func(path string) (types.Extracted, error)

type formatReader struct {
	read      readFunc
	mimeTypes []string
}

// Registry extracts metadata for every supported format. The zero value
// is not usable; call New.
type Registry struct {
	readers map[types.Format]formatReader
}

// New returns a Registry with the PDF and EPUB readers installed.
func New() *Registry {
	return &Registry{
		readers: map[types.Format]formatReader{
			types.FormatPDF:  {read: readPDF, mimeTypes: []string{"application/pdf"}},
			types.FormatEPUB: {read: readEPUB, mimeTypes: []string{"application/epub+zip", "application/zip"}},
		},
	}
}

// Extract reads metadata for rec. Panics inside a format reader are
// recovered and returned as errors so a malformed file cannot take down a
// worker.
func (r *Registry) Extract(ctx context.Context, rec types.FileRecord) (ex types.Extracted, err error) {
	if err := ctx.Err(); err != nil {
		return types.Extracted{}, err
	}
	fr, ok := r.readers[rec.Format]
	if !ok {
		return types.Extracted{}, fmt.Errorf("unsupported format %q", rec.Format)
	}

	mtype, err := mimetype.DetectFile(rec.Path)
	if err != nil {
		return types.Extracted{}, fmt.Errorf("detecting content type: %w", err)
	}
	if !mimeMatches(mtype, fr.mimeTypes) {
		return types.Extracted{}, fmt.Errorf("content is %s, not %s", mtype.String(), rec.Format)
	}

	defer func() {
		if p := recover(); p != nil {
			ex = types.Extracted{}
			err = fmt.Errorf("%s reader panicked: %v", rec.Format, p)
		}
	}()

	ex, err = fr.read(rec.Path)
	if err != nil {
		return types.Extracted{}, err
	}
	ex.Title = strings.TrimSpace(ex.Title)
	ex.Publisher = strings.TrimSpace(ex.Publisher)
	ex.Authors = NormalizeAuthors(ex.Authors)
	return ex, nil
}

func mimeMatches(m *mimetype.MIME, accepted []string) bool {
	for _, a := range accepted {
		if m.Is(a) {
			return true
		}
	}
	return false
}

// NormalizeAuthors trims names, drops blanks, and removes case-insensitive
// duplicates while keeping first-seen order.
func NormalizeAuthors(authors []string) []string {
	out := make([]string, 0, len(authors))
	seen := make(map[string]bool, len(authors))
	for _, a := range authors {
		a = strings.Join(strings.Fields(a), " ")
		if a == "" {
			continue
		}
		key := strings.ToLower(a)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, a)
	}
	return out
}
