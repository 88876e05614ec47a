// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package extract

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/libshelf/pkg/types"
)

// --- mocks ---

type countingExtractor struct {
	mu      sync.Mutex
	calls   map[string]int
	results map[string]types.Extracted
	errs    map[string]error
	hook    func(rec types.FileRecord)
}

func newCountingExtractor() *countingExtractor {
	return &countingExtractor{
		calls:   map[string]int{},
		results: map[string]types.Extracted{},
		errs:    map[string]error{},
	}
}

func (c *countingExtractor) Extract(_ context.Context, rec types.FileRecord) (types.Extracted, error) {
	c.mu.Lock()
	c.calls[rec.Path]++
	ex, err := c.results[rec.Path], c.errs[rec.Path]
	hook := c.hook
	c.mu.Unlock()
	if hook != nil {
		hook(rec)
	}
	return ex, err
}

func (c *countingExtractor) total() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, v := range c.calls {
		n += v
	}
	return n
}

type memCache struct {
	mu      sync.Mutex
	entries map[string]memEntry
	force   bool
}

type memEntry struct {
	fp types.Fingerprint
	md types.Metadata
}

func newMemCache() *memCache { return &memCache{entries: map[string]memEntry{}} }

func (m *memCache) Lookup(path string, fp types.Fingerprint) (types.Metadata, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.force {
		return types.Metadata{}, false
	}
	e, ok := m.entries[path]
	if !ok || e.fp != fp {
		return types.Metadata{}, false
	}
	return e.md, true
}

func (m *memCache) Put(rec types.FileRecord, md types.Metadata) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[rec.Path] = memEntry{fp: rec.Fingerprint, md: md}
}

func record(path string, size int64) types.FileRecord {
	f, _ := types.FormatForPath(path)
	return types.FileRecord{Path: path, Format: f, Fingerprint: types.Fingerprint{Size: size, ModTime: 1000}}
}

// --- IsJunkTitle ---

func TestIsJunkTitle(t *testing.T) {
	tests := []struct {
		title string
		want  bool
	}{
		{"", true},
		{"   ", true},
		{"N/A", true},
		{"Untitled", true},
		{"untitled-3", true},
		{"Document1", true},
		{"Microsoft Word - draft final.docx", true},
		{"chapter1.docx", true},
		{"---", true},
		{"Learning Go", false},
		{"The Book of Why", false},
		{"Document Engineering", false},
		{"1984", false},
	}
	for _, tt := range tests {
		t.Run(tt.title, func(t *testing.T) {
			assert.Equal(t, tt.want, IsJunkTitle(tt.title))
		})
	}
}

// --- ExtractAll ---

func TestExtractAll_SanitizesAndRecords(t *testing.T) {
	files := []types.FileRecord{
		record("/lib/a.epub", 10),
		record("/lib/report.pdf", 20),
		record("/lib/broken.pdf", 30),
	}
	ex := newCountingExtractor()
	ex.results["/lib/a.epub"] = types.Extracted{Title: " Learning  Go ", Authors: []string{"Jon Bodner"}, Publisher: "O'Reilly"}
	ex.results["/lib/report.pdf"] = types.Extracted{Title: "Document1", Publisher: "N/A"}
	ex.errs["/lib/broken.pdf"] = errors.New("pdfcpu read: bad xref")

	cache := newMemCache()
	results, summary, err := ExtractAll(context.Background(), files, cache, ex, types.ExtractionConfig{Workers: 2}, nil)
	require.NoError(t, err)
	require.Len(t, results, 3)

	a := results["/lib/a.epub"]
	assert.Equal(t, "Learning Go", a.Title)
	assert.Equal(t, types.StatusSuccess, a.Status)
	assert.Equal(t, "O'Reilly", a.Publisher)

	r := results["/lib/report.pdf"]
	assert.Equal(t, "report", r.Title)
	assert.Equal(t, types.StatusPartial, r.Status)
	assert.Equal(t, "N/A", r.Publisher)

	b := results["/lib/broken.pdf"]
	assert.Equal(t, "broken", b.Title)
	assert.Equal(t, types.StatusFailed, b.Status)
	assert.Contains(t, b.Error, "bad xref")

	assert.Equal(t, BatchSummary{Extracted: 2, Partial: 1, Failed: 1}, summary)
	assert.True(t, summary.HasFailures())
	assert.Equal(t, 3, summary.Total())
	assert.Len(t, cache.entries, 3)
}

func TestExtractAll_CacheHitsSkipExtractor(t *testing.T) {
	files := []types.FileRecord{record("/lib/a.epub", 10), record("/lib/b.pdf", 20)}
	ex := newCountingExtractor()
	ex.results["/lib/a.epub"] = types.Extracted{Title: "A"}
	ex.results["/lib/b.pdf"] = types.Extracted{Title: "B"}
	cache := newMemCache()
	cfg := types.ExtractionConfig{Workers: 4}

	_, _, err := ExtractAll(context.Background(), files, cache, ex, cfg, nil)
	require.NoError(t, err)
	require.Equal(t, 2, ex.total())

	results, summary, err := ExtractAll(context.Background(), files, cache, ex, cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, ex.total(), "unchanged files must not be re-extracted")
	assert.Equal(t, 2, summary.Cached)
	assert.Equal(t, "A", results["/lib/a.epub"].Title)

	// A changed fingerprint invalidates just that file.
	files[1].Fingerprint.Size = 21
	_, summary, err = ExtractAll(context.Background(), files, cache, ex, cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, ex.total())
	assert.Equal(t, 1, summary.Cached)
	assert.Equal(t, 1, summary.Extracted)
}

func TestExtractAll_ForceReload(t *testing.T) {
	files := []types.FileRecord{record("/lib/a.epub", 10)}
	ex := newCountingExtractor()
	cache := newMemCache()

	_, _, err := ExtractAll(context.Background(), files, cache, ex, types.ExtractionConfig{}, nil)
	require.NoError(t, err)
	cache.force = true
	_, _, err = ExtractAll(context.Background(), files, cache, ex, types.ExtractionConfig{}, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, ex.total())
}

func TestExtractAll_InterruptKeepsCompletedEntries(t *testing.T) {
	var files []types.FileRecord
	for i := range 50 {
		files = append(files, record(fmt.Sprintf("/lib/f%02d.pdf", i), int64(i)))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var seen atomic.Int32
	ex := newCountingExtractor()
	ex.hook = func(types.FileRecord) {
		if seen.Add(1) == 5 {
			cancel()
		}
	}
	cache := newMemCache()

	results, summary, err := ExtractAll(ctx, files, cache, ex, types.ExtractionConfig{Workers: 1}, nil)
	require.ErrorIs(t, err, context.Canceled)
	assert.Less(t, len(results), len(files))
	assert.GreaterOrEqual(t, len(results), 5)
	assert.Equal(t, len(results), summary.Total())

	// Every reported result was written to the cache.
	for path := range results {
		_, ok := cache.entries[path]
		assert.True(t, ok, path)
	}
}

func TestExtractAll_CancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ex := newCountingExtractor()
	results, _, err := ExtractAll(ctx, []types.FileRecord{record("/lib/a.pdf", 1)}, newMemCache(), ex, types.ExtractionConfig{}, nil)
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, results)
	assert.Zero(t, ex.total())
}

func TestExtractAll_Empty(t *testing.T) {
	results, summary, err := ExtractAll(context.Background(), nil, newMemCache(), newCountingExtractor(), types.ExtractionConfig{}, nil)
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Zero(t, summary.Total())
}
