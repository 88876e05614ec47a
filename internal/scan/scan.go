// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package scan walks an input directory tree and returns the document
// files libshelf knows how to read.
package scan

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/afero"

	"github.com/pdiddy/libshelf/pkg/types"
)

// Options controls a directory scan.
type Options struct {
	// Skip lists absolute directories that are never descended into
	// (e.g. the library and cache directories when nested in the input).
	Skip []string

	// Fs is the filesystem walked (default the OS filesystem).
	Fs afero.Fs
}

// Walk recursively scans root for regular files with a recognized
// extension. Symlinks and unsupported extensions are ignored. Records are
// returned sorted by path with absolute paths and current fingerprints.
func Walk(ctx context.Context, root string, opts Options) ([]types.FileRecord, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving input directory %s: %w", root, err)
	}

	skip := make(map[string]bool, len(opts.Skip))
	for _, dir := range opts.Skip {
		if abs, err := filepath.Abs(dir); err == nil {
			skip[abs] = true
		}
	}

	fsys := opts.Fs
	if fsys == nil {
		fsys = afero.NewOsFs()
	}

	var records []types.FileRecord
	err = afero.Walk(fsys, absRoot, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if info.IsDir() {
			if path != absRoot && skip[path] {
				return filepath.SkipDir
			}
			return nil
		}
		// afero.Walk uses Lstat where available, so symlinks are not followed.
		if !info.Mode().IsRegular() {
			return nil
		}
		format, ok := types.FormatForPath(path)
		if !ok {
			return nil
		}
		records = append(records, types.FileRecord{
			Path:        path,
			Format:      format,
			Fingerprint: types.NewFingerprint(info.Size(), info.ModTime()),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", absRoot, err)
	}

	sort.Slice(records, func(i, j int) bool { return records[i].Path < records[j].Path })
	return records, nil
}
