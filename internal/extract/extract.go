// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package extract runs the per-format extractor over scanned files with a
// bounded worker pool, reusing cached metadata when a file's fingerprint is
// unchanged.
package extract

import (
	"context"
	"errors"
	"log/slog"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/libshelf/internal/logging"
	"github.com/pdiddy/libshelf/pkg/types"
)

// Extractor reads raw metadata from one file. Implementations must be safe
// for concurrent use.
type Extractor interface {
	Extract(ctx context.Context, rec types.FileRecord) (types.Extracted, error)
}

// Cache is the part of the metadata cache store the pool needs.
type Cache interface {
	Lookup(path string, fp types.Fingerprint) (types.Metadata, bool)
	Put(rec types.FileRecord, md types.Metadata)
}

// BatchSummary holds counts from one extraction pass.
type BatchSummary struct {
	Extracted int
	Cached    int
	Partial   int
	Failed    int
}

// Total returns the number of files accounted for.
func (s BatchSummary) Total() int {
	return s.Extracted + s.Cached + s.Failed
}

// HasFailures reports whether any file failed extraction.
func (s BatchSummary) HasFailures() bool {
	return s.Failed > 0
}

// Results maps a file path to its metadata.
type Results map[string]types.Metadata

// ExtractAll returns metadata for every file in files. Cache hits are
// resolved inline; misses are fed to cfg.Workers workers. A failing file
// becomes a failed record and never stops the batch.
//
// When ctx is cancelled, workers stop picking up new files, in-flight
// extractions finish, and ExtractAll returns the results gathered so far
// together with ctx.Err(). Every returned result is already in cache.
func ExtractAll(ctx context.Context, files []types.FileRecord, cache Cache, ex Extractor, cfg types.ExtractionConfig, logger *slog.Logger) (Results, BatchSummary, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logging.NewComponentLogger(logger, "extract")

	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	results := make(Results, len(files))
	var summary BatchSummary

	var pending []types.FileRecord
	for _, rec := range files {
		if md, ok := cache.Lookup(rec.Path, rec.Fingerprint); ok {
			results[rec.Path] = md
			summary.Cached++
			continue
		}
		pending = append(pending, rec)
	}
	logger.Info("extraction plan", "files", len(files), "cached", summary.Cached, "pending", len(pending), "workers", workers)

	if len(pending) == 0 {
		return results, summary, ctx.Err()
	}

	var mu sync.Mutex
	queue := make(chan types.FileRecord)

	// The group context is not used for cancellation: workers never return
	// errors, so only ctx stops the batch.
	g := new(errgroup.Group)
	for range min(workers, len(pending)) {
		g.Go(func() error {
			for rec := range queue {
				md, ok := extractOne(ctx, rec, ex, logger)
				if !ok {
					continue
				}
				cache.Put(rec, md)

				mu.Lock()
				results[rec.Path] = md
				switch md.Status {
				case types.StatusFailed:
					summary.Failed++
				case types.StatusPartial:
					summary.Partial++
					summary.Extracted++
				default:
					summary.Extracted++
				}
				mu.Unlock()
			}
			return nil
		})
	}

feed:
	for _, rec := range pending {
		select {
		case <-ctx.Done():
			break feed
		case queue <- rec:
		}
	}
	close(queue)
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		logger.Warn("extraction interrupted", "completed", summary.Extracted+summary.Failed, "pending", len(pending))
		return results, summary, err
	}
	return results, summary, nil
}

// extractOne runs the extractor for rec. It returns false when the run was
// cancelled before or during the call, in which case nothing is recorded.
func extractOne(ctx context.Context, rec types.FileRecord, ex Extractor, logger *slog.Logger) (types.Metadata, bool) {
	if ctx.Err() != nil {
		return types.Metadata{}, false
	}
	raw, err := ex.Extract(ctx, rec)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			if ctx.Err() != nil {
				return types.Metadata{}, false
			}
		}
		logger.Warn("extraction failed", "path", rec.Path, "format", rec.Format, "error", err)
		return failed(rec, err), true
	}

	md := sanitize(rec, raw)
	if md.Status == types.StatusPartial {
		logger.Info("replaced junk title", "path", rec.Path, "title", raw.Title, "stem", md.Title)
	}
	logger.Debug("extracted", "path", rec.Path, "title", md.Title)
	return md, true
}
