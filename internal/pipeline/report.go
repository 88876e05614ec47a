// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/pdiddy/libshelf/internal/fileutil"
	"github.com/pdiddy/libshelf/pkg/types"
)

// buildReport returns one entry per scanned file, sorted by path.
func (c *Coordinator) buildReport(r *run) types.Report {
	files := make([]types.ReportEntry, 0, len(r.records))
	for _, rec := range r.records {
		md := r.extracted[rec.Path]
		res := r.resolved[md.Publisher]
		authors := md.Authors
		if authors == nil {
			authors = []string{}
		}
		files = append(files, types.ReportEntry{
			Path:            rec.Path,
			Format:          rec.Format,
			Title:           md.Title,
			Authors:         authors,
			Publisher:       res.Canonical,
			RawPublisher:    md.Publisher,
			PublisherSource: res.Source,
			Status:          md.Status,
			Error:           md.Error,
		})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return types.Report{Files: files}
}

// MarshalReport encodes rep as indented JSON with a trailing newline.
func MarshalReport(rep types.Report) ([]byte, error) {
	data, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding report: %w", err)
	}
	return append(data, '\n'), nil
}

// writeReport writes the report atomically to the configured path, or to
// Stdout in a dry run.
func (c *Coordinator) writeReport(r *run) error {
	data, err := MarshalReport(r.res.Report)
	if err != nil {
		return err
	}
	if r.res.DryRun {
		if _, err := c.deps.Stdout.Write(data); err != nil {
			return fmt.Errorf("writing report: %w", err)
		}
		return nil
	}
	if err := fileutil.WriteFileAtomic(c.cfg.ReportPath, data, 0o644); err != nil {
		return fmt.Errorf("writing report %s: %w", c.cfg.ReportPath, err)
	}
	r.res.ReportPath = c.cfg.ReportPath
	c.logger.Info("report written", "path", c.cfg.ReportPath, "files", len(r.res.Report.Files))
	return nil
}
