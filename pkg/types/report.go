// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

// ReportEntry is one file's line in the JSON run report.
type ReportEntry struct {
	Path            string           `json:"path"`
	Format          Format           `json:"format"`
	Title           string           `json:"title"`
	Authors         []string         `json:"authors"`
	Publisher       string           `json:"publisher"`
	RawPublisher    string           `json:"raw_publisher"`
	PublisherSource PublisherSource  `json:"publisher_source"`
	Status          ExtractionStatus `json:"status"`
	Error           string           `json:"error,omitempty"`
}

// Report is the combined output document written at the end of a run.
// It carries no timestamps or counters so unchanged inputs produce a
// byte-identical report.
type Report struct {
	Files []ReportEntry `json:"files"`
}
