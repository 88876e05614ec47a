// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

// ExtractionStatus records how metadata extraction went for a file.
type ExtractionStatus string

const (
	// StatusSuccess means the extractor returned a usable title.
	StatusSuccess ExtractionStatus = "success"

	// StatusPartial means extraction ran but the title was empty or junk
	// and was replaced by the filename stem.
	StatusPartial ExtractionStatus = "partial"

	// StatusFailed means the extractor returned an error; Error holds it.
	StatusFailed ExtractionStatus = "failed"
)

// Extracted is the raw output of a per-format extractor before any
// sanitization.
type Extracted struct {
	Title     string   `json:"title" yaml:"title"`
	Authors   []string `json:"authors" yaml:"authors"`
	Publisher string   `json:"publisher" yaml:"publisher"`
}

// Metadata is the bibliographic metadata derived from a FileRecord.
// Title is never empty.
type Metadata struct {
	Title     string           `json:"title" yaml:"title"`
	Authors   []string         `json:"authors" yaml:"authors"`
	Publisher string           `json:"publisher" yaml:"publisher"`
	Status    ExtractionStatus `json:"status" yaml:"status"`
	Error     string           `json:"error,omitempty" yaml:"error,omitempty"`
}
