// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// PublisherSource records where a canonical publisher name came from.
type PublisherSource string

const (
	SourceRule       PublisherSource = "rule"
	SourceAI         PublisherSource = "ai"
	SourceUnresolved PublisherSource = "unresolved"
	// SourceFallback marks blank or placeholder publisher strings mapped to
	// the configured fallback canonical. It is never cached.
	SourceFallback PublisherSource = "fallback"
)

// PublisherEntry maps one raw publisher string to a canonical name.
type PublisherEntry struct {
	// Raw is the publisher string as first seen.
	Raw string `json:"raw" yaml:"raw"`

	// Canonical is the normalized name; empty for unresolved entries.
	Canonical string `json:"canonical,omitempty" yaml:"canonical,omitempty"`

	Source    PublisherSource `json:"source" yaml:"source"`
	UpdatedAt time.Time       `json:"updated_at" yaml:"updated_at"`
}

// Resolved reports whether the entry carries a stable canonical name.
func (e PublisherEntry) Resolved() bool {
	return e.Canonical != "" && (e.Source == SourceRule || e.Source == SourceAI)
}

// Resolution is the outcome of resolving one raw publisher string.
type Resolution struct {
	Canonical string          `json:"canonical" yaml:"canonical"`
	Source    PublisherSource `json:"source" yaml:"source"`
}
