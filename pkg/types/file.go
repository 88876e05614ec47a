// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"path/filepath"
	"strings"
	"time"
)

// Format identifies a supported document file format.
type Format string

const (
	FormatPDF  Format = "pdf"
	FormatEPUB Format = "epub"
)

// formatsByExt maps lowercase file extensions to formats.
var formatsByExt = map[string]Format{
	".pdf":  FormatPDF,
	".epub": FormatEPUB,
}

// FormatForPath returns the format implied by the file extension of path.
// The second return value is false for unsupported extensions.
func FormatForPath(path string) (Format, bool) {
	f, ok := formatsByExt[strings.ToLower(filepath.Ext(path))]
	return f, ok
}

// Fingerprint is the (size, modification time) pair that decides whether a
// cached Metadata entry is still valid for a file.
type Fingerprint struct {
	Size    int64 `json:"size" yaml:"size"`
	ModTime int64 `json:"mod_time" yaml:"mod_time"` // Unix nanoseconds
}

// NewFingerprint builds a Fingerprint from a size and modification time.
func NewFingerprint(size int64, modTime time.Time) Fingerprint {
	return Fingerprint{Size: size, ModTime: modTime.UnixNano()}
}

// FileRecord describes one physical document file found by the scanner.
// Path is absolute and serves as the identity key across runs.
type FileRecord struct {
	Path        string      `json:"path" yaml:"path"`
	Format      Format      `json:"format" yaml:"format"`
	Fingerprint Fingerprint `json:"fingerprint" yaml:"fingerprint"`
}

// Stem returns the file name without directory and extension.
func (r FileRecord) Stem() string {
	base := filepath.Base(r.Path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
