// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package extract

import (
	"regexp"
	"strings"

	"github.com/pdiddy/libshelf/pkg/types"
)

// junkTitlePatterns match placeholder titles written by authoring tools.
// Matching is done against the trimmed title, case-insensitively.
var junkTitlePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^(n/?a|none|null|unknown|untitled|title|-+)$`),
	regexp.MustCompile(`(?i)^(untitled|document|doc|book|presentation|workbook)[\s_-]*\d*$`),
	regexp.MustCompile(`(?i)^microsoft (word|powerpoint|excel) - `),
	regexp.MustCompile(`(?i)^[\w\s.-]+\.(docx?|rtf|odt|pptx?|xlsx?|indd|qxd|tex|dvi|pdf|epub|html?)$`),
	regexp.MustCompile(`^[\s\p{P}\p{S}]*$`),
}

// IsJunkTitle reports whether title is empty or an auto-generated name
// that says nothing about the document.
func IsJunkTitle(title string) bool {
	title = strings.TrimSpace(title)
	if title == "" {
		return true
	}
	for _, re := range junkTitlePatterns {
		if re.MatchString(title) {
			return true
		}
	}
	return false
}

// sanitize turns raw extractor output into Metadata. A junk or empty title
// is replaced by the file stem and the record is marked partial.
func sanitize(rec types.FileRecord, ex types.Extracted) types.Metadata {
	md := types.Metadata{
		Title:     strings.Join(strings.Fields(ex.Title), " "),
		Authors:   ex.Authors,
		Publisher: strings.TrimSpace(ex.Publisher),
		Status:    types.StatusSuccess,
	}
	if md.Authors == nil {
		md.Authors = []string{}
	}
	if IsJunkTitle(md.Title) {
		md.Title = rec.Stem()
		md.Status = types.StatusPartial
	}
	return md
}

// failed builds the record kept for a file whose extractor returned err.
func failed(rec types.FileRecord, err error) types.Metadata {
	return types.Metadata{
		Title:   rec.Stem(),
		Authors: []string{},
		Status:  types.StatusFailed,
		Error:   err.Error(),
	}
}
