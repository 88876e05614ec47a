package textutil

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// FoldKey returns the case- and whitespace-insensitive lookup key for s.
// Two strings that differ only in case, Unicode composition, or spacing
// produce the same key.
func FoldKey(s string) string {
	s = norm.NFC.String(s)
	s = strings.Join(strings.Fields(s), " ")
	return cases.Fold().String(s)
}
