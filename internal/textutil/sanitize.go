package textutil

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// MaxNameBytes caps a sanitized name, leaving room under the common
// 255-byte component limit for a " (NNN)" collision suffix.
const MaxNameBytes = 200

// Placeholder replaces characters that are unsafe in file names.
const Placeholder = "_"

// unsafeNameChars are rejected on at least one common filesystem.
const unsafeNameChars = `/\:*?"<>|`

// SanitizeName turns s into a single safe path component. Unsafe and
// control characters become Placeholder, whitespace runs collapse to one
// space, leading dots and trailing dots/spaces are trimmed, and the result
// is truncated to MaxNameBytes on a rune boundary. An empty result becomes
// fallback.
func SanitizeName(s, fallback string) string {
	s = norm.NFC.String(s)

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case strings.ContainsRune(unsafeNameChars, r), r == utf8.RuneError:
			b.WriteString(Placeholder)
		case unicode.IsSpace(r):
			b.WriteByte(' ')
		case unicode.IsControl(r):
			b.WriteString(Placeholder)
		default:
			b.WriteRune(r)
		}
	}

	name := strings.Join(strings.Fields(b.String()), " ")
	name = strings.TrimLeft(name, ".")
	name = truncateBytes(name, MaxNameBytes)
	name = strings.TrimRight(name, ". ")
	if name == "" {
		return fallback
	}
	return name
}

// truncateBytes shortens s to at most n bytes without splitting a rune.
func truncateBytes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
