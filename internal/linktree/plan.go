// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package linktree

import (
	"fmt"
	"path/filepath"
	"sort"

	"github.com/pdiddy/libshelf/internal/textutil"
)

// Managed subtrees under the library root.
const (
	TitleDir     = "by_title"
	PublisherDir = "by_publisher"
)

const (
	untitledName     = "Untitled"
	unknownPublisher = "Unknown Publisher"
)

// Item is one document to expose in the library.
type Item struct {
	// Source is the absolute path of the real file.
	Source    string
	Title     string
	Publisher string
}

// Link is one desired symlink. Path is relative to the library root.
type Link struct {
	Path   string
	Source string
}

// Plan is the full set of desired links, sorted by Path.
type Plan struct {
	Links []Link
}

// BuildPlan computes the desired links for items: one under by_title and
// one under by_publisher/<publisher> for each item. Names are sanitized.
// Items are placed in source-path order, and a name already taken in a
// directory (compared case-insensitively) gets a " (2)", " (3)", ...
// suffix, so the same input always yields the same plan.
func BuildPlan(items []Item) Plan {
	sorted := make([]Item, len(items))
	copy(sorted, items)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Source < sorted[j].Source })

	used := make(map[string]map[string]bool) // dir -> folded names
	publisherDirs := make(map[string]string) // folded publisher -> dir name
	claim := func(dir, name string) string {
		names := used[dir]
		if names == nil {
			names = make(map[string]bool)
			used[dir] = names
		}
		candidate := name
		for n := 2; names[textutil.FoldKey(candidate)]; n++ {
			candidate = fmt.Sprintf("%s (%d)", name, n)
		}
		names[textutil.FoldKey(candidate)] = true
		return candidate
	}

	var plan Plan
	for _, it := range sorted {
		title := textutil.SanitizeName(it.Title, untitledName)

		pub := textutil.SanitizeName(it.Publisher, unknownPublisher)
		pubKey := textutil.FoldKey(pub)
		if existing, ok := publisherDirs[pubKey]; ok {
			pub = existing
		} else {
			publisherDirs[pubKey] = pub
		}
		pubDir := filepath.Join(PublisherDir, pub)

		plan.Links = append(plan.Links,
			Link{Path: filepath.Join(TitleDir, claim(TitleDir, title)), Source: it.Source},
			Link{Path: filepath.Join(pubDir, claim(pubDir, title)), Source: it.Source},
		)
	}

	sort.Slice(plan.Links, func(i, j int) bool { return plan.Links[i].Path < plan.Links[j].Path })
	return plan
}
