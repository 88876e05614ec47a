// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package pubcache persists publisher normalization results: raw publisher
// string to canonical name, with provenance. The cache is a YAML file so
// it can be reviewed and hand-corrected between runs.
package pubcache

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/libshelf/internal/fileutil"
	"github.com/pdiddy/libshelf/internal/logging"
	"github.com/pdiddy/libshelf/internal/textutil"
	"github.com/pdiddy/libshelf/pkg/types"
)

// File is the default file name of the normalization cache inside the cache dir.
const File = "publishers.yaml"

const fileVersion = 1

// document is the on-disk layout.
type document struct {
	Version    int                             `yaml:"version"`
	Publishers map[string]types.PublisherEntry `yaml:"publishers"`
}

// Options controls how a Cache is opened.
type Options struct {
	// ReadOnly turns Flush into a no-op.
	ReadOnly bool

	Logger *slog.Logger
}

// Cache maps folded raw publisher strings to entries. It is safe for
// concurrent use.
type Cache struct {
	path     string
	readOnly bool
	logger   *slog.Logger

	mu      sync.RWMutex
	entries map[string]types.PublisherEntry
	dirty   bool
}

// Open loads the cache at path. A missing file yields an empty cache; an
// unreadable or unparsable file is an error.
func Open(path string, opts Options) (*Cache, error) {
	c := &Cache{
		path:     path,
		readOnly: opts.ReadOnly,
		logger:   logging.NewComponentLogger(opts.Logger, "pubcache"),
		entries:  make(map[string]types.PublisherEntry),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return c, nil
		}
		return nil, fmt.Errorf("reading publisher cache %s: %w", path, err)
	}
	if len(data) == 0 {
		return c, nil
	}

	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing publisher cache %s: %w", path, err)
	}
	for key, e := range doc.Publishers {
		if key == "" {
			continue
		}
		c.entries[key] = e
	}

	c.logger.Debug("loaded publisher cache", "entries", len(c.entries), "path", path)
	return c, nil
}

// Get returns the entry for raw, matched case- and whitespace-insensitively.
func (c *Cache) Get(raw string) (types.PublisherEntry, bool) {
	key := textutil.FoldKey(raw)
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	return e, ok
}

// Put stores entry under its folded Raw key. UpdatedAt is set when zero.
func (c *Cache) Put(entry types.PublisherEntry) {
	key := textutil.FoldKey(entry.Raw)
	if key == "" {
		return
	}
	if entry.UpdatedAt.IsZero() {
		entry.UpdatedAt = time.Now().UTC()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if old, ok := c.entries[key]; ok && old.Canonical == entry.Canonical && old.Source == entry.Source {
		return
	}
	c.entries[key] = entry
	c.dirty = true
}

// Len returns the number of entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Entries returns all entries sorted by raw string.
func (c *Cache) Entries() []types.PublisherEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]types.PublisherEntry, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Raw < out[j].Raw })
	return out
}

// Clear removes every entry. The removal becomes durable on Flush.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]types.PublisherEntry)
	c.dirty = true
}

// Flush writes the cache to disk atomically via a temp file and rename.
// It is a no-op when nothing changed or the cache is read-only.
func (c *Cache) Flush() error {
	if c.readOnly {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.dirty {
		return nil
	}

	data, err := yaml.Marshal(document{Version: fileVersion, Publishers: c.entries})
	if err != nil {
		return fmt.Errorf("marshaling publisher cache: %w", err)
	}
	if err := fileutil.WriteFileAtomic(c.path, data, 0o644); err != nil {
		return fmt.Errorf("writing publisher cache %s: %w", c.path, err)
	}

	c.dirty = false
	c.logger.Debug("flushed publisher cache", "entries", len(c.entries))
	return nil
}
