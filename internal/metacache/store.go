// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package metacache persists extracted file metadata keyed by absolute
// path, together with the fingerprint that decides whether an entry is
// still valid.
//
// Entries are loaded into memory when the store opens. Reads and writes
// go to the in-memory map under a mutex; Flush writes every changed entry
// to SQLite in a single transaction, so an interrupted flush leaves the
// previously committed data intact.
package metacache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/libshelf/internal/logging"
	"github.com/pdiddy/libshelf/pkg/types"
)

// DBFile is the default file name of the metadata cache inside the cache dir.
const DBFile = "metadata.db"

// Entry is one cached row.
type Entry struct {
	Path        string
	Format      types.Format
	Fingerprint types.Fingerprint
	Metadata    types.Metadata
	ExtractedAt time.Time
}

// Options controls how a Store is opened.
type Options struct {
	// ReadOnly opens the database without write access. Flush, Clear and
	// Prune become no-ops on disk. A missing database yields an empty store.
	ReadOnly bool

	// ForceReload makes IsValid report false for every path.
	ForceReload bool

	Logger *slog.Logger
}

// Store is the metadata cache. It is safe for concurrent use.
type Store struct {
	db          *sql.DB
	path        string
	readOnly    bool
	forceReload bool
	logger      *slog.Logger

	mu      sync.RWMutex
	entries map[string]Entry
	dirty   map[string]bool
	deleted map[string]bool
}

// Open opens or creates the metadata cache at path and loads it into memory.
func Open(ctx context.Context, path string, opts Options) (*Store, error) {
	s := &Store{
		path:        path,
		readOnly:    opts.ReadOnly,
		forceReload: opts.ForceReload,
		logger:      logging.NewComponentLogger(opts.Logger, "metacache"),
		entries:     make(map[string]Entry),
		dirty:       make(map[string]bool),
		deleted:     make(map[string]bool),
	}

	var dsn string
	if opts.ReadOnly {
		if _, err := os.Stat(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return s, nil
			}
			return nil, fmt.Errorf("stat metadata cache %s: %w", path, err)
		}
		dsn = "file:" + path + "?mode=ro"
	} else {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating cache directory: %w", err)
		}
		dsn = "file:" + path + "?_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening metadata cache: %w", err)
	}
	s.db = db

	if !opts.ReadOnly {
		if err := s.createSchema(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("creating schema: %w", err)
		}
	}
	if err := s.load(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("loading metadata cache %s: %w", path, err)
	}

	s.logger.Debug("loaded metadata cache", "entries", len(s.entries), "path", path)
	return s, nil
}

// Close releases the database connection. It does not flush.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) createSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS files (
		path TEXT PRIMARY KEY,
		format TEXT NOT NULL,
		size INTEGER NOT NULL,
		mod_time INTEGER NOT NULL,
		title TEXT NOT NULL,
		authors TEXT NOT NULL,
		publisher TEXT NOT NULL,
		status TEXT NOT NULL,
		error TEXT NOT NULL,
		extracted_at TEXT NOT NULL
	)`)
	return err
}

func (s *Store) load(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, `SELECT path, format, size, mod_time, title, authors,
		publisher, status, error, extracted_at FROM files`)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			e           Entry
			authorsJSON string
			extractedAt string
		)
		if err := rows.Scan(&e.Path, &e.Format, &e.Fingerprint.Size, &e.Fingerprint.ModTime,
			&e.Metadata.Title, &authorsJSON, &e.Metadata.Publisher, &e.Metadata.Status,
			&e.Metadata.Error, &extractedAt); err != nil {
			return err
		}
		if err := json.Unmarshal([]byte(authorsJSON), &e.Metadata.Authors); err != nil {
			return fmt.Errorf("decoding authors for %s: %w", e.Path, err)
		}
		e.ExtractedAt, _ = time.Parse(time.RFC3339Nano, extractedAt)
		s.entries[e.Path] = e
	}
	return rows.Err()
}

// Get returns the cached metadata for path regardless of validity.
func (s *Store) Get(path string) (types.Metadata, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[path]
	return e.Metadata, ok
}

// IsValid reports whether path has a cached entry whose fingerprint equals
// fp. It is always false under ForceReload.
func (s *Store) IsValid(path string, fp types.Fingerprint) bool {
	if s.forceReload {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[path]
	return ok && e.Fingerprint == fp
}

// Lookup returns the cached metadata for path only when it is valid for fp.
func (s *Store) Lookup(path string, fp types.Fingerprint) (types.Metadata, bool) {
	if s.forceReload {
		return types.Metadata{}, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[path]
	if !ok || e.Fingerprint != fp {
		return types.Metadata{}, false
	}
	return e.Metadata, true
}

// Put records metadata for a file. The entry becomes durable on Flush.
func (s *Store) Put(rec types.FileRecord, md types.Metadata) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[rec.Path] = Entry{
		Path:        rec.Path,
		Format:      rec.Format,
		Fingerprint: rec.Fingerprint,
		Metadata:    md,
		ExtractedAt: time.Now().UTC(),
	}
	s.dirty[rec.Path] = true
	delete(s.deleted, rec.Path)
}

// Prune drops entries whose path is not in keep and returns how many were
// dropped.
func (s *Store) Prune(keep map[string]bool) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for path := range s.entries {
		if keep[path] {
			continue
		}
		delete(s.entries, path)
		delete(s.dirty, path)
		s.deleted[path] = true
		n++
	}
	return n
}

// Len returns the number of cached entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Entries returns all cached entries sorted by path.
func (s *Store) Entries() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// Clear removes every entry. The removal becomes durable on Flush.
func (s *Store) Clear() {
	s.Prune(nil)
}

// Flush writes all pending changes in one transaction. It is safe to call
// at any time, including while workers are still calling Put.
func (s *Store) Flush(ctx context.Context) error {
	if s.readOnly || s.db == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.dirty) == 0 && len(s.deleted) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("flushing metadata cache: %w", err)
	}
	defer tx.Rollback()

	upsert, err := tx.PrepareContext(ctx, `INSERT INTO files
		(path, format, size, mod_time, title, authors, publisher, status, error, extracted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			format = excluded.format, size = excluded.size, mod_time = excluded.mod_time,
			title = excluded.title, authors = excluded.authors, publisher = excluded.publisher,
			status = excluded.status, error = excluded.error, extracted_at = excluded.extracted_at`)
	if err != nil {
		return fmt.Errorf("flushing metadata cache: %w", err)
	}
	defer upsert.Close()

	for path := range s.dirty {
		e := s.entries[path]
		authors := e.Metadata.Authors
		if authors == nil {
			authors = []string{}
		}
		authorsJSON, err := json.Marshal(authors)
		if err != nil {
			return fmt.Errorf("encoding authors for %s: %w", path, err)
		}
		if _, err := upsert.ExecContext(ctx, e.Path, string(e.Format), e.Fingerprint.Size,
			e.Fingerprint.ModTime, e.Metadata.Title, string(authorsJSON), e.Metadata.Publisher,
			string(e.Metadata.Status), e.Metadata.Error, e.ExtractedAt.Format(time.RFC3339Nano)); err != nil {
			return fmt.Errorf("writing %s: %w", path, err)
		}
	}
	for path := range s.deleted {
		if _, err := tx.ExecContext(ctx, `DELETE FROM files WHERE path = ?`, path); err != nil {
			return fmt.Errorf("deleting %s: %w", path, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing metadata cache: %w", err)
	}

	s.logger.Debug("flushed metadata cache", "written", len(s.dirty), "deleted", len(s.deleted))
	s.dirty = make(map[string]bool)
	s.deleted = make(map[string]bool)
	return nil
}
