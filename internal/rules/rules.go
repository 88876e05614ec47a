// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package rules loads the publisher rule table: a CSV file where each row
// is a canonical publisher name followed by its known variants, e.g.
//
//	"O'Reilly Media","O'Reilly","O'Reilly & Associates"
//
// Loading produces an immutable Table mapping every variant (and each
// canonical name itself) to its canonical. Lookups fold case, Unicode
// composition, and whitespace. A variant claimed by two different
// canonicals is always a load error. Malformed rows (unparsable CSV or an
// empty canonical) are skipped with a warning, or rejected when Strict is
// set. Blank lines and lines starting with '#' are ignored.
package rules

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/pdiddy/libshelf/internal/logging"
	"github.com/pdiddy/libshelf/internal/textutil"
)

var (
	// ErrAmbiguousVariant is returned when one variant maps to two canonicals.
	ErrAmbiguousVariant = errors.New("ambiguous publisher variant")

	// ErrMalformedRow is returned in strict mode for a row that cannot be used.
	ErrMalformedRow = errors.New("malformed rule row")
)

// RowError describes one rejected row.
type RowError struct {
	Line int
	Err  error
}

func (e RowError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e RowError) Unwrap() error { return e.Err }

// Options controls rule loading.
type Options struct {
	// Strict makes malformed rows fatal.
	Strict bool

	Logger *slog.Logger
}

// Table is a validated variant-to-canonical lookup. The zero value is an
// empty table.
type Table struct {
	byKey    map[string]string
	variants map[string][]string
	skipped  []RowError
}

// Lookup returns the canonical name for raw, if any rule matches.
func (t *Table) Lookup(raw string) (string, bool) {
	if t == nil || t.byKey == nil {
		return "", false
	}
	c, ok := t.byKey[textutil.FoldKey(raw)]
	return c, ok
}

// Len returns the number of distinct lookup keys.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.byKey)
}

// Canonicals returns every canonical name, sorted.
func (t *Table) Canonicals() []string {
	if t == nil {
		return nil
	}
	out := make([]string, 0, len(t.variants))
	for c := range t.variants {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// Variants returns the variants declared for canonical, in file order.
func (t *Table) Variants(canonical string) []string {
	if t == nil {
		return nil
	}
	return t.variants[canonical]
}

// Skipped returns the malformed rows ignored during a non-strict load.
func (t *Table) Skipped() []RowError {
	if t == nil {
		return nil
	}
	return t.skipped
}

// Load reads the rule file at path. When path does not exist and required
// is false, an empty table is returned.
func Load(path string, required bool, opts Options) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && !required {
			logging.NewComponentLogger(opts.Logger, "rules").Info("no rules file, using empty table", "path", path)
			return &Table{}, nil
		}
		return nil, fmt.Errorf("opening rules file: %w", err)
	}
	defer f.Close()

	t, err := Parse(f, opts)
	if err != nil {
		return nil, fmt.Errorf("loading rules file %s: %w", path, err)
	}
	return t, nil
}

// Parse builds a Table from CSV rows read from r.
func Parse(r io.Reader, opts Options) (*Table, error) {
	logger := logging.NewComponentLogger(opts.Logger, "rules")
	t := &Table{
		byKey:    make(map[string]string),
		variants: make(map[string][]string),
	}
	// keyLine remembers where each key was first declared, for error messages.
	keyLine := make(map[string]int)

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields, err := parseRow(line)
		if err != nil {
			rowErr := RowError{Line: lineNo, Err: fmt.Errorf("%w: %v", ErrMalformedRow, err)}
			if opts.Strict {
				return nil, rowErr
			}
			logger.Warn("skipping malformed rule row", "line", lineNo, "error", err)
			t.skipped = append(t.skipped, rowErr)
			continue
		}

		canonical := fields[0]
		names := append([]string{canonical}, fields[1:]...)
		for _, name := range names {
			key := textutil.FoldKey(name)
			if key == "" {
				continue
			}
			if existing, ok := t.byKey[key]; ok {
				if existing != canonical {
					return nil, RowError{Line: lineNo, Err: fmt.Errorf("%w: %q maps to both %q (line %d) and %q",
						ErrAmbiguousVariant, name, existing, keyLine[key], canonical)}
				}
				continue
			}
			t.byKey[key] = canonical
			keyLine[key] = lineNo
			if name != canonical {
				t.variants[canonical] = append(t.variants[canonical], name)
			}
		}
		if _, ok := t.variants[canonical]; !ok {
			t.variants[canonical] = nil
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading rules: %w", err)
	}

	logger.Debug("loaded publisher rules", "canonicals", len(t.variants), "keys", len(t.byKey), "skipped", len(t.skipped))
	return t, nil
}

// parseRow splits one CSV line and trims each field. The canonical (first
// field) must be non-empty.
func parseRow(line string) ([]string, error) {
	cr := csv.NewReader(strings.NewReader(line))
	cr.FieldsPerRecord = -1
	record, err := cr.Read()
	if err != nil {
		return nil, err
	}

	fields := make([]string, 0, len(record))
	for _, f := range record {
		fields = append(fields, strings.TrimSpace(f))
	}
	if len(fields) == 0 || fields[0] == "" {
		return nil, errors.New("empty canonical name")
	}

	out := fields[:1]
	for _, f := range fields[1:] {
		if f != "" {
			out = append(out, f)
		}
	}
	return out, nil
}
