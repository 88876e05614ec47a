// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package linktree materializes the symlink library: by_title/<title> and
// by_publisher/<publisher>/<title>, each pointing at the real file.
package linktree

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"

	"github.com/pdiddy/libshelf/internal/logging"
	"github.com/pdiddy/libshelf/pkg/types"
)

// Op names a reconciliation action.
type Op string

const (
	OpCreate   Op = "create"
	OpRemove   Op = "remove"
	OpReplace  Op = "replace"
	OpPrune    Op = "prune"
	OpConflict Op = "conflict"
)

// Action is one change made, or intended in a dry run.
type Action struct {
	Op     Op     `json:"op"`
	Path   string `json:"path"`
	Target string `json:"target,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// Report summarizes a reconciliation.
type Report struct {
	Created   int
	Removed   int
	Replaced  int
	Unchanged int
	Pruned    int
	Conflicts int
	DryRun    bool
	Actions   []Action
}

// Writes returns the number of filesystem mutations made or intended.
func (r Report) Writes() int {
	return r.Created + r.Removed + r.Replaced + r.Pruned
}

// Materializer reconciles a library directory against a Plan. It is not
// safe for concurrent use.
type Materializer struct {
	fs     afero.Fs
	root   string
	style  types.LinkStyle
	dryRun bool
	logger *slog.Logger
}

// New returns a Materializer for cfg on the real filesystem. In a dry run
// the filesystem is wrapped read-only.
func New(cfg types.LinkConfig, logger *slog.Logger) (*Materializer, error) {
	var fsys afero.Fs = afero.NewOsFs()
	if cfg.DryRun {
		fsys = afero.NewReadOnlyFs(fsys)
	}
	return NewWithFs(fsys, cfg, logger)
}

// NewWithFs returns a Materializer over fsys, which must support symlinks.
func NewWithFs(fsys afero.Fs, cfg types.LinkConfig, logger *slog.Logger) (*Materializer, error) {
	if _, ok := fsys.(afero.Symlinker); !ok {
		return nil, fmt.Errorf("filesystem %s does not support symlinks", fsys.Name())
	}
	if cfg.LibraryDir == "" {
		return nil, errors.New("library directory is required")
	}
	root, err := filepath.Abs(cfg.LibraryDir)
	if err != nil {
		return nil, fmt.Errorf("resolving library directory: %w", err)
	}
	style := cfg.Style
	if style == "" {
		style = types.LinkRelative
	}
	if style != types.LinkRelative && style != types.LinkAbsolute {
		return nil, fmt.Errorf("unknown link style %q", style)
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Materializer{
		fs:     fsys,
		root:   root,
		style:  style,
		dryRun: cfg.DryRun,
		logger: logging.NewComponentLogger(logger, "linktree"),
	}, nil
}

// Root returns the absolute library directory.
func (m *Materializer) Root() string { return m.root }

// existing describes one entry found under a managed subtree.
type existing struct {
	rel    string
	target string // symlink target, "" for non-links
	isLink bool
	isDir  bool
}

// Reconcile makes the managed subtrees match plan. Links already correct
// are left alone, stale links are removed, wrong links are replaced, and
// missing links are created. Anything that is not a symlink is never
// touched; if it occupies a desired path, that link is reported as a
// conflict. Publisher directories left empty are removed.
//
// Per-link failures are recorded as conflicts and do not stop the pass.
// Only a failure to read the existing tree is returned as an error.
func (m *Materializer) Reconcile(plan Plan) (Report, error) {
	rep := Report{DryRun: m.dryRun}

	desired := make(map[string]string, len(plan.Links))
	for _, l := range plan.Links {
		target, err := m.target(l)
		if err != nil {
			m.conflict(&rep, l.Path, "", err.Error())
			continue
		}
		desired[l.Path] = target
	}

	found, err := m.scan()
	if err != nil {
		return rep, err
	}

	// remaining counts, per publisher directory, the entries that will be
	// there after this pass.
	remaining := make(map[string]int)
	pubDirs := make(map[string]bool)
	handled := make(map[string]bool, len(desired))

	for _, e := range found {
		parent := filepath.Dir(e.rel)
		if parent == PublisherDir && e.isDir {
			pubDirs[e.rel] = true
			continue
		}

		want, isDesired := desired[e.rel]
		switch {
		case e.isLink && isDesired && e.target == want:
			rep.Unchanged++
			handled[e.rel] = true
			remaining[parent]++
		case e.isLink && isDesired:
			handled[e.rel] = true
			if m.replace(&rep, e.rel, e.target, want) {
				remaining[parent]++
			}
		case e.isLink:
			if !m.remove(&rep, e.rel, e.target) {
				remaining[parent]++
			}
		case isDesired:
			handled[e.rel] = true
			m.conflict(&rep, e.rel, want, "path exists and is not a symlink")
			remaining[parent]++
		default:
			m.logger.Debug("leaving unmanaged entry", "path", e.rel)
			remaining[parent]++
		}
	}

	paths := make([]string, 0, len(desired))
	for p := range desired {
		if !handled[p] {
			paths = append(paths, p)
		}
	}
	sort.Strings(paths)
	for _, p := range paths {
		if m.create(&rep, p, desired[p]) {
			remaining[filepath.Dir(p)]++
		}
	}

	dirs := make([]string, 0, len(pubDirs))
	for d := range pubDirs {
		dirs = append(dirs, d)
	}
	sort.Strings(dirs)
	for _, d := range dirs {
		if remaining[d] == 0 {
			m.prune(&rep, d)
		}
	}

	m.logger.Info("library reconciled",
		"root", m.root, "dry_run", m.dryRun,
		"created", rep.Created, "removed", rep.Removed, "replaced", rep.Replaced,
		"unchanged", rep.Unchanged, "pruned", rep.Pruned, "conflicts", rep.Conflicts)
	return rep, nil
}

// target returns the symlink target for l in the configured style.
func (m *Materializer) target(l Link) (string, error) {
	if m.style == types.LinkAbsolute {
		return l.Source, nil
	}
	linkDir := filepath.Dir(filepath.Join(m.root, l.Path))
	rel, err := filepath.Rel(linkDir, l.Source)
	if err != nil {
		return "", fmt.Errorf("computing relative target: %w", err)
	}
	return rel, nil
}

// scan lists every entry below the managed subtrees, depth first, without
// following symlinks.
func (m *Materializer) scan() ([]existing, error) {
	var out []existing
	for _, sub := range []string{TitleDir, PublisherDir} {
		base := filepath.Join(m.root, sub)
		info, _, err := m.lstat(base)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", base, err)
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("%s exists and is not a directory", base)
		}

		err = afero.Walk(m.fs, base, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if path == base {
				return nil
			}
			rel, err := filepath.Rel(m.root, path)
			if err != nil {
				return err
			}
			e := existing{rel: rel, isDir: info.IsDir()}
			if info.Mode()&os.ModeSymlink != 0 {
				e.isLink = true
				if e.target, err = m.readlink(path); err != nil {
					return err
				}
			}
			out = append(out, e)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walking %s: %w", base, err)
		}
	}
	return out, nil
}

func (m *Materializer) lstat(path string) (os.FileInfo, bool, error) {
	return m.fs.(afero.Lstater).LstatIfPossible(path)
}

func (m *Materializer) readlink(path string) (string, error) {
	return m.fs.(afero.LinkReader).ReadlinkIfPossible(path)
}

func (m *Materializer) symlink(target, path string) error {
	return m.fs.(afero.Linker).SymlinkIfPossible(target, path)
}

func (m *Materializer) record(rep *Report, a Action) {
	rep.Actions = append(rep.Actions, a)
	if m.dryRun {
		m.logger.Info("would "+string(a.Op), "path", a.Path, "target", a.Target)
		return
	}
	m.logger.Debug(string(a.Op), "path", a.Path, "target", a.Target)
}

func (m *Materializer) conflict(rep *Report, rel, target, reason string) {
	rep.Conflicts++
	rep.Actions = append(rep.Actions, Action{Op: OpConflict, Path: rel, Target: target, Reason: reason})
	m.logger.Warn("link conflict", "path", rel, "target", target, "reason", reason)
}

func (m *Materializer) create(rep *Report, rel, target string) bool {
	if !m.dryRun {
		abs := filepath.Join(m.root, rel)
		if err := m.fs.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
			m.conflict(rep, rel, target, err.Error())
			return false
		}
		if err := m.symlink(target, abs); err != nil {
			m.conflict(rep, rel, target, err.Error())
			return false
		}
	}
	rep.Created++
	m.record(rep, Action{Op: OpCreate, Path: rel, Target: target})
	return true
}

func (m *Materializer) remove(rep *Report, rel, oldTarget string) bool {
	if !m.dryRun {
		if err := m.fs.Remove(filepath.Join(m.root, rel)); err != nil {
			m.conflict(rep, rel, oldTarget, err.Error())
			return false
		}
	}
	rep.Removed++
	m.record(rep, Action{Op: OpRemove, Path: rel, Target: oldTarget})
	return true
}

// replace points an existing link at target. It reports whether a link
// remains at rel afterwards.
func (m *Materializer) replace(rep *Report, rel, oldTarget, target string) bool {
	if !m.dryRun {
		abs := filepath.Join(m.root, rel)
		if err := m.fs.Remove(abs); err != nil {
			m.conflict(rep, rel, target, err.Error())
			return true
		}
		if err := m.symlink(target, abs); err != nil {
			m.conflict(rep, rel, target, err.Error())
			return false
		}
	}
	rep.Replaced++
	m.record(rep, Action{Op: OpReplace, Path: rel, Target: target, Reason: "was " + oldTarget})
	return true
}

func (m *Materializer) prune(rep *Report, rel string) {
	if !m.dryRun {
		if err := m.fs.Remove(filepath.Join(m.root, rel)); err != nil {
			m.logger.Warn("could not prune empty directory", "path", rel, "error", err)
			return
		}
	}
	rep.Pruned++
	m.record(rep, Action{Op: OpPrune, Path: rel})
}

// Describe renders a one-line summary of a for dry-run listings.
func Describe(a Action) string {
	var b strings.Builder
	b.WriteString(string(a.Op))
	b.WriteByte(' ')
	b.WriteString(a.Path)
	if a.Target != "" {
		b.WriteString(" -> ")
		b.WriteString(a.Target)
	}
	if a.Reason != "" {
		b.WriteString(" (")
		b.WriteString(a.Reason)
		b.WriteByte(')')
	}
	return b.String()
}
