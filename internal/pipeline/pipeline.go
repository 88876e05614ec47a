// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package pipeline runs one library build: scan, extract, normalize,
// materialize, report. It owns the cache stores for the run and the
// interrupt path that flushes them before exiting early.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"github.com/pdiddy/libshelf/internal/extract"
	"github.com/pdiddy/libshelf/internal/extractor"
	"github.com/pdiddy/libshelf/internal/linktree"
	"github.com/pdiddy/libshelf/internal/logging"
	"github.com/pdiddy/libshelf/internal/metacache"
	"github.com/pdiddy/libshelf/internal/normalize"
	"github.com/pdiddy/libshelf/internal/pubcache"
	"github.com/pdiddy/libshelf/internal/rules"
	"github.com/pdiddy/libshelf/internal/scan"
	"github.com/pdiddy/libshelf/pkg/types"
)

var (
	// ErrInterrupted is returned when the run context is cancelled. Caches
	// have been flushed and no report was written.
	ErrInterrupted = errors.New("run interrupted")

	// ErrLocked is returned when another live run holds the cache lock.
	ErrLocked = errors.New("another libshelf run is using the cache directory")
)

// LockFile is the run lock inside the cache directory.
const LockFile = "libshelf.lock"

// DefaultGracePeriod bounds how long in-flight work may run after an
// interrupt before the caches are flushed anyway.
const DefaultGracePeriod = 5 * time.Second

// Phase is a state of the run.
type Phase string

const (
	PhaseInit        Phase = "init"
	PhaseScan        Phase = "scan"
	PhaseExtract     Phase = "extract"
	PhaseNormalize   Phase = "normalize"
	PhaseMaterialize Phase = "materialize"
	PhaseReport      Phase = "report"
	PhaseDone        Phase = "done"
	PhaseInterrupted Phase = "interrupted"
)

// Deps are the collaborators of a run. Zero values get production
// defaults.
type Deps struct {
	// Extractor reads metadata from files (default extractor.New()).
	Extractor extract.Extractor

	// Normalizer is the AI step, used only when AI is enabled in config.
	// When nil, a Claude normalizer is built from config.
	Normalizer normalize.Normalizer

	// Stdout receives the report in a dry run (default os.Stdout).
	Stdout io.Writer

	Logger *slog.Logger

	// OnPhase is called on every phase transition.
	OnPhase func(Phase)
}

// Result describes a finished or interrupted run.
type Result struct {
	RunID       string
	Phase       Phase
	DryRun      bool
	Files       int
	Extraction  extract.BatchSummary
	Publishers  normalize.Stats
	Links       linktree.Report
	CachePruned int
	ReportPath  string
	Report      types.Report
}

// Coordinator runs the pipeline for one configuration.
type Coordinator struct {
	cfg    types.RunConfig
	deps   Deps
	logger *slog.Logger
	phase  Phase
}

// New validates cfg and returns a Coordinator.
func New(cfg types.RunConfig, deps Deps) (*Coordinator, error) {
	if cfg.InputDir == "" {
		return nil, errors.New("input directory is required")
	}
	if cfg.CacheDir == "" {
		cfg.CacheDir = ".libshelf"
	}
	if cfg.ReportPath == "" {
		cfg.ReportPath = "library_report.json"
	}
	if cfg.GracePeriod <= 0 {
		cfg.GracePeriod = DefaultGracePeriod
	}
	if cfg.Links.LibraryDir == "" {
		cfg.Links.LibraryDir = "library"
	}
	if deps.Extractor == nil {
		deps.Extractor = extractor.New()
	}
	if deps.Stdout == nil {
		deps.Stdout = os.Stdout
	}
	if deps.Logger == nil {
		deps.Logger = logging.NewNop()
	}
	return &Coordinator{cfg: cfg, deps: deps, logger: deps.Logger, phase: PhaseInit}, nil
}

func (c *Coordinator) enter(p Phase) {
	c.logger.Info("phase", "from", c.phase, "to", p)
	c.phase = p
	if c.deps.OnPhase != nil {
		c.deps.OnPhase(p)
	}
}

// run holds the per-run state shared by the phases.
type run struct {
	res       *Result
	records   []types.FileRecord
	meta      *metacache.Store
	pubs      *pubcache.Cache
	resolver  *normalize.Resolver
	extracted extract.Results
	resolved  map[string]types.Resolution
}

// Run executes the pipeline. Cancelling ctx interrupts the run: in-flight
// work gets the grace period to finish, both caches are flushed with what
// was completed, and ErrInterrupted is returned. Once materialization has
// started it runs to completion; the interrupt then only skips the report.
func (c *Coordinator) Run(ctx context.Context) (*Result, error) {
	runID := uuid.NewString()
	c.logger = c.deps.Logger.With(slog.String("run_id", runID))
	dryRun := c.cfg.Links.DryRun
	r := &run{res: &Result{RunID: runID, DryRun: dryRun}}

	inputDir, err := filepath.Abs(c.cfg.InputDir)
	if err != nil {
		return r.res, fmt.Errorf("resolving input directory: %w", err)
	}
	if info, err := os.Stat(inputDir); err != nil {
		return r.res, fmt.Errorf("input directory: %w", err)
	} else if !info.IsDir() {
		return r.res, fmt.Errorf("input path %s is not a directory", inputDir)
	}

	table, err := rules.Load(c.cfg.Normalize.RulesFile, c.cfg.Normalize.RulesRequired,
		rules.Options{Strict: c.cfg.Normalize.StrictRules, Logger: c.logger})
	if err != nil {
		return r.res, err
	}

	var ai normalize.Normalizer
	if c.cfg.Normalize.AI.Enabled {
		ai = c.deps.Normalizer
		if ai == nil {
			if ai, err = normalize.NewClaudeNormalizer(c.cfg.Normalize.AI, c.logger); err != nil {
				return r.res, err
			}
		}
	}

	if !dryRun {
		unlock, err := c.lock()
		if err != nil {
			return r.res, err
		}
		defer unlock()
	}

	r.meta, err = metacache.Open(ctx, filepath.Join(c.cfg.CacheDir, metacache.DBFile), metacache.Options{
		ReadOnly:    dryRun,
		ForceReload: c.cfg.Extraction.ForceReload,
		Logger:      c.logger,
	})
	if err != nil {
		return r.res, err
	}
	defer r.meta.Close()

	r.pubs, err = pubcache.Open(filepath.Join(c.cfg.CacheDir, pubcache.File), pubcache.Options{
		ReadOnly: dryRun,
		Logger:   c.logger,
	})
	if err != nil {
		return r.res, err
	}
	r.resolver = normalize.NewResolver(table, r.pubs, ai, c.cfg.Normalize, c.logger)

	c.logger.Info("run started", "input", inputDir, "dry_run", dryRun, "rules", table.Len(), "ai", ai != nil)

	c.enter(PhaseScan)
	r.records, err = scan.Walk(ctx, inputDir, scan.Options{Skip: []string{c.cfg.CacheDir, c.cfg.Links.LibraryDir}})
	if err != nil {
		if ctx.Err() != nil {
			return c.interrupt(ctx, r)
		}
		return r.res, err
	}
	r.res.Files = len(r.records)

	c.enter(PhaseExtract)
	var (
		extracted extract.Results
		summary   extract.BatchSummary
	)
	finished, err := c.await(ctx, func() error {
		var err error
		extracted, summary, err = extract.ExtractAll(ctx, r.records, r.meta, c.deps.Extractor, c.cfg.Extraction, c.logger)
		return err
	})
	if finished {
		r.extracted, r.res.Extraction = extracted, summary
	}
	if err != nil {
		return c.interrupt(ctx, r)
	}

	c.enter(PhaseNormalize)
	raws := make([]string, 0, len(r.extracted))
	for _, rec := range r.records {
		raws = append(raws, r.extracted[rec.Path].Publisher)
	}
	var resolved map[string]types.Resolution
	finished, err = c.await(ctx, func() error {
		var err error
		resolved, err = r.resolver.ResolveAll(ctx, raws)
		return err
	})
	r.res.Publishers = r.resolver.Stats()
	if err != nil {
		return c.interrupt(ctx, r)
	}
	if finished {
		r.resolved = resolved
	}

	if !dryRun {
		keep := make(map[string]bool, len(r.records))
		for _, rec := range r.records {
			keep[rec.Path] = true
		}
		r.res.CachePruned = r.meta.Prune(keep)
	}
	if err := c.flush(ctx, r); err != nil {
		return r.res, err
	}
	if ctx.Err() != nil {
		return c.interrupt(ctx, r)
	}

	c.enter(PhaseMaterialize)
	m, err := linktree.New(c.cfg.Links, c.logger)
	if err != nil {
		return r.res, err
	}
	r.res.Links, err = m.Reconcile(linktree.BuildPlan(c.items(r)))
	if err != nil {
		return r.res, fmt.Errorf("materializing library: %w", err)
	}
	if ctx.Err() != nil {
		return c.interrupt(ctx, r)
	}

	c.enter(PhaseReport)
	r.res.Report = c.buildReport(r)
	if err := c.writeReport(r); err != nil {
		return r.res, err
	}

	c.enter(PhaseDone)
	r.res.Phase = PhaseDone
	c.logger.Info("run finished",
		"files", r.res.Files, "extracted", r.res.Extraction.Extracted, "cached", r.res.Extraction.Cached,
		"failed", r.res.Extraction.Failed, "links_created", r.res.Links.Created, "conflicts", r.res.Links.Conflicts)
	return r.res, nil
}

// await runs fn and waits for it. When ctx is cancelled first, fn gets the
// grace period to return before await gives up on it. finished reports
// whether fn returned; only then may its outputs be read.
func (c *Coordinator) await(ctx context.Context, fn func() error) (finished bool, err error) {
	done := make(chan error, 1)
	go func() { done <- fn() }()

	select {
	case err := <-done:
		return true, err
	case <-ctx.Done():
	}

	timer := time.NewTimer(c.cfg.GracePeriod)
	defer timer.Stop()
	select {
	case <-done:
		return true, ctx.Err()
	case <-timer.C:
		c.logger.Warn("in-flight work still running after grace period", "phase", c.phase, "grace", c.cfg.GracePeriod)
		return false, ctx.Err()
	}
}

// interrupt flushes both caches and ends the run early.
func (c *Coordinator) interrupt(ctx context.Context, r *run) (*Result, error) {
	from := c.phase
	c.enter(PhaseInterrupted)
	r.res.Phase = PhaseInterrupted
	if err := c.flush(ctx, r); err != nil {
		return r.res, errors.Join(fmt.Errorf("%w during %s", ErrInterrupted, from), err)
	}
	c.logger.Warn("run interrupted; caches flushed", "phase", from)
	return r.res, fmt.Errorf("%w during %s", ErrInterrupted, from)
}

// flush persists both caches. It ignores ctx cancellation so an interrupt
// can still be recorded.
func (c *Coordinator) flush(ctx context.Context, r *run) error {
	var errs []error
	if r.meta != nil {
		if err := r.meta.Flush(context.WithoutCancel(ctx)); err != nil {
			errs = append(errs, err)
		}
	}
	if r.pubs != nil {
		if err := r.pubs.Flush(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// lock takes the run lock in the cache directory.
func (c *Coordinator) lock() (func(), error) {
	release, err := AcquireLock(c.cfg.CacheDir)
	if err != nil {
		return nil, err
	}
	return func() {
		if err := release(); err != nil {
			c.logger.Warn("releasing run lock", "error", err)
		}
	}, nil
}

// AcquireLock takes the run lock in cacheDir, creating the directory if
// needed. It fails with ErrLocked instead of waiting when another process
// holds the lock.
func AcquireLock(cacheDir string) (release func() error, err error) {
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}
	fl := flock.New(filepath.Join(cacheDir, LockFile))
	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquiring run lock: %w", err)
	}
	if !ok {
		return nil, ErrLocked
	}
	return fl.Unlock, nil
}

// items joins metadata and resolutions into linktree input.
func (c *Coordinator) items(r *run) []linktree.Item {
	items := make([]linktree.Item, 0, len(r.records))
	for _, rec := range r.records {
		md := r.extracted[rec.Path]
		items = append(items, linktree.Item{
			Source:    rec.Path,
			Title:     md.Title,
			Publisher: r.resolved[md.Publisher].Canonical,
		})
	}
	return items
}
