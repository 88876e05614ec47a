// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package normalize maps raw publisher strings to canonical names. A
// resolution tries, in order: the placeholder check, the rule table, the
// publisher cache, and the AI normalizer.
package normalize

import (
	"context"
	"errors"
	"log/slog"
	"runtime"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/pdiddy/libshelf/internal/logging"
	"github.com/pdiddy/libshelf/internal/textutil"
	"github.com/pdiddy/libshelf/pkg/types"
)

// DefaultFallback is the canonical name for blank and unresolved publishers.
const DefaultFallback = "Unknown Publisher"

// DefaultTimeout bounds one AI normalization call.
const DefaultTimeout = 30 * time.Second

// placeholders are raw values extractors emit when a file has no publisher.
var placeholders = map[string]bool{
	"n/a":     true,
	"none":    true,
	"unknown": true,
	"-":       true,
	"null":    true,
}

// Normalizer returns the canonical name for a raw publisher string.
type Normalizer interface {
	Normalize(ctx context.Context, raw string) (string, error)
}

// Rules looks up a raw string in the rule table.
type Rules interface {
	Lookup(raw string) (string, bool)
}

// Cache is the part of the publisher cache store the resolver needs.
type Cache interface {
	Get(raw string) (types.PublisherEntry, bool)
	Put(entry types.PublisherEntry)
}

// Stats counts resolutions by outcome.
type Stats struct {
	Fallback   int
	Rule       int
	Cached     int
	AI         int
	Unresolved int
	AIErrors   int
}

// Resolver resolves raw publisher strings. It is safe for concurrent use.
type Resolver struct {
	rules  Rules
	cache  Cache
	ai     Normalizer
	cfg    types.NormalizeConfig
	logger *slog.Logger

	flight singleflight.Group

	mu    sync.Mutex
	fresh map[string]string // AI answers obtained during this run, by fold key
	stats Stats
}

// NewResolver returns a Resolver. ai may be nil to disable the AI step.
func NewResolver(rules Rules, cache Cache, ai Normalizer, cfg types.NormalizeConfig, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = logging.NewNop()
	}
	if cfg.Fallback == "" {
		cfg.Fallback = DefaultFallback
	}
	if cfg.AI.Timeout <= 0 {
		cfg.AI.Timeout = DefaultTimeout
	}
	return &Resolver{
		rules:  rules,
		cache:  cache,
		ai:     ai,
		cfg:    cfg,
		logger: logging.NewComponentLogger(logger, "normalize"),
		fresh:  make(map[string]string),
	}
}

// IsBlank reports whether raw carries no publisher: empty, whitespace, or a
// placeholder such as "N/A".
func IsBlank(raw string) bool {
	s := strings.TrimSpace(raw)
	return s == "" || placeholders[strings.ToLower(s)]
}

// Resolve returns the canonical name for raw. It never fails: errors from
// the AI normalizer leave the string unresolved for this run.
func (r *Resolver) Resolve(ctx context.Context, raw string) types.Resolution {
	clean := strings.Join(strings.Fields(raw), " ")
	if IsBlank(clean) {
		r.count(func(s *Stats) { s.Fallback++ })
		return types.Resolution{Canonical: r.cfg.Fallback, Source: types.SourceFallback}
	}

	if canonical, ok := r.lookupRule(clean); ok {
		r.cache.Put(types.PublisherEntry{Raw: clean, Canonical: canonical, Source: types.SourceRule})
		r.count(func(s *Stats) { s.Rule++ })
		return types.Resolution{Canonical: canonical, Source: types.SourceRule}
	}

	key := textutil.FoldKey(clean)
	r.mu.Lock()
	canonical, ok := r.fresh[key]
	r.mu.Unlock()
	if ok {
		r.count(func(s *Stats) { s.AI++ })
		return types.Resolution{Canonical: canonical, Source: types.SourceAI}
	}

	// Rule-sourced cache entries are ignored so edits to the rule file take
	// effect on the next run.
	if !r.cfg.ForceNormalize {
		if e, ok := r.cache.Get(clean); ok && e.Source == types.SourceAI && e.Canonical != "" {
			r.count(func(s *Stats) { s.Cached++ })
			return types.Resolution{Canonical: e.Canonical, Source: types.SourceAI}
		}
	}

	if r.ai != nil {
		canonical, err := r.askAI(ctx, key, clean)
		if err == nil {
			r.count(func(s *Stats) { s.AI++ })
			return types.Resolution{Canonical: canonical, Source: types.SourceAI}
		}
		if ctx.Err() == nil {
			r.logger.Warn("AI normalization failed", "publisher", clean, "error", err)
			r.count(func(s *Stats) { s.AIErrors++ })
		}
	}

	r.markUnresolved(clean)
	r.count(func(s *Stats) { s.Unresolved++ })
	if r.cfg.KeepRaw {
		return types.Resolution{Canonical: clean, Source: types.SourceUnresolved}
	}
	return types.Resolution{Canonical: r.cfg.Fallback, Source: types.SourceUnresolved}
}

// askAI calls the normalizer once per fold key. Concurrent callers for the
// same key share the first caller's result.
func (r *Resolver) askAI(ctx context.Context, key, clean string) (string, error) {
	v, err, shared := r.flight.Do(key, func() (any, error) {
		r.mu.Lock()
		done, ok := r.fresh[key]
		r.mu.Unlock()
		if ok {
			return done, nil
		}

		callCtx, cancel := context.WithTimeout(ctx, r.cfg.AI.Timeout)
		defer cancel()

		canonical, err := r.ai.Normalize(callCtx, clean)
		if err != nil {
			return "", err
		}
		canonical = strings.Join(strings.Fields(canonical), " ")
		if canonical == "" {
			return "", errors.New("empty canonical name")
		}

		r.mu.Lock()
		r.fresh[key] = canonical
		r.mu.Unlock()
		r.cache.Put(types.PublisherEntry{Raw: clean, Canonical: canonical, Source: types.SourceAI})
		r.logger.Info("AI normalized publisher", "publisher", clean, "canonical", canonical)
		return canonical, nil
	})
	if err != nil {
		return "", err
	}
	if shared {
		r.logger.Debug("shared in-flight AI lookup", "publisher", clean)
	}
	return v.(string), nil
}

// markUnresolved records clean as unresolved unless the cache already holds
// a resolved entry for it, which a failed retry must not overwrite.
func (r *Resolver) markUnresolved(clean string) {
	if e, ok := r.cache.Get(clean); ok && e.Resolved() {
		return
	}
	r.cache.Put(types.PublisherEntry{Raw: clean, Source: types.SourceUnresolved})
}

// ResolveAll resolves every distinct string in raws with at most
// cfg.Workers resolutions in flight. On cancellation it returns the
// resolutions finished so far and ctx.Err().
func (r *Resolver) ResolveAll(ctx context.Context, raws []string) (map[string]types.Resolution, error) {
	workers := r.cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	out := make(map[string]types.Resolution, len(raws))
	var mu sync.Mutex

	g := new(errgroup.Group)
	g.SetLimit(workers)
	seen := make(map[string]bool, len(raws))
	for _, raw := range raws {
		if seen[raw] {
			continue
		}
		seen[raw] = true
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			res := r.Resolve(ctx, raw)
			if ctx.Err() != nil && res.Source == types.SourceUnresolved {
				return nil
			}
			mu.Lock()
			out[raw] = res
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	s := r.Stats()
	r.logger.Info("publishers resolved", "distinct", len(out), "rule", s.Rule, "cached", s.Cached, "ai", s.AI, "unresolved", s.Unresolved, "fallback", s.Fallback)
	return out, ctx.Err()
}

// Stats returns resolution counts so far.
func (r *Resolver) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

func (r *Resolver) count(f func(*Stats)) {
	r.mu.Lock()
	f(&r.stats)
	r.mu.Unlock()
}

func (r *Resolver) lookupRule(clean string) (string, bool) {
	if r.rules == nil {
		return "", false
	}
	return r.rules.Lookup(clean)
}
