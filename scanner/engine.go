// Package scanner is the inspection engine: single-file inspection with the
// result cache, and batch inspection on a bounded goroutine or process pool.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/Hellohistory/ErrorFile/cache"
	"github.com/Hellohistory/ErrorFile/inspector"
	"github.com/Hellohistory/ErrorFile/plugins"
	"github.com/Hellohistory/ErrorFile/prefilter"
	"github.com/Hellohistory/ErrorFile/registry"
	"github.com/Hellohistory/ErrorFile/report"
	"github.com/Hellohistory/ErrorFile/tracing"
)

// DefaultStagedExtensions have a deep check expensive enough that running
// the fast check first pays off.
var DefaultStagedExtensions = []string{
	".docx", ".xlsx", ".xls", ".pptx",
	".zip", ".rar", ".7z", ".tar", ".tar.gz", ".tar.bz2", ".tar.xz", ".gz", ".bz2", ".xz",
	".mp3", ".mp4", ".flac", ".ogg", ".oga", ".wav",
	".sqlite", ".db", ".msg",
}

// InspectOptions controls a single inspection. The zero value inspects in
// deep mode with neither the cache nor the signature prefilter; start from
// DefaultInspectOptions for the usual behaviour.
type InspectOptions struct {
	// Mode is "fast" or "deep"; empty means deep.
	Mode              string
	UseCache          bool
	SignaturePrecheck bool
	Allowlist         []string
	Denylist          []string
}

func DefaultInspectOptions() InspectOptions {
	return InspectOptions{Mode: string(report.ModeDeep), UseCache: true, SignaturePrecheck: true}
}

func (o InspectOptions) policy() prefilter.Policy {
	return prefilter.Policy{
		Enabled:   o.SignaturePrecheck,
		Allowlist: o.Allowlist,
		Denylist:  o.Denylist,
	}.Normalized()
}

// Engine owns a registry, a signature table and a result cache. Register
// checkers before inspecting; the registry is not guarded against
// concurrent writes.
type Engine struct {
	registry   *registry.Registry
	signatures *prefilter.Table
	cache      *cache.Cache
	inspector  *inspector.Inspector
	groups     []plugins.Group
	loaded     plugins.LoadResult
	staged     map[string]bool
	// custom is set once the checker set or signature table differs from
	// what a fresh Default engine in a worker process would build.
	custom bool
}

type Option func(*Engine)

// WithRegistry uses reg as is; plugin groups are not loaded into it.
func WithRegistry(reg *registry.Registry) Option {
	return func(e *Engine) {
		e.registry = reg
		e.custom = true
	}
}

// WithPlugins replaces the default checker groups.
func WithPlugins(groups ...plugins.Group) Option {
	return func(e *Engine) {
		e.groups = groups
		e.custom = true
	}
}

func WithSignatures(t *prefilter.Table) Option {
	return func(e *Engine) {
		e.signatures = t
		e.custom = true
	}
}

func WithCache(c *cache.Cache) Option {
	return func(e *Engine) { e.cache = c }
}

func WithCacheSize(n int) Option {
	return func(e *Engine) { e.cache = cache.New(n) }
}

// WithStagedExtensions replaces DefaultStagedExtensions.
func WithStagedExtensions(exts ...string) Option {
	return func(e *Engine) { e.staged = stagedSet(exts) }
}

func New(opts ...Option) *Engine {
	e := &Engine{groups: plugins.Default()}
	for _, opt := range opts {
		opt(e)
	}
	if e.registry == nil {
		e.registry = registry.New()
		e.loaded = plugins.Load(e.registry, e.groups)
	}
	if e.signatures == nil {
		e.signatures = prefilter.Default()
	}
	if e.cache == nil {
		e.cache = cache.New(cache.DefaultMaxEntries)
	}
	if e.staged == nil {
		e.staged = stagedSet(DefaultStagedExtensions)
	}
	e.inspector = inspector.New(e.registry, e.signatures)
	return e
}

var (
	defaultOnce   sync.Once
	defaultEngine *Engine
)

// Default returns the process-wide engine with every compiled-in checker
// group, building it on first use.
func Default() *Engine {
	defaultOnce.Do(func() {
		defaultEngine = New()
	})
	return defaultEngine
}

func stagedSet(exts []string) map[string]bool {
	set := make(map[string]bool, len(exts))
	for _, ext := range exts {
		norm, ok := registry.NormalizeExtension(ext)
		if !ok {
			panic(fmt.Sprintf("scanner: malformed staged extension %q", ext))
		}
		set[norm] = true
	}
	return set
}

// Register binds ext to c, replacing any existing binding.
func (e *Engine) Register(ext string, c registry.Checker) {
	e.registry.Register(ext, c)
	e.custom = true
}

func (e *Engine) RegisterFunc(ext string, fn func(string, report.Mode) report.Finding) {
	e.registry.RegisterFunc(ext, fn)
	e.custom = true
}

// Reproducible reports whether a worker process running the compiled-in
// default engine reaches the same verdicts as e. Runtime registrations,
// custom registries, plugin sets and signature tables make it false.
func (e *Engine) Reproducible() bool { return !e.custom }

// StagedExtensions returns the sorted staged extension set.
func (e *Engine) StagedExtensions() []string {
	return slices.Sorted(maps.Keys(e.staged))
}

// withStaged returns a shallow copy of e staging exactly exts.
func (e *Engine) withStaged(exts []string) *Engine {
	c := *e
	c.staged = stagedSet(exts)
	return &c
}

func (e *Engine) Registry() *registry.Registry { return e.registry }

func (e *Engine) Cache() *cache.Cache { return e.cache }

// Plugins reports which checker groups New loaded.
func (e *Engine) Plugins() plugins.LoadResult { return e.loaded }

// Inspect checks one file. It never fails: every problem, including a bad
// mode or a missing file, is described by the returned report.
func (e *Engine) Inspect(path string, opts InspectOptions) report.Report {
	return e.inspect(context.Background(), path, opts, false)
}

func (e *Engine) inspect(ctx context.Context, path string, opts InspectOptions, staged bool) report.Report {
	start := time.Now()
	abs := absPath(path)
	ext := registry.DisplayExtension(abs)

	mode, ok := parseMode(opts.Mode)
	if !ok {
		f := report.Fail(fmt.Sprintf("invalid mode %q; expected fast or deep", opts.Mode), report.TagInvalidMode)
		return report.New(abs, ext, report.Mode(opts.Mode), f).WithDuration(elapsedMS(start))
	}

	info, err := os.Stat(abs)
	if err != nil {
		f := report.FailErr("could not stat file", err, report.TagIOError)
		if errors.Is(err, fs.ErrNotExist) {
			f = report.FailErr("file not found", err, report.TagNotFound)
		}
		return report.New(abs, ext, mode, f).WithDuration(elapsedMS(start))
	}
	if info.IsDir() {
		f := report.Fail("path is a directory", report.TagIOError)
		return report.New(abs, ext, mode, f).WithDuration(elapsedMS(start))
	}

	ctx, endTask := tracing.StartTask(ctx, "inspect")
	defer endTask()

	policy := opts.policy()
	if staged && mode == report.ModeDeep && e.isStaged(abs) {
		r := e.cached(ctx, abs, ext, info, report.ModeFast, policy, opts.UseCache)
		if !r.OK {
			return r.WithMode(report.ModeDeep).WithDuration(elapsedMS(start))
		}
		r = e.cached(ctx, abs, ext, info, report.ModeDeep, prefilter.Policy{}, opts.UseCache)
		return r.WithDuration(elapsedMS(start))
	}
	r := e.cached(ctx, abs, ext, info, mode, policy, opts.UseCache)
	return r.WithDuration(elapsedMS(start))
}

// cached answers from the cache when allowed and stores fresh results.
func (e *Engine) cached(ctx context.Context, path, ext string, info os.FileInfo, mode report.Mode, policy prefilter.Policy, useCache bool) report.Report {
	key := cache.NewKey(path, info, mode, policy)
	if useCache {
		if r, ok := e.cache.Get(key); ok {
			tracing.Log(ctx, "cache", "hit")
			return r.WithCacheHit(true)
		}
	}
	f := e.inspector.Inspect(ctx, path, mode, policy)
	r := report.New(path, ext, mode, f)
	if useCache {
		e.cache.Set(key, r)
	}
	return r
}

func (e *Engine) isStaged(path string) bool {
	for _, c := range registry.Candidates(path) {
		if e.staged[c] {
			return true
		}
	}
	return false
}

func parseMode(s string) (report.Mode, bool) {
	if s == "" {
		return report.ModeDeep, true
	}
	return report.ParseMode(s)
}

func absPath(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return filepath.Clean(path)
	}
	return abs
}

func elapsedMS(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000
}
