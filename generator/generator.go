// Package generator drives incremental DEP-11 metadata generation: it
// reads the archive package indices, extracts metadata from packages not
// seen before, caches the results, and deterministically assembles the
// published metadata, hints and icon artifacts.
package generator

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"go.uber.org/zap"

	"github.com/appstream-tools/dep11-generator/archive"
	"github.com/appstream-tools/dep11-generator/cache"
	"github.com/appstream-tools/dep11-generator/config"
	"github.com/appstream-tools/dep11-generator/extractor"
	"github.com/appstream-tools/dep11-generator/logger"
)

// IndexReaderFunc loads the package records of one suite/component/arch
// section. The default reads Packages indices from the archive on disk.
type IndexReaderFunc func(suite, component, arch string) ([]archive.PackageRecord, error)

// Engine is the processing coordinator. It owns the cache handle for the
// duration of a run and is not safe for concurrent use: process and
// cleanup runs against the same cache must not overlap.
type Engine struct {
	cfg   *config.Config
	cache *cache.Cache
	log   *zap.SugaredLogger

	readIndex    IndexReaderFunc
	newExtractor func(suite, component string) ExtractFunc
	timeout      time.Duration
	workers      int
}

// Option adjusts an Engine, mainly to substitute collaborators in tests.
type Option func(*Engine)

// WithIndexReader replaces the archive index reader.
func WithIndexReader(fn IndexReaderFunc) Option {
	return func(e *Engine) { e.readIndex = fn }
}

// WithExtractorFactory replaces the per-section extractor constructor.
func WithExtractorFactory(fn func(suite, component string) ExtractFunc) Option {
	return func(e *Engine) { e.newExtractor = fn }
}

// WithTaskTimeout sets the per-package extraction timeout. Zero disables
// the timeout.
func WithTaskTimeout(d time.Duration) Option {
	return func(e *Engine) { e.timeout = d }
}

// New builds an Engine over an opened cache.
func New(cfg *config.Config, c *cache.Cache, opts ...Option) *Engine {
	e := &Engine{
		cfg:     cfg,
		cache:   c,
		log:     logger.L(),
		timeout: 10 * time.Minute,
		workers: cfg.WorkerCount,
	}
	if e.workers < 1 {
		e.workers = runtime.NumCPU()
	}
	e.readIndex = func(suite, component, arch string) ([]archive.PackageRecord, error) {
		return archive.ReadIndex(cfg.ArchiveRoot, suite, component, arch)
	}
	e.newExtractor = func(suite, component string) ExtractFunc {
		return extractor.New(suite, component, cfg.ComponentExportDir(suite, component), cfg.IconSizes).Process
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Process runs one incremental generation pass over every component and
// architecture of the named suite, then rebuilds the per-component icon
// tarballs and CHECKSUMS manifests.
func (e *Engine) Process(suite string) error {
	sc, ok := e.cfg.Suites[suite]
	if !ok {
		return fmt.Errorf("suite %s is not configured", suite)
	}

	start := time.Now()
	for _, component := range sc.Components {
		for _, arch := range sc.Architectures {
			if err := e.processSection(suite, component, arch); err != nil {
				return fmt.Errorf("%s/%s/%s: %w", suite, component, arch, err)
			}
		}
		if err := e.bundleIcons(suite, component); err != nil {
			return fmt.Errorf("%s/%s: %w", suite, component, err)
		}
		if err := e.writeChecksums(suite, component); err != nil {
			return fmt.Errorf("%s/%s: %w", suite, component, err)
		}
	}
	e.log.Infow("suite processed", "suite", suite, "elapsed", time.Since(start))
	return nil
}

// processSection processes one (suite, component, arch) section: packages
// already represented in the cache are skipped, the rest are extracted on
// the worker pool, and the published streams are rebuilt from the cache
// regardless of how many packages were new.
func (e *Engine) processSection(suite, component, arch string) error {
	records, err := e.readIndex(suite, component, arch)
	if err != nil {
		return err
	}

	var fresh []archive.PackageRecord
	for _, rec := range records {
		skip, err := e.seen(rec.ID())
		if err != nil {
			return err
		}
		if !skip {
			fresh = append(fresh, rec)
		}
	}
	e.log.Infow("section scanned",
		"suite", suite, "component", component, "arch", arch,
		"indexed", len(records), "new", len(fresh),
	)

	if len(fresh) > 0 {
		p := newPool(e.workers, e.timeout, e.newExtractor(suite, component))
		go func() {
			for _, rec := range fresh {
				debPath := filepath.Join(e.cfg.ArchiveRoot, rec.Filename)
				if _, err := os.Stat(debPath); err != nil {
					e.log.Warnw("package file missing, skipping", "package", rec.ID(), "path", debPath)
					continue
				}
				p.submit(rec, debPath)
			}
			p.finish()
		}()

		agg := newAggregator()
		for res := range p.results {
			if res.err != nil {
				e.log.Warnw("extraction failed", "package", res.rec.ID(), "error", res.err)
			}
			agg.record(res)
		}
		if err := agg.flush(e.cache); err != nil {
			return err
		}
		e.log.Debugw("section cached", "suite", suite, "component", component, "arch", arch, "processed", agg.size())
	}

	return e.writeOutput(suite, component, arch, records)
}

// seen reports whether a package identity is already represented in the
// cache. Either key counts: a data entry, or a hints entry including the
// ignore sentinel.
func (e *Engine) seen(id string) (bool, error) {
	if ok, err := e.cache.Has("data/" + id); err != nil || ok {
		return ok, err
	}
	return e.cache.Has("hints/" + id)
}
