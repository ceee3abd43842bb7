package generator

import (
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"
)

// Cleanup garbage-collects the cache and export tree: it recomputes the
// full set of valid package identities across every configured
// suite/component/architecture and removes cache entries and exported
// asset directories belonging to packages no longer present in any index.
//
// The freshly recomputed set is the sole ground truth: an identity found in
// any current index is never touched, regardless of the state of the
// export tree. Cleanup must not run concurrently with Process against the
// same cache; that exclusion is an operational invariant, not enforced
// here.
func (e *Engine) Cleanup() error {
	valid, err := e.validIdentities()
	if err != nil {
		// An unreadable index must abort the pass: treating it as empty
		// would wrongly orphan every package it lists.
		return err
	}

	orphans := make(map[string]struct{})
	removedKeys := 0
	for _, prefix := range []string{"data/", "hints/"} {
		var doomed []string
		err := e.cache.ForEachKey(prefix, func(suffix string) error {
			if _, ok := valid[suffix]; !ok {
				doomed = append(doomed, suffix)
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, suffix := range doomed {
			if err := e.cache.Delete(prefix + suffix); err != nil {
				return err
			}
			orphans[suffix] = struct{}{}
			removedKeys++
		}
	}

	// Asset directory removal is independent and best-effort: a missing
	// directory is not an error.
	removedDirs := 0
	for id := range orphans {
		for suite, sc := range e.cfg.Suites {
			for _, component := range sc.Components {
				dir := filepath.Join(e.cfg.ComponentExportDir(suite, component), id)
				if _, err := os.Stat(dir); err != nil {
					continue
				}
				if err := os.RemoveAll(dir); err != nil {
					e.log.Warnw("could not remove asset directory", "dir", dir, "error", err)
					continue
				}
				removedDirs++
			}
		}
	}

	e.cache.Compact()
	e.log.Infow("cleanup finished",
		"valid", len(valid),
		"removed_keys", removedKeys,
		"removed_packages", len(orphans),
		"removed_asset_dirs", removedDirs,
	)
	return nil
}

// validIdentities reads every configured index concurrently and merges the
// results single-threaded into the set of identity keys that must survive
// garbage collection.
func (e *Engine) validIdentities() (map[string]struct{}, error) {
	type triple struct {
		suite, component, arch string
	}
	var triples []triple
	for suite, sc := range e.cfg.Suites {
		for _, component := range sc.Components {
			for _, arch := range sc.Architectures {
				triples = append(triples, triple{suite, component, arch})
			}
		}
	}

	ids := make([][]string, len(triples))
	g := new(errgroup.Group)
	g.SetLimit(e.workers)
	for i, t := range triples {
		i, t := i, t
		g.Go(func() error {
			records, err := e.readIndex(t.suite, t.component, t.arch)
			if err != nil {
				return err
			}
			list := make([]string, 0, len(records))
			for _, rec := range records {
				list = append(list, rec.ID())
			}
			ids[i] = list
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	valid := make(map[string]struct{})
	for _, list := range ids {
		for _, id := range list {
			valid[id] = struct{}{}
		}
	}
	return valid, nil
}
