package generator

import (
	"archive/tar"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/klauspost/compress/gzip"
)

// bundleIcons rebuilds the per-size icon tarballs of one suite/component
// from the exported asset tree. Icons are deduplicated by basename across
// packages; the first occurrence (in lexical identity order) wins and later
// duplicates are dropped silently.
func (e *Engine) bundleIcons(suite, component string) error {
	exportDir := e.cfg.ComponentExportDir(suite, component)
	dir := e.cfg.DEP11Dir(suite, component)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}

	// ReadDir returns entries sorted by name, which makes "first
	// occurrence wins" deterministic across runs.
	ids, err := os.ReadDir(exportDir)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("listing %s: %w", exportDir, err)
	}

	for _, size := range e.cfg.IconSizes {
		seen := make(map[string]bool)
		var paths []string
		for _, idEntry := range ids {
			if !idEntry.IsDir() {
				continue
			}
			sizeDir := filepath.Join(exportDir, idEntry.Name(), "icons", strconv.Itoa(size))
			icons, err := os.ReadDir(sizeDir)
			if err != nil {
				continue
			}
			for _, icon := range icons {
				if icon.IsDir() || seen[icon.Name()] {
					continue
				}
				seen[icon.Name()] = true
				paths = append(paths, filepath.Join(sizeDir, icon.Name()))
			}
		}

		dest := filepath.Join(dir, fmt.Sprintf("icons-%d.tar.gz", size))
		if err := writeIconTarball(dest, paths); err != nil {
			return err
		}
		e.log.Debugw("icon tarball published", "file", dest, "icons", len(paths))
	}
	return nil
}

// writeIconTarball writes the given files as a flat gzipped tarball, using
// the same temporary-then-atomic-rename pattern as the metadata streams.
// Headers carry fixed modes and zero timestamps so an unchanged icon set
// produces byte-identical archives.
func writeIconTarball(dest string, paths []string) error {
	tmp := dest + ".new"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("creating %s: %w", tmp, err)
	}

	err = func() error {
		gzw := gzip.NewWriter(f)
		tw := tar.NewWriter(gzw)
		for _, p := range paths {
			content, err := os.ReadFile(p)
			if err != nil {
				return fmt.Errorf("reading icon %s: %w", p, err)
			}
			header := &tar.Header{
				Name: filepath.Base(p),
				Size: int64(len(content)),
				Mode: 0o644,
			}
			if err := tw.WriteHeader(header); err != nil {
				return fmt.Errorf("writing header for %s: %w", p, err)
			}
			if _, err := tw.Write(content); err != nil {
				return fmt.Errorf("writing icon %s: %w", p, err)
			}
		}
		if err := tw.Close(); err != nil {
			return err
		}
		return gzw.Close()
	}()
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp)
		return fmt.Errorf("writing %s: %w", tmp, err)
	}
	return replaceFile(tmp, dest)
}
