package generator

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/clearsign"
	"github.com/klauspost/compress/gzip"

	"github.com/appstream-tools/dep11-generator/archive"
	"github.com/appstream-tools/dep11-generator/cache"
	"github.com/appstream-tools/dep11-generator/dep11"
)

// writeOutput deterministically rebuilds the published metadata and hints
// streams of one (suite, component, architecture) from the current index
// plus the cache. Packages without a cached data entry are simply omitted,
// so the published output reflects only currently-indexed packages even if
// stale cache entries remain.
func (e *Engine) writeOutput(suite, component, arch string, records []archive.PackageRecord) error {
	dir := e.cfg.DEP11Dir(suite, component)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}

	header, err := dep11.HeaderYAML(suite+"/"+component, e.cfg.MediaBaseUrl)
	if err != nil {
		return err
	}

	var meta, hints bytes.Buffer
	meta.Write(header)
	for _, rec := range records {
		id := rec.ID()

		data, err := e.cache.Get("data/" + id)
		switch {
		case err == nil:
			meta.Write(data)
		case !errors.Is(err, cache.ErrNotFound):
			return err
		}

		h, err := e.cache.Get("hints/" + id)
		if errors.Is(err, cache.ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		if len(h) == 0 || string(h) == ignoreSentinel {
			continue
		}
		hints.Write(h)
	}

	metaPath := filepath.Join(dir, fmt.Sprintf("Components-%s.yml.gz", arch))
	if err := writeGzipAtomic(metaPath, meta.Bytes()); err != nil {
		return err
	}
	hintsPath := filepath.Join(dir, fmt.Sprintf("DEP11Hints_%s.yml.gz", arch))
	return writeGzipAtomic(hintsPath, hints.Bytes())
}

// writeGzipAtomic gzips content into a temporary file next to dest and
// atomically substitutes it for the previously published file. A failure
// before the rename leaves the old file valid and unchanged.
func writeGzipAtomic(dest string, content []byte) error {
	tmp := dest + ".new"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("creating %s: %w", tmp, err)
	}
	gzw := gzip.NewWriter(f)
	if _, err := gzw.Write(content); err == nil {
		err = gzw.Close()
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	} else {
		gzw.Close()
		f.Close()
	}
	if err != nil {
		os.Remove(tmp)
		return fmt.Errorf("writing %s: %w", tmp, err)
	}
	return replaceFile(tmp, dest)
}

// replaceFile publishes tmp at dest with remove-then-rename, so no reader
// ever observes a partially written file.
func replaceFile(tmp, dest string) error {
	if err := os.Remove(dest); err != nil && !os.IsNotExist(err) {
		os.Remove(tmp)
		return fmt.Errorf("removing old %s: %w", dest, err)
	}
	if err := os.Rename(tmp, dest); err != nil {
		return fmt.Errorf("publishing %s: %w", dest, err)
	}
	return nil
}

// writeChecksums writes a CHECKSUMS manifest over every published DEP-11
// artifact of the suite/component, and a clearsigned CHECKSUMS.asc when a
// signing key is configured.
func (e *Engine) writeChecksums(suite, component string) error {
	dir := e.cfg.DEP11Dir(suite, component)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("listing %s: %w", dir, err)
	}

	var names []string
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasSuffix(name, ".yml.gz") || strings.HasSuffix(name, ".tar.gz") {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	var b bytes.Buffer
	for _, name := range names {
		content, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return fmt.Errorf("hashing %s: %w", name, err)
		}
		fmt.Fprintf(&b, "%x %d %s\n", sha256.Sum256(content), len(content), name)
	}

	if err := writeFileAtomic(filepath.Join(dir, "CHECKSUMS"), b.Bytes()); err != nil {
		return err
	}

	key, err := e.cfg.SigningKey()
	if err != nil {
		return err
	}
	if key == "" {
		return nil
	}
	signed, err := clearsignBytes(b.Bytes(), key)
	if err != nil {
		return fmt.Errorf("signing CHECKSUMS: %w", err)
	}
	return writeFileAtomic(filepath.Join(dir, "CHECKSUMS.asc"), signed)
}

// writeFileAtomic writes content with the same temp-then-rename pattern as
// the compressed streams.
func writeFileAtomic(dest string, content []byte) error {
	tmp := dest + ".new"
	if err := os.WriteFile(tmp, content, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", tmp, err)
	}
	return replaceFile(tmp, dest)
}

// clearsignBytes signs input with the first private key of the
// ASCII-armored keyring.
func clearsignBytes(input []byte, key string) ([]byte, error) {
	entities, err := openpgp.ReadArmoredKeyRing(strings.NewReader(key))
	if err != nil {
		return nil, err
	}
	var signer *openpgp.Entity
	for _, entity := range entities {
		if entity.PrivateKey != nil {
			signer = entity
			break
		}
	}
	if signer == nil {
		return nil, fmt.Errorf("no private key found")
	}

	var out bytes.Buffer
	w, err := clearsign.Encode(&out, signer.PrivateKey, nil)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(input); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}
