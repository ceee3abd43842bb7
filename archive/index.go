package archive

import (
	"bufio"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ReadIndex parses the binary Packages index of one (suite, component,
// architecture) triple below archiveRoot. It prefers Packages.gz and falls
// back to the uncompressed Packages file.
//
// Duplicate package names are resolved to the highest version by
// CompareVersions; equal versions keep the first-seen record. The returned
// slice preserves the order of first appearance in the index.
func ReadIndex(archiveRoot, suite, component, arch string) ([]PackageRecord, error) {
	dir := filepath.Join(archiveRoot, "dists", suite, component, "binary-"+arch)

	f, err := os.Open(filepath.Join(dir, "Packages.gz"))
	if err == nil {
		defer f.Close()
		gzr, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("opening %s/Packages.gz: %w", dir, err)
		}
		defer gzr.Close()
		return parseIndex(gzr)
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("opening %s/Packages.gz: %w", dir, err)
	}

	f, err = os.Open(filepath.Join(dir, "Packages"))
	if err != nil {
		return nil, fmt.Errorf("opening %s/Packages: %w", dir, err)
	}
	defer f.Close()
	return parseIndex(f)
}

// parseIndex reads a Packages index stream stanza by stanza and
// deduplicates the resulting records by name.
func parseIndex(r io.Reader) ([]PackageRecord, error) {
	var records []PackageRecord
	// position of a name in records, so a newer version replaces the
	// record in place and the index order stays stable
	byName := make(map[string]int)

	add := func(rec PackageRecord) {
		if rec.Name == "" || rec.Version == "" || rec.Arch == "" || rec.Filename == "" {
			return
		}
		if i, ok := byName[rec.Name]; ok {
			if CompareVersions(rec.Version, records[i].Version) > 0 {
				records[i] = rec
			}
			return
		}
		byName[rec.Name] = len(records)
		records = append(records, rec)
	}

	var rec PackageRecord
	inStanza := false

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			if inStanza {
				add(rec)
				rec = PackageRecord{}
				inStanza = false
			}
			continue
		}
		inStanza = true
		// Continuation lines belong to folded fields we do not track.
		if strings.HasPrefix(line, " ") || strings.HasPrefix(line, "\t") {
			continue
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		switch key {
		case "Package":
			rec.Name = value
		case "Version":
			rec.Version = value
		case "Architecture":
			rec.Arch = value
		case "Filename":
			rec.Filename = value
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading Packages index: %w", err)
	}
	if inStanza {
		add(rec)
	}
	return records, nil
}
