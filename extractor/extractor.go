// Package extractor reads software component metadata out of Debian binary
// packages: desktop entries become DEP-11 components and their icons are
// exported to the per-package asset directory.
//
// An Extractor is scoped to one (suite, component) pair. Process is safe to
// call from multiple goroutines because each call operates only on its own
// package and writes below the package's identity-named export directory.
package extractor

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/blakesmith/ar"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"

	"github.com/appstream-tools/dep11-generator/archive"
	"github.com/appstream-tools/dep11-generator/dep11"
)

const (
	applicationsDir = "usr/share/applications/"
	appdataDir      = "usr/share/appdata/"
	hicolorDir      = "usr/share/icons/hicolor/"
	pixmapsDir      = "usr/share/pixmaps/"
)

// Only raster PNG icons can be exported as-is; everything else is
// rejected with an error hint like the original extraction pipeline did.
const exportableIconExt = ".png"

// Extractor turns .deb files of one suite/component into DEP-11 components.
type Extractor struct {
	suite     string
	component string
	// exportDir is the asset directory of the suite/component; every
	// package gets an identity-named subdirectory below it.
	exportDir string
	iconSizes []int
}

// New creates an Extractor writing assets below exportDir.
func New(suite, component, exportDir string, iconSizes []int) *Extractor {
	return &Extractor{
		suite:     suite,
		component: component,
		exportDir: exportDir,
		iconSizes: iconSizes,
	}
}

// debContents is the scanned payload of one .deb file: the full file list
// plus the raw bytes of files relevant for metadata extraction.
type debContents struct {
	files map[string][]byte
	list  []string
}

// Process extracts all components from the package's .deb file: AppStream
// upstream XML files first, each merged with its associated desktop entry,
// then the desktop entries no XML claimed. A package without any metadata
// files yields an empty slice, which the caller records as "nothing
// extractable". Read or decompression failures are returned as errors.
func (e *Extractor) Process(rec archive.PackageRecord, debPath string) ([]*dep11.Component, error) {
	contents, err := readDebContents(debPath)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", filepath.Base(debPath), err)
	}

	// desktop entries keyed by basename, which is also the component ID
	// an XML file references
	desktop := make(map[string][]byte)
	var desktopOrder []string
	for _, name := range contents.list {
		if strings.HasPrefix(name, applicationsDir) && strings.HasSuffix(name, ".desktop") {
			id := path.Base(name)
			desktop[id] = contents.files[name]
			desktopOrder = append(desktopOrder, id)
		}
	}

	var cpts []*dep11.Component
	claimed := make(map[string]bool)
	for _, name := range contents.list {
		if !strings.HasPrefix(name, appdataDir) || !strings.HasSuffix(name, ".xml") {
			continue
		}
		data := contents.files[name]
		if len(data) == 0 {
			continue
		}
		cpt := componentFromAppstreamXML(rec.Name, path.Base(name), data)
		if cpt.Type == "desktop-app" && !cpt.Ignored() {
			ddata, ok := desktop[cpt.ID]
			switch {
			case !ok:
				cpt.AddErrorHint(missingDesktopHint)
			case len(ddata) == 0:
				claimed[cpt.ID] = true
				appdataEmptyHint(cpt, rec.Name)
			default:
				claimed[cpt.ID] = true
				mergeDesktopData(cpt, ddata)
			}
		}
		cpts = append(cpts, cpt)
	}

	for _, id := range desktopOrder {
		if claimed[id] {
			continue
		}
		data := desktop[id]
		if len(data) == 0 {
			cpt := dep11.NewComponent("desktop-app", rec.Name)
			cpt.ID = id
			cpt.AddErrorHint("File '%s' from package '%s' appeared empty.", id, rec.Name)
			cpts = append(cpts, cpt)
			continue
		}
		cpts = append(cpts, componentFromDesktop(rec.Name, id, data))
	}

	for _, cpt := range cpts {
		if cpt.Ignored() {
			continue
		}
		if cpt.Icon != "" {
			e.exportIcon(rec, cpt, contents)
		}
		// A visible desktop application must carry an icon.
		if cpt.Type == "desktop-app" && cpt.Icon == "" && !cpt.Ignored() {
			cpt.AddErrorHint("GUI application, but no valid icon found.")
		}
	}
	return cpts, nil
}

// exportIcon locates the component's icon inside the package payload and
// writes it to the identity-named export directory, once per configured
// size. On success cpt.Icon is replaced with the exported basename; on
// failure it is cleared and an error hint records why.
func (e *Extractor) exportIcon(rec archive.PackageRecord, cpt *dep11.Component, contents *debContents) {
	iconRef := cpt.Icon
	cpt.Icon = ""

	// An absolute reference points directly at a payload file.
	if strings.HasPrefix(iconRef, "/") {
		e.storeIcon(rec, cpt, strings.TrimPrefix(iconRef, "/"), contents, e.iconSizes[0])
		return
	}

	base := path.Base(iconRef)
	// A referenced icon without extension is a themed stock icon name;
	// assume a PNG exists for it.
	if !strings.Contains(base, ".") {
		base += exportableIconExt
	}

	stored := false
	for _, size := range e.iconSizes {
		prefix := fmt.Sprintf("%s%dx%d/", hicolorDir, size, size)
		for _, name := range contents.list {
			if strings.HasPrefix(name, prefix) && path.Base(name) == base {
				if e.storeIcon(rec, cpt, name, contents, size) {
					stored = true
				}
				break
			}
		}
	}
	if stored {
		return
	}

	// Fall back to the unsized pixmaps directory, exported at the
	// smallest configured size.
	for _, name := range contents.list {
		if !strings.HasPrefix(name, pixmapsDir) {
			continue
		}
		fb := path.Base(name)
		if fb == base || strings.TrimSuffix(fb, path.Ext(fb)) == strings.TrimSuffix(base, exportableIconExt) {
			if e.storeIcon(rec, cpt, name, contents, e.iconSizes[0]) {
				return
			}
		}
	}

	if !cpt.Ignored() {
		cpt.AddErrorHint("Icon '%s' was not found in the archive or is not available in a suitable size.", iconRef)
	}
}

// storeIcon writes one payload file into the export tree as the
// component's icon. Non-PNG icons are rejected with an error hint.
func (e *Extractor) storeIcon(rec archive.PackageRecord, cpt *dep11.Component, payloadPath string, contents *debContents, size int) bool {
	base := path.Base(payloadPath)
	if !strings.HasSuffix(base, exportableIconExt) {
		cpt.AddErrorHint("Icon file '%s' uses an unsupported image file format.", base)
		return false
	}
	data, ok := contents.files[payloadPath]
	if !ok {
		return false
	}

	dir := filepath.Join(e.exportDir, rec.ID(), "icons", fmt.Sprintf("%d", size))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		cpt.AddErrorHint("Could not create icon export directory: %v", err)
		return false
	}
	name := fmt.Sprintf("%s_%s", rec.Name, base)
	if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
		cpt.AddErrorHint("Could not store icon '%s': %v", name, err)
		return false
	}
	cpt.Icon = name
	return true
}

// readDebContents walks the ar container of a .deb file, decompresses its
// data.tar member and collects the payload file list plus the bytes of
// desktop entries and icon candidates.
func readDebContents(debPath string) (*debContents, error) {
	f, err := os.Open(debPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	arR := ar.NewReader(f)
	for {
		header, err := arR.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading ar header: %w", err)
		}
		if !strings.HasPrefix(header.Name, "data.tar") {
			continue
		}
		tr, err := payloadReader(header.Name, arR)
		if err != nil {
			return nil, err
		}
		return scanPayload(tr)
	}
	return nil, fmt.Errorf("no data.tar member found")
}

// payloadReader wraps the data.tar member with the decompressor matching
// its file extension.
func payloadReader(name string, r io.Reader) (*tar.Reader, error) {
	switch {
	case strings.HasSuffix(name, ".gz"):
		gzr, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("opening %s: %w", name, err)
		}
		return tar.NewReader(gzr), nil
	case strings.HasSuffix(name, ".xz"):
		xzr, err := xz.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("opening %s: %w", name, err)
		}
		return tar.NewReader(xzr), nil
	case strings.HasSuffix(name, ".zst"):
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("opening %s: %w", name, err)
		}
		return tar.NewReader(zr.IOReadCloser()), nil
	default:
		return tar.NewReader(r), nil
	}
}

// scanPayload iterates the payload tar, recording every regular file path
// and keeping the contents of files that extraction may need.
func scanPayload(tr *tar.Reader) (*debContents, error) {
	contents := &debContents{files: make(map[string][]byte)}
	for {
		th, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading data tar: %w", err)
		}
		if th.Typeflag != tar.TypeReg {
			continue
		}
		name := strings.TrimPrefix(th.Name, "./")
		contents.list = append(contents.list, name)
		if !wantContents(name) {
			continue
		}
		var buf bytes.Buffer
		if _, err := io.Copy(&buf, tr); err != nil {
			return nil, fmt.Errorf("reading payload file %s: %w", name, err)
		}
		contents.files[name] = buf.Bytes()
	}
	return contents, nil
}

// wantContents reports whether a payload file's bytes must be kept:
// desktop entries, AppStream XML and anything that could be exported as
// an icon.
func wantContents(name string) bool {
	if strings.HasPrefix(name, applicationsDir) && strings.HasSuffix(name, ".desktop") {
		return true
	}
	if strings.HasPrefix(name, appdataDir) && strings.HasSuffix(name, ".xml") {
		return true
	}
	if strings.HasPrefix(name, hicolorDir) || strings.HasPrefix(name, pixmapsDir) {
		return strings.HasSuffix(name, exportableIconExt)
	}
	return false
}
