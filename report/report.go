// Package report renders HTML pages summarizing the extraction hints of
// each suite and component, so archive maintainers can see why packages
// were excluded from the metadata without digging through the compressed
// hints streams.
package report

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/appstream-tools/dep11-generator/archive"
	"github.com/appstream-tools/dep11-generator/cache"
	"github.com/appstream-tools/dep11-generator/config"
	"github.com/appstream-tools/dep11-generator/dep11"
	"github.com/appstream-tools/dep11-generator/logger"
)

// ignoreSentinel mirrors the cache marker for packages that yielded
// nothing extractable; such packages are counted but carry no hints.
const ignoreSentinel = "ignore"

type indexReaderFunc func(suite, component, arch string) ([]archive.PackageRecord, error)

// Builder renders hint report pages below <ExportDir>/html.
type Builder struct {
	cfg   *config.Config
	cache *cache.Cache
	log   *zap.SugaredLogger

	readIndex indexReaderFunc
}

// Option adjusts a Builder, mainly to substitute collaborators in tests.
type Option func(*Builder)

// WithIndexReader replaces the archive index reader.
func WithIndexReader(fn indexReaderFunc) Option {
	return func(b *Builder) { b.readIndex = fn }
}

// New builds a report Builder over an opened cache.
func New(cfg *config.Config, c *cache.Cache, opts ...Option) *Builder {
	b := &Builder{
		cfg:   cfg,
		cache: c,
		log:   logger.L(),
	}
	b.readIndex = func(suite, component, arch string) ([]archive.PackageRecord, error) {
		return archive.ReadIndex(cfg.ArchiveRoot, suite, component, arch)
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// packageHints is the per-package section of one report page.
type packageHints struct {
	ID       string
	Errors   []string
	Warnings []string
	Infos    []string
}

// pageData feeds the component page template.
type pageData struct {
	Suite     string
	Component string
	Generated string
	Indexed   int
	Ignored   int
	Packages  []packageHints
}

// indexData feeds the top-level index template.
type indexData struct {
	Generated string
	Pages     []indexEntry
}

type indexEntry struct {
	Suite     string
	Component string
	Href      string
	Packages  int
}

// Build renders one HTML page per configured suite/component plus a
// top-level index linking them.
func (b *Builder) Build() error {
	now := time.Now().UTC().Format(time.RFC1123)

	var suites []string
	for suite := range b.cfg.Suites {
		suites = append(suites, suite)
	}
	sort.Strings(suites)

	idx := indexData{Generated: now}
	for _, suite := range suites {
		for _, component := range b.cfg.Suites[suite].Components {
			page, err := b.buildPage(suite, component, now)
			if err != nil {
				return fmt.Errorf("%s/%s: %w", suite, component, err)
			}
			href := filepath.Join(suite, component+".html")
			dest := filepath.Join(b.cfg.ExportDir, "html", href)
			if err := renderTo(dest, componentTemplate, page); err != nil {
				return fmt.Errorf("%s/%s: %w", suite, component, err)
			}
			idx.Pages = append(idx.Pages, indexEntry{
				Suite:     suite,
				Component: component,
				Href:      href,
				Packages:  len(page.Packages),
			})
			b.log.Debugw("report page written", "file", dest, "packages", len(page.Packages))
		}
	}

	dest := filepath.Join(b.cfg.ExportDir, "html", "index.html")
	if err := renderTo(dest, indexTemplate, idx); err != nil {
		return err
	}
	b.log.Infow("hint reports written", "pages", len(idx.Pages), "dir", filepath.Join(b.cfg.ExportDir, "html"))
	return nil
}

// buildPage collects the cached hints of every currently-indexed package
// of one suite/component, across all of the suite's architectures.
func (b *Builder) buildPage(suite, component, generated string) (*pageData, error) {
	page := &pageData{
		Suite:     suite,
		Component: component,
		Generated: generated,
	}

	seen := make(map[string]bool)
	for _, arch := range b.cfg.Suites[suite].Architectures {
		records, err := b.readIndex(suite, component, arch)
		if err != nil {
			return nil, err
		}
		for _, rec := range records {
			id := rec.ID()
			if seen[id] {
				continue
			}
			seen[id] = true
			page.Indexed++

			stream, err := b.cache.Get("hints/" + id)
			if errors.Is(err, cache.ErrNotFound) {
				continue
			}
			if err != nil {
				return nil, err
			}
			if bytes.Equal(stream, []byte(ignoreSentinel)) {
				page.Ignored++
				continue
			}
			docs, err := dep11.ParseHintsStream(stream)
			if err != nil {
				return nil, fmt.Errorf("package %s: %w", id, err)
			}
			for _, doc := range docs {
				page.Packages = append(page.Packages, packageHints{
					ID:       hintTitle(id, doc),
					Errors:   doc.Errors,
					Warnings: doc.Warnings,
					Infos:    doc.Infos,
				})
			}
		}
	}

	sort.Slice(page.Packages, func(i, j int) bool {
		return page.Packages[i].ID < page.Packages[j].ID
	})
	return page, nil
}

// hintTitle labels one hint section: the package identity, plus the
// component ID when the document names one.
func hintTitle(id string, doc dep11.HintDocument) string {
	if doc.ID != "" {
		return id + " / " + doc.ID
	}
	return id
}

// renderTo executes a template into dest, creating parent directories.
func renderTo(dest string, t *template.Template, data any) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Dir(dest), err)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return fmt.Errorf("rendering %s: %w", dest, err)
	}
	if err := os.WriteFile(dest, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", dest, err)
	}
	return nil
}

var componentTemplate = template.Must(template.New("component").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>Hints: {{.Suite}}/{{.Component}}</title></head>
<body>
<h1>Extraction hints for {{.Suite}}/{{.Component}}</h1>
<p>{{.Indexed}} packages indexed, {{.Ignored}} without extractable metadata, {{len .Packages}} with hints.</p>
{{range .Packages}}
<h2>{{.ID}}</h2>
{{if .Errors}}<h3>Errors</h3><ul>{{range .Errors}}<li>{{.}}</li>{{end}}</ul>{{end}}
{{if .Warnings}}<h3>Warnings</h3><ul>{{range .Warnings}}<li>{{.}}</li>{{end}}</ul>{{end}}
{{if .Infos}}<h3>Infos</h3><ul>{{range .Infos}}<li>{{.}}</li>{{end}}</ul>{{end}}
{{else}}
<p>No hints recorded.</p>
{{end}}
<p><em>Generated {{.Generated}}</em></p>
</body>
</html>
`))

var indexTemplate = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>Extraction hint reports</title></head>
<body>
<h1>Extraction hint reports</h1>
<ul>
{{range .Pages}}<li><a href="{{.Href}}">{{.Suite}}/{{.Component}}</a> ({{.Packages}} packages with hints)</li>
{{end}}</ul>
<p><em>Generated {{.Generated}}</em></p>
</body>
</html>
`))
