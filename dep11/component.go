// Package dep11 models DEP-11 software component metadata and the hint
// documents produced while extracting it.
//
// A Component serializes to one YAML document of a multi-document
// Components stream; its hints serialize to one document of the matching
// DEP11Hints stream.
//
// Reference: https://wiki.debian.org/AppStream/Generator
package dep11

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"go.yaml.in/yaml/v3"
)

// FormatVersion is the DEP-11 format version written to the stream header.
const FormatVersion = "0.8"

// Component is the extracted metadata of one installable software
// component found inside a package.
type Component struct {
	// Type is the component kind, e.g. "desktop-app" or "generic".
	Type string
	// ID is the component identifier, usually the desktop-entry
	// basename (e.g. "org.gnome.Calculator.desktop").
	ID string
	// Package is the name of the binary package providing the component.
	Package string
	// Name maps locale codes to the translated component name.
	// The untranslated value uses the "C" locale.
	Name map[string]string
	// Summary maps locale codes to the translated one-line summary.
	Summary map[string]string
	// Categories lists the freedesktop menu categories.
	Categories []string
	// Icon is the basename of the exported icon, if any.
	Icon string

	errors       []string
	warnings     []string
	infos        []string
	ignoreReason string
}

// NewComponent creates a component of the given type for a package.
func NewComponent(ctype, pkgname string) *Component {
	return &Component{Type: ctype, Package: pkgname}
}

// AddErrorHint records a fatal extraction problem. A component with error
// hints is ignored: it is kept out of the metadata stream but its hints
// are published for diagnosis.
func (c *Component) AddErrorHint(format string, args ...any) {
	c.errors = append(c.errors, fmt.Sprintf(format, args...))
}

// AddWarningHint records a non-fatal extraction problem.
func (c *Component) AddWarningHint(format string, args ...any) {
	c.warnings = append(c.warnings, fmt.Sprintf(format, args...))
}

// AddInfoHint records an informational extraction note.
func (c *Component) AddInfoHint(format string, args ...any) {
	c.infos = append(c.infos, fmt.Sprintf(format, args...))
}

// Ignore marks the component as deliberately invisible, e.g. a desktop
// entry carrying NoDisplay=true.
func (c *Component) Ignore(reason string) {
	c.ignoreReason = reason
}

// Ignored reports whether the component must be kept out of the metadata
// stream, either because it was marked invisible or because extraction
// recorded an error hint.
func (c *Component) Ignored() bool {
	return c.ignoreReason != "" || len(c.errors) > 0
}

// HasHints reports whether any hint was recorded for the component.
func (c *Component) HasHints() bool {
	return len(c.errors)+len(c.warnings)+len(c.infos) > 0
}

// metadataDoc is the YAML shape of one Components stream document.
type metadataDoc struct {
	Type       string            `yaml:"Type"`
	ID         string            `yaml:"ID"`
	Package    string            `yaml:"Package"`
	Name       map[string]string `yaml:"Name,omitempty"`
	Summary    map[string]string `yaml:"Summary,omitempty"`
	Categories []string          `yaml:"Categories,omitempty"`
	Icon       string            `yaml:"Icon,omitempty"`
}

// MetadataYAML serializes the component to one YAML document, including
// the leading document separator.
func (c *Component) MetadataYAML() ([]byte, error) {
	doc := metadataDoc{
		Type:       c.Type,
		ID:         c.ID,
		Package:    c.Package,
		Name:       c.Name,
		Summary:    c.Summary,
		Categories: c.Categories,
		Icon:       c.Icon,
	}
	b, err := yaml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("serializing component %s: %w", c.ID, err)
	}
	return append([]byte("---\n"), b...), nil
}

// hintsDoc is the YAML shape of one DEP11Hints stream document.
type hintsDoc struct {
	Package string     `yaml:"Package"`
	ID      string     `yaml:"ID,omitempty"`
	Hints   hintLevels `yaml:"Hints"`
}

type hintLevels struct {
	Errors   []string `yaml:"errors,omitempty"`
	Warnings []string `yaml:"warnings,omitempty"`
	Infos    []string `yaml:"infos,omitempty"`
}

// HintsYAML serializes the component's hints to one YAML document,
// including the leading document separator. It returns nil when the
// component has no hints.
func (c *Component) HintsYAML() ([]byte, error) {
	if !c.HasHints() {
		return nil, nil
	}
	doc := hintsDoc{
		Package: c.Package,
		ID:      c.ID,
		Hints: hintLevels{
			Errors:   c.errors,
			Warnings: c.warnings,
			Infos:    c.infos,
		},
	}
	b, err := yaml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("serializing hints for %s: %w", c.ID, err)
	}
	return append([]byte("---\n"), b...), nil
}

// HintDocument is the decoded form of one DEP11Hints stream document, as
// read back from the cache or a published hints file.
type HintDocument struct {
	Package  string   `yaml:"Package"`
	ID       string   `yaml:"ID"`
	Errors   []string `yaml:"-"`
	Warnings []string `yaml:"-"`
	Infos    []string `yaml:"-"`
}

// ParseHintsStream decodes a multi-document hints stream. An empty stream
// decodes to no documents.
func ParseHintsStream(stream []byte) ([]HintDocument, error) {
	var docs []HintDocument
	dec := yaml.NewDecoder(bytes.NewReader(stream))
	for {
		var raw hintsDoc
		if err := dec.Decode(&raw); err != nil {
			if errors.Is(err, io.EOF) {
				return docs, nil
			}
			return nil, fmt.Errorf("parsing hints stream: %w", err)
		}
		docs = append(docs, HintDocument{
			Package:  raw.Package,
			ID:       raw.ID,
			Errors:   raw.Hints.Errors,
			Warnings: raw.Hints.Warnings,
			Infos:    raw.Hints.Infos,
		})
	}
}

// headerDoc is the YAML shape of the first document of a Components stream.
type headerDoc struct {
	File         string `yaml:"File"`
	Version      string `yaml:"Version"`
	Origin       string `yaml:"Origin"`
	MediaBaseUrl string `yaml:"MediaBaseUrl"`
}

// HeaderYAML produces the DEP-11 header document that opens every
// Components stream. Origin identifies the suite/component the stream was
// generated for.
func HeaderYAML(origin, mediaBaseURL string) ([]byte, error) {
	b, err := yaml.Marshal(headerDoc{
		File:         "DEP-11",
		Version:      FormatVersion,
		Origin:       origin,
		MediaBaseUrl: mediaBaseURL,
	})
	if err != nil {
		return nil, fmt.Errorf("serializing stream header: %w", err)
	}
	return append([]byte("---\n"), b...), nil
}
