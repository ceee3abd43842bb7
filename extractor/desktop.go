package extractor

import (
	"bufio"
	"fmt"
	"path"
	"strings"

	"github.com/appstream-tools/dep11-generator/dep11"
)

// desktopEntry holds the fields of a freedesktop .desktop file that are
// relevant for DEP-11 metadata.
type desktopEntry struct {
	Type       string
	Names      map[string]string
	Summaries  map[string]string
	Categories []string
	Icon       string
	NoDisplay  bool
	Hidden     bool
}

// parseDesktopEntry parses the [Desktop Entry] group of a .desktop file.
// Localized Name/Comment keys are collected per locale; the untranslated
// value is stored under the "C" locale.
func parseDesktopEntry(data []byte) (*desktopEntry, error) {
	entry := &desktopEntry{
		Names:     make(map[string]string),
		Summaries: make(map[string]string),
	}
	inGroup := false
	seenGroup := false

	scanner := bufio.NewScanner(strings.NewReader(string(data)))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "[") {
			inGroup = line == "[Desktop Entry]"
			if inGroup {
				seenGroup = true
			}
			continue
		}
		if !inGroup {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		key, locale := splitLocale(key)
		switch key {
		case "Type":
			entry.Type = value
		case "Name":
			entry.Names[locale] = value
		case "Comment":
			entry.Summaries[locale] = value
		case "Icon":
			if locale == "C" {
				entry.Icon = value
			}
		case "Categories":
			entry.Categories = splitCategories(value)
		case "NoDisplay":
			entry.NoDisplay = value == "true"
		case "Hidden":
			entry.Hidden = value == "true"
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if !seenGroup {
		return nil, fmt.Errorf("no [Desktop Entry] group found")
	}
	return entry, nil
}

// splitLocale splits "Name[de_DE]" into the bare key and its locale.
// Keys without a locale suffix map to the "C" locale.
func splitLocale(key string) (string, string) {
	open := strings.IndexByte(key, '[')
	if open < 0 || !strings.HasSuffix(key, "]") {
		return key, "C"
	}
	return key[:open], key[open+1 : len(key)-1]
}

// splitCategories splits the semicolon-separated Categories value.
func splitCategories(value string) []string {
	var cats []string
	for _, c := range strings.Split(value, ";") {
		c = strings.TrimSpace(c)
		if c != "" {
			cats = append(cats, c)
		}
	}
	return cats
}

// componentFromDesktop builds a DEP-11 component from a .desktop file
// found in a package. The component ID is the desktop-entry basename.
// Entries marked invisible upstream become ignored components; entries
// that cannot be parsed or carry no name produce error hints.
func componentFromDesktop(pkgname, entryPath string, data []byte) *dep11.Component {
	id := path.Base(entryPath)
	cpt := dep11.NewComponent("desktop-app", pkgname)
	cpt.ID = id

	entry, err := parseDesktopEntry(data)
	if err != nil {
		cpt.AddErrorHint("Could not parse desktop file '%s': %v", id, err)
		return cpt
	}
	if entry.Hidden || entry.NoDisplay {
		cpt.Ignore("desktop entry is marked as invisible")
		return cpt
	}
	if entry.Type != "" && entry.Type != "Application" {
		cpt.Ignore(fmt.Sprintf("desktop entry has non-application type %q", entry.Type))
		return cpt
	}
	if entry.Names["C"] == "" {
		cpt.AddErrorHint("Desktop file '%s' does not define a name.", id)
		return cpt
	}

	cpt.Name = entry.Names
	if len(entry.Summaries) > 0 {
		cpt.Summary = entry.Summaries
	}
	cpt.Categories = entry.Categories
	cpt.Icon = entry.Icon
	return cpt
}
