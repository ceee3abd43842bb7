package extractor

import (
	"encoding/xml"
	"strings"

	"github.com/appstream-tools/dep11-generator/dep11"
)

// xmlLocalized is a translatable element of an AppStream upstream XML
// file; the locale comes from the xml:lang attribute.
type xmlLocalized struct {
	Lang  string `xml:"http://www.w3.org/XML/1998/namespace lang,attr"`
	Value string `xml:",chardata"`
}

// xmlComponent is the subset of an AppStream upstream XML document the
// generator consumes. Legacy files use an <application> root element
// instead of <component type="desktop">.
type xmlComponent struct {
	XMLName    xml.Name
	Kind       string         `xml:"type,attr"`
	ID         string         `xml:"id"`
	Names      []xmlLocalized `xml:"name"`
	Summaries  []xmlLocalized `xml:"summary"`
	Icon       string         `xml:"icon"`
	Categories []string       `xml:"categories>category"`
}

// componentKind maps the upstream XML component type to the DEP-11 kind.
func componentKind(root xml.Name, kind string) string {
	if root.Local == "application" {
		return "desktop-app"
	}
	switch kind {
	case "desktop", "desktop-application":
		return "desktop-app"
	case "":
		return "generic"
	default:
		return kind
	}
}

// componentFromAppstreamXML builds a component from an AppStream upstream
// XML file shipped under usr/share/appdata/. An unparseable file or a file
// without a component ID produces an error-hinted component, so the
// problem shows up in the hints stream instead of vanishing.
func componentFromAppstreamXML(pkgname, fileName string, data []byte) *dep11.Component {
	var doc xmlComponent
	if err := xml.Unmarshal(data, &doc); err != nil {
		cpt := dep11.NewComponent("generic", pkgname)
		cpt.AddErrorHint("Could not parse AppStream XML file '%s': %v", fileName, err)
		return cpt
	}

	cpt := dep11.NewComponent(componentKind(doc.XMLName, doc.Kind), pkgname)
	cpt.ID = strings.TrimSpace(doc.ID)
	if cpt.ID == "" {
		cpt.AddErrorHint("Could not determine an id for this component.")
		return cpt
	}

	if names := localizedMap(doc.Names); len(names) > 0 {
		cpt.Name = names
	}
	if summaries := localizedMap(doc.Summaries); len(summaries) > 0 {
		cpt.Summary = summaries
	}
	cpt.Icon = strings.TrimSpace(doc.Icon)
	for _, c := range doc.Categories {
		if c = strings.TrimSpace(c); c != "" {
			cpt.Categories = append(cpt.Categories, c)
		}
	}
	return cpt
}

// localizedMap folds translatable elements into a locale map; elements
// without an xml:lang attribute are the untranslated "C" value.
func localizedMap(values []xmlLocalized) map[string]string {
	var m map[string]string
	for _, v := range values {
		value := strings.TrimSpace(v.Value)
		if value == "" {
			continue
		}
		locale := v.Lang
		if locale == "" {
			locale = "C"
		}
		if m == nil {
			m = make(map[string]string)
		}
		m[locale] = value
	}
	return m
}

// mergeDesktopData extends an XML-derived desktop-app component with the
// data of its associated .desktop file. XML values win; the desktop entry
// only fills what the XML left blank. An entry marked invisible makes the
// merged component ignored.
func mergeDesktopData(cpt *dep11.Component, data []byte) {
	entry, err := parseDesktopEntry(data)
	if err != nil {
		cpt.AddInfoHint("Could not parse desktop file '%s': %v", cpt.ID, err)
		return
	}
	if entry.Hidden || entry.NoDisplay {
		cpt.Ignore("desktop entry is marked as invisible")
		return
	}

	if len(cpt.Name) == 0 && len(entry.Names) > 0 {
		cpt.Name = entry.Names
	}
	if len(cpt.Summary) == 0 && len(entry.Summaries) > 0 {
		cpt.Summary = entry.Summaries
	}
	if len(cpt.Categories) == 0 {
		cpt.Categories = entry.Categories
	}
	if cpt.Icon == "" {
		cpt.Icon = entry.Icon
	}
}

// appdataEmptyHint records the original's non-fatal note when the
// .desktop file associated with an XML component exists but is empty.
func appdataEmptyHint(cpt *dep11.Component, pkgname string) {
	cpt.AddInfoHint("File '%s' from package '%s' appeared empty.", cpt.ID, pkgname)
}

const missingDesktopHint = "Found an AppStream upstream XML file, but the associated .desktop file is missing."
