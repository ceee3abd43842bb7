// Package archive reads package records out of a Debian-style archive.
//
// It parses the binary Packages indices of a (suite, component,
// architecture) triple into flat records, resolving duplicate package names
// to the highest version by the Debian version comparison algorithm.
package archive

import "fmt"

// PackageIdentity is the (name, version, architecture) triple uniquely
// addressing one package build. It is the sole key granularity of the
// metadata cache and the export tree.
type PackageIdentity struct {
	Name    string
	Version string
	Arch    string
}

// ID serializes the identity to its canonical string key,
// "name_version_arch".
func (p PackageIdentity) ID() string {
	return fmt.Sprintf("%s_%s_%s", p.Name, p.Version, p.Arch)
}

// PackageRecord is one entry of a Packages index: a package build and the
// archive-relative path of its .deb file. Records are recreated fresh on
// every run and never cached.
type PackageRecord struct {
	Name    string
	Version string
	Arch    string
	// Filename is the path of the .deb file relative to the archive root,
	// as listed in the Packages index.
	Filename string
}

// Identity returns the package identity of the record.
func (r PackageRecord) Identity() PackageIdentity {
	return PackageIdentity{Name: r.Name, Version: r.Version, Arch: r.Arch}
}

// ID is shorthand for r.Identity().ID().
func (r PackageRecord) ID() string {
	return r.Identity().ID()
}
