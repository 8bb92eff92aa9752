package dist

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Kind identifies how a dependency is sourced.
type Kind int

const (
	KindVersion Kind = iota
	KindVCS
	KindPath
	KindURL
)

// String returns the human-readable name of the kind.
func (k Kind) String() string {
	switch k {
	case KindVersion:
		return "version"
	case KindVCS:
		return "vcs"
	case KindPath:
		return "path"
	case KindURL:
		return "url"
	default:
		return "unknown"
	}
}

// AnyConstraint matches every version.
const AnyConstraint = "*"

// Marker is a PEP 508 environment marker. The empty marker always holds.
type Marker string

// IsAny reports whether the marker is the always-true condition.
func (m Marker) IsAny() bool {
	return strings.TrimSpace(string(m)) == ""
}

func (m Marker) String() string {
	return strings.TrimSpace(string(m))
}

// Specifier describes where a dependency comes from.
// Exactly one source is populated, selected by Kind.
type Specifier struct {
	Kind       Kind
	Constraint string // KindVersion
	VCS        string // KindVCS, e.g. "git"
	URL        string // KindVCS, KindURL
	Revision   string // KindVCS, optional
	Path       string // KindPath
	Directory  bool   // KindPath
	Extras     []string
	Marker     Marker
}

// NewVersion returns a version-constraint specifier.
func NewVersion(constraint string) Specifier {
	return Specifier{Kind: KindVersion, Constraint: constraint}
}

// NewVCS returns a source-control specifier.
func NewVCS(vcs, url, revision string) Specifier {
	return Specifier{Kind: KindVCS, VCS: vcs, URL: url, Revision: revision}
}

// NewPath returns a local file or directory specifier.
func NewPath(path string, directory bool) Specifier {
	return Specifier{Kind: KindPath, Path: path, Directory: directory}
}

// NewURL returns a direct archive URL specifier.
func NewURL(url string) Specifier {
	return Specifier{Kind: KindURL, URL: url}
}

var errNoSource = errors.New("specifier has no source")

// Validate checks that exactly the fields of the specifier's kind are set.
func (s Specifier) Validate() error {
	switch s.Kind {
	case KindVersion:
		if s.Constraint == "" {
			return errNoSource
		}
		if s.VCS != "" || s.URL != "" || s.Path != "" {
			return fmt.Errorf("version specifier %q carries another source", s.Constraint)
		}
	case KindVCS:
		if s.VCS == "" || s.URL == "" {
			return errNoSource
		}
		if s.Constraint != "" || s.Path != "" {
			return fmt.Errorf("vcs specifier %q carries another source", s.URL)
		}
	case KindPath:
		if s.Path == "" {
			return errNoSource
		}
		if s.Constraint != "" || s.URL != "" || s.VCS != "" {
			return fmt.Errorf("path specifier %q carries another source", s.Path)
		}
	case KindURL:
		if s.URL == "" {
			return errNoSource
		}
		if s.Constraint != "" || s.Path != "" || s.VCS != "" {
			return fmt.Errorf("url specifier %q carries another source", s.URL)
		}
	default:
		return fmt.Errorf("unknown specifier kind %d", s.Kind)
	}
	return nil
}

// SortedExtras returns the extras deduplicated and sorted.
func (s Specifier) SortedExtras() []string {
	if len(s.Extras) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(s.Extras))
	out := make([]string, 0, len(s.Extras))
	for _, e := range s.Extras {
		e = strings.TrimSpace(e)
		if e == "" || seen[e] {
			continue
		}
		seen[e] = true
		out = append(out, e)
	}
	sort.Strings(out)
	return out
}

// Dependency is a named requirement on another package.
type Dependency struct {
	Name string
	Specifier
}

// CanonicalName returns the normalized dependency name.
func (d Dependency) CanonicalName() string {
	return CanonicalizeName(d.Name)
}

var separatorRe = regexp.MustCompile(`[-_.]+`)

// CanonicalizeName lowercases a package name and collapses runs of "-", "_"
// and "." into a single "-".
func CanonicalizeName(name string) string {
	return separatorRe.ReplaceAllString(strings.ToLower(strings.TrimSpace(name)), "-")
}

// DirectURL records the origin of a package installed from outside an index.
type DirectURL struct {
	Kind     Kind // KindVCS, KindURL or KindPath
	URL      string
	VCS      string
	Revision string
}

// Package is a distribution found in a runtime environment.
type Package struct {
	Name        string
	Version     string
	Summary     string
	Author      string
	Requires    []Dependency
	Direct      *DirectURL
	EntryPoints map[string][]string // group -> entry point names
}

// CanonicalName returns the normalized package name.
func (p Package) CanonicalName() string {
	return CanonicalizeName(p.Name)
}

// ProvidesAny reports whether the package declares entry points in any of groups.
func (p Package) ProvidesAny(groups []string) bool {
	for _, g := range groups {
		if len(p.EntryPoints[g]) > 0 {
			return true
		}
	}
	return false
}
