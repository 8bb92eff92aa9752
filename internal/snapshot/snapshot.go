package snapshot

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/frederic-klein/yapp/internal/dist"
	"github.com/frederic-klein/yapp/internal/repository"
)

// ErrHostNotInstalled is returned when the host package is missing from the environment.
var ErrHostNotInstalled = errors.New("host package not installed")

// Exclusions is a set of canonical package names.
type Exclusions map[string]struct{}

// NewExclusions builds a set from names, canonicalizing each.
func NewExclusions(names ...string) Exclusions {
	set := make(Exclusions, len(names))
	for _, name := range names {
		set[dist.CanonicalizeName(name)] = struct{}{}
	}
	return set
}

// DefaultUnsafe returns the packages that are never pinned in a manifest.
func DefaultUnsafe() []string {
	return []string{"setuptools", "distribute", "pip", "wheel"}
}

// Contains reports whether name is in the set.
func (e Exclusions) Contains(name string) bool {
	_, ok := e[dist.CanonicalizeName(name)]
	return ok
}

// Snapshot is the classified view of an environment.
type Snapshot struct {
	Root       *dist.ProjectPackage
	Repository *repository.Repository
	Plugins    []dist.Package // previously installed plugins, also in Repository
}

// Snapshotter turns installed package records into a root package and a
// lookup repository.
type Snapshotter struct {
	host   string
	unsafe Exclusions
	groups []string
}

// New creates a snapshotter seeding the root from host.
func New(host string, unsafe Exclusions, pluginGroups []string) *Snapshotter {
	if unsafe == nil {
		unsafe = NewExclusions()
	}
	return &Snapshotter{host: host, unsafe: unsafe, groups: pluginGroups}
}

// Take classifies packages. Unsafe packages are dropped, the host seeds the
// root, everything else lands in the repository.
func (s *Snapshotter) Take(packages []dist.Package) (*Snapshot, error) {
	snap := &Snapshot{Repository: repository.New()}
	hostKey := dist.CanonicalizeName(s.host)

	for _, pkg := range packages {
		if s.unsafe.Contains(pkg.Name) {
			continue
		}
		if pkg.CanonicalName() == hostKey {
			if snap.Root == nil {
				snap.Root = s.seed(pkg)
			}
			continue
		}
		snap.Repository.AddPackage(pkg)
		if pkg.ProvidesAny(s.groups) {
			snap.Plugins = append(snap.Plugins, pkg)
		}
	}

	if snap.Root == nil {
		return nil, fmt.Errorf("%w: no %q distribution found", ErrHostNotInstalled, s.host)
	}

	return snap, nil
}

func (s *Snapshotter) seed(host dist.Package) *dist.ProjectPackage {
	root := dist.NewProjectPackage(host.Name, host.Version)
	root.Description = host.Summary
	if host.Author != "" {
		root.Authors = []string{host.Author}
	}

	for _, dep := range host.Requires {
		if extraOnly(dep.Marker) || s.unsafe.Contains(dep.Name) {
			continue
		}
		root.AddDependency(dep)
	}
	return root
}

var extraRe = regexp.MustCompile(`\bextra\s*==`)

// extraOnly reports whether a requirement only applies when an optional
// feature of its parent is requested.
func extraOnly(m dist.Marker) bool {
	return extraRe.MatchString(string(m))
}

// Excludes reports whether name may never appear as a dependency.
func (s *Snapshotter) Excludes(name string) bool {
	return s.unsafe.Contains(name)
}
