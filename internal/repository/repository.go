package repository

import (
	"github.com/Masterminds/semver/v3"

	"github.com/frederic-klein/yapp/internal/dist"
)

// Repository indexes packages by canonical name.
type Repository struct {
	packages map[string][]dist.Package
}

// New creates an empty repository.
func New() *Repository {
	return &Repository{packages: make(map[string][]dist.Package)}
}

// AddPackage adds a package. Several versions of one name may coexist.
func (r *Repository) AddPackage(pkg dist.Package) {
	key := pkg.CanonicalName()
	r.packages[key] = append(r.packages[key], pkg)
}

// Lookup returns every version known for name.
func (r *Repository) Lookup(name string) ([]dist.Package, bool) {
	pkgs, ok := r.packages[dist.CanonicalizeName(name)]
	return pkgs, ok
}

// Len returns the number of packages.
func (r *Repository) Len() int {
	n := 0
	for _, pkgs := range r.packages {
		n += len(pkgs)
	}
	return n
}

// FindLatest returns the highest version known for name. Versions that do
// not parse are only used when nothing else is available.
func (r *Repository) FindLatest(name string) (string, bool) {
	pkgs, ok := r.Lookup(name)
	if !ok || len(pkgs) == 0 {
		return "", false
	}

	var (
		best    *semver.Version
		bestRaw string
	)
	for _, p := range pkgs {
		v, err := semver.NewVersion(p.Version)
		if err != nil {
			continue
		}
		if best == nil || v.GreaterThan(best) {
			best, bestRaw = v, p.Version
		}
	}
	if best == nil {
		return pkgs[len(pkgs)-1].Version, true
	}
	return bestRaw, true
}
