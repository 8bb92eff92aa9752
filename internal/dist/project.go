package dist

// ProjectPackage is the root package synthesized for an environment.
type ProjectPackage struct {
	Name           string
	Version        string
	Description    string
	Authors        []string
	PythonVersions string

	deps  []Dependency
	index map[string]int
}

// NewProjectPackage creates a root package with no dependencies.
func NewProjectPackage(name, version string) *ProjectPackage {
	return &ProjectPackage{
		Name:    name,
		Version: version,
		Authors: []string{},
		index:   make(map[string]int),
	}
}

// AddDependency inserts dep, or replaces the value of an existing dependency
// with the same canonical name while keeping its position.
func (p *ProjectPackage) AddDependency(dep Dependency) {
	if p.index == nil {
		p.index = make(map[string]int)
	}
	key := dep.CanonicalName()
	if i, ok := p.index[key]; ok {
		p.deps[i] = dep
		return
	}
	p.index[key] = len(p.deps)
	p.deps = append(p.deps, dep)
}

// Dependencies returns the dependencies in insertion order.
func (p *ProjectPackage) Dependencies() []Dependency {
	out := make([]Dependency, len(p.deps))
	copy(out, p.deps)
	return out
}

// Dependency returns the dependency with the given name, if any.
func (p *ProjectPackage) Dependency(name string) (Dependency, bool) {
	i, ok := p.index[CanonicalizeName(name)]
	if !ok {
		return Dependency{}, false
	}
	return p.deps[i], true
}
