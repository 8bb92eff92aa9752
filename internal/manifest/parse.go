package manifest

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/afero"

	"github.com/frederic-klein/yapp/internal/dist"
	"github.com/frederic-klein/yapp/internal/requirement"
)

// ErrInvalidEntry is returned for dependency values that match no specifier form.
var ErrInvalidEntry = errors.New("invalid dependency entry")

var vcsKeys = []string{"git", "hg", "svn", "bzr"}

type document struct {
	Tool struct {
		Poetry struct {
			Name         string         `toml:"name"`
			Version      string         `toml:"version"`
			Description  string         `toml:"description"`
			Authors      []string       `toml:"authors"`
			Dependencies map[string]any `toml:"dependencies"`
		} `toml:"poetry"`
	} `toml:"tool"`
}

// Load reads the manifest in dir.
func Load(fs afero.Fs, dir string) (*dist.ProjectPackage, error) {
	path := filepath.Join(dir, FileName)
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	pkg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return pkg, nil
}

// Parse decodes a manifest document. Dependencies come back sorted by name.
func Parse(data []byte) (*dist.ProjectPackage, error) {
	var doc document
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}

	poetry := doc.Tool.Poetry
	pkg := dist.NewProjectPackage(poetry.Name, poetry.Version)
	pkg.Description = poetry.Description
	if len(poetry.Authors) > 0 {
		pkg.Authors = poetry.Authors
	}

	names := make([]string, 0, len(poetry.Dependencies))
	for name := range poetry.Dependencies {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		value := poetry.Dependencies[name]
		if name == "python" {
			python, ok := value.(string)
			if !ok {
				return nil, fmt.Errorf("%w: python must be a string", ErrInvalidEntry)
			}
			pkg.PythonVersions = python
			continue
		}
		dep, err := DependencyFromEntry(name, value)
		if err != nil {
			return nil, err
		}
		pkg.AddDependency(dep)
	}
	return pkg, nil
}

// DependencyFromEntry reverses Entry.
func DependencyFromEntry(name string, value any) (dist.Dependency, error) {
	dep := dist.Dependency{Name: name}

	switch v := value.(type) {
	case string:
		dep.Specifier = dist.NewVersion(v)
		return dep, nil
	case map[string]any:
		spec, err := specifierFromTable(name, v)
		if err != nil {
			return dist.Dependency{}, err
		}
		dep.Specifier = spec
		return dep, nil
	default:
		return dist.Dependency{}, fmt.Errorf("%w %s: unsupported value %T", ErrInvalidEntry, name, value)
	}
}

func specifierFromTable(name string, t map[string]any) (dist.Specifier, error) {
	var (
		spec    dist.Specifier
		sources int
	)

	for _, vcs := range vcsKeys {
		url, ok, err := stringField(name, t, vcs)
		if err != nil {
			return spec, err
		}
		if ok {
			rev, err := revision(name, t)
			if err != nil {
				return spec, err
			}
			spec = dist.NewVCS(vcs, url, rev)
			sources++
		}
	}
	if path, ok, err := stringField(name, t, "path"); err != nil {
		return spec, err
	} else if ok {
		spec = dist.NewPath(path, !requirement.IsArchive(path))
		sources++
	}
	if url, ok, err := stringField(name, t, "url"); err != nil {
		return spec, err
	} else if ok {
		spec = dist.NewURL(url)
		sources++
	}
	if version, ok, err := stringField(name, t, "version"); err != nil {
		return spec, err
	} else if ok {
		spec = dist.NewVersion(version)
		sources++
	}

	if sources != 1 {
		return dist.Specifier{}, fmt.Errorf("%w %s: expected exactly one source, found %d", ErrInvalidEntry, name, sources)
	}

	markers, _, err := stringField(name, t, "markers")
	if err != nil {
		return spec, err
	}
	spec.Marker = dist.Marker(markers)

	if raw, ok := t["extras"]; ok {
		list, ok := raw.([]any)
		if !ok {
			return dist.Specifier{}, fmt.Errorf("%w %s: extras must be an array", ErrInvalidEntry, name)
		}
		for _, item := range list {
			extra, ok := item.(string)
			if !ok {
				return dist.Specifier{}, fmt.Errorf("%w %s: extras must be strings", ErrInvalidEntry, name)
			}
			spec.Extras = append(spec.Extras, extra)
		}
	}

	return spec, nil
}

func revision(name string, t map[string]any) (string, error) {
	for _, key := range []string{"rev", "branch", "tag"} {
		rev, ok, err := stringField(name, t, key)
		if err != nil || ok {
			return rev, err
		}
	}
	return "", nil
}

func stringField(name string, t map[string]any, key string) (string, bool, error) {
	raw, ok := t[key]
	if !ok {
		return "", false, nil
	}
	s, ok := raw.(string)
	if !ok {
		return "", false, fmt.Errorf("%w %s: %s must be a string", ErrInvalidEntry, name, key)
	}
	return s, true, nil
}
