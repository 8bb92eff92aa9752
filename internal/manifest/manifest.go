package manifest

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/frederic-klein/yapp/internal/dist"
)

// FileName is the manifest file written into the target directory.
const FileName = "pyproject.toml"

const (
	buildRequires = "poetry-core>=1.0.0"
	buildBackend  = "poetry.core.masonry.api"
)

// Field is one key of an inline table.
type Field struct {
	Key   string
	Value any
}

// Table is an inline table whose keys keep their insertion order.
type Table []Field

// Entry returns the minimal manifest value for dep: a bare constraint string
// for plain version requirements, an inline table otherwise.
func Entry(dep dist.Dependency) any {
	var t Table
	switch dep.Kind {
	case dist.KindVCS:
		t = Table{{dep.VCS, dep.URL}}
		if dep.Revision != "" {
			t = append(t, Field{"rev", dep.Revision})
		}
	case dist.KindPath:
		t = Table{{"path", dep.Path}}
	case dist.KindURL:
		t = Table{{"url", dep.URL}}
	default:
		constraint := dep.Constraint
		if constraint == "" {
			constraint = dist.AnyConstraint
		}
		t = Table{{"version", constraint}}
	}

	if !dep.Marker.IsAny() {
		t = append(t, Field{"markers", dep.Marker.String()})
	}
	if extras := dep.SortedExtras(); len(extras) > 0 {
		t = append(t, Field{"extras", extras})
	}

	if len(t) == 1 && t[0].Key == "version" {
		return t[0].Value
	}
	return t
}

// Render produces the manifest document for pkg.
func Render(pkg *dist.ProjectPackage) ([]byte, error) {
	python := pkg.PythonVersions
	if python == "" {
		python = dist.AnyConstraint
	}

	deps := Table{{"python", python}}
	for _, dep := range pkg.Dependencies() {
		if err := dep.Validate(); err != nil {
			return nil, fmt.Errorf("rendering %s: %w", dep.Name, err)
		}
		deps = append(deps, Field{dep.CanonicalName(), Entry(dep)})
	}

	sections := []struct {
		name   string
		fields Table
	}{
		{"tool.poetry", Table{
			{"name", pkg.Name},
			{"version", pkg.Version},
			{"description", pkg.Description},
			{"authors", append([]string{}, pkg.Authors...)},
		}},
		{"tool.poetry.dependencies", deps},
		{"tool.poetry.dev-dependencies", nil},
		{"build-system", Table{
			{"requires", []string{buildRequires}},
			{"build-backend", buildBackend},
		}},
	}

	var b strings.Builder
	for i, s := range sections {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "[%s]\n", s.name)
		for _, f := range s.fields {
			line, err := encodeKeyValue(f.Key, f.Value)
			if err != nil {
				return nil, fmt.Errorf("rendering %s: %w", f.Key, err)
			}
			b.WriteString(line)
			b.WriteString("\n")
		}
	}

	out := []byte(b.String())
	var check map[string]any
	if err := toml.Unmarshal(out, &check); err != nil {
		return nil, fmt.Errorf("validating rendered manifest: %w", err)
	}
	return out, nil
}

func encodeKeyValue(key string, value any) (string, error) {
	table, ok := value.(Table)
	if !ok {
		var buf bytes.Buffer
		if err := toml.NewEncoder(&buf).SetTablesInline(true).Encode(map[string]any{key: value}); err != nil {
			return "", err
		}
		return strings.TrimSpace(buf.String()), nil
	}

	parts := make([]string, 0, len(table))
	for _, f := range table {
		part, err := encodeKeyValue(f.Key, f.Value)
		if err != nil {
			return "", err
		}
		parts = append(parts, part)
	}
	k, err := encodeKey(key)
	if err != nil {
		return "", err
	}
	return k + " = {" + strings.Join(parts, ", ") + "}", nil
}

// encodeKey returns key as the encoder would write it, quoted if needed.
func encodeKey(key string) (string, error) {
	line, err := encodeKeyValue(key, 0)
	if err != nil {
		return "", err
	}
	return strings.TrimSuffix(line, " = 0"), nil
}
