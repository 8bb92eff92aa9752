package requirement

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/frederic-klein/yapp/internal/dist"
)

var pep508Re = regexp.MustCompile(`^\s*([A-Za-z0-9](?:[A-Za-z0-9._-]*[A-Za-z0-9])?)\s*(?:\[([^\]]*)\])?\s*(.*)$`)

// ParseDependency parses a PEP 508 requirement such as a Requires-Dist value:
//
//	name[extra] (>=1.0,<2.0) ; python_version < "3.8"
//	name @ git+https://host/repo.git@rev ; sys_platform == "linux"
func ParseDependency(line string) (dist.Dependency, error) {
	spec, marker, _ := strings.Cut(line, ";")
	m := pep508Re.FindStringSubmatch(spec)
	if m == nil {
		return dist.Dependency{}, invalid(line, "malformed requirement")
	}
	name, rest := m[1], strings.TrimSpace(m[3])

	var s dist.Specifier
	if target, ok := strings.CutPrefix(rest, "@"); ok {
		var err error
		s, err = specifierFromLocation(strings.TrimSpace(target))
		if err != nil {
			return dist.Dependency{}, invalid(line, err.Error())
		}
	} else {
		constraint := strings.TrimSpace(rest)
		constraint = strings.TrimPrefix(constraint, "(")
		constraint = strings.TrimSpace(strings.TrimSuffix(constraint, ")"))
		if constraint == "" {
			constraint = dist.AnyConstraint
		}
		if !constraintTextRe.MatchString(constraint) {
			return dist.Dependency{}, invalid(line, "malformed version constraint")
		}
		s = dist.NewVersion(constraint)
	}

	s.Extras = splitList(m[2])
	s.Marker = dist.Marker(strings.TrimSpace(marker))
	return dist.Dependency{Name: name, Specifier: s}, nil
}

// specifierFromLocation classifies a direct reference target.
func specifierFromLocation(target string) (dist.Specifier, error) {
	switch {
	case target == "":
		return dist.Specifier{}, fmt.Errorf("empty direct reference")
	case vcsPrefixRe.MatchString(target):
		req, err := parseVCS(target)
		if err != nil {
			return dist.Specifier{}, err
		}
		return req.Specifier, nil
	case strings.HasPrefix(target, "file://"):
		p := strings.TrimPrefix(target, "file://")
		return dist.NewPath(p, !IsArchive(p)), nil
	default:
		return dist.NewURL(target), nil
	}
}
