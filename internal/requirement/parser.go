package requirement

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/afero"

	"github.com/frederic-klein/yapp/internal/dist"
)

// ErrInvalidRequirement is returned when a request matches no accepted form.
var ErrInvalidRequirement = errors.New("invalid requirement")

// Requirement is a parsed plugin request. Name is kept apart from the
// specifier because it becomes the manifest key.
type Requirement struct {
	Name string
	dist.Specifier
}

// Dependency returns the requirement as a dependency.
func (r Requirement) Dependency() dist.Dependency {
	return dist.Dependency{Name: r.Name, Specifier: r.Specifier}
}

// Unconstrained reports whether a version request still needs a constraint.
func (r Requirement) Unconstrained() bool {
	return r.Kind == dist.KindVersion && r.Constraint == ""
}

// Parser parses plugin request strings.
type Parser struct {
	fs      afero.Fs
	workDir string
}

// NewParser creates a parser resolving relative paths against workDir.
func NewParser(fs afero.Fs, workDir string) *Parser {
	return &Parser{fs: fs, workDir: workDir}
}

var (
	trailingExtrasRe = regexp.MustCompile(`^(.*?)\[([\w.,\- ]+)\]$`)
	vcsPrefixRe      = regexp.MustCompile(`^(git|hg|svn|bzr)\+[a-z][a-z0-9+.-]*://`)
	scpRe            = regexp.MustCompile(`^git@[\w.-]+:.+$`)
	httpRe           = regexp.MustCompile(`^https?://`)
	pairRe           = regexp.MustCompile(`^([^@=: ]+)(@|==|=|:| )(.*)$`)
	constraintRe     = regexp.MustCompile(`^([^><=!: ]+)((?:>=|<=|>|<|!=|~=|~|\^).*)$`)
	nameRe           = regexp.MustCompile(`^[A-Za-z0-9]([A-Za-z0-9._-]*[A-Za-z0-9])?$`)
	constraintTextRe = regexp.MustCompile(`^[\w\s.,*<>=!~^|+-]+$`)
	versionSuffixRe  = regexp.MustCompile(`^(.+?)-\d.*$`)
)

var archiveExts = []string{".tar.gz", ".tar.bz2", ".tar.xz", ".tgz", ".zip", ".whl"}

// ParseAll parses every request, preserving order. The first invalid request
// aborts parsing.
func (p *Parser) ParseAll(requests []string) ([]Requirement, error) {
	reqs := make([]Requirement, 0, len(requests))
	for _, raw := range requests {
		req, err := p.Parse(raw)
		if err != nil {
			return nil, err
		}
		reqs = append(reqs, req)
	}
	return reqs, nil
}

// Parse parses a single plugin request.
func (p *Parser) Parse(raw string) (Requirement, error) {
	req, err := p.parse(strings.TrimSpace(raw))
	if err != nil {
		return Requirement{}, err
	}
	if dist.CanonicalizeName(req.Name) == "python" {
		return Requirement{}, invalid(raw, `"python" names the interpreter constraint, not a package`)
	}
	return req, nil
}

func (p *Parser) parse(raw string) (Requirement, error) {
	if raw == "" {
		return Requirement{}, invalid(raw, "empty request")
	}

	body, extras := raw, []string(nil)
	if m := trailingExtrasRe.FindStringSubmatch(raw); m != nil {
		body, extras = m[1], splitList(m[2])
	}

	var (
		req Requirement
		err error
	)
	switch {
	case vcsPrefixRe.MatchString(body) || scpRe.MatchString(body):
		req, err = parseVCS(body)
	case httpRe.MatchString(body):
		req, err = parseURL(body)
	case isPathLike(body):
		req, err = p.parsePath(body)
	default:
		return parseNamed(raw)
	}
	if err != nil {
		return Requirement{}, invalid(raw, err.Error())
	}
	req.Extras = extras
	return req, nil
}

func parseVCS(body string) (Requirement, error) {
	vcs, location := "git", body
	if m := vcsPrefixRe.FindStringSubmatch(body); m != nil {
		vcs = m[1]
		location = strings.TrimPrefix(body, vcs+"+")
	}

	location, fragment, _ := strings.Cut(location, "#")
	location, rev := splitAtRevision(location)

	var name string
	for _, part := range strings.Split(fragment, "&") {
		switch {
		case part == "":
		case strings.HasPrefix(part, "egg="):
			name = strings.TrimPrefix(part, "egg=")
		case strings.HasPrefix(part, "subdirectory="):
			return Requirement{}, fmt.Errorf("subdirectory fragments are not supported")
		default:
			rev = part
		}
	}
	if name == "" {
		name = nameFromRepository(location)
	}
	if !nameRe.MatchString(name) {
		return Requirement{}, fmt.Errorf("cannot derive a package name from %q", location)
	}
	return Requirement{Name: name, Specifier: dist.NewVCS(vcs, location, rev)}, nil
}

// splitAtRevision splits a "url@rev" direct reference. Only an "@" after the
// last path separator marks a revision, so ssh user info is left alone.
func splitAtRevision(location string) (string, string) {
	at := strings.LastIndex(location, "@")
	if at < 0 || at < strings.LastIndexAny(location, "/:") {
		return location, ""
	}
	return location[:at], location[at+1:]
}

func nameFromRepository(location string) string {
	location = strings.TrimSuffix(strings.TrimSuffix(location, "/"), ".git")
	if idx := strings.LastIndexAny(location, "/:"); idx >= 0 {
		return location[idx+1:]
	}
	return location
}

func parseURL(body string) (Requirement, error) {
	u, err := url.Parse(body)
	if err != nil {
		return Requirement{}, fmt.Errorf("parsing url: %w", err)
	}
	name := archiveName(path.Base(u.Path))
	if egg, ok := strings.CutPrefix(u.Fragment, "egg="); ok {
		name = egg
	}
	if !nameRe.MatchString(name) {
		return Requirement{}, fmt.Errorf("cannot derive a package name from %q", body)
	}
	return Requirement{Name: name, Specifier: dist.NewURL(body)}, nil
}

func isPathLike(body string) bool {
	if strings.HasPrefix(body, ".") || strings.HasPrefix(body, "~") || strings.ContainsAny(body, `/\`) {
		return true
	}
	return IsArchive(body)
}

func (p *Parser) parsePath(body string) (Requirement, error) {
	resolved, err := homedir.Expand(body)
	if err != nil {
		return Requirement{}, fmt.Errorf("expanding path: %w", err)
	}
	if !filepath.IsAbs(resolved) {
		resolved = filepath.Join(p.workDir, resolved)
	}
	resolved = filepath.Clean(resolved)

	info, err := p.fs.Stat(resolved)
	if err != nil {
		return Requirement{}, fmt.Errorf("path %s does not exist", resolved)
	}

	base := filepath.Base(resolved)
	name := base
	if !info.IsDir() {
		name = archiveName(base)
	}
	if !nameRe.MatchString(name) {
		return Requirement{}, fmt.Errorf("cannot derive a package name from %q", body)
	}
	return Requirement{Name: name, Specifier: dist.NewPath(resolved, info.IsDir())}, nil
}

func parseNamed(raw string) (Requirement, error) {
	name, constraint := raw, ""
	if m := pairRe.FindStringSubmatch(raw); m != nil && !isComparison(m[1], m[2]) {
		name, constraint = m[1], strings.TrimSpace(m[3])
	} else if m := constraintRe.FindStringSubmatch(raw); m != nil {
		name, constraint = m[1], strings.TrimSpace(m[2])
	}

	var extras []string
	if m := trailingExtrasRe.FindStringSubmatch(name); m != nil {
		name, extras = m[1], splitList(m[2])
	}

	if !nameRe.MatchString(name) {
		return Requirement{}, invalid(raw, "malformed package name")
	}
	if constraint == "latest" {
		constraint = ""
	}
	if constraint != "" && !constraintTextRe.MatchString(constraint) {
		return Requirement{}, invalid(raw, "malformed version constraint")
	}

	spec := dist.NewVersion(constraint)
	spec.Extras = extras
	return Requirement{Name: name, Specifier: spec}, nil
}

// isComparison reports whether a "=" separator is really the tail of an
// operator such as ">=".
func isComparison(name, sep string) bool {
	return sep == "=" && strings.ContainsAny(name[len(name)-1:], "<>~!")
}

func archiveName(filename string) string {
	lower := strings.ToLower(filename)
	if strings.HasSuffix(lower, ".whl") {
		name, _, _ := strings.Cut(filename, "-")
		return name
	}
	for _, ext := range archiveExts {
		if strings.HasSuffix(lower, ext) {
			stem := filename[:len(filename)-len(ext)]
			if m := versionSuffixRe.FindStringSubmatch(stem); m != nil {
				return m[1]
			}
			return stem
		}
	}
	return ""
}

// IsArchive reports whether s names a wheel or source archive.
func IsArchive(s string) bool {
	lower := strings.ToLower(s)
	for _, ext := range archiveExts {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func invalid(raw, reason string) error {
	return fmt.Errorf("%w %q: %s", ErrInvalidRequirement, raw, reason)
}
