package installed

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/textproto"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"
	"gopkg.in/ini.v1"

	"github.com/frederic-klein/yapp/internal/dist"
	"github.com/frederic-klein/yapp/internal/environment"
	"github.com/frederic-klein/yapp/internal/requirement"
)

// Loader enumerates the distributions installed in an environment.
type Loader struct {
	fs afero.Fs
}

// NewLoader creates a loader reading from fs.
func NewLoader(fs afero.Fs) *Loader {
	return &Loader{fs: fs}
}

var metadataPatterns = []string{
	filepath.Join("*.dist-info", "METADATA"),
	filepath.Join("*.egg-info", "PKG-INFO"),
}

// Load returns every distribution found in the environment's site
// directories, ordered by site directory then metadata path. When
// withDependencies is false, declared requirements are not parsed.
func (l *Loader) Load(env *environment.Env, withDependencies bool) ([]dist.Package, error) {
	var packages []dist.Package
	seen := make(map[string]bool)

	for _, site := range env.SitePackages {
		var files []string
		for _, pattern := range metadataPatterns {
			matches, err := afero.Glob(l.fs, filepath.Join(site, pattern))
			if err != nil {
				return nil, fmt.Errorf("scanning %s: %w", site, err)
			}
			files = append(files, matches...)
		}
		sort.Strings(files)

		for _, file := range files {
			pkg, err := l.loadOne(file, withDependencies)
			if err != nil {
				return nil, err
			}
			if seen[pkg.CanonicalName()] {
				continue
			}
			seen[pkg.CanonicalName()] = true
			packages = append(packages, pkg)
		}
	}

	return packages, nil
}

func (l *Loader) loadOne(metadataPath string, withDependencies bool) (dist.Package, error) {
	data, err := afero.ReadFile(l.fs, metadataPath)
	if err != nil {
		return dist.Package{}, fmt.Errorf("reading %s: %w", metadataPath, err)
	}

	pkg, err := parseMetadata(data, withDependencies)
	if err != nil {
		return dist.Package{}, fmt.Errorf("parsing %s: %w", metadataPath, err)
	}

	infoDir := filepath.Dir(metadataPath)
	if pkg.Direct, err = l.readDirectURL(filepath.Join(infoDir, "direct_url.json")); err != nil {
		return dist.Package{}, err
	}
	if pkg.EntryPoints, err = l.readEntryPoints(filepath.Join(infoDir, "entry_points.txt")); err != nil {
		return dist.Package{}, err
	}

	return pkg, nil
}

// parseMetadata reads the RFC 822 style header block of a core metadata file.
func parseMetadata(data []byte, withDependencies bool) (dist.Package, error) {
	reader := textproto.NewReader(bufio.NewReader(bytes.NewReader(data)))
	header, err := reader.ReadMIMEHeader()
	if err != nil && !errors.Is(err, io.EOF) {
		return dist.Package{}, fmt.Errorf("reading headers: %w", err)
	}

	pkg := dist.Package{
		Name:    header.Get("Name"),
		Version: header.Get("Version"),
		Summary: header.Get("Summary"),
		Author:  author(header),
	}
	if pkg.Name == "" || pkg.Version == "" {
		return dist.Package{}, fmt.Errorf("missing Name or Version")
	}

	if withDependencies {
		for _, line := range header.Values("Requires-Dist") {
			dep, err := requirement.ParseDependency(line)
			if err != nil {
				return dist.Package{}, err
			}
			pkg.Requires = append(pkg.Requires, dep)
		}
	}

	return pkg, nil
}

func author(header textproto.MIMEHeader) string {
	name := header.Get("Author")
	email := header.Get("Author-Email")
	switch {
	case name != "" && email != "" && !strings.Contains(email, "<"):
		return fmt.Sprintf("%s <%s>", name, email)
	case email != "":
		return email
	default:
		return name
	}
}

type directURL struct {
	URL     string `json:"url"`
	VCSInfo *struct {
		VCS               string `json:"vcs"`
		CommitID          string `json:"commit_id"`
		RequestedRevision string `json:"requested_revision"`
	} `json:"vcs_info"`
	DirInfo *struct {
		Editable bool `json:"editable"`
	} `json:"dir_info"`
}

func (l *Loader) readDirectURL(path string) (*dist.DirectURL, error) {
	data, err := afero.ReadFile(l.fs, path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	var raw directURL
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	switch {
	case raw.VCSInfo != nil:
		return &dist.DirectURL{
			Kind:     dist.KindVCS,
			URL:      raw.URL,
			VCS:      raw.VCSInfo.VCS,
			Revision: raw.VCSInfo.CommitID,
		}, nil
	case raw.DirInfo != nil || strings.HasPrefix(raw.URL, "file://"):
		return &dist.DirectURL{
			Kind: dist.KindPath,
			URL:  strings.TrimPrefix(raw.URL, "file://"),
		}, nil
	default:
		return &dist.DirectURL{Kind: dist.KindURL, URL: raw.URL}, nil
	}
}

func (l *Loader) readEntryPoints(path string) (map[string][]string, error) {
	data, err := afero.ReadFile(l.fs, path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	cfg, err := ini.LoadSources(ini.LoadOptions{KeyValueDelimiters: "="}, data)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	groups := make(map[string][]string)
	for _, section := range cfg.Sections() {
		if section.Name() == ini.DefaultSection {
			continue
		}
		for _, key := range section.Keys() {
			groups[section.Name()] = append(groups[section.Name()], key.Name())
		}
	}
	return groups, nil
}
