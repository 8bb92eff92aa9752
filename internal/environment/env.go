package environment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/spf13/afero"
	"gopkg.in/ini.v1"
)

// ErrNoVersion is returned when the interpreter version of an environment
// cannot be determined.
var ErrNoVersion = errors.New("cannot determine python version")

// Env is a python runtime environment.
type Env struct {
	Path         string
	SitePackages []string
	VersionInfo  [3]int
}

// PythonVersion renders the version triple as "major.minor.patch".
func (e *Env) PythonVersion() string {
	return fmt.Sprintf("%d.%d.%d", e.VersionInfo[0], e.VersionInfo[1], e.VersionInfo[2])
}

// Runner executes a command and returns its standard output.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// ExecRunner runs commands on the host.
func ExecRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("running %s: %w: %s", name, err, strings.TrimSpace(stderr.String()))
	}
	return out, nil
}

// Manager locates the environment the tool itself runs in.
type Manager struct {
	fs      afero.Fs
	python  string
	envPath string
	run     Runner
	logger  *log.Logger
}

// NewManager creates a manager. When envPath is set the environment is read
// from disk; otherwise python is asked about itself.
func NewManager(fs afero.Fs, python, envPath string, run Runner, logger *log.Logger) *Manager {
	return &Manager{
		fs:      fs,
		python:  python,
		envPath: envPath,
		run:     run,
		logger:  logger,
	}
}

// SystemEnv returns the environment plugins are installed into.
func (m *Manager) SystemEnv(ctx context.Context) (*Env, error) {
	if m.envPath != "" {
		m.logger.Debug("reading environment", "path", m.envPath)
		return m.FromPath(m.envPath)
	}
	m.logger.Debug("querying interpreter", "python", m.python)
	return m.query(ctx)
}

const inspectScript = `import json, sys, sysconfig
paths = sysconfig.get_paths()
print(json.dumps({"prefix": sys.prefix, "version_info": list(sys.version_info[:3]), "purelib": paths["purelib"], "platlib": paths["platlib"]}))`

type interpreterInfo struct {
	Prefix      string `json:"prefix"`
	VersionInfo []int  `json:"version_info"`
	Purelib     string `json:"purelib"`
	Platlib     string `json:"platlib"`
}

func (m *Manager) query(ctx context.Context) (*Env, error) {
	out, err := m.run(ctx, m.python, "-c", inspectScript)
	if err != nil {
		return nil, fmt.Errorf("inspecting interpreter: %w", err)
	}

	var info interpreterInfo
	if err := json.Unmarshal(out, &info); err != nil {
		return nil, fmt.Errorf("parsing interpreter info: %w", err)
	}
	if len(info.VersionInfo) < 3 {
		return nil, fmt.Errorf("%w: interpreter reported %v", ErrNoVersion, info.VersionInfo)
	}

	env := &Env{Path: info.Prefix}
	copy(env.VersionInfo[:], info.VersionInfo[:3])
	env.SitePackages = append(env.SitePackages, info.Purelib)
	if info.Platlib != "" && info.Platlib != info.Purelib {
		env.SitePackages = append(env.SitePackages, info.Platlib)
	}
	return env, nil
}

// FromPath reads a virtual environment from its directory: the version from
// pyvenv.cfg and the site directories from the usual layouts.
func (m *Manager) FromPath(path string) (*Env, error) {
	version, err := m.readVersion(filepath.Join(path, "pyvenv.cfg"))
	if err != nil {
		return nil, err
	}

	var sites []string
	for _, pattern := range []string{
		filepath.Join(path, "lib", "python*", "site-packages"),
		filepath.Join(path, "lib64", "python*", "site-packages"),
		filepath.Join(path, "Lib", "site-packages"),
	} {
		matches, err := afero.Glob(m.fs, pattern)
		if err != nil {
			return nil, fmt.Errorf("globbing %s: %w", pattern, err)
		}
		sites = append(sites, matches...)
	}
	sort.Strings(sites)

	return &Env{Path: path, SitePackages: sites, VersionInfo: version}, nil
}

func (m *Manager) readVersion(cfgPath string) ([3]int, error) {
	var version [3]int

	data, err := afero.ReadFile(m.fs, cfgPath)
	if err != nil {
		return version, fmt.Errorf("reading pyvenv.cfg: %w", err)
	}
	cfg, err := ini.Load(data)
	if err != nil {
		return version, fmt.Errorf("parsing pyvenv.cfg: %w", err)
	}

	section := cfg.Section("")
	raw := section.Key("version").String()
	if raw == "" {
		raw = section.Key("version_info").String()
	}
	if raw == "" {
		return version, fmt.Errorf("%w: %s has no version key", ErrNoVersion, cfgPath)
	}
	return ParseVersionInfo(raw)
}

// ParseVersionInfo parses "3.9.1" or "3.9.1.final.0" into a version triple.
func ParseVersionInfo(raw string) ([3]int, error) {
	var version [3]int
	parts := strings.Split(strings.TrimSpace(raw), ".")
	if len(parts) < 3 {
		return version, fmt.Errorf("%w: %q", ErrNoVersion, raw)
	}
	for i := 0; i < 3; i++ {
		n, err := strconv.Atoi(parts[i])
		if err != nil {
			return version, fmt.Errorf("%w: %q", ErrNoVersion, raw)
		}
		version[i] = n
	}
	return version, nil
}
