package update

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frederic-klein/yapp/internal/dist"
	"github.com/frederic-klein/yapp/internal/environment"
	"github.com/frederic-klein/yapp/internal/manifest"
)

type fakePipeline struct {
	code  int
	calls []Invocation
}

func (f *fakePipeline) Run(_ context.Context, inv Invocation, streams IO) int {
	f.calls = append(f.calls, inv)
	fmt.Fprintln(streams.Out, "Package operations: 1 install, 0 updates, 0 removals")
	return f.code
}

func writeManifest(t *testing.T, fs afero.Fs, dir string) {
	t.Helper()
	pkg := dist.NewProjectPackage("poetry", "1.1.0")
	pkg.PythonVersions = "3.9.1"
	pkg.AddDependency(dist.Dependency{Name: "cleo", Specifier: dist.NewVersion("^0.8.1")})
	_, err := manifest.NewWriter(fs).Write(dir, pkg)
	require.NoError(t, err)
}

func TestArgs(t *testing.T) {
	tests := []struct {
		name   string
		names  []string
		dryRun bool
		want   string
	}{
		{"single", []string{"poetry-plugin"}, false, "update poetry-plugin"},
		{"several", []string{"a", "b"}, false, "update a b"},
		{"dry run", []string{"a", "b"}, true, "update a b --dry-run"},
		{"none", nil, true, "update --dry-run"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Args(tt.names, tt.dryRun)
			assert.Equal(t, tt.want, got)
			assert.LessOrEqual(t, strings.Count(got, "--dry-run"), 1)
		})
	}
}

func TestExecutor_Execute(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeManifest(t, fs, "/env")

	pipeline := &fakePipeline{code: 0}
	env := &environment.Env{Path: "/env", VersionInfo: [3]int{3, 9, 1}}
	installer := InstallerConfig{Parallel: true, MaxWorkers: 4}

	var out bytes.Buffer
	code, err := NewExecutor(fs, pipeline, nil).Execute(context.Background(), Request{
		ProjectDir: "/env",
		Env:        env,
		Installer:  installer,
		Plugins:    []string{"poetry-plugin"},
		DryRun:     true,
	}, &out, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, 0, code)
	assert.Contains(t, out.String(), "1 install")

	require.Len(t, pipeline.calls, 1)
	inv := pipeline.calls[0]
	assert.Equal(t, "update poetry-plugin --dry-run", inv.Args)
	assert.Same(t, env, inv.Env)
	assert.Equal(t, installer, inv.Installer)
	assert.Equal(t, "/env", inv.Project.Dir)
	assert.Equal(t, "3.9.1", inv.Project.Package.PythonVersions)
	_, ok := inv.Project.Package.Dependency("cleo")
	assert.True(t, ok)
}

func TestExecutor_Execute_PassesFailureThrough(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeManifest(t, fs, "/env")

	code, err := NewExecutor(fs, &fakePipeline{code: 2}, nil).Execute(context.Background(), Request{
		ProjectDir: "/env",
		Plugins:    []string{"poetry-plugin"},
	}, io.Discard, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, 2, code)
}

func TestExecutor_Execute_MissingManifest(t *testing.T) {
	pipeline := &fakePipeline{}
	_, err := NewExecutor(afero.NewMemMapFs(), pipeline, nil).Execute(context.Background(), Request{
		ProjectDir: "/env",
	}, io.Discard, io.Discard)
	require.Error(t, err)
	assert.Empty(t, pipeline.calls)
}

func TestEnviron(t *testing.T) {
	got := Environ(Invocation{
		Env:       &environment.Env{Path: "/venv"},
		Installer: InstallerConfig{Parallel: false, MaxWorkers: 2},
	})
	assert.ElementsMatch(t, []string{
		"POETRY_INSTALLER_PARALLEL=false",
		"VIRTUAL_ENV=/venv",
		"POETRY_INSTALLER_MAX_WORKERS=2",
	}, got)
}

func TestNewExecPipeline_Invalid(t *testing.T) {
	_, err := NewExecPipeline("", log.New(io.Discard))
	require.Error(t, err)
	_, err = NewExecPipeline(`poetry "unterminated`, log.New(io.Discard))
	require.Error(t, err)
}

func TestExecPipeline_Run(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}

	dir := t.TempDir()
	p, err := NewExecPipeline(`sh -c 'echo "$VIRTUAL_ENV $*"; pwd; exit 3' update-runner`, log.New(io.Discard))
	require.NoError(t, err)

	var out bytes.Buffer
	code := p.Run(context.Background(), Invocation{
		Project: &Project{Dir: dir},
		Env:     &environment.Env{Path: "/venv"},
		Args:    Args([]string{"poetry-plugin"}, true),
	}, IO{Out: &out, Err: io.Discard})

	assert.Equal(t, 3, code)
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "/venv update poetry-plugin --dry-run", lines[0])
	assert.Contains(t, lines[1], filepath.Base(dir))
}

func TestExecPipeline_Run_MissingExecutable(t *testing.T) {
	p, err := NewExecPipeline("yapp-no-such-update-binary", log.New(io.Discard))
	require.NoError(t, err)

	var errOut bytes.Buffer
	code := p.Run(context.Background(), Invocation{
		Project: &Project{Dir: t.TempDir()},
		Args:    "update demo",
	}, IO{Out: io.Discard, Err: &errOut})
	assert.Equal(t, 127, code)
	assert.Contains(t, errOut.String(), "yapp-no-such-update-binary")
}
