package main

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/fatih/color"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frederic-klein/yapp/internal/manifest"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func setupVenv(t *testing.T) string {
	t.Helper()
	color.NoColor = true

	venv := t.TempDir()
	site := filepath.Join(venv, "lib", "python3.9", "site-packages")
	writeFile(t, filepath.Join(venv, "pyvenv.cfg"), "home = /usr/bin\nversion = 3.9.1\n")
	writeFile(t, filepath.Join(site, "poetry-1.1.0.dist-info", "METADATA"),
		"Metadata-Version: 2.1\nName: poetry\nVersion: 1.1.0\nRequires-Dist: cleo (>=0.8.1,<0.9.0)\n")
	writeFile(t, filepath.Join(site, "cleo-0.8.1.dist-info", "METADATA"), "Metadata-Version: 2.1\nName: cleo\nVersion: 0.8.1\n")
	writeFile(t, filepath.Join(site, "poetry_export-0.2.0.dist-info", "METADATA"), "Metadata-Version: 2.1\nName: poetry-export\nVersion: 0.2.0\n")
	writeFile(t, filepath.Join(site, "poetry_export-0.2.0.dist-info", "entry_points.txt"),
		"[poetry.application.plugin]\nexport = poetry_export.plugins:ExportApplicationPlugin\n")

	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("POETRY_HOME", "")
	t.Setenv("YAPP_ENV_PATH", venv)
	return venv
}

func TestRun_PluginAdd(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	venv := setupVenv(t)
	t.Setenv("YAPP_UPDATE_COMMAND", `sh -c 'echo "Package operations: 1 install, 0 updates, 0 removals ($*)"' runner`)

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"plugin", "add", "poetry-plugin@^1.0", "--dry-run"}, nil, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())
	assert.Contains(t, stdout.String(), "1 install, 0 updates, 0 removals (update poetry-plugin --dry-run)")

	pkg, err := manifest.Load(afero.NewOsFs(), venv)
	require.NoError(t, err)
	plugin, ok := pkg.Dependency("poetry-plugin")
	require.True(t, ok)
	assert.Equal(t, "^1.0", plugin.Constraint)
	_, ok = pkg.Dependency("poetry-export")
	assert.False(t, ok)
	assert.Equal(t, "3.9.1", pkg.PythonVersions)
}

func TestRun_PluginAdd_PipelineStatus(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	setupVenv(t)
	t.Setenv("YAPP_UPDATE_COMMAND", `sh -c 'exit 4' runner`)

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"plugin", "add", "poetry-plugin"}, nil, &stdout, &stderr)
	assert.Equal(t, 4, code)
	assert.Empty(t, stderr.String())
}

func TestRun_PluginShow(t *testing.T) {
	setupVenv(t)

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"plugin", "show", "--format", "yaml"}, nil, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())
	assert.Contains(t, stdout.String(), "name: poetry-export")
	assert.Contains(t, stdout.String(), "- export")
}

func TestRun_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"add without plugins", []string{"plugin", "add"}},
		{"invalid request", []string{"plugin", "add", "./does-not-exist"}},
		{"unknown format", []string{"plugin", "show", "--format", "xml"}},
		{"missing config", []string{"--config", "/nonexistent/yapp.toml", "plugin", "show"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setupVenv(t)
			var stdout, stderr bytes.Buffer
			code := run(context.Background(), tt.args, nil, &stdout, &stderr)
			assert.Equal(t, 1, code)
			assert.Contains(t, stderr.String(), "Error:")
		})
	}
}
