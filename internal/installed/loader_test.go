package installed

import (
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frederic-klein/yapp/internal/dist"
	"github.com/frederic-klein/yapp/internal/environment"
)

const site = "/venv/lib/python3.9/site-packages"

func writeFile(t *testing.T, fs afero.Fs, path, content string) {
	t.Helper()
	require.NoError(t, afero.WriteFile(fs, path, []byte(content), 0o644))
}

func testEnv() *environment.Env {
	return &environment.Env{Path: "/venv", SitePackages: []string{site}, VersionInfo: [3]int{3, 9, 1}}
}

func TestLoader_Load(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, filepath.Join(site, "poetry-1.1.0.dist-info", "METADATA"), `Metadata-Version: 2.1
Name: poetry
Version: 1.1.0
Summary: Python dependency management and packaging made easy.
Author: Sébastien Eustace
Author-email: sebastien@eustace.io
Requires-Dist: cleo (>=0.8.1,<0.9.0)
Requires-Dist: importlib-metadata (>=1.6.0,<2.0.0) ; python_version < "3.8"

Long description body.
Requires-Dist: not-a-header
`)
	writeFile(t, fs, filepath.Join(site, "poetry_plugin-0.1.2.dist-info", "METADATA"), "Metadata-Version: 2.1\nName: poetry-plugin\nVersion: 0.1.2\n")
	writeFile(t, fs, filepath.Join(site, "poetry_plugin-0.1.2.dist-info", "entry_points.txt"), `[poetry.application.plugin]
demo = poetry_plugin.plugins:DemoPlugin

[console_scripts]
demo-cli = poetry_plugin.cli:main
`)
	writeFile(t, fs, filepath.Join(site, "poetry_plugin-0.1.2.dist-info", "direct_url.json"),
		`{"url": "https://github.com/demo/poetry-plugin.git", "vcs_info": {"vcs": "git", "commit_id": "9cf87a2", "requested_revision": "master"}}`)
	writeFile(t, fs, filepath.Join(site, "legacy.egg-info", "PKG-INFO"), "Metadata-Version: 1.0\nName: legacy\nVersion: 0.3\n")

	loader := NewLoader(fs)
	packages, err := loader.Load(testEnv(), true)
	require.NoError(t, err)
	require.Len(t, packages, 3)

	byName := make(map[string]dist.Package)
	for _, p := range packages {
		byName[p.Name] = p
	}

	poetry := byName["poetry"]
	assert.Equal(t, "1.1.0", poetry.Version)
	assert.Equal(t, "Sébastien Eustace <sebastien@eustace.io>", poetry.Author)
	require.Len(t, poetry.Requires, 2)
	assert.Equal(t, "cleo", poetry.Requires[0].Name)
	assert.Equal(t, ">=0.8.1,<0.9.0", poetry.Requires[0].Constraint)
	assert.Equal(t, dist.Marker(`python_version < "3.8"`), poetry.Requires[1].Marker)
	assert.Nil(t, poetry.Direct)

	plugin := byName["poetry-plugin"]
	assert.Equal(t, []string{"demo"}, plugin.EntryPoints["poetry.application.plugin"])
	assert.Equal(t, []string{"demo-cli"}, plugin.EntryPoints["console_scripts"])
	require.NotNil(t, plugin.Direct)
	assert.Equal(t, dist.DirectURL{
		Kind: dist.KindVCS, URL: "https://github.com/demo/poetry-plugin.git", VCS: "git", Revision: "9cf87a2",
	}, *plugin.Direct)

	assert.Equal(t, "0.3", byName["legacy"].Version)
}

func TestLoader_Load_WithoutDependencies(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, filepath.Join(site, "poetry-1.1.0.dist-info", "METADATA"),
		"Metadata-Version: 2.1\nName: poetry\nVersion: 1.1.0\nRequires-Dist: cleo (>=0.8.1)\n")

	packages, err := NewLoader(fs).Load(testEnv(), false)
	require.NoError(t, err)
	require.Len(t, packages, 1)
	assert.Empty(t, packages[0].Requires)
}

func TestLoader_Load_DirectURLKinds(t *testing.T) {
	tests := []struct {
		name string
		json string
		want dist.DirectURL
	}{
		{
			name: "local directory",
			json: `{"url": "file:///src/plugin", "dir_info": {"editable": true}}`,
			want: dist.DirectURL{Kind: dist.KindPath, URL: "/src/plugin"},
		},
		{
			name: "archive",
			json: `{"url": "https://example.com/plugin-1.0.tar.gz", "archive_info": {}}`,
			want: dist.DirectURL{Kind: dist.KindURL, URL: "https://example.com/plugin-1.0.tar.gz"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := afero.NewMemMapFs()
			info := filepath.Join(site, "plugin-1.0.dist-info")
			writeFile(t, fs, filepath.Join(info, "METADATA"), "Metadata-Version: 2.1\nName: plugin\nVersion: 1.0\n")
			writeFile(t, fs, filepath.Join(info, "direct_url.json"), tt.json)

			packages, err := NewLoader(fs).Load(testEnv(), true)
			require.NoError(t, err)
			require.Len(t, packages, 1)
			require.NotNil(t, packages[0].Direct)
			assert.Equal(t, tt.want, *packages[0].Direct)
		})
	}
}

func TestLoader_Load_Errors(t *testing.T) {
	tests := []struct {
		name  string
		files map[string]string
	}{
		{
			name:  "missing name",
			files: map[string]string{"x-1.0.dist-info/METADATA": "Metadata-Version: 2.1\nVersion: 1.0\n"},
		},
		{
			name: "bad requirement",
			files: map[string]string{
				"x-1.0.dist-info/METADATA": "Metadata-Version: 2.1\nName: x\nVersion: 1.0\nRequires-Dist: (>=1)\n",
			},
		},
		{
			name: "bad direct url",
			files: map[string]string{
				"x-1.0.dist-info/METADATA":        "Metadata-Version: 2.1\nName: x\nVersion: 1.0\n",
				"x-1.0.dist-info/direct_url.json": "{",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := afero.NewMemMapFs()
			for name, content := range tt.files {
				writeFile(t, fs, filepath.Join(site, name), content)
			}
			_, err := NewLoader(fs).Load(testEnv(), true)
			require.Error(t, err)
		})
	}
}

func TestLoader_Load_DuplicateKeepsFirstSite(t *testing.T) {
	fs := afero.NewMemMapFs()
	purelib := "/venv/lib/python3.9/site-packages"
	platlib := "/venv/lib64/python3.9/site-packages"
	writeFile(t, fs, filepath.Join(purelib, "dup-1.0.dist-info", "METADATA"), "Metadata-Version: 2.1\nName: dup\nVersion: 1.0\n")
	writeFile(t, fs, filepath.Join(platlib, "Dup-2.0.dist-info", "METADATA"), "Metadata-Version: 2.1\nName: Dup\nVersion: 2.0\n")

	env := &environment.Env{Path: "/venv", SitePackages: []string{purelib, platlib}}
	packages, err := NewLoader(fs).Load(env, true)
	require.NoError(t, err)
	require.Len(t, packages, 1)
	assert.Equal(t, "1.0", packages[0].Version)
}
