package update

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/afero"

	"github.com/frederic-klein/yapp/internal/dist"
	"github.com/frederic-klein/yapp/internal/environment"
	"github.com/frederic-klein/yapp/internal/manifest"
)

// InstallerConfig carries the installer settings forwarded to the pipeline.
type InstallerConfig struct {
	Parallel   bool
	MaxWorkers int
	NoCache    bool
}

// IO bundles the streams handed to the pipeline.
type IO struct {
	Input io.Reader
	Out   io.Writer
	Err   io.Writer
}

// Project is a manifest loaded from its directory.
type Project struct {
	Dir     string
	Package *dist.ProjectPackage
}

// LoadProject reads the manifest in dir.
func LoadProject(fs afero.Fs, dir string) (*Project, error) {
	pkg, err := manifest.Load(fs, dir)
	if err != nil {
		return nil, fmt.Errorf("loading project: %w", err)
	}
	return &Project{Dir: dir, Package: pkg}, nil
}

// Invocation is everything a pipeline run is scoped to.
type Invocation struct {
	Project   *Project
	Env       *environment.Env
	Installer InstallerConfig
	Args      string
}

// Pipeline resolves and installs a project. Run returns the exit status.
type Pipeline interface {
	Run(ctx context.Context, inv Invocation, streams IO) int
}

// Command is an update bound to one project, environment and installer.
type Command struct {
	pipeline  Pipeline
	project   *Project
	env       *environment.Env
	installer InstallerConfig
}

// NewCommand binds an update to exactly the given inputs.
func NewCommand(pipeline Pipeline, project *Project, env *environment.Env, installer InstallerConfig) *Command {
	return &Command{
		pipeline:  pipeline,
		project:   project,
		env:       env,
		installer: installer,
	}
}

// Run runs the pipeline with args and returns its exit status unchanged.
func (c *Command) Run(ctx context.Context, args string, streams IO) int {
	return c.pipeline.Run(ctx, Invocation{
		Project:   c.project,
		Env:       c.env,
		Installer: c.installer,
		Args:      args,
	}, streams)
}

// Args builds the argument line "update <names...> [--dry-run]".
func Args(names []string, dryRun bool) string {
	parts := append([]string{"update"}, names...)
	if dryRun {
		parts = append(parts, "--dry-run")
	}
	return strings.Join(parts, " ")
}
