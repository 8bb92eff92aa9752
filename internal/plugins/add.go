package plugins

import (
	"context"
	"fmt"
	"io"

	"github.com/charmbracelet/log"

	"github.com/frederic-klein/yapp/internal/dist"
	"github.com/frederic-klein/yapp/internal/environment"
	"github.com/frederic-klein/yapp/internal/manifest"
	"github.com/frederic-klein/yapp/internal/requirement"
	"github.com/frederic-klein/yapp/internal/snapshot"
	"github.com/frederic-klein/yapp/internal/update"
)

// EnvProvider locates the environment the host runs in.
type EnvProvider interface {
	SystemEnv(ctx context.Context) (*environment.Env, error)
}

// PackageLoader enumerates installed packages.
type PackageLoader interface {
	Load(env *environment.Env, withDependencies bool) ([]dist.Package, error)
}

// Executor delegates to the update pipeline.
type Executor interface {
	Execute(ctx context.Context, req update.Request, out, errOut io.Writer) (int, error)
}

// Deps are the collaborators of an Adder.
type Deps struct {
	Parser      *requirement.Parser
	Envs        EnvProvider
	Loader      PackageLoader
	Snapshotter *snapshot.Snapshotter
	Writer      *manifest.Writer
	Executor    Executor
	Logger      *log.Logger
}

// AddOptions are the inputs of one "plugin add" invocation.
type AddOptions struct {
	Plugins []string
	DryRun  bool
}

// Adder installs plugins into the host's own environment.
type Adder struct {
	deps      Deps
	home      string
	installer update.InstallerConfig
}

// NewAdder creates an adder. When home is set the manifest is written there
// instead of into the environment directory.
func NewAdder(deps Deps, home string, installer update.InstallerConfig) *Adder {
	return &Adder{deps: deps, home: home, installer: installer}
}

// Add writes a manifest declaring everything installed plus plugins and runs
// the update pipeline on it. Errors are returned for failures before the
// pipeline runs; otherwise the pipeline's exit status is returned.
func (a *Adder) Add(ctx context.Context, opts AddOptions, out, errOut io.Writer) (int, error) {
	logger := a.deps.Logger

	reqs, err := a.deps.Parser.ParseAll(opts.Plugins)
	if err != nil {
		return 1, err
	}
	for _, req := range reqs {
		if a.deps.Snapshotter.Excludes(req.Name) {
			return 1, fmt.Errorf("%w %q: %s is managed by the environment and cannot be added",
				requirement.ErrInvalidRequirement, req.Name, req.Name)
		}
	}

	env, err := a.deps.Envs.SystemEnv(ctx)
	if err != nil {
		return 1, fmt.Errorf("discovering environment: %w", err)
	}
	logger.Debug("using environment", "path", env.Path, "python", env.PythonVersion())

	packages, err := a.deps.Loader.Load(env, true)
	if err != nil {
		return 1, fmt.Errorf("reading installed packages: %w", err)
	}

	snap, err := a.deps.Snapshotter.Take(packages)
	if err != nil {
		return 1, err
	}
	logger.Debug("snapshot taken",
		"packages", snap.Repository.Len(),
		"dependencies", len(snap.Root.Dependencies()),
		"plugins", len(snap.Plugins))

	reqs = requirement.Constrain(reqs, snap.Repository, out)

	root := snap.Root
	names := make([]string, 0, len(reqs))
	for _, req := range reqs {
		root.AddDependency(req.Dependency())
		names = append(names, req.Name)
	}
	root.PythonVersions = env.PythonVersion()

	dir := a.home
	if dir == "" {
		dir = env.Path
	}
	path, err := a.deps.Writer.Write(dir, root)
	if err != nil {
		return 1, err
	}
	logger.Debug("wrote manifest", "path", path)

	return a.deps.Executor.Execute(ctx, update.Request{
		ProjectDir: dir,
		Env:        env,
		Installer:  a.installer,
		Plugins:    names,
		DryRun:     opts.DryRun,
	}, out, errOut)
}
