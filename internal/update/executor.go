package update

import (
	"context"
	"io"

	"github.com/spf13/afero"

	"github.com/frederic-klein/yapp/internal/environment"
)

// Request describes one delegated update.
type Request struct {
	ProjectDir string
	Env        *environment.Env
	Installer  InstallerConfig
	Plugins    []string
	DryRun     bool
}

// Executor hands a written manifest to the update pipeline.
type Executor struct {
	fs       afero.Fs
	pipeline Pipeline
	input    io.Reader
}

// NewExecutor creates an executor reading manifests from fs.
func NewExecutor(fs afero.Fs, pipeline Pipeline, input io.Reader) *Executor {
	return &Executor{fs: fs, pipeline: pipeline, input: input}
}

// Execute runs the update for req. The returned status is the pipeline's own;
// an error means the pipeline never ran.
func (e *Executor) Execute(ctx context.Context, req Request, out, errOut io.Writer) (int, error) {
	project, err := LoadProject(e.fs, req.ProjectDir)
	if err != nil {
		return 1, err
	}

	cmd := NewCommand(e.pipeline, project, req.Env, req.Installer)
	return cmd.Run(ctx, Args(req.Plugins, req.DryRun), IO{Input: e.input, Out: out, Err: errOut}), nil
}
