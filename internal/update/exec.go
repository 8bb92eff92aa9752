package update

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"

	"github.com/charmbracelet/log"
	"github.com/google/shlex"
)

// ExecPipeline runs an external update executable, e.g. "poetry".
type ExecPipeline struct {
	command []string
	logger  *log.Logger
}

// NewExecPipeline splits command into an executable and leading arguments.
func NewExecPipeline(command string, logger *log.Logger) (*ExecPipeline, error) {
	argv, err := shlex.Split(command)
	if err != nil {
		return nil, fmt.Errorf("parsing update command: %w", err)
	}
	if len(argv) == 0 {
		return nil, fmt.Errorf("parsing update command: empty command")
	}
	return &ExecPipeline{command: argv, logger: logger}, nil
}

// Run executes the update in the project directory. Exit codes of the child
// are returned as is; 127 means it could not be started.
func (p *ExecPipeline) Run(ctx context.Context, inv Invocation, streams IO) int {
	args, err := shlex.Split(inv.Args)
	if err != nil {
		fmt.Fprintf(streams.Err, "parsing arguments: %v\n", err)
		return 1
	}

	argv := append(append([]string{}, p.command[1:]...), args...)
	if inv.Installer.NoCache {
		argv = append(argv, "--no-cache")
	}

	cmd := exec.CommandContext(ctx, p.command[0], argv...)
	cmd.Dir = inv.Project.Dir
	cmd.Env = append(os.Environ(), Environ(inv)...)
	cmd.Stdin = streams.Input
	cmd.Stdout = streams.Out
	cmd.Stderr = streams.Err

	p.logger.Debug("running update", "command", p.command[0], "args", argv, "dir", cmd.Dir)

	err = cmd.Run()
	if err == nil {
		return 0
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if code := exitErr.ExitCode(); code > 0 {
			return code
		}
		return 1
	}

	fmt.Fprintf(streams.Err, "running %s: %v\n", p.command[0], err)
	var execErr *exec.Error
	if errors.As(err, &execErr) {
		return 127
	}
	return 1
}

// Environ returns the variables that scope the child to the target
// environment and installer settings.
func Environ(inv Invocation) []string {
	env := []string{
		"POETRY_INSTALLER_PARALLEL=" + strconv.FormatBool(inv.Installer.Parallel),
	}
	if inv.Env != nil {
		env = append(env, "VIRTUAL_ENV="+inv.Env.Path)
	}
	if inv.Installer.MaxWorkers > 0 {
		env = append(env, "POETRY_INSTALLER_MAX_WORKERS="+strconv.Itoa(inv.Installer.MaxWorkers))
	}
	return env
}
