package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"

	"github.com/forgefleet/archforge/internal/models"
	"github.com/forgefleet/archforge/pkg/logger"
)

// Runner executes one command on one execution target and reports how it
// ended. A non-zero remote exit status is ordinary data and comes back as
// the int; the error is reserved for failures to dispatch or to reach the
// target at all.
type Runner interface {
	Run(ctx context.Context, target models.ExecutionTarget, cmd Command) (int, error)
}

// Exec runs cmd on target and folds a non-zero exit status into the
// returned error. Callers that need the raw exit code use the Runner
// directly.
func Exec(ctx context.Context, r Runner, target models.ExecutionTarget, cmd Command) error {
	code, err := r.Run(ctx, target, cmd)
	if err != nil {
		return err
	}
	if code != 0 {
		return &ExitError{Target: target.String(), Code: code}
	}
	return nil
}

// LocalRunner executes commands on the orchestrator machine through the
// local shell. It serves the reserved "local" target and tests.
type LocalRunner struct {
	logger *logger.Logger
	stdout io.Writer
	stderr io.Writer
}

// NewLocalRunner creates a runner whose command output streams to the given
// writers.
func NewLocalRunner(log *logger.Logger, stdout, stderr io.Writer) *LocalRunner {
	if log == nil {
		log = logger.Default()
	}
	if stdout == nil {
		stdout = io.Discard
	}
	if stderr == nil {
		stderr = io.Discard
	}
	return &LocalRunner{logger: log, stdout: stdout, stderr: stderr}
}

// Run executes cmd with "sh -c" and waits for it to finish.
func (r *LocalRunner) Run(ctx context.Context, target models.ExecutionTarget, cmd Command) (int, error) {
	if cmd.Empty() {
		return 0, fmt.Errorf("dispatch to %s: %w", target, ErrEmptyCommand)
	}

	r.logger.Debug("executing local command", "target", target.String(), "command", cmd.String())

	proc := exec.CommandContext(ctx, "sh", "-c", cmd.String())
	proc.Stdout = r.stdout
	proc.Stderr = r.stderr

	if err := proc.Run(); err != nil {
		if ctx.Err() != nil {
			return -1, ctx.Err()
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return exitErr.ExitCode(), nil
		}
		return -1, fmt.Errorf("running command on %s: %w", target, err)
	}
	return 0, nil
}
