package builder

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/forgefleet/archforge/internal/models"
	"github.com/forgefleet/archforge/internal/remote"
	"github.com/forgefleet/archforge/pkg/logger"
)

// Options describes one coordinated multi-architecture build run.
type Options struct {
	Identity  models.ImageIdentity
	Repo      string
	Branch    string
	BuildArgs string // appended verbatim to the build invocation
	Registry  string // registry host for docker login; empty means Docker Hub
	Username  string
	Secret    string
	Builder   string // buildx builder name used when caching is on
	Cache     bool

	// WorkdirFor resolves the workspace directory for one architecture,
	// typically config.WorkdirFor.
	WorkdirFor func(arch string) string
}

// TaskError describes one architecture's failed build task: the step
// that broke, and either its exit code or the transport failure.
type TaskError struct {
	Arch string
	Host string
	Step string
	Code int
	Err  error // transport failure when the step produced no exit code
}

func (e *TaskError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("task %s on %s: step %s: %v", e.Arch, e.Host, e.Step, e.Err)
	}
	return fmt.Sprintf("task %s on %s: step %s exited with status %d", e.Arch, e.Host, e.Step, e.Code)
}

func (e *TaskError) Unwrap() error { return e.Err }

// planStep pairs an executable command with the line dry-run output
// shows for it. display is set only when the command carries a secret.
type planStep struct {
	name    string
	cmd     remote.Command
	display string
}

func (s planStep) displayLine() string {
	if s.display != "" {
		return s.display
	}
	return s.cmd.String()
}

// taskPlan is the resolved, ordered command list for one architecture.
type taskPlan struct {
	arch    string
	target  models.ExecutionTarget
	workdir string
	steps   []planStep
}

// buildPlan resolves the remote steps for one architecture: reset the
// workspace, fetch sources, authenticate to the registry, and run the
// cache-aware build.
func buildPlan(opts Options, arch string, target models.ExecutionTarget) (taskPlan, error) {
	if opts.WorkdirFor == nil {
		return taskPlan{}, fmt.Errorf("planning %s: no workspace resolver configured", arch)
	}
	ws := opts.WorkdirFor(arch)
	if strings.TrimSpace(ws) == "" {
		return taskPlan{}, fmt.Errorf("planning %s: empty workspace directory", arch)
	}
	src := path.Join(ws, imageDir(opts.Identity.Name))

	steps := []planStep{
		{name: models.StepWorkspace, cmd: remote.Script(
			remote.Cmdf("rm -rf %s", remote.Quote(ws)),
			remote.Cmdf("mkdir -p %s", remote.Quote(src)),
		)},
		{name: models.StepFetch, cmd: remote.Cmdf("git clone --branch %s --single-branch %s %s",
			remote.Quote(opts.Branch), remote.Quote(opts.Repo), remote.Quote(src))},
		loginStep(opts.Username, opts.Secret, opts.Registry),
		{name: models.StepBuild, cmd: buildCommand(opts, arch, src)},
	}
	return taskPlan{arch: arch, target: target, workdir: ws, steps: steps}, nil
}

// loginStep pipes the secret to docker login over stdin so it never
// appears in the remote argument list.
func loginStep(username, secret, registry string) planStep {
	login := "docker login --username " + remote.Quote(username) + " --password-stdin"
	if registry != "" {
		login += " " + remote.Quote(registry)
	}
	return planStep{
		name:    models.StepAuth,
		cmd:     remote.Cmdf("printf %%s %s | %s", remote.Quote(secret), login),
		display: "printf %s '[secret]' | " + login,
	}
}

// buildCommand assembles the buildx invocation. With caching on, the
// dedicated builder is created on first use and warm sources are listed
// most specific first; with caching off, the dedicated builder is
// dropped and the default builder runs a cold build.
func buildCommand(opts Options, arch, src string) remote.Command {
	id := opts.Identity

	var b strings.Builder
	b.WriteString("docker buildx build")
	if opts.Cache {
		b.WriteString(" --builder " + remote.Quote(opts.Builder))
		for _, ref := range cacheSources(id, arch) {
			b.WriteString(" --cache-from " + remote.Quote("type=registry,ref="+ref))
		}
		b.WriteString(" --cache-to " + remote.Quote("type=registry,ref="+id.CacheRef(arch)+",mode=max"))
	} else {
		b.WriteString(" --no-cache")
	}
	b.WriteString(" --platform " + remote.Quote(arch))
	b.WriteString(" --tag " + remote.Quote(id.ArchRef(arch)))
	b.WriteString(" --push")
	if opts.BuildArgs != "" {
		b.WriteString(" " + opts.BuildArgs)
	}
	b.WriteString(" " + remote.Quote(src))
	build := remote.Cmdf("%s", b.String())

	if opts.Cache {
		return remote.Script(ensureBuilder(opts.Builder), build)
	}
	return remote.Script(dropBuilder(opts.Builder), build)
}

// cacheSources lists warm-cache candidates in priority order: the
// dedicated per-arch cache tag, the latest tag, the run tag, and the
// task's own arch tag from a previous run.
func cacheSources(id models.ImageIdentity, arch string) []string {
	return []string{id.CacheRef(arch), id.LatestRef(), id.Ref(), id.ArchRef(arch)}
}

func ensureBuilder(name string) remote.Command {
	return remote.Cmdf("docker buildx inspect %s >/dev/null 2>&1 || docker buildx create --name %s --driver docker-container --bootstrap",
		remote.Quote(name), remote.Quote(name))
}

func dropBuilder(name string) remote.Command {
	return remote.Cmdf("docker buildx rm %s >/dev/null 2>&1 || true", remote.Quote(name))
}

// imageDir is the checkout directory name under the workspace, the last
// path segment of the image name.
func imageDir(name string) string {
	if i := strings.LastIndex(name, "/"); i >= 0 {
		return name[i+1:]
	}
	return name
}

// runTask drives one plan to a terminal status, recording progress on
// the task in place. The first failing step ends the task; later steps
// are skipped. The returned TaskError is nil when the task succeeded.
func runTask(ctx context.Context, runner remote.Runner, task *models.BuildTask, plan taskPlan, log *logger.Logger) *TaskError {
	started := time.Now()
	task.Status = models.TaskStatusRunning
	task.StartedAt = &started

	var taskErr *TaskError
	for _, step := range plan.steps {
		task.Step = step.name
		log.Info("step started", "step", step.name)

		code, err := runner.Run(ctx, plan.target, step.cmd)
		if err != nil {
			taskErr = &TaskError{Arch: task.Arch, Host: plan.target.String(), Step: step.name, Err: err}
			log.WithError(err).Error("step failed", "step", step.name)
			break
		}
		if code != 0 {
			taskErr = &TaskError{Arch: task.Arch, Host: plan.target.String(), Step: step.name, Code: code}
			task.ExitCode = code
			log.Error("step failed", "step", step.name, "exit_code", code)
			break
		}
	}

	if taskErr != nil {
		task.Status = models.TaskStatusFailed
		task.Error = taskErr.Error()
	} else {
		task.Status = models.TaskStatusSucceeded
		log.Info("build task succeeded", "tag", task.ArchTag)
	}
	finished := time.Now()
	task.FinishedAt = &finished
	return taskErr
}
