// Package builder coordinates independent per-architecture image builds
// across a host fleet and folds their terminal statuses into a single
// published manifest, with rollback and cleanup on the failure paths.
package builder

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/forgefleet/archforge/internal/manifest"
	"github.com/forgefleet/archforge/internal/models"
	"github.com/forgefleet/archforge/internal/remote"
	"github.com/forgefleet/archforge/pkg/logger"
)

// TagPruner deletes per-architecture tags once the manifest list covers
// them. Implemented by registry.Client.
type TagPruner interface {
	Login(ctx context.Context, username, password string) error
	PruneTags(ctx context.Context, image string, tags []string) ([]string, error)
}

// RunJournal persists observational run state. Implemented by
// runstate.Journal; never read back for control flow.
type RunJournal interface {
	RunID() string
	RecordTask(task models.BuildTask) error
	RecordRun(result models.RunResult) error
	Remove() error
}

// Coordinator fans build tasks out to the fleet, joins their results,
// and drives the rollback or publish-and-prune phase, sweeping every
// host before returning.
type Coordinator struct {
	fleet     *remote.Fleet
	opts      Options
	publisher *manifest.Publisher
	pruner    TagPruner
	journal   RunJournal
	sweeper   *Sweeper
	logger    *logger.Logger
}

func NewCoordinator(fleet *remote.Fleet, pruner TagPruner, journal RunJournal, opts Options, log *logger.Logger) *Coordinator {
	if log == nil {
		log = logger.Default()
	}
	return &Coordinator{
		fleet:     fleet,
		opts:      opts,
		publisher: manifest.NewPublisher(fleet, opts.Identity, opts.Username, opts.Secret, log),
		pruner:    pruner,
		journal:   journal,
		sweeper:   NewSweeper(fleet, opts.Identity, opts.WorkdirFor, journal, log),
		logger:    log.WithComponent("coordinator").WithRun(journal.RunID()),
	}
}

// Run executes the full pipeline: resolve and validate every plan, fan
// the build tasks out, join, then roll back or publish and prune. The
// sweep runs on every path that dispatched anything. The returned
// RunResult is populated even when err is non-nil.
func (c *Coordinator) Run(ctx context.Context) (*models.RunResult, error) {
	plans, err := c.resolvePlans()
	if err != nil {
		c.removeJournal()
		return nil, err
	}

	entries := c.fleet.Mapping().Entries
	result := &models.RunResult{
		RunID:     c.journal.RunID(),
		Image:     c.opts.Identity,
		Outcome:   models.OutcomeAborted,
		StartedAt: time.Now(),
		Tasks:     make([]models.BuildTask, len(entries)),
	}
	for i, entry := range entries {
		result.Tasks[i] = models.BuildTask{
			Arch:    entry.Architecture,
			Target:  entry.Target,
			ArchTag: c.opts.Identity.ArchTag(entry.Architecture),
			Status:  models.TaskStatusPending,
		}
	}

	c.logger.Info("dispatching build tasks", "image", c.opts.Identity.Ref(), "tasks", len(entries))

	taskErrs := make([]*TaskError, len(result.Tasks))
	var wg sync.WaitGroup
	for i := range result.Tasks {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			task := &result.Tasks[i]
			log := c.logger.WithArch(task.Arch).WithHost(task.Target.String())
			taskErrs[i] = runTask(ctx, c.fleet, task, plans[i], log)
		}(i)
	}
	wg.Wait()

	runErr := c.decide(ctx, result, taskErrs)

	finished := time.Now()
	result.FinishedAt = &finished
	c.record(result)
	c.sweeper.Sweep(context.WithoutCancel(ctx))
	return result, runErr
}

// DryRun resolves and prints every task's command plan plus the
// manifest and prune plans. Nothing is dispatched.
func (c *Coordinator) DryRun(w io.Writer) error {
	plans, err := c.resolvePlans()
	if err != nil {
		c.removeJournal()
		return err
	}

	fmt.Fprintf(w, "run %s: %s across %d architectures\n", c.journal.RunID(), c.opts.Identity.Ref(), len(plans))
	for _, plan := range plans {
		fmt.Fprintf(w, "\n[%s] %s on %s\n", plan.arch, c.opts.Identity.ArchRef(plan.arch), plan.target.String())
		for _, step := range plan.steps {
			fmt.Fprintf(w, "  %-10s %s\n", step.name+":", step.displayLine())
		}
	}

	archs := c.fleet.Mapping().Architectures()
	fmt.Fprintf(w, "\n[manifest] %s on %s\n", c.opts.Identity.Ref(), c.fleet.Mapping().ManifestHost.String())
	for _, line := range c.publisher.Plan(archs) {
		fmt.Fprintf(w, "  %s\n", line)
	}

	fmt.Fprintf(w, "\n[prune] registry tags\n")
	for _, arch := range archs {
		fmt.Fprintf(w, "  delete %s\n", c.opts.Identity.ArchTag(arch))
	}

	fmt.Fprintf(w, "\nnothing was dispatched\n")
	c.removeJournal()
	return nil
}

// resolvePlans builds every task's plan up front. An unresolvable plan
// or an empty command aborts the run before anything is dispatched.
func (c *Coordinator) resolvePlans() ([]taskPlan, error) {
	entries := c.fleet.Mapping().Entries
	if len(entries) == 0 {
		return nil, fmt.Errorf("host mapping is empty")
	}

	plans := make([]taskPlan, len(entries))
	for i, entry := range entries {
		plan, err := buildPlan(c.opts, entry.Architecture, entry.Target)
		if err != nil {
			return nil, err
		}
		for _, step := range plan.steps {
			if step.cmd.Empty() {
				return nil, fmt.Errorf("dispatch to %s: step %s: %w", entry.Target.String(), step.name, remote.ErrEmptyCommand)
			}
		}
		plans[i] = plan
	}
	return plans, nil
}

// decide inspects the joined statuses and drives the terminal phase.
// Build failures roll back every host; publish and prune failures do
// not, since by then the per-arch images are valid.
func (c *Coordinator) decide(ctx context.Context, result *models.RunResult, taskErrs []*TaskError) error {
	if failed := result.Failed(); len(failed) > 0 {
		result.Outcome = models.OutcomeBuildFailed
		var first error
		for _, taskErr := range taskErrs {
			if taskErr == nil {
				continue
			}
			if first == nil {
				first = taskErr
			}
			c.logger.WithError(taskErr).Error("build task failed", "arch", taskErr.Arch, "step", taskErr.Step)
		}
		if err := Rollback(ctx, c.fleet, c.opts.Identity, c.logger); err != nil {
			c.logger.WithError(err).Error("rollback incomplete")
		}
		if first == nil {
			return fmt.Errorf("%d of %d build tasks failed", len(failed), len(result.Tasks))
		}
		return fmt.Errorf("%d of %d build tasks failed: %w", len(failed), len(result.Tasks), first)
	}

	if !result.AllSucceeded() {
		result.Outcome = models.OutcomeAborted
		return fmt.Errorf("run aborted before all tasks finished")
	}

	archs := make([]string, len(result.Tasks))
	for i, task := range result.Tasks {
		archs[i] = task.Arch
	}
	if err := c.publisher.Publish(ctx, archs); err != nil {
		result.Outcome = models.OutcomePublishFailed
		return err
	}

	if err := c.prune(ctx, result); err != nil {
		result.Outcome = models.OutcomePruneFailed
		return err
	}

	result.Outcome = models.OutcomeSucceeded
	c.logger.Info("run succeeded", "ref", c.opts.Identity.Ref())
	return nil
}

func (c *Coordinator) prune(ctx context.Context, result *models.RunResult) error {
	if c.pruner == nil {
		return fmt.Errorf("no tag pruner configured")
	}
	log := c.logger.WithPhase("prune")

	if err := c.pruner.Login(ctx, c.opts.Username, c.opts.Secret); err != nil {
		return fmt.Errorf("registry login for prune: %w", err)
	}
	deleted, err := c.pruner.PruneTags(ctx, c.opts.Identity.Name, result.ArchTags())
	if err != nil {
		return fmt.Errorf("pruning tags (%d of %d deleted): %w", len(deleted), len(result.Tasks), err)
	}
	log.Info("per-architecture tags pruned", "count", len(deleted))
	return nil
}

// record persists per-task and run-level state to the journal. Journal
// trouble is reported but never changes the run's outcome.
func (c *Coordinator) record(result *models.RunResult) {
	for _, task := range result.Tasks {
		if err := c.journal.RecordTask(task); err != nil {
			c.logger.WithError(err).Warn("recording task state", "arch", task.Arch)
		}
	}
	if err := c.journal.RecordRun(*result); err != nil {
		c.logger.WithError(err).Warn("recording run state")
	}
}

func (c *Coordinator) removeJournal() {
	if err := c.journal.Remove(); err != nil {
		c.logger.WithError(err).Warn("removing run state")
	}
}
