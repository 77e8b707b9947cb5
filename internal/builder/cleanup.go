package builder

import (
	"context"
	"strings"
	"time"

	"github.com/forgefleet/archforge/internal/models"
	"github.com/forgefleet/archforge/internal/remote"
	"github.com/forgefleet/archforge/pkg/logger"
)

// sweepTimeout bounds the final sweep so a wedged host cannot hold the
// process open after the outcome is already decided.
const sweepTimeout = 5 * time.Minute

// Sweeper removes what a run leaves behind: build cache, local images,
// workspaces, and the run-state directory.
type Sweeper struct {
	fleet      *remote.Fleet
	identity   models.ImageIdentity
	workdirFor func(arch string) string
	journal    RunJournal
	logger     *logger.Logger
}

// NewSweeper builds a sweeper for one image across the fleet. journal
// may be nil when sweeping outside a run.
func NewSweeper(fleet *remote.Fleet, identity models.ImageIdentity, workdirFor func(string) string, journal RunJournal, log *logger.Logger) *Sweeper {
	if log == nil {
		log = logger.Default()
	}
	return &Sweeper{
		fleet:      fleet,
		identity:   identity,
		workdirFor: workdirFor,
		journal:    journal,
		logger:     log.WithComponent("cleanup"),
	}
}

// Sweep runs after the run's outcome is decided, on every path.
// Failures are logged and swallowed; they never change the exit status.
func (s *Sweeper) Sweep(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, sweepTimeout)
	defer cancel()

	log := s.logger.WithPhase("cleanup")

	hostSweep := remote.Script(
		remote.Cmdf("docker buildx prune --force >/dev/null 2>&1 || true"),
		remote.Cmdf("docker images -q %s | xargs -r docker rmi -f", remote.Quote(s.identity.TagWildcard())),
	)
	for _, res := range s.fleet.RunOnAll(ctx, hostSweep) {
		if res.Failed() {
			l := log
			if res.Err != nil {
				l = l.WithError(res.Err)
			}
			l.Warn("host sweep failed", "host", res.Target.String(), "exit_code", res.Code)
			continue
		}
		log.Debug("swept host", "host", res.Target.String())
	}

	if s.workdirFor != nil {
		for _, entry := range s.fleet.Mapping().Entries {
			ws := s.workdirFor(entry.Architecture)
			if strings.TrimSpace(ws) == "" {
				continue
			}
			code, err := s.fleet.Run(ctx, entry.Target, remote.Cmdf("rm -rf %s", remote.Quote(ws)))
			if err != nil {
				log.WithError(err).Warn("removing workspace", "host", entry.Target.String(), "workdir", ws)
				continue
			}
			if code != 0 {
				log.Warn("removing workspace", "host", entry.Target.String(), "workdir", ws, "exit_code", code)
			}
		}
	}

	if s.journal != nil {
		if err := s.journal.Remove(); err != nil {
			log.WithError(err).Warn("removing run state")
		}
	}
	log.Info("cleanup finished")
}
