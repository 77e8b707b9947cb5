package builder

import (
	"context"
	"fmt"
	"strings"

	"github.com/forgefleet/archforge/internal/models"
	"github.com/forgefleet/archforge/internal/remote"
	"github.com/forgefleet/archforge/pkg/logger"
)

// RollbackError reports the hosts where image removal failed.
type RollbackError struct {
	Failures []remote.TargetResult
}

func (e *RollbackError) Error() string {
	names := make([]string, len(e.Failures))
	for i, failure := range e.Failures {
		if failure.Err != nil {
			names[i] = fmt.Sprintf("%s (%v)", failure.Target.String(), failure.Err)
		} else {
			names[i] = fmt.Sprintf("%s (exit %d)", failure.Target.String(), failure.Code)
		}
	}
	return "rollback failed on " + strings.Join(names, ", ")
}

// rollbackCommand removes every local image of this run: the base tag
// and all tags derived from it. Hosts with no matching images exit
// zero, so absence is tolerated by construction.
func rollbackCommand(identity models.ImageIdentity) remote.Command {
	return remote.Cmdf("docker images -q %s | xargs -r docker rmi -f", remote.Quote(identity.TagWildcard()))
}

// Rollback force-removes the run's images from every host. Every host
// is visited even when earlier ones fail; failures are aggregated so
// each offending host is named.
func Rollback(ctx context.Context, fleet *remote.Fleet, identity models.ImageIdentity, log *logger.Logger) error {
	if log == nil {
		log = logger.Default()
	}
	log = log.WithPhase("rollback")
	log.Info("removing local images", "pattern", identity.TagWildcard())

	var failures []remote.TargetResult
	for _, res := range fleet.RunOnAll(ctx, rollbackCommand(identity)) {
		if res.Failed() {
			l := log
			if res.Err != nil {
				l = l.WithError(res.Err)
			}
			l.Warn("rollback failed on host", "host", res.Target.String(), "exit_code", res.Code)
			failures = append(failures, res)
			continue
		}
		log.Info("rolled back host", "host", res.Target.String())
	}

	if len(failures) > 0 {
		return &RollbackError{Failures: failures}
	}
	return nil
}
