package builder

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/forgefleet/archforge/internal/models"
	"github.com/forgefleet/archforge/internal/remote"
	"github.com/forgefleet/archforge/pkg/logger"
)

func TestRollbackCommand(t *testing.T) {
	identity := models.ImageIdentity{Name: "acme/app", BaseTag: "v1"}
	got := rollbackCommand(identity).String()
	if got != "docker images -q 'acme/app:v1*' | xargs -r docker rmi -f" {
		t.Errorf("rollbackCommand = %q", got)
	}
}

func TestRollbackVisitsEveryHostDespiteFailures(t *testing.T) {
	rec := &fleetRecorder{
		respond: func(target, line string) (int, error) {
			if target == "root@hostA" {
				return 1, nil
			}
			return 0, nil
		},
	}
	fleet := remote.NewFleet(rec, rec, twoHostMapping(t))
	identity := models.ImageIdentity{Name: "acme/app", BaseTag: "v1"}

	err := Rollback(context.Background(), fleet, identity, logger.Discard())
	var rollbackErr *RollbackError
	if !errors.As(err, &rollbackErr) {
		t.Fatalf("Rollback = %v, want RollbackError", err)
	}
	if len(rollbackErr.Failures) != 1 || rollbackErr.Failures[0].Target.String() != "root@hostA" {
		t.Errorf("Failures = %+v", rollbackErr.Failures)
	}
	if !strings.Contains(rollbackErr.Error(), "root@hostA (exit 1)") {
		t.Errorf("Error() = %q", rollbackErr.Error())
	}

	for _, host := range []string{"root@hostA", "root@hostB"} {
		if got := rec.countExact(host, rollbackLine); got != 1 {
			t.Errorf("host %s visited %d times, want 1", host, got)
		}
	}
}

func TestRollbackNilOnSuccess(t *testing.T) {
	rec := &fleetRecorder{}
	fleet := remote.NewFleet(rec, rec, twoHostMapping(t))
	identity := models.ImageIdentity{Name: "acme/app", BaseTag: "v1"}

	if err := Rollback(context.Background(), fleet, identity, logger.Discard()); err != nil {
		t.Fatalf("Rollback = %v", err)
	}
}

func TestRollbackErrorNamesEveryFailedHost(t *testing.T) {
	err := &RollbackError{Failures: []remote.TargetResult{
		{Target: models.ExecutionTarget{User: "root", Host: "hostA"}, Code: 2},
		{Target: models.ExecutionTarget{Host: "hostB"}, Err: errors.New("dial tcp: timeout")},
	}}

	msg := err.Error()
	if !strings.Contains(msg, "root@hostA (exit 2)") {
		t.Errorf("message missing hostA: %q", msg)
	}
	if !strings.Contains(msg, "hostB (dial tcp: timeout)") {
		t.Errorf("message missing hostB: %q", msg)
	}
}
