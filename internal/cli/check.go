package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/forgefleet/archforge/internal/remote"
	"github.com/forgefleet/archforge/pkg/config"
)

func newCheckCommand(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Probe every mapped host for connectivity and build tooling",
		Long: `Check connects to each host of the mapping plus the manifest host and
verifies docker buildx and git are available. It exits non-zero when any
host is unreachable or missing a tool.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			log := newLogger(cfg)
			if err := cfg.ValidateFleet(); err != nil {
				return err
			}
			fleet, err := buildFleet(cfg, log)
			if err != nil {
				return err
			}
			return runCheck(cmd.Context(), cmd.OutOrStdout(), fleet)
		},
	}
}

// checkProbe exercises the transport and the two tools a build needs.
var checkProbe = remote.Cmdf("docker buildx version >/dev/null 2>&1 && git --version >/dev/null 2>&1")

func runCheck(ctx context.Context, w io.Writer, fleet *remote.Fleet) error {
	results := fleet.RunOnAll(ctx, checkProbe)
	unhealthy := 0
	for _, r := range results {
		switch {
		case r.Err != nil:
			unhealthy++
			fmt.Fprintf(w, "FAIL %s: %v\n", r.Target, r.Err)
		case r.Code != 0:
			unhealthy++
			fmt.Fprintf(w, "FAIL %s: docker buildx or git missing (exit %d)\n", r.Target, r.Code)
		default:
			fmt.Fprintf(w, "OK   %s\n", r.Target)
		}
	}
	if unhealthy > 0 {
		return fmt.Errorf("%d of %d hosts unhealthy", unhealthy, len(results))
	}
	return nil
}
