package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/forgefleet/archforge/internal/builder"
	"github.com/forgefleet/archforge/internal/registry"
	"github.com/forgefleet/archforge/internal/runstate"
	"github.com/forgefleet/archforge/pkg/config"
)

func newBuildCommand(cfg *config.Config) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build on every mapped host and publish the manifest list",
		Long: `Build clones the repository on each architecture's host, builds and pushes
a per-architecture tag there, merges the tags into one manifest list on the
manifest host, prunes the per-architecture tags from the registry, and
sweeps caches and workspaces off every host.`,
		Example: `  archforge build --image acme/app --repo https://github.com/acme/app.git \
    --hosts "linux/amd64::root@amd.example.com;linux/arm64/v8::root@arm.example.com" \
    --manifest-host root@amd.example.com`,
		RunE: func(cmd *cobra.Command, args []string) error {
			log := newLogger(cfg)
			if err := finishConfig(cfg, log); err != nil {
				return err
			}
			fleet, err := buildFleet(cfg, log)
			if err != nil {
				return err
			}
			journal, err := runstate.NewJournal(cfg.StateDir, log)
			if err != nil {
				return fmt.Errorf("run journal: %w", err)
			}

			opts := builder.Options{
				Identity:   cfg.ImageIdentity(),
				Repo:       cfg.Repo,
				Branch:     cfg.Branch,
				BuildArgs:  cfg.BuildArgs,
				Registry:   cfg.Registry,
				Username:   cfg.Username,
				Secret:     cfg.Secret(),
				Builder:    cfg.BuilderName,
				Cache:      cfg.Cache,
				WorkdirFor: cfg.WorkdirFor,
			}
			pruner := registry.NewClient(cfg.RegistryAPIBase, log)
			coord := builder.NewCoordinator(fleet, pruner, journal, opts, log)

			if dryRun {
				return coord.DryRun(cmd.OutOrStdout())
			}
			result, err := coord.Run(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "published %s (%d architectures)\n",
				opts.Identity.Ref(), len(result.Tasks))
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print the run plan without dispatching anything")
	return cmd
}
