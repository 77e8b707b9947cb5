package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/forgefleet/archforge/internal/builder"
	"github.com/forgefleet/archforge/pkg/config"
)

func newCleanupCommand(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Sweep caches, leftover images, and workspaces off every host",
		Long: `Cleanup runs the final sweep phase on its own, for reclaiming hosts after
an interrupted run. With --tag it removes that run's tags; without it every
local tag of the image is swept.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.Image == "" {
				return fmt.Errorf("--image is required")
			}
			log := newLogger(cfg)
			if err := cfg.ValidateFleet(); err != nil {
				return err
			}
			fleet, err := buildFleet(cfg, log)
			if err != nil {
				return err
			}
			builder.NewSweeper(fleet, cfg.ImageIdentity(), cfg.WorkdirFor, nil, log).Sweep(cmd.Context())
			return nil
		},
	}
}
