// Package manifest assembles the multi-architecture manifest list from
// per-architecture image tags and pushes it to the registry.
package manifest

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/forgefleet/archforge/internal/models"
	"github.com/forgefleet/archforge/internal/remote"
	"github.com/forgefleet/archforge/pkg/logger"
)

// Publisher merges the per-architecture tags pushed by the build tasks
// into a single manifest list under the base tag. All commands run on
// the fleet's manifest host.
type Publisher struct {
	fleet    *remote.Fleet
	identity models.ImageIdentity
	username string
	secret   string
	logger   *logger.Logger
}

func NewPublisher(fleet *remote.Fleet, identity models.ImageIdentity, username, secret string, log *logger.Logger) *Publisher {
	if log == nil {
		log = logger.Default()
	}
	return &Publisher{
		fleet:    fleet,
		identity: identity,
		username: username,
		secret:   secret,
		logger:   log.WithComponent("manifest"),
	}
}

// Publish creates the manifest list referencing one image per
// architecture and pushes it with --purge so the local copy on the
// manifest host does not leak into later runs. Amending on create makes
// the command safe to re-run after a partial failure.
func (p *Publisher) Publish(ctx context.Context, archs []string) error {
	if len(archs) == 0 {
		return errors.New("no architectures to merge")
	}

	target := p.fleet.Mapping().ManifestHost
	log := p.logger.WithPhase("publish").WithHost(target.String())

	log.Info("authenticating manifest host with registry")
	if err := remote.Exec(ctx, p.fleet, target, loginCommand(p.username, p.secret)); err != nil {
		return fmt.Errorf("manifest host login: %w", err)
	}

	log.Info("assembling manifest list", "ref", p.identity.Ref(), "architectures", len(archs))
	if err := remote.Exec(ctx, p.fleet, target, createCommand(p.identity, archs)); err != nil {
		return fmt.Errorf("creating manifest %s: %w", p.identity.Ref(), err)
	}

	log.Info("pushing manifest list", "ref", p.identity.Ref())
	if err := remote.Exec(ctx, p.fleet, target, pushCommand(p.identity)); err != nil {
		return fmt.Errorf("pushing manifest %s: %w", p.identity.Ref(), err)
	}

	log.Info("manifest published", "ref", p.identity.Ref())
	return nil
}

// Plan reports the command lines Publish would run, in order, with the
// registry secret elided.
func (p *Publisher) Plan(archs []string) []string {
	return []string{
		"printf %s '[secret]' | docker login --username " + remote.Quote(p.username) + " --password-stdin",
		createCommand(p.identity, archs).String(),
		pushCommand(p.identity).String(),
	}
}

func loginCommand(username, secret string) remote.Command {
	return remote.Cmdf("printf %%s %s | docker login --username %s --password-stdin",
		remote.Quote(secret), remote.Quote(username))
}

func createCommand(identity models.ImageIdentity, archs []string) remote.Command {
	var b strings.Builder
	b.WriteString("docker manifest create ")
	b.WriteString(identity.Ref())
	for _, arch := range archs {
		b.WriteString(" --amend ")
		b.WriteString(identity.ArchRef(arch))
	}
	return remote.Cmdf("%s", b.String())
}

func pushCommand(identity models.ImageIdentity) remote.Command {
	return remote.Cmdf("docker manifest push --purge %s", identity.Ref())
}
