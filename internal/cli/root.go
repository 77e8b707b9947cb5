// Package cli implements the archforge command tree.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/forgefleet/archforge/internal/remote"
	"github.com/forgefleet/archforge/internal/secrets"
	"github.com/forgefleet/archforge/pkg/config"
	"github.com/forgefleet/archforge/pkg/logger"
)

// NewRootCommand builds the archforge command tree. Flag defaults come
// from the ARCHFORGE_* environment (plus a .env file when present), so
// every option can be set either way; flags win.
func NewRootCommand() *cobra.Command {
	cfg := config.FromEnv()

	root := &cobra.Command{
		Use:   "archforge",
		Short: "Build multi-architecture container images across a host fleet",
		Long: `Archforge builds one container image natively on an architecture-specific
host per platform, merges the results into a single manifest list, prunes
the intermediate per-architecture tags from the registry, and cleans every
host up afterwards.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&cfg.Image, "image", cfg.Image, "image name to build (e.g. acme/app)")
	pf.StringVar(&cfg.Tag, "tag", cfg.Tag, "base tag for this run (default: UTC timestamp)")
	pf.StringVar(&cfg.Repo, "repo", cfg.Repo, "git repository holding the Dockerfile")
	pf.StringVar(&cfg.Branch, "branch", cfg.Branch, "branch to build")
	pf.StringVar(&cfg.BuildArgs, "build-args", cfg.BuildArgs, "extra arguments appended to docker buildx build")
	pf.StringVar(&cfg.Registry, "registry", cfg.Registry, "registry host for docker login (empty: Docker Hub)")
	pf.StringVar(&cfg.RegistryAPIBase, "registry-api", cfg.RegistryAPIBase, "registry HTTP API base URL for tag pruning")
	pf.StringVar(&cfg.Username, "username", cfg.Username, "registry username")
	pf.StringVar(&cfg.Password, "password", cfg.Password, "registry password")
	pf.StringVar(&cfg.Token, "token", cfg.Token, "registry access token (wins over --password)")
	pf.StringVar(&cfg.CredentialsFile, "credentials-file", cfg.CredentialsFile, "age-encrypted credentials file")
	pf.StringVar(&cfg.AgeIdentityFile, "identity-file", cfg.AgeIdentityFile, "age identity for the credentials file")
	pf.StringVar(&cfg.Hosts, "hosts", cfg.Hosts, `architecture mapping, "arch::target;arch::target"`)
	pf.StringVar(&cfg.FleetFile, "fleet-file", cfg.FleetFile, "YAML fleet file with the architecture mapping")
	pf.StringVar(&cfg.ManifestHost, "manifest-host", cfg.ManifestHost, "host that assembles and pushes the manifest list")
	pf.StringVar(&cfg.Workdir, "workdir", cfg.Workdir, "workspace template on build hosts ({arch} expands per entry)")
	pf.StringVar(&cfg.BuilderName, "builder", cfg.BuilderName, "buildx builder name")
	pf.BoolVar(&cfg.Cache, "cache", cfg.Cache, "reuse registry build caches")
	pf.StringVar(&cfg.SSH.User, "ssh-user", cfg.SSH.User, "fallback SSH user for targets without one")
	pf.StringVar(&cfg.SSH.IdentityFile, "ssh-identity", cfg.SSH.IdentityFile, "SSH private key file")
	pf.StringVar(&cfg.SSH.KnownHostsFile, "ssh-known-hosts", cfg.SSH.KnownHostsFile, "known_hosts file for host key checks")
	pf.BoolVar(&cfg.SSH.Insecure, "insecure-ignore-host-key", cfg.SSH.Insecure, "skip SSH host key verification")
	pf.DurationVar(&cfg.SSH.ConnectTimeout, "ssh-timeout", cfg.SSH.ConnectTimeout, "SSH connect timeout")
	pf.StringVar(&cfg.StateDir, "state-dir", cfg.StateDir, "directory for run journals")
	pf.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level: debug, info, warn, error")
	pf.BoolVar(&cfg.LogJSON, "log-json", cfg.LogJSON, "log as JSON")

	root.AddCommand(
		newBuildCommand(cfg),
		newCheckCommand(cfg),
		newCleanupCommand(cfg),
		newCredentialsCommand(cfg),
		newVersionCommand(),
	)
	return root
}

func newLogger(cfg *config.Config) *logger.Logger {
	return logger.New(os.Stderr, logger.ParseLevel(cfg.LogLevel), cfg.LogJSON)
}

// finishConfig layers file-sourced credentials under whatever flags and
// environment already provided, then runs full validation. The sealed
// file is only opened when a credential field is actually missing.
func finishConfig(cfg *config.Config, log *logger.Logger) error {
	if cfg.CredentialsFile != "" && (cfg.Username == "" || (cfg.Password == "" && cfg.Token == "")) {
		creds, err := secrets.LoadCredentialsFile(cfg.CredentialsFile, cfg.AgeIdentityFile, log)
		if err != nil {
			return fmt.Errorf("credentials file: %w", err)
		}
		if cfg.Username == "" {
			cfg.Username = creds.Username
		}
		if cfg.Password == "" {
			cfg.Password = creds.Password
		}
		if cfg.Token == "" {
			cfg.Token = creds.Token
		}
	}
	return cfg.Validate()
}

// buildFleet wires the transports for the resolved mapping. The SSH
// runner is only constructed when some target actually leaves the local
// machine, so all-local fleets need no key material.
func buildFleet(cfg *config.Config, log *logger.Logger) (*remote.Fleet, error) {
	mapping := cfg.Mapping()

	needsSSH := mapping.ManifestHost.Host != "" && !mapping.ManifestHost.Local()
	for _, e := range mapping.Entries {
		if !e.Target.Local() {
			needsSSH = true
		}
	}

	local := remote.NewLocalRunner(log, os.Stdout, os.Stderr)
	var ssh remote.Runner
	if needsSSH {
		runner, err := remote.NewSSHRunner(remote.SSHOptions{
			User:                  cfg.SSH.User,
			IdentityFile:          cfg.SSH.IdentityFile,
			KnownHostsFile:        cfg.SSH.KnownHostsFile,
			InsecureIgnoreHostKey: cfg.SSH.Insecure,
			ConnectTimeout:        cfg.SSH.ConnectTimeout,
		}, log, os.Stdout, os.Stderr)
		if err != nil {
			return nil, fmt.Errorf("ssh transport: %w", err)
		}
		ssh = runner
	}
	return remote.NewFleet(ssh, local, mapping), nil
}
