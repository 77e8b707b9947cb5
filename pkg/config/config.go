// Package config provides environment-based configuration for the build
// orchestrator.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/adrg/xdg"

	"github.com/forgefleet/archforge/internal/models"
	"github.com/forgefleet/archforge/internal/validation"
)

const (
	// WorkdirArchToken is substituted with the sanitized architecture when
	// resolving per-task workspace paths.
	WorkdirArchToken = "{arch}"

	// DefaultTagFormat derives the base tag from the start time when no
	// tag is configured.
	DefaultTagFormat = "20060102-1504"

	// DefaultRegistryAPI is the registry HTTP API used for tag deletion.
	DefaultRegistryAPI = "https://hub.docker.com"

	defaultWorkdir = "/tmp/archforge/{arch}"
	defaultBuilder = "archforge"
	defaultBranch  = "main"
)

// Config holds all configuration for one orchestrator invocation. Fill it
// with FromEnv, overlay flag values, then call Validate exactly once.
// Validate resolves defaults and freezes the derived views; afterwards the
// struct is treated as read-only.
type Config struct {
	// Image identity
	Image string
	Tag   string

	// Source repository
	Repo      string
	Branch    string
	BuildArgs string

	// Registry access. Registry is the host given to docker login; empty
	// means Docker Hub. Token is preferred over Password when both are set.
	Registry        string
	RegistryAPIBase string
	Username        string
	Password        string
	Token           string
	CredentialsFile string
	AgeIdentityFile string

	// Host fleet. Hosts is the inline "arch::target;..." form and wins
	// over FleetFile when both are set.
	Hosts        string
	FleetFile    string
	ManifestHost string

	// Build execution
	Workdir     string
	BuilderName string
	Cache       bool

	SSH SSHConfig

	// Local state and logging
	StateDir string
	LogLevel string
	LogJSON  bool

	image     models.ImageIdentity
	mapping   models.HostMapping
	validated bool
}

// SSHConfig holds the transport settings for reaching build hosts.
type SSHConfig struct {
	User           string
	IdentityFile   string
	KnownHostsFile string
	Insecure       bool
	ConnectTimeout time.Duration
}

// FromEnv reads configuration from ARCHFORGE_* environment variables. It
// applies no validation; call Validate after any flag overlays.
func FromEnv() *Config {
	return &Config{
		Image:           getEnv("ARCHFORGE_IMAGE", ""),
		Tag:             getEnv("ARCHFORGE_TAG", ""),
		Repo:            getEnv("ARCHFORGE_REPO", ""),
		Branch:          getEnv("ARCHFORGE_BRANCH", ""),
		BuildArgs:       getEnv("ARCHFORGE_BUILD_ARGS", ""),
		Registry:        getEnv("ARCHFORGE_REGISTRY", ""),
		RegistryAPIBase: getEnv("ARCHFORGE_REGISTRY_API", ""),
		Username:        getEnv("ARCHFORGE_USERNAME", ""),
		Password:        getEnv("ARCHFORGE_PASSWORD", ""),
		Token:           getEnv("ARCHFORGE_TOKEN", ""),
		CredentialsFile: getEnv("ARCHFORGE_CREDENTIALS_FILE", ""),
		AgeIdentityFile: getEnv("ARCHFORGE_AGE_IDENTITY", ""),
		Hosts:           getEnv("ARCHFORGE_HOSTS", ""),
		FleetFile:       getEnv("ARCHFORGE_FLEET_FILE", ""),
		ManifestHost:    getEnv("ARCHFORGE_MANIFEST_HOST", ""),
		Workdir:         getEnv("ARCHFORGE_WORKDIR", ""),
		BuilderName:     getEnv("ARCHFORGE_BUILDER", ""),
		Cache:           getBoolEnv("ARCHFORGE_CACHE", true),
		SSH: SSHConfig{
			User:           getEnv("ARCHFORGE_SSH_USER", ""),
			IdentityFile:   getEnv("ARCHFORGE_SSH_IDENTITY", ""),
			KnownHostsFile: getEnv("ARCHFORGE_SSH_KNOWN_HOSTS", ""),
			Insecure:       getBoolEnv("ARCHFORGE_SSH_INSECURE", false),
			ConnectTimeout: getDurationEnv("ARCHFORGE_SSH_CONNECT_TIMEOUT", 15*time.Second),
		},
		StateDir: getEnv("ARCHFORGE_STATE_DIR", ""),
		LogLevel: getEnv("ARCHFORGE_LOG_LEVEL", "info"),
		LogJSON:  getBoolEnv("ARCHFORGE_LOG_JSON", false),
	}
}

// Load reads configuration from the environment and validates it.
func Load() (*Config, error) {
	cfg := FromEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every field a run depends on and resolves the derived
// views. Missing or contradictory configuration is an error here, before
// anything is dispatched. The fleet file, when used, is read during
// validation.
func (c *Config) Validate() error {
	if err := validation.ValidateImageName(c.Image); err != nil {
		return err
	}

	if c.Tag == "" {
		c.Tag = time.Now().UTC().Format(DefaultTagFormat)
	}
	if err := validation.ValidateImageTag(c.Tag); err != nil {
		return err
	}

	if err := validation.ValidateRepoURL(c.Repo); err != nil {
		return err
	}
	if c.Branch == "" {
		c.Branch = defaultBranch
	}
	if err := validation.ValidateBranch(c.Branch); err != nil {
		return err
	}

	if c.Username == "" {
		return fmt.Errorf("registry username is required (ARCHFORGE_USERNAME or a credentials file)")
	}
	if c.Password == "" && c.Token == "" {
		return fmt.Errorf("a registry password or access token is required")
	}

	entries, fleetManifest, err := c.resolveEntries()
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return fmt.Errorf("architecture mapping is empty: set ARCHFORGE_HOSTS or provide a fleet file")
	}
	for _, e := range entries {
		if err := validation.ValidatePlatform(e.Architecture); err != nil {
			return fmt.Errorf("mapping entry %q: %w", e.Architecture, err)
		}
	}

	manifestRaw := c.ManifestHost
	if manifestRaw == "" {
		manifestRaw = fleetManifest
	}
	if manifestRaw == "" {
		return fmt.Errorf("manifest host is required (ARCHFORGE_MANIFEST_HOST or the fleet file)")
	}
	manifestHost, err := models.ParseTarget(manifestRaw)
	if err != nil {
		return fmt.Errorf("manifest host: %w", err)
	}

	image := models.ImageIdentity{Name: c.Image, BaseTag: c.Tag}
	seenTags := make(map[string]string)
	for _, e := range entries {
		archTag := image.ArchTag(e.Architecture)
		if err := validation.ValidateImageTag(archTag); err != nil {
			return fmt.Errorf("tag derived for %q: %w", e.Architecture, err)
		}
		if prev, ok := seenTags[archTag]; ok {
			return fmt.Errorf("architectures %q and %q derive the same tag %q", prev, e.Architecture, archTag)
		}
		seenTags[archTag] = e.Architecture
	}

	if c.Workdir == "" {
		c.Workdir = defaultWorkdir
	}
	if !strings.Contains(c.Workdir, WorkdirArchToken) {
		seenHosts := make(map[string]string)
		for _, e := range entries {
			key := e.Target.String()
			if prev, ok := seenHosts[key]; ok {
				return fmt.Errorf("workdir %q has no %s token but %s builds both %q and %q",
					c.Workdir, WorkdirArchToken, key, prev, e.Architecture)
			}
			seenHosts[key] = e.Architecture
		}
	}

	if c.RegistryAPIBase == "" {
		c.RegistryAPIBase = DefaultRegistryAPI
	}
	base, err := url.Parse(c.RegistryAPIBase)
	if err != nil || (base.Scheme != "http" && base.Scheme != "https") || base.Host == "" {
		return fmt.Errorf("registry API base %q must be an http(s) URL", c.RegistryAPIBase)
	}
	c.RegistryAPIBase = strings.TrimRight(c.RegistryAPIBase, "/")

	if c.BuilderName == "" {
		c.BuilderName = defaultBuilder
	}
	if c.StateDir == "" {
		c.StateDir = filepath.Join(xdg.StateHome, "archforge")
	}
	if c.SSH.ConnectTimeout == 0 {
		c.SSH.ConnectTimeout = 15 * time.Second
	}

	c.image = image
	c.mapping = models.HostMapping{Entries: entries, ManifestHost: manifestHost}
	c.validated = true
	return nil
}

// ValidateFleet resolves only what fleet-wide maintenance commands need:
// the host mapping, the image identity, the workdir template, and transport
// defaults. Unlike Validate it tolerates a missing manifest host, tag,
// repository, and credentials. It does not mark the config as validated.
func (c *Config) ValidateFleet() error {
	if c.Image != "" {
		if err := validation.ValidateImageName(c.Image); err != nil {
			return err
		}
	}
	if c.Tag != "" {
		if err := validation.ValidateImageTag(c.Tag); err != nil {
			return err
		}
	}

	entries, fleetManifest, err := c.resolveEntries()
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return fmt.Errorf("architecture mapping is empty: set ARCHFORGE_HOSTS or provide a fleet file")
	}
	for _, e := range entries {
		if err := validation.ValidatePlatform(e.Architecture); err != nil {
			return fmt.Errorf("mapping entry %q: %w", e.Architecture, err)
		}
	}

	mapping := models.HostMapping{Entries: entries}
	manifestRaw := c.ManifestHost
	if manifestRaw == "" {
		manifestRaw = fleetManifest
	}
	if manifestRaw != "" {
		manifestHost, err := models.ParseTarget(manifestRaw)
		if err != nil {
			return fmt.Errorf("manifest host: %w", err)
		}
		mapping.ManifestHost = manifestHost
	}

	if c.Workdir == "" {
		c.Workdir = defaultWorkdir
	}
	if c.SSH.ConnectTimeout == 0 {
		c.SSH.ConnectTimeout = 15 * time.Second
	}

	c.image = models.ImageIdentity{Name: c.Image, BaseTag: c.Tag}
	c.mapping = mapping
	return nil
}

// resolveEntries picks the mapping source: inline hosts string first, fleet
// file second. The fleet file may also carry the manifest host.
func (c *Config) resolveEntries() ([]models.ArchMapping, string, error) {
	if c.Hosts != "" {
		entries, err := models.ParseMappingList(c.Hosts)
		return entries, "", err
	}
	if c.FleetFile != "" {
		return LoadFleetFile(c.FleetFile)
	}
	return nil, "", fmt.Errorf("no architecture mapping configured: set ARCHFORGE_HOSTS or provide a fleet file")
}

// Validated reports whether Validate has completed on this config.
func (c *Config) Validated() bool {
	return c.validated
}

// ImageIdentity returns the frozen image identity. Valid after Validate.
func (c *Config) ImageIdentity() models.ImageIdentity {
	return c.image
}

// Mapping returns the frozen host mapping. Valid after Validate.
func (c *Config) Mapping() models.HostMapping {
	return c.mapping
}

// Secret returns the value sent to docker login --password-stdin: the
// access token when configured, the password otherwise.
func (c *Config) Secret() string {
	if c.Token != "" {
		return c.Token
	}
	return c.Password
}

// WorkdirFor resolves the workspace directory for one architecture.
func (c *Config) WorkdirFor(arch string) string {
	return strings.ReplaceAll(c.Workdir, WorkdirArchToken, models.SanitizeArch(arch))
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
