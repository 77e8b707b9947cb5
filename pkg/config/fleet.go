package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/forgefleet/archforge/internal/models"
)

// fleetFile is the YAML form of the architecture-to-host mapping:
//
//	manifest_host: root@hostA
//	hosts:
//	  - arch: linux/amd64
//	    target: root@hostA
//	  - arch: linux/arm64/v8
//	    target: root@hostB
type fleetFile struct {
	ManifestHost string `yaml:"manifest_host"`
	Hosts        []struct {
		Arch   string `yaml:"arch"`
		Target string `yaml:"target"`
	} `yaml:"hosts"`
}

// LoadFleetFile reads a fleet definition and returns the mapping entries in
// file order plus the manifest host string, which may be empty.
func LoadFleetFile(path string) ([]models.ArchMapping, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("reading fleet file: %w", err)
	}

	var f fleetFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, "", fmt.Errorf("parsing fleet file %s: %w", path, err)
	}

	entries := make([]models.ArchMapping, 0, len(f.Hosts))
	for i, h := range f.Hosts {
		if h.Arch == "" {
			return nil, "", fmt.Errorf("fleet file %s: hosts[%d]: missing arch", path, i)
		}
		target, err := models.ParseTarget(h.Target)
		if err != nil {
			return nil, "", fmt.Errorf("fleet file %s: hosts[%d]: %w", path, i, err)
		}
		entries = append(entries, models.ArchMapping{Architecture: h.Arch, Target: target})
	}
	return entries, f.ManifestHost, nil
}
