package models

import (
	"fmt"
	"strconv"
	"strings"
)

// LocalTarget is the reserved execution target that runs commands on the
// orchestrator machine itself instead of over the wire.
const LocalTarget = "local"

// ExecutionTarget describes where a command runs: a remote host reachable
// over SSH, or the local machine. It is parsed once from configuration and
// never mutated.
type ExecutionTarget struct {
	User string `json:"user,omitempty"`
	Host string `json:"host"`
	Port int    `json:"port,omitempty"`
}

// Local reports whether this target executes on the orchestrator machine.
func (t ExecutionTarget) Local() bool {
	return t.Host == LocalTarget
}

// Addr returns the dial address for a remote target.
func (t ExecutionTarget) Addr() string {
	port := t.Port
	if port == 0 {
		port = 22
	}
	return fmt.Sprintf("%s:%d", t.Host, port)
}

// String renders the target in its configuration form, [user@]host[:port].
func (t ExecutionTarget) String() string {
	s := t.Host
	if t.User != "" {
		s = t.User + "@" + s
	}
	if t.Port != 0 {
		s = s + ":" + strconv.Itoa(t.Port)
	}
	return s
}

// ParseTarget parses "[user@]host[:port]" or the literal "local".
func ParseTarget(s string) (ExecutionTarget, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return ExecutionTarget{}, fmt.Errorf("empty execution target")
	}
	if s == LocalTarget {
		return ExecutionTarget{Host: LocalTarget}, nil
	}

	var t ExecutionTarget
	if user, rest, ok := strings.Cut(s, "@"); ok {
		if user == "" {
			return ExecutionTarget{}, fmt.Errorf("execution target %q: empty user", s)
		}
		t.User = user
		s = rest
	}

	host, portStr, ok := strings.Cut(s, ":")
	if host == "" {
		return ExecutionTarget{}, fmt.Errorf("execution target %q: empty host", s)
	}
	t.Host = host
	if ok {
		port, err := strconv.Atoi(portStr)
		if err != nil || port <= 0 || port > 65535 {
			return ExecutionTarget{}, fmt.Errorf("execution target %q: invalid port %q", s, portStr)
		}
		t.Port = port
	}

	return t, nil
}

// ArchMapping binds one platform identifier to the host that builds it.
type ArchMapping struct {
	Architecture string          `json:"architecture"`
	Target       ExecutionTarget `json:"target"`
}

// HostMapping is the ordered architecture-to-host table for one run, plus
// the single designated manifest host. Parsed once at startup, immutable
// afterwards.
type HostMapping struct {
	Entries      []ArchMapping   `json:"entries"`
	ManifestHost ExecutionTarget `json:"manifest_host"`
}

// mappingEntrySep and mappingPairSep delimit the flag/env form of the
// mapping: "arch::target;arch::target".
const (
	mappingEntrySep = ";"
	mappingPairSep  = "::"
)

// ParseMappingList parses the semicolon-delimited "arch::target" list form.
// Order is preserved. Empty entries (trailing semicolons) are skipped.
func ParseMappingList(s string) ([]ArchMapping, error) {
	var entries []ArchMapping
	for _, raw := range strings.Split(s, mappingEntrySep) {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		arch, targetStr, ok := strings.Cut(raw, mappingPairSep)
		if !ok {
			return nil, fmt.Errorf("mapping entry %q: want architecture%starget", raw, mappingPairSep)
		}
		arch = strings.TrimSpace(arch)
		if arch == "" {
			return nil, fmt.Errorf("mapping entry %q: empty architecture", raw)
		}
		target, err := ParseTarget(targetStr)
		if err != nil {
			return nil, fmt.Errorf("mapping entry %q: %w", raw, err)
		}
		entries = append(entries, ArchMapping{Architecture: arch, Target: target})
	}
	return entries, nil
}

// Architectures returns the platform identifiers in mapping order.
func (m HostMapping) Architectures() []string {
	archs := make([]string, len(m.Entries))
	for i, e := range m.Entries {
		archs[i] = e.Architecture
	}
	return archs
}

// ByArch returns the entries whose architecture matches arch, in mapping
// order. With a validated mapping at most one entry matches.
func (m HostMapping) ByArch(arch string) []ArchMapping {
	var out []ArchMapping
	for _, e := range m.Entries {
		if e.Architecture == arch {
			out = append(out, e)
		}
	}
	return out
}
