// Package models defines the data model for a multi-architecture build run.
package models

import (
	"fmt"
	"strings"
)

// platformPrefix is the fixed OS prefix stripped when deriving tag suffixes.
// Build platforms are identified as "os/cpu[/variant]" tuples; published
// tags carry only the cpu/variant part.
const platformPrefix = "linux/"

// SanitizeArch converts a platform identifier into a registry-legal tag
// segment: the fixed OS prefix is stripped and the remaining separator
// characters are removed.
//
//	linux/amd64    -> amd64
//	linux/arm64/v8 -> arm64v8
//
// Two platforms differing only in the stripped prefix collapse to the same
// segment; configuration validation rejects such collisions up front.
func SanitizeArch(arch string) string {
	s := strings.TrimSpace(arch)
	s = strings.TrimPrefix(s, platformPrefix)
	s = strings.ReplaceAll(s, "/", "")
	return s
}

// ImageIdentity names the image a run produces. It is supplied once at
// startup and shared read-only across all tasks.
type ImageIdentity struct {
	Name    string `json:"name"`
	BaseTag string `json:"base_tag"`
}

// Ref returns the combined manifest reference, e.g. "acme/app:v1".
func (id ImageIdentity) Ref() string {
	return fmt.Sprintf("%s:%s", id.Name, id.BaseTag)
}

// ArchTag returns the per-architecture tag derived from the base tag,
// e.g. base tag "v1" and platform "linux/arm64/v8" yield "v1-arm64v8".
func (id ImageIdentity) ArchTag(arch string) string {
	return fmt.Sprintf("%s-%s", id.BaseTag, SanitizeArch(arch))
}

// ArchRef returns the full per-architecture reference, e.g. "acme/app:v1-arm64v8".
func (id ImageIdentity) ArchRef(arch string) string {
	return fmt.Sprintf("%s:%s", id.Name, id.ArchTag(arch))
}

// TagWildcard returns the pattern matching the combined reference and every
// per-architecture reference of this run, e.g. "acme/app:v1*". Rollback and
// cleanup force-remove against this pattern.
func (id ImageIdentity) TagWildcard() string {
	return fmt.Sprintf("%s:%s*", id.Name, id.BaseTag)
}

// CacheTag returns the dedicated build-cache tag for one architecture.
// Cache tags are per-architecture so concurrent tasks never write the same
// registry reference.
func (id ImageIdentity) CacheTag(arch string) string {
	return fmt.Sprintf("buildcache-%s", SanitizeArch(arch))
}

// CacheRef returns the full build-cache reference for one architecture.
func (id ImageIdentity) CacheRef(arch string) string {
	return fmt.Sprintf("%s:%s", id.Name, id.CacheTag(arch))
}

// LatestRef returns the image's "latest" reference, used as a cache-read
// source.
func (id ImageIdentity) LatestRef() string {
	return fmt.Sprintf("%s:latest", id.Name)
}
