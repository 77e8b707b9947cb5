// Package validation checks user-supplied build parameters before any
// command is dispatched. Everything here runs against configuration only;
// nothing touches the network or a host.
package validation

import (
	"regexp"
	"strings"
)

// ValidationError describes a rejected configuration field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// imageNameRegex validates image repository names:
// - Optional registry host (with optional port) prefix
// - Path components of lowercase letters, digits and ._- separators
var imageNameRegex = regexp.MustCompile(`^(?:[a-zA-Z0-9](?:[a-zA-Z0-9.-]*[a-zA-Z0-9])?(?::[0-9]+)?/)?[a-z0-9]+(?:(?:[._]|__|-+)[a-z0-9]+)*(?:/[a-z0-9]+(?:(?:[._]|__|-+)[a-z0-9]+)*)*$`)

// imageTagRegex validates tag names: a word character followed by up to
// 127 word, dot or dash characters.
var imageTagRegex = regexp.MustCompile(`^[A-Za-z0-9_][A-Za-z0-9_.-]*$`)

// platformRegex validates platform identifiers like linux/arm64/v8.
var platformRegex = regexp.MustCompile(`^[a-z0-9]+(?:/[a-z0-9]+){0,2}$`)

// ValidateImageName validates an image repository name, with or without a
// registry prefix.
func ValidateImageName(name string) error {
	if name == "" {
		return &ValidationError{Field: "image", Message: "image name is required"}
	}
	if len(name) > 255 {
		return &ValidationError{Field: "image", Message: "image name must be 255 characters or less"}
	}
	if !imageNameRegex.MatchString(name) {
		return &ValidationError{Field: "image", Message: "image name must be a lowercase repository path, optionally prefixed with a registry host"}
	}
	return nil
}

// ValidateImageTag validates a single image tag. Per-architecture tags
// derived from a base tag must pass this too, so the caller checks the
// longest derived form.
func ValidateImageTag(tag string) error {
	if tag == "" {
		return &ValidationError{Field: "tag", Message: "tag is required"}
	}
	if len(tag) > 128 {
		return &ValidationError{Field: "tag", Message: "tag must be 128 characters or less"}
	}
	if !imageTagRegex.MatchString(tag) {
		return &ValidationError{Field: "tag", Message: "tag must start with a letter, digit or underscore and contain only letters, digits, underscores, dots and dashes"}
	}
	return nil
}

// ValidatePlatform validates a build platform identifier such as
// "linux/amd64" or "linux/arm64/v8".
func ValidatePlatform(platform string) error {
	if platform == "" {
		return &ValidationError{Field: "platform", Message: "platform is required"}
	}
	if !platformRegex.MatchString(platform) {
		return &ValidationError{Field: "platform", Message: "platform must be an os/arch[/variant] identifier in lowercase"}
	}
	return nil
}

// ValidateRepoURL validates a git repository URL in https, ssh or scp-like
// form.
func ValidateRepoURL(repo string) error {
	if repo == "" {
		return &ValidationError{Field: "repo", Message: "repository URL is required"}
	}
	if strings.ContainsAny(repo, " \t\n'\"") {
		return &ValidationError{Field: "repo", Message: "repository URL must not contain whitespace or quotes"}
	}
	switch {
	case strings.HasPrefix(repo, "https://"), strings.HasPrefix(repo, "http://"):
	case strings.HasPrefix(repo, "ssh://"), strings.HasPrefix(repo, "git://"):
	case strings.Contains(repo, "@") && strings.Contains(repo, ":"):
	case strings.HasPrefix(repo, "/"), strings.HasPrefix(repo, "./"), strings.HasPrefix(repo, "file://"):
	default:
		return &ValidationError{Field: "repo", Message: "repository URL must be an https, ssh, git or local path form"}
	}
	return nil
}

// ValidateBranch validates a git branch name against the ref rules that
// matter for safe interpolation.
func ValidateBranch(branch string) error {
	if branch == "" {
		return &ValidationError{Field: "branch", Message: "branch is required"}
	}
	if strings.HasPrefix(branch, "-") {
		return &ValidationError{Field: "branch", Message: "branch must not start with a dash"}
	}
	if strings.ContainsAny(branch, " \t\n~^:?*[\\'\"") || strings.Contains(branch, "..") {
		return &ValidationError{Field: "branch", Message: "branch contains characters git refs forbid"}
	}
	return nil
}
