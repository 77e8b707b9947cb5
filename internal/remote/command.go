// Package remote dispatches shell commands to execution targets, either
// over SSH or on the local machine. Commands are resolved into their final
// form before dispatch; runners execute them verbatim.
package remote

import (
	"errors"
	"fmt"
	"strings"
)

// ErrEmptyCommand is returned when a blank command reaches a runner. A blank
// command means the plan that produced it is broken, so dispatch refuses it.
var ErrEmptyCommand = errors.New("empty command")

// Command is a fully resolved shell command line. Construct it with Cmdf or
// Script; runners never substitute into it.
type Command struct {
	line string
}

// Cmdf builds a Command by resolving the format string immediately.
func Cmdf(format string, args ...any) Command {
	return Command{line: fmt.Sprintf(format, args...)}
}

// Script chains steps with " && " so a failing step stops the remainder.
// Blank steps are skipped.
func Script(steps ...Command) Command {
	var parts []string
	for _, s := range steps {
		if !s.Empty() {
			parts = append(parts, s.line)
		}
	}
	return Command{line: strings.Join(parts, " && ")}
}

// String returns the command line as dispatched.
func (c Command) String() string {
	return c.line
}

// Empty reports whether the command has no content to execute.
func (c Command) Empty() bool {
	return strings.TrimSpace(c.line) == ""
}

// Quote single-quotes s for safe interpolation into a shell command line.
func Quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// ExitError reports a command that ran to completion on its target but
// exited non-zero.
type ExitError struct {
	Target string
	Code   int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("command on %s exited with status %d", e.Target, e.Code)
}
