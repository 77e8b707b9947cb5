package remote

import (
	"context"

	"github.com/forgefleet/archforge/internal/models"
)

// Fleet binds runners to the host mapping of one run. It routes each
// dispatch to the right transport and offers whole-fleet sweeps for the
// phases that must touch every host.
type Fleet struct {
	ssh     Runner
	local   Runner
	mapping models.HostMapping
}

// NewFleet wires the transports for a mapping. Either runner may be nil
// when the mapping cannot route to it.
func NewFleet(sshRunner, localRunner Runner, mapping models.HostMapping) *Fleet {
	return &Fleet{ssh: sshRunner, local: localRunner, mapping: mapping}
}

// Mapping returns the host mapping this fleet serves.
func (f *Fleet) Mapping() models.HostMapping {
	return f.mapping
}

// RunOn dispatches cmd to one target, choosing the transport by target
// kind. It satisfies Runner.
func (f *Fleet) RunOn(ctx context.Context, target models.ExecutionTarget, cmd Command) (int, error) {
	if target.Local() {
		return f.local.Run(ctx, target, cmd)
	}
	return f.ssh.Run(ctx, target, cmd)
}

// Run is RunOn under the Runner interface name.
func (f *Fleet) Run(ctx context.Context, target models.ExecutionTarget, cmd Command) (int, error) {
	return f.RunOn(ctx, target, cmd)
}

// Targets returns every distinct host of the run: each mapping entry's
// target plus the manifest host, first-seen order, duplicates removed.
func (f *Fleet) Targets() []models.ExecutionTarget {
	seen := make(map[string]bool)
	var targets []models.ExecutionTarget
	add := func(t models.ExecutionTarget) {
		key := t.String()
		if !seen[key] {
			seen[key] = true
			targets = append(targets, t)
		}
	}
	for _, e := range f.mapping.Entries {
		add(e.Target)
	}
	if f.mapping.ManifestHost.Host != "" {
		add(f.mapping.ManifestHost)
	}
	return targets
}

// TargetResult is the outcome of one dispatch during a fleet sweep.
type TargetResult struct {
	Target models.ExecutionTarget
	Code   int
	Err    error
}

// Failed reports whether the dispatch failed to run or exited non-zero.
func (r TargetResult) Failed() bool {
	return r.Err != nil || r.Code != 0
}

// RunOnAll runs cmd on every distinct host sequentially. Every host is
// visited even when earlier ones fail; the caller inspects the collected
// results.
func (f *Fleet) RunOnAll(ctx context.Context, cmd Command) []TargetResult {
	targets := f.Targets()
	results := make([]TargetResult, 0, len(targets))
	for _, target := range targets {
		code, err := f.RunOn(ctx, target, cmd)
		results = append(results, TargetResult{Target: target, Code: code, Err: err})
	}
	return results
}

// RunOnArch runs cmd on every host mapped to arch, in mapping order.
func (f *Fleet) RunOnArch(ctx context.Context, arch string, cmd Command) []TargetResult {
	entries := f.mapping.ByArch(arch)
	results := make([]TargetResult, 0, len(entries))
	for _, e := range entries {
		code, err := f.RunOn(ctx, e.Target, cmd)
		results = append(results, TargetResult{Target: e.Target, Code: code, Err: err})
	}
	return results
}
