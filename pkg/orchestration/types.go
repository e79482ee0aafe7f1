// Package orchestration runs a whole-installation update: it resolves every
// package, takes a snapshot, updates the core package and then its
// dependents, regenerates derived configuration and finally either commits
// the run or restores the snapshot.
package orchestration

import (
	"context"

	"github.com/arthur-debert/ouranosctl/pkg/backup"
	"github.com/arthur-debert/ouranosctl/pkg/emitter"
	"github.com/arthur-debert/ouranosctl/pkg/packages"
	"github.com/arthur-debert/ouranosctl/pkg/resolver"
	"github.com/arthur-debert/ouranosctl/pkg/updater"
)

// Phase is a state of the update state machine
type Phase string

const (
	PhaseIdle               Phase = "idle"
	PhaseValidating         Phase = "validating"
	PhaseResolving          Phase = "resolving"
	PhaseBackingUp          Phase = "backing-up"
	PhaseUpdating           Phase = "updating"
	PhaseRegeneratingConfig Phase = "regenerating-config"
	PhaseFinalizing         Phase = "finalizing"
	PhaseCommitted          Phase = "committed"
	PhaseRolledBack         Phase = "rolled-back"

	// PhaseFailed ends runs that stopped before any change was made, and
	// runs whose rollback failed
	PhaseFailed Phase = "failed"
)

// Options modify one update run
type Options struct {
	DryRun   bool
	Force    bool
	CoreOnly bool
}

// Resolver decides which packages need an update
type Resolver interface {
	Resolve(ctx context.Context, pkg packages.Package, opts resolver.Options) resolver.Resolution
}

// Updater switches one package to a target
type Updater interface {
	Update(ctx context.Context, pkg packages.Package, target string, opts updater.Options) (*updater.Outcome, error)
}

// Backup wraps the mutating part of a run in a snapshot
type Backup interface {
	Run(ctx context.Context, fn func(context.Context, *backup.Snapshot) error) error
}

// Emitter regenerates derived configuration
type Emitter interface {
	Emit(pkgs []packages.Package, opts emitter.Options) ([]emitter.Artifact, error)
}

// PackageResult contains the outcome for a single package
type PackageResult struct {
	// Package that was processed
	Package packages.Package

	// Resolution is the resolver's verdict
	Resolution resolver.Resolution

	// Outcome is set once the updater ran, dry-run included
	Outcome *updater.Outcome

	// Updated is set when the package was switched to its target
	Updated bool

	// RolledBack is set when a successful update was undone by the rollback
	RolledBack bool

	// Error is the resolve error or *updater.UpdateFailure
	Error error
}

// Failed reports whether the package counts as a failure
func (r PackageResult) Failed() bool { return r.Error != nil }

// Skipped reports whether the package needed no update or could not be
// resolved for a benign reason
func (r PackageResult) Skipped() bool { return r.Error == nil && !r.Resolution.NeedsUpdate() }

// Result contains the aggregated results of one update run
type Result struct {
	// Command that was executed
	Command string

	// RunID labels stash entries and log lines of this run
	RunID string

	DryRun bool

	// Phase is the final state the run reached
	Phase Phase

	TotalPackages   int
	UpdatedPackages int
	FailedPackages  int
	SkippedPackages int

	// PackageResults holds one entry per package, core first
	PackageResults []PackageResult

	// Snapshot is the snapshot taken for the run, if any
	Snapshot string

	// Artifacts are the regenerated (or, in dry-run, planned) artifacts
	Artifacts []emitter.Artifact

	// Error if the run as a whole failed
	Error error
}
