package orchestration

import (
	"context"
	"fmt"
	"strings"

	"github.com/arthur-debert/ouranosctl/pkg/backup"
	"github.com/arthur-debert/ouranosctl/pkg/config"
	"github.com/arthur-debert/ouranosctl/pkg/emitter"
	"github.com/arthur-debert/ouranosctl/pkg/environment"
	"github.com/arthur-debert/ouranosctl/pkg/errors"
	"github.com/arthur-debert/ouranosctl/pkg/logging"
	"github.com/arthur-debert/ouranosctl/pkg/packages"
	"github.com/arthur-debert/ouranosctl/pkg/paths"
	"github.com/arthur-debert/ouranosctl/pkg/resolver"
	"github.com/arthur-debert/ouranosctl/pkg/updater"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
)

// StashLabelPrefix prefixes the run id in stash labels
const StashLabelPrefix = "ouranosctl-"

// Deps are the collaborators of an Orchestrator
type Deps struct {
	Resolver Resolver
	Updater  Updater
	Backup   Backup
	Emitter  Emitter

	// Fs is where packages are discovered; defaults to the OS filesystem
	Fs afero.Fs

	// NewRunID defaults to a random UUID
	NewRunID func() string
}

// Orchestrator updates one installation
type Orchestrator struct {
	inst *paths.Installation
	cfg  *config.Config
	deps Deps
}

// New creates an Orchestrator
func New(inst *paths.Installation, cfg *config.Config, deps Deps) *Orchestrator {
	if deps.NewRunID == nil {
		deps.NewRunID = uuid.NewString
	}
	if deps.Fs == nil {
		deps.Fs = afero.NewOsFs()
	}
	return &Orchestrator{inst: inst, cfg: cfg, deps: deps}
}

// run carries the state of one invocation
type run struct {
	result *Result
	logger zerolog.Logger
}

func (r *run) enter(phase Phase) {
	r.logger.Debug().Str("from", string(r.result.Phase)).Str("to", string(phase)).Msg("Phase transition")
	r.result.Phase = phase
}

// Update brings every package to its latest revision tag. The returned error
// follows the exit policy: nil when all packages succeeded, package codes
// when some failed without rollback, ROLLBACK or ROLLBACK_FAILURE when the
// snapshot was used, and the original error for failures before any change.
func (o *Orchestrator) Update(ctx context.Context, opts Options) (*Result, error) {
	runID := o.deps.NewRunID()
	r := &run{
		result: &Result{Command: "update", RunID: runID, DryRun: opts.DryRun, Phase: PhaseIdle},
		logger: logging.GetLogger("orchestration").With().Str("run", runID).Logger(),
	}
	res := r.result
	r.logger.Info().Bool("dryRun", opts.DryRun).Bool("force", opts.Force).Bool("coreOnly", opts.CoreOnly).
		Msg("Starting update")

	// Validating
	r.enter(PhaseValidating)
	if err := environment.Validate(o.inst); err != nil {
		return o.abort(r, err)
	}
	all, err := packages.Discover(o.deps.Fs, o.inst, o.cfg.CorePackage)
	if err != nil {
		return o.abort(r, err)
	}
	selected := packages.Select(all, opts.CoreOnly)
	res.TotalPackages = len(selected)

	// Resolving
	r.enter(PhaseResolving)
	for _, pkg := range selected {
		if err := ctx.Err(); err != nil {
			return o.abort(r, errors.Wrap(err, errors.ErrInternal, "update interrupted before any change"))
		}
		resolution := o.deps.Resolver.Resolve(ctx, pkg, resolver.Options{DryRun: opts.DryRun, Force: opts.Force})
		pr := PackageResult{Package: pkg, Resolution: resolution}
		if resolution.Err != nil {
			pr.Error = resolution.Err
		}
		res.PackageResults = append(res.PackageResults, pr)
	}

	planned := 0
	for _, pr := range res.PackageResults {
		if pr.Resolution.NeedsUpdate() {
			planned++
		}
	}
	if planned == 0 {
		r.logger.Info().Msg("All packages are up to date")
		r.enter(PhaseCommitted)
		return o.finish(r)
	}

	if opts.DryRun {
		o.updateAll(ctx, r, updater.Options{DryRun: true, Label: StashLabelPrefix + runID})
		r.enter(PhaseRegeneratingConfig)
		artifacts, err := o.deps.Emitter.Emit(all, emitter.Options{DryRun: true})
		if err != nil {
			r.logger.Warn().Err(err).Msg("Configuration would fail to regenerate")
			res.Error = err
		}
		res.Artifacts = artifacts
		r.enter(PhaseCommitted)
		return o.finish(r)
	}

	// BackingUp, then the mutating phases inside the snapshot
	r.enter(PhaseBackingUp)
	err = o.deps.Backup.Run(ctx, func(ctx context.Context, s *backup.Snapshot) error {
		res.Snapshot = s.Path
		return o.mutate(ctx, r, all, runID)
	})

	switch {
	case err == nil:
		r.enter(PhaseCommitted)
		return o.finish(r)
	case res.Phase == PhaseFinalizing:
		// committed, but the snapshot is still on disk
		r.logger.Warn().Err(err).Str("snapshot", res.Snapshot).Msg("Update committed but the snapshot could not be removed")
		res.Error = err
		r.enter(PhaseCommitted)
		return o.finish(r)
	case errors.HasErrorCode(err, errors.ErrRollbackFailure):
		o.markRolledBack(res)
		r.enter(PhaseFailed)
		res.Error = err
		r.logger.Error().Err(err).Str("snapshot", res.Snapshot).Msg("Rollback failed, installation state is undefined")
		o.count(res)
		return res, err
	case errors.HasErrorCode(err, errors.ErrRollback):
		o.markRolledBack(res)
		r.enter(PhaseRolledBack)
		res.Error = err
		r.logger.Error().Err(err).Msg("Update rolled back")
		o.count(res)
		return res, err
	default:
		// snapshot could not be taken; nothing was changed
		return o.abort(r, err)
	}
}

// mutate runs inside the snapshot. A returned error restores it.
func (o *Orchestrator) mutate(ctx context.Context, r *run, all []packages.Package, runID string) error {
	res := r.result
	r.enter(PhaseUpdating)
	o.updateAll(ctx, r, updater.Options{Label: StashLabelPrefix + runID})

	if err := ctx.Err(); err != nil {
		return errors.Wrap(err, errors.ErrInternal, "update interrupted")
	}

	var mutating []string
	updated := 0
	for _, pr := range res.PackageResults {
		if f, ok := asFailure(pr.Error); ok && f.Mutating() {
			mutating = append(mutating, fmt.Sprintf("%s (%s)", f.Package, f.Step))
		}
		if pr.Updated {
			updated++
		}
	}
	if len(mutating) > 0 {
		return errors.Newf(errors.ErrUpdateFailure, "update failed while changing %s", strings.Join(mutating, ", ")).
			WithDetail("packages", mutating)
	}

	if updated > 0 {
		r.enter(PhaseRegeneratingConfig)
		artifacts, err := o.deps.Emitter.Emit(all, emitter.Options{})
		if err != nil {
			return err
		}
		res.Artifacts = artifacts
	}

	r.enter(PhaseFinalizing)
	return nil
}

// updateAll updates every planned package in order, core first. Failures are
// recorded and the loop moves on; only cancellation stops it.
func (o *Orchestrator) updateAll(ctx context.Context, r *run, opts updater.Options) {
	for i := range r.result.PackageResults {
		pr := &r.result.PackageResults[i]
		if !pr.Resolution.NeedsUpdate() {
			continue
		}
		if ctx.Err() != nil {
			r.logger.Warn().Str("package", pr.Package.Name).Msg("Interrupted, skipping remaining packages")
			return
		}

		out, err := o.deps.Updater.Update(ctx, pr.Package, pr.Resolution.Target, opts)
		pr.Outcome = out
		if err != nil {
			pr.Error = err
			if f, ok := asFailure(err); ok && f.IsCore {
				r.logger.Error().Str("package", pr.Package.Name).Msg("Core package update failed, continuing with dependents")
			}
			continue
		}
		pr.Updated = !opts.DryRun
	}
}

func (o *Orchestrator) markRolledBack(res *Result) {
	for i := range res.PackageResults {
		if res.PackageResults[i].Updated {
			res.PackageResults[i].Updated = false
			res.PackageResults[i].RolledBack = true
		}
	}
}

func (o *Orchestrator) count(res *Result) {
	res.UpdatedPackages, res.FailedPackages, res.SkippedPackages = 0, 0, 0
	for _, pr := range res.PackageResults {
		switch {
		case pr.Failed():
			res.FailedPackages++
		case pr.Updated:
			res.UpdatedPackages++
		case pr.Skipped():
			res.SkippedPackages++
		}
	}
}

// abort ends a run that stopped before changing anything
func (o *Orchestrator) abort(r *run, err error) (*Result, error) {
	r.logger.Error().Err(err).Str("phase", string(r.result.Phase)).Msg("Update aborted")
	r.enter(PhaseFailed)
	r.result.Error = err
	o.count(r.result)
	return r.result, err
}

// finish applies the exit policy to a committed run
func (o *Orchestrator) finish(r *run) (*Result, error) {
	res := r.result
	o.count(res)
	r.logger.Info().
		Int("updated", res.UpdatedPackages).
		Int("failed", res.FailedPackages).
		Int("skipped", res.SkippedPackages).
		Msg("Update finished")

	if res.FailedPackages == 0 {
		return res, res.Error
	}

	code := errors.ErrUpdateFailure
	var names []string
	for _, pr := range res.PackageResults {
		if !pr.Failed() {
			continue
		}
		names = append(names, pr.Package.Name)
		if pr.Package.IsCore {
			code = errors.ErrCoreUpdateFailure
		}
	}
	err := errors.Newf(code, "%d of %d packages failed to update", res.FailedPackages, res.TotalPackages).
		WithDetail("packages", names)
	if res.Error != nil {
		err.Wrapped = res.Error
	}
	res.Error = err
	return res, err
}

func asFailure(err error) (*updater.UpdateFailure, bool) {
	f, ok := err.(*updater.UpdateFailure)
	return f, ok
}
