// Package updater switches one package's working tree to a target revision.
//
// The steps run in a fixed order: stash local modifications, fetch, check
// out the target detached, run the package's own hook when it has one, move
// the previous branch forward to the target and re-apply the stash. The first
// failing step ends the update with an *UpdateFailure naming that step.
package updater

import (
	"context"
	"time"

	"github.com/arthur-debert/ouranosctl/pkg/config"
	"github.com/arthur-debert/ouranosctl/pkg/logging"
	"github.com/arthur-debert/ouranosctl/pkg/packages"
	"github.com/arthur-debert/ouranosctl/pkg/paths"
	"github.com/arthur-debert/ouranosctl/pkg/vcs"
	"github.com/rs/zerolog"
)

// Options modify a single update
type Options struct {
	// DryRun logs each step instead of performing it
	DryRun bool

	// Label names the stash entry; it should be unique per run
	Label string
}

// Outcome records what Update did or, in dry-run, would do
type Outcome struct {
	Package  string
	Target   string
	Stashed  bool
	Branch   string
	HookRan  bool
	Actions  []string
	Duration time.Duration

	// BranchAdvanced is set when Branch was fast-forwarded to Target
	BranchAdvanced bool

	// Unstashed is set when the stash was re-applied after an early failure
	Unstashed bool
}

// Updater performs package updates against one installation
type Updater struct {
	git         vcs.Client
	hooks       HookRunner
	root        string
	hookTimeout time.Duration
}

// New creates an Updater
func New(git vcs.Client, hooks HookRunner, inst *paths.Installation, cfg config.UpdateConfig) *Updater {
	return &Updater{
		git:         git,
		hooks:       hooks,
		root:        inst.Root(),
		hookTimeout: cfg.HookTimeout,
	}
}

// Update moves pkg to target. The returned error is nil or an *UpdateFailure.
func (u *Updater) Update(ctx context.Context, pkg packages.Package, target string, opts Options) (*Outcome, error) {
	logger := logging.GetLogger("updater").With().
		Str("package", pkg.Name).
		Str("target", target).
		Bool("dryRun", opts.DryRun).
		Logger()
	start := time.Now()

	out := &Outcome{Package: pkg.Name, Target: target}
	fail := func(step Step, err error) (*Outcome, error) {
		out.Duration = time.Since(start)
		logger.Error().Err(err).Str("step", string(step)).Msg("Package update failed")
		failure := &UpdateFailure{Package: pkg.Name, IsCore: pkg.IsCore, Step: step, Err: err}
		if out.Stashed && !opts.DryRun && !step.Mutating() {
			// Nothing but the stash has touched the tree, so it goes straight back
			if popErr := u.git.StashPop(context.WithoutCancel(ctx), pkg.Path, opts.Label); popErr != nil {
				logger.Error().Err(popErr).Str("stash", opts.Label).Msg("Cannot re-apply stashed modifications")
				failure.StashKept = true
			} else {
				out.Unstashed = true
			}
		}
		return out, failure
	}
	act := func(step Step, format string, args ...interface{}) {
		out.Actions = append(out.Actions, string(step))
		ev := logger.Info()
		if opts.DryRun {
			ev = ev.Bool("wouldRun", true)
			format = "Would " + format
		}
		ev.Msgf(format, args...)
	}

	// 1. Local modifications
	if err := ctx.Err(); err != nil {
		return fail(StepDetectChanges, err)
	}
	dirty, err := u.git.IsDirty(ctx, pkg.Path)
	if err != nil {
		return fail(StepDetectChanges, err)
	}
	if dirty {
		act(StepStash, "stash local modifications as %q", opts.Label)
		if !opts.DryRun {
			if err := u.git.StashPush(ctx, pkg.Path, opts.Label); err != nil {
				return fail(StepStash, err)
			}
		}
		out.Stashed = true
	}

	branch, err := u.git.CurrentBranch(ctx, pkg.Path)
	if err != nil {
		return fail(StepDetectChanges, err)
	}
	out.Branch = branch

	// 2. Fetch
	act(StepFetch, "fetch all remotes")
	if !opts.DryRun {
		if err := u.git.FetchAll(ctx, pkg.Path); err != nil {
			return fail(StepFetch, err)
		}
	}

	// 3. Checkout
	act(StepCheckout, "check out %s", target)
	if !opts.DryRun {
		if err := u.git.CheckoutDetached(ctx, pkg.Path, target); err != nil {
			return fail(StepCheckout, err)
		}
	}

	// 4. Hook, never for the core package
	if hook, ok := u.hookFor(pkg, logger); ok {
		act(StepHook, "run hook %s", hook)
		if !opts.DryRun {
			req := HookRequest{
				Path:    hook,
				Dir:     pkg.Path,
				Timeout: u.hookTimeout,
				Env: map[string]string{
					EnvHookRoot:    u.root,
					EnvHookPackage: pkg.Name,
					EnvHookTarget:  target,
				},
			}
			if err := u.hooks.Run(ctx, req); err != nil {
				return fail(StepHook, err)
			}
		}
		out.HookRan = true
	}

	// 5. Previous branch, moved forward to the target when it can be
	if branch != "" {
		act(StepRestoreBranch, "return to branch %s at %s", branch, target)
		if !opts.DryRun {
			advanced, err := u.git.AdvanceBranch(ctx, pkg.Path, branch, target)
			if err != nil {
				return fail(StepRestoreBranch, err)
			}
			if !advanced {
				logger.Warn().Str("branch", branch).Msg("Branch has diverged from the target, leaving HEAD detached")
			}
			out.BranchAdvanced = advanced
		}
	}

	// 6. Stash
	if out.Stashed {
		act(StepUnstash, "re-apply stashed modifications")
		if !opts.DryRun {
			if err := u.git.StashPop(ctx, pkg.Path, opts.Label); err != nil {
				return fail(StepUnstash, err)
			}
		}
	}

	out.Duration = time.Since(start)
	logger.Debug().Dur("duration", out.Duration).Msg("Package update finished")
	return out, nil
}

// hookFor returns the hook to run for pkg. The core package is always
// orchestrator-managed, whatever strategy it carries.
func (u *Updater) hookFor(pkg packages.Package, logger zerolog.Logger) (string, bool) {
	if pkg.Strategy.Kind != packages.SelfManaged || pkg.Strategy.Hook == "" {
		return "", false
	}
	if pkg.IsCore {
		logger.Warn().Str("hook", pkg.Strategy.Hook).Msg("Refusing to run a hook for the core package")
		return "", false
	}
	return pkg.Strategy.Hook, true
}
