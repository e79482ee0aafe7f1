// Package resolver decides, per package, whether a newer revision tag exists.
package resolver

import (
	"context"
	"fmt"
	"time"

	"github.com/arthur-debert/ouranosctl/pkg/config"
	"github.com/arthur-debert/ouranosctl/pkg/errors"
	"github.com/arthur-debert/ouranosctl/pkg/logging"
	"github.com/arthur-debert/ouranosctl/pkg/packages"
	"github.com/arthur-debert/ouranosctl/pkg/vcs"
)

// State is the outcome of resolving one package
type State int

const (
	UpToDate State = iota
	UpdateAvailable
	Unresolvable
)

func (s State) String() string {
	switch s {
	case UpToDate:
		return "up-to-date"
	case UpdateAvailable:
		return "update-available"
	case Unresolvable:
		return "unresolvable"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Options modify a single resolution
type Options struct {
	// DryRun resolves against the remote refs already known locally
	DryRun bool

	// Force reports UpdateAvailable even when current equals latest
	Force bool
}

// Resolution is the resolver's verdict for one package.
// Err is set when resolution failed because git failed; a package that simply
// has no tags is Unresolvable with a nil Err.
type Resolution struct {
	Package packages.Package
	State   State
	Current string
	Target  string
	Reason  string
	Err     error
}

// NeedsUpdate reports whether the package should be switched to Target
func (r Resolution) NeedsUpdate() bool { return r.State == UpdateAvailable }

// Resolver resolves packages against one remote
type Resolver struct {
	git          vcs.Client
	remote       string
	branch       string
	fetchTimeout time.Duration
}

// New creates a Resolver from the update configuration
func New(git vcs.Client, cfg config.UpdateConfig) *Resolver {
	return &Resolver{
		git:          git,
		remote:       cfg.Remote,
		branch:       cfg.DefaultBranch,
		fetchTimeout: cfg.FetchTimeout,
	}
}

// Resolve reads the current marker, refreshes remote tags and compares it
// with the newest tag merged into the remote default branch
func (r *Resolver) Resolve(ctx context.Context, pkg packages.Package, opts Options) Resolution {
	logger := logging.GetLogger("resolver").With().Str("package", pkg.Name).Logger()
	res := Resolution{Package: pkg}

	if !r.git.IsRepository(ctx, pkg.Path) {
		return r.fail(res, errors.New(errors.ErrResolve, "package is not a git working tree").
			WithDetail("path", pkg.Path))
	}

	current, err := r.git.CurrentTag(ctx, pkg.Path)
	if err != nil {
		return r.fail(res, errors.Wrap(err, errors.ErrResolve, "cannot read current revision"))
	}
	res.Current = current

	if opts.DryRun {
		logger.Debug().Msg("Dry run: resolving against known remote refs")
	} else if err := r.fetch(ctx, pkg); err != nil {
		return r.fail(res, errors.Wrap(err, errors.ErrResolve, "cannot fetch remote tags").
			WithDetail("remote", r.remote))
	}

	branch := r.branch
	if branch == "" {
		branch, err = r.git.DefaultBranch(ctx, pkg.Path, r.remote)
		if err != nil {
			return r.fail(res, errors.Wrap(err, errors.ErrResolve, "cannot determine default branch").
				WithDetail("remote", r.remote))
		}
	}

	ref := r.remote + "/" + branch
	latest, err := r.git.LatestTag(ctx, pkg.Path, ref)
	if err != nil {
		return r.fail(res, errors.Wrap(err, errors.ErrResolve, "cannot list remote tags").
			WithDetail("ref", ref))
	}

	if latest == "" {
		res.State = Unresolvable
		res.Reason = fmt.Sprintf("no tags reachable from %s", ref)
		logger.Warn().Str("ref", ref).Msg("No revision tags found, skipping package")
		return res
	}
	res.Target = latest

	switch {
	case latest != current:
		res.State = UpdateAvailable
		res.Reason = fmt.Sprintf("%s -> %s", displayMarker(current), latest)
	case opts.Force:
		res.State = UpdateAvailable
		res.Reason = fmt.Sprintf("forced re-checkout of %s", latest)
	default:
		res.State = UpToDate
		res.Reason = fmt.Sprintf("already at %s", latest)
	}

	logger.Debug().
		Str("current", current).
		Str("latest", latest).
		Str("state", res.State.String()).
		Msg("Resolved package")
	return res
}

func (r *Resolver) fetch(ctx context.Context, pkg packages.Package) error {
	if r.fetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.fetchTimeout)
		defer cancel()
	}
	return r.git.FetchTags(ctx, pkg.Path, r.remote)
}

func (r *Resolver) fail(res Resolution, err error) Resolution {
	logger := logging.GetLogger("resolver")
	logger.Warn().Str("package", res.Package.Name).Err(err).Msg("Cannot resolve package")
	res.State = Unresolvable
	res.Reason = err.Error()
	res.Err = err
	return res
}

func displayMarker(m string) string {
	if m == "" {
		return "(untagged)"
	}
	return m
}
