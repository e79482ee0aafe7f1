// Package vcstest provides an in-memory vcs.Client for tests
package vcstest

import (
	"context"
	"fmt"
	"sync"

	"github.com/arthur-debert/ouranosctl/pkg/vcs"
)

// Operation names used in Calls and Repo.Fail
const (
	OpIsRepository     = "IsRepository"
	OpCurrentTag       = "CurrentTag"
	OpFetchTags        = "FetchTags"
	OpFetchAll         = "FetchAll"
	OpDefaultBranch    = "DefaultBranch"
	OpLatestTag        = "LatestTag"
	OpIsDirty          = "IsDirty"
	OpCurrentBranch    = "CurrentBranch"
	OpStashPush        = "StashPush"
	OpStashPop         = "StashPop"
	OpCheckoutDetached = "CheckoutDetached"
	OpAdvanceBranch    = "AdvanceBranch"
)

// Repo is the simulated state of one working tree
type Repo struct {
	Tag           string
	Branch        string
	DefaultBranch string

	// Latest maps a ref such as origin/main to its newest merged tag
	Latest map[string]string

	Dirty   bool
	Stashes []string

	// Diverged makes AdvanceBranch report a non fast-forward
	Diverged bool

	// Fail makes the named operation return the error
	Fail map[string]error
}

// Call records one invocation
type Call struct {
	Dir  string
	Op   string
	Args []string
}

// Fake implements vcs.Client over a set of Repos keyed by directory
type Fake struct {
	mu    sync.Mutex
	Repos map[string]*Repo
	Calls []Call

	// OnCheckout runs after a successful CheckoutDetached
	OnCheckout func(dir, rev string)
}

var _ vcs.Client = (*Fake)(nil)

// New returns an empty Fake
func New() *Fake {
	return &Fake{Repos: make(map[string]*Repo)}
}

// Add registers a repository at dir on main, tagged current, whose remote
// main branch carries latest
func (f *Fake) Add(dir, current, latest string) *Repo {
	f.mu.Lock()
	defer f.mu.Unlock()
	repo := &Repo{
		Tag:           current,
		Branch:        "main",
		DefaultBranch: "main",
		Latest:        map[string]string{"origin/main": latest},
		Fail:          map[string]error{},
	}
	f.Repos[dir] = repo
	return repo
}

// Ops returns the operations recorded for dir, in order
func (f *Fake) Ops(dir string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ops []string
	for _, c := range f.Calls {
		if c.Dir == dir {
			ops = append(ops, c.Op)
		}
	}
	return ops
}

// Mutations counts recorded calls that would change a working tree
func (f *Fake) Mutations() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.Calls {
		switch c.Op {
		case OpStashPush, OpStashPop, OpCheckoutDetached, OpAdvanceBranch:
			n++
		}
	}
	return n
}

// enter records the call and returns the repo or the configured failure
func (f *Fake) enter(ctx context.Context, dir, op string, args ...string) (*Repo, error) {
	f.Calls = append(f.Calls, Call{Dir: dir, Op: op, Args: args})
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	repo, ok := f.Repos[dir]
	if !ok {
		return nil, fmt.Errorf("%s: not a git repository", dir)
	}
	if err := repo.Fail[op]; err != nil {
		return nil, err
	}
	return repo, nil
}

func (f *Fake) IsRepository(ctx context.Context, dir string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, err := f.enter(ctx, dir, OpIsRepository)
	return err == nil
}

func (f *Fake) CurrentTag(ctx context.Context, dir string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	repo, err := f.enter(ctx, dir, OpCurrentTag)
	if err != nil {
		return "", err
	}
	return repo.Tag, nil
}

func (f *Fake) FetchTags(ctx context.Context, dir, remote string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, err := f.enter(ctx, dir, OpFetchTags, remote)
	return err
}

func (f *Fake) FetchAll(ctx context.Context, dir string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, err := f.enter(ctx, dir, OpFetchAll)
	return err
}

func (f *Fake) DefaultBranch(ctx context.Context, dir, remote string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	repo, err := f.enter(ctx, dir, OpDefaultBranch, remote)
	if err != nil {
		return "", err
	}
	return repo.DefaultBranch, nil
}

func (f *Fake) LatestTag(ctx context.Context, dir, ref string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	repo, err := f.enter(ctx, dir, OpLatestTag, ref)
	if err != nil {
		return "", err
	}
	return repo.Latest[ref], nil
}

func (f *Fake) IsDirty(ctx context.Context, dir string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	repo, err := f.enter(ctx, dir, OpIsDirty)
	if err != nil {
		return false, err
	}
	return repo.Dirty, nil
}

func (f *Fake) CurrentBranch(ctx context.Context, dir string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	repo, err := f.enter(ctx, dir, OpCurrentBranch)
	if err != nil {
		return "", err
	}
	return repo.Branch, nil
}

func (f *Fake) StashPush(ctx context.Context, dir, label string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	repo, err := f.enter(ctx, dir, OpStashPush, label)
	if err != nil {
		return err
	}
	repo.Stashes = append(repo.Stashes, label)
	repo.Dirty = false
	return nil
}

func (f *Fake) StashPop(ctx context.Context, dir, label string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	repo, err := f.enter(ctx, dir, OpStashPop, label)
	if err != nil {
		return err
	}
	for i, s := range repo.Stashes {
		if s == label {
			repo.Stashes = append(repo.Stashes[:i], repo.Stashes[i+1:]...)
			repo.Dirty = true
			return nil
		}
	}
	return fmt.Errorf("no stash entry labelled %q", label)
}

func (f *Fake) CheckoutDetached(ctx context.Context, dir, rev string) error {
	f.mu.Lock()
	repo, err := f.enter(ctx, dir, OpCheckoutDetached, rev)
	if err != nil {
		f.mu.Unlock()
		return err
	}
	repo.Tag = rev
	repo.Branch = ""
	hook := f.OnCheckout
	f.mu.Unlock()

	if hook != nil {
		hook(dir, rev)
	}
	return nil
}

func (f *Fake) AdvanceBranch(ctx context.Context, dir, branch, rev string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	repo, err := f.enter(ctx, dir, OpAdvanceBranch, branch, rev)
	if err != nil {
		return false, err
	}
	if repo.Diverged {
		return false, nil
	}
	repo.Branch = branch
	repo.Tag = rev
	return true, nil
}
