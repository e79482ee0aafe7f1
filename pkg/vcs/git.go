// Package vcs wraps the git command line for the operations ouranosctl
// performs on package working trees. Every call is bound to a context so an
// interrupted run stops the git child as well.
package vcs

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/arthur-debert/ouranosctl/pkg/logging"
)

// Client is the set of git operations the resolver and updater rely on.
// dir is always the package working tree.
type Client interface {
	// IsRepository reports whether dir is a git working tree
	IsRepository(ctx context.Context, dir string) bool

	// CurrentTag returns the nearest tag reachable from HEAD, or "" if none
	CurrentTag(ctx context.Context, dir string) (string, error)

	// FetchTags fetches tags from remote
	FetchTags(ctx context.Context, dir, remote string) error

	// FetchAll fetches every remote including tags
	FetchAll(ctx context.Context, dir string) error

	// DefaultBranch returns the branch remote/HEAD points to
	DefaultBranch(ctx context.Context, dir, remote string) (string, error)

	// LatestTag returns the most recently created tag merged into ref, or "" if none
	LatestTag(ctx context.Context, dir, ref string) (string, error)

	// IsDirty reports tracked modifications or untracked files
	IsDirty(ctx context.Context, dir string) (bool, error)

	// CurrentBranch returns the checked out branch, or "" when HEAD is detached
	CurrentBranch(ctx context.Context, dir string) (string, error)

	// StashPush stashes all local changes including untracked files under label
	StashPush(ctx context.Context, dir, label string) error

	// StashPop restores the stash entry created with label
	StashPop(ctx context.Context, dir, label string) error

	// CheckoutDetached switches the working tree to rev with a detached HEAD
	CheckoutDetached(ctx context.Context, dir, rev string) error

	// AdvanceBranch fast-forwards branch to rev and checks it out. It returns
	// false without changing anything when rev does not descend from branch.
	AdvanceBranch(ctx context.Context, dir, branch, rev string) (bool, error)
}

// CommandError describes a failed git invocation
type CommandError struct {
	Args   []string
	Stderr string
	Err    error
}

func (e *CommandError) Error() string {
	msg := strings.TrimSpace(e.Stderr)
	if msg == "" {
		return fmt.Sprintf("git %s: %v", strings.Join(e.Args, " "), e.Err)
	}
	return fmt.Sprintf("git %s: %v: %s", strings.Join(e.Args, " "), e.Err, msg)
}

func (e *CommandError) Unwrap() error { return e.Err }

// ExitCode returns the git exit status, or -1 if git did not run to completion
func (e *CommandError) ExitCode() int {
	var exitErr *exec.ExitError
	if errors.As(e.Err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

// CLI implements Client by executing the git binary
type CLI struct {
	// Binary is the git executable, "git" when empty
	Binary string

	// Env is appended to the inherited environment of every git call
	Env []string
}

// NewCLI returns a Client backed by the git found on PATH
func NewCLI() *CLI {
	return &CLI{Binary: "git"}
}

// run executes git in dir and returns trimmed stdout
func (g *CLI) run(ctx context.Context, dir string, args ...string) (string, error) {
	logger := logging.GetLogger("vcs")
	binary := g.Binary
	if binary == "" {
		binary = "git"
	}

	logging.LogCommand(logger, binary, args)

	cmd := exec.CommandContext(ctx, binary, args...)
	cmd.Dir = dir
	cmd.WaitDelay = 5 * time.Second
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0", "LC_ALL=C")
	cmd.Env = append(cmd.Env, g.Env...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		return strings.TrimSpace(stdout.String()), &CommandError{Args: args, Stderr: stderr.String(), Err: err}
	}
	return strings.TrimSpace(stdout.String()), nil
}

func (g *CLI) IsRepository(ctx context.Context, dir string) bool {
	out, err := g.run(ctx, dir, "rev-parse", "--is-inside-work-tree")
	return err == nil && out == "true"
}

func (g *CLI) CurrentTag(ctx context.Context, dir string) (string, error) {
	out, err := g.run(ctx, dir, "describe", "--tags", "--abbrev=0", "HEAD")
	if err != nil {
		if noTagReachable(err) {
			return "", nil
		}
		return "", err
	}
	return firstLine(out), nil
}

// noTagReachable matches the messages git describe prints when HEAD has no
// tagged ancestor, including a repository without commits
func noTagReachable(err error) bool {
	var cmdErr *CommandError
	if !errors.As(err, &cmdErr) {
		return false
	}
	msg := cmdErr.Stderr
	return strings.Contains(msg, "No names found") ||
		strings.Contains(msg, "No tags can describe") ||
		strings.Contains(msg, "cannot describe")
}

func (g *CLI) FetchTags(ctx context.Context, dir, remote string) error {
	_, err := g.run(ctx, dir, "fetch", "--tags", remote)
	return err
}

func (g *CLI) FetchAll(ctx context.Context, dir string) error {
	_, err := g.run(ctx, dir, "fetch", "--all", "--tags")
	return err
}

func (g *CLI) DefaultBranch(ctx context.Context, dir, remote string) (string, error) {
	out, err := g.run(ctx, dir, "symbolic-ref", "--short", "refs/remotes/"+remote+"/HEAD")
	if err == nil && out != "" {
		return strings.TrimPrefix(out, remote+"/"), nil
	}

	// Clones made without remote HEAD information fall back to the usual names
	for _, candidate := range []string{"main", "master"} {
		if _, verr := g.run(ctx, dir, "rev-parse", "--verify", "--quiet", "refs/remotes/"+remote+"/"+candidate); verr == nil {
			return candidate, nil
		}
	}
	if err == nil {
		err = fmt.Errorf("remote %s has no HEAD", remote)
	}
	return "", err
}

func (g *CLI) LatestTag(ctx context.Context, dir, ref string) (string, error) {
	out, err := g.run(ctx, dir, "tag", "--merged", ref, "--sort=-creatordate")
	if err != nil {
		return "", err
	}
	return firstLine(out), nil
}

func (g *CLI) IsDirty(ctx context.Context, dir string) (bool, error) {
	out, err := g.run(ctx, dir, "status", "--porcelain")
	if err != nil {
		return false, err
	}
	return out != "", nil
}

func (g *CLI) CurrentBranch(ctx context.Context, dir string) (string, error) {
	out, err := g.run(ctx, dir, "symbolic-ref", "--quiet", "--short", "HEAD")
	if err != nil {
		var cmdErr *CommandError
		if errors.As(err, &cmdErr) && cmdErr.ExitCode() == 1 {
			return "", nil
		}
		return "", err
	}
	return out, nil
}

func (g *CLI) StashPush(ctx context.Context, dir, label string) error {
	_, err := g.run(ctx, dir, "stash", "push", "--include-untracked", "-m", label)
	return err
}

func (g *CLI) StashPop(ctx context.Context, dir, label string) error {
	out, err := g.run(ctx, dir, "stash", "list", "--format=%gd %s")
	if err != nil {
		return err
	}

	ref := ""
	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		name, subject, ok := strings.Cut(scanner.Text(), " ")
		if ok && strings.HasSuffix(subject, label) {
			ref = name
			break
		}
	}
	if ref == "" {
		return fmt.Errorf("no stash entry labelled %q", label)
	}

	_, err = g.run(ctx, dir, "stash", "pop", ref)
	return err
}

func (g *CLI) CheckoutDetached(ctx context.Context, dir, rev string) error {
	_, err := g.run(ctx, dir, "checkout", "--quiet", "--detach", rev)
	return err
}

func (g *CLI) AdvanceBranch(ctx context.Context, dir, branch, rev string) (bool, error) {
	if _, err := g.run(ctx, dir, "merge-base", "--is-ancestor", branch, rev); err != nil {
		var cmdErr *CommandError
		if errors.As(err, &cmdErr) && cmdErr.ExitCode() == 1 {
			return false, nil
		}
		return false, err
	}
	if _, err := g.run(ctx, dir, "checkout", "--quiet", "-B", branch, rev); err != nil {
		return false, err
	}
	return true, nil
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return strings.TrimSpace(line)
}
