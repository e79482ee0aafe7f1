package vcs

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireGit(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}
}

// git runs a git command for fixture setup with deterministic identity and dates
func git(t *testing.T, dir, date string, args ...string) string {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(),
		"GIT_AUTHOR_NAME=test", "GIT_AUTHOR_EMAIL=test@example.com",
		"GIT_COMMITTER_NAME=test", "GIT_COMMITTER_EMAIL=test@example.com",
		"GIT_AUTHOR_DATE="+date, "GIT_COMMITTER_DATE="+date,
		"GIT_CONFIG_GLOBAL=/dev/null", "GIT_CONFIG_NOSYSTEM=1",
	)
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, "git %v: %s", args, out)
	return string(out)
}

func commit(t *testing.T, dir, file, content, date string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, file), []byte(content), 0644))
	git(t, dir, date, "add", file)
	git(t, dir, date, "commit", "--quiet", "-m", "update "+file)
}

// setupClone builds an upstream with tags v1.0.0 and v1.1.0 and a clone
// checked out at v1.0.0 on main.
func setupClone(t *testing.T) (upstream, clone string) {
	t.Helper()
	requireGit(t)

	base := t.TempDir()
	upstream = filepath.Join(base, "upstream")
	clone = filepath.Join(base, "clone")
	require.NoError(t, os.MkdirAll(upstream, 0755))

	git(t, upstream, "2024-01-01T00:00:00Z", "init", "--quiet", "--initial-branch=main")
	commit(t, upstream, "app.txt", "one", "2024-01-01T00:00:00Z")
	git(t, upstream, "2024-01-01T00:00:00Z", "tag", "v1.0.0")

	git(t, base, "2024-01-01T00:00:00Z", "clone", "--quiet", upstream, clone)

	commit(t, upstream, "app.txt", "two", "2024-02-01T00:00:00Z")
	git(t, upstream, "2024-02-01T00:00:00Z", "tag", "v1.1.0")
	return upstream, clone
}

func TestCLI_ResolveMarkers(t *testing.T) {
	_, clone := setupClone(t)
	ctx := context.Background()
	g := NewCLI()

	assert.True(t, g.IsRepository(ctx, clone))

	current, err := g.CurrentTag(ctx, clone)
	require.NoError(t, err)
	assert.Equal(t, "v1.0.0", current)

	require.NoError(t, g.FetchTags(ctx, clone, "origin"))

	branch, err := g.DefaultBranch(ctx, clone, "origin")
	require.NoError(t, err)
	assert.Equal(t, "main", branch)

	latest, err := g.LatestTag(ctx, clone, "origin/main")
	require.NoError(t, err)
	assert.Equal(t, "v1.1.0", latest)
}

func TestCLI_CurrentTagWithoutTags(t *testing.T) {
	requireGit(t)
	dir := t.TempDir()
	git(t, dir, "2024-01-01T00:00:00Z", "init", "--quiet")
	commit(t, dir, "a.txt", "a", "2024-01-01T00:00:00Z")

	tag, err := NewCLI().CurrentTag(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, "", tag)
}

func TestCLI_StashCheckoutRoundTrip(t *testing.T) {
	_, clone := setupClone(t)
	ctx := context.Background()
	g := NewCLI()
	g.Env = []string{
		"GIT_COMMITTER_NAME=test", "GIT_COMMITTER_EMAIL=test@example.com",
		"GIT_AUTHOR_NAME=test", "GIT_AUTHOR_EMAIL=test@example.com",
	}
	require.NoError(t, g.FetchAll(ctx, clone))

	require.NoError(t, os.WriteFile(filepath.Join(clone, "local.txt"), []byte("mine"), 0644))
	dirty, err := g.IsDirty(ctx, clone)
	require.NoError(t, err)
	assert.True(t, dirty)

	require.NoError(t, g.StashPush(ctx, clone, "ouranosctl-test-run"))
	dirty, err = g.IsDirty(ctx, clone)
	require.NoError(t, err)
	assert.False(t, dirty)

	branch, err := g.CurrentBranch(ctx, clone)
	require.NoError(t, err)
	assert.Equal(t, "main", branch)

	require.NoError(t, g.CheckoutDetached(ctx, clone, "v1.1.0"))
	detached, err := g.CurrentBranch(ctx, clone)
	require.NoError(t, err)
	assert.Equal(t, "", detached)

	content, err := os.ReadFile(filepath.Join(clone, "app.txt"))
	require.NoError(t, err)
	assert.Equal(t, "two", string(content))

	advanced, err := g.AdvanceBranch(ctx, clone, "main", "v1.1.0")
	require.NoError(t, err)
	assert.True(t, advanced)
	branch, err = g.CurrentBranch(ctx, clone)
	require.NoError(t, err)
	assert.Equal(t, "main", branch)

	require.NoError(t, g.StashPop(ctx, clone, "ouranosctl-test-run"))

	restored, err := os.ReadFile(filepath.Join(clone, "local.txt"))
	require.NoError(t, err)
	assert.Equal(t, "mine", string(restored))
	content, err = os.ReadFile(filepath.Join(clone, "app.txt"))
	require.NoError(t, err)
	assert.Equal(t, "two", string(content))
}

func TestCLI_AdvanceBranchRefusesDivergence(t *testing.T) {
	_, clone := setupClone(t)
	ctx := context.Background()
	commit(t, clone, "local.txt", "local work", "2024-03-01T00:00:00Z")

	g := NewCLI()
	require.NoError(t, g.FetchTags(ctx, clone, "origin"))

	advanced, err := g.AdvanceBranch(ctx, clone, "main", "v1.1.0")
	require.NoError(t, err)
	assert.False(t, advanced)

	branch, err := g.CurrentBranch(ctx, clone)
	require.NoError(t, err)
	assert.Equal(t, "main", branch)
}

func TestCLI_StashPopUnknownLabel(t *testing.T) {
	_, clone := setupClone(t)
	err := NewCLI().StashPop(context.Background(), clone, "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing")
}

func TestCLI_CommandError(t *testing.T) {
	requireGit(t)
	_, err := NewCLI().run(context.Background(), t.TempDir(), "rev-parse", "--verify", "HEAD")
	require.Error(t, err)

	var cmdErr *CommandError
	require.ErrorAs(t, err, &cmdErr)
	assert.Equal(t, []string{"rev-parse", "--verify", "HEAD"}, cmdErr.Args)
	assert.NotEqual(t, 0, cmdErr.ExitCode())
}

func TestCLI_CancelledContext(t *testing.T) {
	requireGit(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewCLI().run(ctx, t.TempDir(), "status")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
