package ouranosctl

import (
	"bytes"
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/arthur-debert/ouranosctl/pkg/emitter"
	"github.com/arthur-debert/ouranosctl/pkg/lifecycle"
	"github.com/arthur-debert/ouranosctl/pkg/orchestration"
	"github.com/arthur-debert/ouranosctl/pkg/packages"
	"github.com/arthur-debert/ouranosctl/pkg/resolver"
	"github.com/arthur-debert/ouranosctl/pkg/style"
	"github.com/arthur-debert/ouranosctl/pkg/updater"
	"github.com/arthur-debert/ouranosctl/pkg/vcs/vcstest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func plain() *style.Renderer { return style.NewRenderer(style.FormatText) }

func TestRenderResult(t *testing.T) {
	core := packages.Package{Name: "ouranos-core", IsCore: true}
	gaia := packages.Package{Name: "gaia"}
	aether := packages.Package{Name: "aether"}

	res := &orchestration.Result{
		Phase:           orchestration.PhaseCommitted,
		TotalPackages:   3,
		UpdatedPackages: 1,
		FailedPackages:  1,
		SkippedPackages: 1,
		PackageResults: []orchestration.PackageResult{
			{
				Package:    core,
				Resolution: resolver.Resolution{State: resolver.UpdateAvailable, Current: "v1.0", Target: "v1.1"},
				Updated:    true,
			},
			{
				Package:    aether,
				Resolution: resolver.Resolution{State: resolver.UpdateAvailable, Current: "v2", Target: "v3"},
				Error:      &updater.UpdateFailure{Package: "aether", Step: updater.StepFetch, Err: fmt.Errorf("network down")},
			},
			{
				Package:    gaia,
				Resolution: resolver.Resolution{State: resolver.UpToDate, Current: "v5", Target: "v5", Reason: "already at v5"},
			},
		},
		Artifacts: []emitter.Artifact{
			{Path: "/home/u/.bashrc", Changed: true},
			{Path: "/srv/ouranos/pyproject.toml"},
		},
	}

	var out bytes.Buffer
	renderResult(&out, plain(), res)
	text := out.String()

	assert.Contains(t, text, "[ok] ouranos-core v1.0 -> v1.1")
	assert.Contains(t, text, "[error] aether failed at fetch: network down")
	assert.Contains(t, text, "[-] gaia already at v5")
	assert.Contains(t, text, "[ok] wrote /home/u/.bashrc")
	assert.Contains(t, text, "[-] /srv/ouranos/pyproject.toml is up to date")
	assert.Contains(t, text, "1 updated, 1 skipped, 1 failed (of 3)")
	assert.NotContains(t, text, MsgDryRunNotice)
}

func TestRenderResult_DryRun(t *testing.T) {
	res := &orchestration.Result{
		DryRun:        true,
		Phase:         orchestration.PhaseCommitted,
		TotalPackages: 1,
		PackageResults: []orchestration.PackageResult{{
			Package:    packages.Package{Name: "gaia"},
			Resolution: resolver.Resolution{State: resolver.UpdateAvailable, Target: "v1"},
			Outcome:    &updater.Outcome{Actions: []string{"fetch", "checkout"}},
		}},
		Artifacts: []emitter.Artifact{{Path: "/srv/ouranos/pyproject.toml", Changed: true}},
	}

	var out bytes.Buffer
	renderResult(&out, plain(), res)
	text := out.String()

	assert.Contains(t, text, "[..] gaia (untagged) -> v1 (fetch, checkout)")
	assert.Contains(t, text, "[..] would write /srv/ouranos/pyproject.toml")
	assert.Contains(t, text, MsgDryRunNotice)
}

func TestRenderResult_RolledBack(t *testing.T) {
	res := &orchestration.Result{
		Phase:          orchestration.PhaseRolledBack,
		TotalPackages:  2,
		FailedPackages: 1,
		PackageResults: []orchestration.PackageResult{
			{
				Package:    packages.Package{Name: "ouranos-core", IsCore: true},
				Resolution: resolver.Resolution{State: resolver.UpdateAvailable, Current: "v1", Target: "v2"},
				RolledBack: true,
			},
			{
				Package:    packages.Package{Name: "gaia"},
				Resolution: resolver.Resolution{State: resolver.UpdateAvailable, Current: "v1", Target: "v2"},
				Error:      &updater.UpdateFailure{Package: "gaia", Step: updater.StepCheckout, Err: fmt.Errorf("bad ref")},
			},
		},
	}

	var out bytes.Buffer
	renderResult(&out, plain(), res)
	text := out.String()

	assert.Contains(t, text, "[warn] ouranos-core v1 -> v2 (rolled back)")
	assert.Contains(t, text, MsgRolledBack)
}

func TestRenderResult_AllUpToDate(t *testing.T) {
	res := &orchestration.Result{
		Phase:           orchestration.PhaseCommitted,
		TotalPackages:   1,
		SkippedPackages: 1,
		PackageResults: []orchestration.PackageResult{{
			Package:    packages.Package{Name: "ouranos-core", IsCore: true},
			Resolution: resolver.Resolution{State: resolver.UpToDate, Reason: "already at v1"},
		}},
	}

	var out bytes.Buffer
	renderResult(&out, plain(), res)
	assert.Contains(t, out.String(), MsgAllUpToDate)
}

type fakeInspector struct {
	status lifecycle.Status
	err    error
}

func (f fakeInspector) Status() (lifecycle.Status, error) { return f.status, f.err }

func TestCollectStatus(t *testing.T) {
	git := vcstest.New()
	core := packages.Package{Name: "ouranos-core", Path: "/srv/ouranos/packages/ouranos-core", IsCore: true, Strategy: packages.Orchestrated()}
	gaia := packages.Package{Name: "gaia", Path: "/srv/ouranos/packages/gaia", Strategy: packages.Orchestrated()}
	git.Add(core.Path, "v1.2", "v1.2")
	repo := git.Add(gaia.Path, "v0.9", "v1.0")
	repo.Dirty = true
	repo.Branch = ""

	started := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	report := collectStatus(context.Background(), git, []packages.Package{core, gaia},
		fakeInspector{status: lifecycle.Status{State: lifecycle.StateRunning, PID: 4242, StartedAt: started}}, nil)

	require.Len(t, report.Packages, 2)
	assert.Equal(t, packageStatus{Name: "ouranos-core", Core: true, Strategy: core.Strategy.String(), Marker: "v1.2", Branch: "main"}, report.Packages[0])
	assert.Equal(t, "v0.9", report.Packages[1].Marker)
	assert.True(t, report.Packages[1].Dirty)
	assert.Empty(t, report.Packages[1].Branch)

	assert.Equal(t, "running", report.Process.State)
	assert.Equal(t, 4242, report.Process.PID)
	require.NotNil(t, report.Process.StartedAt)
	assert.True(t, started.Equal(*report.Process.StartedAt))
}

func TestCollectStatus_Errors(t *testing.T) {
	git := vcstest.New()
	p := packages.Package{Name: "gaia", Path: "/srv/ouranos/packages/gaia"}
	git.Add(p.Path, "v1", "v1").Fail[vcstest.OpCurrentTag] = fmt.Errorf("not a git repository")

	report := collectStatus(context.Background(), git, []packages.Package{p}, nil, fmt.Errorf("no /proc"))

	assert.Equal(t, "not a git repository", report.Packages[0].Error)
	assert.Equal(t, "unknown", report.Process.State)
	assert.Equal(t, "no /proc", report.Process.Error)
}

func TestWriteStatus_Text(t *testing.T) {
	report := statusReport{
		Root:             "/srv/ouranos",
		UpdateInProgress: "/var/backups/ouranos-20250301T100000.000000000",
		Process:          processStatus{Name: "ouranos", State: "stopped", Stale: true},
		Packages: []packageStatus{
			{Name: "ouranos-core", Core: true, Strategy: "orchestrator-managed", Marker: "v1.2", Branch: "main"},
			{Name: "gaia", Strategy: "self-managed", Dirty: true},
		},
	}

	var out bytes.Buffer
	require.NoError(t, writeStatus(&out, style.FormatText, report))
	text := out.String()

	assert.Contains(t, text, "Installation /srv/ouranos")
	assert.Contains(t, text, "[warn] update in progress")
	assert.Contains(t, text, "  [ok] ouranos-core v1.2 (core, orchestrator-managed, on main)")
	assert.Contains(t, text, "  [warn] gaia (untagged) (self-managed, detached, local changes)")
	assert.Contains(t, text, "  [warn] ouranos stopped (stale marker)")
}
