package ouranosctl

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/arthur-debert/ouranosctl/pkg/emitter"
	"github.com/arthur-debert/ouranosctl/pkg/orchestration"
	"github.com/arthur-debert/ouranosctl/pkg/style"
	"github.com/arthur-debert/ouranosctl/pkg/updater"
)

// renderResult writes the human-readable report of an update run
func renderResult(w io.Writer, r *style.Renderer, res *orchestration.Result) {
	var b strings.Builder

	for _, pr := range res.PackageResults {
		b.WriteString(renderPackage(r, pr))
		b.WriteString("\n")
	}

	if len(res.Artifacts) > 0 {
		b.WriteString("\n")
		for _, a := range res.Artifacts {
			b.WriteString(renderArtifact(r, a, res.DryRun))
			b.WriteString("\n")
		}
	}

	b.WriteString("\n")
	switch {
	case res.TotalPackages > 0 && res.UpdatedPackages == 0 && res.FailedPackages == 0 && res.SkippedPackages == res.TotalPackages && !res.DryRun:
		b.WriteString(r.Style("Success", MsgAllUpToDate))
	default:
		b.WriteString(r.Style("Bold", fmt.Sprintf(MsgUpdateSummary,
			res.UpdatedPackages, res.SkippedPackages, res.FailedPackages, res.TotalPackages)))
	}
	b.WriteString("\n")

	switch res.Phase {
	case orchestration.PhaseRolledBack:
		b.WriteString(r.Style("Warning", MsgRolledBack) + "\n")
	case orchestration.PhaseFailed:
		if res.Snapshot != "" {
			b.WriteString(r.Style("Error", fmt.Sprintf(MsgRollbackFailed, res.Snapshot)) + "\n")
		}
	}

	if res.DryRun {
		b.WriteString(r.Style("DryRunBanner", MsgDryRunNotice) + "\n")
	}

	_, _ = io.WriteString(w, b.String())
}

func renderPackage(r *style.Renderer, pr orchestration.PackageResult) string {
	name := r.Style("Package", pr.Package.Name)
	res := pr.Resolution

	switch {
	case pr.Failed():
		return r.Line(style.StatusError, "%s %s", name, r.Style("Error", failureText(pr.Error)))
	case pr.RolledBack:
		return r.Line(style.StatusWarning, "%s %s -> %s %s", name, marker(r, res.Current), marker(r, res.Target),
			r.Style("Muted", "(rolled back)"))
	case pr.Updated:
		return r.Line(style.StatusSuccess, "%s %s -> %s", name, marker(r, res.Current), marker(r, res.Target))
	case res.NeedsUpdate():
		// dry-run
		line := r.Line(style.StatusPending, "%s %s -> %s", name, marker(r, res.Current), marker(r, res.Target))
		if pr.Outcome != nil && len(pr.Outcome.Actions) > 0 {
			line += " " + r.Style("Muted", "("+strings.Join(pr.Outcome.Actions, ", ")+")")
		}
		return line
	default:
		return r.Line(style.StatusInfo, "%s %s", name, r.Style("Muted", res.Reason))
	}
}

func failureText(err error) string {
	var f *updater.UpdateFailure
	if errors.As(err, &f) {
		return fmt.Sprintf("failed at %s: %v", f.Step, f.Err)
	}
	return err.Error()
}

func marker(r *style.Renderer, m string) string {
	if m == "" {
		m = "(untagged)"
	}
	return r.Style("Marker", m)
}

func renderArtifact(r *style.Renderer, a emitter.Artifact, dryRun bool) string {
	path := r.Style("Path", a.Path)
	switch {
	case !a.Changed:
		return r.Line(style.StatusInfo, MsgArtifactUnchanged, path)
	case dryRun:
		return r.Line(style.StatusPending, MsgArtifactPlanned, path)
	default:
		return r.Line(style.StatusSuccess, MsgArtifactWritten, path)
	}
}
