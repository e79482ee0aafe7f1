package ouranosctl

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/arthur-debert/ouranosctl/pkg/lifecycle"
	"github.com/arthur-debert/ouranosctl/pkg/packages"
	"github.com/arthur-debert/ouranosctl/pkg/style"
	"github.com/arthur-debert/ouranosctl/pkg/vcs"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// statusReport is the summary printed by status
type statusReport struct {
	Root             string          `yaml:"root"`
	UpdateInProgress string          `yaml:"update_in_progress,omitempty"`
	Process          processStatus   `yaml:"process"`
	Packages         []packageStatus `yaml:"packages"`
}

type processStatus struct {
	Name      string     `yaml:"name"`
	State     string     `yaml:"state"`
	PID       int        `yaml:"pid,omitempty"`
	Stale     bool       `yaml:"stale_marker,omitempty"`
	StartedAt *time.Time `yaml:"started_at,omitempty"`
	Error     string     `yaml:"error,omitempty"`
}

type packageStatus struct {
	Name     string `yaml:"name"`
	Core     bool   `yaml:"core,omitempty"`
	Strategy string `yaml:"strategy"`
	Marker   string `yaml:"marker"`
	Branch   string `yaml:"branch,omitempty"`
	Dirty    bool   `yaml:"dirty,omitempty"`
	Error    string `yaml:"error,omitempty"`
}

// processInspector is the read-only part of the lifecycle manager
type processInspector interface {
	Status() (lifecycle.Status, error)
}

func newStatusCmd(g *globalOptions) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:     "status",
		Short:   MsgStatusShort,
		GroupID: "process",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := style.ParseFormat(output)
			if err != nil {
				return err
			}
			a, err := g.load(true)
			if err != nil {
				return err
			}
			pkgs, err := packages.Discover(a.fs, a.inst, a.cfg.CorePackage)
			if err != nil {
				return err
			}
			backups, err := a.backups()
			if err != nil {
				return err
			}

			var (
				inspector processInspector
				lcErr     error
			)
			if lc, err := a.lifecycle(); err == nil {
				inspector = lc
			} else {
				lcErr = err
			}

			report := collectStatus(cmd.Context(), vcs.NewCLI(), pkgs, inspector, lcErr)
			report.Root = a.inst.Root()
			report.Process.Name = a.cfg.Process.Name
			if snapshot, ok := backups.InProgress(); ok {
				report.UpdateInProgress = snapshot
			}

			return writeStatus(cmd.OutOrStdout(), format.Resolve(os.Stdout), report)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "auto", MsgFlagOutput)
	return cmd
}

// collectStatus never fails: per-item problems are reported inline
func collectStatus(ctx context.Context, git vcs.Client, pkgs []packages.Package, inspector processInspector, inspectErr error) statusReport {
	var report statusReport

	for _, p := range pkgs {
		ps := packageStatus{Name: p.Name, Core: p.IsCore, Strategy: p.Strategy.String()}
		var err error
		if ps.Marker, err = git.CurrentTag(ctx, p.Path); err == nil {
			if ps.Branch, err = git.CurrentBranch(ctx, p.Path); err == nil {
				ps.Dirty, err = git.IsDirty(ctx, p.Path)
			}
		}
		if err != nil {
			ps.Error = err.Error()
		}
		report.Packages = append(report.Packages, ps)
	}

	if inspector == nil {
		report.Process.State = "unknown"
		if inspectErr != nil {
			report.Process.Error = inspectErr.Error()
		}
		return report
	}

	st, err := inspector.Status()
	if err != nil {
		report.Process.State = "unknown"
		report.Process.Error = err.Error()
		return report
	}
	report.Process.State = string(st.State)
	report.Process.PID = st.PID
	report.Process.Stale = st.Stale
	if !st.StartedAt.IsZero() {
		started := st.StartedAt
		report.Process.StartedAt = &started
	}
	return report
}

func writeStatus(w io.Writer, format style.Format, report statusReport) error {
	if format == style.FormatYAML {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(report); err != nil {
			return err
		}
		return enc.Close()
	}

	r := style.NewRenderer(format)
	var b strings.Builder

	b.WriteString(r.Style("Header", "Installation") + " " + r.Style("Path", report.Root) + "\n")
	if report.UpdateInProgress != "" {
		b.WriteString(r.Line(style.StatusWarning, "update in progress (snapshot %s)", r.Style("Path", report.UpdateInProgress)) + "\n")
	}

	b.WriteString("\n" + r.Style("Header", "Packages") + "\n")
	for _, p := range report.Packages {
		b.WriteString(style.Indent(packageLine(r, p), 1) + "\n")
	}

	b.WriteString("\n" + r.Style("Header", "Process") + "\n")
	b.WriteString(style.Indent(processLine(r, report.Process), 1) + "\n")

	_, err := io.WriteString(w, b.String())
	return err
}

func packageLine(r *style.Renderer, p packageStatus) string {
	name := r.Style("Package", p.Name)
	if p.Error != "" {
		return r.Line(style.StatusError, "%s %s", name, r.Style("Error", p.Error))
	}

	var notes []string
	if p.Core {
		notes = append(notes, "core")
	}
	notes = append(notes, p.Strategy)
	if p.Branch != "" {
		notes = append(notes, "on "+p.Branch)
	} else {
		notes = append(notes, "detached")
	}
	status := style.StatusSuccess
	if p.Dirty {
		status = style.StatusWarning
		notes = append(notes, "local changes")
	}
	return r.Line(status, "%s %s %s", name, marker(r, p.Marker), r.Style("Muted", "("+strings.Join(notes, ", ")+")"))
}

func processLine(r *style.Renderer, p processStatus) string {
	switch {
	case p.Error != "":
		return r.Line(style.StatusError, "%s %s", p.Name, r.Style("Error", p.Error))
	case p.PID != 0:
		line := r.Line(style.StatusSuccess, "%s %s (pid %d)", p.Name, p.State, p.PID)
		if p.StartedAt != nil {
			line += " " + r.Style("Muted", fmt.Sprintf("since %s", p.StartedAt.Format(time.RFC3339)))
		}
		return line
	case p.Stale:
		return r.Line(style.StatusWarning, "%s %s %s", p.Name, p.State, r.Style("Muted", "(stale marker)"))
	default:
		return r.Line(style.StatusInfo, "%s %s", p.Name, p.State)
	}
}
