package ouranosctl

import (
	"fmt"
	"os"

	"github.com/arthur-debert/ouranosctl/pkg/emitter"
	"github.com/arthur-debert/ouranosctl/pkg/logging"
	"github.com/arthur-debert/ouranosctl/pkg/packages"
	"github.com/arthur-debert/ouranosctl/pkg/style"
	"github.com/spf13/cobra"
)

func newRecoverCmd(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "recover",
		Short:   MsgRecoverShort,
		GroupID: "update",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// A failed rollback can leave the layout incomplete, so it is not validated
			a, err := g.load(false)
			if err != nil {
				return err
			}
			backups, err := a.backups()
			if err != nil {
				return err
			}

			done := logging.LogOperationStart(logging.GetLogger("cli"), "recover")
			restored, err := backups.Recover()
			done()
			if err != nil {
				return err
			}

			r := style.NewRenderer(style.DetectFormat(os.Stdout))
			if restored == nil {
				fmt.Fprintln(cmd.OutOrStdout(), r.Line(style.StatusInfo, MsgNothingToRecover))
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), r.Line(style.StatusSuccess, MsgRecovered,
				r.Style("Path", restored.Root), r.Style("Path", restored.Path)))
			return nil
		},
	}
}

func newRegenerateCmd(g *globalOptions) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:     "regenerate",
		Short:   MsgRegenerateShort,
		GroupID: "update",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := g.load(true)
			if err != nil {
				return err
			}
			pkgs, err := packages.Discover(a.fs, a.inst, a.cfg.CorePackage)
			if err != nil {
				return err
			}

			artifacts, err := a.emitter().Emit(pkgs, emitter.Options{DryRun: dryRun})
			if err != nil {
				return err
			}

			r := style.NewRenderer(style.DetectFormat(os.Stdout))
			for _, art := range artifacts {
				fmt.Fprintln(cmd.OutOrStdout(), renderArtifact(r, art, dryRun))
			}
			if dryRun {
				fmt.Fprintln(cmd.OutOrStdout(), r.Style("DryRunBanner", MsgDryRunNotice))
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&dryRun, "dry-run", "d", false, MsgFlagDryRun)
	return cmd
}
