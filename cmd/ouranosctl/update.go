package ouranosctl

import (
	"os"

	"github.com/arthur-debert/ouranosctl/pkg/logging"
	"github.com/arthur-debert/ouranosctl/pkg/orchestration"
	"github.com/arthur-debert/ouranosctl/pkg/style"
	"github.com/spf13/cobra"
)

func newUpdateCmd(g *globalOptions) *cobra.Command {
	var opts orchestration.Options

	cmd := &cobra.Command{
		Use:     "update",
		Short:   MsgUpdateShort,
		Long:    MsgUpdateLong,
		Example: MsgUpdateExample,
		GroupID: "update",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := g.load(true)
			if err != nil {
				return err
			}
			logging.LogCommand(logging.GetLogger("cli"), "update", os.Args[1:])

			orch, err := a.orchestrator()
			if err != nil {
				return err
			}

			res, err := orch.Update(cmd.Context(), opts)
			if res != nil {
				renderResult(cmd.OutOrStdout(), style.NewRenderer(style.DetectFormat(os.Stdout)), res)
			}
			return err
		},
	}

	cmd.Flags().BoolVarP(&opts.DryRun, "dry-run", "d", false, MsgFlagDryRun)
	cmd.Flags().BoolVarP(&opts.Force, "force", "f", false, MsgFlagForce)
	cmd.Flags().BoolVarP(&opts.CoreOnly, "core-only", "c", false, MsgFlagCoreOnly)
	return cmd
}
