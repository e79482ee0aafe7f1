package ouranosctl

import (
	"fmt"
	"os"

	"github.com/arthur-debert/ouranosctl/pkg/errors"
	"github.com/arthur-debert/ouranosctl/pkg/style"
	"github.com/spf13/cobra"
)

func newStartCmd(g *globalOptions) *cobra.Command {
	var foreground bool

	cmd := &cobra.Command{
		Use:     "start",
		Short:   MsgStartShort,
		Long:    MsgStartLong,
		GroupID: "process",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := g.load(true)
			if err != nil {
				return err
			}
			lc, err := a.lifecycle()
			if err != nil {
				return err
			}
			r := style.NewRenderer(style.DetectFormat(os.Stdout))
			name := a.cfg.Process.Name

			err = lc.Start(cmd.Context(), foreground)
			switch {
			case errors.IsErrorCode(err, errors.ErrAlreadyRunning):
				// Starting a running process is not a failure
				fmt.Fprintln(cmd.OutOrStdout(), r.Line(style.StatusWarning, MsgAlreadyRunning,
					name, errors.GetErrorDetails(err)["pid"]))
				return nil
			case err != nil:
				return err
			case foreground:
				fmt.Fprintln(cmd.OutOrStdout(), r.Line(style.StatusInfo, MsgStartedForeground, name))
				return nil
			}

			st, err := lc.Status()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), r.Line(style.StatusSuccess, MsgStarted, name, st.PID))
			return nil
		},
	}

	cmd.Flags().BoolVarP(&foreground, "foreground", "f", false, MsgFlagForeground)
	return cmd
}

func newStopCmd(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "stop",
		Short:   MsgStopShort,
		Long:    MsgStopLong,
		GroupID: "process",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := g.load(true)
			if err != nil {
				return err
			}
			lc, err := a.lifecycle()
			if err != nil {
				return err
			}
			if err := lc.Stop(cmd.Context()); err != nil {
				return err
			}
			r := style.NewRenderer(style.DetectFormat(os.Stdout))
			fmt.Fprintln(cmd.OutOrStdout(), r.Line(style.StatusSuccess, MsgStopped, a.cfg.Process.Name))
			return nil
		},
	}
}
