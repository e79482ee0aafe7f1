package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/arthur-debert/ouranosctl/cmd/ouranosctl"
	"github.com/arthur-debert/ouranosctl/pkg/errors"
	"github.com/arthur-debert/ouranosctl/pkg/logging"
	"github.com/arthur-debert/ouranosctl/pkg/style"
)

func main() {
	os.Exit(run())
}

func run() int {
	// Termination signals cancel the context so an update takes its rollback path
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer logging.Close()

	rootCmd := ouranosctl.NewRootCmd()
	err := rootCmd.ExecuteContext(ctx)
	if err == nil {
		return 0
	}

	logger := logging.GetLogger("cli")
	logger.Error().Err(err).Int("exit", errors.ExitCode(err)).Msg("Command failed")

	errorStyle := style.GetStyle("Error")
	fmt.Fprintln(os.Stderr, errorStyle.Render(fmt.Sprintf("Error: %v", err)))
	if path := logging.LogFilePath(); path != "" {
		fmt.Fprintf(os.Stderr, ouranosctl.MsgSeeLogFile+"\n", path)
	}
	return errors.ExitCode(err)
}
