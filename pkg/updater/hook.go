package updater

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/arthur-debert/ouranosctl/pkg/errors"
	"github.com/arthur-debert/ouranosctl/pkg/logging"
	"github.com/rs/zerolog"
)

// Hook environment variables
const (
	EnvHookRoot    = "OURANOS_DIR"
	EnvHookPackage = "OURANOS_PACKAGE"
	EnvHookTarget  = "OURANOS_TARGET"
)

// waitDelay bounds how long output pipes may stay open after a hook is killed
const waitDelay = 2 * time.Second

// HookRequest describes one post-update hook invocation
type HookRequest struct {
	Path    string
	Dir     string
	Env     map[string]string
	Timeout time.Duration
}

// HookRunner executes post-update hooks
type HookRunner interface {
	Run(ctx context.Context, req HookRequest) error
}

// ExecHookRunner runs hooks as child processes
type ExecHookRunner struct {
	logger zerolog.Logger
}

// NewExecHookRunner creates a hook runner backed by os/exec
func NewExecHookRunner() *ExecHookRunner {
	return &ExecHookRunner{logger: logging.GetLogger("updater.hook")}
}

// Run executes the hook in req.Dir, bounded by req.Timeout and ctx
func (r *ExecHookRunner) Run(ctx context.Context, req HookRequest) error {
	if req.Path == "" {
		return errors.New(errors.ErrInvalidInput, "hook requires a path")
	}
	if _, err := os.Stat(req.Path); err != nil {
		return errors.Wrapf(err, errors.ErrNotFound, "hook not found: %s", req.Path)
	}

	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	r.logger.Info().
		Str("hook", req.Path).
		Str("workingDir", req.Dir).
		Msg("Executing post-update hook")

	cmd := exec.CommandContext(ctx, req.Path)
	cmd.Dir = req.Dir
	cmd.WaitDelay = waitDelay
	cmd.Env = os.Environ()
	for key, value := range req.Env {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", key, value))
	}

	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	err := cmd.Run()

	if output.Len() > 0 {
		r.logger.Debug().
			Str("hook", req.Path).
			Str("output", output.String()).
			Msg("Hook output")
	}

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		r.logger.Error().
			Err(err).
			Str("hook", req.Path).
			Msg("Hook execution failed")
		return errors.Wrapf(err, errors.ErrUpdateFailure, "hook %s failed", req.Path).
			WithDetail("output", tail(output.String(), 20))
	}

	r.logger.Debug().Str("hook", req.Path).Msg("Hook executed successfully")
	return nil
}

// tail returns the last n lines of s
func tail(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
