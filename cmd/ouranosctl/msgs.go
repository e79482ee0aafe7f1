package ouranosctl

import (
	_ "embed"
	"strings"
)

// Short messages (one-liners)
const (
	// Command descriptions
	MsgRootShort       = "Update and run an Ouranos installation"
	MsgUpdateShort     = "Update all packages to their latest revision tag"
	MsgStartShort      = "Start the managed process"
	MsgStartLong       = "Start launches the managed process in its own session, or attached to the terminal with --foreground. It refuses to run while an update is in progress and does nothing if the process is already running."
	MsgStopShort       = "Stop the managed process"
	MsgStopLong        = "Stop terminates the managed process, escalating to SIGKILL after the stop timeout. Stopping a process that is not running succeeds."
	MsgStatusShort     = "Show packages and process state"
	MsgRecoverShort    = "Restore a snapshot left behind by an interrupted update"
	MsgRegenerateShort = "Rewrite the shell profile, service unit and manifest"
	MsgVersionShort    = "Print version information"
	MsgCompletionShort = "Generate shell completion script"

	// Status messages
	MsgDryRunNotice      = "DRY RUN MODE - No changes were made"
	MsgAllUpToDate       = "All packages are up to date."
	MsgUpdateSummary     = "%d updated, %d skipped, %d failed (of %d)"
	MsgRolledBack        = "Installation rolled back to its state before the update."
	MsgRollbackFailed    = "Rollback failed; the snapshot is kept at %s. Run 'ouranosctl recover'."
	MsgArtifactWritten   = "wrote %s"
	MsgArtifactPlanned   = "would write %s"
	MsgArtifactUnchanged = "%s is up to date"
	MsgStarted           = "Started %s (pid %d)"
	MsgStartedForeground = "%s exited"
	MsgAlreadyRunning    = "%s is already running (pid %v)"
	MsgStopped           = "%s stopped"
	MsgRecovered         = "Restored %s from %s"
	MsgNothingToRecover  = "No snapshot to recover."
	MsgSeeLogFile        = "See %s for details."

	// Error messages
	MsgErrRootUnset = "OURANOS_DIR is not set; export it or pass --root"
	MsgErrNoCommand = "no command specified"

	// Flag descriptions
	MsgFlagVerbose    = "Increase verbosity (-v INFO, -vv DEBUG, -vvv TRACE)"
	MsgFlagRoot       = "Installation root (overrides OURANOS_DIR)"
	MsgFlagConfig     = "Additional configuration file"
	MsgFlagDryRun     = "Preview changes without executing them"
	MsgFlagForce      = "Re-checkout packages even when already at the latest tag"
	MsgFlagCoreOnly   = "Only update the core package"
	MsgFlagForeground = "Run attached to the terminal and wait for the process to exit"
	MsgFlagOutput     = "Output format (auto, term, text, yaml)"
)

// Long messages from embedded files
var (
	//go:embed msgs/root-long.txt
	msgRootLongRaw string
	MsgRootLong    = strings.TrimSpace(msgRootLongRaw)

	//go:embed msgs/update-long.txt
	msgUpdateLongRaw string
	MsgUpdateLong    = strings.TrimSpace(msgUpdateLongRaw)

	//go:embed msgs/update-example.txt
	msgUpdateExampleRaw string
	MsgUpdateExample    = strings.TrimRight(msgUpdateExampleRaw, "\n")

	//go:embed msgs/usage-template.txt
	msgUsageTemplateRaw string
	MsgUsageTemplate    = strings.TrimSpace(msgUsageTemplateRaw) + "\n"

	//go:embed msgs/completion-long.txt
	msgCompletionLongRaw string
	MsgCompletionLong    = strings.TrimSpace(msgCompletionLongRaw)
)
