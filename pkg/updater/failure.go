package updater

import (
	"fmt"

	"github.com/arthur-debert/ouranosctl/pkg/errors"
)

// Step identifies one stage of a package update
type Step string

const (
	StepDetectChanges Step = "detect-changes"
	StepStash         Step = "stash"
	StepFetch         Step = "fetch"
	StepCheckout      Step = "checkout"
	StepHook          Step = "hook"
	StepRestoreBranch Step = "restore-branch"
	StepUnstash       Step = "unstash"
)

// Mutating reports whether a failure at this step may have changed the
// working tree. Only such failures require the installation to be restored.
func (s Step) Mutating() bool {
	switch s {
	case StepStash, StepCheckout, StepHook, StepRestoreBranch, StepUnstash:
		return true
	default:
		return false
	}
}

// UpdateFailure is returned by Update when a step fails
type UpdateFailure struct {
	Package string
	IsCore  bool
	Step    Step
	Err     error

	// StashKept is set when local modifications are still in the stash
	StashKept bool
}

func (f *UpdateFailure) Error() string {
	return fmt.Sprintf("update of %s failed at %s: %v", f.Package, f.Step, f.Err)
}

func (f *UpdateFailure) Unwrap() error { return f.Err }

// Mutating reports whether the failure left the working tree changed: the
// failed step was a mutating one, or local modifications could not be
// re-applied after it.
func (f *UpdateFailure) Mutating() bool { return f.Step.Mutating() || f.StashKept }

// Code returns CORE_UPDATE_FAILURE for the core package, UPDATE_FAILURE otherwise
func (f *UpdateFailure) Code() errors.ErrorCode {
	if f.IsCore {
		return errors.ErrCoreUpdateFailure
	}
	return errors.ErrUpdateFailure
}

// AsCtlError converts the failure to the structured error type
func (f *UpdateFailure) AsCtlError() *errors.CtlError {
	var err *errors.CtlError
	if f.Err == nil {
		err = errors.Newf(f.Code(), "update of %s failed at %s", f.Package, f.Step)
	} else {
		err = errors.Wrapf(f.Err, f.Code(), "update of %s failed at %s", f.Package, f.Step)
	}
	return err.WithDetail("package", f.Package).WithDetail("step", string(f.Step))
}
