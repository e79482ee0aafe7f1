package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unique error code for stable testing
type ErrorCode string

// Error codes for different error categories
const (
	// General errors
	ErrUnknown      ErrorCode = "UNKNOWN"
	ErrInternal     ErrorCode = "INTERNAL"
	ErrInvalidInput ErrorCode = "INVALID_INPUT"
	ErrNotFound     ErrorCode = "NOT_FOUND"

	// Configuration errors
	ErrConfigLoad  ErrorCode = "CONFIG_LOAD"
	ErrConfigParse ErrorCode = "CONFIG_PARSE"
	ErrConfigValid ErrorCode = "CONFIG_INVALID"

	// Installation errors
	ErrEnvironment ErrorCode = "ENVIRONMENT"
	ErrPackage     ErrorCode = "PACKAGE_INVALID"

	// Backup errors
	ErrBackup          ErrorCode = "BACKUP"
	ErrRollback        ErrorCode = "ROLLBACK"
	ErrRollbackFailure ErrorCode = "ROLLBACK_FAILURE"

	// Update errors
	ErrResolve           ErrorCode = "RESOLVE"
	ErrUpdateFailure     ErrorCode = "UPDATE_FAILURE"
	ErrCoreUpdateFailure ErrorCode = "CORE_UPDATE_FAILURE"
	ErrEmit              ErrorCode = "EMIT"

	// Lifecycle errors
	ErrAlreadyRunning   ErrorCode = "ALREADY_RUNNING"
	ErrUpdateInProgress ErrorCode = "UPDATE_IN_PROGRESS"
	ErrStartFailure     ErrorCode = "START_FAILURE"
	ErrStopFailure      ErrorCode = "STOP_FAILURE"

	// FileSystem errors
	ErrFileAccess ErrorCode = "FILE_ACCESS"
	ErrFileWrite  ErrorCode = "FILE_WRITE"
	ErrDirCreate  ErrorCode = "DIR_CREATE"
)

// Process exit codes returned by the CLI
const (
	ExitOK             = 0
	ExitFailure        = 1
	ExitPackagesFailed = 2
	ExitRolledBack     = 3
	ExitRollbackFailed = 4
)

// CtlError represents a structured error with code and details
type CtlError struct {
	Code    ErrorCode
	Message string
	Details map[string]interface{}
	Wrapped error
}

// Error implements the error interface
func (e *CtlError) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Wrapped)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap implements the errors.Unwrap interface
func (e *CtlError) Unwrap() error {
	return e.Wrapped
}

// Is implements errors.Is interface
func (e *CtlError) Is(target error) bool {
	var targetErr *CtlError
	if errors.As(target, &targetErr) {
		return e.Code == targetErr.Code
	}
	return false
}

// New creates a new CtlError with the given code and message
func New(code ErrorCode, message string) *CtlError {
	return &CtlError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
	}
}

// Newf creates a new CtlError with a formatted message
func Newf(code ErrorCode, format string, args ...interface{}) *CtlError {
	return &CtlError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Details: make(map[string]interface{}),
	}
}

// Wrap wraps an existing error with a CtlError
func Wrap(err error, code ErrorCode, message string) *CtlError {
	if err == nil {
		return nil
	}
	return &CtlError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
		Wrapped: err,
	}
}

// Wrapf wraps an existing error with a formatted message
func Wrapf(err error, code ErrorCode, format string, args ...interface{}) *CtlError {
	if err == nil {
		return nil
	}
	return &CtlError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Details: make(map[string]interface{}),
		Wrapped: err,
	}
}

// WithDetail adds a detail to the error
func (e *CtlError) WithDetail(key string, value interface{}) *CtlError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// WithDetails adds multiple details to the error
func (e *CtlError) WithDetails(details map[string]interface{}) *CtlError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	for k, v := range details {
		e.Details[k] = v
	}
	return e
}

// IsErrorCode checks if an error has a specific error code.
// Only the outermost CtlError in the chain is inspected.
func IsErrorCode(err error, code ErrorCode) bool {
	var ctlErr *CtlError
	if errors.As(err, &ctlErr) {
		return ctlErr.Code == code
	}
	return false
}

// HasErrorCode reports whether any CtlError in the chain carries code.
func HasErrorCode(err error, code ErrorCode) bool {
	for err != nil {
		var ctlErr *CtlError
		if !errors.As(err, &ctlErr) {
			return false
		}
		if ctlErr.Code == code {
			return true
		}
		err = ctlErr.Wrapped
	}
	return false
}

// GetErrorCode returns the error code from an error, or ErrUnknown if not a CtlError
func GetErrorCode(err error) ErrorCode {
	var ctlErr *CtlError
	if errors.As(err, &ctlErr) {
		return ctlErr.Code
	}
	return ErrUnknown
}

// GetErrorDetails returns the details from an error, or nil if not a CtlError
func GetErrorDetails(err error) map[string]interface{} {
	var ctlErr *CtlError
	if errors.As(err, &ctlErr) {
		return ctlErr.Details
	}
	return nil
}

// ExitCode maps an error to the process exit status.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	switch GetErrorCode(err) {
	case ErrRollbackFailure:
		return ExitRollbackFailed
	case ErrRollback:
		return ExitRolledBack
	case ErrUpdateFailure, ErrCoreUpdateFailure:
		return ExitPackagesFailed
	default:
		return ExitFailure
	}
}
