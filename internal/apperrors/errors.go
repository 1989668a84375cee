// Package apperrors implements the closed error-kind taxonomy described by
// the container lifecycle design: every predictable failure is surfaced as
// a SpinError carrying a stable code, a human message, a severity, an
// optional remediation hint, and a context map a caller can inspect instead
// of string-matching.
package apperrors

import (
	"fmt"

	goerrors "github.com/go-errors/errors"
	"golang.org/x/xerrors"
)

// Code is one value from the closed error-kind set.
type Code string

const (
	// Port
	CodePortInUse          Code = "PortInUse"
	CodePortPermissionDenied Code = "PortPermissionDenied"
	CodePortRangeExhausted Code = "PortRangeExhausted"

	// Process
	CodeProcessStartFailed     Code = "StartFailed"
	CodeProcessStopTimeout     Code = "StopTimeout"
	CodeProcessAlreadyRunning  Code = "AlreadyRunning"
	CodeProcessNotRunning      Code = "NotRunning"
	CodePidFileCorrupt         Code = "PidFileCorrupt"
	CodePidFileStale           Code = "PidFileStale"
	CodePidFileReadFailed      Code = "PidFileReadFailed"

	// Restore
	CodeVersionMismatch     Code = "VersionMismatch"
	CodePartialFailure      Code = "PartialFailure"
	CodeCompleteFailure     Code = "CompleteFailure"
	CodeBackupFormatUnknown Code = "BackupFormatUnknown"
	CodeWrongEngineDump     Code = "WrongEngineDump"

	// Container
	CodeContainerNotFound           Code = "NotFound"
	CodeContainerAlreadyExists      Code = "AlreadyExists"
	CodeContainerRunning            Code = "Running"
	CodeContainerCreateFailed       Code = "CreateFailed"
	CodeContainerInitFailed         Code = "InitFailed"
	CodeDatabaseCreateFailed        Code = "DatabaseCreateFailed"
	CodeInvalidDatabaseName         Code = "InvalidDatabaseName"

	// Dependency
	CodeDependencyMissing           Code = "Missing"
	CodeDependencyVersionIncompatible Code = "VersionIncompatible"

	// Pull
	CodePullTargetExists  Code = "TargetExists"
	CodePullFailed        Code = "PullFailed"
	CodePostScriptFailed  Code = "PostScriptFailed"

	// Docker Exporter
	CodeExportFailed Code = "ExportFailed"

	// Binary manager specific
	CodeBinaryNotPublished Code = "BinaryNotPublished"
	CodeDownloadFailed     Code = "DownloadFailed"
	CodeDownloadTimedOut   Code = "DownloadTimedOut"

	// Misc
	CodeConnectionFailed  Code = "ConnectionFailed"
	CodeRollbackFailed    Code = "RollbackFailed"
	CodeClipboardFailed   Code = "ClipboardFailed"
	CodeFileNotFound      Code = "FileNotFound"
	CodePermissionDenied  Code = "PermissionDenied"
	CodeUnknown           Code = "Unknown"
)

// Severity classifies how serious a SpinError is for presentation purposes.
type Severity string

const (
	SeverityInfo  Severity = "info"
	SeverityWarn  Severity = "warning"
	SeverityError Severity = "error"
)

// SpinError is the concrete type behind every typed error the core returns.
// It carries a xerrors.Frame so %+v formatting prints a stack, following
// the same "ComplexError" shape the prior implementation used for its own
// code-carrying errors (pkg/commands/errors.go), adapted to the closed code
// set this system needs instead of a single ad hoc constant.
type SpinError struct {
	Code        Code
	Message     string
	Severity    Severity
	Remediation string
	Context     map[string]string
	frame       xerrors.Frame
	cause       error
}

// New builds a SpinError, capturing the caller's frame for later formatting.
func New(code Code, severity Severity, message string) *SpinError {
	return &SpinError{
		Code:     code,
		Message:  message,
		Severity: severity,
		Context:  map[string]string{},
		frame:    xerrors.Caller(1),
	}
}

// WithRemediation attaches a human remediation hint and returns the receiver
// for chaining at the construction site.
func (e *SpinError) WithRemediation(hint string) *SpinError {
	e.Remediation = hint
	return e
}

// WithContext merges a key/value pair into the error's context map.
func (e *SpinError) WithContext(key, value string) *SpinError {
	if e.Context == nil {
		e.Context = map[string]string{}
	}
	e.Context[key] = value
	return e
}

// WithCause records the underlying error that triggered this SpinError, kept
// separately from xerrors' frame-carrying Unwrap/FormatError contract so
// both %v and errors.Is/As keep working on the wrapped cause.
func (e *SpinError) WithCause(cause error) *SpinError {
	e.cause = cause
	return e
}

func (e *SpinError) Unwrap() error { return e.cause }

func (e *SpinError) Error() string {
	return fmt.Sprint(e)
}

// FormatError implements xerrors.Formatter so %+v prints a stack trace.
func (e *SpinError) FormatError(p xerrors.Printer) error {
	p.Printf("[%s] %s", e.Code, e.Message)
	if e.cause != nil {
		p.Printf(": %s", e.cause.Error())
	}
	e.frame.Format(p)
	return nil
}

// Format satisfies fmt.Formatter by delegating to xerrors.
func (e *SpinError) Format(f fmt.State, c rune) {
	xerrors.FormatError(e, f, c)
}

// Is lets errors.Is(err, apperrors.New(code, ...)) match purely on Code,
// which is the stable identity callers are meant to branch on.
func (e *SpinError) Is(target error) bool {
	other, ok := target.(*SpinError)
	if !ok {
		return false
	}
	return other.Code == e.Code
}

// CodeOf extracts the Code from err if it is (or wraps) a *SpinError.
func CodeOf(err error) (Code, bool) {
	var se *SpinError
	if xerrors.As(err, &se) {
		return se.Code, true
	}
	return "", false
}

// Wrap mirrors the prior implementation's WrapError: wrapping nil must stay nil, because
// go-errors.Wrap does not do that for us on non-error values.
func Wrap(err error) error {
	if err == nil {
		return nil
	}
	return goerrors.Wrap(err, 0)
}
