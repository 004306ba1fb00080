// Package errors provides centralized error definitions for the Torrpeddo
// host. It defines the bridge's error taxonomy, semantic error types with
// context wrapping, and classification helpers.
//
// # Error Types
//
// Bridge errors, one per failure class of the worker bridge:
//   - SpawnError: the worker could not be started (fatal to the feature)
//   - DecodeError: one malformed record on the worker's output stream
//   - WorkerDiedError: the worker exited without being asked to stop
//   - UnknownChannelError: a channel name outside the fixed whitelist
//
// # Usage
//
// Creating errors:
//
//	err := errors.NewSpawnError("/opt/torrpeddo/resources/bin/bridge", cause)
//	err := errors.NewDecodeError(12, line, cause)
//
// Checking errors:
//
//	if errors.Is(err, errors.ErrSpawn) { ... }
//
//	var died *errors.WorkerDiedError
//	if errors.As(err, &died) { ... }
//
// # Error Classification
//
// Every bridge error carries a Severity, which callers map to a log level
// with GetSeverity. Nothing is retried: spawn failures are surfaced, decode
// failures drop a single record, and a dead worker is not restarted.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Re-export standard library functions for convenience.
// This allows callers to import only this package for all error handling.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// Severity represents the severity level of an error.
type Severity int

const (
	// SeverityDebug is for errors that are useful for debugging but not critical.
	SeverityDebug Severity = iota
	// SeverityInfo is for informational errors that don't indicate a problem.
	SeverityInfo
	// SeverityWarning is for errors that might indicate a problem but aren't critical.
	SeverityWarning
	// SeverityError is for errors that indicate a real problem.
	SeverityError
	// SeverityCritical is for errors that require immediate attention.
	SeverityCritical
)

// String returns the string representation of the severity level.
func (s Severity) String() string {
	switch s {
	case SeverityDebug:
		return "debug"
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// -----------------------------------------------------------------------------
// Sentinel Errors
// -----------------------------------------------------------------------------

// Worker-related sentinel errors
var (
	// ErrSpawn indicates that the worker process could not be started.
	ErrSpawn = New("worker spawn failed")
	// ErrWorkerDied indicates that the worker exited without a stop request.
	ErrWorkerDied = New("worker died")
	// ErrAlreadyRunning indicates that a worker is already live.
	ErrAlreadyRunning = New("worker already running")
	// ErrNotRunning indicates that no live worker exists.
	ErrNotRunning = New("worker not running")
)

// Relay-related sentinel errors
var (
	// ErrDecode indicates that a record from the worker could not be parsed.
	ErrDecode = New("malformed worker record")
	// ErrEncode indicates that a message could not be serialized.
	ErrEncode = New("message not encodable")
	// ErrUnknownChannel indicates a channel name outside the whitelist.
	ErrUnknownChannel = New("unknown channel")
)

// -----------------------------------------------------------------------------
// Base Error Interface
// -----------------------------------------------------------------------------

// BridgeError is the base interface for all bridge errors.
type BridgeError interface {
	error

	// Unwrap returns the underlying error, if any.
	Unwrap() error

	// Is reports whether this error matches the target error.
	Is(target error) bool

	// Severity returns the severity level of this error.
	Severity() Severity
}

// baseError provides common functionality for all error types.
type baseError struct {
	sentinel error
	cause    error
	severity Severity
}

// Unwrap returns the underlying error.
func (e *baseError) Unwrap() error {
	return e.cause
}

// Is matches the error's sentinel or anything in its cause chain.
func (e *baseError) Is(target error) bool {
	if e.sentinel != nil && target == e.sentinel {
		return true
	}
	if e.cause != nil {
		return errors.Is(e.cause, target)
	}
	return false
}

// Severity returns the error severity.
func (e *baseError) Severity() Severity {
	return e.severity
}

// format renders "prefix [k=v, ...]: detail: cause".
func (e *baseError) format(prefix string, parts []string, detail string) string {
	var sb strings.Builder
	sb.WriteString(prefix)
	if len(parts) > 0 {
		sb.WriteString(" [")
		sb.WriteString(strings.Join(parts, ", "))
		sb.WriteString("]")
	}
	if detail != "" {
		sb.WriteString(": ")
		sb.WriteString(detail)
	}
	if e.cause != nil {
		sb.WriteString(": ")
		sb.WriteString(e.cause.Error())
	}
	return sb.String()
}

// -----------------------------------------------------------------------------
// Bridge Errors
// -----------------------------------------------------------------------------

// SpawnError reports that the worker executable could not be started,
// either because the resolved path does not exist or because process
// creation failed.
//
// Example:
//
//	err := errors.NewSpawnError("/app/resources/bin/bridge", os.ErrNotExist)
//	fmt.Println(err) // "spawn error [path=/app/resources/bin/bridge]: file does not exist"
type SpawnError struct {
	baseError
	Path string
	Args []string
}

// NewSpawnError creates a new SpawnError for the given executable path.
func NewSpawnError(path string, cause error) *SpawnError {
	return &SpawnError{
		baseError: baseError{
			sentinel: ErrSpawn,
			cause:    cause,
			severity: SeverityCritical,
		},
		Path: path,
	}
}

// WithArgs records the arguments the spawn was attempted with.
func (e *SpawnError) WithArgs(args []string) *SpawnError {
	e.Args = args
	return e
}

// Error returns the formatted error message.
func (e *SpawnError) Error() string {
	var parts []string
	if e.Path != "" {
		parts = append(parts, fmt.Sprintf("path=%s", e.Path))
	}
	return e.format("spawn error", parts, "")
}

// Is checks if this error matches the target.
func (e *SpawnError) Is(target error) bool {
	if _, ok := target.(*SpawnError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// maxExcerpt bounds how much of a malformed record is kept in a DecodeError.
const maxExcerpt = 120

// DecodeError reports one malformed record read from the worker. The record
// is dropped; the relay carries on with the next one.
type DecodeError struct {
	baseError
	Line    int64
	Excerpt string
}

// NewDecodeError creates a DecodeError for the given 1-based line number.
// The raw record is truncated to a short excerpt.
func NewDecodeError(line int64, raw []byte, cause error) *DecodeError {
	excerpt := string(raw)
	if len(excerpt) > maxExcerpt {
		excerpt = excerpt[:maxExcerpt] + "..."
	}
	return &DecodeError{
		baseError: baseError{
			sentinel: ErrDecode,
			cause:    cause,
			severity: SeverityWarning,
		},
		Line:    line,
		Excerpt: excerpt,
	}
}

// Error returns the formatted error message.
func (e *DecodeError) Error() string {
	var parts []string
	if e.Line > 0 {
		parts = append(parts, fmt.Sprintf("line=%d", e.Line))
	}
	return e.format("decode error", parts, fmt.Sprintf("%q", e.Excerpt))
}

// Is checks if this error matches the target.
func (e *DecodeError) Is(target error) bool {
	if _, ok := target.(*DecodeError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// WorkerDiedError reports that the worker terminated while the host still
// expected it to be running.
type WorkerDiedError struct {
	baseError
	RunID    string
	PID      int
	ExitCode int
}

// NewWorkerDiedError creates a WorkerDiedError. exitCode is -1 when the
// process was terminated by a signal.
func NewWorkerDiedError(runID string, pid, exitCode int, cause error) *WorkerDiedError {
	return &WorkerDiedError{
		baseError: baseError{
			sentinel: ErrWorkerDied,
			cause:    cause,
			severity: SeverityError,
		},
		RunID:    runID,
		PID:      pid,
		ExitCode: exitCode,
	}
}

// Error returns the formatted error message.
func (e *WorkerDiedError) Error() string {
	var parts []string
	if e.RunID != "" {
		parts = append(parts, fmt.Sprintf("run=%s", e.RunID))
	}
	if e.PID > 0 {
		parts = append(parts, fmt.Sprintf("pid=%d", e.PID))
	}
	parts = append(parts, fmt.Sprintf("exit=%d", e.ExitCode))
	return e.format("worker died", parts, "")
}

// Is checks if this error matches the target.
func (e *WorkerDiedError) Is(target error) bool {
	if _, ok := target.(*WorkerDiedError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// UnknownChannelError reports a channel name that is not in the whitelist
// for the given direction ("inbound" or "outbound").
type UnknownChannelError struct {
	baseError
	Name      string
	Direction string
}

// NewUnknownChannelError creates an UnknownChannelError.
func NewUnknownChannelError(direction, name string) *UnknownChannelError {
	return &UnknownChannelError{
		baseError: baseError{
			sentinel: ErrUnknownChannel,
			severity: SeverityWarning,
		},
		Name:      name,
		Direction: direction,
	}
}

// Error returns the formatted error message.
func (e *UnknownChannelError) Error() string {
	return e.format("unknown channel", []string{"direction=" + e.Direction}, fmt.Sprintf("%q", e.Name))
}

// Is checks if this error matches the target.
func (e *UnknownChannelError) Is(target error) bool {
	if _, ok := target.(*UnknownChannelError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Classification
// -----------------------------------------------------------------------------

// GetSeverity returns the severity level of the error.
// Returns SeverityError for errors that don't implement BridgeError.
//
// Example:
//
//	switch errors.GetSeverity(err) {
//	case errors.SeverityCritical:
//	    logger.Error("worker unavailable", "error", err)
//	case errors.SeverityWarning:
//	    logger.Warn("record dropped", "error", err)
//	}
func GetSeverity(err error) Severity {
	if err == nil {
		return SeverityDebug
	}
	var bridgeErr BridgeError
	if As(err, &bridgeErr) {
		return bridgeErr.Severity()
	}
	return SeverityError
}
