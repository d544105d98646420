// Package errors provides the structured error types used across dap-dump.
//
// Errors fall into two groups:
//   - dump errors, raised while decoding a single node. These are contained
//     to the node that produced them and never abort a fetch.
//   - session errors (adapter, DAP, parameters, configuration). These are
//     reported to the caller of the surrounding operation.
//
// The single exception is CodeTargetLost: losing the inspected process is
// fatal and propagates to the session owner.
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// ErrorCode represents a category of error for programmatic handling
type ErrorCode string

const (
	// Dump errors
	CodeUnresolvableType ErrorCode = "UNRESOLVABLE_TYPE"
	CodeOutOfScope       ErrorCode = "OUT_OF_SCOPE"
	CodeInvalidLayout    ErrorCode = "INVALID_LAYOUT"
	CodeEvaluationFailed ErrorCode = "EVALUATION_FAILED"
	CodeMemoryReadFailed ErrorCode = "MEMORY_READ_FAILED"
	CodeDecodeFailed     ErrorCode = "DECODE_FAILED"
	CodeTargetLost       ErrorCode = "TARGET_LOST"

	// Session errors
	CodeSessionNotFound     ErrorCode = "SESSION_NOT_FOUND"
	CodeSessionLimitReached ErrorCode = "SESSION_LIMIT_REACHED"
	CodeSessionTerminated   ErrorCode = "SESSION_TERMINATED"

	// Adapter errors
	CodeAdapterNotSupported  ErrorCode = "ADAPTER_NOT_SUPPORTED"
	CodeAdapterSpawnFailed   ErrorCode = "ADAPTER_SPAWN_FAILED"
	CodeAdapterConnectFailed ErrorCode = "ADAPTER_CONNECT_FAILED"

	// DAP protocol errors
	CodeDAPInitFailed    ErrorCode = "DAP_INIT_FAILED"
	CodeDAPAttachFailed  ErrorCode = "DAP_ATTACH_FAILED"
	CodeDAPTimeout       ErrorCode = "DAP_TIMEOUT"
	CodeDAPProtocolError ErrorCode = "DAP_PROTOCOL_ERROR"

	// Parameter errors
	CodeMissingParameter ErrorCode = "MISSING_PARAMETER"
	CodeInvalidParameter ErrorCode = "INVALID_PARAMETER"
	CodeInvalidJSON      ErrorCode = "INVALID_JSON"

	// Permission errors
	CodePermissionDenied ErrorCode = "PERMISSION_DENIED"

	// Configuration errors
	CodeConfigInvalid         ErrorCode = "CONFIG_INVALID"
	CodeLayoutOverrideInvalid ErrorCode = "LAYOUT_OVERRIDE_INVALID"
	CodeBreakpointFailed      ErrorCode = "BREAKPOINT_FAILED"
	CodeUnknown               ErrorCode = "UNKNOWN_ERROR"
)

// DebugError is a structured error type that includes helpful information
// about what went wrong and how to fix it.
type DebugError struct {
	// Code is a machine-readable error category
	Code ErrorCode `json:"code"`

	// Message is a human-readable description of what went wrong
	Message string `json:"message"`

	// Hint provides actionable guidance on how to fix the error
	Hint string `json:"hint,omitempty"`

	// Details contains additional context (e.g., the address, the offending count)
	Details map[string]interface{} `json:"details,omitempty"`

	// Cause is the underlying error, if any
	Cause error `json:"-"`
}

// Error implements the error interface
func (e *DebugError) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Message)

	if e.Hint != "" {
		sb.WriteString(" | Hint: ")
		sb.WriteString(e.Hint)
	}

	return sb.String()
}

// Unwrap returns the underlying error for error chaining
func (e *DebugError) Unwrap() error {
	return e.Cause
}

// WithDetails adds details to the error
func (e *DebugError) WithDetails(key string, value interface{}) *DebugError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// WithCause sets the underlying cause
func (e *DebugError) WithCause(err error) *DebugError {
	e.Cause = err
	return e
}

// --- Dump Errors ---

// UnresolvableType creates an error for a native type lookup that failed
func UnresolvableType(name string) *DebugError {
	return &DebugError{
		Code:    CodeUnresolvableType,
		Message: fmt.Sprintf("type '%s' could not be resolved", name),
		Details: map[string]interface{}{
			"type": name,
		},
	}
}

// OutOfScope creates an error for a variable that is not live
func OutOfScope(name string) *DebugError {
	return &DebugError{
		Code:    CodeOutOfScope,
		Message: fmt.Sprintf("variable '%s' is not in scope", name),
		Hint:    "The variable is not live at the current location. Select a different frame.",
		Details: map[string]interface{}{
			"name": name,
		},
	}
}

// InvalidLayout creates an error for a failed sanity check on decoded memory
func InvalidLayout(typeName, check string) *DebugError {
	return &DebugError{
		Code:    CodeInvalidLayout,
		Message: fmt.Sprintf("invalid %s: %s", typeName, check),
		Details: map[string]interface{}{
			"type":  typeName,
			"check": check,
		},
	}
}

// EvaluationFailed creates an error for expression evaluation failures
func EvaluationFailed(expression string, err error) *DebugError {
	return &DebugError{
		Code:    CodeEvaluationFailed,
		Message: fmt.Sprintf("failed to evaluate expression '%s': %v", expression, err),
		Hint:    "Check that the expression is valid in the current frame. Calls into the debuggee may also time out.",
		Cause:   err,
		Details: map[string]interface{}{
			"expression": expression,
		},
	}
}

// MemoryReadFailed creates an error for an unreadable memory range
func MemoryReadFailed(addr uint64, size int, err error) *DebugError {
	return &DebugError{
		Code:    CodeMemoryReadFailed,
		Message: fmt.Sprintf("cannot read %d bytes at 0x%x", size, addr),
		Cause:   err,
		Details: map[string]interface{}{
			"address": addr,
			"size":    size,
		},
	}
}

// DecodeFailed creates an error for a decoder that could not produce a value
func DecodeFailed(typeName string, err error) *DebugError {
	return &DebugError{
		Code:    CodeDecodeFailed,
		Message: fmt.Sprintf("decoding %s failed: %v", typeName, err),
		Cause:   err,
		Details: map[string]interface{}{
			"type": typeName,
		},
	}
}

// TargetLost creates the fatal error raised when the inspected process is gone
func TargetLost(err error) *DebugError {
	return &DebugError{
		Code:    CodeTargetLost,
		Message: fmt.Sprintf("connection to the inspected process was lost: %v", err),
		Hint:    "The debugger or the debuggee exited. Use dump_disconnect to clean up and dump_attach to start over.",
		Cause:   err,
	}
}

// --- Session Errors ---

// SessionNotFound creates an error for when a session ID doesn't exist
func SessionNotFound(sessionID string) *DebugError {
	return &DebugError{
		Code:    CodeSessionNotFound,
		Message: fmt.Sprintf("session '%s' not found", sessionID),
		Hint:    "Use dump_list_sessions to see active sessions, or use dump_attach to create a new session.",
		Details: map[string]interface{}{
			"sessionId": sessionID,
		},
	}
}

// SessionLimitReached creates an error when max sessions is reached
func SessionLimitReached(maxSessions int) *DebugError {
	return &DebugError{
		Code:    CodeSessionLimitReached,
		Message: fmt.Sprintf("maximum number of sessions (%d) reached", maxSessions),
		Hint:    "Use dump_disconnect to terminate an existing session before creating a new one.",
		Details: map[string]interface{}{
			"maxSessions": maxSessions,
		},
	}
}

// SessionTerminated creates an error for a session that was torn down
func SessionTerminated(sessionID string) *DebugError {
	return &DebugError{
		Code:    CodeSessionTerminated,
		Message: fmt.Sprintf("session '%s' has been terminated", sessionID),
		Hint:    "Use dump_attach to create a new session.",
		Details: map[string]interface{}{
			"sessionId": sessionID,
		},
	}
}

// --- Adapter Errors ---

// AdapterNotSupported creates an error for unknown adapter kinds
func AdapterNotSupported(kind string, supported []string) *DebugError {
	return &DebugError{
		Code:    CodeAdapterNotSupported,
		Message: fmt.Sprintf("no debug adapter available for: %s", kind),
		Hint:    fmt.Sprintf("Supported adapters are: %s.", strings.Join(supported, ", ")),
		Details: map[string]interface{}{
			"requestedAdapter":  kind,
			"supportedAdapters": supported,
		},
	}
}

// AdapterSpawnFailed creates an error when adapter spawn fails
func AdapterSpawnFailed(kind string, err error) *DebugError {
	return &DebugError{
		Code:    CodeAdapterSpawnFailed,
		Message: fmt.Sprintf("failed to spawn debug adapter %s: %v", kind, err),
		Hint:    "Ensure the adapter is installed. gdb needs version 14 or newer for --interpreter=dap; lldb needs lldb-dap (or lldb-vscode) on PATH.",
		Cause:   err,
		Details: map[string]interface{}{
			"adapter": kind,
		},
	}
}

// AdapterConnectFailed creates an error when connecting to adapter fails
func AdapterConnectFailed(address string, err error) *DebugError {
	return &DebugError{
		Code:    CodeAdapterConnectFailed,
		Message: fmt.Sprintf("failed to connect to debug adapter at %s: %v", address, err),
		Hint:    "The debug adapter may have failed to start or crashed. Check the address and that the adapter is listening.",
		Cause:   err,
		Details: map[string]interface{}{
			"address": address,
		},
	}
}

// --- DAP Protocol Errors ---

// DAPInitFailed creates an error for DAP initialization failures
func DAPInitFailed(err error) *DebugError {
	return &DebugError{
		Code:    CodeDAPInitFailed,
		Message: fmt.Sprintf("debug adapter initialization failed: %v", err),
		Hint:    "The debug adapter may be incompatible or crashed during startup. Try disconnecting and attaching again.",
		Cause:   err,
	}
}

// DAPAttachFailed creates an error for attach failures
func DAPAttachFailed(err error) *DebugError {
	return &DebugError{
		Code:    CodeDAPAttachFailed,
		Message: fmt.Sprintf("failed to attach to process: %v", err),
		Hint:    "Ensure the target process is running and that ptrace is permitted (see /proc/sys/kernel/yama/ptrace_scope).",
		Cause:   err,
	}
}

// DAPTimeout creates an error for DAP timeouts
func DAPTimeout(operation string, timeoutSeconds int) *DebugError {
	return &DebugError{
		Code:    CodeDAPTimeout,
		Message: fmt.Sprintf("%s timed out after %d seconds", operation, timeoutSeconds),
		Hint:    "The debuggee may be blocked inside a function call. Raise dump.callTimeout or disable debuggee calls.",
		Details: map[string]interface{}{
			"operation":      operation,
			"timeoutSeconds": timeoutSeconds,
		},
	}
}

// DAPProtocolError creates an error for unexpected adapter replies
func DAPProtocolError(operation string, err error) *DebugError {
	return &DebugError{
		Code:    CodeDAPProtocolError,
		Message: fmt.Sprintf("unexpected reply to %s: %v", operation, err),
		Cause:   err,
		Details: map[string]interface{}{
			"operation": operation,
		},
	}
}

// --- Parameter Errors ---

// MissingParameter creates an error for missing required parameters
func MissingParameter(paramName, description string) *DebugError {
	return &DebugError{
		Code:    CodeMissingParameter,
		Message: fmt.Sprintf("required parameter '%s' is missing", paramName),
		Hint:    description,
		Details: map[string]interface{}{
			"parameter": paramName,
		},
	}
}

// InvalidParameter creates an error for invalid parameter values
func InvalidParameter(paramName string, value interface{}, expected string) *DebugError {
	return &DebugError{
		Code:    CodeInvalidParameter,
		Message: fmt.Sprintf("invalid value for parameter '%s': %v", paramName, value),
		Hint:    fmt.Sprintf("Expected: %s", expected),
		Details: map[string]interface{}{
			"parameter": paramName,
			"value":     value,
			"expected":  expected,
		},
	}
}

// InvalidJSON creates an error for JSON parsing failures
func InvalidJSON(paramName string, err error, example string) *DebugError {
	return &DebugError{
		Code:    CodeInvalidJSON,
		Message: fmt.Sprintf("invalid JSON in parameter '%s': %v", paramName, err),
		Hint:    fmt.Sprintf("Provide valid JSON. Example: %s", example),
		Cause:   err,
		Details: map[string]interface{}{
			"parameter": paramName,
			"example":   example,
		},
	}
}

// PermissionDenied creates an error for operations the configuration forbids
func PermissionDenied(operation, mode string) *DebugError {
	var hint string
	switch operation {
	case "breakpoints":
		hint = "Special breakpoints change the debuggee and need 'full' mode. Drop breakonabort, breakonwarning and breakonfatal, or set mode to full."
	case "call":
		hint = "Calls into the debuggee are disabled in read-only mode. Values that need a call are shown without it."
	default:
		hint = fmt.Sprintf("This operation is not allowed in '%s' mode.", mode)
	}

	return &DebugError{
		Code:    CodePermissionDenied,
		Message: fmt.Sprintf("%s is not allowed in current server mode", operation),
		Hint:    hint,
		Details: map[string]interface{}{
			"operation": operation,
			"mode":      mode,
		},
	}
}

// --- Configuration Errors ---

// ConfigInvalid creates an error for an unreadable configuration file
func ConfigInvalid(path, reason string) *DebugError {
	return &DebugError{
		Code:    CodeConfigInvalid,
		Message: fmt.Sprintf("configuration '%s' is invalid: %s", path, reason),
		Hint:    "Check the configuration file for syntax errors.",
		Details: map[string]interface{}{
			"path":   path,
			"reason": reason,
		},
	}
}

// LayoutOverrideInvalid creates an error for a malformed layout override file
func LayoutOverrideInvalid(path, reason string) *DebugError {
	return &DebugError{
		Code:    CodeLayoutOverrideInvalid,
		Message: fmt.Sprintf("layout override '%s' is invalid: %s", path, reason),
		Hint:    "Each [[descriptor]] needs a name, a version range and an offsets table. Run 'dap-dump layouts --format toml' for examples.",
		Details: map[string]interface{}{
			"path":   path,
			"reason": reason,
		},
	}
}

// BreakpointFailed creates an error for a function breakpoint the adapter rejected
func BreakpointFailed(function, reason string) *DebugError {
	return &DebugError{
		Code:    CodeBreakpointFailed,
		Message: fmt.Sprintf("could not set breakpoint on %s", function),
		Hint:    fmt.Sprintf("Reason: %s. The symbol may not be loaded yet.", reason),
		Details: map[string]interface{}{
			"function": function,
			"reason":   reason,
		},
	}
}

// --- Helpers ---

// Wrap wraps a generic error with context
func Wrap(code ErrorCode, message string, hint string, err error) *DebugError {
	return &DebugError{
		Code:    code,
		Message: message,
		Hint:    hint,
		Cause:   err,
	}
}

// FromError creates a DebugError from a generic error, attempting to preserve any existing structure
func FromError(err error) *DebugError {
	var de *DebugError
	if stderrors.As(err, &de) {
		return de
	}
	return &DebugError{
		Code:    CodeUnknown,
		Message: err.Error(),
		Hint:    "An unexpected error occurred. Please check the error message for details.",
		Cause:   err,
	}
}

// CodeOf returns the code of the first DebugError in err's chain, or "" for nil.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	var de *DebugError
	if stderrors.As(err, &de) {
		return de.Code
	}
	return CodeUnknown
}

// IsFatal reports whether err must abort the whole fetch.
func IsFatal(err error) bool {
	return CodeOf(err) == CodeTargetLost
}

// IsContained reports whether err stays local to the node that raised it.
func IsContained(err error) bool {
	return err != nil && !IsFatal(err)
}
