package errors

import (
	"context"
	"errors"
	"fmt"
)

// Domain enumerates the possible error domains
type Domain string

const (
	// DomainBoot errors are fatal at startup.
	DomainBoot Domain = "boot"

	// DomainDiscovery errors concern a single candidate module and are never fatal.
	DomainDiscovery Domain = "discovery"

	// DomainInvocation errors are returned to the caller of a plugin export.
	DomainInvocation Domain = "invocation"

	// DomainTimeout errors mean a call ran past its deadline or was cancelled.
	DomainTimeout Domain = "timeout"
)

// Code enumerates possible error codes for each domain
type Code string

// Boot error codes
const (
	CodeRuntimeInitFailed    Code = "runtime_init_failed"
	CodeCapabilityInitFailed Code = "capability_init_failed"
	CodeDirectoryUnreadable  Code = "directory_unreadable"
	CodeStateStoreFailed     Code = "state_store_failed"
)

// Discovery error codes
const (
	CodeCompileFailed       Code = "compile_failed"
	CodeInstantiateFailed   Code = "instantiate_failed"
	CodeRegistrationFailed  Code = "registration_failed"
	CodeRegistrationMissing Code = "registration_missing"
	CodeInvalidMetadata     Code = "invalid_metadata"
	CodeInvalidManifest     Code = "invalid_manifest"
)

// Invocation error codes
const (
	CodeExportNotFound    Code = "export_not_found"
	CodeSignatureMismatch Code = "signature_mismatch"
	CodeGuestTrap         Code = "guest_trap"
	CodeCleanupFailed     Code = "cleanup_failed"
	CodeDecodeFailed      Code = "decode_failed"
	CodePluginNotFound    Code = "plugin_not_found"
	CodePluginDisabled    Code = "plugin_disabled"
	CodeCircuitOpen       Code = "circuit_open"
	CodeCapacityExhausted Code = "capacity_exhausted"
	CodeSandboxClosed     Code = "sandbox_closed"
)

// Timeout error codes
const (
	CodeExecutionTimeout   Code = "execution_timeout"
	CodeExecutionCancelled Code = "execution_cancelled"
)

// DomainError represents a domain-specific error.
type DomainError struct {
	// The error domain (boot, discovery, invocation, timeout)
	ErrDomain Domain

	// Error code unique within the domain
	ErrCode Code

	// Human-readable error message
	Message string

	// Optional fields for context
	PluginID string
	Export   string
	Path     string
	Details  map[string]interface{}

	// Original error that caused this one, if any
	Cause error
}

// Error returns the error message.
func (e *DomainError) Error() string {
	msg := fmt.Sprintf("[%s:%s] %s", e.ErrDomain, e.ErrCode, e.Message)

	switch {
	case e.PluginID != "" && e.Export != "":
		msg = fmt.Sprintf("%s (plugin: %s, export: %s)", msg, e.PluginID, e.Export)
	case e.PluginID != "":
		msg = fmt.Sprintf("%s (plugin: %s)", msg, e.PluginID)
	}

	if e.Path != "" {
		msg = fmt.Sprintf("%s (path: %s)", msg, e.Path)
	}

	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}

	return msg
}

// Unwrap returns the cause of this error
func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Domain returns the error domain.
func (e *DomainError) Domain() Domain {
	return e.ErrDomain
}

// Code returns the error code.
func (e *DomainError) Code() Code {
	return e.ErrCode
}

// New creates a new DomainError.
func New(domain Domain, code Code, message string) *DomainError {
	return &DomainError{
		ErrDomain: domain,
		ErrCode:   code,
		Message:   message,
	}
}

// Wrap wraps an error with domain context.
func Wrap(domain Domain, code Code, message string, err error) *DomainError {
	return &DomainError{
		ErrDomain: domain,
		ErrCode:   code,
		Message:   message,
		Cause:     err,
	}
}

// WithPlugin adds plugin context to a copy of the error
func (e *DomainError) WithPlugin(pluginID string) *DomainError {
	c := *e
	c.PluginID = pluginID
	return &c
}

// WithExport adds the export name to a copy of the error
func (e *DomainError) WithExport(export string) *DomainError {
	c := *e
	c.Export = export
	return &c
}

// WithPath adds the candidate path to a copy of the error
func (e *DomainError) WithPath(path string) *DomainError {
	c := *e
	c.Path = path
	return &c
}

// WithCause adds the causing error to a copy of the error
func (e *DomainError) WithCause(cause error) *DomainError {
	c := *e
	c.Cause = cause
	return &c
}

// WithDetails adds additional context details to a copy of the error
func (e *DomainError) WithDetails(details map[string]interface{}) *DomainError {
	c := *e
	c.Details = details
	return &c
}

// Is reports whether target is a DomainError with the same domain and code,
// which lets the sentinel values below be used with errors.Is.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.ErrDomain == t.ErrDomain && e.ErrCode == t.ErrCode
}

// Is checks if an error is a DomainError with the specified domain and code.
func Is(err error, domain Domain, code Code) bool {
	var de *DomainError
	if errors.As(err, &de) {
		return de.ErrDomain == domain && de.ErrCode == code
	}
	return false
}

// InDomain checks if an error is a DomainError of the given domain.
func InDomain(err error, domain Domain) bool {
	var de *DomainError
	if errors.As(err, &de) {
		return de.ErrDomain == domain
	}
	return false
}

// As is errors.As for DomainError.
func As(err error) (*DomainError, bool) {
	var de *DomainError
	ok := errors.As(err, &de)
	return de, ok
}

// IsMissingExport reports whether the call failed because the export does not exist.
func IsMissingExport(err error) bool {
	return Is(err, DomainInvocation, CodeExportNotFound)
}

// IsTrap reports whether the guest trapped during the call.
func IsTrap(err error) bool {
	return Is(err, DomainInvocation, CodeGuestTrap)
}

// IsTimeout reports whether the call was interrupted by its deadline or cancelled.
func IsTimeout(err error) bool {
	return InDomain(err, DomainTimeout)
}

// FromContext converts a finished context into a TimeoutError.
func FromContext(ctx context.Context) *DomainError {
	if ctx.Err() == context.DeadlineExceeded {
		return Wrap(DomainTimeout, CodeExecutionTimeout, "Plugin execution timed out", ctx.Err())
	}
	return Wrap(DomainTimeout, CodeExecutionCancelled, "Plugin execution was cancelled", ctx.Err())
}

// Common boot errors
var (
	ErrDirectoryUnreadable = New(DomainBoot, CodeDirectoryUnreadable, "Plugin directory is unreadable")
	ErrRuntimeInit         = New(DomainBoot, CodeRuntimeInitFailed, "Failed to initialize WebAssembly runtime")
)

// Common invocation errors
var (
	ErrPluginNotFound    = New(DomainInvocation, CodePluginNotFound, "Plugin not found")
	ErrPluginDisabled    = New(DomainInvocation, CodePluginDisabled, "Plugin is disabled")
	ErrExportNotFound    = New(DomainInvocation, CodeExportNotFound, "Export not found")
	ErrSignatureMismatch = New(DomainInvocation, CodeSignatureMismatch, "Export has an unexpected signature")
	ErrCircuitOpen       = New(DomainInvocation, CodeCircuitOpen, "Circuit breaker is open")
	ErrSandboxClosed     = New(DomainInvocation, CodeSandboxClosed, "Sandbox is closed")
)

// Common timeout errors
var (
	ErrExecutionTimeout = New(DomainTimeout, CodeExecutionTimeout, "Plugin execution timed out")
)
