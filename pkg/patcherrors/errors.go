// Package patcherrors defines the stable error taxonomy reported to the host
// agent and used internally for retry classification. Codes are part of the
// wire contract (they appear in StatusFile.status.code / substatus.code) and
// must not be renumbered once released.
package patcherrors

import "fmt"

// Code is a stable error classification. Values must never be renumbered.
type Code int

const (
	// DefaultError is the zero-value, unclassified error code.
	DefaultError Code = iota
	// OperationFailed covers a failed assessment/installation/configure run
	// that does not fall into a more specific category.
	OperationFailed
	// PackageManagerFailure wraps a fatal, non-retryable package-manager exit.
	PackageManagerFailure
	// UaEsmRequired marks a package version only available under an Ubuntu
	// Advantage / Extended Security Maintenance contract.
	UaEsmRequired
	// TruncationApplied records that the status file was shrunk to fit the
	// host-facing size budget; reported as an informational error entry.
	TruncationApplied
	// ConfigInvalid marks a runtime-settings or static-configuration
	// validation failure. Fatal at startup.
	ConfigInvalid
	// TelemetryNotSupported marks an environment where performance telemetry
	// could not be collected; the run continues without it.
	TelemetryNotSupported
)

func (c Code) String() string {
	switch c {
	case DefaultError:
		return "DefaultError"
	case OperationFailed:
		return "OperationFailed"
	case PackageManagerFailure:
		return "PackageManagerFailure"
	case UaEsmRequired:
		return "UaEsmRequired"
	case TruncationApplied:
		return "TruncationApplied"
	case ConfigInvalid:
		return "ConfigInvalid"
	case TelemetryNotSupported:
		return "TelemetryNotSupported"
	default:
		return "Unknown"
	}
}

// PatchError is the concrete error type carried through the orchestrator.
// Callers branch on Code via errors.As rather than string matching.
type PatchError struct {
	Code    Code
	Message string
	Err     error
}

func (e *PatchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *PatchError) Unwrap() error {
	return e.Err
}

func New(code Code, message string) *PatchError {
	return &PatchError{Code: code, Message: message}
}

func Wrap(code Code, message string, err error) *PatchError {
	return &PatchError{Code: code, Message: message, Err: err}
}

// OperationFailedError reports a failed operation at the top-level status.
type OperationFailedError struct{ *PatchError }

func NewOperationFailed(message string, err error) *OperationFailedError {
	return &OperationFailedError{Wrap(OperationFailed, message, err)}
}

// PackageManagerFailureError reports a fatal, non-retryable package-manager exit.
type PackageManagerFailureError struct {
	*PatchError
	ExitCode int
	Family   string
}

func NewPackageManagerFailure(family string, exitCode int, message string, err error) *PackageManagerFailureError {
	return &PackageManagerFailureError{
		PatchError: Wrap(PackageManagerFailure, message, err),
		ExitCode:   exitCode,
		Family:     family,
	}
}

// UaEsmRequiredError marks a package version gated behind Extended Security
// Maintenance. The sentinel version string is "UA_ESM_REQUIRED".
type UaEsmRequiredError struct {
	*PatchError
	PackageName string
}

func NewUaEsmRequired(packageName string) *UaEsmRequiredError {
	return &UaEsmRequiredError{
		PatchError:  New(UaEsmRequired, "package version requires an Extended Security Maintenance contract"),
		PackageName: packageName,
	}
}

// ConfigInvalidError marks a validation failure in runtime settings or static
// configuration, fatal at startup.
type ConfigInvalidError struct{ *PatchError }

func NewConfigInvalid(message string, err error) *ConfigInvalidError {
	return &ConfigInvalidError{Wrap(ConfigInvalid, message, err)}
}

// TelemetryNotSupportedError marks an environment where performance
// telemetry collection is unavailable; non-fatal.
type TelemetryNotSupportedError struct{ *PatchError }

func NewTelemetryNotSupported(message string) *TelemetryNotSupportedError {
	return &TelemetryNotSupportedError{New(TelemetryNotSupported, message)}
}
