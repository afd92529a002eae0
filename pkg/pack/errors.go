package pack

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorClass represents the classification of an error for retry and
// recovery logic.
type ErrorClass string

const (
	// ErrorClassTransient indicates a temporary failure that may succeed
	// on retry. Examples: registry timeouts, lock contention.
	ErrorClassTransient ErrorClass = "transient"

	// ErrorClassConflict indicates a state conflict, such as an
	// operation that would violate the single-enabled-copy invariant.
	ErrorClassConflict ErrorClass = "conflict"

	// ErrorClassPermanent indicates a non-recoverable error.
	// Examples: unknown package, corrupt archive, permission denied.
	ErrorClassPermanent ErrorClass = "permanent"
)

// Error codes for programmatic handling.
const (
	ErrCodeNotFound       = "NOT_FOUND"
	ErrCodeConflict       = "CONFLICT"
	ErrCodeFetch          = "FETCH"
	ErrCodeExtract        = "EXTRACT"
	ErrCodeDependency     = "DEPENDENCY"
	ErrCodeCorruptCopy    = "CORRUPT_COPY"
	ErrCodeLockContention = "LOCK_CONTENTION"
	ErrCodePermission     = "PERMISSION"
	ErrCodeValidation     = "VALIDATION"
)

// PackError represents a classified error with package and operation
// context. Every error surfaced to the front end carries the affected
// package name and the operation attempted.
type PackError struct {
	// Class is the error classification for retry logic.
	Class ErrorClass `json:"class"`

	// Code is an error code for programmatic handling.
	Code string `json:"code,omitempty"`

	// Package is the normalized package name the error relates to.
	Package string `json:"package,omitempty"`

	// Operation is the operation being performed when the error occurred.
	Operation string `json:"operation,omitempty"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Slots enumerates the available disabled slots when an enable
	// selector does not resolve.
	Slots []string `json:"slots,omitempty"`

	// Err is the underlying error.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *PackError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", e.Class, e.Message)
	if e.Package != "" && e.Operation != "" {
		fmt.Fprintf(&b, " (package=%s, operation=%s)", e.Package, e.Operation)
	} else if e.Package != "" {
		fmt.Fprintf(&b, " (package=%s)", e.Package)
	}
	if len(e.Slots) > 0 {
		fmt.Fprintf(&b, " [available slots: %s]", strings.Join(e.Slots, ", "))
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %s", e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the underlying error for error chain inspection.
func (e *PackError) Unwrap() error {
	return e.Err
}

// Is implements error equality checking for errors.Is. Two PackErrors
// match when their class and code match.
func (e *PackError) Is(target error) bool {
	t, ok := target.(*PackError)
	if !ok {
		return false
	}
	return e.Class == t.Class && e.Code == t.Code
}

// WithPackage attaches the package name to the error.
func (e *PackError) WithPackage(name string) *PackError {
	e.Package = name
	return e
}

// WithOperation attaches the operation name to the error.
func (e *PackError) WithOperation(op string) *PackError {
	e.Operation = op
	return e
}

// WithSlots attaches the available disabled slots to the error.
func (e *PackError) WithSlots(slots []string) *PackError {
	e.Slots = slots
	return e
}

// NewNotFoundError creates an error for a missing package, version, or slot.
func NewNotFoundError(message string, err error) *PackError {
	return &PackError{Class: ErrorClassPermanent, Code: ErrCodeNotFound, Message: message, Err: err}
}

// NewConflictError creates an error for an operation that would violate a
// state invariant. Should be unreachable given correct transition logic,
// but guarded.
func NewConflictError(message string, err error) *PackError {
	return &PackError{Class: ErrorClassConflict, Code: ErrCodeConflict, Message: message, Err: err}
}

// NewFetchError creates an error for a failed registry resolve or download.
func NewFetchError(message string, err error) *PackError {
	return &PackError{Class: ErrorClassTransient, Code: ErrCodeFetch, Message: message, Err: err}
}

// NewExtractError creates an error for a failed archive extraction.
func NewExtractError(message string, err error) *PackError {
	return &PackError{Class: ErrorClassPermanent, Code: ErrCodeExtract, Message: message, Err: err}
}

// NewDependencyError creates an error for a failed dependency-install step.
func NewDependencyError(message string, err error) *PackError {
	return &PackError{Class: ErrorClassPermanent, Code: ErrCodeDependency, Message: message, Err: err}
}

// NewCorruptCopyError creates an error for a copy with unreadable or
// inconsistent tracking metadata.
func NewCorruptCopyError(message string, err error) *PackError {
	return &PackError{Class: ErrorClassPermanent, Code: ErrCodeCorruptCopy, Message: message, Err: err}
}

// NewLockContentionError creates an error for a mutating operation that
// lost the per-package lock to another in-flight operation.
func NewLockContentionError(message string) *PackError {
	return &PackError{Class: ErrorClassTransient, Code: ErrCodeLockContention, Message: message}
}

// NewPermissionError creates an error for denied filesystem access.
func NewPermissionError(message string, err error) *PackError {
	return &PackError{Class: ErrorClassPermanent, Code: ErrCodePermission, Message: message, Err: err}
}

// NewValidationError creates an error for an invalid request.
func NewValidationError(message string, err error) *PackError {
	return &PackError{Class: ErrorClassPermanent, Code: ErrCodeValidation, Message: message, Err: err}
}

// IsCode reports whether err is a PackError carrying the given code.
func IsCode(err error, code string) bool {
	var pe *PackError
	if errors.As(err, &pe) {
		return pe.Code == code
	}
	return false
}
