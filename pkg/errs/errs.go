// Package errs defines the error taxonomy shared by every runtime backend:
// validation, permission, backend, timeout, not-found, state, transfer and
// build errors. BackendError and BuildError wrap an underlying cause
// (Unwrap); every kind is distinguishable with errors.As so callers can
// branch on failure class without parsing strings.
package errs

import "fmt"

// ValidationError means a ContainerSpec or builder input failed validation
// before any backend call was attempted.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Message)
}

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// PermissionError means a Kubernetes access-review pre-flight denied the
// verb/resource combination a runtime was about to attempt.
type PermissionError struct {
	Verb     string
	Resource string
	Reason   string
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("permission denied: %s %s: %s", e.Verb, e.Resource, e.Reason)
}

func NewPermissionError(verb, resource, reason string) *PermissionError {
	return &PermissionError{Verb: verb, Resource: resource, Reason: reason}
}

// BackendError wraps an error returned by the Docker daemon API or the
// Kubernetes API server.
type BackendError struct {
	Backend string // "docker" or "kubernetes"
	Op      string
	Err     error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("%s backend: %s: %v", e.Backend, e.Op, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

func NewBackendError(backend, op string, err error) *BackendError {
	return &BackendError{Backend: backend, Op: op, Err: err}
}

// TimeoutError means a blocking wait exceeded its configured budget.
type TimeoutError struct {
	Op      string
	Timeout string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timeout: %s exceeded %s", e.Op, e.Timeout)
}

func NewTimeoutError(op, timeout string) *TimeoutError {
	return &TimeoutError{Op: op, Timeout: timeout}
}

// NotFoundError means a lookup (volume, network, pod, file) found nothing.
type NotFoundError struct {
	Kind string
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.Name)
}

func NewNotFoundError(kind, name string) *NotFoundError {
	return &NotFoundError{Kind: kind, Name: name}
}

// StateError means the caller requested an operation that the container's
// current state does not permit, or requested an illegal state transition.
type StateError struct {
	Op       string
	State    string
	Required string
}

func (e *StateError) Error() string {
	if e.Required == "" {
		return fmt.Sprintf("illegal state transition from %s via %s", e.State, e.Op)
	}
	return fmt.Sprintf("%s requires state %s, got %s", e.Op, e.Required, e.State)
}

func NewStateError(op, state, required string) *StateError {
	return &StateError{Op: op, State: state, Required: required}
}

// TransferError means a file-transfer exec (cat/tar over exec, or a Docker
// archive call) returned a non-zero exit code or unexpected stderr.
type TransferError struct {
	Op       string
	ExitCode int
	Stderr   string
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("transfer: %s failed (exit %d): %s", e.Op, e.ExitCode, e.Stderr)
}

func NewTransferError(op string, exitCode int, stderr string) *TransferError {
	return &TransferError{Op: op, ExitCode: exitCode, Stderr: stderr}
}

// BuildError means a Kaniko job or daemon build Job failed.
type BuildError struct {
	Builder string // "kaniko", "daemon" or "verify"
	Reason  string
	Err     error
}

func (e *BuildError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s build failed: %s: %v", e.Builder, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s build failed: %s", e.Builder, e.Reason)
}

func (e *BuildError) Unwrap() error { return e.Err }

func NewBuildError(builder, reason string, err error) *BuildError {
	return &BuildError{Builder: builder, Reason: reason, Err: err}
}
