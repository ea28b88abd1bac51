package domain

import "fmt"

// Error types for consistent error handling across the edge service.

// ErrNotFound indicates a resource was not found.
type ErrNotFound struct {
	Resource string
	ID       string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ErrExternalService indicates a failure in an external service call.
// The gate treats it as transient: anonymous-tolerant routes pass,
// identity-requiring routes fail closed.
type ErrExternalService struct {
	Service string
	Err     error
}

func (e *ErrExternalService) Error() string {
	return fmt.Sprintf("external service error [%s]: %v", e.Service, e.Err)
}

func (e *ErrExternalService) Unwrap() error {
	return e.Err
}

// ErrTimeout indicates an operation exceeded its deadline.
type ErrTimeout struct {
	Operation string
}

func (e *ErrTimeout) Error() string {
	return fmt.Sprintf("operation timed out: %s", e.Operation)
}

// ErrCircuitOpen indicates the circuit breaker is open.
type ErrCircuitOpen struct {
	Service string
}

func (e *ErrCircuitOpen) Error() string {
	return fmt.Sprintf("circuit breaker open for service: %s", e.Service)
}

// ErrValidation indicates a validation error (bad input).
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error on '%s': %s", e.Field, e.Message)
}

// ErrUnauthorized indicates invalid credentials or token.
type ErrUnauthorized struct {
	Message string
}

func (e *ErrUnauthorized) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "unauthorized"
}

// ErrIdentityGone indicates the session references an identity that no
// longer exists. Fatal: credentials must be cleared and the caller
// treated as anonymous.
type ErrIdentityGone struct {
	UserID string
}

func (e *ErrIdentityGone) Error() string {
	return fmt.Sprintf("identity no longer exists: %s", e.UserID)
}

// ErrSessionExpired indicates a refresh-token-class failure. Recoverable:
// one silent refresh is attempted before degrading to anonymous.
type ErrSessionExpired struct{}

func (e *ErrSessionExpired) Error() string {
	return "session expired or invalid"
}

// ErrModeMismatch indicates a login with a desired mode the stored role
// does not permit. User-facing and non-retryable without different
// credentials or an explicit upgrade; never reinterpreted as success.
type ErrModeMismatch struct {
	Have Role
	Want Mode
}

func (e *ErrModeMismatch) Error() string {
	return fmt.Sprintf("account role %q does not permit %q login", e.Have, e.Want)
}

// ErrModeNotPermitted indicates an attempt to activate a mode the role
// does not allow.
type ErrModeNotPermitted struct {
	Role   Role
	Target Mode
}

func (e *ErrModeNotPermitted) Error() string {
	return fmt.Sprintf("role %q does not permit switching to %q", e.Role, e.Target)
}

// ErrDuplicateAccount indicates registration against an existing email.
// SameMode distinguishes a hard duplicate from a different-mode signup,
// where an upgrade path exists instead.
type ErrDuplicateAccount struct {
	Email    string
	SameMode bool
}

func (e *ErrDuplicateAccount) Error() string {
	if e.SameMode {
		return "an account of this type already exists for this email"
	}
	return "this email already has an account of the other type; switch modes or upgrade instead"
}

// ErrStepOutOfOrder indicates a wizard write inconsistent with the
// monotonic step order: saving a step the user has not reached. The
// step field never regresses; there is no reset.
type ErrStepOutOfOrder struct {
	Position Step
	Saved    Step
}

func (e *ErrStepOutOfOrder) Error() string {
	return fmt.Sprintf("step %q cannot be saved from position %q", e.Saved, e.Position)
}
