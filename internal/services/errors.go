package services

import (
	"errors"
	"fmt"
)

// ErrorKind classifies service failures for the HTTP layer
type ErrorKind int

const (
	KindInternal ErrorKind = iota
	KindUnauthorized
	KindNotFound
	KindForbidden
	KindInvalidArgument
	KindConflict
	KindInvalidState
	KindServiceUnavailable
	KindUpstreamError
	KindRateLimited
	KindVerificationNotFound
)

// String returns the stable code sent to clients
func (k ErrorKind) String() string {
	switch k {
	case KindUnauthorized:
		return "unauthorized"
	case KindNotFound:
		return "not_found"
	case KindForbidden:
		return "forbidden"
	case KindInvalidArgument:
		return "invalid_argument"
	case KindConflict:
		return "conflict"
	case KindInvalidState:
		return "invalid_state"
	case KindServiceUnavailable:
		return "service_unavailable"
	case KindUpstreamError:
		return "upstream_error"
	case KindRateLimited:
		return "rate_limited"
	case KindVerificationNotFound:
		return "verification_not_found"
	default:
		return "internal"
	}
}

// Hosting sequence step names carried by upstream errors
const (
	StepResolveDefaultBranch = "resolve_default_branch"
	StepResolveHead          = "resolve_head"
	StepCreateBranch         = "create_branch"
	StepProbeFile            = "probe_file"
	StepCommitFile           = "commit_file"
	StepCreatePullRequest    = "create_pull_request"
)

// ServiceError is a classified failure surfaced to callers
type ServiceError struct {
	Kind    ErrorKind
	Message string
	Step    string // hosting sequence step, set for upstream failures
	Cause   error
}

func (e *ServiceError) Error() string {
	msg := e.Message
	if e.Step != "" {
		msg = fmt.Sprintf("%s (step: %s)", msg, e.Step)
	}
	if e.Cause != nil && e.Cause.Error() != e.Message {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *ServiceError) Unwrap() error {
	return e.Cause
}

// KindOf returns the kind of err, or KindInternal for unclassified errors
func KindOf(err error) ErrorKind {
	var svcErr *ServiceError
	if errors.As(err, &svcErr) {
		return svcErr.Kind
	}
	return KindInternal
}

// PublicMessage returns a message safe to show clients
func PublicMessage(err error) string {
	var svcErr *ServiceError
	if errors.As(err, &svcErr) && svcErr.Kind != KindInternal {
		if svcErr.Step != "" {
			return fmt.Sprintf("%s (step: %s)", svcErr.Message, svcErr.Step)
		}
		return svcErr.Message
	}
	return "Internal server error"
}

func newError(kind ErrorKind, format string, args ...any) *ServiceError {
	return &ServiceError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func ErrUnauthorized(msg string) error {
	return newError(KindUnauthorized, "%s", msg)
}

func ErrNotFound(format string, args ...any) error {
	return newError(KindNotFound, format, args...)
}

func ErrForbidden(format string, args ...any) error {
	return newError(KindForbidden, format, args...)
}

func ErrInvalidArgument(format string, args ...any) error {
	return newError(KindInvalidArgument, format, args...)
}

func ErrConflict(format string, args ...any) error {
	return newError(KindConflict, format, args...)
}

func ErrInvalidState(format string, args ...any) error {
	return newError(KindInvalidState, format, args...)
}

func ErrServiceUnavailable(format string, args ...any) error {
	return newError(KindServiceUnavailable, format, args...)
}

func ErrRateLimited(format string, args ...any) error {
	return newError(KindRateLimited, format, args...)
}

func ErrVerificationNotFound(format string, args ...any) error {
	return newError(KindVerificationNotFound, format, args...)
}

// ErrUpstream wraps a collaborator failure, naming the step that failed
func ErrUpstream(step string, cause error) error {
	// Rate limiting reported by the collaborator keeps its own kind
	if KindOf(cause) == KindRateLimited {
		return &ServiceError{Kind: KindRateLimited, Message: PublicMessage(cause), Step: step, Cause: cause}
	}
	return &ServiceError{Kind: KindUpstreamError, Message: cause.Error(), Step: step, Cause: cause}
}

// ErrInternal wraps an unexpected failure
func ErrInternal(msg string, cause error) error {
	return &ServiceError{Kind: KindInternal, Message: msg, Cause: cause}
}
