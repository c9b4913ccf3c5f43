package dispatch

import (
	"errors"
	"fmt"
	"time"

	"github.com/keshon/charmbot/internal/ratelimit"
)

// Kind tags an Error.
type Kind int

const (
	KindNotFound Kind = iota + 1
	KindPermissionDenied
	KindRateLimited
	KindSecurityViolation
	KindExecutionFailed
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindPermissionDenied:
		return "permission_denied"
	case KindRateLimited:
		return "rate_limited"
	case KindSecurityViolation:
		return "security_violation"
	case KindExecutionFailed:
		return "execution_failed"
	default:
		return "unknown"
	}
}

// Error is the single error type leaving the dispatch pipeline. Which fields
// are meaningful depends on Kind: NotFound always carries a non-nil
// Suggestions slice, RateLimited carries Limit and RetryAfter, and
// SecurityViolation and ExecutionFailed carry the underlying Cause, which is
// logged but never shown to the user.
type Error struct {
	Kind        Kind
	Command     string
	UserID      string
	Suggestions []string
	Limit       ratelimit.Kind
	RetryAfter  time.Duration
	Cause       error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("dispatch: %s", e.Kind)
	if e.Command != "" {
		msg += fmt.Sprintf(" command=%q", e.Command)
	}
	if e.UserID != "" {
		msg += " user=" + e.UserID
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Cause }

func notFound(command, userID string, suggestions []string) *Error {
	if suggestions == nil {
		suggestions = []string{}
	}
	return &Error{Kind: KindNotFound, Command: command, UserID: userID, Suggestions: suggestions}
}

func permissionDenied(command, userID string) *Error {
	return &Error{Kind: KindPermissionDenied, Command: command, UserID: userID}
}

func rateLimited(command, userID string, cause error) *Error {
	e := &Error{Kind: KindRateLimited, Command: command, UserID: userID, Cause: cause}
	var le *ratelimit.LimitError
	if errors.As(cause, &le) {
		e.Limit = le.Kind
		e.RetryAfter = le.Remaining
	}
	return e
}

func securityViolation(command, userID string, cause error) *Error {
	return &Error{Kind: KindSecurityViolation, Command: command, UserID: userID, Cause: cause}
}

func executionFailed(command, userID string, cause error) *Error {
	return &Error{Kind: KindExecutionFailed, Command: command, UserID: userID, Cause: cause}
}

// KindOf returns the Kind of a dispatch error, or 0.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return 0
}
