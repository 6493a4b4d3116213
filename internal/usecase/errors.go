package usecase

import (
	"errors"
	"fmt"
	"strings"
)

type ErrorCode string

const (
	ErrorInvalidInput   ErrorCode = "INVALID_INPUT"
	ErrorConfiguration  ErrorCode = "CONFIGURATION_ERROR"
	ErrorUpstream       ErrorCode = "UPSTREAM_ERROR"
	ErrorAuthentication ErrorCode = "AUTHENTICATION_ERROR"
)

const (
	ReasonInvalidBody            = "invalid_body"
	ReasonMissingMessage         = "missing_message"
	ReasonEmptyAfterSanitization = "empty_after_sanitization"
	ReasonAgentNotConfigured     = "agent_not_configured"
	ReasonAgentAuthFailed        = "agent_auth_failed"
	ReasonAgentRequestFailed     = "agent_request_failed"
)

// Messages shown to callers. Nothing else about a failure leaves the process.
const (
	MessageInvalidMessage         = "Valid message is required"
	MessageEmptyAfterSanitization = "Message cannot be empty after sanitization"
	MessageAuthenticationFailed   = "Authentication failed. Please check your configuration."
	MessageUnavailable            = "I'm having trouble processing your request right now. Please try again."
)

// credentialMarker identifies an authentication failure reported by the agent.
const credentialMarker = "invalid access token"

type Error struct {
	Code   ErrorCode
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("usecase: %s (%s)", e.Code, e.Reason)
	}
	return fmt.Sprintf("usecase: %s (%s): %v", e.Code, e.Reason, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// PublicMessage returns the text safe to show the caller for this error.
func (e *Error) PublicMessage() string {
	switch e.Code {
	case ErrorInvalidInput:
		if e.Reason == ReasonEmptyAfterSanitization {
			return MessageEmptyAfterSanitization
		}
		return MessageInvalidMessage
	case ErrorAuthentication:
		return MessageAuthenticationFailed
	default:
		return MessageUnavailable
	}
}

func newError(code ErrorCode, reason string, err error) *Error {
	return &Error{Code: code, Reason: reason, Err: err}
}

// AsError converts any error into an *Error. Unknown errors become upstream
// failures so they are never rendered verbatim.
func AsError(err error) *Error {
	var ucErr *Error
	if errors.As(err, &ucErr) {
		return ucErr
	}
	return newError(ErrorUpstream, ReasonAgentRequestFailed, err)
}

// isAuthFailure reports whether any error in err's chain mentions a rejected
// credential, or carries a 401/403 upstream status. The chain is walked
// because wrapping errors may replace the message with a generic one.
func isAuthFailure(err error) bool {
	for e := err; e != nil; e = errors.Unwrap(e) {
		if strings.Contains(strings.ToLower(e.Error()), credentialMarker) {
			return true
		}
	}
	if status, ok := upstreamStatusCode(err); ok {
		return status == 401 || status == 403
	}
	return false
}

type httpStatusCoder interface {
	HTTPStatusCode() int
}

func upstreamStatusCode(err error) (int, bool) {
	var statusErr httpStatusCoder
	if !errors.As(err, &statusErr) {
		return 0, false
	}
	return statusErr.HTTPStatusCode(), true
}
