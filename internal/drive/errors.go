package drive

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Sentinel errors for remote rejection classification.
// Use errors.Is(err, drive.ErrNotFound) to check.
var (
	ErrBadRequest   = errors.New("drive: bad request")
	ErrUnauthorized = errors.New("drive: unauthorized")
	ErrForbidden    = errors.New("drive: forbidden")
	ErrNotFound     = errors.New("drive: not found")
	ErrConflict     = errors.New("drive: conflict")
	ErrGone         = errors.New("drive: resource gone")
	ErrThrottled    = errors.New("drive: throttled")
	ErrLocked       = errors.New("drive: resource locked")
	ErrQuota        = errors.New("drive: insufficient storage")
	ErrServerError  = errors.New("drive: server error")
	ErrRejected     = errors.New("drive: request rejected")
)

// Sentinels for local state violations.
var (
	ErrSessionClosed = errors.New("drive: file session closed")
	ErrDriveClosed   = errors.New("drive: drive closed")
	ErrNotPublished  = errors.New("drive: applied but not published")
	ErrJobFinished   = errors.New("drive: job already reached a terminal state")
)

// ErrEndpointDown marks a connection-level failure talking to a specific
// daemon endpoint. Backends wrap transport errors with it so the dispatcher
// can classify them as EndpointUnreachable.
var ErrEndpointDown = errors.New("drive: endpoint connection failed")

// AuthCause narrows down why token acquisition failed.
type AuthCause int

// Auth failure causes.
const (
	AuthCauseUnknown AuthCause = iota
	AuthCauseNetwork
	AuthCauseInvalidGrant
)

func (c AuthCause) String() string {
	switch c {
	case AuthCauseNetwork:
		return "network"
	case AuthCauseInvalidGrant:
		return "invalid-grant"
	default:
		return "unknown"
	}
}

// AuthError reports that a bearer token could not be acquired or refreshed,
// or that a freshly refreshed token was still rejected.
type AuthError struct {
	Cause AuthCause
	Err   error
}

func (e *AuthError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("drive: authentication failed (%s)", e.Cause)
	}

	return fmt.Sprintf("drive: authentication failed (%s): %v", e.Cause, e.Err)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// EndpointUnreachableError reports that no candidate endpoint answered.
// Tried lists the addresses that were probed or used in this episode.
type EndpointUnreachableError struct {
	Tried []string
	Err   error
}

func (e *EndpointUnreachableError) Error() string {
	msg := "drive: no endpoint reachable"
	if len(e.Tried) > 0 {
		msg += " (tried " + strings.Join(e.Tried, ", ") + ")"
	}

	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}

	return msg
}

func (e *EndpointUnreachableError) Unwrap() error {
	return e.Err
}

// RemoteRejectedError wraps a non-success response with its HTTP status,
// the remote's error code (or one derived from the status), and the message
// body for diagnostics. Status is zero when the refusal came from a job
// status resource rather than a response code.
type RemoteRejectedError struct {
	Status    int
	Code      string
	Message   string
	RequestID string
}

func (e *RemoteRejectedError) Error() string {
	var b strings.Builder

	if e.Status == 0 {
		b.WriteString("drive: remote rejected")
	} else {
		fmt.Fprintf(&b, "drive: HTTP %d", e.Status)
	}

	if e.Code != "" {
		fmt.Fprintf(&b, " [%s]", e.Code)
	}

	if e.RequestID != "" {
		fmt.Fprintf(&b, " (request-id: %s)", e.RequestID)
	}

	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}

	return b.String()
}

// Unwrap returns the sentinel matching the status code so that callers can
// use errors.Is(err, drive.ErrNotFound).
func (e *RemoteRejectedError) Unwrap() error {
	return classifyStatus(e.Status)
}

// StatusCode derives a stable error code from an HTTP status, used when the
// remote body carries no code of its own.
func StatusCode(status int) string {
	return fmt.Sprintf("http_%d", status)
}

// classifyStatus maps an HTTP status code to a sentinel error.
func classifyStatus(code int) error {
	switch code {
	case http.StatusBadRequest:
		return ErrBadRequest
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusConflict:
		return ErrConflict
	case http.StatusGone:
		return ErrGone
	case http.StatusTooManyRequests:
		return ErrThrottled
	case http.StatusLocked:
		return ErrLocked
	case http.StatusInsufficientStorage:
		return ErrQuota
	default:
		if code >= http.StatusInternalServerError {
			return ErrServerError
		}

		return ErrRejected
	}
}

// DecodeError reports a success response whose body did not have the
// expected shape. It is never retried.
type DecodeError struct {
	What string
	Err  error
}

func (e *DecodeError) Error() string {
	if e.Err == nil {
		return "drive: decoding " + e.What
	}

	return fmt.Sprintf("drive: decoding %s: %v", e.What, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// TimeoutError reports that an asynchronous job did not reach a terminal
// state within its bound. The remote operation may still complete.
type TimeoutError struct {
	Op     string
	Waited time.Duration
	Polls  int
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("drive: %s did not finish within %s after %d polls; the remote operation may or may not have completed",
		e.Op, e.Waited, e.Polls)
}

// InvalidArgumentError reports a caller-supplied value that violates a
// precondition (bad path, negative offset, write on a read-only session).
type InvalidArgumentError struct {
	Arg    string
	Reason string
}

func (e *InvalidArgumentError) Error() string {
	return fmt.Sprintf("drive: invalid %s: %s", e.Arg, e.Reason)
}

// NotPublishedError reports that a mutation was applied on the daemon but
// the follow-up publish failed, so other parties cannot see it yet.
type NotPublishedError struct {
	Op  string
	Err error
}

func (e *NotPublishedError) Error() string {
	return fmt.Sprintf("drive: %s applied but not published: %v", e.Op, e.Err)
}

// Is matches ErrNotPublished.
func (e *NotPublishedError) Is(target error) bool {
	return target == ErrNotPublished
}

func (e *NotPublishedError) Unwrap() error {
	return e.Err
}

// IsApplied reports whether err still means the mutation took effect:
// either no error, or an applied-but-not-published outcome.
func IsApplied(err error) bool {
	return err == nil || errors.Is(err, ErrNotPublished)
}

// invalidArg is shorthand for building an InvalidArgumentError.
func invalidArg(arg, reason string) error {
	return &InvalidArgumentError{Arg: arg, Reason: reason}
}
