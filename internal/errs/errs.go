// Package errs defines the lobby's error taxonomy.
//
// Every failure that crosses the request boundary carries a Kind and a
// user-visible Reason. The dispatcher turns these into
// {"status":"error","reason":...} replies; only stream-level failures end a
// connection.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies a failure.
type Kind int

const (
	KindUnknown Kind = iota
	KindProtocol
	KindTransfer
	KindAuth
	KindVersion
	KindCapacity
	KindNotFound
	KindPermission
	KindLaunch
	KindInvalid
	KindInternal
)

var kindNames = map[Kind]string{
	KindUnknown:    "unknown",
	KindProtocol:   "protocol",
	KindTransfer:   "transfer",
	KindAuth:       "auth",
	KindVersion:    "version",
	KindCapacity:   "capacity",
	KindNotFound:   "not_found",
	KindPermission: "permission",
	KindLaunch:     "launch",
	KindInvalid:    "invalid",
	KindInternal:   "internal",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Error is a classified failure. Reason is safe to show to the client; Err is
// the underlying cause and is only logged.
type Error struct {
	Kind   Kind
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

func (e *Error) Unwrap() error { return e.Err }

// New creates an Error of the given kind.
func New(kind Kind, reason string) *Error {
	return &Error{Kind: kind, Reason: reason}
}

// Newf creates an Error with a formatted reason.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Reason: fmt.Sprintf(format, args...)}
}

// Wrap creates an Error that keeps err as its cause.
func Wrap(kind Kind, reason string, err error) *Error {
	return &Error{Kind: kind, Reason: reason, Err: err}
}

// Shorthands for the kinds raised outside the lobby package.

func Protocol(reason string, err error) *Error { return Wrap(KindProtocol, reason, err) }
func Transfer(reason string, err error) *Error { return Wrap(KindTransfer, reason, err) }
func Auth(reason string) *Error                { return New(KindAuth, reason) }
func NotFound(reason string) *Error            { return New(KindNotFound, reason) }
func Invalid(reason string) *Error             { return New(KindInvalid, reason) }
func Internal(err error) *Error                { return Wrap(KindInternal, "internal server error", err) }

// KindOf returns the Kind of the first *Error in err's chain, or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Reason returns the user-visible message for err. Unclassified errors are
// never echoed to clients.
func Reason(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Reason != "" {
		return e.Reason
	}
	return "internal server error"
}
