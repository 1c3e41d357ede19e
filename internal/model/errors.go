package model

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures so callers can react without string matching.
type ErrorKind int

const (
	// KindConnection covers an unreachable bus or a failed bus call.
	KindConnection ErrorKind = iota + 1
	// KindNotFound means the player service or daemon process was not found.
	KindNotFound
	// KindNotConnected means a command was issued before Connect succeeded.
	KindNotConnected
	// KindBinaryMissing means the daemon executable could not be located.
	KindBinaryMissing
	// KindSpawn covers fork/exec failures while starting the daemon.
	KindSpawn
	// KindExitedEarly means the daemon died during the post-spawn settle delay.
	KindExitedEarly
	// KindRegistrationTimeout means the daemon never appeared on the bus.
	KindRegistrationTimeout
	// KindInvalidArgument covers bad caller input.
	KindInvalidArgument
)

// String returns the kind name.
func (k ErrorKind) String() string {
	switch k {
	case KindConnection:
		return "connection"
	case KindNotFound:
		return "not found"
	case KindNotConnected:
		return "not connected"
	case KindBinaryMissing:
		return "binary missing"
	case KindSpawn:
		return "spawn"
	case KindExitedEarly:
		return "exited early"
	case KindRegistrationTimeout:
		return "registration timeout"
	case KindInvalidArgument:
		return "invalid argument"
	default:
		return "unknown"
	}
}

// Error is the typed error returned by the controller and supervisor.
type Error struct {
	Kind    ErrorKind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same kind. This lets the
// sentinels below match any error of their kind via errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Op == "" && t.Err == nil
}

// Sentinels for errors.Is.
var (
	ErrNotConnected        = &Error{Kind: KindNotConnected, Message: "not connected to player"}
	ErrPlayerNotFound      = &Error{Kind: KindNotFound, Message: "player not found"}
	ErrDaemonNotFound      = &Error{Kind: KindNotFound, Message: "daemon not found"}
	ErrBinaryMissing       = &Error{Kind: KindBinaryMissing, Message: "daemon binary not found"}
	ErrRegistrationTimeout = &Error{Kind: KindRegistrationTimeout, Message: "bus registration timeout"}
)

// NewError builds an *Error wrapping err.
func NewError(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf builds an *Error with a formatted message.
func Errorf(kind ErrorKind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of err if it is (or wraps) an *Error, else 0.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}
