package service

import "errors"

// Error kinds. Engines wrap these in an Error carrying the exact
// client-facing message; handlers match with errors.Is.
var (
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrNotFound         = errors.New("not found")
	ErrValidation       = errors.New("validation failed")
	// ErrInfo marks a valid no-op outcome reported to the caller as an
	// "info" event rather than an "error" event.
	ErrInfo = errors.New("info")
)

// Error pairs an error kind with the message sent back to the
// initiating connection. Errors never reach other participants.
type Error struct {
	kind error
	msg  string
}

func (e *Error) Error() string { return e.msg }
func (e *Error) Unwrap() error { return e.kind }

func notAuthenticated() error {
	return &Error{kind: ErrNotAuthenticated, msg: "Not authenticated"}
}

func unauthorized(msg string) error {
	return &Error{kind: ErrUnauthorized, msg: msg}
}

func notFound(msg string) error {
	return &Error{kind: ErrNotFound, msg: msg}
}

func invalid(msg string) error {
	return &Error{kind: ErrValidation, msg: msg}
}

func info(msg string) error {
	return &Error{kind: ErrInfo, msg: msg}
}
