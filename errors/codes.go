package errors

// Code classifies an Error. It also determines the HTTP status and the log
// level an error is reported with.
type Code string

const (
	ErrAborted       Code = "aborted"
	ErrBadRequest    Code = "bad-request"
	ErrCommunication Code = "communication"
	ErrFatal         Code = "fatal"
	// ErrForbidden is used when the caller is authenticated but lacks the
	// permissions for the requested operation.
	ErrForbidden Code = "forbidden"
	ErrInternal  Code = "internal"
	ErrNotFound  Code = "not-found"
	// ErrProtocolViolation is used when a websocket client sends messages that
	// are not allowed.
	ErrProtocolViolation Code = "protocol-violation"
	// ErrUnauthorized is used for missing or invalid credentials and sessions.
	ErrUnauthorized Code = "unauthorized"
	ErrUnexpected   Code = "unexpected"
)
