package core

import "errors"

// Error codes for domain errors.
const (
	ErrCodeAuthRequired      = "auth_required"
	ErrCodeNotConnected      = "not_connected"
	ErrCodeNetwork           = "network_failure"
	ErrCodeMalformedResponse = "malformed_response"
	ErrCodeConflict          = "conflict"
	ErrCodeBadRequest        = "bad_request"
	ErrCodeUnknown           = "unknown"
)

var (
	// ErrAuthRequired means there is no usable token; the caller must authenticate.
	ErrAuthRequired = errors.New("authentication required")
	// ErrNotConnected is returned by operations that need an open room connection.
	ErrNotConnected = errors.New("no active chat connection")
	// ErrNetwork marks transient transport failures.
	ErrNetwork = errors.New("network failure")
	// ErrMalformedResponse marks payloads that do not have the expected shape.
	ErrMalformedResponse = errors.New("malformed response")
	// ErrConflict is returned when a chat room with the same participants already exists.
	ErrConflict = errors.New("chat room already exists")
	// ErrBadRequest covers local validation failures.
	ErrBadRequest = errors.New("bad request")

	ErrNoToken       = &CoreError{Code: ErrCodeAuthRequired, Message: "no auth token", err: ErrAuthRequired}
	ErrNoRoomID      = &CoreError{Code: ErrCodeBadRequest, Message: "room id is required", err: ErrBadRequest}
	ErrEmptyMessage  = &CoreError{Code: ErrCodeBadRequest, Message: "message needs content or an image", err: ErrBadRequest}
	ErrEmptyImage    = &CoreError{Code: ErrCodeBadRequest, Message: "image is empty", err: ErrBadRequest}
	ErrImageTooLarge = &CoreError{Code: ErrCodeBadRequest, Message: "image exceeds size limit", err: ErrBadRequest}
	ErrNotImage      = &CoreError{Code: ErrCodeBadRequest, Message: "file is not an image", err: ErrBadRequest}
	ErrSuperseded    = &CoreError{Code: ErrCodeNotConnected, Message: "connection superseded by a newer open", err: ErrNotConnected}
	ErrClosed        = &CoreError{Code: ErrCodeNotConnected, Message: "session closed", err: ErrNotConnected}
)

// CoreError wraps a code and human-readable message.
type CoreError struct {
	Code    string
	Message string
	err     error
}

func (e *CoreError) Error() string {
	return e.Message
}

// Unwrap exposes the taxonomy sentinel so errors.Is(err, ErrAuthRequired) works.
func (e *CoreError) Unwrap() error {
	return e.err
}

// CodeOf maps any error onto the domain error codes.
func CodeOf(err error) string {
	var ce *CoreError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &ce):
		return ce.Code
	case errors.Is(err, ErrAuthRequired):
		return ErrCodeAuthRequired
	case errors.Is(err, ErrNotConnected):
		return ErrCodeNotConnected
	case errors.Is(err, ErrNetwork):
		return ErrCodeNetwork
	case errors.Is(err, ErrMalformedResponse):
		return ErrCodeMalformedResponse
	case errors.Is(err, ErrConflict):
		return ErrCodeConflict
	case errors.Is(err, ErrBadRequest):
		return ErrCodeBadRequest
	default:
		return ErrCodeUnknown
	}
}
