/*
Package errs provides the application error type and the machine-readable error codes
returned to clients in the "error" field of every failure response.
*/
package errs

// Request handling errors.
const (
	// ErrInvalidJSONFormat indicates the request body is not valid JSON or has the wrong shape.
	ErrInvalidJSONFormat = "invalid-json"

	// ErrUnsupportedMediaType indicates the Content-Type header is not application/json.
	ErrUnsupportedMediaType = "unsupported-media-type"

	// ErrRequestEntityTooLarge indicates the request body exceeded the server limit.
	ErrRequestEntityTooLarge = "request-too-large"

	// ErrRateLimitExceeded indicates the caller exceeded the per-IP request rate.
	ErrRateLimitExceeded = "rate-limited"

	// ErrInvalidID indicates the user id in the path cannot be used as a storage key.
	ErrInvalidID = "invalid-id"

	// ErrNotFound indicates no route matched the request.
	ErrNotFound = "not-found"
)

// Validation errors.
const (
	// ErrMissingFields indicates a message was submitted without "from" or "text".
	ErrMissingFields = "missing fields"

	// ErrMissingText indicates a broadcast was submitted without "text".
	ErrMissingText = "missing text"
)

// Storage errors, one per operation. The underlying cause is only logged.
const (
	ErrReadFailed      = "read-failed"
	ErrWriteFailed     = "write-failed"
	ErrMessageFailed   = "message-failed"
	ErrListFailed      = "list-failed"
	ErrBroadcastFailed = "broadcast-failed"

	// ErrUnknown represents an unclassified server error.
	ErrUnknown = "unknown"
)
