package errs

import (
	"fmt"

	"userdock/internal/pkg/logx"
)

// CustomError pairs a client-facing error code with its HTTP status.
type CustomError struct {
	// Code is the machine-readable code sent as {"error": Code}.
	Code string

	// Status is the HTTP status code sent with the response.
	Status int
}

// Error implements the error interface.
func (e CustomError) Error() string {
	return fmt.Sprintf("%s (HTTP %d)", e.Code, e.Status)
}

// NewError returns the *CustomError registered for code.
// An unregistered code is logged and mapped to ErrUnknown.
func NewError(code string) *CustomError {
	templateErr, ok := errorMap[code]
	if !ok {
		logx.Error(
			fmt.Errorf("unregistered error code %q", code),
			"Unknown error code requested",
			"requested_code", code,
		)
		templateErr = errorMap[ErrUnknown]
	}

	customErr := templateErr
	return &customErr
}
