package errs

import "net/http"

// errorMap holds the HTTP status for every application error code.
var errorMap = map[string]CustomError{
	ErrInvalidJSONFormat:     {Code: ErrInvalidJSONFormat, Status: http.StatusBadRequest},
	ErrUnsupportedMediaType:  {Code: ErrUnsupportedMediaType, Status: http.StatusUnsupportedMediaType},
	ErrRequestEntityTooLarge: {Code: ErrRequestEntityTooLarge, Status: http.StatusRequestEntityTooLarge},
	ErrRateLimitExceeded:     {Code: ErrRateLimitExceeded, Status: http.StatusTooManyRequests},
	ErrInvalidID:             {Code: ErrInvalidID, Status: http.StatusBadRequest},
	ErrNotFound:              {Code: ErrNotFound, Status: http.StatusNotFound},

	ErrMissingFields: {Code: ErrMissingFields, Status: http.StatusBadRequest},
	ErrMissingText:   {Code: ErrMissingText, Status: http.StatusBadRequest},

	ErrReadFailed:      {Code: ErrReadFailed, Status: http.StatusInternalServerError},
	ErrWriteFailed:     {Code: ErrWriteFailed, Status: http.StatusInternalServerError},
	ErrMessageFailed:   {Code: ErrMessageFailed, Status: http.StatusInternalServerError},
	ErrListFailed:      {Code: ErrListFailed, Status: http.StatusInternalServerError},
	ErrBroadcastFailed: {Code: ErrBroadcastFailed, Status: http.StatusInternalServerError},
	ErrUnknown:         {Code: ErrUnknown, Status: http.StatusInternalServerError},
}
