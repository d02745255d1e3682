/*
Package req binds JSON request bodies.

Bodies are capped at MaxBodySize and must be a single JSON value with an
application/json Content-Type. A request without a Content-Type, or with an empty
body, binds as an empty object. Failures come back as *errs.CustomError ready for resp.RespondError.
*/
package req

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"userdock/internal/pkg/errs"
)

// MaxBodySize is the largest accepted JSON body (100 KiB).
const MaxBodySize int64 = 100 << 10

// BindJSON decodes the request body into dst. Unknown fields are ignored, so dst may be
// a struct for fixed inputs or a map[string]json.RawMessage for open ones.
// dst is left untouched when the request carries no body to bind.
func BindJSON(w http.ResponseWriter, r *http.Request, dst any) *errs.CustomError {
	contentType := r.Header.Get("Content-Type")
	if contentType == "" {
		return nil
	}
	if !strings.HasPrefix(contentType, "application/json") {
		return errs.NewError(errs.ErrUnsupportedMediaType)
	}

	r.Body = http.MaxBytesReader(w, r.Body, MaxBodySize)
	decoder := json.NewDecoder(r.Body)

	if err := decoder.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return errs.NewError(errs.ErrRequestEntityTooLarge)
		}
		return errs.NewError(errs.ErrInvalidJSONFormat)
	}

	if _, err := decoder.Token(); !errors.Is(err, io.EOF) {
		return errs.NewError(errs.ErrInvalidJSONFormat)
	}

	return nil
}
