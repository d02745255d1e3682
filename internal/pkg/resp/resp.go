/*
Package resp writes JSON responses.

Success bodies are the operation payload as-is; failures are a single-field
object {"error": "<code>"} with the status carried by the errs.CustomError.
*/
package resp

import (
	"encoding/json"
	"net/http"

	"userdock/internal/pkg/errs"
	"userdock/internal/pkg/logx"
)

// ErrorBody is the body of every failure response.
type ErrorBody struct {
	Error string `json:"error"`
}

// RespondJSON sets the Content-Type and writes payload with httpStatus.
func RespondJSON(w http.ResponseWriter, r *http.Request, httpStatus int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")

	response, err := json.Marshal(payload)
	if err != nil {
		logx.Ctx(r.Context()).Error().
			Err(err).
			Int("http_status", httpStatus).
			Msg("Error encoding JSON response")

		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":"unknown"}`))
		return
	}

	w.WriteHeader(httpStatus)
	w.Write(response)
}

// RespondSuccess sends data with HTTP 200 OK.
func RespondSuccess(w http.ResponseWriter, r *http.Request, data any) {
	RespondJSON(w, r, http.StatusOK, data)
}

// RespondError sends customErr as {"error": code}. A nil error is reported as errs.ErrUnknown.
func RespondError(w http.ResponseWriter, r *http.Request, customErr *errs.CustomError) {
	if customErr == nil {
		customErr = errs.NewError(errs.ErrUnknown)
	}

	RespondJSON(w, r, customErr.Status, ErrorBody{Error: customErr.Code})
}
