package handler

import (
	"errors"
	"net/http"

	"userdock/internal/app/user"
	"userdock/internal/pkg/errs"
	"userdock/internal/pkg/logx"
	"userdock/internal/pkg/resp"
)

// respondStoreError maps a user.Store error to a response. Validation errors get their
// own 4xx code; anything else is logged and reported as failureCode without details.
func respondStoreError(w http.ResponseWriter, r *http.Request, err error, failureCode string) {
	switch {
	case errors.Is(err, user.ErrInvalidID):
		resp.RespondError(w, r, errs.NewError(errs.ErrInvalidID))
	case errors.Is(err, user.ErrMissingFields):
		resp.RespondError(w, r, errs.NewError(errs.ErrMissingFields))
	case errors.Is(err, user.ErrMissingText):
		resp.RespondError(w, r, errs.NewError(errs.ErrMissingText))
	default:
		logx.Ctx(r.Context()).Error().Err(err).Str("error_code", failureCode).Msg("User store operation failed")
		resp.RespondError(w, r, errs.NewError(failureCode))
	}
}
