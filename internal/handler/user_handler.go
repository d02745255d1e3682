/*
Package handler provides the HTTP handlers and routing for the user record API.
*/
package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"userdock/internal/app/user"
	"userdock/internal/pkg/errs"
	"userdock/internal/pkg/req"
	"userdock/internal/pkg/resp"
)

// MessageInput is the body of POST /api/user/{id}/message.
type MessageInput struct {
	From string `json:"from"`
	Text string `json:"text"`
}

// MessageResponse echoes the appended message.
type MessageResponse struct {
	OK      bool         `json:"ok"`
	Message user.Message `json:"message"`
}

// HandleGetUser returns the record for {id}, creating it with defaults on first access.
func HandleGetUser(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec, err := deps.Users.GetOrCreate(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			respondStoreError(w, r, err, errs.ErrReadFailed)
			return
		}

		resp.RespondSuccess(w, r, rec)
	}
}

// HandleUpdateUser shallow-merges the JSON object body into the record for {id}.
func HandleUpdateUser(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var partial map[string]json.RawMessage
		if customErr := req.BindJSON(w, r, &partial); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		rec, err := deps.Users.MergeUpdate(r.Context(), chi.URLParam(r, "id"), partial)
		if err != nil {
			respondStoreError(w, r, err, errs.ErrWriteFailed)
			return
		}

		resp.RespondSuccess(w, r, rec)
	}
}

// HandleAppendMessage appends {from, text} to the message log of {id}.
func HandleAppendMessage(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var input MessageInput
		if customErr := req.BindJSON(w, r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		msg, err := deps.Users.AppendMessage(r.Context(), chi.URLParam(r, "id"), input.From, input.Text)
		if err != nil {
			respondStoreError(w, r, err, errs.ErrMessageFailed)
			return
		}

		resp.RespondSuccess(w, r, MessageResponse{OK: true, Message: msg})
	}
}
