package handler

import (
	"net/http"

	"userdock/internal/pkg/errs"
	"userdock/internal/pkg/req"
	"userdock/internal/pkg/resp"
)

// BroadcastInput is the body of POST /api/admin/broadcast. An empty From means "admin".
type BroadcastInput struct {
	From string `json:"from"`
	Text string `json:"text"`
}

// BroadcastResponse reports how many users received the broadcast.
type BroadcastResponse struct {
	OK     bool `json:"ok"`
	SentTo int  `json:"sentTo"`
}

// HandleListUsers returns every stored user record.
func HandleListUsers(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		users, err := deps.Users.ListAll(r.Context())
		if err != nil {
			respondStoreError(w, r, err, errs.ErrListFailed)
			return
		}

		resp.RespondSuccess(w, r, users)
	}
}

// HandleBroadcast appends one message to every stored user record.
func HandleBroadcast(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var input BroadcastInput
		if customErr := req.BindJSON(w, r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		sent, err := deps.Users.Broadcast(r.Context(), input.From, input.Text)
		if err != nil {
			respondStoreError(w, r, err, errs.ErrBroadcastFailed)
			return
		}

		resp.RespondSuccess(w, r, BroadcastResponse{OK: true, SentTo: sent})
	}
}
