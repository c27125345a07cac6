package api

import (
	"errors"
	"net/http"

	"github.com/andrebq/postbox/auth"
	authapi "github.com/andrebq/postbox/auth/api"
	"github.com/andrebq/postbox/internal/httpjson"
	"github.com/andrebq/postbox/internal/logutil"
	"github.com/andrebq/postbox/store"
)

type (
	accounts struct {
		users UserStore
		realm *authapi.SecurityRealm
	}

	registerRequest struct {
		Email    string  `json:"email"`
		Password string  `json:"password"`
		Name     *string `json:"name"`
	}

	credentialsRequest struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}

	sessionResponse struct {
		Message string   `json:"message,omitempty"`
		User    userJSON `json:"user"`
	}
)

func (a *accounts) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := httpjson.Decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	u, err := auth.Register(r.Context(), a.users, req.Email, auth.PlainText(req.Password), req.Name)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpjson.Write(w, http.StatusOK, toUserJSON(u))
}

// login checks credentials without starting a session.
func (a *accounts) login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := httpjson.Decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	u, err := auth.Login(r.Context(), a.users, req.Email, auth.PlainText(req.Password))
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpjson.Write(w, http.StatusOK, sessionResponse{Message: "Login successful", User: toUserJSON(u)})
}

func (a *accounts) signIn(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := httpjson.Decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	u, err := auth.Login(r.Context(), a.users, req.Email, auth.PlainText(req.Password))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if _, err := a.realm.StartSession(w, u); err != nil {
		writeError(w, r, err)
		return
	}
	httpjson.Write(w, http.StatusOK, sessionResponse{User: toUserJSON(u)})
}

func (a *accounts) session(w http.ResponseWriter, r *http.Request) {
	id, err := a.realm.Identify(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	u, err := a.users.UserByID(r.Context(), id.UserID)
	if errors.As(err, &store.NotFound{}) {
		// a token for a user that is gone is just an invalid session
		writeError(w, r, auth.InvalidSession{})
		return
	} else if err != nil {
		writeError(w, r, err)
		return
	}
	httpjson.Write(w, http.StatusOK, sessionResponse{User: toUserJSON(u)})
}

func (a *accounts) signOut(w http.ResponseWriter, r *http.Request) {
	if err := a.realm.EndSession(w, r); err != nil {
		log := logutil.GetOrDefault(r.Context())
		log.Debug().Err(err).Msg("Sign out without a valid session")
	}
	w.WriteHeader(http.StatusNoContent)
}
