package api

import (
	"net/http"

	"petadopt/internal/auth"
	"petadopt/internal/model"
	"petadopt/internal/service"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionResponse struct {
	Token string     `json:"token"`
	User  model.User `json:"user"`
}

func (d Dependencies) register(w http.ResponseWriter, r *http.Request) {
	var in service.RegisterInput
	if !decodeJSON(w, r, &in, d.Log) {
		return
	}
	user, err := d.Users.Register(r.Context(), in)
	if err != nil {
		writeServiceError(w, err, d.Log)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

func (d Dependencies) login(w http.ResponseWriter, r *http.Request) {
	var in loginRequest
	if !decodeJSON(w, r, &in, d.Log) {
		return
	}
	user, token, err := d.Users.Authenticate(r.Context(), in.Email, in.Password)
	if err != nil {
		if service.Code(err) == service.CodeForbidden {
			WriteError(w, http.StatusUnauthorized, "invalid_credentials", "Invalid e-mail or password", d.Log)
			return
		}
		writeServiceError(w, err, d.Log)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{Token: token, User: *user})
}

// logout revokes the presented token. Development header sessions carry no
// token and have nothing to revoke.
func (d Dependencies) logout(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireSession(w, r, d.Log); !ok {
		return
	}
	if claims, ok := auth.ClaimsFrom(r.Context()); ok && claims.ExpiresAt != nil {
		if err := d.Users.SignOut(r.Context(), claims.ID, claims.ExpiresAt.Time); err != nil {
			writeServiceError(w, err, d.Log)
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (d Dependencies) me(w http.ResponseWriter, r *http.Request) {
	sess, ok := requireSession(w, r, d.Log)
	if !ok {
		return
	}
	user, err := d.Users.CurrentUser(r.Context(), sess)
	if err != nil {
		writeServiceError(w, err, d.Log)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"user":                 user,
		"activeOrganizationId": sess.ActiveOrganizationID,
	})
}
