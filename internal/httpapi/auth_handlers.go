package httpapi

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/guard-e/hostel/internal/auth"
	"github.com/guard-e/hostel/internal/hostel/access"
	"github.com/guard-e/hostel/internal/hostel/engine"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string      `json:"token"`
	TokenType string      `json:"token_type"`
	User      userProfile `json:"user"`
}

type userProfile struct {
	UserID      int64              `json:"user_id"`
	Username    string             `json:"username"`
	Permissions access.Permissions `json:"permissions"`
}

func profileOf(s access.Session) userProfile {
	return userProfile{UserID: s.UserID, Username: s.Username, Permissions: s.Permissions()}
}

func (s *Server) observeLogin(outcome string) {
	if s.logins != nil {
		s.logins.ObserveLogin(outcome)
	}
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, codeBadJSON, "invalid JSON body")
		return
	}

	token, sess, err := s.auth.Login(r.Context(), req.Username, req.Password)
	switch {
	case err == nil:
		s.observeLogin("ok")
		respond(w, r, http.StatusOK, loginResponse{Token: token, TokenType: "Bearer", User: profileOf(sess)})
	case errors.Is(err, auth.ErrInvalidCredentials):
		s.observeLogin("rejected")
		writeError(w, r, http.StatusUnauthorized, engine.ClassUnauthenticated, "invalid username or password")
	case errors.Is(err, auth.ErrNoVerifier):
		s.observeLogin("error")
		s.logger.Error("login attempted without a credential verifier")
		writeError(w, r, http.StatusServiceUnavailable, codeLoginDisabled, "login is not available")
	default:
		s.observeLogin("error")
		s.writeEngineError(w, r, err)
	}
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	si := sessionFrom(r.Context())
	if si.token == "" {
		writeError(w, r, http.StatusUnauthorized, engine.ClassUnauthenticated, engine.ErrUnauthenticated.Error())
		return
	}
	if err := s.auth.Logout(si.token); err != nil {
		s.logger.Warn("logout failed", slog.String("error", err.Error()))
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context()).session
	if !sess.IsAuthenticated() {
		s.writeEngineError(w, r, engine.ErrUnauthenticated)
		return
	}
	respond(w, r, http.StatusOK, profileOf(sess))
}
