package routes

import (
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog/hlog"

	"github.com/briangreenhill/finboard/internal/auth"
	appmw "github.com/briangreenhill/finboard/internal/http/middleware"
)

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if appmw.UserID(r.Context()) != "" {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	s.renderLogin(w, r, http.StatusOK, "", "")
}

func (s *Server) renderLogin(w http.ResponseWriter, r *http.Request, status int, username, msg string) {
	s.render(w, r, status, "login", s.page(r, "Sign in", map[string]any{
		"CredentialsEnabled": s.Auth.Creds.Enabled(),
		"OTPEnabled":         s.Auth.OTP != nil,
		"Username":           username,
		"Error":              msg,
	}))
}

func (s *Server) handleCredentials(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	username := strings.TrimSpace(r.PostForm.Get("username"))

	id, err := s.Auth.Login(username, r.PostForm.Get("password"))
	if err != nil {
		msg := "Invalid username or password."
		if errors.Is(err, auth.ErrDisabled) {
			msg = "Password login is not enabled."
		}
		s.renderLogin(w, r, http.StatusUnauthorized, username, msg)
		return
	}
	s.signIn(w, r, id)
}

func (s *Server) handleOTP(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	userName := strings.TrimSpace(r.PostForm.Get("user_name"))

	id, err := s.Auth.LoginOTP(r.Context(), userName, r.PostForm.Get("otp"))
	if err != nil {
		msg := "That code was not accepted. Ask the bot for a new one."
		if errors.Is(err, auth.ErrDisabled) {
			msg = "One-time code login is not enabled."
		}
		s.renderLogin(w, r, http.StatusUnauthorized, userName, msg)
		return
	}
	s.signIn(w, r, id)
}

// signIn starts a session for id. A previous identity in the same browser
// loses its workspace.
func (s *Server) signIn(w http.ResponseWriter, r *http.Request, id string) {
	if prev := appmw.UserID(r.Context()); prev != "" && prev != id {
		s.Spaces.Drop(prev)
	}
	if err := s.Sess.RenewToken(r.Context()); err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("renew session token")
		http.Error(w, "could not start session", http.StatusInternalServerError)
		return
	}
	s.Sess.Put(r.Context(), sessionUserID, id)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if id := appmw.UserID(r.Context()); id != "" {
		s.Spaces.Drop(id)
	}
	if err := s.Sess.Destroy(r.Context()); err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("destroy session")
	}
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}
