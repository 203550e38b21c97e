package http

import (
	"errors"
	"log/slog"
	"net/http"

	"bilancio/internal/core"
)

type authPage struct {
	Error    string
	Username string
}

func (s *Server) handleRegisterPage(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, "register.html", authPage{})
}

func (s *Server) handleRegisterSubmit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}

	username := sanitizeInput(r.Form.Get("username"))
	password := r.Form.Get("password")
	confirmation := r.Form.Get("confirmation")

	user, err := s.auth.Register(r.Context(), username, password, confirmation)
	if err != nil {
		msg := "Registration failed"
		switch {
		case errors.Is(err, core.ErrDuplicateUsername):
			msg = "That username is already taken"
		case errors.Is(err, core.ErrPasswordMismatch):
			msg = "Password and confirmation do not match"
		case errors.Is(err, core.ErrEmptyUsername):
			msg = "Username is required"
		case errors.Is(err, core.ErrEmptyPassword):
			msg = "Password is required"
		default:
			slog.ErrorContext(r.Context(), "Registration error", "username", username, "error", err)
			s.renderStatus(w, r, http.StatusInternalServerError, "register.html", authPage{Error: msg, Username: username})
			return
		}
		s.renderStatus(w, r, http.StatusUnprocessableEntity, "register.html", authPage{Error: msg, Username: username})
		return
	}

	if err := s.signIn(r.Context(), user.ID); err != nil {
		slog.ErrorContext(r.Context(), "Session creation failed", "user_id", user.ID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, "login.html", authPage{})
}

func (s *Server) handleLoginSubmit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}

	username := sanitizeInput(r.Form.Get("username"))
	password := r.Form.Get("password")

	user, err := s.auth.Authenticate(r.Context(), username, password)
	if errors.Is(err, core.ErrInvalidCredentials) {
		s.renderStatus(w, r, http.StatusUnauthorized, "login.html", authPage{
			Error:    "Invalid username or password",
			Username: username,
		})
		return
	}
	if err != nil {
		slog.ErrorContext(r.Context(), "Login error", "username", username, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	if err := s.signIn(r.Context(), user.ID); err != nil {
		slog.ErrorContext(r.Context(), "Session creation failed", "user_id", user.ID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	slog.InfoContext(r.Context(), "User logged in", "user_id", user.ID, "username", user.Username)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Destroy(r.Context()); err != nil {
		slog.ErrorContext(r.Context(), "Session destroy failed", "error", err)
	}
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}
