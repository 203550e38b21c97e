package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"bilancio/internal/core"
)

type contextKey string

const userContextKey contextKey = "user"

// sessionUserKey holds the logged-in user's ID inside the session.
const sessionUserKey = "userID"

// requireAuth loads the session user and injects it into the request
// context. Requests without a valid session are redirected to the login
// page.
func (s *Server) requireAuth(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := s.sessions.GetInt64(r.Context(), sessionUserKey)
		if userID == 0 {
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}

		user, err := s.repo.GetUserByID(r.Context(), userID)
		if errors.Is(err, core.ErrNotFound) {
			// Stale session for a user that no longer exists.
			_ = s.sessions.Destroy(r.Context())
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}
		if err != nil {
			slog.ErrorContext(r.Context(), "Failed to load session user", "user_id", userID, "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		ctx := context.WithValue(r.Context(), userContextKey, user)
		next(w, r.WithContext(ctx))
	})
}

// currentUser returns the user placed in the context by requireAuth.
func currentUser(ctx context.Context) core.User {
	user, _ := ctx.Value(userContextKey).(core.User)
	return user
}

// signIn rotates the session token and binds it to the user. Token renewal
// on privilege change prevents session fixation.
func (s *Server) signIn(ctx context.Context, userID int64) error {
	if err := s.sessions.RenewToken(ctx); err != nil {
		return err
	}
	s.sessions.Put(ctx, sessionUserKey, userID)
	return nil
}
