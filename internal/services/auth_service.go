package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"bilancio/internal/core"
	"bilancio/internal/storage"
)

// AuthService is the credential store: it registers users with salted
// one-way hashes and verifies login attempts. Plaintext passwords never
// leave this package.
type AuthService struct {
	repo *storage.SQLiteRepository
	cost int
}

func NewAuthService(repo *storage.SQLiteRepository, bcryptCost int) *AuthService {
	if bcryptCost < bcrypt.MinCost || bcryptCost > bcrypt.MaxCost {
		bcryptCost = bcrypt.DefaultCost
	}
	return &AuthService{repo: repo, cost: bcryptCost}
}

// Register creates a user with a zero balance. Fails with
// core.ErrDuplicateUsername when the name is taken and
// core.ErrPasswordMismatch when the confirmation differs.
func (s *AuthService) Register(ctx context.Context, username, password, confirmation string) (core.User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return core.User{}, core.ErrEmptyUsername
	}
	if password == "" {
		return core.User{}, core.ErrEmptyPassword
	}
	if password != confirmation {
		return core.User{}, core.ErrPasswordMismatch
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return core.User{}, fmt.Errorf("hash password: %w", err)
	}

	user, err := s.repo.CreateUser(ctx, username, string(hash))
	if err != nil {
		return core.User{}, err
	}

	slog.InfoContext(ctx, "User registered", "user_id", user.ID, "username", username)
	return user, nil
}

// Authenticate verifies a login attempt. Unknown usernames and wrong
// passwords both fail with core.ErrInvalidCredentials; the username match
// is case-sensitive.
func (s *AuthService) Authenticate(ctx context.Context, username, password string) (core.User, error) {
	user, err := s.repo.GetUserByUsername(ctx, username)
	if errors.Is(err, core.ErrNotFound) {
		return core.User{}, core.ErrInvalidCredentials
	}
	if err != nil {
		return core.User{}, fmt.Errorf("look up user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return core.User{}, core.ErrInvalidCredentials
	}

	return user, nil
}
