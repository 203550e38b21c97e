package services

import (
	"context"
	"errors"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"bilancio/internal/core"
)

func TestRegisterAndAuthenticate(t *testing.T) {
	repo := newTestRepo(t)
	auth := NewAuthService(repo, bcrypt.MinCost)
	ctx := context.Background()

	user, err := auth.Register(ctx, "alice", "s3cret", "s3cret")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if user.Money.Cents != 0 {
		t.Fatalf("new user balance = %d, want 0", user.Money.Cents)
	}
	if user.PasswordHash == "s3cret" {
		t.Fatal("plaintext password stored")
	}

	got, err := auth.Authenticate(ctx, "alice", "s3cret")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if got.ID != user.ID {
		t.Fatalf("authenticated wrong user: %d != %d", got.ID, user.ID)
	}
}

func TestRegisterValidation(t *testing.T) {
	repo := newTestRepo(t)
	auth := NewAuthService(repo, bcrypt.MinCost)
	ctx := context.Background()

	cases := []struct {
		name                             string
		username, password, confirmation string
		want                             error
	}{
		{"empty username", "", "pw", "pw", core.ErrEmptyUsername},
		{"blank username", "   ", "pw", "pw", core.ErrEmptyUsername},
		{"empty password", "bob", "", "", core.ErrEmptyPassword},
		{"confirmation mismatch", "bob", "pw", "other", core.ErrPasswordMismatch},
	}
	for _, tc := range cases {
		if _, err := auth.Register(ctx, tc.username, tc.password, tc.confirmation); !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
	}
}

func TestRegisterDuplicateKeepsOriginalHash(t *testing.T) {
	repo := newTestRepo(t)
	auth := NewAuthService(repo, bcrypt.MinCost)
	ctx := context.Background()

	if _, err := auth.Register(ctx, "carol", "first", "first"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := auth.Register(ctx, "carol", "second", "second"); !errors.Is(err, core.ErrDuplicateUsername) {
		t.Fatalf("expected ErrDuplicateUsername, got %v", err)
	}

	// The original credentials still work, the new ones do not.
	if _, err := auth.Authenticate(ctx, "carol", "first"); err != nil {
		t.Fatalf("original password rejected after duplicate attempt: %v", err)
	}
	if _, err := auth.Authenticate(ctx, "carol", "second"); !errors.Is(err, core.ErrInvalidCredentials) {
		t.Fatalf("duplicate attempt's password accepted")
	}
}

func TestAuthenticateFailures(t *testing.T) {
	repo := newTestRepo(t)
	auth := NewAuthService(repo, bcrypt.MinCost)
	ctx := context.Background()

	if _, err := auth.Register(ctx, "dave", "pw", "pw"); err != nil {
		t.Fatalf("register: %v", err)
	}

	cases := []struct{ username, password string }{
		{"dave", "wrong"},
		{"nobody", "pw"},
		{"Dave", "pw"}, // case-sensitive username
	}
	for _, tc := range cases {
		if _, err := auth.Authenticate(ctx, tc.username, tc.password); !errors.Is(err, core.ErrInvalidCredentials) {
			t.Fatalf("%s/%s: expected ErrInvalidCredentials, got %v", tc.username, tc.password, err)
		}
	}
}
