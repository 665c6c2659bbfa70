/*
Package auth implements the credential-check collaborator.

PURPOSE:
  Given (id, secret), return the account's identity and role or a
  not-authenticated signal. Passwords are stored as bcrypt hashes; the
  circulation core never sees a secret or a hash.

The package deliberately stops at credential verification. Sessions,
tokens and password-reset flows are out of scope.
*/
package auth

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/warp/circulation-engine/circulation"
)

// ErrNotAuthenticated is returned for unknown accounts, wrong passwords
// and accounts with no password set. Callers get no hint which.
var ErrNotAuthenticated = errors.New("not authenticated")

// CredentialStore is the slice of storage auth needs.
type CredentialStore interface {
	Credentials(ctx context.Context, id circulation.MemberID) (circulation.Member, string, error)
	SaveUserWithPassword(ctx context.Context, m circulation.Member, passwordHash string) error
	SetPassword(ctx context.Context, id circulation.MemberID, passwordHash string) error
}

// Service verifies credentials and registers accounts.
type Service struct {
	store CredentialStore
	cost  int
}

// NewService creates an auth service. cost <= 0 selects bcrypt's default.
func NewService(store CredentialStore, cost int) *Service {
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}
	return &Service{store: store, cost: cost}
}

// Login checks (id, secret) and returns the account's identity. Every
// failure mode collapses into ErrNotAuthenticated.
func (s *Service) Login(ctx context.Context, id circulation.MemberID, secret string) (circulation.Member, error) {
	m, hash, err := s.store.Credentials(ctx, id)
	if err != nil || hash == "" {
		return circulation.Member{}, ErrNotAuthenticated
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)) != nil {
		return circulation.Member{}, ErrNotAuthenticated
	}
	return m, nil
}

// Register creates or replaces an account with a hashed password.
func (s *Service) Register(ctx context.Context, m circulation.Member, secret string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), s.cost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	return s.store.SaveUserWithPassword(ctx, m, string(hash))
}

// ChangePassword replaces an existing account's password.
func (s *Service) ChangePassword(ctx context.Context, id circulation.MemberID, secret string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), s.cost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	return s.store.SetPassword(ctx, id, string(hash))
}
