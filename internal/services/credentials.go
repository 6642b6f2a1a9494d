package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/jjudge-oj/accounts/internal/store"
	"github.com/jjudge-oj/accounts/types"
)

// UserLookup is the slice of the user store the verifier needs.
type UserLookup interface {
	GetByEmail(ctx context.Context, email string) (types.User, error)
}

// CredentialVerifier checks an email/password pair against the stored hash.
type CredentialVerifier struct {
	users  UserLookup
	hasher PasswordHasher
	// dummyHash is compared against when the email is unknown so both
	// failure paths pay for one hash comparison.
	dummyHash string
}

func NewCredentialVerifier(users UserLookup, hasher PasswordHasher) (*CredentialVerifier, error) {
	dummy, err := hasher.Hash("not-a-real-password")
	if err != nil {
		return nil, fmt.Errorf("prepare dummy hash: %w", err)
	}
	return &CredentialVerifier{users: users, hasher: hasher, dummyHash: dummy}, nil
}

// Authenticate returns the account owning email when password matches.
// Any mismatch, including an unknown email, yields ErrInvalidCredentials.
func (v *CredentialVerifier) Authenticate(ctx context.Context, email, password string) (types.User, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		_ = v.hasher.Compare(v.dummyHash, password)
		return types.User{}, ErrInvalidCredentials
	}

	user, err := v.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			_ = v.hasher.Compare(v.dummyHash, password)
			return types.User{}, ErrInvalidCredentials
		}
		return types.User{}, fmt.Errorf("lookup credentials: %w", err)
	}

	if err := v.hasher.Compare(user.PasswordHash, password); err != nil {
		return types.User{}, ErrInvalidCredentials
	}
	return user, nil
}

// ValidateCredentials reports whether the pair matches a stored account.
func (v *CredentialVerifier) ValidateCredentials(ctx context.Context, email, password string) (bool, error) {
	_, err := v.Authenticate(ctx, email, password)
	if errors.Is(err, ErrInvalidCredentials) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
