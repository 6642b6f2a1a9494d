package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jjudge-oj/accounts/internal/store"
	"github.com/jjudge-oj/accounts/types"
	"github.com/rs/zerolog"
)

const (
	defaultPerPage = 15
	maxPerPage     = 100
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	GetByID(ctx context.Context, id int64) (types.User, error)
	GetByEmail(ctx context.Context, email string) (types.User, error)
	List(ctx context.Context, offset, limit int) ([]types.User, int, error)
	EmailExists(ctx context.Context, email string, excludeID int64) (bool, error)
	Create(ctx context.Context, user types.User) (types.User, error)
	Update(ctx context.Context, user types.User) (types.User, error)
	MarkEmailVerified(ctx context.Context, id int64, at time.Time) error
	Delete(ctx context.Context, id int64) error
}

// NewUser is the plaintext input for account creation.
type NewUser struct {
	Name     string
	Email    string
	Password string
}

// UserPatch updates any subset of the mutable fields. Nil means unchanged.
type UserPatch struct {
	Name     *string
	Email    *string
	Password *string
}

// UserService encapsulates user use-cases. Create and Update are the only
// operations that accept a plaintext password and each hashes it once.
type UserService struct {
	repo              UserRepository
	hasher            PasswordHasher
	minPasswordLength int
	logger            zerolog.Logger
}

func NewUserService(repo UserRepository, hasher PasswordHasher, minPasswordLength int, logger zerolog.Logger) *UserService {
	if minPasswordLength < 1 {
		minPasswordLength = 8
	}
	return &UserService{
		repo:              repo,
		hasher:            hasher,
		minPasswordLength: minPasswordLength,
		logger:            logger,
	}
}

func (s *UserService) GetByID(ctx context.Context, id int64) (types.User, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *UserService) GetByEmail(ctx context.Context, email string) (types.User, error) {
	return s.repo.GetByEmail(ctx, normalizeEmail(email))
}

func (s *UserService) List(ctx context.Context, offset, limit int) ([]types.User, int, error) {
	if limit <= 0 {
		limit = defaultPerPage
	}
	if limit > maxPerPage {
		limit = maxPerPage
	}
	return s.repo.List(ctx, offset, limit)
}

// EmailExists reports whether an account other than excludeID uses email.
func (s *UserService) EmailExists(ctx context.Context, email string, excludeID int64) (bool, error) {
	return s.repo.EmailExists(ctx, normalizeEmail(email), excludeID)
}

// ValidateNewUser checks the creation input without touching storage.
func (s *UserService) ValidateNewUser(in NewUser) error {
	errs := newValidationError()
	validateName(errs, in.Name)
	validateEmail(errs, normalizeEmail(in.Email))
	validatePassword(errs, in.Password, s.minPasswordLength)
	return errs.errOrNil()
}

// Create validates, hashes the password and persists a new account.
// A unique index collision surfaces as ErrDuplicateEmail.
func (s *UserService) Create(ctx context.Context, in NewUser) (types.User, error) {
	if err := s.ValidateNewUser(in); err != nil {
		return types.User{}, err
	}

	email := normalizeEmail(in.Email)
	hashed, err := s.hasher.Hash(in.Password)
	if err != nil {
		return types.User{}, fmt.Errorf("hash password: %w", err)
	}

	s.logger.Info().Str("email", email).Msg("creating user")
	user, err := s.repo.Create(ctx, types.User{
		Name:         strings.TrimSpace(in.Name),
		Email:        email,
		PasswordHash: hashed,
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicateEmail) {
			return types.User{}, ErrDuplicateEmail
		}
		return types.User{}, err
	}
	return user, nil
}

// Update applies patch to the user with the given id. Changing the email
// clears its verification timestamp.
func (s *UserService) Update(ctx context.Context, id int64, patch UserPatch) (types.User, error) {
	errs := newValidationError()
	if patch.Name != nil {
		validateName(errs, *patch.Name)
	}
	if patch.Email != nil {
		validateEmail(errs, normalizeEmail(*patch.Email))
	}
	if patch.Password != nil {
		validatePassword(errs, *patch.Password, s.minPasswordLength)
	}
	if err := errs.errOrNil(); err != nil {
		return types.User{}, err
	}

	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return types.User{}, err
	}

	if patch.Name != nil {
		user.Name = strings.TrimSpace(*patch.Name)
	}
	if patch.Email != nil {
		email := normalizeEmail(*patch.Email)
		if email != user.Email {
			exists, err := s.repo.EmailExists(ctx, email, id)
			if err != nil {
				return types.User{}, err
			}
			if exists {
				return types.User{}, ErrDuplicateEmail
			}
			user.Email = email
			user.EmailVerifiedAt = nil
		}
	}
	if patch.Password != nil {
		hashed, err := s.hasher.Hash(*patch.Password)
		if err != nil {
			return types.User{}, fmt.Errorf("hash password: %w", err)
		}
		user.PasswordHash = hashed
	}

	s.logger.Info().Int64("user_id", id).Msg("updating user")
	updated, err := s.repo.Update(ctx, user)
	if err != nil {
		if errors.Is(err, store.ErrDuplicateEmail) {
			return types.User{}, ErrDuplicateEmail
		}
		return types.User{}, err
	}
	return updated, nil
}

func (s *UserService) MarkEmailVerified(ctx context.Context, id int64, at time.Time) error {
	return s.repo.MarkEmailVerified(ctx, id, at)
}

func (s *UserService) Delete(ctx context.Context, id int64) error {
	s.logger.Info().Int64("user_id", id).Msg("deleting user")
	return s.repo.Delete(ctx, id)
}
