package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jjudge-oj/accounts/types"
	"github.com/rs/zerolog"
)

// RegisterInput is the plaintext registration request.
type RegisterInput struct {
	Name     string
	Email    string
	Password string
}

// LoginInput is the plaintext login request plus the caller's address.
type LoginInput struct {
	Email         string
	Password      string
	SourceAddress string
}

// AuthService orchestrates registration, login and logout.
type AuthService struct {
	users    *UserService
	verifier *CredentialVerifier
	tokens   *TokenIssuer
	attempts *LoginAttemptLogger
	logger   zerolog.Logger
}

func NewAuthService(
	users *UserService,
	verifier *CredentialVerifier,
	tokens *TokenIssuer,
	attempts *LoginAttemptLogger,
	logger zerolog.Logger,
) *AuthService {
	return &AuthService{
		users:    users,
		verifier: verifier,
		tokens:   tokens,
		attempts: attempts,
		logger:   logger,
	}
}

// Register creates an account and issues its first token. An email already
// in use fails with ErrDuplicateEmail before anything is written.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (types.User, string, error) {
	email := normalizeEmail(in.Email)
	log := s.logger.With().Str("email", email).Logger()
	log.Info().Msg("registration attempt")

	newUser := NewUser{Name: in.Name, Email: in.Email, Password: in.Password}
	if err := s.users.ValidateNewUser(newUser); err != nil {
		return types.User{}, "", err
	}

	exists, err := s.users.EmailExists(ctx, email, 0)
	if err != nil {
		log.Error().Err(err).Msg("registration failed")
		return types.User{}, "", fmt.Errorf("check email: %w", err)
	}
	if exists {
		log.Warn().Msg("registration with existing email")
		return types.User{}, "", ErrDuplicateEmail
	}

	user, err := s.users.Create(ctx, newUser)
	if err != nil {
		if errors.Is(err, ErrDuplicateEmail) {
			log.Warn().Msg("registration with existing email")
		} else {
			log.Error().Err(err).Msg("registration failed")
		}
		return types.User{}, "", err
	}

	token, err := s.tokens.Generate(ctx, user, types.DefaultTokenName)
	if err != nil {
		log.Error().Err(err).Int64("user_id", user.ID).Msg("registration token failed")
		return types.User{}, "", err
	}

	log.Info().Int64("user_id", user.ID).Msg("registration succeeded")
	return user, token, nil
}

// Login verifies credentials and issues a token. Exactly one login attempt is
// recorded per call once the outcome is known.
func (s *AuthService) Login(ctx context.Context, in LoginInput) (types.User, string, error) {
	rawEmail := strings.TrimSpace(in.Email)
	log := s.logger.With().Str("email", rawEmail).Str("ip", in.SourceAddress).Logger()
	log.Info().Msg("login attempt")

	user, err := s.verifier.Authenticate(ctx, rawEmail, in.Password)
	if err != nil {
		s.attempts.Log(ctx, rawEmail, false, in.SourceAddress)
		if errors.Is(err, ErrInvalidCredentials) {
			return types.User{}, "", ErrInvalidCredentials
		}
		log.Error().Err(err).Msg("login failed")
		return types.User{}, "", err
	}

	token, err := s.tokens.Generate(ctx, user, types.DefaultTokenName)
	if err != nil {
		s.attempts.Log(ctx, rawEmail, false, in.SourceAddress)
		log.Error().Err(err).Msg("login token failed")
		return types.User{}, "", err
	}

	s.attempts.Log(ctx, rawEmail, true, in.SourceAddress)
	log.Info().Int64("user_id", user.ID).Msg("login succeeded")
	return user, token, nil
}

// Logout revokes only the token the caller presented. It reports false
// instead of failing when revocation does not happen.
func (s *AuthService) Logout(ctx context.Context, user types.User, presented string) bool {
	revoked, err := s.tokens.Revoke(ctx, user.ID, presented)
	if err != nil {
		s.logger.Error().Err(err).Int64("user_id", user.ID).Msg("logout failed")
		return false
	}
	if !revoked {
		s.logger.Warn().Int64("user_id", user.ID).Msg("logout found no token to revoke")
		return false
	}
	s.logger.Info().Int64("user_id", user.ID).Msg("logout succeeded")
	return true
}
