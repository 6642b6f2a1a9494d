package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jjudge-oj/accounts/internal/store"
	"github.com/jjudge-oj/accounts/types"
	"github.com/rs/zerolog"
)

const (
	verificationIssuer  = "accounts"
	verificationPurpose = "verify-email"
)

type verificationClaims struct {
	Email   string `json:"email"`
	Purpose string `json:"purpose"`
	jwt.RegisteredClaims
}

// VerificationRequest is the event handed to the mailer.
type VerificationRequest struct {
	UserID    int64     `json:"user_id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// VerificationService proves ownership of an account's email with signed,
// short-lived links.
type VerificationService struct {
	users     *UserService
	publisher EventPublisher
	channel   string
	secret    []byte
	ttl       time.Duration
	now       func() time.Time
	logger    zerolog.Logger
}

// NewVerificationService constructs the service. publisher may be nil, in
// which case tokens are only logged at debug level.
func NewVerificationService(users *UserService, publisher EventPublisher, channel, secret string, ttl time.Duration, logger zerolog.Logger) *VerificationService {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &VerificationService{
		users:     users,
		publisher: publisher,
		channel:   channel,
		secret:    []byte(secret),
		ttl:       ttl,
		now:       time.Now,
		logger:    logger,
	}
}

// Request issues a verification token for user and hands it to the mailer.
func (s *VerificationService) Request(ctx context.Context, user types.User) (string, error) {
	if user.IsEmailVerified() {
		return "", ErrAlreadyVerified
	}

	now := s.now()
	expires := now.Add(s.ttl)
	claims := verificationClaims{
		Email:   user.Email,
		Purpose: verificationPurpose,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    verificationIssuer,
			Subject:   strconv.FormatInt(user.ID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign verification token: %w", err)
	}

	log := s.logger.With().Int64("user_id", user.ID).Logger()
	if s.publisher == nil || s.channel == "" {
		log.Debug().Str("token", token).Msg("verification token issued without a mailer")
		return token, nil
	}

	data, err := json.Marshal(VerificationRequest{
		UserID:    user.ID,
		Email:     user.Email,
		Name:      user.Name,
		Token:     token,
		ExpiresAt: expires.UTC(),
	})
	if err != nil {
		return "", err
	}
	attrs := map[string]string{"event": "email_verification", "content_type": "application/json"}
	if _, err := s.publisher.Publish(ctx, s.channel, data, attrs); err != nil {
		return "", fmt.Errorf("publish verification request: %w", err)
	}

	log.Info().Msg("verification requested")
	return token, nil
}

// Confirm validates token and marks the email it was issued for as verified.
// Confirming an already verified email is a no-op.
func (s *VerificationService) Confirm(ctx context.Context, token string) (types.User, error) {
	claims := verificationClaims{}
	parsed, err := jwt.ParseWithClaims(
		strings.TrimSpace(token),
		&claims,
		func(*jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(verificationIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !parsed.Valid || claims.Purpose != verificationPurpose {
		return types.User{}, ErrInvalidVerificationToken
	}

	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || userID < 1 {
		return types.User{}, ErrInvalidVerificationToken
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, ErrInvalidVerificationToken
		}
		return types.User{}, err
	}
	if !strings.EqualFold(user.Email, claims.Email) {
		return types.User{}, ErrInvalidVerificationToken
	}
	if user.IsEmailVerified() {
		return user, nil
	}

	now := s.now().UTC()
	if err := s.users.MarkEmailVerified(ctx, user.ID, now); err != nil {
		return types.User{}, err
	}
	user.EmailVerifiedAt = &now
	user.UpdatedAt = now

	s.logger.Info().Int64("user_id", user.ID).Msg("email verified")
	return user, nil
}
