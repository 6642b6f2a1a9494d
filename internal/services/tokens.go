package services

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jjudge-oj/accounts/internal/store"
	"github.com/jjudge-oj/accounts/types"
	"github.com/rs/zerolog"
)

const tokenBytes = 40

// TokenRepository defines persistence operations for access tokens.
type TokenRepository interface {
	Create(ctx context.Context, token types.AccessToken) (types.AccessToken, error)
	GetByHash(ctx context.Context, tokenHash string) (types.AccessToken, error)
	DeleteForUser(ctx context.Context, userID int64, tokenHash string) (bool, error)
	TouchLastUsed(ctx context.Context, id int64, at time.Time) error
}

// UserGetter resolves a token's owner.
type UserGetter interface {
	GetByID(ctx context.Context, id int64) (types.User, error)
}

// TokenIssuer mints opaque bearer tokens. Only an HMAC digest of each token
// is stored; the plaintext is returned once by Generate.
type TokenIssuer struct {
	repo   TokenRepository
	users  UserGetter
	key    []byte
	ttl    time.Duration
	now    func() time.Time
	random io.Reader
	logger zerolog.Logger
}

// NewTokenIssuer constructs an issuer. ttl of zero issues non-expiring tokens.
func NewTokenIssuer(repo TokenRepository, users UserGetter, key string, ttl time.Duration, logger zerolog.Logger) *TokenIssuer {
	return &TokenIssuer{
		repo:   repo,
		users:  users,
		key:    []byte(key),
		ttl:    ttl,
		now:    time.Now,
		random: rand.Reader,
		logger: logger,
	}
}

// Generate stores a new token for user and returns its plaintext form.
// Existing tokens of the user stay valid.
func (i *TokenIssuer) Generate(ctx context.Context, user types.User, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = types.DefaultTokenName
	}

	buf := make([]byte, tokenBytes)
	if _, err := io.ReadFull(i.random, buf); err != nil {
		return "", fmt.Errorf("read token entropy: %w", err)
	}
	plaintext := base64.RawURLEncoding.EncodeToString(buf)

	now := i.now().UTC()
	token := types.AccessToken{
		UserID:    user.ID,
		Name:      name,
		TokenHash: i.digest(plaintext),
		CreatedAt: now,
	}
	if i.ttl > 0 {
		expires := now.Add(i.ttl)
		token.ExpiresAt = &expires
	}

	if _, err := i.repo.Create(ctx, token); err != nil {
		return "", fmt.Errorf("store token: %w", err)
	}

	i.logger.Info().Int64("user_id", user.ID).Str("token_name", name).Msg("token issued")
	return plaintext, nil
}

// Authenticate resolves a presented plaintext token to its owner.
func (i *TokenIssuer) Authenticate(ctx context.Context, plaintext string) (types.User, types.AccessToken, error) {
	plaintext = strings.TrimSpace(plaintext)
	if plaintext == "" {
		return types.User{}, types.AccessToken{}, ErrInvalidToken
	}

	token, err := i.repo.GetByHash(ctx, i.digest(plaintext))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, types.AccessToken{}, ErrInvalidToken
		}
		return types.User{}, types.AccessToken{}, fmt.Errorf("lookup token: %w", err)
	}

	now := i.now().UTC()
	if token.Expired(now) {
		return types.User{}, types.AccessToken{}, ErrInvalidToken
	}

	user, err := i.users.GetByID(ctx, token.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, types.AccessToken{}, ErrInvalidToken
		}
		return types.User{}, types.AccessToken{}, fmt.Errorf("lookup token owner: %w", err)
	}

	if err := i.repo.TouchLastUsed(ctx, token.ID, now); err != nil {
		i.logger.Warn().Err(err).Int64("token_id", token.ID).Msg("failed to record token use")
	} else {
		token.LastUsedAt = &now
	}

	return user, token, nil
}

// Revoke deletes the stored token matching plaintext for userID. It reports
// false when nothing matched.
func (i *TokenIssuer) Revoke(ctx context.Context, userID int64, plaintext string) (bool, error) {
	plaintext = strings.TrimSpace(plaintext)
	if plaintext == "" {
		return false, nil
	}
	return i.repo.DeleteForUser(ctx, userID, i.digest(plaintext))
}

func (i *TokenIssuer) digest(plaintext string) string {
	mac := hmac.New(sha256.New, i.key)
	mac.Write([]byte(plaintext))
	return hex.EncodeToString(mac.Sum(nil))
}
