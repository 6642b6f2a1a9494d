package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jjudge-oj/accounts/types"
)

// TokenRepository handles persistence for access tokens.
type TokenRepository struct {
	db *sql.DB
}

func NewTokenRepository(db *sql.DB) *TokenRepository {
	return &TokenRepository{db: db}
}

func (r *TokenRepository) Create(ctx context.Context, token types.AccessToken) (types.AccessToken, error) {
	if token.CreatedAt.IsZero() {
		token.CreatedAt = time.Now().UTC()
	}

	const query = `
		INSERT INTO access_tokens (user_id, name, token_hash, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		token.UserID,
		token.Name,
		token.TokenHash,
		token.ExpiresAt,
		token.CreatedAt,
	).Scan(&token.ID); err != nil {
		return types.AccessToken{}, fmt.Errorf("insert access token: %w", err)
	}
	return token, nil
}

func (r *TokenRepository) GetByHash(ctx context.Context, tokenHash string) (types.AccessToken, error) {
	const query = `
		SELECT id, user_id, name, token_hash, last_used_at, expires_at, created_at
		FROM access_tokens
		WHERE token_hash = $1`
	var token types.AccessToken
	err := r.db.QueryRowContext(ctx, query, tokenHash).Scan(
		&token.ID,
		&token.UserID,
		&token.Name,
		&token.TokenHash,
		&token.LastUsedAt,
		&token.ExpiresAt,
		&token.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.AccessToken{}, ErrNotFound
		}
		return types.AccessToken{}, err
	}
	return token, nil
}

// DeleteForUser removes the token with the given digest when it belongs to
// userID. It reports whether a row was removed.
func (r *TokenRepository) DeleteForUser(ctx context.Context, userID int64, tokenHash string) (bool, error) {
	const query = `DELETE FROM access_tokens WHERE user_id = $1 AND token_hash = $2`
	result, err := r.db.ExecContext(ctx, query, userID, tokenHash)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (r *TokenRepository) TouchLastUsed(ctx context.Context, id int64, at time.Time) error {
	const query = `UPDATE access_tokens SET last_used_at = $1 WHERE id = $2`
	_, err := r.db.ExecContext(ctx, query, at, id)
	return err
}
