package types

import "time"

// DefaultTokenName labels tokens issued by register and login.
const DefaultTokenName = "auth_token"

// AccessToken is the stored side of a bearer token. The plaintext value is
// handed to the client once and only its digest is kept.
type AccessToken struct {
	ID     int64  `json:"id" db:"id"`
	UserID int64  `json:"user_id" db:"user_id"`
	Name   string `json:"name" db:"name"`

	// TokenHash is the keyed digest of the plaintext token.
	TokenHash string `json:"-" db:"token_hash"`

	LastUsedAt *time.Time `json:"last_used_at" db:"last_used_at"`
	ExpiresAt  *time.Time `json:"expires_at" db:"expires_at"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
}

// Expired reports whether the token is past its expiry at now.
func (t AccessToken) Expired(now time.Time) bool {
	return t.ExpiresAt != nil && !now.Before(*t.ExpiresAt)
}
