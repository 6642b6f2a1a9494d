package types

import "time"

// User represents an account in the system.
// It contains identity, credential and audit metadata.
type User struct {
	// ID is the unique identifier of the user.
	ID int64 `json:"id" db:"id"`

	// Name is the user's display or full name.
	Name string `json:"name" db:"name"`

	// Email is the user's email address. It is stored lower-cased and is
	// unique across all accounts.
	Email string `json:"email" db:"email"`

	// EmailVerifiedAt is set once the user proves ownership of Email.
	EmailVerifiedAt *time.Time `json:"email_verified_at" db:"email_verified_at"`

	// PasswordHash stores the hashed representation of the user's password.
	// This field is never exposed in API responses.
	PasswordHash string `json:"-" db:"password_hash"`

	// CreatedAt is the timestamp when the user account was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the user account.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// IsEmailVerified reports whether the current email has been verified.
func (u User) IsEmailVerified() bool {
	return u.EmailVerifiedAt != nil
}
