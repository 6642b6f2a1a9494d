package types

import "time"

// LoginAttempt is an append-only audit record of one login call.
// Email holds the raw submitted value whether or not it resolves to an account.
type LoginAttempt struct {
	ID            string    `json:"id" db:"id"`
	Email         string    `json:"email" db:"email"`
	Success       bool      `json:"success" db:"success"`
	SourceAddress *string   `json:"source_address,omitempty" db:"source_address"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}

// AttemptCursor is a position in the audit trail ordered by (CreatedAt, ID).
// An empty ID means "after every attempt created at CreatedAt".
type AttemptCursor struct {
	CreatedAt time.Time `json:"created_at"`
	ID        string    `json:"id,omitempty"`
}
