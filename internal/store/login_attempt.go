package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jjudge-oj/accounts/types"
)

// LoginAttemptRepository appends and reads the login audit trail.
type LoginAttemptRepository struct {
	db *sql.DB
}

func NewLoginAttemptRepository(db *sql.DB) *LoginAttemptRepository {
	return &LoginAttemptRepository{db: db}
}

func (r *LoginAttemptRepository) Create(ctx context.Context, attempt types.LoginAttempt) error {
	const query = `
		INSERT INTO login_attempts (id, email, success, source_address, created_at)
		VALUES ($1, $2, $3, $4, $5)`
	if _, err := r.db.ExecContext(
		ctx,
		query,
		attempt.ID,
		attempt.Email,
		attempt.Success,
		attempt.SourceAddress,
		attempt.CreatedAt,
	); err != nil {
		return fmt.Errorf("insert login attempt: %w", err)
	}
	return nil
}

// ListAfter returns up to limit attempts positioned after cursor in
// (created_at, id) order, oldest first.
func (r *LoginAttemptRepository) ListAfter(ctx context.Context, cursor types.AttemptCursor, limit int) ([]types.LoginAttempt, error) {
	if limit < 1 {
		limit = 1000
	}

	const columns = `SELECT id, email, success, source_address, created_at FROM login_attempts`
	var (
		rows *sql.Rows
		err  error
	)
	if cursor.ID == "" {
		rows, err = r.db.QueryContext(ctx, columns+`
			WHERE created_at > $1
			ORDER BY created_at, id
			LIMIT $2`, cursor.CreatedAt, limit)
	} else {
		rows, err = r.db.QueryContext(ctx, columns+`
			WHERE (created_at, id) > ($1, $2)
			ORDER BY created_at, id
			LIMIT $3`, cursor.CreatedAt, cursor.ID, limit)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	attempts := make([]types.LoginAttempt, 0)
	for rows.Next() {
		var attempt types.LoginAttempt
		if err := rows.Scan(
			&attempt.ID,
			&attempt.Email,
			&attempt.Success,
			&attempt.SourceAddress,
			&attempt.CreatedAt,
		); err != nil {
			return nil, err
		}
		attempts = append(attempts, attempt)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return attempts, nil
}
