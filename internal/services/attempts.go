package services

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jjudge-oj/accounts/types"
	"github.com/rs/zerolog"
)

const (
	attemptWriteTimeout = 5 * time.Second
	maxAttemptEmailLen  = 255
)

// LoginAttemptRepository appends login attempts to durable storage.
type LoginAttemptRepository interface {
	Create(ctx context.Context, attempt types.LoginAttempt) error
}

// EventPublisher is the broker surface used to fan out audit events.
type EventPublisher interface {
	Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error)
}

// LoginAttemptLogger records every login attempt. It is a pure sink: sink
// failures are logged and never reach the caller.
type LoginAttemptLogger struct {
	repo      LoginAttemptRepository
	publisher EventPublisher
	channel   string
	logger    zerolog.Logger
	now       func() time.Time
	newID     func() string
}

// NewLoginAttemptLogger constructs the logger. publisher may be nil.
func NewLoginAttemptLogger(repo LoginAttemptRepository, publisher EventPublisher, channel string, logger zerolog.Logger) *LoginAttemptLogger {
	return &LoginAttemptLogger{
		repo:      repo,
		publisher: publisher,
		channel:   channel,
		logger:    logger,
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// Log appends one attempt for email with the given outcome.
func (l *LoginAttemptLogger) Log(ctx context.Context, email string, success bool, sourceAddress string) {
	attempt := types.LoginAttempt{
		ID:        l.newID(),
		Email:     attemptEmail(email),
		Success:   success,
		CreatedAt: l.now().UTC(),
	}
	if addr := strings.TrimSpace(sourceAddress); addr != "" {
		attempt.SourceAddress = &addr
	}

	status := "failure"
	if success {
		status = "success"
	}
	ip := "unknown"
	if attempt.SourceAddress != nil {
		ip = *attempt.SourceAddress
	}
	l.logger.Info().
		Str("email", attempt.Email).
		Str("status", status).
		Str("ip", ip).
		Msg("login attempt")

	// The audit write outlives a cancelled request.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), attemptWriteTimeout)
	defer cancel()

	if l.repo != nil {
		if err := l.repo.Create(ctx, attempt); err != nil {
			l.logger.Error().Err(err).Str("attempt_id", attempt.ID).Msg("failed to persist login attempt")
		}
	}

	if l.publisher != nil && l.channel != "" {
		data, err := json.Marshal(attempt)
		if err != nil {
			l.logger.Error().Err(err).Msg("failed to encode login attempt event")
			return
		}
		attrs := map[string]string{
			"event":        "login_attempt",
			"success":      strconv.FormatBool(success),
			"content_type": "application/json",
		}
		if _, err := l.publisher.Publish(ctx, l.channel, data, attrs); err != nil {
			l.logger.Error().Err(err).Str("attempt_id", attempt.ID).Msg("failed to publish login attempt")
		}
	}
}

// attemptEmail makes a submitted email safe for a Postgres text column. Long
// values are cut to maxAttemptEmailLen bytes on a rune boundary.
func attemptEmail(email string) string {
	email = strings.ToValidUTF8(email, "\uFFFD")
	email = strings.ReplaceAll(email, "\x00", "")
	email = strings.TrimSpace(email)
	if len(email) <= maxAttemptEmailLen {
		return email
	}
	n := maxAttemptEmailLen
	for n > 0 && !utf8.RuneStart(email[n]) {
		n--
	}
	return email[:n]
}
