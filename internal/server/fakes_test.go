package server

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jjudge-oj/accounts/config"
	"github.com/jjudge-oj/accounts/internal/services"
	"github.com/jjudge-oj/accounts/internal/store"
	"github.com/jjudge-oj/accounts/types"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
)

// memStore backs the three repositories with maps guarded by one mutex.
type memStore struct {
	mu       sync.Mutex
	userSeq  int64
	tokenSeq int64
	users    map[int64]types.User
	tokens   map[string]types.AccessToken
	attempts []types.LoginAttempt
}

func newMemStore() *memStore {
	return &memStore{users: map[int64]types.User{}, tokens: map[string]types.AccessToken{}}
}

type memUsers struct{ *memStore }
type memTokens struct{ *memStore }
type memAttempts struct{ *memStore }

func (s memUsers) GetByID(_ context.Context, id int64) (types.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	return u, nil
}

func (s memUsers) GetByEmail(_ context.Context, email string) (types.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			return u, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (s memUsers) List(_ context.Context, offset, limit int) ([]types.User, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]int64, 0, len(s.users))
	for id := range s.users {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := []types.User{}
	for i := offset; i < len(ids) && len(out) < limit; i++ {
		out = append(out, s.users[ids[i]])
	}
	return out, len(ids), nil
}

func (s memUsers) EmailExists(_ context.Context, email string, excludeID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, u := range s.users {
		if id != excludeID && strings.EqualFold(u.Email, email) {
			return true, nil
		}
	}
	return false, nil
}

func (s memUsers) Create(ctx context.Context, user types.User) (types.User, error) {
	if exists, _ := s.EmailExists(ctx, user.Email, 0); exists {
		return types.User{}, store.ErrDuplicateEmail
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userSeq++
	user.ID = s.userSeq
	user.CreatedAt = time.Now().UTC()
	user.UpdatedAt = user.CreatedAt
	s.users[user.ID] = user
	return user, nil
}

func (s memUsers) Update(_ context.Context, user types.User) (types.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[user.ID]; !ok {
		return types.User{}, store.ErrNotFound
	}
	user.UpdatedAt = time.Now().UTC()
	s.users[user.ID] = user
	return user, nil
}

func (s memUsers) MarkEmailVerified(_ context.Context, id int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return store.ErrNotFound
	}
	u.EmailVerifiedAt = &at
	s.users[id] = u
	return nil
}

func (s memUsers) Delete(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.users, id)
	for hash, t := range s.tokens {
		if t.UserID == id {
			delete(s.tokens, hash)
		}
	}
	return nil
}

func (s memTokens) Create(_ context.Context, token types.AccessToken) (types.AccessToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokenSeq++
	token.ID = s.tokenSeq
	s.tokens[token.TokenHash] = token
	return token, nil
}

func (s memTokens) GetByHash(_ context.Context, hash string) (types.AccessToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tokens[hash]
	if !ok {
		return types.AccessToken{}, store.ErrNotFound
	}
	return t, nil
}

func (s memTokens) DeleteForUser(_ context.Context, userID int64, hash string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tokens[hash]
	if !ok || t.UserID != userID {
		return false, nil
	}
	delete(s.tokens, hash)
	return true, nil
}

func (s memTokens) TouchLastUsed(context.Context, int64, time.Time) error { return nil }

func (s memAttempts) Create(_ context.Context, a types.LoginAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts = append(s.attempts, a)
	return nil
}

func (s *memStore) attemptCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.attempts)
}

type capturePublisher struct {
	mu     sync.Mutex
	events map[string][][]byte
}

func (p *capturePublisher) Publish(_ context.Context, channel string, data []byte, _ map[string]string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.events == nil {
		p.events = map[string][][]byte{}
	}
	p.events[channel] = append(p.events[channel], data)
	return "id", nil
}

func (p *capturePublisher) last(channel string) []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	events := p.events[channel]
	if len(events) == 0 {
		return nil
	}
	return events[len(events)-1]
}

func testConfig() config.Config {
	return config.Config{
		Auth: config.AuthConfig{
			TokenKey:          "test-token-key",
			JWTSecret:         "test-jwt-secret",
			VerificationTTL:   time.Hour,
			BcryptCost:        bcrypt.MinCost,
			MinPasswordLength: 8,
		},
		MQ: config.MQConfig{
			LoginAttemptsChannel:     "login-attempts",
			EmailVerificationChannel: "email-verification",
		},
	}
}

func newMemServices(cfg config.Config, mem *memStore, publisher services.EventPublisher) Services {
	logger := zerolog.Nop()
	hasher := services.NewBcryptHasher(cfg.Auth.BcryptCost)
	users := services.NewUserService(memUsers{mem}, hasher, cfg.Auth.MinPasswordLength, logger)
	verifier, err := services.NewCredentialVerifier(users, hasher)
	if err != nil {
		panic(err)
	}
	tokens := services.NewTokenIssuer(memTokens{mem}, users, cfg.Auth.TokenKey, cfg.Auth.TokenTTL, logger)
	attempts := services.NewLoginAttemptLogger(memAttempts{mem}, publisher, cfg.MQ.LoginAttemptsChannel, logger)
	return Services{
		Auth:   services.NewAuthService(users, verifier, tokens, attempts, logger),
		Users:  users,
		Tokens: tokens,
		Verification: services.NewVerificationService(
			users, publisher, cfg.MQ.EmailVerificationChannel, cfg.Auth.VerificationSecret(), cfg.Auth.VerificationTTL, logger,
		),
	}
}
