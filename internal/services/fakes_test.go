package services

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jjudge-oj/accounts/internal/store"
	"github.com/jjudge-oj/accounts/types"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
)

type memUserRepo struct {
	mu     sync.Mutex
	nextID int64
	users  map[int64]types.User
	err    error
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{users: map[int64]types.User{}}
}

func (r *memUserRepo) GetByID(_ context.Context, id int64) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return types.User{}, r.err
	}
	u, ok := r.users[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	return u, nil
}

func (r *memUserRepo) GetByEmail(_ context.Context, email string) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return types.User{}, r.err
	}
	for _, u := range r.users {
		if strings.EqualFold(u.Email, email) {
			return u, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (r *memUserRepo) List(_ context.Context, offset, limit int) ([]types.User, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]int64, 0, len(r.users))
	for id := range r.users {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := []types.User{}
	for i := offset; i < len(ids) && len(out) < limit; i++ {
		out = append(out, r.users[ids[i]])
	}
	return out, len(ids), nil
}

func (r *memUserRepo) EmailExists(_ context.Context, email string, excludeID int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return false, r.err
	}
	for id, u := range r.users {
		if id != excludeID && strings.EqualFold(u.Email, email) {
			return true, nil
		}
	}
	return false, nil
}

func (r *memUserRepo) Create(_ context.Context, user types.User) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return types.User{}, r.err
	}
	for _, u := range r.users {
		if strings.EqualFold(u.Email, user.Email) {
			return types.User{}, store.ErrDuplicateEmail
		}
	}
	r.nextID++
	user.ID = r.nextID
	user.CreatedAt = time.Now().UTC()
	user.UpdatedAt = user.CreatedAt
	r.users[user.ID] = user
	return user, nil
}

func (r *memUserRepo) Update(_ context.Context, user types.User) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[user.ID]; !ok {
		return types.User{}, store.ErrNotFound
	}
	for id, u := range r.users {
		if id != user.ID && strings.EqualFold(u.Email, user.Email) {
			return types.User{}, store.ErrDuplicateEmail
		}
	}
	user.UpdatedAt = time.Now().UTC()
	r.users[user.ID] = user
	return user, nil
}

func (r *memUserRepo) MarkEmailVerified(_ context.Context, id int64, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return store.ErrNotFound
	}
	u.EmailVerifiedAt = &at
	r.users[id] = u
	return nil
}

func (r *memUserRepo) Delete(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[id]; !ok {
		return store.ErrNotFound
	}
	delete(r.users, id)
	return nil
}

func (r *memUserRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.users)
}

type memTokenRepo struct {
	mu        sync.Mutex
	nextID    int64
	tokens    map[string]types.AccessToken
	createErr error
	deleteErr error
}

func newMemTokenRepo() *memTokenRepo {
	return &memTokenRepo{tokens: map[string]types.AccessToken{}}
}

func (r *memTokenRepo) Create(_ context.Context, token types.AccessToken) (types.AccessToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return types.AccessToken{}, r.createErr
	}
	r.nextID++
	token.ID = r.nextID
	r.tokens[token.TokenHash] = token
	return token, nil
}

func (r *memTokenRepo) GetByHash(_ context.Context, hash string) (types.AccessToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tokens[hash]
	if !ok {
		return types.AccessToken{}, store.ErrNotFound
	}
	return t, nil
}

func (r *memTokenRepo) DeleteForUser(_ context.Context, userID int64, hash string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.deleteErr != nil {
		return false, r.deleteErr
	}
	t, ok := r.tokens[hash]
	if !ok || t.UserID != userID {
		return false, nil
	}
	delete(r.tokens, hash)
	return true, nil
}

func (r *memTokenRepo) TouchLastUsed(_ context.Context, id int64, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for hash, t := range r.tokens {
		if t.ID == id {
			t.LastUsedAt = &at
			r.tokens[hash] = t
		}
	}
	return nil
}

func (r *memTokenRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tokens)
}

type memAttemptRepo struct {
	mu       sync.Mutex
	attempts []types.LoginAttempt
	err      error
}

func (r *memAttemptRepo) Create(_ context.Context, attempt types.LoginAttempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.attempts = append(r.attempts, attempt)
	return nil
}

func (r *memAttemptRepo) ListAfter(_ context.Context, cursor types.AttemptCursor, limit int) ([]types.LoginAttempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	sorted := append([]types.LoginAttempt(nil), r.attempts...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].CreatedAt.Equal(sorted[j].CreatedAt) {
			return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
		}
		return sorted[i].ID < sorted[j].ID
	})
	out := []types.LoginAttempt{}
	for _, a := range sorted {
		after := a.CreatedAt.After(cursor.CreatedAt) ||
			(cursor.ID != "" && a.CreatedAt.Equal(cursor.CreatedAt) && a.ID > cursor.ID)
		if after && len(out) < limit {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *memAttemptRepo) all() []types.LoginAttempt {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]types.LoginAttempt(nil), r.attempts...)
}

type published struct {
	channel string
	data    []byte
	attrs   map[string]string
}

type fakePublisher struct {
	mu       sync.Mutex
	messages []published
	err      error
}

func (p *fakePublisher) Publish(_ context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return "", p.err
	}
	p.messages = append(p.messages, published{channel: channel, data: data, attrs: attrs})
	return "msg-id", nil
}

var errBoom = errors.New("boom")

type testEnv struct {
	users    *memUserRepo
	tokens   *memTokenRepo
	attempts *memAttemptRepo
	events   *fakePublisher

	userService *UserService
	verifier    *CredentialVerifier
	issuer      *TokenIssuer
	attemptLog  *LoginAttemptLogger
	auth        *AuthService
}

func newTestEnv() *testEnv {
	logger := zerolog.Nop()
	env := &testEnv{
		users:    newMemUserRepo(),
		tokens:   newMemTokenRepo(),
		attempts: &memAttemptRepo{},
		events:   &fakePublisher{},
	}
	hasher := NewBcryptHasher(bcrypt.MinCost)
	env.userService = NewUserService(env.users, hasher, 8, logger)
	verifier, err := NewCredentialVerifier(env.userService, hasher)
	if err != nil {
		panic(err)
	}
	env.verifier = verifier
	env.issuer = NewTokenIssuer(env.tokens, env.userService, "test-key", 0, logger)
	env.attemptLog = NewLoginAttemptLogger(env.attempts, env.events, "login-attempts", logger)
	env.auth = NewAuthService(env.userService, env.verifier, env.issuer, env.attemptLog, logger)
	return env
}
