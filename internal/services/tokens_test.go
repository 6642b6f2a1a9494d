package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"testing"
	"time"

	"github.com/jjudge-oj/accounts/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedUser(t *testing.T, env *testEnv) types.User {
	t.Helper()
	user, err := env.userService.Create(context.Background(), NewUser{
		Name:     "John Doe",
		Email:    "john@example.com",
		Password: "password123",
	})
	require.NoError(t, err)
	return user
}

func TestTokenIssuer_GenerateStoresDigestOnly(t *testing.T) {
	env := newTestEnv()
	user := seedUser(t, env)

	plaintext, err := env.issuer.Generate(context.Background(), user, "")
	require.NoError(t, err)

	raw, err := base64.RawURLEncoding.DecodeString(plaintext)
	require.NoError(t, err)
	assert.Len(t, raw, tokenBytes)

	require.Len(t, env.tokens.tokens, 1)
	for hash, tok := range env.tokens.tokens {
		assert.Len(t, hash, 64)
		assert.NotContains(t, hash, plaintext)
		assert.Equal(t, user.ID, tok.UserID)
		assert.Equal(t, types.DefaultTokenName, tok.Name)
		assert.Nil(t, tok.ExpiresAt)
	}
}

func TestTokenIssuer_EntropyFailure(t *testing.T) {
	env := newTestEnv()
	user := seedUser(t, env)
	env.issuer.random = bytes.NewReader([]byte("short"))

	_, err := env.issuer.Generate(context.Background(), user, "cli")
	require.Error(t, err)
	assert.Zero(t, env.tokens.count())
}

func TestTokenIssuer_AuthenticateTouchesLastUsed(t *testing.T) {
	env := newTestEnv()
	user := seedUser(t, env)
	ctx := context.Background()

	plaintext, err := env.issuer.Generate(ctx, user, "cli")
	require.NoError(t, err)

	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	env.issuer.now = func() time.Time { return fixed }

	authed, tok, err := env.issuer.Authenticate(ctx, " "+plaintext+" ")
	require.NoError(t, err)
	assert.Equal(t, user.ID, authed.ID)
	assert.Equal(t, "cli", tok.Name)
	require.NotNil(t, tok.LastUsedAt)
	assert.True(t, fixed.Equal(*tok.LastUsedAt))
}

func TestTokenIssuer_AuthenticateRejects(t *testing.T) {
	env := newTestEnv()
	user := seedUser(t, env)
	ctx := context.Background()

	plaintext, err := env.issuer.Generate(ctx, user, "")
	require.NoError(t, err)

	cases := map[string]string{
		"empty":        "",
		"unknown":      "definitely-not-issued",
		"wrong case":   flipFirst(plaintext),
		"with a space": plaintext + " x",
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			_, _, err := env.issuer.Authenticate(ctx, token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestTokenIssuer_KeyChangeInvalidatesTokens(t *testing.T) {
	env := newTestEnv()
	user := seedUser(t, env)
	ctx := context.Background()

	plaintext, err := env.issuer.Generate(ctx, user, "")
	require.NoError(t, err)

	other := NewTokenIssuer(env.tokens, env.userService, "rotated-key", 0, zerolog.Nop())
	_, _, err = other.Authenticate(ctx, plaintext)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenIssuer_Expiry(t *testing.T) {
	env := newTestEnv()
	user := seedUser(t, env)
	ctx := context.Background()

	issuer := NewTokenIssuer(env.tokens, env.userService, "test-key", time.Hour, zerolog.Nop())
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	issuer.now = func() time.Time { return start }

	plaintext, err := issuer.Generate(ctx, user, "")
	require.NoError(t, err)

	issuer.now = func() time.Time { return start.Add(59 * time.Minute) }
	_, _, err = issuer.Authenticate(ctx, plaintext)
	require.NoError(t, err)

	issuer.now = func() time.Time { return start.Add(time.Hour) }
	_, _, err = issuer.Authenticate(ctx, plaintext)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenIssuer_DeletedOwner(t *testing.T) {
	env := newTestEnv()
	user := seedUser(t, env)
	ctx := context.Background()

	plaintext, err := env.issuer.Generate(ctx, user, "")
	require.NoError(t, err)
	require.NoError(t, env.users.Delete(ctx, user.ID))

	_, _, err = env.issuer.Authenticate(ctx, plaintext)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenIssuer_Revoke(t *testing.T) {
	env := newTestEnv()
	user := seedUser(t, env)
	ctx := context.Background()

	plaintext, err := env.issuer.Generate(ctx, user, "")
	require.NoError(t, err)

	ok, err := env.issuer.Revoke(ctx, user.ID+1, plaintext)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = env.issuer.Revoke(ctx, user.ID, "")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = env.issuer.Revoke(ctx, user.ID, plaintext)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Zero(t, env.tokens.count())
}

func flipFirst(s string) string {
	b := []byte(s)
	if b[0] == 'A' {
		b[0] = 'B'
	} else {
		b[0] = 'A'
	}
	return string(b)
}
