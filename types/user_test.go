package types

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserJSONOmitsPasswordHash(t *testing.T) {
	verified := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)
	users := []User{
		{},
		{ID: 1, Name: "John Doe", Email: "john@example.com", PasswordHash: "$2a$10$secret"},
		{ID: 2, Name: "Jane", Email: "jane@example.com", PasswordHash: "$2a$10$other", EmailVerifiedAt: &verified},
	}

	for _, u := range users {
		data, err := json.Marshal(u)
		require.NoError(t, err)

		body := string(data)
		assert.NotContains(t, body, "password")
		if u.PasswordHash != "" {
			assert.False(t, strings.Contains(body, u.PasswordHash))
		}

		var fields map[string]any
		require.NoError(t, json.Unmarshal(data, &fields))
		assert.Contains(t, fields, "email_verified_at")
		assert.Contains(t, fields, "created_at")
	}
}

func TestAccessTokenJSONOmitsDigest(t *testing.T) {
	data, err := json.Marshal(AccessToken{ID: 3, UserID: 1, Name: DefaultTokenName, TokenHash: "abcdef"})
	require.NoError(t, err)
	assert.NotContains(t, string(data), "abcdef")
}

func TestAccessTokenExpired(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)

	assert.False(t, AccessToken{}.Expired(now))
	assert.True(t, AccessToken{ExpiresAt: &past}.Expired(now))
	assert.True(t, AccessToken{ExpiresAt: &now}.Expired(now))
	assert.False(t, AccessToken{ExpiresAt: &future}.Expired(now))
}
