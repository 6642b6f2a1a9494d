package cmd

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadPasswordFromPipe(t *testing.T) {
	var prompt bytes.Buffer

	password, err := readPassword(strings.NewReader("s3cret-pass\r\nignored\n"), &prompt)
	require.NoError(t, err)
	assert.Equal(t, "s3cret-pass", password)
	assert.Empty(t, prompt.String(), "no prompt without a terminal")

	password, err = readPassword(strings.NewReader("no-newline"), &prompt)
	require.NoError(t, err)
	assert.Equal(t, "no-newline", password)
}

func TestCommandTree(t *testing.T) {
	for _, path := range [][]string{
		{"server"},
		{"migrate", "up"},
		{"migrate", "down"},
		{"users", "create"},
		{"attempts", "export"},
		{"attempts", "watch"},
	} {
		found, _, err := rootCmd.Find(path)
		require.NoError(t, err, path)
		assert.Equal(t, path[len(path)-1], found.Name())
	}
}
