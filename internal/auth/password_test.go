package auth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeneratePasswordHash_VerifiesOriginalOnly(t *testing.T) {
	hash, err := GeneratePasswordHash("s3cret-pass")
	require.NoError(t, err)

	assert.NotEqual(t, "s3cret-pass", hash)
	assert.True(t, VerifyPassword(hash, "s3cret-pass"))
	assert.False(t, VerifyPassword(hash, "s3cret-pasS"))
	assert.False(t, VerifyPassword(hash, ""))
}

func TestGeneratePasswordHash_Salted(t *testing.T) {
	first, err := GeneratePasswordHash("same-password")
	require.NoError(t, err)
	second, err := GeneratePasswordHash("same-password")
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
	assert.True(t, VerifyPassword(first, "same-password"))
	assert.True(t, VerifyPassword(second, "same-password"))
}

func TestVerifyPassword_CorruptHash(t *testing.T) {
	assert.False(t, VerifyPassword("not-a-bcrypt-hash", "anything"))
	assert.False(t, VerifyPassword("", "anything"))
}

func TestGeneratePasswordHash_TooLong(t *testing.T) {
	_, err := GeneratePasswordHash(strings.Repeat("a", MaxPasswordBytes+1))
	assert.Error(t, err)
}
