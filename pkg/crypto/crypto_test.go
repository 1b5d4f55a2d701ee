package crypto

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func lowCost(t *testing.T) {
	t.Helper()
	previous := PasswordCost
	PasswordCost = bcrypt.MinCost
	t.Cleanup(func() { PasswordCost = previous })
}

func TestHashAndVerify(t *testing.T) {
	lowCost(t)

	hash, err := HashPassword("diamond-pickaxe")
	require.NoError(t, err)
	require.True(t, VerifyPassword(hash, "diamond-pickaxe"))
	require.False(t, VerifyPassword(hash, "wooden-pickaxe"))
	require.False(t, VerifyPassword("not-a-hash", "diamond-pickaxe"))
}

func TestHashRejectsOverlongPasswords(t *testing.T) {
	lowCost(t)

	_, err := HashPassword(strings.Repeat("a", 73))
	require.ErrorIs(t, err, ErrPasswordTooLong)
}

func TestNeedsRehash(t *testing.T) {
	lowCost(t)

	hash, err := HashPassword("creeper")
	require.NoError(t, err)
	require.False(t, NeedsRehash(hash))

	PasswordCost = bcrypt.MinCost + 1
	require.True(t, NeedsRehash(hash))
	require.True(t, NeedsRehash("plaintext"))
}

func TestGenerateToken(t *testing.T) {
	token, err := GenerateToken(32)
	require.NoError(t, err)
	require.Len(t, token, 43)

	other, err := GenerateToken(32)
	require.NoError(t, err)
	require.NotEqual(t, token, other)

	_, err = GenerateToken(0)
	require.Error(t, err)
}
