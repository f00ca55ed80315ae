package auth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_BcryptHasher(t *testing.T) {
	t.Parallel()

	h := BcryptHasher{}

	t.Run("hash and compare", func(t *testing.T) {
		t.Parallel()

		hash, err := h.Hash("correct horse battery staple")
		require.NoError(t, err)
		assert.NotEqual(t, "correct horse battery staple", hash)

		assert.NoError(t, h.Compare(hash, "correct horse battery staple"))
		assert.Error(t, h.Compare(hash, "wrong password"))
	})

	t.Run("long password over bcrypt limit", func(t *testing.T) {
		t.Parallel()

		long := strings.Repeat("a", 100)

		hash, err := h.Hash(long)
		require.NoError(t, err, "sha256 pre-hash should lift the 72 byte bcrypt limit")

		assert.NoError(t, h.Compare(hash, long))
		assert.Error(t, h.Compare(hash, long+"b"), "chars past byte 72 must still matter")
	})

	t.Run("hashes are salted", func(t *testing.T) {
		t.Parallel()

		first, err := h.Hash("same password")
		require.NoError(t, err)
		second, err := h.Hash("same password")
		require.NoError(t, err)

		assert.NotEqual(t, first, second)
	})
}
