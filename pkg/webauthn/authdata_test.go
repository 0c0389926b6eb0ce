package webauthn

import (
	"crypto/sha256"
	"encoding/binary"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAuthDataWithoutAttestedCredentialData(t *testing.T) {
	rpIDHash := sha256.Sum256([]byte("example.com"))
	flags := AuthDataFlagUserPresent | AuthDataFlagUserVerified
	signCount := make([]byte, 4)
	binary.BigEndian.PutUint32(signCount, 7)

	d, err := ParseAuthData(slices.Concat(rpIDHash[:], []byte{byte(flags)}, signCount))
	require.NoError(t, err)
	assert.Equal(t, rpIDHash[:], d.RPIDHash)
	assert.True(t, d.Flags.UserPresent())
	assert.True(t, d.Flags.UserVerified())
	assert.False(t, d.Flags.AttestedCredentialDataIncluded())
	assert.Equal(t, uint32(7), d.SignCount)
	assert.Nil(t, d.AttestedCredentialData)
}

func TestParseAuthDataTooShort(t *testing.T) {
	_, err := ParseAuthData([]byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrAuthDataTooShort)
}
