package crypto

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSealer_RoundTrip(t *testing.T) {
	key := bytes.Repeat([]byte{0x42}, KeySize)
	sealer, err := NewSealer(key)
	require.NoError(t, err)

	plaintext := []byte("a secret preimage")
	sealed, err := sealer.Seal(plaintext)
	require.NoError(t, err)
	require.NotEqual(t, plaintext, sealed)

	opened, err := sealer.Open(sealed)
	require.NoError(t, err)
	require.Equal(t, plaintext, opened)
}

func TestSealer_RejectsTamperedCiphertext(t *testing.T) {
	key := bytes.Repeat([]byte{0x7}, KeySize)
	sealer, err := NewSealer(key)
	require.NoError(t, err)

	sealed, err := sealer.Seal([]byte("hello"))
	require.NoError(t, err)
	sealed[len(sealed)-1] ^= 0xFF

	_, err = sealer.Open(sealed)
	require.Error(t, err)
}

func TestNewSealer_RejectsWrongKeySize(t *testing.T) {
	_, err := NewSealer([]byte("too short"))
	require.Error(t, err)
}
