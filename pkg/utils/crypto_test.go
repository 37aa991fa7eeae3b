package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func testKey() []byte {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	return key
}

func TestEncryptDecryptToken_RoundTrip(t *testing.T) {
	key := testKey()

	ciphertext, err := EncryptToken(key, "some-secret-token")
	require.NoError(t, err)

	parts := strings.Split(ciphertext, ":")
	require.Len(t, parts, 3, "expected iv:cipher:tag")

	plaintext, err := DecryptToken(key, ciphertext)
	require.NoError(t, err)
	require.Equal(t, "some-secret-token", plaintext)
}

func TestEncryptToken_FreshIVEachCall(t *testing.T) {
	key := testKey()

	first, err := EncryptToken(key, "same-input")
	require.NoError(t, err)
	second, err := EncryptToken(key, "same-input")
	require.NoError(t, err)

	require.NotEqual(t, first, second)
}

func TestDecryptToken_TamperDetected(t *testing.T) {
	key := testKey()

	ciphertext, err := EncryptToken(key, "some-secret-token")
	require.NoError(t, err)

	parts := strings.Split(ciphertext, ":")
	// Flip one hex digit of the ciphertext body.
	body := []byte(parts[1])
	if body[0] == 'a' {
		body[0] = 'b'
	} else {
		body[0] = 'a'
	}
	tampered := parts[0] + ":" + string(body) + ":" + parts[2]

	_, err = DecryptToken(key, tampered)
	require.ErrorIs(t, err, ErrCipherIntegrity)
}

func TestDecryptToken_WrongKey(t *testing.T) {
	ciphertext, err := EncryptToken(testKey(), "some-secret-token")
	require.NoError(t, err)

	other := make([]byte, 32)
	for i := range other {
		other[i] = byte(255 - i)
	}

	_, err = DecryptToken(other, ciphertext)
	require.ErrorIs(t, err, ErrCipherIntegrity)
}

func TestDecryptToken_MalformedFormat(t *testing.T) {
	key := testKey()

	for _, input := range []string{"", "abc", "aa:bb", "aa:bb:cc:dd", "zz:zz:zz"} {
		_, err := DecryptToken(key, input)
		require.Error(t, err, "input %q", input)
	}
}
