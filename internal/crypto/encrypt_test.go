package crypto

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEncryptor(t *testing.T) *TokenEncryptor {
	t.Helper()
	encryptor, err := NewTokenEncryptor(strings.Repeat("ab", 32))
	require.NoError(t, err)
	return encryptor
}

func TestNewTokenEncryptorInvalidKeys(t *testing.T) {
	tests := []struct {
		name string
		key  string
	}{
		{name: "empty", key: ""},
		{name: "not hex", key: strings.Repeat("zz", 32)},
		{name: "too short", key: "abcd"},
		{name: "too long", key: strings.Repeat("ab", 48)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewTokenEncryptor(tt.key)
			assert.Error(t, err)
		})
	}
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	encryptor := newTestEncryptor(t)

	ciphertext, nonce, err := encryptor.Encrypt("oauth-access-token")
	require.NoError(t, err)
	require.NotEmpty(t, ciphertext)
	require.Len(t, nonce, 12)

	plaintext, err := encryptor.Decrypt(ciphertext, nonce)
	require.NoError(t, err)
	assert.Equal(t, "oauth-access-token", plaintext)
}

func TestEncryptEmptyPlaintext(t *testing.T) {
	encryptor := newTestEncryptor(t)

	_, _, err := encryptor.Encrypt("")
	assert.Error(t, err)
}

func TestEncryptWithNonceSharedNonce(t *testing.T) {
	encryptor := newTestEncryptor(t)

	accessCipher, nonce, err := encryptor.Encrypt("access-token")
	require.NoError(t, err)

	refreshCipher, err := encryptor.EncryptWithNonce("refresh-token", nonce)
	require.NoError(t, err)

	access, err := encryptor.Decrypt(accessCipher, nonce)
	require.NoError(t, err)
	assert.Equal(t, "access-token", access)

	refresh, err := encryptor.Decrypt(refreshCipher, nonce)
	require.NoError(t, err)
	assert.Equal(t, "refresh-token", refresh)
}

func TestEncryptWithNonceBadNonceSize(t *testing.T) {
	encryptor := newTestEncryptor(t)

	_, err := encryptor.EncryptWithNonce("token", []byte("short"))
	assert.Error(t, err)
}

func TestDecryptWrongNonce(t *testing.T) {
	encryptor := newTestEncryptor(t)

	ciphertext, _, err := encryptor.Encrypt("token")
	require.NoError(t, err)

	_, err = encryptor.Decrypt(ciphertext, make([]byte, 12))
	assert.Error(t, err)
}

func TestDecryptTamperedCiphertext(t *testing.T) {
	encryptor := newTestEncryptor(t)

	ciphertext, nonce, err := encryptor.Encrypt("token")
	require.NoError(t, err)

	ciphertext[0] ^= 0xff
	_, err = encryptor.Decrypt(ciphertext, nonce)
	assert.Error(t, err)
}

func TestGenerateKey(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)
	assert.Len(t, key, 64)

	// A generated key must be directly usable.
	_, err = NewTokenEncryptor(key)
	assert.NoError(t, err)
}
