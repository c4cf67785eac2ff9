package store

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncryptDecryptRoundtrip(t *testing.T) {
	plaintext := []byte(`{"openai":"sk-test"}`)

	env, err := Encrypt(plaintext, "correct horse")
	require.NoError(t, err)
	require.True(t, env.Encrypted)
	require.Len(t, env.Salt, 16)
	require.Len(t, env.IV, 12)
	require.NotEqual(t, plaintext, env.Data)

	decrypted, err := Decrypt(env, "correct horse")
	require.NoError(t, err)
	require.Equal(t, plaintext, decrypted)
}

func TestDecryptWrongPassphrase(t *testing.T) {
	env, err := Encrypt([]byte("secret"), "right")
	require.NoError(t, err)

	_, err = Decrypt(env, "wrong")
	require.ErrorIs(t, err, ErrInvalidPassphrase)
}

func TestDecryptTamperedCiphertext(t *testing.T) {
	env, err := Encrypt([]byte("secret"), "pass")
	require.NoError(t, err)

	env.Data[0] ^= 0xff
	_, err = Decrypt(env, "pass")
	require.ErrorIs(t, err, ErrInvalidPassphrase)
}

func TestDecryptPlainEnvelope(t *testing.T) {
	_, err := Decrypt(&Envelope{Data: []byte("plain")}, "pass")
	require.Error(t, err)
}

func TestEncryptUniqueSaltAndIV(t *testing.T) {
	first, err := Encrypt([]byte("same input"), "pass")
	require.NoError(t, err)
	second, err := Encrypt([]byte("same input"), "pass")
	require.NoError(t, err)

	require.NotEqual(t, first.Salt, second.Salt)
	require.NotEqual(t, first.IV, second.IV)
	require.NotEqual(t, first.Data, second.Data)
}
