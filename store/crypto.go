package store

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"io"

	"github.com/pkg/errors"
	"golang.org/x/crypto/pbkdf2"
)

const (
	// pbkdf2Iterations is the PBKDF2-HMAC-SHA-256 iteration count.
	pbkdf2Iterations = 100_000
	keyLen           = 32 // AES-256
	saltLen          = 16
	ivLen            = 12 // GCM standard nonce size
)

// ErrInvalidPassphrase is returned when decryption fails authentication,
// which means the supplied passphrase differs from the one used at
// encryption time (or the envelope was tampered with).
var ErrInvalidPassphrase = errors.New("invalid passphrase")

// Envelope is the encrypted-at-rest form of a credential bundle.
type Envelope struct {
	Data      []byte `json:"data"`
	Salt      []byte `json:"salt"`
	IV        []byte `json:"iv"`
	Encrypted bool   `json:"encrypted"`
}

// Encrypt seals plaintext into an envelope using AES-256-GCM with a key
// derived from the passphrase via PBKDF2-HMAC-SHA-256.
func Encrypt(plaintext []byte, passphrase string) (*Envelope, error) {
	salt := make([]byte, saltLen)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, errors.Wrap(err, "failed to generate salt")
	}
	iv := make([]byte, ivLen)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return nil, errors.Wrap(err, "failed to generate iv")
	}

	gcm, err := newGCM(passphrase, salt)
	if err != nil {
		return nil, err
	}

	return &Envelope{
		Data:      gcm.Seal(nil, iv, plaintext, nil),
		Salt:      salt,
		IV:        iv,
		Encrypted: true,
	}, nil
}

// Decrypt opens an envelope produced by Encrypt. Authentication failure is
// reported as ErrInvalidPassphrase.
func Decrypt(env *Envelope, passphrase string) ([]byte, error) {
	if env == nil || !env.Encrypted {
		return nil, errors.New("envelope is not encrypted")
	}
	if len(env.Salt) != saltLen || len(env.IV) != ivLen {
		return nil, ErrInvalidPassphrase
	}

	gcm, err := newGCM(passphrase, env.Salt)
	if err != nil {
		return nil, err
	}

	plaintext, err := gcm.Open(nil, env.IV, env.Data, nil)
	if err != nil {
		// GCM tag mismatch: wrong passphrase or tampered ciphertext.
		return nil, ErrInvalidPassphrase
	}
	return plaintext, nil
}

func newGCM(passphrase string, salt []byte) (cipher.AEAD, error) {
	key := pbkdf2.Key([]byte(passphrase), salt, pbkdf2Iterations, keyLen, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create cipher")
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create GCM")
	}
	return gcm, nil
}
