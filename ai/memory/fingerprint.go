package memory

import (
	"crypto/sha256"
	"encoding/hex"
	"math/big"

	"github.com/pkg/errors"
)

// Fingerprint is the content address of a chunk: the first 16 bytes of
// SHA-256 over the chunk text, interpreted big-endian as an unsigned
// 128-bit integer.
type Fingerprint [16]byte

// ComputeFingerprint hashes the chunk text into its content address.
func ComputeFingerprint(text string) Fingerprint {
	sum := sha256.Sum256([]byte(text))

	var fp Fingerprint
	copy(fp[:], sum[:16])
	return fp
}

// ParseFingerprint decodes the 32-character hex form used in the store.
func ParseFingerprint(s string) (Fingerprint, error) {
	var fp Fingerprint
	raw, err := hex.DecodeString(s)
	if err != nil {
		return fp, errors.Wrap(err, "invalid fingerprint encoding")
	}
	if len(raw) != len(fp) {
		return fp, errors.Errorf("fingerprint must be %d bytes, got %d", len(fp), len(raw))
	}
	copy(fp[:], raw)
	return fp, nil
}

// Hex returns the 32-character lowercase hex form persisted alongside
// the chunk.
func (f Fingerprint) Hex() string {
	return hex.EncodeToString(f[:])
}

// BigInt returns the fingerprint as an unsigned 128-bit integer.
func (f Fingerprint) BigInt() *big.Int {
	return new(big.Int).SetBytes(f[:])
}

// Bitmap renders the fingerprint as 128 bits, most significant first.
// This is a display view over the hash, not a re-encoding.
func (f Fingerprint) Bitmap() [128]bool {
	var bits [128]bool
	for i := 0; i < 128; i++ {
		bits[i] = f[i/8]&(1<<(7-i%8)) != 0
	}
	return bits
}

// FingerprintFromBitmap decodes the bitmap view back into a fingerprint.
func FingerprintFromBitmap(bits [128]bool) Fingerprint {
	var fp Fingerprint
	for i := 0; i < 128; i++ {
		if bits[i] {
			fp[i/8] |= 1 << (7 - i%8)
		}
	}
	return fp
}
