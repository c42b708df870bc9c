package security

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/pbkdf2"
)

// --- Argon2id Configuration ---
// These parameters follow OWASP recommendations for a balance of security and performance.
type HashParams struct {
	Memory      uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

var DefaultParams = HashParams{
	Memory:      64 * 1024, // 64MB
	Iterations:  3,
	Parallelism: 2,
	SaltLength:  16,
	KeyLength:   32,
}

// Legacy PBKDF2-HMAC-SHA256 parameter set. Hashes carrying the pbkdf2 prefix
// were produced by the previous account store and stay verifiable.
const (
	legacyPBKDF2Iterations = 100000
	legacyPBKDF2KeyLength  = 32

	argon2Prefix = "$argon2id$"
	pbkdf2Prefix = "$pbkdf2-sha256$"
)

var ErrInvalidHashFormat = errors.New("invalid hash format")

// PasswordHasher derives salted password digests. It holds only read-only
// parameters and is safe for concurrent use.
type PasswordHasher struct {
	params HashParams
	rand   io.Reader
}

// NewPasswordHasher returns a hasher using DefaultParams with the argon2id time
// cost replaced by cost (values below 1 keep the default).
func NewPasswordHasher(cost int) *PasswordHasher {
	params := DefaultParams
	if cost > 0 {
		params.Iterations = uint32(cost)
	}
	return NewPasswordHasherWithParams(params)
}

func NewPasswordHasherWithParams(params HashParams) *PasswordHasher {
	return &PasswordHasher{params: params, rand: rand.Reader}
}

// Hash generates an Argon2id digest from a plaintext password and a fresh salt.
// The returned hash is in the encoded format $argon2id$v=19$m=...,t=...,p=...$digest;
// the salt is returned separately as raw bytes.
func (h *PasswordHasher) Hash(password string) (hash, salt []byte, err error) {
	salt = make([]byte, h.params.SaltLength)
	if _, err := io.ReadFull(h.rand, salt); err != nil {
		return nil, nil, errors.Wrap(err, "read salt")
	}

	digest := argon2.IDKey(
		[]byte(password),
		salt,
		h.params.Iterations,
		h.params.Memory,
		h.params.Parallelism,
		h.params.KeyLength,
	)

	encoded := fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s",
		argon2.Version, h.params.Memory, h.params.Iterations, h.params.Parallelism,
		base64.RawStdEncoding.EncodeToString(digest))

	return []byte(encoded), salt, nil
}

// Verify checks if a stored hash and salt match a plaintext password.
// It uses constant-time comparison to prevent timing attacks.
func (h *PasswordHasher) Verify(password string, hash, salt []byte) bool {
	expected, computed, err := derive(password, string(hash), salt)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare(expected, computed) == 1
}

// derive returns the stored digest and the digest recomputed from password
// using the parameters encoded in the stored hash.
func derive(password, encoded string, salt []byte) (expected, computed []byte, err error) {
	switch {
	case strings.HasPrefix(encoded, argon2Prefix):
		parts := strings.Split(encoded, "$")
		if len(parts) != 5 {
			return nil, nil, ErrInvalidHashFormat
		}

		var version int
		if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
			return nil, nil, errors.Wrap(ErrInvalidHashFormat, err.Error())
		}
		if version != argon2.Version {
			return nil, nil, errors.Wrapf(ErrInvalidHashFormat, "unsupported argon2 version %d", version)
		}

		var memory, iterations uint32
		var parallelism uint8
		if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &parallelism); err != nil {
			return nil, nil, errors.Wrap(ErrInvalidHashFormat, err.Error())
		}

		expected, err = base64.RawStdEncoding.DecodeString(parts[4])
		if err != nil || len(expected) == 0 {
			return nil, nil, ErrInvalidHashFormat
		}

		computed = argon2.IDKey([]byte(password), salt, iterations, memory, parallelism, uint32(len(expected)))
		return expected, computed, nil

	case strings.HasPrefix(encoded, pbkdf2Prefix):
		parts := strings.Split(encoded, "$")
		if len(parts) != 4 {
			return nil, nil, ErrInvalidHashFormat
		}

		var iterations int
		if _, err := fmt.Sscanf(parts[2], "i=%d", &iterations); err != nil || iterations <= 0 {
			return nil, nil, ErrInvalidHashFormat
		}

		expected, err = base64.StdEncoding.DecodeString(parts[3])
		if err != nil || len(expected) == 0 {
			return nil, nil, ErrInvalidHashFormat
		}

		computed = pbkdf2.Key([]byte(password), salt, iterations, len(expected), sha256.New)
		return expected, computed, nil
	}

	return nil, nil, ErrInvalidHashFormat
}

// EncodeLegacyHash wraps a base64 PBKDF2-HMAC-SHA256 digest imported from the
// previous account store into the prefixed format understood by Verify.
func EncodeLegacyHash(base64Digest string) []byte {
	return []byte(fmt.Sprintf("%si=%d$%s", pbkdf2Prefix, legacyPBKDF2Iterations, base64Digest))
}

