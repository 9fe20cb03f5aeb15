// Package crypto hardens the client-side password digest before it is stored.
package crypto

import (
	"crypto/rand"
	"crypto/subtle"

	"golang.org/x/crypto/argon2"
)

// Argon2id parameters (tuned for server-side hashing).
const (
	argonTime    uint32 = 3         // iterations
	argonMemory  uint32 = 64 * 1024 // 64 MB
	argonThreads uint8  = 1
	argonKeyLen  uint32 = 32

	SaltLen = 16
)

// RandBytes returns n cryptographically secure random bytes.
func RandBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	_, err := rand.Read(b)
	return b, err
}

// HashPassword returns the Argon2id hash of digest under salt.
func HashPassword(digest, salt []byte) []byte {
	return argon2.IDKey(digest, salt, argonTime, argonMemory, argonThreads, argonKeyLen)
}

// NewPasswordHash salts and hashes digest for a new account.
func NewPasswordHash(digest []byte) (hash, salt []byte, err error) {
	salt, err = RandBytes(SaltLen)
	if err != nil {
		return nil, nil, err
	}
	return HashPassword(digest, salt), salt, nil
}

// VerifyPassword compares digest with the stored hash in constant time.
func VerifyPassword(digest, salt, expected []byte) bool {
	return subtle.ConstantTimeCompare(HashPassword(digest, salt), expected) == 1
}
