// Package clientcrypto holds the client-side primitives: the password digest sent
// instead of the plaintext password, and record id generation.
package clientcrypto

import (
	"crypto/rand"
	"crypto/sha512"
	"encoding/binary"
	"encoding/hex"
	"math"
)

// HashPassword returns the lowercase hex SHA-512 digest of password.
// The server only ever sees this digest.
func HashPassword(password string) string {
	sum := sha512.Sum512([]byte(password))
	return hex.EncodeToString(sum[:])
}

// NewRecordID returns a random id in [1, math.MaxInt64].
func NewRecordID() (int64, error) {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, err
	}
	id := int64(binary.BigEndian.Uint64(b[:]) & math.MaxInt64)
	if id == 0 {
		id = 1
	}
	return id, nil
}
