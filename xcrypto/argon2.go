package xcrypto

import (
	"crypto/rand"
	"crypto/subtle"

	"golang.org/x/crypto/argon2"
)

// Argon2id parameters used for PIN hashing throughout the duress gate:
// 64 MiB memory, 3 iterations, single-threaded, 32-byte output.
const (
	Argon2MemoryKiB  = 64 * 1024
	Argon2Iterations = 3
	Argon2Threads    = 1
	Argon2OutputLen  = 32
	Argon2SaltLen    = 16
)

// HashPINArgon2id hashes pin with salt using the fixed Argon2id parameters.
func HashPINArgon2id(pin, salt []byte) []byte {
	return argon2.IDKey(pin, salt, Argon2Iterations, Argon2MemoryKiB, Argon2Threads, Argon2OutputLen)
}

// RandomSalt16 returns 16 fresh random bytes for Argon2id salting.
func RandomSalt16() ([Argon2SaltLen]byte, error) {
	var s [Argon2SaltLen]byte
	_, err := rand.Read(s[:])
	return s, err
}

// ConstantTimeEqual reports whether a and b are equal without leaking
// timing information about where they first differ.
func ConstantTimeEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare(a, b) == 1
}
