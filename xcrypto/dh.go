package xcrypto

import (
	"crypto/rand"
	"io"

	"golang.org/x/crypto/curve25519"
)

// X25519KeyPair is a Diffie-Hellman key pair on Curve25519.
type X25519KeyPair struct {
	Public  [32]byte
	Private [32]byte
}

// GenerateX25519KeyPair creates a fresh ephemeral or static X25519 key pair,
// clamping the scalar per RFC 7748.
func GenerateX25519KeyPair() (X25519KeyPair, error) {
	return GenerateX25519KeyPairFrom(rand.Reader)
}

// GenerateX25519KeyPairFrom is GenerateX25519KeyPair with an injectable
// entropy source, used by deterministic tests and by seed-derived identity
// key generation.
func GenerateX25519KeyPairFrom(r io.Reader) (X25519KeyPair, error) {
	var kp X25519KeyPair
	if _, err := io.ReadFull(r, kp.Private[:]); err != nil {
		return X25519KeyPair{}, err
	}
	pub, err := curve25519.X25519(kp.Private[:], curve25519.Basepoint)
	if err != nil {
		return X25519KeyPair{}, err
	}
	copy(kp.Public[:], pub)
	return kp, nil
}

// X25519 computes the Diffie-Hellman shared secret DH(priv, pub).
func X25519(priv, pub [32]byte) ([]byte, error) {
	return curve25519.X25519(priv[:], pub[:])
}
