// Package xcrypto collects the primitive building blocks used everywhere
// else in the module: Ed25519 signing, X25519 ECDH, XChaCha20-Poly1305 AEAD,
// BLAKE3 hashing/KDF, and Argon2id password hashing. Nothing here is
// protocol-specific — op signing, ratchet chains, and the duress gate all
// build on these same primitives.
package xcrypto

import (
	"crypto/ed25519"
	"errors"
)

// ErrInvalidKeyLength is returned whenever a caller passes a key or
// signature of the wrong size.
var ErrInvalidKeyLength = errors.New("xcrypto: invalid key length")

// ErrInvalidSignature is returned when signature verification fails.
var ErrInvalidSignature = errors.New("xcrypto: invalid signature")

// SigningKeyPair is a complete Ed25519 identity key pair.
type SigningKeyPair struct {
	Public  ed25519.PublicKey
	Private ed25519.PrivateKey
}

// GenerateSigningKeyPair creates a fresh Ed25519 identity key pair.
func GenerateSigningKeyPair() (SigningKeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		return SigningKeyPair{}, err
	}
	return SigningKeyPair{Public: pub, Private: priv}, nil
}

// Sign signs message with priv, returning a 64-byte Ed25519 signature.
func Sign(priv ed25519.PrivateKey, message []byte) ([]byte, error) {
	if len(priv) != ed25519.PrivateKeySize {
		return nil, ErrInvalidKeyLength
	}
	return ed25519.Sign(priv, message), nil
}

// Verify reports whether sig is a valid Ed25519 signature of message by pub.
func Verify(pub ed25519.PublicKey, message, sig []byte) bool {
	if len(pub) != ed25519.PublicKeySize || len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(pub, message, sig)
}
