package xcrypto

import (
	"crypto/rand"
	"errors"

	"golang.org/x/crypto/chacha20poly1305"
)

// ErrDecryption is returned when AEAD authentication fails.
var ErrDecryption = errors.New("xcrypto: AEAD authentication failed")

// NonceSize is the length of an XChaCha20-Poly1305 nonce (24 bytes).
const NonceSize = chacha20poly1305.NonceSizeX

// KeySize is the length of an XChaCha20-Poly1305 key (32 bytes).
const KeySize = chacha20poly1305.KeySize

// RandomNonce returns 24 fresh random bytes for use as an XChaCha20-Poly1305
// nonce.
func RandomNonce() ([NonceSize]byte, error) {
	var n [NonceSize]byte
	_, err := rand.Read(n[:])
	return n, err
}

// Seal encrypts and authenticates plaintext under key and nonce, binding
// additionalData. key must be 32 bytes, nonce 24 bytes.
func Seal(key []byte, nonce [NonceSize]byte, plaintext, additionalData []byte) ([]byte, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKeyLength
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	return aead.Seal(nil, nonce[:], plaintext, additionalData), nil
}

// Open decrypts and authenticates ciphertext under key and nonce, checking
// additionalData. Returns ErrDecryption on authentication failure.
func Open(key []byte, nonce [NonceSize]byte, ciphertext, additionalData []byte) ([]byte, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKeyLength
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	pt, err := aead.Open(nil, nonce[:], ciphertext, additionalData)
	if err != nil {
		return nil, ErrDecryption
	}
	return pt, nil
}
