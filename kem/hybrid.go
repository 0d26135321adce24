// Package kem implements the hybrid key-encapsulation mechanism used for
// session setup and periodic ratchet rekeying: a classical X25519 ECDH
// combined with post-quantum ML-KEM-1024 (via CIRCL), so that breaking
// either primitive alone is not enough to recover the shared secret.
package kem

import (
	"crypto/rand"
	"errors"

	"github.com/cloudflare/circl/kem/mlkem/mlkem1024"
	"golang.org/x/crypto/curve25519"

	"github.com/shieldmsg/core/xcrypto"
)

// ErrInvalidKeyLength is returned when a caller supplies a key or
// ciphertext of the wrong size.
var ErrInvalidKeyLength = errors.New("kem: invalid key length")

// ErrEncapsulate is returned when ML-KEM encapsulation fails.
var ErrEncapsulate = errors.New("kem: encapsulation failed")

// ErrDecapsulate is returned when decapsulation fails. The specific cause
// (malformed ciphertext vs. tampered ciphertext) is never surfaced, matching
// ML-KEM's implicit-rejection design: a distinguishable failure mode would
// leak information to an active attacker.
var ErrDecapsulate = errors.New("kem: decapsulation failed")

var mlkemScheme = mlkem1024.Scheme()

// sizes mirror mlkem1024's fixed parameter set (1568/3168/1568 bytes).
const (
	MLKEMPublicKeySize  = mlkem1024.PublicKeySize
	MLKEMPrivateKeySize = mlkem1024.PrivateKeySize
	MLKEMCiphertextSize = mlkem1024.CiphertextSize
)

// combinedSecretContext and its "-expand" counterpart produce the 64-byte
// combined shared secret from the two 32-byte component secrets, following
// the original protocol's BLAKE3-KDF binding.
const (
	combinedSecretContext       = "ShieldMessenger-HybridKEM-X25519-Kyber1024-v1"
	combinedSecretExpandContext = "ShieldMessenger-HybridKEM-X25519-Kyber1024-v1-expand"
)

// KeyPair is a hybrid X25519 ∥ ML-KEM-1024 key pair.
type KeyPair struct {
	X25519Public   [32]byte
	X25519Secret   [32]byte
	MLKEMPublic    []byte // mlkem1024 encapsulation key, MLKEMPublicKeySize bytes
	MLKEMSecret    []byte // mlkem1024 decapsulation key, MLKEMPrivateKeySize bytes
}

// GenerateKeyPair creates a fresh random hybrid key pair.
func GenerateKeyPair() (KeyPair, error) {
	x, err := xcrypto.GenerateX25519KeyPair()
	if err != nil {
		return KeyPair{}, err
	}
	pk, sk, err := mlkemScheme.GenerateKeyPair()
	if err != nil {
		return KeyPair{}, err
	}
	pkBytes, err := pk.MarshalBinary()
	if err != nil {
		return KeyPair{}, err
	}
	skBytes, err := sk.MarshalBinary()
	if err != nil {
		return KeyPair{}, err
	}
	return KeyPair{
		X25519Public: x.Public,
		X25519Secret: x.Private,
		MLKEMPublic:  pkBytes,
		MLKEMSecret:  skBytes,
	}, nil
}

// Ciphertext is the output of Encapsulate: the ephemeral X25519 public key
// and the ML-KEM ciphertext, plus the derived 64-byte shared secret.
type Ciphertext struct {
	X25519EphemeralPublic [32]byte
	MLKEMCiphertext       []byte
	SharedSecret          [64]byte
}

// Encapsulate performs hybrid encapsulation to a peer's X25519 and ML-KEM
// public keys, returning the combined 64-byte shared secret alongside the
// wire-sendable ciphertext material.
func Encapsulate(peerX25519Public [32]byte, peerMLKEMPublic []byte) (Ciphertext, error) {
	if len(peerMLKEMPublic) != MLKEMPublicKeySize {
		return Ciphertext{}, ErrInvalidKeyLength
	}

	eph, err := xcrypto.GenerateX25519KeyPair()
	if err != nil {
		return Ciphertext{}, err
	}
	x25519SS, err := curve25519.X25519(eph.Private[:], peerX25519Public[:])
	if err != nil {
		return Ciphertext{}, err
	}

	pk, err := mlkemScheme.UnmarshalBinaryPublicKey(peerMLKEMPublic)
	if err != nil {
		return Ciphertext{}, ErrInvalidKeyLength
	}
	ct, mlkemSS, err := mlkemScheme.Encapsulate(pk)
	if err != nil {
		return Ciphertext{}, ErrEncapsulate
	}

	return Ciphertext{
		X25519EphemeralPublic: eph.Public,
		MLKEMCiphertext:       ct,
		SharedSecret:          combineSharedSecrets(x25519SS, mlkemSS),
	}, nil
}

// Decapsulate recovers the same 64-byte shared secret Encapsulate produced,
// using our own hybrid key pair and the ciphertext material we received.
func Decapsulate(ourSecret KeyPair, ephemeralX25519Public [32]byte, mlkemCiphertext []byte) ([64]byte, error) {
	if len(mlkemCiphertext) != MLKEMCiphertextSize {
		return [64]byte{}, ErrInvalidKeyLength
	}
	if len(ourSecret.MLKEMSecret) != MLKEMPrivateKeySize {
		return [64]byte{}, ErrInvalidKeyLength
	}

	x25519SS, err := curve25519.X25519(ourSecret.X25519Secret[:], ephemeralX25519Public[:])
	if err != nil {
		return [64]byte{}, err
	}

	sk, err := mlkemScheme.UnmarshalBinaryPrivateKey(ourSecret.MLKEMSecret)
	if err != nil {
		return [64]byte{}, ErrInvalidKeyLength
	}
	mlkemSS, err := mlkemScheme.Decapsulate(sk, mlkemCiphertext)
	if err != nil {
		return [64]byte{}, ErrDecapsulate
	}

	return combineSharedSecrets(x25519SS, mlkemSS), nil
}

func combineSharedSecrets(x25519SS, mlkemSS []byte) [64]byte {
	input := append(append([]byte{}, x25519SS...), mlkemSS...)
	var combined [64]byte
	copy(combined[:32], xcrypto.DeriveKey(combinedSecretContext, input, 32))
	copy(combined[32:], xcrypto.DeriveKey(combinedSecretExpandContext, input, 32))
	return combined
}

// RandomMLKEMSeed is exposed for tests that need deterministic key
// generation; production code always uses GenerateKeyPair with crypto/rand.
func RandomMLKEMSeed() ([64]byte, error) {
	var seed [64]byte
	_, err := rand.Read(seed[:])
	return seed, err
}
