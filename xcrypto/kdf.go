package xcrypto

import (
	"crypto/sha256"
	"io"

	"golang.org/x/crypto/hkdf"
	"lukechampine.com/blake3"
)

// Hash32 returns the 32-byte BLAKE3 hash of data.
func Hash32(data ...[]byte) [32]byte {
	h := blake3.New(32, nil)
	for _, d := range data {
		h.Write(d)
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// DeriveKey is BLAKE3's keyed-derivation mode: a domain-separated KDF that
// binds output to a fixed, human-readable context string. Used for the
// hybrid KEM's shared-secret combiner and for safety-number generation.
func DeriveKey(context string, keyMaterial []byte, outLen int) []byte {
	out := make([]byte, outLen)
	blake3.DeriveKey(context, keyMaterial, out)
	return out
}

// HKDFSHA256 derives outLen bytes from ikm, salted by salt and bound to
// info, using HKDF-SHA256. Used by the ratchet's root KDF, matching the
// teacher's djb backend.
func HKDFSHA256(ikm, salt, info []byte, outLen int) ([]byte, error) {
	r := hkdf.New(sha256.New, ikm, salt, info)
	out := make([]byte, outLen)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, err
	}
	return out, nil
}
