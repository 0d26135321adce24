package dosguard

import (
	"crypto/rand"
	"encoding/binary"

	"golang.org/x/crypto/sha3"
)

// GenerateChallenge returns a fresh random 32-byte Proof-of-Work challenge.
func GenerateChallenge() ([32]byte, error) {
	var challenge [32]byte
	if _, err := rand.Read(challenge[:]); err != nil {
		return challenge, err
	}
	return challenge, nil
}

// VerifyPoW reports whether SHA3-256(challenge || nonce_le) has at
// least difficulty leading zero bits.
func VerifyPoW(challenge [32]byte, nonce uint64, difficulty uint8) bool {
	var nonceBuf [8]byte
	binary.LittleEndian.PutUint64(nonceBuf[:], nonce)

	h := sha3.New256()
	h.Write(challenge[:])
	h.Write(nonceBuf[:])
	sum := h.Sum(nil)

	return leadingZeroBits(sum) >= uint(difficulty)
}

func leadingZeroBits(hash []byte) uint {
	var zeros uint
	for _, b := range hash {
		if b == 0 {
			zeros += 8
			continue
		}
		zeros += uint(leadingZerosByte(b))
		break
	}
	return zeros
}

func leadingZerosByte(b byte) int {
	n := 0
	for i := 7; i >= 0; i-- {
		if b&(1<<uint(i)) != 0 {
			break
		}
		n++
	}
	return n
}

// SolvePoW brute-forces a nonce satisfying VerifyPoW for challenge at
// the given difficulty. Intended for test and client-side use; a
// production client may want a more efficient search strategy or an
// upper bound on attempts.
func SolvePoW(challenge [32]byte, difficulty uint8) uint64 {
	for nonce := uint64(0); ; nonce++ {
		if VerifyPoW(challenge, nonce, difficulty) {
			return nonce
		}
	}
}
