package xcrypto

import (
	"fmt"
	"strings"
)

// safetyNumberContext binds the safety-number fingerprint to this
// application so the same identity keys produce different numbers in a
// different deployment of the protocol.
const safetyNumberContext = "ShieldMessenger-SafetyNumber-v1"

// SafetyNumber derives a human-comparable fingerprint of two identities'
// long-term public keys, for out-of-band contact verification. The two
// keys are sorted before hashing so both parties compute the same number
// regardless of which side is "local".
func SafetyNumber(identityA, identityB []byte) string {
	first, second := identityA, identityB
	if lexicographicallyAfter(first, second) {
		first, second = second, first
	}
	keyed := DeriveKey(safetyNumberContext, append(append([]byte{}, first...), second...), 30)

	var sb strings.Builder
	for i := 0; i < len(keyed); i += 5 {
		end := i + 5
		if end > len(keyed) {
			end = len(keyed)
		}
		chunk := keyed[i:end]
		var n uint64
		for _, b := range chunk {
			n = n*256 + uint64(b)
		}
		fmt.Fprintf(&sb, "%05d", n%100000)
	}
	return sb.String()
}

func lexicographicallyAfter(a, b []byte) bool {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			return a[i] > b[i]
		}
	}
	return len(a) > len(b)
}
