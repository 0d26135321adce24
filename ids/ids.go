// Package ids defines the stable identifiers used throughout the group CRDT
// and ratchet core: device, group, and operation identifiers, and the
// per-group operation count caps that gate the apply engine.
package ids

import (
	"bytes"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"sync/atomic"

	"lukechampine.com/blake3"
)

// DeviceIDSize is the length in bytes of a DeviceID.
const DeviceIDSize = 16

// GroupIDSize is the length in bytes of a GroupID.
const GroupIDSize = 32

// DeviceID identifies one device's long-term Ed25519 identity. It is the
// first 16 bytes of BLAKE3(identity public key).
type DeviceID [DeviceIDSize]byte

// DeviceIDFromPubkey derives a DeviceID from a 32-byte Ed25519 public key.
func DeviceIDFromPubkey(pub []byte) DeviceID {
	sum := blake3.Sum256(pub)
	var id DeviceID
	copy(id[:], sum[:DeviceIDSize])
	return id
}

func (d DeviceID) String() string {
	return fmt.Sprintf("%x", d[:])
}

// Less reports whether d sorts before other in DeviceID order.
func (d DeviceID) Less(other DeviceID) bool {
	return bytes.Compare(d[:], other[:]) < 0
}

// GroupID identifies a group: BLAKE3("group" || creator DeviceID || salt).
type GroupID [GroupIDSize]byte

// NewGroupID derives a GroupID from its creator and a 32-byte random salt.
func NewGroupID(creator DeviceID, salt [32]byte) GroupID {
	h := blake3.New(32, nil)
	h.Write([]byte("group"))
	h.Write(creator[:])
	h.Write(salt[:])
	var id GroupID
	copy(id[:], h.Sum(nil))
	return id
}

// RandomSalt returns 32 fresh random bytes suitable for NewGroupID.
func RandomSalt() ([32]byte, error) {
	var salt [32]byte
	_, err := rand.Read(salt[:])
	return salt, err
}

func (g GroupID) String() string {
	return fmt.Sprintf("%x", g[:])
}

// OpID uniquely identifies one signed operation by its author.
//
// Total order across all ops in a group is lexicographic on
// (Lamport, Author, Nonce) — see Compare. OpID-to-OpID tie-breaks that are
// documented as "OpID order" elsewhere in this module (stale-invite
// detection, LWW witnesses) use that same total order, never Author/Nonce
// alone, so a single comparison function backs every invariant in spec.
type OpID struct {
	_       struct{} `cbor:",toarray"`
	Author  DeviceID
	Lamport uint64
	Nonce   uint64
}

// Compare returns -1, 0, or 1 as o sorts before, equal to, or after other
// under the (Lamport, Author, Nonce) total order.
func (o OpID) Compare(other OpID) int {
	if o.Lamport != other.Lamport {
		if o.Lamport < other.Lamport {
			return -1
		}
		return 1
	}
	if c := bytes.Compare(o.Author[:], other.Author[:]); c != 0 {
		return c
	}
	switch {
	case o.Nonce < other.Nonce:
		return -1
	case o.Nonce > other.Nonce:
		return 1
	default:
		return 0
	}
}

// Less reports whether o sorts strictly before other.
func (o OpID) Less(other OpID) bool { return o.Compare(other) < 0 }

// LessEq reports whether o sorts before or equal to other.
func (o OpID) LessEq(other OpID) bool { return o.Compare(other) <= 0 }

func (o OpID) String() string {
	return fmt.Sprintf("%s/%d/%d", o.Author, o.Lamport, o.Nonce)
}

// connID is the monotonic counter backing pending-connection table keys
// (§9: the only other process-global mutable state allowed besides the Tor
// bootstrap gauge).
var connID uint64

// NewConnID returns a fresh monotonically increasing connection identifier.
func NewConnID() uint64 {
	return atomic.AddUint64(&connID, 1)
}

// RandomNonce64 returns a random uint64 suitable for OpID.Nonce.
func RandomNonce64() (uint64, error) {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(buf[:]), nil
}
