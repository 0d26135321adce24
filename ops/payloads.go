package ops

import "github.com/shieldmsg/core/ids"

// Payload types are CBOR-encoded (as fixed-order arrays, via the `toarray`
// tag) into OpEnvelope.Payload. Each corresponds to exactly one OpType.

// GroupCreatePayload founds a group. Lamport must be 1.
type GroupCreatePayload struct {
	_                   struct{} `cbor:",toarray"`
	GroupName           string
	EncryptedGroupSecret []byte
}

// MemberInvitePayload invites a new device into the group.
type MemberInvitePayload struct {
	_                    struct{} `cbor:",toarray"`
	InvitedDeviceID      ids.DeviceID
	InvitedPubkey        [32]byte
	Role                 Role
	EncryptedGroupSecret []byte
}

// MemberAcceptPayload accepts a pending invite.
type MemberAcceptPayload struct {
	_           struct{} `cbor:",toarray"`
	InviteOpID  ids.OpID
}

// MemberRemovePayload removes (kicks or self-leaves) a member.
type MemberRemovePayload struct {
	_              struct{} `cbor:",toarray"`
	TargetDeviceID ids.DeviceID
	Reason         RemoveReason
}

// RoleSetPayload changes a member's role (LWW by lamport/op id).
type RoleSetPayload struct {
	_              struct{} `cbor:",toarray"`
	TargetDeviceID ids.DeviceID
	NewRole        Role
}

// MsgAddPayload introduces a new message.
type MsgAddPayload struct {
	_          struct{} `cbor:",toarray"`
	MsgID      [32]byte
	Ciphertext []byte
	Nonce      [24]byte
}

// MsgEditPayload replaces a message's ciphertext (LWW).
type MsgEditPayload struct {
	_             struct{} `cbor:",toarray"`
	MsgID         [32]byte
	NewCiphertext []byte
	Nonce         [24]byte
}

// MsgDeletePayload tombstones a message permanently.
type MsgDeletePayload struct {
	_     struct{} `cbor:",toarray"`
	MsgID [32]byte
}

// ReactionSetPayload upserts a (reactor, emoji) -> present entry.
type ReactionSetPayload struct {
	_       struct{} `cbor:",toarray"`
	MsgID   [32]byte
	Emoji   string
	Present bool
}

// MetadataSetPayload writes an LWW metadata register.
type MetadataSetPayload struct {
	_     struct{} `cbor:",toarray"`
	Key   MetadataKey
	Value []byte
}
