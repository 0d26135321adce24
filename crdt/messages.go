package crdt

import (
	"errors"

	"github.com/shieldmsg/core/ids"
	"github.com/shieldmsg/core/ops"
)

var (
	ErrMessageAlreadyExists = errors.New("crdt: message id already exists")
	ErrMessageNotFound      = errors.New("crdt: message not found")
	ErrEditAuthorMismatch   = errors.New("crdt: only the original author may edit")
	ErrDeleteNotAuthorized  = errors.New("crdt: only the original author or an active owner/admin may delete")
)

// reactionKey identifies one (reactor, emoji) reaction slot on a message.
type reactionKey struct {
	reactor ids.DeviceID
	emoji   string
}

// reactionEntry is an LWW register for one reaction slot.
type reactionEntry struct {
	present bool
	lamport uint64
	op      ids.OpID
}

// MessageEntry is one message's CRDT record: immutable ciphertext under
// LWW edit, a tombstone flag, and a set of LWW reaction registers.
type MessageEntry struct {
	MsgID         [32]byte
	AuthorDevice  ids.DeviceID
	Ciphertext    []byte
	Nonce         [24]byte
	CreatedLamport uint64
	CreatedOp     ids.OpID
	EditLamport   uint64
	EditOp        ids.OpID
	Edited        bool
	Deleted       bool
	DeleteOp      *ids.OpID
	reactions     map[reactionKey]reactionEntry
}

// ActiveReactions returns the (reactor, emoji) pairs currently present,
// stable-sorted is left to the caller since iteration order is not
// guaranteed by a Go map.
func (m *MessageEntry) ActiveReactions() map[reactionKey]bool {
	out := make(map[reactionKey]bool, len(m.reactions))
	for k, v := range m.reactions {
		if v.present {
			out[k] = true
		}
	}
	return out
}

// MessagesState is the sub-CRDT for one group's message log.
type MessagesState struct {
	messages map[[32]byte]*MessageEntry
}

// NewMessagesState returns an empty message log.
func NewMessagesState() *MessagesState {
	return &MessagesState{messages: make(map[[32]byte]*MessageEntry)}
}

// Messages returns the full message map for iteration (e.g. state hashing
// or rendering). Callers must not mutate the returned entries.
func (s *MessagesState) Messages() map[[32]byte]*MessageEntry {
	return s.messages
}

// Get returns the message entry, or nil if it does not exist.
func (s *MessagesState) Get(msgID [32]byte) *MessageEntry {
	return s.messages[msgID]
}

// ApplyMsgAdd introduces a new message, keyed by a content-derived MsgID
// that must be globally unique; a collision is rejected.
func (s *MessagesState) ApplyMsgAdd(env *ops.Envelope) error {
	var payload ops.MsgAddPayload
	if err := env.DecodePayloadInto(&payload); err != nil {
		return err
	}
	if _, exists := s.messages[payload.MsgID]; exists {
		return ErrMessageAlreadyExists
	}

	author := ids.DeviceIDFromPubkey(env.AuthorPubkey[:])
	s.messages[payload.MsgID] = &MessageEntry{
		MsgID:          payload.MsgID,
		AuthorDevice:   author,
		Ciphertext:     payload.Ciphertext,
		Nonce:          payload.Nonce,
		CreatedLamport: env.Lamport,
		CreatedOp:      env.OpID,
		reactions:      make(map[reactionKey]reactionEntry),
	}
	return nil
}

// ApplyMsgEdit replaces a message's ciphertext, LWW by (lamport, op id).
// Only the original author may edit; edits to a deleted message are
// silently ignored, never an error (deletion is a permanent tombstone).
func (s *MessagesState) ApplyMsgEdit(env *ops.Envelope) error {
	var payload ops.MsgEditPayload
	if err := env.DecodePayloadInto(&payload); err != nil {
		return err
	}

	msg, ok := s.messages[payload.MsgID]
	if !ok {
		return ErrMessageNotFound
	}
	if msg.Deleted {
		return nil // tombstone is permanent: ignore, never an error
	}

	author := ids.DeviceIDFromPubkey(env.AuthorPubkey[:])
	if author != msg.AuthorDevice {
		return ErrEditAuthorMismatch
	}

	dominated := msg.Edited && (env.Lamport < msg.EditLamport ||
		(env.Lamport == msg.EditLamport && env.OpID.LessEq(msg.EditOp)))
	if dominated {
		return nil // silently ignore: stale edit
	}

	msg.Ciphertext = payload.NewCiphertext
	msg.Nonce = payload.Nonce
	msg.Edited = true
	msg.EditLamport = env.Lamport
	msg.EditOp = env.OpID
	return nil
}

// ApplyMsgDelete tombstones a message permanently. Idempotent. The
// original author can always delete their own message; anyone else
// needs an active Owner or Admin role.
func (s *MessagesState) ApplyMsgDelete(env *ops.Envelope, membership *MembershipState) error {
	var payload ops.MsgDeletePayload
	if err := env.DecodePayloadInto(&payload); err != nil {
		return err
	}

	msg, ok := s.messages[payload.MsgID]
	if !ok {
		return ErrMessageNotFound
	}
	if msg.Deleted {
		return nil
	}

	author := ids.DeviceIDFromPubkey(env.AuthorPubkey[:])
	if author != msg.AuthorDevice {
		privileged := false
		if m := membership.GetActiveMember(author); m != nil {
			privileged = m.Role == ops.RoleOwner || m.Role == ops.RoleAdmin
		}
		if !privileged {
			return ErrDeleteNotAuthorized
		}
	}

	msg.Deleted = true
	opID := env.OpID
	msg.DeleteOp = &opID
	msg.Ciphertext = nil // tombstone: drop ciphertext, it is unrecoverable
	return nil
}

// ApplyReactionSet upserts one (reactor, emoji) reaction slot, LWW by
// (lamport, op id). The reactor is always the op's author. Unknown or
// deleted messages silently drop the reaction, never an error.
func (s *MessagesState) ApplyReactionSet(env *ops.Envelope) error {
	var payload ops.ReactionSetPayload
	if err := env.DecodePayloadInto(&payload); err != nil {
		return err
	}

	msg, ok := s.messages[payload.MsgID]
	if !ok {
		return nil // reactions on an unknown message are silently dropped
	}
	if msg.Deleted {
		return nil // reactions on a deleted message are silently dropped
	}

	reactor := ids.DeviceIDFromPubkey(env.AuthorPubkey[:])
	key := reactionKey{reactor: reactor, emoji: payload.Emoji}

	existing, has := msg.reactions[key]
	dominated := has && (env.Lamport < existing.lamport ||
		(env.Lamport == existing.lamport && env.OpID.LessEq(existing.op)))
	if dominated {
		return nil
	}

	msg.reactions[key] = reactionEntry{
		present: payload.Present,
		lamport: env.Lamport,
		op:      env.OpID,
	}
	return nil
}
