// Package crdt implements the group's sub-CRDTs (membership, messages,
// metadata) and the apply engine that dispatches signed ops to them
// deterministically. See Engine in engine.go for the single entry point.
package crdt

import (
	"errors"

	"github.com/shieldmsg/core/ids"
	"github.com/shieldmsg/core/ops"
)

var (
	ErrAlreadyActiveMember = errors.New("crdt: target is already an active member")
	ErrNoPendingInvite     = errors.New("crdt: no pending invite for this device")
	ErrAcceptInviteMismatch = errors.New("crdt: accept does not reference the pending invite")
	ErrAlreadyAccepted     = errors.New("crdt: invite already accepted")
	ErrAlreadyRemoved      = errors.New("crdt: target already removed")
	ErrTargetNotFound      = errors.New("crdt: target device not found")
	ErrKickerNotActive     = errors.New("crdt: kicker is not an active member")
	ErrInsufficientRoleForKick = errors.New("crdt: kicker lacks sufficient authority")
	ErrLeaveAuthorMismatch = errors.New("crdt: leave author must be the target")
	ErrTargetNotActive     = errors.New("crdt: target is not an active member")
	ErrAlreadyCreated      = errors.New("crdt: group already created")
	ErrCreateLamportNotOne = errors.New("crdt: GroupCreate must have lamport 1")
)

// MemberEntry is one invited device's membership record.
type MemberEntry struct {
	DeviceID             ids.DeviceID
	Pubkey               [32]byte
	Role                 ops.Role
	InvitedBy            ids.OpID
	Accepted             bool
	Removed              bool
	RemoveOp             *ids.OpID
	RekeyRequired        bool
	EncryptedGroupSecret []byte
	RoleLamport          uint64
	RoleOp               ids.OpID
}

// Active reports whether the entry is a currently active member
// (accepted and not removed).
func (m *MemberEntry) Active() bool {
	return m != nil && m.Accepted && !m.Removed
}

// MembershipState is the OR-Set-with-LWW-role sub-CRDT for one group.
type MembershipState struct {
	members map[ids.DeviceID]*MemberEntry
	created bool
}

// NewMembershipState returns an empty membership table.
func NewMembershipState() *MembershipState {
	return &MembershipState{members: make(map[ids.DeviceID]*MemberEntry)}
}

// Members returns the full membership map for iteration (e.g. state hashing).
// Callers must not mutate the returned entries.
func (s *MembershipState) Members() map[ids.DeviceID]*MemberEntry {
	return s.members
}

// ActiveMemberCount counts members that are accepted and not removed.
func (s *MembershipState) ActiveMemberCount() int {
	n := 0
	for _, m := range s.members {
		if m.Active() {
			n++
		}
	}
	return n
}

// GetActiveMember returns the member entry only if it is currently active.
func (s *MembershipState) GetActiveMember(device ids.DeviceID) *MemberEntry {
	m, ok := s.members[device]
	if !ok || !m.Active() {
		return nil
	}
	return m
}

// IsAuthorActiveForRender reports whether device is presently an active
// member, used to gate message rendering.
func (s *MembershipState) IsAuthorActiveForRender(device ids.DeviceID) bool {
	return s.GetActiveMember(device) != nil
}

// NeedsRekey reports whether any remaining active member has rekey_required.
func (s *MembershipState) NeedsRekey() bool {
	for _, m := range s.members {
		if m.RekeyRequired && !m.Removed {
			return true
		}
	}
	return false
}

// ApplyGroupCreate founds the group. Requires lamport==1 and no prior
// creation; the creator becomes an auto-accepted Owner.
func (s *MembershipState) ApplyGroupCreate(env *ops.Envelope) error {
	if s.created {
		return ErrAlreadyCreated
	}
	if env.Lamport != 1 {
		return ErrCreateLamportNotOne
	}

	var payload ops.GroupCreatePayload
	if err := env.DecodePayloadInto(&payload); err != nil {
		return err
	}

	creator := ids.DeviceIDFromPubkey(env.AuthorPubkey[:])
	s.members[creator] = &MemberEntry{
		DeviceID:             creator,
		Pubkey:               env.AuthorPubkey,
		Role:                 ops.RoleOwner,
		InvitedBy:            env.OpID,
		Accepted:             true,
		EncryptedGroupSecret: payload.EncryptedGroupSecret,
		RoleLamport:          env.Lamport,
		RoleOp:               env.OpID,
	}
	s.created = true
	return nil
}

// ApplyMemberInvite invites a device. Rejects if the target is already
// active; silently drops stale invites that cannot undo a later remove.
func (s *MembershipState) ApplyMemberInvite(env *ops.Envelope) error {
	var payload ops.MemberInvitePayload
	if err := env.DecodePayloadInto(&payload); err != nil {
		return err
	}

	if s.GetActiveMember(payload.InvitedDeviceID) != nil {
		return ErrAlreadyActiveMember
	}

	if existing, ok := s.members[payload.InvitedDeviceID]; ok && existing.Removed {
		if existing.RemoveOp != nil && env.OpID.LessEq(*existing.RemoveOp) {
			return nil // silently drop: stale invite cannot resurrect a removed member
		}
	}

	s.members[payload.InvitedDeviceID] = &MemberEntry{
		DeviceID:             payload.InvitedDeviceID,
		Pubkey:               payload.InvitedPubkey,
		Role:                 payload.Role,
		InvitedBy:            env.OpID,
		Accepted:             false,
		EncryptedGroupSecret: payload.EncryptedGroupSecret,
		RoleLamport:          env.Lamport,
		RoleOp:               env.OpID,
	}
	return nil
}

// ApplyMemberAccept marks a pending invite as accepted by its own target.
func (s *MembershipState) ApplyMemberAccept(env *ops.Envelope) error {
	var payload ops.MemberAcceptPayload
	if err := env.DecodePayloadInto(&payload); err != nil {
		return err
	}

	author := ids.DeviceIDFromPubkey(env.AuthorPubkey[:])
	entry, ok := s.members[author]
	if !ok {
		return ErrNoPendingInvite
	}
	if entry.InvitedBy != payload.InviteOpID {
		return ErrAcceptInviteMismatch
	}
	if entry.Accepted {
		return ErrAlreadyAccepted
	}
	if entry.Removed {
		return ErrAlreadyRemoved
	}
	entry.Accepted = true
	return nil
}

// ApplyMemberRemove applies a Kick (requires kicker authority ≥ target's)
// or a Leave (requires author == target).
func (s *MembershipState) ApplyMemberRemove(env *ops.Envelope) error {
	var payload ops.MemberRemovePayload
	if err := env.DecodePayloadInto(&payload); err != nil {
		return err
	}

	author := ids.DeviceIDFromPubkey(env.AuthorPubkey[:])
	target, ok := s.members[payload.TargetDeviceID]
	if !ok {
		return ErrTargetNotFound
	}
	if target.Removed {
		return ErrAlreadyRemoved
	}

	switch payload.Reason {
	case ops.RemoveKick:
		kicker := s.GetActiveMember(author)
		if kicker == nil {
			return ErrKickerNotActive
		}
		if kicker.Role > target.Role {
			return ErrInsufficientRoleForKick
		}

		target.Removed = true
		opID := env.OpID
		target.RemoveOp = &opID

		for device, m := range s.members {
			if device != payload.TargetDeviceID && m.Accepted && !m.Removed {
				m.RekeyRequired = true
			}
		}

	case ops.RemoveLeave:
		if author != payload.TargetDeviceID {
			return ErrLeaveAuthorMismatch
		}
		target.Removed = true
		opID := env.OpID
		target.RemoveOp = &opID
	}

	return nil
}

// ApplyRoleSet changes a member's role, LWW by (lamport, op id).
func (s *MembershipState) ApplyRoleSet(env *ops.Envelope) error {
	var payload ops.RoleSetPayload
	if err := env.DecodePayloadInto(&payload); err != nil {
		return err
	}

	target, ok := s.members[payload.TargetDeviceID]
	if !ok {
		return ErrTargetNotFound
	}
	if !target.Accepted || target.Removed {
		return ErrTargetNotActive
	}

	dominated := env.Lamport < target.RoleLamport ||
		(env.Lamport == target.RoleLamport && env.OpID.LessEq(target.RoleOp))
	if dominated {
		return nil // silently ignore: stale role set
	}

	target.Role = payload.NewRole
	target.RoleLamport = env.Lamport
	target.RoleOp = env.OpID
	return nil
}

// CanAuthorOp implements the authorization matrix from spec §4.1.
func (s *MembershipState) CanAuthorOp(device ids.DeviceID, opType ops.OpType) bool {
	member := s.GetActiveMember(device)
	if member == nil {
		// Non-active devices may only accept a pending invite.
		return opType == ops.OpMemberAccept
	}

	switch opType {
	case ops.OpMsgAdd, ops.OpMsgEdit, ops.OpMsgDelete, ops.OpReactionSet:
		return member.Role != ops.RoleReadOnly
	case ops.OpMemberInvite, ops.OpMemberRemove, ops.OpRoleSet, ops.OpMetadataSet:
		return member.Role == ops.RoleOwner || member.Role == ops.RoleAdmin
	case ops.OpGroupCreate:
		return false // only valid as the founding op, handled separately
	case ops.OpMemberAccept:
		return true
	default:
		return false
	}
}
