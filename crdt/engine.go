package crdt

import (
	"bytes"
	"encoding/binary"
	"errors"
	"sort"

	"github.com/shieldmsg/core/ids"
	"github.com/shieldmsg/core/ops"
	"github.com/shieldmsg/core/xcrypto"
)

var (
	ErrGroupNotFounded    = errors.New("crdt: group has not been founded yet")
	ErrUnauthorizedAuthor = errors.New("crdt: author is not authorized for this op type")
	ErrHardCapReached     = errors.New("crdt: hard op cap reached, non-membership ops rejected")
	ErrUnknownOpType      = errors.New("crdt: unknown op type")
	ErrWrongGroup         = errors.New("crdt: op targets a different group")
)

// Domain separator bytes mixed into the BLAKE3 state hash, one per
// sub-CRDT section, so a collision between e.g. a membership hash and a
// messages hash of otherwise-identical bytes can never alias.
const (
	domainMembership = 'M'
	domainMessages    = 'G'
	domainMetadata    = 'D'
)

// GroupState is the full replicated state of one group: the three
// sub-CRDTs plus the bookkeeping the apply engine needs to be a correct
// commutative, idempotent, order-independent op-application function.
type GroupState struct {
	GroupID    ids.GroupID
	Membership *MembershipState
	Messages   *MessagesState
	Metadata   *MetadataState

	applied    map[ids.OpID]bool
	heads      map[ids.OpID]bool
	opCount    uint64
	maxLamport map[ids.DeviceID]uint64
}

// NewGroupState returns an empty group state bound to groupID, ready to
// receive a GroupCreate op as its first applied op. Every subsequent op
// applied to this state must carry the same GroupID.
func NewGroupState(groupID ids.GroupID) *GroupState {
	return &GroupState{
		GroupID:    groupID,
		Membership: NewMembershipState(),
		Messages:   NewMessagesState(),
		Metadata:   NewMetadataState(),
		applied:    make(map[ids.OpID]bool),
		heads:      make(map[ids.OpID]bool),
		maxLamport: make(map[ids.DeviceID]uint64),
	}
}

// OpCount returns the number of ops applied so far.
func (g *GroupState) OpCount() uint64 { return g.opCount }

// MaxLamport returns the highest lamport value seen from author across
// every op applied so far, or 0 if author has never authored an applied
// op. A sync client compares this against a peer's reported max lamport
// for the same author to detect how far behind its local log is.
func (g *GroupState) MaxLamport(author ids.DeviceID) uint64 {
	return g.maxLamport[author]
}

// LimitStatus classifies how close the group is to its hard op cap.
func (g *GroupState) LimitStatus() ids.LimitStatus {
	return ids.CheckOpLimits(g.opCount)
}

// Heads returns the current set of head op ids (ops with no known child),
// sorted for deterministic iteration.
func (g *GroupState) Heads() []ids.OpID {
	out := make([]ids.OpID, 0, len(g.heads))
	for h := range g.heads {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

// ApplyOp is the single entry point for applying one signed op to group
// state. It is commutative and idempotent: applying the same valid set of
// ops in any order, any number of times, converges to the same state.
// The returned bool reports whether the op was newly applied; a duplicate
// op_id returns (false, nil), never an error — ordering/staleness cases
// are never failures, only validation, authorization, and capacity are.
func (g *GroupState) ApplyOp(env *ops.Envelope) (bool, error) {
	if !env.Verify() {
		return false, ops.ErrInvalidSignature
	}

	author := ids.DeviceIDFromPubkey(env.AuthorPubkey[:])
	if author != env.OpID.Author {
		return false, ops.ErrAuthorMismatch
	}

	if env.GroupID != g.GroupID {
		return false, ErrWrongGroup
	}

	if g.applied[env.OpID] {
		return false, nil
	}

	if env.OpType != ops.OpGroupCreate && !g.founded() {
		return false, ErrGroupNotFounded
	}

	if env.OpType != ops.OpGroupCreate && !g.Membership.CanAuthorOp(author, env.OpType) {
		return false, ErrUnauthorizedAuthor
	}

	if !env.OpType.IsMembershipOp() && g.LimitStatus() == ids.LimitHardCapReached {
		return false, ErrHardCapReached
	}

	var err error
	switch env.OpType {
	case ops.OpGroupCreate:
		err = g.Membership.ApplyGroupCreate(env)
	case ops.OpMemberInvite:
		err = g.Membership.ApplyMemberInvite(env)
	case ops.OpMemberAccept:
		err = g.Membership.ApplyMemberAccept(env)
	case ops.OpMemberRemove:
		err = g.Membership.ApplyMemberRemove(env)
	case ops.OpRoleSet:
		err = g.Membership.ApplyRoleSet(env)
	case ops.OpMsgAdd:
		err = g.Messages.ApplyMsgAdd(env)
	case ops.OpMsgEdit:
		err = g.Messages.ApplyMsgEdit(env)
	case ops.OpMsgDelete:
		err = g.Messages.ApplyMsgDelete(env, g.Membership)
	case ops.OpReactionSet:
		err = g.Messages.ApplyReactionSet(env)
	case ops.OpMetadataSet:
		err = g.Metadata.ApplyMetadataSet(env)
	default:
		return false, ErrUnknownOpType
	}
	if err != nil {
		return false, err
	}

	g.applied[env.OpID] = true
	g.opCount++
	g.updateHeads(env)
	if env.Lamport > g.maxLamport[author] {
		g.maxLamport[author] = env.Lamport
	}
	return true, nil
}

// founded reports whether a GroupCreate has already been applied.
func (g *GroupState) founded() bool {
	return g.Membership.created
}

// updateHeads removes env's parents from the head set (they now have a
// known child) and adds env itself.
func (g *GroupState) updateHeads(env *ops.Envelope) {
	for _, parent := range env.ParentHeads {
		delete(g.heads, parent)
	}
	g.heads[env.OpID] = true
}

// RebuildFromOps builds a fresh group state bound to groupID and
// reapplies every op in the given slice in order, so a caller can
// recompute state from a log fetched out of causal order — correctness
// depends only on ApplyOp being commutative and idempotent, not on the
// input slice's order matching lamport order, though membership's
// lamport==1 founding check means a GroupCreate op must still be present
// somewhere in the slice.
func RebuildFromOps(groupID ids.GroupID, envs []*ops.Envelope) (*GroupState, []error) {
	state := NewGroupState(groupID)
	var errs []error
	// Apply in (lamport, author, nonce) order: not required for
	// correctness, but it keeps failure-to-apply diagnostics meaningful
	// (e.g. "member not found" instead of reordering-induced noise) and
	// matches the order a freshly-synced peer would receive ops in.
	sorted := make([]*ops.Envelope, len(envs))
	copy(sorted, envs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].OpID.Less(sorted[j].OpID) })

	for _, env := range sorted {
		if _, err := state.ApplyOp(env); err != nil {
			errs = append(errs, err)
		}
	}
	return state, errs
}

// StateHash returns a deterministic BLAKE3 digest of the full group
// state. Two replicas that applied the same set of ops, in any order,
// produce identical hashes.
func (g *GroupState) StateHash() [32]byte {
	var buf bytes.Buffer

	buf.WriteByte(domainMembership)
	writeMembershipSection(&buf, g.Membership)

	buf.WriteByte(domainMessages)
	writeMessagesSection(&buf, g.Messages)

	buf.WriteByte(domainMetadata)
	writeMetadataSection(&buf, g.Metadata)

	return xcrypto.Hash32(buf.Bytes())
}

func writeU64(buf *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	buf.Write(b[:])
}

func writeMembershipSection(buf *bytes.Buffer, s *MembershipState) {
	devices := make([]ids.DeviceID, 0, len(s.members))
	for d := range s.members {
		devices = append(devices, d)
	}
	sort.Slice(devices, func(i, j int) bool { return devices[i].Less(devices[j]) })

	writeU64(buf, uint64(len(devices)))
	for _, d := range devices {
		m := s.members[d]
		buf.Write(d[:])
		buf.Write(m.Pubkey[:])
		buf.WriteByte(byte(m.Role))
		if m.Accepted {
			buf.WriteByte(1)
		} else {
			buf.WriteByte(0)
		}
		if m.Removed {
			buf.WriteByte(1)
		} else {
			buf.WriteByte(0)
		}
	}
}

func writeMessagesSection(buf *bytes.Buffer, s *MessagesState) {
	msgIDs := make([][32]byte, 0, len(s.messages))
	for id := range s.messages {
		msgIDs = append(msgIDs, id)
	}
	sort.Slice(msgIDs, func(i, j int) bool { return bytes.Compare(msgIDs[i][:], msgIDs[j][:]) < 0 })

	writeU64(buf, uint64(len(msgIDs)))
	for _, id := range msgIDs {
		m := s.messages[id]
		buf.Write(id[:])
		buf.Write(m.AuthorDevice[:])
		if m.Deleted {
			buf.WriteByte(1)
			continue // tombstoned: ciphertext is gone, nothing else to hash
		}
		buf.WriteByte(0)
		writeU64(buf, uint64(len(m.Ciphertext)))
		buf.Write(m.Ciphertext)

		active := m.ActiveReactions()
		keys := make([]reactionKey, 0, len(active))
		for k := range active {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool {
			if c := bytes.Compare(keys[i].reactor[:], keys[j].reactor[:]); c != 0 {
				return c < 0
			}
			return keys[i].emoji < keys[j].emoji
		})
		writeU64(buf, uint64(len(keys)))
		for _, k := range keys {
			buf.Write(k.reactor[:])
			buf.Write([]byte(k.emoji))
		}
	}
}

func writeMetadataSection(buf *bytes.Buffer, s *MetadataState) {
	keys := make([]int, 0, len(s.entries))
	for k := range s.entries {
		keys = append(keys, int(k))
	}
	sort.Ints(keys)

	writeU64(buf, uint64(len(keys)))
	for _, k := range keys {
		e := s.entries[ops.MetadataKey(k)]
		buf.WriteByte(byte(k))
		writeU64(buf, uint64(len(e.value)))
		buf.Write(e.value)
	}
}

// RenderableMessage is a message entry joined with its author's current
// activity, for UI consumption: deleted or authored-by-removed-member
// messages are excluded.
type RenderableMessage struct {
	MsgID          [32]byte
	AuthorDevice   ids.DeviceID
	Ciphertext     []byte
	Nonce          [24]byte
	Edited         bool
	CreatedLamport uint64
}

// RenderableMessages returns the messages that should currently be shown
// to the user: not deleted, and authored by a still-active member, in
// creation order.
func (g *GroupState) RenderableMessages() []RenderableMessage {
	var out []RenderableMessage
	for _, m := range g.Messages.messages {
		if m.Deleted {
			continue
		}
		if !g.Membership.IsAuthorActiveForRender(m.AuthorDevice) {
			continue
		}
		out = append(out, RenderableMessage{
			MsgID:          m.MsgID,
			AuthorDevice:   m.AuthorDevice,
			Ciphertext:     m.Ciphertext,
			Nonce:          m.Nonce,
			Edited:         m.Edited,
			CreatedLamport: m.CreatedLamport,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedLamport != out[j].CreatedLamport {
			return out[i].CreatedLamport < out[j].CreatedLamport
		}
		return bytes.Compare(out[i].MsgID[:], out[j].MsgID[:]) < 0
	})
	return out
}
