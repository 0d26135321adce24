package ops

// OpType tags the variant of an operation's payload. The numeric value is
// part of the canonical signable encoding, so it must never be renumbered
// once ops using it exist in the wild.
type OpType uint8

const (
	OpGroupCreate OpType = iota
	OpMemberInvite
	OpMemberAccept
	OpMemberRemove
	OpRoleSet
	OpMsgAdd
	OpMsgEdit
	OpMsgDelete
	OpReactionSet
	OpMetadataSet
)

func (t OpType) String() string {
	switch t {
	case OpGroupCreate:
		return "GroupCreate"
	case OpMemberInvite:
		return "MemberInvite"
	case OpMemberAccept:
		return "MemberAccept"
	case OpMemberRemove:
		return "MemberRemove"
	case OpRoleSet:
		return "RoleSet"
	case OpMsgAdd:
		return "MsgAdd"
	case OpMsgEdit:
		return "MsgEdit"
	case OpMsgDelete:
		return "MsgDelete"
	case OpReactionSet:
		return "ReactionSet"
	case OpMetadataSet:
		return "MetadataSet"
	default:
		return "Unknown"
	}
}

// IsMembershipOp reports whether t is always allowed past the hard op cap.
func (t OpType) IsMembershipOp() bool {
	switch t {
	case OpGroupCreate, OpMemberInvite, OpMemberAccept, OpMemberRemove, OpRoleSet:
		return true
	default:
		return false
	}
}

// Role is a membership authority level. Lower values are more authoritative:
// Owner < Admin < Member < ReadOnly.
type Role uint8

const (
	RoleOwner Role = iota
	RoleAdmin
	RoleMember
	RoleReadOnly
)

func (r Role) String() string {
	switch r {
	case RoleOwner:
		return "Owner"
	case RoleAdmin:
		return "Admin"
	case RoleMember:
		return "Member"
	case RoleReadOnly:
		return "ReadOnly"
	default:
		return "Unknown"
	}
}

// RemoveReason distinguishes a self-initiated Leave from an Owner/Admin Kick.
type RemoveReason uint8

const (
	RemoveKick RemoveReason = iota
	RemoveLeave
)

// MetadataKey enumerates the LWW metadata registers. The numeric value is
// part of the canonical state hash.
type MetadataKey uint8

const (
	MetaName MetadataKey = iota
	MetaAvatar
	MetaTopic
)

func (k MetadataKey) String() string {
	switch k {
	case MetaName:
		return "Name"
	case MetaAvatar:
		return "Avatar"
	case MetaTopic:
		return "Topic"
	default:
		return "Unknown"
	}
}
