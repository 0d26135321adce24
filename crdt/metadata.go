package crdt

import (
	"github.com/shieldmsg/core/ids"
	"github.com/shieldmsg/core/ops"
)

// metadataEntry is an LWW register for one MetadataKey slot.
type metadataEntry struct {
	value   []byte
	lamport uint64
	op      ids.OpID
}

// MetadataState is the sub-CRDT for the group's LWW metadata registers
// (name, avatar, topic).
type MetadataState struct {
	entries map[ops.MetadataKey]metadataEntry
}

// NewMetadataState returns an empty metadata table.
func NewMetadataState() *MetadataState {
	return &MetadataState{entries: make(map[ops.MetadataKey]metadataEntry)}
}

// Get returns the current value for key and whether it has ever been set.
func (s *MetadataState) Get(key ops.MetadataKey) ([]byte, bool) {
	e, ok := s.entries[key]
	if !ok {
		return nil, false
	}
	return e.value, true
}

// Entries returns the full metadata map for iteration (e.g. state hashing).
func (s *MetadataState) Entries() map[ops.MetadataKey]metadataEntry {
	return s.entries
}

// ApplyMetadataSet writes an LWW metadata register, resolved by
// (lamport, op id).
func (s *MetadataState) ApplyMetadataSet(env *ops.Envelope) error {
	var payload ops.MetadataSetPayload
	if err := env.DecodePayloadInto(&payload); err != nil {
		return err
	}

	existing, has := s.entries[payload.Key]
	dominated := has && (env.Lamport < existing.lamport ||
		(env.Lamport == existing.lamport && env.OpID.LessEq(existing.op)))
	if dominated {
		return nil
	}

	s.entries[payload.Key] = metadataEntry{
		value:   payload.Value,
		lamport: env.Lamport,
		op:      env.OpID,
	}
	return nil
}
