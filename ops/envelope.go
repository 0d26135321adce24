// Package ops defines the signed operation envelope — the atomic,
// replicated unit of the group CRDT — and its canonical binary encoding.
//
// Two independent implementations must produce byte-identical signable
// bytes for the same logical envelope, because the signature covers that
// encoding directly. Encode accordingly: fixed field order, fixed-width
// integers, explicit length prefixes — never map iteration order, never a
// format with multiple valid encodings for one value.
package ops

import (
	"bytes"
	"crypto/ed25519"
	"encoding/binary"
	"errors"
	"sort"

	"github.com/shieldmsg/core/ids"
	"github.com/shieldmsg/core/xcrypto"
)

// MaxPayloadBytes is the maximum CBOR-encoded payload size for one op.
const MaxPayloadBytes = 64 * 1024

var (
	ErrPayloadTooLarge  = errors.New("ops: payload exceeds maximum size")
	ErrInvalidSignature = errors.New("ops: invalid signature")
	ErrAuthorMismatch   = errors.New("ops: author device id does not match pubkey")
	ErrInvalidKeyLength = errors.New("ops: invalid key length")
)

// Envelope is an immutable, signed CRDT operation.
type Envelope struct {
	GroupID      ids.GroupID
	OpID         ids.OpID
	ParentHeads  []ids.OpID
	Lamport      uint64
	TimestampMs  uint64
	OpType       OpType
	Payload      []byte
	AuthorPubkey [32]byte
	Signature    [64]byte
}

// SignableBytes returns the canonical binary encoding of every field except
// Signature, in the fixed order: group_id, op_id, parent_heads, lamport,
// timestamp_ms, op_type, payload, author_pubkey.
func (e *Envelope) SignableBytes() []byte {
	var buf bytes.Buffer
	buf.Write(e.GroupID[:])
	writeOpID(&buf, e.OpID)

	var countBuf [4]byte
	binary.BigEndian.PutUint32(countBuf[:], uint32(len(e.ParentHeads)))
	buf.Write(countBuf[:])
	// parent_heads has no canonical order of its own in the protocol (it is
	// a set); sort before encoding so two callers building the same logical
	// envelope from an unordered set still sign identical bytes.
	sorted := make([]ids.OpID, len(e.ParentHeads))
	copy(sorted, e.ParentHeads)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Less(sorted[j]) })
	for _, p := range sorted {
		writeOpID(&buf, p)
	}

	var u64buf [8]byte
	binary.BigEndian.PutUint64(u64buf[:], e.Lamport)
	buf.Write(u64buf[:])
	binary.BigEndian.PutUint64(u64buf[:], e.TimestampMs)
	buf.Write(u64buf[:])

	buf.WriteByte(byte(e.OpType))

	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(e.Payload)))
	buf.Write(lenBuf[:])
	buf.Write(e.Payload)

	buf.Write(e.AuthorPubkey[:])

	return buf.Bytes()
}

func writeOpID(buf *bytes.Buffer, id ids.OpID) {
	buf.Write(id.Author[:])
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], id.Lamport)
	buf.Write(b[:])
	binary.BigEndian.PutUint64(b[:], id.Nonce)
	buf.Write(b[:])
}

// SigningHash is BLAKE3(SignableBytes()) — the value actually Ed25519-signed.
func (e *Envelope) SigningHash() [32]byte {
	return xcrypto.Hash32(e.SignableBytes())
}

// Sign signs the envelope in place using priv, which must correspond to
// e.AuthorPubkey.
func (e *Envelope) Sign(priv ed25519.PrivateKey) error {
	hash := e.SigningHash()
	sig, err := xcrypto.Sign(priv, hash[:])
	if err != nil {
		return err
	}
	copy(e.Signature[:], sig)
	return nil
}

// Verify checks the Ed25519 signature over the envelope's signing hash.
func (e *Envelope) Verify() bool {
	hash := e.SigningHash()
	return xcrypto.Verify(e.AuthorPubkey[:], hash[:], e.Signature[:])
}

// NewSigned builds, signs, and returns a complete envelope for one op.
// lamport must already be the author's freshly-incremented clock value;
// nonce must be unique per (author, lamport) pair.
func NewSigned(groupID ids.GroupID, opType OpType, payload interface{}, lamport, nonce uint64, timestampMs uint64, authorPub [32]byte, authorPriv ed25519.PrivateKey) (*Envelope, error) {
	payloadBytes, err := EncodePayload(payload)
	if err != nil {
		return nil, err
	}
	if len(payloadBytes) > MaxPayloadBytes {
		return nil, ErrPayloadTooLarge
	}

	device := ids.DeviceIDFromPubkey(authorPub[:])
	env := &Envelope{
		GroupID:      groupID,
		OpID:         ids.OpID{Author: device, Lamport: lamport, Nonce: nonce},
		ParentHeads:  nil,
		Lamport:      lamport,
		TimestampMs:  timestampMs,
		OpType:       opType,
		Payload:      payloadBytes,
		AuthorPubkey: authorPub,
	}
	if err := env.Sign(authorPriv); err != nil {
		return nil, err
	}
	return env, nil
}

// DecodePayloadInto decodes e.Payload into v.
func (e *Envelope) DecodePayloadInto(v interface{}) error {
	return DecodePayload(e.Payload, v)
}
