// Package voice implements the multi-circuit voice transport: N parallel
// Tor circuits per call, each carrying packet-v2 framed, AEAD-sealed audio
// with free redundancy riding inside the Tor cell's existing padding, plus
// the VOICE_HELLO/OK handshake and circuit-rebuild contract.
package voice

import (
	"encoding/binary"
	"errors"
)

// PacketType distinguishes audio payloads from in-band control frames.
type PacketType uint8

const (
	PacketAudio   PacketType = 1
	PacketControl PacketType = 2
)

// ProtocolVersion is the current packet/handshake version. Version 1 peers
// omit the redundant trailer entirely; receivers must tolerate both.
const ProtocolVersion = 2

const legacyProtocolVersion = 1

var (
	ErrPacketTooShort = errors.New("voice: packet shorter than header")
	ErrPacketTruncated = errors.New("voice: declared payload length exceeds packet")
)

// Packet is one decoded v2 audio/control packet: a primary frame plus an
// optional redundant copy of the previous frame, carried for free inside
// the Tor cell's existing padding so single-frame loss needs no
// retransmit.
type Packet struct {
	Sequence         uint32
	Timestamp        uint64
	CircuitIndex     uint8
	Type             PacketType
	Primary          []byte
	RedundantSeq     uint32
	Redundant        []byte // nil for a v1 peer or the call's first frame
}

// Encode serializes p in packet-v2 wire format:
//
//	seq:u32_be timestamp:u64_be circuit_index:u8 ptype:u8
//	primary_len:u16_be primary_payload[primary_len]
//	redundant_seq:u32_be redundant_len:u16_be redundant_payload[redundant_len]
func (p *Packet) Encode() []byte {
	size := 4 + 8 + 1 + 1 + 2 + len(p.Primary) + 4 + 2 + len(p.Redundant)
	buf := make([]byte, size)
	off := 0
	binary.BigEndian.PutUint32(buf[off:], p.Sequence)
	off += 4
	binary.BigEndian.PutUint64(buf[off:], p.Timestamp)
	off += 8
	buf[off] = p.CircuitIndex
	off++
	buf[off] = byte(p.Type)
	off++
	binary.BigEndian.PutUint16(buf[off:], uint16(len(p.Primary)))
	off += 2
	off += copy(buf[off:], p.Primary)
	binary.BigEndian.PutUint32(buf[off:], p.RedundantSeq)
	off += 4
	binary.BigEndian.PutUint16(buf[off:], uint16(len(p.Redundant)))
	off += 2
	copy(buf[off:], p.Redundant)
	return buf
}

// DecodePacket parses a packet-v2 frame. A legacy v1 peer's packet (no
// redundant trailer) is tolerated: if the buffer ends exactly at the
// primary payload, Redundant is left nil rather than treated as an error.
func DecodePacket(buf []byte) (*Packet, error) {
	const headerLen = 4 + 8 + 1 + 1 + 2
	if len(buf) < headerLen {
		return nil, ErrPacketTooShort
	}
	p := &Packet{}
	off := 0
	p.Sequence = binary.BigEndian.Uint32(buf[off:])
	off += 4
	p.Timestamp = binary.BigEndian.Uint64(buf[off:])
	off += 8
	p.CircuitIndex = buf[off]
	off++
	p.Type = PacketType(buf[off])
	off++
	primaryLen := int(binary.BigEndian.Uint16(buf[off:]))
	off += 2
	if off+primaryLen > len(buf) {
		return nil, ErrPacketTruncated
	}
	p.Primary = buf[off : off+primaryLen]
	off += primaryLen

	if off == len(buf) {
		// Legacy v1 peer: no redundant trailer present.
		return p, nil
	}
	if off+4+2 > len(buf) {
		return nil, ErrPacketTruncated
	}
	p.RedundantSeq = binary.BigEndian.Uint32(buf[off:])
	off += 4
	redundantLen := int(binary.BigEndian.Uint16(buf[off:]))
	off += 2
	if off+redundantLen > len(buf) {
		return nil, ErrPacketTruncated
	}
	p.Redundant = buf[off : off+redundantLen]
	return p, nil
}
