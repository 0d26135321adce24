// Package pingpong implements the signed wake handshake that gates message
// delivery on recipient availability: a PING/PONG exchange over the hidden
// service transport, with hybrid instant and delayed delivery modes and a
// fire-and-forget ACK channel layered on top.
package pingpong

import (
	"crypto/ed25519"
	"encoding/binary"
	"errors"
	"time"
)

// MessageType is the wire type byte that precedes every AEAD-sealed frame.
type MessageType byte

const (
	TypePing          MessageType = 0x01
	TypePong          MessageType = 0x02
	TypeText          MessageType = 0x03
	TypeVoice         MessageType = 0x04
	TypeTap           MessageType = 0x05
	TypeDeliveryAck   MessageType = 0x06
	TypeFriendRequest MessageType = 0x07
	TypeFriendAccept  MessageType = 0x08
	TypeImage         MessageType = 0x09
	TypePaymentReq    MessageType = 0x0A
	TypePaymentAccept MessageType = 0x0B
	TypePaymentDone   MessageType = 0x0C
	TypeCallSignal    MessageType = 0x0D
)

// ProtocolVersion is the current PingToken/PongToken wire version.
const ProtocolVersion = 1

// DefaultPingMaxAge is the policy threshold past which a received PING is
// rejected as stale, not a correctness parameter.
const DefaultPingMaxAge = 300 * time.Second

// DefaultInstantTimeout bounds how long a sender waits for an authenticated
// PONG on the PING connection before falling back to delayed delivery.
const DefaultInstantTimeout = 30 * time.Second

var (
	ErrStalePing       = errors.New("pingpong: ping token older than max age")
	ErrBadSignature    = errors.New("pingpong: signature verification failed")
	ErrWrongRecipient  = errors.New("pingpong: ping addressed to a different identity")
	ErrVersionMismatch = errors.New("pingpong: unsupported protocol version")
	ErrNotAuthenticated = errors.New("pingpong: pong did not authenticate the peer")
)

// PingToken is the sender's wake request. Signature covers every preceding
// field concatenated in field order (see signableBytes).
type PingToken struct {
	ProtocolVersion  uint8
	SenderEd25519    ed25519.PublicKey // 32 bytes
	RecipientEd25519 ed25519.PublicKey // 32 bytes
	SenderX25519     [32]byte
	RecipientX25519  [32]byte
	Nonce            [24]byte
	Timestamp        int64
	Signature        []byte
}

func (p *PingToken) signableBytes() []byte {
	buf := make([]byte, 0, 1+32+32+32+32+24+8)
	buf = append(buf, p.ProtocolVersion)
	buf = append(buf, p.SenderEd25519...)
	buf = append(buf, p.RecipientEd25519...)
	buf = append(buf, p.SenderX25519[:]...)
	buf = append(buf, p.RecipientX25519[:]...)
	buf = append(buf, p.Nonce[:]...)
	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], uint64(p.Timestamp))
	buf = append(buf, ts[:]...)
	return buf
}

// Age returns how long ago the token was stamped, relative to now.
func (p *PingToken) Age(now time.Time) time.Duration {
	return now.Sub(time.Unix(p.Timestamp, 0))
}

// PongToken is the recipient's reply to a PING, echoing the ping's version
// and nonce and asserting whether the recipient is authenticated (i.e. the
// app is unlocked and the user chose to answer).
type PongToken struct {
	ProtocolVersion uint8
	PingNonce       [24]byte
	PongNonce       [24]byte
	Timestamp       int64
	Authenticated   bool
	Signature       []byte
}

func (p *PongToken) signableBytes() []byte {
	buf := make([]byte, 0, 1+24+24+8+1)
	buf = append(buf, p.ProtocolVersion)
	buf = append(buf, p.PingNonce[:]...)
	buf = append(buf, p.PongNonce[:]...)
	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], uint64(p.Timestamp))
	buf = append(buf, ts[:]...)
	if p.Authenticated {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	return buf
}

// AckType distinguishes what a DeliveryAck is acknowledging.
type AckType byte

const (
	AckPing AckType = iota
	AckMessage
	AckTap
	AckPong
)

// DeliveryAck is the fire-and-forget 0x06 frame. It is never retried by the
// receiver of the ack and must never be dropped by the transport's routing
// layer even when it arrives on the wrong port.
type DeliveryAck struct {
	ItemID        [16]byte
	Type          AckType
	Timestamp     int64
	SenderEd25519 ed25519.PublicKey
	Signature     []byte
}

func (a *DeliveryAck) signableBytes() []byte {
	buf := make([]byte, 0, 16+1+8+32)
	buf = append(buf, a.ItemID[:]...)
	buf = append(buf, byte(a.Type))
	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], uint64(a.Timestamp))
	buf = append(buf, ts[:]...)
	buf = append(buf, a.SenderEd25519...)
	return buf
}
