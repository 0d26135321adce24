package pingpong

import (
	"crypto/ed25519"
	"crypto/rand"
	"time"

	"github.com/shieldmsg/core/xcrypto"
)

// NewPing builds and signs a PingToken from sender to recipient.
func NewPing(signingKey ed25519.PrivateKey, senderEd, recipientEd ed25519.PublicKey, senderX, recipientX [32]byte, now time.Time) (*PingToken, error) {
	var nonce [24]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, err
	}
	p := &PingToken{
		ProtocolVersion:  ProtocolVersion,
		SenderEd25519:    senderEd,
		RecipientEd25519: recipientEd,
		SenderX25519:     senderX,
		RecipientX25519:  recipientX,
		Nonce:            nonce,
		Timestamp:        now.Unix(),
	}
	sig, err := xcrypto.Sign(signingKey, p.signableBytes())
	if err != nil {
		return nil, err
	}
	p.Signature = sig
	return p, nil
}

// Verify checks a PING's signature, protocol version, intended recipient,
// and age. ourIdentity is compared against p.RecipientEd25519 in constant
// time so a malformed or misrouted PING can't be distinguished by timing
// from one addressed to someone else.
func (p *PingToken) Verify(ourIdentity ed25519.PublicKey, now time.Time, maxAge time.Duration) error {
	if p.ProtocolVersion != ProtocolVersion {
		return ErrVersionMismatch
	}
	if !xcrypto.ConstantTimeEqual(p.RecipientEd25519, ourIdentity) {
		return ErrWrongRecipient
	}
	if p.Age(now) > maxAge {
		return ErrStalePing
	}
	if !xcrypto.Verify(p.SenderEd25519, p.signableBytes(), p.Signature) {
		return ErrBadSignature
	}
	return nil
}

// NewPong builds and signs a PongToken replying to ping, asserting whether
// the recipient side is presently authenticated (app unlocked, user chose
// to answer).
func NewPong(signingKey ed25519.PrivateKey, ping *PingToken, authenticated bool, now time.Time) (*PongToken, error) {
	var nonce [24]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, err
	}
	pg := &PongToken{
		ProtocolVersion: ProtocolVersion,
		PingNonce:       ping.Nonce,
		PongNonce:       nonce,
		Timestamp:       now.Unix(),
		Authenticated:   authenticated,
	}
	sig, err := xcrypto.Sign(signingKey, pg.signableBytes())
	if err != nil {
		return nil, err
	}
	pg.Signature = sig
	return pg, nil
}

// Verify checks a PONG's signature and that it echoes the expected PING
// nonce.
func (p *PongToken) Verify(senderEd25519 ed25519.PublicKey, expectedPingNonce [24]byte) error {
	if p.ProtocolVersion != ProtocolVersion {
		return ErrVersionMismatch
	}
	if p.PingNonce != expectedPingNonce {
		return ErrBadSignature
	}
	if !xcrypto.Verify(senderEd25519, p.signableBytes(), p.Signature) {
		return ErrBadSignature
	}
	return nil
}

// NewAck builds and signs a fire-and-forget DeliveryAck.
func NewAck(signingKey ed25519.PrivateKey, senderEd25519 ed25519.PublicKey, itemID [16]byte, typ AckType, now time.Time) (*DeliveryAck, error) {
	a := &DeliveryAck{
		ItemID:        itemID,
		Type:          typ,
		Timestamp:     now.Unix(),
		SenderEd25519: senderEd25519,
	}
	sig, err := xcrypto.Sign(signingKey, a.signableBytes())
	if err != nil {
		return nil, err
	}
	a.Signature = sig
	return a, nil
}

// Verify checks a DeliveryAck's signature.
func (a *DeliveryAck) Verify() bool {
	return xcrypto.Verify(a.SenderEd25519, a.signableBytes(), a.Signature)
}
