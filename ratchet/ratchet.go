// Package ratchet implements the post-quantum Double Ratchet used for
// one-to-one peer message encryption.
//
// Overview
//
// The ratchet is comprised of the classic Signal Double Ratchet — a
// symmetric-key ratchet over two KDF chains plus a Diffie-Hellman
// ratchet — with a third ratchet layered on top: every
// KEMRatchetInterval messages, both sides mix a fresh hybrid
// X25519/ML-KEM-1024 encapsulation into the root key, so forward
// secrecy holds against an attacker that records traffic today and
// gains a cryptographically relevant quantum computer later.
//
// KDF Chains
//
// A KDF chain is a construction where part of the output of the KDF is
// used to key the next invocation, and the rest is used for some other
// purpose (message encryption):
//
//              key
//               v
//            ┌─────┐
//    const  >│ kdf │
//            └──┬──┘
//               ├─> message key
//               v
//              key
//
// Each session keeps three chains: the root chain, the sending chain,
// and the receiving chain. A party's sending chain matches the peer's
// receiving chain and vice versa; the root chain seeds both.
//
// This package does not implement encrypted headers.
package ratchet

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"runtime"

	"github.com/shieldmsg/core/kem"
	"github.com/shieldmsg/core/xcrypto"
)

// KEMRatchetInterval is the number of messages sent between automatic
// hybrid KEM ratchet steps.
const KEMRatchetInterval = 50

// MaxSkip is the largest per-chain gap of unreceived messages the
// session will buffer keys for before giving up.
const MaxSkip = 200

var (
	ErrTooManySkipped  = errors.New("ratchet: message gap exceeds MaxSkip")
	ErrDecryption      = errors.New("ratchet: decryption failed")
	ErrDHRatchetFailed = errors.New("ratchet: dh ratchet failed")
	ErrKEMRatchetFailed = errors.New("ratchet: kem ratchet failed")
	ErrNoSendChain     = errors.New("ratchet: send chain not yet established")
)

// RootKey seeds both the send and receive chains after a DH or KEM
// ratchet step.
type RootKey [32]byte

// ChainKey advances the symmetric ratchet one message at a time.
type ChainKey [32]byte

// MessageKey encrypts exactly one message.
type MessageKey [32]byte

// Header travels alongside each ciphertext.
type Header struct {
	DHPublic            [32]byte
	MessageNumber       uint64
	PreviousChainLength uint64
	// KEMCiphertext is present only on messages that perform a KEM
	// ratchet step: the hybrid Ciphertext encoded via encodeKEMCiphertext.
	KEMCiphertext []byte
	// KEMEncapsulationKey is the sender's freshly rotated KEM public key,
	// present alongside KEMCiphertext so the peer can encapsulate to it
	// on its own next KEM ratchet step.
	KEMEncapsulationKey []byte
}

// Encode serializes a Header to bytes.
func (h Header) Encode() []byte {
	buf := make([]byte, 0, 32+8+8+4+len(h.KEMCiphertext)+4+len(h.KEMEncapsulationKey))
	buf = append(buf, h.DHPublic[:]...)
	buf = appendU64(buf, h.MessageNumber)
	buf = appendU64(buf, h.PreviousChainLength)
	buf = appendU32(buf, uint32(len(h.KEMCiphertext)))
	buf = append(buf, h.KEMCiphertext...)
	buf = appendU32(buf, uint32(len(h.KEMEncapsulationKey)))
	buf = append(buf, h.KEMEncapsulationKey...)
	return buf
}

// DecodeHeader deserializes a Header from data.
func DecodeHeader(data []byte) (Header, error) {
	var h Header
	if len(data) < 48 {
		return h, errors.New("ratchet: header too short")
	}
	copy(h.DHPublic[:], data[0:32])
	h.MessageNumber = binary.BigEndian.Uint64(data[32:40])
	h.PreviousChainLength = binary.BigEndian.Uint64(data[40:48])
	rest := data[48:]

	if len(rest) < 4 {
		return h, errors.New("ratchet: header truncated (kem ciphertext length)")
	}
	ctLen := binary.BigEndian.Uint32(rest[0:4])
	rest = rest[4:]
	if uint32(len(rest)) < ctLen {
		return h, errors.New("ratchet: header truncated (kem ciphertext)")
	}
	if ctLen > 0 {
		h.KEMCiphertext = append([]byte(nil), rest[:ctLen]...)
	}
	rest = rest[ctLen:]

	if len(rest) < 4 {
		return h, errors.New("ratchet: header truncated (kem ek length)")
	}
	ekLen := binary.BigEndian.Uint32(rest[0:4])
	rest = rest[4:]
	if uint32(len(rest)) < ekLen {
		return h, errors.New("ratchet: header truncated (kem ek)")
	}
	if ekLen > 0 {
		h.KEMEncapsulationKey = append([]byte(nil), rest[:ekLen]...)
	}
	return h, nil
}

func appendU64(buf []byte, v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return append(buf, b[:]...)
}

func appendU32(buf []byte, v uint32) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return append(buf, b[:]...)
}

// skippedKeyID identifies one buffered out-of-order message key.
type skippedKeyID struct {
	dhPublic      [32]byte
	messageNumber uint64
}

// State is the full ratchet state for one peer session, mirroring the
// field set that must be zeroized on replacement and persisted across
// restarts (minus the skipped-key buffer, which is session-local).
type State struct {
	RootKey RootKey

	SendChainKey      ChainKey
	SendMessageNumber uint64
	HasSendChain      bool

	RecvChainKey      ChainKey
	RecvMessageNumber uint64
	HasRecvChain      bool

	OurDHSecret  [32]byte
	OurDHPublic  [32]byte
	TheirDHPublic [32]byte
	HasTheirDH   bool

	OurKEMKeyPair         kem.KeyPair
	TheirKEMEncapsulationKey []byte

	TotalMessagesSent   uint64
	PreviousChainLength uint64

	skippedOrder []skippedKeyID
	skippedKeys  map[skippedKeyID]MessageKey
}

func newState() *State {
	return &State{
		skippedKeys: make(map[skippedKeyID]MessageKey),
	}
}

// Wipe zeroizes all secret key material in place. Go has no destructor
// equivalent to Rust's Drop, so callers must call Wipe explicitly at
// every point a State is replaced or discarded.
func (s *State) Wipe() {
	s.RootKey.zero()
	s.SendChainKey.zero()
	s.RecvChainKey.zero()
	for i := range s.OurDHSecret {
		s.OurDHSecret[i] = 0
	}
	wipeBytes(s.OurKEMKeyPair.X25519Secret[:])
	wipeBytes(s.OurKEMKeyPair.MLKEMSecret)
	for k, mk := range s.skippedKeys {
		mk.zero()
		s.skippedKeys[k] = mk
	}
	s.skippedKeys = nil
	s.skippedOrder = nil
	runtime.KeepAlive(s)
}

func (k *RootKey) zero() {
	for i := range k {
		k[i] = 0
	}
}

func (k *ChainKey) zero() {
	for i := range k {
		k[i] = 0
	}
}

func (k *MessageKey) zero() {
	for i := range k {
		k[i] = 0
	}
}

//go:noinline
func wipeBytes(p []byte) {
	for i := range p {
		p[i] = 0
	}
	runtime.KeepAlive(p)
}

// rootKDF derives a fresh (root key, chain key) pair from the current
// root key and a Diffie-Hellman or KEM output, under a context-specific
// HKDF info string for domain separation.
func rootKDF(rk RootKey, ikm []byte, info string) (RootKey, ChainKey) {
	out, err := xcrypto.HKDFSHA256(ikm, rk[:], []byte(info), 64)
	if err != nil {
		panic(err)
	}
	var newRK RootKey
	var ck ChainKey
	copy(newRK[:], out[0:32])
	copy(ck[:], out[32:64])
	return newRK, ck
}

// chainKDF advances a symmetric chain one step: HMAC-SHA256(ck, 0x01) is
// the next chain key, HMAC-SHA256(ck, 0x02) is this step's message key.
func chainKDF(ck ChainKey) (ChainKey, MessageKey) {
	h := hmac.New(sha256.New, ck[:])
	h.Write([]byte{0x01})
	var next ChainKey
	copy(next[:], h.Sum(nil))

	h.Reset()
	h.Write([]byte{0x02})
	var mk MessageKey
	copy(mk[:], h.Sum(nil))

	return next, mk
}

// messageKeyToAEAD derives an XChaCha20-Poly1305 key and nonce from a
// single-use message key.
func messageKeyToAEAD(mk MessageKey) (key [32]byte, nonce [24]byte) {
	out, err := xcrypto.HKDFSHA256(mk[:], nil, []byte("ShieldMessenger-MessageKey-v1"), 32+24)
	if err != nil {
		panic(err)
	}
	copy(key[:], out[:32])
	copy(nonce[:], out[32:])
	return key, nonce
}

func dhPublicEqual(a, b [32]byte) bool {
	return bytes.Equal(a[:], b[:])
}
