package pingpong

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
	"github.com/shieldmsg/core/xcrypto"
)

// lengthPrefixSize is the 4-byte big-endian total-length field that
// precedes every frame on the wire. It excludes itself and includes the
// type byte, the sender's X25519 public key, and the AEAD ciphertext.
const lengthPrefixSize = 4

var ErrFrameTooShort = errors.New("pingpong: frame shorter than header")

// Frame is one decoded wire message: a type tag, the sender's ephemeral or
// long-term X25519 public key (used to derive the per-frame AEAD key), and
// the plaintext payload recovered after decryption.
type Frame struct {
	Type      MessageType
	SenderX25519 [32]byte
	Payload   []byte
}

// frameAAD binds the type byte and sender key into the AEAD's associated
// data so a frame can't be reinterpreted as a different type after the
// fact.
func frameAAD(typ MessageType, senderX [32]byte) []byte {
	aad := make([]byte, 0, 1+32)
	aad = append(aad, byte(typ))
	aad = append(aad, senderX[:]...)
	return aad
}

// EncodeFrame seals payload for typ under ECDH(ourX25519Secret,
// recipientX25519Public) and returns a complete length-prefixed wire frame.
func EncodeFrame(typ MessageType, ourX25519Secret, ourX25519Public, recipientX25519Public [32]byte, payload []byte) ([]byte, error) {
	shared, err := xcrypto.X25519(ourX25519Secret, recipientX25519Public)
	if err != nil {
		return nil, fmt.Errorf("pingpong: derive frame key: %w", err)
	}
	key := xcrypto.DeriveKey("ShieldMessenger-PingPong-Frame-v1", shared, xcrypto.KeySize)

	nonce, err := xcrypto.RandomNonce()
	if err != nil {
		return nil, err
	}
	ct, err := xcrypto.Seal(key, nonce, payload, frameAAD(typ, ourX25519Public))
	if err != nil {
		return nil, fmt.Errorf("pingpong: seal frame: %w", err)
	}

	body := make([]byte, 0, 1+32+len(nonce)+len(ct))
	body = append(body, byte(typ))
	body = append(body, ourX25519Public[:]...)
	body = append(body, nonce[:]...)
	body = append(body, ct...)

	out := make([]byte, lengthPrefixSize+len(body))
	binary.BigEndian.PutUint32(out[:lengthPrefixSize], uint32(len(body)))
	copy(out[lengthPrefixSize:], body)
	return out, nil
}

// DecodeFrame opens a length-prefixed frame (body only, length prefix
// already stripped by the caller) using our long-term X25519 secret.
func DecodeFrame(body []byte, ourX25519Secret [32]byte) (*Frame, error) {
	if len(body) < 1+32+xcrypto.NonceSize {
		return nil, ErrFrameTooShort
	}
	typ := MessageType(body[0])
	var senderX [32]byte
	copy(senderX[:], body[1:33])
	var nonce [xcrypto.NonceSize]byte
	copy(nonce[:], body[33:33+xcrypto.NonceSize])
	ct := body[33+xcrypto.NonceSize:]

	shared, err := xcrypto.X25519(ourX25519Secret, senderX)
	if err != nil {
		return nil, fmt.Errorf("pingpong: derive frame key: %w", err)
	}
	key := xcrypto.DeriveKey("ShieldMessenger-PingPong-Frame-v1", shared, xcrypto.KeySize)

	pt, err := xcrypto.Open(key, nonce, ct, frameAAD(typ, senderX))
	if err != nil {
		return nil, err
	}
	return &Frame{Type: typ, SenderX25519: senderX, Payload: pt}, nil
}

// ReadFrame reads one complete length-prefixed frame body from r.
func ReadFrame(r io.Reader) ([]byte, error) {
	var lenBuf [lengthPrefixSize]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, err
	}
	return body, nil
}

// WriteFrame writes a pre-encoded frame (as returned by EncodeFrame)
// verbatim.
func WriteFrame(w io.Writer, frame []byte) error {
	_, err := w.Write(frame)
	return err
}

func marshalCBOR(v interface{}) ([]byte, error) { return cbor.Marshal(v) }

func unmarshalCBOR(data []byte, v interface{}) error { return cbor.Unmarshal(data, v) }
