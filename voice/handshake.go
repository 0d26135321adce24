package voice

import (
	"context"
	"errors"
	"io"
	"time"
)

// HandshakeTimeout bounds the VOICE_HELLO/OK exchange per circuit.
const HandshakeTimeout = 10 * time.Second

var (
	helloMagic = []byte("HELLO")
	okMagic    = []byte("OK")
)

var (
	ErrHandshakeTimeout  = errors.New("voice: handshake timed out")
	ErrBadHelloMagic     = errors.New("voice: malformed VOICE_HELLO")
	ErrBadOKMagic        = errors.New("voice: malformed VOICE_OK")
	ErrHandshakeMismatch = errors.New("voice: no common protocol version")
)

type deadlineConn interface {
	io.ReadWriter
	SetDeadline(time.Time) error
}

// sendHello writes the 36-byte call UUID followed by
// VOICE_HELLO = "HELLO" || version || flags (8 bytes total).
func sendHello(w io.Writer, callID [36]byte, offeredVersion uint8, flags uint8) error {
	if _, err := w.Write(callID[:]); err != nil {
		return err
	}
	frame := make([]byte, 0, len(helloMagic)+2)
	frame = append(frame, helloMagic...)
	frame = append(frame, offeredVersion, flags)
	_, err := w.Write(frame)
	return err
}

func readHello(r io.Reader) (callID [36]byte, offeredVersion uint8, flags uint8, err error) {
	if _, err = io.ReadFull(r, callID[:]); err != nil {
		return
	}
	frame := make([]byte, len(helloMagic)+2)
	if _, err = io.ReadFull(r, frame); err != nil {
		return
	}
	if string(frame[:len(helloMagic)]) != string(helloMagic) {
		err = ErrBadHelloMagic
		return
	}
	offeredVersion = frame[len(helloMagic)]
	flags = frame[len(helloMagic)+1]
	return
}

// sendOK writes VOICE_OK = "OK" || negotiated_version || flags (4 bytes).
func sendOK(w io.Writer, negotiatedVersion, flags uint8) error {
	frame := make([]byte, 0, len(okMagic)+2)
	frame = append(frame, okMagic...)
	frame = append(frame, negotiatedVersion, flags)
	_, err := w.Write(frame)
	return err
}

func readOK(r io.Reader) (negotiatedVersion, flags uint8, err error) {
	frame := make([]byte, len(okMagic)+2)
	if _, err = io.ReadFull(r, frame); err != nil {
		return
	}
	if string(frame[:len(okMagic)]) != string(okMagic) {
		err = ErrBadOKMagic
		return
	}
	negotiatedVersion = frame[len(okMagic)]
	flags = frame[len(okMagic)+1]
	return
}

func negotiateVersion(offered, ours uint8) (uint8, error) {
	v := offered
	if ours < v {
		v = ours
	}
	if v != ProtocolVersion && v != legacyProtocolVersion {
		return 0, ErrHandshakeMismatch
	}
	return v, nil
}

// InitiatorHandshake runs the caller side: send HELLO with our call id and
// offered version, await OK, return the negotiated version.
func InitiatorHandshake(ctx context.Context, conn deadlineConn, callID [36]byte) (negotiated uint8, err error) {
	deadline := time.Now().Add(HandshakeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return 0, err
	}
	defer conn.SetDeadline(time.Time{})

	if err := sendHello(conn, callID, ProtocolVersion, 0); err != nil {
		return 0, err
	}
	neg, _, err := readOK(conn)
	if err != nil {
		return 0, mapTimeoutErr(err)
	}
	if neg != ProtocolVersion && neg != legacyProtocolVersion {
		return 0, ErrHandshakeMismatch
	}
	return neg, nil
}

// ResponderHandshake runs the callee side: read HELLO, negotiate, reply OK.
func ResponderHandshake(ctx context.Context, conn deadlineConn) (callID [36]byte, negotiated uint8, err error) {
	deadline := time.Now().Add(HandshakeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return callID, 0, err
	}
	defer conn.SetDeadline(time.Time{})

	callID, offered, _, err := readHello(conn)
	if err != nil {
		return callID, 0, mapTimeoutErr(err)
	}
	neg, err := negotiateVersion(offered, ProtocolVersion)
	if err != nil {
		return callID, 0, err
	}
	if err := sendOK(conn, neg, 0); err != nil {
		return callID, 0, err
	}
	return callID, neg, nil
}

func mapTimeoutErr(err error) error {
	type timeouter interface{ Timeout() bool }
	if te, ok := err.(timeouter); ok && te.Timeout() {
		return ErrHandshakeTimeout
	}
	return err
}

// encodeCallID packs a 36-byte call UUID string (e.g. a hyphenated UUIDv4)
// into its fixed-size wire form, zero-padding or truncating as needed.
func encodeCallID(s string) [36]byte {
	var out [36]byte
	copy(out[:], s)
	return out
}

func decodeCallIDString(id [36]byte) string {
	n := len(id)
	for n > 0 && id[n-1] == 0 {
		n--
	}
	return string(id[:n])
}
