package voice

import (
	"context"
	"net"
	"testing"
	"time"
)

func newPipePair() (a, b deadlineConn) {
	c1, c2 := net.Pipe()
	return c1, c2
}

func TestHandshakeNegotiatesV2(t *testing.T) {
	caller, callee := newPipePair()
	defer caller.(net.Conn).Close()
	defer callee.(net.Conn).Close()

	callID := "11111111-2222-3333-4444-555555555555"
	errCh := make(chan error, 1)
	var gotCallID [36]byte
	var negCallee uint8
	go func() {
		var err error
		gotCallID, negCallee, err = ResponderHandshake(context.Background(), callee)
		errCh <- err
	}()

	negCaller, err := InitiatorHandshake(context.Background(), caller, encodeCallID(callID))
	if err != nil {
		t.Fatal(err)
	}
	if err := <-errCh; err != nil {
		t.Fatal(err)
	}
	if negCaller != ProtocolVersion || negCallee != ProtocolVersion {
		t.Fatalf("expected both sides to negotiate v%d, got caller=%d callee=%d", ProtocolVersion, negCaller, negCallee)
	}
	if decodeCallIDString(gotCallID) != callID {
		t.Fatalf("expected call id %q, got %q", callID, decodeCallIDString(gotCallID))
	}
}

func TestHandshakeTimesOut(t *testing.T) {
	caller, callee := newPipePair()
	defer caller.(net.Conn).Close()
	defer callee.(net.Conn).Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	// Nobody ever writes a HELLO; the responder must time out rather than
	// block forever.
	if _, _, err := ResponderHandshake(ctx, callee); err != ErrHandshakeTimeout {
		t.Fatalf("expected ErrHandshakeTimeout, got %v", err)
	}
}
