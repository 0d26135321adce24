package pingpong

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/shieldmsg/core/xcrypto"
)

// dialerFunc adapts a plain dial function to the Dialer interface, standing
// in for a SOCKS5 dialer in tests that don't need Tor.
type dialerFunc func(ctx context.Context, network, address string) (net.Conn, error)

func (f dialerFunc) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	return f(ctx, network, address)
}

func directDialer() Dialer {
	var d net.Dialer
	return dialerFunc(func(ctx context.Context, network, address string) (net.Conn, error) {
		return d.DialContext(ctx, network, address)
	})
}

func newTestIdentity(t *testing.T) Identity {
	t.Helper()
	sk, err := xcrypto.GenerateSigningKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	xk, err := xcrypto.GenerateX25519KeyPair()
	if err != nil {
		t.Fatal(err)
	}
	return Identity{
		SigningKey:    sk.Private,
		Ed25519Public: sk.Public,
		X25519Secret:  xk.Private,
		X25519Public:  xk.Public,
	}
}

// TestS6InstantDelivery: sender PINGs, receiver answers PONG(authenticated)
// within the instant window, sender writes the payload on the same socket.
func TestS6InstantDelivery(t *testing.T) {
	recv := newTestIdentity(t)
	send := newTestIdentity(t)

	recvMgr := NewManager(recv, directDialer())

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	payloadCh := make(chan []byte, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		body, err := ReadFrame(conn)
		if err != nil {
			t.Error(err)
			return
		}
		frame, err := DecodeFrame(body, recv.X25519Secret)
		if err != nil {
			t.Error(err)
			return
		}
		if frame.Type != TypePing {
			t.Errorf("expected PING, got %#x", frame.Type)
			return
		}
		var ping PingToken
		if err := unmarshalCBOR(frame.Payload, &ping); err != nil {
			t.Error(err)
			return
		}
		ping.SenderX25519 = frame.SenderX25519
		connID, err := recvMgr.HandleIncomingPing(conn, &ping)
		if err != nil {
			t.Error(err)
			return
		}
		if err := recvMgr.ReplyPong(connID, true); err != nil {
			t.Error(err)
			return
		}

		// Instant-mode payload arrives on a fresh accepted connection.
		conn2, err := ln.Accept()
		if err != nil {
			t.Error(err)
			return
		}
		defer conn2.Close()
		body2, err := ReadFrame(conn2)
		if err != nil {
			t.Error(err)
			return
		}
		frame2, err := DecodeFrame(body2, recv.X25519Secret)
		if err != nil {
			t.Error(err)
			return
		}
		payloadCh <- frame2.Payload
	}()

	sendMgr := NewManager(send, directDialer())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	instant, err := sendMgr.Send(ctx, ln.Addr().String(), recv.Ed25519Public, recv.X25519Public, TypeText, []byte("hello"))
	if err != nil {
		t.Fatal(err)
	}
	if !instant {
		t.Fatal("expected instant delivery")
	}

	select {
	case got := <-payloadCh:
		if string(got) != "hello" {
			t.Fatalf("expected %q, got %q", "hello", got)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for payload")
	}
}

// TestS6DelayedDelivery: the receiver never answers within the instant
// window, so the sender queues the payload; later the receiver's delayed
// PONG triggers delivery on a fresh connection.
func TestS6DelayedDelivery(t *testing.T) {
	recv := newTestIdentity(t)
	send := newTestIdentity(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	// Accept the PING but never reply, forcing the sender's instant wait
	// to time out.
	var pingCh = make(chan *PingToken, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		body, err := ReadFrame(conn)
		if err != nil {
			return
		}
		frame, err := DecodeFrame(body, recv.X25519Secret)
		if err != nil || frame.Type != TypePing {
			return
		}
		var ping PingToken
		if err := unmarshalCBOR(frame.Payload, &ping); err != nil {
			return
		}
		ping.SenderX25519 = frame.SenderX25519
		pingCh <- &ping
		// deliberately do not reply; let the connection sit until the
		// sender's instant timeout fires and it closes the socket.
		time.Sleep(200 * time.Millisecond)
	}()

	sendMgr := NewManager(send, directDialer(), WithInstantTimeout(50*time.Millisecond))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	instant, err := sendMgr.Send(ctx, ln.Addr().String(), recv.Ed25519Public, recv.X25519Public, TypeText, []byte("delayed-hello"))
	if err != nil {
		t.Fatal(err)
	}
	if instant {
		t.Fatal("expected delayed delivery")
	}
	if n := sendMgr.QueuedCount(); n != 1 {
		t.Fatalf("expected 1 queued delivery, got %d", n)
	}

	var ping *PingToken
	select {
	case ping = <-pingCh:
	case <-time.After(2 * time.Second):
		t.Fatal("receiver never observed the ping")
	}

	// Now the receiver dials the sender's pong listener with an
	// authenticated PONG, and the sender should deliver the queued
	// payload on a fresh connection back to the receiver.
	pongLn, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer pongLn.Close()

	deliveredCh := make(chan []byte, 1)
	go func() {
		conn, err := pongLn.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		body, err := ReadFrame(conn)
		if err != nil {
			return
		}
		frame, err := DecodeFrame(body, send.X25519Secret)
		if err != nil {
			return
		}
		deliveredCh <- frame.Payload
	}()

	recvMgr := NewManager(recv, directDialer())
	pong, err := NewPong(recv.SigningKey, ping, true, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	delivered, err := sendMgr.HandleDelayedPong(ctx, pongLn.Addr().String(), pong)
	if err != nil {
		t.Fatal(err)
	}
	if !delivered {
		t.Fatal("expected delivery to be triggered by the delayed pong")
	}
	_ = recvMgr

	select {
	case got := <-deliveredCh:
		if string(got) != "delayed-hello" {
			t.Fatalf("expected %q, got %q", "delayed-hello", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for delayed delivery")
	}
	if n := sendMgr.QueuedCount(); n != 0 {
		t.Fatalf("expected queue drained, got %d", n)
	}
}

func TestStalePingRejected(t *testing.T) {
	recv := newTestIdentity(t)
	send := newTestIdentity(t)

	ping, err := NewPing(send.SigningKey, send.Ed25519Public, recv.Ed25519Public, send.X25519Public, recv.X25519Public, time.Now().Add(-DefaultPingMaxAge-time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if err := ping.Verify(recv.Ed25519Public, time.Now(), DefaultPingMaxAge); err != ErrStalePing {
		t.Fatalf("expected ErrStalePing, got %v", err)
	}
}

func TestWrongRecipientRejected(t *testing.T) {
	recv := newTestIdentity(t)
	other := newTestIdentity(t)
	send := newTestIdentity(t)

	ping, err := NewPing(send.SigningKey, send.Ed25519Public, other.Ed25519Public, send.X25519Public, other.X25519Public, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if err := ping.Verify(recv.Ed25519Public, time.Now(), DefaultPingMaxAge); err != ErrWrongRecipient {
		t.Fatalf("expected ErrWrongRecipient, got %v", err)
	}
}

func TestDeliveryAckRoundTrip(t *testing.T) {
	id := newTestIdentity(t)
	var itemID [16]byte
	itemID[0] = 0x42

	ack, err := NewAck(id.SigningKey, id.Ed25519Public, itemID, AckMessage, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if !ack.Verify() {
		t.Fatal("expected valid ack signature")
	}
	ack.Type = AckPong
	if ack.Verify() {
		t.Fatal("expected tampered ack to fail verification")
	}
}
