package voice

import (
	"bytes"
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCircuitUsernameFormat(t *testing.T) {
	got := circuitUsername("abc-123", 2, 5)
	want := "call:abc-123:c:2:r:5"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestSealAndSendOpenPrimaryRoundTrip(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	var key [32]byte
	for i := range key {
		key[i] = byte(i)
	}

	sender := newVoiceSession("call-1", 0, a, "peer:9152", key)
	receiver := newVoiceSession("call-1", 0, b, "peer:9152", key)

	readDone := make(chan *Packet, 1)
	go func() {
		buf := make([]byte, 4096)
		n, err := b.Read(buf)
		if err != nil {
			t.Error(err)
			return
		}
		p, err := DecodePacket(buf[:n])
		if err != nil {
			t.Error(err)
			return
		}
		readDone <- p
	}()

	if err := sender.SealAndSend(7, 12345, PacketAudio, []byte("hello-opus")); err != nil {
		t.Fatal(err)
	}

	p := <-readDone
	plain, err := receiver.OpenPrimary(p)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(plain, []byte("hello-opus")) {
		t.Fatalf("expected %q, got %q", "hello-opus", plain)
	}
	if p.Sequence != 7 || p.Timestamp != 12345 {
		t.Fatalf("unexpected header: seq=%d ts=%d", p.Sequence, p.Timestamp)
	}
}

// fakeCircuitDialer hands out one side of an in-memory pipe per dial and
// spawns a responder goroutine that completes the VOICE_HELLO/OK
// handshake on the other side, standing in for a real SOCKS5-routed peer.
type fakeCircuitDialer struct {
	dialCount int
	usernames []string
}

func (d *fakeCircuitDialer) DialCircuit(ctx context.Context, addr, username, password string) (net.Conn, error) {
	d.dialCount++
	d.usernames = append(d.usernames, username)
	caller, callee := net.Pipe()
	go func() {
		ResponderHandshake(context.Background(), callee)
	}()
	return caller, nil
}

func TestStartCallNegotiatesEachCircuit(t *testing.T) {
	dialer := &fakeCircuitDialer{}
	table := NewSessionTable()
	var key [32]byte

	sessions, err := table.StartCall(context.Background(), dialer, "call-xyz", "peer.onion:9152", 3, key)
	require.NoError(t, err)
	require.Len(t, sessions, 3)
	require.Equal(t, 3, dialer.dialCount)
	for i, u := range dialer.usernames {
		want := circuitUsername("call-xyz", uint8(i), 0)
		require.Equalf(t, want, u, "circuit %d", i)
	}

	got := table.Sessions("call-xyz")
	require.Len(t, got, 3)

	table.EndSession("call-xyz")
	require.Empty(t, table.Sessions("call-xyz"), "expected session table entry to be cleared after EndSession")
	for _, s := range sessions {
		require.Falsef(t, s.IsActive(), "expected circuit %d to be inactive after EndSession", s.CircuitIndex)
	}
}

func TestRebuildCircuitIncrementsEpochAndKeepsIndex(t *testing.T) {
	dialer := &fakeCircuitDialer{}
	table := NewSessionTable()
	var key [32]byte
	key[0] = 0xAB

	sessions, err := table.StartCall(context.Background(), dialer, "call-r", "peer.onion:9152", 1, key)
	if err != nil {
		t.Fatal(err)
	}
	before := sessions[0]
	before.lastSeq = 99 // simulate in-flight sequence state that must survive rebuild

	if err := table.RebuildCircuit(context.Background(), dialer, "call-r", 0); err != nil {
		t.Fatal(err)
	}

	after := table.Sessions("call-r")[0]
	if after != before {
		t.Fatal("expected RebuildCircuit to mutate the existing session in place, not replace it")
	}
	if after.CircuitIndex != 0 {
		t.Fatalf("expected circuit index to stay 0, got %d", after.CircuitIndex)
	}
	if after.key != key {
		t.Fatal("expected AEAD key to survive rebuild unchanged")
	}
	if after.lastSeq != 99 {
		t.Fatalf("expected sequence counter to survive rebuild, got %d", after.lastSeq)
	}
	if !after.IsActive() {
		t.Fatal("expected circuit to be active after rebuild")
	}

	wantUsername := circuitUsername("call-r", 0, 1)
	if dialer.usernames[len(dialer.usernames)-1] != wantUsername {
		t.Fatalf("expected rebuild dial username %q, got %q", wantUsername, dialer.usernames[len(dialer.usernames)-1])
	}
}
