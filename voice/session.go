package voice

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/shieldmsg/core/xcrypto"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/proxy"
)

// MinCircuits and MaxCircuits bound the number of parallel Tor circuits a
// call may use.
const (
	MinCircuits = 1
	MaxCircuits = 10
)

// rebuildTeardownDelay is how long rebuildCircuit waits after closing the
// old socket before dialing the replacement, giving Tor time to tear the
// old path down before a fresh one is negotiated on the same username
// prefix.
const rebuildTeardownDelay = 100 * time.Millisecond

// CircuitDialer opens one SOCKS5-isolated TCP connection to a voice peer.
// tor.Socks5Dialer (or any golang.org/x/net/proxy.Dialer wrapped the same
// way) satisfies this via NewCircuitDialer.
type CircuitDialer interface {
	DialCircuit(ctx context.Context, addr, username, password string) (net.Conn, error)
}

// socks5CircuitDialer implements CircuitDialer against a local SOCKS5
// proxy (the Tor SocksPort), issuing a fresh username/password per call so
// each circuit gets SOCKS5 stream isolation.
type socks5CircuitDialer struct {
	proxyAddr string
}

// NewCircuitDialer returns a CircuitDialer that connects through the SOCKS5
// proxy at proxyAddr (typically Tor's SocksPort, e.g. "127.0.0.1:9050").
func NewCircuitDialer(proxyAddr string) CircuitDialer {
	return &socks5CircuitDialer{proxyAddr: proxyAddr}
}

func (d *socks5CircuitDialer) DialCircuit(ctx context.Context, addr, username, password string) (net.Conn, error) {
	auth := &proxy.Auth{User: username, Password: password}
	dialer, err := proxy.SOCKS5("tcp", d.proxyAddr, auth, proxy.Direct)
	if err != nil {
		return nil, fmt.Errorf("voice: build socks5 dialer: %w", err)
	}
	if ctxDialer, ok := dialer.(proxy.ContextDialer); ok {
		return ctxDialer.DialContext(ctx, "tcp", addr)
	}
	return dialer.Dial("tcp", addr)
}

// circuitUsername builds the SOCKS5 isolation username
// "call:{call_id}:c:{circuit_index}:r:{rebuild_epoch}". The password is
// always "x": isolation is derived from the username alone.
func circuitUsername(callID string, circuitIndex uint8, rebuildEpoch uint32) string {
	return fmt.Sprintf("call:%s:c:%d:r:%d", callID, circuitIndex, rebuildEpoch)
}

const circuitPassword = "x"

// VoiceSession owns one of a call's parallel Tor circuits: its live
// connection, the shared AEAD key for this call, and the redundant-frame
// state needed to build the next packet's "free" previous-frame copy.
type VoiceSession struct {
	CallID       string
	CircuitIndex uint8

	mu           sync.Mutex
	conn         net.Conn
	peerAddr     string
	rebuildEpoch uint32
	active       bool
	key          [32]byte
	lastSeq      uint32
	lastPayload  []byte

	log *logrus.Entry
}

func newVoiceSession(callID string, circuitIndex uint8, conn net.Conn, peerAddr string, key [32]byte) *VoiceSession {
	return &VoiceSession{
		CallID:       callID,
		CircuitIndex: circuitIndex,
		conn:         conn,
		peerAddr:     peerAddr,
		active:       true,
		key:          key,
		log: logrus.WithFields(logrus.Fields{
			"call_id": callID,
			"circuit": circuitIndex,
		}),
	}
}

// IsActive reports whether the session's circuit is currently usable.
func (s *VoiceSession) IsActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// SealAndSend AEAD-seals audio under the call key, builds a packet-v2
// frame carrying it as the primary payload and the previous frame (if any)
// as the free redundant copy, and writes it to the circuit.
func (s *VoiceSession) SealAndSend(seq uint32, timestamp uint64, ptype PacketType, plaintext []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active {
		return fmt.Errorf("voice: circuit %d is not active", s.CircuitIndex)
	}

	nonce, err := xcrypto.RandomNonce()
	if err != nil {
		return err
	}
	ct, err := xcrypto.Seal(s.key[:], nonce, plaintext, nil)
	if err != nil {
		return err
	}
	primary := append(nonce[:], ct...)

	p := &Packet{
		Sequence:     seq,
		Timestamp:    timestamp,
		CircuitIndex: s.CircuitIndex,
		Type:         ptype,
		Primary:      primary,
		RedundantSeq: s.lastSeq,
		Redundant:    s.lastPayload,
	}
	if _, err := s.conn.Write(p.Encode()); err != nil {
		return err
	}
	s.lastSeq = seq
	s.lastPayload = primary
	return nil
}

// OpenPrimary decrypts a received packet's primary frame under the call
// key.
func (s *VoiceSession) OpenPrimary(p *Packet) ([]byte, error) {
	if len(p.Primary) < xcrypto.NonceSize {
		return nil, ErrPacketTooShort
	}
	var nonce [xcrypto.NonceSize]byte
	copy(nonce[:], p.Primary[:xcrypto.NonceSize])
	return xcrypto.Open(s.key[:], nonce, p.Primary[xcrypto.NonceSize:], nil)
}

func (s *VoiceSession) markInactive() {
	s.mu.Lock()
	s.active = false
	conn := s.conn
	s.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
}

// SessionTable maps call_id to the set of active VoiceSessions for that
// call, and is the sole place the call's circuits are looked up or
// replaced.
type SessionTable struct {
	mu    sync.Mutex
	calls map[string][]*VoiceSession
}

// NewSessionTable returns an empty session table.
func NewSessionTable() *SessionTable {
	return &SessionTable{calls: make(map[string][]*VoiceSession)}
}

// StartCall dials numCircuits parallel SOCKS5-isolated connections to
// peerAddr, runs the VOICE_HELLO/OK handshake on each, and registers the
// resulting sessions under callID.
func (t *SessionTable) StartCall(ctx context.Context, dialer CircuitDialer, callID, peerAddr string, numCircuits int, key [32]byte) ([]*VoiceSession, error) {
	if numCircuits < MinCircuits || numCircuits > MaxCircuits {
		return nil, fmt.Errorf("voice: circuit count %d out of range [%d,%d]", numCircuits, MinCircuits, MaxCircuits)
	}

	sessions := make([]*VoiceSession, 0, numCircuits)
	for i := 0; i < numCircuits; i++ {
		idx := uint8(i)
		conn, err := dialCircuit(ctx, dialer, peerAddr, callID, idx, 0)
		if err != nil {
			for _, s := range sessions {
				s.markInactive()
			}
			return nil, fmt.Errorf("voice: dial circuit %d: %w", idx, err)
		}
		if err := runInitiatorHandshake(ctx, conn, callID); err != nil {
			conn.Close()
			for _, s := range sessions {
				s.markInactive()
			}
			return nil, fmt.Errorf("voice: handshake circuit %d: %w", idx, err)
		}
		sessions = append(sessions, newVoiceSession(callID, idx, conn, peerAddr, key))
	}

	t.mu.Lock()
	t.calls[callID] = sessions
	t.mu.Unlock()
	return sessions, nil
}

// Sessions returns the live session slice for callID.
func (t *SessionTable) Sessions(callID string) []*VoiceSession {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.calls[callID]
}

// RebuildCircuit replaces the TCP connection for one circuit of an
// in-progress call: close the current socket, wait for teardown, dial a
// fresh SOCKS5-isolated connection with an incremented rebuild epoch
// (forcing a new Tor path), and atomically swap it into the session table.
// The circuit index, AEAD key, and sequence counter are preserved —
// nothing but the connection changes.
func (t *SessionTable) RebuildCircuit(ctx context.Context, dialer CircuitDialer, callID string, circuitIndex uint8) error {
	t.mu.Lock()
	sessions, ok := t.calls[callID]
	t.mu.Unlock()
	if !ok || int(circuitIndex) >= len(sessions) {
		return fmt.Errorf("voice: no such call/circuit %s/%d", callID, circuitIndex)
	}
	s := sessions[circuitIndex]

	s.mu.Lock()
	oldConn := s.conn
	s.rebuildEpoch++
	epoch := s.rebuildEpoch
	s.log.WithField("rebuild_epoch", epoch).Warn("voice: rebuilding circuit")
	s.mu.Unlock()

	if oldConn != nil {
		oldConn.Close()
	}
	time.Sleep(rebuildTeardownDelay)

	conn, err := dialCircuit(ctx, dialer, s.peerAddrHint(), callID, circuitIndex, epoch)
	if err != nil {
		return fmt.Errorf("voice: rebuild circuit %d: %w", circuitIndex, err)
	}
	if err := runInitiatorHandshake(ctx, conn, callID); err != nil {
		conn.Close()
		return fmt.Errorf("voice: rebuild handshake circuit %d: %w", circuitIndex, err)
	}

	s.mu.Lock()
	s.conn = conn
	s.active = true
	s.mu.Unlock()
	s.log.WithField("rebuild_epoch", epoch).Info("voice: circuit rebuilt")
	return nil
}

func (s *VoiceSession) peerAddrHint() string { return s.peerAddr }

// EndSession closes every circuit for callID and removes it from the
// table.
func (t *SessionTable) EndSession(callID string) {
	t.mu.Lock()
	sessions := t.calls[callID]
	delete(t.calls, callID)
	t.mu.Unlock()
	for _, s := range sessions {
		s.markInactive()
	}
}

func dialCircuit(ctx context.Context, dialer CircuitDialer, addr, callID string, circuitIndex uint8, rebuildEpoch uint32) (net.Conn, error) {
	username := circuitUsername(callID, circuitIndex, rebuildEpoch)
	return dialer.DialCircuit(ctx, addr, username, circuitPassword)
}

func runInitiatorHandshake(ctx context.Context, conn net.Conn, callID string) error {
	dc, ok := conn.(deadlineConn)
	if !ok {
		return fmt.Errorf("voice: connection does not support deadlines")
	}
	_, err := InitiatorHandshake(ctx, dc, encodeCallID(callID))
	return err
}
