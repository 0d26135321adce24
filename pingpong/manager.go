package pingpong

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/shieldmsg/core/ids"
	"github.com/sirupsen/logrus"
)

// Dialer opens an outbound connection, typically routed through a local
// SOCKS5 proxy onto a Tor circuit. tor.Socks5Dialer implements this.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Identity bundles the keys a Manager signs and decrypts with.
type Identity struct {
	SigningKey      ed25519.PrivateKey
	Ed25519Public   ed25519.PublicKey
	X25519Secret    [32]byte
	X25519Public    [32]byte
}

// PendingPing is an open PING connection awaiting either an instant PONG
// reply or the application deciding to send one, stashed under a
// connection id so the application layer can write back through the same
// socket.
type PendingPing struct {
	ConnID uint64
	Conn   net.Conn
	Ping   *PingToken
}

// Option configures a Manager.
type Option func(*Manager)

// WithInstantTimeout overrides the 30s default instant-delivery PONG wait.
func WithInstantTimeout(d time.Duration) Option {
	return func(m *Manager) { m.instantTimeout = d }
}

// WithPingMaxAge overrides the 300s default PING staleness threshold.
func WithPingMaxAge(d time.Duration) Option {
	return func(m *Manager) { m.pingMaxAge = d }
}

// WithLogger overrides the manager's logrus logger (default: the standard
// logger).
func WithLogger(log *logrus.Entry) Option {
	return func(m *Manager) { m.log = log }
}

// Manager drives the hybrid PING/PONG wake protocol for one local identity:
// outbound PING dialing, PONG listener connection stashing, and the
// delayed-delivery queue keyed by ping nonce.
type Manager struct {
	identity       Identity
	dialer         Dialer
	instantTimeout time.Duration
	pingMaxAge     time.Duration
	log            *logrus.Entry

	mu       sync.Mutex
	pending  map[uint64]*PendingPing      // connID -> open PING socket awaiting our PONG write
	queued   map[[24]byte]queuedDelivery  // ping nonce -> payload waiting for a delayed PONG
}

type queuedDelivery struct {
	peerEd25519 ed25519.PublicKey
	peerX25519  [32]byte
	msgType     MessageType
	payload     []byte
}

// NewManager constructs a Manager for identity, dialing peers via dialer.
func NewManager(identity Identity, dialer Dialer, opts ...Option) *Manager {
	m := &Manager{
		identity:       identity,
		dialer:         dialer,
		instantTimeout: DefaultInstantTimeout,
		pingMaxAge:     DefaultPingMaxAge,
		log:            logrus.NewEntry(logrus.StandardLogger()),
		pending:        make(map[uint64]*PendingPing),
		queued:         make(map[[24]byte]queuedDelivery),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Send performs one hybrid-mode delivery to peer: dial, PING, wait up to
// the instant timeout for an authenticated PONG. On instant success the
// payload is written on the same connection and true is returned. On
// timeout the connection is closed, the payload is queued for delayed
// delivery (triggered later by HandleIncomingPong), and false is returned
// with a nil error — this is the documented delayed-mode path, not a
// failure.
func (m *Manager) Send(ctx context.Context, addr string, peerEd25519 ed25519.PublicKey, peerX25519 [32]byte, msgType MessageType, payload []byte) (instant bool, err error) {
	conn, err := m.dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return false, fmt.Errorf("pingpong: dial %s: %w", addr, err)
	}

	ping, err := NewPing(m.identity.SigningKey, m.identity.Ed25519Public, peerEd25519, m.identity.X25519Public, peerX25519, time.Now())
	if err != nil {
		conn.Close()
		return false, err
	}
	if err := m.writeToken(conn, TypePing, peerX25519, ping); err != nil {
		conn.Close()
		return false, err
	}

	pongCh := make(chan *PongToken, 1)
	errCh := make(chan error, 1)
	go func() {
		body, err := ReadFrame(conn)
		if err != nil {
			errCh <- err
			return
		}
		frame, err := DecodeFrame(body, m.identity.X25519Secret)
		if err != nil {
			errCh <- err
			return
		}
		if frame.Type != TypePong {
			errCh <- fmt.Errorf("pingpong: expected PONG, got type %#x", frame.Type)
			return
		}
		var pong PongToken
		if err := unmarshalCBOR(frame.Payload, &pong); err != nil {
			errCh <- err
			return
		}
		pongCh <- &pong
	}()

	select {
	case pong := <-pongCh:
		if err := pong.Verify(peerEd25519, ping.Nonce); err != nil {
			conn.Close()
			return false, err
		}
		if !pong.Authenticated {
			conn.Close()
			return false, ErrNotAuthenticated
		}
		if err := m.writeToken(conn, msgType, peerX25519, payload); err != nil {
			conn.Close()
			return false, err
		}
		conn.Close()
		return true, nil
	case err := <-errCh:
		conn.Close()
		return false, err
	case <-time.After(m.instantTimeout):
		conn.Close()
		m.mu.Lock()
		m.queued[ping.Nonce] = queuedDelivery{peerEd25519: peerEd25519, peerX25519: peerX25519, msgType: msgType, payload: payload}
		m.mu.Unlock()
		m.log.WithFields(logrus.Fields{"ping_nonce": ping.Nonce}).Info("pingpong: instant delivery timed out, queued for delayed pong")
		return false, nil
	case <-ctx.Done():
		conn.Close()
		return false, ctx.Err()
	}
}

// writeToken CBOR-encodes v and writes it as one sealed, length-prefixed
// frame of type typ.
func (m *Manager) writeToken(conn net.Conn, typ MessageType, peerX25519 [32]byte, v interface{}) error {
	var payload []byte
	var err error
	switch val := v.(type) {
	case []byte:
		payload = val
	default:
		payload, err = marshalCBOR(val)
		if err != nil {
			return err
		}
	}
	frame, err := EncodeFrame(typ, m.identity.X25519Secret, m.identity.X25519Public, peerX25519, payload)
	if err != nil {
		return err
	}
	return WriteFrame(conn, frame)
}

// HandleIncomingPing is called by the listener when a PING frame arrives.
// It verifies the ping, stashes the open connection under a fresh
// connection id so the application can decide authenticated status and
// write back a PONG through StashedReply, and returns that id.
func (m *Manager) HandleIncomingPing(conn net.Conn, ping *PingToken) (connID uint64, err error) {
	if err := ping.Verify(m.identity.Ed25519Public, time.Now(), m.pingMaxAge); err != nil {
		return 0, err
	}
	connID = ids.NewConnID()
	m.mu.Lock()
	m.pending[connID] = &PendingPing{ConnID: connID, Conn: conn, Ping: ping}
	m.mu.Unlock()
	return connID, nil
}

var ErrUnknownConnID = errors.New("pingpong: no pending connection for that id")

// ReplyPong sends an authenticated/unauthenticated PONG back through the
// socket stashed for connID (instant-mode reply, same connection as the
// PING).
func (m *Manager) ReplyPong(connID uint64, authenticated bool) error {
	m.mu.Lock()
	pp, ok := m.pending[connID]
	if ok {
		delete(m.pending, connID)
	}
	m.mu.Unlock()
	if !ok {
		return ErrUnknownConnID
	}
	defer pp.Conn.Close()

	pong, err := NewPong(m.identity.SigningKey, pp.Ping, authenticated, time.Now())
	if err != nil {
		return err
	}
	return m.writeToken(pp.Conn, TypePong, pp.Ping.SenderX25519, pong)
}

// SendDelayedPong dials the original sender's Pong listener (port 9152 by
// convention) and delivers a PONG for a PING we missed the instant window
// on, per the spec's delayed-mode path.
func (m *Manager) SendDelayedPong(ctx context.Context, senderAddr string, ping *PingToken, authenticated bool) error {
	conn, err := m.dialer.DialContext(ctx, "tcp", senderAddr)
	if err != nil {
		return fmt.Errorf("pingpong: dial pong listener %s: %w", senderAddr, err)
	}
	defer conn.Close()

	pong, err := NewPong(m.identity.SigningKey, ping, authenticated, time.Now())
	if err != nil {
		return err
	}
	return m.writeToken(conn, TypePong, ping.SenderX25519, pong)
}

// HandleDelayedPong matches an inbound PONG (received via the Pong
// listener) against a queued delivery by ping nonce, and if found, dials a
// fresh connection to deliver the waiting payload.
func (m *Manager) HandleDelayedPong(ctx context.Context, addr string, pong *PongToken) (delivered bool, err error) {
	m.mu.Lock()
	q, ok := m.queued[pong.PingNonce]
	if ok {
		delete(m.queued, pong.PingNonce)
	}
	m.mu.Unlock()
	if !ok {
		return false, nil
	}
	if !pong.Authenticated {
		return false, ErrNotAuthenticated
	}

	conn, err := m.dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return false, fmt.Errorf("pingpong: dial for delayed delivery %s: %w", addr, err)
	}
	defer conn.Close()

	if err := m.writeToken(conn, q.msgType, q.peerX25519, q.payload); err != nil {
		return false, err
	}
	return true, nil
}

// QueuedCount reports how many deliveries are currently waiting on a
// delayed PONG. Test/diagnostic helper.
func (m *Manager) QueuedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queued)
}
