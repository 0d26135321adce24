// Package tor implements the two external interfaces the core needs from
// a running Tor daemon: the control port's line protocol (ADD_ONION,
// DEL_ONION, GETINFO, SETEVENTS) and SOCKS5 dialing for outbound circuits.
// Managing the Tor process itself is out of scope — this package assumes
// a daemon is already listening on the given control and SOCKS ports.
package tor

import (
	"bufio"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"
)

// DefaultControlAddr and DefaultSocksAddr are the conventional local
// addresses for Tor's ControlPort and SocksPort.
const (
	DefaultControlAddr = "127.0.0.1:9051"
	DefaultSocksAddr   = "127.0.0.1:9050"
)

// ControlClient speaks the Tor control port's line protocol: one command
// per line, terminated by "\r\n", with multi-line replies using a "250-"
// continuation prefix and a final "250 " (or error code) line.
type ControlClient struct {
	mu   sync.Mutex
	conn net.Conn
	r    *bufio.Reader
}

// DialControl opens a control port connection and authenticates. Only
// null/cookie-less AUTHENTICATE is supported here; a deployment that
// requires a control-port password or SAFECOOKIE must authenticate with
// SendCommand("AUTHENTICATE ...") directly instead of calling Authenticate.
func DialControl(addr string) (*ControlClient, error) {
	conn, err := net.DialTimeout("tcp", addr, 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("tor: dial control port: %w", err)
	}
	return &ControlClient{conn: conn, r: bufio.NewReader(conn)}, nil
}

// Close closes the underlying control connection.
func (c *ControlClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.Close()
}

// Authenticate sends a null AUTHENTICATE command, valid when the control
// port has CookieAuthentication/HashedControlPassword disabled.
func (c *ControlClient) Authenticate() error {
	reply, err := c.SendCommand("AUTHENTICATE")
	if err != nil {
		return err
	}
	if !strings.Contains(reply, "250 OK") {
		return fmt.Errorf("tor: authenticate failed: %s", strings.TrimSpace(reply))
	}
	return nil
}

// SendCommand writes cmd terminated by "\r\n" and returns the full
// reply (all continuation lines joined by "\n"). The mutex is held for
// the single command/response round trip only, never across unrelated
// I/O, so a slow GETINFO doesn't block an unrelated DEL_ONION.
func (c *ControlClient) SendCommand(cmd string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.conn.Write([]byte(cmd + "\r\n")); err != nil {
		return "", fmt.Errorf("tor: write command: %w", err)
	}

	var lines []string
	for {
		line, err := c.r.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("tor: read reply: %w", err)
		}
		line = strings.TrimRight(line, "\r\n")
		lines = append(lines, line)
		// A reply line is terminal when its 4th character is a space
		// rather than '-' (continuation) or '+' (data block follows).
		if len(line) >= 4 && line[3] == ' ' {
			break
		}
	}
	return strings.Join(lines, "\n"), nil
}

// GetInfo issues "GETINFO <key>" and returns the raw reply text.
func (c *ControlClient) GetInfo(key string) (string, error) {
	return c.SendCommand("GETINFO " + key)
}

// SetEvents subscribes to the named asynchronous event types (e.g.
// "STATUS_CLIENT", "HS_DESC"). Subsequent reads off this same
// connection will interleave "650 "-prefixed event lines with any
// further command replies; callers that SetEvents should dedicate the
// connection to ReadEvent afterward rather than issuing more commands.
func (c *ControlClient) SetEvents(events ...string) error {
	reply, err := c.SendCommand("SETEVENTS " + strings.Join(events, " "))
	if err != nil {
		return err
	}
	if !strings.Contains(reply, "250 OK") {
		return fmt.Errorf("tor: setevents failed: %s", strings.TrimSpace(reply))
	}
	return nil
}

// ReadEvent blocks for the next asynchronous "650 " event line on a
// connection that has called SetEvents.
func (c *ControlClient) ReadEvent() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	line, err := c.r.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("tor: read event: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// AddOnionConfig describes a hidden service to create with ADD_ONION.
type AddOnionConfig struct {
	// KeyBlob is the control protocol's <key-type>:<key-data> blob, e.g.
	// "ED25519-V3:<base64 of the 64-byte expanded private key>", or the
	// literal "NEW:ED25519-V3" to have Tor generate a fresh key.
	KeyBlob string
	// Ports maps each virtual port to a "host:port" local target.
	Ports map[uint16]string
	// Detach keeps the service alive after this control connection closes.
	Detach bool
}

// AddOnion issues ADD_ONION and returns the full raw reply (the caller
// extracts the ServiceID and, for "NEW:...", the PrivateKey line).
func (c *ControlClient) AddOnion(cfg AddOnionConfig) (string, error) {
	var b strings.Builder
	b.WriteString("ADD_ONION ")
	b.WriteString(cfg.KeyBlob)
	if cfg.Detach {
		b.WriteString(" Flags=Detach")
	}
	for virtPort, target := range cfg.Ports {
		fmt.Fprintf(&b, " Port=%d,%s", virtPort, target)
	}
	return c.SendCommand(b.String())
}

// DelOnion issues DEL_ONION for the given service ID.
func (c *ControlClient) DelOnion(serviceID string) error {
	reply, err := c.SendCommand("DEL_ONION " + serviceID)
	if err != nil {
		return err
	}
	if !strings.Contains(reply, "250 OK") {
		return fmt.Errorf("tor: del_onion failed: %s", strings.TrimSpace(reply))
	}
	return nil
}
