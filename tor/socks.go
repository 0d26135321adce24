package tor

import (
	"context"
	"fmt"
	"net"

	"golang.org/x/net/proxy"
)

// Socks5Dialer dials out through a local Tor SOCKS5 proxy. It implements
// both pingpong.Dialer (DialContext, no circuit isolation needed for the
// wake protocol) and voice.CircuitDialer (DialCircuit, per-call SOCKS5
// credentials for stream isolation) without those packages importing
// this one — each declares the minimal interface it needs.
type Socks5Dialer struct {
	proxyAddr string
}

// NewSocks5Dialer returns a Socks5Dialer using the SOCKS5 proxy at
// proxyAddr (typically DefaultSocksAddr).
func NewSocks5Dialer(proxyAddr string) *Socks5Dialer {
	return &Socks5Dialer{proxyAddr: proxyAddr}
}

// DialContext dials addr through the proxy with no SOCKS5
// username/password, i.e. whatever circuit Tor's stream isolation
// defaults hand back.
func (d *Socks5Dialer) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	return d.dial(ctx, network, addr, nil)
}

// DialCircuit dials addr through the proxy using the given SOCKS5
// username/password, which Tor uses to select (and, if unseen before,
// build) an isolated circuit.
func (d *Socks5Dialer) DialCircuit(ctx context.Context, addr, username, password string) (net.Conn, error) {
	return d.dial(ctx, "tcp", addr, &proxy.Auth{User: username, Password: password})
}

func (d *Socks5Dialer) dial(ctx context.Context, network, addr string, auth *proxy.Auth) (net.Conn, error) {
	dialer, err := proxy.SOCKS5(network, d.proxyAddr, auth, proxy.Direct)
	if err != nil {
		return nil, fmt.Errorf("tor: build socks5 dialer: %w", err)
	}
	if ctxDialer, ok := dialer.(proxy.ContextDialer); ok {
		return ctxDialer.DialContext(ctx, network, addr)
	}
	return dialer.Dial(network, addr)
}
