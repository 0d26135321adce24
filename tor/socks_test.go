package tor

import (
	"context"
	"testing"
	"time"

	"github.com/shieldmsg/core/pingpong"
	"github.com/shieldmsg/core/voice"
)

// Compile-time checks that Socks5Dialer satisfies the minimal dialer
// interfaces pingpong and voice each declare for themselves.
var (
	_ pingpong.Dialer     = (*Socks5Dialer)(nil)
	_ voice.CircuitDialer = (*Socks5Dialer)(nil)
)

func TestDialContextFailsCleanlyWithoutProxy(t *testing.T) {
	d := NewSocks5Dialer("127.0.0.1:1") // nothing listens here
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	if _, err := d.DialContext(ctx, "tcp", "example.onion:80"); err == nil {
		t.Fatal("expected dial through an absent proxy to fail")
	}
}

func TestDialCircuitFailsCleanlyWithoutProxy(t *testing.T) {
	d := NewSocks5Dialer("127.0.0.1:1")
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	if _, err := d.DialCircuit(ctx, "example.onion:9152", "call:x:c:0:r:0", "x"); err == nil {
		t.Fatal("expected dial through an absent proxy to fail")
	}
}
