package tor

import (
	"bufio"
	"net"
	"strings"
	"testing"
)

// fakeControlServer accepts one connection and replies to commands with
// canned responses supplied by the test, so ControlClient can be
// exercised without a real Tor daemon.
func fakeControlServer(t *testing.T, handler func(cmd string) string) (addr string, stop func()) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		r := bufio.NewReader(conn)
		for {
			line, err := r.ReadString('\n')
			if err != nil {
				return
			}
			cmd := strings.TrimRight(line, "\r\n")
			reply := handler(cmd)
			conn.Write([]byte(reply))
		}
	}()
	return ln.Addr().String(), func() { ln.Close() }
}

func TestAuthenticateSuccess(t *testing.T) {
	addr, stop := fakeControlServer(t, func(cmd string) string {
		if cmd == "AUTHENTICATE" {
			return "250 OK\r\n"
		}
		return "510 Unrecognized command\r\n"
	})
	defer stop()

	c, err := DialControl(addr)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	if err := c.Authenticate(); err != nil {
		t.Fatal(err)
	}
}

func TestAuthenticateFailure(t *testing.T) {
	addr, stop := fakeControlServer(t, func(cmd string) string {
		return "515 Authentication failed\r\n"
	})
	defer stop()

	c, err := DialControl(addr)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	if err := c.Authenticate(); err == nil {
		t.Fatal("expected authenticate to fail")
	}
}

func TestGetInfoBootstrapPhase(t *testing.T) {
	addr, stop := fakeControlServer(t, func(cmd string) string {
		if strings.HasPrefix(cmd, "GETINFO") {
			return "250-status/bootstrap-phase=NOTICE BOOTSTRAP PROGRESS=100 TAG=done SUMMARY=\"Done\"\r\n250 OK\r\n"
		}
		return "510 Unrecognized command\r\n"
	})
	defer stop()

	c, err := DialControl(addr)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	reply, err := c.GetInfo("status/bootstrap-phase")
	if err != nil {
		t.Fatal(err)
	}
	progress, ok := parseBootstrapProgress(reply)
	if !ok || progress != 100 {
		t.Fatalf("expected progress 100, got %d (ok=%v)", progress, ok)
	}
}

func TestDelOnion(t *testing.T) {
	addr, stop := fakeControlServer(t, func(cmd string) string {
		if strings.HasPrefix(cmd, "DEL_ONION") {
			return "250 OK\r\n"
		}
		return "510 Unrecognized command\r\n"
	})
	defer stop()

	c, err := DialControl(addr)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	if err := c.DelOnion("abcdef1234567890"); err != nil {
		t.Fatal(err)
	}
}

func TestParseBootstrapProgress(t *testing.T) {
	cases := []struct {
		in      string
		want    uint32
		wantOk  bool
	}{
		{"650 STATUS_CLIENT NOTICE BOOTSTRAP PROGRESS=45 TAG=handshake SUMMARY=\"x\"", 45, true},
		{"no progress here", 0, false},
		{"PROGRESS=notanumber", 0, false},
	}
	for _, c := range cases {
		got, ok := parseBootstrapProgress(c.in)
		if ok != c.wantOk || (ok && got != c.want) {
			t.Errorf("parseBootstrapProgress(%q) = (%d, %v), want (%d, %v)", c.in, got, ok, c.want, c.wantOk)
		}
	}
}
