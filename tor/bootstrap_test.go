package tor

import (
	"bufio"
	"context"
	"net"
	"strings"
	"testing"
	"time"
)

func TestRunBootstrapEventListenerUpdatesPercent(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		r := bufio.NewReader(conn)

		readCmd := func() string {
			line, _ := r.ReadString('\n')
			return strings.TrimRight(line, "\r\n")
		}

		if readCmd() == "AUTHENTICATE" {
			conn.Write([]byte("250 OK\r\n"))
		}
		if strings.HasPrefix(readCmd(), "SETEVENTS") {
			conn.Write([]byte("250 OK\r\n"))
		}
		if strings.HasPrefix(readCmd(), "GETINFO") {
			conn.Write([]byte("250-status/bootstrap-phase=NOTICE BOOTSTRAP PROGRESS=10 TAG=starting SUMMARY=\"x\"\r\n250 OK\r\n"))
		}
		// Async bootstrap events follow, unprompted.
		conn.Write([]byte("650 STATUS_CLIENT NOTICE BOOTSTRAP PROGRESS=100 TAG=done SUMMARY=\"Done\"\r\n"))
		time.Sleep(200 * time.Millisecond)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- RunBootstrapEventListener(ctx, ln.Addr().String()) }()

	deadline := time.Now().Add(1500 * time.Millisecond)
	for BootstrapPercent() != 100 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if BootstrapPercent() != 100 {
		t.Fatalf("expected bootstrap percent 100, got %d", BootstrapPercent())
	}
}
