package tor

import (
	"context"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// bootstrapPercent is the one process-global mutable value this package
// owns: the Tor daemon's bootstrap progress, 0-100. It has a single
// writer (RunBootstrapEventListener) and many lock-free readers
// (BootstrapPercent), matching ids.NewConnID's counter as the only other
// sanctioned piece of global state in the core.
var bootstrapPercent uint32

// BootstrapPercent returns the most recently observed Tor bootstrap
// percentage (0-100) without touching the control port.
func BootstrapPercent() uint32 {
	return atomic.LoadUint32(&bootstrapPercent)
}

// parseBootstrapProgress extracts the integer following "PROGRESS=" from
// a control port GETINFO reply or a "650 STATUS_CLIENT ... BOOTSTRAP
// PROGRESS=NN ..." event line.
func parseBootstrapProgress(s string) (uint32, bool) {
	idx := strings.Index(s, "PROGRESS=")
	if idx < 0 {
		return 0, false
	}
	rest := s[idx+len("PROGRESS="):]
	end := strings.IndexAny(rest, " \t\r\n")
	if end >= 0 {
		rest = rest[:end]
	}
	n, err := strconv.ParseUint(rest, 10, 32)
	if err != nil {
		return 0, false
	}
	return uint32(n), true
}

// RunBootstrapEventListener dials controlAddr, authenticates, subscribes
// to STATUS_CLIENT events, and updates BootstrapPercent as bootstrap
// progress events arrive. It retries the initial dial (Tor's control
// port may not be listening yet) and blocks until ctx is canceled or a
// read fails.
func RunBootstrapEventListener(ctx context.Context, controlAddr string) error {
	log := logrus.WithField("component", "tor.bootstrap")

	var client *ControlClient
	var err error
	for attempt := 1; attempt <= 60; attempt++ {
		client, err = DialControl(controlAddr)
		if err == nil {
			break
		}
		if attempt == 1 {
			log.Info("waiting for control port to become ready")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
		}
	}
	if err != nil {
		return err
	}
	defer client.Close()

	if err := client.Authenticate(); err != nil {
		return err
	}
	if err := client.SetEvents("STATUS_CLIENT"); err != nil {
		return err
	}
	log.Info("subscribed to STATUS_CLIENT events")

	if reply, err := client.GetInfo("status/bootstrap-phase"); err == nil {
		if progress, ok := parseBootstrapProgress(reply); ok {
			atomic.StoreUint32(&bootstrapPercent, progress)
			log.WithField("percent", progress).Info("initial bootstrap status")
		}
	}

	eventCh := make(chan string)
	errCh := make(chan error, 1)
	go func() {
		for {
			line, err := client.ReadEvent()
			if err != nil {
				errCh <- err
				return
			}
			eventCh <- line
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-errCh:
			return err
		case line := <-eventCh:
			if !strings.Contains(line, "BOOTSTRAP") || !strings.Contains(line, "PROGRESS=") {
				continue
			}
			progress, ok := parseBootstrapProgress(line)
			if !ok {
				continue
			}
			old := atomic.SwapUint32(&bootstrapPercent, progress)
			if old != progress {
				log.WithField("percent", progress).Info("bootstrap progress")
			}
		}
	}
}
