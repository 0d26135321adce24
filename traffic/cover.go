package traffic

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// Default cover traffic interval range in seconds for unshaped callers.
const (
	DefaultCoverIntervalMinSecs = 30
	DefaultCoverIntervalMaxSecs = 90
)

// RandomCoverInterval returns a random duration in
// [DefaultCoverIntervalMinSecs, DefaultCoverIntervalMaxSecs].
func RandomCoverInterval() time.Duration {
	secs := randomUint64InRange(DefaultCoverIntervalMinSecs, DefaultCoverIntervalMaxSecs)
	return time.Duration(secs) * time.Second
}

// CoverSender emits padded cover-traffic envelopes on an idle
// connection at random intervals so silence doesn't itself leak
// timing information to a passive observer.
type CoverSender struct {
	envelopeSize int
	minInterval  time.Duration
	maxInterval  time.Duration
	send         func([]byte) error
	log          *logrus.Entry
}

// NewCoverSender builds a CoverSender that calls send with each
// generated cover envelope. minInterval/maxInterval bound the random
// gap between emissions; a Profile's CoverIntervalRange is the usual
// source for these.
func NewCoverSender(envelopeSize int, minInterval, maxInterval time.Duration, send func([]byte) error) *CoverSender {
	return &CoverSender{
		envelopeSize: envelopeSize,
		minInterval:  minInterval,
		maxInterval:  maxInterval,
		send:         send,
		log:          logrus.WithField("component", "traffic.cover"),
	}
}

// Run blocks, emitting cover envelopes at random intervals until ctx is
// canceled. Intended to be run in its own goroutine per idle
// connection.
func (c *CoverSender) Run(ctx context.Context) {
	for {
		interval := randomDurationInRange(c.minInterval, c.maxInterval)
		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}

		pkt, err := GenerateCoverPacket(c.envelopeSize)
		if err != nil {
			c.log.WithError(err).Warn("traffic: failed to generate cover packet")
			continue
		}
		if err := c.send(pkt); err != nil {
			c.log.WithError(err).Warn("traffic: failed to send cover packet")
		}
	}
}

func randomDurationInRange(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	ns := randomUint64InRange(uint64(min), uint64(max))
	return time.Duration(ns)
}
