package traffic

import (
	"crypto/rand"
	"encoding/binary"
	"math"
	"time"
)

// Default delay range and shape for unshaped (non-profile) callers.
// lambda controls how strongly the distribution favors the low end of
// the range; 0.005 puts the mean around 400ms across [200,800]ms.
const (
	DefaultDelayMinMS = 200
	DefaultDelayMaxMS = 800
	defaultLambda     = 0.005
)

// uniformFloat64 draws a uniform sample in [0, 1) from a CSPRNG. Using
// crypto/rand here instead of math/rand means the same entropy source
// backs both the padding filler and the delay/cover-traffic jitter, so
// there's one less thing to audit.
func uniformFloat64() (float64, error) {
	var buf [4]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0, err
	}
	return float64(binary.BigEndian.Uint32(buf[:])) / float64(math.MaxUint32), nil
}

// sampleTruncatedExponential draws a sample from a truncated
// exponential distribution on [min, max] with the given lambda, via
// inverse-CDF sampling. This avoids the flat, easily-fingerprinted
// histogram a uniform distribution would produce.
func sampleTruncatedExponential(min, max uint64, lambda float64) (uint64, error) {
	if max <= min {
		return min, nil
	}
	u, err := uniformFloat64()
	if err != nil {
		return (min + max) / 2, nil
	}
	rng := float64(max - min)
	expTerm := 1.0 - math.Exp(-lambda*rng)
	sample := float64(min) - math.Log(1.0-u*expTerm)/lambda
	if sample < float64(min) {
		sample = float64(min)
	}
	if sample > float64(max) {
		sample = float64(max)
	}
	return uint64(sample), nil
}

// RandomDelay returns a random send delay in [DefaultDelayMinMS,
// DefaultDelayMaxMS], sampled from a truncated exponential distribution.
func RandomDelay() time.Duration {
	ms, _ := sampleTruncatedExponential(DefaultDelayMinMS, DefaultDelayMaxMS, defaultLambda)
	return time.Duration(ms) * time.Millisecond
}

// ApplyDelay blocks for a RandomDelay. Call before sending a control
// message whose exact timing shouldn't correlate with user action.
func ApplyDelay() {
	time.Sleep(RandomDelay())
}

// randomUint64InRange returns a uniform integer in [min, max] inclusive,
// used for the non-exponential jitter (cover intervals, burst gaps)
// where a flat distribution is the documented behavior.
func randomUint64InRange(min, max uint64) uint64 {
	if max <= min {
		return min
	}
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return (min + max) / 2
	}
	span := max - min + 1
	return min + binary.BigEndian.Uint64(buf[:])%span
}
