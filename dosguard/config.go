// Package dosguard implements application-level DoS protection for the
// hidden-service listener: concurrent connection caps, sliding-window
// rate limits, circuit bans, and a Proof-of-Work challenge for
// high-load periods.
package dosguard

import "time"

// Config tunes a Guard's capacity, rate, and ban thresholds.
type Config struct {
	// MaxConcurrentConnections bounds the number of connections open at once.
	MaxConcurrentConnections uint32
	// MaxConnectionsPerSecond bounds the global connection rate over a 1s window.
	MaxConnectionsPerSecond uint32
	// MaxPerCircuitPerMinute bounds a single circuit's connection rate over a 60s window.
	MaxPerCircuitPerMinute uint32
	// BanThreshold is the number of rate-limit violations before a circuit is banned.
	BanThreshold uint32
	// BanDuration is how long a banned circuit stays banned.
	BanDuration time.Duration
	// PoWActivationThreshold triggers a PoW challenge once the global rate
	// reaches this fraction of MaxConnectionsPerSecond (0 = always, 1 = never).
	PoWActivationThreshold float64
	// PoWDifficulty is the number of leading zero bits a solution must have.
	PoWDifficulty uint8
}

// DefaultConfig matches the reference hidden-service deployment's tuning.
func DefaultConfig() Config {
	return Config{
		MaxConcurrentConnections: 200,
		MaxConnectionsPerSecond:  50,
		MaxPerCircuitPerMinute:   10,
		BanThreshold:             5,
		BanDuration:              5 * time.Minute,
		PoWActivationThreshold:   0.75,
		PoWDifficulty:            16,
	}
}

// circuitWindow is 60s: the per-circuit sliding window referenced
// throughout the decision logic and the stale-record cutoff used by
// Guard.Cleanup.
const circuitWindow = 60 * time.Second

// staleCircuitAge is how long an unbanned, quiet circuit record is kept
// around before Cleanup reclaims it.
const staleCircuitAge = 10 * time.Minute
