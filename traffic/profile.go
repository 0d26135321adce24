package traffic

import "time"

// Profile selects a traffic-shaping tradeoff between latency and
// resistance to traffic analysis. Each profile fixes a cover-traffic
// interval range, a send-delay range, and a burst padding configuration.
type Profile uint8

const (
	// LowLatency minimizes added delay: infrequent cover traffic, no
	// burst padding, short delays. For users who prioritize speed over
	// maximal metadata resistance.
	LowLatency Profile = iota
	// Balanced is the default tradeoff: moderate cover traffic and
	// delays, burst padding enabled at modest counts.
	Balanced
	// MaxPrivacy favors metadata resistance over latency: frequent
	// cover traffic, long delays, aggressive burst padding.
	MaxPrivacy
)

// CoverIntervalRange returns the [min, max] random interval between
// cover-traffic emissions for this profile.
func (p Profile) CoverIntervalRange() (min, max time.Duration) {
	switch p {
	case LowLatency:
		return 90 * time.Second, 120 * time.Second
	case MaxPrivacy:
		return 10 * time.Second, 30 * time.Second
	default: // Balanced
		return DefaultCoverIntervalMinSecs * time.Second, DefaultCoverIntervalMaxSecs * time.Second
	}
}

// DelayRange returns the [min, max] random send-delay range for this
// profile.
func (p Profile) DelayRange() (min, max time.Duration) {
	switch p {
	case LowLatency:
		return 100 * time.Millisecond, 300 * time.Millisecond
	case MaxPrivacy:
		return 400 * time.Millisecond, 1200 * time.Millisecond
	default: // Balanced
		return DefaultDelayMinMS * time.Millisecond, DefaultDelayMaxMS * time.Millisecond
	}
}

// BurstConfig returns the burst padding configuration for this profile.
func (p Profile) BurstConfig() BurstConfig {
	switch p {
	case LowLatency:
		cfg := DefaultBurstConfig()
		cfg.Enabled = false
		return cfg
	case MaxPrivacy:
		return BurstConfig{
			PreBurstCount:       5,
			PostBurstCount:      5,
			InterPacketDelayMin: 100 * time.Millisecond,
			InterPacketDelayMax: 400 * time.Millisecond,
			Enabled:             true,
		}
	default: // Balanced
		return DefaultBurstConfig()
	}
}

// RandomDelay draws a send delay from this profile's DelayRange using a
// truncated-exponential distribution, same shape as the package-level
// RandomDelay but scaled to the profile's own bounds.
func (p Profile) RandomDelay() time.Duration {
	min, max := p.DelayRange()
	ms, _ := sampleTruncatedExponential(uint64(min/time.Millisecond), uint64(max/time.Millisecond), defaultLambda)
	return time.Duration(ms) * time.Millisecond
}

// RandomCoverInterval draws a cover-traffic interval from this
// profile's CoverIntervalRange, uniformly at random.
func (p Profile) RandomCoverInterval() time.Duration {
	min, max := p.CoverIntervalRange()
	return randomDurationInRange(min, max)
}

// String returns the profile's name, matching the names used in
// configuration and logging.
func (p Profile) String() string {
	switch p {
	case LowLatency:
		return "low_latency"
	case MaxPrivacy:
		return "max_privacy"
	default:
		return "balanced"
	}
}
