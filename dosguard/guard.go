package dosguard

import (
	"sync"
	"sync/atomic"
	"time"
)

// circuitState tracks one circuit's recent connection history, ban
// status, and violation count.
type circuitState struct {
	recentConnections []time.Time
	violationCount    uint32
	bannedUntil       time.Time // zero value means not banned
	firstSeen         time.Time
}

func newCircuitState(now time.Time) *circuitState {
	return &circuitState{firstSeen: now}
}

func (s *circuitState) pruneOldConnections(now time.Time) {
	cutoff := now.Add(-circuitWindow)
	kept := s.recentConnections[:0]
	for _, t := range s.recentConnections {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	s.recentConnections = kept
}

func (s *circuitState) isBanned(now time.Time) bool {
	return !s.bannedUntil.IsZero() && now.Before(s.bannedUntil)
}

// Guard is an application-level DoS protection instance for a single
// hidden-service listener. All methods are safe for concurrent use.
type Guard struct {
	config Config

	mu               sync.RWMutex
	circuits         map[string]*circuitState
	globalConns      []time.Time
	activeConns      int32 // atomic
	nowFn            func() time.Time
}

// New builds a Guard with the given configuration.
func New(config Config) *Guard {
	return &Guard{
		config:   config,
		circuits: make(map[string]*circuitState),
		nowFn:    time.Now,
	}
}

// NewDefault builds a Guard with DefaultConfig.
func NewDefault() *Guard {
	return New(DefaultConfig())
}

func (g *Guard) now() time.Time {
	if g.nowFn != nil {
		return g.nowFn()
	}
	return time.Now()
}

// Evaluate decides whether an incoming connection identified by the
// opaque circuitID should be allowed, following the precedence:
// capacity, ban, global rate, per-circuit rate (which may itself
// produce a ban), then PoW under high load, finally Allow.
func (g *Guard) Evaluate(circuitID string) Decision {
	now := g.now()

	if atomic.LoadInt32(&g.activeConns) >= int32(g.config.MaxConcurrentConnections) {
		return Decision{Kind: CapacityExceeded}
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if state, ok := g.circuits[circuitID]; ok && state.isBanned(now) {
		remaining := uint32(state.bannedUntil.Sub(now).Seconds())
		return Decision{Kind: Banned, RemainingSecs: remaining}
	}

	cutoff := now.Add(-time.Second)
	kept := g.globalConns[:0]
	for _, t := range g.globalConns {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	g.globalConns = kept
	globalRate := uint32(len(g.globalConns))

	if globalRate >= g.config.MaxConnectionsPerSecond {
		return Decision{Kind: RateLimited, RetryAfter: 1}
	}

	state, ok := g.circuits[circuitID]
	if !ok {
		state = newCircuitState(now)
		g.circuits[circuitID] = state
	}
	state.pruneOldConnections(now)

	if uint32(len(state.recentConnections)) >= g.config.MaxPerCircuitPerMinute {
		state.violationCount++
		if state.violationCount >= g.config.BanThreshold {
			state.bannedUntil = now.Add(g.config.BanDuration)
			return Decision{Kind: Banned, RemainingSecs: uint32(g.config.BanDuration.Seconds())}
		}
		return Decision{Kind: RateLimited, RetryAfter: 60}
	}

	state.recentConnections = append(state.recentConnections, now)
	g.globalConns = append(g.globalConns, now)

	loadRatio := float64(globalRate+1) / float64(g.config.MaxConnectionsPerSecond)
	if loadRatio >= g.config.PoWActivationThreshold {
		challenge, err := GenerateChallenge()
		if err == nil {
			return Decision{Kind: RequirePoW, Difficulty: g.config.PoWDifficulty, Challenge: challenge}
		}
	}

	return Decision{Kind: Allow}
}

// ConnectionOpened records a newly accepted connection against the
// concurrent connection cap.
func (g *Guard) ConnectionOpened() {
	atomic.AddInt32(&g.activeConns, 1)
}

// ConnectionClosed releases a slot reserved by ConnectionOpened.
func (g *Guard) ConnectionClosed() {
	atomic.AddInt32(&g.activeConns, -1)
}

// BanCircuit manually bans circuitID for duration, e.g. after detecting
// abuse through some other channel.
func (g *Guard) BanCircuit(circuitID string, duration time.Duration) {
	now := g.now()
	g.mu.Lock()
	defer g.mu.Unlock()
	state, ok := g.circuits[circuitID]
	if !ok {
		state = newCircuitState(now)
		g.circuits[circuitID] = state
	}
	state.bannedUntil = now.Add(duration)
}

// UnbanCircuit clears a ban and resets the violation counter for circuitID.
func (g *Guard) UnbanCircuit(circuitID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if state, ok := g.circuits[circuitID]; ok {
		state.bannedUntil = time.Time{}
		state.violationCount = 0
	}
}

// Stats is a monitoring snapshot of a Guard's current state.
type Stats struct {
	ActiveConnections       int32
	ConnectionsPerSecond    uint32
	MaxConnectionsPerSecond uint32
	MaxConcurrent           uint32
	TrackedCircuits         uint32
	BannedCircuits          uint32
}

// Stats returns a point-in-time snapshot for monitoring.
func (g *Guard) Stats() Stats {
	now := g.now()
	g.mu.RLock()
	defer g.mu.RUnlock()

	var banned uint32
	for _, s := range g.circuits {
		if s.isBanned(now) {
			banned++
		}
	}

	cutoff := now.Add(-time.Second)
	var rate uint32
	for _, t := range g.globalConns {
		if t.After(cutoff) {
			rate++
		}
	}

	return Stats{
		ActiveConnections:       atomic.LoadInt32(&g.activeConns),
		ConnectionsPerSecond:    rate,
		MaxConnectionsPerSecond: g.config.MaxConnectionsPerSecond,
		MaxConcurrent:           g.config.MaxConcurrentConnections,
		TrackedCircuits:         uint32(len(g.circuits)),
		BannedCircuits:          banned,
	}
}

// VerifyPoW checks a client-submitted solution against this Guard's
// configured difficulty.
func (g *Guard) VerifyPoW(challenge [32]byte, nonce uint64) bool {
	return VerifyPoW(challenge, nonce, g.config.PoWDifficulty)
}

// Cleanup removes expired ban records and stale circuit entries. It is
// meant to be invoked periodically (every ~60s) from a background
// goroutine; it is not run automatically.
func (g *Guard) Cleanup() {
	now := g.now()
	staleCutoff := now.Add(-staleCircuitAge)

	g.mu.Lock()
	defer g.mu.Unlock()
	for id, state := range g.circuits {
		if state.isBanned(now) {
			continue
		}
		hasRecent := false
		for _, t := range state.recentConnections {
			if t.After(staleCutoff) {
				hasRecent = true
				break
			}
		}
		if hasRecent || state.firstSeen.After(staleCutoff) {
			continue
		}
		delete(g.circuits, id)
	}
}
