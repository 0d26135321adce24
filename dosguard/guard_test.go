package dosguard

import (
	"testing"
	"time"
)

func testConfig() Config {
	return Config{
		MaxConcurrentConnections: 10,
		MaxConnectionsPerSecond:  10,
		MaxPerCircuitPerMinute:   3,
		BanThreshold:             2,
		BanDuration:              5 * time.Second,
		PoWActivationThreshold:   2.0, // effectively disabled unless a test wants it
		PoWDifficulty:            8,
	}
}

func TestAllowNormalConnection(t *testing.T) {
	g := New(testConfig())
	d := g.Evaluate("circuit-a")
	if d.Kind != Allow {
		t.Fatalf("expected Allow, got %v", d.Kind)
	}
}

func TestCapacityExceeded(t *testing.T) {
	g := New(testConfig())
	for i := 0; i < 10; i++ {
		g.ConnectionOpened()
	}
	d := g.Evaluate("circuit-a")
	if d.Kind != CapacityExceeded {
		t.Fatalf("expected CapacityExceeded, got %v", d.Kind)
	}
}

func TestPerCircuitRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.BanThreshold = 10 // avoid tripping the ban path in this test
	g := New(cfg)

	for i := 0; i < int(cfg.MaxPerCircuitPerMinute); i++ {
		d := g.Evaluate("circuit-a")
		if d.Kind != Allow {
			t.Fatalf("connection %d: expected Allow, got %v", i, d.Kind)
		}
	}
	d := g.Evaluate("circuit-a")
	if d.Kind != RateLimited || d.RetryAfter != 60 {
		t.Fatalf("expected RateLimited{retry_after=60}, got %+v", d)
	}

	// A different circuit is unaffected.
	if d2 := g.Evaluate("circuit-b"); d2.Kind != Allow {
		t.Fatalf("expected circuit-b unaffected, got %v", d2.Kind)
	}
}

func TestBanAfterViolations(t *testing.T) {
	cfg := testConfig()
	g := New(cfg)
	fixedNow := time.Now()
	g.nowFn = func() time.Time { return fixedNow }

	// Each round advances time past the per-circuit window so the rate
	// counter resets, isolating the violation count as the only thing
	// that accumulates across rounds.
	for v := uint32(0); v < cfg.BanThreshold; v++ {
		fixedNow = fixedNow.Add(circuitWindow + time.Second)
		for i := uint32(0); i < cfg.MaxPerCircuitPerMinute; i++ {
			if d := g.Evaluate("circuit-a"); d.Kind != Allow {
				t.Fatalf("round %d connection %d: expected Allow, got %v", v, i, d.Kind)
			}
		}
		d := g.Evaluate("circuit-a")
		if v+1 < cfg.BanThreshold {
			if d.Kind != RateLimited {
				t.Fatalf("round %d: expected RateLimited, got %v", v, d.Kind)
			}
		} else {
			if d.Kind != Banned {
				t.Fatalf("round %d: expected Banned, got %v", v, d.Kind)
			}
		}
	}

	d := g.Evaluate("circuit-a")
	if d.Kind != Banned || d.RemainingSecs == 0 {
		t.Fatalf("expected circuit to stay banned, got %+v", d)
	}
}

func TestGlobalRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.MaxConnectionsPerSecond = 3
	cfg.MaxPerCircuitPerMinute = 100
	g := New(cfg)

	for i := 0; i < 3; i++ {
		id := string(rune('a' + i))
		if d := g.Evaluate(id); d.Kind != Allow {
			t.Fatalf("connection %d: expected Allow, got %v", i, d.Kind)
		}
	}
	d := g.Evaluate("overflow")
	if d.Kind != RateLimited || d.RetryAfter != 1 {
		t.Fatalf("expected global RateLimited{retry_after=1}, got %+v", d)
	}
}

func TestRequirePoWUnderHighLoad(t *testing.T) {
	cfg := testConfig()
	cfg.MaxConnectionsPerSecond = 4
	cfg.MaxPerCircuitPerMinute = 100
	cfg.PoWActivationThreshold = 0.5 // kicks in once load ratio >= 0.5
	g := New(cfg)

	var sawPoW bool
	for i := 0; i < 4; i++ {
		id := string(rune('a' + i))
		d := g.Evaluate(id)
		if d.Kind == RequirePoW {
			sawPoW = true
			if !VerifyPoW(d.Challenge, SolvePoW(d.Challenge, d.Difficulty), d.Difficulty) {
				t.Fatal("expected SolvePoW's nonce to verify")
			}
		}
	}
	if !sawPoW {
		t.Fatal("expected RequirePoW to trigger under configured load threshold")
	}
}

func TestManualBanUnban(t *testing.T) {
	g := New(testConfig())
	g.BanCircuit("circuit-a", time.Minute)
	if d := g.Evaluate("circuit-a"); d.Kind != Banned {
		t.Fatalf("expected Banned after manual ban, got %v", d.Kind)
	}
	g.UnbanCircuit("circuit-a")
	if d := g.Evaluate("circuit-a"); d.Kind != Allow {
		t.Fatalf("expected Allow after unban, got %v", d.Kind)
	}
}

func TestStats(t *testing.T) {
	g := New(testConfig())
	g.ConnectionOpened()
	g.Evaluate("circuit-a")
	s := g.Stats()
	if s.ActiveConnections != 1 {
		t.Fatalf("expected 1 active connection, got %d", s.ActiveConnections)
	}
	if s.TrackedCircuits != 1 {
		t.Fatalf("expected 1 tracked circuit, got %d", s.TrackedCircuits)
	}
}

func TestCleanupRemovesStaleUnbannedCircuits(t *testing.T) {
	g := New(testConfig())
	fixedNow := time.Now()
	g.nowFn = func() time.Time { return fixedNow }

	g.Evaluate("circuit-a")
	if len(g.circuits) != 1 {
		t.Fatal("expected circuit-a to be tracked")
	}

	g.nowFn = func() time.Time { return fixedNow.Add(staleCircuitAge + time.Minute) }
	g.Cleanup()
	if len(g.circuits) != 0 {
		t.Fatalf("expected stale circuit to be reclaimed, still have %d", len(g.circuits))
	}
}

func TestCleanupKeepsBannedCircuits(t *testing.T) {
	g := New(testConfig())
	fixedNow := time.Now()
	g.nowFn = func() time.Time { return fixedNow }
	g.BanCircuit("circuit-a", 24*time.Hour)

	g.nowFn = func() time.Time { return fixedNow.Add(staleCircuitAge + time.Minute) }
	g.Cleanup()
	if len(g.circuits) != 1 {
		t.Fatal("expected banned circuit to survive cleanup")
	}
}
