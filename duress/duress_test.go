package duress

import "testing"

func TestAuthenticatePriorityRealOverDuress(t *testing.T) {
	g, err := NewGate([]byte("1234"), []byte("0000"), WipeActions{WipeMessages: true}, DecoyProfile{DisplayName: "Decoy"})
	if err != nil {
		t.Fatal(err)
	}

	if got := g.Authenticate([]byte("1234")); got != MatchReal {
		t.Fatalf("expected MatchReal, got %v", got)
	}
	if got := g.Authenticate([]byte("0000")); got != MatchDuress {
		t.Fatalf("expected MatchDuress, got %v", got)
	}
	if got := g.Authenticate([]byte("9999")); got != MatchInvalid {
		t.Fatalf("expected MatchInvalid, got %v", got)
	}
}

func TestEmptyPINRejected(t *testing.T) {
	if _, err := NewGate(nil, []byte("0000"), WipeActions{}, DecoyProfile{}); err != ErrEmptyPIN {
		t.Fatalf("expected ErrEmptyPIN, got %v", err)
	}
}

func TestSamePINsStillDistinguishable(t *testing.T) {
	// Even if real and duress PINs happen to collide, Real takes
	// priority over Duress on a tag-ambiguous match.
	g, err := NewGate([]byte("5555"), []byte("5555"), WipeActions{}, DecoyProfile{})
	if err != nil {
		t.Fatal(err)
	}
	if got := g.Authenticate([]byte("5555")); got != MatchReal {
		t.Fatalf("expected MatchReal on ambiguous match, got %v", got)
	}
}
