package dosguard

import "testing"

func TestPoWVerification(t *testing.T) {
	challenge, err := GenerateChallenge()
	if err != nil {
		t.Fatal(err)
	}
	const difficulty = 12
	nonce := SolvePoW(challenge, difficulty)
	if !VerifyPoW(challenge, nonce, difficulty) {
		t.Fatal("expected solved nonce to verify")
	}
	if VerifyPoW(challenge, nonce+1, difficulty+32) {
		t.Fatal("expected an absurdly high difficulty to reject an unrelated nonce")
	}
}

func TestPoWZeroDifficultyAlwaysPasses(t *testing.T) {
	var challenge [32]byte
	if !VerifyPoW(challenge, 0, 0) {
		t.Fatal("expected difficulty 0 to accept any nonce")
	}
}

func FuzzPoW(f *testing.F) {
	f.Add(uint64(0), uint8(1))
	f.Add(uint64(12345), uint8(8))

	f.Fuzz(func(t *testing.T, nonce uint64, difficulty uint8) {
		if difficulty > 24 {
			difficulty = 24 // keep the fuzz run bounded
		}
		var challenge [32]byte
		challenge[0] = byte(nonce)
		// VerifyPoW must be a pure function of its inputs.
		if VerifyPoW(challenge, nonce, difficulty) != VerifyPoW(challenge, nonce, difficulty) {
			t.Fatal("VerifyPoW is non-deterministic for the same inputs")
		}
	})
}
