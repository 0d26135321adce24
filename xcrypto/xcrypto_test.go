package xcrypto

import "testing"

func TestSignVerifyRoundTrip(t *testing.T) {
	kp, err := GenerateSigningKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	msg := []byte("hello shield")
	sig, err := Sign(kp.Private, msg)
	if err != nil {
		t.Fatal(err)
	}
	if !Verify(kp.Public, msg, sig) {
		t.Fatal("expected valid signature to verify")
	}
	if Verify(kp.Public, []byte("tampered"), sig) {
		t.Fatal("expected tampered message to fail verification")
	}
}

func TestX25519DHAgreement(t *testing.T) {
	a, err := GenerateX25519KeyPair()
	if err != nil {
		t.Fatal(err)
	}
	b, err := GenerateX25519KeyPair()
	if err != nil {
		t.Fatal(err)
	}
	ab, err := X25519(a.Private, b.Public)
	if err != nil {
		t.Fatal(err)
	}
	ba, err := X25519(b.Private, a.Public)
	if err != nil {
		t.Fatal(err)
	}
	if string(ab) != string(ba) {
		t.Fatal("expected both sides to derive the same shared secret")
	}
}

func TestAEADRoundTrip(t *testing.T) {
	key := make([]byte, KeySize)
	for i := range key {
		key[i] = byte(i)
	}
	nonce, err := RandomNonce()
	if err != nil {
		t.Fatal(err)
	}
	pt := []byte("the quick brown fox")
	aad := []byte("group-id")

	ct, err := Seal(key, nonce, pt, aad)
	if err != nil {
		t.Fatal(err)
	}
	got, err := Open(key, nonce, ct, aad)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(pt) {
		t.Fatalf("got %q, want %q", got, pt)
	}

	if _, err := Open(key, nonce, ct, []byte("wrong-aad")); err != ErrDecryption {
		t.Fatalf("expected ErrDecryption for mismatched AAD, got %v", err)
	}
}

func TestArgon2idDeterministicForSameSalt(t *testing.T) {
	salt, err := RandomSalt16()
	if err != nil {
		t.Fatal(err)
	}
	h1 := HashPINArgon2id([]byte("1234"), salt[:])
	h2 := HashPINArgon2id([]byte("1234"), salt[:])
	if !ConstantTimeEqual(h1, h2) {
		t.Fatal("expected identical PIN+salt to hash identically")
	}
	h3 := HashPINArgon2id([]byte("0000"), salt[:])
	if ConstantTimeEqual(h1, h3) {
		t.Fatal("expected different PINs to hash differently")
	}
}

func TestSafetyNumberSymmetric(t *testing.T) {
	a := []byte("alice-identity-key-bytes-000000")
	b := []byte("bob---identity-key-bytes-000000")
	n1 := SafetyNumber(a, b)
	n2 := SafetyNumber(b, a)
	if n1 != n2 {
		t.Fatalf("expected safety number to be order-independent, got %q vs %q", n1, n2)
	}
}
