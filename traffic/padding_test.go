package traffic

import (
	"bytes"
	"testing"
)

func TestPadStripRoundTrip(t *testing.T) {
	for _, size := range []int{Size4096, Size8192, Size16384} {
		payload := []byte("the quick brown fox jumps over the lazy dog")
		env, err := Pad(payload, size)
		if err != nil {
			t.Fatalf("size %d: Pad: %v", size, err)
		}
		if len(env) != size {
			t.Fatalf("size %d: expected envelope length %d, got %d", size, size, len(env))
		}
		got, err := Strip(env)
		if err != nil {
			t.Fatalf("size %d: Strip: %v", size, err)
		}
		if !bytes.Equal(got, payload) {
			t.Fatalf("size %d: expected %q, got %q", size, payload, got)
		}
	}
}

func TestPadEmptyPayload(t *testing.T) {
	env, err := Pad(nil, Size4096)
	if err != nil {
		t.Fatal(err)
	}
	got, err := Strip(env)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty payload, got %q", got)
	}
}

func TestPadPayloadTooLarge(t *testing.T) {
	payload := make([]byte, Size4096)
	if _, err := Pad(payload, Size4096); err != ErrPayloadTooLarge {
		t.Fatalf("expected ErrPayloadTooLarge, got %v", err)
	}
}

func TestPadInvalidEnvelopeSize(t *testing.T) {
	if _, err := Pad([]byte("x"), 1234); err != ErrInvalidEnvelopeSize {
		t.Fatalf("expected ErrInvalidEnvelopeSize, got %v", err)
	}
}

func TestStripRejectsWrongSize(t *testing.T) {
	if _, err := Strip(make([]byte, 123)); err != ErrInvalidEnvelope {
		t.Fatalf("expected ErrInvalidEnvelope, got %v", err)
	}
}

func TestStripRejectsInconsistentLength(t *testing.T) {
	env := make([]byte, Size4096)
	env[0], env[1] = 0xFF, 0xFF // claims a payload length larger than the envelope
	if _, err := Strip(env); err != ErrInvalidEnvelope {
		t.Fatalf("expected ErrInvalidEnvelope, got %v", err)
	}
}

func TestCoverPacketDetection(t *testing.T) {
	env, err := GenerateCoverPacket(Size4096)
	if err != nil {
		t.Fatal(err)
	}
	stripped, err := Strip(env)
	if err != nil {
		t.Fatal(err)
	}
	if !IsCoverPacket(stripped) {
		t.Fatal("expected generated packet to be recognized as cover traffic")
	}

	real, err := Strip(mustPad(t, []byte("hello"), Size4096))
	if err != nil {
		t.Fatal(err)
	}
	if IsCoverPacket(real) {
		t.Fatal("expected real payload to not be recognized as cover traffic")
	}
}

func mustPad(t *testing.T, payload []byte, size int) []byte {
	t.Helper()
	env, err := Pad(payload, size)
	if err != nil {
		t.Fatal(err)
	}
	return env
}

func FuzzPadding(f *testing.F) {
	f.Add([]byte("seed"))
	f.Add([]byte(""))
	f.Add(bytes.Repeat([]byte{0xAB}, 500))

	f.Fuzz(func(t *testing.T, payload []byte) {
		if len(payload) > MaxPayload(Size16384) {
			t.Skip()
		}
		size := Size4096
		switch {
		case len(payload) > MaxPayload(Size8192):
			size = Size16384
		case len(payload) > MaxPayload(Size4096):
			size = Size8192
		}
		env, err := Pad(payload, size)
		if err != nil {
			t.Fatalf("Pad: %v", err)
		}
		got, err := Strip(env)
		if err != nil {
			t.Fatalf("Strip: %v", err)
		}
		if !bytes.Equal(got, payload) {
			t.Fatalf("strip(pad(x)) != x: got %q, want %q", got, payload)
		}
	})
}
