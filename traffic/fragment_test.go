package traffic

import (
	"bytes"
	"testing"
)

func TestFragmentSmallPayloadIsSingleEnvelope(t *testing.T) {
	payload := []byte("short message")
	frags, err := FragmentAndPad(payload, Size4096)
	if err != nil {
		t.Fatal(err)
	}
	if len(frags) != 1 {
		t.Fatalf("expected 1 fragment, got %d", len(frags))
	}
	if len(frags[0]) != Size4096 {
		t.Fatalf("expected envelope size %d, got %d", Size4096, len(frags[0]))
	}

	got, err := Reassemble(frags)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("expected %q, got %q", payload, got)
	}
}

func TestFragmentLargePayloadSplitsAndReassembles(t *testing.T) {
	payload := bytes.Repeat([]byte("0123456789abcdef"), 1000) // 16000 bytes, exceeds one 4096 envelope
	frags, err := FragmentAndPad(payload, Size4096)
	if err != nil {
		t.Fatal(err)
	}
	if len(frags) < 2 {
		t.Fatalf("expected multiple fragments for %d-byte payload, got %d", len(payload), len(frags))
	}
	for _, f := range frags {
		if len(f) != Size4096 {
			t.Fatalf("expected every fragment padded to %d, got %d", Size4096, len(f))
		}
	}

	got, err := Reassemble(frags)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatal("reassembled payload does not match original")
	}
}

func TestReassembleRejectsOutOfOrder(t *testing.T) {
	payload := bytes.Repeat([]byte("x"), 9000)
	frags, err := FragmentAndPad(payload, Size4096)
	if err != nil {
		t.Fatal(err)
	}
	if len(frags) < 2 {
		t.Fatal("expected at least 2 fragments for this test")
	}
	frags[0], frags[1] = frags[1], frags[0]
	if _, err := Reassemble(frags); err == nil {
		t.Fatal("expected an error reassembling out-of-order fragments")
	}
}

func TestReassembleEmptyFails(t *testing.T) {
	if _, err := Reassemble(nil); err != ErrEmptyFragments {
		t.Fatalf("expected ErrEmptyFragments, got %v", err)
	}
}
