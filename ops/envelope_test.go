package ops

import (
	"testing"

	"github.com/shieldmsg/core/ids"
	"github.com/shieldmsg/core/xcrypto"
)

func TestNewSignedVerifies(t *testing.T) {
	kp, err := xcrypto.GenerateSigningKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	var pub [32]byte
	copy(pub[:], kp.Public)

	salt, err := ids.RandomSalt()
	if err != nil {
		t.Fatal(err)
	}
	device := ids.DeviceIDFromPubkey(pub[:])
	group := ids.NewGroupID(device, salt)

	payload := GroupCreatePayload{GroupName: "Test", EncryptedGroupSecret: []byte{1, 2, 3}}
	env, err := NewSigned(group, OpGroupCreate, payload, 1, 100, 1234, pub, kp.Private)
	if err != nil {
		t.Fatal(err)
	}
	if !env.Verify() {
		t.Fatal("expected freshly signed envelope to verify")
	}

	var decoded GroupCreatePayload
	if err := env.DecodePayloadInto(&decoded); err != nil {
		t.Fatal(err)
	}
	if decoded.GroupName != "Test" {
		t.Fatalf("got group name %q", decoded.GroupName)
	}
}

func TestTamperedSignatureFailsVerify(t *testing.T) {
	kp, err := xcrypto.GenerateSigningKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	var pub [32]byte
	copy(pub[:], kp.Public)
	salt, _ := ids.RandomSalt()
	device := ids.DeviceIDFromPubkey(pub[:])
	group := ids.NewGroupID(device, salt)

	payload := MsgDeletePayload{MsgID: [32]byte{1}}
	env, err := NewSigned(group, OpMsgDelete, payload, 2, 1, 0, pub, kp.Private)
	if err != nil {
		t.Fatal(err)
	}
	env.Lamport = 99 // mutate a signed field
	if env.Verify() {
		t.Fatal("expected tampered envelope to fail verification")
	}
}

func TestPayloadTooLargeRejected(t *testing.T) {
	kp, err := xcrypto.GenerateSigningKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	var pub [32]byte
	copy(pub[:], kp.Public)
	salt, _ := ids.RandomSalt()
	device := ids.DeviceIDFromPubkey(pub[:])
	group := ids.NewGroupID(device, salt)

	huge := make([]byte, MaxPayloadBytes+1)
	payload := MsgAddPayload{MsgID: [32]byte{1}, Ciphertext: huge}
	_, err = NewSigned(group, OpMsgAdd, payload, 1, 1, 0, pub, kp.Private)
	if err != ErrPayloadTooLarge {
		t.Fatalf("expected ErrPayloadTooLarge, got %v", err)
	}
}

func TestSignableBytesDeterministicAcrossParentHeadOrder(t *testing.T) {
	kp, _ := xcrypto.GenerateSigningKeyPair()
	var pub [32]byte
	copy(pub[:], kp.Public)
	device := ids.DeviceIDFromPubkey(pub[:])

	p1 := ids.OpID{Author: device, Lamport: 1, Nonce: 1}
	p2 := ids.OpID{Author: device, Lamport: 2, Nonce: 2}

	base := Envelope{
		OpID:         ids.OpID{Author: device, Lamport: 3, Nonce: 3},
		AuthorPubkey: pub,
	}
	a := base
	a.ParentHeads = []ids.OpID{p1, p2}
	b := base
	b.ParentHeads = []ids.OpID{p2, p1}

	if string(a.SignableBytes()) != string(b.SignableBytes()) {
		t.Fatal("expected parent_heads order to not affect signable bytes")
	}
}
