package ops

import (
	"fmt"
	"sync"

	"github.com/fxamacker/cbor/v2"
)

var (
	encModeOnce sync.Once
	encMode     cbor.EncMode
)

// payloadEncMode returns a canonical, deterministic CBOR encoder: sorted
// map keys (irrelevant here since payloads use `toarray`, but kept for
// defense in depth) and no indefinite-length encoding, so two
// implementations that CBOR-encode the same payload value always produce
// byte-identical bytes — required by the signature invariant.
func payloadEncMode() cbor.EncMode {
	encModeOnce.Do(func() {
		opts := cbor.CanonicalEncOptions()
		m, err := opts.EncMode()
		if err != nil {
			panic(fmt.Sprintf("ops: invalid canonical cbor options: %v", err))
		}
		encMode = m
	})
	return encMode
}

// EncodePayload CBOR-encodes a payload value in canonical form.
func EncodePayload(v interface{}) ([]byte, error) {
	return payloadEncMode().Marshal(v)
}

// DecodePayload CBOR-decodes payload bytes into v.
func DecodePayload(payload []byte, v interface{}) error {
	return cbor.Unmarshal(payload, v)
}
