package ratchet

import (
	"sync"

	"github.com/shieldmsg/core/kem"
	"github.com/shieldmsg/core/xcrypto"
)

const (
	rootKDFContextInit = "ShieldMessenger-RatchetRoot-Init-v1"
	rootKDFContextDH   = "ShieldMessenger-RatchetRoot-DH-v1"
	rootKDFContextKEM  = "ShieldMessenger-RatchetRoot-KEM-v1"
)

// Session encapsulates one peer's asynchronous, serialized ratchet
// conversation. Callers must not share a Session across goroutines
// without external synchronization beyond what Seal/Open already take;
// the mutex here only protects this process's single in-memory copy.
type Session struct {
	mu    sync.Mutex
	state *State
}

// Message is a single ratchet-encrypted message.
type Message struct {
	Header     Header
	Ciphertext []byte
}

// NewAliceSession begins a session as the initiator: it derives the
// root key from the 64-byte hybrid shared secret negotiated out of
// band, generates a fresh DH keypair, performs one DH against the
// peer's published DH public key, and derives an initial send chain.
func NewAliceSession(sharedSecret [64]byte, peerDHPublic [32]byte, peerKEMEncapsulationKey []byte) (*Session, error) {
	state := newState()
	root, err := xcrypto.HKDFSHA256(sharedSecret[:], nil, []byte(rootKDFContextInit), 32)
	if err != nil {
		return nil, err
	}
	copy(state.RootKey[:], root)

	ourDH, err := xcrypto.GenerateX25519KeyPair()
	if err != nil {
		return nil, err
	}
	state.OurDHSecret = ourDH.Private
	state.OurDHPublic = ourDH.Public
	state.TheirDHPublic = peerDHPublic
	state.HasTheirDH = true
	state.TheirKEMEncapsulationKey = append([]byte(nil), peerKEMEncapsulationKey...)

	dh, err := xcrypto.X25519(state.OurDHSecret, state.TheirDHPublic)
	if err != nil {
		return nil, ErrDHRatchetFailed
	}
	state.RootKey, state.SendChainKey = rootKDF(state.RootKey, dh, rootKDFContextDH)
	state.HasSendChain = true

	ourKEM, err := kem.GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	state.OurKEMKeyPair = ourKEM

	return &Session{state: state}, nil
}

// NewBobSession begins a session as the responder: it derives the same
// root key and keeps its already-published DH and KEM key pairs, but
// establishes no send chain until Alice's first message performs the
// initial DH ratchet.
func NewBobSession(sharedSecret [64]byte, ourDHKeyPair xcrypto.X25519KeyPair, ourKEMKeyPair kem.KeyPair) (*Session, error) {
	state := newState()
	root, err := xcrypto.HKDFSHA256(sharedSecret[:], nil, []byte(rootKDFContextInit), 32)
	if err != nil {
		return nil, err
	}
	copy(state.RootKey[:], root)

	state.OurDHSecret = ourDHKeyPair.Private
	state.OurDHPublic = ourDHKeyPair.Public
	state.OurKEMKeyPair = ourKEMKeyPair

	return &Session{state: state}, nil
}

// ExportState returns a deep copy of the session's persistable state:
// everything except the skipped-key buffer, which is session-local —
// messages skipped before a restart cannot be recovered afterward.
func (s *Session) ExportState() *State {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *s.state
	clone.skippedKeys = nil
	clone.skippedOrder = nil
	clone.OurKEMKeyPair = kem.KeyPair{
		X25519Public: s.state.OurKEMKeyPair.X25519Public,
		X25519Secret: s.state.OurKEMKeyPair.X25519Secret,
		MLKEMPublic:  append([]byte(nil), s.state.OurKEMKeyPair.MLKEMPublic...),
		MLKEMSecret:  append([]byte(nil), s.state.OurKEMKeyPair.MLKEMSecret...),
	}
	clone.TheirKEMEncapsulationKey = append([]byte(nil), s.state.TheirKEMEncapsulationKey...)
	return &clone
}

// ImportState resumes a session from a previously exported State.
func ImportState(state *State) *Session {
	imported := *state
	imported.skippedKeys = make(map[skippedKeyID]MessageKey)
	imported.skippedOrder = nil
	return &Session{state: &imported}
}

// Seal encrypts and authenticates plaintext, authenticating
// additionalData, and returns the resulting message. Every
// KEMRatchetInterval-th message additionally performs a KEM ratchet
// step, mixing a fresh hybrid encapsulation into the root key.
func (s *Session) Seal(plaintext, additionalData []byte) (Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.state

	if !st.HasSendChain {
		return Message{}, ErrNoSendChain
	}

	var ck ChainKey
	var mk MessageKey
	ck, mk = chainKDF(st.SendChainKey)

	h := Header{
		DHPublic:            st.OurDHPublic,
		MessageNumber:       st.SendMessageNumber,
		PreviousChainLength: st.PreviousChainLength,
	}

	st.TotalMessagesSent++
	if st.TotalMessagesSent%KEMRatchetInterval == 0 && len(st.TheirKEMEncapsulationKey) > 0 {
		ct, err := kem.Encapsulate(dhOnlyPublicFromKEMKey(st.TheirKEMEncapsulationKey), mlkemPublicFromKEMKey(st.TheirKEMEncapsulationKey))
		if err != nil {
			return Message{}, ErrKEMRatchetFailed
		}
		st.RootKey, ck = rootKDF(st.RootKey, ct.SharedSecret[:], rootKDFContextKEM)

		h.KEMCiphertext = encodeKEMCiphertext(ct)

		freshKEM, err := kem.GenerateKeyPair()
		if err != nil {
			return Message{}, ErrKEMRatchetFailed
		}
		st.OurKEMKeyPair = freshKEM
		h.KEMEncapsulationKey = encodeKEMPublic(freshKEM)
	}

	key, nonce := messageKeyToAEAD(mk)
	additionalData = append(append([]byte(nil), additionalData...), h.Encode()...)
	ciphertext, err := xcrypto.Seal(key[:], nonce, plaintext, additionalData)
	mk.zero()
	if err != nil {
		return Message{}, err
	}

	st.SendChainKey = ck
	st.SendMessageNumber++

	return Message{Header: h, Ciphertext: ciphertext}, nil
}

// Open decrypts and authenticates a received Message, performing
// whatever DH ratchet, KEM ratchet, and skipped-key bookkeeping the
// header requires.
func (s *Session) Open(msg Message, additionalData []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.state
	h := msg.Header

	skID := skippedKeyID{dhPublic: h.DHPublic, messageNumber: h.MessageNumber}
	if mk, ok := st.skippedKeys[skID]; ok {
		aad := append(append([]byte(nil), additionalData...), h.Encode()...)
		key, nonce := messageKeyToAEAD(mk)
		plaintext, err := xcrypto.Open(key[:], nonce, msg.Ciphertext, aad)
		mk.zero()
		if err != nil {
			return nil, ErrDecryption
		}
		delete(st.skippedKeys, skID)
		st.removeSkippedOrder(skID)
		return plaintext, nil
	}

	if !st.HasTheirDH || !dhPublicEqual(h.DHPublic, st.TheirDHPublic) {
		if err := st.dhRatchet(h); err != nil {
			return nil, err
		}
	}

	if len(h.KEMCiphertext) > 0 {
		ct, err := decodeKEMCiphertext(h.KEMCiphertext)
		if err != nil {
			return nil, ErrKEMRatchetFailed
		}
		shared, err := kem.Decapsulate(st.OurKEMKeyPair, ct.X25519EphemeralPublic, ct.MLKEMCiphertext)
		if err != nil {
			return nil, ErrKEMRatchetFailed
		}
		st.RootKey, st.RecvChainKey = rootKDF(st.RootKey, shared[:], rootKDFContextKEM)
		st.HasRecvChain = true

		if len(h.KEMEncapsulationKey) > 0 {
			st.TheirKEMEncapsulationKey = append([]byte(nil), h.KEMEncapsulationKey...)
		}
		freshKEM, err := kem.GenerateKeyPair()
		if err != nil {
			return nil, ErrKEMRatchetFailed
		}
		st.OurKEMKeyPair = freshKEM
	}

	if err := st.skipTo(h.MessageNumber); err != nil {
		return nil, err
	}

	var mk MessageKey
	st.RecvChainKey, mk = chainKDF(st.RecvChainKey)
	st.RecvMessageNumber++

	aad := append(append([]byte(nil), additionalData...), h.Encode()...)
	key, nonce := messageKeyToAEAD(mk)
	plaintext, err := xcrypto.Open(key[:], nonce, msg.Ciphertext, aad)
	mk.zero()
	if err != nil {
		return nil, ErrDecryption
	}
	return plaintext, nil
}

// dhRatchet performs the Diffie-Hellman ratchet step triggered by a
// header carrying a new peer DH public key: it skips the remainder of
// the current receive chain, derives a fresh receive chain from the new
// peer key, then rotates our own DH keypair and derives a fresh send
// chain to match.
func (st *State) dhRatchet(h Header) error {
	if st.HasRecvChain {
		if err := st.skipTo(h.PreviousChainLength); err != nil {
			return err
		}
	}

	st.TheirDHPublic = h.DHPublic
	st.HasTheirDH = true

	dh, err := xcrypto.X25519(st.OurDHSecret, st.TheirDHPublic)
	if err != nil {
		return ErrDHRatchetFailed
	}
	st.RootKey, st.RecvChainKey = rootKDF(st.RootKey, dh, rootKDFContextDH)
	st.HasRecvChain = true
	st.RecvMessageNumber = 0

	st.PreviousChainLength = st.SendMessageNumber

	newDH, err := xcrypto.GenerateX25519KeyPair()
	if err != nil {
		return ErrDHRatchetFailed
	}
	st.OurDHSecret = newDH.Private
	st.OurDHPublic = newDH.Public

	dh2, err := xcrypto.X25519(st.OurDHSecret, st.TheirDHPublic)
	if err != nil {
		return ErrDHRatchetFailed
	}
	st.RootKey, st.SendChainKey = rootKDF(st.RootKey, dh2, rootKDFContextDH)
	st.HasSendChain = true
	st.SendMessageNumber = 0

	return nil
}

// skipTo advances the receive chain up to (not including) messageNumber,
// buffering each skipped message's key so it can still be decrypted if
// it arrives late and out of order.
func (st *State) skipTo(messageNumber uint64) error {
	if !st.HasRecvChain {
		return nil
	}
	if messageNumber < st.RecvMessageNumber {
		return nil
	}
	if messageNumber-st.RecvMessageNumber > MaxSkip {
		return ErrTooManySkipped
	}
	for st.RecvMessageNumber < messageNumber {
		var mk MessageKey
		st.RecvChainKey, mk = chainKDF(st.RecvChainKey)
		id := skippedKeyID{dhPublic: st.TheirDHPublic, messageNumber: st.RecvMessageNumber}
		st.storeSkipped(id, mk)
		st.RecvMessageNumber++
	}
	return nil
}

// storeSkipped records a skipped message key, evicting the oldest
// buffered key first if the buffer is already at MaxSkip.
func (st *State) storeSkipped(id skippedKeyID, mk MessageKey) {
	if len(st.skippedOrder) >= MaxSkip {
		oldest := st.skippedOrder[0]
		st.skippedOrder = st.skippedOrder[1:]
		if old, ok := st.skippedKeys[oldest]; ok {
			old.zero()
		}
		delete(st.skippedKeys, oldest)
	}
	st.skippedKeys[id] = mk
	st.skippedOrder = append(st.skippedOrder, id)
}

func (st *State) removeSkippedOrder(id skippedKeyID) {
	for i, existing := range st.skippedOrder {
		if existing == id {
			st.skippedOrder = append(st.skippedOrder[:i], st.skippedOrder[i+1:]...)
			return
		}
	}
}

// SkippedKeyCount reports how many out-of-order message keys are
// currently buffered, for tests and diagnostics.
func (s *Session) SkippedKeyCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.state.skippedKeys)
}

func encodeKEMCiphertext(ct kem.Ciphertext) []byte {
	buf := make([]byte, 0, 32+len(ct.MLKEMCiphertext))
	buf = append(buf, ct.X25519EphemeralPublic[:]...)
	buf = append(buf, ct.MLKEMCiphertext...)
	return buf
}

func decodeKEMCiphertext(data []byte) (kem.Ciphertext, error) {
	if len(data) != 32+kem.MLKEMCiphertextSize {
		return kem.Ciphertext{}, kem.ErrInvalidKeyLength
	}
	var ct kem.Ciphertext
	copy(ct.X25519EphemeralPublic[:], data[:32])
	ct.MLKEMCiphertext = append([]byte(nil), data[32:]...)
	return ct, nil
}

func encodeKEMPublic(kp kem.KeyPair) []byte {
	buf := make([]byte, 0, 32+len(kp.MLKEMPublic))
	buf = append(buf, kp.X25519Public[:]...)
	buf = append(buf, kp.MLKEMPublic...)
	return buf
}

func dhOnlyPublicFromKEMKey(encoded []byte) [32]byte {
	var pub [32]byte
	copy(pub[:], encoded[:32])
	return pub
}

func mlkemPublicFromKEMKey(encoded []byte) []byte {
	if len(encoded) <= 32 {
		return nil
	}
	return encoded[32:]
}
