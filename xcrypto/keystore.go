package xcrypto

// KeyStore is the contract the platform layer supplies long-term key
// material through. It is implemented by platform-specific code (OS
// keychain, secure enclave, whatever the deployment target offers) and
// injected into callers that need identity material; nothing in this
// module implements or persists it.
type KeyStore interface {
	// IdentityPrivate returns the Ed25519 identity private key used to
	// sign operations, ping/pong tokens, and ACKs.
	IdentityPrivate() (ed25519Private []byte, err error)

	// EncryptionPrivate returns the X25519 private key used for ratchet
	// session establishment and the hybrid KEM's classical component.
	EncryptionPrivate() (x25519Private [32]byte, err error)

	// HiddenServiceSeed returns the 32-byte Ed25519 seed Tor's control
	// port expects for ADD_ONION, so the same onion address survives
	// restarts.
	HiddenServiceSeed() (seed [32]byte, err error)
}
