// Package duress implements the dual-PIN duress gate: indistinguishable
// real and duress PIN hashes, constant-time priority matching, and the
// configurable wipe recipe a duress match triggers.
package duress

import (
	"errors"

	"github.com/shieldmsg/core/xcrypto"
)

// MatchTag identifies which PIN, if either, an entry attempt matched.
type MatchTag int

const (
	// MatchInvalid means neither PIN hash matched.
	MatchInvalid MatchTag = iota
	// MatchReal means the real PIN matched.
	MatchReal
	// MatchDuress means the duress PIN matched.
	MatchDuress
)

func (t MatchTag) String() string {
	switch t {
	case MatchReal:
		return "Real"
	case MatchDuress:
		return "Duress"
	default:
		return "Invalid"
	}
}

// WipeActions is the configurable recipe a duress match triggers. Every
// field is independently toggleable so a duress profile can, for
// example, wipe messages and contacts but leave keys intact for a later
// recovery out of band.
type WipeActions struct {
	WipeKeys             bool
	WipeMessages         bool
	WipeContacts         bool
	WipeWallet           bool
	WipeCallHistory      bool
	SecureOverwritePasses int
	SelfDestructConfig   bool
	SilentAlertContact   string // empty means no alert is sent
}

// DecoyProfile is the benign identity and conversation set shown after a
// duress match, in place of the real data the wipe recipe removed.
type DecoyProfile struct {
	DisplayName string
	AvatarBlob  []byte
	// GroupIDs are the decoy groups that remain visible after a duress
	// wipe, so the app doesn't look suspiciously empty.
	GroupIDs [][32]byte
}

// Gate holds the two indistinguishable PIN hashes plus the duress
// response configuration.
type Gate struct {
	realHash    []byte
	realSalt    [xcrypto.Argon2SaltLen]byte
	duressHash  []byte
	duressSalt  [xcrypto.Argon2SaltLen]byte
	WipeActions WipeActions
	Decoy       DecoyProfile
}

var ErrEmptyPIN = errors.New("duress: pin must not be empty")

// NewGate hashes both PINs with independent random salts and returns a
// gate ready to authenticate entry attempts. The two hashes are stored
// indistinguishably: nothing about their encoding reveals which is real.
func NewGate(realPIN, duressPIN []byte, wipe WipeActions, decoy DecoyProfile) (*Gate, error) {
	if len(realPIN) == 0 || len(duressPIN) == 0 {
		return nil, ErrEmptyPIN
	}

	realSalt, err := xcrypto.RandomSalt16()
	if err != nil {
		return nil, err
	}
	duressSalt, err := xcrypto.RandomSalt16()
	if err != nil {
		return nil, err
	}

	return &Gate{
		realHash:    xcrypto.HashPINArgon2id(realPIN, realSalt[:]),
		realSalt:    realSalt,
		duressHash:  xcrypto.HashPINArgon2id(duressPIN, duressSalt[:]),
		duressSalt:  duressSalt,
		WipeActions: wipe,
		Decoy:       decoy,
	}, nil
}

// Authenticate always computes both Argon2id hashes regardless of which
// (if either) matches, so timing reveals nothing about which PIN, if
// any, is correct — only the total work of two hashes either way.
// Priority order is Real > Duress > Invalid when (pathologically) both
// salts happen to produce the same hash for the entered PIN.
func (g *Gate) Authenticate(enteredPIN []byte) MatchTag {
	realCandidate := xcrypto.HashPINArgon2id(enteredPIN, g.realSalt[:])
	duressCandidate := xcrypto.HashPINArgon2id(enteredPIN, g.duressSalt[:])

	realMatch := xcrypto.ConstantTimeEqual(realCandidate, g.realHash)
	duressMatch := xcrypto.ConstantTimeEqual(duressCandidate, g.duressHash)

	switch {
	case realMatch:
		return MatchReal
	case duressMatch:
		return MatchDuress
	default:
		return MatchInvalid
	}
}
