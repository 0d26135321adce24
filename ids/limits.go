package ids

// Per-group operation count caps. A group approaching the hard cap should
// archive or rotate rather than keep appending non-membership ops — the
// apply engine enforces this (membership ops always bypass the cap so a
// group can still be repaired or abandoned gracefully).
const (
	// WarnOpCount is the op count at which UI should show a Warning status.
	WarnOpCount = 50_000
	// HardCapOpCount is the op count at which non-membership ops are rejected.
	HardCapOpCount = 100_000
	// MaxOpPayloadBytes is the maximum encoded payload size for one op.
	MaxOpPayloadBytes = 64 * 1024
)

// LimitStatus is a UI-facing enum describing how close a group is to its cap.
type LimitStatus int

const (
	LimitOK LimitStatus = iota
	LimitWarning
	LimitHardCapReached
)

func (s LimitStatus) String() string {
	switch s {
	case LimitOK:
		return "Ok"
	case LimitWarning:
		return "Warning"
	case LimitHardCapReached:
		return "HardCapReached"
	default:
		return "Unknown"
	}
}

// CheckOpLimits classifies the current op count for UI display.
func CheckOpLimits(opCount uint64) LimitStatus {
	switch {
	case opCount >= HardCapOpCount:
		return LimitHardCapReached
	case opCount >= WarnOpCount:
		return LimitWarning
	default:
		return LimitOK
	}
}
