package traffic

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// fragmentHeaderSize is the width of the [seq:u16][total:u16] header
// prepended to a chunk before the whole thing is padded.
const fragmentHeaderSize = 4

// ErrTooManyFragments is returned when payload would need more than
// 65535 fragments to fit the given envelope size.
var ErrTooManyFragments = errors.New("traffic: payload requires too many fragments")

// ErrEmptyFragments is returned by Reassemble when given no fragments.
var ErrEmptyFragments = errors.New("traffic: no fragments to reassemble")

// FragmentAndPad splits payload into one or more padded envelopes of
// envelopeSize. Payloads that fit in a single envelope (after
// accounting for the fragment header) are returned as a single-element
// slice with no header at all, so the common case costs nothing extra.
// Larger payloads are split into chunks, each prefixed with
// [seq:u16][total:u16] before padding, so the receiver can detect
// fragmentation and reassemble in order.
func FragmentAndPad(payload []byte, envelopeSize int) ([][]byte, error) {
	if !IsValidEnvelopeSize(envelopeSize) {
		return nil, ErrInvalidEnvelopeSize
	}

	maxSingle := MaxPayload(envelopeSize)
	if len(payload) <= maxSingle {
		env, err := Pad(payload, envelopeSize)
		if err != nil {
			return nil, err
		}
		return [][]byte{env}, nil
	}

	maxChunk := maxSingle - fragmentHeaderSize
	if maxChunk <= 0 {
		return nil, fmt.Errorf("traffic: envelope size %d too small to fragment", envelopeSize)
	}
	total := (len(payload) + maxChunk - 1) / maxChunk
	if total > 0xFFFF {
		return nil, ErrTooManyFragments
	}

	fragments := make([][]byte, 0, total)
	for seq := 0; seq*maxChunk < len(payload); seq++ {
		start := seq * maxChunk
		end := start + maxChunk
		if end > len(payload) {
			end = len(payload)
		}
		buf := make([]byte, fragmentHeaderSize+(end-start))
		binary.BigEndian.PutUint16(buf[0:2], uint16(seq))
		binary.BigEndian.PutUint16(buf[2:4], uint16(total))
		copy(buf[fragmentHeaderSize:], payload[start:end])

		env, err := Pad(buf, envelopeSize)
		if err != nil {
			return nil, err
		}
		fragments = append(fragments, env)
	}
	return fragments, nil
}

// Reassemble recovers the original payload from a slice of padded
// envelopes produced by FragmentAndPad. It accepts both the
// single-envelope case (no fragment header) and the multi-fragment
// case, and requires fragments to be supplied in sequence order.
func Reassemble(fragments [][]byte) ([]byte, error) {
	if len(fragments) == 0 {
		return nil, ErrEmptyFragments
	}

	first, err := Strip(fragments[0])
	if err != nil {
		return nil, err
	}
	if len(fragments) == 1 && !looksLikeFragmentHeader(first) {
		return first, nil
	}

	var out []byte
	for i, env := range fragments {
		stripped, err := Strip(env)
		if err != nil {
			return nil, err
		}
		if len(stripped) < fragmentHeaderSize {
			return nil, fmt.Errorf("traffic: fragment %d too short for header", i)
		}
		seq := binary.BigEndian.Uint16(stripped[0:2])
		total := binary.BigEndian.Uint16(stripped[2:4])
		if int(seq) != i {
			return nil, fmt.Errorf("traffic: fragment out of order: expected seq %d, got %d", i, seq)
		}
		if int(total) != len(fragments) {
			return nil, fmt.Errorf("traffic: fragment %d declares total %d, got %d fragments", i, total, len(fragments))
		}
		out = append(out, stripped[fragmentHeaderSize:]...)
	}
	return out, nil
}

// looksLikeFragmentHeader is a best-effort heuristic used only to
// decide whether a lone envelope is a degenerate one-fragment message
// (total==1) or a genuinely unfragmented payload. Callers that know
// which case they're in should prefer tracking it out of band.
func looksLikeFragmentHeader(stripped []byte) bool {
	if len(stripped) < fragmentHeaderSize {
		return false
	}
	total := binary.BigEndian.Uint16(stripped[2:4])
	return total == 1
}
