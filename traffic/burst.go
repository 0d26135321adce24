package traffic

import "time"

// BurstConfig controls the cover packets sent immediately before and
// after a real message to mask message-burst patterns such as typing
// indicators.
type BurstConfig struct {
	// PreBurstCount is the number of cover packets sent before the real message.
	PreBurstCount uint8
	// PostBurstCount is the number of cover packets sent after the real message.
	PostBurstCount uint8
	// InterPacketDelayMin/Max bound the random gap between burst packets.
	InterPacketDelayMin time.Duration
	InterPacketDelayMax time.Duration
	// Enabled disables burst padding entirely when false; GenerateBurst
	// then returns no packets regardless of the counts above.
	Enabled bool
}

// DefaultBurstConfig matches the balanced-profile defaults: 2 packets
// before, 3 after, 50-200ms gaps.
func DefaultBurstConfig() BurstConfig {
	return BurstConfig{
		PreBurstCount:       2,
		PostBurstCount:      3,
		InterPacketDelayMin: 50 * time.Millisecond,
		InterPacketDelayMax: 200 * time.Millisecond,
		Enabled:             true,
	}
}

// GenerateBurst returns (pre, post) padded cover envelopes to send
// around a real message: pre before it, post after it. The caller is
// responsible for sleeping a RandomInterPacketDelay between each send.
func (c BurstConfig) GenerateBurst(envelopeSize int) (pre, post [][]byte, err error) {
	if !c.Enabled {
		return nil, nil, nil
	}
	pre = make([][]byte, 0, c.PreBurstCount)
	for i := uint8(0); i < c.PreBurstCount; i++ {
		pkt, err := GenerateCoverPacket(envelopeSize)
		if err != nil {
			return nil, nil, err
		}
		pre = append(pre, pkt)
	}
	post = make([][]byte, 0, c.PostBurstCount)
	for i := uint8(0); i < c.PostBurstCount; i++ {
		pkt, err := GenerateCoverPacket(envelopeSize)
		if err != nil {
			return nil, nil, err
		}
		post = append(post, pkt)
	}
	return pre, post, nil
}

// RandomInterPacketDelay returns a random gap in
// [InterPacketDelayMin, InterPacketDelayMax] for spacing out burst packets.
func (c BurstConfig) RandomInterPacketDelay() time.Duration {
	return randomDurationInRange(c.InterPacketDelayMin, c.InterPacketDelayMax)
}
