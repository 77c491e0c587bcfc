package audio

import (
	"encoding/binary"
	"math"
)

// RMS computes the root-mean-square energy of a linear16 little-endian frame.
//
// The value is on the int16 sample scale (0..32767), matching the energy
// thresholds used for endpointing. Non-linear16 frames and frames shorter
// than one sample report zero energy and are treated as silence.
func RMS(frame []byte, encoding EncodingInfo) float64 {
	if encoding.Format != EncodingLinear16 || len(frame) < 2 {
		return 0
	}

	var sum float64
	sampleCount := len(frame) / 2
	for i := 0; i < sampleCount; i++ {
		sample := float64(int16(binary.LittleEndian.Uint16(frame[i*2 : i*2+2])))
		sum += sample * sample
	}

	return math.Sqrt(sum / float64(sampleCount))
}
