package audio

import (
	"encoding/binary"
	"math"
	"testing"
	"time"
)

func pcmFrame(samples ...int16) []byte {
	frame := make([]byte, len(samples)*2)
	for i, sample := range samples {
		binary.LittleEndian.PutUint16(frame[i*2:i*2+2], uint16(sample))
	}
	return frame
}

func TestRMSSilenceIsZero(t *testing.T) {
	encoding := GetDefaultEncodingInfo()

	if got := RMS(pcmFrame(0, 0, 0, 0), encoding); got != 0 {
		t.Fatalf("expected zero energy for silence, got %f", got)
	}
}

func TestRMSConstantAmplitude(t *testing.T) {
	encoding := GetDefaultEncodingInfo()

	got := RMS(pcmFrame(1000, -1000, 1000, -1000), encoding)
	if math.Abs(got-1000) > 0.001 {
		t.Fatalf("expected energy 1000 for constant amplitude, got %f", got)
	}
}

func TestRMSNonLinear16ReportsZero(t *testing.T) {
	encoding := EncodingInfo{SampleRate: 8000, Format: EncodingMulaw}

	if got := RMS([]byte{0x12, 0x34, 0x56, 0x78}, encoding); got != 0 {
		t.Fatalf("expected zero energy for non-linear16 frame, got %f", got)
	}
}

func TestEncodingDurationRoundTrip(t *testing.T) {
	encoding := GetDefaultEncodingInfo()

	byteCount := encoding.Bytes(100 * time.Millisecond)
	if byteCount != 3200 {
		t.Fatalf("expected 3200 bytes for 100ms of linear16 at 16kHz, got %d", byteCount)
	}
	if got := encoding.Duration(byteCount); got != 100*time.Millisecond {
		t.Fatalf("expected 100ms, got %s", got)
	}
}
