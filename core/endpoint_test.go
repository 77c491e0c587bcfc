package orchestration

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/voxloop/voxloop/core/audio"
	"github.com/voxloop/voxloop/core/events"
)

var testEncoding = audio.EncodingInfo{
	SampleRate: 16000,
	Format:     audio.EncodingLinear16,
}

// frame builds 30ms of constant-amplitude linear16 audio.
func frame(amplitude int16) []byte {
	samples := testEncoding.SampleRate * 30 / 1000
	out := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(amplitude))
	}
	return out
}

func TestEndpointDetectorSilenceStaysSilent(t *testing.T) {
	d := newEndpointDetector(testEncoding, 300, 500*time.Millisecond)

	for i := 0; i < 20; i++ {
		event := d.feed(frame(0))
		if _, ok := event.(events.StillSilent); !ok {
			t.Fatalf("expected StillSilent on frame %d, got %T", i, event)
		}
	}
}

func TestEndpointDetectorOnsetRequiresConsecutiveFrames(t *testing.T) {
	d := newEndpointDetector(testEncoding, 300, 500*time.Millisecond)

	// Two speech frames, then a silent one: the run resets, no onset.
	if event := d.feed(frame(1000)); event != nil {
		t.Fatalf("expected nil during onset run, got %T", event)
	}
	if event := d.feed(frame(1000)); event != nil {
		t.Fatalf("expected nil during onset run, got %T", event)
	}
	if event := d.feed(frame(0)); event == nil {
		t.Fatal("expected StillSilent after run reset, got nil")
	}

	// Three consecutive speech frames open the episode.
	d.feed(frame(1000))
	d.feed(frame(1000))
	event := d.feed(frame(1000))
	if _, ok := event.(events.SpeechStarted); !ok {
		t.Fatalf("expected SpeechStarted, got %T", event)
	}

	// The onset run is preserved for the consumer.
	buffered := d.drainBuffered()
	if len(buffered) != 3 {
		t.Fatalf("expected 3 buffered onset frames, got %d", len(buffered))
	}
}

func TestEndpointDetectorEndsAfterPause(t *testing.T) {
	d := newEndpointDetector(testEncoding, 300, 500*time.Millisecond)

	d.feed(frame(1000))
	d.feed(frame(1000))
	if event := d.feed(frame(1000)); event == nil {
		t.Fatal("expected SpeechStarted")
	}
	d.drainBuffered()

	// 500ms of silence at 30ms per frame needs 17 frames.
	var ended bool
	for i := 0; i < 17; i++ {
		if event := d.feed(frame(0)); event != nil {
			if _, ok := event.(events.SpeechEnded); !ok {
				t.Fatalf("unexpected event %T during pause", event)
			}
			ended = true
		}
	}
	if !ended {
		t.Fatal("expected SpeechEnded after pause duration of silence")
	}

	if got := len(d.drainBuffered()); got != 17 {
		t.Fatalf("expected 17 buffered frames after episode, got %d", got)
	}
}

func TestEndpointDetectorBriefPauseContinuesEpisode(t *testing.T) {
	d := newEndpointDetector(testEncoding, 300, 500*time.Millisecond)

	d.feed(frame(1000))
	d.feed(frame(1000))
	d.feed(frame(1000))

	// 300ms of silence is shorter than the pause duration.
	for i := 0; i < 10; i++ {
		if event := d.feed(frame(0)); event != nil {
			t.Fatalf("episode should stay open, got %T", event)
		}
	}

	// Speech resumes and resets the silence clock.
	if event := d.feed(frame(1000)); event != nil {
		t.Fatalf("expected nil on resumed speech, got %T", event)
	}

	for i := 0; i < 10; i++ {
		if event := d.feed(frame(0)); event != nil {
			t.Fatalf("silence clock should have reset, got %T", event)
		}
	}
}

func TestEndpointDetectorReset(t *testing.T) {
	d := newEndpointDetector(testEncoding, 300, 500*time.Millisecond)

	d.feed(frame(1000))
	d.feed(frame(1000))
	d.feed(frame(1000))
	d.reset()

	if event := d.feed(frame(0)); event == nil {
		t.Fatal("expected StillSilent after reset, got nil")
	}
	if got := len(d.drainBuffered()); got != 0 {
		t.Fatalf("expected no buffered frames after reset, got %d", got)
	}
}

func TestEndpointDetectorSetThreshold(t *testing.T) {
	d := newEndpointDetector(testEncoding, 300, 500*time.Millisecond)
	d.setThreshold(2000)

	// Amplitude 1000 is below the raised threshold.
	for i := 0; i < 5; i++ {
		event := d.feed(frame(1000))
		if _, ok := event.(events.StillSilent); !ok {
			t.Fatalf("expected StillSilent with raised threshold, got %T", event)
		}
	}
}
