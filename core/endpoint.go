package orchestration

import (
	"time"

	"github.com/voxloop/voxloop/core/audio"
	"github.com/voxloop/voxloop/core/events"
)

// endpointDetector decides where speech starts and ends within a continuous
// frame stream. Each frame is classified as speech or silence by comparing
// its short-term RMS energy to the configured threshold; once a speech
// episode is open, sustained silence of at least the pause duration closes
// it.
//
// Onset requires a short run of consecutive speech frames so isolated
// energy spikes (clicks, echo tails) do not open an episode. The frames of
// that run are buffered and released with the onset event so no audio at the
// utterance boundary is lost. The detector is single-goroutine; the
// orchestrator feeds it synchronously on frame arrival.
type endpointDetector struct {
	encoding        audio.EncodingInfo
	energyThreshold float64
	pauseDuration   time.Duration

	// onsetFrames is the consecutive speech frame count that opens an episode.
	onsetFrames int

	inSpeech  bool
	speechRun int
	silence   time.Duration

	// buffered holds onset-run frames not yet released to the consumer, plus
	// any frames fed after an episode ended but before the detector is re-armed.
	buffered [][]byte
}

const defaultOnsetFrames = 3

func newEndpointDetector(encoding audio.EncodingInfo, energyThreshold float64, pauseDuration time.Duration) *endpointDetector {
	return &endpointDetector{
		encoding:        encoding,
		energyThreshold: energyThreshold,
		pauseDuration:   pauseDuration,
		onsetFrames:     defaultOnsetFrames,
	}
}

// feed classifies one frame and advances the episode state. It returns a
// boundary event (SpeechStarted, SpeechEnded), a StillSilent heartbeat, or
// nil while an open episode simply continues.
func (d *endpointDetector) feed(frame []byte) events.Event {
	if len(frame) == 0 {
		return nil
	}

	isSpeech := audio.RMS(frame, d.encoding) >= d.energyThreshold
	frameDuration := d.encoding.Duration(len(frame))

	if !d.inSpeech {
		if !isSpeech {
			d.speechRun = 0
			d.buffered = nil
			return events.NewStillSilent()
		}

		d.speechRun++
		d.buffered = append(d.buffered, frame)
		if d.speechRun < d.onsetFrames {
			return nil
		}

		d.inSpeech = true
		d.speechRun = 0
		d.silence = 0
		return events.NewSpeechStarted()
	}

	d.buffered = append(d.buffered, frame)
	if isSpeech {
		d.silence = 0
		return nil
	}

	d.silence += frameDuration
	if d.silence < d.pauseDuration {
		return nil
	}

	d.inSpeech = false
	d.silence = 0
	return events.NewSpeechEnded()
}

// drainBuffered hands over every frame accumulated since the last drain, in
// capture order. The consumer calls this on SpeechStarted to seed the
// utterance with the onset run, and again after SpeechEnded to collect
// anything fed before acknowledgement.
func (d *endpointDetector) drainBuffered() [][]byte {
	frames := d.buffered
	d.buffered = nil
	return frames
}

// reset re-arms the detector for the next episode with no residual state.
func (d *endpointDetector) reset() {
	d.inSpeech = false
	d.speechRun = 0
	d.silence = 0
	d.buffered = nil
}

// setThreshold replaces the energy threshold, used by ambient calibration.
func (d *endpointDetector) setThreshold(threshold float64) {
	d.energyThreshold = threshold
}
