package orchestration

import (
	"time"

	"github.com/voxloop/voxloop/core/events"
)

type OrchestratorOption func(*Orchestrator)

// WithAudioInput configures the capture device frames are pulled from.
func WithAudioInput(client AudioInput) OrchestratorOption {
	return func(o *Orchestrator) {
		o.input = newAudioInput(client, o.enqueueFrame)
	}
}

// WithAudioOutput configures the playback device replies are spoken on.
func WithAudioOutput(client AudioOutput) OrchestratorOption {
	return func(o *Orchestrator) {
		o.output.Set(client)
	}
}

// WithTranscriber configures the speech-to-text capability.
func WithTranscriber(client Transcriber) OrchestratorOption {
	return func(o *Orchestrator) {
		o.transcriber = client
	}
}

// WithAgent configures the reply-generation capability.
func WithAgent(client Agent) OrchestratorOption {
	return func(o *Orchestrator) {
		o.agent = client
	}
}

// WithSynthesizer configures the text-to-speech capability.
func WithSynthesizer(client Synthesizer) OrchestratorOption {
	return func(o *Orchestrator) {
		o.synthesizer = client
	}
}

// WithEnergyThreshold sets the RMS energy separating silence from speech,
// on the int16 sample scale.
func WithEnergyThreshold(threshold float64) OrchestratorOption {
	return func(o *Orchestrator) {
		o.energyThreshold = threshold
	}
}

// WithPauseDuration sets how much sustained silence after speech ends an
// utterance.
func WithPauseDuration(duration time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		o.pauseDuration = duration
	}
}

// WithMinUtteranceDuration sets the shortest utterance worth transcribing;
// anything shorter is dropped as noise.
func WithMinUtteranceDuration(duration time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		o.minUtteranceDuration = duration
	}
}

// WithBargeIn controls whether user speech during playback interrupts the
// reply. Enabled by default.
func WithBargeIn(enabled bool) OrchestratorOption {
	return func(o *Orchestrator) {
		o.bargeInEnabled = enabled
	}
}

// WithCallTimeout bounds each transcription, generation, and synthesis call.
func WithCallTimeout(timeout time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		o.runner.callTimeout = timeout
	}
}

// WithMaxRetries sets how many additional attempts a failed capability call
// gets before the turn is abandoned.
func WithMaxRetries(retries uint64) OrchestratorOption {
	return func(o *Orchestrator) {
		o.runner.maxRetries = retries
	}
}

// WithMinConfidence sets the transcript confidence below which a turn is
// treated the same as an empty transcript and silently abandoned.
func WithMinConfidence(confidence float64) OrchestratorOption {
	return func(o *Orchestrator) {
		o.minConfidence = confidence
	}
}

// WithInitialMessage makes the orchestrator speak a greeting before
// listening for the first utterance.
func WithInitialMessage(text string) OrchestratorOption {
	return func(o *Orchestrator) {
		o.initialMessage = text
	}
}

// WithApology makes the orchestrator speak a short notice when reply
// generation fails, instead of returning to listening silently.
func WithApology(text string) OrchestratorOption {
	return func(o *Orchestrator) {
		o.apologyMessage = text
	}
}

// WithEndPhrases replaces the phrases that end the conversation when they
// appear in a reply. Matching is case-insensitive on substrings.
func WithEndPhrases(phrases ...string) OrchestratorOption {
	return func(o *Orchestrator) {
		o.endPhrases = phrases
	}
}

// WithAmbientCalibration samples ambient noise for the given duration on
// startup and raises the energy threshold above the measured floor.
func WithAmbientCalibration(duration time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		o.calibrationDuration = duration
	}
}

// WithTranscriptCallback is called with each transcript committed as a user
// turn.
func WithTranscriptCallback(callback func(transcript string)) OrchestratorOption {
	return func(o *Orchestrator) {
		if callback != nil {
			o.onTranscript = callback
		}
	}
}

// WithReplyCallback is called with each generated reply, including replies
// whose synthesis later fails.
func WithReplyCallback(callback func(reply string)) OrchestratorOption {
	return func(o *Orchestrator) {
		if callback != nil {
			o.onReply = callback
		}
	}
}

// WithStateChangeCallback observes every turn state transition.
func WithStateChangeCallback(callback func(from, to TurnState)) OrchestratorOption {
	return func(o *Orchestrator) {
		if callback != nil {
			o.onStateChange = callback
		}
	}
}

// WithPlaybackEndedCallback is called when a reply finishes playing or is
// interrupted.
func WithPlaybackEndedCallback(callback func(text string, interrupted bool)) OrchestratorOption {
	return func(o *Orchestrator) {
		if callback != nil {
			o.onPlaybackEnded = callback
		}
	}
}

// WithEventCallback observes the orchestrator's event stream: endpointing
// boundaries, state transitions, playback outcomes, capture failures.
func WithEventCallback(callback func(event events.Event)) OrchestratorOption {
	return func(o *Orchestrator) {
		if callback != nil {
			o.emitEvent = callback
		}
	}
}

// WithUtteranceRecorder stores every transcribed utterance's audio, for
// debugging endpointing behavior.
func WithUtteranceRecorder(recorder UtteranceRecorder) OrchestratorOption {
	return func(o *Orchestrator) {
		o.recorder = recorder
	}
}
