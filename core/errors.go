package orchestration

import (
	"errors"
	"fmt"
)

var (
	// ErrCaptureDevice reports a fatal input device failure; it ends the session.
	ErrCaptureDevice = errors.New("audio capture device unavailable")
	// ErrPlaybackDevice reports an output device failure during playback; the
	// turn is cut short and the orchestrator returns to idle.
	ErrPlaybackDevice = errors.New("audio playback device unavailable")
	// ErrUtteranceTooShort reports an utterance below the configured minimum
	// duration; it is treated as noise and never reaches the transcriber.
	ErrUtteranceTooShort = errors.New("utterance below minimum duration")
	// ErrEmptyTranscript reports a transcription that produced no usable text;
	// the turn is abandoned without a history entry.
	ErrEmptyTranscript = errors.New("transcription produced no usable text")
	// ErrClosed reports an operation on an orchestrator that has been closed.
	ErrClosed = errors.New("orchestrator closed")
)

// Stage identifies which external capability a failure belongs to.
type Stage string

const (
	StageTranscription Stage = "transcription"
	StageGeneration    Stage = "generation"
	StageSynthesis     Stage = "synthesis"
)

// CapabilityError wraps a failure from an external capability call after its
// retry budget is exhausted. The turn is abandoned; a user transcript already
// committed to history is preserved only when the failed stage ran after
// transcription.
type CapabilityError struct {
	Stage Stage
	Err   error
}

func (e *CapabilityError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Stage, e.Err)
}

func (e *CapabilityError) Unwrap() error { return e.Err }

func newCapabilityError(stage Stage, err error) *CapabilityError {
	return &CapabilityError{Stage: stage, Err: err}
}
