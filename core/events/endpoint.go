package events

const (
	// KindSpeechStarted identifies the onset of a speech episode.
	KindSpeechStarted Kind = "endpoint.speech_started"
	// KindSpeechEnded identifies the end of a speech episode after sustained silence.
	KindSpeechEnded Kind = "endpoint.speech_ended"
	// KindStillSilent identifies a frame classified as silence outside a speech episode.
	KindStillSilent Kind = "endpoint.still_silent"
)

// SpeechStarted marks the detected onset of user speech.
type SpeechStarted struct{ Base }

func (e SpeechStarted) String() string { return "speech started" }

// NewSpeechStarted creates a speech onset event.
func NewSpeechStarted() SpeechStarted {
	return SpeechStarted{Base: NewBase(KindSpeechStarted)}
}

// SpeechEnded marks the end of user speech after the configured pause.
type SpeechEnded struct{ Base }

func (e SpeechEnded) String() string { return "speech ended" }

// NewSpeechEnded creates a speech ended event.
func NewSpeechEnded() SpeechEnded {
	return SpeechEnded{Base: NewBase(KindSpeechEnded)}
}

// StillSilent marks a silent frame observed while no speech episode is open.
type StillSilent struct{ Base }

func (e StillSilent) String() string { return "still silent" }

// NewStillSilent creates a silence heartbeat event.
func NewStillSilent() StillSilent {
	return StillSilent{Base: NewBase(KindStillSilent)}
}
