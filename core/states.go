package orchestration

// TurnState enumerates the phases of one conversation turn. The orchestrator
// owns the state and transitions it on its own goroutine only.
type TurnState int

const (
	// StateIdle is the rest state between turns.
	StateIdle TurnState = iota
	// StateListening means frames are accumulating into the current utterance.
	StateListening
	// StateTranscribing means the finished utterance is with the transcriber.
	StateTranscribing
	// StateGenerating means the transcript is with the agent.
	StateGenerating
	// StateSynthesizing means the reply text is with the synthesizer.
	StateSynthesizing
	// StateSpeaking means reply audio is playing while barge-in sensing runs.
	StateSpeaking
	// StateInterrupted means playback was stopped by user speech onset.
	StateInterrupted
	// StateTerminal means the conversation ended; no further listening occurs.
	StateTerminal
)

func (s TurnState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateListening:
		return "listening"
	case StateTranscribing:
		return "transcribing"
	case StateGenerating:
		return "generating"
	case StateSynthesizing:
		return "synthesizing"
	case StateSpeaking:
		return "speaking"
	case StateInterrupted:
		return "interrupted"
	case StateTerminal:
		return "terminal"
	}
	return "unknown"
}
