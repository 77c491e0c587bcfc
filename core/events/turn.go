package events

const (
	// KindTurnStateChanged identifies a turn state machine transition.
	KindTurnStateChanged Kind = "turn.state_changed"
	// KindPlaybackEnded identifies completion or interruption of reply playback.
	KindPlaybackEnded Kind = "playback.ended"
)

// TurnStateChanged reports a transition of the turn state machine. State
// names follow the orchestration package's TurnState stringer.
type TurnStateChanged struct {
	Base
	From string
	To   string
}

// NewTurnStateChanged creates a turn state transition event.
func NewTurnStateChanged(from, to string) TurnStateChanged {
	return TurnStateChanged{Base: NewBase(KindTurnStateChanged), From: from, To: to}
}

// PlaybackEnded reports that reply playback reached a terminal outcome.
// Interrupted is true when the playback was stopped by barge-in rather than
// running to completion; the two outcomes are mutually exclusive.
type PlaybackEnded struct {
	Base
	Text        string
	Interrupted bool
}

// NewPlaybackEnded creates a playback terminal outcome event.
func NewPlaybackEnded(text string, interrupted bool) PlaybackEnded {
	return PlaybackEnded{Base: NewBase(KindPlaybackEnded), Text: text, Interrupted: interrupted}
}
