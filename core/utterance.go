package orchestration

import (
	"time"

	"github.com/voxloop/voxloop/core/audio"
)

// Utterance is one contiguous span of captured audio bounded by detected
// speech onset and sustained silence. Frames are immutable once appended;
// the orchestrator owns the utterance for the duration of one turn.
type Utterance struct {
	frames   [][]byte
	byteSize int

	encoding audio.EncodingInfo
}

func newUtterance(encoding audio.EncodingInfo) *Utterance {
	return &Utterance{encoding: encoding}
}

func (u *Utterance) append(frame []byte) {
	if len(frame) == 0 {
		return
	}
	u.frames = append(u.frames, frame)
	u.byteSize += len(frame)
}

// EncodingInfo returns the encoding the frames were captured with.
func (u *Utterance) EncodingInfo() audio.EncodingInfo { return u.encoding }

// Duration returns the total audio duration accumulated so far.
func (u *Utterance) Duration() time.Duration {
	return u.encoding.Duration(u.byteSize)
}

// Len returns the number of accumulated frames.
func (u *Utterance) Len() int { return len(u.frames) }

// IsEmpty reports whether no audio has been accumulated.
func (u *Utterance) IsEmpty() bool { return u == nil || u.byteSize == 0 }

// Bytes flattens the accumulated frames into a single PCM buffer.
func (u *Utterance) Bytes() []byte {
	buffer := make([]byte, 0, u.byteSize)
	for _, frame := range u.frames {
		buffer = append(buffer, frame...)
	}
	return buffer
}

// Frames returns the accumulated frames in capture order. The returned slice
// shares the underlying frame payloads; callers must not mutate them.
func (u *Utterance) Frames() [][]byte {
	frames := make([][]byte, len(u.frames))
	copy(frames, u.frames)
	return frames
}

// drainInto moves every accumulated frame to the head of target, preserving
// capture order, and resets the receiver. Used for the barge-in carry-forward
// and for pending audio queued while a turn pipeline was busy.
func (u *Utterance) drainInto(target *Utterance) {
	for _, frame := range u.frames {
		target.append(frame)
	}
	u.frames = nil
	u.byteSize = 0
}
