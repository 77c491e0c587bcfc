package events

const (
	// KindFrameCaptured identifies a raw audio frame pulled from the input device.
	KindFrameCaptured Kind = "capture.frame_captured"
	// KindCaptureFailed identifies a fatal input device failure.
	KindCaptureFailed Kind = "capture.failed"
)

// FrameCaptured carries one fixed-size audio frame from the input device.
type FrameCaptured struct {
	Base
	Audio []byte
}

// NewFrameCaptured creates a captured-frame event. The frame is owned by the
// event from this point on and must not be mutated by the producer.
func NewFrameCaptured(audio []byte) FrameCaptured {
	return FrameCaptured{Base: NewBase(KindFrameCaptured), Audio: audio}
}

// CaptureFailed marks the input device as unusable. The session ends once the
// orchestrator consumes it.
type CaptureFailed struct {
	Base
	Err error
}

// NewCaptureFailed creates a capture failure event.
func NewCaptureFailed(err error) CaptureFailed {
	return CaptureFailed{Base: NewBase(KindCaptureFailed), Err: err}
}
