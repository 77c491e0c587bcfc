package orchestration

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"

	"github.com/voxloop/voxloop/core/audio"
)

// AudioInput is a capture device that streams raw audio frames. Stream
// blocks until the context is cancelled or the device fails; frames are
// delivered through onAudio in capture order.
type AudioInput interface {
	EncodingInfo() audio.EncodingInfo
	Stream(ctx context.Context, onAudio func(audio []byte)) error
	Close() error
}

// audioInput wraps the configured capture client so orchestration code never
// deals with an absent device directly. Methods are nil-safe and capture
// state is tracked atomically because the device callback runs on its own
// goroutine.
type audioInput struct {
	base AudioInput

	isCapturing atomic.Bool

	// onInputAudio receives every captured frame. Frames arriving after a
	// close are dropped.
	onInputAudio func(audio []byte)
	// onFailure is called when the capture stream dies unexpectedly.
	onFailure func(err error)
}

func newAudioInput(client AudioInput, onInputAudio func(audio []byte)) *audioInput {
	if onInputAudio == nil {
		onInputAudio = func([]byte) {}
	}

	return &audioInput{
		base:         client,
		onInputAudio: onInputAudio,
		onFailure:    func(error) {},
	}
}

func (a *audioInput) isConfigured() bool { return a != nil && a.base != nil }

func (a *audioInput) setFailureCallback(onFailure func(err error)) {
	if a == nil {
		return
	}

	if onFailure != nil {
		a.onFailure = onFailure
	}
}

// Capture starts the device stream on its own goroutine. Repeated calls
// while a stream is live are no-ops.
func (a *audioInput) Capture(ctx context.Context) error {
	if !a.isConfigured() {
		return fmt.Errorf("%w: no input configured", ErrCaptureDevice)
	}

	if !a.isCapturing.CompareAndSwap(false, true) {
		return nil
	}

	go func() {
		if err := a.base.Stream(ctx, a.onAudio); err != nil {
			a.isCapturing.Store(false)
			if ctx.Err() != nil {
				return
			}
			log.Printf("Audio capture stream failed: %v", err)
			a.onFailure(fmt.Errorf("%w: %w", ErrCaptureDevice, err))
		}
	}()
	return nil
}

func (a *audioInput) IsCapturing() bool { return a != nil && a.isCapturing.Load() }

func (a *audioInput) Close() error {
	if !a.isConfigured() {
		return nil
	}

	a.isCapturing.Store(false)
	if err := a.base.Close(); err != nil {
		return fmt.Errorf("failed to close audio input: %w", err)
	}
	return nil
}

func (a *audioInput) EncodingInfo() audio.EncodingInfo {
	if !a.isConfigured() {
		return audio.GetDefaultEncodingInfo()
	}

	return a.base.EncodingInfo()
}

func (a *audioInput) onAudio(frame []byte) {
	if !a.IsCapturing() {
		return
	}

	a.onInputAudio(frame)
}
