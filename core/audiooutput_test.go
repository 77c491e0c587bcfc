package orchestration

import (
	"errors"
	"testing"
)

type failingOutput struct {
	recordingOutput
	sendErr error
}

func (o *failingOutput) SendAudio(chunk []byte) error { return o.sendErr }

func TestAudioOutputTreatsTypedNilAsUnconfigured(t *testing.T) {
	var client *failingOutput
	output := newAudioOutput(client)

	if output.isConfigured() {
		t.Fatal("typed-nil client must not count as configured")
	}
	if err := output.SendAudio([]byte{1, 2}); err != nil {
		t.Fatalf("unconfigured output should drop audio silently, got %v", err)
	}
}

func TestAudioOutputWrapsDeviceErrors(t *testing.T) {
	output := newAudioOutput(&failingOutput{sendErr: errors.New("device gone")})

	err := output.SendAudio([]byte{1, 2})
	if !errors.Is(err, ErrPlaybackDevice) {
		t.Fatalf("send error not classified as playback device error: %v", err)
	}
}

func TestAudioOutputNilSafe(t *testing.T) {
	var output *audioOutput

	if output.isConfigured() {
		t.Fatal("nil facade must not count as configured")
	}
	output.Set(&recordingOutput{})
}
