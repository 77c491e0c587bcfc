package orchestration

import (
	"fmt"
	"log"
	"reflect"

	"github.com/voxloop/voxloop/core/audio"
)

// AudioOutput is a playback device. SendAudio enqueues a chunk for playback
// and may block until the device has buffer room; ClearBuffer discards
// everything enqueued but not yet played.
type AudioOutput interface {
	EncodingInfo() audio.EncodingInfo
	SendAudio(chunk []byte) error
	ClearBuffer() error
}

// audioOutput wraps the configured playback client behind nil-safe methods.
// Send errors are propagated so the player can treat a dying device as an
// immediate stop; clear errors are logged because a failed flush must not
// mask the interruption that triggered it.
type audioOutput struct {
	base AudioOutput
}

func newAudioOutput(client AudioOutput) *audioOutput {
	out := &audioOutput{}
	out.Set(client)
	return out
}

// Set replaces the configured output client. Nil and typed-nil clients are
// treated as unconfigured.
func (a *audioOutput) Set(client AudioOutput) {
	if a == nil {
		return
	}

	if isNilAudioOutput(client) {
		a.base = nil
		return
	}
	a.base = client
}

func (a *audioOutput) isConfigured() bool { return a != nil && a.base != nil }

func (a *audioOutput) SendAudio(chunk []byte) error {
	if !a.isConfigured() {
		return nil
	}

	if err := a.base.SendAudio(chunk); err != nil {
		return fmt.Errorf("%w: %w", ErrPlaybackDevice, err)
	}
	return nil
}

func (a *audioOutput) ClearBuffer() {
	if !a.isConfigured() {
		return
	}

	if err := a.base.ClearBuffer(); err != nil {
		log.Printf("Failed to clear output buffer: %v", err)
	}
}

func (a *audioOutput) EncodingInfo() audio.EncodingInfo {
	if !a.isConfigured() {
		return audio.GetDefaultEncodingInfo()
	}

	return a.base.EncodingInfo()
}

// Close shuts the output down when the client supports it.
func (a *audioOutput) Close() error {
	if !a.isConfigured() {
		return nil
	}

	switch c := a.base.(type) {
	case interface{ Close() error }:
		if err := c.Close(); err != nil {
			return fmt.Errorf("failed to close audio output: %w", err)
		}
	case interface{ Close() }:
		c.Close()
	}
	return nil
}

// isNilAudioOutput reports whether client is nil or a typed-nil interface
// value, both of which must be treated as unconfigured.
func isNilAudioOutput(client AudioOutput) bool {
	if client == nil {
		return true
	}

	value := reflect.ValueOf(client)
	switch value.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Chan, reflect.Func, reflect.Interface:
		return value.IsNil()
	}
	return false
}
