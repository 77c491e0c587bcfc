package orchestration

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/youpy/go-wav"

	"github.com/voxloop/voxloop/core/audio"
)

// UtteranceRecorder stores the audio of each utterance the orchestrator
// sends to transcription. Recording is best-effort: failures are logged by
// the orchestrator and never affect the turn.
type UtteranceRecorder interface {
	Record(utteranceAudio []byte, encoding audio.EncodingInfo) error
}

// WAVRecorder writes each utterance to a timestamped WAV file in a
// directory, for replaying endpointing decisions offline.
type WAVRecorder struct {
	dir string
}

func NewWAVRecorder(dir string) *WAVRecorder {
	return &WAVRecorder{dir: dir}
}

func (r *WAVRecorder) Record(utteranceAudio []byte, encoding audio.EncodingInfo) error {
	if encoding.Format != audio.EncodingLinear16 {
		return fmt.Errorf("unsupported encoding %q for wav recording", encoding.Format.Name())
	}

	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create recording directory: %w", err)
	}

	name := fmt.Sprintf("utterance-%s.wav", time.Now().Format("20060102-150405.000"))
	file, err := os.Create(filepath.Join(r.dir, name))
	if err != nil {
		return fmt.Errorf("failed to create recording file: %w", err)
	}
	defer file.Close()

	numSamples := uint32(len(utteranceAudio) / 2)
	writer := wav.NewWriter(file, numSamples, 1, uint32(encoding.SampleRate), 16)
	if _, err := writer.Write(utteranceAudio); err != nil {
		return fmt.Errorf("failed to write recording: %w", err)
	}

	return nil
}
