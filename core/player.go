package orchestration

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/voxloop/voxloop/core/audio"
)

// playbackOutcome summarizes how a playback run finished.
type playbackOutcome struct {
	// interrupted reports whether Stop cut playback short. When a stop
	// request races with natural completion, the stop wins and the outcome
	// is reported as interrupted.
	interrupted bool
	// err is set when the output device failed mid-playback.
	err error
}

// turnPlayer plays one reply's audio on the configured output, in chunks, so
// a stop request takes effect within one chunk rather than after the whole
// reply. Each turn gets a fresh player; Stop is idempotent and safe from any
// goroutine.
type turnPlayer struct {
	output   *audioOutput
	encoding audio.EncodingInfo

	// chunkDuration bounds stop latency: Stop is observed between chunks.
	chunkDuration time.Duration

	stopped  atomic.Bool
	stopOnce sync.Once

	done chan playbackOutcome
}

const defaultPlaybackChunk = 100 * time.Millisecond

func newTurnPlayer(output *audioOutput, encoding audio.EncodingInfo) *turnPlayer {
	return &turnPlayer{
		output:        output,
		encoding:      encoding,
		chunkDuration: defaultPlaybackChunk,
		done:          make(chan playbackOutcome, 1),
	}
}

// Play streams the reply audio to the output in chunks, pacing writes to
// real time so the stop flag is observed with bounded latency even when the
// output device buffers aggressively. It blocks until the audio has been
// fully handed off or a stop request arrives, then publishes the outcome on
// Done exactly once.
func (p *turnPlayer) Play(replyAudio []byte) {
	chunkBytes := p.encoding.Bytes(p.chunkDuration)
	if chunkBytes <= 0 {
		chunkBytes = len(replyAudio)
	}

	for offset := 0; offset < len(replyAudio); offset += chunkBytes {
		if p.stopped.Load() {
			p.finish(playbackOutcome{interrupted: true})
			return
		}

		end := offset + chunkBytes
		if end > len(replyAudio) {
			end = len(replyAudio)
		}
		if err := p.output.SendAudio(replyAudio[offset:end]); err != nil {
			p.finish(playbackOutcome{err: err})
			return
		}

		time.Sleep(p.encoding.Duration(end - offset))
	}

	// Stop may have arrived while the final chunk was draining; the stop
	// request is authoritative over natural completion.
	p.finish(playbackOutcome{interrupted: p.stopped.Load()})
}

// Stop requests playback to halt and clears any audio the output device has
// not yet played. Safe to call multiple times and concurrently with Play.
func (p *turnPlayer) Stop() {
	p.stopOnce.Do(func() {
		p.stopped.Store(true)
		p.output.ClearBuffer()
		p.finish(playbackOutcome{interrupted: true})
	})
}

// Done delivers the playback outcome exactly once.
func (p *turnPlayer) Done() <-chan playbackOutcome {
	return p.done
}

func (p *turnPlayer) finish(outcome playbackOutcome) {
	select {
	case p.done <- outcome:
	default:
	}
}
