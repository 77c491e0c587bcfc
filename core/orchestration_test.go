package orchestration

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/voxloop/voxloop/core/audio"
	"github.com/voxloop/voxloop/core/events"
)

type scriptedInput struct {
	frames    chan []byte
	closeOnce sync.Once
	closed    chan struct{}
}

func newScriptedInput() *scriptedInput {
	return &scriptedInput{
		frames: make(chan []byte, 1024),
		closed: make(chan struct{}),
	}
}

func (i *scriptedInput) EncodingInfo() audio.EncodingInfo { return testEncoding }

func (i *scriptedInput) Stream(ctx context.Context, onAudio func(audio []byte)) error {
	for {
		select {
		case frame := <-i.frames:
			onAudio(frame)
		case <-ctx.Done():
			return nil
		case <-i.closed:
			return nil
		}
	}
}

func (i *scriptedInput) Close() error {
	i.closeOnce.Do(func() { close(i.closed) })
	return nil
}

func (i *scriptedInput) push(frames ...[]byte) {
	for _, frame := range frames {
		i.frames <- frame
	}
}

// speechEpisode is onset plus enough speech to clear the default minimum
// utterance duration, followed by enough silence to end the episode.
func (i *scriptedInput) pushSpeechEpisode() {
	for n := 0; n < 12; n++ {
		i.push(frame(1000))
	}
	for n := 0; n < 20; n++ {
		i.push(frame(0))
	}
}

type fakeTranscriber struct {
	mu          sync.Mutex
	calls       int
	received    [][]byte
	transcripts []Transcript
	err         error

	// gate, when set, holds every Transcribe call open until the channel is
	// closed, so tests can push audio while a transcription is in flight.
	gate chan struct{}
}

func (f *fakeTranscriber) Transcribe(_ context.Context, utteranceAudio []byte, _ audio.EncodingInfo) (Transcript, error) {
	f.mu.Lock()
	f.calls++
	f.received = append(f.received, utteranceAudio)
	gate := f.gate
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return Transcript{}, f.err
	}
	if len(f.transcripts) == 0 {
		return Transcript{Text: "hello", Confidence: 1}, nil
	}
	transcript := f.transcripts[0]
	if len(f.transcripts) > 1 {
		f.transcripts = f.transcripts[1:]
	}
	return transcript, nil
}

func (f *fakeTranscriber) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeTranscriber) lastReceived() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.received) == 0 {
		return nil
	}
	return f.received[len(f.received)-1]
}

type fakeAgent struct {
	mu      sync.Mutex
	calls   int
	replies []string
	err     error
}

func (f *fakeAgent) Generate(_ context.Context, _ []HistoryEntry) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	if len(f.replies) == 0 {
		return "hi there", nil
	}
	reply := f.replies[0]
	if len(f.replies) > 1 {
		f.replies = f.replies[1:]
	}
	return reply, nil
}

func (f *fakeAgent) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeSynthesizer struct {
	mu    sync.Mutex
	calls int
	audio []byte
	err   error
}

func (f *fakeSynthesizer) Synthesize(_ context.Context, _ string, _ audio.EncodingInfo) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.audio, nil
}

func (f *fakeSynthesizer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type sessionHarness struct {
	orchestrator *Orchestrator
	input        *scriptedInput
	output       *recordingOutput
	transcriber  *fakeTranscriber
	agent        *fakeAgent
	synthesizer  *fakeSynthesizer

	states   chan TurnState
	playback chan bool

	runErr chan error
	cancel context.CancelFunc
}

func newSessionHarness(t *testing.T, opts ...OrchestratorOption) *sessionHarness {
	t.Helper()

	h := &sessionHarness{
		input:       newScriptedInput(),
		output:      &recordingOutput{},
		transcriber: &fakeTranscriber{},
		agent:       &fakeAgent{},
		synthesizer: &fakeSynthesizer{audio: make([]byte, testEncoding.Bytes(100*time.Millisecond))},
		states:      make(chan TurnState, 256),
		playback:    make(chan bool, 16),
		runErr:      make(chan error, 1),
	}

	options := []OrchestratorOption{
		WithAudioInput(h.input),
		WithAudioOutput(h.output),
		WithTranscriber(h.transcriber),
		WithAgent(h.agent),
		WithSynthesizer(h.synthesizer),
		WithStateChangeCallback(func(_, to TurnState) {
			select {
			case h.states <- to:
			default:
			}
		}),
		WithPlaybackEndedCallback(func(_ string, interrupted bool) {
			select {
			case h.playback <- interrupted:
			default:
			}
		}),
	}
	options = append(options, opts...)
	h.orchestrator = New(options...)

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() { h.runErr <- h.orchestrator.Run(ctx) }()
	t.Cleanup(func() {
		h.orchestrator.Close()
		cancel()
		select {
		case <-h.runErr:
		case <-time.After(5 * time.Second):
			t.Error("orchestrator did not shut down")
		}
	})

	return h
}

func (h *sessionHarness) awaitState(t *testing.T, want TurnState) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case state := <-h.states:
			if state == want {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for state %v", want)
		}
	}
}

func waitFor(t *testing.T, condition func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("timed out waiting for condition")
}

func (h *sessionHarness) awaitPlaybackEnded(t *testing.T) bool {
	t.Helper()
	select {
	case interrupted := <-h.playback:
		return interrupted
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for playback to end")
		return false
	}
}

func TestSilenceNeverTriggersTranscription(t *testing.T) {
	h := newSessionHarness(t)
	h.awaitState(t, StateListening)

	// The equivalent of 30 seconds of silent frames at 30ms each.
	for n := 0; n < 1000; n++ {
		h.input.push(frame(0))
	}

	time.Sleep(200 * time.Millisecond)
	if got := h.transcriber.callCount(); got != 0 {
		t.Fatalf("transcriber called %d times on pure silence", got)
	}
	if got := h.orchestrator.State(); got != StateListening {
		t.Fatalf("expected to remain in Listening, got %v", got)
	}
}

func TestCompletedTurnCommitsBothSpeakers(t *testing.T) {
	h := newSessionHarness(t)
	h.awaitState(t, StateListening)

	h.input.pushSpeechEpisode()

	interrupted := h.awaitPlaybackEnded(t)
	if interrupted {
		t.Fatal("uninterrupted playback reported as interrupted")
	}
	h.awaitState(t, StateIdle)

	history := h.orchestrator.History()
	if len(history) != 2 {
		t.Fatalf("expected 2 history entries, got %d", len(history))
	}
	if history[0].Speaker != SpeakerUser || history[0].Text != "hello" {
		t.Fatalf("unexpected user entry: %+v", history[0])
	}
	if history[1].Speaker != SpeakerAgent || history[1].Text != "hi there" {
		t.Fatalf("unexpected agent entry: %+v", history[1])
	}

	if got := h.output.sentBytes(); got != len(h.synthesizer.audio) {
		t.Fatalf("played %d bytes, want the full %d byte reply", got, len(h.synthesizer.audio))
	}
}

func TestEmptyTranscriptAbandonsTurn(t *testing.T) {
	h := newSessionHarness(t)
	h.transcriber.transcripts = []Transcript{{Text: "", Confidence: 1}}
	h.awaitState(t, StateListening)

	h.input.pushSpeechEpisode()

	h.awaitState(t, StateTranscribing)
	h.awaitState(t, StateIdle)

	if got := len(h.orchestrator.History()); got != 0 {
		t.Fatalf("history should be unchanged, got %d entries", got)
	}
	if got := h.agent.callCount(); got != 0 {
		t.Fatalf("agent called %d times for an empty transcript", got)
	}
	if got := h.synthesizer.callCount(); got != 0 {
		t.Fatalf("synthesizer called %d times for an empty transcript", got)
	}
}

func TestLowConfidenceTranscriptAbandonsTurn(t *testing.T) {
	h := newSessionHarness(t)
	h.transcriber.transcripts = []Transcript{{Text: "hello", Confidence: 0.1}}
	h.awaitState(t, StateListening)

	h.input.pushSpeechEpisode()

	h.awaitState(t, StateTranscribing)
	h.awaitState(t, StateIdle)

	if got := h.agent.callCount(); got != 0 {
		t.Fatalf("agent called %d times for a low-confidence transcript", got)
	}
}

func TestShortUtteranceDroppedAsNoise(t *testing.T) {
	h := newSessionHarness(t)
	h.awaitState(t, StateListening)

	// Three onset frames (90ms) then silence: below the minimum duration.
	h.input.push(frame(1000), frame(1000), frame(1000))
	for n := 0; n < 20; n++ {
		h.input.push(frame(0))
	}

	h.awaitState(t, StateIdle)
	if got := h.transcriber.callCount(); got != 0 {
		t.Fatalf("transcriber called %d times for sub-minimum utterance", got)
	}
}

func TestEndPhraseTerminatesSession(t *testing.T) {
	h := newSessionHarness(t)
	h.agent.replies = []string{"Goodbye!"}
	h.awaitState(t, StateListening)

	h.input.pushSpeechEpisode()

	select {
	case err := <-h.runErr:
		if err != nil {
			t.Fatalf("expected clean termination, got %v", err)
		}
		h.runErr <- nil
	case <-time.After(5 * time.Second):
		t.Fatal("session did not terminate on end phrase")
	}

	if got := h.orchestrator.State(); got != StateTerminal {
		t.Fatalf("expected Terminal state, got %v", got)
	}
}

func TestSynthesisFailureKeepsReplyInHistory(t *testing.T) {
	h := newSessionHarness(t, WithMaxRetries(1))
	h.synthesizer.err = errors.New("timeout")
	h.awaitState(t, StateListening)

	h.input.pushSpeechEpisode()

	h.awaitState(t, StateSynthesizing)
	h.awaitState(t, StateIdle)

	history := h.orchestrator.History()
	if len(history) != 2 {
		t.Fatalf("expected both turns committed despite synthesis failure, got %d entries", len(history))
	}
	if history[1].Text != "hi there" {
		t.Fatalf("reply text not committed: %+v", history[1])
	}
	if got := h.output.sentBytes(); got != 0 {
		t.Fatalf("no audio should play after synthesis failure, got %d bytes", got)
	}
	if got := h.synthesizer.callCount(); got != 2 {
		t.Fatalf("expected original call plus one retry, got %d calls", got)
	}
}

func TestGenerationFailureKeepsUserTranscript(t *testing.T) {
	h := newSessionHarness(t, WithMaxRetries(0))
	h.agent.err = errors.New("model overloaded")
	h.awaitState(t, StateListening)

	h.input.pushSpeechEpisode()

	h.awaitState(t, StateGenerating)
	h.awaitState(t, StateIdle)

	history := h.orchestrator.History()
	if len(history) != 1 {
		t.Fatalf("expected only the user transcript committed, got %d entries", len(history))
	}
	if history[0].Speaker != SpeakerUser || history[0].Text != "hello" {
		t.Fatalf("unexpected surviving entry: %+v", history[0])
	}
	if got := h.synthesizer.callCount(); got != 0 {
		t.Fatalf("synthesizer called %d times after generation failure", got)
	}
}

func TestGenerationFailureSpeaksApology(t *testing.T) {
	const apology = "Sorry, something went wrong."
	h := newSessionHarness(t, WithMaxRetries(0), WithApology(apology))
	h.agent.err = errors.New("model overloaded")
	h.awaitState(t, StateListening)

	h.input.pushSpeechEpisode()

	if interrupted := h.awaitPlaybackEnded(t); interrupted {
		t.Fatal("apology playback reported as interrupted")
	}
	h.awaitState(t, StateIdle)

	history := h.orchestrator.History()
	if len(history) != 2 {
		t.Fatalf("expected user transcript plus apology, got %d entries", len(history))
	}
	if history[1].Speaker != SpeakerAgent || history[1].Text != apology {
		t.Fatalf("apology not committed as agent entry: %+v", history[1])
	}
	if got := h.synthesizer.callCount(); got != 1 {
		t.Fatalf("expected the apology synthesized once, got %d calls", got)
	}
}

func TestTranscriptionFailureAbandonsTurn(t *testing.T) {
	h := newSessionHarness(t, WithMaxRetries(0))
	h.transcriber.err = errors.New("quota exceeded")
	h.awaitState(t, StateListening)

	h.input.pushSpeechEpisode()

	h.awaitState(t, StateTranscribing)
	h.awaitState(t, StateIdle)

	if got := len(h.orchestrator.History()); got != 0 {
		t.Fatalf("failed transcription must not commit history, got %d entries", got)
	}
}

func TestSpeechDuringTranscriptionQueuedForNextTurn(t *testing.T) {
	boundaries := make(chan struct{}, 8)
	h := newSessionHarness(t, WithEventCallback(func(event events.Event) {
		if _, ok := event.(events.SpeechEnded); ok {
			boundaries <- struct{}{}
		}
	}))

	gate := make(chan struct{})
	h.transcriber.gate = gate
	h.awaitState(t, StateListening)

	h.input.pushSpeechEpisode()
	select {
	case <-boundaries:
	case <-time.After(5 * time.Second):
		t.Fatal("first utterance never ended")
	}
	waitFor(t, func() bool { return h.transcriber.callCount() == 1 })

	// The user keeps talking while the first transcription is in flight; the
	// whole second utterance must be queued, not dropped.
	h.input.pushSpeechEpisode()
	select {
	case <-boundaries:
	case <-time.After(5 * time.Second):
		t.Fatal("second utterance never ended")
	}

	close(gate)

	waitFor(t, func() bool { return len(h.orchestrator.History()) == 4 })
	if got := h.transcriber.callCount(); got != 2 {
		t.Fatalf("expected 2 transcriptions, got %d", got)
	}
	history := h.orchestrator.History()
	for i, entry := range history {
		want := SpeakerUser
		if i%2 == 1 {
			want = SpeakerAgent
		}
		if entry.Speaker != want {
			t.Fatalf("entry %d spoken by %s, want %s", i, entry.Speaker, want)
		}
	}

	speechRun := 12 * len(frame(1000))
	if got := len(h.transcriber.lastReceived()); got < speechRun {
		t.Fatalf("queued utterance truncated: %d bytes, want at least %d", got, speechRun)
	}
}

func TestBargeInInterruptsPlayback(t *testing.T) {
	h := newSessionHarness(t)
	// A reply long enough that the test can interrupt it mid-playback.
	h.synthesizer.audio = make([]byte, testEncoding.Bytes(5*time.Second))
	h.awaitState(t, StateListening)

	h.input.pushSpeechEpisode()
	h.awaitState(t, StateSpeaking)

	// The user starts talking over the reply.
	h.input.push(frame(1000), frame(1000), frame(1000))

	if interrupted := h.awaitPlaybackEnded(t); !interrupted {
		t.Fatal("barge-in playback not reported as interrupted")
	}
	h.awaitState(t, StateInterrupted)

	if got := h.output.sentBytes(); got >= len(h.synthesizer.audio) {
		t.Fatalf("barge-in did not cut playback short, played %d of %d bytes", got, len(h.synthesizer.audio))
	}
	if h.output.clearCount() == 0 {
		t.Fatal("barge-in did not clear the output buffer")
	}

	// The onset frames carry into the next utterance: finish it and check
	// the transcriber receives at least the onset run plus the remainder.
	for n := 0; n < 9; n++ {
		h.input.push(frame(1000))
	}
	for n := 0; n < 20; n++ {
		h.input.push(frame(0))
	}

	waitFor(t, func() bool { return h.transcriber.callCount() == 2 })
	onsetRun := 3 * len(frame(1000))
	if got := len(h.transcriber.lastReceived()); got < onsetRun {
		t.Fatalf("barge-in onset frames were lost: utterance only %d bytes", got)
	}
}

func TestBargeInDisabledIgnoresSpeechDuringPlayback(t *testing.T) {
	h := newSessionHarness(t, WithBargeIn(false))
	h.synthesizer.audio = make([]byte, testEncoding.Bytes(500*time.Millisecond))
	h.awaitState(t, StateListening)

	h.input.pushSpeechEpisode()
	h.awaitState(t, StateSpeaking)

	for n := 0; n < 10; n++ {
		h.input.push(frame(1000))
	}

	if interrupted := h.awaitPlaybackEnded(t); interrupted {
		t.Fatal("speech during playback interrupted despite barge-in disabled")
	}
	if got := h.output.sentBytes(); got != len(h.synthesizer.audio) {
		t.Fatalf("played %d bytes, want the full %d byte reply", got, len(h.synthesizer.audio))
	}
}

func TestConsecutiveTurnsAlternateHistory(t *testing.T) {
	h := newSessionHarness(t)
	h.awaitState(t, StateListening)

	const turns = 3
	for n := 0; n < turns; n++ {
		h.input.pushSpeechEpisode()
		h.awaitPlaybackEnded(t)
		h.awaitState(t, StateIdle)
	}

	history := h.orchestrator.History()
	if len(history) != 2*turns {
		t.Fatalf("expected %d history entries after %d turns, got %d", 2*turns, turns, len(history))
	}
	for i, entry := range history {
		want := SpeakerUser
		if i%2 == 1 {
			want = SpeakerAgent
		}
		if entry.Speaker != want {
			t.Fatalf("entry %d spoken by %s, want %s", i, entry.Speaker, want)
		}
	}
}

func TestInitialMessageSpokenBeforeListening(t *testing.T) {
	h := newSessionHarness(t, WithInitialMessage("Hi! How can I help?"))

	if interrupted := h.awaitPlaybackEnded(t); interrupted {
		t.Fatal("greeting playback reported as interrupted")
	}
	h.awaitState(t, StateListening)

	history := h.orchestrator.History()
	if len(history) != 1 || history[0].Speaker != SpeakerAgent {
		t.Fatalf("greeting not committed as agent entry: %+v", history)
	}
}

func TestAmbientCalibrationRaisesThreshold(t *testing.T) {
	h := newSessionHarness(t, WithAmbientCalibration(400*time.Millisecond))

	// A noisy room: ambient RMS 2000 pushes the threshold to 4000, well above
	// the default 300.
	for n := 0; n < 8; n++ {
		h.input.push(frame(2000))
	}
	h.awaitState(t, StateListening)

	// Speech at the uncalibrated threshold level must now read as silence.
	for n := 0; n < 12; n++ {
		h.input.push(frame(1000))
	}
	for n := 0; n < 20; n++ {
		h.input.push(frame(0))
	}

	time.Sleep(200 * time.Millisecond)
	if got := h.transcriber.callCount(); got != 0 {
		t.Fatalf("transcriber called %d times below the calibrated threshold", got)
	}
	if got := h.orchestrator.State(); got != StateListening {
		t.Fatalf("expected to remain in Listening, got %v", got)
	}
}

func TestAmbientCalibrationNeverLowersThreshold(t *testing.T) {
	h := newSessionHarness(t, WithAmbientCalibration(400*time.Millisecond))

	// A near-silent room: twice the ambient RMS is far below the configured
	// threshold, which must stay in force as the floor.
	for n := 0; n < 8; n++ {
		h.input.push(frame(10))
	}
	h.awaitState(t, StateListening)

	// Quiet noise above twice the ambient level but below the floor.
	for n := 0; n < 12; n++ {
		h.input.push(frame(100))
	}
	for n := 0; n < 20; n++ {
		h.input.push(frame(0))
	}
	time.Sleep(200 * time.Millisecond)
	if got := h.transcriber.callCount(); got != 0 {
		t.Fatalf("transcriber called %d times for sub-floor noise", got)
	}

	// Real speech still completes a turn.
	h.input.pushSpeechEpisode()
	h.awaitPlaybackEnded(t)
	waitFor(t, func() bool { return len(h.orchestrator.History()) == 2 })
}

func TestCaptureFailureEndsSession(t *testing.T) {
	h := newSessionHarness(t)
	h.awaitState(t, StateListening)

	h.orchestrator.enqueueCaptureFailure(ErrCaptureDevice)

	select {
	case err := <-h.runErr:
		if !errors.Is(err, ErrCaptureDevice) {
			t.Fatalf("expected capture device error, got %v", err)
		}
		h.runErr <- nil
	case <-time.After(5 * time.Second):
		t.Fatal("session did not end on capture failure")
	}
}
