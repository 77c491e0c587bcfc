// Package orchestration drives voice conversations as a sequence of turns:
// the user speaks, the utterance is transcribed, an agent generates a reply,
// and the reply is synthesized and played back. Capture and endpointing keep
// running while a reply plays so the user can barge in.
package orchestration

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/voxloop/voxloop/core/audio"
	"github.com/voxloop/voxloop/core/events"
)

const (
	defaultEnergyThreshold      = 300.0
	defaultPauseDuration        = 500 * time.Millisecond
	defaultMinUtteranceDuration = 250 * time.Millisecond
	defaultMinConfidence        = 0.5
	defaultCallTimeout          = 10 * time.Second
	defaultMaxRetries           = 1

	// eventQueueCapacity bounds the frame queue between the capture
	// goroutine and the orchestrator. At 30ms frames this holds several
	// seconds of audio; frames beyond that are dropped and counted.
	eventQueueCapacity = 256

	// ambientMultiplier scales the measured noise floor into a speech
	// threshold during calibration.
	ambientMultiplier = 2.0
)

// Orchestrator is the turn state machine. It owns the conversation history,
// sequences the transcription, generation, and synthesis calls one at a
// time, and arbitrates between playback completion and barge-in.
//
// Construct with New, configure through options, then call Run once. The
// zero value is not usable.
type Orchestrator struct {
	input  *audioInput
	output *audioOutput

	transcriber Transcriber
	agent       Agent
	synthesizer Synthesizer
	runner      capabilityRunner

	energyThreshold      float64
	pauseDuration        time.Duration
	minUtteranceDuration time.Duration
	minConfidence        float64
	bargeInEnabled       bool
	calibrationDuration  time.Duration

	initialMessage string
	apologyMessage string
	endPhrases     []string

	onTranscript    func(transcript string)
	onReply         func(reply string)
	onStateChange   func(from, to TurnState)
	onPlaybackEnded func(text string, interrupted bool)
	emitEvent       func(event events.Event)

	recorder UtteranceRecorder

	// events carries capture-side events into the orchestrator's single
	// consumer loop. The capture goroutine never touches orchestrator state
	// directly; it only enqueues here.
	events        chan events.Event
	droppedFrames metric.Int64Counter

	detector *endpointDetector

	// current accumulates the utterance being captured. It survives across
	// capability calls so speech arriving while a turn is in flight is
	// queued instead of dropped, and it is seeded with onset frames on
	// barge-in so no boundary audio is lost.
	current         *Utterance
	currentComplete bool

	history *ConversationHistory

	state     atomic.Int32
	closeOnce sync.Once
	closed    chan struct{}
}

// New builds an orchestrator with the given options applied over defaults.
func New(opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		output: newAudioOutput(nil),

		energyThreshold:      defaultEnergyThreshold,
		pauseDuration:        defaultPauseDuration,
		minUtteranceDuration: defaultMinUtteranceDuration,
		minConfidence:        defaultMinConfidence,
		bargeInEnabled:       true,
		endPhrases:           []string{"goodbye", "bye"},
		runner: capabilityRunner{
			callTimeout: defaultCallTimeout,
			maxRetries:  defaultMaxRetries,
		},

		onTranscript:    func(string) {},
		onReply:         func(string) {},
		onStateChange:   func(TurnState, TurnState) {},
		onPlaybackEnded: func(string, bool) {},
		emitEvent:       func(events.Event) {},

		events:  make(chan events.Event, eventQueueCapacity),
		history: newConversationHistory(),
		closed:  make(chan struct{}),
	}
	o.input = newAudioInput(nil, o.enqueueFrame)
	o.state.Store(int32(StateIdle))

	o.droppedFrames, _ = meter.Int64Counter("orchestration.frames.dropped",
		metric.WithDescription("Audio frames dropped because the event queue was full"))

	for _, opt := range opts {
		opt(o)
	}

	return o
}

// State reports the current turn state. Safe from any goroutine.
func (o *Orchestrator) State() TurnState {
	return TurnState(o.state.Load())
}

// History returns a snapshot of the conversation so far.
func (o *Orchestrator) History() []HistoryEntry {
	return o.history.Snapshot()
}

// Close ends the session. Run returns once it observes the close; an
// in-flight capability call is left to complete or time out, its result
// abandoned. Safe to call multiple times and from any goroutine.
func (o *Orchestrator) Close() {
	o.closeOnce.Do(func() {
		close(o.closed)
	})
}

// Run executes the conversation until the agent ends it, the context is
// cancelled, Close is called, or the capture device fails. It owns the
// audio devices for its whole lifetime and releases them on return.
//
// Contract: call Run at most once per orchestrator instance.
func (o *Orchestrator) Run(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "conversation session")
	defer span.End()

	if !o.input.isConfigured() {
		return fmt.Errorf("%w: no audio input configured", ErrCaptureDevice)
	}
	if o.transcriber == nil || o.agent == nil || o.synthesizer == nil {
		return errors.New("orchestrator requires a transcriber, an agent, and a synthesizer")
	}

	o.detector = newEndpointDetector(o.input.EncodingInfo(), o.energyThreshold, o.pauseDuration)
	o.input.setFailureCallback(o.enqueueCaptureFailure)

	captureCtx, stopCapture := context.WithCancel(ctx)
	defer stopCapture()
	if err := o.input.Capture(captureCtx); err != nil {
		return err
	}
	defer o.releaseDevices(ctx)

	if o.calibrationDuration > 0 {
		if err := o.calibrate(ctx); err != nil {
			return o.finish(err)
		}
	}

	if o.initialMessage != "" {
		if err := o.speakMessage(ctx, o.initialMessage); err != nil {
			return o.finish(err)
		}
	}

	for {
		utterance, err := o.listen(ctx)
		if err != nil {
			return o.finish(err)
		}

		ended, err := o.runTurn(ctx, utterance)
		if err != nil {
			return o.finish(err)
		}
		if ended {
			o.setState(StateTerminal)
			return nil
		}
	}
}

// finish normalizes session-ending errors: an orderly shutdown is not an
// error to the caller.
func (o *Orchestrator) finish(err error) error {
	if errors.Is(err, ErrClosed) || errors.Is(err, context.Canceled) {
		o.setState(StateTerminal)
		return nil
	}
	return err
}

// listen blocks until a complete utterance is available. It consumes an
// utterance queued during a previous turn's capability calls before waiting
// for new audio.
func (o *Orchestrator) listen(ctx context.Context) (*Utterance, error) {
	o.setState(StateListening)

	for {
		if o.current != nil && o.currentComplete {
			utterance := o.current
			o.current = nil
			o.currentComplete = false
			return utterance, nil
		}

		select {
		case event := <-o.events:
			if err := o.absorb(event); err != nil {
				return nil, err
			}
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-o.closed:
			return nil, ErrClosed
		}
	}
}

// runTurn drives one utterance through the pipeline. It returns ended=true
// when the agent's reply signals the end of the conversation. Capability
// failures abandon the turn and are not returned as errors; only fatal
// conditions (device loss, cancellation, close) propagate.
func (o *Orchestrator) runTurn(ctx context.Context, utterance *Utterance) (bool, error) {
	ctx, span := tracer.Start(ctx, "conversation turn")
	defer span.End()

	// The utterance includes the trailing pause that ended it; subtract it
	// so the noise guard measures speech, not the silence after.
	if utterance.Duration()-o.pauseDuration < o.minUtteranceDuration {
		logger.DebugContext(ctx, "utterance below minimum duration, dropped as noise",
			"duration", utterance.Duration())
		o.setState(StateIdle)
		return false, nil
	}

	o.record(ctx, utterance)

	o.setState(StateTranscribing)
	var transcript Transcript
	err := o.drainUntil(ctx, func() error {
		var err error
		transcript, err = o.runner.transcribe(ctx, o.transcriber, utterance.Bytes(), utterance.EncodingInfo())
		return err
	})
	if err != nil {
		return false, o.abandonTurn(ctx, span, err)
	}
	if !transcript.Usable(o.minConfidence) {
		logger.DebugContext(ctx, "transcript empty or below confidence, turn abandoned",
			"confidence", transcript.Confidence)
		o.setState(StateIdle)
		return false, nil
	}

	o.history.append(SpeakerUser, transcript.Text)
	o.onTranscript(transcript.Text)

	o.setState(StateGenerating)
	var reply string
	err = o.drainUntil(ctx, func() error {
		var err error
		reply, err = o.runner.generate(ctx, o.agent, o.history.Snapshot())
		return err
	})
	if err != nil {
		if fatal := o.abandonTurn(ctx, span, err); fatal != nil {
			return false, fatal
		}
		if o.apologyMessage != "" {
			if err := o.speakMessage(ctx, o.apologyMessage); err != nil {
				return false, err
			}
		}
		return false, nil
	}

	o.history.append(SpeakerAgent, reply)
	o.onReply(reply)
	ended := o.isEndPhrase(reply)

	o.setState(StateSynthesizing)
	var replyAudio []byte
	err = o.drainUntil(ctx, func() error {
		var err error
		replyAudio, err = o.runner.synthesize(ctx, o.synthesizer, reply, o.output.EncodingInfo())
		return err
	})
	if err != nil {
		// The reply stays committed to history and has already been
		// surfaced as text through the reply callback.
		return ended, o.abandonTurn(ctx, span, err)
	}

	interrupted, err := o.speak(ctx, reply, replyAudio)
	if err != nil {
		return false, err
	}
	if ended {
		return true, nil
	}
	if !interrupted {
		o.setState(StateIdle)
	}
	return false, nil
}

// speak plays one reply while watching for barge-in. It reports whether the
// user interrupted playback. With barge-in disabled, frames captured during
// playback are discarded and the detector is re-armed afterwards.
func (o *Orchestrator) speak(ctx context.Context, text string, replyAudio []byte) (bool, error) {
	o.setState(StateSpeaking)

	player := newTurnPlayer(o.output, o.output.EncodingInfo())
	go player.Play(replyAudio)

	for {
		select {
		case outcome := <-player.Done():
			if !o.bargeInEnabled {
				o.detector.reset()
			}
			if outcome.err != nil {
				log.Printf("Playback failed, stopping reply: %v", outcome.err)
			}
			o.emitEvent(events.NewPlaybackEnded(text, outcome.interrupted))
			o.onPlaybackEnded(text, outcome.interrupted)
			return outcome.interrupted, nil

		case event := <-o.events:
			switch event := event.(type) {
			case events.FrameCaptured:
				if !o.bargeInEnabled {
					continue
				}
				boundary := o.processFrame(event.Audio)
				if _, started := boundary.(events.SpeechStarted); !started {
					continue
				}

				// Barge-in: stop wins over a completion racing in.
				player.Stop()
				<-player.Done()
				o.setState(StateInterrupted)
				o.emitEvent(events.NewPlaybackEnded(text, true))
				o.onPlaybackEnded(text, true)
				return true, nil
			case events.CaptureFailed:
				player.Stop()
				<-player.Done()
				return false, event.Err
			}

		case <-ctx.Done():
			player.Stop()
			<-player.Done()
			return false, ctx.Err()
		case <-o.closed:
			player.Stop()
			<-player.Done()
			return false, ErrClosed
		}
	}
}

// speakMessage synthesizes and plays a system-originated message (greeting,
// apology) outside the normal turn pipeline. The message is committed to
// history as an agent entry so later generation sees it. Synthesis failure
// is non-fatal; the message has already been surfaced as text.
func (o *Orchestrator) speakMessage(ctx context.Context, text string) error {
	o.history.append(SpeakerAgent, text)
	o.onReply(text)

	o.setState(StateSynthesizing)
	var replyAudio []byte
	err := o.drainUntil(ctx, func() error {
		var err error
		replyAudio, err = o.runner.synthesize(ctx, o.synthesizer, text, o.output.EncodingInfo())
		return err
	})
	if err != nil {
		var capabilityErr *CapabilityError
		if errors.As(err, &capabilityErr) {
			log.Printf("Failed to synthesize message: %v", err)
			o.setState(StateIdle)
			return nil
		}
		return err
	}

	interrupted, err := o.speak(ctx, text, replyAudio)
	if err != nil {
		return err
	}
	if !interrupted {
		o.setState(StateIdle)
	}
	return nil
}

// drainUntil runs one capability call on its own goroutine and keeps
// consuming capture events until the call returns, so the frame queue never
// backs up against the capture goroutine. Exactly one call is outstanding
// at a time.
func (o *Orchestrator) drainUntil(ctx context.Context, call func() error) error {
	result := make(chan error, 1)
	go func() { result <- call() }()

	for {
		select {
		case err := <-result:
			return err
		case event := <-o.events:
			if err := o.absorb(event); err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		case <-o.closed:
			return ErrClosed
		}
	}
}

// absorb applies one capture event to the accumulation state. It returns an
// error only for fatal conditions.
func (o *Orchestrator) absorb(event events.Event) error {
	switch event := event.(type) {
	case events.FrameCaptured:
		o.processFrame(event.Audio)
		return nil
	case events.CaptureFailed:
		return event.Err
	}
	return nil
}

// processFrame feeds one frame through the endpoint detector and folds the
// result into the current utterance. It returns the boundary event the
// detector produced, if any.
func (o *Orchestrator) processFrame(frame []byte) events.Event {
	boundary := o.detector.feed(frame)

	switch boundary.(type) {
	case events.SpeechStarted:
		o.emitEvent(boundary)
		if o.current == nil {
			o.current = newUtterance(o.input.EncodingInfo())
		}
		// An onset while a completed utterance is still queued folds the
		// new speech into the same pending buffer.
		o.currentComplete = false
		o.appendBuffered()
	case events.SpeechEnded:
		o.emitEvent(boundary)
		o.appendBuffered()
		o.currentComplete = true
	case nil:
		if o.current != nil && !o.currentComplete {
			o.appendBuffered()
		}
	}

	return boundary
}

func (o *Orchestrator) appendBuffered() {
	for _, frame := range o.detector.drainBuffered() {
		o.current.append(frame)
	}
}

// calibrate measures the ambient noise floor and raises the detector's
// threshold above it. The configured threshold acts as a lower bound so a
// silent room cannot make the detector hair-triggered.
func (o *Orchestrator) calibrate(ctx context.Context) error {
	encoding := o.input.EncodingInfo()
	deadline := time.After(o.calibrationDuration)

	var sum float64
	var count int
	for {
		select {
		case <-deadline:
			if count == 0 {
				return nil
			}
			ambient := sum / float64(count)
			threshold := math.Max(o.energyThreshold, ambientMultiplier*ambient)
			o.detector.setThreshold(threshold)
			logger.InfoContext(ctx, "ambient calibration complete",
				"ambient_rms", ambient, "energy_threshold", threshold)
			return nil
		case event := <-o.events:
			switch event := event.(type) {
			case events.FrameCaptured:
				sum += audio.RMS(event.Audio, encoding)
				count++
			case events.CaptureFailed:
				return event.Err
			}
		case <-ctx.Done():
			return ctx.Err()
		case <-o.closed:
			return ErrClosed
		}
	}
}

// abandonTurn classifies a pipeline error: capability failures are logged
// and the turn returns to idle; anything else is fatal to the session.
func (o *Orchestrator) abandonTurn(ctx context.Context, span trace.Span, err error) error {
	var capabilityErr *CapabilityError
	if !errors.As(err, &capabilityErr) {
		return err
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, fmt.Sprintf("turn abandoned: %s failed", capabilityErr.Stage))
	log.Printf("Turn abandoned, %s failed: %v", capabilityErr.Stage, capabilityErr.Err)
	o.setState(StateIdle)
	return nil
}

func (o *Orchestrator) isEndPhrase(reply string) bool {
	lowered := strings.ToLower(reply)
	for _, phrase := range o.endPhrases {
		if phrase != "" && strings.Contains(lowered, strings.ToLower(phrase)) {
			return true
		}
	}
	return false
}

func (o *Orchestrator) record(ctx context.Context, utterance *Utterance) {
	if o.recorder == nil {
		return
	}

	if err := o.recorder.Record(utterance.Bytes(), utterance.EncodingInfo()); err != nil {
		logger.WarnContext(ctx, "failed to record utterance", "error", err)
	}
}

func (o *Orchestrator) setState(to TurnState) {
	from := TurnState(o.state.Swap(int32(to)))
	if from == to {
		return
	}

	o.emitEvent(events.NewTurnStateChanged(from.String(), to.String()))
	o.onStateChange(from, to)
}

// enqueueFrame is the capture goroutine's only entry point into the
// orchestrator. The frame is copied because capture devices reuse their
// buffers; a full queue drops the frame rather than blocking the device.
func (o *Orchestrator) enqueueFrame(frame []byte) {
	copied := make([]byte, len(frame))
	copy(copied, frame)

	select {
	case o.events <- events.NewFrameCaptured(copied):
	default:
		if o.droppedFrames != nil {
			o.droppedFrames.Add(context.Background(), 1)
		}
	}
}

// enqueueCaptureFailure must not be dropped like a frame; it blocks until
// the orchestrator consumes it or the session closes.
func (o *Orchestrator) enqueueCaptureFailure(err error) {
	select {
	case o.events <- events.NewCaptureFailed(err):
	case <-o.closed:
	}
}

func (o *Orchestrator) releaseDevices(ctx context.Context) {
	if err := o.input.Close(); err != nil {
		recordedErr := fmt.Errorf("failed to release audio input: %w", err)
		span := trace.SpanFromContext(ctx)
		span.RecordError(recordedErr)
		span.SetStatus(codes.Error, recordedErr.Error())
	}

	if err := o.output.Close(); err != nil {
		recordedErr := fmt.Errorf("failed to release audio output: %w", err)
		span := trace.SpanFromContext(ctx)
		span.RecordError(recordedErr)
		span.SetStatus(codes.Error, recordedErr.Error())
	}
}
