package orchestration

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel/codes"

	"github.com/voxloop/voxloop/core/audio"
)

// Transcript is the result of transcribing one utterance.
type Transcript struct {
	Text string
	// Confidence is the provider's confidence in the transcript, in [0, 1].
	// Providers that do not report confidence leave it at 1.
	Confidence float64
}

// Usable reports whether the transcript carries recognizable speech. An
// empty transcript and a low-confidence one are treated the same way: the
// turn is abandoned without a reply.
func (t Transcript) Usable(minConfidence float64) bool {
	return strings.TrimSpace(t.Text) != "" && t.Confidence >= minConfidence
}

// Transcriber converts one finalized utterance of audio into text.
type Transcriber interface {
	Transcribe(ctx context.Context, utteranceAudio []byte, encoding audio.EncodingInfo) (Transcript, error)
}

// Agent produces the assistant's reply text from the conversation so far.
// The history is ordered oldest first and ends with the user turn being
// answered.
type Agent interface {
	Generate(ctx context.Context, history []HistoryEntry) (string, error)
}

// Synthesizer converts reply text into audio in the requested encoding.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string, encoding audio.EncodingInfo) ([]byte, error)
}

// capabilityRunner wraps provider calls with a per-call timeout and bounded
// retry. Failures are retried with exponential backoff up to maxRetries
// additional attempts; context cancellation aborts immediately and is never
// retried.
type capabilityRunner struct {
	callTimeout time.Duration
	maxRetries  uint64
}

func (r capabilityRunner) run(ctx context.Context, stage Stage, spanName string, call func(context.Context) error) error {
	ctx, span := tracer.Start(ctx, spanName)
	defer span.End()

	attempt := func() error {
		callCtx := ctx
		if r.callTimeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, r.callTimeout)
			defer cancel()
		}

		if err := call(callCtx); err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			span.RecordError(err)
			return err
		}
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), r.maxRetries),
		ctx,
	)

	if err := backoff.Retry(attempt, policy); err != nil {
		span.SetStatus(codes.Error, fmt.Sprintf("%s failed", stage))
		return newCapabilityError(stage, err)
	}
	return nil
}

func (r capabilityRunner) transcribe(ctx context.Context, transcriber Transcriber, utteranceAudio []byte, encoding audio.EncodingInfo) (Transcript, error) {
	var transcript Transcript
	err := r.run(ctx, StageTranscription, "transcribe utterance", func(ctx context.Context) error {
		var err error
		transcript, err = transcriber.Transcribe(ctx, utteranceAudio, encoding)
		return err
	})
	return transcript, err
}

func (r capabilityRunner) generate(ctx context.Context, agent Agent, history []HistoryEntry) (string, error) {
	var reply string
	err := r.run(ctx, StageGeneration, "generate reply", func(ctx context.Context) error {
		var err error
		reply, err = agent.Generate(ctx, history)
		return err
	})
	return reply, err
}

func (r capabilityRunner) synthesize(ctx context.Context, synthesizer Synthesizer, text string, encoding audio.EncodingInfo) ([]byte, error) {
	var replyAudio []byte
	err := r.run(ctx, StageSynthesis, "synthesize reply", func(ctx context.Context) error {
		var err error
		replyAudio, err = synthesizer.Synthesize(ctx, text, encoding)
		return err
	})
	return replyAudio, err
}
