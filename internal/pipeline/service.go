// Package pipeline composes leasing, engine invocation, confidence-based
// retry escalation, and deduplication into the end-to-end request flow, while
// bounding the number of concurrent engine invocations.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/semaphore"

	"whisperflow/internal/format"
	"whisperflow/internal/lease"
	"whisperflow/internal/postprocess"
	"whisperflow/internal/transcription"
)

type Transcriber interface {
	Run(ctx context.Context, audioPath string, opts transcription.Options) (transcription.Attempt, error)
}

// Settings are the orchestration knobs, fixed at startup.
type Settings struct {
	MaxPayloadBytes  int64
	MaxConcurrent    int64
	AdmissionTimeout time.Duration
	BeamSize         int
	RetryBeamSize    int
	RetryThreshold   float64
}

type Service struct {
	leases      *lease.Store
	transcriber Transcriber
	admission   *semaphore.Weighted
	settings    Settings
}

type ProcessInput struct {
	Payload     []byte
	ContentType string
	Filename    string
	Language    string
	Prompt      string
}

type Timings struct {
	FirstAttempt time.Duration
	Retry        time.Duration
	Total        time.Duration
}

// Result is the only entity crossing the pipeline's public boundary.
type Result struct {
	Text       string
	Confidence float64

	Language            string
	LanguageProbability float64
	AudioDuration       float64

	EngineCalls    int
	RetryTriggered bool
	RetryImproved  bool
	RetryFailed    bool
	Timings        Timings
}

func New(leases *lease.Store, transcriber Transcriber, settings Settings) *Service {
	if settings.MaxConcurrent <= 0 {
		settings.MaxConcurrent = 1
	}
	return &Service{
		leases:      leases,
		transcriber: transcriber,
		admission:   semaphore.NewWeighted(settings.MaxConcurrent),
		settings:    settings,
	}
}

// Process runs one payload through the full pipeline: validate, lease, admit,
// transcribe, optionally escalate, deduplicate. The lease is released on every
// exit path.
func (s *Service) Process(ctx context.Context, in ProcessInput) (Result, error) {
	started := time.Now()

	if len(in.Payload) == 0 {
		return Result{}, ErrEmptyPayload
	}
	if s.settings.MaxPayloadBytes > 0 && int64(len(in.Payload)) > s.settings.MaxPayloadBytes {
		return Result{}, ErrPayloadTooLarge
	}

	suffix := format.Sniff(in.ContentType, in.Filename).Suffix()
	lse, err := s.leases.Acquire(in.Payload, suffix)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrLeaseFailed, err)
	}
	defer lse.Release()

	if err := s.admit(ctx); err != nil {
		return Result{}, err
	}
	defer s.admission.Release(1)

	opts := transcription.Options{Language: in.Language, Prompt: in.Prompt}

	firstStarted := time.Now()
	first, err := s.transcriber.Run(ctx, lse.Path(), opts)
	firstDuration := time.Since(firstStarted)
	if err != nil {
		return Result{}, fmt.Errorf("first attempt: %w", err)
	}
	if ctx.Err() != nil {
		// Caller went away mid-inference; the call was allowed to complete
		// but its result is discarded.
		return Result{}, ctx.Err()
	}

	selected := first
	text := postprocess.Deduplicate(first.Text())
	result := Result{
		EngineCalls: 1,
		Timings:     Timings{FirstAttempt: firstDuration},
	}

	if shouldRetry(first.Confidence, text, s.settings.RetryThreshold, s.settings.BeamSize, s.settings.RetryBeamSize) {
		result.RetryTriggered = true
		retryOpts := opts
		retryOpts.BeamSize = s.settings.RetryBeamSize

		retryStarted := time.Now()
		retry, retryErr := s.transcriber.Run(ctx, lse.Path(), retryOpts)
		result.Timings.Retry = time.Since(retryStarted)

		if retryErr != nil {
			// A degraded but successful result beats an error after the
			// first attempt already succeeded.
			result.RetryFailed = true
		} else {
			result.EngineCalls = 2
			if chosen, improved := selectAttempt(first, retry); improved {
				selected = chosen
				result.RetryImproved = true
				text = postprocess.Deduplicate(chosen.Text())
			}
		}
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
	}

	result.Text = text
	result.Confidence = selected.Confidence
	result.Language = selected.Output.Language
	result.LanguageProbability = selected.Output.LanguageProbability
	result.AudioDuration = selected.Output.Duration
	result.Timings.Total = time.Since(started)
	return result, nil
}

// admit blocks until an engine slot is free, the admission timeout expires, or
// the caller disconnects while queued. The slot covers both engine calls a
// request may make.
func (s *Service) admit(ctx context.Context) error {
	admitCtx := ctx
	if s.settings.AdmissionTimeout > 0 {
		var cancel context.CancelFunc
		admitCtx, cancel = context.WithTimeout(ctx, s.settings.AdmissionTimeout)
		defer cancel()
	}
	if err := s.admission.Acquire(admitCtx, 1); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("admission queue: %w", admitCtx.Err())
	}
	return nil
}
