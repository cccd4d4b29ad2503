// Package transcription wraps the engine client with process-wide defaults,
// per-request overrides, and the per-call timeout. One Run is one engine
// invocation; retry decisions live a layer up.
package transcription

import (
	"context"
	"strings"
	"time"

	"whisperflow/internal/engine"
)

// Options carries the per-request parameter overrides. Zero values fall back
// to the configured defaults.
type Options struct {
	Language string
	Prompt   string
	BeamSize int
}

// Attempt is one completed engine invocation with its derived confidence.
// Immutable once produced.
type Attempt struct {
	Output     engine.Output
	Parameters engine.Parameters
	Confidence float64
}

// Text returns the attempt's concatenated segment text.
func (a Attempt) Text() string {
	var b strings.Builder
	for _, seg := range a.Output.Segments {
		b.WriteString(seg.Text)
	}
	return strings.TrimSpace(b.String())
}

type Service struct {
	client   engine.Client
	defaults engine.Parameters
	timeout  time.Duration
}

func New(client engine.Client, defaults engine.Parameters, timeout time.Duration) *Service {
	return &Service{client: client, defaults: defaults, timeout: timeout}
}

// Run invokes the engine once against the stored audio. Inference cannot be
// safely interrupted mid-call, so the call runs on a context detached from the
// caller's cancellation; callers observing a cancelled context afterwards must
// discard the result themselves.
func (s *Service) Run(ctx context.Context, audioPath string, opts Options) (Attempt, error) {
	params := s.defaults
	if lang := strings.TrimSpace(opts.Language); lang != "" {
		params.Language = lang
	}
	if prompt := strings.TrimSpace(opts.Prompt); prompt != "" {
		params.InitialPrompt = prompt
	}
	if opts.BeamSize > 0 {
		params.BeamSize = opts.BeamSize
	}

	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	out, err := s.client.Transcribe(callCtx, audioPath, params)
	if err != nil {
		return Attempt{}, err
	}

	return Attempt{
		Output:     out,
		Parameters: params,
		Confidence: engine.AggregateConfidence(out.Segments),
	}, nil
}
