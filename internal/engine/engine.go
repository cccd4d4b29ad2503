// Package engine defines the call contract to the external speech-to-text
// engine. The engine is opaque: one synchronous call in, segment-level
// transcript data out. Any concrete backend can sit behind Client.
package engine

import "context"

// Parameters are the tunables forwarded on every engine call. The defaults are
// built once from config at startup and treated as read-only; per-request
// overrides produce a copy.
type Parameters struct {
	Language                  string
	InitialPrompt             string
	BeamSize                  int
	VADFilter                 bool
	NoSpeechThreshold         float64
	CompressionRatioThreshold float64
	LogProbThreshold          float64
	RepetitionPenalty         float64
	ConditionOnPreviousText   bool
}

// Segment is one timed slice of engine output. Never mutated after creation.
type Segment struct {
	Start        float64
	End          float64
	Text         string
	AvgLogprob   float64
	NoSpeechProb float64
}

// Output is the raw result of a single engine invocation.
type Output struct {
	Segments            []Segment
	Language            string
	LanguageProbability float64
	Duration            float64
}

// Client invokes the engine once, synchronously. Implementations must not
// retry internally; retry is a policy decision made by the caller. The call is
// compute-heavy and long-running, so callers are expected to hold an admission
// slot before invoking it.
type Client interface {
	Transcribe(ctx context.Context, audioPath string, params Parameters) (Output, error)
}
