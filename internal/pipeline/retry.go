package pipeline

import "whisperflow/internal/transcription"

// shouldRetry decides whether a first attempt is worth re-running with the
// escalated beam width. Low confidence alone is not enough: retrying on
// silence wastes the retry budget, and escalation without a strictly wider
// beam would re-run the identical configuration.
func shouldRetry(confidence float64, dedupedText string, threshold float64, beamSize, retryBeamSize int) bool {
	return retryBeamSize > beamSize && confidence < threshold && dedupedText != ""
}

// selectAttempt keeps whichever attempt has the higher aggregate confidence.
// The first attempt wins ties.
func selectAttempt(first, retry transcription.Attempt) (transcription.Attempt, bool) {
	if retry.Confidence > first.Confidence {
		return retry, true
	}
	return first, false
}
