package engine

const (
	// minSegmentDuration floors each segment's weight so zero-length segments
	// neither divide by zero nor dominate the mean.
	minSegmentDuration = 0.01

	// NoConfidence is reported for an empty segment list. An empty transcript
	// is a valid, if unconfident, outcome.
	NoConfidence = -1.0
)

// AggregateConfidence reduces per-segment average log-probabilities into one
// duration-weighted scalar for a transcription attempt.
func AggregateConfidence(segments []Segment) float64 {
	totalDuration := 0.0
	weighted := 0.0
	for _, seg := range segments {
		dur := seg.End - seg.Start
		if dur < minSegmentDuration {
			dur = minSegmentDuration
		}
		weighted += seg.AvgLogprob * dur
		totalDuration += dur
	}
	if totalDuration <= 0 {
		return NoConfidence
	}
	return weighted / totalDuration
}
