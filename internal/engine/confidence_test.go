package engine

import (
	"math"
	"testing"
)

func TestAggregateConfidenceWeightsByDuration(t *testing.T) {
	segments := []Segment{
		{Start: 0.0, End: 1.0, AvgLogprob: -0.8},
		{Start: 1.0, End: 3.0, AvgLogprob: -0.2},
	}

	got := AggregateConfidence(segments)
	want := (-0.8*1.0 + -0.2*2.0) / 3.0
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("AggregateConfidence() = %v, want %v", got, want)
	}
}

func TestAggregateConfidenceEmptySegmentsReturnsSentinel(t *testing.T) {
	if got := AggregateConfidence(nil); got != NoConfidence {
		t.Fatalf("AggregateConfidence(nil) = %v, want %v", got, NoConfidence)
	}
}

func TestAggregateConfidenceFloorsZeroLengthSegments(t *testing.T) {
	segments := []Segment{
		{Start: 1.0, End: 1.0, AvgLogprob: -2.0},
		{Start: 1.0, End: 2.0, AvgLogprob: -0.1},
	}

	got := AggregateConfidence(segments)
	want := (-2.0*0.01 + -0.1*1.0) / 1.01
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("AggregateConfidence() = %v, want %v", got, want)
	}
}

func TestAggregateConfidenceBoundedBySegmentExtremes(t *testing.T) {
	cases := [][]Segment{
		{{Start: 0, End: 0.5, AvgLogprob: -0.9}, {Start: 0.5, End: 4, AvgLogprob: -0.3}},
		{{Start: 0, End: 2, AvgLogprob: -1.5}},
		{{Start: 0, End: 0, AvgLogprob: -0.4}, {Start: 0, End: 0, AvgLogprob: -0.6}, {Start: 0, End: 10, AvgLogprob: -0.5}},
	}

	for _, segments := range cases {
		lo, hi := math.Inf(1), math.Inf(-1)
		for _, seg := range segments {
			lo = math.Min(lo, seg.AvgLogprob)
			hi = math.Max(hi, seg.AvgLogprob)
		}
		got := AggregateConfidence(segments)
		if got < lo-1e-9 || got > hi+1e-9 {
			t.Fatalf("AggregateConfidence(%+v) = %v, outside [%v, %v]", segments, got, lo, hi)
		}
	}
}
