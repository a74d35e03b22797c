// Package speaker implements voice-based speaker identification: selecting
// representative audio spans, normalizing voice embeddings, and matching
// newly observed speakers against the persistent registry.
package speaker

import (
	"strings"

	"github.com/voxlabs/voxscribe/pkg/transcript"
)

// SelectBestSpan picks the segment that best represents a speaker's voice
// from segments already filtered to that speaker. Selection is deterministic:
// the highest-scoring segment wins and ties keep the earliest occurrence.
// Returns nil for empty input.
func SelectBestSpan(segments []*transcript.Segment) *transcript.Segment {
	if len(segments) == 0 {
		return nil
	}

	best := segments[0]
	bestScore := scoreSegment(segments[0])
	for _, seg := range segments[1:] {
		if score := scoreSegment(seg); score > bestScore {
			best = seg
			bestScore = score
		}
	}
	return best
}

// scoreSegment applies the clip-quality heuristic: mid-length spans with
// substantial text score highest, very short or very long spans are
// penalized.
func scoreSegment(seg *transcript.Segment) int {
	duration := seg.End - seg.Start
	words := len(strings.Fields(strings.TrimSpace(seg.Text)))

	score := 0
	switch {
	case duration >= 5 && duration <= 10:
		score += 10
	case duration >= 3 && duration <= 15:
		score += 5
	}

	if words >= 10 {
		score += 5
	}
	if words >= 20 {
		score += 5
	}

	if duration < 2 || duration > 20 {
		score -= 10
	}

	return score
}
