package transcript

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// NewTranscriptID derives a transcript identifier from the upload
// correlation id and the processing timestamp. The timestamp component
// keeps ids unique across repeated uploads of the same file.
func NewTranscriptID(uploadID string, t time.Time) string {
	return fmt.Sprintf("%s_%s", uploadID, t.Format("20060102_150405"))
}

// AssignSpeakers labels each segment with the speaker of the first
// diarization turn whose interval contains the segment's temporal midpoint.
// Segments whose midpoint falls inside no turn are left unlabeled.
func AssignSpeakers(segments []*Segment, turns []Turn) {
	for _, seg := range segments {
		mid := (seg.Start + seg.End) / 2
		for _, turn := range turns {
			if turn.Start <= mid && mid <= turn.End {
				seg.Speaker = turn.Speaker
				break
			}
		}
	}
}

// SpeakerLabels returns the distinct speaker labels present in segments,
// sorted lexicographically. Unlabeled segments are ignored.
func SpeakerLabels(segments []*Segment) []string {
	seen := make(map[string]bool)
	for _, seg := range segments {
		if seg.Speaker != "" {
			seen[seg.Speaker] = true
		}
	}
	labels := make([]string, 0, len(seen))
	for label := range seen {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	return labels
}

// SegmentsForSpeaker returns the segments currently attributed to label.
func SegmentsForSpeaker(segments []*Segment, label string) []*Segment {
	var out []*Segment
	for _, seg := range segments {
		if seg.Speaker == label {
			out = append(out, seg)
		}
	}
	return out
}

// RenderText produces the display text for a transcript. With diarization
// enabled, consecutive segments are grouped by speaker and rendered as
// "[speaker]: text" blocks; a new block starts whenever the speaker differs
// from the immediately preceding segment. Without diarization the segment
// texts are joined with single spaces.
func RenderText(segments []*Segment, diarized bool) string {
	if !diarized {
		parts := make([]string, 0, len(segments))
		for _, seg := range segments {
			if text := strings.TrimSpace(seg.Text); text != "" {
				parts = append(parts, text)
			}
		}
		return strings.Join(parts, " ")
	}

	var parts []string
	current := ""
	for i, seg := range segments {
		speaker := seg.Speaker
		if speaker == "" {
			speaker = "Unknown"
		}
		text := strings.TrimSpace(seg.Text)
		if i == 0 || speaker != current {
			parts = append(parts, fmt.Sprintf("\n[%s]: %s", speaker, text))
			current = speaker
		} else {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " ")
}
