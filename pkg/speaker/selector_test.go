package speaker

import (
	"testing"

	"github.com/voxlabs/voxscribe/pkg/transcript"
)

func seg(start, end float64, text string) *transcript.Segment {
	return &transcript.Segment{Start: start, End: end, Text: text}
}

func TestSelectBestSpan(t *testing.T) {
	longText := "one two three four five six seven eight nine ten"

	tests := []struct {
		name     string
		segments []*transcript.Segment
		want     int // index into segments, -1 for nil
	}{
		{
			name:     "empty input",
			segments: nil,
			want:     -1,
		},
		{
			name:     "single segment",
			segments: []*transcript.Segment{seg(0, 1, "hi")},
			want:     0,
		},
		{
			name: "ideal duration beats short",
			segments: []*transcript.Segment{
				seg(0, 1, "hi"),
				seg(10, 17, longText),
			},
			want: 1,
		},
		{
			name: "very long span is penalized",
			segments: []*transcript.Segment{
				seg(0, 25, longText),
				seg(30, 36, longText),
			},
			want: 1,
		},
		{
			name: "word count breaks duration ties",
			segments: []*transcript.Segment{
				seg(0, 6, "short remark"),
				seg(10, 16, longText),
			},
			want: 1,
		},
		{
			name: "equal scores keep the earliest",
			segments: []*transcript.Segment{
				seg(0, 6, longText),
				seg(10, 16, longText),
			},
			want: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SelectBestSpan(tt.segments)
			if tt.want == -1 {
				if got != nil {
					t.Fatalf("SelectBestSpan() = %+v, want nil", got)
				}
				return
			}
			if got != tt.segments[tt.want] {
				t.Errorf("SelectBestSpan() = %+v, want segment %d", got, tt.want)
			}
		})
	}
}

func TestScoreSegment(t *testing.T) {
	tests := []struct {
		name string
		seg  *transcript.Segment
		want int
	}{
		{"ideal duration", seg(0, 7, "a b c"), 10},
		{"acceptable duration", seg(0, 4, "a b c"), 5},
		{"too short", seg(0, 1, "a"), -10},
		{"too long", seg(0, 30, "a"), -10},
		{"ten words", seg(0, 7, "a b c d e f g h i j"), 15},
		{"twenty words", seg(0, 7, "a b c d e f g h i j k l m n o p q r s t"), 20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := scoreSegment(tt.seg); got != tt.want {
				t.Errorf("scoreSegment() = %d, want %d", got, tt.want)
			}
		})
	}
}
