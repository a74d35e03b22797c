package transcript

import (
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestNewTranscriptID(t *testing.T) {
	ts := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	got := NewTranscriptID("a1b2c3d4", ts)
	want := "a1b2c3d4_20260314_092653"
	if got != want {
		t.Errorf("NewTranscriptID() = %q, want %q", got, want)
	}
}

func TestAssignSpeakers(t *testing.T) {
	turns := []Turn{
		{Start: 0, End: 5, Speaker: "SPEAKER_00"},
		{Start: 4, End: 10, Speaker: "SPEAKER_01"},
	}
	segments := []*Segment{
		{Start: 1, End: 3},    // midpoint 2, first turn
		{Start: 4, End: 4.5},  // midpoint 4.25, overlap region: first containing turn wins
		{Start: 6, End: 8},    // midpoint 7, second turn
		{Start: 20, End: 22},  // midpoint outside all turns
	}

	AssignSpeakers(segments, turns)

	want := []string{"SPEAKER_00", "SPEAKER_00", "SPEAKER_01", ""}
	for i, seg := range segments {
		if seg.Speaker != want[i] {
			t.Errorf("segment %d speaker = %q, want %q", i, seg.Speaker, want[i])
		}
	}
}

func TestSpeakerLabels(t *testing.T) {
	segments := []*Segment{
		{Speaker: "SPEAKER_01"},
		{Speaker: "SPEAKER_00"},
		{Speaker: "SPEAKER_01"},
		{Speaker: ""},
	}
	got := SpeakerLabels(segments)
	want := []string{"SPEAKER_00", "SPEAKER_01"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("SpeakerLabels() = %v, want %v", got, want)
	}
}

func TestRenderText(t *testing.T) {
	segments := []*Segment{
		{Text: " Hello there. ", Speaker: "SPEAKER_00"},
		{Text: "How are you?", Speaker: "SPEAKER_00"},
		{Text: "Fine, thanks.", Speaker: "SPEAKER_01"},
		{Text: "Good.", Speaker: "SPEAKER_00"},
	}

	t.Run("without diarization", func(t *testing.T) {
		got := RenderText(segments, false)
		want := "Hello there. How are you? Fine, thanks. Good."
		if got != want {
			t.Errorf("RenderText() = %q, want %q", got, want)
		}
	})

	t.Run("with diarization", func(t *testing.T) {
		got := RenderText(segments, true)

		// A block header appears every time the speaker changes, including
		// a return to an earlier speaker.
		if n := strings.Count(got, "[SPEAKER_00]:"); n != 2 {
			t.Errorf("SPEAKER_00 headers = %d, want 2", n)
		}
		if n := strings.Count(got, "[SPEAKER_01]:"); n != 1 {
			t.Errorf("SPEAKER_01 headers = %d, want 1", n)
		}
		if !strings.Contains(got, "[SPEAKER_00]: Hello there. How are you?") {
			t.Errorf("consecutive same-speaker segments not merged: %q", got)
		}
	})

	t.Run("unlabeled segments render as Unknown", func(t *testing.T) {
		got := RenderText([]*Segment{{Text: "Hi."}}, true)
		if !strings.Contains(got, "[Unknown]: Hi.") {
			t.Errorf("RenderText() = %q, want an Unknown block", got)
		}
	})

	t.Run("empty input", func(t *testing.T) {
		if got := RenderText(nil, true); got != "" {
			t.Errorf("RenderText(nil) = %q, want empty", got)
		}
	})
}

func TestIsDiarizationLabel(t *testing.T) {
	tests := []struct {
		label string
		want  bool
	}{
		{"SPEAKER_00", true},
		{"SPEAKER_12", true},
		{"speaker_00", false},
		{"SPEAKER_", false},
		{"SPEAKER_00x", false},
		{"Alice", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := IsDiarizationLabel(tt.label); got != tt.want {
			t.Errorf("IsDiarizationLabel(%q) = %v, want %v", tt.label, got, tt.want)
		}
	}
}
