package transcript

import (
	"regexp"
	"time"
)

// Segment represents a time-aligned span of transcribed speech.
// Speaker attribution fields are filled in during diarization and matching.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`

	// Speaker is the current attribution: a raw diarization label
	// (e.g. SPEAKER_00) or, after matching, a known speaker's display name.
	Speaker string `json:"speaker,omitempty"`

	// OriginalSpeaker preserves the raw diarization label when the segment
	// has been relabeled by the matcher.
	OriginalSpeaker string  `json:"original_speaker,omitempty"`
	AutoMatched     bool    `json:"auto_matched,omitempty"`
	MatchConfidence float64 `json:"match_confidence,omitempty"`
}

// Duration returns the segment length in seconds.
func (s *Segment) Duration() float64 {
	return s.End - s.Start
}

// Turn is a speaker-attributed time range produced by the diarization
// backend. Turns are consumed during speaker assignment and not persisted.
type Turn struct {
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Speaker string  `json:"speaker"`
}

// SpeakerInfo summarizes the diarization outcome for a transcript.
type SpeakerInfo struct {
	Enabled bool     `json:"enabled"`
	Labels  []string `json:"speakers,omitempty"`
	Count   int      `json:"speaker_count,omitempty"`

	// Mappings records raw label to display name assignments made by the
	// speaker matcher.
	Mappings map[string]string `json:"mappings,omitempty"`

	// Error is set when diarization was attempted but failed at runtime.
	Error string `json:"error,omitempty"`
}

// Record is the persisted result of one transcription job. Records are
// written exactly once and never modified afterwards.
type Record struct {
	ID          string       `json:"id"`
	Filename    string       `json:"filename"`
	Duration    float64      `json:"duration"`
	Language    string       `json:"language"`
	Segments    []*Segment   `json:"segments"`
	Speakers    *SpeakerInfo `json:"speakers,omitempty"`
	Text        string       `json:"text"`
	ProcessedAt time.Time    `json:"processed_at"`
	DeviceInfo  string       `json:"device_info,omitempty"`
}

var diarizationLabelRe = regexp.MustCompile(`^SPEAKER_\d+$`)

// IsDiarizationLabel reports whether id looks like an auto-generated
// diarization label such as SPEAKER_00, as opposed to a human-assigned name.
func IsDiarizationLabel(id string) bool {
	return diarizationLabelRe.MatchString(id)
}
