// Package providers defines the interfaces to the external model backends:
// speech-to-text with alignment, speaker diarization, and voice embedding.
// Each backend runs as an HTTP sidecar and is treated as a black box.
package providers

import (
	"context"

	"github.com/voxlabs/voxscribe/pkg/transcript"
)

// TranscribeOptions provides configuration for a transcription call.
type TranscribeOptions struct {
	Model     string
	Language  string
	BatchSize int
}

// TranscriptionResult is the output of the speech-to-text backend.
type TranscriptionResult struct {
	Language string                `json:"language"`
	Segments []*transcript.Segment `json:"segments"`
}

// SpeechToText transcribes audio into time-stamped text segments and
// refines segment timestamps through forced alignment.
type SpeechToText interface {
	// Name returns the provider name
	Name() string

	// IsAvailable checks whether the backend is reachable
	IsAvailable(ctx context.Context) bool

	// Transcribe transcribes the audio file
	Transcribe(ctx context.Context, audioPath string, opts TranscribeOptions) (*TranscriptionResult, error)

	// Align refines segment timestamps for the detected language
	Align(ctx context.Context, audioPath, language string, segments []*transcript.Segment) ([]*transcript.Segment, error)
}

// Diarizer partitions audio into speaker-attributed time turns.
type Diarizer interface {
	// Name returns the provider name
	Name() string

	// IsAvailable checks whether the backend is reachable
	IsAvailable(ctx context.Context) bool

	// Diarize returns the speaker turns for the audio file
	Diarize(ctx context.Context, audioPath string) ([]transcript.Turn, error)
}

// Embedder computes a fixed-or-variable-length voice embedding for a span
// of an audio file. Spans must cover at least one second of audio; callers
// are responsible for widening shorter spans.
type Embedder interface {
	// Name returns the provider name
	Name() string

	// IsAvailable checks whether the backend is reachable
	IsAvailable(ctx context.Context) bool

	// Embed returns the voice embedding for the span
	Embed(ctx context.Context, audioPath string, start, end float64) ([]float32, error)
}

// CacheReleaser is implemented by providers whose backend holds
// device-resident model state that can be explicitly released.
type CacheReleaser interface {
	// ReleaseCache asks the backend to drop cached model memory
	ReleaseCache(ctx context.Context) error
}
