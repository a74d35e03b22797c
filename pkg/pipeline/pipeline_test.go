package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/voxlabs/voxscribe/pkg/audio"
	"github.com/voxlabs/voxscribe/pkg/config"
	"github.com/voxlabs/voxscribe/pkg/logger"
	"github.com/voxlabs/voxscribe/pkg/providers"
	"github.com/voxlabs/voxscribe/pkg/speaker"
	"github.com/voxlabs/voxscribe/pkg/transcript"
)

type fakeSTT struct {
	available     bool
	segments      []*transcript.Segment
	transcribeErr error
	alignErr      error
	released      int
}

func (f *fakeSTT) Name() string                       { return "fake-stt" }
func (f *fakeSTT) IsAvailable(context.Context) bool   { return f.available }
func (f *fakeSTT) ReleaseCache(context.Context) error { f.released++; return nil }
func (f *fakeSTT) Transcribe(_ context.Context, _ string, _ providers.TranscribeOptions) (*providers.TranscriptionResult, error) {
	if f.transcribeErr != nil {
		return nil, f.transcribeErr
	}
	return &providers.TranscriptionResult{Language: "en", Segments: f.segments}, nil
}
func (f *fakeSTT) Align(_ context.Context, _, _ string, segments []*transcript.Segment) ([]*transcript.Segment, error) {
	if f.alignErr != nil {
		return nil, f.alignErr
	}
	return segments, nil
}

type fakeDiarizer struct {
	turns []transcript.Turn
	err   error
}

func (f *fakeDiarizer) Name() string                     { return "fake-diarizer" }
func (f *fakeDiarizer) IsAvailable(context.Context) bool { return true }
func (f *fakeDiarizer) Diarize(context.Context, string) ([]transcript.Turn, error) {
	return f.turns, f.err
}

type fakeEmbedder struct {
	err error
}

func (f *fakeEmbedder) Name() string                     { return "fake-embedder" }
func (f *fakeEmbedder) IsAvailable(context.Context) bool { return true }
func (f *fakeEmbedder) Embed(context.Context, string, float64, float64) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []float32{1, 2, 3, 4}, nil
}

type fakeProcessor struct{}

func (fakeProcessor) Probe(string) (*audio.Info, error) {
	return &audio.Info{Duration: 30 * time.Second}, nil
}
func (fakeProcessor) ConvertToWAV(string) (string, error) {
	return "", errors.New("conversion unavailable")
}
func (fakeProcessor) IsSupported(string) bool   { return true }
func (fakeProcessor) ValidateFile(string) error { return nil }

type fakeClips struct {
	extracted []string
}

func (f *fakeClips) ExtractClip(_ string, _, _ float64, label, transcriptID string) (string, bool) {
	f.extracted = append(f.extracted, label)
	return "/clips/" + transcriptID + "_" + label + ".mp3", true
}

type fakeMatcher struct {
	mapping map[string]string
}

func (f *fakeMatcher) Match(_ context.Context, segments []*transcript.Segment, _ string, _ []speaker.Known) ([]*transcript.Segment, map[string]string) {
	for _, seg := range segments {
		if name, ok := f.mapping[seg.Speaker]; ok {
			seg.OriginalSpeaker = seg.Speaker
			seg.Speaker = name
			seg.AutoMatched = true
		}
	}
	return segments, f.mapping
}

type upsertCall struct {
	id         string
	clipPath   string
	sampleText string
	embedding  []float32
}

type fakeRegistry struct {
	known       []speaker.Known
	upserts     []upsertCall
	appearances map[string]int
	indexed     []string
}

func (f *fakeRegistry) Upsert(id, clipPath, sampleText string, embedding []float32) error {
	f.upserts = append(f.upserts, upsertCall{id, clipPath, sampleText, embedding})
	return nil
}
func (f *fakeRegistry) ListWithEmbeddings() ([]speaker.Known, error) { return f.known, nil }
func (f *fakeRegistry) RecordAppearance(_, speakerID string, segmentCount int) error {
	if f.appearances == nil {
		f.appearances = make(map[string]int)
	}
	f.appearances[speakerID] = segmentCount
	return nil
}
func (f *fakeRegistry) IndexTranscript(transcriptID, _, _ string) error {
	f.indexed = append(f.indexed, transcriptID)
	return nil
}

type fakeStore struct {
	saved []*transcript.Record
}

func (f *fakeStore) Save(record *transcript.Record) error {
	f.saved = append(f.saved, record)
	return nil
}

func testConfig(authToken string) *config.Config {
	cfg := config.DefaultConfig()
	cfg.Providers.Pyannote.AuthToken = authToken
	cfg.Speaker.EmbeddingDim = 4
	return cfg
}

func twoSpeakerSegments() []*transcript.Segment {
	return []*transcript.Segment{
		{Start: 0, End: 6, Text: "Good morning everyone, thanks for joining the call today."},
		{Start: 6, End: 12, Text: "Happy to be here, let's get started with the agenda."},
		{Start: 12, End: 18, Text: "First item is the quarterly report and its numbers."},
		{Start: 18, End: 24, Text: "I reviewed those numbers yesterday and they look solid."},
	}
}

func twoSpeakerTurns() []transcript.Turn {
	return []transcript.Turn{
		{Start: 0, End: 6, Speaker: "SPEAKER_00"},
		{Start: 6, End: 12, Speaker: "SPEAKER_01"},
		{Start: 12, End: 18, Speaker: "SPEAKER_00"},
		{Start: 18, End: 24, Speaker: "SPEAKER_01"},
	}
}

func TestProcessWithDiarization(t *testing.T) {
	stt := &fakeSTT{available: true, segments: twoSpeakerSegments()}
	reg := &fakeRegistry{}
	store := &fakeStore{}
	clips := &fakeClips{}

	p := New(testConfig("token"), Deps{
		STT:       stt,
		Diarizer:  &fakeDiarizer{turns: twoSpeakerTurns()},
		Embedder:  &fakeEmbedder{},
		Processor: fakeProcessor{},
		Clips:     clips,
		Matcher:   &fakeMatcher{},
		Registry:  reg,
		Store:     store,
	})

	record, err := p.Process(context.Background(), "meeting.wav", "abc12345", "meeting.wav")
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	if !record.Speakers.Enabled {
		t.Error("speakers not enabled")
	}
	if record.Speakers.Count != 2 {
		t.Errorf("speaker count = %d, want 2", record.Speakers.Count)
	}
	if record.Duration != 30 {
		t.Errorf("duration = %v, want 30", record.Duration)
	}
	if !strings.HasPrefix(record.ID, "abc12345_") {
		t.Errorf("id = %q, want upload-id prefix", record.ID)
	}
	if n := strings.Count(record.Text, "[SPEAKER_00]:"); n != 2 {
		t.Errorf("SPEAKER_00 blocks = %d, want 2", n)
	}
	if n := strings.Count(record.Text, "[SPEAKER_01]:"); n != 2 {
		t.Errorf("SPEAKER_01 blocks = %d, want 2", n)
	}

	if len(store.saved) != 1 {
		t.Fatalf("saved records = %d, want 1", len(store.saved))
	}
	if len(reg.indexed) != 1 || reg.indexed[0] != record.ID {
		t.Errorf("indexed = %v, want the saved transcript", reg.indexed)
	}

	// Both new labels got a clip, an embedding, and an appearance.
	if len(reg.upserts) != 2 {
		t.Fatalf("upserts = %d, want 2", len(reg.upserts))
	}
	for _, u := range reg.upserts {
		if !transcript.IsDiarizationLabel(u.id) {
			t.Errorf("upsert id = %q, want a raw label", u.id)
		}
		if u.clipPath == "" {
			t.Errorf("no clip stored for %s", u.id)
		}
		if len(u.embedding) != 4 {
			t.Errorf("embedding dim = %d, want 4", len(u.embedding))
		}
		if u.sampleText == "" {
			t.Errorf("no sample text for %s", u.id)
		}
	}
	if reg.appearances["SPEAKER_00"] != 2 || reg.appearances["SPEAKER_01"] != 2 {
		t.Errorf("appearances = %v, want 2 segments each", reg.appearances)
	}

	if stt.released == 0 {
		t.Error("model cache not evicted after a successful run")
	}
}

func TestProcessMatchedSpeakerKeepsIdentity(t *testing.T) {
	reg := &fakeRegistry{
		known: []speaker.Known{{ID: "SPEAKER_03", Name: "Alice", Embedding: []float32{1, 2, 3, 4}}},
	}
	clips := &fakeClips{}

	p := New(testConfig("token"), Deps{
		STT:       &fakeSTT{available: true, segments: twoSpeakerSegments()},
		Diarizer:  &fakeDiarizer{turns: twoSpeakerTurns()},
		Embedder:  &fakeEmbedder{},
		Processor: fakeProcessor{},
		Clips:     clips,
		Matcher:   &fakeMatcher{mapping: map[string]string{"SPEAKER_00": "Alice"}},
		Registry:  reg,
		Store:     &fakeStore{},
	})

	record, err := p.Process(context.Background(), "meeting.wav", "abc12345", "meeting.wav")
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	if record.Speakers.Mappings["SPEAKER_00"] != "Alice" {
		t.Errorf("mappings = %v, want SPEAKER_00 -> Alice", record.Speakers.Mappings)
	}
	if !strings.Contains(record.Text, "[Alice]:") {
		t.Errorf("text lacks the matched name: %q", record.Text)
	}

	// The matched label must not get a new clip or registry entry; the
	// existing identity is counted instead.
	for _, label := range clips.extracted {
		if label == "SPEAKER_00" {
			t.Error("clip extracted for a matched label")
		}
	}
	var matchedUpsert, newUpsert bool
	for _, u := range reg.upserts {
		switch u.id {
		case "SPEAKER_03":
			matchedUpsert = true
			if u.clipPath != "" || u.embedding != nil {
				t.Errorf("matched upsert carries new media: %+v", u)
			}
		case "SPEAKER_01":
			newUpsert = true
		default:
			t.Errorf("unexpected upsert id %q", u.id)
		}
	}
	if !matchedUpsert || !newUpsert {
		t.Errorf("upserts = %+v, want the known id and the new label", reg.upserts)
	}
	if reg.appearances["SPEAKER_03"] != 2 {
		t.Errorf("matched appearance segments = %d, want 2", reg.appearances["SPEAKER_03"])
	}
}

func TestProcessMergedLabelsCountOnce(t *testing.T) {
	// Both diarized labels matched to the same known speaker: the record
	// must report one identity, not two raw labels.
	reg := &fakeRegistry{
		known: []speaker.Known{{ID: "SPEAKER_00", Name: "Alice", Embedding: []float32{1, 2, 3, 4}}},
	}

	p := New(testConfig("token"), Deps{
		STT:       &fakeSTT{available: true, segments: twoSpeakerSegments()},
		Diarizer:  &fakeDiarizer{turns: twoSpeakerTurns()},
		Embedder:  &fakeEmbedder{},
		Processor: fakeProcessor{},
		Clips:     &fakeClips{},
		Matcher:   &fakeMatcher{mapping: map[string]string{"SPEAKER_00": "Alice", "SPEAKER_01": "Alice"}},
		Registry:  reg,
		Store:     &fakeStore{},
	})

	record, err := p.Process(context.Background(), "meeting.wav", "abc12345", "meeting.wav")
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	if !reflect.DeepEqual(record.Speakers.Labels, []string{"Alice"}) {
		t.Errorf("labels = %v, want [Alice]", record.Speakers.Labels)
	}
	if record.Speakers.Count != 1 {
		t.Errorf("speaker count = %d, want 1", record.Speakers.Count)
	}
	if record.Speakers.Count != len(record.Speakers.Labels) {
		t.Errorf("count %d disagrees with labels %v", record.Speakers.Count, record.Speakers.Labels)
	}
}

func TestProcessWithoutAuthTokenSkipsDiarization(t *testing.T) {
	reg := &fakeRegistry{}
	p := New(testConfig(""), Deps{
		STT:       &fakeSTT{available: true, segments: twoSpeakerSegments()},
		Diarizer:  &fakeDiarizer{turns: twoSpeakerTurns()},
		Embedder:  &fakeEmbedder{},
		Processor: fakeProcessor{},
		Clips:     &fakeClips{},
		Matcher:   &fakeMatcher{},
		Registry:  reg,
		Store:     &fakeStore{},
	})

	record, err := p.Process(context.Background(), "meeting.wav", "abc12345", "meeting.wav")
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	if record.Speakers.Enabled {
		t.Error("speakers enabled without an auth token")
	}
	if strings.Contains(record.Text, "[SPEAKER_00]") {
		t.Errorf("text contains speaker blocks: %q", record.Text)
	}
	if len(reg.upserts) != 0 {
		t.Errorf("registry written without diarization: %+v", reg.upserts)
	}
}

func TestProcessDiarizationFailureDegrades(t *testing.T) {
	p := New(testConfig("token"), Deps{
		STT:       &fakeSTT{available: true, segments: twoSpeakerSegments()},
		Diarizer:  &fakeDiarizer{err: errors.New("gpu out of memory")},
		Embedder:  &fakeEmbedder{},
		Processor: fakeProcessor{},
		Clips:     &fakeClips{},
		Matcher:   &fakeMatcher{},
		Registry:  &fakeRegistry{},
		Store:     &fakeStore{},
	})

	record, err := p.Process(context.Background(), "meeting.wav", "abc12345", "meeting.wav")
	if err != nil {
		t.Fatalf("Process() error = %v: a diarization failure must not fail the job", err)
	}

	if record.Speakers.Enabled {
		t.Error("speakers enabled despite diarization failure")
	}
	if record.Speakers.Error == "" {
		t.Error("diarization error not recorded")
	}
	if record.Text == "" {
		t.Error("plain transcript missing")
	}
}

func TestProcessTranscribeFailureEvictsCache(t *testing.T) {
	stt := &fakeSTT{available: true, transcribeErr: errors.New("model crashed")}
	p := New(testConfig("token"), Deps{
		STT:       stt,
		Diarizer:  &fakeDiarizer{},
		Embedder:  &fakeEmbedder{},
		Processor: fakeProcessor{},
		Clips:     &fakeClips{},
		Matcher:   &fakeMatcher{},
		Registry:  &fakeRegistry{},
		Store:     &fakeStore{},
	})

	if _, err := p.Process(context.Background(), "meeting.wav", "abc12345", "meeting.wav"); err == nil {
		t.Fatal("Process() error = nil, want transcription failure")
	}
	if stt.released == 0 {
		t.Error("model cache not evicted on the failure path")
	}
}

func TestProcessFailureEntersFailedStage(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "pipeline.log")
	if err := logger.Initialize(&logger.Config{Level: "debug", Format: "json", Output: logPath}); err != nil {
		t.Fatalf("logger init: %v", err)
	}
	t.Cleanup(func() { _ = logger.Initialize(nil) })

	p := New(testConfig("token"), Deps{
		STT:       &fakeSTT{available: true, transcribeErr: errors.New("model crashed")},
		Diarizer:  &fakeDiarizer{},
		Embedder:  &fakeEmbedder{},
		Processor: fakeProcessor{},
		Clips:     &fakeClips{},
		Matcher:   &fakeMatcher{},
		Registry:  &fakeRegistry{},
		Store:     &fakeStore{},
	})

	if _, err := p.Process(context.Background(), "meeting.wav", "abc12345", "meeting.wav"); err == nil {
		t.Fatal("Process() error = nil, want transcription failure")
	}

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(data), `"stage":"failed"`) {
		t.Errorf("failure log does not enter the failed stage:\n%s", data)
	}
	if !strings.Contains(string(data), `"failed_after":"preprocessed"`) {
		t.Errorf("failure log does not record the last completed stage:\n%s", data)
	}
}

func TestProcessUnavailableBackendFails(t *testing.T) {
	p := New(testConfig(""), Deps{
		STT:       &fakeSTT{available: false},
		Diarizer:  &fakeDiarizer{},
		Embedder:  &fakeEmbedder{},
		Processor: fakeProcessor{},
		Clips:     &fakeClips{},
		Matcher:   &fakeMatcher{},
		Registry:  &fakeRegistry{},
		Store:     &fakeStore{},
	})

	if _, err := p.Process(context.Background(), "meeting.wav", "abc12345", "meeting.wav"); err == nil {
		t.Fatal("Process() error = nil, want unavailable backend failure")
	}
}
