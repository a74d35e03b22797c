// Package pipeline orchestrates the transcription flow: audio validation
// and conversion, speech-to-text with alignment, speaker diarization,
// voice-embedding speaker matching, clip extraction, and persistence.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/voxlabs/voxscribe/pkg/audio"
	"github.com/voxlabs/voxscribe/pkg/config"
	"github.com/voxlabs/voxscribe/pkg/logger"
	"github.com/voxlabs/voxscribe/pkg/providers"
	"github.com/voxlabs/voxscribe/pkg/speaker"
	"github.com/voxlabs/voxscribe/pkg/transcript"
)

// Stage identifies how far a job has progressed.
type Stage string

const (
	StageReceived       Stage = "received"
	StagePreprocessed   Stage = "preprocessed"
	StageTranscribed    Stage = "transcribed"
	StageDiarized       Stage = "diarized"
	StageMatched        Stage = "matched"
	StageClipsExtracted Stage = "clips_extracted"
	StagePersisted      Stage = "persisted"
	StageDone           Stage = "done"
	StageFailed         Stage = "failed"
)

// SpeakerRegistry is the subset of the registry the pipeline uses.
type SpeakerRegistry interface {
	Upsert(id, clipPath, sampleText string, embedding []float32) error
	ListWithEmbeddings() ([]speaker.Known, error)
	RecordAppearance(transcriptID, speakerID string, segmentCount int) error
	IndexTranscript(transcriptID, filename, fullText string) error
}

// TranscriptStore persists completed transcripts.
type TranscriptStore interface {
	Save(record *transcript.Record) error
}

// ClipExtractor cuts a representative audio clip for a speaker.
type ClipExtractor interface {
	ExtractClip(sourcePath string, start, end float64, speakerLabel, transcriptID string) (string, bool)
}

// SpeakerMatcher relabels diarized segments with known speaker identities.
type SpeakerMatcher interface {
	Match(ctx context.Context, segments []*transcript.Segment, audioPath string, known []speaker.Known) ([]*transcript.Segment, map[string]string)
}

type deviceInfoProvider interface {
	DeviceInfo(ctx context.Context) string
}

// Deps collects the pipeline's collaborators.
type Deps struct {
	STT       providers.SpeechToText
	Diarizer  providers.Diarizer
	Embedder  providers.Embedder
	Processor audio.Processor
	Clips     ClipExtractor
	Matcher   SpeakerMatcher
	Registry  SpeakerRegistry
	Store     TranscriptStore
	Cache     *ModelCache
}

// Pipeline runs uploaded audio through transcription, diarization, speaker
// matching, and persistence. A single Pipeline is safe for concurrent jobs;
// the model backends serialize work themselves.
type Pipeline struct {
	cfg  *config.Config
	deps Deps
	log  *logger.Logger
}

// New creates a pipeline.
func New(cfg *config.Config, deps Deps) *Pipeline {
	if deps.Cache == nil {
		deps.Cache = NewModelCache(0)
	}
	if r, ok := deps.STT.(providers.CacheReleaser); ok {
		deps.Cache.Register(deps.STT.Name(), r)
	}
	if deps.Diarizer != nil {
		if r, ok := deps.Diarizer.(providers.CacheReleaser); ok {
			deps.Cache.Register(deps.Diarizer.Name(), r)
		}
	}
	if deps.Embedder != nil {
		if r, ok := deps.Embedder.(providers.CacheReleaser); ok {
			deps.Cache.Register(deps.Embedder.Name(), r)
		}
	}
	return &Pipeline{
		cfg:  cfg,
		deps: deps,
		log:  logger.WithComponent("pipeline"),
	}
}

// Process runs one uploaded file through the full pipeline and returns the
// persisted transcript. filePath is the stored upload on disk; filename is
// the name the client gave it. Model memory is released on every exit path.
func (p *Pipeline) Process(ctx context.Context, filePath, uploadID, filename string) (*transcript.Record, error) {
	log := p.log.WithField("upload_id", uploadID)
	stage := StageReceived

	defer p.deps.Cache.EvictAll(context.WithoutCancel(ctx))

	fail := func(err error, what string) (*transcript.Record, error) {
		failedAfter := stage
		stage = StageFailed
		log.Error().Err(err).
			Str("stage", string(stage)).
			Str("failed_after", string(failedAfter)).
			Msg("Pipeline failed")
		return nil, fmt.Errorf("%s: %w", what, err)
	}
	advance := func(s Stage) {
		stage = s
		log.Debug().Str("stage", string(s)).Msg("Stage complete")
	}

	if err := p.deps.Processor.ValidateFile(filePath); err != nil {
		return fail(err, "validate audio")
	}
	if !p.deps.STT.IsAvailable(ctx) {
		return fail(fmt.Errorf("backend %s is not reachable", p.deps.STT.Name()), "transcription")
	}

	// Preprocess. Conversion failure degrades to the original file: the
	// backends can decode most container formats themselves.
	processPath := filePath
	if strings.ToLower(filepath.Ext(filePath)) != ".wav" {
		wavPath, err := p.deps.Processor.ConvertToWAV(filePath)
		if err != nil {
			log.Warn().Err(err).Msg("WAV conversion failed, using original file")
		} else {
			processPath = wavPath
			if !p.cfg.Storage.KeepTempFiles {
				defer os.Remove(wavPath)
			}
		}
	}
	advance(StagePreprocessed)

	var duration float64
	if info, err := p.deps.Processor.Probe(processPath); err != nil {
		log.Warn().Err(err).Msg("Probe failed, duration unknown")
	} else {
		duration = info.Seconds()
	}

	result, err := p.deps.STT.Transcribe(ctx, processPath, providers.TranscribeOptions{
		Model:     p.cfg.Providers.WhisperX.Model,
		Language:  p.cfg.Providers.WhisperX.Language,
		BatchSize: p.cfg.Providers.WhisperX.BatchSize,
	})
	if err != nil {
		return fail(err, "transcribe")
	}
	segments := result.Segments

	if aligned, err := p.deps.STT.Align(ctx, processPath, result.Language, segments); err != nil {
		log.Warn().Err(err).Msg("Alignment failed, keeping coarse timestamps")
	} else {
		segments = aligned
	}
	advance(StageTranscribed)

	transcriptID := transcript.NewTranscriptID(uploadID, time.Now())

	var speakers *transcript.SpeakerInfo
	if p.diarizationEnabled() {
		speakers = p.identifySpeakers(ctx, log, segments, processPath, transcriptID, advance)
	} else {
		log.Info().Msg("Diarization disabled: no auth token configured")
		speakers = &transcript.SpeakerInfo{Enabled: false}
		advance(StageDiarized)
		advance(StageMatched)
		advance(StageClipsExtracted)
	}

	record := &transcript.Record{
		ID:          transcriptID,
		Filename:    filename,
		Duration:    duration,
		Language:    result.Language,
		Segments:    segments,
		Speakers:    speakers,
		Text:        transcript.RenderText(segments, speakers.Enabled),
		ProcessedAt: time.Now(),
		DeviceInfo:  p.deviceInfo(ctx),
	}

	if err := p.deps.Store.Save(record); err != nil {
		return fail(err, "persist transcript")
	}
	if err := p.deps.Registry.IndexTranscript(record.ID, record.Filename, record.Text); err != nil {
		log.Warn().Err(err).Msg("Search indexing failed")
	}
	advance(StagePersisted)
	advance(StageDone)

	log.Info().
		Str("transcript_id", record.ID).
		Int("segments", len(segments)).
		Bool("diarized", speakers.Enabled).
		Msg("Transcription complete")

	return record, nil
}

func (p *Pipeline) diarizationEnabled() bool {
	return p.deps.Diarizer != nil && p.cfg.Providers.Pyannote.AuthToken != ""
}

// identifySpeakers diarizes the audio, matches the resulting labels against
// the registry, and records clips and appearances for every label. Runtime
// diarization errors disable speaker attribution for this transcript only.
func (p *Pipeline) identifySpeakers(ctx context.Context, log *logger.Logger, segments []*transcript.Segment, audioPath, transcriptID string, advance func(Stage)) *transcript.SpeakerInfo {
	turns, err := p.deps.Diarizer.Diarize(ctx, audioPath)
	if err != nil {
		log.Warn().Err(err).Msg("Diarization failed, producing plain transcript")
		return &transcript.SpeakerInfo{Enabled: false, Error: err.Error()}
	}
	transcript.AssignSpeakers(segments, turns)
	rawLabels := transcript.SpeakerLabels(segments)
	advance(StageDiarized)

	var mapping map[string]string
	known, err := p.deps.Registry.ListWithEmbeddings()
	if err != nil {
		log.Warn().Err(err).Msg("Registry lookup failed, skipping speaker matching")
	} else if len(known) > 0 && p.deps.Matcher != nil {
		segments, mapping = p.deps.Matcher.Match(ctx, segments, audioPath, known)
	}
	advance(StageMatched)

	p.saveSpeakers(ctx, log, segments, audioPath, transcriptID, rawLabels, mapping, known)
	advance(StageClipsExtracted)

	// Count reflects distinct identities after matching: two raw labels
	// mapped to the same known speaker count once.
	labels := finalLabels(rawLabels, mapping)
	info := &transcript.SpeakerInfo{
		Enabled: true,
		Labels:  labels,
		Count:   len(labels),
	}
	if len(mapping) > 0 {
		info.Mappings = mapping
	}
	return info
}

// saveSpeakers registers every diarized label. Matched labels only count an
// appearance for the existing identity; unmatched labels get a clip, an
// embedding, and a fresh registry entry under the raw label. Failures here
// never abort the job.
func (p *Pipeline) saveSpeakers(ctx context.Context, log *logger.Logger, segments []*transcript.Segment, audioPath, transcriptID string, rawLabels []string, mapping map[string]string, known []speaker.Known) {
	for _, label := range rawLabels {
		if name, matched := mapping[label]; matched {
			id := knownIDByName(known, name)
			if id == "" {
				id = name
			}
			if err := p.deps.Registry.Upsert(id, "", "", nil); err != nil {
				log.Warn().Err(err).Str("speaker", id).Msg("Appearance count update failed")
			}
			count := countByOriginal(segments, label)
			if err := p.deps.Registry.RecordAppearance(transcriptID, id, count); err != nil {
				log.Warn().Err(err).Str("speaker", id).Msg("Appearance record failed")
			}
			continue
		}

		group := transcript.SegmentsForSpeaker(segments, label)
		if len(group) == 0 {
			continue
		}
		best := speaker.SelectBestSpan(group)
		if best == nil {
			best = group[0]
		}

		clipPath, ok := p.deps.Clips.ExtractClip(audioPath, best.Start, best.End, label, transcriptID)
		if !ok {
			log.Warn().Str("speaker", label).Msg("Clip extraction produced no clip")
			clipPath = ""
		}
		embedding := p.spanEmbedding(ctx, log, audioPath, label, best)

		if err := p.deps.Registry.Upsert(label, clipPath, strings.TrimSpace(best.Text), embedding); err != nil {
			log.Warn().Err(err).Str("speaker", label).Msg("Registry upsert failed")
			continue
		}
		if err := p.deps.Registry.RecordAppearance(transcriptID, label, len(group)); err != nil {
			log.Warn().Err(err).Str("speaker", label).Msg("Appearance record failed")
		}
	}
}

// spanEmbedding computes the stored embedding for a new speaker, widening
// sub-second spans to the backend's one-second minimum. Under the degrade
// policy an embedding failure yields a pseudo-random vector so the entry
// still exists; under fail the entry is stored without one.
func (p *Pipeline) spanEmbedding(ctx context.Context, log *logger.Logger, audioPath, label string, span *transcript.Segment) []float32 {
	if p.deps.Embedder == nil {
		return nil
	}
	start, end := span.Start, span.End
	if end-start < 1 {
		end = start + 1
	}
	embedding, err := p.deps.Embedder.Embed(ctx, audioPath, start, end)
	if err != nil {
		if p.cfg.Speaker.FallbackPolicy != string(speaker.FallbackDegrade) {
			log.Warn().Err(err).Str("speaker", label).Msg("Embedding failed, storing entry without one")
			return nil
		}
		log.Warn().Err(err).Str("speaker", label).Msg("Embedding failed, storing pseudo-random vector")
		embedding = speaker.RandomEmbedding(p.cfg.Speaker.EmbeddingDim)
	}
	return speaker.NormalizeEmbedding(embedding, p.cfg.Speaker.EmbeddingDim)
}

func (p *Pipeline) deviceInfo(ctx context.Context) string {
	if dp, ok := p.deps.STT.(deviceInfoProvider); ok {
		return dp.DeviceInfo(ctx)
	}
	return ""
}

// finalLabels lists the display labels after matching: mapped names replace
// their raw labels, deduplicated and sorted.
func finalLabels(rawLabels []string, mapping map[string]string) []string {
	seen := make(map[string]bool)
	out := make([]string, 0, len(rawLabels))
	for _, label := range rawLabels {
		display := label
		if name, ok := mapping[label]; ok {
			display = name
		}
		if !seen[display] {
			seen[display] = true
			out = append(out, display)
		}
	}
	sort.Strings(out)
	return out
}

func countByOriginal(segments []*transcript.Segment, label string) int {
	n := 0
	for _, seg := range segments {
		if seg.OriginalSpeaker == label {
			n++
		}
	}
	return n
}

func knownIDByName(known []speaker.Known, name string) string {
	for _, k := range known {
		if k.Name == name {
			return k.ID
		}
	}
	return ""
}
