package cmd

import (
	"fmt"

	"github.com/voxlabs/voxscribe/pkg/audio"
	"github.com/voxlabs/voxscribe/pkg/config"
	"github.com/voxlabs/voxscribe/pkg/pipeline"
	"github.com/voxlabs/voxscribe/pkg/providers/ecapa"
	"github.com/voxlabs/voxscribe/pkg/providers/pyannote"
	"github.com/voxlabs/voxscribe/pkg/providers/whisperx"
	"github.com/voxlabs/voxscribe/pkg/registry"
	"github.com/voxlabs/voxscribe/pkg/server"
	"github.com/voxlabs/voxscribe/pkg/speaker"
	"github.com/voxlabs/voxscribe/pkg/transcript"
)

// app bundles the wired application components shared by the serve and
// transcribe commands.
type app struct {
	cfg      *config.Config
	store    *transcript.Store
	registry *registry.Registry
	pipeline *pipeline.Pipeline
	clips    *audio.ClipExtractor
	backends server.Backends
}

// newApp loads configuration and wires stores, sidecar clients, and the
// pipeline. Callers must Close the app when done.
func newApp() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if err := config.EnsureDirectories(cfg); err != nil {
		return nil, err
	}

	store, err := transcript.OpenStore(cfg.Storage.TranscriptDB)
	if err != nil {
		return nil, fmt.Errorf("open transcript store: %w", err)
	}
	reg, err := registry.Open(cfg.Storage.RegistryDB)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("open speaker registry: %w", err)
	}

	stt := whisperx.NewProvider(whisperx.Config{
		BaseURL: cfg.Providers.WhisperX.BaseURL,
		Timeout: cfg.Providers.WhisperX.Timeout,
	})
	diarizer := pyannote.NewProvider(pyannote.Config{
		BaseURL:   cfg.Providers.Pyannote.BaseURL,
		AuthToken: cfg.Providers.Pyannote.AuthToken,
		Timeout:   cfg.Providers.Pyannote.Timeout,
	})
	embedder := ecapa.NewProvider(ecapa.Config{
		BaseURL: cfg.Providers.Embedder.BaseURL,
		Timeout: cfg.Providers.Embedder.Timeout,
	})

	matcher := speaker.NewMatcher(speaker.MatcherConfig{
		EmbeddingDim:        cfg.Speaker.EmbeddingDim,
		SimilarityThreshold: cfg.Speaker.SimilarityThreshold,
		Fallback:            speaker.FallbackPolicy(cfg.Speaker.FallbackPolicy),
	}, embedder)

	clips := audio.NewClipExtractor(cfg.Storage.ClipsDir, cfg.Audio.MinClipSeconds, cfg.Audio.MaxClipSeconds)
	pipe := pipeline.New(cfg, pipeline.Deps{
		STT:       stt,
		Diarizer:  diarizer,
		Embedder:  embedder,
		Processor: audio.NewProcessor(cfg.Storage.TempDir, cfg.Audio.SampleRate, cfg.Audio.AllowedExtensions),
		Clips:     clips,
		Matcher:   matcher,
		Registry:  reg,
		Store:     store,
	})

	return &app{
		cfg:      cfg,
		store:    store,
		registry: reg,
		pipeline: pipe,
		clips:    clips,
		backends: server.Backends{
			STT:      stt,
			Diarizer: diarizer,
			Embedder: embedder,
		},
	}, nil
}

func (a *app) Close() {
	a.registry.Close()
	a.store.Close()
}
