package speaker

import (
	"context"
	"fmt"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/floats"

	"github.com/voxlabs/voxscribe/pkg/logger"
	"github.com/voxlabs/voxscribe/pkg/transcript"
)

// FallbackPolicy selects behavior when the embedding backend fails.
type FallbackPolicy string

const (
	// FallbackDegrade substitutes a pseudo-random embedding so the pipeline
	// keeps running; the speaker will almost certainly stay unmatched but
	// still receives a registry entry. This trades accuracy for
	// availability.
	FallbackDegrade FallbackPolicy = "degrade"

	// FallbackFail leaves the label unmatched on embedding failure.
	FallbackFail FallbackPolicy = "fail"
)

// Known is a previously identified speaker eligible for matching.
type Known struct {
	ID        string
	Name      string
	Embedding []float32
}

// Embedder computes a voice embedding for a span of an audio file.
type Embedder interface {
	Embed(ctx context.Context, audioPath string, start, end float64) ([]float32, error)
}

// MatcherConfig holds speaker matching parameters.
type MatcherConfig struct {
	// EmbeddingDim is the registry's fixed embedding dimension.
	EmbeddingDim int

	// SimilarityThreshold must be strictly exceeded for a match.
	SimilarityThreshold float64

	Fallback FallbackPolicy
}

// Matcher relabels diarized segments with known speaker identities using
// voice-embedding similarity.
type Matcher struct {
	cfg      MatcherConfig
	embedder Embedder
}

// NewMatcher creates a speaker matcher.
func NewMatcher(cfg MatcherConfig, embedder Embedder) *Matcher {
	if cfg.Fallback == "" {
		cfg.Fallback = FallbackDegrade
	}
	return &Matcher{cfg: cfg, embedder: embedder}
}

// Match compares each unidentified diarization label in segments against the
// known speakers and relabels matching segments in place. It returns the
// segments and the raw-label to display-name mapping that was applied.
// Only labels following the diarization naming convention are candidates;
// already-named speakers are left untouched.
func (m *Matcher) Match(ctx context.Context, segments []*transcript.Segment, audioPath string, known []Known) ([]*transcript.Segment, map[string]string) {
	log := logger.WithComponent("speaker-matcher")
	mapping := make(map[string]string)

	if len(known) == 0 {
		log.Debug().Msg("No known speakers to match against")
		return segments, mapping
	}

	groups := make(map[string][]*transcript.Segment)
	for _, seg := range segments {
		if transcript.IsDiarizationLabel(seg.Speaker) {
			groups[seg.Speaker] = append(groups[seg.Speaker], seg)
		}
	}

	labels := make([]string, 0, len(groups))
	for label := range groups {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	// Each label keeps its own similarity; segments relabeled for one
	// label must not inherit another label's confidence.
	confidence := make(map[string]float64)

	for _, label := range labels {
		group := groups[label]
		best := SelectBestSpan(group)
		if best == nil {
			best = group[0]
		}

		query, err := m.embedSpan(ctx, audioPath, best.Start, best.End)
		if err != nil {
			if m.cfg.Fallback != FallbackDegrade {
				log.Warn().Err(err).Str("label", label).Msg("Embedding failed, leaving label unmatched")
				continue
			}
			log.Warn().Err(err).Str("label", label).Msg("Embedding failed, falling back to pseudo-random vector")
			query = RandomEmbedding(m.cfg.EmbeddingDim)
		}
		query = NormalizeEmbedding(query, m.cfg.EmbeddingDim)

		bestSim := 0.0
		bestName := ""
		for _, k := range known {
			candidate := NormalizeEmbedding(k.Embedding, m.cfg.EmbeddingDim)
			sim, err := CosineSimilarity(query, candidate)
			if err != nil {
				// One corrupt stored embedding must not abort matching
				// against the rest of the registry.
				log.Warn().Err(err).Str("label", label).Str("candidate", k.Name).Msg("Comparison failed, skipping candidate")
				continue
			}
			if sim > bestSim {
				bestSim = sim
				bestName = k.Name
			}
		}

		if bestSim > m.cfg.SimilarityThreshold {
			mapping[label] = bestName
			confidence[label] = bestSim
			log.Info().
				Str("label", label).
				Str("matched", bestName).
				Float64("similarity", bestSim).
				Msg("Matched speaker")
		} else {
			log.Debug().
				Str("label", label).
				Float64("best_similarity", bestSim).
				Float64("threshold", m.cfg.SimilarityThreshold).
				Msg("No match above threshold")
		}
	}

	for _, seg := range segments {
		if name, ok := mapping[seg.Speaker]; ok {
			seg.OriginalSpeaker = seg.Speaker
			seg.Speaker = name
			seg.AutoMatched = true
			seg.MatchConfidence = confidence[seg.OriginalSpeaker]
		}
	}

	return segments, mapping
}

// embedSpan computes the embedding for a span, widening spans shorter than
// one second: the embedding backend requires at least one second of audio.
func (m *Matcher) embedSpan(ctx context.Context, audioPath string, start, end float64) ([]float32, error) {
	if end-start < 1 {
		end = start + 1
	}
	return m.embedder.Embed(ctx, audioPath, start, end)
}

// CosineSimilarity returns 1 minus the cosine distance between two vectors
// of equal length. Zero-magnitude vectors cannot be compared.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) || len(a) == 0 {
		return 0, fmt.Errorf("cannot compare vectors of lengths %d and %d", len(a), len(b))
	}

	av := make([]float64, len(a))
	bv := make([]float64, len(b))
	for i := range a {
		av[i] = float64(a[i])
		bv[i] = float64(b[i])
	}

	normA := floats.Norm(av, 2)
	normB := floats.Norm(bv, 2)
	if normA == 0 || normB == 0 {
		return 0, fmt.Errorf("cannot compare zero-magnitude vectors")
	}

	return floats.Dot(av, bv) / (normA * normB), nil
}

// RandomEmbedding draws a vector from the standard normal distribution.
func RandomEmbedding(dim int) []float32 {
	v := make([]float32, dim)
	for i := range v {
		v[i] = float32(rand.NormFloat64())
	}
	return v
}
