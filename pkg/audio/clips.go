package audio

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	ffmpeg "github.com/u2takey/ffmpeg-go"

	"github.com/voxlabs/voxscribe/pkg/logger"
)

const (
	// clipPadding widens the requested span for natural speech onsets.
	clipPadding = 0.2

	// minClipFileSize rejects clips the encoder produced but left
	// essentially empty.
	minClipFileSize = 1000
)

// ClipExtractor produces loudness-normalized speaker clips from source audio.
// Extraction is a best-effort side channel: failures are logged and reported
// as absence, never as errors.
type ClipExtractor struct {
	clipsDir string
	minDur   float64
	maxDur   float64
}

// NewClipExtractor creates a clip extractor writing into clipsDir.
func NewClipExtractor(clipsDir string, minDur, maxDur float64) *ClipExtractor {
	return &ClipExtractor{
		clipsDir: clipsDir,
		minDur:   minDur,
		maxDur:   maxDur,
	}
}

// clipWindow computes the padded, clamped extraction window. The duration is
// clamped to maxDur and, when below minDur, raised only as far as the padded
// natural span allows: a clip is never lengthened beyond its own audio.
func clipWindow(start, end, minDur, maxDur float64) (clipStart, duration float64) {
	clipStart = start - clipPadding
	if clipStart < 0 {
		clipStart = 0
	}
	// No upper clamp on end; the encoder truncates at source end.
	clipEnd := end + clipPadding

	duration = clipEnd - clipStart
	if duration > maxDur {
		duration = maxDur
	} else if duration < minDur {
		duration = math.Min(minDur, duration)
	}
	return clipStart, duration
}

// ExtractClip extracts a compressed, loudness-normalized clip of the given
// span and returns its path. The boolean result reports whether a usable
// clip was produced; extraction problems never propagate as errors.
func (e *ClipExtractor) ExtractClip(sourcePath string, start, end float64, speakerLabel, transcriptID string) (string, bool) {
	log := logger.WithComponent("clip-extractor").
		WithField("speaker", speakerLabel).
		WithField("transcript_id", transcriptID)

	clipStart, duration := clipWindow(start, end, e.minDur, e.maxDur)
	if duration <= 0 {
		log.Warn().Float64("start", start).Float64("end", end).Msg("Empty clip window, skipping")
		return "", false
	}

	if err := os.MkdirAll(e.clipsDir, 0o755); err != nil {
		log.Error().Err(err).Msg("Failed to create clips directory")
		return "", false
	}

	clipName := fmt.Sprintf("%s_%s_%d.mp3", transcriptID, speakerLabel, int(math.Floor(clipStart)))
	clipPath := filepath.Join(e.clipsDir, clipName)

	log.Debug().
		Float64("clip_start", clipStart).
		Float64("duration", duration).
		Str("clip", clipName).
		Msg("Extracting speaker clip")

	err := ffmpeg.Input(sourcePath, ffmpeg.KwArgs{
		"ss": strconv.FormatFloat(clipStart, 'f', -1, 64),
	}).
		Output(clipPath, ffmpeg.KwArgs{
			"t":      strconv.FormatFloat(duration, 'f', -1, 64),
			"af":     "loudnorm=I=-16:TP=-1.5:LRA=11",
			"acodec": "libmp3lame",
			"ab":     "192k",
			"ar":     "44100",
		}).
		OverWriteOutput().
		Run()
	if err != nil {
		log.Warn().Err(err).Msg("Clip extraction failed")
		_ = os.Remove(clipPath)
		return "", false
	}

	stat, err := os.Stat(clipPath)
	if err != nil {
		log.Warn().Err(err).Msg("Clip file missing after extraction")
		return "", false
	}
	if stat.Size() <= minClipFileSize {
		log.Warn().Int64("size", stat.Size()).Msg("Clip too small, removing")
		_ = os.Remove(clipPath)
		return "", false
	}

	log.Info().
		Str("clip", clipName).
		Float64("duration", duration).
		Int64("size", stat.Size()).
		Msg("Speaker clip extracted")
	return clipPath, true
}

// CleanupClips removes clip files whose modification time is older than
// cutoff. It returns the number of files removed.
func (e *ClipExtractor) CleanupClips(cutoffDays int) (int, error) {
	entries, err := os.ReadDir(e.clipsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read clips directory: %w", err)
	}

	log := logger.WithComponent("clip-extractor")
	removed := 0
	cutoff := daysAgo(cutoffDays)
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".mp3" {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(filepath.Join(e.clipsDir, entry.Name())); err == nil {
				log.Debug().Str("clip", entry.Name()).Msg("Removed old clip")
				removed++
			}
		}
	}
	return removed, nil
}

func daysAgo(days int) time.Time {
	return time.Now().AddDate(0, 0, -days)
}
