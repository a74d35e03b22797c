package audio

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	ffmpeg "github.com/u2takey/ffmpeg-go"

	"github.com/voxlabs/voxscribe/pkg/logger"
)

// ProcessorImpl implements the Processor interface using ffmpeg.
type ProcessorImpl struct {
	tempDir    string
	sampleRate int
	allowedExt map[string]bool
}

// NewProcessor creates a new audio processor. sampleRate is the target
// processing rate for WAV conversion; allowedExtensions lists acceptable
// input extensions without the leading dot.
func NewProcessor(tempDir string, sampleRate int, allowedExtensions []string) *ProcessorImpl {
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	allowed := make(map[string]bool, len(allowedExtensions))
	for _, ext := range allowedExtensions {
		allowed["."+strings.ToLower(strings.TrimPrefix(ext, "."))] = true
	}
	return &ProcessorImpl{
		tempDir:    tempDir,
		sampleRate: sampleRate,
		allowedExt: allowed,
	}
}

// Probe extracts metadata from an audio file
func (p *ProcessorImpl) Probe(filePath string) (*Info, error) {
	log := logger.WithComponent("audio-processor").WithField("file", filepath.Base(filePath))

	if !fileExists(filePath) {
		return nil, fmt.Errorf("file does not exist: %s", filePath)
	}

	log.Debug().Msg("Probing file with ffprobe")
	probeData, err := ffmpeg.Probe(filePath)
	if err != nil {
		log.Error().Err(err).Msg("Failed to probe file")
		return nil, fmt.Errorf("failed to probe file: %w", err)
	}

	info := &Info{FilePath: filePath}
	if err := parseProbeInfo(probeData, info); err != nil {
		return nil, fmt.Errorf("failed to parse probe info: %w", err)
	}

	log.Debug().
		Dur("duration", info.Duration).
		Int("sample_rate", info.SampleRate).
		Int("channels", info.Channels).
		Msg("Audio information extracted")

	return info, nil
}

// ConvertToWAV transcodes the input to mono 16-bit PCM WAV at the
// processing sample rate and returns the converted file path.
func (p *ProcessorImpl) ConvertToWAV(inputPath string) (string, error) {
	log := logger.WithComponent("audio-converter").WithField("input", filepath.Base(inputPath))

	if !fileExists(inputPath) {
		return "", fmt.Errorf("input file does not exist: %s", inputPath)
	}

	if err := os.MkdirAll(p.tempDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create temp directory: %w", err)
	}

	base := strings.TrimSuffix(filepath.Base(inputPath), filepath.Ext(inputPath))
	outputPath := filepath.Join(p.tempDir, fmt.Sprintf("%s_converted_%d.wav", base, time.Now().UnixNano()))

	log.Info().Str("output", outputPath).Int("sample_rate", p.sampleRate).Msg("Converting audio to WAV")
	startTime := time.Now()
	err := ffmpeg.Input(inputPath).
		Output(outputPath, ffmpeg.KwArgs{
			"acodec": "pcm_s16le",
			"ar":     strconv.Itoa(p.sampleRate),
			"ac":     "1",
		}).
		OverWriteOutput().
		Run()
	if err != nil {
		log.Error().Err(err).Msg("FFmpeg conversion failed")
		return "", fmt.Errorf("ffmpeg conversion failed: %w", err)
	}

	if !fileExists(outputPath) {
		return "", fmt.Errorf("output file was not created: %s", outputPath)
	}

	log.Info().Dur("took", time.Since(startTime)).Msg("Audio conversion completed")
	return outputPath, nil
}

// IsSupported checks if the file extension is allowed
func (p *ProcessorImpl) IsSupported(filePath string) bool {
	return p.allowedExt[strings.ToLower(filepath.Ext(filePath))]
}

// ValidateFile validates the audio file
func (p *ProcessorImpl) ValidateFile(filePath string) error {
	if !fileExists(filePath) {
		return fmt.Errorf("file does not exist: %s", filePath)
	}

	if !p.IsSupported(filePath) {
		return fmt.Errorf("unsupported file format: %s", filepath.Ext(filePath))
	}

	if _, err := ffmpeg.Probe(filePath); err != nil {
		return fmt.Errorf("invalid or corrupted file: %w", err)
	}

	return nil
}

func fileExists(filePath string) bool {
	_, err := os.Stat(filePath)
	return !os.IsNotExist(err)
}

// parseProbeInfo parses ffprobe output and fills Info
func parseProbeInfo(probeData string, info *Info) error {
	var probe struct {
		Format struct {
			Duration string `json:"duration"`
			BitRate  string `json:"bit_rate"`
			Size     string `json:"size"`
		} `json:"format"`
		Streams []struct {
			CodecType  string `json:"codec_type"`
			SampleRate string `json:"sample_rate"`
			Channels   int    `json:"channels"`
		} `json:"streams"`
	}

	if err := json.Unmarshal([]byte(probeData), &probe); err != nil {
		return fmt.Errorf("failed to parse probe JSON: %w", err)
	}

	if probe.Format.Duration != "" {
		if durationFloat, err := strconv.ParseFloat(probe.Format.Duration, 64); err == nil {
			info.Duration = time.Duration(durationFloat * float64(time.Second))
		}
	}
	if probe.Format.BitRate != "" {
		if bitRate, err := strconv.ParseInt(probe.Format.BitRate, 10, 64); err == nil {
			info.BitRate = int(bitRate)
		}
	}
	if probe.Format.Size != "" {
		if size, err := strconv.ParseInt(probe.Format.Size, 10, 64); err == nil {
			info.Size = size
		}
	}

	for _, stream := range probe.Streams {
		if stream.CodecType == "audio" {
			if stream.SampleRate != "" {
				if sampleRate, err := strconv.Atoi(stream.SampleRate); err == nil {
					info.SampleRate = sampleRate
				}
			}
			info.Channels = stream.Channels
			break
		}
	}

	return nil
}
