// Package whisperx implements the speech-to-text provider against a
// WhisperX HTTP sidecar exposing /transcribe and /align endpoints.
package whisperx

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/voxlabs/voxscribe/pkg/providers"
	"github.com/voxlabs/voxscribe/pkg/transcript"
)

const (
	// ProviderName is the registered name for the WhisperX provider.
	ProviderName = "whisperx"

	defaultBaseURL = "http://localhost:8386"
	defaultTimeout = 600 * time.Second
)

// Config holds configuration for the WhisperX sidecar client.
type Config struct {
	BaseURL string        `json:"base_url" yaml:"base_url"`
	Timeout time.Duration `json:"timeout" yaml:"timeout"`
}

// Provider implements providers.SpeechToText against the WhisperX sidecar.
type Provider struct {
	cfg    Config
	client *http.Client
}

// NewProvider creates a new WhisperX provider.
func NewProvider(cfg Config) *Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Provider{
		cfg: cfg,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// Name returns the provider name.
func (p *Provider) Name() string { return ProviderName }

// IsAvailable checks if the WhisperX sidecar is reachable.
func (p *Provider) IsAvailable(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.BaseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// DeviceInfo reports the compute device the sidecar loaded its models on,
// or an empty string when the sidecar is unreachable.
func (p *Provider) DeviceInfo(ctx context.Context) string {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.BaseURL+"/health", nil)
	if err != nil {
		return ""
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return ""
	}
	defer resp.Body.Close()

	var health struct {
		Device string `json:"device"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return ""
	}
	return health.Device
}

// Transcribe sends audio to the sidecar and returns time-stamped segments.
func (p *Provider) Transcribe(ctx context.Context, audioPath string, opts providers.TranscribeOptions) (*providers.TranscriptionResult, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	if err := writeAudioPart(writer, audioPath); err != nil {
		return nil, err
	}
	if opts.Model != "" {
		_ = writer.WriteField("model", opts.Model)
	}
	if opts.Language != "" {
		_ = writer.WriteField("language", opts.Language)
	}
	if opts.BatchSize > 0 {
		_ = writer.WriteField("batch_size", strconv.Itoa(opts.BatchSize))
	}
	writer.Close()

	var result transcribeResponse
	if err := p.post(ctx, "/transcribe", &buf, writer.FormDataContentType(), &result); err != nil {
		return nil, err
	}
	if result.Error != "" {
		return nil, fmt.Errorf("transcription error: %s", result.Error)
	}

	return &providers.TranscriptionResult{
		Language: result.Language,
		Segments: toSegments(result.Segments),
	}, nil
}

// Align sends segments back to the sidecar for timestamp refinement.
func (p *Provider) Align(ctx context.Context, audioPath, language string, segments []*transcript.Segment) ([]*transcript.Segment, error) {
	segJSON, err := json.Marshal(toWireSegments(segments))
	if err != nil {
		return nil, fmt.Errorf("marshal segments: %w", err)
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	if err := writeAudioPart(writer, audioPath); err != nil {
		return nil, err
	}
	_ = writer.WriteField("language", language)
	_ = writer.WriteField("segments", string(segJSON))
	writer.Close()

	var result transcribeResponse
	if err := p.post(ctx, "/align", &buf, writer.FormDataContentType(), &result); err != nil {
		return nil, err
	}
	if result.Error != "" {
		return nil, fmt.Errorf("alignment error: %s", result.Error)
	}

	return toSegments(result.Segments), nil
}

// ReleaseCache asks the sidecar to drop cached model memory.
func (p *Provider) ReleaseCache(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+"/cache/release", nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("cache release request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("cache release error (status %d)", resp.StatusCode)
	}
	return nil
}

func (p *Provider) post(ctx context.Context, path string, body io.Reader, contentType string, out any) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", contentType)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("whisperx request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("whisperx error (status %d): %s", resp.StatusCode, string(respBody))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode whisperx response: %w", err)
	}
	return nil
}

func writeAudioPart(writer *multipart.Writer, audioPath string) error {
	audioData, err := os.ReadFile(audioPath)
	if err != nil {
		return fmt.Errorf("read audio file: %w", err)
	}
	part, err := writer.CreateFormFile("audio", filepath.Base(audioPath))
	if err != nil {
		return fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(audioData); err != nil {
		return fmt.Errorf("write audio data: %w", err)
	}
	return nil
}

// --- internal WhisperX API types ---

type transcribeResponse struct {
	Language string        `json:"language"`
	Segments []wireSegment `json:"segments"`
	Error    string        `json:"error,omitempty"`
}

type wireSegment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

func toSegments(in []wireSegment) []*transcript.Segment {
	segments := make([]*transcript.Segment, len(in))
	for i, s := range in {
		segments[i] = &transcript.Segment{
			Start: s.Start,
			End:   s.End,
			Text:  s.Text,
		}
	}
	return segments
}

func toWireSegments(in []*transcript.Segment) []wireSegment {
	segments := make([]wireSegment, len(in))
	for i, s := range in {
		segments[i] = wireSegment{
			Start: s.Start,
			End:   s.End,
			Text:  s.Text,
		}
	}
	return segments
}
