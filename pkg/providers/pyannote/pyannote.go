// Package pyannote implements the diarization provider against a Pyannote
// HTTP sidecar. The sidecar requires a service auth token; without one the
// pipeline skips diarization entirely.
package pyannote

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
	"time"

	"github.com/voxlabs/voxscribe/pkg/transcript"
)

const (
	// ProviderName is the registered name for the Pyannote provider.
	ProviderName = "pyannote"

	defaultBaseURL = "http://localhost:8388"
	defaultTimeout = 300 * time.Second
)

// Config holds configuration for the Pyannote diarization provider.
type Config struct {
	BaseURL   string        `json:"base_url" yaml:"base_url"`
	AuthToken string        `json:"auth_token" yaml:"auth_token"`
	Timeout   time.Duration `json:"timeout" yaml:"timeout"`
}

// Provider implements providers.Diarizer using the Pyannote HTTP sidecar.
type Provider struct {
	cfg    Config
	client *http.Client
}

// NewProvider creates a new Pyannote diarization provider.
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

// IsAvailable checks if the Pyannote sidecar is reachable.
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

// Diarize sends audio to the sidecar and returns speaker turns.
func (p *Provider) Diarize(ctx context.Context, audioPath string) ([]transcript.Turn, error) {
	audioData, err := os.ReadFile(audioPath)
	if err != nil {
		return nil, fmt.Errorf("read audio file: %w", err)
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("audio", filepath.Base(audioPath))
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(audioData); err != nil {
		return nil, fmt.Errorf("write audio data: %w", err)
	}
	writer.Close()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+"/diarize", &buf)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())
	if p.cfg.AuthToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.cfg.AuthToken)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("diarization request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("diarization error (status %d): %s", resp.StatusCode, string(body))
	}

	var result diarizeResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode diarization response: %w", err)
	}
	if result.Error != "" {
		return nil, fmt.Errorf("diarization error: %s", result.Error)
	}

	return toTurns(&result), nil
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

// --- internal Pyannote API types ---

type diarizeResponse struct {
	Turns []pyannoteTurn `json:"turns"`
	Error string         `json:"error,omitempty"`
}

type pyannoteTurn struct {
	SpeakerID string  `json:"speaker_id"`
	StartTime float64 `json:"start_time"`
	EndTime   float64 `json:"end_time"`
}

func toTurns(resp *diarizeResponse) []transcript.Turn {
	turns := make([]transcript.Turn, len(resp.Turns))
	for i, t := range resp.Turns {
		turns[i] = transcript.Turn{
			Start:   t.StartTime,
			End:     t.EndTime,
			Speaker: t.SpeakerID,
		}
	}
	return turns
}
