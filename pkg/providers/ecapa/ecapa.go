// Package ecapa implements the voice embedding provider against an
// ECAPA-TDNN speaker verification HTTP sidecar.
package ecapa

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
)

const (
	// ProviderName is the registered name for the ECAPA embedding provider.
	ProviderName = "ecapa"

	defaultBaseURL = "http://localhost:8389"
	defaultTimeout = 60 * time.Second
)

// Config holds configuration for the embedding sidecar client.
type Config struct {
	BaseURL string        `json:"base_url" yaml:"base_url"`
	Timeout time.Duration `json:"timeout" yaml:"timeout"`
}

// Provider implements providers.Embedder using the ECAPA HTTP sidecar.
type Provider struct {
	cfg    Config
	client *http.Client
}

// NewProvider creates a new embedding provider.
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

// IsAvailable checks if the embedding sidecar is reachable.
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

// Embed returns the voice embedding for the given span of the audio file.
// The sidecar expects spans of at least one second.
func (p *Provider) Embed(ctx context.Context, audioPath string, start, end float64) ([]float32, error) {
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
	_ = writer.WriteField("start", strconv.FormatFloat(start, 'f', -1, 64))
	_ = writer.WriteField("end", strconv.FormatFloat(end, 'f', -1, 64))
	writer.Close()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+"/embed", &buf)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("embedding request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("embedding error (status %d): %s", resp.StatusCode, string(body))
	}

	var result embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode embedding response: %w", err)
	}
	if result.Error != "" {
		return nil, fmt.Errorf("embedding error: %s", result.Error)
	}
	if len(result.Embedding) == 0 {
		return nil, fmt.Errorf("embedding response contained no vector")
	}

	return result.Embedding, nil
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

// --- internal API types ---

type embedResponse struct {
	Embedding []float32 `json:"embedding"`
	Error     string    `json:"error,omitempty"`
}
