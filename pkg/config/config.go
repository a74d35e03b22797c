package config

import (
	"path/filepath"
	"time"

	"github.com/voxlabs/voxscribe/pkg/logger"
)

// Config represents the application configuration
type Config struct {
	// HTTP server settings
	Server ServerConfig `yaml:"server" mapstructure:"server"`

	// On-disk data locations
	Storage StorageConfig `yaml:"storage" mapstructure:"storage"`

	// Audio preprocessing and clip extraction settings
	Audio AudioConfig `yaml:"audio" mapstructure:"audio"`

	// Speaker matching settings
	Speaker SpeakerConfig `yaml:"speaker" mapstructure:"speaker"`

	// Model sidecar endpoints
	Providers ProvidersConfig `yaml:"providers" mapstructure:"providers"`

	// Logging configuration
	Logging logger.Config `yaml:"logging" mapstructure:"logging"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Addr string `yaml:"addr" mapstructure:"addr"`

	// MaxUploadMB bounds the size of a single uploaded file.
	MaxUploadMB int64 `yaml:"max_upload_mb" mapstructure:"max_upload_mb"`
}

// StorageConfig contains data directory locations.
type StorageConfig struct {
	DataDir       string `yaml:"data_dir" mapstructure:"data_dir"`
	UploadDir     string `yaml:"upload_dir" mapstructure:"upload_dir"`
	ClipsDir      string `yaml:"clips_dir" mapstructure:"clips_dir"`
	TranscriptDB  string `yaml:"transcript_db" mapstructure:"transcript_db"`
	RegistryDB    string `yaml:"registry_db" mapstructure:"registry_db"`
	TempDir       string `yaml:"temp_dir" mapstructure:"temp_dir"`
	KeepTempFiles bool   `yaml:"keep_temp_files" mapstructure:"keep_temp_files"`
}

// AudioConfig contains audio processing settings.
type AudioConfig struct {
	// SampleRate is the processing sample rate for converted WAV input.
	SampleRate int `yaml:"sample_rate" mapstructure:"sample_rate"`

	// Speaker clip bounds, in seconds.
	MinClipSeconds   float64 `yaml:"min_clip_seconds" mapstructure:"min_clip_seconds"`
	MaxClipSeconds   float64 `yaml:"max_clip_seconds" mapstructure:"max_clip_seconds"`
	IdealClipSeconds float64 `yaml:"ideal_clip_seconds" mapstructure:"ideal_clip_seconds"`

	AllowedExtensions []string `yaml:"allowed_extensions" mapstructure:"allowed_extensions"`
}

// SpeakerConfig contains speaker matching settings.
type SpeakerConfig struct {
	// SimilarityThreshold must be strictly exceeded for a match.
	SimilarityThreshold float64 `yaml:"similarity_threshold" mapstructure:"similarity_threshold"`

	// EmbeddingDim is the registry's fixed embedding dimension.
	EmbeddingDim int `yaml:"embedding_dim" mapstructure:"embedding_dim"`

	// FallbackPolicy selects behavior on embedding-model failure:
	// "degrade" substitutes a pseudo-random vector, "fail" leaves the
	// label unmatched.
	FallbackPolicy string `yaml:"fallback_policy" mapstructure:"fallback_policy"`
}

// ProvidersConfig contains model sidecar settings.
type ProvidersConfig struct {
	WhisperX WhisperXConfig `yaml:"whisperx" mapstructure:"whisperx"`
	Pyannote PyannoteConfig `yaml:"pyannote" mapstructure:"pyannote"`
	Embedder EmbedderConfig `yaml:"embedder" mapstructure:"embedder"`
}

// WhisperXConfig configures the transcription/alignment sidecar.
type WhisperXConfig struct {
	BaseURL   string        `yaml:"base_url" mapstructure:"base_url"`
	Model     string        `yaml:"model" mapstructure:"model"`
	Language  string        `yaml:"language" mapstructure:"language"`
	BatchSize int           `yaml:"batch_size" mapstructure:"batch_size"`
	Timeout   time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// PyannoteConfig configures the diarization sidecar. Diarization is only
// attempted when AuthToken is set; an empty token disables it.
type PyannoteConfig struct {
	BaseURL   string        `yaml:"base_url" mapstructure:"base_url"`
	AuthToken string        `yaml:"auth_token" mapstructure:"auth_token"`
	Timeout   time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// EmbedderConfig configures the voice embedding sidecar.
type EmbedderConfig struct {
	BaseURL string        `yaml:"base_url" mapstructure:"base_url"`
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// StorageForDataDir rebases the standard storage layout onto base. The temp
// directory and the keep-temp-files setting are preserved.
func StorageForDataDir(base string, cur StorageConfig) StorageConfig {
	cur.DataDir = base
	cur.UploadDir = filepath.Join(base, "uploads")
	cur.ClipsDir = filepath.Join(base, "speaker_clips")
	cur.TranscriptDB = filepath.Join(base, "transcripts.db")
	cur.RegistryDB = filepath.Join(base, "speakers.db")
	return cur
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	dataDir := "data"
	return &Config{
		Server: ServerConfig{
			Addr:        ":8080",
			MaxUploadMB: 500,
		},
		Storage: StorageConfig{
			DataDir:      dataDir,
			UploadDir:    filepath.Join(dataDir, "uploads"),
			ClipsDir:     filepath.Join(dataDir, "speaker_clips"),
			TranscriptDB: filepath.Join(dataDir, "transcripts.db"),
			RegistryDB:   filepath.Join(dataDir, "speakers.db"),
			TempDir:      filepath.Join(dataDir, "tmp"),
		},
		Audio: AudioConfig{
			SampleRate:        16000,
			MinClipSeconds:    3,
			MaxClipSeconds:    15,
			IdealClipSeconds:  8,
			AllowedExtensions: []string{"wav", "mp3", "mp4", "m4a", "flac", "ogg", "webm"},
		},
		Speaker: SpeakerConfig{
			SimilarityThreshold: 0.6,
			EmbeddingDim:        192,
			FallbackPolicy:      "degrade",
		},
		Providers: ProvidersConfig{
			WhisperX: WhisperXConfig{
				BaseURL:   "http://localhost:8386",
				Model:     "large",
				Language:  "en",
				BatchSize: 16,
				Timeout:   600 * time.Second,
			},
			Pyannote: PyannoteConfig{
				BaseURL: "http://localhost:8388",
				Timeout: 300 * time.Second,
			},
			Embedder: EmbedderConfig{
				BaseURL: "http://localhost:8389",
				Timeout: 60 * time.Second,
			},
		},
		Logging: *logger.DefaultConfig(),
	}
}
