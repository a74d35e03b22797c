package config

import (
	"fmt"
	"os"

	"github.com/spf13/viper"
)

// Loader handles configuration loading and management
type Loader struct {
	configPath string
	viper      *viper.Viper
}

// NewLoader creates a new configuration loader
func NewLoader(configPath string) *Loader {
	v := viper.New()

	v.SetEnvPrefix("VOXSCRIBE")
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		home, _ := os.UserHomeDir()
		v.AddConfigPath(home)
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/voxscribe")
		v.SetConfigName(".voxscribe")
		v.SetConfigType("yaml")
	}

	return &Loader{
		configPath: configPath,
		viper:      v,
	}
}

// Load reads and returns the configuration
func (l *Loader) Load() (*Config, error) {
	l.setDefaults()

	if err := l.viper.ReadInConfig(); err != nil {
		// Config file not found is not an error - defaults and env vars apply
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := l.viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := l.validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// GetConfigFile returns the path to the config file being used
func (l *Loader) GetConfigFile() string {
	return l.viper.ConfigFileUsed()
}

// setDefaults sets default configuration values
func (l *Loader) setDefaults() {
	defaults := DefaultConfig()

	l.viper.SetDefault("server.addr", defaults.Server.Addr)
	l.viper.SetDefault("server.max_upload_mb", defaults.Server.MaxUploadMB)

	l.viper.SetDefault("storage.data_dir", defaults.Storage.DataDir)
	l.viper.SetDefault("storage.upload_dir", defaults.Storage.UploadDir)
	l.viper.SetDefault("storage.clips_dir", defaults.Storage.ClipsDir)
	l.viper.SetDefault("storage.transcript_db", defaults.Storage.TranscriptDB)
	l.viper.SetDefault("storage.registry_db", defaults.Storage.RegistryDB)
	l.viper.SetDefault("storage.temp_dir", defaults.Storage.TempDir)
	l.viper.SetDefault("storage.keep_temp_files", false)

	l.viper.SetDefault("audio.sample_rate", defaults.Audio.SampleRate)
	l.viper.SetDefault("audio.min_clip_seconds", defaults.Audio.MinClipSeconds)
	l.viper.SetDefault("audio.max_clip_seconds", defaults.Audio.MaxClipSeconds)
	l.viper.SetDefault("audio.ideal_clip_seconds", defaults.Audio.IdealClipSeconds)
	l.viper.SetDefault("audio.allowed_extensions", defaults.Audio.AllowedExtensions)

	l.viper.SetDefault("speaker.similarity_threshold", defaults.Speaker.SimilarityThreshold)
	l.viper.SetDefault("speaker.embedding_dim", defaults.Speaker.EmbeddingDim)
	l.viper.SetDefault("speaker.fallback_policy", defaults.Speaker.FallbackPolicy)

	l.viper.SetDefault("providers.whisperx.base_url", defaults.Providers.WhisperX.BaseURL)
	l.viper.SetDefault("providers.whisperx.model", defaults.Providers.WhisperX.Model)
	l.viper.SetDefault("providers.whisperx.language", defaults.Providers.WhisperX.Language)
	l.viper.SetDefault("providers.whisperx.batch_size", defaults.Providers.WhisperX.BatchSize)
	l.viper.SetDefault("providers.whisperx.timeout", defaults.Providers.WhisperX.Timeout)
	l.viper.SetDefault("providers.pyannote.base_url", defaults.Providers.Pyannote.BaseURL)
	l.viper.SetDefault("providers.pyannote.timeout", defaults.Providers.Pyannote.Timeout)
	l.viper.SetDefault("providers.embedder.base_url", defaults.Providers.Embedder.BaseURL)
	l.viper.SetDefault("providers.embedder.timeout", defaults.Providers.Embedder.Timeout)
}

// validateConfig validates the loaded configuration
func (l *Loader) validateConfig(cfg *Config) error {
	if cfg.Server.MaxUploadMB <= 0 {
		return fmt.Errorf("max_upload_mb must be positive")
	}

	if cfg.Audio.SampleRate <= 0 {
		return fmt.Errorf("sample_rate must be positive")
	}

	if cfg.Audio.MinClipSeconds < 0 || cfg.Audio.MaxClipSeconds <= 0 {
		return fmt.Errorf("clip duration bounds must be positive")
	}

	if cfg.Audio.MinClipSeconds > cfg.Audio.MaxClipSeconds {
		return fmt.Errorf("min_clip_seconds cannot exceed max_clip_seconds")
	}

	if cfg.Speaker.EmbeddingDim <= 0 {
		return fmt.Errorf("embedding_dim must be positive")
	}

	if cfg.Speaker.SimilarityThreshold < 0 || cfg.Speaker.SimilarityThreshold > 1 {
		return fmt.Errorf("similarity_threshold must be between 0 and 1")
	}

	switch cfg.Speaker.FallbackPolicy {
	case "degrade", "fail":
	default:
		return fmt.Errorf("fallback_policy must be %q or %q", "degrade", "fail")
	}

	return nil
}

// EnsureDirectories creates the storage directories referenced by cfg.
func EnsureDirectories(cfg *Config) error {
	for _, dir := range []string{
		cfg.Storage.DataDir,
		cfg.Storage.UploadDir,
		cfg.Storage.ClipsDir,
		cfg.Storage.TempDir,
	} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}
