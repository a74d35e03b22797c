package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/voxlabs/voxscribe/pkg/config"
	"github.com/voxlabs/voxscribe/pkg/logger"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "voxscribe",
	Short: "Speaker-aware audio transcription service",
	Long: `voxscribe turns audio recordings into speaker-labeled transcripts.

It transcribes audio through a WhisperX backend, attributes segments to
speakers via Pyannote diarization, and recognizes returning speakers by
comparing voice embeddings against a persistent registry. Each new speaker
gets a representative audio clip for later review and renaming.

Features:
- Speech-to-text with forced alignment timestamps
- Speaker diarization and persistent speaker identities
- Voice-embedding matching of returning speakers
- Representative per-speaker audio clips
- Full-text transcript search`,
	Version: "1.0.0",
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.voxscribe.yaml)")
	rootCmd.PersistentFlags().String("data-dir", "", "base directory for uploads, clips, and databases")
	rootCmd.PersistentFlags().String("temp-dir", "", "temporary directory for processing")

	// Logging flags
	rootCmd.PersistentFlags().String("log-level", "info", "log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "console", "log format (console, json)")
	rootCmd.PersistentFlags().String("log-output", "stderr", "log output (stdout, stderr, file path)")
	rootCmd.PersistentFlags().Bool("log-no-color", false, "disable colored log output")
	rootCmd.PersistentFlags().Bool("log-caller", false, "include caller information in logs")

	// Bind flags to viper
	_ = viper.BindPFlag("storage.data_dir", rootCmd.PersistentFlags().Lookup("data-dir"))
	_ = viper.BindPFlag("storage.temp_dir", rootCmd.PersistentFlags().Lookup("temp-dir"))

	// Bind logging flags to viper
	_ = viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("logging.format", rootCmd.PersistentFlags().Lookup("log-format"))
	_ = viper.BindPFlag("logging.output", rootCmd.PersistentFlags().Lookup("log-output"))
	_ = viper.BindPFlag("logging.caller", rootCmd.PersistentFlags().Lookup("log-caller"))
	_ = viper.BindPFlag("logging.no_color", rootCmd.PersistentFlags().Lookup("log-no-color"))

	// Environment variable bindings
	viper.SetEnvPrefix("VOXSCRIBE")
	viper.AutomaticEnv()
}

// initConfig initializes logging before any command runs.
func initConfig() {
	initLogger()
}

// initLogger initializes the logger from the logging flags.
func initLogger() {
	cfg := logger.Config{
		Level:     viper.GetString("logging.level"),
		Format:    viper.GetString("logging.format"),
		Output:    viper.GetString("logging.output"),
		Timestamp: true,
		Caller:    viper.GetBool("logging.caller"),
		NoColor:   viper.GetBool("logging.no_color"),
	}
	if err := logger.Initialize(&cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads the configuration file, applies flag and environment
// overrides, and re-initializes logging from the merged result.
func loadConfig() (*config.Config, error) {
	loader := config.NewLoader(cfgFile)
	cfg, err := loader.Load()
	if err != nil {
		return nil, err
	}

	// CLI flags override file settings.
	flags := rootCmd.PersistentFlags()
	if flags.Changed("data-dir") {
		base, _ := flags.GetString("data-dir")
		cfg.Storage = config.StorageForDataDir(base, cfg.Storage)
	}
	if flags.Changed("temp-dir") {
		cfg.Storage.TempDir, _ = flags.GetString("temp-dir")
	}
	if flags.Changed("log-level") {
		cfg.Logging.Level = viper.GetString("logging.level")
	}
	if flags.Changed("log-format") {
		cfg.Logging.Format = viper.GetString("logging.format")
	}
	if flags.Changed("log-output") {
		cfg.Logging.Output = viper.GetString("logging.output")
	}
	cfg.Logging.Caller = viper.GetBool("logging.caller")
	cfg.Logging.NoColor = viper.GetBool("logging.no_color")

	if err := logger.Initialize(&cfg.Logging); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	if used := loader.GetConfigFile(); used != "" {
		logger.Info().Str("config_file", used).Msg("Loaded configuration file")
	}

	return cfg, nil
}
