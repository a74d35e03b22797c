package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/voxlabs/voxscribe/pkg/logger"
)

// transcribeCmd represents the transcribe command
var transcribeCmd = &cobra.Command{
	Use:   "transcribe [files...]",
	Short: "Transcribe audio files without running the server",
	Long: `Run one or more audio files through the full pipeline and write the
results to disk. Speaker identities accumulate in the registry exactly as
they do for uploads through the server.

Examples:
  # Transcribe a single file
  voxscribe transcribe meeting.mp3

  # Transcribe with JSON output next to each input
  voxscribe transcribe interview.wav --format json

  # Batch transcribe into a directory
  voxscribe transcribe *.wav -o transcripts/`,
	Args: cobra.MinimumNArgs(1),
	RunE: runTranscribe,
}

func init() {
	rootCmd.AddCommand(transcribeCmd)

	transcribeCmd.Flags().StringP("output", "o", "", "output directory (default: next to each input)")
	transcribeCmd.Flags().String("format", "text", "output format (json, text)")
}

func runTranscribe(cmd *cobra.Command, args []string) error {
	app, err := newApp()
	if err != nil {
		return err
	}
	defer app.Close()

	outputDir, _ := cmd.Flags().GetString("output")
	format, _ := cmd.Flags().GetString("format")
	if format != "text" && format != "json" {
		return fmt.Errorf("unsupported format %q", format)
	}
	if outputDir != "" {
		if err := os.MkdirAll(outputDir, 0o755); err != nil {
			return err
		}
	}

	failed := 0
	for _, path := range args {
		if err := transcribeFile(cmd.Context(), app, path, outputDir, format); err != nil {
			logger.Error().Err(err).Str("file", path).Msg("Transcription failed")
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d files failed", failed, len(args))
	}
	return nil
}

func transcribeFile(ctx context.Context, app *app, path, outputDir, format string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	uploadID := uuid.NewString()[:8]
	record, err := app.pipeline.Process(ctx, path, uploadID, filepath.Base(path))
	if err != nil {
		return err
	}

	outPath := outputPath(path, outputDir, format)
	var data []byte
	if format == "json" {
		data, err = json.MarshalIndent(record, "", "  ")
		if err != nil {
			return err
		}
	} else {
		data = []byte(record.Text)
	}
	if err := os.WriteFile(outPath, data, 0o644); err != nil {
		return err
	}

	logger.Info().
		Str("transcript_id", record.ID).
		Str("output", outPath).
		Msg("Transcript written")
	return nil
}

func outputPath(inputPath, outputDir, format string) string {
	ext := ".txt"
	if format == "json" {
		ext = ".json"
	}
	base := strings.TrimSuffix(filepath.Base(inputPath), filepath.Ext(inputPath)) + ext
	if outputDir != "" {
		return filepath.Join(outputDir, base)
	}
	return filepath.Join(filepath.Dir(inputPath), base)
}
