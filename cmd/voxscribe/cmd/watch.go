package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/voxlabs/voxscribe/pkg/logger"
	"github.com/voxlabs/voxscribe/pkg/watcher"
)

// watchCmd represents the watch command
var watchCmd = &cobra.Command{
	Use:   "watch <directory>",
	Short: "Watch a directory and transcribe new audio files",
	Long: `Monitor a directory for new audio files and run each one through
the full pipeline as it arrives. Speaker identities accumulate in the
registry across files.

Examples:
  # Watch a drop folder
  voxscribe watch ~/recordings

  # Move files aside once processed
  voxscribe watch /srv/inbox --move-to /srv/inbox/done

  # Watch recursively with more parallelism
  voxscribe watch /srv/inbox -r --workers 2`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().BoolP("recursive", "r", false, "watch subdirectories too")
	watchCmd.Flags().String("move-to", "", "move files here after successful processing")
	watchCmd.Flags().Bool("process-existing", true, "process files already present at startup")
	watchCmd.Flags().Int("workers", 1, "number of files to process concurrently")
}

func runWatch(cmd *cobra.Command, args []string) error {
	app, err := newApp()
	if err != nil {
		return err
	}
	defer app.Close()

	cfg := watcher.DefaultConfig(args[0])
	cfg.Recursive, _ = cmd.Flags().GetBool("recursive")
	cfg.MoveToDir, _ = cmd.Flags().GetString("move-to")
	cfg.ProcessExisting, _ = cmd.Flags().GetBool("process-existing")
	cfg.MaxWorkers, _ = cmd.Flags().GetInt("workers")

	w, err := watcher.New(cfg, app.pipeline)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		return err
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
	logger.Info().Msg("Stopping watcher")

	if err := w.Stop(); err != nil {
		return err
	}
	stats := w.GetStats()
	logger.Info().
		Int("processed", stats.ProcessedCount).
		Int("failed", stats.FailedCount).
		Int("skipped", stats.SkippedCount).
		Msg("Watch session finished")
	return nil
}
