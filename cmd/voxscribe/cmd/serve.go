package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/voxlabs/voxscribe/pkg/logger"
	"github.com/voxlabs/voxscribe/pkg/server"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the transcription HTTP server",
	Long: `Start the HTTP server that accepts audio uploads and serves
transcripts, speaker administration, and full-text search.

Examples:
  # Serve on the default address
  voxscribe serve

  # Serve on a custom address with a dedicated data directory
  voxscribe serve --addr :9090 --data-dir /var/lib/voxscribe`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", "", "listen address (default :8080)")
	_ = viper.BindPFlag("server.addr", serveCmd.Flags().Lookup("addr"))
}

func runServe(cmd *cobra.Command, args []string) error {
	app, err := newApp()
	if err != nil {
		return err
	}
	defer app.Close()

	if cmd.Flags().Changed("addr") {
		app.cfg.Server.Addr, _ = cmd.Flags().GetString("addr")
	}

	srv := server.New(app.cfg, app.pipeline, app.store, app.registry, app.backends)
	if err := srv.Start(); err != nil {
		return err
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
	logger.Info().Msg("Shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}
