package main

import (
	"os"

	"github.com/voxlabs/voxscribe/cmd/voxscribe/cmd"
	"github.com/voxlabs/voxscribe/pkg/logger"
)

func main() {
	if err := cmd.Execute(); err != nil {
		logger.Error().Err(err).Msg("Application execution failed")
		os.Exit(1)
	}
}
