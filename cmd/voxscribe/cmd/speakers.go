package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/voxlabs/voxscribe/pkg/logger"
)

// speakersCmd groups speaker registry administration.
var speakersCmd = &cobra.Command{
	Use:   "speakers",
	Short: "Manage the speaker registry",
	Long: `Inspect and maintain the persistent speaker registry.

Examples:
  # List all registered speakers
  voxscribe speakers list

  # Give a diarization label a real name
  voxscribe speakers rename SPEAKER_00 "Alice Chen"

  # Merge a duplicate identity
  voxscribe speakers merge SPEAKER_03 "Alice Chen"

  # Remove stale speaker clips
  voxscribe speakers cleanup-clips --days 30`,
}

var speakersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered speakers",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp()
		if err != nil {
			return err
		}
		defer app.Close()

		speakers, err := app.registry.List()
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tAPPEARANCES\tEMBEDDING\tCLIP")
		for _, sp := range speakers {
			clip := "-"
			if sp.ClipPath != "" {
				clip = sp.ClipPath
			}
			fmt.Fprintf(w, "%s\t%s\t%d\t%v\t%s\n", sp.ID, sp.Name, sp.AppearanceCount, sp.HasEmbedding(), clip)
		}
		return w.Flush()
	},
}

var speakersRenameCmd = &cobra.Command{
	Use:   "rename <id> <name>",
	Short: "Rename a speaker",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp()
		if err != nil {
			return err
		}
		defer app.Close()

		if err := app.registry.Rename(args[0], args[1]); err != nil {
			return err
		}
		logger.Info().Str("id", args[0]).Str("name", args[1]).Msg("Speaker renamed")
		return nil
	},
}

var speakersMergeCmd = &cobra.Command{
	Use:   "merge <from-id> <to-id>",
	Short: "Merge one speaker into another",
	Long: `Reassign every transcript appearance of the source speaker to the
target speaker and remove the source. The target keeps its own embedding,
clip, and sample text.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp()
		if err != nil {
			return err
		}
		defer app.Close()

		if err := app.registry.Merge(args[0], args[1]); err != nil {
			return err
		}
		logger.Info().Str("from", args[0]).Str("to", args[1]).Msg("Speakers merged")
		return nil
	},
}

var speakersDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a speaker and its appearances",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp()
		if err != nil {
			return err
		}
		defer app.Close()

		if err := app.registry.Delete(args[0]); err != nil {
			return err
		}
		logger.Info().Str("id", args[0]).Msg("Speaker deleted")
		return nil
	},
}

var speakersCleanupClipsCmd = &cobra.Command{
	Use:   "cleanup-clips",
	Short: "Delete speaker clips older than a cutoff",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp()
		if err != nil {
			return err
		}
		defer app.Close()

		days, _ := cmd.Flags().GetInt("days")
		if days <= 0 {
			return fmt.Errorf("--days must be positive, got %d", days)
		}

		removed, err := app.clips.CleanupClips(days)
		if err != nil {
			return err
		}
		logger.Info().Int("removed", removed).Int("days", days).Msg("Clip cleanup complete")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(speakersCmd)
	speakersCmd.AddCommand(speakersListCmd)
	speakersCmd.AddCommand(speakersRenameCmd)
	speakersCmd.AddCommand(speakersMergeCmd)
	speakersCmd.AddCommand(speakersDeleteCmd)
	speakersCmd.AddCommand(speakersCleanupClipsCmd)

	speakersCleanupClipsCmd.Flags().Int("days", 30, "delete clips older than this many days")
}
