package cmd

import (
	"errors"
	"os"

	"github.com/spf13/cobra"

	"github.com/tahsinrahman/ipagg/internal"
)

// mergeCmd represents the merge command
var mergeCmd = &cobra.Command{
	Use:   "merge --work-dir DIR",
	Short: "Sort and aggregate the partitions left in the work directory by split",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if config.WorkDir == "" {
			return errors.New("merge needs --work-dir")
		}

		j, err := internal.NewJob(internal.NewJobConfig{
			Config: config,
			Output: os.Stdout,
			Logger: logger,
		})
		if err != nil {
			logger.Err(err).Msg("failed to set up job")
			return err
		}

		keys, err := j.Partitions()
		if err != nil {
			logger.Err(err).Msg("failed to list partitions")
			return err
		}
		if err := j.Merge(cmd.Context(), keys); err != nil {
			return err
		}
		logger.Info().Object("stats", j.Stats()).Msg("finished merge")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(mergeCmd)
}
