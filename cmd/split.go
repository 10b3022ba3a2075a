package cmd

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/tahsinrahman/ipagg/internal"
)

// splitCmd represents the split command
var splitCmd = &cobra.Command{
	Use:   "split --work-dir DIR [input files...]",
	Short: "Only partition the input files into the work directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		if config.WorkDir == "" {
			return errors.New("split needs --work-dir")
		}

		j, err := internal.NewJob(internal.NewJobConfig{
			Config: config,
			Inputs: args,
			Logger: logger,
		})
		if err != nil {
			logger.Err(err).Msg("failed to set up job")
			return err
		}

		keys, err := j.Split(cmd.Context())
		if err != nil {
			return err
		}
		logger.Info().Int("partitions", len(keys)).Str("workdir", config.WorkDir).Msg("partitions ready to merge")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(splitCmd)
}
