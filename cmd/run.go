package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/tahsinrahman/ipagg/internal"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run [input files...]",
	Short: "Split, sort and aggregate the input files",
	RunE:  runJob,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runJob(cmd *cobra.Command, args []string) error {
	j, err := internal.NewJob(internal.NewJobConfig{
		Config: config,
		Inputs: args,
		Output: os.Stdout,
		Logger: logger,
	})
	if err != nil {
		logger.Err(err).Msg("failed to set up job")
		return err
	}
	return j.Run(cmd.Context())
}
