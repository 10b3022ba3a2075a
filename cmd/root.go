package cmd

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/tahsinrahman/ipagg/internal"
)

var (
	configPath string
	// flag values; only the flags actually set override the config file
	flags = internal.DefaultConfig()

	config internal.Config
	logger zerolog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "ipagg [input files...]",
	Short: "Aggregate per-ip event counts into one JSON line per address",
	Long: `ipagg reads csv lines of the form ip,date,count,kind from the given files
(optionally compressed) and prints one line per public ip address:

  <ip>	{"<kind>":{"<date>":<count>,...},...}

Without a subcommand it behaves like "run".`,
	Args:         cobra.ArbitraryArgs,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := loadConfig(cmd.Flags())
		if err != nil {
			return err
		}
		config = c
		logger = newLogger(c.LogLevel)
		return nil
	},
	RunE: runJob,
}

// Execute runs the command line.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	f := rootCmd.PersistentFlags()
	f.StringVar(&configPath, "config", "", "TOML config file")
	f.IntVar(&flags.Concurrency, "concurrency", flags.Concurrency, "tasks running at once in each stage")
	f.StringVar(&flags.WorkDir, "work-dir", "", "directory for partition files (default: a temporary directory)")
	f.BoolVar(&flags.KeepPartitions, "keep-partitions", false, "keep partition files after merging")
	f.StringVar(&flags.PartitionCodec, "partition-codec", flags.PartitionCodec, "partition compression: exec or native")
	f.StringSliceVar(&flags.CompressCommand, "compress-command", flags.CompressCommand, "compressor for partition files (exec codec)")
	f.StringSliceVar(&flags.DecompressCommand, "decompress-command", flags.DecompressCommand, "decompressor for partition files (exec codec)")
	f.StringVar(&flags.InputMode, "input-mode", flags.InputMode, "input decompression: exec or native")
	f.StringSliceVar(&flags.SortCommand, "sort-command", flags.SortCommand, "external sort command")
	f.StringVar(&flags.SortBufferSize, "sort-buffer-size", flags.SortBufferSize, "memory buffer of the external sort")
	f.StringVar(&flags.SortTempDir, "sort-temp-dir", "", "temporary directory of the external sort (default: work dir)")
	f.IntVar(&flags.OutputBufferLines, "output-buffer-lines", flags.OutputBufferLines, "lines buffered per aggregator before writing")
	f.StringVar(&flags.ReadBufferSize, "read-buffer-size", flags.ReadBufferSize, "read buffer per input file")
	f.StringVar(&flags.PartitionKey, "partition-key", flags.PartitionKey, "partition key function: prefix or hash")
	f.IntVar(&flags.HashPartitions, "hash-partitions", flags.HashPartitions, "number of partitions for the hash key function")
	f.StringVar(&flags.LogLevel, "log-level", flags.LogLevel, "log level")
}

func loadConfig(fs *pflag.FlagSet) (internal.Config, error) {
	c := internal.DefaultConfig()
	if configPath != "" {
		if err := internal.LoadConfig(configPath, &c); err != nil {
			return c, err
		}
	}

	fs.Visit(func(f *pflag.Flag) {
		switch f.Name {
		case "concurrency":
			c.Concurrency = flags.Concurrency
		case "work-dir":
			c.WorkDir = flags.WorkDir
		case "keep-partitions":
			c.KeepPartitions = flags.KeepPartitions
		case "partition-codec":
			c.PartitionCodec = flags.PartitionCodec
		case "compress-command":
			c.CompressCommand = flags.CompressCommand
		case "decompress-command":
			c.DecompressCommand = flags.DecompressCommand
		case "input-mode":
			c.InputMode = flags.InputMode
		case "sort-command":
			c.SortCommand = flags.SortCommand
		case "sort-buffer-size":
			c.SortBufferSize = flags.SortBufferSize
		case "sort-temp-dir":
			c.SortTempDir = flags.SortTempDir
		case "output-buffer-lines":
			c.OutputBufferLines = flags.OutputBufferLines
		case "read-buffer-size":
			c.ReadBufferSize = flags.ReadBufferSize
		case "partition-key":
			c.PartitionKey = flags.PartitionKey
		case "hash-partitions":
			c.HashPartitions = flags.HashPartitions
		case "log-level":
			c.LogLevel = flags.LogLevel
		}
	})
	return c, c.Validate()
}

// logs go to stderr, stdout carries the aggregated lines
func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(os.Stderr).With().Timestamp().Caller().Logger().Level(lvl)
}
