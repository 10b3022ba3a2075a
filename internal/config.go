package internal

import (
	"github.com/BurntSushi/toml"
	units "github.com/docker/go-units"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

const (
	KeyPrefix = "prefix"
	KeyHash   = "hash"
)

type Config struct {
	Concurrency       int                 `toml:"concurrency"`
	WorkDir           string              `toml:"work-dir"`
	KeepPartitions    bool                `toml:"keep-partitions"`
	PartitionCodec    string              `toml:"partition-codec"`
	CompressCommand   []string            `toml:"compress-command"`
	DecompressCommand []string            `toml:"decompress-command"`
	InputMode         string              `toml:"input-mode"`
	InputCommands     map[string][]string `toml:"input-commands"`
	SortCommand       []string            `toml:"sort-command"`
	SortBufferSize    string              `toml:"sort-buffer-size"`
	SortTempDir       string              `toml:"sort-temp-dir"`
	OutputBufferLines int                 `toml:"output-buffer-lines"`
	ReadBufferSize    string              `toml:"read-buffer-size"`
	PartitionKey      string              `toml:"partition-key"`
	HashPartitions    int                 `toml:"hash-partitions"`
	LogLevel          string              `toml:"log-level"`
}

func DefaultConfig() Config {
	return Config{
		Concurrency:       6,
		PartitionCodec:    CodecExec,
		CompressCommand:   []string{"gzip", "-1"},
		DecompressCommand: []string{"gzip", "-dc"},
		InputMode:         InputExec,
		InputCommands: map[string][]string{
			".bz2": {"bzip2", "-dc"},
			".gz":  {"gzip", "-dc"},
			".zst": {"zstd", "-dc"},
			".xz":  {"xz", "-dc"},
		},
		SortCommand:       []string{"sort"},
		SortBufferSize:    "2G",
		OutputBufferLines: 1024,
		ReadBufferSize:    "4MiB",
		PartitionKey:      KeyPrefix,
		HashPartitions:    64,
		LogLevel:          "info",
	}
}

// LoadConfig decodes a TOML file on top of cfg. Unknown keys are an
// error, so typos do not go unnoticed.
func LoadConfig(path string, cfg *Config) error {
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return errors.Wrapf(err, "load config %s", path)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return errors.Errorf("config %s: unknown keys %v", path, undecoded)
	}
	return nil
}

func (c *Config) SortBufferBytes() (int64, error) {
	if c.SortBufferSize == "" {
		return 0, nil
	}
	n, err := units.RAMInBytes(c.SortBufferSize)
	if err != nil {
		return 0, errors.Wrap(err, "sort-buffer-size")
	}
	return n, nil
}

func (c *Config) ReadBufferBytes() (int, error) {
	n, err := units.RAMInBytes(c.ReadBufferSize)
	if err != nil {
		return 0, errors.Wrap(err, "read-buffer-size")
	}
	if n <= 0 {
		return 0, errors.Errorf("read-buffer-size must be positive, got %q", c.ReadBufferSize)
	}
	return int(n), nil
}

func (c *Config) Validate() error {
	if c.Concurrency <= 0 {
		return errors.Errorf("concurrency must be positive, got %d", c.Concurrency)
	}
	if c.OutputBufferLines <= 0 {
		return errors.Errorf("output-buffer-lines must be positive, got %d", c.OutputBufferLines)
	}
	switch c.PartitionCodec {
	case CodecExec:
		if len(c.CompressCommand) == 0 || len(c.DecompressCommand) == 0 {
			return errors.New("exec partition codec needs compress-command and decompress-command")
		}
	case CodecNative:
	default:
		return errors.Errorf("unknown partition-codec %q", c.PartitionCodec)
	}
	switch c.InputMode {
	case InputExec:
		for ext, argv := range c.InputCommands {
			if len(argv) == 0 {
				return errors.Errorf("empty input command for %q", ext)
			}
		}
	case InputNative:
	default:
		return errors.Errorf("unknown input-mode %q", c.InputMode)
	}
	if len(c.SortCommand) == 0 {
		return errors.New("sort-command is empty")
	}
	if _, err := c.SortBufferBytes(); err != nil {
		return err
	}
	if _, err := c.ReadBufferBytes(); err != nil {
		return err
	}
	if _, err := NewKeyFunc(c.PartitionKey, c.HashPartitions); err != nil {
		return err
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return errors.Wrap(err, "log-level")
	}
	return nil
}
