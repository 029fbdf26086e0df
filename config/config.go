// Package config holds the settings shared by every ext2walk command: log
// verbosity and the knobs passed down to the image reader. Values come from
// built-in defaults, an optional YAML file, and command line flags, in
// increasing order of precedence.
package config

import (
	"io"
	"os"
	"strings"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"sigs.k8s.io/yaml"

	"github.com/lvdlvd/ext2walk/fsys/ext2"
)

const (
	logLevelFlag      = "log-level"
	cacheBlocksFlag   = "cache-blocks"
	maxDepthFlag      = "max-depth"
	strictDirentsFlag = "strict-dirents"
	configFlag        = "config"
)

// Config is the resolved configuration.
type Config struct {
	LogLevel      string `json:"logLevel"`
	CacheBlocks   int    `json:"cacheBlocks"`
	MaxDepth      int    `json:"maxDepth"`
	StrictDirents bool   `json:"strictDirents"`

	// File is the path given with --config. It is never read from the
	// file itself.
	File string `json:"-"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		LogLevel:    "warn",
		CacheBlocks: ext2.DefaultCacheBlocks,
		MaxDepth:    ext2.DefaultMaxDepth,
	}
}

// AddFlags registers the configuration flags on flagset, bound to c.
func AddFlags(flagset *pflag.FlagSet, c *Config) {
	flagset.StringVar(&c.File, configFlag, c.File,
		"YAML file with default settings; flags given on the command line win")
	flagset.StringVar(&c.LogLevel, logLevelFlag, c.LogLevel,
		"log verbosity: debug, info, warn, error or none")
	flagset.IntVar(&c.CacheBlocks, cacheBlocksFlag, c.CacheBlocks,
		"number of image blocks kept in memory; negative disables the cache")
	flagset.IntVar(&c.MaxDepth, maxDepthFlag, c.MaxDepth,
		"deepest directory level expanded by recursive listings")
	flagset.BoolVar(&c.StrictDirents, strictDirentsFlag, c.StrictDirents,
		"follow directory entry record lengths exactly, never looking for entries hidden in padding")
}

// Load reads a YAML file on top of the defaults. Unknown keys are errors.
func Load(path string) (Config, error) {
	c := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return c, errors.Wrap(err, "reading config")
	}
	if err := yaml.UnmarshalStrict(data, &c); err != nil {
		return c, errors.Wrapf(err, "parsing config %s", path)
	}
	c.File = path
	return c, nil
}

// Resolve merges c, as filled in from flagset, with the file named by
// --config. A flag set explicitly on the command line overrides the file.
func Resolve(flagset *pflag.FlagSet, c Config) (Config, error) {
	if c.File == "" {
		return c, c.Validate()
	}
	merged, err := Load(c.File)
	if err != nil {
		return c, err
	}
	if flagset.Changed(logLevelFlag) {
		merged.LogLevel = c.LogLevel
	}
	if flagset.Changed(cacheBlocksFlag) {
		merged.CacheBlocks = c.CacheBlocks
	}
	if flagset.Changed(maxDepthFlag) {
		merged.MaxDepth = c.MaxDepth
	}
	if flagset.Changed(strictDirentsFlag) {
		merged.StrictDirents = c.StrictDirents
	}
	return merged, merged.Validate()
}

// Validate checks the values that have no sensible interpretation.
func (c Config) Validate() error {
	if _, err := c.levelOption(); err != nil {
		return err
	}
	if c.MaxDepth <= 0 {
		return errors.Errorf("max depth must be positive, got %d", c.MaxDepth)
	}
	return nil
}

func (c Config) levelOption() (level.Option, error) {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return level.AllowDebug(), nil
	case "info":
		return level.AllowInfo(), nil
	case "warn", "warning", "":
		return level.AllowWarn(), nil
	case "error":
		return level.AllowError(), nil
	case "none", "off":
		return level.AllowNone(), nil
	}
	return nil, errors.Errorf("unknown log level %q", c.LogLevel)
}

// NewLogger returns a logfmt logger writing to w, filtered to c.LogLevel.
func (c Config) NewLogger(w io.Writer) (log.Logger, error) {
	opt, err := c.levelOption()
	if err != nil {
		return nil, err
	}
	logger := log.NewLogfmtLogger(log.NewSyncWriter(w))
	logger = log.With(logger, "ts", log.DefaultTimestampUTC)
	return level.NewFilter(logger, opt), nil
}

// ImageOptions translates c into options for the image reader.
func (c Config) ImageOptions(logger log.Logger) ext2.Options {
	return ext2.Options{
		Logger:        logger,
		CacheBlocks:   c.CacheBlocks,
		MaxDepth:      c.MaxDepth,
		StrictDirents: c.StrictDirents,
	}
}
