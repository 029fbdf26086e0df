package cmd

import (
	"io"
	"os"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/lvdlvd/ext2walk/config"
	"github.com/lvdlvd/ext2walk/detect"
	"github.com/lvdlvd/ext2walk/fsys/ext2"
)

// session carries what every subcommand needs to bind an image.
type session struct {
	cfg    *config.Config
	flags  *pflag.FlagSet
	stderr io.Writer
}

// image is an opened image file and the explorer bound to it.
type image struct {
	*ext2.Image
	typ  detect.Type
	file *os.File
}

func (i *image) Close() error { return i.file.Close() }

func (s *session) open(imagePath string) (*image, error) {
	cfg, err := config.Resolve(s.flags, *s.cfg)
	if err != nil {
		return nil, err
	}
	logger, err := cfg.NewLogger(s.stderr)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(imagePath)
	if err != nil {
		return nil, errors.Wrap(err, "opening image")
	}
	typ, err := detect.Detect(f)
	if err != nil {
		f.Close()
		return nil, errors.Wrap(err, "detecting filesystem")
	}
	if typ != detect.Ext2 {
		level.Info(logger).Log("msg", "image is not plain ext2", "detected", typ)
	}
	img, err := ext2.Load(f, cfg.ImageOptions(log.With(logger, "image", imagePath)))
	if err != nil {
		f.Close()
		return nil, err
	}
	return &image{Image: img, typ: typ, file: f}, nil
}

// NewRootCommand builds the ext2walk command tree writing to stdout and
// stderr.
func NewRootCommand(stdout, stderr io.Writer) *cobra.Command {
	cfg := config.Default()
	rootCmd := &cobra.Command{
		Use:           "ext2walk",
		Short:         "ext2walk explores ext2 filesystem images without mounting them.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Run: func(cmd *cobra.Command, args []string) {
			io.WriteString(cmd.OutOrStderr(), cmd.UsageString())
		},
	}
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)
	config.AddFlags(rootCmd.PersistentFlags(), &cfg)

	s := &session{cfg: &cfg, flags: rootCmd.PersistentFlags(), stderr: stderr}
	rootCmd.AddCommand(
		newTreeCommand(s),
		newPrintCommand(s),
		newLsCommand(s),
		newInfoCommand(s),
	)
	return rootCmd
}

func newTreeCommand(s *session) *cobra.Command {
	var recursive, size, perms bool
	cmd := &cobra.Command{
		Use:   "tree <image> [path]",
		Short: "Show the directory at path (default /) as a tree.",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			img, err := s.open(args[0])
			if err != nil {
				return err
			}
			defer img.Close()

			c := Command{Path: "/"}
			if len(args) > 1 {
				c.Path = args[1]
			}
			if recursive {
				c.Options |= OptRecursive
			}
			if size {
				c.Options |= OptSize
			}
			if perms {
				c.Options |= OptPerms
			}
			return Tree(img.Image, c, cmd.OutOrStdout())
		},
	}
	cmd.Flags().BoolVarP(&recursive, "recursive", "r", false, "descend into subdirectories")
	cmd.Flags().BoolVarP(&size, "size", "s", false, "show sizes in bytes")
	cmd.Flags().BoolVarP(&perms, "perms", "p", false, "show permissions")
	return cmd
}

func newPrintCommand(s *session) *cobra.Command {
	var lines int
	cmd := &cobra.Command{
		Use:   "print <image> <path>",
		Short: "Write the contents of a file to standard output.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if lines < 0 {
				return errors.Errorf("line count must not be negative, got %d", lines)
			}
			img, err := s.open(args[0])
			if err != nil {
				return err
			}
			defer img.Close()
			return Print(img.Image, Command{Path: args[1], LineLimit: lines}, cmd.OutOrStdout())
		},
	}
	cmd.Flags().IntVarP(&lines, "lines", "n", 0, "print only the first n lines")
	return cmd
}

func newLsCommand(s *session) *cobra.Command {
	var opts LsOptions
	cmd := &cobra.Command{
		Use:   "ls <image> [path]",
		Short: "List a directory, sorted by name.",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			img, err := s.open(args[0])
			if err != nil {
				return err
			}
			defer img.Close()

			p := "."
			if len(args) > 1 {
				p = args[1]
			}
			return Ls(ext2.NewFS(img.Image), p, cmd.OutOrStdout(), opts)
		},
	}
	cmd.Flags().BoolVarP(&opts.Long, "long", "l", false, "use long listing format")
	return cmd
}

func newInfoCommand(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "info <image>",
		Short: "Describe the image's superblock.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			img, err := s.open(args[0])
			if err != nil {
				return err
			}
			defer img.Close()
			return Info(img.Image, img.typ, cmd.OutOrStdout())
		},
	}
}
