package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/lvdlvd/ext2walk/detect"
	"github.com/lvdlvd/ext2walk/fsys/ext2"
)

// Info describes the image's superblock.
func Info(img *ext2.Image, typ detect.Type, out io.Writer) error {
	sb := img.Superblock()
	features := strings.Join(sb.UnsupportedFeatures(), ", ")
	if features == "" {
		features = "none"
	}
	fmt.Fprintf(out, "Filesystem type:  %s\n", typ)
	fmt.Fprintf(out, "Volume name:      %s\n", sb.VolumeName())
	fmt.Fprintf(out, "UUID:             %s\n", sb.UUID())
	fmt.Fprintf(out, "Revision:         %d\n", sb.RevLevel)
	fmt.Fprintf(out, "Block size:       %d\n", img.BlockSize())
	fmt.Fprintf(out, "Blocks:           %d (%d free)\n", sb.BlocksCount, sb.FreeBlocksCount)
	fmt.Fprintf(out, "Inodes:           %d (%d free)\n", sb.InodesCount, sb.FreeInodesCount)
	fmt.Fprintf(out, "Block groups:     %d\n", len(img.Groups()))
	fmt.Fprintf(out, "Inode size:       %d\n", sb.InodeRecordSize())
	fmt.Fprintf(out, "Ignored features: %s\n", features)
	return nil
}
