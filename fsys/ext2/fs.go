package ext2

import (
	"io"
	"io/fs"
	"path"
	"sort"
	"time"

	"github.com/lvdlvd/ext2walk/fsys"
	"github.com/pkg/errors"
)

// FS exposes an Image through io/fs. Directory listings are sorted by name
// and leave out "." and "..".
type FS struct {
	img *Image
}

var (
	_ fsys.FS           = (*FS)(nil)
	_ fsys.ExtentMapper = (*FS)(nil)
)

// NewFS wraps img.
func NewFS(img *Image) *FS { return &FS{img: img} }

// Open loads an image from r and wraps it.
func Open(r io.ReaderAt, opts Options) (*FS, error) {
	img, err := Load(r, opts)
	if err != nil {
		return nil, err
	}
	return NewFS(img), nil
}

func (f *FS) Image() *Image { return f.img }
func (f *FS) Type() string  { return "ext2" }
func (f *FS) Close() error  { return nil }

func (f *FS) lookup(op, name string) (uint32, *Inode, error) {
	if !fs.ValidPath(name) {
		return 0, nil, pathError(op, name, fs.ErrInvalid)
	}
	p := name
	if p == "." {
		p = ""
	}
	n, err := f.img.Resolve(p)
	if err != nil {
		return 0, nil, pathError(op, name, unwrapPath(err))
	}
	ino, err := f.img.ReadInode(n)
	if err != nil {
		return 0, nil, pathError(op, name, err)
	}
	return n, ino, nil
}

// unwrapPath strips a *fs.PathError so the caller can attach its own path.
func unwrapPath(err error) error {
	var pe *fs.PathError
	if errors.As(err, &pe) {
		return pe.Err
	}
	return err
}

func (f *FS) Open(name string) (fs.File, error) {
	n, ino, err := f.lookup("open", name)
	if err != nil {
		return nil, err
	}
	info := &fileInfo{name: path.Base(name), num: n, ino: *ino}
	if ino.IsDir() {
		return &dir{fs: f, info: info}, nil
	}
	extents, err := f.extents(ino)
	if err != nil {
		return nil, pathError("open", name, err)
	}
	r := fsys.NewExtentReaderAt(f.img.r, extents, int64(ino.Size))
	return &file{info: info, r: io.NewSectionReader(r, 0, r.Size())}, nil
}

func (f *FS) ReadDir(name string) ([]fs.DirEntry, error) {
	file, err := f.Open(name)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	d, ok := file.(fs.ReadDirFile)
	if !ok {
		return nil, pathError("readdir", name, ErrNotDirectory)
	}
	return d.ReadDir(-1)
}

func (f *FS) Stat(name string) (fs.FileInfo, error) {
	n, ino, err := f.lookup("stat", name)
	if err != nil {
		return nil, err
	}
	return &fileInfo{name: path.Base(name), num: n, ino: *ino}, nil
}

// ReadLink returns the target of the symlink at name.
func (f *FS) ReadLink(name string) (string, error) {
	_, ino, err := f.lookup("readlink", name)
	if err != nil {
		return "", err
	}
	if !ino.IsSymlink() {
		return "", pathError("readlink", name, fs.ErrInvalid)
	}
	target, err := f.img.ReadLink(ino)
	if err != nil {
		return "", pathError("readlink", name, err)
	}
	return target, nil
}

// FileExtents maps the data blocks of a non-directory to image offsets.
func (f *FS) FileExtents(name string) ([]fsys.Extent, error) {
	_, ino, err := f.lookup("extents", name)
	if err != nil {
		return nil, err
	}
	if ino.IsDir() {
		return nil, pathError("extents", name, ErrIsDirectory)
	}
	extents, err := f.extents(ino)
	if err != nil {
		return nil, pathError("extents", name, err)
	}
	return extents, nil
}

// extents lays the leaf blocks of ino end to end, clipped to its size.
// Fast symlinks have none.
func (f *FS) extents(ino *Inode) ([]fsys.Extent, error) {
	if ino.IsFastSymlink() {
		return nil, nil
	}
	var (
		out     []fsys.Extent
		logical int64
		bs      = int64(f.img.blockSize)
		size    = int64(ino.Size)
	)
	_, err := f.img.WalkBlocks(ino, func(blk uint32) error {
		if logical >= size {
			return SkipRest
		}
		n := bs
		if size-logical < n {
			n = size - logical
		}
		out = append(out, fsys.Extent{Logical: logical, Physical: f.img.blockOffset(blk), Length: n})
		logical += bs
		return nil
	})
	if err != nil {
		return nil, err
	}
	return fsys.Coalesce(out), nil
}

type file struct {
	info *fileInfo
	r    *io.SectionReader
}

func (f *file) Stat() (fs.FileInfo, error) { return f.info, nil }
func (f *file) Close() error               { return nil }

func (f *file) Read(b []byte) (int, error) {
	if f.info.ino.IsFastSymlink() {
		return 0, &fs.PathError{Op: "read", Path: f.info.name, Err: fs.ErrInvalid}
	}
	return f.r.Read(b)
}

func (f *file) ReadAt(b []byte, off int64) (int, error) { return f.r.ReadAt(b, off) }
func (f *file) Seek(off int64, whence int) (int64, error) { return f.r.Seek(off, whence) }

type dir struct {
	fs      *FS
	info    *fileInfo
	entries []fs.DirEntry
	offset  int
	loaded  bool
}

func (d *dir) Stat() (fs.FileInfo, error) { return d.info, nil }

func (d *dir) Close() error {
	d.entries = nil
	return nil
}

func (d *dir) Read([]byte) (int, error) {
	return 0, &fs.PathError{Op: "read", Path: d.info.name, Err: ErrIsDirectory}
}

func (d *dir) load() error {
	var entries []fs.DirEntry
	_, err := d.fs.img.ScanDir(&d.info.ino, func(e DirEntry) error {
		if e.Name == "." || e.Name == ".." {
			return nil
		}
		entries = append(entries, &dirEntry{fs: d.fs, e: e})
		return nil
	})
	if err != nil {
		return err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
	d.entries = entries
	d.loaded = true
	return nil
}

func (d *dir) ReadDir(n int) ([]fs.DirEntry, error) {
	if !d.loaded {
		if err := d.load(); err != nil {
			return nil, err
		}
	}
	rest := d.entries[d.offset:]
	if n <= 0 {
		d.offset = len(d.entries)
		return rest, nil
	}
	if len(rest) == 0 {
		return nil, io.EOF
	}
	if n > len(rest) {
		n = len(rest)
	}
	d.offset += n
	return rest[:n], nil
}

type dirEntry struct {
	fs *FS
	e  DirEntry
}

func (e *dirEntry) Name() string { return e.e.Name }
func (e *dirEntry) IsDir() bool  { return e.Type().IsDir() }

// Type trusts the entry's file type tag. Revision 0 directories carry no
// tag, so the inode is read instead.
func (e *dirEntry) Type() fs.FileMode {
	switch e.e.FileType {
	case FileTypeUnknown:
		if ino, err := e.fs.img.ReadInode(e.e.Inode); err == nil {
			return ino.FileMode().Type()
		}
	case FileTypeDir:
		return fs.ModeDir
	case FileTypeSymlink:
		return fs.ModeSymlink
	case FileTypeCharDev:
		return fs.ModeDevice | fs.ModeCharDevice
	case FileTypeBlockDev:
		return fs.ModeDevice
	case FileTypeFIFO:
		return fs.ModeNamedPipe
	case FileTypeSocket:
		return fs.ModeSocket
	}
	return 0
}

func (e *dirEntry) Info() (fs.FileInfo, error) {
	ino, err := e.fs.img.ReadInode(e.e.Inode)
	if err != nil {
		return nil, err
	}
	return &fileInfo{name: e.e.Name, num: e.e.Inode, ino: *ino}, nil
}

func (e *dirEntry) String() string { return fs.FormatDirEntry(e) }

type fileInfo struct {
	name string
	num  uint32
	ino  Inode
}

var _ fsys.FileInfo = (*fileInfo)(nil)

func (i *fileInfo) Name() string       { return i.name }
func (i *fileInfo) Size() int64        { return int64(i.ino.Size) }
func (i *fileInfo) Mode() fs.FileMode  { return i.ino.FileMode() }
func (i *fileInfo) ModTime() time.Time { return time.Unix(int64(i.ino.Mtime), 0) }
func (i *fileInfo) IsDir() bool        { return i.ino.IsDir() }
func (i *fileInfo) Inode() uint64      { return uint64(i.num) }

// Sys returns the decoded *Inode.
func (i *fileInfo) Sys() any { return &i.ino }
