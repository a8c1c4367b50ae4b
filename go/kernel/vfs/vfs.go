// Package vfs defines the filesystem layer consumed by the open-file table:
// vnodes, the filesystems that produce them, and a few implementations
// (an in-memory tree, a host directory and the console device).
package vfs

import (
	"strings"
)

// OpenFlag holds open(2) flags using OS/161 values.
type OpenFlag uint32

const (
	O_RDONLY  OpenFlag = 0
	O_WRONLY  OpenFlag = 1
	O_RDWR    OpenFlag = 2
	O_ACCMODE OpenFlag = 3
	O_CREAT   OpenFlag = 4
	O_EXCL    OpenFlag = 8
	O_TRUNC   OpenFlag = 16
	O_APPEND  OpenFlag = 32
)

var oflags = []struct {
	flag OpenFlag
	name string
}{
	{O_CREAT, "O_CREAT"},
	{O_EXCL, "O_EXCL"},
	{O_TRUNC, "O_TRUNC"},
	{O_APPEND, "O_APPEND"},
}

func (f OpenFlag) String() string {
	var parts []string
	switch f & O_ACCMODE {
	case O_RDONLY:
		parts = append(parts, "O_RDONLY")
	case O_WRONLY:
		parts = append(parts, "O_WRONLY")
	case O_RDWR:
		parts = append(parts, "O_RDWR")
	default:
		parts = append(parts, "O_ACCMODE")
	}
	for _, o := range oflags {
		if f&o.flag != 0 {
			parts = append(parts, o.name)
		}
	}
	return strings.Join(parts, "|")
}

// Readable reports whether the access mode permits reads.
func (f OpenFlag) Readable() bool {
	mode := f & O_ACCMODE
	return mode == O_RDONLY || mode == O_RDWR
}

// Writable reports whether the access mode permits writes.
func (f OpenFlag) Writable() bool {
	mode := f & O_ACCMODE
	return mode == O_WRONLY || mode == O_RDWR
}

// Whence values for lseek.
const (
	SEEK_SET = 0
	SEEK_CUR = 1
	SEEK_END = 2
)

// File type bits for Stat.Mode.
const (
	S_IFMT  uint32 = 070000
	S_IFREG uint32 = 010000
	S_IFDIR uint32 = 020000
	S_IFCHR uint32 = 040000
)

// Stat is what a vnode reports about itself.
type Stat struct {
	Size    int64
	Mode    uint32
	Nlink   uint32
	Blocks  uint32
	Dev     uint32
	Ino     uint32
	Blksize uint32
}

func (st *Stat) IsDir() bool {
	return st.Mode&S_IFMT == S_IFDIR
}

// Vnode is one open object in a filesystem. Offsets are supplied by the
// caller; a vnode keeps no seek position of its own.
type Vnode interface {
	Read(p []byte, off int64) (int, error)
	Write(p []byte, off int64) (int, error)
	Stat() (*Stat, error)
	// ReadDir copies the name of the entry at index off into p and returns
	// the byte count and the index of the following entry. n == 0 marks the
	// end of the directory.
	ReadDir(p []byte, off int64) (n int, next int64, err error)
	// TrySeek reports whether off is a valid position for this object.
	TrySeek(off int64) error
	Close() error
}

// FileSystem resolves paths to vnodes.
type FileSystem interface {
	Open(path string, flags OpenFlag, mode uint32) (Vnode, error)
}
