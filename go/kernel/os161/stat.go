package os161

import "github.com/InitialD/CSCC69-OS161-Project3/go/kernel/vfs"

// Stat is struct stat as a process sees it.
type Stat struct {
	Size      int64
	Mode      uint32
	Nlink     uint32
	Blocks    uint32
	Dev       uint32
	Ino       uint32
	Rdev      uint32
	Atime     int64
	Ctime     int64
	Mtime     int64
	Atimensec uint32
	Ctimensec uint32
	Mtimensec uint32
	Uid       uint32
	Gid       uint32
	Gen       uint32
	Blksize   uint32
}

func NewStat(st *vfs.Stat) *Stat {
	return &Stat{
		Size:    st.Size,
		Mode:    st.Mode,
		Nlink:   st.Nlink,
		Blocks:  st.Blocks,
		Dev:     st.Dev,
		Ino:     st.Ino,
		Blksize: st.Blksize,
	}
}
