package vfs

import (
	"sort"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	co "github.com/InitialD/CSCC69-OS161-Project3/go/kernel/common"
)

var hostErrnos = map[unix.Errno]co.Errno{
	unix.ENOENT:       co.ENOENT,
	unix.ENOMEM:       co.ENOMEM,
	unix.EFAULT:       co.EFAULT,
	unix.ENAMETOOLONG: co.ENAMETOOLONG,
	unix.EINVAL:       co.EINVAL,
	unix.ENOTDIR:      co.ENOTDIR,
	unix.EISDIR:       co.EISDIR,
	unix.EEXIST:       co.EEXIST,
	unix.ENODEV:       co.ENODEV,
	unix.EMFILE:       co.EMFILE,
	unix.EBADF:        co.EBADF,
	unix.ESPIPE:       co.ESPIPE,
	unix.ENOSPC:       co.ENOSPC,
	unix.ENOSYS:       co.ENOSYS,
}

// hostErr converts a host errno into the kernel's, keeping the host text.
func hostErr(err error, op string) error {
	if err == nil {
		return nil
	}
	var herr unix.Errno
	if errors.As(err, &herr) {
		if errno, ok := hostErrnos[herr]; ok {
			return errors.Wrapf(errno, "%s: %v", op, herr)
		}
	}
	return errors.Wrapf(co.EIO, "%s: %v", op, err)
}

func hostFlags(flags OpenFlag) int {
	ret := int(flags & O_ACCMODE)
	if flags&O_CREAT != 0 {
		ret |= unix.O_CREAT
	}
	if flags&O_EXCL != 0 {
		ret |= unix.O_EXCL
	}
	if flags&O_TRUNC != 0 {
		ret |= unix.O_TRUNC
	}
	// O_APPEND is left to the open file, which owns the offset
	return ret | unix.O_CLOEXEC
}

func NewHostFS(root string) (*HostFS, error) {
	var st unix.Stat_t
	if err := unix.Stat(root, &st); err != nil {
		return nil, hostErr(err, "stat "+root)
	}
	if st.Mode&unix.S_IFMT != unix.S_IFDIR {
		return nil, errors.Wrapf(co.ENOTDIR, "host root %q", root)
	}
	return &HostFS{Root: root}, nil
}

func (h *HostFS) Open(p string, flags OpenFlag, mode uint32) (Vnode, error) {
	if p == "" {
		return nil, errors.Wrap(co.EINVAL, "open: empty path")
	}
	hp := h.hostPath(p)
	fd, err := unix.Open(hp, hostFlags(flags), mode)
	if err != nil {
		return nil, hostErr(err, "open "+p)
	}
	return &hostVnode{fd: fd}, nil
}

type hostVnode struct {
	fd int

	mu    sync.Mutex // protects names
	names []string
}

func (v *hostVnode) Read(p []byte, off int64) (int, error) {
	n, err := unix.Pread(v.fd, p, off)
	if err != nil {
		return 0, hostErr(err, "pread")
	}
	return n, nil
}

func (v *hostVnode) Write(p []byte, off int64) (int, error) {
	n, err := unix.Pwrite(v.fd, p, off)
	if err != nil {
		return 0, hostErr(err, "pwrite")
	}
	return n, nil
}

func (v *hostVnode) fstat() (*unix.Stat_t, error) {
	var st unix.Stat_t
	if err := unix.Fstat(v.fd, &st); err != nil {
		return nil, hostErr(err, "fstat")
	}
	return &st, nil
}

func (v *hostVnode) Stat() (*Stat, error) {
	st, err := v.fstat()
	if err != nil {
		return nil, err
	}
	ret := &Stat{
		Size:    st.Size,
		Mode:    uint32(st.Mode) & 0777,
		Nlink:   uint32(st.Nlink),
		Blocks:  uint32(st.Blocks),
		Dev:     uint32(st.Dev),
		Ino:     uint32(st.Ino),
		Blksize: uint32(st.Blksize),
	}
	switch st.Mode & unix.S_IFMT {
	case unix.S_IFDIR:
		ret.Mode |= S_IFDIR
	case unix.S_IFCHR:
		ret.Mode |= S_IFCHR
	default:
		ret.Mode |= S_IFREG
	}
	return ret, nil
}

// caller holds v.mu
func (v *hostVnode) loadNames() error {
	if v.names != nil {
		return nil
	}
	if _, err := unix.Seek(v.fd, 0, 0); err != nil {
		return hostErr(err, "seek")
	}
	names := []string{}
	buf := make([]byte, 8192)
	for {
		n, err := unix.Getdents(v.fd, buf)
		if err != nil {
			return hostErr(err, "getdents")
		}
		if n <= 0 {
			break
		}
		_, _, names = unix.ParseDirent(buf[:n], -1, names)
	}
	sort.Strings(names)
	v.names = names
	return nil
}

func (v *hostVnode) ReadDir(p []byte, off int64) (int, int64, error) {
	st, err := v.fstat()
	if err != nil {
		return 0, off, err
	}
	if st.Mode&unix.S_IFMT != unix.S_IFDIR {
		return 0, off, co.ENOTDIR
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.loadNames(); err != nil {
		return 0, off, err
	}
	if off < 0 || off >= int64(len(v.names)) {
		return 0, off, nil
	}
	return copy(p, v.names[off]), off + 1, nil
}

func (v *hostVnode) TrySeek(off int64) error {
	st, err := v.fstat()
	if err != nil {
		return err
	}
	switch st.Mode & unix.S_IFMT {
	case unix.S_IFREG, unix.S_IFDIR, unix.S_IFBLK:
		return nil
	}
	return co.ESPIPE
}

func (v *hostVnode) Close() error {
	return hostErr(unix.Close(v.fd), "close")
}
