package os161

import (
	"github.com/pkg/errors"
	"go.uber.org/zap"

	co "github.com/InitialD/CSCC69-OS161-Project3/go/kernel/common"
	"github.com/InitialD/CSCC69-OS161-Project3/go/kernel/file"
	"github.com/InitialD/CSCC69-OS161-Project3/go/kernel/vfs"
)

// maxIO caps a single transfer; larger requests complete short.
const maxIO = 1 << 24

func clampLen(size co.Len) co.Len {
	if size > maxIO {
		return maxIO
	}
	return size
}

// withFile runs fn on the file behind fd, holding a reference for the
// duration so a concurrent close cannot destroy it underneath.
func (p *Process) withFile(fd co.Fd, fn func(f *file.OpenFile) (int64, error)) (int64, error) {
	ref, err := p.Files.Get(int(fd))
	if err != nil {
		return -1, err
	}
	n, err := fn(ref.File())
	if rerr := ref.Release(); err == nil && rerr != nil {
		return -1, rerr
	}
	return n, err
}

func (p *Process) open(name string, flags vfs.OpenFlag, mode uint32) (int, error) {
	if name == "" {
		return -1, errors.Wrap(co.EINVAL, "open: empty path")
	}
	if flags&vfs.O_ACCMODE == vfs.O_ACCMODE {
		return -1, errors.Wrapf(co.EINVAL, "open %q: bad access mode", name)
	}
	vn, err := p.Kernel.FS.Open(p.resolve(name), flags, mode)
	if err != nil {
		return -1, err
	}
	ref := file.New(vn, flags)
	fd, err := p.Files.Insert(ref)
	// the table holds its own reference on success; on failure this closes the vnode
	if rerr := ref.Release(); err == nil && rerr != nil {
		return -1, rerr
	}
	if err != nil {
		return -1, err
	}
	return fd, nil
}

func (p *Process) Open(path co.Buf, flags, mode int) uint64 {
	name, err := path.Str(co.PathMax)
	if err != nil {
		return co.Fail(err)
	}
	fd, err := p.open(name, vfs.OpenFlag(flags), uint32(mode))
	return co.Ret(int64(fd), err)
}

func (p *Process) Close(fd co.Fd) uint64 {
	return co.Fail(p.Files.Remove(int(fd)))
}

func (p *Process) Read(fd co.Fd, buf co.Obuf, size co.Len) uint64 {
	size = clampLen(size)
	// fault before the transfer so the offset is not advanced for nothing
	if err := buf.Check(size); err != nil {
		return co.Fail(err)
	}
	return co.Ret(p.withFile(fd, func(f *file.OpenFile) (int64, error) {
		tmp := make([]byte, size)
		n, err := f.Read(tmp)
		if err != nil {
			return -1, err
		}
		return int64(n), buf.Write(tmp[:n])
	}))
}

func (p *Process) Write(fd co.Fd, buf co.Buf, size co.Len) uint64 {
	tmp, err := buf.Read(clampLen(size))
	if err != nil {
		return co.Fail(err)
	}
	return co.Ret(p.withFile(fd, func(f *file.OpenFile) (int64, error) {
		n, err := f.Write(tmp)
		return int64(n), err
	}))
}

func (p *Process) Lseek(fd co.Fd, offset co.Off, whence int) uint64 {
	return co.Ret(p.withFile(fd, func(f *file.OpenFile) (int64, error) {
		return f.Seek(int64(offset), whence)
	}))
}

func (p *Process) Dup2(oldfd, newfd co.Fd) uint64 {
	fd, err := p.Files.Dup2(int(oldfd), int(newfd))
	if err != nil {
		if fd < 0 {
			return co.Fail(err)
		}
		// newfd was installed; only closing its previous file failed
		p.log().Warn("dup2: close of replaced file failed", zap.Int("fd", fd), zap.Error(err))
	}
	return uint64(fd)
}

func (p *Process) Fstat(fd co.Fd, statbuf co.Obuf) uint64 {
	_, err := p.withFile(fd, func(f *file.OpenFile) (int64, error) {
		st, err := f.Stat()
		if err != nil {
			return -1, err
		}
		return 0, statbuf.Pack(NewStat(st))
	})
	return co.Fail(err)
}

func (p *Process) Getdirentry(fd co.Fd, buf co.Obuf, size co.Len) uint64 {
	size = clampLen(size)
	if err := buf.Check(size); err != nil {
		return co.Fail(err)
	}
	return co.Ret(p.withFile(fd, func(f *file.OpenFile) (int64, error) {
		tmp := make([]byte, size)
		n, err := f.ReadDir(tmp)
		if err != nil {
			return -1, err
		}
		return int64(n), buf.Write(tmp[:n])
	}))
}
